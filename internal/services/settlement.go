package services

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"github.com/openclaw/marketplace/internal/models"
	"github.com/openclaw/marketplace/internal/platformconfig"
)

// DefaultCommission applies when the worker's tier has no configured level.
const DefaultCommission = 0.25

// Earned is floor(price * (1 - commission)), computed in basis points so that
// binary rounding never shaves a cent.
func Earned(priceCents int64, commission float64) int64 {
	if priceCents <= 0 {
		return 0
	}
	bp := int64(math.Round(commission * 10000))
	if bp >= 10000 {
		return 0
	}
	if bp < 0 {
		bp = 0
	}
	return priceCents * (10000 - bp) / 10000
}

// Settlement pays workers for completed tasks.
type Settlement struct {
	Config *platformconfig.Provider
	Ledger Ledger
}

func NewSettlement(cfg *platformconfig.Provider, l Ledger) *Settlement {
	return &Settlement{Config: cfg, Ledger: l}
}

func (s *Settlement) CommissionRate(ctx context.Context, tier string) float64 {
	tiers := platformconfig.DefaultTiers()
	if s.Config != nil {
		tiers = s.Config.Tiers(ctx)
	}
	if lvl, ok := tiers.Levels[tier]; ok {
		return lvl.Commission
	}
	return DefaultCommission
}

// Settle freezes the worker's share of the task price and returns it.
// A zero share creates no freeze record.
func (s *Settlement) Settle(ctx context.Context, tx pgx.Tx, w *models.Worker, t *models.Task) (int64, error) {
	earned := Earned(t.PriceCents, s.CommissionRate(ctx, w.Tier))
	if earned <= 0 {
		return 0, nil
	}
	if _, err := s.Ledger.Freeze(ctx, tx, w.ID, t.ID, earned); err != nil {
		return 0, fmt.Errorf("freeze earnings: %w", err)
	}
	return earned, nil
}
