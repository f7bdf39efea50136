package services

import (
	"time"

	"github.com/openclaw/marketplace/internal/chance"
	"github.com/openclaw/marketplace/internal/models"
)

// FairnessBypassRate is how often tier ordering is ignored in favour of strict FIFO.
const FairnessBypassRate = 0.2

// Matcher turns a worker's preferences and tier into a claim query.
type Matcher struct {
	Rand chance.Source
}

func NewMatcher(src chance.Source) *Matcher {
	return &Matcher{Rand: src}
}

// Order picks the ranking for one claim. New workers and bypass rolls get FIFO;
// everyone else sees the most valuable tasks first.
func (m *Matcher) Order(tier string) models.ClaimOrder {
	bypass := chance.Roll(m.Rand, FairnessBypassRate)
	if bypass || tier == models.TierNew {
		return models.ClaimOrderFIFO
	}
	return models.ClaimOrderPriceDesc
}

func (m *Matcher) Query(w *models.Worker, now time.Time) models.ClaimQuery {
	prefs := w.Profile.Preferences
	return models.ClaimQuery{
		WorkerID: w.ID,
		Now:      now,
		Accept:   prefs.Accept,
		Reject:   prefs.Reject,
		MinPrice: prefs.MinPrice,
		Order:    m.Order(w.Tier),
	}
}
