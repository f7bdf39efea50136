package services

import (
	"context"
	"math"

	"github.com/openclaw/marketplace/internal/models"
	"github.com/openclaw/marketplace/internal/platformconfig"
)

// BuildStats derives a worker's rates and progress toward the next tier.
// Rates are rounded to two decimals.
func BuildStats(w *models.Worker, levels map[string]platformconfig.TierLevel, earningsToday int64) models.WorkerStats {
	completed := w.TasksCompleted
	completionRate := 0.0
	if attempts := completed + w.TasksExpired; attempts > 0 {
		completionRate = float64(completed) / float64(attempts)
	}
	creditRate := 0.0
	if completed > 0 {
		creditRate = float64(w.CreditRequests) / float64(completed)
	}

	stats := models.WorkerStats{
		TasksCompleted:    completed,
		CompletionRate:    round2(completionRate),
		CreditRequestRate: round2(creditRate),
		Tier:              w.Tier,
		EarningsToday:     earningsToday,
		TotalEarned:       w.TotalEarned,
	}

	next, ok := nextTier(w.Tier)
	if !ok {
		return stats
	}
	lvl, ok := levels[next]
	if !ok {
		return stats
	}
	stats.NextTier = &next
	stats.NextTierRequires = &models.TierRequirements{
		MinTasks:          lvl.MinTasks,
		MinCompletionRate: lvl.MinCompletion,
		MaxCreditRate:     lvl.MaxCreditRate,
		TasksRemaining:    max(0, lvl.MinTasks-completed),
		CompletionRateMet: completionRate >= lvl.MinCompletion,
		CreditRateMet:     creditRate <= lvl.MaxCreditRate,
	}
	return stats
}

func nextTier(tier string) (string, bool) {
	for i, t := range models.TierLadder {
		if t == tier && i+1 < len(models.TierLadder) {
			return models.TierLadder[i+1], true
		}
	}
	return "", false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// StatsBuilder resolves tier levels and today's earnings for BuildStats.
type StatsBuilder struct {
	Config *platformconfig.Provider
	Ledger Ledger
}

// Build never fails: an earnings lookup error reports zero earnings today.
func (b *StatsBuilder) Build(ctx context.Context, w *models.Worker) models.WorkerStats {
	tiers := platformconfig.DefaultTiers()
	if b.Config != nil {
		tiers = b.Config.Tiers(ctx)
	}
	var today int64
	if b.Ledger != nil {
		if v, err := b.Ledger.EarningsToday(ctx, w.ID); err == nil {
			today = v
		}
	}
	return BuildStats(w, tiers.Levels, today)
}
