package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openclaw/marketplace/internal/models"
)

const (
	// SuspensionThreshold is the consecutive_expires count that triggers a suspension.
	SuspensionThreshold = 3
	SuspensionDuration  = time.Hour

	staleBatchSize = 500
)

type RecoveryResult struct {
	Recovered        int         `json:"recovered"`
	WorkersPenalized []uuid.UUID `json:"workers_penalized"`
}

type ExpiryResult struct {
	Expired       int   `json:"expired"`
	RefundedCents int64 `json:"refunded_cents"`
}

// Recovery returns timed-out assignments to the queue and retires tasks nobody can claim.
type Recovery struct {
	DB      TxBeginner
	Tasks   TaskStore
	Workers WorkerStore
	Ledger  Ledger
	Now     func() time.Time
	Logger  *slog.Logger
}

func (r *Recovery) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// RecoverTimeouts resets every expired assignment to pending and penalizes the
// workers that held them. A failure on one worker is logged and the sweep continues.
func (r *Recovery) RecoverTimeouts(ctx context.Context) (RecoveryResult, error) {
	now := r.now()
	result := RecoveryResult{WorkersPenalized: []uuid.UUID{}}

	expired, err := r.Tasks.RecoverExpired(ctx, now)
	if err != nil {
		return result, fmt.Errorf("recover expired tasks: %w", err)
	}
	result.Recovered = len(expired)
	if len(expired) == 0 {
		return result, nil
	}

	var order []uuid.UUID
	counts := make(map[uuid.UUID]int)
	for _, a := range expired {
		if a.WorkerID == uuid.Nil {
			continue
		}
		if _, seen := counts[a.WorkerID]; !seen {
			order = append(order, a.WorkerID)
		}
		counts[a.WorkerID]++
	}

	for _, id := range order {
		w, err := r.Workers.RecordExpirations(ctx, id, counts[id])
		if err != nil {
			r.Logger.Warn("record expirations failed", "worker_id", id, "error", err)
			continue
		}
		if w.ConsecutiveExpires < SuspensionThreshold {
			continue
		}
		until := now.Add(SuspensionDuration)
		if err := r.Workers.Suspend(ctx, id, until); err != nil {
			r.Logger.Warn("suspend worker failed", "worker_id", id, "error", err)
			continue
		}
		result.WorkersPenalized = append(result.WorkersPenalized, id)
		r.Logger.Info("worker suspended", "worker_id", id,
			"consecutive_expires", w.ConsecutiveExpires, "suspended_until", until)
	}

	r.Logger.Info("timeout recovery complete",
		"recovered", result.Recovered, "workers_penalized", len(result.WorkersPenalized))
	return result, nil
}

// ExpireStale retires pending tasks whose deadline has passed and refunds their buyers.
// Platform-funded QA tasks are retired without a refund.
func (r *Recovery) ExpireStale(ctx context.Context) (ExpiryResult, error) {
	var result ExpiryResult
	now := r.now()
	stale, err := r.Tasks.ListStalePending(ctx, now, staleBatchSize)
	if err != nil {
		return result, fmt.Errorf("list stale tasks: %w", err)
	}
	for _, t := range stale {
		refunded, err := r.expire(ctx, t, now)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			r.Logger.Warn("expire task failed", "task_id", t.ID, "error", err)
			continue
		}
		result.Expired++
		result.RefundedCents += refunded
	}
	if result.Expired > 0 {
		r.Logger.Info("stale tasks expired", "expired", result.Expired, "refunded_cents", result.RefundedCents)
	}
	return result, nil
}

func (r *Recovery) expire(ctx context.Context, t *models.Task, now time.Time) (int64, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	expired, err := r.Tasks.Expire(ctx, tx, t.ID, now)
	if err != nil {
		return 0, err
	}
	var refunded int64
	if expired.Internal.FundedBy == models.FundedByBuyer && expired.PriceCents > 0 {
		if _, err := r.Ledger.Credit(ctx, tx, expired.BuyerID, expired.PriceCents, models.TxCredit, expired.ID.String()); err != nil {
			return 0, fmt.Errorf("refund buyer: %w", err)
		}
		refunded = expired.PriceCents
	}
	return refunded, tx.Commit(ctx)
}
