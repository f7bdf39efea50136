package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openclaw/marketplace/internal/ledger"
	"github.com/openclaw/marketplace/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TaskStore is the task collection. Guarded mutations return pgx.ErrNoRows
// when the record is missing or no longer matches the guard.
type TaskStore interface {
	Insert(ctx context.Context, tx pgx.Tx, t *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit int) ([]*models.Task, error)
	Claim(ctx context.Context, q models.ClaimQuery) (*models.Task, error)
	Complete(ctx context.Context, tx pgx.Tx, taskID, workerID uuid.UUID, output models.TaskOutput, at time.Time) (*models.Task, error)
	MarkCredited(ctx context.Context, tx pgx.Tx, taskID, buyerID uuid.UUID) (*models.Task, error)
	RecoverExpired(ctx context.Context, now time.Time) ([]models.ExpiredAssignment, error)
	ListStalePending(ctx context.Context, now time.Time, limit int) ([]*models.Task, error)
	Expire(ctx context.Context, tx pgx.Tx, taskID uuid.UUID, now time.Time) (*models.Task, error)
	SetQAResult(ctx context.Context, taskID uuid.UUID, result *models.QAResult) error
}

// WorkerStore holds the worker counters the engine maintains.
type WorkerStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Worker, error)
	IncrementClaimed(ctx context.Context, id uuid.UUID) error
	RecordCompletion(ctx context.Context, tx pgx.Tx, id uuid.UUID, earned int64) (*models.Worker, error)
	RecordExpirations(ctx context.Context, id uuid.UUID, n int) (*models.Worker, error)
	Suspend(ctx context.Context, id uuid.UUID, until time.Time) error
	RecordSpotCheck(ctx context.Context, id uuid.UUID, passed bool) error
	IncrementCreditRequests(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// Ledger is the subset of the balance ledger the engine calls.
type Ledger interface {
	Balance(ctx context.Context, userID uuid.UUID) (*models.Balance, error)
	Deduct(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, txType, refID string) (*models.Balance, error)
	Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, txType, refID string) (*models.Balance, error)
	Freeze(ctx context.Context, tx pgx.Tx, workerID, taskID uuid.UUID, amount int64) (*models.FrozenEarning, error)
	EarningsToday(ctx context.Context, userID uuid.UUID) (int64, error)
}

var _ Ledger = (*ledger.Service)(nil)
