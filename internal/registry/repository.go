package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openclaw/marketplace/internal/models"
	"github.com/openclaw/marketplace/internal/repository"
)

const workerColumns = `id, token_hash, worker_type, model_info, email, payout, profile, tier,
	tasks_claimed, tasks_completed, tasks_expired, consecutive_expires, total_earned, credit_requests,
	spot_pass, spot_fail, suspended_until, last_seen, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanWorker(row pgx.Row) (*models.Worker, error) {
	var w models.Worker
	err := row.Scan(&w.ID, &w.TokenHash, &w.WorkerType, &w.ModelInfo, &w.Email, &w.Payout, &w.Profile, &w.Tier,
		&w.TasksClaimed, &w.TasksCompleted, &w.TasksExpired, &w.ConsecutiveExpires, &w.TotalEarned,
		&w.CreditRequests, &w.SpotPass, &w.SpotFail, &w.SuspendedUntil, &w.LastSeen, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) Create(ctx context.Context, w *models.Worker) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO workers (id, token_hash, worker_type, model_info, profile, tier)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, w.ID, w.TokenHash, w.WorkerType, w.ModelInfo, w.Profile, w.Tier).Scan(&w.CreatedAt, &w.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Worker, error) {
	return scanWorker(r.pool.QueryRow(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = $1`, id))
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Worker, error) {
	return scanWorker(r.pool.QueryRow(ctx, `SELECT `+workerColumns+` FROM workers WHERE email = $1`, email))
}

// Authenticate resolves a token hash and stamps last_seen in the same statement.
func (r *Repository) Authenticate(ctx context.Context, tokenHash string, now time.Time) (*models.Worker, error) {
	return scanWorker(r.pool.QueryRow(ctx, `
		UPDATE workers SET last_seen = $2 WHERE token_hash = $1
		RETURNING `+workerColumns, tokenHash, now))
}

func (r *Repository) IncrementClaimed(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, nil, `UPDATE workers SET tasks_claimed = tasks_claimed + 1, updated_at = now() WHERE id = $1`, id)
}

// RecordCompletion bumps completion counters and clears the expiry streak.
func (r *Repository) RecordCompletion(ctx context.Context, tx pgx.Tx, id uuid.UUID, earned int64) (*models.Worker, error) {
	return scanWorker(repository.On(r.pool, tx).QueryRow(ctx, `
		UPDATE workers
		SET tasks_completed = tasks_completed + 1, total_earned = total_earned + $2,
		    consecutive_expires = 0, updated_at = now()
		WHERE id = $1
		RETURNING `+workerColumns, id, earned))
}

func (r *Repository) RecordExpirations(ctx context.Context, id uuid.UUID, n int) (*models.Worker, error) {
	return scanWorker(r.pool.QueryRow(ctx, `
		UPDATE workers
		SET tasks_expired = tasks_expired + $2, consecutive_expires = consecutive_expires + $2, updated_at = now()
		WHERE id = $1
		RETURNING `+workerColumns, id, n))
}

func (r *Repository) Suspend(ctx context.Context, id uuid.UUID, until time.Time) error {
	return r.exec(ctx, nil, `UPDATE workers SET suspended_until = $2, updated_at = now() WHERE id = $1`, id, until)
}

func (r *Repository) RecordSpotCheck(ctx context.Context, id uuid.UUID, passed bool) error {
	col := "spot_fail"
	if passed {
		col = "spot_pass"
	}
	return r.exec(ctx, nil, fmt.Sprintf(`UPDATE workers SET %[1]s = %[1]s + 1, updated_at = now() WHERE id = $1`, col), id)
}

func (r *Repository) IncrementCreditRequests(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return r.exec(ctx, tx, `UPDATE workers SET credit_requests = credit_requests + 1, updated_at = now() WHERE id = $1`, id)
}

// UpdateProfile merges patch into the stored profile under a row lock.
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, patch models.ProfilePatch) (*models.Worker, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var profile models.Profile
	if err := tx.QueryRow(ctx, `SELECT profile FROM workers WHERE id = $1 FOR UPDATE`, id).Scan(&profile); err != nil {
		return nil, err
	}
	w, err := scanWorker(tx.QueryRow(ctx, `
		UPDATE workers SET profile = $2, updated_at = now() WHERE id = $1
		RETURNING `+workerColumns, id, patch.Apply(profile)))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (r *Repository) BindEmail(ctx context.Context, id uuid.UUID, email string) error {
	return r.exec(ctx, nil, `UPDATE workers SET email = $2, updated_at = now() WHERE id = $1`, id, email)
}

func (r *Repository) BindPayout(ctx context.Context, id uuid.UUID, payout models.Payout) error {
	return r.exec(ctx, nil, `UPDATE workers SET payout = $2, updated_at = now() WHERE id = $1`, id, payout)
}

func (r *Repository) exec(ctx context.Context, tx pgx.Tx, sql string, args ...any) error {
	tag, err := repository.On(r.pool, tx).Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
