package ledger

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

const balanceColumns = `user_id, amount_cents, frozen_cents, total_deposited, total_earned, total_withdrawn, updated_at`

type BalanceRepo struct {
	pool *pgxpool.Pool
}

func NewBalanceRepo(pool *pgxpool.Pool) *BalanceRepo {
	return &BalanceRepo{pool: pool}
}

func scanBalance(row pgx.Row) (*models.Balance, error) {
	var b models.Balance
	if err := row.Scan(&b.UserID, &b.AmountCents, &b.FrozenCents, &b.TotalDeposited, &b.TotalEarned, &b.TotalWithdrawn, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// lifetimeSet returns the SET fragment bumping the lifetime total by $2.
func lifetimeSet(lt models.Lifetime) string {
	switch lt {
	case models.LifetimeDeposited:
		return ", total_deposited = total_deposited + $2"
	case models.LifetimeEarned:
		return ", total_earned = total_earned + $2"
	case models.LifetimeWithdrawn:
		return ", total_withdrawn = total_withdrawn + $2"
	default:
		return ""
	}
}

// Open creates the balance row. Returns pgx.ErrNoRows when it already exists.
func (r *BalanceRepo) Open(ctx context.Context, tx pgx.Tx, userID uuid.UUID, initialCents int64) (*models.Balance, error) {
	return scanBalance(repository.On(r.pool, tx).QueryRow(ctx, `
		INSERT INTO balances (user_id, amount_cents) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING `+balanceColumns, userID, initialCents))
}

func (r *BalanceRepo) Get(ctx context.Context, userID uuid.UUID) (*models.Balance, error) {
	return scanBalance(r.pool.QueryRow(ctx, `SELECT `+balanceColumns+` FROM balances WHERE user_id = $1`, userID))
}

// Decrement subtracts from the available amount only when enough is available.
func (r *BalanceRepo) Decrement(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, lt models.Lifetime) (*models.Balance, error) {
	sql := fmt.Sprintf(`
		UPDATE balances SET amount_cents = amount_cents - $2%s, updated_at = now()
		WHERE user_id = $1 AND amount_cents >= $2
		RETURNING `+balanceColumns, lifetimeSet(lt))
	return scanBalance(repository.On(r.pool, tx).QueryRow(ctx, sql, userID, amount))
}

func (r *BalanceRepo) Increment(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, lt models.Lifetime) (*models.Balance, error) {
	sql := fmt.Sprintf(`
		UPDATE balances SET amount_cents = amount_cents + $2%s, updated_at = now()
		WHERE user_id = $1
		RETURNING `+balanceColumns, lifetimeSet(lt))
	return scanBalance(repository.On(r.pool, tx).QueryRow(ctx, sql, userID, amount))
}

// AddFrozen credits frozen earnings. The available amount is untouched.
func (r *BalanceRepo) AddFrozen(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (*models.Balance, error) {
	return scanBalance(repository.On(r.pool, tx).QueryRow(ctx, `
		UPDATE balances SET frozen_cents = frozen_cents + $2, total_earned = total_earned + $2, updated_at = now()
		WHERE user_id = $1
		RETURNING `+balanceColumns, userID, amount))
}

// ReleaseFrozen moves amount from frozen to available when enough is frozen.
func (r *BalanceRepo) ReleaseFrozen(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (*models.Balance, error) {
	return scanBalance(repository.On(r.pool, tx).QueryRow(ctx, `
		UPDATE balances SET frozen_cents = frozen_cents - $2, amount_cents = amount_cents + $2, updated_at = now()
		WHERE user_id = $1 AND frozen_cents >= $2
		RETURNING `+balanceColumns, userID, amount))
}

type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

func (r *TransactionRepo) Insert(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	_, err := repository.On(r.pool, tx).Exec(ctx, `
		INSERT INTO transactions (id, user_id, type, amount_cents, balance_after, ref_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`, t.ID, t.UserID, t.Type, t.AmountCents, t.BalanceAfter, t.RefID, t.CreatedAt)
	return err
}

// SumSince returns the signed total of txType entries for userID created at or after since.
func (r *TransactionRepo) SumSince(ctx context.Context, userID uuid.UUID, txType string, since time.Time) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
		WHERE user_id = $1 AND type = $2 AND created_at >= $3
	`, userID, txType, since).Scan(&sum)
	return sum, err
}

func (r *TransactionRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, type, amount_cents, balance_after, COALESCE(ref_id, ''), created_at
		FROM transactions WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.AmountCents, &t.BalanceAfter, &t.RefID, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

type FrozenEarningRepo struct {
	pool *pgxpool.Pool
}

func NewFrozenEarningRepo(pool *pgxpool.Pool) *FrozenEarningRepo {
	return &FrozenEarningRepo{pool: pool}
}

func (r *FrozenEarningRepo) Insert(ctx context.Context, tx pgx.Tx, fe *models.FrozenEarning) error {
	_, err := repository.On(r.pool, tx).Exec(ctx, `
		INSERT INTO frozen_earnings (id, worker_id, task_id, amount_cents, frozen_at, maturity_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, fe.ID, fe.WorkerID, fe.TaskID, fe.AmountCents, fe.FrozenAt, fe.MaturityAt)
	return err
}

func (r *FrozenEarningRepo) ListMatured(ctx context.Context, now time.Time) ([]*models.FrozenEarning, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, worker_id, task_id, amount_cents, frozen_at, maturity_at
		FROM frozen_earnings WHERE maturity_at <= $1
		ORDER BY worker_id, maturity_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.FrozenEarning
	for rows.Next() {
		var fe models.FrozenEarning
		if err := rows.Scan(&fe.ID, &fe.WorkerID, &fe.TaskID, &fe.AmountCents, &fe.FrozenAt, &fe.MaturityAt); err != nil {
			return nil, err
		}
		list = append(list, &fe)
	}
	return list, rows.Err()
}

// DeleteByIDs removes the given records and reports how many were actually deleted.
func (r *FrozenEarningRepo) DeleteByIDs(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) (int64, error) {
	tag, err := repository.On(r.pool, tx).Exec(ctx, `DELETE FROM frozen_earnings WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
