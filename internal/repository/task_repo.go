package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openclaw/marketplace/internal/models"
)

const taskColumns = `id, buyer_id, type, input, constraints, price_cents, status, worker_id, assigned_at,
	deadline, output, completed_at, created_at, is_qa, qa_type, original_task_id, expected_output,
	qa_result, funded_by`

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.BuyerID, &t.Type, &t.Input, &t.Constraints, &t.PriceCents, &t.Status,
		&t.WorkerID, &t.AssignedAt, &t.Deadline, &t.Output, &t.CompletedAt, &t.CreatedAt,
		&t.Internal.IsQA, &t.Internal.QAType, &t.Internal.OriginalTaskID, &t.Internal.ExpectedOutput,
		&t.Internal.QAResult, &t.Internal.FundedBy)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTasks(rows pgx.Rows) ([]*models.Task, error) {
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func (r *TaskRepo) Insert(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	qaType := t.Internal.QAType
	if qaType == "" {
		qaType = models.QATypeNone
	}
	var expected any
	if len(t.Internal.ExpectedOutput) > 0 {
		expected = t.Internal.ExpectedOutput
	}
	_, err := On(r.pool, tx).Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, t.ID, t.BuyerID, t.Type, t.Input, t.Constraints, t.PriceCents, t.Status, t.WorkerID, t.AssignedAt,
		t.Deadline, t.Output, t.CompletedAt, t.CreatedAt, t.Internal.IsQA, qaType, t.Internal.OriginalTaskID,
		expected, t.Internal.QAResult, t.Internal.FundedBy)
	return err
}

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

// ListByBuyer returns the buyer's own tasks, newest first. QA duplicates are never listed.
func (r *TaskRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit int) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE buyer_id = $1 AND NOT is_qa
		ORDER BY created_at DESC
		LIMIT $2
	`, buyerID, limit)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// Claim atomically assigns the first eligible pending task to q.WorkerID.
// SKIP LOCKED lets concurrent claimers move past each other's candidate row,
// and the outer status guard makes the assignment exactly-once.
func (r *TaskRepo) Claim(ctx context.Context, q models.ClaimQuery) (*models.Task, error) {
	order := "t.created_at ASC, t.id ASC"
	if q.Order == models.ClaimOrderPriceDesc {
		order = "t.price_cents DESC, t.created_at ASC, t.id ASC"
	}
	accept, reject := q.Accept, q.Reject
	if accept == nil {
		accept = []string{}
	}
	if reject == nil {
		reject = []string{}
	}
	sql := fmt.Sprintf(`
		UPDATE tasks SET status = 'assigned', worker_id = $1, assigned_at = $2
		WHERE id = (
			SELECT t.id FROM tasks t
			WHERE t.status = 'pending'
			  AND t.deadline > $2
			  AND (cardinality($3::text[]) = 0 OR t.type = ANY($3::text[]))
			  AND NOT (t.type = ANY($4::text[]))
			  AND t.price_cents >= $5
			  AND NOT EXISTS (SELECT 1 FROM tasks o WHERE o.id = t.original_task_id AND o.worker_id = $1)
			  AND NOT EXISTS (SELECT 1 FROM tasks s WHERE s.original_task_id = t.id AND s.worker_id = $1)
			ORDER BY %s
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND status = 'pending'
		RETURNING `+taskColumns, order)
	return scanTask(r.pool.QueryRow(ctx, sql, q.WorkerID, q.Now, accept, reject, q.MinPrice))
}

// Complete moves an assigned task owned by workerID to completed.
// Returns pgx.ErrNoRows when the guard does not match.
func (r *TaskRepo) Complete(ctx context.Context, tx pgx.Tx, taskID, workerID uuid.UUID, output models.TaskOutput, at time.Time) (*models.Task, error) {
	return scanTask(On(r.pool, tx).QueryRow(ctx, `
		UPDATE tasks SET status = 'completed', output = $3, completed_at = $4
		WHERE id = $1 AND worker_id = $2 AND status = 'assigned'
		RETURNING `+taskColumns, taskID, workerID, output, at))
}

// MarkCredited moves a completed task owned by buyerID to credited.
func (r *TaskRepo) MarkCredited(ctx context.Context, tx pgx.Tx, taskID, buyerID uuid.UUID) (*models.Task, error) {
	return scanTask(On(r.pool, tx).QueryRow(ctx, `
		UPDATE tasks SET status = 'credited'
		WHERE id = $1 AND buyer_id = $2 AND status = 'completed' AND NOT is_qa
		RETURNING `+taskColumns, taskID, buyerID))
}

// RecoverExpired resets every assigned task past its deadline to pending in one
// statement and reports which worker held each.
func (r *TaskRepo) RecoverExpired(ctx context.Context, now time.Time) ([]models.ExpiredAssignment, error) {
	rows, err := r.pool.Query(ctx, `
		WITH expired AS (
			SELECT id, worker_id FROM tasks
			WHERE status = 'assigned' AND deadline < $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE tasks t SET status = 'pending', worker_id = NULL, assigned_at = NULL
		FROM expired e
		WHERE t.id = e.id AND t.status = 'assigned'
		RETURNING t.id, e.worker_id
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ExpiredAssignment
	for rows.Next() {
		var a models.ExpiredAssignment
		if err := rows.Scan(&a.TaskID, &a.WorkerID); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *TaskRepo) ListStalePending(ctx context.Context, now time.Time, limit int) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status = 'pending' AND deadline < $1
		ORDER BY deadline ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// Expire moves a pending task whose deadline passed to expired.
func (r *TaskRepo) Expire(ctx context.Context, tx pgx.Tx, taskID uuid.UUID, now time.Time) (*models.Task, error) {
	return scanTask(On(r.pool, tx).QueryRow(ctx, `
		UPDATE tasks SET status = 'expired'
		WHERE id = $1 AND status = 'pending' AND deadline < $2
		RETURNING `+taskColumns, taskID, now))
}

func (r *TaskRepo) SetQAResult(ctx context.Context, taskID uuid.UUID, result *models.QAResult) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tasks SET qa_result = $2 WHERE id = $1 AND is_qa`, taskID, result)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
