package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openclaw/marketplace/internal/models"
)

type TaskRepo struct {
	s *Store
}

func (r *TaskRepo) Insert(_ context.Context, _ pgx.Tx, t *models.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[t.ID]; ok {
		return uniqueViolation("tasks_pkey")
	}
	cp := cloneTask(t)
	if cp.Internal.QAType == "" {
		cp.Internal.QAType = models.QATypeNone
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = r.s.now()
	}
	r.s.tasks[t.ID] = cp
	return nil
}

func (r *TaskRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneTask(t), nil
}

func (r *TaskRepo) ListByBuyer(_ context.Context, buyerID uuid.UUID, limit int) ([]*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.Task
	for _, t := range r.s.tasks {
		if t.BuyerID == buyerID && !t.Internal.IsQA {
			list = append(list, cloneTask(t))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *TaskRepo) Claim(_ context.Context, q models.ClaimQuery) (*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var candidates []*models.Task
	for _, t := range r.s.tasks {
		if q.Matches(t) && !r.executedRelated(t, q.WorkerID) {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, pgx.ErrNoRows
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if q.Order == models.ClaimOrderPriceDesc && a.PriceCents != b.PriceCents {
			return a.PriceCents > b.PriceCents
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	t := candidates[0]
	workerID, at := q.WorkerID, q.Now
	t.Status = models.TaskStatusAssigned
	t.WorkerID = &workerID
	t.AssignedAt = &at
	return cloneTask(t), nil
}

// executedRelated reports whether workerID holds the original of t or a QA duplicate of t.
func (r *TaskRepo) executedRelated(t *models.Task, workerID uuid.UUID) bool {
	if id := t.Internal.OriginalTaskID; id != nil {
		if o, ok := r.s.tasks[*id]; ok && o.WorkerID != nil && *o.WorkerID == workerID {
			return true
		}
	}
	for _, d := range r.s.tasks {
		if d.Internal.OriginalTaskID != nil && *d.Internal.OriginalTaskID == t.ID &&
			d.WorkerID != nil && *d.WorkerID == workerID {
			return true
		}
	}
	return false
}

func (r *TaskRepo) Complete(_ context.Context, _ pgx.Tx, taskID, workerID uuid.UUID, output models.TaskOutput, at time.Time) (*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[taskID]
	if !ok || t.Status != models.TaskStatusAssigned || t.WorkerID == nil || *t.WorkerID != workerID {
		return nil, pgx.ErrNoRows
	}
	t.Status = models.TaskStatusCompleted
	t.Output = &output
	t.CompletedAt = &at
	return cloneTask(t), nil
}

func (r *TaskRepo) MarkCredited(_ context.Context, _ pgx.Tx, taskID, buyerID uuid.UUID) (*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[taskID]
	if !ok || t.BuyerID != buyerID || t.Status != models.TaskStatusCompleted || t.Internal.IsQA {
		return nil, pgx.ErrNoRows
	}
	t.Status = models.TaskStatusCredited
	return cloneTask(t), nil
}

func (r *TaskRepo) RecoverExpired(_ context.Context, now time.Time) ([]models.ExpiredAssignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.ExpiredAssignment
	for _, t := range r.s.tasks {
		if t.Status != models.TaskStatusAssigned || !t.Deadline.Before(now) {
			continue
		}
		a := models.ExpiredAssignment{TaskID: t.ID}
		if t.WorkerID != nil {
			a.WorkerID = *t.WorkerID
		}
		t.Status = models.TaskStatusPending
		t.WorkerID = nil
		t.AssignedAt = nil
		out = append(out, a)
	}
	return out, nil
}

func (r *TaskRepo) ListStalePending(_ context.Context, now time.Time, limit int) ([]*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.Task
	for _, t := range r.s.tasks {
		if t.Status == models.TaskStatusPending && t.Deadline.Before(now) {
			list = append(list, cloneTask(t))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Deadline.Before(list[j].Deadline) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *TaskRepo) Expire(_ context.Context, _ pgx.Tx, taskID uuid.UUID, now time.Time) (*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[taskID]
	if !ok || t.Status != models.TaskStatusPending || !t.Deadline.Before(now) {
		return nil, pgx.ErrNoRows
	}
	t.Status = models.TaskStatusExpired
	return cloneTask(t), nil
}

func (r *TaskRepo) SetQAResult(_ context.Context, taskID uuid.UUID, result *models.QAResult) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[taskID]
	if !ok || !t.Internal.IsQA {
		return pgx.ErrNoRows
	}
	cp := *result
	t.Internal.QAResult = &cp
	return nil
}

// Put stores t as-is, bypassing every guard. Test fixtures use it to stage state.
func (r *TaskRepo) Put(t *models.Task) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tasks[t.ID] = cloneTask(t)
}

// All returns every stored task in creation order.
func (r *TaskRepo) All() []*models.Task {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := make([]*models.Task, 0, len(r.s.tasks))
	for _, t := range r.s.tasks {
		list = append(list, cloneTask(t))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list
}
