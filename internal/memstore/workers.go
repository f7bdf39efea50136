package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openclaw/marketplace/internal/models"
)

type WorkerRepo struct {
	s *Store
}

func (r *WorkerRepo) Create(_ context.Context, w *models.Worker) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.workers {
		if o.TokenHash == w.TokenHash {
			return uniqueViolation("workers_token_hash_key")
		}
	}
	now := r.s.now()
	w.CreatedAt, w.UpdatedAt = now, now
	r.s.workers[w.ID] = cloneWorker(w)
	return nil
}

func (r *WorkerRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Worker, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.workers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneWorker(w), nil
}

func (r *WorkerRepo) GetByEmail(_ context.Context, email string) (*models.Worker, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.workers {
		if w.Email != nil && *w.Email == email {
			return cloneWorker(w), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *WorkerRepo) Authenticate(_ context.Context, tokenHash string, now time.Time) (*models.Worker, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.workers {
		if w.TokenHash == tokenHash {
			seen := now
			w.LastSeen = &seen
			return cloneWorker(w), nil
		}
	}
	return nil, pgx.ErrNoRows
}

// update applies fn to the stored worker under the lock and returns a copy.
func (r *WorkerRepo) update(id uuid.UUID, fn func(w *models.Worker)) (*models.Worker, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.workers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	fn(w)
	w.UpdatedAt = r.s.now()
	return cloneWorker(w), nil
}

func (r *WorkerRepo) IncrementClaimed(_ context.Context, id uuid.UUID) error {
	_, err := r.update(id, func(w *models.Worker) { w.TasksClaimed++ })
	return err
}

func (r *WorkerRepo) RecordCompletion(_ context.Context, _ pgx.Tx, id uuid.UUID, earned int64) (*models.Worker, error) {
	return r.update(id, func(w *models.Worker) {
		w.TasksCompleted++
		w.TotalEarned += earned
		w.ConsecutiveExpires = 0
	})
}

func (r *WorkerRepo) RecordExpirations(_ context.Context, id uuid.UUID, n int) (*models.Worker, error) {
	return r.update(id, func(w *models.Worker) {
		w.TasksExpired += n
		w.ConsecutiveExpires += n
	})
}

func (r *WorkerRepo) Suspend(_ context.Context, id uuid.UUID, until time.Time) error {
	_, err := r.update(id, func(w *models.Worker) { w.SuspendedUntil = &until })
	return err
}

func (r *WorkerRepo) RecordSpotCheck(_ context.Context, id uuid.UUID, passed bool) error {
	_, err := r.update(id, func(w *models.Worker) {
		if passed {
			w.SpotPass++
		} else {
			w.SpotFail++
		}
	})
	return err
}

func (r *WorkerRepo) IncrementCreditRequests(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	_, err := r.update(id, func(w *models.Worker) { w.CreditRequests++ })
	return err
}

func (r *WorkerRepo) UpdateProfile(_ context.Context, id uuid.UUID, patch models.ProfilePatch) (*models.Worker, error) {
	return r.update(id, func(w *models.Worker) { w.Profile = patch.Apply(w.Profile) })
}

func (r *WorkerRepo) BindEmail(_ context.Context, id uuid.UUID, email string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.workers[id]
	if !ok {
		return pgx.ErrNoRows
	}
	for oid, o := range r.s.workers {
		if oid != id && o.Email != nil && *o.Email == email {
			return uniqueViolation("workers_email_key")
		}
	}
	w.Email = &email
	w.UpdatedAt = r.s.now()
	return nil
}

func (r *WorkerRepo) BindPayout(_ context.Context, id uuid.UUID, payout models.Payout) error {
	_, err := r.update(id, func(w *models.Worker) { w.Payout = &payout })
	return err
}

// Put stores w as-is. Test fixtures use it to stage counters and tiers.
func (r *WorkerRepo) Put(w *models.Worker) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.workers[w.ID] = cloneWorker(w)
}
