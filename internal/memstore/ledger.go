package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openclaw/marketplace/internal/models"
)

type BalanceRepo struct {
	s *Store
}

func (r *BalanceRepo) Open(_ context.Context, _ pgx.Tx, userID uuid.UUID, initialCents int64) (*models.Balance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.balances[userID]; ok {
		return nil, pgx.ErrNoRows
	}
	b := &models.Balance{UserID: userID, AmountCents: initialCents, UpdatedAt: r.s.now()}
	r.s.balances[userID] = b
	return cloneBalance(b), nil
}

func (r *BalanceRepo) Get(_ context.Context, userID uuid.UUID) (*models.Balance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.balances[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneBalance(b), nil
}

// mutate applies fn when guard holds. A missing row or failed guard yields pgx.ErrNoRows.
func (r *BalanceRepo) mutate(userID uuid.UUID, guard func(b *models.Balance) bool, fn func(b *models.Balance)) (*models.Balance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.balances[userID]
	if !ok || (guard != nil && !guard(b)) {
		return nil, pgx.ErrNoRows
	}
	fn(b)
	b.UpdatedAt = r.s.now()
	return cloneBalance(b), nil
}

func bumpLifetime(b *models.Balance, amount int64, lt models.Lifetime) {
	switch lt {
	case models.LifetimeDeposited:
		b.TotalDeposited += amount
	case models.LifetimeEarned:
		b.TotalEarned += amount
	case models.LifetimeWithdrawn:
		b.TotalWithdrawn += amount
	}
}

func (r *BalanceRepo) Decrement(_ context.Context, _ pgx.Tx, userID uuid.UUID, amount int64, lt models.Lifetime) (*models.Balance, error) {
	return r.mutate(userID,
		func(b *models.Balance) bool { return b.AmountCents >= amount },
		func(b *models.Balance) {
			b.AmountCents -= amount
			bumpLifetime(b, amount, lt)
		})
}

func (r *BalanceRepo) Increment(_ context.Context, _ pgx.Tx, userID uuid.UUID, amount int64, lt models.Lifetime) (*models.Balance, error) {
	return r.mutate(userID, nil, func(b *models.Balance) {
		b.AmountCents += amount
		bumpLifetime(b, amount, lt)
	})
}

func (r *BalanceRepo) AddFrozen(_ context.Context, _ pgx.Tx, userID uuid.UUID, amount int64) (*models.Balance, error) {
	return r.mutate(userID, nil, func(b *models.Balance) {
		b.FrozenCents += amount
		b.TotalEarned += amount
	})
}

func (r *BalanceRepo) ReleaseFrozen(_ context.Context, _ pgx.Tx, userID uuid.UUID, amount int64) (*models.Balance, error) {
	return r.mutate(userID,
		func(b *models.Balance) bool { return b.FrozenCents >= amount },
		func(b *models.Balance) {
			b.FrozenCents -= amount
			b.AmountCents += amount
		})
}

// Put stores b as-is.
func (r *BalanceRepo) Put(b *models.Balance) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.balances[b.UserID] = cloneBalance(b)
}

type TransactionRepo struct {
	s *Store
}

func (r *TransactionRepo) Insert(_ context.Context, _ pgx.Tx, t *models.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *t
	r.s.txs = append(r.s.txs, &cp)
	return nil
}

func (r *TransactionRepo) SumSince(_ context.Context, userID uuid.UUID, txType string, since time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var sum int64
	for _, t := range r.s.txs {
		if t.UserID == userID && t.Type == txType && !t.CreatedAt.Before(since) {
			sum += t.AmountCents
		}
	}
	return sum, nil
}

func (r *TransactionRepo) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.Transaction
	for i := len(r.s.txs) - 1; i >= 0; i-- {
		if t := r.s.txs[i]; t.UserID == userID {
			cp := *t
			list = append(list, &cp)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

type FrozenEarningRepo struct {
	s *Store
}

func (r *FrozenEarningRepo) Insert(_ context.Context, _ pgx.Tx, fe *models.FrozenEarning) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *fe
	r.s.frozen[fe.ID] = &cp
	return nil
}

func (r *FrozenEarningRepo) ListMatured(_ context.Context, now time.Time) ([]*models.FrozenEarning, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.FrozenEarning
	for _, fe := range r.s.frozen {
		if !fe.MaturityAt.After(now) {
			cp := *fe
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].WorkerID != list[j].WorkerID {
			return list[i].WorkerID.String() < list[j].WorkerID.String()
		}
		return list[i].MaturityAt.Before(list[j].MaturityAt)
	})
	return list, nil
}

func (r *FrozenEarningRepo) DeleteByIDs(_ context.Context, _ pgx.Tx, ids []uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := r.s.frozen[id]; ok {
			delete(r.s.frozen, id)
			n++
		}
	}
	return n, nil
}

// Count returns the number of stored frozen-earning records.
func (r *FrozenEarningRepo) Count() int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.frozen)
}

type ConfigRepo struct {
	s *Store
}

func (r *ConfigRepo) Load(_ context.Context, key string) (json.RawMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.config[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return append(json.RawMessage(nil), v...), nil
}

func (r *ConfigRepo) Save(_ context.Context, key string, value json.RawMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.config[key] = append(json.RawMessage(nil), value...)
	return nil
}

type AccountRepo struct {
	s *Store
}

func (r *AccountRepo) Create(_ context.Context, _ pgx.Tx, a *models.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.accounts {
		if o.Email == a.Email {
			return uniqueViolation("accounts_email_key")
		}
	}
	now := r.s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	r.s.accounts[a.ID] = &cp
	return nil
}

func (r *AccountRepo) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}
