// Package memstore is an in-memory backing for every repository interface.
// A single mutex makes each method an atomic find-and-mutate, mirroring the
// guarded SQL statements in package repository. Transactions are accepted and
// ignored: nothing is rolled back.
package memstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openclaw/marketplace/internal/models"
)

type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	tasks    map[uuid.UUID]*models.Task
	workers  map[uuid.UUID]*models.Worker
	balances map[uuid.UUID]*models.Balance
	frozen   map[uuid.UUID]*models.FrozenEarning
	txs      []*models.Transaction
	config   map[string]json.RawMessage
	accounts map[uuid.UUID]*models.Account
}

func New() *Store {
	return &Store{
		now:      time.Now,
		tasks:    make(map[uuid.UUID]*models.Task),
		workers:  make(map[uuid.UUID]*models.Worker),
		balances: make(map[uuid.UUID]*models.Balance),
		frozen:   make(map[uuid.UUID]*models.FrozenEarning),
		config:   make(map[string]json.RawMessage),
		accounts: make(map[uuid.UUID]*models.Account),
	}
}

// SetClock replaces the clock used for created/updated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Begin satisfies the services' TxBeginner.
func (s *Store) Begin(context.Context) (pgx.Tx, error) { return Tx{}, nil }

func (s *Store) Tasks() *TaskRepo                   { return &TaskRepo{s: s} }
func (s *Store) Workers() *WorkerRepo               { return &WorkerRepo{s: s} }
func (s *Store) Balances() *BalanceRepo             { return &BalanceRepo{s: s} }
func (s *Store) Transactions() *TransactionRepo     { return &TransactionRepo{s: s} }
func (s *Store) FrozenEarnings() *FrozenEarningRepo { return &FrozenEarningRepo{s: s} }
func (s *Store) Config() *ConfigRepo                { return &ConfigRepo{s: s} }
func (s *Store) Accounts() *AccountRepo             { return &AccountRepo{s: s} }

// Tx satisfies pgx.Tx; only Commit and Rollback are ever called on it.
type Tx struct{}

func (Tx) Begin(context.Context) (pgx.Tx, error) { return Tx{}, nil }
func (Tx) Commit(context.Context) error          { return nil }
func (Tx) Rollback(context.Context) error        { return nil }
func (Tx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (Tx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (Tx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (Tx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (Tx) Conn() *pgx.Conn { return nil }

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

func cloneTask(t *models.Task) *models.Task {
	cp := *t
	return &cp
}

func cloneWorker(w *models.Worker) *models.Worker {
	cp := *w
	return &cp
}

func cloneBalance(b *models.Balance) *models.Balance {
	cp := *b
	return &cp
}
