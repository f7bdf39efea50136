package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/marketplace/internal/chance"
	"github.com/openclaw/marketplace/internal/ledger"
	"github.com/openclaw/marketplace/internal/memstore"
	"github.com/openclaw/marketplace/internal/models"
	"github.com/openclaw/marketplace/internal/platformconfig"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// engine wires every service over one memstore. By default no QA roll fires
// and claims never take the fairness bypass.
type engine struct {
	st         *memstore.Store
	clock      *testClock
	cfg        *platformconfig.Provider
	ledger     *ledger.Service
	qa         *QA
	matcher    *Matcher
	dispatcher *Dispatcher
	tasks      *TaskService
	recovery   *Recovery
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	st := memstore.New()
	clock := &testClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	st.SetClock(clock.Now)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := platformconfig.NewProvider(st.Config(), nil, logger)

	led := ledger.NewService(st, st.Balances(), st.Transactions(), st.FrozenEarnings(), cfg, logger)
	led.Now = clock.Now

	eng := NewEngine(EngineDeps{
		DB:      st,
		Tasks:   st.Tasks(),
		Workers: st.Workers(),
		Ledger:  led,
		Config:  cfg,
		Rand:    chance.NewSequence(0.99),
		Now:     clock.Now,
		Logger:  logger,
	})
	e := &engine{
		st:         st,
		clock:      clock,
		cfg:        cfg,
		ledger:     led,
		qa:         eng.QA,
		matcher:    eng.Matcher,
		dispatcher: eng.Dispatcher,
		tasks:      eng.Tasks,
		recovery:   eng.Recovery,
	}
	return e
}

func (e *engine) buyer(t *testing.T, cents int64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := e.ledger.Open(context.Background(), nil, id, cents)
	require.NoError(t, err)
	return id
}

func (e *engine) worker(t *testing.T, tier string) *models.Worker {
	t.Helper()
	w := &models.Worker{
		ID:         uuid.New(),
		TokenHash:  uuid.NewString(),
		WorkerType: "openclaw",
		Profile:    models.DefaultProfile(),
		Tier:       tier,
	}
	require.NoError(t, e.st.Workers().Create(context.Background(), w))
	_, err := e.ledger.Open(context.Background(), nil, w.ID, 0)
	require.NoError(t, err)
	return w
}

func (e *engine) reload(t *testing.T, w *models.Worker) *models.Worker {
	t.Helper()
	got, err := e.st.Workers().GetByID(context.Background(), w.ID)
	require.NoError(t, err)
	return got
}

func (e *engine) setPrice(t *testing.T, taskType string, cents int64) {
	t.Helper()
	err := e.cfg.Put(context.Background(), platformconfig.KeyPricing,
		platformconfig.PricingConfig{taskType: {BaseCents: cents}})
	require.NoError(t, err)
}

func (e *engine) createTask(t *testing.T, buyer uuid.UUID, taskType string) *CreateTaskResult {
	t.Helper()
	res, err := e.tasks.Create(context.Background(), buyer, CreateTaskInput{
		Type:  taskType,
		Input: models.TaskInput{Messages: []models.Message{{Role: "user", Content: "summarize the report"}}},
	})
	require.NoError(t, err)
	return res
}

func textOutput(s string) models.TaskOutput {
	return models.TaskOutput{Content: s, Format: models.OutputFormatText}
}
