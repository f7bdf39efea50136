package router

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/marketplace/internal/auth"
	"github.com/openclaw/marketplace/internal/chance"
	"github.com/openclaw/marketplace/internal/handlers"
	"github.com/openclaw/marketplace/internal/ledger"
	"github.com/openclaw/marketplace/internal/memstore"
	"github.com/openclaw/marketplace/internal/platformconfig"
	"github.com/openclaw/marketplace/internal/ratelimit"
	"github.com/openclaw/marketplace/internal/registry"
	"github.com/openclaw/marketplace/internal/services"
)

const cronSecret = "cron-test-secret"

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	st := memstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := platformconfig.NewProvider(st.Config(), nil, logger)
	led := ledger.NewService(st, st.Balances(), st.Transactions(), st.FrozenEarnings(), cfg, logger)
	eng := services.NewEngine(services.EngineDeps{
		DB:      st,
		Tasks:   st.Tasks(),
		Workers: st.Workers(),
		Ledger:  led,
		Config:  cfg,
		Rand:    chance.NewSequence(0.99),
		Logger:  logger,
	})
	validator, err := services.NewValidator()
	require.NoError(t, err)

	authSvc := auth.NewService(st, st.Accounts(), led, cfg, "router-test-secret", logger)
	regSvc := registry.NewService(st.Workers(), led, eng.Stats, logger)

	return New(Deps{
		Auth:       auth.NewHandler(authSvc, logger),
		Registry:   registry.NewHandler(regSvc, logger),
		Work:       &handlers.WorkHandler{Dispatch: eng.Dispatcher, Ledger: led, PollInterval: 10 * time.Millisecond, Logger: logger},
		Tasks:      &handlers.TaskHandler{Tasks: eng.Tasks, Logger: logger},
		Balance:    &handlers.BalanceHandler{Ledger: led, Logger: logger},
		Cron:       &handlers.CronHandler{Recovery: eng.Recovery, Ledger: led, Benchmarks: eng.QA, Logger: logger},
		Workers:    regSvc,
		Tokens:     authSvc,
		Validator:  validator,
		Limits:     ratelimit.NewEnforcer(ratelimit.New(), cfg),
		CronSecret: cronSecret,
	})
}

func do(t *testing.T, srv http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("X-Real-Ip", "10.0.0.1")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func TestEndToEnd(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "buyer@example.com", "password": "hunter22"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var buyer struct {
		Token        string `json:"token"`
		BalanceCents int64  `json:"balance_cents"`
	}
	decode(t, rec, &buyer)
	assert.Equal(t, int64(50), buyer.BalanceCents)

	rec = do(t, srv, http.MethodPost, "/api/worker/connect", "", map[string]any{"worker_type": "openclaw"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var worker struct {
		Token string `json:"token"`
	}
	decode(t, rec, &worker)

	rec = do(t, srv, http.MethodPost, "/api/task", buyer.Token, map[string]any{
		"type":  "chat",
		"input": map[string]any{"messages": []map[string]string{{"role": "user", "content": "hello"}}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created services.CreateTaskResult
	decode(t, rec, &created)

	rec = do(t, srv, http.MethodGet, "/api/work/next?wait=1", worker.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "is_qa")
	assert.NotContains(t, rec.Body.String(), "buyer_id")

	rec = do(t, srv, http.MethodPost, "/api/work/submit", worker.Token, map[string]any{
		"task_id": created.TaskID,
		"output":  map[string]string{"content": "hi there", "format": "text"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/task/"+created.TaskID.String(), buyer.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)

	rec = do(t, srv, http.MethodGet, "/api/worker/me", worker.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me struct {
		TasksCompleted int `json:"tasks_completed"`
		Stats          struct {
			Tier string `json:"tier"`
		} `json:"stats"`
		Balance struct {
			FrozenCents int64 `json:"frozen_cents"`
		} `json:"balance"`
	}
	decode(t, rec, &me)
	assert.Equal(t, 1, me.TasksCompleted)
	assert.Equal(t, "new", me.Stats.Tier)
	assert.Equal(t, int64(1), me.Balance.FrozenCents)
	assert.NotContains(t, rec.Body.String(), "token_hash")
}

func TestSchemaRejectsBadBodies(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/worker/connect", "", map[string]any{"worker_type": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/api/auth/register", "", map[string]any{"email": "nope", "password": "hunter22"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/api/worker/me", "/api/balance", "/api/tasks"} {
		rec := do(t, srv, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := do(t, srv, http.MethodPost, "/api/cron/unfreeze", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(t, srv, http.MethodPost, "/api/cron/unfreeze", cronSecret, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegistrationIsRateLimitedPerIP(t *testing.T) {
	srv := newTestServer(t)

	for i := range 3 {
		rec := do(t, srv, http.MethodPost, "/api/worker/connect", "", map[string]any{"worker_type": "openclaw"})
		require.Equal(t, http.StatusCreated, rec.Code, "attempt %d", i)
	}
	rec := do(t, srv, http.MethodPost, "/api/worker/connect", "", map[string]any{"worker_type": "openclaw"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
