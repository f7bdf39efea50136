package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openclaw/marketplace/internal/ledger"
	"github.com/openclaw/marketplace/internal/middleware"
	"github.com/openclaw/marketplace/internal/models"
	"github.com/openclaw/marketplace/internal/services"
)

type Sweeper interface {
	RecoverTimeouts(ctx context.Context) (services.RecoveryResult, error)
	ExpireStale(ctx context.Context) (services.ExpiryResult, error)
}

type Unfreezer interface {
	UnfreezeMatured(ctx context.Context) (ledger.UnfreezeResult, error)
}

type BenchmarkInjector interface {
	InjectBenchmark(ctx context.Context, taskType string) (*models.Task, error)
}

// CronHandler exposes the periodic sweeps to external schedulers.
type CronHandler struct {
	Recovery   Sweeper
	Ledger     Unfreezer
	Benchmarks BenchmarkInjector
	Logger     *slog.Logger
}

func (h *CronHandler) TimeoutRecovery(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Recovery.RecoverTimeouts(r.Context())
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	exp, err := h.Recovery.ExpireStale(r.Context())
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"recovered":         rec.Recovered,
		"workers_penalized": rec.WorkersPenalized,
		"expired":           exp.Expired,
		"refunded_cents":    exp.RefundedCents,
	})
}

func (h *CronHandler) Unfreeze(w http.ResponseWriter, r *http.Request) {
	res, err := h.Ledger.UnfreezeMatured(r.Context())
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Benchmark injects one benchmark task, optionally of ?type=.
func (h *CronHandler) Benchmark(w http.ResponseWriter, r *http.Request) {
	t, err := h.Benchmarks.InjectBenchmark(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"injected": true, "task_id": t.ID})
}
