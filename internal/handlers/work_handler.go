package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/marketplace/internal/ledger"
	"github.com/openclaw/marketplace/internal/middleware"
	"github.com/openclaw/marketplace/internal/models"
	"github.com/openclaw/marketplace/internal/services"
)

const (
	DefaultWait  = 15 * time.Second
	MaxWait      = 30 * time.Second
	PollInterval = 2 * time.Second
)

// Dispatch is the worker side of the engine.
type Dispatch interface {
	Claim(ctx context.Context, w *models.Worker) (*services.ClaimResult, error)
	Submit(ctx context.Context, w *models.Worker, taskID uuid.UUID, output models.TaskOutput) (*services.SubmitResult, error)
}

type Withdrawer interface {
	Withdraw(ctx context.Context, workerID uuid.UUID, amount int64) (*ledger.WithdrawalResult, error)
}

// WorkHandler serves /api/work and /api/worker/withdraw.
type WorkHandler struct {
	Dispatch     Dispatch
	Ledger       Withdrawer
	PollInterval time.Duration
	Logger       *slog.Logger
}

type submitRequest struct {
	TaskID uuid.UUID         `json:"task_id"`
	Output models.TaskOutput `json:"output"`
}

type withdrawRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

// Next handles GET /api/work/next?wait=N. It re-claims every PollInterval
// until a task arrives or the wait elapses, then answers 204.
func (h *WorkHandler) Next(w http.ResponseWriter, r *http.Request) {
	worker := middleware.WorkerFromCtx(r.Context())
	wait := min(time.Duration(queryInt(r, "wait", int(DefaultWait/time.Second)))*time.Second, MaxWait)
	interval := h.PollInterval
	if interval <= 0 {
		interval = PollInterval
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := h.Dispatch.Claim(r.Context(), worker)
		if err != nil {
			middleware.WriteError(w, h.Logger, err)
			return
		}
		if res != nil {
			middleware.WriteJSON(w, http.StatusOK, res)
			return
		}
		select {
		case <-ctx.Done():
			w.WriteHeader(http.StatusNoContent)
			return
		case <-ticker.C:
		}
	}
}

// Submit handles POST /api/work/submit.
func (h *WorkHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	res, err := h.Dispatch.Submit(r.Context(), middleware.WorkerFromCtx(r.Context()), req.TaskID, req.Output)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Withdraw handles POST /api/worker/withdraw.
func (h *WorkHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	res, err := h.Ledger.Withdraw(r.Context(), middleware.WorkerFromCtx(r.Context()).ID, req.AmountCents)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}
