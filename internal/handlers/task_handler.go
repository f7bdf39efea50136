package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/openclaw/marketplace/internal/middleware"
	"github.com/openclaw/marketplace/internal/models"
	"github.com/openclaw/marketplace/internal/services"
)

// Tasks is the buyer side of the task lifecycle.
type Tasks interface {
	Create(ctx context.Context, buyerID uuid.UUID, in services.CreateTaskInput) (*services.CreateTaskResult, error)
	Get(ctx context.Context, buyerID, taskID uuid.UUID) (*models.BuyerTaskView, error)
	List(ctx context.Context, buyerID uuid.UUID, limit int) ([]models.BuyerTaskView, error)
	Credit(ctx context.Context, buyerID, taskID uuid.UUID) (*services.CreditResult, error)
}

// TaskHandler serves /api/task and /api/tasks.
type TaskHandler struct {
	Tasks  Tasks
	Logger *slog.Logger
}

// CreateTask handles POST /api/task. The body has already passed the create_task schema.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var in services.CreateTaskInput
	if err := decode(r, &in); err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	res, err := h.Tasks.Create(r.Context(), middleware.BuyerFromCtx(r.Context()), in)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, res)
}

// GetTask handles GET /api/task/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	view, err := h.Tasks.Get(r.Context(), middleware.BuyerFromCtx(r.Context()), id)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}

// ListTasks handles GET /api/tasks?limit=N.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	views, err := h.Tasks.List(r.Context(), middleware.BuyerFromCtx(r.Context()), queryInt(r, "limit", 0))
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"tasks": views})
}

// CreditTask handles POST /api/task/{id}/credit.
func (h *TaskHandler) CreditTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	res, err := h.Tasks.Credit(r.Context(), middleware.BuyerFromCtx(r.Context()), id)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}
