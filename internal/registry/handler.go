package registry

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/openclaw/marketplace/internal/apperror"
	"github.com/openclaw/marketplace/internal/middleware"
	"github.com/openclaw/marketplace/internal/models"
)

// Request structs mirror the worker_connect, bind_email and bind_payout schemas.

type ConnectRequest struct {
	WorkerType string            `json:"worker_type"`
	ModelInfo  *models.ModelInfo `json:"model_info"`
}

type BindEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code,omitempty"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.Validation("invalid JSON body")
	}
	return nil
}

func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, h.log, err)
		return
	}
	reg, err := h.svc.Register(r.Context(), req.WorkerType, req.ModelInfo)
	if err != nil {
		middleware.WriteError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, reg)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	me, err := h.svc.Me(r.Context(), middleware.WorkerFromCtx(r.Context()))
	if err != nil {
		middleware.WriteError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, me)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch models.ProfilePatch
	if err := decode(r, &patch); err != nil {
		middleware.WriteError(w, h.log, err)
		return
	}
	wk, err := h.svc.UpdateProfile(r.Context(), middleware.WorkerFromCtx(r.Context()).ID, patch)
	if err != nil {
		middleware.WriteError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"profile": wk.Profile})
}

func (h *Handler) BindEmail(w http.ResponseWriter, r *http.Request) {
	var req BindEmailRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, h.log, err)
		return
	}
	if err := h.svc.BindEmail(r.Context(), middleware.WorkerFromCtx(r.Context()).ID, req.Email); err != nil {
		middleware.WriteError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) BindPayout(w http.ResponseWriter, r *http.Request) {
	var req models.Payout
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, h.log, err)
		return
	}
	if err := h.svc.BindPayout(r.Context(), middleware.WorkerFromCtx(r.Context()).ID, req); err != nil {
		middleware.WriteError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, okResponse{OK: true})
}
