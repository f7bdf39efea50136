package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/openclaw/marketplace/internal/apperror"
	"github.com/openclaw/marketplace/internal/middleware"
)

// Request/response structs mirror the register and login schemas.

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
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

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, h.log, apperror.Validation("invalid JSON body"))
		return
	}
	reg, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		middleware.WriteError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, reg)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, h.log, apperror.Validation("invalid JSON body"))
		return
	}
	if req.Email == "" || req.Password == "" {
		middleware.WriteError(w, h.log, apperror.Validation("email and password are required"))
		return
	}
	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		middleware.WriteError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, LoginResponse{Token: token})
}
