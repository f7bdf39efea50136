package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/openclaw/marketplace/internal/ledger"
	"github.com/openclaw/marketplace/internal/middleware"
	"github.com/openclaw/marketplace/internal/models"
)

type Balances interface {
	Balance(ctx context.Context, userID uuid.UUID) (*models.Balance, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error)
	Deposit(ctx context.Context, userID uuid.UUID, amount int64, refID string) (*ledger.DepositResult, error)
}

// BalanceHandler serves the buyer's balance, history and deposits.
type BalanceHandler struct {
	Ledger Balances
	Logger *slog.Logger
}

type depositRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference,omitempty"`
}

func (h *BalanceHandler) Balance(w http.ResponseWriter, r *http.Request) {
	b, err := h.Ledger.Balance(r.Context(), middleware.BuyerFromCtx(r.Context()))
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, b)
}

func (h *BalanceHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Ledger.History(r.Context(), middleware.BuyerFromCtx(r.Context()), queryInt(r, "limit", 0))
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

// Deposit credits a confirmed payment. Payment verification happens upstream.
func (h *BalanceHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	res, err := h.Ledger.Deposit(r.Context(), middleware.BuyerFromCtx(r.Context()), req.AmountCents, req.Reference)
	if err != nil {
		middleware.WriteError(w, h.Logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}
