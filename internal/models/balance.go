package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction types recorded in the ledger.
const (
	TxDeposit  = "deposit"
	TxTaskPay  = "task_pay"
	TxTaskEarn = "task_earn"
	TxFreeze   = "freeze"
	TxUnfreeze = "unfreeze"
	TxWithdraw = "withdraw"
	TxCredit   = "credit"
)

// Lifetime names the running total a balance mutation also bumps.
type Lifetime int

const (
	LifetimeNone Lifetime = iota
	LifetimeDeposited
	LifetimeEarned
	LifetimeWithdrawn
)

// LifetimeFor maps a transaction type to the lifetime total it feeds.
func LifetimeFor(txType string) Lifetime {
	switch txType {
	case TxDeposit:
		return LifetimeDeposited
	case TxTaskEarn:
		return LifetimeEarned
	case TxWithdraw:
		return LifetimeWithdrawn
	default:
		return LifetimeNone
	}
}

type Balance struct {
	UserID         uuid.UUID `json:"user_id"`
	AmountCents    int64     `json:"amount_cents"`
	FrozenCents    int64     `json:"frozen_cents"`
	TotalDeposited int64     `json:"total_deposited"`
	TotalEarned    int64     `json:"total_earned"`
	TotalWithdrawn int64     `json:"total_withdrawn"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type FrozenEarning struct {
	ID          uuid.UUID `json:"id"`
	WorkerID    uuid.UUID `json:"worker_id"`
	TaskID      uuid.UUID `json:"task_id"`
	AmountCents int64     `json:"amount_cents"`
	FrozenAt    time.Time `json:"frozen_at"`
	MaturityAt  time.Time `json:"maturity_at"`
}

// Transaction is an immutable ledger entry. AmountCents is signed.
type Transaction struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Type         string    `json:"type"`
	AmountCents  int64     `json:"amount_cents"`
	BalanceAfter int64     `json:"balance_after"`
	RefID        string    `json:"ref_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
