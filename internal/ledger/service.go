package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openclaw/marketplace/internal/apperror"
	"github.com/openclaw/marketplace/internal/models"
	"github.com/openclaw/marketplace/internal/platformconfig"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type BalanceStore interface {
	Open(ctx context.Context, tx pgx.Tx, userID uuid.UUID, initialCents int64) (*models.Balance, error)
	Get(ctx context.Context, userID uuid.UUID) (*models.Balance, error)
	Decrement(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, lt models.Lifetime) (*models.Balance, error)
	Increment(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, lt models.Lifetime) (*models.Balance, error)
	AddFrozen(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (*models.Balance, error)
	ReleaseFrozen(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (*models.Balance, error)
}

type TransactionStore interface {
	Insert(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	SumSince(ctx context.Context, userID uuid.UUID, txType string, since time.Time) (int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error)
}

type FrozenStore interface {
	Insert(ctx context.Context, tx pgx.Tx, fe *models.FrozenEarning) error
	ListMatured(ctx context.Context, now time.Time) ([]*models.FrozenEarning, error)
	DeleteByIDs(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) (int64, error)
}

// Service owns every balance mutation. Each mutation appends exactly one
// transaction recording the available amount after the change.
type Service struct {
	DB           TxBeginner
	Balances     BalanceStore
	Transactions TransactionStore
	Frozen       FrozenStore
	Config       *platformconfig.Provider
	Now          func() time.Time
	Logger       *slog.Logger
}

func NewService(db TxBeginner, balances BalanceStore, txs TransactionStore, frozen FrozenStore, cfg *platformconfig.Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		DB:           db,
		Balances:     balances,
		Transactions: txs,
		Frozen:       frozen,
		Config:       cfg,
		Now:          time.Now,
		Logger:       logger,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// withTx runs fn inside tx when given, otherwise inside a fresh transaction it commits.
func (s *Service) withTx(ctx context.Context, tx pgx.Tx, fn func(tx pgx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) record(ctx context.Context, tx pgx.Tx, userID uuid.UUID, txType string, amount, balanceAfter int64, refID string) error {
	err := s.Transactions.Insert(ctx, tx, &models.Transaction{
		ID:           uuid.New(),
		UserID:       userID,
		Type:         txType,
		AmountCents:  amount,
		BalanceAfter: balanceAfter,
		RefID:        refID,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return fmt.Errorf("record %s transaction: %w", txType, err)
	}
	return nil
}

// Open creates the user's balance. Calling it again returns the existing balance unchanged.
func (s *Service) Open(ctx context.Context, tx pgx.Tx, userID uuid.UUID, initialCents int64) (*models.Balance, error) {
	var out *models.Balance
	err := s.withTx(ctx, tx, func(tx pgx.Tx) error {
		b, err := s.Balances.Open(ctx, tx, userID, initialCents)
		if errors.Is(err, pgx.ErrNoRows) {
			out, err = s.Balance(ctx, userID)
			return err
		}
		if err != nil {
			return fmt.Errorf("open balance: %w", err)
		}
		out = b
		if initialCents > 0 {
			return s.record(ctx, tx, userID, models.TxCredit, initialCents, b.AmountCents, "signup")
		}
		return nil
	})
	return out, err
}

func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (*models.Balance, error) {
	b, err := s.Balances.Get(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("Balance")
	}
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

// Deduct removes amount from the available balance only if it is covered.
func (s *Service) Deduct(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, txType, refID string) (*models.Balance, error) {
	if amount < 0 {
		return nil, apperror.Validation("amount must not be negative")
	}
	var out *models.Balance
	err := s.withTx(ctx, tx, func(tx pgx.Tx) error {
		b, err := s.Balances.Decrement(ctx, tx, userID, amount, models.LifetimeFor(txType))
		if errors.Is(err, pgx.ErrNoRows) {
			if _, gerr := s.Balance(ctx, userID); gerr != nil {
				return gerr
			}
			return apperror.InsufficientBalance()
		}
		if err != nil {
			return fmt.Errorf("deduct balance: %w", err)
		}
		out = b
		return s.record(ctx, tx, userID, txType, -amount, b.AmountCents, refID)
	})
	return out, err
}

// Credit adds amount to the available balance and bumps the lifetime total txType feeds.
func (s *Service) Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, txType, refID string) (*models.Balance, error) {
	if amount < 0 {
		return nil, apperror.Validation("amount must not be negative")
	}
	var out *models.Balance
	err := s.withTx(ctx, tx, func(tx pgx.Tx) error {
		b, err := s.Balances.Increment(ctx, tx, userID, amount, models.LifetimeFor(txType))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NotFound("Balance")
		}
		if err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}
		out = b
		return s.record(ctx, tx, userID, txType, amount, b.AmountCents, refID)
	})
	return out, err
}

// FreezeWindow is the configured delay before earnings become available.
func (s *Service) FreezeWindow(ctx context.Context) time.Duration {
	hours := platformconfig.DefaultCommissions().FreezeWindowHours
	if s.Config != nil {
		hours = s.Config.Commissions(ctx).FreezeWindowHours
	}
	return time.Duration(hours * float64(time.Hour))
}

// Freeze credits frozen earnings for a completed task. The available amount is untouched.
func (s *Service) Freeze(ctx context.Context, tx pgx.Tx, workerID, taskID uuid.UUID, amount int64) (*models.FrozenEarning, error) {
	if amount <= 0 {
		return nil, apperror.Validation("freeze amount must be positive")
	}
	now := s.now()
	fe := &models.FrozenEarning{
		ID:          uuid.New(),
		WorkerID:    workerID,
		TaskID:      taskID,
		AmountCents: amount,
		FrozenAt:    now,
		MaturityAt:  now.Add(s.FreezeWindow(ctx)),
	}
	err := s.withTx(ctx, tx, func(tx pgx.Tx) error {
		b, err := s.Balances.AddFrozen(ctx, tx, workerID, amount)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NotFound("Balance")
		}
		if err != nil {
			return fmt.Errorf("freeze balance: %w", err)
		}
		if err := s.Frozen.Insert(ctx, tx, fe); err != nil {
			return fmt.Errorf("insert frozen earning: %w", err)
		}
		return s.record(ctx, tx, workerID, models.TxFreeze, amount, b.AmountCents, taskID.String())
	})
	if err != nil {
		return nil, err
	}
	return fe, nil
}

type UnfreezeResult struct {
	WorkersProcessed int   `json:"workers_processed"`
	TotalUnfrozen    int64 `json:"total_unfrozen"`
}

type maturedGroup struct {
	total int64
	ids   []uuid.UUID
}

// UnfreezeMatured moves every matured frozen earning into available balance,
// one transaction per worker. A failed worker is logged and skipped.
func (s *Service) UnfreezeMatured(ctx context.Context) (UnfreezeResult, error) {
	var res UnfreezeResult
	matured, err := s.Frozen.ListMatured(ctx, s.now())
	if err != nil {
		return res, fmt.Errorf("list matured earnings: %w", err)
	}
	if len(matured) == 0 {
		return res, nil
	}

	order := make([]uuid.UUID, 0)
	groups := make(map[uuid.UUID]*maturedGroup)
	for _, fe := range matured {
		g, ok := groups[fe.WorkerID]
		if !ok {
			g = &maturedGroup{}
			groups[fe.WorkerID] = g
			order = append(order, fe.WorkerID)
		}
		g.total += fe.AmountCents
		g.ids = append(g.ids, fe.ID)
	}

	for _, workerID := range order {
		g := groups[workerID]
		if err := s.unfreezeWorker(ctx, workerID, g); err != nil {
			s.Logger.Warn("unfreeze worker failed", "worker_id", workerID, "amount_cents", g.total, "error", err)
			continue
		}
		res.WorkersProcessed++
		res.TotalUnfrozen += g.total
	}
	s.Logger.Info("unfreeze sweep finished",
		"workers_processed", res.WorkersProcessed, "total_unfrozen", res.TotalUnfrozen)
	return res, nil
}

var errConcurrentUnfreeze = errors.New("frozen earnings already consumed")

func (s *Service) unfreezeWorker(ctx context.Context, workerID uuid.UUID, g *maturedGroup) error {
	return s.withTx(ctx, nil, func(tx pgx.Tx) error {
		n, err := s.Frozen.DeleteByIDs(ctx, tx, g.ids)
		if err != nil {
			return fmt.Errorf("delete frozen earnings: %w", err)
		}
		if n != int64(len(g.ids)) {
			return errConcurrentUnfreeze
		}
		b, err := s.Balances.ReleaseFrozen(ctx, tx, workerID, g.total)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.InsufficientBalance()
		}
		if err != nil {
			return fmt.Errorf("release frozen: %w", err)
		}
		return s.record(ctx, tx, workerID, models.TxUnfreeze, g.total, b.AmountCents, "")
	})
}

type WithdrawalResult struct {
	AmountCents  int64  `json:"amount_cents"`
	BalanceAfter int64  `json:"balance_after"`
	PayoutStatus string `json:"payout_status"`
}

// Withdraw cashes out available (never frozen) balance within the configured limits.
func (s *Service) Withdraw(ctx context.Context, workerID uuid.UUID, amount int64) (*WithdrawalResult, error) {
	cfg := platformconfig.DefaultCommissions()
	if s.Config != nil {
		cfg = s.Config.Commissions(ctx)
	}
	if amount < cfg.MinWithdrawalCents {
		return nil, apperror.Validation(fmt.Sprintf("Minimum withdrawal is %d cents", cfg.MinWithdrawalCents))
	}
	used, err := s.Transactions.SumSince(ctx, workerID, models.TxWithdraw, startOfDay(s.now()))
	if err != nil {
		return nil, fmt.Errorf("sum today's withdrawals: %w", err)
	}
	used = -used
	if used+amount > cfg.DailyWithdrawalLimitCents {
		return nil, apperror.Validation(fmt.Sprintf(
			"Daily withdrawal limit is %d cents (%d already withdrawn today)", cfg.DailyWithdrawalLimitCents, used))
	}
	b, err := s.Deduct(ctx, nil, workerID, amount, models.TxWithdraw, "")
	if err != nil {
		return nil, err
	}
	return &WithdrawalResult{AmountCents: amount, BalanceAfter: b.AmountCents, PayoutStatus: "pending"}, nil
}

type DepositResult struct {
	AmountCents  int64 `json:"amount_cents"`
	BonusCents   int64 `json:"bonus_cents"`
	BalanceAfter int64 `json:"balance_after"`
}

// Deposit credits a confirmed payment. The first deposit also earns the signup bonus.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, amount int64, refID string) (*DepositResult, error) {
	if amount <= 0 {
		return nil, apperror.Validation("amount_cents must be positive")
	}
	signup := platformconfig.DefaultSignup()
	if s.Config != nil {
		signup = s.Config.Signup(ctx)
	}
	res := &DepositResult{AmountCents: amount}
	err := s.withTx(ctx, nil, func(tx pgx.Tx) error {
		b, err := s.Credit(ctx, tx, userID, amount, models.TxDeposit, refID)
		if err != nil {
			return err
		}
		res.BalanceAfter = b.AmountCents
		if b.TotalDeposited != amount {
			return nil
		}
		bonus := int64(float64(amount) * signup.FirstDepositBonusPct)
		if bonus <= 0 {
			return nil
		}
		b, err = s.Credit(ctx, tx, userID, bonus, models.TxCredit, "first_deposit_bonus")
		if err != nil {
			return err
		}
		res.BonusCents = bonus
		res.BalanceAfter = b.AmountCents
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// EarningsSince sums freeze entries created at or after since.
func (s *Service) EarningsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	return s.Transactions.SumSince(ctx, userID, models.TxFreeze, since)
}

// EarningsToday sums freeze entries since the start of the current UTC day.
func (s *Service) EarningsToday(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.EarningsSince(ctx, userID, startOfDay(s.now()))
}

func (s *Service) History(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.Transactions.ListByUser(ctx, userID, limit)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
