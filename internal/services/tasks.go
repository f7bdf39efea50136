package services

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

const (
	DefaultTimeoutSeconds = 60
	MinTimeoutSeconds     = 10
	MaxTimeoutSeconds     = 600

	defaultListLimit = 50
	maxListLimit     = 200
)

type CreateTaskInput struct {
	Type        string              `json:"type"`
	Input       models.TaskInput    `json:"input"`
	Constraints *models.Constraints `json:"constraints,omitempty"`
}

type CreateTaskResult struct {
	TaskID       uuid.UUID `json:"task_id"`
	PriceCents   int64     `json:"price_cents"`
	BalanceAfter int64     `json:"balance_after"`
	Deadline     time.Time `json:"deadline"`
}

type CreditResult struct {
	TaskID        uuid.UUID `json:"task_id"`
	CreditedCents int64     `json:"credited_cents"`
	BalanceAfter  int64     `json:"balance_after"`
}

// TaskService is the buyer side of the task lifecycle.
type TaskService struct {
	DB      TxBeginner
	Tasks   TaskStore
	Workers WorkerStore
	Ledger  Ledger
	QA      *QA
	Config  *platformconfig.Provider
	Now     func() time.Time
	Logger  *slog.Logger
}

func (s *TaskService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *TaskService) pricing(ctx context.Context) platformconfig.PricingConfig {
	if s.Config == nil {
		return platformconfig.DefaultPricing()
	}
	return s.Config.Pricing(ctx)
}

// Create prices the task, charges the buyer and queues it in one transaction.
func (s *TaskService) Create(ctx context.Context, buyerID uuid.UUID, in CreateTaskInput) (*CreateTaskResult, error) {
	if in.Type == "" {
		return nil, apperror.Validation("type is required")
	}
	if len(in.Input.Messages) == 0 {
		return nil, apperror.Validation("input.messages must not be empty")
	}
	constraints := models.Constraints{TimeoutSeconds: DefaultTimeoutSeconds}
	if in.Constraints != nil {
		constraints = *in.Constraints
		if constraints.TimeoutSeconds == 0 {
			constraints.TimeoutSeconds = DefaultTimeoutSeconds
		}
	}
	if constraints.TimeoutSeconds < MinTimeoutSeconds || constraints.TimeoutSeconds > MaxTimeoutSeconds {
		return nil, apperror.Validation(fmt.Sprintf("constraints.timeout_seconds must be between %d and %d", MinTimeoutSeconds, MaxTimeoutSeconds))
	}
	if constraints.MinOutputLength < 0 {
		return nil, apperror.Validation("constraints.min_output_length must not be negative")
	}

	now := s.now()
	task := &models.Task{
		ID:          uuid.New(),
		BuyerID:     buyerID,
		Type:        in.Type,
		Input:       in.Input,
		Constraints: constraints,
		PriceCents:  EstimatePrice(s.pricing(ctx), in.Type, len(in.Input.Messages)),
		Status:      models.TaskStatusPending,
		Deadline:    now.Add(time.Duration(constraints.TimeoutSeconds) * time.Second),
		CreatedAt:   now,
		Internal: models.TaskInternal{
			QAType:   models.QATypeNone,
			FundedBy: models.FundedByBuyer,
		},
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	bal, err := s.Ledger.Deduct(ctx, tx, buyerID, task.PriceCents, models.TxTaskPay, task.ID.String())
	if err != nil {
		return nil, err
	}
	if err := s.Tasks.Insert(ctx, tx, task); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create task: %w", err)
	}
	s.Logger.Info("task created", "task_id", task.ID, "buyer_id", buyerID, "type", task.Type, "price_cents", task.PriceCents)

	if s.QA != nil {
		if _, err := s.QA.MaybeInjectShadow(ctx, task); err != nil {
			s.Logger.Warn("shadow injection failed", "task_id", task.ID, "error", err)
		}
	}

	return &CreateTaskResult{
		TaskID:       task.ID,
		PriceCents:   task.PriceCents,
		BalanceAfter: bal.AmountCents,
		Deadline:     task.Deadline,
	}, nil
}

// Get returns the buyer's own task. Other buyers' tasks and QA duplicates are NotFound.
func (s *TaskService) Get(ctx context.Context, buyerID, taskID uuid.UUID) (*models.BuyerTaskView, error) {
	t, err := s.owned(ctx, buyerID, taskID)
	if err != nil {
		return nil, err
	}
	view := t.BuyerView()
	return &view, nil
}

func (s *TaskService) List(ctx context.Context, buyerID uuid.UUID, limit int) ([]models.BuyerTaskView, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	tasks, err := s.Tasks.ListByBuyer(ctx, buyerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	views := make([]models.BuyerTaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, t.BuyerView())
	}
	return views, nil
}

// Credit refunds a completed task's price to its buyer and counts the request
// against the worker who executed it.
func (s *TaskService) Credit(ctx context.Context, buyerID, taskID uuid.UUID) (*CreditResult, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := s.Tasks.MarkCredited(ctx, tx, taskID, buyerID)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := s.owned(ctx, buyerID, taskID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, apperror.Conflict(fmt.Sprintf("Task cannot be credited (current status: %s)", existing.Status), existing.Status)
	}
	if err != nil {
		return nil, fmt.Errorf("mark credited: %w", err)
	}

	bal, err := s.Ledger.Credit(ctx, tx, buyerID, t.PriceCents, models.TxCredit, t.ID.String())
	if err != nil {
		return nil, err
	}
	if t.WorkerID != nil {
		if err := s.Workers.IncrementCreditRequests(ctx, tx, *t.WorkerID); err != nil {
			return nil, fmt.Errorf("count credit request: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit credit: %w", err)
	}
	s.Logger.Info("task credited", "task_id", t.ID, "buyer_id", buyerID, "amount_cents", t.PriceCents)

	return &CreditResult{TaskID: t.ID, CreditedCents: t.PriceCents, BalanceAfter: bal.AmountCents}, nil
}

func (s *TaskService) owned(ctx context.Context, buyerID, taskID uuid.UUID) (*models.Task, error) {
	t, err := s.Tasks.GetByID(ctx, taskID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("Task")
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if t.BuyerID != buyerID || t.Internal.IsQA {
		return nil, apperror.NotFound("Task")
	}
	return t, nil
}
