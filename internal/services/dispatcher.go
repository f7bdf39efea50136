package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openclaw/marketplace/internal/apperror"
	"github.com/openclaw/marketplace/internal/models"
)

var outputFormats = map[string]bool{
	models.OutputFormatText:     true,
	models.OutputFormatJSON:     true,
	models.OutputFormatHTML:     true,
	models.OutputFormatMarkdown: true,
	models.OutputFormatCode:     true,
}

// ClaimResult is what a worker receives for a claimed task.
type ClaimResult struct {
	Task  models.WorkerTaskView `json:"task"`
	Stats models.WorkerStats    `json:"stats"`
}

type SubmitResult struct {
	TaskID      uuid.UUID          `json:"task_id"`
	EarnedCents int64              `json:"earned_cents"`
	Stats       models.WorkerStats `json:"stats"`
}

// Dispatcher hands pending tasks to workers and accepts their output.
type Dispatcher struct {
	DB         TxBeginner
	Tasks      TaskStore
	Workers    WorkerStore
	Settlement *Settlement
	QA         *QA
	Matcher    *Matcher
	Stats      *StatsBuilder
	Now        func() time.Time
	Logger     *slog.Logger
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Claim assigns the next eligible task to w. It returns nil, nil when nothing matches.
func (d *Dispatcher) Claim(ctx context.Context, w *models.Worker) (*ClaimResult, error) {
	now := d.now()
	if w.SuspendedAt(now) {
		return nil, apperror.Suspended(*w.SuspendedUntil)
	}

	task, err := d.Tasks.Claim(ctx, d.Matcher.Query(w, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}

	if err := d.Workers.IncrementClaimed(ctx, w.ID); err != nil {
		d.Logger.Warn("increment tasks_claimed failed", "worker_id", w.ID, "error", err)
	}
	d.Logger.Debug("task claimed", "task_id", task.ID, "worker_id", w.ID, "type", task.Type)

	return &ClaimResult{
		Task:  task.WorkerView(),
		Stats: d.Stats.Build(ctx, w),
	}, nil
}

// Submit completes a task owned by w and settles its earnings. A second call
// for the same task fails with Conflict; a call from any other worker with NotFound.
func (d *Dispatcher) Submit(ctx context.Context, w *models.Worker, taskID uuid.UUID, output models.TaskOutput) (*SubmitResult, error) {
	if output.Format == "" {
		output.Format = models.OutputFormatText
	}
	if output.Content == "" {
		return nil, apperror.Validation("output.content is required")
	}
	if !outputFormats[output.Format] {
		return nil, apperror.Validation("output.format must be one of text, json, html, markdown, code")
	}

	current, err := d.Tasks.GetByID(ctx, taskID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if err := submitError(current, w.ID); err != nil {
		return nil, err
	}
	if minLen := current.Constraints.MinOutputLength; utf8.RuneCountInString(output.Content) < minLen {
		return nil, apperror.Validation(fmt.Sprintf("output.content must be at least %d characters", minLen))
	}

	var (
		completed *models.Task
		updated   *models.Worker
		earned    int64
	)
	tx, err := d.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	completed, err = d.Tasks.Complete(ctx, tx, taskID, w.ID, output, d.now())
	if errors.Is(err, pgx.ErrNoRows) {
		latest, getErr := d.Tasks.GetByID(ctx, taskID)
		if getErr != nil && !errors.Is(getErr, pgx.ErrNoRows) {
			return nil, fmt.Errorf("load task: %w", getErr)
		}
		if err := submitError(latest, w.ID); err != nil {
			return nil, err
		}
		return nil, apperror.Conflict("Task cannot be submitted", latest.Status)
	}
	if err != nil {
		return nil, fmt.Errorf("complete task: %w", err)
	}

	if earned, err = d.Settlement.Settle(ctx, tx, w, completed); err != nil {
		return nil, err
	}
	if updated, err = d.Workers.RecordCompletion(ctx, tx, w.ID, earned); err != nil {
		return nil, fmt.Errorf("record completion: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit submit: %w", err)
	}

	d.Logger.Info("task completed", "task_id", taskID, "worker_id", w.ID, "earned_cents", earned)
	d.afterSubmit(ctx, completed, updated)

	return &SubmitResult{
		TaskID:      taskID,
		EarnedCents: earned,
		Stats:       d.Stats.Build(ctx, updated),
	}, nil
}

// afterSubmit runs QA follow-ups. Their failures never undo a settled submission.
func (d *Dispatcher) afterSubmit(ctx context.Context, completed *models.Task, w *models.Worker) {
	if d.QA == nil {
		return
	}
	if _, err := d.QA.MaybeInjectSpotCheck(ctx, completed, w); err != nil {
		d.Logger.Warn("spot-check injection failed", "task_id", completed.ID, "error", err)
	}
	if completed.Internal.IsQA {
		if _, err := d.QA.Compare(ctx, completed); err != nil {
			d.Logger.Warn("qa comparison failed", "task_id", completed.ID, "error", err)
		}
	}
}

// submitError reports why workerID may not submit t, or nil when t is assigned to it.
func submitError(t *models.Task, workerID uuid.UUID) error {
	if t == nil || t.WorkerID == nil || *t.WorkerID != workerID {
		return apperror.NotFound("Task")
	}
	if t.Status != models.TaskStatusAssigned {
		return apperror.Conflict(fmt.Sprintf("Task cannot be submitted (current status: %s)", t.Status), t.Status)
	}
	return nil
}
