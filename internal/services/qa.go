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
	"github.com/openclaw/marketplace/internal/chance"
	"github.com/openclaw/marketplace/internal/models"
	"github.com/openclaw/marketplace/internal/platformconfig"
)

// QA injects platform-funded duplicate and benchmark tasks and scores their output.
// Nothing it writes is visible to workers or buyers.
type QA struct {
	Tasks      TaskStore
	Workers    WorkerStore
	Config     *platformconfig.Provider
	Rand       chance.Source
	Benchmarks []BenchmarkTemplate
	Now        func() time.Time
	Logger     *slog.Logger
}

func (q *QA) now() time.Time {
	if q.Now != nil {
		return q.Now()
	}
	return time.Now()
}

func (q *QA) config(ctx context.Context) platformconfig.QAConfig {
	if q.Config == nil {
		return platformconfig.DefaultQA()
	}
	return q.Config.QA(ctx)
}

// MaybeInjectShadow duplicates a freshly created buyer task with the configured
// shadow probability. It returns the shadow, or nil when the roll misses.
func (q *QA) MaybeInjectShadow(ctx context.Context, original *models.Task) (*models.Task, error) {
	if original.Internal.IsQA {
		return nil, nil
	}
	if !chance.Roll(q.Rand, q.config(ctx).ShadowExecutionRate) {
		return nil, nil
	}
	shadow := original.QADuplicate(models.QATypeShadow, q.now())
	if err := q.Tasks.Insert(ctx, nil, shadow); err != nil {
		return nil, fmt.Errorf("insert shadow: %w", err)
	}
	q.Logger.Debug("shadow task injected", "task_id", shadow.ID, "original_task_id", original.ID)
	return shadow, nil
}

// SpotCheckRate is the per-tier probability for w. Workers failing at least as
// many checks as they pass are sampled at the suspicious rate.
func (q *QA) SpotCheckRate(ctx context.Context, w *models.Worker) float64 {
	rates := q.config(ctx).SpotCheckRates
	if w.Suspicious() {
		if r, ok := rates[models.TierSuspicious]; ok {
			return r
		}
	}
	return rates[w.Tier]
}

// MaybeInjectSpotCheck re-queues a just-completed task for independent execution.
// QA tasks are never spot-checked.
func (q *QA) MaybeInjectSpotCheck(ctx context.Context, completed *models.Task, w *models.Worker) (*models.Task, error) {
	if completed.Internal.IsQA {
		return nil, nil
	}
	if !chance.Roll(q.Rand, q.SpotCheckRate(ctx, w)) {
		return nil, nil
	}
	spot := completed.QADuplicate(models.QATypeSpotCheck, q.now())
	if err := q.Tasks.Insert(ctx, nil, spot); err != nil {
		return nil, fmt.Errorf("insert spot-check: %w", err)
	}
	q.Logger.Debug("spot-check task injected", "task_id", spot.ID, "original_task_id", completed.ID, "worker_id", w.ID)
	return spot, nil
}

// InjectBenchmark queues one benchmark task. An empty taskType picks a template at random.
func (q *QA) InjectBenchmark(ctx context.Context, taskType string) (*models.Task, error) {
	templates := q.Benchmarks
	if len(templates) == 0 {
		templates = DefaultBenchmarks()
	}
	var tpl *BenchmarkTemplate
	if taskType == "" {
		tpl = &templates[chance.Pick(q.Rand, len(templates))]
	} else {
		var matching []int
		for i := range templates {
			if templates[i].Type == taskType {
				matching = append(matching, i)
			}
		}
		if len(matching) == 0 {
			return nil, apperror.NotFound("Benchmark template")
		}
		tpl = &templates[matching[chance.Pick(q.Rand, len(matching))]]
	}

	expected, err := tpl.expectedJSON()
	if err != nil {
		return nil, fmt.Errorf("encode expected output: %w", err)
	}
	now := q.now()
	t := &models.Task{
		ID:      uuid.New(),
		BuyerID: models.PlatformAccountID,
		Type:    tpl.Type,
		Input:   models.TaskInput{Messages: tpl.Messages, Context: tpl.Context},
		Constraints: models.Constraints{
			TimeoutSeconds:  tpl.TimeoutSeconds,
			MinOutputLength: tpl.MinOutputLength,
		},
		PriceCents: tpl.PriceCents,
		Status:     models.TaskStatusPending,
		Deadline:   now.Add(time.Duration(tpl.TimeoutSeconds) * time.Second),
		CreatedAt:  now,
		Internal: models.TaskInternal{
			IsQA:           true,
			QAType:         models.QATypeBenchmark,
			ExpectedOutput: expected,
			FundedBy:       models.FundedByPlatform,
		},
	}
	if err := q.Tasks.Insert(ctx, nil, t); err != nil {
		return nil, fmt.Errorf("insert benchmark: %w", err)
	}
	q.Logger.Info("benchmark task injected", "task_id", t.ID, "type", t.Type)
	return t, nil
}

// Compare scores a completed QA task against its reference and applies the verdict.
// It returns nil when there is nothing to compare yet.
func (q *QA) Compare(ctx context.Context, qaTask *models.Task) (*models.QAResult, error) {
	if !qaTask.Internal.IsQA || qaTask.Output == nil {
		return nil, nil
	}
	reference, subject, err := q.reference(ctx, qaTask)
	if err != nil || reference == nil {
		return nil, err
	}

	similarity, dims, verdict := Score(*qaTask.Output, *reference, q.config(ctx).SimilarityThresholds)
	result := &models.QAResult{
		Similarity:      similarity,
		Verdict:         verdict,
		Dimensions:      dims,
		ReferenceTaskID: qaTask.Internal.OriginalTaskID,
		ComparedAt:      q.now(),
	}
	if err := q.Tasks.SetQAResult(ctx, qaTask.ID, result); err != nil {
		return nil, fmt.Errorf("store qa result: %w", err)
	}

	if subject != uuid.Nil && verdict != models.VerdictFlag {
		if err := q.Workers.RecordSpotCheck(ctx, subject, verdict == models.VerdictPass); err != nil {
			return result, fmt.Errorf("apply verdict: %w", err)
		}
	}
	q.Logger.Info("qa comparison recorded",
		"task_id", qaTask.ID, "qa_type", qaTask.Internal.QAType, "verdict", verdict,
		"similarity", similarity, "subject_worker_id", subject)
	return result, nil
}

// reference resolves the text to compare against and the worker whose record
// the verdict lands on. Benchmarks judge the worker who executed them;
// duplicates judge the worker who executed the original.
func (q *QA) reference(ctx context.Context, qaTask *models.Task) (*string, uuid.UUID, error) {
	if qaTask.Internal.QAType == models.QATypeBenchmark {
		if len(qaTask.Internal.ExpectedOutput) == 0 {
			return nil, uuid.Nil, nil
		}
		ref := string(qaTask.Internal.ExpectedOutput)
		var subject uuid.UUID
		if qaTask.WorkerID != nil {
			subject = *qaTask.WorkerID
		}
		return &ref, subject, nil
	}

	if qaTask.Internal.OriginalTaskID == nil {
		return nil, uuid.Nil, nil
	}
	original, err := q.Tasks.GetByID(ctx, *qaTask.Internal.OriginalTaskID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, uuid.Nil, nil
	}
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("load original task: %w", err)
	}
	if original.Output == nil {
		q.Logger.Debug("qa comparison skipped, original has no output",
			"task_id", qaTask.ID, "original_task_id", original.ID)
		return nil, uuid.Nil, nil
	}
	var subject uuid.UUID
	if original.WorkerID != nil {
		subject = *original.WorkerID
	}
	return &original.Output.Content, subject, nil
}
