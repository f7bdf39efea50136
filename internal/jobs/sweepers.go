// Package jobs runs the engine's periodic sweeps as River jobs.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/openclaw/marketplace/internal/ledger"
	"github.com/openclaw/marketplace/internal/models"
	"github.com/openclaw/marketplace/internal/services"
)

const maxAttempts = 3

type RecoverTimeoutsArgs struct{}

func (RecoverTimeoutsArgs) Kind() string { return "recover_timeouts" }

type ExpireStaleArgs struct{}

func (ExpireStaleArgs) Kind() string { return "expire_stale" }

type UnfreezeArgs struct{}

func (UnfreezeArgs) Kind() string { return "unfreeze_earnings" }

// InjectBenchmarkArgs picks a random template when Type is empty.
type InjectBenchmarkArgs struct {
	Type string `json:"type,omitempty"`
}

func (InjectBenchmarkArgs) Kind() string { return "inject_benchmark" }

type TimeoutRecoverer interface {
	RecoverTimeouts(ctx context.Context) (services.RecoveryResult, error)
	ExpireStale(ctx context.Context) (services.ExpiryResult, error)
}

type Unfreezer interface {
	UnfreezeMatured(ctx context.Context) (ledger.UnfreezeResult, error)
}

type BenchmarkInjector interface {
	InjectBenchmark(ctx context.Context, taskType string) (*models.Task, error)
}

type RecoverTimeoutsWorker struct {
	river.WorkerDefaults[RecoverTimeoutsArgs]
	recovery TimeoutRecoverer
}

func NewRecoverTimeoutsWorker(r TimeoutRecoverer) *RecoverTimeoutsWorker {
	return &RecoverTimeoutsWorker{recovery: r}
}

func (w *RecoverTimeoutsWorker) Work(ctx context.Context, _ *river.Job[RecoverTimeoutsArgs]) error {
	if _, err := w.recovery.RecoverTimeouts(ctx); err != nil {
		return fmt.Errorf("recover timeouts: %w", err)
	}
	return nil
}

type ExpireStaleWorker struct {
	river.WorkerDefaults[ExpireStaleArgs]
	recovery TimeoutRecoverer
}

func NewExpireStaleWorker(r TimeoutRecoverer) *ExpireStaleWorker {
	return &ExpireStaleWorker{recovery: r}
}

func (w *ExpireStaleWorker) Work(ctx context.Context, _ *river.Job[ExpireStaleArgs]) error {
	if _, err := w.recovery.ExpireStale(ctx); err != nil {
		return fmt.Errorf("expire stale tasks: %w", err)
	}
	return nil
}

type UnfreezeWorker struct {
	river.WorkerDefaults[UnfreezeArgs]
	ledger Unfreezer
}

func NewUnfreezeWorker(l Unfreezer) *UnfreezeWorker {
	return &UnfreezeWorker{ledger: l}
}

func (w *UnfreezeWorker) Work(ctx context.Context, _ *river.Job[UnfreezeArgs]) error {
	if _, err := w.ledger.UnfreezeMatured(ctx); err != nil {
		return fmt.Errorf("unfreeze matured earnings: %w", err)
	}
	return nil
}

type InjectBenchmarkWorker struct {
	river.WorkerDefaults[InjectBenchmarkArgs]
	qa  BenchmarkInjector
	log *slog.Logger
}

func NewInjectBenchmarkWorker(qa BenchmarkInjector, log *slog.Logger) *InjectBenchmarkWorker {
	if log == nil {
		log = slog.Default()
	}
	return &InjectBenchmarkWorker{qa: qa, log: log}
}

func (w *InjectBenchmarkWorker) Work(ctx context.Context, job *river.Job[InjectBenchmarkArgs]) error {
	t, err := w.qa.InjectBenchmark(ctx, job.Args.Type)
	if err != nil {
		return fmt.Errorf("inject benchmark: %w", err)
	}
	w.log.Debug("benchmark job done", "task_id", t.ID)
	return nil
}

type Deps struct {
	Recovery   TimeoutRecoverer
	Ledger     Unfreezer
	Benchmarks BenchmarkInjector
	Logger     *slog.Logger
}

// Register adds every sweep worker to workers.
func Register(workers *river.Workers, d Deps) {
	river.AddWorker(workers, NewRecoverTimeoutsWorker(d.Recovery))
	river.AddWorker(workers, NewExpireStaleWorker(d.Recovery))
	river.AddWorker(workers, NewUnfreezeWorker(d.Ledger))
	river.AddWorker(workers, NewInjectBenchmarkWorker(d.Benchmarks, d.Logger))
}

type Intervals struct {
	Recovery  time.Duration
	Unfreeze  time.Duration
	Benchmark time.Duration
}

// PeriodicJobs schedules the sweeps. Stale expiry shares the recovery cadence.
func PeriodicJobs(iv Intervals) []*river.PeriodicJob {
	opts := &river.InsertOpts{MaxAttempts: maxAttempts}
	periodic := func(d time.Duration, args river.JobArgs) *river.PeriodicJob {
		return river.NewPeriodicJob(
			river.PeriodicInterval(d),
			func() (river.JobArgs, *river.InsertOpts) { return args, opts },
			&river.PeriodicJobOpts{RunOnStart: true},
		)
	}
	return []*river.PeriodicJob{
		periodic(iv.Recovery, RecoverTimeoutsArgs{}),
		periodic(iv.Recovery, ExpireStaleArgs{}),
		periodic(iv.Unfreeze, UnfreezeArgs{}),
		periodic(iv.Benchmark, InjectBenchmarkArgs{}),
	}
}
