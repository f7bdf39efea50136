package services

import (
	"log/slog"
	"time"

	"github.com/openclaw/marketplace/internal/chance"
	"github.com/openclaw/marketplace/internal/platformconfig"
)

// Engine bundles the services that share one set of stores, one clock and one RNG.
type Engine struct {
	Dispatcher *Dispatcher
	Tasks      *TaskService
	Recovery   *Recovery
	QA         *QA
	Settlement *Settlement
	Matcher    *Matcher
	Stats      *StatsBuilder
}

type EngineDeps struct {
	DB         TxBeginner
	Tasks      TaskStore
	Workers    WorkerStore
	Ledger     Ledger
	Config     *platformconfig.Provider
	Rand       chance.Source
	Benchmarks []BenchmarkTemplate
	Now        func() time.Time
	Logger     *slog.Logger
}

func NewEngine(d EngineDeps) *Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Rand == nil {
		d.Rand = chance.NewRandom()
	}
	if d.Benchmarks == nil {
		d.Benchmarks = DefaultBenchmarks()
	}

	qa := &QA{
		Tasks:      d.Tasks,
		Workers:    d.Workers,
		Config:     d.Config,
		Rand:       d.Rand,
		Benchmarks: d.Benchmarks,
		Now:        d.Now,
		Logger:     d.Logger,
	}
	settlement := NewSettlement(d.Config, d.Ledger)
	matcher := NewMatcher(d.Rand)
	stats := &StatsBuilder{Config: d.Config, Ledger: d.Ledger}

	return &Engine{
		QA:         qa,
		Settlement: settlement,
		Matcher:    matcher,
		Stats:      stats,
		Dispatcher: &Dispatcher{
			DB:         d.DB,
			Tasks:      d.Tasks,
			Workers:    d.Workers,
			Settlement: settlement,
			QA:         qa,
			Matcher:    matcher,
			Stats:      stats,
			Now:        d.Now,
			Logger:     d.Logger,
		},
		Tasks: &TaskService{
			DB:      d.DB,
			Tasks:   d.Tasks,
			Workers: d.Workers,
			Ledger:  d.Ledger,
			QA:      qa,
			Config:  d.Config,
			Now:     d.Now,
			Logger:  d.Logger,
		},
		Recovery: &Recovery{
			DB:      d.DB,
			Tasks:   d.Tasks,
			Workers: d.Workers,
			Ledger:  d.Ledger,
			Now:     d.Now,
			Logger:  d.Logger,
		},
	}
}
