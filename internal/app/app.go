// Package app assembles the Postgres-backed service graph shared by the API
// server and the ops CLI.
package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openclaw/marketplace/internal/auth"
	"github.com/openclaw/marketplace/internal/chance"
	"github.com/openclaw/marketplace/internal/config"
	"github.com/openclaw/marketplace/internal/ledger"
	"github.com/openclaw/marketplace/internal/platformconfig"
	"github.com/openclaw/marketplace/internal/registry"
	"github.com/openclaw/marketplace/internal/repository"
	"github.com/openclaw/marketplace/internal/services"
)

type App struct {
	Pool     *pgxpool.Pool
	Config   *platformconfig.Provider
	Ledger   *ledger.Service
	Engine   *services.Engine
	Auth     auth.Service
	Registry registry.Service
	Logger   *slog.Logger
}

func New(pool *pgxpool.Pool, cfg *config.Config, logger *slog.Logger) *App {
	provider := platformconfig.NewProvider(
		repository.NewConfigRepo(pool),
		platformconfig.NewCache(cfg.ConfigCacheTTL),
		logger,
	)

	led := ledger.NewService(
		pool,
		ledger.NewBalanceRepo(pool),
		ledger.NewTransactionRepo(pool),
		ledger.NewFrozenEarningRepo(pool),
		provider,
		logger,
	)

	var rnd chance.Source = chance.NewRandom()
	if cfg.QASeed != nil {
		rnd = chance.New(*cfg.QASeed)
	}

	tasks := repository.NewTaskRepo(pool)
	workers := registry.NewRepository(pool)
	eng := services.NewEngine(services.EngineDeps{
		DB:      pool,
		Tasks:   tasks,
		Workers: workers,
		Ledger:  led,
		Config:  provider,
		Rand:    rnd,
		Logger:  logger,
	})

	return &App{
		Pool:     pool,
		Config:   provider,
		Ledger:   led,
		Engine:   eng,
		Auth:     auth.NewService(pool, auth.NewRepository(pool), led, provider, cfg.JWTSecret, logger),
		Registry: registry.NewService(workers, led, eng.Stats, logger),
		Logger:   logger,
	}
}
