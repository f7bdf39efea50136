package main

import (
	"log/slog"
	"net/http"

	"github.com/openclaw/marketplace/internal/app"
	"github.com/openclaw/marketplace/internal/auth"
	"github.com/openclaw/marketplace/internal/config"
	"github.com/openclaw/marketplace/internal/handlers"
	"github.com/openclaw/marketplace/internal/ratelimit"
	"github.com/openclaw/marketplace/internal/registry"
	"github.com/openclaw/marketplace/internal/router"
	"github.com/openclaw/marketplace/internal/services"
)

// buildRoutes wires every HTTP handler onto the service graph.
func buildRoutes(a *app.App, cfg *config.Config, limiter *ratelimit.Limiter, validator *services.Validator, logger *slog.Logger) http.Handler {
	eng := a.Engine
	return router.New(router.Deps{
		Auth:     auth.NewHandler(a.Auth, logger),
		Registry: registry.NewHandler(a.Registry, logger),
		Work:     &handlers.WorkHandler{Dispatch: eng.Dispatcher, Ledger: a.Ledger, Logger: logger},
		Tasks:    &handlers.TaskHandler{Tasks: eng.Tasks, Logger: logger},
		Balance:  &handlers.BalanceHandler{Ledger: a.Ledger, Logger: logger},
		Cron: &handlers.CronHandler{
			Recovery:   eng.Recovery,
			Ledger:     a.Ledger,
			Benchmarks: eng.QA,
			Logger:     logger,
		},
		Workers:    a.Registry,
		Tokens:     a.Auth,
		Validator:  validator,
		Limits:     ratelimit.NewEnforcer(limiter, a.Config),
		CronSecret: cfg.CronSecret,
	})
}
