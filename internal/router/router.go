package router

import (
	"net/http"

	"github.com/openclaw/marketplace/internal/auth"
	"github.com/openclaw/marketplace/internal/handlers"
	"github.com/openclaw/marketplace/internal/middleware"
	"github.com/openclaw/marketplace/internal/platformconfig"
	"github.com/openclaw/marketplace/internal/ratelimit"
	"github.com/openclaw/marketplace/internal/registry"
	"github.com/openclaw/marketplace/internal/services"
)

type Deps struct {
	Auth     *auth.Handler
	Registry *registry.Handler
	Work     *handlers.WorkHandler
	Tasks    *handlers.TaskHandler
	Balance  *handlers.BalanceHandler
	Cron     *handlers.CronHandler

	Workers    middleware.WorkerAuthenticator
	Tokens     middleware.TokenValidator
	Validator  middleware.BodyValidator
	Limits     *ratelimit.Enforcer
	CronSecret string
}

type mw = func(http.Handler) http.Handler

// chain applies mws outermost first.
func chain(h http.HandlerFunc, mws ...mw) http.Handler {
	var out http.Handler = h
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// New returns an http.Handler that serves the API under /api.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()

	schema := func(name string) mw { return middleware.ValidateBody(d.Validator, name) }
	ipLimit := func(op string) mw { return middleware.LimitIP(d.Limits, op) }
	workerLimit := func(op string) mw { return middleware.LimitWorker(d.Limits, op) }
	buyerLimit := func(op string) mw { return middleware.LimitBuyer(d.Limits, op) }
	worker := middleware.WorkerAuth(d.Workers)
	buyer := middleware.BuyerAuth(d.Tokens)
	cron := middleware.CronAuth(d.CronSecret)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Workers.
	mux.Handle("POST /api/worker/connect", chain(d.Registry.Connect,
		ipLimit(platformconfig.OpRegistration), schema(services.SchemaWorkerConnect)))
	mux.Handle("GET /api/worker/me", chain(d.Registry.Me,
		worker, workerLimit(platformconfig.OpWorkerMe)))
	mux.Handle("PATCH /api/worker/profile", chain(d.Registry.UpdateProfile,
		worker, schema(services.SchemaProfilePatch)))
	mux.Handle("POST /api/worker/bind-email", chain(d.Registry.BindEmail,
		worker, schema(services.SchemaBindEmail)))
	mux.Handle("POST /api/worker/bind-payout", chain(d.Registry.BindPayout,
		worker, schema(services.SchemaBindPayout)))
	mux.Handle("POST /api/worker/withdraw", chain(d.Work.Withdraw,
		worker, workerLimit(platformconfig.OpWithdrawal), schema(services.SchemaWithdraw)))
	mux.Handle("GET /api/work/next", chain(d.Work.Next,
		ipLimit(platformconfig.OpWorkNext), worker))
	mux.Handle("POST /api/work/submit", chain(d.Work.Submit,
		worker, workerLimit(platformconfig.OpWorkSubmit), schema(services.SchemaSubmission)))

	// Buyers.
	mux.Handle("POST /api/auth/register", chain(d.Auth.Register,
		ipLimit(platformconfig.OpRegistration), schema(services.SchemaRegister)))
	mux.Handle("POST /api/auth/login", chain(d.Auth.Login, schema(services.SchemaLogin)))
	mux.Handle("POST /api/task", chain(d.Tasks.CreateTask,
		buyer, buyerLimit(platformconfig.OpTaskSubmit), schema(services.SchemaCreateTask)))
	mux.Handle("GET /api/task/{id}", chain(d.Tasks.GetTask,
		buyer, buyerLimit(platformconfig.OpTaskCheck)))
	mux.Handle("POST /api/task/{id}/credit", chain(d.Tasks.CreditTask, buyer))
	mux.Handle("GET /api/tasks", chain(d.Tasks.ListTasks,
		buyer, buyerLimit(platformconfig.OpTaskCheck)))
	mux.Handle("GET /api/balance", chain(d.Balance.Balance,
		buyer, buyerLimit(platformconfig.OpBalanceCheck)))
	mux.Handle("GET /api/transactions", chain(d.Balance.Transactions,
		buyer, buyerLimit(platformconfig.OpBalanceCheck)))
	mux.Handle("POST /api/deposit", chain(d.Balance.Deposit,
		buyer, buyerLimit(platformconfig.OpDeposit), schema(services.SchemaDeposit)))

	// Schedulers.
	mux.Handle("POST /api/cron/timeout-recovery", chain(d.Cron.TimeoutRecovery, cron))
	mux.Handle("POST /api/cron/unfreeze", chain(d.Cron.Unfreeze, cron))
	mux.Handle("POST /api/cron/benchmark", chain(d.Cron.Benchmark, cron))

	return mux
}
