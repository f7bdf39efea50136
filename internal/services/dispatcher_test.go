package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/marketplace/internal/apperror"
	"github.com/openclaw/marketplace/internal/chance"
	"github.com/openclaw/marketplace/internal/models"
)

func TestEndToEndSettlement(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.setPrice(t, "analyze", 100)

	buyer := e.buyer(t, 1000)
	created := e.createTask(t, buyer, "analyze")
	assert.Equal(t, int64(100), created.PriceCents)
	assert.Equal(t, int64(900), created.BalanceAfter)

	w := e.worker(t, models.TierNew)
	claim, err := e.dispatcher.Claim(ctx, w)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, created.TaskID, claim.Task.ID)

	res, err := e.dispatcher.Submit(ctx, w, created.TaskID, textOutput("the report says revenue grew"))
	require.NoError(t, err)
	assert.Equal(t, int64(75), res.EarnedCents)
	assert.Equal(t, int64(75), res.Stats.TotalEarned)
	assert.Equal(t, int64(75), res.Stats.EarningsToday)
	assert.Equal(t, 1, res.Stats.TasksCompleted)

	bal, err := e.ledger.Balance(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.AmountCents)
	assert.Equal(t, int64(75), bal.FrozenCents)
	assert.Equal(t, int64(75), bal.TotalEarned)

	e.clock.Advance(24*time.Hour + time.Second)
	unfrozen, err := e.ledger.UnfreezeMatured(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(75), unfrozen.TotalUnfrozen)

	bal, err = e.ledger.Balance(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(75), bal.AmountCents)
	assert.Equal(t, int64(0), bal.FrozenCents)

	buyerBal, err := e.ledger.Balance(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(900), buyerBal.AmountCents)
}

func TestClaimNoTask(t *testing.T) {
	e := newEngine(t)
	res, err := e.dispatcher.Claim(context.Background(), e.worker(t, models.TierNew))
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestClaimSuspended(t *testing.T) {
	e := newEngine(t)
	w := e.worker(t, models.TierNew)
	until := e.clock.Now().Add(30 * time.Minute)
	w.SuspendedUntil = &until

	_, err := e.dispatcher.Claim(context.Background(), w)
	got, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.ErrCodeSuspended, got.Code)
	assert.Equal(t, until, got.Until)
}

func TestClaimIncrementsTasksClaimed(t *testing.T) {
	e := newEngine(t)
	e.createTask(t, e.buyer(t, 100), "code")
	w := e.worker(t, models.TierNew)

	_, err := e.dispatcher.Claim(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, 1, e.reload(t, w).TasksClaimed)
}

func TestClaimHonoursPreferences(t *testing.T) {
	e := newEngine(t)
	buyer := e.buyer(t, 1000)
	e.createTask(t, buyer, "code")
	translate := e.createTask(t, buyer, "translate")

	w := e.worker(t, models.TierNew)
	w.Profile.Preferences.Reject = []string{"code"}
	claim, err := e.dispatcher.Claim(context.Background(), w)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, translate.TaskID, claim.Task.ID)

	picky := e.worker(t, models.TierNew)
	picky.Profile.Preferences.MinPrice = 50
	claim, err = e.dispatcher.Claim(context.Background(), picky)
	require.NoError(t, err)
	assert.Nil(t, claim)
}

func TestClaimOrderByTier(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	buyer := e.buyer(t, 1000)
	next := func(taskType string) uuid.UUID {
		e.clock.Advance(time.Second)
		return e.createTask(t, buyer, taskType).TaskID
	}

	next("translate")
	pricey := next("research")
	claim, err := e.dispatcher.Claim(ctx, e.worker(t, models.TierElite))
	require.NoError(t, err)
	assert.Equal(t, pricey, claim.Task.ID, "established tiers see the highest price first")

	cheap := next("translate")
	next("research")
	drain, err := e.dispatcher.Claim(ctx, e.worker(t, models.TierNew))
	require.NoError(t, err)
	require.NotNil(t, drain)
	assert.NotEqual(t, cheap, drain.Task.ID)

	claim, err = e.dispatcher.Claim(ctx, e.worker(t, models.TierNew))
	require.NoError(t, err)
	assert.Equal(t, cheap, claim.Task.ID)
	_, err = e.dispatcher.Claim(ctx, e.worker(t, models.TierElite))
	require.NoError(t, err)

	e.matcher.Rand = chance.NewSequence(0.1)
	older := next("translate")
	next("research")
	claim, err = e.dispatcher.Claim(ctx, e.worker(t, models.TierElite))
	require.NoError(t, err)
	assert.Equal(t, older, claim.Task.ID, "fairness bypass falls back to FIFO")
}

func TestConcurrentClaimAssignsOnce(t *testing.T) {
	e := newEngine(t)
	created := e.createTask(t, e.buyer(t, 100), "code")

	const pollers = 32
	workers := make([]*models.Worker, pollers)
	for i := range workers {
		workers[i] = e.worker(t, models.TierNew)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		winner []uuid.UUID
	)
	for _, w := range workers {
		wg.Add(1)
		go func(w *models.Worker) {
			defer wg.Done()
			res, err := e.dispatcher.Claim(context.Background(), w)
			if err != nil || res == nil {
				return
			}
			mu.Lock()
			winner = append(winner, w.ID)
			mu.Unlock()
		}(w)
	}
	wg.Wait()

	require.Len(t, winner, 1)
	task, err := e.st.Tasks().GetByID(context.Background(), created.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusAssigned, task.Status)
	assert.Equal(t, winner[0], *task.WorkerID)
}

func TestSubmitIdempotent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	created := e.createTask(t, e.buyer(t, 100), "code")
	w := e.worker(t, models.TierNew)
	_, err := e.dispatcher.Claim(ctx, w)
	require.NoError(t, err)

	_, err = e.dispatcher.Submit(ctx, w, created.TaskID, textOutput("func main() {}"))
	require.NoError(t, err)

	_, err = e.dispatcher.Submit(ctx, w, created.TaskID, textOutput("func main() {}"))
	got, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.ErrCodeConflict, got.Code)
	assert.Equal(t, models.TaskStatusCompleted, got.Status)
	assert.Contains(t, got.Message, "current status: completed")

	bal, err := e.ledger.Balance(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), bal.FrozenCents, "earnings settled exactly once")
	assert.Equal(t, 1, e.reload(t, w).TasksCompleted)
}

func TestSubmitByOtherWorkerIsNotFound(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	created := e.createTask(t, e.buyer(t, 100), "code")
	owner := e.worker(t, models.TierNew)
	_, err := e.dispatcher.Claim(ctx, owner)
	require.NoError(t, err)

	_, err = e.dispatcher.Submit(ctx, e.worker(t, models.TierNew), created.TaskID, textOutput("stolen"))
	assert.True(t, apperror.IsNotFound(err))

	_, err = e.dispatcher.Submit(ctx, owner, uuid.New(), textOutput("missing"))
	assert.True(t, apperror.IsNotFound(err))
}

func TestSubmitValidatesOutput(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	buyer := e.buyer(t, 100)
	res, err := e.tasks.Create(ctx, buyer, CreateTaskInput{
		Type:        "code",
		Input:       models.TaskInput{Messages: []models.Message{{Role: "user", Content: "write fizzbuzz"}}},
		Constraints: &models.Constraints{TimeoutSeconds: 60, MinOutputLength: 10},
	})
	require.NoError(t, err)
	w := e.worker(t, models.TierNew)
	_, err = e.dispatcher.Claim(ctx, w)
	require.NoError(t, err)

	_, err = e.dispatcher.Submit(ctx, w, res.TaskID, textOutput(""))
	assert.True(t, apperror.IsValidation(err))
	_, err = e.dispatcher.Submit(ctx, w, res.TaskID, models.TaskOutput{Content: "0123456789", Format: "pdf"})
	assert.True(t, apperror.IsValidation(err))
	_, err = e.dispatcher.Submit(ctx, w, res.TaskID, textOutput("héllo"))
	assert.True(t, apperror.IsValidation(err), "length is counted in characters")

	task, err := e.st.Tasks().GetByID(ctx, res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusAssigned, task.Status)

	_, err = e.dispatcher.Submit(ctx, w, res.TaskID, textOutput("for i := 1; i <= 100; i++"))
	require.NoError(t, err)
}

func TestSubmitResetsConsecutiveExpires(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	w := e.worker(t, models.TierNew)
	_, err := e.st.Workers().RecordExpirations(ctx, w.ID, 2)
	require.NoError(t, err)

	created := e.createTask(t, e.buyer(t, 100), "code")
	_, err = e.dispatcher.Claim(ctx, w)
	require.NoError(t, err)
	_, err = e.dispatcher.Submit(ctx, w, created.TaskID, textOutput("done"))
	require.NoError(t, err)

	got := e.reload(t, w)
	assert.Equal(t, 0, got.ConsecutiveExpires)
	assert.Equal(t, 2, got.TasksExpired)
}

func TestSubmitZeroEarningCreatesNoFreeze(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.setPrice(t, "translate", 1)
	created := e.createTask(t, e.buyer(t, 100), "translate")
	w := e.worker(t, models.TierNew)
	_, err := e.dispatcher.Claim(ctx, w)
	require.NoError(t, err)

	res, err := e.dispatcher.Submit(ctx, w, created.TaskID, textOutput("hola"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.EarnedCents)
	assert.Equal(t, 0, e.st.FrozenEarnings().Count())
}

func TestSubmitInjectsSpotCheck(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	created := e.createTask(t, e.buyer(t, 100), "code")
	w := e.worker(t, models.TierNew)
	_, err := e.dispatcher.Claim(ctx, w)
	require.NoError(t, err)

	e.qa.Rand = chance.NewSequence(0.01)
	_, err = e.dispatcher.Submit(ctx, w, created.TaskID, textOutput("done"))
	require.NoError(t, err)

	var spot *models.Task
	for _, task := range e.st.Tasks().All() {
		if task.Internal.QAType == models.QATypeSpotCheck {
			spot = task
		}
	}
	require.NotNil(t, spot)
	assert.Equal(t, created.TaskID, *spot.Internal.OriginalTaskID)
	assert.Equal(t, models.FundedByPlatform, spot.Internal.FundedBy)
	assert.Equal(t, models.TaskStatusPending, spot.Status)

	// The worker who executed the original never sees its duplicate.
	res, err := e.dispatcher.Claim(ctx, w)
	require.NoError(t, err)
	assert.Nil(t, res)
}
