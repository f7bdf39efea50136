package ledger

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/marketplace/internal/apperror"
	"github.com/openclaw/marketplace/internal/memstore"
	"github.com/openclaw/marketplace/internal/models"
	"github.com/openclaw/marketplace/internal/platformconfig"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLedger(t *testing.T) (*Service, *memstore.Store, *testClock) {
	t.Helper()
	st := memstore.New()
	clock := &testClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	st.SetClock(clock.Now)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := platformconfig.NewProvider(st.Config(), platformconfig.NewCache(time.Minute), logger)
	svc := NewService(st, st.Balances(), st.Transactions(), st.FrozenEarnings(), cfg, logger)
	svc.Now = clock.Now
	return svc, st, clock
}

func txTypes(t *testing.T, st *memstore.Store, userID uuid.UUID) []string {
	t.Helper()
	list, err := st.Transactions().ListByUser(context.Background(), userID, 0)
	require.NoError(t, err)
	var out []string
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i].Type)
	}
	return out
}

func TestOpenIsIdempotent(t *testing.T) {
	svc, st, _ := newTestLedger(t)
	ctx := context.Background()
	user := uuid.New()

	b, err := svc.Open(ctx, nil, user, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), b.AmountCents)

	b, err = svc.Open(ctx, nil, user, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), b.AmountCents)
	assert.Equal(t, []string{models.TxCredit}, txTypes(t, st, user))
}

func TestDeductGuardsAvailableBalance(t *testing.T) {
	svc, st, _ := newTestLedger(t)
	ctx := context.Background()
	user := uuid.New()
	_, err := svc.Open(ctx, nil, user, 100)
	require.NoError(t, err)

	b, err := svc.Deduct(ctx, nil, user, 60, models.TxTaskPay, "task-1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), b.AmountCents)

	_, err = svc.Deduct(ctx, nil, user, 41, models.TxTaskPay, "task-2")
	assert.True(t, apperror.HasCode(err, apperror.ErrCodeInsufficientBalance))

	got, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(40), got.AmountCents)

	list, err := st.Transactions().ListByUser(ctx, user, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(-60), list[0].AmountCents)
	assert.Equal(t, int64(40), list[0].BalanceAfter)
	assert.Equal(t, "task-1", list[0].RefID)
}

func TestDeductMissingBalance(t *testing.T) {
	svc, _, _ := newTestLedger(t)
	_, err := svc.Deduct(context.Background(), nil, uuid.New(), 1, models.TxTaskPay, "")
	assert.True(t, apperror.IsNotFound(err))
}

func TestCreditBumpsLifetimeTotals(t *testing.T) {
	svc, _, _ := newTestLedger(t)
	ctx := context.Background()
	user := uuid.New()
	_, err := svc.Open(ctx, nil, user, 0)
	require.NoError(t, err)

	_, err = svc.Credit(ctx, nil, user, 300, models.TxDeposit, "pi_1")
	require.NoError(t, err)
	_, err = svc.Credit(ctx, nil, user, 20, models.TxTaskEarn, "task")
	require.NoError(t, err)
	b, err := svc.Credit(ctx, nil, user, 5, models.TxCredit, "task")
	require.NoError(t, err)

	assert.Equal(t, int64(325), b.AmountCents)
	assert.Equal(t, int64(300), b.TotalDeposited)
	assert.Equal(t, int64(20), b.TotalEarned)
}

func TestConcurrentDeductNeverOverdraws(t *testing.T) {
	svc, _, _ := newTestLedger(t)
	ctx := context.Background()
	user := uuid.New()
	_, err := svc.Open(ctx, nil, user, 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Deduct(ctx, nil, user, 7, models.TxTaskPay, ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	b, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 14, succeeded)
	assert.Equal(t, int64(2), b.AmountCents)
}

func TestBalanceStaysNonNegativeAcrossSequences(t *testing.T) {
	svc, _, clock := newTestLedger(t)
	ctx := context.Background()
	user := uuid.New()
	_, err := svc.Open(ctx, nil, user, 10)
	require.NoError(t, err)

	check := func() {
		t.Helper()
		b, err := svc.Balance(ctx, user)
		require.NoError(t, err)
		if b.AmountCents < 0 || b.FrozenCents < 0 {
			t.Fatalf("negative balance: amount=%d frozen=%d", b.AmountCents, b.FrozenCents)
		}
	}

	steps := []func() error{
		func() error { _, err := svc.Deduct(ctx, nil, user, 25, models.TxTaskPay, ""); return err },
		func() error { _, err := svc.Freeze(ctx, nil, user, uuid.New(), 30); return err },
		func() error { _, err := svc.Deduct(ctx, nil, user, 10, models.TxTaskPay, ""); return err },
		func() error { _, err := svc.Deduct(ctx, nil, user, 1, models.TxTaskPay, ""); return err },
		func() error { clock.Advance(25 * time.Hour); _, err := svc.UnfreezeMatured(ctx); return err },
		func() error { _, err := svc.Deduct(ctx, nil, user, 31, models.TxTaskPay, ""); return err },
		func() error { _, err := svc.Credit(ctx, nil, user, 4, models.TxCredit, ""); return err },
		func() error { _, err := svc.Deduct(ctx, nil, user, 34, models.TxTaskPay, ""); return err },
	}
	for _, step := range steps {
		_ = step()
		check()
	}

	b, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.AmountCents)
	assert.Equal(t, int64(0), b.FrozenCents)
}

func TestFreezeCreditsFrozenOnly(t *testing.T) {
	svc, st, clock := newTestLedger(t)
	ctx := context.Background()
	worker, task := uuid.New(), uuid.New()
	_, err := svc.Open(ctx, nil, worker, 0)
	require.NoError(t, err)

	fe, err := svc.Freeze(ctx, nil, worker, task, 75)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(24*time.Hour), fe.MaturityAt)

	b, err := svc.Balance(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.AmountCents)
	assert.Equal(t, int64(75), b.FrozenCents)
	assert.Equal(t, int64(75), b.TotalEarned)
	assert.Equal(t, 1, st.FrozenEarnings().Count())

	earned, err := svc.EarningsToday(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, int64(75), earned)
}

func TestFreezeWindowFromConfig(t *testing.T) {
	svc, _, clock := newTestLedger(t)
	ctx := context.Background()
	cfg := platformconfig.DefaultCommissions()
	cfg.FreezeWindowHours = 2
	require.NoError(t, svc.Config.Put(ctx, platformconfig.KeyCommissions, cfg))

	worker := uuid.New()
	_, err := svc.Open(ctx, nil, worker, 0)
	require.NoError(t, err)
	fe, err := svc.Freeze(ctx, nil, worker, uuid.New(), 10)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(2*time.Hour), fe.MaturityAt)
}

func TestUnfreezeMaturity(t *testing.T) {
	svc, st, clock := newTestLedger(t)
	ctx := context.Background()
	worker := uuid.New()
	_, err := svc.Open(ctx, nil, worker, 0)
	require.NoError(t, err)

	now := clock.Now()
	st.FrozenEarnings().Insert(ctx, nil, &models.FrozenEarning{
		ID: uuid.New(), WorkerID: worker, TaskID: uuid.New(), AmountCents: 40,
		FrozenAt: now.Add(-25 * time.Hour), MaturityAt: now.Add(-time.Hour),
	})
	st.FrozenEarnings().Insert(ctx, nil, &models.FrozenEarning{
		ID: uuid.New(), WorkerID: worker, TaskID: uuid.New(), AmountCents: 60,
		FrozenAt: now, MaturityAt: now.Add(23 * time.Hour),
	})
	st.Balances().Put(&models.Balance{UserID: worker, FrozenCents: 100, TotalEarned: 100})

	res, err := svc.UnfreezeMatured(ctx)
	require.NoError(t, err)
	assert.Equal(t, UnfreezeResult{WorkersProcessed: 1, TotalUnfrozen: 40}, res)

	b, err := svc.Balance(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, int64(40), b.AmountCents)
	assert.Equal(t, int64(60), b.FrozenCents)
	assert.Equal(t, 1, st.FrozenEarnings().Count())

	res, err = svc.UnfreezeMatured(ctx)
	require.NoError(t, err)
	assert.Equal(t, UnfreezeResult{}, res)
}

func TestUnfreezeSkipsWorkerWithoutFrozenCover(t *testing.T) {
	svc, st, clock := newTestLedger(t)
	ctx := context.Background()
	good, bad := uuid.New(), uuid.New()
	past := clock.Now().Add(-time.Minute)
	for _, w := range []uuid.UUID{good, bad} {
		st.FrozenEarnings().Insert(ctx, nil, &models.FrozenEarning{
			ID: uuid.New(), WorkerID: w, TaskID: uuid.New(), AmountCents: 30, MaturityAt: past,
		})
	}
	st.Balances().Put(&models.Balance{UserID: good, FrozenCents: 30})
	st.Balances().Put(&models.Balance{UserID: bad, FrozenCents: 10})

	res, err := svc.UnfreezeMatured(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.WorkersProcessed)
	assert.Equal(t, int64(30), res.TotalUnfrozen)

	b, err := svc.Balance(ctx, bad)
	require.NoError(t, err)
	assert.Equal(t, int64(10), b.FrozenCents)
	assert.Equal(t, int64(0), b.AmountCents)
}

func TestWithdrawLimits(t *testing.T) {
	svc, st, _ := newTestLedger(t)
	ctx := context.Background()
	worker := uuid.New()
	st.Balances().Put(&models.Balance{UserID: worker, AmountCents: 60000})

	_, err := svc.Withdraw(ctx, worker, 499)
	assert.True(t, apperror.IsValidation(err))

	res, err := svc.Withdraw(ctx, worker, 30000)
	require.NoError(t, err)
	assert.Equal(t, &WithdrawalResult{AmountCents: 30000, BalanceAfter: 30000, PayoutStatus: "pending"}, res)

	_, err = svc.Withdraw(ctx, worker, 20001)
	assert.True(t, apperror.IsValidation(err))

	b, err := svc.Balance(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), b.TotalWithdrawn)
}

func TestWithdrawNeverTouchesFrozen(t *testing.T) {
	svc, st, _ := newTestLedger(t)
	ctx := context.Background()
	worker := uuid.New()
	st.Balances().Put(&models.Balance{UserID: worker, AmountCents: 100, FrozenCents: 5000})

	_, err := svc.Withdraw(ctx, worker, 600)
	assert.True(t, apperror.HasCode(err, apperror.ErrCodeInsufficientBalance))
}

func TestDepositFirstBonusOnce(t *testing.T) {
	svc, st, _ := newTestLedger(t)
	ctx := context.Background()
	buyer := uuid.New()
	_, err := svc.Open(ctx, nil, buyer, 50)
	require.NoError(t, err)

	res, err := svc.Deposit(ctx, buyer, 1000, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), res.BonusCents)
	assert.Equal(t, int64(1250), res.BalanceAfter)

	res, err = svc.Deposit(ctx, buyer, 1000, "pi_2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.BonusCents)
	assert.Equal(t, int64(2250), res.BalanceAfter)

	assert.Equal(t, []string{models.TxCredit, models.TxDeposit, models.TxCredit, models.TxDeposit}, txTypes(t, st, buyer))
}
