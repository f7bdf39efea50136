package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/marketplace/internal/apperror"
	"github.com/openclaw/marketplace/internal/models"
)

// assignTo stages an assigned task whose deadline is already behind the clock.
func assignTo(e *engine, w *models.Worker) *models.Task {
	now := e.clock.Now()
	assigned := now.Add(-2 * time.Minute)
	task := &models.Task{
		ID:          uuid.New(),
		BuyerID:     uuid.New(),
		Type:        "code",
		Constraints: models.Constraints{TimeoutSeconds: 60},
		PriceCents:  5,
		Status:      models.TaskStatusAssigned,
		WorkerID:    &w.ID,
		AssignedAt:  &assigned,
		Deadline:    now.Add(-time.Minute),
		CreatedAt:   assigned,
		Internal:    models.TaskInternal{QAType: models.QATypeNone, FundedBy: models.FundedByBuyer},
	}
	e.st.Tasks().Put(task)
	return task
}

func TestRecoverTimeouts(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	w := e.worker(t, models.TierNew)
	task := assignTo(e, w)

	res, err := e.recovery.RecoverTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Recovered)
	assert.Empty(t, res.WorkersPenalized)

	got, err := e.st.Tasks().GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, got.Status)
	assert.Nil(t, got.WorkerID)
	assert.Nil(t, got.AssignedAt)

	reloaded := e.reload(t, w)
	assert.Equal(t, 1, reloaded.TasksExpired)
	assert.Equal(t, 1, reloaded.ConsecutiveExpires)
	assert.Nil(t, reloaded.SuspendedUntil)
}

func TestRecoverTimeoutsSuspendsAtThreshold(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	w := e.worker(t, models.TierNew)
	_, err := e.st.Workers().RecordExpirations(ctx, w.ID, 2)
	require.NoError(t, err)
	assignTo(e, w)

	res, err := e.recovery.RecoverTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{w.ID}, res.WorkersPenalized)

	reloaded := e.reload(t, w)
	assert.Equal(t, 3, reloaded.ConsecutiveExpires)
	require.NotNil(t, reloaded.SuspendedUntil)
	assert.Equal(t, e.clock.Now().Add(time.Hour), *reloaded.SuspendedUntil)

	_, err = e.dispatcher.Claim(ctx, reloaded)
	got, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.ErrCodeSuspended, got.Code)

	e.clock.Advance(time.Hour + time.Second)
	_, err = e.dispatcher.Claim(ctx, e.reload(t, w))
	assert.NoError(t, err, "suspension lapses after an hour")
}

func TestRecoverTimeoutsGroupsByWorker(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	peeker := e.worker(t, models.TierNew)
	for range 3 {
		assignTo(e, peeker)
	}
	other := e.worker(t, models.TierNew)
	assignTo(e, other)

	res, err := e.recovery.RecoverTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Recovered)
	assert.Equal(t, []uuid.UUID{peeker.ID}, res.WorkersPenalized)
	assert.Equal(t, 3, e.reload(t, peeker).TasksExpired)
	assert.Equal(t, 1, e.reload(t, other).TasksExpired)
}

func TestRecoverTimeoutsIgnoresLiveAssignments(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	created := e.createTask(t, e.buyer(t, 100), "code")
	w := e.worker(t, models.TierNew)
	_, err := e.dispatcher.Claim(ctx, w)
	require.NoError(t, err)

	res, err := e.recovery.RecoverTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Recovered)

	got, err := e.st.Tasks().GetByID(ctx, created.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusAssigned, got.Status)
}

func TestExpireStaleRefundsBuyer(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	buyer := e.buyer(t, 100)
	created := e.createTask(t, buyer, "code")
	_, err := e.qa.InjectBenchmark(ctx, "chat")
	require.NoError(t, err)

	e.clock.Advance(10 * time.Minute)
	res, err := e.recovery.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Expired)
	assert.Equal(t, int64(5), res.RefundedCents)

	got, err := e.st.Tasks().GetByID(ctx, created.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusExpired, got.Status)

	bal, err := e.ledger.Balance(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal.AmountCents)

	again, err := e.recovery.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Expired)
}
