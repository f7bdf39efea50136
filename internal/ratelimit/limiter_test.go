package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/marketplace/internal/apperror"
	"github.com/openclaw/marketplace/internal/platformconfig"
)

func newTestLimiter() (*Limiter, *time.Time) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := New()
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowBlocksOverLimit(t *testing.T) {
	l, now := newTestLimiter()

	for i := 0; i < 3; i++ {
		res := l.Allow("registration:1.2.3.4", 3, time.Minute)
		require.True(t, res.Allowed, "call %d", i+1)
		assert.Equal(t, 2-i, res.Remaining)
	}
	res := l.Allow("registration:1.2.3.4", 3, time.Minute)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Minute, res.Reset)

	assert.True(t, l.Allow("registration:5.6.7.8", 3, time.Minute).Allowed)

	*now = now.Add(30 * time.Second)
	res = l.Allow("registration:1.2.3.4", 3, time.Minute)
	assert.False(t, res.Allowed)
	assert.Equal(t, 30*time.Second, res.Reset)
}

func TestWindowSlides(t *testing.T) {
	l, now := newTestLimiter()
	l.Allow("k", 2, time.Minute)
	*now = now.Add(40 * time.Second)
	l.Allow("k", 2, time.Minute)
	assert.False(t, l.Allow("k", 2, time.Minute).Allowed)

	*now = now.Add(21 * time.Second)
	assert.True(t, l.Allow("k", 2, time.Minute).Allowed)
	assert.False(t, l.Allow("k", 2, time.Minute).Allowed)
}

func TestCleanupDropsStaleKeys(t *testing.T) {
	l, now := newTestLimiter()
	l.Allow("a", 5, time.Minute)
	*now = now.Add(50 * time.Second)
	l.Allow("b", 5, time.Minute)
	*now = now.Add(20 * time.Second)

	l.Cleanup()
	assert.Equal(t, 1, l.keys())
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter()
	l.Allow("k", 1, time.Minute)
	require.False(t, l.Allow("k", 1, time.Minute).Allowed)
	l.Reset("k")
	assert.True(t, l.Allow("k", 1, time.Minute).Allowed)
	l.ResetAll()
	assert.Equal(t, 0, l.keys())
}

func TestEnforcerUsesConfiguredRules(t *testing.T) {
	l, _ := newTestLimiter()
	e := NewEnforcer(l, platformconfig.NewProvider(nil, nil, nil))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, e.EnforceIP(ctx, platformconfig.OpRegistration, "9.9.9.9"))
	}
	err := e.EnforceIP(ctx, platformconfig.OpRegistration, "9.9.9.9")
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.ErrCodeRateLimited, appErr.Code)
	assert.Equal(t, time.Minute, appErr.RetryAfter)

	require.NoError(t, e.EnforceIP(ctx, platformconfig.OpRegistration, "8.8.8.8"))
	assert.NoError(t, e.EnforceIP(ctx, "unknown_operation", "9.9.9.9"))
}

func TestEnforcerTokenKeyIsSeparate(t *testing.T) {
	l, _ := newTestLimiter()
	e := NewEnforcer(l, nil)
	ctx := context.Background()

	// work_submit carries only per_min, so IP and token limits are both 30.
	for i := 0; i < 30; i++ {
		require.NoError(t, e.EnforceToken(ctx, platformconfig.OpWorkSubmit, "hash"))
	}
	assert.Error(t, e.EnforceToken(ctx, platformconfig.OpWorkSubmit, "hash"))
	assert.NoError(t, e.EnforceIP(ctx, platformconfig.OpWorkSubmit, "hash"))
}
