package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  *AppError
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{InsufficientBalance(), http.StatusPaymentRequired},
		{NotFound("Task"), http.StatusNotFound},
		{Conflict("nope", "completed"), http.StatusConflict},
		{Suspended(time.Now()), http.StatusForbidden},
		{RateLimited(time.Second), http.StatusTooManyRequests},
		{Internal(errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.err.HTTPStatus, string(tc.err.Code))
	}
}

func TestAsThroughWrapping(t *testing.T) {
	base := Conflict("Task cannot be submitted (current status: completed)", "completed")
	wrapped := fmt.Errorf("submit: %w", base)

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "completed", got.Status)
	assert.True(t, IsConflict(wrapped))
	assert.False(t, IsNotFound(wrapped))
}

func TestSuspendedCarriesUntil(t *testing.T) {
	until := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := Suspended(until)
	assert.Equal(t, until, err.Until)
	assert.Contains(t, err.Error(), "2026-01-02T03:04:05Z")
}

func TestUnwrapCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal(cause)
	assert.ErrorIs(t, err, cause)
}
