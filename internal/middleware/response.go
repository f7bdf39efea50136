package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/openclaw/marketplace/internal/apperror"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error             string     `json:"error"`
	Code              string     `json:"code"`
	Status            string     `json:"status,omitempty"`
	SuspendedUntil    *time.Time `json:"suspended_until,omitempty"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as an ErrorBody. Errors that are not AppErrors are
// logged and reported as INTERNAL_ERROR without their message.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	appErr, ok := apperror.As(err)
	if !ok || appErr.Code == apperror.ErrCodeInternal {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("request failed", "error", err)
		appErr = apperror.Internal(err)
	}

	body := ErrorBody{Error: appErr.Message, Code: string(appErr.Code), Status: appErr.Status}
	if !appErr.Until.IsZero() {
		until := appErr.Until.UTC()
		body.SuspendedUntil = &until
	}
	if appErr.RetryAfter > 0 {
		body.RetryAfterSeconds = int(math.Ceil(appErr.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfterSeconds))
	}
	WriteJSON(w, appErr.HTTPStatus, body)
}
