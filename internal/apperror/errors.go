package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type ErrorCode string

const (
	ErrCodeValidation          ErrorCode = "VALIDATION_ERROR"
	ErrCodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrCodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	ErrCodeSuspended           ErrorCode = "WORKER_SUSPENDED"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeConflict            ErrorCode = "CONFLICT"
	ErrCodeRateLimited         ErrorCode = "RATE_LIMITED"
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// AppError is the typed error returned by every core operation.
// Status, Until and RetryAfter are set only for Conflict, Suspended and
// RateLimited respectively.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error

	Status     string
	Until      time.Time
	RetryAfter time.Duration
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func Validation(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, resource+" not found")
}

func InsufficientBalance() *AppError {
	return New(ErrCodeInsufficientBalance, "insufficient balance")
}

// Conflict reports a state-machine violation; status is the record's current state.
func Conflict(message, status string) *AppError {
	e := New(ErrCodeConflict, message)
	e.Status = status
	return e
}

func Suspended(until time.Time) *AppError {
	e := New(ErrCodeSuspended, "worker suspended until "+until.UTC().Format(time.RFC3339))
	e.Until = until
	return e
}

func RateLimited(retryAfter time.Duration) *AppError {
	e := New(ErrCodeRateLimited, "rate limit exceeded")
	e.RetryAfter = retryAfter
	return e
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func Internal(err error) *AppError {
	return Wrap(err, ErrCodeInternal, "internal error")
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeInsufficientBalance:
		return http.StatusPaymentRequired
	case ErrCodeSuspended:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// As extracts an *AppError from err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func HasCode(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}

func IsConflict(err error) bool {
	return HasCode(err, ErrCodeConflict)
}

func IsValidation(err error) bool {
	return HasCode(err, ErrCodeValidation)
}
