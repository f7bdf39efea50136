package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/google/uuid"

	"github.com/openclaw/marketplace/internal/apperror"
)

// TokenValidator verifies a buyer session token and returns the account id and role.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, string, error)
}

// BuyerAuth requires a valid buyer JWT and sets the buyer id into request context.
func BuyerAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				WriteError(w, nil, apperror.Unauthorized("missing or malformed Authorization header"))
				return
			}
			id, _, err := v.ValidateToken(r.Context(), raw)
			if err != nil || id == uuid.Nil {
				WriteError(w, nil, apperror.Unauthorized("invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithBuyer(r.Context(), id)))
		})
	}
}

// BuyerFromCtx returns the authenticated buyer id, or uuid.Nil.
func BuyerFromCtx(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxBuyerKey).(uuid.UUID)
	return id
}

func WithBuyer(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxBuyerKey, id)
}

// CronAuth guards scheduler endpoints with a shared Bearer secret.
// An empty secret rejects every request.
func CronAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if secret == "" || subtle.ConstantTimeCompare([]byte(raw), []byte(secret)) != 1 {
				WriteError(w, nil, apperror.Unauthorized("invalid cron secret"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
