package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/openclaw/marketplace/internal/apperror"
	"github.com/openclaw/marketplace/internal/models"
)

type contextKey string

const (
	ctxWorkerKey    contextKey = "worker"
	ctxTokenHashKey contextKey = "token_hash"
	ctxBuyerKey     contextKey = "buyer"
)

// WorkerAuthenticator resolves a raw worker token to its worker.
type WorkerAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Worker, error)
}

// WorkerAuth authenticates requests by their Bearer worker token. On success
// it sets the worker and the token's SHA-256 into request context.
func WorkerAuth(auth WorkerAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				WriteError(w, nil, apperror.Unauthorized("missing or malformed Authorization header"))
				return
			}

			worker, err := auth.Authenticate(r.Context(), raw)
			if err != nil {
				WriteError(w, nil, err)
				return
			}

			ctx := WithWorker(r.Context(), worker)
			ctx = context.WithValue(ctx, ctxTokenHashKey, hashKey(raw))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WorkerFromCtx returns the authenticated worker or nil.
func WorkerFromCtx(ctx context.Context) *models.Worker {
	wk, _ := ctx.Value(ctxWorkerKey).(*models.Worker)
	return wk
}

// WithWorker returns a context carrying the given worker.
func WithWorker(ctx context.Context, wk *models.Worker) context.Context {
	return context.WithValue(ctx, ctxWorkerKey, wk)
}

// TokenHashFromCtx returns the SHA-256 hex of the caller's worker token, or "".
func TokenHashFromCtx(ctx context.Context) string {
	h, _ := ctx.Value(ctxTokenHashKey).(string)
	return h
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
