package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/openclaw/marketplace/internal/apperror"
)

const (
	ctxBodyKey contextKey = "validated_body"

	maxBodyBytes = 1 << 20
)

// BodyValidator checks a raw request body against a named schema.
type BodyValidator interface {
	Validate(name string, body []byte) error
}

// ValidateBody rejects bodies that fail the named schema. It reads the body,
// then replaces r.Body so downstream handlers can re-read it.
func ValidateBody(v BodyValidator, schema string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
			r.Body.Close()
			if err != nil {
				WriteError(w, nil, apperror.Validation("failed to read body"))
				return
			}
			if len(bodyBytes) > maxBodyBytes {
				WriteError(w, nil, apperror.Validation("request body too large"))
				return
			}
			if err := v.Validate(schema, bodyBytes); err != nil {
				WriteError(w, nil, err)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			ctx := context.WithValue(r.Context(), ctxBodyKey, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BodyFromCtx returns the body accepted by ValidateBody, or nil.
func BodyFromCtx(ctx context.Context) []byte {
	b, _ := ctx.Value(ctxBodyKey).([]byte)
	return b
}
