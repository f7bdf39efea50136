package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/ulule/limiter/v3"

	"github.com/openclaw/marketplace/internal/apperror"
	"github.com/openclaw/marketplace/internal/ratelimit"
)

// ClientIP prefers proxy-supplied headers: cf-connecting-ip, then x-real-ip,
// then the first x-forwarded-for entry.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("Cf-Connecting-Ip")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	return "unknown"
}

// BurstGuard applies one coarse per-IP limit to every request in front of the
// per-operation windows.
func BurstGuard(l *limiter.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lctx, err := l.Get(r.Context(), ClientIP(r))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if lctx.Reached {
				retry := time.Until(time.Unix(lctx.Reset, 0))
				if retry < time.Second {
					retry = time.Second
				}
				WriteError(w, nil, apperror.RateLimited(retry))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LimitIP enforces op's per-IP rule.
func LimitIP(e *ratelimit.Enforcer, op string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := e.EnforceIP(r.Context(), op, ClientIP(r)); err != nil {
				WriteError(w, nil, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LimitWorker enforces op's per-token rule. It must run after WorkerAuth.
func LimitWorker(e *ratelimit.Enforcer, op string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := e.EnforceToken(r.Context(), op, TokenHashFromCtx(r.Context())); err != nil {
				WriteError(w, nil, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LimitBuyer enforces op's rule keyed by the authenticated buyer. It must run after BuyerAuth.
func LimitBuyer(e *ratelimit.Enforcer, op string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := e.EnforceToken(r.Context(), op, "buyer:"+BuyerFromCtx(r.Context()).String()); err != nil {
				WriteError(w, nil, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
