package ratelimit

import (
	"context"
	"time"

	"github.com/openclaw/marketplace/internal/apperror"
	"github.com/openclaw/marketplace/internal/platformconfig"
)

const window = time.Minute

// Enforcer applies the configured per-operation rules to a Limiter.
type Enforcer struct {
	Limiter *Limiter
	Config  *platformconfig.Provider
}

func NewEnforcer(l *Limiter, cfg *platformconfig.Provider) *Enforcer {
	return &Enforcer{Limiter: l, Config: cfg}
}

func (e *Enforcer) rule(ctx context.Context, op string) (platformconfig.RateLimitRule, bool) {
	rules := platformconfig.DefaultRateLimits()
	if e.Config != nil {
		rules = e.Config.RateLimits(ctx)
	}
	r, ok := rules[op]
	return r, ok
}

// EnforceIP checks op against the client IP. Operations without a rule are unlimited.
func (e *Enforcer) EnforceIP(ctx context.Context, op, ip string) error {
	r, ok := e.rule(ctx, op)
	if !ok {
		return nil
	}
	return check(e.Limiter.Allow(op+":"+ip, r.IPLimit(), window))
}

// EnforceToken checks op against a worker's token hash.
func (e *Enforcer) EnforceToken(ctx context.Context, op, tokenHash string) error {
	r, ok := e.rule(ctx, op)
	if !ok {
		return nil
	}
	return check(e.Limiter.Allow(op+":token:"+tokenHash, r.TokenLimit(), window))
}

func check(res Result) error {
	if res.Allowed {
		return nil
	}
	return apperror.RateLimited(res.Reset)
}
