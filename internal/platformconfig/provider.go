package platformconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// Store persists config documents by key. Load returns pgx.ErrNoRows for an unknown key.
type Store interface {
	Load(ctx context.Context, key string) (json.RawMessage, error)
	Save(ctx context.Context, key string, value json.RawMessage) error
}

// Provider serves typed economic parameters. Reads never fail: a missing,
// unreadable or malformed document yields the built-in default.
type Provider struct {
	store  Store
	cache  *Cache
	logger *slog.Logger
}

// NewProvider returns a Provider. A nil store serves defaults only.
func NewProvider(store Store, cache *Cache, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{store: store, cache: cache, logger: logger}
}

func (p *Provider) Pricing(ctx context.Context) PricingConfig {
	var c PricingConfig
	if !p.decode(ctx, KeyPricing, &c) || len(c) == 0 {
		return DefaultPricing()
	}
	return c
}

func (p *Provider) Tiers(ctx context.Context) TiersConfig {
	return overlay(ctx, p, KeyTiers, DefaultTiers)
}

func (p *Provider) Commissions(ctx context.Context) CommissionsConfig {
	return overlay(ctx, p, KeyCommissions, DefaultCommissions)
}

func (p *Provider) QA(ctx context.Context) QAConfig {
	return overlay(ctx, p, KeyQA, DefaultQA)
}

func (p *Provider) RateLimits(ctx context.Context) RateLimitsConfig {
	return overlay(ctx, p, KeyRateLimits, DefaultRateLimits)
}

func (p *Provider) Signup(ctx context.Context) SignupConfig {
	return overlay(ctx, p, KeySignup, DefaultSignup)
}

// overlay decodes the stored document over the defaults, so absent fields keep
// their default values.
func overlay[T any](ctx context.Context, p *Provider, key string, defaults func() T) T {
	c := defaults()
	if !p.decode(ctx, key, &c) {
		return defaults()
	}
	return c
}

// Put writes a document and drops its cached copy.
func (p *Provider) Put(ctx context.Context, key string, value any) error {
	if p.store == nil {
		return errors.New("platformconfig: no store configured")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := p.store.Save(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	if p.cache != nil {
		p.cache.Invalidate(key)
	}
	return nil
}

// decode overlays the stored document onto dst. It reports whether a document was applied.
func (p *Provider) decode(ctx context.Context, key string, dst any) bool {
	raw, ok := p.raw(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		p.logger.Warn("platform config malformed, using defaults", "key", key, "error", err)
		return false
	}
	return true
}

func (p *Provider) raw(ctx context.Context, key string) (json.RawMessage, bool) {
	if p.cache != nil {
		if v, ok := p.cache.Get(key); ok {
			return v, true
		}
	}
	if p.store == nil {
		return nil, false
	}
	v, err := p.store.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			p.logger.Warn("platform config read failed, using defaults", "key", key, "error", err)
		}
		return nil, false
	}
	if p.cache != nil {
		p.cache.Set(key, v)
	}
	return v, true
}
