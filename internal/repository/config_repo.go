package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

type ConfigRepo struct {
	pool *pgxpool.Pool
}

func NewConfigRepo(pool *pgxpool.Pool) *ConfigRepo {
	return &ConfigRepo{pool: pool}
}

func (r *ConfigRepo) Load(ctx context.Context, key string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := r.pool.QueryRow(ctx, `SELECT value FROM platform_config WHERE key = $1`, key).Scan(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (r *ConfigRepo) Save(ctx context.Context, key string, value json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO platform_config (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, value)
	return err
}
