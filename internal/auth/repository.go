package auth

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openclaw/marketplace/internal/models"
	"github.com/openclaw/marketplace/internal/repository"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a buyer account. A duplicate email fails with a 23505 unique violation.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, a *models.Account) error {
	return repository.On(r.pool, tx).QueryRow(ctx, `
		INSERT INTO accounts (id, email, name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, a.ID, a.Email, a.Name, a.PasswordHash).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, created_at, updated_at
		FROM accounts WHERE email = $1
	`, email).Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
