package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

// Repository provides PostgreSQL backed persistence for service accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByID fetches an account by its numeric key prefix.
func (r *Repository) FindByID(ctx context.Context, id int64) (ServiceAccount, error) {
	var account ServiceAccount
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, key_hash, admin, active, created_at FROM service_accounts WHERE id = $1`, id).
		Scan(&account.ID, &account.Name, &account.KeyHash, &account.Admin, &account.Active, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ServiceAccount{}, shared.ErrNotFound
		}
		return ServiceAccount{}, err
	}
	return account, nil
}
