package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the permission catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const permissionColumns = `id, action, subject, resource_type, description, created_at`

// ListPermissions returns the full catalog ordered by subject then action.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY subject, action, resource_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// GetPermission fetches a permission by ID.
func (r *Repository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id)
	perm, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return perm, nil
}

// FindByKey fetches the permission matching the catalog key.
// Returns shared.ErrNotFound when the capability is not recognised.
func (r *Repository) FindByKey(ctx context.Context, key Key) (Permission, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE action = $1 AND subject = $2 AND resource_type = $3`,
		string(key.Action), key.Subject, key.ResourceType)
	perm, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return perm, nil
}

// CreatePermission inserts a catalog entry, updating the description
// when the key already exists.
func (r *Repository) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (action, subject, resource_type, description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (action, subject, resource_type)
		DO UPDATE SET description = EXCLUDED.description
		RETURNING `+permissionColumns,
		string(perm.Action), perm.Subject, perm.ResourceType, perm.Description)
	return scanPermission(row)
}

// DeletePermission removes a catalog entry and its grants (cascade).
func (r *Repository) DeletePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanPermission(row pgx.Row) (Permission, error) {
	var perm Permission
	var action string
	if err := row.Scan(&perm.ID, &action, &perm.Subject, &perm.ResourceType, &perm.Description, &perm.CreatedAt); err != nil {
		return Permission{}, err
	}
	perm.Action = Action(action)
	return perm, nil
}
