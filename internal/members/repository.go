package members

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

// Repository provides PostgreSQL backed persistence for members.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const memberColumns = `id, name, email, profile_id, active, created_at, updated_at`

// ListMembers returns members ordered by name, with total count for paging.
func (r *Repository) ListMembers(ctx context.Context, limit, offset int) ([]Member, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM members`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+memberColumns+` FROM members ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// GetMember fetches a member by ID.
func (r *Repository) GetMember(ctx context.Context, id int64) (Member, error) {
	m, err := scanMember(r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, shared.ErrNotFound
		}
		return Member{}, err
	}
	return m, nil
}

// CreateMember inserts a directory entry.
func (r *Repository) CreateMember(ctx context.Context, m Member) (Member, error) {
	created, err := scanMember(r.pool.QueryRow(ctx, `
		INSERT INTO members (name, email, active)
		VALUES ($1, $2, TRUE)
		RETURNING `+memberColumns,
		m.Name, m.Email))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Member{}, shared.ErrConflict
		}
		return Member{}, err
	}
	return created, nil
}

// AssignProfile sets or clears the member's access tier.
func (r *Repository) AssignProfile(ctx context.Context, memberID int64, profileID *int64) (Member, error) {
	m, err := scanMember(r.pool.QueryRow(ctx, `
		UPDATE members SET profile_id = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+memberColumns,
		memberID, profileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, shared.ErrNotFound
		}
		return Member{}, err
	}
	return m, nil
}

// ProfileIDForMember returns the member's assigned profile, nil when
// none is assigned.
func (r *Repository) ProfileIDForMember(ctx context.Context, memberID int64) (*int64, error) {
	var profileID *int64
	err := r.pool.QueryRow(ctx, `SELECT profile_id FROM members WHERE id = $1 AND active`, memberID).Scan(&profileID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return profileID, nil
}

func scanMember(row pgx.Row) (Member, error) {
	var m Member
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &m.ProfileID, &m.Active, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return Member{}, err
	}
	return m, nil
}
