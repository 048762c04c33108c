package profiles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecclesia-app/ecclesia-access/internal/platform/db"
	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

// Repository provides PostgreSQL backed persistence for profiles and grants.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const profileColumns = `id, name, description, level, active, created_at, updated_at`

// ListProfiles returns profiles ordered by level then name. Inactive
// profiles are included only when requested.
func (r *Repository) ListProfiles(ctx context.Context, includeInactive bool) ([]Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE active ORDER BY level DESC, name`
	if includeInactive {
		query = `SELECT ` + profileColumns + ` FROM profiles ORDER BY level DESC, name`
	}
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var profiles []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Level, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// GetProfile fetches a profile by ID.
func (r *Repository) GetProfile(ctx context.Context, id int64) (Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Level, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, shared.ErrNotFound
		}
		return Profile{}, err
	}
	return p, nil
}

// CreateProfile inserts a new profile.
func (r *Repository) CreateProfile(ctx context.Context, p Profile) (Profile, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO profiles (name, description, level, active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING `+profileColumns,
		p.Name, p.Description, p.Level).
		Scan(&p.ID, &p.Name, &p.Description, &p.Level, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Profile{}, shared.ErrConflict
		}
		return Profile{}, err
	}
	return p, nil
}

// UpdateProfile updates name, description, level and active flag.
func (r *Repository) UpdateProfile(ctx context.Context, p Profile) (Profile, error) {
	err := r.pool.QueryRow(ctx, `
		UPDATE profiles SET name = $2, description = $3, level = $4, active = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+profileColumns,
		p.ID, p.Name, p.Description, p.Level, p.Active).
		Scan(&p.ID, &p.Name, &p.Description, &p.Level, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, shared.ErrNotFound
		}
		if isUniqueViolation(err) {
			return Profile{}, shared.ErrConflict
		}
		return Profile{}, err
	}
	return p, nil
}

// DeactivateProfile soft-disables a profile. Grants are kept so a
// re-activated profile resumes its previous configuration.
func (r *Repository) DeactivateProfile(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE profiles SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const grantColumns = `id, profile_id, permission_id, state, updated_at`

// GetGrant fetches the grant row for a (profile, permission) pair.
// Returns shared.ErrNotFound when the pair was never configured.
func (r *Repository) GetGrant(ctx context.Context, profileID, permissionID int64) (Grant, error) {
	var g Grant
	var state string
	err := r.pool.QueryRow(ctx,
		`SELECT `+grantColumns+` FROM profile_grants WHERE profile_id = $1 AND permission_id = $2`,
		profileID, permissionID).
		Scan(&g.ID, &g.ProfileID, &g.PermissionID, &state, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Grant{}, shared.ErrNotFound
		}
		return Grant{}, err
	}
	g.State = GrantState(state)
	return g, nil
}

// ListGrants returns every grant row for a profile.
func (r *Repository) ListGrants(ctx context.Context, profileID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+grantColumns+` FROM profile_grants WHERE profile_id = $1 ORDER BY permission_id`,
		profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var g Grant
		var state string
		if err := rows.Scan(&g.ID, &g.ProfileID, &g.PermissionID, &state, &g.UpdatedAt); err != nil {
			return nil, err
		}
		g.State = GrantState(state)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// CycleGrant advances the tri-state of a pair in a single upsert:
// unset → allow → deny → unset. The uniqueness constraint on
// (profile_id, permission_id) makes concurrent toggles converge on one
// row.
func (r *Repository) CycleGrant(ctx context.Context, profileID, permissionID int64) (Grant, error) {
	var g Grant
	var state string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO profile_grants (profile_id, permission_id, state)
		VALUES ($1, $2, 'allow')
		ON CONFLICT (profile_id, permission_id) DO UPDATE
		SET state = CASE profile_grants.state
			WHEN 'unset' THEN 'allow'
			WHEN 'allow' THEN 'deny'
			ELSE 'unset'
		END, updated_at = NOW()
		RETURNING `+grantColumns,
		profileID, permissionID).
		Scan(&g.ID, &g.ProfileID, &g.PermissionID, &state, &g.UpdatedAt)
	if err != nil {
		return Grant{}, err
	}
	g.State = GrantState(state)
	return g, nil
}

// SetGrant upserts an explicit state for a pair.
func (r *Repository) SetGrant(ctx context.Context, profileID, permissionID int64, state GrantState) (Grant, error) {
	var g Grant
	var got string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO profile_grants (profile_id, permission_id, state)
		VALUES ($1, $2, $3)
		ON CONFLICT (profile_id, permission_id) DO UPDATE
		SET state = EXCLUDED.state, updated_at = NOW()
		RETURNING `+grantColumns,
		profileID, permissionID, string(state)).
		Scan(&g.ID, &g.ProfileID, &g.PermissionID, &got, &g.UpdatedAt)
	if err != nil {
		return Grant{}, err
	}
	g.State = GrantState(got)
	return g, nil
}

// ReplaceGrants swaps a profile's entire grant set in one transaction:
// upsert every pair in the new set, then prune rows no longer present.
// A failure rolls the profile back to its previous configuration, so
// there is no window where the profile holds zero grants.
func (r *Repository) ReplaceGrants(ctx context.Context, profileID int64, states map[int64]GrantState) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		keep := make([]int64, 0, len(states))
		for permissionID, state := range states {
			if _, err := tx.Exec(ctx, `
				INSERT INTO profile_grants (profile_id, permission_id, state)
				VALUES ($1, $2, $3)
				ON CONFLICT (profile_id, permission_id) DO UPDATE
				SET state = EXCLUDED.state, updated_at = NOW()`,
				profileID, permissionID, string(state)); err != nil {
				return err
			}
			keep = append(keep, permissionID)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM profile_grants WHERE profile_id = $1 AND permission_id != ALL($2)`,
			profileID, keep); err != nil {
			return err
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
