package rules

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecclesia-app/ecclesia-access/internal/catalog"
	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

// Repository provides PostgreSQL backed persistence for conditional rules.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ruleColumns = `id, name, description, action, subject, resource_type, scope, profile_id, member_id, condition, priority, active, created_at, updated_at`

// ListRules returns every rule, most specific scope first.
func (r *Repository) ListRules(ctx context.Context) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+` FROM conditional_rules
		ORDER BY CASE scope WHEN 'user' THEN 0 WHEN 'profile' THEN 1 ELSE 2 END, priority DESC, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

// GetRule fetches a rule by ID.
func (r *Repository) GetRule(ctx context.Context, id uuid.UUID) (Rule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM conditional_rules WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, shared.ErrNotFound
		}
		return Rule{}, err
	}
	return rule, nil
}

// CreateRule inserts a rule.
func (r *Repository) CreateRule(ctx context.Context, rule Rule) (Rule, error) {
	return scanRule(r.pool.QueryRow(ctx, `
		INSERT INTO conditional_rules
			(name, description, action, subject, resource_type, scope, profile_id, member_id, condition, priority, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE)
		RETURNING `+ruleColumns,
		rule.Name, rule.Description, string(rule.Action), rule.Subject, rule.ResourceType,
		string(rule.Scope), rule.ProfileID, rule.MemberID, rule.Condition, rule.Priority))
}

// UpdateRule updates a rule in place.
func (r *Repository) UpdateRule(ctx context.Context, rule Rule) (Rule, error) {
	updated, err := scanRule(r.pool.QueryRow(ctx, `
		UPDATE conditional_rules SET
			name = $2, description = $3, action = $4, subject = $5, resource_type = $6,
			scope = $7, profile_id = $8, member_id = $9, condition = $10, priority = $11,
			active = $12, updated_at = NOW()
		WHERE id = $1
		RETURNING `+ruleColumns,
		rule.ID, rule.Name, rule.Description, string(rule.Action), rule.Subject, rule.ResourceType,
		string(rule.Scope), rule.ProfileID, rule.MemberID, rule.Condition, rule.Priority, rule.Active))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, shared.ErrNotFound
		}
		return Rule{}, err
	}
	return updated, nil
}

// DeleteRule removes a rule.
func (r *Repository) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM conditional_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListApplicable returns active rules covering the request attributes,
// in evaluation order.
func (r *Repository) ListApplicable(ctx context.Context, m Match) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+` FROM conditional_rules
		WHERE active
		  AND action = $1
		  AND subject = $2
		  AND (resource_type = '' OR resource_type = $3)
		  AND (
			scope = 'global'
			OR (scope = 'profile' AND profile_id = $4)
			OR (scope = 'user' AND member_id = $5)
		  )
		ORDER BY CASE scope WHEN 'user' THEN 0 WHEN 'profile' THEN 1 ELSE 2 END, priority DESC, created_at DESC`,
		string(m.Action), m.Subject, m.ResourceType, m.ProfileID, m.MemberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

// DeactivateExpired disables rules whose valid_until bound has passed.
// Returns the number of rules swept.
func (r *Repository) DeactivateExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conditional_rules SET active = FALSE, updated_at = NOW()
		WHERE active
		  AND condition ? 'valid_until'
		  AND (condition->>'valid_until')::timestamptz < NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func collectRules(rows pgx.Rows) ([]Rule, error) {
	var out []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func scanRule(row pgx.Row) (Rule, error) {
	var rule Rule
	var action, scope string
	err := row.Scan(&rule.ID, &rule.Name, &rule.Description, &action, &rule.Subject, &rule.ResourceType,
		&scope, &rule.ProfileID, &rule.MemberID, &rule.Condition, &rule.Priority, &rule.Active,
		&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return Rule{}, err
	}
	rule.Action = catalog.Action(action)
	rule.Scope = Scope(scope)
	return rule, nil
}
