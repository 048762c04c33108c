package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed reads over audit_logs and
// decision_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const timelineQuery = `
	SELECT l.occurred_at, COALESCE(a.name, 'system'), l.action, l.entity, l.entity_id
	FROM audit_logs l
	LEFT JOIN service_accounts a ON a.id = l.actor_id
	WHERE ($1::timestamptz IS NULL OR l.occurred_at >= $1)
	  AND ($2::timestamptz IS NULL OR l.occurred_at <= $2)
	  AND ($3 = '' OR COALESCE(a.name, 'system') = $3)
	  AND ($4 = '' OR l.entity = $4)
	  AND ($5 = '' OR l.action = $5)
	ORDER BY l.occurred_at DESC`

// TimelineWindow returns one page of the admin action trail.
func (r *Repository) TimelineWindow(ctx context.Context, f TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineQuery+` LIMIT $6 OFFSET $7`,
		nullTime(f.From), nullTime(f.To), f.Actor, f.Entity, f.Action, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTimeline(rows)
}

// TimelineAll returns the full filtered trail, for exports.
func (r *Repository) TimelineAll(ctx context.Context, f TimelineFilters) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineQuery,
		nullTime(f.From), nullTime(f.To), f.Actor, f.Entity, f.Action)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTimeline(rows)
}

// InsertDecision appends one policy verdict to the decision log.
func (r *Repository) InsertDecision(ctx context.Context, d Decision) error {
	var ruleID *uuid.UUID
	if d.RuleID != uuid.Nil {
		ruleID = &d.RuleID
	}
	var grantID *int64
	if d.GrantID != 0 {
		grantID = &d.GrantID
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO decision_logs
			(id, member_id, action, subject, resource_type, allowed, decided_by, grant_id, rule_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		d.ID, d.MemberID, d.Action, d.Subject, d.ResourceType, d.Allowed, d.DecidedBy, grantID, ruleID, d.At)
	return err
}

// ListDecisions returns one page of the decision log, newest first.
func (r *Repository) ListDecisions(ctx context.Context, f DecisionFilters, limit, offset int) ([]Decision, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, member_id, action, subject, resource_type, allowed, decided_by,
		       COALESCE(grant_id, 0), COALESCE(rule_id, '00000000-0000-0000-0000-000000000000'::uuid), occurred_at
		FROM decision_logs
		WHERE ($1 = 0 OR member_id = $1)
		  AND ($2::boolean IS NULL OR allowed = $2)
		  AND ($3::timestamptz IS NULL OR occurred_at >= $3)
		  AND ($4::timestamptz IS NULL OR occurred_at <= $4)
		ORDER BY occurred_at DESC
		LIMIT $5 OFFSET $6`,
		f.MemberID, f.Allowed, nullTime(f.From), nullTime(f.To), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Decision
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.ID, &d.MemberID, &d.Action, &d.Subject, &d.ResourceType,
			&d.Allowed, &d.DecidedBy, &d.GrantID, &d.RuleID, &d.At); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PruneDecisions drops decision log rows older than the cutoff.
func (r *Repository) PruneDecisions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM decision_logs WHERE occurred_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func collectTimeline(rows pgx.Rows) ([]TimelineRow, error) {
	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.At, &row.Actor, &row.Action, &row.Entity, &row.EntityID); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
