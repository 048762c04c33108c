package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ecclesia-app/ecclesia-access/internal/audit"
)

// DecisionStore persists policy verdicts.
type DecisionStore interface {
	InsertDecision(ctx context.Context, d audit.Decision) error
	PruneDecisions(ctx context.Context, before time.Time) (int64, error)
}

// DecisionLogJob writes enqueued policy verdicts into the audit store
// and prunes entries older than the retention window.
type DecisionLogJob struct {
	Store  DecisionStore
	Keep   time.Duration
	Logger *slog.Logger
}

// NewDecisionLogJob wires dependencies for the decision log handler.
func NewDecisionLogJob(store DecisionStore, keep time.Duration, logger *slog.Logger) *DecisionLogJob {
	return &DecisionLogJob{Store: store, Keep: keep, Logger: logger}
}

// Handle persists one decision record.
func (j *DecisionLogJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("decision log: handler not configured")
	}
	var payload DecisionLogPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	err := j.Store.InsertDecision(ctx, audit.Decision{
		ID:           payload.ID,
		MemberID:     payload.MemberID,
		Action:       payload.Action,
		Subject:      payload.Subject,
		ResourceType: payload.ResourceType,
		Allowed:      payload.Allowed,
		DecidedBy:    payload.DecidedBy,
		GrantID:      payload.GrantID,
		RuleID:       payload.RuleID,
		At:           payload.At,
	})
	if err != nil {
		j.logger().Error("insert decision", slog.Any("error", err))
		return err
	}
	return nil
}

// HandlePrune drops decision records past the retention window.
func (j *DecisionLogJob) HandlePrune(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("decision log: handler not configured")
	}
	keep := j.Keep
	if keep <= 0 {
		keep = 90 * 24 * time.Hour
	}
	pruned, err := j.Store.PruneDecisions(ctx, time.Now().Add(-keep))
	if err != nil {
		j.logger().Error("prune decisions", slog.Any("error", err))
		return err
	}
	if pruned > 0 {
		j.logger().Info("pruned decision log", slog.Int64("count", pruned))
	}
	return nil
}

func (j *DecisionLogJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuditDecisionLog))
	}
	return slog.Default().With(slog.String("job", TaskAuditDecisionLog))
}
