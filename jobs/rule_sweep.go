package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/ecclesia-app/ecclesia-access/internal/policy"
)

// ExpiredRuleStore deactivates rules whose validity window has passed.
type ExpiredRuleStore interface {
	DeactivateExpired(ctx context.Context) (int64, error)
}

// RuleSweepJob deactivates conditional rules past their valid_until and
// invalidates derived policy state when anything changed.
type RuleSweepJob struct {
	Rules  ExpiredRuleStore
	Cache  *policy.Cache
	Logger *slog.Logger
}

// NewRuleSweepJob wires dependencies for the sweep handler.
func NewRuleSweepJob(rules ExpiredRuleStore, cache *policy.Cache, logger *slog.Logger) *RuleSweepJob {
	return &RuleSweepJob{Rules: rules, Cache: cache, Logger: logger}
}

// Handle processes rule sweep tasks.
func (j *RuleSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Rules == nil {
		return errors.New("rule sweep: handler not configured")
	}
	var payload RuleSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger()
	if payload.DryRun {
		logger.Info("rule sweep dry run requested, skipping")
		return nil
	}

	swept, err := j.Rules.DeactivateExpired(ctx)
	if err != nil {
		logger.Error("deactivate expired rules", slog.Any("error", err))
		return err
	}
	if swept == 0 {
		logger.Info("no expired rules found")
		return nil
	}
	logger.Info("deactivated expired rules", slog.Int64("count", swept))

	if err := j.Cache.Bump(ctx); err != nil {
		logger.Error("bump policy cache", slog.Any("error", err))
		return err
	}
	return nil
}

func (j *RuleSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPolicyRuleSweep))
	}
	return slog.Default().With(slog.String("job", TaskPolicyRuleSweep))
}
