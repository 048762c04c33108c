package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/ecclesia-app/ecclesia-access/internal/policy"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPolicyRuleSweep deactivates conditional rules past their validity.
	TaskPolicyRuleSweep = "policy:rule_sweep"
	// TaskPolicyCacheWarmup precomputes grant caches for active profiles.
	TaskPolicyCacheWarmup = "policy:cache_warmup"
	// TaskAuditDecisionLog persists a policy verdict off the request path.
	TaskAuditDecisionLog = "audit:decision_log"
	// TaskAuditDecisionPrune drops decision records past retention.
	TaskAuditDecisionPrune = "audit:decision_prune"
)

// NewDecisionPruneTask constructs the retention sweep task.
func NewDecisionPruneTask() *asynq.Task {
	return asynq.NewTask(TaskAuditDecisionPrune, nil)
}

// RuleSweepPayload parameterises the expiry sweep.
type RuleSweepPayload struct {
	DryRun bool `json:"dry_run"`
}

// NewRuleSweepTask constructs an Asynq task for the expiry sweep.
func NewRuleSweepTask(payload RuleSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPolicyRuleSweep, data), nil
}

// CacheWarmupPayload names the profiles to warm. Empty means all active.
type CacheWarmupPayload struct {
	ProfileIDs []int64 `json:"profile_ids,omitempty"`
}

// NewCacheWarmupTask constructs an Asynq task for cache warmup.
func NewCacheWarmupTask(payload CacheWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPolicyCacheWarmup, data), nil
}

// DecisionLogPayload is the wire form of a decision record.
type DecisionLogPayload struct {
	ID           uuid.UUID `json:"id"`
	MemberID     int64     `json:"member_id"`
	Action       string    `json:"action"`
	Subject      string    `json:"subject"`
	ResourceType string    `json:"resource_type,omitempty"`
	Allowed      bool      `json:"allowed"`
	DecidedBy    string    `json:"decided_by"`
	GrantID      int64     `json:"grant_id,omitempty"`
	RuleID       uuid.UUID `json:"rule_id,omitempty"`
	At           time.Time `json:"at"`
}

// NewDecisionLogTask constructs an Asynq task carrying one decision.
func NewDecisionLogTask(payload DecisionLogPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditDecisionLog, data), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// RecordDecision enqueues a decision-log task. It satisfies the policy
// recorder so verdict persistence never blocks a decision.
func (c *Client) RecordDecision(ctx context.Context, record policy.DecisionRecord) error {
	task, err := NewDecisionLogTask(DecisionLogPayload{
		ID:           record.ID,
		MemberID:     record.MemberID,
		Action:       record.Action,
		Subject:      record.Subject,
		ResourceType: record.ResourceType,
		Allowed:      record.Allowed,
		DecidedBy:    record.DecidedBy,
		GrantID:      record.GrantID,
		RuleID:       record.RuleID,
		At:           record.At,
	})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(5))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
