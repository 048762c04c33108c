package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ecclesia-app/ecclesia-access/internal/audit"
	"github.com/ecclesia-app/ecclesia-access/internal/catalog"
	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

// Store abstracts rule persistence.
type Store interface {
	ListRules(ctx context.Context) ([]Rule, error)
	GetRule(ctx context.Context, id uuid.UUID) (Rule, error)
	CreateRule(ctx context.Context, rule Rule) (Rule, error)
	UpdateRule(ctx context.Context, rule Rule) (Rule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
	ListApplicable(ctx context.Context, m Match) ([]Rule, error)
}

// Invalidator flushes derived policy state after rule writes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service orchestrates conditional rule lifecycle.
type Service struct {
	repo        Store
	invalidator Invalidator
	auditor     *audit.Recorder
	logger      *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Store, invalidator Invalidator, auditor *audit.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, invalidator: invalidator, auditor: auditor, logger: logger}
}

// ListRules returns every rule in evaluation order.
func (s *Service) ListRules(ctx context.Context) ([]Rule, error) {
	return s.repo.ListRules(ctx)
}

// GetRule fetches one rule.
func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (Rule, error) {
	return s.repo.GetRule(ctx, id)
}

// CreateRule validates and persists a rule. Scope-required fields and
// the condition payload are checked before anything is stored.
func (s *Service) CreateRule(ctx context.Context, rule Rule) (Rule, error) {
	rule, err := s.validate(rule)
	if err != nil {
		return Rule{}, err
	}
	created, err := s.repo.CreateRule(ctx, rule)
	if err != nil {
		return Rule{}, err
	}
	s.bump(ctx)
	s.record(ctx, "rule.create", created)
	return created, nil
}

// UpdateRule validates and applies edits to an existing rule.
func (s *Service) UpdateRule(ctx context.Context, rule Rule) (Rule, error) {
	validated, err := s.validate(rule)
	if err != nil {
		return Rule{}, err
	}
	validated.ID = rule.ID
	validated.Active = rule.Active
	updated, err := s.repo.UpdateRule(ctx, validated)
	if err != nil {
		return Rule{}, err
	}
	s.bump(ctx)
	s.record(ctx, "rule.update", updated)
	return updated, nil
}

// DeleteRule removes a rule.
func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.bump(ctx)
	s.record(ctx, "rule.delete", Rule{ID: id})
	return nil
}

// ListApplicable returns active rules matching the request attributes.
func (s *Service) ListApplicable(ctx context.Context, m Match) ([]Rule, error) {
	return s.repo.ListApplicable(ctx, m)
}

func (s *Service) validate(rule Rule) (Rule, error) {
	rule.Name = strings.TrimSpace(rule.Name)
	rule.Subject = strings.ToLower(strings.TrimSpace(rule.Subject))
	rule.ResourceType = strings.ToLower(strings.TrimSpace(rule.ResourceType))
	if rule.Name == "" {
		return Rule{}, fmt.Errorf("%w: rule name required", shared.ErrValidation)
	}
	if !catalog.ValidAction(rule.Action) {
		return Rule{}, fmt.Errorf("%w: unknown action %q", shared.ErrValidation, rule.Action)
	}
	if rule.Subject == "" {
		return Rule{}, fmt.Errorf("%w: subject required", shared.ErrValidation)
	}
	if !rule.Scope.Valid() {
		return Rule{}, fmt.Errorf("%w: unknown scope %q", shared.ErrValidation, rule.Scope)
	}
	switch rule.Scope {
	case ScopeProfile:
		if rule.ProfileID == nil {
			return Rule{}, fmt.Errorf("%w: scope=profile requires profile_id", shared.ErrValidation)
		}
		rule.MemberID = nil
	case ScopeUser:
		if rule.MemberID == nil {
			return Rule{}, fmt.Errorf("%w: scope=user requires user_id", shared.ErrValidation)
		}
		rule.ProfileID = nil
	case ScopeGlobal:
		if rule.ProfileID != nil || rule.MemberID != nil {
			return Rule{}, fmt.Errorf("%w: scope=global carries neither profile_id nor user_id", shared.ErrValidation)
		}
	}
	if _, err := ParseCondition(rule.Condition); err != nil {
		return Rule{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if len(rule.Condition) == 0 {
		rule.Condition = []byte(`{}`)
	}
	return rule, nil
}

func (s *Service) bump(ctx context.Context) {
	if s.invalidator != nil {
		_ = s.invalidator.Bump(ctx)
	}
}

func (s *Service) record(ctx context.Context, action string, rule Rule) {
	if s.auditor == nil {
		return
	}
	var meta map[string]any
	if rule.Name != "" {
		meta = map[string]any{"name": rule.Name, "scope": string(rule.Scope)}
	}
	err := s.auditor.Record(ctx, audit.Entry{
		Action:   action,
		Entity:   "conditional_rule",
		EntityID: rule.ID.String(),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
