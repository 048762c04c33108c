package policy

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ecclesia-app/ecclesia-access/internal/catalog"
	"github.com/ecclesia-app/ecclesia-access/internal/profiles"
	"github.com/ecclesia-app/ecclesia-access/internal/rules"
	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

// Assignments resolves a member's current access tier.
type Assignments interface {
	ProfileIDForMember(ctx context.Context, memberID int64) (*int64, error)
}

// RuleFinder returns active rules covering a request.
type RuleFinder interface {
	ListApplicable(ctx context.Context, m rules.Match) ([]rules.Rule, error)
}

// CatalogLister enumerates the permission catalog for effective
// permission snapshots.
type CatalogLister interface {
	ListPermissions(ctx context.Context) ([]catalog.Permission, error)
}

// GrantLister enumerates a profile's configured grants.
type GrantLister interface {
	ListGrants(ctx context.Context, profileID int64) ([]profiles.Grant, error)
}

// Recorder persists decision records, typically off the request path.
type Recorder interface {
	RecordDecision(ctx context.Context, record DecisionRecord) error
}

// Service is the policy decision point: the single entry combining
// role-based grant resolution with the conditional rule overlay.
type Service struct {
	resolver    *Resolver
	assignments Assignments
	rules       RuleFinder
	catalog     CatalogLister
	grants      GrantLister
	recorder    Recorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the decision point.
func NewService(resolver *Resolver, assignments Assignments, ruleFinder RuleFinder, catalogLister CatalogLister, grantLister GrantLister, recorder Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		resolver:    resolver,
		assignments: assignments,
		rules:       ruleFinder,
		catalog:     catalogLister,
		grants:      grantLister,
		recorder:    recorder,
		logger:      logger,
		now:         time.Now,
	}
}

// Decide yields the final allow/deny verdict for a request. It never
// returns an error: every lookup failure degrades to a denial so that
// authorization cannot crash its callers.
func (s *Service) Decide(ctx context.Context, req Request) Decision {
	at := req.At
	if at.IsZero() {
		at = s.now()
	}
	req.Action = catalog.Action(strings.ToLower(strings.TrimSpace(string(req.Action))))
	req.Subject = strings.ToLower(strings.TrimSpace(req.Subject))
	req.ResourceType = strings.ToLower(strings.TrimSpace(req.ResourceType))

	decision := s.decide(ctx, req, at)
	s.record(ctx, req, at, decision)
	return decision
}

func (s *Service) decide(ctx context.Context, req Request, at time.Time) Decision {
	profileID, err := s.assignments.ProfileIDForMember(ctx, req.MemberID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Decision{
				RBACState: profiles.GrantUnset,
				DecidedBy: DecidedByDefault,
				Reason:    "member unknown or inactive",
			}
		}
		return s.denyOnError(req, "assignment lookup", err)
	}

	resolution, err := s.resolver.Resolve(ctx, profileID, req.Key())
	if err != nil {
		return s.denyOnError(req, "grant resolution", err)
	}

	// An explicit deny is terminal: no rule may widen it.
	if resolution.State == profiles.GrantDeny {
		return Decision{
			RBACState: profiles.GrantDeny,
			DecidedBy: DecidedByGrant,
			GrantID:   resolution.GrantID,
			Reason:    "explicit deny",
		}
	}

	matched, err := s.rules.ListApplicable(ctx, rules.Match{
		Action:       req.Action,
		Subject:      req.Subject,
		ResourceType: req.ResourceType,
		ProfileID:    profileID,
		MemberID:     req.MemberID,
	})
	if err != nil {
		return s.denyOnError(req, "rule lookup", err)
	}
	if winner := firstSatisfied(matched, at, s.logger); winner != nil {
		return Decision{
			Allowed:   true,
			RBACState: resolution.State,
			DecidedBy: DecidedByRule,
			RuleID:    winner.ID,
			Reason:    "rule " + winner.Name,
		}
	}

	if resolution.State == profiles.GrantAllow {
		return Decision{
			Allowed:   true,
			RBACState: profiles.GrantAllow,
			DecidedBy: DecidedByGrant,
			GrantID:   resolution.GrantID,
			Reason:    "explicit allow",
		}
	}
	return Decision{
		RBACState: profiles.GrantUnset,
		DecidedBy: DecidedByDefault,
		Reason:    "no grant configured",
	}
}

func (s *Service) denyOnError(req Request, stage string, err error) Decision {
	s.logger.Error("policy decision degraded to deny",
		slog.String("stage", stage),
		slog.Int64("member_id", req.MemberID),
		slog.String("capability", req.Key().String()),
		slog.Any("error", err))
	return Decision{RBACState: profiles.GrantUnset, DecidedBy: DecidedByError, Reason: stage + " failed"}
}

func (s *Service) record(ctx context.Context, req Request, at time.Time, decision Decision) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.RecordDecision(ctx, DecisionRecord{
		ID:           uuid.New(),
		MemberID:     req.MemberID,
		Action:       string(req.Action),
		Subject:      req.Subject,
		ResourceType: req.ResourceType,
		Allowed:      decision.Allowed,
		DecidedBy:    decision.DecidedBy,
		GrantID:      decision.GrantID,
		RuleID:       decision.RuleID,
		At:           at,
	})
	if err != nil {
		s.logger.Warn("record decision", slog.Any("error", err))
	}
}

// EffectivePermission pairs a catalog entry with its resolved state
// for one member.
type EffectivePermission struct {
	Permission catalog.Permission
	State      profiles.GrantState
}

// EffectivePermissions returns the full catalog annotated with the
// member's grant state. Conditional rules are not folded in; this is
// the static role-based view the dashboard renders.
func (s *Service) EffectivePermissions(ctx context.Context, memberID int64) ([]EffectivePermission, error) {
	profileID, err := s.assignments.ProfileIDForMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	perms, err := s.catalog.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	states := make(map[int64]profiles.GrantState)
	if profileID != nil {
		grants, err := s.grants.ListGrants(ctx, *profileID)
		if err != nil {
			return nil, err
		}
		for _, g := range grants {
			states[g.PermissionID] = g.State
		}
	}
	out := make([]EffectivePermission, 0, len(perms))
	for _, perm := range perms {
		state, ok := states[perm.ID]
		if !ok || !state.Valid() {
			state = profiles.GrantUnset
		}
		out = append(out, EffectivePermission{Permission: perm, State: state})
	}
	return out, nil
}
