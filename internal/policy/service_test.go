package policy

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecclesia-app/ecclesia-access/internal/catalog"
	"github.com/ecclesia-app/ecclesia-access/internal/profiles"
	"github.com/ecclesia-app/ecclesia-access/internal/rules"
	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

// ============================================================================
// FIXTURE
// ============================================================================

type stubAssignments struct {
	profileByMember map[int64]*int64
	err             error
}

func (s *stubAssignments) ProfileIDForMember(ctx context.Context, memberID int64) (*int64, error) {
	if s.err != nil {
		return nil, s.err
	}
	profileID, ok := s.profileByMember[memberID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return profileID, nil
}

type stubRules struct {
	rules []rules.Rule
	err   error
}

func (s *stubRules) ListApplicable(ctx context.Context, m rules.Match) ([]rules.Rule, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]rules.Rule, 0)
	for _, r := range s.rules {
		if r.Applies(m) {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubLister struct {
	perms  []catalog.Permission
	grants map[int64][]profiles.Grant
}

func (s *stubLister) ListPermissions(ctx context.Context) ([]catalog.Permission, error) {
	return s.perms, nil
}

func (s *stubLister) ListGrants(ctx context.Context, profileID int64) ([]profiles.Grant, error) {
	return s.grants[profileID], nil
}

type memoryRecorder struct {
	mu      sync.Mutex
	records []DecisionRecord
}

func (m *memoryRecorder) RecordDecision(ctx context.Context, record DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

type fixture struct {
	service     *Service
	assignments *stubAssignments
	catalog     *stubCatalog
	grants      *stubGrants
	rules       *stubRules
	recorder    *memoryRecorder
}

// newFixture wires a decision point where member 1 holds profile 1 and
// the catalog knows read:financeiro (id 10).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	profileID := int64(1)
	assignments := &stubAssignments{profileByMember: map[int64]*int64{
		1: &profileID,
		2: nil, // member without profile
	}}
	cat := &stubCatalog{perms: map[string]catalog.Permission{
		readFinanceKey().String(): {ID: 10, Action: "read", Subject: "financeiro"},
	}}
	grants := &stubGrants{grants: make(map[[2]int64]profiles.Grant)}
	ruleStore := &stubRules{}
	recorder := &memoryRecorder{}
	lister := &stubLister{
		perms:  []catalog.Permission{{ID: 10, Action: "read", Subject: "financeiro"}},
		grants: make(map[int64][]profiles.Grant),
	}
	resolver := NewResolver(cat, grants)
	svc := NewService(resolver, assignments, ruleStore, lister, lister, recorder, nil)
	return &fixture{
		service:     svc,
		assignments: assignments,
		catalog:     cat,
		grants:      grants,
		rules:       ruleStore,
		recorder:    recorder,
	}
}

func readFinanceRequest() Request {
	return Request{MemberID: 1, Action: "read", Subject: "financeiro"}
}

func allowGrant(f *fixture) {
	f.grants.grants[[2]int64{1, 10}] = profiles.Grant{ID: 77, ProfileID: 1, PermissionID: 10, State: profiles.GrantAllow}
}

func denyGrant(f *fixture) {
	f.grants.grants[[2]int64{1, 10}] = profiles.Grant{ID: 77, ProfileID: 1, PermissionID: 10, State: profiles.GrantDeny}
}

func businessHoursRule(scope rules.Scope) rules.Rule {
	r := rules.Rule{
		ID:        uuid.New(),
		Name:      "business hours",
		Action:    "read",
		Subject:   "financeiro",
		Scope:     scope,
		Condition: json.RawMessage(`{"time_restriction":"08:00-18:00"}`),
		Active:    true,
	}
	switch scope {
	case rules.ScopeProfile:
		id := int64(1)
		r.ProfileID = &id
	case rules.ScopeUser:
		id := int64(1)
		r.MemberID = &id
	}
	return r
}

var monday10 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
var monday22 = time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)

// ============================================================================
// TESTS
// ============================================================================

func TestDecideExplicitAllow(t *testing.T) {
	f := newFixture(t)
	allowGrant(f)

	decision := f.service.Decide(context.Background(), readFinanceRequest())
	assert.True(t, decision.Allowed)
	assert.Equal(t, DecidedByGrant, decision.DecidedBy)
	assert.Equal(t, profiles.GrantAllow, decision.RBACState)
	assert.Equal(t, int64(77), decision.GrantID)
}

func TestDecideDefaultDenyWhenUnset(t *testing.T) {
	f := newFixture(t)

	decision := f.service.Decide(context.Background(), readFinanceRequest())
	assert.False(t, decision.Allowed)
	assert.Equal(t, DecidedByDefault, decision.DecidedBy)
	assert.Equal(t, profiles.GrantUnset, decision.RBACState)
}

func TestDecideDenyIsTerminal(t *testing.T) {
	f := newFixture(t)
	denyGrant(f)
	// A satisfied rule must not widen an explicit deny.
	f.rules.rules = []rules.Rule{businessHoursRule(rules.ScopeGlobal)}

	decision := f.service.Decide(context.Background(), Request{
		MemberID: 1, Action: "read", Subject: "financeiro", At: monday10,
	})
	assert.False(t, decision.Allowed)
	assert.Equal(t, DecidedByGrant, decision.DecidedBy)
	assert.Equal(t, profiles.GrantDeny, decision.RBACState)
}

func TestDecideRuleGrantsConditionalAccess(t *testing.T) {
	f := newFixture(t)
	rule := businessHoursRule(rules.ScopeProfile)
	f.rules.rules = []rules.Rule{rule}

	inside := f.service.Decide(context.Background(), Request{
		MemberID: 1, Action: "read", Subject: "financeiro", At: monday10,
	})
	assert.True(t, inside.Allowed)
	assert.Equal(t, DecidedByRule, inside.DecidedBy)
	assert.Equal(t, rule.ID, inside.RuleID)

	outside := f.service.Decide(context.Background(), Request{
		MemberID: 1, Action: "read", Subject: "financeiro", At: monday22,
	})
	assert.False(t, outside.Allowed)
	assert.Equal(t, DecidedByDefault, outside.DecidedBy)
}

func TestDecideUserRuleDoesNotLeakToOthers(t *testing.T) {
	f := newFixture(t)
	otherProfile := int64(1)
	f.assignments.profileByMember[3] = &otherProfile
	f.rules.rules = []rules.Rule{businessHoursRule(rules.ScopeUser)} // member 1 only

	mine := f.service.Decide(context.Background(), Request{
		MemberID: 1, Action: "read", Subject: "financeiro", At: monday10,
	})
	assert.True(t, mine.Allowed)

	theirs := f.service.Decide(context.Background(), Request{
		MemberID: 3, Action: "read", Subject: "financeiro", At: monday10,
	})
	assert.False(t, theirs.Allowed)
}

func TestDecideMemberWithoutProfileFallsToRules(t *testing.T) {
	f := newFixture(t)
	f.rules.rules = []rules.Rule{businessHoursRule(rules.ScopeGlobal)}

	decision := f.service.Decide(context.Background(), Request{
		MemberID: 2, Action: "read", Subject: "financeiro", At: monday10,
	})
	assert.True(t, decision.Allowed, "global rule covers members without profile")
	assert.Equal(t, DecidedByRule, decision.DecidedBy)
}

func TestDecideUnknownMemberIsDenied(t *testing.T) {
	f := newFixture(t)
	allowGrant(f)

	decision := f.service.Decide(context.Background(), Request{
		MemberID: 404, Action: "read", Subject: "financeiro",
	})
	assert.False(t, decision.Allowed)
	assert.Equal(t, DecidedByDefault, decision.DecidedBy)
	assert.Equal(t, "member unknown or inactive", decision.Reason)
}

func TestDecideFailsClosedOnStorageError(t *testing.T) {
	f := newFixture(t)
	allowGrant(f)
	f.rules.err = errors.New("redis gone")

	decision := f.service.Decide(context.Background(), readFinanceRequest())
	assert.False(t, decision.Allowed)
	assert.Equal(t, DecidedByError, decision.DecidedBy)
}

func TestDecideUnparseableConditionIsNotSatisfied(t *testing.T) {
	f := newFixture(t)
	broken := businessHoursRule(rules.ScopeGlobal)
	broken.Condition = json.RawMessage(`{"time_restriction":`) // truncated
	f.rules.rules = []rules.Rule{broken}

	decision := f.service.Decide(context.Background(), Request{
		MemberID: 1, Action: "read", Subject: "financeiro", At: monday10,
	})
	assert.False(t, decision.Allowed, "a rule that cannot be parsed never grants access")
	assert.Equal(t, DecidedByDefault, decision.DecidedBy)
}

func TestDecideNormalizesRequestKey(t *testing.T) {
	f := newFixture(t)
	allowGrant(f)

	decision := f.service.Decide(context.Background(), Request{
		MemberID: 1, Action: " READ ", Subject: " Financeiro ",
	})
	assert.True(t, decision.Allowed)
}

func TestDecideRecordsEveryVerdict(t *testing.T) {
	f := newFixture(t)
	allowGrant(f)

	f.service.Decide(context.Background(), readFinanceRequest())
	f.service.Decide(context.Background(), Request{MemberID: 404, Action: "read", Subject: "financeiro"})

	require.Len(t, f.recorder.records, 2)
	assert.True(t, f.recorder.records[0].Allowed)
	assert.False(t, f.recorder.records[1].Allowed)
	assert.NotEqual(t, uuid.Nil, f.recorder.records[0].ID)
}

func TestEffectivePermissionsAnnotatesCatalog(t *testing.T) {
	f := newFixture(t)
	lister := &stubLister{
		perms: []catalog.Permission{
			{ID: 10, Action: "read", Subject: "financeiro"},
			{ID: 11, Action: "manage", Subject: "pessoas"},
		},
		grants: map[int64][]profiles.Grant{
			1: {{ID: 77, ProfileID: 1, PermissionID: 10, State: profiles.GrantAllow}},
		},
	}
	svc := NewService(NewResolver(f.catalog, f.grants), f.assignments, f.rules, lister, lister, nil, nil)

	perms, err := svc.EffectivePermissions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, perms, 2)
	assert.Equal(t, profiles.GrantAllow, perms[0].State)
	assert.Equal(t, profiles.GrantUnset, perms[1].State)
}

func TestEffectivePermissionsMemberWithoutProfile(t *testing.T) {
	f := newFixture(t)
	lister := &stubLister{
		perms:  []catalog.Permission{{ID: 10, Action: "read", Subject: "financeiro"}},
		grants: map[int64][]profiles.Grant{},
	}
	svc := NewService(NewResolver(f.catalog, f.grants), f.assignments, f.rules, lister, lister, nil, nil)

	perms, err := svc.EffectivePermissions(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, profiles.GrantUnset, perms[0].State)
}
