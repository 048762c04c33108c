package rules

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

// ============================================================================
// MOCK STORE
// ============================================================================

type mockStore struct {
	rules       map[uuid.UUID]Rule
	createError error
}

func newMockStore() *mockStore {
	return &mockStore{rules: make(map[uuid.UUID]Rule)}
}

func (m *mockStore) ListRules(ctx context.Context) ([]Rule, error) {
	out := make([]Rule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	return out, nil
}

func (m *mockStore) GetRule(ctx context.Context, id uuid.UUID) (Rule, error) {
	r, ok := m.rules[id]
	if !ok {
		return Rule{}, shared.ErrNotFound
	}
	return r, nil
}

func (m *mockStore) CreateRule(ctx context.Context, rule Rule) (Rule, error) {
	if m.createError != nil {
		return Rule{}, m.createError
	}
	rule.ID = uuid.New()
	rule.Active = true
	m.rules[rule.ID] = rule
	return rule, nil
}

func (m *mockStore) UpdateRule(ctx context.Context, rule Rule) (Rule, error) {
	if _, ok := m.rules[rule.ID]; !ok {
		return Rule{}, shared.ErrNotFound
	}
	m.rules[rule.ID] = rule
	return rule, nil
}

func (m *mockStore) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.rules[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *mockStore) ListApplicable(ctx context.Context, match Match) ([]Rule, error) {
	out := make([]Rule, 0)
	for _, r := range m.rules {
		if r.Applies(match) {
			out = append(out, r)
		}
	}
	return out, nil
}

type countingInvalidator struct {
	bumps int
}

func (c *countingInvalidator) Bump(ctx context.Context) error {
	c.bumps++
	return nil
}

func int64Ptr(v int64) *int64 { return &v }

func validRule() Rule {
	return Rule{
		Name:    "weekend finance lock",
		Action:  "read",
		Subject: "financeiro",
		Scope:   ScopeGlobal,
	}
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateRuleRequiresName(t *testing.T) {
	svc := NewService(newMockStore(), nil, nil, nil)
	rule := validRule()
	rule.Name = "  "
	_, err := svc.CreateRule(context.Background(), rule)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRuleRejectsUnknownAction(t *testing.T) {
	svc := NewService(newMockStore(), nil, nil, nil)
	rule := validRule()
	rule.Action = "export"
	_, err := svc.CreateRule(context.Background(), rule)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRuleScopeFieldsMustMatch(t *testing.T) {
	svc := NewService(newMockStore(), nil, nil, nil)

	profileScoped := validRule()
	profileScoped.Scope = ScopeProfile
	_, err := svc.CreateRule(context.Background(), profileScoped)
	require.ErrorIs(t, err, shared.ErrValidation, "scope=profile without profile_id")

	userScoped := validRule()
	userScoped.Scope = ScopeUser
	_, err = svc.CreateRule(context.Background(), userScoped)
	require.ErrorIs(t, err, shared.ErrValidation, "scope=user without user_id")

	global := validRule()
	global.ProfileID = int64Ptr(3)
	_, err = svc.CreateRule(context.Background(), global)
	require.ErrorIs(t, err, shared.ErrValidation, "scope=global with profile_id")
}

func TestCreateRuleDropsCrossScopeIDs(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, nil, nil, nil)

	rule := validRule()
	rule.Scope = ScopeProfile
	rule.ProfileID = int64Ptr(3)
	rule.MemberID = int64Ptr(9)

	created, err := svc.CreateRule(context.Background(), rule)
	require.NoError(t, err)
	require.NotNil(t, created.ProfileID)
	assert.Nil(t, created.MemberID, "profile-scoped rule must not retain user_id")
}

func TestCreateRuleRejectsBadCondition(t *testing.T) {
	svc := NewService(newMockStore(), nil, nil, nil)
	rule := validRule()
	rule.Condition = json.RawMessage(`{"time_restriction":"nope"}`)
	_, err := svc.CreateRule(context.Background(), rule)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRuleDefaultsEmptyCondition(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, nil, nil, nil)
	created, err := svc.CreateRule(context.Background(), validRule())
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(created.Condition))
}

func TestCreateRuleBumpsCache(t *testing.T) {
	inv := &countingInvalidator{}
	svc := NewService(newMockStore(), inv, nil, nil)
	_, err := svc.CreateRule(context.Background(), validRule())
	require.NoError(t, err)
	assert.Equal(t, 1, inv.bumps)
}

func TestCreateRuleDoesNotBumpOnStoreError(t *testing.T) {
	store := newMockStore()
	store.createError = errors.New("boom")
	inv := &countingInvalidator{}
	svc := NewService(store, inv, nil, nil)
	_, err := svc.CreateRule(context.Background(), validRule())
	require.Error(t, err)
	assert.Zero(t, inv.bumps)
}

func TestDeleteRuleBumpsCache(t *testing.T) {
	store := newMockStore()
	inv := &countingInvalidator{}
	svc := NewService(store, inv, nil, nil)
	created, err := svc.CreateRule(context.Background(), validRule())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRule(context.Background(), created.ID))
	assert.Equal(t, 2, inv.bumps)
	_, err = svc.GetRule(context.Background(), created.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSortForEvaluationPrecedence(t *testing.T) {
	global := validRule()
	global.ID = uuid.New()
	global.Priority = 100

	profile := validRule()
	profile.ID = uuid.New()
	profile.Scope = ScopeProfile
	profile.ProfileID = int64Ptr(1)

	user := validRule()
	user.ID = uuid.New()
	user.Scope = ScopeUser
	user.MemberID = int64Ptr(7)

	highPriorityUser := user
	highPriorityUser.ID = uuid.New()
	highPriorityUser.Priority = 10

	list := []Rule{global, profile, user, highPriorityUser}
	SortForEvaluation(list)

	assert.Equal(t, highPriorityUser.ID, list[0].ID, "user scope with highest priority first")
	assert.Equal(t, user.ID, list[1].ID)
	assert.Equal(t, profile.ID, list[2].ID)
	assert.Equal(t, global.ID, list[3].ID, "global last regardless of priority")
}

func TestAppliesMatchesScopeTargets(t *testing.T) {
	profileID := int64Ptr(3)
	rule := Rule{
		Action:    "read",
		Subject:   "financeiro",
		Scope:     ScopeProfile,
		ProfileID: profileID,
		Active:    true,
	}

	match := Match{Action: "read", Subject: "financeiro", ProfileID: profileID, MemberID: 1}
	assert.True(t, rule.Applies(match))

	other := int64Ptr(4)
	match.ProfileID = other
	assert.False(t, rule.Applies(match))

	match.ProfileID = nil
	assert.False(t, rule.Applies(match), "profile rule never applies to members without profile")
}
