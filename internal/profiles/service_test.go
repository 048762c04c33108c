package profiles

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecclesia-app/ecclesia-access/internal/catalog"
	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type grantKey struct {
	profileID    int64
	permissionID int64
}

type mockRepository struct {
	profiles      map[int64]Profile
	grants        map[grantKey]Grant
	nextProfileID int64
	nextGrantID   int64

	replaceError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		profiles:      make(map[int64]Profile),
		grants:        make(map[grantKey]Grant),
		nextProfileID: 1,
		nextGrantID:   1,
	}
}

func (m *mockRepository) ListProfiles(ctx context.Context, includeInactive bool) ([]Profile, error) {
	out := make([]Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		if !includeInactive && !p.Active {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *mockRepository) GetProfile(ctx context.Context, id int64) (Profile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return Profile{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *mockRepository) CreateProfile(ctx context.Context, p Profile) (Profile, error) {
	for _, existing := range m.profiles {
		if existing.Name == p.Name {
			return Profile{}, shared.ErrConflict
		}
	}
	p.ID = m.nextProfileID
	m.nextProfileID++
	p.Active = true
	m.profiles[p.ID] = p
	return p, nil
}

func (m *mockRepository) UpdateProfile(ctx context.Context, p Profile) (Profile, error) {
	if _, ok := m.profiles[p.ID]; !ok {
		return Profile{}, shared.ErrNotFound
	}
	m.profiles[p.ID] = p
	return p, nil
}

func (m *mockRepository) DeactivateProfile(ctx context.Context, id int64) error {
	p, ok := m.profiles[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.Active = false
	m.profiles[id] = p
	return nil
}

func (m *mockRepository) GetGrant(ctx context.Context, profileID, permissionID int64) (Grant, error) {
	g, ok := m.grants[grantKey{profileID, permissionID}]
	if !ok {
		return Grant{}, shared.ErrNotFound
	}
	return g, nil
}

func (m *mockRepository) ListGrants(ctx context.Context, profileID int64) ([]Grant, error) {
	out := make([]Grant, 0)
	for key, g := range m.grants {
		if key.profileID == profileID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *mockRepository) CycleGrant(ctx context.Context, profileID, permissionID int64) (Grant, error) {
	key := grantKey{profileID, permissionID}
	g, ok := m.grants[key]
	if !ok {
		g = Grant{ID: m.nextGrantID, ProfileID: profileID, PermissionID: permissionID, State: GrantUnset}
		m.nextGrantID++
	}
	g.State = g.State.Next()
	m.grants[key] = g
	return g, nil
}

func (m *mockRepository) SetGrant(ctx context.Context, profileID, permissionID int64, state GrantState) (Grant, error) {
	key := grantKey{profileID, permissionID}
	g, ok := m.grants[key]
	if !ok {
		g = Grant{ID: m.nextGrantID, ProfileID: profileID, PermissionID: permissionID}
		m.nextGrantID++
	}
	g.State = state
	m.grants[key] = g
	return g, nil
}

func (m *mockRepository) ReplaceGrants(ctx context.Context, profileID int64, states map[int64]GrantState) error {
	if m.replaceError != nil {
		return m.replaceError
	}
	for key := range m.grants {
		if key.profileID == profileID {
			delete(m.grants, key)
		}
	}
	for permissionID, state := range states {
		if _, err := m.SetGrant(ctx, profileID, permissionID, state); err != nil {
			return err
		}
	}
	return nil
}

type mockPermissions struct {
	known map[int64]catalog.Permission
}

func (m *mockPermissions) GetPermission(ctx context.Context, id int64) (catalog.Permission, error) {
	p, ok := m.known[id]
	if !ok {
		return catalog.Permission{}, shared.ErrNotFound
	}
	return p, nil
}

type countingInvalidator struct {
	bumps int
}

func (c *countingInvalidator) Bump(ctx context.Context) error {
	c.bumps++
	return nil
}

func newTestService(t *testing.T) (*Service, *mockRepository, *countingInvalidator) {
	t.Helper()
	repo := newMockRepository()
	perms := &mockPermissions{known: map[int64]catalog.Permission{
		10: {ID: 10, Action: "read", Subject: "financeiro"},
		11: {ID: 11, Action: "manage", Subject: "pessoas"},
	}}
	inv := &countingInvalidator{}
	return NewService(repo, perms, inv, nil, nil), repo, inv
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateProfileValidatesLevel(t *testing.T) {
	svc, _, _ := newTestService(t)

	for _, level := range []int{0, 6, -1} {
		_, err := svc.CreateProfile(context.Background(), fmt.Sprintf("Perfil %d", level), "", level)
		require.ErrorIs(t, err, shared.ErrValidation, "level %d", level)
	}

	profile, err := svc.CreateProfile(context.Background(), "Pastor", "Supervisão", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, profile.Level)
	assert.True(t, profile.Active)
}

func TestCreateProfileRejectsDuplicateName(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CreateProfile(context.Background(), "Líder", "", 2)
	require.NoError(t, err)
	_, err = svc.CreateProfile(context.Background(), "Líder", "", 3)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestToggleGrantCycleClosesAfterThreeSteps(t *testing.T) {
	svc, _, _ := newTestService(t)
	profile, err := svc.CreateProfile(context.Background(), "Financeiro", "", 4)
	require.NoError(t, err)

	states := make([]GrantState, 0, 3)
	for i := 0; i < 3; i++ {
		grant, err := svc.ToggleGrant(context.Background(), profile.ID, 10)
		require.NoError(t, err)
		states = append(states, grant.State)
	}
	assert.Equal(t, []GrantState{GrantAllow, GrantDeny, GrantUnset}, states)
}

func TestToggleGrantUnknownPermission(t *testing.T) {
	svc, _, _ := newTestService(t)
	profile, err := svc.CreateProfile(context.Background(), "Membro", "", 1)
	require.NoError(t, err)

	_, err = svc.ToggleGrant(context.Background(), profile.ID, 999)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestToggleGrantUnknownProfile(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.ToggleGrant(context.Background(), 42, 10)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestToggleGrantBumpsCache(t *testing.T) {
	svc, _, inv := newTestService(t)
	profile, err := svc.CreateProfile(context.Background(), "Secretaria", "", 3)
	require.NoError(t, err)

	before := inv.bumps
	_, err = svc.ToggleGrant(context.Background(), profile.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, before+1, inv.bumps)
}

func TestReplaceGrantsValidatesStates(t *testing.T) {
	svc, _, _ := newTestService(t)
	profile, err := svc.CreateProfile(context.Background(), "Líder", "", 2)
	require.NoError(t, err)

	err = svc.ReplaceGrants(context.Background(), profile.ID, map[int64]GrantState{10: "maybe"})
	require.ErrorIs(t, err, shared.ErrValidation)

	err = svc.ReplaceGrants(context.Background(), profile.ID, map[int64]GrantState{999: GrantAllow})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReplaceGrantsSwapsConfiguration(t *testing.T) {
	svc, repo, _ := newTestService(t)
	profile, err := svc.CreateProfile(context.Background(), "Pastor", "", 5)
	require.NoError(t, err)

	_, err = svc.ToggleGrant(context.Background(), profile.ID, 10)
	require.NoError(t, err)

	err = svc.ReplaceGrants(context.Background(), profile.ID, map[int64]GrantState{11: GrantDeny})
	require.NoError(t, err)

	grants, err := repo.ListGrants(context.Background(), profile.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, int64(11), grants[0].PermissionID)
	assert.Equal(t, GrantDeny, grants[0].State)
}

func TestReplaceGrantsNoBumpOnFailure(t *testing.T) {
	svc, repo, inv := newTestService(t)
	profile, err := svc.CreateProfile(context.Background(), "Membro", "", 1)
	require.NoError(t, err)

	repo.replaceError = shared.ErrConflict
	before := inv.bumps
	err = svc.ReplaceGrants(context.Background(), profile.ID, map[int64]GrantState{10: GrantAllow})
	require.Error(t, err)
	assert.Equal(t, before, inv.bumps)
}

func TestDeactivateProfileKeepsRow(t *testing.T) {
	svc, repo, _ := newTestService(t)
	profile, err := svc.CreateProfile(context.Background(), "Financeiro", "", 4)
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateProfile(context.Background(), profile.ID))
	stored, err := repo.GetProfile(context.Background(), profile.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func TestGrantStateNextIsClosed(t *testing.T) {
	assert.Equal(t, GrantAllow, GrantUnset.Next())
	assert.Equal(t, GrantDeny, GrantAllow.Next())
	assert.Equal(t, GrantUnset, GrantDeny.Next())
}
