package members

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecclesia-app/ecclesia-access/internal/profiles"
	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

type mockStore struct {
	members map[int64]Member
	nextID  int64
}

func newMockStore() *mockStore {
	return &mockStore{members: make(map[int64]Member), nextID: 1}
}

func (m *mockStore) ListMembers(ctx context.Context, limit, offset int) ([]Member, int, error) {
	out := make([]Member, 0, len(m.members))
	for _, member := range m.members {
		out = append(out, member)
	}
	total := len(out)
	if offset >= len(out) {
		return []Member{}, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockStore) GetMember(ctx context.Context, id int64) (Member, error) {
	member, ok := m.members[id]
	if !ok {
		return Member{}, shared.ErrNotFound
	}
	return member, nil
}

func (m *mockStore) CreateMember(ctx context.Context, member Member) (Member, error) {
	for _, existing := range m.members {
		if existing.Email == member.Email {
			return Member{}, shared.ErrConflict
		}
	}
	member.ID = m.nextID
	m.nextID++
	member.Active = true
	m.members[member.ID] = member
	return member, nil
}

func (m *mockStore) AssignProfile(ctx context.Context, memberID int64, profileID *int64) (Member, error) {
	member, ok := m.members[memberID]
	if !ok {
		return Member{}, shared.ErrNotFound
	}
	member.ProfileID = profileID
	m.members[memberID] = member
	return member, nil
}

func (m *mockStore) ProfileIDForMember(ctx context.Context, memberID int64) (*int64, error) {
	member, ok := m.members[memberID]
	if !ok || !member.Active {
		return nil, shared.ErrNotFound
	}
	return member.ProfileID, nil
}

type mockProfiles struct {
	known map[int64]profiles.Profile
}

func (m *mockProfiles) GetProfile(ctx context.Context, id int64) (profiles.Profile, error) {
	p, ok := m.known[id]
	if !ok {
		return profiles.Profile{}, shared.ErrNotFound
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

func newTestService() (*Service, *mockStore, *countingInvalidator) {
	store := newMockStore()
	getter := &mockProfiles{known: map[int64]profiles.Profile{
		1: {ID: 1, Name: "Membro", Level: 1, Active: true},
		2: {ID: 2, Name: "Obsoleto", Level: 2, Active: false},
	}}
	inv := &countingInvalidator{}
	return NewService(store, getter, inv, nil, nil), store, inv
}

func TestCreateMemberNormalizesEmail(t *testing.T) {
	svc, _, _ := newTestService()
	member, err := svc.CreateMember(context.Background(), "Ana Souza", " Ana@Igreja.ORG ")
	require.NoError(t, err)
	assert.Equal(t, "ana@igreja.org", member.Email)
}

func TestCreateMemberValidation(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreateMember(context.Background(), "  ", "a@b.c")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.CreateMember(context.Background(), "Ana", "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAssignProfileRejectsUnknownProfile(t *testing.T) {
	svc, _, _ := newTestService()
	member, err := svc.CreateMember(context.Background(), "Ana", "ana@igreja.org")
	require.NoError(t, err)

	missing := int64(99)
	_, err = svc.AssignProfile(context.Background(), member.ID, &missing)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAssignProfileRejectsInactiveProfile(t *testing.T) {
	svc, _, _ := newTestService()
	member, err := svc.CreateMember(context.Background(), "Ana", "ana@igreja.org")
	require.NoError(t, err)

	inactive := int64(2)
	_, err = svc.AssignProfile(context.Background(), member.ID, &inactive)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAssignAndClearProfile(t *testing.T) {
	svc, store, inv := newTestService()
	member, err := svc.CreateMember(context.Background(), "Ana", "ana@igreja.org")
	require.NoError(t, err)

	active := int64(1)
	updated, err := svc.AssignProfile(context.Background(), member.ID, &active)
	require.NoError(t, err)
	require.NotNil(t, updated.ProfileID)
	assert.Equal(t, active, *updated.ProfileID)
	assert.Equal(t, 1, inv.bumps)

	// Clearing is always allowed, even though profile 2 is now disabled.
	cleared, err := svc.AssignProfile(context.Background(), member.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.ProfileID)
	assert.Equal(t, 2, inv.bumps)

	stored, err := store.GetMember(context.Background(), member.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ProfileID)
}

func TestListMembersClampsPaging(t *testing.T) {
	svc, _, _ := newTestService()
	for i := 0; i < 3; i++ {
		_, err := svc.CreateMember(context.Background(), "Pessoa", string(rune('a'+i))+"@igreja.org")
		require.NoError(t, err)
	}

	items, paging, err := svc.ListMembers(context.Background(), 0, -5)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, 1, paging.Page)
	assert.Equal(t, 20, paging.PerPage)
	assert.Equal(t, 3, paging.Total)
}
