package members

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ecclesia-app/ecclesia-access/internal/audit"
	"github.com/ecclesia-app/ecclesia-access/internal/profiles"
	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

// Store abstracts member persistence.
type Store interface {
	ListMembers(ctx context.Context, limit, offset int) ([]Member, int, error)
	GetMember(ctx context.Context, id int64) (Member, error)
	CreateMember(ctx context.Context, m Member) (Member, error)
	AssignProfile(ctx context.Context, memberID int64, profileID *int64) (Member, error)
	ProfileIDForMember(ctx context.Context, memberID int64) (*int64, error)
}

// ProfileGetter resolves profiles referenced by assignments.
type ProfileGetter interface {
	GetProfile(ctx context.Context, id int64) (profiles.Profile, error)
}

// Invalidator flushes derived policy state after assignment changes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service orchestrates the member directory and profile assignment.
type Service struct {
	repo        Store
	profiles    ProfileGetter
	invalidator Invalidator
	auditor     *audit.Recorder
	logger      *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Store, profileGetter ProfileGetter, invalidator Invalidator, auditor *audit.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, profiles: profileGetter, invalidator: invalidator, auditor: auditor, logger: logger}
}

// ListMembers returns a page of the directory.
func (s *Service) ListMembers(ctx context.Context, page, perPage int) ([]Member, shared.Pagination, error) {
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	items, total, err := s.repo.ListMembers(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, perPage, total), nil
}

// GetMember fetches one member.
func (s *Service) GetMember(ctx context.Context, id int64) (Member, error) {
	return s.repo.GetMember(ctx, id)
}

// CreateMember validates and inserts a directory entry.
func (s *Service) CreateMember(ctx context.Context, name, email string) (Member, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return Member{}, fmt.Errorf("%w: member name required", shared.ErrValidation)
	}
	if email == "" {
		return Member{}, fmt.Errorf("%w: member email required", shared.ErrValidation)
	}
	member, err := s.repo.CreateMember(ctx, Member{Name: name, Email: email})
	if err != nil {
		return Member{}, err
	}
	s.record(ctx, "member.create", member.ID, map[string]any{"email": member.Email})
	return member, nil
}

// AssignProfile sets or clears the member's access tier. Only active
// profiles can be assigned; clearing always succeeds.
func (s *Service) AssignProfile(ctx context.Context, memberID int64, profileID *int64) (Member, error) {
	if profileID != nil {
		profile, err := s.profiles.GetProfile(ctx, *profileID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return Member{}, fmt.Errorf("%w: profile %d does not exist", shared.ErrValidation, *profileID)
			}
			return Member{}, err
		}
		if !profile.Active {
			return Member{}, fmt.Errorf("%w: profile %q is disabled", shared.ErrValidation, profile.Name)
		}
	}
	member, err := s.repo.AssignProfile(ctx, memberID, profileID)
	if err != nil {
		return Member{}, err
	}
	s.bump(ctx)
	meta := map[string]any{"profile_id": nil}
	if profileID != nil {
		meta["profile_id"] = *profileID
	}
	s.record(ctx, "member.assign_profile", memberID, meta)
	return member, nil
}

// ProfileIDForMember resolves the member's current assignment.
func (s *Service) ProfileIDForMember(ctx context.Context, memberID int64) (*int64, error) {
	return s.repo.ProfileIDForMember(ctx, memberID)
}

func (s *Service) bump(ctx context.Context) {
	if s.invalidator != nil {
		_ = s.invalidator.Bump(ctx)
	}
}

func (s *Service) record(ctx context.Context, action string, memberID int64, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Record(ctx, audit.Entry{
		Action:   action,
		Entity:   "member",
		EntityID: strconv.FormatInt(memberID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
