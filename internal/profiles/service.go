package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ecclesia-app/ecclesia-access/internal/audit"
	"github.com/ecclesia-app/ecclesia-access/internal/catalog"
	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

// Store abstracts profile and grant persistence.
type Store interface {
	ListProfiles(ctx context.Context, includeInactive bool) ([]Profile, error)
	GetProfile(ctx context.Context, id int64) (Profile, error)
	CreateProfile(ctx context.Context, p Profile) (Profile, error)
	UpdateProfile(ctx context.Context, p Profile) (Profile, error)
	DeactivateProfile(ctx context.Context, id int64) error
	GetGrant(ctx context.Context, profileID, permissionID int64) (Grant, error)
	ListGrants(ctx context.Context, profileID int64) ([]Grant, error)
	CycleGrant(ctx context.Context, profileID, permissionID int64) (Grant, error)
	SetGrant(ctx context.Context, profileID, permissionID int64, state GrantState) (Grant, error)
	ReplaceGrants(ctx context.Context, profileID int64, states map[int64]GrantState) error
}

// PermissionGetter resolves catalog entries referenced by grants.
type PermissionGetter interface {
	GetPermission(ctx context.Context, id int64) (catalog.Permission, error)
}

// Invalidator flushes derived policy state after grant writes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service orchestrates profile lifecycle and grant management.
type Service struct {
	repo        Store
	perms       PermissionGetter
	invalidator Invalidator
	auditor     *audit.Recorder
	logger      *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Store, perms PermissionGetter, invalidator Invalidator, auditor *audit.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, perms: perms, invalidator: invalidator, auditor: auditor, logger: logger}
}

// ListProfiles returns access tiers ordered by level.
func (s *Service) ListProfiles(ctx context.Context, includeInactive bool) ([]Profile, error) {
	return s.repo.ListProfiles(ctx, includeInactive)
}

// GetProfile fetches one profile.
func (s *Service) GetProfile(ctx context.Context, id int64) (Profile, error) {
	return s.repo.GetProfile(ctx, id)
}

// CreateProfile validates and inserts a new access tier.
func (s *Service) CreateProfile(ctx context.Context, name, description string, level int) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Profile{}, fmt.Errorf("%w: profile name required", shared.ErrValidation)
	}
	if level < MinLevel || level > MaxLevel {
		return Profile{}, fmt.Errorf("%w: level must be between %d and %d", shared.ErrValidation, MinLevel, MaxLevel)
	}
	profile, err := s.repo.CreateProfile(ctx, Profile{
		Name:        name,
		Description: strings.TrimSpace(description),
		Level:       level,
	})
	if err != nil {
		return Profile{}, err
	}
	s.record(ctx, "profile.create", profile.ID, map[string]any{"name": profile.Name, "level": profile.Level})
	return profile, nil
}

// UpdateProfile validates and applies profile edits.
func (s *Service) UpdateProfile(ctx context.Context, id int64, name, description string, level int, active bool) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Profile{}, fmt.Errorf("%w: profile name required", shared.ErrValidation)
	}
	if level < MinLevel || level > MaxLevel {
		return Profile{}, fmt.Errorf("%w: level must be between %d and %d", shared.ErrValidation, MinLevel, MaxLevel)
	}
	profile, err := s.repo.UpdateProfile(ctx, Profile{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		Level:       level,
		Active:      active,
	})
	if err != nil {
		return Profile{}, err
	}
	s.bump(ctx)
	s.record(ctx, "profile.update", profile.ID, map[string]any{"name": profile.Name, "active": profile.Active})
	return profile, nil
}

// DeactivateProfile soft-disables a profile instead of deleting it.
func (s *Service) DeactivateProfile(ctx context.Context, id int64) error {
	if err := s.repo.DeactivateProfile(ctx, id); err != nil {
		return err
	}
	s.bump(ctx)
	s.record(ctx, "profile.deactivate", id, nil)
	return nil
}

// Grants returns the configured grant rows for a profile.
func (s *Service) Grants(ctx context.Context, profileID int64) ([]Grant, error) {
	if _, err := s.repo.GetProfile(ctx, profileID); err != nil {
		return nil, err
	}
	return s.repo.ListGrants(ctx, profileID)
}

// ToggleGrant advances the tri-state for a (profile, permission) pair:
// unset → allow → deny → unset.
func (s *Service) ToggleGrant(ctx context.Context, profileID, permissionID int64) (Grant, error) {
	if _, err := s.repo.GetProfile(ctx, profileID); err != nil {
		return Grant{}, err
	}
	if _, err := s.perms.GetPermission(ctx, permissionID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Grant{}, fmt.Errorf("%w: permission %d not in catalog", shared.ErrValidation, permissionID)
		}
		return Grant{}, err
	}
	grant, err := s.repo.CycleGrant(ctx, profileID, permissionID)
	if err != nil {
		return Grant{}, err
	}
	s.bump(ctx)
	s.record(ctx, "grant.toggle", profileID, map[string]any{
		"permission_id": permissionID,
		"state":         string(grant.State),
	})
	return grant, nil
}

// ReplaceGrants swaps the profile's entire grant configuration
// transactionally.
func (s *Service) ReplaceGrants(ctx context.Context, profileID int64, states map[int64]GrantState) error {
	if _, err := s.repo.GetProfile(ctx, profileID); err != nil {
		return err
	}
	for permissionID, state := range states {
		if !state.Valid() {
			return fmt.Errorf("%w: unknown grant state %q for permission %d", shared.ErrValidation, state, permissionID)
		}
		if _, err := s.perms.GetPermission(ctx, permissionID); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: permission %d not in catalog", shared.ErrValidation, permissionID)
			}
			return err
		}
	}
	if err := s.repo.ReplaceGrants(ctx, profileID, states); err != nil {
		return err
	}
	s.bump(ctx)
	s.record(ctx, "grant.replace", profileID, map[string]any{"count": len(states)})
	return nil
}

func (s *Service) bump(ctx context.Context) {
	if s.invalidator != nil {
		_ = s.invalidator.Bump(ctx)
	}
}

func (s *Service) record(ctx context.Context, action string, profileID int64, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Record(ctx, audit.Entry{
		Action:   action,
		Entity:   "profile",
		EntityID: strconv.FormatInt(profileID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
