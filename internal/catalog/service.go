package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

// Store abstracts catalog persistence.
type Store interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	FindByKey(ctx context.Context, key Key) (Permission, error)
	CreatePermission(ctx context.Context, perm Permission) (Permission, error)
	DeletePermission(ctx context.Context, id int64) error
}

// Invalidator flushes derived policy state after catalog writes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service orchestrates permission catalog operations.
type Service struct {
	repo        Store
	invalidator Invalidator
}

// NewService constructs a Service.
func NewService(repo Store, invalidator Invalidator) *Service {
	return &Service{repo: repo, invalidator: invalidator}
}

// ListPermissions returns the whole catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// GetPermission fetches a single catalog entry.
func (s *Service) GetPermission(ctx context.Context, id int64) (Permission, error) {
	return s.repo.GetPermission(ctx, id)
}

// FindByKey resolves a catalog key to its permission.
func (s *Service) FindByKey(ctx context.Context, key Key) (Permission, error) {
	key = normalizeKey(key)
	if !ValidAction(key.Action) {
		return Permission{}, fmt.Errorf("%w: unknown action %q", shared.ErrValidation, key.Action)
	}
	return s.repo.FindByKey(ctx, key)
}

// EnsurePermission upserts a catalog entry for the given key.
func (s *Service) EnsurePermission(ctx context.Context, key Key, description string) (Permission, error) {
	key = normalizeKey(key)
	if !ValidAction(key.Action) {
		return Permission{}, fmt.Errorf("%w: unknown action %q", shared.ErrValidation, key.Action)
	}
	if key.Subject == "" {
		return Permission{}, fmt.Errorf("%w: subject required", shared.ErrValidation)
	}
	perm, err := s.repo.CreatePermission(ctx, Permission{
		Action:       key.Action,
		Subject:      key.Subject,
		ResourceType: key.ResourceType,
		Description:  strings.TrimSpace(description),
	})
	if err != nil {
		return Permission{}, err
	}
	s.bump(ctx)
	return perm, nil
}

// DeletePermission removes a catalog entry. Grants referencing it are
// dropped by the storage layer, so resolution falls back to unset.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	if err := s.repo.DeletePermission(ctx, id); err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

func (s *Service) bump(ctx context.Context) {
	if s.invalidator != nil {
		_ = s.invalidator.Bump(ctx)
	}
}

func normalizeKey(key Key) Key {
	return Key{
		Action:       Action(strings.ToLower(strings.TrimSpace(string(key.Action)))),
		Subject:      strings.ToLower(strings.TrimSpace(key.Subject)),
		ResourceType: strings.ToLower(strings.TrimSpace(key.ResourceType)),
	}
}
