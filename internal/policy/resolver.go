package policy

import (
	"context"
	"errors"

	"github.com/ecclesia-app/ecclesia-access/internal/catalog"
	"github.com/ecclesia-app/ecclesia-access/internal/profiles"
	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

// Catalog resolves capability keys against the permission catalog.
type Catalog interface {
	FindByKey(ctx context.Context, key catalog.Key) (catalog.Permission, error)
}

// Grants looks up the grant row for a (profile, permission) pair.
type Grants interface {
	GetGrant(ctx context.Context, profileID, permissionID int64) (profiles.Grant, error)
}

// Resolver answers "does profile P hold capability K" using only
// catalog and grant rows. It is a pure lookup with no side effects.
type Resolver struct {
	catalog Catalog
	grants  Grants
}

// NewResolver constructs a Resolver.
func NewResolver(cat Catalog, grants Grants) *Resolver {
	return &Resolver{catalog: cat, grants: grants}
}

// Resolve computes the tri-state outcome for a profile and key.
// A nil profile (member without an access tier), an unrecognised
// capability and an unconfigured pair all resolve to unset.
func (r *Resolver) Resolve(ctx context.Context, profileID *int64, key catalog.Key) (Resolution, error) {
	unset := Resolution{State: profiles.GrantUnset}
	if profileID == nil {
		return unset, nil
	}
	perm, err := r.catalog.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrValidation) {
			return unset, nil
		}
		return unset, err
	}
	grant, err := r.grants.GetGrant(ctx, *profileID, perm.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Resolution{State: profiles.GrantUnset, PermissionID: perm.ID}, nil
		}
		return unset, err
	}
	state := grant.State
	if !state.Valid() || state == profiles.GrantUnset {
		// An explicit unset row behaves exactly like an absent one.
		return Resolution{State: profiles.GrantUnset, PermissionID: perm.ID}, nil
	}
	return Resolution{State: state, PermissionID: perm.ID, GrantID: grant.ID}, nil
}
