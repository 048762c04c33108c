package profiles

import "time"

// Profile is a named access tier. Level ranks profiles 1 (lowest) to
// 5 (highest) for display and sorting only; it never implies
// permission inheritance.
type Profile struct {
	ID          int64
	Name        string
	Description string
	Level       int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MinLevel and MaxLevel bound the profile severity scale.
const (
	MinLevel = 1
	MaxLevel = 5
)

// GrantState is the tri-state outcome of a (profile, permission) pair.
type GrantState string

const (
	// GrantUnset means the pair was never configured. Consumers treat
	// it as an implicit deny, distinct from an explicit one.
	GrantUnset GrantState = "unset"
	// GrantAllow is an explicit allow.
	GrantAllow GrantState = "allow"
	// GrantDeny is an explicit deny. It is terminal in policy decisions.
	GrantDeny GrantState = "deny"
)

// Next returns the state after one toggle: unset → allow → deny → unset.
func (s GrantState) Next() GrantState {
	switch s {
	case GrantUnset:
		return GrantAllow
	case GrantAllow:
		return GrantDeny
	default:
		return GrantUnset
	}
}

// Valid reports whether s is one of the three known states.
func (s GrantState) Valid() bool {
	return s == GrantUnset || s == GrantAllow || s == GrantDeny
}

// Grant links a profile to a permission with an explicit state. At
// most one row exists per (profile_id, permission_id) pair.
type Grant struct {
	ID           int64
	ProfileID    int64
	PermissionID int64
	State        GrantState
	UpdatedAt    time.Time
}
