package rules

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ecclesia-app/ecclesia-access/internal/catalog"
)

// Scope is the breadth of a conditional rule's applicability.
type Scope string

const (
	// ScopeGlobal applies to every actor.
	ScopeGlobal Scope = "global"
	// ScopeProfile applies to actors holding a specific profile.
	ScopeProfile Scope = "profile"
	// ScopeUser applies to a single member.
	ScopeUser Scope = "user"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeGlobal || s == ScopeProfile || s == ScopeUser
}

// specificity ranks scopes for evaluation order. Narrower scopes
// evaluate first so they can override broader ones.
func (s Scope) specificity() int {
	switch s {
	case ScopeUser:
		return 2
	case ScopeProfile:
		return 1
	default:
		return 0
	}
}

// Rule is a conditional overlay refining role-based grants with
// runtime attributes. The condition payload is kept raw; it is parsed
// at validation time and again, fail-closed, at evaluation time.
type Rule struct {
	ID           uuid.UUID
	Name         string
	Description  string
	Action       catalog.Action
	Subject      string
	ResourceType string
	Scope        Scope
	ProfileID    *int64
	MemberID     *int64
	Condition    json.RawMessage
	Priority     int
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Match carries the request attributes a rule is matched against.
type Match struct {
	Action       catalog.Action
	Subject      string
	ResourceType string
	ProfileID    *int64
	MemberID     int64
}

// Applies reports whether the rule covers the request. A rule with an
// empty resource_type covers every resource of its subject; a rule
// naming one covers only that resource.
func (r Rule) Applies(m Match) bool {
	if !r.Active {
		return false
	}
	if r.Action != m.Action || r.Subject != m.Subject {
		return false
	}
	if r.ResourceType != "" && r.ResourceType != m.ResourceType {
		return false
	}
	switch r.Scope {
	case ScopeGlobal:
		return true
	case ScopeProfile:
		return r.ProfileID != nil && m.ProfileID != nil && *r.ProfileID == *m.ProfileID
	case ScopeUser:
		return r.MemberID != nil && *r.MemberID == m.MemberID
	}
	return false
}

// SortForEvaluation orders rules by scope specificity (user before
// profile before global), then explicit priority descending, then
// creation time descending. This ordering is the documented precedence
// contract.
func SortForEvaluation(list []Rule) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if sa, sb := a.Scope.specificity(), b.Scope.specificity(); sa != sb {
			return sa > sb
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
