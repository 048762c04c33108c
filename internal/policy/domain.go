package policy

import (
	"time"

	"github.com/google/uuid"

	"github.com/ecclesia-app/ecclesia-access/internal/catalog"
	"github.com/ecclesia-app/ecclesia-access/internal/profiles"
)

// Request carries everything the decision point needs: the acting
// member, the capability being exercised and the evaluation instant.
type Request struct {
	MemberID     int64
	Action       catalog.Action
	Subject      string
	ResourceType string
	// At is the evaluation instant; zero means now.
	At time.Time
}

// Key returns the catalog key for the request.
func (r Request) Key() catalog.Key {
	return catalog.Key{Action: r.Action, Subject: r.Subject, ResourceType: r.ResourceType}
}

// Resolution is the outcome of role-based grant lookup: a pure
// tri-state with the identifiers needed for auditing.
type Resolution struct {
	State        profiles.GrantState
	PermissionID int64
	GrantID      int64
}

// Sources of a final decision, recorded for audit.
const (
	// DecidedByGrant means an explicit grant settled the request.
	DecidedByGrant = "grant"
	// DecidedByRule means a satisfied conditional rule settled it.
	DecidedByRule = "rule"
	// DecidedByDefault means the fail-closed default applied.
	DecidedByDefault = "default"
	// DecidedByError means a lookup failure forced a denial.
	DecidedByError = "error"
)

// Decision is the final verdict plus the deciding grant or rule.
type Decision struct {
	Allowed   bool
	RBACState profiles.GrantState
	DecidedBy string
	GrantID   int64
	RuleID    uuid.UUID
	Reason    string
}

// DecisionRecord is the audit trail entry for one decision.
type DecisionRecord struct {
	ID           uuid.UUID
	MemberID     int64
	Action       string
	Subject      string
	ResourceType string
	Allowed      bool
	DecidedBy    string
	GrantID      int64
	RuleID       uuid.UUID
	At           time.Time
}
