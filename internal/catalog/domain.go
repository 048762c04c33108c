package catalog

import (
	"fmt"
	"time"
)

// Action enumerates the closed set of capability verbs.
type Action string

const (
	ActionRead    Action = "read"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionManage  Action = "manage"
	ActionPerform Action = "perform"
)

// Actions lists every recognised verb.
var Actions = []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete, ActionManage, ActionPerform}

// ValidAction reports whether a belongs to the closed verb set.
func ValidAction(a Action) bool {
	switch a {
	case ActionRead, ActionCreate, ActionUpdate, ActionDelete, ActionManage, ActionPerform:
		return true
	}
	return false
}

// Key identifies a capability in the catalog. ResourceType may be
// empty when the subject alone is specific enough.
type Key struct {
	Action       Action
	Subject      string
	ResourceType string
}

// String renders the key in action:subject[:resource_type] form.
func (k Key) String() string {
	if k.ResourceType == "" {
		return fmt.Sprintf("%s:%s", k.Action, k.Subject)
	}
	return fmt.Sprintf("%s:%s:%s", k.Action, k.Subject, k.ResourceType)
}

// Permission is an atomic capability managed independently of any profile.
type Permission struct {
	ID           int64
	Action       Action
	Subject      string
	ResourceType string
	Description  string
	CreatedAt    time.Time
}

// Key returns the catalog key for the permission.
func (p Permission) Key() Key {
	return Key{Action: p.Action, Subject: p.Subject, ResourceType: p.ResourceType}
}
