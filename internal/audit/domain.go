package audit

import (
	"time"

	"github.com/google/uuid"
)

// TimelineRow is one admin action in the audit trail.
type TimelineRow struct {
	At       time.Time
	Actor    string
	Action   string
	Entity   string
	EntityID string
}

// TimelineFilters narrow the timeline query.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// PagingInfo carries cursorless paging metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result bundles timeline rows with paging.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}

// Decision is a persisted policy verdict, stored for accountability.
type Decision struct {
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

// DecisionFilters narrow the decision log query.
type DecisionFilters struct {
	MemberID int64
	Allowed  *bool
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}
