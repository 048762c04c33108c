package auth

import "time"

// ServiceAccount is a machine caller of the governance API, such as
// the dashboard backend or the public site renderer. Admin accounts
// bypass policy gating; they exist for bootstrap.
type ServiceAccount struct {
	ID        int64
	Name      string
	KeyHash   string
	Admin     bool
	Active    bool
	CreatedAt time.Time
}
