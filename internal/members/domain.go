package members

import "time"

// Member is a person in the congregation directory who can act
// against the platform. ProfileID is nil when no access tier has been
// assigned; such members resolve every permission check to unset.
type Member struct {
	ID        int64
	Name      string
	Email     string
	ProfileID *int64
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
