package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Condition is the JSON predicate attached to a rule. Every populated
// field must hold for the condition to be satisfied; an empty
// condition is always satisfied.
type Condition struct {
	// TimeRestriction is a wall-clock window "HH:MM-HH:MM". Windows may
	// wrap midnight ("22:00-06:00").
	TimeRestriction string `json:"time_restriction,omitempty"`
	// DaysOfWeek limits the rule to the named days ("mon".."sun").
	DaysOfWeek []string `json:"days_of_week,omitempty"`
	// ValidFrom and ValidUntil bound the rule's lifetime.
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseCondition decodes and validates a raw condition payload.
// Unknown keys are rejected so typos surface at rule creation instead
// of silently never matching.
func ParseCondition(raw json.RawMessage) (Condition, error) {
	var cond Condition
	if len(raw) == 0 {
		return cond, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cond); err != nil {
		return Condition{}, fmt.Errorf("rules: parse condition: %w", err)
	}
	if cond.TimeRestriction != "" {
		if _, _, err := parseWindow(cond.TimeRestriction); err != nil {
			return Condition{}, err
		}
	}
	for _, day := range cond.DaysOfWeek {
		if _, ok := dayNames[strings.ToLower(day)]; !ok {
			return Condition{}, fmt.Errorf("rules: unknown day %q", day)
		}
	}
	if cond.ValidFrom != nil && cond.ValidUntil != nil && cond.ValidUntil.Before(*cond.ValidFrom) {
		return Condition{}, fmt.Errorf("rules: valid_until precedes valid_from")
	}
	return cond, nil
}

// Satisfied evaluates the condition at the given instant.
func (c Condition) Satisfied(at time.Time) bool {
	if c.ValidFrom != nil && at.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && at.After(*c.ValidUntil) {
		return false
	}
	if len(c.DaysOfWeek) > 0 {
		match := false
		for _, day := range c.DaysOfWeek {
			if wd, ok := dayNames[strings.ToLower(day)]; ok && wd == at.Weekday() {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if c.TimeRestriction != "" {
		start, end, err := parseWindow(c.TimeRestriction)
		if err != nil {
			return false
		}
		minute := at.Hour()*60 + at.Minute()
		if start <= end {
			if minute < start || minute >= end {
				return false
			}
		} else {
			// Window wraps midnight.
			if minute < start && minute >= end {
				return false
			}
		}
	}
	return true
}

// parseWindow converts "HH:MM-HH:MM" into minutes since midnight.
func parseWindow(window string) (int, int, error) {
	parts := strings.Split(window, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("rules: time_restriction must be HH:MM-HH:MM, got %q", window)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("rules: invalid clock value %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
