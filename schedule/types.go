/*
Package schedule expands recurring class templates into concrete, dated class
instances and decides when registration for those instances opens.

PURPOSE:
  The studio publishes a weekly timetable (templates: "Spinning, Monday 18:00,
  12 seats"). Members book concrete occurrences ("Spinning on 2026-03-02").
  This package owns two things:
  - Materializer: template set + date window -> sorted ClassInstance slice
  - Registration window gate: is booking for a given date open right now?

KEY CONCEPTS IN THIS FILE (types.go):
  - ClassTemplate: the recurring weekly offering, staff-owned, immutable here
  - ClassInstance: one dated occurrence, identified by template + date
  - Tier: subscription levels used for class gating

DESIGN PRINCIPLES:
  1. Determinism: materialization is a pure function of (templates, from, weeks)
  2. Stable identity: instance IDs survive re-materialization, so bookings
     keyed by instance ID stay valid when the window rolls forward
  3. Explicit clock: every time-dependent function takes "now" as a parameter

SEE ALSO:
  - materializer.go: window expansion
  - window.go: weekly release rule
  - booking/: consumes instances for eligibility decisions
*/
package schedule

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TemplateID string
type InstanceID string

// InstanceIDFor derives the stable identity of one occurrence.
// Format: "<templateID>@YYYY-MM-DD". Two materializations that cover the same
// date produce the same ID, which keeps bookings valid across regenerations.
func InstanceIDFor(templateID TemplateID, date time.Time) InstanceID {
	return InstanceID(fmt.Sprintf("%s@%s", templateID, date.Format("2006-01-02")))
}

// ParseInstanceID splits an instance ID back into its template and date.
// The date comes back at midnight in loc.
func ParseInstanceID(id InstanceID, loc *time.Location) (TemplateID, time.Time, error) {
	at := strings.LastIndex(string(id), "@")
	if at <= 0 {
		return "", time.Time{}, fmt.Errorf("malformed instance id %q", id)
	}
	date, err := time.ParseInLocation("2006-01-02", string(id)[at+1:], loc)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("malformed instance id %q: %w", id, err)
	}
	return TemplateID(id[:at]), date, nil
}

// =============================================================================
// SUBSCRIPTION TIERS
// =============================================================================

// Tier is the subscription level a member holds. Classes declare which tiers
// may book them.
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierVIP     Tier = "vip"
)

// =============================================================================
// CLASS TEMPLATE - Recurring weekly offering
// =============================================================================

// ClassTemplate is the staff-defined recurring class. Immutable from this
// package's perspective; edits happen through the admin surface.
type ClassTemplate struct {
	ID       TemplateID
	Title    string
	CoachID  string
	Weekday  time.Weekday // 0=Sunday .. 6=Saturday
	StartHH  int          // start time-of-day, local wall clock
	StartMM  int
	Duration time.Duration
	Capacity int
	Tiers    []Tier // tiers allowed to book; empty = all tiers
	Location string
	Category string // e.g. "strength", "hiit", "yoga"
}

// StartOn combines the template's time-of-day with a concrete date.
func (t ClassTemplate) StartOn(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.StartHH, t.StartMM, 0, 0, date.Location())
}

// AllowsTier reports whether the given subscription tier may book this class.
func (t ClassTemplate) AllowsTier(tier Tier) bool {
	if len(t.Tiers) == 0 {
		return true
	}
	for _, allowed := range t.Tiers {
		if allowed == tier {
			return true
		}
	}
	return false
}

// =============================================================================
// CLASS INSTANCE - One dated occurrence
// =============================================================================

// ClassInstance is a concrete occurrence of a template on a calendar date.
// Template attributes are denormalized at generation time so a later template
// edit does not rewrite already-published instances.
//
// Enrolled is a cached projection of the booking ledger (confirmed count).
// It is always 0 straight out of the materializer; callers overlay live
// counts. It is never the source of truth.
type ClassInstance struct {
	ID       InstanceID
	Template TemplateID
	Title    string
	CoachID  string
	StartAt  time.Time
	Duration time.Duration
	Capacity int
	Tiers    []Tier
	Location string
	Category string
	Enrolled int
}

// Date returns the instance's calendar date at midnight local time.
func (ci ClassInstance) Date() time.Time {
	y, m, d := ci.StartAt.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ci.StartAt.Location())
}

// IsFull reports whether the overlaid enrolled count has reached capacity.
func (ci ClassInstance) IsFull() bool {
	return ci.Enrolled >= ci.Capacity
}

// AllowsTier reports whether the given subscription tier may book this
// occurrence, judged against the tiers denormalized at generation time.
func (ci ClassInstance) AllowsTier(tier Tier) bool {
	if len(ci.Tiers) == 0 {
		return true
	}
	for _, allowed := range ci.Tiers {
		if allowed == tier {
			return true
		}
	}
	return false
}
