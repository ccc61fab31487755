/*
policy.go - Cancellation policy engine

PURPOSE:
  Classifies a cancellation as Free or Late by time-to-class-start and applies
  the escalating account consequences of repeated late cancellations.

THE RULES:
  - 6 hours or more before start: Free. Below: Late. Exactly 6.00h is Free.
  - Staff-initiated cancellations are Free unconditionally (privileged flag,
    not a role enum scattered through call sites).
  - Three late cancellations block the account for 3 days. A further trigger
    while already blocked resets the 3-day window from the new trigger time;
    blocks never stack.
  - The late counter NEVER resets automatically. Only a staff unblock clears
    it (see Unblock).
  - Switching (cancel + rebook a same-day class) has its own, stricter gate:
    at least 1 hour to start, no override for any role.

TWO-STEP CANCELLATION:
  Classify() first, show the member the late-fee prompt, then proceed to the
  ledger cancel plus ApplyLateCancellation. The engine enforces the
  acknowledgement in Service.Cancel; this file stays pure.
*/
package booking

import "time"

// =============================================================================
// POLICY CONSTANTS
// =============================================================================

const (
	// FreeCancellationWindow is the minimum time to class start for a
	// penalty-free member cancellation.
	FreeCancellationWindow = 6 * time.Hour

	// SwitchWindow is the minimum time to class start to allow a same-day
	// switch. Below this, switching is rejected outright regardless of role.
	SwitchWindow = time.Hour

	// LateStrikeLimit is the late-cancellation count that triggers a block.
	LateStrikeLimit = 3

	// StrikeBlockDuration is the fixed suspension applied at the strike
	// limit.
	StrikeBlockDuration = 72 * time.Hour

	// StaffBlockDuration is the manual block staff can impose from the boss
	// surface.
	StaffBlockDuration = 7 * 24 * time.Hour
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

type CancellationKind string

const (
	CancellationFree CancellationKind = "free"
	CancellationLate CancellationKind = "late"

	// CancellationNone marks the idempotent re-cancel of an already-cancelled
	// booking. No classification applies because nothing changed; the first
	// cancellation's consequences stand.
	CancellationNone CancellationKind = "none"
)

// Classify decides whether cancelling a class that starts at classStart is
// free or late at now. Privileged (staff-initiated) cancellations are always
// free.
func Classify(classStart, now time.Time, privileged bool) CancellationKind {
	if privileged {
		return CancellationFree
	}
	if classStart.Sub(now) >= FreeCancellationWindow {
		return CancellationFree
	}
	return CancellationLate
}

// CanSwitch reports whether a same-day switch is still permitted at now.
func CanSwitch(classStart, now time.Time) bool {
	return classStart.Sub(now) >= SwitchWindow
}

// =============================================================================
// STANDING CONSEQUENCES
// =============================================================================

// ApplyLateCancellation returns the standing after one late cancellation:
// the counter goes up and, at the strike limit, a fresh 3-day block is set
// from now (resetting, not stacking, any block already in force).
func ApplyLateCancellation(s UserStanding, now time.Time) UserStanding {
	s.LateCancellations++
	if s.LateCancellations >= LateStrikeLimit {
		until := now.Add(StrikeBlockDuration)
		s.BlockEndDate = &until
		s.BlockReason = "repeated late cancellations"
	}
	return s
}

// ApplyFreeCancellation performs no standing mutation. It exists so call
// sites read as a pair with ApplyLateCancellation.
func ApplyFreeCancellation(s UserStanding) UserStanding {
	return s
}

// StaffBlock imposes a manual 7-day block with the given reason.
func StaffBlock(s UserStanding, reason string, now time.Time) UserStanding {
	until := now.Add(StaffBlockDuration)
	s.BlockEndDate = &until
	if reason == "" {
		reason = "blocked by staff"
	}
	s.BlockReason = reason
	return s
}

// Unblock clears the block and resets the late counter. This is the only
// reset path for LateCancellations.
func Unblock(s UserStanding) UserStanding {
	s.BlockEndDate = nil
	s.BlockReason = ""
	s.LateCancellations = 0
	return s
}
