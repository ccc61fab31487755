/*
Package booking is the class booking and policy engine.

PURPOSE:
  Owns the rules governing whether a class seat can be claimed, held,
  switched, or released, and the account-standing consequences of member
  actions over time:
  - Evaluator: pure decision on a booking attempt (evaluate.go)
  - Ledger: append-only record of bookings; status transitions only (ledger.go)
  - Cancellation policy: free vs late, three-strikes blocks (policy.go)
  - Service: orchestration, waitlist promotion, calendar notification
    (service.go)

KEY CONCEPTS IN THIS FILE (types.go):
  - Booking: one member's claim on one class instance
  - BookingStatus: confirmed / waitlisted / cancelled / completed
  - Subscription + UserStanding: the per-member state policies act on

DESIGN PRINCIPLES:
  1. The ledger is append-only: cancellation is a status transition, never a
     delete, so history-dependent policy stays auditable.
  2. Enrolled counts are derived from the ledger, never stored independently.
  3. Every policy function takes "now" explicitly; nothing here reads the
     clock.
*/
package booking

import (
	"time"

	"github.com/reelrep/studio-engine/schedule"
)

// =============================================================================
// BOOKING - One member's claim on one class instance
// =============================================================================

type BookingID string

type BookingStatus string

const (
	StatusConfirmed  BookingStatus = "confirmed"
	StatusWaitlisted BookingStatus = "waitlisted"
	StatusCancelled  BookingStatus = "cancelled"
	StatusCompleted  BookingStatus = "completed"
)

// Active reports whether the status still holds a claim on the class.
// At most one active booking may exist per (user, instance) pair.
func (s BookingStatus) Active() bool {
	return s == StatusConfirmed || s == StatusWaitlisted
}

// Terminal reports whether no further transition may leave the status.
func (s BookingStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Booking is one ledger entry. ClassStart is denormalized from the instance
// at creation time so cancellation policy can classify without re-resolving
// the schedule.
type Booking struct {
	ID         BookingID
	UserID     string
	InstanceID schedule.InstanceID
	ClassStart time.Time
	Status     BookingStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// =============================================================================
// SUBSCRIPTION - The member's purchased plan
// =============================================================================

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

type Subscription struct {
	Tier            schedule.Tier
	Status          SubscriptionStatus
	StartDate       time.Time
	EndDate         time.Time
	ClassesPerMonth int
	ClassesUsed     int
}

// ActiveAt reports whether the subscription entitles booking at now.
func (s *Subscription) ActiveAt(now time.Time) bool {
	if s == nil || s.Status != SubscriptionActive {
		return false
	}
	return !now.After(s.EndDate)
}

// QuotaLeft returns the remaining class credits in the current period.
func (s *Subscription) QuotaLeft() int {
	if s == nil {
		return 0
	}
	left := s.ClassesPerMonth - s.ClassesUsed
	if left < 0 {
		return 0
	}
	return left
}

// =============================================================================
// USER STANDING - Per-member mutable policy state
// =============================================================================

// UserStanding is mutated only by the cancellation policy engine, the staff
// block/unblock surface, and subscription purchase. The late-cancellation
// counter never resets automatically; only a staff unblock clears it.
type UserStanding struct {
	UserID            string
	Name              string
	Subscription      *Subscription
	LateCancellations int
	BlockEndDate      *time.Time
	BlockReason       string
}

// BlockedAt reports whether a block is in force at now.
func (s UserStanding) BlockedAt(now time.Time) bool {
	return s.BlockEndDate != nil && now.Before(*s.BlockEndDate)
}
