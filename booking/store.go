/*
store.go - Persistence interfaces for bookings and member standings

PURPOSE:
  The boundary between the engine and the database. Implementations live in
  store/sqlite (production) and store/memory (tests/dev).

APPEND-ONLY CONTRACT:
  Bookings are never deleted. Insert is the only way a row appears and
  UpdateStatus the only way one changes; there is no Delete anywhere in the
  interface. The store must also enforce, atomically at write time, that at
  most one ACTIVE (confirmed/waitlisted) booking exists per (user, instance)
  pair - the evaluator checks this too, but the store is the guard that
  closes races between concurrent attempts.
*/
package booking

import (
	"context"
	"time"

	"github.com/reelrep/studio-engine/schedule"
)

// =============================================================================
// BOOKING STORE
// =============================================================================

// BookingStore persists ledger entries.
//
// INVARIANTS the implementation must uphold:
//   - No Delete. Ever.
//   - Insert fails with ErrAlreadyBooked when an active booking already
//     exists for (UserID, InstanceID), atomically with the write.
type BookingStore interface {
	// Insert adds a new booking.
	Insert(ctx context.Context, b Booking) error

	// UpdateStatus transitions a booking's status. This is the ONLY mutation.
	UpdateStatus(ctx context.Context, id BookingID, status BookingStatus, updatedAt time.Time) error

	// Get returns a booking by id, or ErrBookingNotFound.
	Get(ctx context.Context, id BookingID) (*Booking, error)

	// ActiveFor returns the active booking for (user, instance), or nil.
	ActiveFor(ctx context.Context, userID string, instanceID schedule.InstanceID) (*Booking, error)

	// ListByUser returns all of a user's bookings, newest first.
	ListByUser(ctx context.Context, userID string) ([]Booking, error)

	// ListByInstance returns all bookings for a class instance, oldest first.
	ListByInstance(ctx context.Context, instanceID schedule.InstanceID) ([]Booking, error)

	// CountByStatus counts a user's bookings with the given status.
	CountByStatus(ctx context.Context, userID string, status BookingStatus) (int, error)

	// CountConfirmed counts confirmed bookings for an instance. This is the
	// authoritative enrolled count.
	CountConfirmed(ctx context.Context, instanceID schedule.InstanceID) (int, error)

	// ListConfirmedBefore returns confirmed bookings whose class started
	// before cutoff. Feeds attendance reconciliation.
	ListConfirmedBefore(ctx context.Context, cutoff time.Time) ([]Booking, error)
}

// =============================================================================
// STANDING STORE
// =============================================================================

// StandingStore persists per-member policy state.
type StandingStore interface {
	// GetStanding returns the member's standing. A member with no stored
	// standing yet gets a zero-value standing with the id filled in.
	GetStanding(ctx context.Context, userID string) (UserStanding, error)

	// SaveStanding upserts the standing.
	SaveStanding(ctx context.Context, s UserStanding) error

	// ListStandings returns all standings (boss surface).
	ListStandings(ctx context.Context) ([]UserStanding, error)
}
