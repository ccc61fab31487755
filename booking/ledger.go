/*
ledger.go - Append-only booking ledger

PURPOSE:
  The immutable source of truth for every booking attempt and its outcome.
  Cancellation is a status transition, never a removal, so history-dependent
  policy (late-cancellation counting, attendance achievements) stays
  auditable.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: bookings are never deleted.
  2. ONE ACTIVE CLAIM: at most one confirmed/waitlisted booking per
     (user, instance). Enforced here as the final guard even though the
     evaluator already checked - this closes the race between two attempts
     that both evaluated against the same snapshot.
  3. DERIVED ENROLLMENT: the enrolled count for an instance is always
     count(confirmed bookings), never an independently stored number. No
     drift by construction.
  4. TERMINAL STATES: nothing leaves cancelled or completed.

STATE MACHINE (per booking):
  confirmed  -> cancelled | completed
  waitlisted -> confirmed | cancelled

SEE ALSO:
  - store.go: persistence interface the ledger drives
  - service.go: orchestration (standing consequences, waitlist promotion)
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reelrep/studio-engine/schedule"
)

// Ledger wraps a BookingStore with the booking state machine.
type Ledger struct {
	store BookingStore
}

func NewLedger(store BookingStore) *Ledger {
	return &Ledger{store: store}
}

// =============================================================================
// WRITES
// =============================================================================

// Create appends a booking for the member against the instance with the
// given initial status (confirmed or waitlisted, per the evaluator's
// decision). Fails with ErrAlreadyBooked if an active booking exists for the
// pair.
func (l *Ledger) Create(ctx context.Context, userID string, instance schedule.ClassInstance, status BookingStatus, now time.Time) (*Booking, error) {
	if !status.Active() {
		return nil, fmt.Errorf("cannot create booking with status %q", status)
	}

	// Pre-check for a friendly error; the store re-checks atomically.
	existing, err := l.store.ActiveFor(ctx, userID, instance.ID)
	if err != nil {
		return nil, persistence(err)
	}
	if existing != nil {
		return nil, ErrAlreadyBooked
	}

	b := Booking{
		ID:         BookingID(uuid.NewString()),
		UserID:     userID,
		InstanceID: instance.ID,
		ClassStart: instance.StartAt,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := l.store.Insert(ctx, b); err != nil {
		if errors.Is(err, ErrAlreadyBooked) {
			return nil, ErrAlreadyBooked
		}
		return nil, persistence(err)
	}
	return &b, nil
}

// Cancel transitions confirmed/waitlisted -> cancelled. Calling it on an
// already-cancelled booking is an idempotent no-op; calling it on a
// completed booking fails (terminal).
func (l *Ledger) Cancel(ctx context.Context, id BookingID, now time.Time) (*Booking, error) {
	b, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch b.Status {
	case StatusCancelled:
		return b, nil // idempotent
	case StatusCompleted:
		return nil, fmt.Errorf("cancel %s: %w", id, ErrTerminalStatus)
	}

	return l.transition(ctx, b, StatusCancelled, now)
}

// Complete transitions confirmed -> completed (attendance reconciliation,
// external trigger).
func (l *Ledger) Complete(ctx context.Context, id BookingID, now time.Time) (*Booking, error) {
	b, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if b.Status == StatusCompleted {
		return b, nil // idempotent
	}
	if b.Status != StatusConfirmed {
		return nil, fmt.Errorf("complete %s from %q: %w", id, b.Status, ErrTerminalStatus)
	}

	return l.transition(ctx, b, StatusCompleted, now)
}

// Promote transitions waitlisted -> confirmed (a seat freed up).
func (l *Ledger) Promote(ctx context.Context, id BookingID, now time.Time) (*Booking, error) {
	b, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusWaitlisted {
		return nil, fmt.Errorf("promote %s from %q: %w", id, b.Status, ErrTerminalStatus)
	}
	return l.transition(ctx, b, StatusConfirmed, now)
}

func (l *Ledger) transition(ctx context.Context, b *Booking, to BookingStatus, now time.Time) (*Booking, error) {
	if err := l.store.UpdateStatus(ctx, b.ID, to, now); err != nil {
		return nil, persistence(err)
	}
	updated := *b
	updated.Status = to
	updated.UpdatedAt = now
	return &updated, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns a booking by id.
func (l *Ledger) Get(ctx context.Context, id BookingID) (*Booking, error) {
	b, err := l.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, persistence(err)
	}
	return b, nil
}

// ActiveBookingsFor returns the member's confirmed and waitlisted bookings.
func (l *Ledger) ActiveBookingsFor(ctx context.Context, userID string) ([]Booking, error) {
	all, err := l.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, persistence(err)
	}
	var active []Booking
	for _, b := range all {
		if b.Status.Active() {
			active = append(active, b)
		}
	}
	return active, nil
}

// BookingFor returns the member's active booking for an instance, or nil.
func (l *Ledger) BookingFor(ctx context.Context, userID string, instanceID schedule.InstanceID) (*Booking, error) {
	b, err := l.store.ActiveFor(ctx, userID, instanceID)
	if err != nil {
		return nil, persistence(err)
	}
	return b, nil
}

// HistoricalCountByStatus counts the member's bookings in a given status
// across all time. Feeds quota audits and attendance achievements.
func (l *Ledger) HistoricalCountByStatus(ctx context.Context, userID string, status BookingStatus) (int, error) {
	n, err := l.store.CountByStatus(ctx, userID, status)
	if err != nil {
		return 0, persistence(err)
	}
	return n, nil
}

// EnrolledCount derives the live enrolled count for an instance from the
// ledger. This is the only enrolled count that exists.
func (l *Ledger) EnrolledCount(ctx context.Context, instanceID schedule.InstanceID) (int, error) {
	n, err := l.store.CountConfirmed(ctx, instanceID)
	if err != nil {
		return 0, persistence(err)
	}
	return n, nil
}

// ConfirmedStartedBefore returns confirmed bookings whose class started
// before cutoff. Attendance reconciliation sweeps these to completed.
func (l *Ledger) ConfirmedStartedBefore(ctx context.Context, cutoff time.Time) ([]Booking, error) {
	out, err := l.store.ListConfirmedBefore(ctx, cutoff)
	if err != nil {
		return nil, persistence(err)
	}
	return out, nil
}

// EarliestWaitlisted returns the oldest waitlisted booking for an instance,
// or nil if the waitlist is empty. FIFO by creation time.
func (l *Ledger) EarliestWaitlisted(ctx context.Context, instanceID schedule.InstanceID) (*Booking, error) {
	all, err := l.store.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, persistence(err)
	}
	for i := range all {
		if all[i].Status == StatusWaitlisted {
			return &all[i], nil
		}
	}
	return nil, nil
}
