/*
service.go - Booking orchestration

PURPOSE:
  The one place where evaluator, ledger, cancellation policy, and member
  standing meet. Handlers call the service; the service sequences the
  mutations and keeps the pure layers pure.

FLOWS OWNED HERE:
  - Book:     evaluate -> append to ledger -> consume quota -> notify
  - Cancel:   classify -> two-step late acknowledgement -> ledger transition
              -> quota refund / strike -> FIFO waitlist promotion -> notify
  - Switch:   same-day swap under the 1h gate, penalty-free, quota-neutral
  - Complete: attendance reconciliation (confirmed -> completed)
  - Staff:    manual block / unblock (the only late-counter reset)

NOTIFICATION CONTRACT:
  Calendar-sync events are best-effort. Publish failures are logged and
  never fail the member's request.
*/
package booking

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/reelrep/studio-engine/notify"
	"github.com/reelrep/studio-engine/schedule"
)

// Service orchestrates booking flows.
type Service struct {
	Ledger    *Ledger
	Standings StandingStore
	Publisher notify.Publisher // optional; nil disables calendar sync
}

// =============================================================================
// BOOK
// =============================================================================

// BookResult reports where the member landed: a confirmed seat or a
// waitlist spot.
type BookResult struct {
	Booking    *Booking
	Waitlisted bool
}

// Book attempts to claim a seat on the instance for the member.
// Rejections come back as the evaluator's reason error (sentinel taxonomy);
// an over-capacity class yields a waitlisted booking, not an error.
func (s *Service) Book(ctx context.Context, userID string, instance schedule.ClassInstance, now time.Time) (*BookResult, error) {
	standing, err := s.Standings.GetStanding(ctx, userID)
	if err != nil {
		return nil, persistence(err)
	}

	existing, err := s.Ledger.BookingFor(ctx, userID, instance.ID)
	if err != nil {
		return nil, err
	}

	enrolled, err := s.Ledger.EnrolledCount(ctx, instance.ID)
	if err != nil {
		return nil, err
	}

	decision := Evaluate(standing, instance, enrolled, existing != nil, now)
	if decision.Outcome == OutcomeRejected {
		return nil, decision.Reason
	}

	status := StatusConfirmed
	if decision.Outcome == OutcomeWaitlisted {
		status = StatusWaitlisted
	}

	b, err := s.Ledger.Create(ctx, userID, instance, status, now)
	if err != nil {
		return nil, err
	}

	// Quota is consumed at creation, waitlist included, so a later promotion
	// needs no quota change.
	standing.Subscription.ClassesUsed++
	if err := s.Standings.SaveStanding(ctx, standing); err != nil {
		return nil, persistence(err)
	}

	ev := notify.EventBookingConfirmed
	if status == StatusWaitlisted {
		ev = notify.EventBookingWaitlisted
	}
	s.publish(ctx, ev, b, instance.Title, now)

	return &BookResult{Booking: b, Waitlisted: status == StatusWaitlisted}, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// CancelResult reports the classification applied and any waitlist
// promotion the freed seat triggered.
type CancelResult struct {
	Booking  *Booking
	Kind     CancellationKind
	Promoted *Booking // non-nil when a waitlisted member took the seat
}

// PreviewCancellation classifies what cancelling the booking right now would
// cost, without mutating anything. This is step one of the two-step late
// cancellation.
func (s *Service) PreviewCancellation(ctx context.Context, userID string, id BookingID, privileged bool, now time.Time) (CancellationKind, error) {
	b, err := s.ownedBooking(ctx, userID, id, privileged)
	if err != nil {
		return "", err
	}
	if b.Status == StatusWaitlisted {
		// Releasing a waitlist spot never costs anything.
		return CancellationFree, nil
	}
	return Classify(b.ClassStart, now, privileged), nil
}

// Cancel releases the booking. A Late cancellation of a confirmed seat
// requires acknowledgeLate=true (the member saw the fee prompt); without it
// the call fails with ErrLateConfirmationRequired and nothing changes.
//
// Consequences on success:
//   - Free: the class credit is refunded.
//   - Late: no refund, the strike counter goes up, three strikes block the
//     account for 3 days.
//   - A freed confirmed seat promotes the earliest-created waitlisted
//     booking (FIFO).
func (s *Service) Cancel(ctx context.Context, userID string, id BookingID, privileged, acknowledgeLate bool, now time.Time) (*CancelResult, error) {
	b, err := s.ownedBooking(ctx, userID, id, privileged)
	if err != nil {
		return nil, err
	}

	if b.Status == StatusCancelled {
		return &CancelResult{Booking: b, Kind: CancellationNone}, nil // idempotent
	}
	if b.Status == StatusCompleted {
		return nil, fmt.Errorf("cancel %s: %w", id, ErrTerminalStatus)
	}

	wasConfirmed := b.Status == StatusConfirmed

	kind := CancellationFree
	if wasConfirmed {
		kind = Classify(b.ClassStart, now, privileged)
	}
	if kind == CancellationLate && !acknowledgeLate {
		return nil, ErrLateConfirmationRequired
	}

	cancelled, err := s.Ledger.Cancel(ctx, id, now)
	if err != nil {
		return nil, err
	}

	standing, err := s.Standings.GetStanding(ctx, b.UserID)
	if err != nil {
		return nil, persistence(err)
	}
	switch kind {
	case CancellationFree:
		standing = ApplyFreeCancellation(standing)
		if standing.Subscription != nil && standing.Subscription.ClassesUsed > 0 {
			standing.Subscription.ClassesUsed--
		}
	case CancellationLate:
		standing = ApplyLateCancellation(standing, now)
	}
	if err := s.Standings.SaveStanding(ctx, standing); err != nil {
		return nil, persistence(err)
	}

	result := &CancelResult{Booking: cancelled, Kind: kind}

	if wasConfirmed {
		promoted, err := s.promoteNext(ctx, b.InstanceID, now)
		if err != nil {
			return nil, err
		}
		result.Promoted = promoted
	}

	s.publish(ctx, notify.EventBookingCancelled, cancelled, "", now)
	return result, nil
}

// promoteNext moves the earliest waitlisted booking for the instance to
// confirmed, if any.
func (s *Service) promoteNext(ctx context.Context, instanceID schedule.InstanceID, now time.Time) (*Booking, error) {
	next, err := s.Ledger.EarliestWaitlisted(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, nil
	}
	promoted, err := s.Ledger.Promote(ctx, next.ID, now)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notify.EventBookingPromoted, promoted, "", now)
	return promoted, nil
}

// =============================================================================
// SWITCH
// =============================================================================

// Switch swaps an active booking for another class on the SAME day,
// penalty-free and quota-neutral. The gate is stricter than cancellation:
// at least one hour to the original class start, with no override for any
// role.
func (s *Service) Switch(ctx context.Context, userID string, id BookingID, target schedule.ClassInstance, now time.Time) (*BookResult, error) {
	b, err := s.ownedBooking(ctx, userID, id, false)
	if err != nil {
		return nil, err
	}
	if !b.Status.Active() {
		return nil, fmt.Errorf("switch %s from %q: %w", id, b.Status, ErrTerminalStatus)
	}

	sameDay := b.ClassStart.Year() == target.StartAt.Year() &&
		b.ClassStart.YearDay() == target.StartAt.YearDay()
	if !sameDay {
		return nil, ErrNotSameDay
	}
	if !CanSwitch(b.ClassStart, now) {
		return nil, ErrSwitchWindowClosed
	}

	// Check the destination before giving up the seat. Nothing may be
	// cancelled until the target is known to accept the member, an active
	// claim on the target included.
	standing, err := s.Standings.GetStanding(ctx, userID)
	if err != nil {
		return nil, persistence(err)
	}
	onTarget, err := s.Ledger.BookingFor(ctx, userID, target.ID)
	if err != nil {
		return nil, err
	}
	enrolled, err := s.Ledger.EnrolledCount(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	// The switch refunds one credit and immediately spends it again, so
	// evaluate against a quota with the old booking's credit handed back.
	probe := standing
	if probe.Subscription != nil {
		sub := *probe.Subscription
		if sub.ClassesUsed > 0 {
			sub.ClassesUsed--
		}
		probe.Subscription = &sub
	}
	decision := Evaluate(probe, target, enrolled, onTarget != nil, now)
	if decision.Outcome == OutcomeRejected {
		return nil, decision.Reason
	}

	wasConfirmed := b.Status == StatusConfirmed
	if _, err := s.Ledger.Cancel(ctx, id, now); err != nil {
		return nil, err
	}

	status := StatusConfirmed
	if decision.Outcome == OutcomeWaitlisted {
		status = StatusWaitlisted
	}
	nb, err := s.Ledger.Create(ctx, userID, target, status, now)
	if err != nil {
		return nil, err
	}

	if wasConfirmed {
		if _, err := s.promoteNext(ctx, b.InstanceID, now); err != nil {
			return nil, err
		}
	}

	s.publish(ctx, notify.EventBookingCancelled, b, "", now)
	ev := notify.EventBookingConfirmed
	if status == StatusWaitlisted {
		ev = notify.EventBookingWaitlisted
	}
	s.publish(ctx, ev, nb, target.Title, now)

	return &BookResult{Booking: nb, Waitlisted: status == StatusWaitlisted}, nil
}

// =============================================================================
// COMPLETE
// =============================================================================

// Complete marks a confirmed booking as attended. Idempotent.
func (s *Service) Complete(ctx context.Context, id BookingID, now time.Time) (*Booking, error) {
	return s.Ledger.Complete(ctx, id, now)
}

// =============================================================================
// STAFF SURFACE
// =============================================================================

// StaffBlockUser imposes a manual 7-day block on the member.
func (s *Service) StaffBlockUser(ctx context.Context, userID, reason string, now time.Time) (UserStanding, error) {
	standing, err := s.Standings.GetStanding(ctx, userID)
	if err != nil {
		return UserStanding{}, persistence(err)
	}
	standing = StaffBlock(standing, reason, now)
	if err := s.Standings.SaveStanding(ctx, standing); err != nil {
		return UserStanding{}, persistence(err)
	}
	return standing, nil
}

// UnblockUser lifts any block and zeroes the late-cancellation counter.
func (s *Service) UnblockUser(ctx context.Context, userID string) (UserStanding, error) {
	standing, err := s.Standings.GetStanding(ctx, userID)
	if err != nil {
		return UserStanding{}, persistence(err)
	}
	standing = Unblock(standing)
	if err := s.Standings.SaveStanding(ctx, standing); err != nil {
		return UserStanding{}, persistence(err)
	}
	return standing, nil
}

// StandingFor returns the member's current standing.
func (s *Service) StandingFor(ctx context.Context, userID string) (UserStanding, error) {
	standing, err := s.Standings.GetStanding(ctx, userID)
	if err != nil {
		return UserStanding{}, persistence(err)
	}
	return standing, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// ownedBooking fetches the booking and enforces that it belongs to userID
// unless the caller is privileged. Missing-vs-foreign both come back as
// ErrBookingNotFound so the API leaks nothing.
func (s *Service) ownedBooking(ctx context.Context, userID string, id BookingID, privileged bool) (*Booking, error) {
	b, err := s.Ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !privileged && b.UserID != userID {
		return nil, ErrBookingNotFound
	}
	return b, nil
}

func (s *Service) publish(ctx context.Context, t notify.EventType, b *Booking, title string, now time.Time) {
	if s.Publisher == nil || b == nil {
		return
	}
	err := s.Publisher.Publish(ctx, notify.Event{
		Type:       t,
		UserID:     b.UserID,
		BookingID:  string(b.ID),
		InstanceID: string(b.InstanceID),
		ClassTitle: title,
		ClassStart: b.ClassStart,
		OccurredAt: now,
	})
	if err != nil {
		log.Printf("notify: publish %s for booking %s failed: %v", t, b.ID, err)
	}
}
