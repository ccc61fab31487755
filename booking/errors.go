/*
errors.go - Centralized error taxonomy for the booking engine

PURPOSE:
  All booking/policy failures in one place. Every one of these is an expected,
  user-recoverable business condition, not a fault: the API layer maps them to
  4xx responses and the app surfaces them to the member.

  Persistence failures are the exception: anything the store reports that is
  not part of this taxonomy propagates wrapped in ErrPersistenceUnavailable,
  to be retried or surfaced by the caller. The engine itself never retries.

USAGE:
  if errors.Is(err, booking.ErrQuotaExhausted) { ... }

  var blocked *booking.BlockedError
  if errors.As(err, &blocked) {
      show(blocked.Until)
  }
*/
package booking

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoActiveSubscription is returned when the member has no subscription
	// record, or the record is expired or cancelled.
	ErrNoActiveSubscription = errors.New("no active subscription")

	// ErrRegistrationClosed is returned when the class date sits in a week
	// whose registration has not been released yet.
	ErrRegistrationClosed = errors.New("registration not yet open for this week")

	// ErrTierNotEligible is returned when the member's subscription tier is
	// not in the class's required-tier set.
	ErrTierNotEligible = errors.New("subscription tier not eligible for this class")

	// ErrQuotaExhausted is returned when the member has used up the period's
	// class allowance.
	ErrQuotaExhausted = errors.New("monthly class quota exhausted")

	// ErrAlreadyBooked is returned when an active (confirmed or waitlisted)
	// booking already exists for the member and class instance.
	ErrAlreadyBooked = errors.New("already booked for this class")

	// ErrAccountBlocked is returned while the member's standing carries a
	// block that has not expired.
	ErrAccountBlocked = errors.New("account is blocked")

	// ErrClassFull distinguishes a hard capacity failure from Waitlisted.
	// The evaluator never returns it (it waitlists instead); it exists for
	// callers that disable waitlisting.
	ErrClassFull = errors.New("class is full")

	// ErrSwitchWindowClosed is returned when a switch is attempted less than
	// an hour before class start. No role bypasses this.
	ErrSwitchWindowClosed = errors.New("too close to class start to switch")

	// ErrBookingNotFound is returned when the booking id does not exist.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrTerminalStatus is returned on transitions out of cancelled or
	// completed.
	ErrTerminalStatus = errors.New("booking is in a terminal status")

	// ErrLateConfirmationRequired is returned when a cancellation classifies
	// as Late and the caller has not acknowledged the penalty yet. The flow
	// is two-step: classify, prompt the member, then cancel with the flag.
	ErrLateConfirmationRequired = errors.New("late cancellation requires confirmation")

	// ErrNotSameDay is returned when a switch targets an instance on a
	// different calendar day than the original booking.
	ErrNotSameDay = errors.New("switch target must be on the same day")

	// ErrPersistenceUnavailable wraps store-level failures.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// BlockedError reports an active block with its expiry.
type BlockedError struct {
	UserID string
	Until  time.Time
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("account blocked until %s", e.Until.Format("2006-01-02 15:04"))
}

func (e *BlockedError) Unwrap() error { return ErrAccountBlocked }

// QuotaError reports quota exhaustion with the numbers behind it.
type QuotaError struct {
	UserID    string
	Used      int
	Allowance int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("class quota exhausted: %d of %d used", e.Used, e.Allowance)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExhausted }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true for conditions caused by the member's own state
// or timing, i.e. anything the app should show as a message rather than an
// incident.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNoActiveSubscription) ||
		errors.Is(err, ErrRegistrationClosed) ||
		errors.Is(err, ErrTierNotEligible) ||
		errors.Is(err, ErrQuotaExhausted) ||
		errors.Is(err, ErrAlreadyBooked) ||
		errors.Is(err, ErrAccountBlocked) ||
		errors.Is(err, ErrClassFull) ||
		errors.Is(err, ErrSwitchWindowClosed) ||
		errors.Is(err, ErrLateConfirmationRequired) ||
		errors.Is(err, ErrNotSameDay) ||
		errors.Is(err, ErrTerminalStatus)
}

// IsNotFound returns true if the error indicates a missing booking.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBookingNotFound)
}

// persistence wraps a store error into the PersistenceUnavailable category,
// preserving the original for logs.
func persistence(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
}
