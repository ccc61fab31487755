/*
evaluate.go - Capacity & eligibility evaluator

PURPOSE:
  The single pure decision function for a booking attempt. It answers
  Accepted / Waitlisted / Rejected(reason) from already-fetched state and has
  no side effects; the service layer owns every mutation that follows.

CHECK ORDER (first failing check wins, nothing partial happens on rejection):
  1. NoActiveSubscription
  2. RegistrationClosed     (weekly release gate)
  3. TierNotEligible
  4. QuotaExhausted
  5. AlreadyBooked          (re-checked by the ledger at write time)
  6. AccountBlocked

  All pass + seat free     -> Accepted
  All pass + class full    -> Waitlisted (never a hard ClassFull here)

WHY PURE?
  Threading "now", the live enrolled count, and the already-booked flag in as
  parameters keeps the evaluator deterministic and testable without clock or
  store mocking.
*/
package booking

import (
	"time"

	"github.com/reelrep/studio-engine/schedule"
)

// =============================================================================
// DECISION
// =============================================================================

type Outcome string

const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeWaitlisted Outcome = "waitlisted"
	OutcomeRejected   Outcome = "rejected"
)

// Decision is the evaluator's verdict. Reason is set only for rejections and
// always satisfies errors.Is against the sentinel taxonomy.
type Decision struct {
	Outcome Outcome
	Reason  error
}

func accepted() Decision          { return Decision{Outcome: OutcomeAccepted} }
func waitlisted() Decision        { return Decision{Outcome: OutcomeWaitlisted} }
func rejected(why error) Decision { return Decision{Outcome: OutcomeRejected, Reason: why} }

// =============================================================================
// EVALUATOR
// =============================================================================

// Evaluate decides a booking attempt by the member described by standing
// against the given class instance.
//
// enrolled is the live confirmed count for the instance (derived from the
// ledger by the caller); alreadyBooked is whether an active booking exists
// for this (user, instance) pair.
func Evaluate(standing UserStanding, instance schedule.ClassInstance, enrolled int, alreadyBooked bool, now time.Time) Decision {
	sub := standing.Subscription

	if !sub.ActiveAt(now) {
		return rejected(ErrNoActiveSubscription)
	}

	if !schedule.IsRegistrationOpenFor(instance.Date(), now) {
		return rejected(ErrRegistrationClosed)
	}

	if !instance.AllowsTier(sub.Tier) {
		return rejected(ErrTierNotEligible)
	}

	if sub.ClassesUsed >= sub.ClassesPerMonth {
		return rejected(&QuotaError{
			UserID:    standing.UserID,
			Used:      sub.ClassesUsed,
			Allowance: sub.ClassesPerMonth,
		})
	}

	if alreadyBooked {
		return rejected(ErrAlreadyBooked)
	}

	if standing.BlockedAt(now) {
		return rejected(&BlockedError{
			UserID: standing.UserID,
			Until:  *standing.BlockEndDate,
			Reason: standing.BlockReason,
		})
	}

	if enrolled >= instance.Capacity {
		return waitlisted()
	}
	return accepted()
}
