package booking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrep/studio-engine/booking"
	"github.com/reelrep/studio-engine/notify"
	"github.com/reelrep/studio-engine/schedule"
	"github.com/reelrep/studio-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// capturingPublisher records calendar-sync events instead of sending them.
type capturingPublisher struct {
	events []notify.Event
	fail   bool
}

func (p *capturingPublisher) Publish(_ context.Context, ev notify.Event) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) types() []notify.EventType {
	var out []notify.EventType
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestService(t *testing.T) (*booking.Service, *memory.Store, *capturingPublisher) {
	t.Helper()
	store := memory.New()
	pub := &capturingPublisher{}
	svc := &booking.Service{
		Ledger:    booking.NewLedger(store),
		Standings: store,
		Publisher: pub,
	}
	return svc, store, pub
}

func saveMember(t *testing.T, store *memory.Store, userID string, used int) {
	t.Helper()
	require.NoError(t, store.SaveStanding(context.Background(), activeMember(userID, schedule.TierBasic, used, 12)))
}

func instanceFor(id schedule.TemplateID, weekday time.Weekday, hh int, capacity int) schedule.ClassInstance {
	// All fixture classes live in the operating week Sun 2025-03-02 onward.
	date := time.Date(2025, time.March, 2+int(weekday), 0, 0, 0, 0, time.UTC)
	tmpl := schedule.ClassTemplate{
		ID: id, Title: string(id), Weekday: weekday,
		StartHH: hh, Duration: 50 * time.Minute, Capacity: capacity,
	}
	return schedule.InstanceOn(tmpl, date)
}

// bookNow is Monday morning; wedClass starts Wednesday 18:00 the same week.
var bookNow = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

func wedClass(capacity int) schedule.ClassInstance {
	return instanceFor("spin", time.Wednesday, 18, capacity)
}

// =============================================================================
// BOOK
// =============================================================================

func TestService_BookConsumesQuota(t *testing.T) {
	svc, store, pub := newTestService(t)
	ctx := context.Background()
	saveMember(t, store, "u1", 3)

	res, err := svc.Book(ctx, "u1", wedClass(10), bookNow)
	require.NoError(t, err)
	assert.False(t, res.Waitlisted)
	assert.Equal(t, booking.StatusConfirmed, res.Booking.Status)

	standing, _ := store.GetStanding(ctx, "u1")
	assert.Equal(t, 4, standing.Subscription.ClassesUsed, "credit spent at creation")

	require.Len(t, pub.events, 1)
	assert.Equal(t, notify.EventBookingConfirmed, pub.events[0].Type)
}

func TestService_BookFullClassWaitlistsAndStillConsumesQuota(t *testing.T) {
	// GIVEN: A 1-seat class already taken
	// WHEN: A second member books
	// THEN: They are waitlisted AND their credit is spent, so a later
	// promotion needs no quota change.

	svc, store, pub := newTestService(t)
	ctx := context.Background()
	saveMember(t, store, "u1", 0)
	saveMember(t, store, "u2", 0)
	class := wedClass(1)

	_, err := svc.Book(ctx, "u1", class, bookNow)
	require.NoError(t, err)

	res, err := svc.Book(ctx, "u2", class, bookNow.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, res.Waitlisted)

	standing, _ := store.GetStanding(ctx, "u2")
	assert.Equal(t, 1, standing.Subscription.ClassesUsed)
	assert.Equal(t, notify.EventBookingWaitlisted, pub.events[1].Type)
}

func TestService_BookWithoutSubscription(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Book(context.Background(), "stranger", wedClass(10), bookNow)
	assert.ErrorIs(t, err, booking.ErrNoActiveSubscription)
}

func TestService_BookSurvivesBrokerOutage(t *testing.T) {
	// Calendar sync is best-effort; a dead broker must not fail the booking.
	svc, store, pub := newTestService(t)
	pub.fail = true
	saveMember(t, store, "u1", 0)

	_, err := svc.Book(context.Background(), "u1", wedClass(10), bookNow)
	assert.NoError(t, err)
}

// =============================================================================
// CANCEL
// =============================================================================

func TestService_FreeCancelRefundsQuota(t *testing.T) {
	svc, store, pub := newTestService(t)
	ctx := context.Background()
	saveMember(t, store, "u1", 0)

	res, err := svc.Book(ctx, "u1", wedClass(10), bookNow)
	require.NoError(t, err)

	// Monday morning, class Wednesday evening - comfortably free.
	out, err := svc.Cancel(ctx, "u1", res.Booking.ID, false, false, bookNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, booking.CancellationFree, out.Kind)
	assert.Nil(t, out.Promoted)

	standing, _ := store.GetStanding(ctx, "u1")
	assert.Equal(t, 0, standing.Subscription.ClassesUsed, "free cancel refunds the credit")
	assert.Zero(t, standing.LateCancellations)
	assert.Contains(t, pub.types(), notify.EventBookingCancelled)
}

func TestService_LateCancelIsTwoStep(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	saveMember(t, store, "u1", 0)

	res, err := svc.Book(ctx, "u1", wedClass(10), bookNow)
	require.NoError(t, err)

	lateNow := res.Booking.ClassStart.Add(-5 * time.Hour)

	// Step 1: preview says Late.
	kind, err := svc.PreviewCancellation(ctx, "u1", res.Booking.ID, false, lateNow)
	require.NoError(t, err)
	assert.Equal(t, booking.CancellationLate, kind)

	// Cancelling without acknowledging the penalty changes nothing.
	_, err = svc.Cancel(ctx, "u1", res.Booking.ID, false, false, lateNow)
	assert.ErrorIs(t, err, booking.ErrLateConfirmationRequired)

	b, _ := svc.Ledger.Get(ctx, res.Booking.ID)
	assert.Equal(t, booking.StatusConfirmed, b.Status, "nothing partial on rejection")
	standing, _ := store.GetStanding(ctx, "u1")
	assert.Zero(t, standing.LateCancellations)

	// Step 2: acknowledged. No refund, one strike.
	out, err := svc.Cancel(ctx, "u1", res.Booking.ID, false, true, lateNow)
	require.NoError(t, err)
	assert.Equal(t, booking.CancellationLate, out.Kind)

	standing, _ = store.GetStanding(ctx, "u1")
	assert.Equal(t, 1, standing.Subscription.ClassesUsed, "late cancel keeps the credit spent")
	assert.Equal(t, 1, standing.LateCancellations)
}

func TestService_RecancelIsIdempotentAndUnclassified(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	saveMember(t, store, "u1", 0)

	res, err := svc.Book(ctx, "u1", wedClass(10), bookNow)
	require.NoError(t, err)

	lateNow := res.Booking.ClassStart.Add(-time.Hour)
	out, err := svc.Cancel(ctx, "u1", res.Booking.ID, false, true, lateNow)
	require.NoError(t, err)
	require.Equal(t, booking.CancellationLate, out.Kind)

	// The repeat is a no-op: not reported as Free, no second strike, no
	// refund of the kept credit.
	again, err := svc.Cancel(ctx, "u1", res.Booking.ID, false, false, lateNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, booking.CancellationNone, again.Kind)

	standing, _ := store.GetStanding(ctx, "u1")
	assert.Equal(t, 1, standing.LateCancellations)
	assert.Equal(t, 1, standing.Subscription.ClassesUsed)
}

func TestService_ThirdLateStrikeBlocksFurtherBooking(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	m := activeMember("u1", schedule.TierBasic, 0, 12)
	m.LateCancellations = 2
	require.NoError(t, store.SaveStanding(ctx, m))

	res, err := svc.Book(ctx, "u1", wedClass(10), bookNow)
	require.NoError(t, err)

	lateNow := res.Booking.ClassStart.Add(-time.Hour)
	_, err = svc.Cancel(ctx, "u1", res.Booking.ID, false, true, lateNow)
	require.NoError(t, err)

	standing, _ := store.GetStanding(ctx, "u1")
	require.NotNil(t, standing.BlockEndDate)
	assert.Equal(t, lateNow.Add(72*time.Hour), *standing.BlockEndDate)

	// Blocked members cannot book a Thursday class even though the window is
	// open for it.
	_, err = svc.Book(ctx, "u1", instanceFor("hiit", time.Thursday, 19, 10), lateNow.Add(time.Hour))
	assert.ErrorIs(t, err, booking.ErrAccountBlocked)
}

func TestService_PrivilegedCancelIsAlwaysFree(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	saveMember(t, store, "u1", 0)

	res, err := svc.Book(ctx, "u1", wedClass(10), bookNow)
	require.NoError(t, err)

	// Minutes before start, staff cancels on the member's behalf.
	out, err := svc.Cancel(ctx, "staff", res.Booking.ID, true, false, res.Booking.ClassStart.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, booking.CancellationFree, out.Kind)

	standing, _ := store.GetStanding(ctx, "u1")
	assert.Zero(t, standing.LateCancellations)
	assert.Equal(t, 0, standing.Subscription.ClassesUsed)
}

func TestService_WaitlistCancelIsAlwaysFree(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	saveMember(t, store, "u1", 0)
	saveMember(t, store, "u2", 0)
	class := wedClass(1)

	svc.Book(ctx, "u1", class, bookNow)
	res, err := svc.Book(ctx, "u2", class, bookNow.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, res.Waitlisted)

	// Even inside the 6h window: releasing a waitlist spot costs nothing.
	out, err := svc.Cancel(ctx, "u2", res.Booking.ID, false, false, res.Booking.ClassStart.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, booking.CancellationFree, out.Kind)
	assert.Nil(t, out.Promoted, "no seat was freed")

	standing, _ := store.GetStanding(ctx, "u2")
	assert.Equal(t, 0, standing.Subscription.ClassesUsed)
}

// =============================================================================
// WAITLIST PROMOTION
// =============================================================================

func TestService_FreedSeatPromotesEarliestWaitlisted(t *testing.T) {
	// GIVEN: u1 holds the only seat, u2 then u3 wait
	// WHEN: u1 cancels
	// THEN: u2 (earliest) is confirmed, u3 keeps waiting, enrollment stays 1

	svc, store, pub := newTestService(t)
	ctx := context.Background()
	for _, id := range []string{"u1", "u2", "u3"} {
		saveMember(t, store, id, 0)
	}
	class := wedClass(1)

	first, err := svc.Book(ctx, "u1", class, bookNow)
	require.NoError(t, err)
	second, err := svc.Book(ctx, "u2", class, bookNow.Add(time.Second))
	require.NoError(t, err)
	third, err := svc.Book(ctx, "u3", class, bookNow.Add(2*time.Second))
	require.NoError(t, err)

	out, err := svc.Cancel(ctx, "u1", first.Booking.ID, false, false, bookNow.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, out.Promoted)
	assert.Equal(t, second.Booking.ID, out.Promoted.ID)
	assert.Equal(t, booking.StatusConfirmed, out.Promoted.Status)

	still, _ := svc.Ledger.Get(ctx, third.Booking.ID)
	assert.Equal(t, booking.StatusWaitlisted, still.Status)

	n, _ := svc.Ledger.EnrolledCount(ctx, class.ID)
	assert.Equal(t, 1, n)

	// Promotion is quota-neutral: u2 paid on creation.
	standing, _ := store.GetStanding(ctx, "u2")
	assert.Equal(t, 1, standing.Subscription.ClassesUsed)
	assert.Contains(t, pub.types(), notify.EventBookingPromoted)
}

// =============================================================================
// SWITCH
// =============================================================================

func TestService_SwitchSameDayIsQuotaNeutral(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	saveMember(t, store, "u1", 0)

	res, err := svc.Book(ctx, "u1", wedClass(10), bookNow)
	require.NoError(t, err)

	target := instanceFor("yoga", time.Wednesday, 20, 10)
	switchNow := res.Booking.ClassStart.Add(-2 * time.Hour)

	out, err := svc.Switch(ctx, "u1", res.Booking.ID, target, switchNow)
	require.NoError(t, err)
	assert.False(t, out.Waitlisted)
	assert.Equal(t, target.ID, out.Booking.InstanceID)

	old, _ := svc.Ledger.Get(ctx, res.Booking.ID)
	assert.Equal(t, booking.StatusCancelled, old.Status)

	standing, _ := store.GetStanding(ctx, "u1")
	assert.Equal(t, 1, standing.Subscription.ClassesUsed, "switch neither refunds nor charges")
	assert.Zero(t, standing.LateCancellations, "switch is penalty-free")
}

func TestService_SwitchGates(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	saveMember(t, store, "u1", 0)

	res, err := svc.Book(ctx, "u1", wedClass(10), bookNow)
	require.NoError(t, err)

	// Different calendar day.
	thursday := instanceFor("hiit", time.Thursday, 19, 10)
	_, err = svc.Switch(ctx, "u1", res.Booking.ID, thursday, bookNow)
	assert.ErrorIs(t, err, booking.ErrNotSameDay)

	// Under an hour to the original start: closed for everyone.
	target := instanceFor("yoga", time.Wednesday, 20, 10)
	_, err = svc.Switch(ctx, "u1", res.Booking.ID, target, res.Booking.ClassStart.Add(-30*time.Minute))
	assert.ErrorIs(t, err, booking.ErrSwitchWindowClosed)

	// The original booking is untouched by rejected switches.
	b, _ := svc.Ledger.Get(ctx, res.Booking.ID)
	assert.Equal(t, booking.StatusConfirmed, b.Status)
}

func TestService_SwitchOntoHeldClassLeavesOriginalIntact(t *testing.T) {
	// GIVEN: A member with active bookings for two same-day classes
	// WHEN: They switch one onto the other
	// THEN: The switch is rejected and NEITHER booking changes

	svc, store, _ := newTestService(t)
	ctx := context.Background()
	saveMember(t, store, "u1", 0)

	spin := wedClass(10)
	yoga := instanceFor("yoga", time.Wednesday, 20, 10)
	first, err := svc.Book(ctx, "u1", spin, bookNow)
	require.NoError(t, err)
	second, err := svc.Book(ctx, "u1", yoga, bookNow.Add(time.Minute))
	require.NoError(t, err)

	_, err = svc.Switch(ctx, "u1", first.Booking.ID, yoga, spin.StartAt.Add(-2*time.Hour))
	assert.ErrorIs(t, err, booking.ErrAlreadyBooked)

	b, _ := svc.Ledger.Get(ctx, first.Booking.ID)
	assert.Equal(t, booking.StatusConfirmed, b.Status, "nothing partial on rejection")
	b, _ = svc.Ledger.Get(ctx, second.Booking.ID)
	assert.Equal(t, booking.StatusConfirmed, b.Status)

	// Switching a booking onto its own class is the same rejection.
	_, err = svc.Switch(ctx, "u1", first.Booking.ID, spin, spin.StartAt.Add(-2*time.Hour))
	assert.ErrorIs(t, err, booking.ErrAlreadyBooked)
}

func TestService_SwitchIntoFullClassWaitlists(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	saveMember(t, store, "u1", 0)
	saveMember(t, store, "u2", 0)

	target := instanceFor("yoga", time.Wednesday, 20, 1)
	_, err := svc.Book(ctx, "u2", target, bookNow)
	require.NoError(t, err)

	res, err := svc.Book(ctx, "u1", wedClass(10), bookNow)
	require.NoError(t, err)

	out, err := svc.Switch(ctx, "u1", res.Booking.ID, target, res.Booking.ClassStart.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.True(t, out.Waitlisted)
}

// =============================================================================
// OWNERSHIP & STAFF SURFACE
// =============================================================================

func TestService_ForeignBookingsAreInvisible(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	saveMember(t, store, "u1", 0)

	res, err := svc.Book(ctx, "u1", wedClass(10), bookNow)
	require.NoError(t, err)

	// Another member probing the id learns nothing.
	_, err = svc.Cancel(ctx, "u2", res.Booking.ID, false, false, bookNow)
	assert.ErrorIs(t, err, booking.ErrBookingNotFound)

	// Staff (privileged) can see and act.
	kind, err := svc.PreviewCancellation(ctx, "staff", res.Booking.ID, true, bookNow)
	require.NoError(t, err)
	assert.Equal(t, booking.CancellationFree, kind)
}

func TestService_StaffBlockAndUnblock(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	saveMember(t, store, "u1", 0)

	standing, err := svc.StaffBlockUser(ctx, "u1", "no-show pattern", bookNow)
	require.NoError(t, err)
	require.NotNil(t, standing.BlockEndDate)
	assert.Equal(t, bookNow.Add(7*24*time.Hour), *standing.BlockEndDate)

	_, err = svc.Book(ctx, "u1", wedClass(10), bookNow.Add(time.Hour))
	assert.ErrorIs(t, err, booking.ErrAccountBlocked)

	// Unblock lifts the block AND resets strikes - the only reset path.
	m, _ := store.GetStanding(ctx, "u1")
	m.LateCancellations = 2
	require.NoError(t, store.SaveStanding(ctx, m))

	standing, err = svc.UnblockUser(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, standing.BlockEndDate)
	assert.Zero(t, standing.LateCancellations)

	_, err = svc.Book(ctx, "u1", wedClass(10), bookNow.Add(2*time.Hour))
	assert.NoError(t, err)
}
