package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrep/studio-engine/api"
	"github.com/reelrep/studio-engine/booking"
	"github.com/reelrep/studio-engine/schedule"
)

func TestAttendanceScheduler_SweepCompletesEndedClasses(t *testing.T) {
	// GIVEN: A confirmed booking for a class that ended hours ago and a
	// waitlisted one for the same class
	// WHEN: The sweep runs
	// THEN: Only the confirmed booking flips to completed

	e := newTestEnv(t)
	e.seedMember(t, "u1")
	e.seedMember(t, "u2")
	e.seedMember(t, "u3")
	ctx := context.Background()

	class := wedInstance(t, e)
	confirmed, err := e.svc.Book(ctx, "u1", class, e.now)
	require.NoError(t, err)
	_, err = e.svc.Book(ctx, "u2", class, e.now)
	require.NoError(t, err)
	waitlisted, err := e.svc.Book(ctx, "u3", class, e.now)
	require.NoError(t, err)
	require.True(t, waitlisted.Waitlisted)

	sweeper := api.NewAttendanceScheduler(e.svc)

	// Tuesday evening: the class has not even started.
	sweeper.Sweep(ctx, class.StartAt.Add(-24*time.Hour))
	b, _ := e.svc.Ledger.Get(ctx, confirmed.Booking.ID)
	assert.Equal(t, booking.StatusConfirmed, b.Status)

	// One hour in: inside the grace period, still untouched.
	sweeper.Sweep(ctx, class.StartAt.Add(time.Hour))
	b, _ = e.svc.Ledger.Get(ctx, confirmed.Booking.ID)
	assert.Equal(t, booking.StatusConfirmed, b.Status)

	// Past the grace period: attendance is recorded.
	sweeper.Sweep(ctx, class.StartAt.Add(3*time.Hour))
	b, _ = e.svc.Ledger.Get(ctx, confirmed.Booking.ID)
	assert.Equal(t, booking.StatusCompleted, b.Status)

	w, _ := e.svc.Ledger.Get(ctx, waitlisted.Booking.ID)
	assert.Equal(t, booking.StatusWaitlisted, w.Status, "waitlisted members never attended")

	// Idempotent on the next tick.
	sweeper.Sweep(ctx, class.StartAt.Add(4*time.Hour))
	b, _ = e.svc.Ledger.Get(ctx, confirmed.Booking.ID)
	assert.Equal(t, booking.StatusCompleted, b.Status)
}

func TestAttendanceScheduler_StartStop(t *testing.T) {
	e := newTestEnv(t)

	sweeper := api.NewAttendanceScheduler(e.svc)
	sweeper.CheckInterval = 10 * time.Millisecond
	sweeper.Start()
	time.Sleep(30 * time.Millisecond)
	sweeper.Stop() // must not hang or panic
}

// wedInstance resolves the fixture class occurrence the env's clock books
// against.
func wedInstance(t *testing.T, e *env) schedule.ClassInstance {
	t.Helper()
	tmpl, err := e.store.GetTemplate(context.Background(), "spin")
	require.NoError(t, err)
	require.NotNil(t, tmpl)
	return schedule.InstanceOn(*tmpl, time.Date(2025, time.March, 5, 0, 0, 0, 0, time.Local))
}
