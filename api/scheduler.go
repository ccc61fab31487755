/*
scheduler.go - Automated attendance reconciliation

PURPOSE:
  Periodically sweeps confirmed bookings whose class has already started
  past a grace period and marks them completed. Completion feeds the
  classes-attended achievement counter and closes the booking state machine
  without requiring staff to tap a button for every class.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Grace period covers the class duration plus a buffer, so a booking is
    only completed once the class is over
  - Idempotent: Complete on an already-completed booking is a no-op

USAGE:
  scheduler := NewAttendanceScheduler(svc)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CompleteBooking endpoint (manual completion)
  - booking/ledger.go: ConfirmedStartedBefore / Complete
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/reelrep/studio-engine/booking"
)

// AttendanceScheduler sweeps ended classes to completed.
type AttendanceScheduler struct {
	Bookings      *booking.Service
	CheckInterval time.Duration
	Grace         time.Duration // how long after class START a booking counts as attended

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAttendanceScheduler creates a scheduler with sensible defaults: sweep
// every 15 minutes, complete bookings two hours after class start (longer
// than any class on the timetable).
func NewAttendanceScheduler(svc *booking.Service) *AttendanceScheduler {
	return &AttendanceScheduler{
		Bookings:      svc,
		CheckInterval: 15 * time.Minute,
		Grace:         2 * time.Hour,
		stop:          make(chan struct{}),
	}
}

// Start begins the background sweep.
func (as *AttendanceScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)
	go as.run()

	log.Printf("[attendance] started, interval %v, grace %v", as.CheckInterval, as.Grace)
}

// Stop halts the sweep and waits for the in-flight pass to finish.
func (as *AttendanceScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		log.Println("[attendance] stopped")
	}
}

func (as *AttendanceScheduler) run() {
	defer as.wg.Done()

	for {
		select {
		case <-as.ticker.C:
			as.Sweep(context.Background(), time.Now())
		case <-as.stop:
			return
		}
	}
}

// Sweep completes every confirmed booking whose class started more than
// Grace ago. Exposed for tests and for a manual trigger.
func (as *AttendanceScheduler) Sweep(ctx context.Context, now time.Time) {
	cutoff := now.Add(-as.Grace)
	ended, err := as.Bookings.Ledger.ConfirmedStartedBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[attendance] sweep failed: %v", err)
		return
	}

	completed := 0
	for _, b := range ended {
		if _, err := as.Bookings.Complete(ctx, b.ID, now); err != nil {
			log.Printf("[attendance] complete %s failed: %v", b.ID, err)
			continue
		}
		completed++
	}
	if completed > 0 {
		log.Printf("[attendance] completed %d booking(s)", completed)
	}
}
