/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for testing and demos. Each scenario creates a weekly timetable,
	members with subscriptions, and bookings that demonstrate specific
	policy behavior.

AVAILABLE SCENARIOS:

	fresh-studio:  Weekly timetable only, no members yet
	busy-week:     Timetable + subscribed members, one class near capacity
	strike-watch:  Member two late cancellations away from a block

HOW SCENARIOS WORK:
 1. Upsert timetable templates
 2. Save member standings with active subscriptions
 3. Append bookings against this week's instances

USAGE VIA API:

	POST /api/admin/scenarios/load
	{"scenario_id": "busy-week"}

NOTE:

	Scenarios write over member standings. Only use in development/demo
	environments; the endpoint is boss-gated for that reason.

SEE ALSO:
  - server.go: scenario routes (admin group)
  - schedule/materializer.go: how templates become bookable instances
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/reelrep/studio-engine/booking"
	"github.com/reelrep/studio-engine/schedule"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-studio",
		Name:        "Fresh Studio",
		Description: "Weekly timetable only, no members yet",
	},
	{
		ID:          "busy-week",
		Name:        "Busy Week",
		Description: "Subscribed members with bookings, one class near capacity",
	},
	{
		ID:          "strike-watch",
		Name:        "Strike Watch",
		Description: "Member one late cancellation away from a 72h block",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario populates the store with the requested scenario's data.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	now := h.now()

	var err error
	switch req.ScenarioID {
	case "fresh-studio":
		err = h.loadFreshStudio(ctx)
	case "busy-week":
		err = h.loadBusyWeek(ctx, now)
	case "strike-watch":
		err = h.loadStrikeWatch(ctx, now)
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown scenario %q", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func demoTimetable() []schedule.ClassTemplate {
	return []schedule.ClassTemplate{
		{
			ID: "yoga-mon", Title: "Morning Yoga", CoachID: "coach-maya",
			Weekday: time.Monday, StartHH: 8, StartMM: 0,
			Duration: 60 * time.Minute, Capacity: 16,
			Location: "Studio A", Category: "yoga",
		},
		{
			ID: "hiit-tue", Title: "HIIT Blast", CoachID: "coach-omer",
			Weekday: time.Tuesday, StartHH: 18, StartMM: 30,
			Duration: 45 * time.Minute, Capacity: 12,
			Location: "Main Hall", Category: "hiit",
		},
		{
			ID: "spin-wed", Title: "Spin Power", CoachID: "coach-dana",
			Weekday: time.Wednesday, StartHH: 19, StartMM: 0,
			Duration: 50 * time.Minute, Capacity: 3,
			Location: "Spin Room", Category: "cycling",
		},
		{
			ID: "pilates-thu", Title: "Reformer Pilates", CoachID: "coach-maya",
			Weekday: time.Thursday, StartHH: 9, StartMM: 30,
			Duration: 55 * time.Minute, Capacity: 8,
			Tiers:    []schedule.Tier{schedule.TierPremium, schedule.TierVIP},
			Location: "Studio B", Category: "pilates",
		},
		{
			ID: "strength-fri", Title: "Strength Foundations", CoachID: "coach-omer",
			Weekday: time.Friday, StartHH: 7, StartMM: 0,
			Duration: 60 * time.Minute, Capacity: 14,
			Location: "Main Hall", Category: "strength",
		},
	}
}

func demoMember(id, name string, tier schedule.Tier, used int, now time.Time) booking.UserStanding {
	return booking.UserStanding{
		UserID: id,
		Name:   name,
		Subscription: &booking.Subscription{
			Tier:            tier,
			Status:          booking.SubscriptionActive,
			StartDate:       now.AddDate(0, -1, 0),
			EndDate:         now.AddDate(0, 1, 0),
			ClassesPerMonth: 12,
			ClassesUsed:     used,
		},
	}
}

func (h *Handler) loadFreshStudio(ctx context.Context) error {
	for _, t := range demoTimetable() {
		if err := h.Templates.SaveTemplate(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadBusyWeek(ctx context.Context, now time.Time) error {
	if err := h.loadFreshStudio(ctx); err != nil {
		return err
	}

	members := []booking.UserStanding{
		demoMember("member-noa", "Noa Levi", schedule.TierPremium, 3, now),
		demoMember("member-avi", "Avi Cohen", schedule.TierBasic, 7, now),
		demoMember("member-tal", "Tal Mizrahi", schedule.TierVIP, 1, now),
		demoMember("member-rina", "Rina Katz", schedule.TierBasic, 0, now),
	}
	for _, m := range members {
		if err := h.Bookings.Standings.SaveStanding(ctx, m); err != nil {
			return err
		}
	}

	// Fill the small spin class this week: three seats, fourth member lands
	// on the waitlist.
	spin, err := h.Templates.GetTemplate(ctx, "spin-wed")
	if err != nil {
		return err
	}
	if spin == nil {
		return fmt.Errorf("spin template missing")
	}
	// Policy rejections (e.g. the registration window, depending on when the
	// demo is loaded) are tolerated; real failures are not.
	instance := schedule.InstanceOn(*spin, nextOccurrence(time.Wednesday, now))
	for _, m := range members {
		if _, err := h.Bookings.Book(ctx, m.UserID, instance, now); err != nil && !booking.IsClientError(err) {
			return err
		}
	}
	return nil
}

func (h *Handler) loadStrikeWatch(ctx context.Context, now time.Time) error {
	if err := h.loadFreshStudio(ctx); err != nil {
		return err
	}

	m := demoMember("member-dor", "Dor Shalev", schedule.TierPremium, 5, now)
	m.LateCancellations = 2
	return h.Bookings.Standings.SaveStanding(ctx, m)
}

// nextOccurrence returns the next date (incl. today) falling on the weekday.
func nextOccurrence(wd time.Weekday, now time.Time) time.Time {
	d := now
	for d.Weekday() != wd {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
