package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrep/studio-engine/achievements"
	"github.com/reelrep/studio-engine/api"
	"github.com/reelrep/studio-engine/booking"
	"github.com/reelrep/studio-engine/notify"
	"github.com/reelrep/studio-engine/schedule"
	"github.com/reelrep/studio-engine/shop"
	"github.com/reelrep/studio-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testSecret = "test-secret"

// env bundles a wired router with the knobs the tests turn.
type env struct {
	router http.Handler
	store  *memory.Store
	svc    *booking.Service
	now    time.Time // mutable fake clock
}

// Monday 2025-03-03 09:00 local. The fixture class runs Wednesday 18:00 the
// same operating week, so registration is open and cancellation is free.
func newTestEnv(t *testing.T) *env {
	t.Helper()

	store := memory.New()
	svc := &booking.Service{
		Ledger:    booking.NewLedger(store),
		Standings: store,
		Publisher: notify.NopPublisher{},
	}
	e := &env{
		store: store,
		svc:   svc,
		now:   time.Date(2025, time.March, 3, 9, 0, 0, 0, time.Local),
	}

	h := &api.Handler{
		Templates: store,
		Bookings:  svc,
		Tracker:   &achievements.Tracker{Store: store, Attendance: zeroAttendance{}},
		Shop:      &shop.Service{Catalog: shop.DefaultCatalog(), Purchases: store, Standings: store},
		Clock:     func() time.Time { return e.now },
	}
	e.router = api.NewRouter(h, testSecret, []string{"*"})

	ctx := context.Background()
	require.NoError(t, store.SaveTemplate(ctx, schedule.ClassTemplate{
		ID: "spin", Title: "Spinning", CoachID: "coach-1",
		Weekday: time.Wednesday, StartHH: 18, StartMM: 0,
		Duration: 50 * time.Minute, Capacity: 2,
	}))
	for _, def := range achievements.DefaultDefinitions(e.now) {
		require.NoError(t, store.SaveDefinition(ctx, def))
	}

	return e
}

type zeroAttendance struct{}

func (zeroAttendance) CompletedClassCount(context.Context, string) (int, error) { return 0, nil }

func (e *env) seedMember(t *testing.T, userID string) {
	t.Helper()
	require.NoError(t, e.store.SaveStanding(context.Background(), booking.UserStanding{
		UserID: userID,
		Subscription: &booking.Subscription{
			Tier: schedule.TierBasic, Status: booking.SubscriptionActive,
			StartDate: e.now.AddDate(0, -1, 0), EndDate: e.now.AddDate(0, 1, 0),
			ClassesPerMonth: 12,
		},
	}))
}

func signToken(t *testing.T, sub, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

// do performs a request with an optional bearer token and JSON body.
func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

const spinWednesday = "spin@2025-03-05"

// =============================================================================
// AUTHENTICATION
// =============================================================================

func TestAPI_RequiresBearerToken(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/schedule", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/schedule", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_RejectsForeignSignature(t *testing.T) {
	e := newTestEnv(t)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"})
	signed, err := tok.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	rec := e.do(t, http.MethodGet, "/api/schedule", signed, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_AdminSurfaceIsBossOnly(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/admin/clients", signToken(t, "u1", ""), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/admin/clients", signToken(t, "staff-1", api.RoleBoss), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// SCHEDULE
// =============================================================================

func TestAPI_GetSchedule(t *testing.T) {
	e := newTestEnv(t)
	e.seedMember(t, "u1")
	member := signToken(t, "u1", "")

	rec := e.do(t, http.MethodGet, "/api/schedule", member, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	instances := decode[[]api.ClassInstanceDTO](t, rec)
	require.Len(t, instances, 2, "two-week default window, one weekly class")
	assert.Equal(t, spinWednesday, instances[0].ID)
	assert.True(t, instances[0].RegistrationOpen, "current week is open")
	assert.Equal(t, 0, instances[0].Enrolled)
	assert.Empty(t, instances[0].MyBookingStatus)

	// A booking shows up as the caller's status and in the enrolled count.
	rec = e.do(t, http.MethodPost, "/api/classes/"+spinWednesday+"/book", member, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/schedule", member, nil)
	instances = decode[[]api.ClassInstanceDTO](t, rec)
	assert.Equal(t, 1, instances[0].Enrolled)
	assert.Equal(t, "confirmed", instances[0].MyBookingStatus)
}

func TestAPI_GetScheduleWeeksValidation(t *testing.T) {
	e := newTestEnv(t)
	member := signToken(t, "u1", "")

	rec := e.do(t, http.MethodGet, "/api/schedule?weeks=0", member, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/schedule?weeks=4", member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.ClassInstanceDTO](t, rec), 4)
}

// faultyBookingStore simulates a storage outage on the active-claim lookup.
type faultyBookingStore struct {
	*memory.Store
}

func (faultyBookingStore) ActiveFor(context.Context, string, schedule.InstanceID) (*booking.Booking, error) {
	return nil, errors.New("storage offline")
}

func TestAPI_GetScheduleSurfacesStorageFailure(t *testing.T) {
	// A broken booking store must come back as a 500, never render the member
	// as simply "not booked".

	store := memory.New()
	svc := &booking.Service{
		Ledger:    booking.NewLedger(faultyBookingStore{store}),
		Standings: store,
		Publisher: notify.NopPublisher{},
	}
	now := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.Local)
	h := &api.Handler{
		Templates: store,
		Bookings:  svc,
		Tracker:   &achievements.Tracker{Store: store, Attendance: zeroAttendance{}},
		Shop:      &shop.Service{Catalog: shop.DefaultCatalog(), Purchases: store, Standings: store},
		Clock:     func() time.Time { return now },
	}
	router := api.NewRouter(h, testSecret, []string{"*"})

	require.NoError(t, store.SaveTemplate(context.Background(), schedule.ClassTemplate{
		ID: "spin", Title: "Spinning", Weekday: time.Wednesday, StartHH: 18,
		Duration: 50 * time.Minute, Capacity: 2,
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/schedule", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "u1", ""))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// =============================================================================
// BOOKING LIFECYCLE
// =============================================================================

func TestAPI_BookAndListBookings(t *testing.T) {
	e := newTestEnv(t)
	e.seedMember(t, "u1")
	member := signToken(t, "u1", "")

	rec := e.do(t, http.MethodPost, "/api/classes/"+spinWednesday+"/book", member, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	res := decode[api.BookResponse](t, rec)
	assert.False(t, res.Waitlisted)
	assert.Equal(t, "confirmed", res.Booking.Status)

	// Double booking conflicts.
	rec = e.do(t, http.MethodPost, "/api/classes/"+spinWednesday+"/book", member, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/bookings", member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.BookingDTO](t, rec), 1)

	// The spent credit shows on /me.
	rec = e.do(t, http.MethodGet, "/api/me", member, nil)
	me := decode[api.StandingDTO](t, rec)
	require.NotNil(t, me.Subscription)
	assert.Equal(t, 1, me.Subscription.ClassesUsed)
	assert.Equal(t, 11, me.Subscription.QuotaLeft)
}

func TestAPI_BookRejections(t *testing.T) {
	e := newTestEnv(t)
	member := signToken(t, "u1", "")

	// No subscription: policy rejection, 400.
	rec := e.do(t, http.MethodPost, "/api/classes/"+spinWednesday+"/book", member, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	e.seedMember(t, "u1")

	// Unknown template and malformed ids.
	rec = e.do(t, http.MethodPost, "/api/classes/yoga@2025-03-05/book", member, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/classes/garbage/book", member, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Date that is not the template's weekday cannot exist.
	rec = e.do(t, http.MethodPost, "/api/classes/spin@2025-03-06/book", member, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_FullClassWaitlists(t *testing.T) {
	e := newTestEnv(t)
	for _, u := range []string{"u1", "u2", "u3"} {
		e.seedMember(t, u)
		rec := e.do(t, http.MethodPost, "/api/classes/"+spinWednesday+"/book", signToken(t, u, ""), nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		res := decode[api.BookResponse](t, rec)
		assert.Equal(t, u == "u3", res.Waitlisted, "capacity 2: third member waits")
	}
}

func TestAPI_CancelFlow(t *testing.T) {
	e := newTestEnv(t)
	e.seedMember(t, "u1")
	member := signToken(t, "u1", "")

	rec := e.do(t, http.MethodPost, "/api/classes/"+spinWednesday+"/book", member, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	bookingID := decode[api.BookResponse](t, rec).Booking.ID

	// Monday: preview says free, cancel refunds.
	rec = e.do(t, http.MethodGet, "/api/bookings/"+bookingID+"/cancel-preview", member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decode[api.CancelPreviewDTO](t, rec)
	assert.Equal(t, "free", preview.Kind)
	assert.False(t, preview.AcknowledgeRequired)

	rec = e.do(t, http.MethodPost, "/api/bookings/"+bookingID+"/cancel", member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "free", decode[api.CancelResponse](t, rec).Kind)

	rec = e.do(t, http.MethodGet, "/api/me", member, nil)
	assert.Equal(t, 0, decode[api.StandingDTO](t, rec).Subscription.ClassesUsed)
}

func TestAPI_LateCancelNeedsAcknowledgement(t *testing.T) {
	e := newTestEnv(t)
	e.seedMember(t, "u1")
	member := signToken(t, "u1", "")

	rec := e.do(t, http.MethodPost, "/api/classes/"+spinWednesday+"/book", member, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	bookingID := decode[api.BookResponse](t, rec).Booking.ID

	// Wednesday 14:00, four hours to start: late territory.
	e.now = time.Date(2025, time.March, 5, 14, 0, 0, 0, time.Local)

	rec = e.do(t, http.MethodGet, "/api/bookings/"+bookingID+"/cancel-preview", member, nil)
	preview := decode[api.CancelPreviewDTO](t, rec)
	assert.Equal(t, "late", preview.Kind)
	assert.True(t, preview.AcknowledgeRequired)

	rec = e.do(t, http.MethodPost, "/api/bookings/"+bookingID+"/cancel", member, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "no acknowledgement, no cancel")

	rec = e.do(t, http.MethodPost, "/api/bookings/"+bookingID+"/cancel", member, api.CancelRequest{AcknowledgeLate: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "late", decode[api.CancelResponse](t, rec).Kind)

	rec = e.do(t, http.MethodGet, "/api/me", member, nil)
	me := decode[api.StandingDTO](t, rec)
	assert.Equal(t, 1, me.LateCancellations)
	assert.Equal(t, 1, me.Subscription.ClassesUsed, "no refund on late")
}

func TestAPI_ForeignBookingIs404(t *testing.T) {
	e := newTestEnv(t)
	e.seedMember(t, "u1")
	e.seedMember(t, "u2")

	rec := e.do(t, http.MethodPost, "/api/classes/"+spinWednesday+"/book", signToken(t, "u1", ""), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	bookingID := decode[api.BookResponse](t, rec).Booking.ID

	rec = e.do(t, http.MethodPost, "/api/bookings/"+bookingID+"/cancel", signToken(t, "u2", ""), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "existence must not leak")
}

func TestAPI_SwitchBooking(t *testing.T) {
	e := newTestEnv(t)
	e.seedMember(t, "u1")
	member := signToken(t, "u1", "")

	// Second Wednesday class to switch into.
	require.NoError(t, e.store.SaveTemplate(context.Background(), schedule.ClassTemplate{
		ID: "yoga", Title: "Yoga", CoachID: "coach-2",
		Weekday: time.Wednesday, StartHH: 20, StartMM: 0,
		Duration: 60 * time.Minute, Capacity: 10,
	}))

	rec := e.do(t, http.MethodPost, "/api/classes/"+spinWednesday+"/book", member, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	bookingID := decode[api.BookResponse](t, rec).Booking.ID

	rec = e.do(t, http.MethodPost, "/api/bookings/"+bookingID+"/switch", member, api.SwitchRequest{ToInstanceID: "yoga@2025-03-05"})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	res := decode[api.BookResponse](t, rec)
	assert.Equal(t, "yoga@2025-03-05", res.Booking.InstanceID)

	// Quota untouched by the swap.
	rec = e.do(t, http.MethodGet, "/api/me", member, nil)
	assert.Equal(t, 1, decode[api.StandingDTO](t, rec).Subscription.ClassesUsed)

	// Missing target is a validation error.
	rec = e.do(t, http.MethodPost, "/api/bookings/"+bookingID+"/switch", member, api.SwitchRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SHOP
// =============================================================================

func TestAPI_ShopPurchaseActivatesSubscription(t *testing.T) {
	e := newTestEnv(t)
	member := signToken(t, "u1", "")

	rec := e.do(t, http.MethodGet, "/api/packages", member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	packages := decode[[]api.PackageDTO](t, rec)
	require.Len(t, packages, 5)

	rec = e.do(t, http.MethodPost, "/api/packages/premium-monthly/purchase", member, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	p := decode[api.PurchaseDTO](t, rec)
	assert.Equal(t, "299", p.Amount)

	rec = e.do(t, http.MethodGet, "/api/me", member, nil)
	me := decode[api.StandingDTO](t, rec)
	require.NotNil(t, me.Subscription)
	assert.Equal(t, "premium", me.Subscription.Tier)

	// Fresh subscription books immediately.
	rec = e.do(t, http.MethodPost, "/api/classes/"+spinWednesday+"/book", member, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/packages/gold-plated/purchase", member, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_RevenueRollup(t *testing.T) {
	e := newTestEnv(t)

	e.do(t, http.MethodPost, "/api/packages/basic-monthly/purchase", signToken(t, "u1", ""), nil)
	e.do(t, http.MethodPost, "/api/packages/basic-monthly/purchase", signToken(t, "u2", ""), nil)

	rec := e.do(t, http.MethodGet, "/api/admin/finances", signToken(t, "staff-1", api.RoleBoss), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rev := decode[api.RevenueDTO](t, rec)
	assert.Equal(t, "398", rev.Total)
	assert.Equal(t, 2, rev.Count)
	assert.Equal(t, "398", rev.ByPackage["basic-monthly"])
}

// =============================================================================
// ACHIEVEMENTS
// =============================================================================

func TestAPI_Achievements(t *testing.T) {
	e := newTestEnv(t)
	member := signToken(t, "u1", "")

	rec := e.do(t, http.MethodGet, "/api/achievements", member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]api.AchievementProgressDTO](t, rec)
	require.NotEmpty(t, list)

	rec = e.do(t, http.MethodPost, "/api/achievements/thirty-day-streak/accept", member, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/achievements/regular/accept", member, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "not a challenge")

	rec = e.do(t, http.MethodPost, "/api/achievements/nope/accept", member, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// BOSS SURFACE
// =============================================================================

func TestAPI_BlockAndUnblockClient(t *testing.T) {
	e := newTestEnv(t)
	e.seedMember(t, "u1")
	boss := signToken(t, "staff-1", api.RoleBoss)
	member := signToken(t, "u1", "")

	rec := e.do(t, http.MethodPost, "/api/admin/clients/u1/block", boss, api.BlockRequest{Reason: "gym etiquette"})
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[api.StandingDTO](t, rec)
	assert.True(t, st.Blocked)
	assert.Equal(t, "gym etiquette", st.BlockReason)

	rec = e.do(t, http.MethodPost, "/api/classes/"+spinWednesday+"/book", member, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "blocked members cannot book")

	rec = e.do(t, http.MethodPost, "/api/admin/clients/u1/unblock", boss, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[api.StandingDTO](t, rec).Blocked)

	rec = e.do(t, http.MethodPost, "/api/classes/"+spinWednesday+"/book", member, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAPI_CompleteBooking(t *testing.T) {
	e := newTestEnv(t)
	e.seedMember(t, "u1")
	boss := signToken(t, "staff-1", api.RoleBoss)

	rec := e.do(t, http.MethodPost, "/api/classes/"+spinWednesday+"/book", signToken(t, "u1", ""), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	bookingID := decode[api.BookResponse](t, rec).Booking.ID

	rec = e.do(t, http.MethodPost, "/api/admin/bookings/"+bookingID+"/complete", boss, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decode[api.BookingDTO](t, rec).Status)

	// Completion is terminal: cancelling now conflicts.
	rec = e.do(t, http.MethodPost, "/api/bookings/"+bookingID+"/cancel", signToken(t, "u1", ""), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_TemplateAdmin(t *testing.T) {
	e := newTestEnv(t)
	boss := signToken(t, "staff-1", api.RoleBoss)

	body := api.TemplateDTO{
		ID: "pilates", Title: "Pilates", CoachID: "coach-3",
		Weekday: 4, StartHH: 9, StartMM: 30, DurationMinutes: 55, Capacity: 8,
		Tiers: []string{"premium", "vip"},
	}
	rec := e.do(t, http.MethodPost, "/api/admin/templates", boss, body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/admin/templates", boss, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.TemplateDTO](t, rec), 2)

	for _, bad := range []api.TemplateDTO{
		{ID: "", Title: "x", Capacity: 1},
		{ID: "x", Title: "x", Weekday: 9, Capacity: 1},
		{ID: "x", Title: "x", StartHH: 25, Capacity: 1},
		{ID: "x", Title: "x", Capacity: 0},
	} {
		rec = e.do(t, http.MethodPost, "/api/admin/templates", boss, bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, fmt.Sprintf("%+v", bad))
	}
}
