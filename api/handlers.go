/*
handlers.go - HTTP API handlers for the class booking engine

PURPOSE:
  Exposes the booking engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the domain services.

ENDPOINTS:
  Schedule:
    GET    /api/schedule                       Rolling two-week timetable

  Bookings (member):
    POST   /api/classes/{instanceID}/book      Claim a seat / join waitlist
    GET    /api/bookings                       My active bookings
    GET    /api/bookings/{id}/cancel-preview   Free-or-late classification
    POST   /api/bookings/{id}/cancel           Cancel (two-step on late)
    POST   /api/bookings/{id}/switch           Same-day switch
    GET    /api/me                             My standing

  Shop:
    GET    /api/packages                       Subscription catalog
    POST   /api/packages/{id}/purchase         Buy & activate

  Achievements:
    GET    /api/achievements                   Progress overview
    POST   /api/achievements/{id}/accept       Accept a challenge

  Boss surface:
    GET    /api/admin/clients                  Client standings
    POST   /api/admin/clients/{id}/block       Manual 7-day block
    POST   /api/admin/clients/{id}/unblock     Lift block, reset strikes
    POST   /api/admin/bookings/{id}/complete   Mark attendance
    GET    /api/admin/finances                 Revenue roll-up
    GET    /api/admin/templates                Weekly timetable templates
    POST   /api/admin/templates                Create/update a template

ERROR HANDLING:
  Domain errors map to JSON with appropriate HTTP status:
  - 400: validation, policy rejections (quota, tier, window, blocked)
  - 404: unknown booking/instance/package
  - 409: conflicts (already booked, late acknowledgement pending, terminal)
  - 503: persistence unavailable
  - 500: everything else

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reelrep/studio-engine/achievements"
	"github.com/reelrep/studio-engine/booking"
	"github.com/reelrep/studio-engine/schedule"
	"github.com/reelrep/studio-engine/shop"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Templates schedule.TemplateStore
	Bookings  *booking.Service
	Tracker   *achievements.Tracker
	Shop      *shop.Service

	// Clock is the only place the API reads wall time; nil means time.Now.
	// Everything below the handlers takes "now" explicitly.
	Clock func() time.Time

	currentScenario string // last demo scenario loaded, if any
}

func (h *Handler) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

// =============================================================================
// SCHEDULE
// =============================================================================

// GetSchedule returns the rolling timetable with live enrolled counts, the
// registration-open flag per instance, and the caller's booking status.
// GET /api/schedule?weeks=2
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	weeks := schedule.DefaultWeeksAhead
	if s := r.URL.Query().Get("weeks"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 8 {
			writeError(w, http.StatusBadRequest, "weeks must be an integer between 1 and 8", err)
			return
		}
		weeks = n
	}

	templates, err := h.Templates.ListTemplates(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load timetable", err)
		return
	}

	instances := schedule.Materialize(templates, now, weeks)
	userID := userFrom(r)

	dtos := make([]ClassInstanceDTO, 0, len(instances))
	for _, ci := range instances {
		enrolled, err := h.Bookings.Ledger.EnrolledCount(ctx, ci.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load enrollment", err)
			return
		}
		ci.Enrolled = enrolled

		b, err := h.Bookings.Ledger.BookingFor(ctx, userID, ci.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load bookings", err)
			return
		}
		myStatus := ""
		if b != nil {
			myStatus = string(b.Status)
		}

		open := schedule.IsRegistrationOpenFor(ci.Date(), now)
		dtos = append(dtos, toInstanceDTO(ci, open, myStatus))
	}

	writeJSON(w, http.StatusOK, dtos)
}

// resolveInstance turns an instance ID back into a full ClassInstance by
// re-expanding its template onto the encoded date.
func (h *Handler) resolveInstance(r *http.Request, id schedule.InstanceID) (*schedule.ClassInstance, int, string) {
	templateID, date, err := schedule.ParseInstanceID(id, time.Local)
	if err != nil {
		return nil, http.StatusBadRequest, "malformed instance id"
	}
	tmpl, err := h.Templates.GetTemplate(r.Context(), templateID)
	if err != nil {
		return nil, http.StatusInternalServerError, "failed to load template"
	}
	if tmpl == nil {
		return nil, http.StatusNotFound, "class not found"
	}
	if tmpl.Weekday != date.Weekday() {
		// The encoded date does not fall on the template's weekday, so no
		// materialization could ever have produced this ID.
		return nil, http.StatusNotFound, "class not found"
	}
	ci := schedule.InstanceOn(*tmpl, date)
	return &ci, 0, ""
}

// =============================================================================
// BOOKINGS
// =============================================================================

// BookClass attempts to claim a seat on the instance.
// POST /api/classes/{instanceID}/book
func (h *Handler) BookClass(w http.ResponseWriter, r *http.Request) {
	instanceID := schedule.InstanceID(chi.URLParam(r, "instanceID"))
	ci, status, msg := h.resolveInstance(r, instanceID)
	if ci == nil {
		writeError(w, status, msg, nil)
		return
	}

	result, err := h.Bookings.Book(r.Context(), userFrom(r), *ci, h.now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, BookResponse{
		Booking:    toBookingDTO(*result.Booking),
		Waitlisted: result.Waitlisted,
	})
}

// ListBookings returns the caller's active bookings.
// GET /api/bookings
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Bookings.Ledger.ActiveBookingsFor(r.Context(), userFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]BookingDTO, 0, len(bookings))
	for _, b := range bookings {
		dtos = append(dtos, toBookingDTO(b))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PreviewCancel classifies what cancelling would cost right now.
// GET /api/bookings/{id}/cancel-preview
func (h *Handler) PreviewCancel(w http.ResponseWriter, r *http.Request) {
	id := booking.BookingID(chi.URLParam(r, "id"))
	kind, err := h.Bookings.PreviewCancellation(r.Context(), userFrom(r), id, isBoss(r), h.now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelPreviewDTO{
		Kind:                string(kind),
		AcknowledgeRequired: kind == booking.CancellationLate,
	})
}

// CancelBooking cancels the booking. Late cancellations must carry
// acknowledgeLate=true or the request fails with 409.
// POST /api/bookings/{id}/cancel
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id := booking.BookingID(chi.URLParam(r, "id"))

	var req CancelRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	result, err := h.Bookings.Cancel(r.Context(), userFrom(r), id, isBoss(r), req.AcknowledgeLate, h.now())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := CancelResponse{
		Booking: toBookingDTO(*result.Booking),
		Kind:    string(result.Kind),
	}
	if result.Promoted != nil {
		dto := toBookingDTO(*result.Promoted)
		resp.Promoted = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// SwitchBooking swaps the booking for another same-day class.
// POST /api/bookings/{id}/switch
func (h *Handler) SwitchBooking(w http.ResponseWriter, r *http.Request) {
	id := booking.BookingID(chi.URLParam(r, "id"))

	var req SwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ToInstanceID == "" {
		writeError(w, http.StatusBadRequest, "toInstanceId is required", nil)
		return
	}

	target, status, msg := h.resolveInstance(r, schedule.InstanceID(req.ToInstanceID))
	if target == nil {
		writeError(w, status, msg, nil)
		return
	}

	result, err := h.Bookings.Switch(r.Context(), userFrom(r), id, *target, h.now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BookResponse{
		Booking:    toBookingDTO(*result.Booking),
		Waitlisted: result.Waitlisted,
	})
}

// GetMe returns the caller's standing.
// GET /api/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	standing, err := h.Bookings.StandingFor(r.Context(), userFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStandingDTO(standing, h.now()))
}

// =============================================================================
// SHOP
// =============================================================================

// ListPackages returns the subscription catalog.
// GET /api/packages
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	dtos := make([]PackageDTO, 0, len(h.Shop.Catalog))
	for _, p := range h.Shop.Catalog {
		dtos = append(dtos, toPackageDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PurchasePackage buys a package and activates the subscription.
// POST /api/packages/{id}/purchase
func (h *Handler) PurchasePackage(w http.ResponseWriter, r *http.Request) {
	p, err := h.Shop.Buy(r.Context(), userFrom(r), chi.URLParam(r, "id"), h.now())
	if err != nil {
		if errors.Is(err, shop.ErrPackageNotFound) {
			writeError(w, http.StatusNotFound, "Package not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Purchase failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, PurchaseDTO{
		ID:        p.ID,
		PackageID: p.PackageID,
		Amount:    p.Amount.String(),
		Currency:  p.Currency,
		At:        p.At,
	})
}

// =============================================================================
// ACHIEVEMENTS
// =============================================================================

// ListAchievements returns the caller's progress across all active
// definitions.
// GET /api/achievements
func (h *Handler) ListAchievements(w http.ResponseWriter, r *http.Request) {
	progress, err := h.Tracker.Overview(r.Context(), userFrom(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load achievements", err)
		return
	}
	dtos := make([]AchievementProgressDTO, 0, len(progress))
	for _, p := range progress {
		dtos = append(dtos, toAchievementDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AcceptChallenge starts a challenge for the caller, superseding any active
// one.
// POST /api/achievements/{id}/accept
func (h *Handler) AcceptChallenge(w http.ResponseWriter, r *http.Request) {
	state, err := h.Tracker.AcceptChallenge(r.Context(), userFrom(r), chi.URLParam(r, "id"), h.now())
	if err != nil {
		switch {
		case errors.Is(err, achievements.ErrAchievementNotFound):
			writeError(w, http.StatusNotFound, "Achievement not found", err)
		case errors.Is(err, achievements.ErrNotAChallenge),
			errors.Is(err, achievements.ErrInactiveAchievement):
			writeError(w, http.StatusBadRequest, "Achievement cannot be accepted", err)
		default:
			writeError(w, http.StatusInternalServerError, "Failed to accept challenge", err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"achievementId": state.AchievementID,
		"acceptedAt":    state.AcceptedAt,
	})
}

// =============================================================================
// BOSS SURFACE
// =============================================================================

// ListClients returns every member's standing.
// GET /api/admin/clients
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	standings, err := h.Bookings.Standings.ListStandings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clients", err)
		return
	}
	now := h.now()
	dtos := make([]StandingDTO, 0, len(standings))
	for _, st := range standings {
		dtos = append(dtos, toStandingDTO(st, now))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// BlockClient imposes a manual 7-day block.
// POST /api/admin/clients/{id}/block
func (h *Handler) BlockClient(w http.ResponseWriter, r *http.Request) {
	var req BlockRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	standing, err := h.Bookings.StaffBlockUser(r.Context(), chi.URLParam(r, "id"), req.Reason, h.now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStandingDTO(standing, h.now()))
}

// UnblockClient lifts the block and resets the late-cancellation counter.
// POST /api/admin/clients/{id}/unblock
func (h *Handler) UnblockClient(w http.ResponseWriter, r *http.Request) {
	standing, err := h.Bookings.UnblockUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStandingDTO(standing, h.now()))
}

// CompleteBooking marks attendance on a confirmed booking.
// POST /api/admin/bookings/{id}/complete
func (h *Handler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.Complete(r.Context(), booking.BookingID(chi.URLParam(r, "id")), h.now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(*b))
}

// GetRevenue returns the finances roll-up.
// GET /api/admin/finances
func (h *Handler) GetRevenue(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Shop.Revenue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load revenue", err)
		return
	}
	byPackage := make(map[string]string, len(summary.ByPackage))
	for id, amount := range summary.ByPackage {
		byPackage[id] = amount.String()
	}
	writeJSON(w, http.StatusOK, RevenueDTO{
		Total:     summary.Total.String(),
		Currency:  summary.Currency,
		Count:     summary.Count,
		ByPackage: byPackage,
	})
}

// ListTemplates returns the weekly timetable templates.
// GET /api/admin/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Templates.ListTemplates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list templates", err)
		return
	}
	dtos := make([]TemplateDTO, 0, len(templates))
	for _, t := range templates {
		dtos = append(dtos, toTemplateDTO(t))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpsertTemplate creates or updates a weekly class template.
// POST /api/admin/templates
func (h *Handler) UpsertTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "id and title are required", nil)
		return
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		writeError(w, http.StatusBadRequest, "weekday must be 0 (Sunday) to 6 (Saturday)", nil)
		return
	}
	if req.StartHH < 0 || req.StartHH > 23 || req.StartMM < 0 || req.StartMM > 59 {
		writeError(w, http.StatusBadRequest, "invalid start time", nil)
		return
	}
	if req.Capacity < 1 {
		writeError(w, http.StatusBadRequest, "capacity must be positive", nil)
		return
	}

	if err := h.Templates.SaveTemplate(r.Context(), req.toDomain()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save template", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the booking error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case booking.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Booking not found", err)
	case errors.Is(err, booking.ErrAlreadyBooked),
		errors.Is(err, booking.ErrLateConfirmationRequired),
		errors.Is(err, booking.ErrTerminalStatus):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case booking.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, booking.ErrPersistenceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Storage unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
