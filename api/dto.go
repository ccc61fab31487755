/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupled from the domain types so
  fields can be renamed and shaped for clients without touching the engine.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients

VALIDATION:
  Validation happens in handlers; DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: uses these types
*/
package api

import (
	"time"

	"github.com/reelrep/studio-engine/achievements"
	"github.com/reelrep/studio-engine/booking"
	"github.com/reelrep/studio-engine/schedule"
	"github.com/reelrep/studio-engine/shop"
)

// =============================================================================
// SCHEDULE
// =============================================================================

// ClassInstanceDTO is one bookable occurrence as members see it.
type ClassInstanceDTO struct {
	ID               string    `json:"id"`
	TemplateID       string    `json:"templateId"`
	Title            string    `json:"title"`
	CoachID          string    `json:"coachId"`
	StartAt          time.Time `json:"startAt"`
	DurationMinutes  int       `json:"durationMinutes"`
	Capacity         int       `json:"capacity"`
	Enrolled         int       `json:"enrolled"`
	Full             bool      `json:"full"`
	Tiers            []string  `json:"tiers,omitempty"`
	Location         string    `json:"location,omitempty"`
	Category         string    `json:"category,omitempty"`
	RegistrationOpen bool      `json:"registrationOpen"`
	MyBookingStatus  string    `json:"myBookingStatus,omitempty"`
}

func toInstanceDTO(ci schedule.ClassInstance, open bool, myStatus string) ClassInstanceDTO {
	tiers := make([]string, 0, len(ci.Tiers))
	for _, t := range ci.Tiers {
		tiers = append(tiers, string(t))
	}
	return ClassInstanceDTO{
		ID:               string(ci.ID),
		TemplateID:       string(ci.Template),
		Title:            ci.Title,
		CoachID:          ci.CoachID,
		StartAt:          ci.StartAt,
		DurationMinutes:  int(ci.Duration.Minutes()),
		Capacity:         ci.Capacity,
		Enrolled:         ci.Enrolled,
		Full:             ci.IsFull(),
		Tiers:            tiers,
		Location:         ci.Location,
		Category:         ci.Category,
		RegistrationOpen: open,
		MyBookingStatus:  myStatus,
	}
}

// TemplateDTO mirrors a weekly class template (admin surface).
type TemplateDTO struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	CoachID         string   `json:"coachId"`
	Weekday         int      `json:"weekday"` // 0=Sunday .. 6=Saturday
	StartHH         int      `json:"startHH"`
	StartMM         int      `json:"startMM"`
	DurationMinutes int      `json:"durationMinutes"`
	Capacity        int      `json:"capacity"`
	Tiers           []string `json:"tiers,omitempty"`
	Location        string   `json:"location,omitempty"`
	Category        string   `json:"category,omitempty"`
}

func (t TemplateDTO) toDomain() schedule.ClassTemplate {
	tiers := make([]schedule.Tier, 0, len(t.Tiers))
	for _, s := range t.Tiers {
		tiers = append(tiers, schedule.Tier(s))
	}
	return schedule.ClassTemplate{
		ID:       schedule.TemplateID(t.ID),
		Title:    t.Title,
		CoachID:  t.CoachID,
		Weekday:  time.Weekday(t.Weekday),
		StartHH:  t.StartHH,
		StartMM:  t.StartMM,
		Duration: time.Duration(t.DurationMinutes) * time.Minute,
		Capacity: t.Capacity,
		Tiers:    tiers,
		Location: t.Location,
		Category: t.Category,
	}
}

func toTemplateDTO(t schedule.ClassTemplate) TemplateDTO {
	tiers := make([]string, 0, len(t.Tiers))
	for _, tier := range t.Tiers {
		tiers = append(tiers, string(tier))
	}
	return TemplateDTO{
		ID:              string(t.ID),
		Title:           t.Title,
		CoachID:         t.CoachID,
		Weekday:         int(t.Weekday),
		StartHH:         t.StartHH,
		StartMM:         t.StartMM,
		DurationMinutes: int(t.Duration.Minutes()),
		Capacity:        t.Capacity,
		Tiers:           tiers,
		Location:        t.Location,
		Category:        t.Category,
	}
}

// =============================================================================
// BOOKINGS
// =============================================================================

type BookingDTO struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instanceId"`
	ClassStart time.Time `json:"classStart"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toBookingDTO(b booking.Booking) BookingDTO {
	return BookingDTO{
		ID:         string(b.ID),
		InstanceID: string(b.InstanceID),
		ClassStart: b.ClassStart,
		Status:     string(b.Status),
		CreatedAt:  b.CreatedAt,
	}
}

// BookResponse reports the outcome of a booking attempt.
type BookResponse struct {
	Booking    BookingDTO `json:"booking"`
	Waitlisted bool       `json:"waitlisted"`
}

// CancelPreviewDTO is step one of the two-step cancellation.
type CancelPreviewDTO struct {
	Kind                string `json:"kind"` // "free" | "late"
	AcknowledgeRequired bool   `json:"acknowledgeRequired"`
}

// CancelRequest carries the member's late-fee acknowledgement.
type CancelRequest struct {
	AcknowledgeLate bool `json:"acknowledgeLate"`
}

// CancelResponse reports what the cancellation cost and triggered.
type CancelResponse struct {
	Booking  BookingDTO  `json:"booking"`
	Kind     string      `json:"kind"`
	Promoted *BookingDTO `json:"promoted,omitempty"`
}

// SwitchRequest names the same-day class to move to.
type SwitchRequest struct {
	ToInstanceID string `json:"toInstanceId"`
}

// =============================================================================
// STANDING / CLIENTS
// =============================================================================

type SubscriptionDTO struct {
	Tier            string    `json:"tier"`
	Status          string    `json:"status"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
	ClassesPerMonth int       `json:"classesPerMonth"`
	ClassesUsed     int       `json:"classesUsed"`
	QuotaLeft       int       `json:"quotaLeft"`
}

type StandingDTO struct {
	UserID            string           `json:"userId"`
	Name              string           `json:"name,omitempty"`
	Subscription      *SubscriptionDTO `json:"subscription,omitempty"`
	LateCancellations int              `json:"lateCancellations"`
	BlockEndDate      *time.Time       `json:"blockEndDate,omitempty"`
	BlockReason       string           `json:"blockReason,omitempty"`
	Blocked           bool             `json:"blocked"`
}

func toStandingDTO(st booking.UserStanding, now time.Time) StandingDTO {
	dto := StandingDTO{
		UserID:            st.UserID,
		Name:              st.Name,
		LateCancellations: st.LateCancellations,
		BlockEndDate:      st.BlockEndDate,
		BlockReason:       st.BlockReason,
		Blocked:           st.BlockedAt(now),
	}
	if sub := st.Subscription; sub != nil {
		dto.Subscription = &SubscriptionDTO{
			Tier:            string(sub.Tier),
			Status:          string(sub.Status),
			StartDate:       sub.StartDate,
			EndDate:         sub.EndDate,
			ClassesPerMonth: sub.ClassesPerMonth,
			ClassesUsed:     sub.ClassesUsed,
			QuotaLeft:       sub.QuotaLeft(),
		}
	}
	return dto
}

// BlockRequest carries the staff block reason.
type BlockRequest struct {
	Reason string `json:"reason"`
}

// =============================================================================
// SHOP
// =============================================================================

type PackageDTO struct {
	ID              string   `json:"id"`
	Tier            string   `json:"tier"`
	Name            string   `json:"name"`
	Price           string   `json:"price"` // exact decimal, serialized as string
	Currency        string   `json:"currency"`
	Term            string   `json:"term"`
	ClassesPerMonth int      `json:"classesPerMonth"`
	Features        []string `json:"features,omitempty"`
	Popular         bool     `json:"popular,omitempty"`
}

func toPackageDTO(p shop.Package) PackageDTO {
	return PackageDTO{
		ID:              p.ID,
		Tier:            string(p.Tier),
		Name:            p.Name,
		Price:           p.Price.String(),
		Currency:        p.Currency,
		Term:            string(p.Term),
		ClassesPerMonth: p.ClassesPerMonth,
		Features:        p.Features,
		Popular:         p.Popular,
	}
}

type PurchaseDTO struct {
	ID        string    `json:"id"`
	PackageID string    `json:"packageId"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	At        time.Time `json:"at"`
}

// RevenueDTO is the boss finances roll-up.
type RevenueDTO struct {
	Total     string            `json:"total"`
	Currency  string            `json:"currency"`
	Count     int               `json:"count"`
	ByPackage map[string]string `json:"byPackage"`
}

// =============================================================================
// ACHIEVEMENTS
// =============================================================================

type AchievementProgressDTO struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Icon        string     `json:"icon,omitempty"`
	TaskType    string     `json:"taskType"`
	Requirement int        `json:"requirement"`
	Progress    int        `json:"progress"`
	Completed   bool       `json:"completed"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
	EarnedAt    *time.Time `json:"earnedAt,omitempty"`
}

func toAchievementDTO(p achievements.Progress) AchievementProgressDTO {
	return AchievementProgressDTO{
		ID:          p.Definition.ID,
		Title:       p.Definition.Title,
		Description: p.Definition.Description,
		Icon:        p.Definition.Icon,
		TaskType:    string(p.Definition.Task),
		Requirement: p.Definition.Requirement,
		Progress:    p.Current,
		Completed:   p.Completed,
		AcceptedAt:  p.AcceptedAt,
		EarnedAt:    p.EarnedAt,
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
