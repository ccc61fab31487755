// Package memory provides in-memory store implementations (tests/dev).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/reelrep/studio-engine/achievements"
	"github.com/reelrep/studio-engine/booking"
	"github.com/reelrep/studio-engine/schedule"
	"github.com/reelrep/studio-engine/shop"
)

// Store holds every collection behind one mutex. It implements
// booking.BookingStore, booking.StandingStore, schedule.TemplateStore,
// achievements.Store and shop.PurchaseStore.
type Store struct {
	mu        sync.RWMutex
	bookings  map[booking.BookingID]booking.Booking
	standings map[string]booking.UserStanding
	templates map[schedule.TemplateID]schedule.ClassTemplate
	defs      map[string]achievements.Definition
	states    map[stateKey]achievements.State
	purchases []shop.Purchase
}

type stateKey struct {
	UserID        string
	AchievementID string
}

func New() *Store {
	return &Store{
		bookings:  make(map[booking.BookingID]booking.Booking),
		standings: make(map[string]booking.UserStanding),
		templates: make(map[schedule.TemplateID]schedule.ClassTemplate),
		defs:      make(map[string]achievements.Definition),
		states:    make(map[stateKey]achievements.State),
	}
}

// =============================================================================
// BOOKING STORE
// =============================================================================

func (s *Store) Insert(_ context.Context, b booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Active-claim uniqueness, checked atomically with the write.
	for _, existing := range s.bookings {
		if existing.UserID == b.UserID &&
			existing.InstanceID == b.InstanceID &&
			existing.Status.Active() {
			return booking.ErrAlreadyBooked
		}
	}
	s.bookings[b.ID] = b
	return nil
}

func (s *Store) UpdateStatus(_ context.Context, id booking.BookingID, status booking.BookingStatus, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return booking.ErrBookingNotFound
	}
	b.Status = status
	b.UpdatedAt = updatedAt
	s.bookings[id] = b
	return nil
}

func (s *Store) Get(_ context.Context, id booking.BookingID) (*booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	out := b
	return &out, nil
}

func (s *Store) ActiveFor(_ context.Context, userID string, instanceID schedule.InstanceID) (*booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.bookings {
		if b.UserID == userID && b.InstanceID == instanceID && b.Status.Active() {
			out := b
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) ListByUser(_ context.Context, userID string) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []booking.Booking
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListByInstance(_ context.Context, instanceID schedule.InstanceID) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []booking.Booking
	for _, b := range s.bookings {
		if b.InstanceID == instanceID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CountByStatus(_ context.Context, userID string, status booking.BookingStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, b := range s.bookings {
		if b.UserID == userID && b.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountConfirmed(_ context.Context, instanceID schedule.InstanceID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, b := range s.bookings {
		if b.InstanceID == instanceID && b.Status == booking.StatusConfirmed {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListConfirmedBefore(_ context.Context, cutoff time.Time) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []booking.Booking
	for _, b := range s.bookings {
		if b.Status == booking.StatusConfirmed && b.ClassStart.Before(cutoff) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassStart.Before(out[j].ClassStart) })
	return out, nil
}

// =============================================================================
// STANDING STORE
// =============================================================================

func (s *Store) GetStanding(_ context.Context, userID string) (booking.UserStanding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.standings[userID]; ok {
		return st, nil
	}
	return booking.UserStanding{UserID: userID}, nil
}

func (s *Store) SaveStanding(_ context.Context, st booking.UserStanding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.Subscription != nil {
		sub := *st.Subscription
		st.Subscription = &sub
	}
	s.standings[st.UserID] = st
	return nil
}

func (s *Store) ListStandings(_ context.Context) ([]booking.UserStanding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]booking.UserStanding, 0, len(s.standings))
	for _, st := range s.standings {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// =============================================================================
// TEMPLATE STORE
// =============================================================================

func (s *Store) SaveTemplate(_ context.Context, t schedule.ClassTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
	return nil
}

func (s *Store) GetTemplate(_ context.Context, id schedule.TemplateID) (*schedule.ClassTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return nil, nil
	}
	out := t
	return &out, nil
}

func (s *Store) ListTemplates(_ context.Context) ([]schedule.ClassTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]schedule.ClassTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// ACHIEVEMENT STORE
// =============================================================================

func (s *Store) SaveDefinition(_ context.Context, d achievements.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[d.ID] = d
	return nil
}

func (s *Store) ListDefinitions(_ context.Context) ([]achievements.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]achievements.Definition, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetDefinition(_ context.Context, id string) (*achievements.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.defs[id]
	if !ok {
		return nil, nil
	}
	out := d
	return &out, nil
}

func (s *Store) GetState(_ context.Context, userID, achievementID string) (*achievements.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[stateKey{UserID: userID, AchievementID: achievementID}]
	if !ok {
		return nil, nil
	}
	out := st
	return &out, nil
}

func (s *Store) ListStates(_ context.Context, userID string) ([]achievements.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []achievements.State
	for k, st := range s.states {
		if k.UserID == userID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AchievementID < out[j].AchievementID })
	return out, nil
}

func (s *Store) SaveState(_ context.Context, st achievements.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[stateKey{UserID: st.UserID, AchievementID: st.AchievementID}] = st
	return nil
}

// =============================================================================
// PURCHASE STORE
// =============================================================================

func (s *Store) InsertPurchase(_ context.Context, p shop.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases = append(s.purchases, p)
	return nil
}

func (s *Store) ListPurchases(_ context.Context) ([]shop.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]shop.Purchase, len(s.purchases))
	copy(out, s.purchases)
	return out, nil
}
