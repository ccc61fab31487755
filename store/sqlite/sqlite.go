/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

INTERFACES IMPLEMENTED:
  booking.BookingStore:   append-only booking ledger rows
  booking.StandingStore:  per-member policy state (flattened subscription)
  schedule.TemplateStore: weekly class templates
  achievements.Store:     catalog + per-member achievement state
  shop.PurchaseStore:     recorded sales

APPEND-ONLY ENFORCEMENT:
  bookings has no DELETE anywhere, and the only UPDATE touches status +
  updated_at. The active-claim rule (one confirmed/waitlisted booking per
  user+instance) is a partial unique index, so it holds even when two
  requests race past the evaluator.

WAL MODE:
  Opened with WAL for read concurrency; a single writer at a time.

MIGRATION:
  Schema is auto-migrated on New(). For production, move to versioned
  migrations (golang-migrate, goose).

SEE ALSO:
  - booking/store.go: interface definitions
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/reelrep/studio-engine/achievements"
	"github.com/reelrep/studio-engine/booking"
	"github.com/reelrep/studio-engine/schedule"
	"github.com/reelrep/studio-engine/shop"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Bookings (append-only; status is the only mutable column)
	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		instance_id TEXT NOT NULL,
		class_start TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_user
		ON bookings(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_bookings_instance
		ON bookings(instance_id, created_at ASC);
	CREATE INDEX IF NOT EXISTS idx_bookings_instance_status
		ON bookings(instance_id, status);

	-- CRITICAL: one active claim per (user, instance). The evaluator checks
	-- this too, but only this index closes the race between two concurrent
	-- booking attempts.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_claim
		ON bookings(user_id, instance_id)
		WHERE status IN ('confirmed', 'waitlisted');

	-- Member standings (subscription flattened into nullable columns)
	CREATE TABLE IF NOT EXISTS standings (
		user_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		late_cancellations INTEGER NOT NULL DEFAULT 0,
		block_end_date TEXT,
		block_reason TEXT NOT NULL DEFAULT '',
		sub_tier TEXT,
		sub_status TEXT,
		sub_start TEXT,
		sub_end TEXT,
		sub_classes_per_month INTEGER,
		sub_classes_used INTEGER
	);

	-- Weekly class templates
	CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		coach_id TEXT NOT NULL,
		weekday INTEGER NOT NULL,
		start_hh INTEGER NOT NULL,
		start_mm INTEGER NOT NULL,
		duration_min INTEGER NOT NULL,
		capacity INTEGER NOT NULL,
		tiers_json TEXT NOT NULL DEFAULT '[]',
		location TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT ''
	);

	-- Achievement catalog
	CREATE TABLE IF NOT EXISTS achievement_defs (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		icon TEXT NOT NULL DEFAULT '',
		task_type TEXT NOT NULL,
		requirement INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	-- Per-member achievement state
	CREATE TABLE IF NOT EXISTS achievement_states (
		user_id TEXT NOT NULL,
		achievement_id TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		active_challenge BOOLEAN NOT NULL DEFAULT FALSE,
		accepted_at TEXT,
		earned_at TEXT,
		PRIMARY KEY (user_id, achievement_id)
	);

	-- Recorded sales
	CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		package_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_purchases_user
		ON purchases(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BOOKING STORE (booking.BookingStore interface)
// =============================================================================

func (s *Store) Insert(ctx context.Context, b booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO bookings (id, user_id, instance_id, class_start, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		string(b.ID),
		b.UserID,
		string(b.InstanceID),
		b.ClassStart.Format(time.RFC3339),
		string(b.Status),
		b.CreatedAt.Format(time.RFC3339Nano),
		b.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isActiveClaimConflict(err) {
			return booking.ErrAlreadyBooked
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, id booking.BookingID, status booking.BookingStatus, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), updatedAt.Format(time.RFC3339Nano), string(id),
	)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return booking.ErrBookingNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, instance_id, class_start, status, created_at, updated_at
		 FROM bookings WHERE id = ?`, string(id))
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, booking.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	return b, nil
}

func (s *Store) ActiveFor(ctx context.Context, userID string, instanceID schedule.InstanceID) (*booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, instance_id, class_start, status, created_at, updated_at
		 FROM bookings
		 WHERE user_id = ? AND instance_id = ? AND status IN ('confirmed', 'waitlisted')`,
		userID, string(instanceID))
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active booking: %w", err)
	}
	return b, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryBookings(ctx,
		`SELECT id, user_id, instance_id, class_start, status, created_at, updated_at
		 FROM bookings WHERE user_id = ?
		 ORDER BY created_at DESC`, userID)
}

func (s *Store) ListByInstance(ctx context.Context, instanceID schedule.InstanceID) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryBookings(ctx,
		`SELECT id, user_id, instance_id, class_start, status, created_at, updated_at
		 FROM bookings WHERE instance_id = ?
		 ORDER BY created_at ASC`, string(instanceID))
}

func (s *Store) CountByStatus(ctx context.Context, userID string, status booking.BookingStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE user_id = ? AND status = ?`,
		userID, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return n, nil
}

func (s *Store) CountConfirmed(ctx context.Context, instanceID schedule.InstanceID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE instance_id = ? AND status = 'confirmed'`,
		string(instanceID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count confirmed bookings: %w", err)
	}
	return n, nil
}

func (s *Store) ListConfirmedBefore(ctx context.Context, cutoff time.Time) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryBookings(ctx,
		`SELECT id, user_id, instance_id, class_start, status, created_at, updated_at
		 FROM bookings WHERE status = 'confirmed' AND class_start < ?
		 ORDER BY class_start ASC`, cutoff.Format(time.RFC3339))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*booking.Booking, error) {
	var b booking.Booking
	var id, instanceID, classStart, status, createdAt, updatedAt string
	if err := row.Scan(&id, &b.UserID, &instanceID, &classStart, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	b.ID = booking.BookingID(id)
	b.InstanceID = schedule.InstanceID(instanceID)
	b.Status = booking.BookingStatus(status)

	var err error
	if b.ClassStart, err = time.Parse(time.RFC3339, classStart); err != nil {
		return nil, fmt.Errorf("bad class_start %q: %w", classStart, err)
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("bad updated_at %q: %w", updatedAt, err)
	}
	return &b, nil
}

func (s *Store) queryBookings(ctx context.Context, query string, args ...any) ([]booking.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var out []booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// =============================================================================
// STANDING STORE (booking.StandingStore interface)
// =============================================================================

func (s *Store) GetStanding(ctx context.Context, userID string) (booking.UserStanding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getStanding(ctx, userID)
}

func (s *Store) getStanding(ctx context.Context, userID string) (booking.UserStanding, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, name, late_cancellations, block_end_date, block_reason,
		        sub_tier, sub_status, sub_start, sub_end, sub_classes_per_month, sub_classes_used
		 FROM standings WHERE user_id = ?`, userID)

	var st booking.UserStanding
	var blockEnd, subTier, subStatus, subStart, subEnd sql.NullString
	var subPerMonth, subUsed sql.NullInt64
	err := row.Scan(&st.UserID, &st.Name, &st.LateCancellations, &blockEnd, &st.BlockReason,
		&subTier, &subStatus, &subStart, &subEnd, &subPerMonth, &subUsed)
	if err == sql.ErrNoRows {
		return booking.UserStanding{UserID: userID}, nil
	}
	if err != nil {
		return booking.UserStanding{}, fmt.Errorf("failed to load standing: %w", err)
	}

	if blockEnd.Valid {
		t, err := time.Parse(time.RFC3339, blockEnd.String)
		if err != nil {
			return booking.UserStanding{}, fmt.Errorf("bad block_end_date %q: %w", blockEnd.String, err)
		}
		st.BlockEndDate = &t
	}
	if subTier.Valid {
		sub := booking.Subscription{
			Tier:            schedule.Tier(subTier.String),
			Status:          booking.SubscriptionStatus(subStatus.String),
			ClassesPerMonth: int(subPerMonth.Int64),
			ClassesUsed:     int(subUsed.Int64),
		}
		if sub.StartDate, err = time.Parse(time.RFC3339, subStart.String); err != nil {
			return booking.UserStanding{}, fmt.Errorf("bad sub_start %q: %w", subStart.String, err)
		}
		if sub.EndDate, err = time.Parse(time.RFC3339, subEnd.String); err != nil {
			return booking.UserStanding{}, fmt.Errorf("bad sub_end %q: %w", subEnd.String, err)
		}
		st.Subscription = &sub
	}
	return st, nil
}

func (s *Store) SaveStanding(ctx context.Context, st booking.UserStanding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var blockEnd sql.NullString
	if st.BlockEndDate != nil {
		blockEnd = sql.NullString{String: st.BlockEndDate.Format(time.RFC3339), Valid: true}
	}
	var subTier, subStatus, subStart, subEnd sql.NullString
	var subPerMonth, subUsed sql.NullInt64
	if sub := st.Subscription; sub != nil {
		subTier = sql.NullString{String: string(sub.Tier), Valid: true}
		subStatus = sql.NullString{String: string(sub.Status), Valid: true}
		subStart = sql.NullString{String: sub.StartDate.Format(time.RFC3339), Valid: true}
		subEnd = sql.NullString{String: sub.EndDate.Format(time.RFC3339), Valid: true}
		subPerMonth = sql.NullInt64{Int64: int64(sub.ClassesPerMonth), Valid: true}
		subUsed = sql.NullInt64{Int64: int64(sub.ClassesUsed), Valid: true}
	}

	query := `
		INSERT INTO standings
		(user_id, name, late_cancellations, block_end_date, block_reason,
		 sub_tier, sub_status, sub_start, sub_end, sub_classes_per_month, sub_classes_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			late_cancellations = excluded.late_cancellations,
			block_end_date = excluded.block_end_date,
			block_reason = excluded.block_reason,
			sub_tier = excluded.sub_tier,
			sub_status = excluded.sub_status,
			sub_start = excluded.sub_start,
			sub_end = excluded.sub_end,
			sub_classes_per_month = excluded.sub_classes_per_month,
			sub_classes_used = excluded.sub_classes_used
	`
	_, err := s.db.ExecContext(ctx, query,
		st.UserID, st.Name, st.LateCancellations, blockEnd, st.BlockReason,
		subTier, subStatus, subStart, subEnd, subPerMonth, subUsed)
	if err != nil {
		return fmt.Errorf("failed to save standing: %w", err)
	}
	return nil
}

func (s *Store) ListStandings(ctx context.Context) ([]booking.UserStanding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM standings ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list standings: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]booking.UserStanding, 0, len(ids))
	for _, id := range ids {
		st, err := s.getStanding(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// =============================================================================
// TEMPLATE STORE (schedule.TemplateStore interface)
// =============================================================================

func (s *Store) SaveTemplate(ctx context.Context, t schedule.ClassTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tiersJSON, err := json.Marshal(t.Tiers)
	if err != nil {
		return fmt.Errorf("failed to encode tiers: %w", err)
	}
	query := `
		INSERT INTO templates
		(id, title, coach_id, weekday, start_hh, start_mm, duration_min, capacity, tiers_json, location, category)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			coach_id = excluded.coach_id,
			weekday = excluded.weekday,
			start_hh = excluded.start_hh,
			start_mm = excluded.start_mm,
			duration_min = excluded.duration_min,
			capacity = excluded.capacity,
			tiers_json = excluded.tiers_json,
			location = excluded.location,
			category = excluded.category
	`
	_, err = s.db.ExecContext(ctx, query,
		string(t.ID), t.Title, t.CoachID, int(t.Weekday), t.StartHH, t.StartMM,
		int(t.Duration/time.Minute), t.Capacity, string(tiersJSON), t.Location, t.Category)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id schedule.TemplateID) (*schedule.ClassTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, coach_id, weekday, start_hh, start_mm, duration_min, capacity, tiers_json, location, category
		 FROM templates WHERE id = ?`, string(id))
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	return t, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]schedule.ClassTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, coach_id, weekday, start_hh, start_mm, duration_min, capacity, tiers_json, location, category
		 FROM templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []schedule.ClassTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTemplate(row rowScanner) (*schedule.ClassTemplate, error) {
	var t schedule.ClassTemplate
	var id, tiersJSON string
	var weekday, durationMin int
	if err := row.Scan(&id, &t.Title, &t.CoachID, &weekday, &t.StartHH, &t.StartMM,
		&durationMin, &t.Capacity, &tiersJSON, &t.Location, &t.Category); err != nil {
		return nil, err
	}
	t.ID = schedule.TemplateID(id)
	t.Weekday = time.Weekday(weekday)
	t.Duration = time.Duration(durationMin) * time.Minute
	if err := json.Unmarshal([]byte(tiersJSON), &t.Tiers); err != nil {
		return nil, fmt.Errorf("bad tiers_json %q: %w", tiersJSON, err)
	}
	return &t, nil
}

// =============================================================================
// ACHIEVEMENT STORE (achievements.Store interface)
// =============================================================================

func (s *Store) SaveDefinition(ctx context.Context, d achievements.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO achievement_defs (id, title, description, icon, task_type, requirement, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			icon = excluded.icon,
			task_type = excluded.task_type,
			requirement = excluded.requirement,
			active = excluded.active
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Title, d.Description, d.Icon, string(d.Task), d.Requirement, d.Active,
		d.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save achievement definition: %w", err)
	}
	return nil
}

func (s *Store) ListDefinitions(ctx context.Context) ([]achievements.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, icon, task_type, requirement, active, created_at
		 FROM achievement_defs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievement definitions: %w", err)
	}
	defer rows.Close()

	var out []achievements.Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *Store) GetDefinition(ctx context.Context, id string) (*achievements.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, icon, task_type, requirement, active, created_at
		 FROM achievement_defs WHERE id = ?`, id)
	d, err := scanDefinition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load achievement definition: %w", err)
	}
	return d, nil
}

func scanDefinition(row rowScanner) (*achievements.Definition, error) {
	var d achievements.Definition
	var task, createdAt string
	if err := row.Scan(&d.ID, &d.Title, &d.Description, &d.Icon, &task, &d.Requirement, &d.Active, &createdAt); err != nil {
		return nil, err
	}
	d.Task = achievements.TaskType(task)
	var err error
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	return &d, nil
}

func (s *Store) GetState(ctx context.Context, userID, achievementID string) (*achievements.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, achievement_id, progress, completed, active_challenge, accepted_at, earned_at
		 FROM achievement_states WHERE user_id = ? AND achievement_id = ?`, userID, achievementID)
	st, err := scanState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load achievement state: %w", err)
	}
	return st, nil
}

func (s *Store) ListStates(ctx context.Context, userID string) ([]achievements.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, achievement_id, progress, completed, active_challenge, accepted_at, earned_at
		 FROM achievement_states WHERE user_id = ? ORDER BY achievement_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievement states: %w", err)
	}
	defer rows.Close()

	var out []achievements.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func (s *Store) SaveState(ctx context.Context, st achievements.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var accepted, earned sql.NullString
	if st.AcceptedAt != nil {
		accepted = sql.NullString{String: st.AcceptedAt.Format(time.RFC3339), Valid: true}
	}
	if st.EarnedAt != nil {
		earned = sql.NullString{String: st.EarnedAt.Format(time.RFC3339), Valid: true}
	}

	query := `
		INSERT INTO achievement_states
		(user_id, achievement_id, progress, completed, active_challenge, accepted_at, earned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, achievement_id) DO UPDATE SET
			progress = excluded.progress,
			completed = excluded.completed,
			active_challenge = excluded.active_challenge,
			accepted_at = excluded.accepted_at,
			earned_at = excluded.earned_at
	`
	_, err := s.db.ExecContext(ctx, query,
		st.UserID, st.AchievementID, st.Progress, st.Completed, st.ActiveChallenge, accepted, earned)
	if err != nil {
		return fmt.Errorf("failed to save achievement state: %w", err)
	}
	return nil
}

func scanState(row rowScanner) (*achievements.State, error) {
	var st achievements.State
	var accepted, earned sql.NullString
	if err := row.Scan(&st.UserID, &st.AchievementID, &st.Progress, &st.Completed,
		&st.ActiveChallenge, &accepted, &earned); err != nil {
		return nil, err
	}
	if accepted.Valid {
		t, err := time.Parse(time.RFC3339, accepted.String)
		if err != nil {
			return nil, fmt.Errorf("bad accepted_at %q: %w", accepted.String, err)
		}
		st.AcceptedAt = &t
	}
	if earned.Valid {
		t, err := time.Parse(time.RFC3339, earned.String)
		if err != nil {
			return nil, fmt.Errorf("bad earned_at %q: %w", earned.String, err)
		}
		st.EarnedAt = &t
	}
	return &st, nil
}

// =============================================================================
// PURCHASE STORE (shop.PurchaseStore interface)
// =============================================================================

func (s *Store) InsertPurchase(ctx context.Context, p shop.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO purchases (id, user_id, package_id, amount, currency, at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.PackageID, p.Amount.String(), p.Currency, p.At.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	return nil
}

func (s *Store) ListPurchases(ctx context.Context) ([]shop.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, package_id, amount, currency, at FROM purchases ORDER BY at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var out []shop.Purchase
	for rows.Next() {
		var p shop.Purchase
		var amount, at string
		if err := rows.Scan(&p.ID, &p.UserID, &p.PackageID, &amount, &p.Currency, &at); err != nil {
			return nil, err
		}
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("bad amount %q: %w", amount, err)
		}
		if p.At, err = time.Parse(time.RFC3339, at); err != nil {
			return nil, fmt.Errorf("bad at %q: %w", at, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// isActiveClaimConflict matches only the idx_bookings_active_claim guard.
// SQLite names the violated columns in the message, so a primary-key
// collision on id does not get mistaken for a duplicate booking.
func isActiveClaimConflict(err error) bool {
	return err != nil &&
		strings.Contains(err.Error(), "UNIQUE constraint failed") &&
		strings.Contains(err.Error(), "bookings.user_id")
}
