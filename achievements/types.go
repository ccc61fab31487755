/*
Package achievements tracks member progress toward studio achievements.

PURPOSE:
  Achievements are defined by staff (a catalog of Definitions) and measured
  per member. Where the number comes from depends on the task type:

    classes_attended -> the booking ledger's completed count
    total_weight     -> the external workout log
    discipline       -> the external workout log
    challenge        -> state tracked here (accepted, progressed, earned)

  A member may hold AT MOST ONE active challenge at a time; accepting a new
  challenge supersedes the previous one.

KEY CONCEPTS IN THIS FILE (types.go):
  - Definition: one achievement in the catalog, with its requirement
  - State: one member's tracked record against one definition
  - Progress: the computed view handlers render
*/
package achievements

import (
	"context"
	"time"
)

// =============================================================================
// DEFINITIONS
// =============================================================================

// TaskType selects the progress source for a definition.
type TaskType string

const (
	TaskClassesAttended TaskType = "classes_attended"
	TaskTotalWeight     TaskType = "total_weight"
	TaskDiscipline      TaskType = "discipline"
	TaskChallenge       TaskType = "challenge"
)

// Definition is one achievement in the staff-managed catalog.
type Definition struct {
	ID          string
	Title       string
	Description string
	Icon        string
	Task        TaskType
	Requirement int // target the progress number must reach
	Active      bool
	CreatedAt   time.Time
}

// IsChallenge reports whether the definition must be explicitly accepted
// before it tracks.
func (d Definition) IsChallenge() bool {
	return d.Task == TaskChallenge
}

// =============================================================================
// PER-MEMBER STATE
// =============================================================================

// State is a member's tracked record against one definition. Only challenge
// progress lives here; the other task types are computed from their sources
// on read.
type State struct {
	UserID          string
	AchievementID   string
	Progress        int
	Completed       bool
	ActiveChallenge bool // true while this is the member's accepted challenge
	AcceptedAt      *time.Time
	EarnedAt        *time.Time
}

// Progress is the computed view of one definition for one member.
type Progress struct {
	Definition Definition
	Current    int
	Completed  bool
	AcceptedAt *time.Time
	EarnedAt   *time.Time
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// AttendanceSource supplies the member's lifetime completed-class count.
// The booking ledger satisfies this through a thin adapter.
type AttendanceSource interface {
	CompletedClassCount(ctx context.Context, userID string) (int, error)
}

// WorkoutLog supplies externally logged training numbers. The log itself is
// another system; only the read surface is modeled here.
type WorkoutLog interface {
	// TotalWeight returns the member's lifetime lifted weight in kg.
	TotalWeight(ctx context.Context, userID string) (int, error)

	// DisciplineSessions returns how many logged sessions the member has in
	// their tracked discipline.
	DisciplineSessions(ctx context.Context, userID string) (int, error)
}

// Store persists the catalog and per-member state.
type Store interface {
	SaveDefinition(ctx context.Context, d Definition) error
	ListDefinitions(ctx context.Context) ([]Definition, error)
	GetDefinition(ctx context.Context, id string) (*Definition, error)

	GetState(ctx context.Context, userID, achievementID string) (*State, error)
	ListStates(ctx context.Context, userID string) ([]State, error)
	SaveState(ctx context.Context, s State) error
}
