/*
tracker.go - Achievement progress computation and challenge lifecycle

PURPOSE:
  Resolves each definition's progress from its source, marks completions,
  and enforces the one-active-challenge rule.

SEE ALSO:
  - types.go: Definition / State / collaborator interfaces
*/
package achievements

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrAchievementNotFound = errors.New("achievement not found")
	ErrNotAChallenge       = errors.New("achievement is not a challenge")
	ErrInactiveAchievement = errors.New("achievement is not active")
)

// Tracker computes progress and manages challenge state.
type Tracker struct {
	Store      Store
	Attendance AttendanceSource
	Workouts   WorkoutLog // optional; nil reports zero for log-sourced tasks
}

// =============================================================================
// PROGRESS
// =============================================================================

// ProgressFor resolves a single definition's progress for the member.
func (t *Tracker) ProgressFor(ctx context.Context, def Definition, userID string) (Progress, error) {
	state, err := t.Store.GetState(ctx, userID, def.ID)
	if err != nil {
		return Progress{}, err
	}

	current, err := t.currentFor(ctx, def, userID, state)
	if err != nil {
		return Progress{}, err
	}

	p := Progress{
		Definition: def,
		Current:    current,
		Completed:  current >= def.Requirement,
	}
	if state != nil {
		p.AcceptedAt = state.AcceptedAt
		p.EarnedAt = state.EarnedAt
		if state.Completed {
			p.Completed = true
		}
	}
	return p, nil
}

// Overview resolves every active definition for the member. Challenge
// definitions the member has not accepted report zero progress.
func (t *Tracker) Overview(ctx context.Context, userID string) ([]Progress, error) {
	defs, err := t.Store.ListDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	var out []Progress
	for _, def := range defs {
		if !def.Active {
			continue
		}
		p, err := t.ProgressFor(ctx, def, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (t *Tracker) currentFor(ctx context.Context, def Definition, userID string, state *State) (int, error) {
	switch def.Task {
	case TaskClassesAttended:
		return t.Attendance.CompletedClassCount(ctx, userID)
	case TaskTotalWeight:
		if t.Workouts == nil {
			return 0, nil
		}
		return t.Workouts.TotalWeight(ctx, userID)
	case TaskDiscipline:
		if t.Workouts == nil {
			return 0, nil
		}
		return t.Workouts.DisciplineSessions(ctx, userID)
	case TaskChallenge:
		if state == nil {
			return 0, nil
		}
		return state.Progress, nil
	default:
		return 0, fmt.Errorf("unknown task type %q", def.Task)
	}
}

// =============================================================================
// CHALLENGES
// =============================================================================

// AcceptChallenge starts the challenge for the member. If another challenge
// is already active it is superseded (deactivated, progress kept).
func (t *Tracker) AcceptChallenge(ctx context.Context, userID, achievementID string, now time.Time) (State, error) {
	def, err := t.Store.GetDefinition(ctx, achievementID)
	if err != nil {
		return State{}, err
	}
	if def == nil {
		return State{}, ErrAchievementNotFound
	}
	if !def.IsChallenge() {
		return State{}, ErrNotAChallenge
	}
	if !def.Active {
		return State{}, ErrInactiveAchievement
	}

	// Supersede whatever challenge is currently active.
	states, err := t.Store.ListStates(ctx, userID)
	if err != nil {
		return State{}, err
	}
	for _, st := range states {
		if st.ActiveChallenge && st.AchievementID != achievementID {
			st.ActiveChallenge = false
			if err := t.Store.SaveState(ctx, st); err != nil {
				return State{}, err
			}
		}
	}

	// Start from the member's existing row so an earlier completion is never
	// erased by a re-accept; only the run-specific fields reset.
	st := State{UserID: userID, AchievementID: achievementID}
	if prior, err := t.Store.GetState(ctx, userID, achievementID); err != nil {
		return State{}, err
	} else if prior != nil {
		st = *prior
	}

	accepted := now
	st.Progress = 0
	st.ActiveChallenge = true
	st.AcceptedAt = &accepted
	if err := t.Store.SaveState(ctx, st); err != nil {
		return State{}, err
	}
	return st, nil
}

// RecordChallengeProgress adds delta to the member's active challenge and
// marks it earned when the requirement is reached.
func (t *Tracker) RecordChallengeProgress(ctx context.Context, userID string, delta int, now time.Time) (*State, error) {
	states, err := t.Store.ListStates(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, st := range states {
		if !st.ActiveChallenge {
			continue
		}
		def, err := t.Store.GetDefinition(ctx, st.AchievementID)
		if err != nil {
			return nil, err
		}
		if def == nil {
			return nil, ErrAchievementNotFound
		}
		st.Progress += delta
		if !st.Completed && st.Progress >= def.Requirement {
			st.Completed = true
			earned := now
			st.EarnedAt = &earned
			st.ActiveChallenge = false
		}
		if err := t.Store.SaveState(ctx, st); err != nil {
			return nil, err
		}
		return &st, nil
	}
	return nil, nil // no active challenge
}
