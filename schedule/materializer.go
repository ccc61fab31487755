/*
materializer.go - Expands templates into a rolling window of class instances

PURPOSE:
  Turns the recurring weekly timetable into concrete dated occurrences for a
  forward-looking window (typically two weeks). The output is what members
  browse and book against.

CONTRACT:
  Materialize(templates, from, weeksAhead)
  - pure function, no clock access, no side effects
  - deterministic: same inputs -> byte-identical output
  - stable: a later "from" reproduces identical instances for overlapping
    dates (instance IDs are template+date, so bookings stay valid)
  - sorted ascending by StartAt, ties broken by template ID

ENROLLED COUNTS:
  Every instance leaves here with Enrolled = 0. Live counts come from the
  booking ledger (count of confirmed bookings) and are overlaid by the
  caller. Storing the count here would invite drift.
*/
package schedule

import (
	"sort"
	"time"
)

// DefaultWeeksAhead is the standard rolling window the studio publishes.
const DefaultWeeksAhead = 2

// Materialize expands each template into one instance per week offset in
// [0, weeksAhead), taking the next occurrence of the template's weekday on or
// after from+offset*7d. Instances whose date falls before "from" are never
// produced; callers drop past instances simply by advancing "from".
func Materialize(templates []ClassTemplate, from time.Time, weeksAhead int) []ClassInstance {
	if weeksAhead <= 0 {
		return nil
	}

	fromDay := truncateToDay(from)
	var instances []ClassInstance

	for _, tmpl := range templates {
		for offset := 0; offset < weeksAhead; offset++ {
			weekStart := fromDay.AddDate(0, 0, offset*7)
			date := nextWeekday(weekStart, tmpl.Weekday)
			instances = append(instances, InstanceOn(tmpl, date))
		}
	}

	sort.Slice(instances, func(i, j int) bool {
		if instances[i].StartAt.Equal(instances[j].StartAt) {
			return instances[i].Template < instances[j].Template
		}
		return instances[i].StartAt.Before(instances[j].StartAt)
	})

	return instances
}

// InstanceOn denormalizes a template onto a concrete date. It is the same
// expansion Materialize applies per slot; exposed so callers can resolve a
// single instance from its ID.
func InstanceOn(tmpl ClassTemplate, date time.Time) ClassInstance {
	return ClassInstance{
		ID:       InstanceIDFor(tmpl.ID, date),
		Template: tmpl.ID,
		Title:    tmpl.Title,
		CoachID:  tmpl.CoachID,
		StartAt:  tmpl.StartOn(date),
		Duration: tmpl.Duration,
		Capacity: tmpl.Capacity,
		Tiers:    tmpl.Tiers,
		Location: tmpl.Location,
		Category: tmpl.Category,
		Enrolled: 0,
	}
}

// nextWeekday returns the first date with the given weekday on or after from.
func nextWeekday(from time.Time, weekday time.Weekday) time.Time {
	delta := (int(weekday) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, delta)
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
