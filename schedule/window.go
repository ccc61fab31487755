/*
window.go - Weekly registration release rule

PURPOSE:
  The studio operates Sunday through Friday and releases next week's
  timetable every Thursday at 12:00. Dates inside the current operating week
  are bookable immediately; dates in the following week unlock at the release
  moment; anything further out stays locked.

INVARIANTS:
  - Non-strict release: at exactly Thursday 12:00 registration IS open.
  - Monotonic: once a date is open it never re-closes until the date passes.
  - "now" is truncated to the minute before any comparison so the decision
    cannot oscillate within the same minute.
  - Saturday is excluded from booking entirely.
*/
package schedule

import "time"

// =============================================================================
// RELEASE RULE CONSTANTS
// =============================================================================

// Release moment: every Thursday at 12:00 local time. The operating week runs
// Sunday 00:00:00 through Friday 23:59:59.
const (
	ReleaseWeekday = time.Thursday
	ReleaseHour    = 12
)

// =============================================================================
// REGISTRATION WINDOW GATE
// =============================================================================

// IsRegistrationOpenFor reports whether booking for classDate is open at now.
// Current-week dates are open, next-week dates open at the weekly release
// moment, later dates are closed. Past dates and Saturdays are never open.
func IsRegistrationOpenFor(classDate, now time.Time) bool {
	now = now.Truncate(time.Minute)

	if classDate.Weekday() == time.Saturday {
		return false
	}
	if truncateToDay(classDate).Before(truncateToDay(now)) {
		return false
	}

	classWeek := weekStart(classDate)
	nowWeek := weekStart(now)

	switch {
	case classWeek.Equal(nowWeek):
		return true
	case classWeek.Equal(nowWeek.AddDate(0, 0, 7)):
		// Next operating week: open from Thursday noon of the current week.
		return !now.Before(releaseMomentOf(nowWeek))
	default:
		return false
	}
}

// IsNextWeek classifies classDate into the operating week after now's.
func IsNextWeek(classDate, now time.Time) bool {
	now = now.Truncate(time.Minute)
	return weekStart(classDate).Equal(weekStart(now).AddDate(0, 0, 7))
}

// NextRelease returns the nearest current-or-future occurrence of the weekly
// release moment. An exact hit returns now itself (non-strict).
func NextRelease(now time.Time) time.Time {
	now = now.Truncate(time.Minute)
	release := releaseMomentOf(weekStart(now))
	if now.After(release) {
		release = release.AddDate(0, 0, 7)
	}
	return release
}

// =============================================================================
// CALENDAR HELPERS
// =============================================================================

// weekStart returns the Sunday 00:00:00 beginning the operating week of t.
func weekStart(t time.Time) time.Time {
	day := truncateToDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// releaseMomentOf returns the release instant inside the week starting at ws.
func releaseMomentOf(ws time.Time) time.Time {
	return ws.AddDate(0, 0, int(ReleaseWeekday)).Add(ReleaseHour * time.Hour)
}
