/*
catalog.go - Seed achievement definitions

PURPOSE:
  The studio's starting achievement catalog. Staff manage definitions at
  runtime through the store; this seed only fills an empty database on
  first boot.

SEE ALSO:
  - types.go: Definition and TaskType
  - tracker.go: how each task type is scored
*/
package achievements

import "time"

// DefaultDefinitions returns the catalog a fresh installation starts with.
func DefaultDefinitions(now time.Time) []Definition {
	return []Definition{
		{
			ID:          "first-steps",
			Title:       "First Steps",
			Description: "Attend your first class",
			Icon:        "footprints",
			Task:        TaskClassesAttended,
			Requirement: 1,
			Active:      true,
			CreatedAt:   now,
		},
		{
			ID:          "regular",
			Title:       "Regular",
			Description: "Attend 25 classes",
			Icon:        "calendar-check",
			Task:        TaskClassesAttended,
			Requirement: 25,
			Active:      true,
			CreatedAt:   now,
		},
		{
			ID:          "centurion",
			Title:       "Centurion",
			Description: "Attend 100 classes",
			Icon:        "trophy",
			Task:        TaskClassesAttended,
			Requirement: 100,
			Active:      true,
			CreatedAt:   now,
		},
		{
			ID:          "ton-lifter",
			Title:       "Ton Lifter",
			Description: "Lift a cumulative 10,000 kg",
			Icon:        "dumbbell",
			Task:        TaskTotalWeight,
			Requirement: 10000,
			Active:      true,
			CreatedAt:   now,
		},
		{
			ID:          "devoted",
			Title:       "Devoted",
			Description: "Log 50 sessions in your discipline",
			Icon:        "flame",
			Task:        TaskDiscipline,
			Requirement: 50,
			Active:      true,
			CreatedAt:   now,
		},
		{
			ID:          "thirty-day-streak",
			Title:       "30-Day Streak",
			Description: "Train 30 days in a row",
			Icon:        "zap",
			Task:        TaskChallenge,
			Requirement: 30,
			Active:      true,
			CreatedAt:   now,
		},
	}
}
