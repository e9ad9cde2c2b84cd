package profile

import (
	"time"

	"github.com/google/uuid"
)

// DayKey is the calendar-date form used as the activity counter key.
// All activity bookkeeping is done in UTC.
const DayKey = "2006-01-02"

func Day(t time.Time) string {
	return t.UTC().Format(DayKey)
}

// DoctorProfile aggregates a doctor's contribution metrics. It is written
// only by the stats service in response to case and version events, never
// directly by user action.
type DoctorProfile struct {
	DoctorID  uuid.UUID `gorm:"column:doctor_id;type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	TotalCases     int `gorm:"column:total_cases;not null;default:0"`
	ActiveCases    int `gorm:"column:active_cases;not null;default:0"`
	RecordsAdded   int `gorm:"column:records_added;not null;default:0"`
	RecordsUpdated int `gorm:"column:records_updated;not null;default:0"`

	// Nil until the first sample arrives.
	AvgResponseHours *float64 `gorm:"column:avg_response_hours"`
	AccuracyScore    *float64 `gorm:"column:accuracy_score"`

	// Activity maps YYYY-MM-DD (UTC) to the number of contributions that
	// day; the source data for the contribution graph and streaks.
	Activity     map[string]int `gorm:"column:activity;serializer:json"`
	Endorsements map[string]int `gorm:"column:endorsements;serializer:json"`

	ConditionTags []string `gorm:"column:condition_tags;serializer:json"`
}

func (DoctorProfile) TableName() string {
	return "profiles.doctor_profiles"
}

// PatientProfile carries a patient's aggregate counters. The record and
// collaborator counters are advanced inside the transactions that mutate
// the underlying entities.
type PatientProfile struct {
	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	TotalRecords        int `gorm:"column:total_records;not null;default:0"`
	TotalVersions       int `gorm:"column:total_versions;not null;default:0"`
	ActiveCollaborators int `gorm:"column:active_collaborators;not null;default:0"`
}

func (PatientProfile) TableName() string {
	return "profiles.patient_profiles"
}

type ActivitySummary struct {
	DoctorID      uuid.UUID      `json:"doctor_id"`
	Days          map[string]int `json:"days"`
	TotalActions  int            `json:"total_actions"`
	CurrentStreak int            `json:"current_streak"`
	LongestStreak int            `json:"longest_streak"`
}

// streakWindowDays bounds the read-time streak scan.
const streakWindowDays = 365

// Streaks derives the current and longest activity streaks from the per-day
// counter over the trailing 365 days ending at today. Streaks are not
// stored state.
//
// The current streak tolerates a gap of a single day (today itself not yet
// counted) before breaking, so an aggregator lagging by less than a day
// does not zero a live streak.
func Streaks(activity map[string]int, today time.Time) (current, longest int) {
	day := today.UTC().Truncate(24 * time.Hour)

	active := make([]bool, streakWindowDays)
	for i := 0; i < streakWindowDays; i++ {
		d := day.AddDate(0, 0, -i)
		if activity[d.Format(DayKey)] > 0 {
			active[i] = true
		}
	}

	// Current streak: trailing run ending at today, or at yesterday if
	// today has no activity yet.
	start := 0
	if !active[0] {
		start = 1
	}
	for i := start; i < streakWindowDays && active[i]; i++ {
		current++
	}

	run := 0
	for i := 0; i < streakWindowDays; i++ {
		if active[i] {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	return current, longest
}
