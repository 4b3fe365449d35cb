package models

import (
	"fmt"
	"time"
)

// TimeRange enumerates the supported reporting windows.
type TimeRange string

const (
	TimeRange7d  TimeRange = "7d"
	TimeRange30d TimeRange = "30d"
	TimeRange90d TimeRange = "90d"
)

// ParseTimeRange maps a query value onto a supported window, defaulting to 7d.
func ParseTimeRange(raw string) (TimeRange, error) {
	switch raw {
	case "", string(TimeRange7d):
		return TimeRange7d, nil
	case string(TimeRange30d):
		return TimeRange30d, nil
	case string(TimeRange90d):
		return TimeRange90d, nil
	default:
		return "", fmt.Errorf("unsupported time range %q", raw)
	}
}

// Days returns the day count represented by the window.
func (t TimeRange) Days() int {
	switch t {
	case TimeRange30d:
		return 30
	case TimeRange90d:
		return 90
	default:
		return 7
	}
}

// WellbeingFilter scopes a report request to one school.
type WellbeingFilter struct {
	SchoolID  string
	TimeRange TimeRange
	Grade     string
}

// MoodEntry is a single mood check-in. Append-only.
type MoodEntry struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Mood      string    `db:"mood" json:"mood"`
	Date      time.Time `db:"date" json:"date"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// QuestRecord tracks a daily quest outcome for one student.
type QuestRecord struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Completed bool      `db:"completed" json:"completed"`
	Date      time.Time `db:"date" json:"date"`
	Coins     int       `db:"coins" json:"coins"`
	XP        int       `db:"xp" json:"xp"`
}

// Help request urgency tiers and statuses as stored.
const (
	HelpUrgencyLow    = "low"
	HelpUrgencyMedium = "medium"
	HelpUrgencyHigh   = "high"

	HelpStatusOpen     = "open"
	HelpStatusResolved = "resolved"
)

// HelpRequest is a student-initiated request for adult support.
type HelpRequest struct {
	ID         string     `db:"id" json:"id"`
	StudentID  string     `db:"student_id" json:"student_id"`
	Urgency    string     `db:"urgency" json:"urgency"`
	Status     string     `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// ActivityEntry is a timestamped practice log (gratitude, kindness, courage,
// mindfulness). Count carries the optional numeric payload, defaulting to 1.
type ActivityEntry struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Count     int       `db:"count" json:"count"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// HabitEntry records daily sleep and hydration habits.
type HabitEntry struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	SleepHours   float64   `db:"sleep_hours" json:"sleep_hours"`
	WaterGlasses int       `db:"water_glasses" json:"water_glasses"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// PetState mirrors the companion-pet gamification metric per student.
type PetState struct {
	StudentID string `db:"student_id" json:"student_id"`
	Happiness int    `db:"happiness" json:"happiness"`
}

// WellbeingDatasets bundles everything the aggregator reduces for one request.
// Optional datasets may legitimately be empty when their backing tables are
// missing or unreadable.
type WellbeingDatasets struct {
	Students    []Student
	Classes     []Class
	Assignments []ClassAssignment
	Moods       []MoodEntry
	Quests      []QuestRecord
	Help        []HelpRequest
	Gratitude   []ActivityEntry
	Kindness    []ActivityEntry
	Courage     []ActivityEntry
	Mindfulness []ActivityEntry
	Habits      []HabitEntry
	Pets        []PetState
}

// RiskTier labels a class or student risk classification.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)
