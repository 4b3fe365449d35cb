package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-wellbeing-api/internal/models"
)

// WellbeingRepository exposes the read-only dataset fetches behind the
// analytics report. Every query is scoped to one school, and activity queries
// are additionally scoped to an explicit roster id set plus a time window.
type WellbeingRepository struct {
	db *sqlx.DB
}

// NewWellbeingRepository instantiates the repository.
func NewWellbeingRepository(db *sqlx.DB) *WellbeingRepository {
	return &WellbeingRepository{db: db}
}

// Roster returns active students for a school, optionally filtered by grade.
func (r *WellbeingRepository) Roster(ctx context.Context, schoolID, grade string) ([]models.Student, error) {
	var builder strings.Builder
	builder.WriteString("SELECT id, school_id, full_name, grade, class_name, class_id, active, created_at, updated_at FROM students WHERE school_id = $1 AND active = TRUE")
	args := []interface{}{schoolID}
	if grade != "" && grade != "all" {
		args = append(args, grade)
		builder.WriteString(fmt.Sprintf(" AND grade = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY created_at ASC")

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	return students, nil
}

// Classes lists every class registered for the school.
func (r *WellbeingRepository) Classes(ctx context.Context, schoolID string) ([]models.Class, error) {
	const query = `SELECT id, school_id, name, grade FROM classes WHERE school_id = $1 ORDER BY grade ASC, name ASC`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, schoolID); err != nil {
		return nil, fmt.Errorf("query classes: %w", err)
	}
	return classes, nil
}

// Assignments returns explicit class membership records for the given students.
func (r *WellbeingRepository) Assignments(ctx context.Context, studentIDs []string) ([]models.ClassAssignment, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("SELECT student_id, class_id FROM class_assignments WHERE student_id IN (?)", studentIDs)
	if err != nil {
		return nil, fmt.Errorf("build assignments query: %w", err)
	}
	var assignments []models.ClassAssignment
	if err := r.db.SelectContext(ctx, &assignments, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query class assignments: %w", err)
	}
	return assignments, nil
}

// MoodEntries fetches mood check-ins for the roster within [from, to].
func (r *WellbeingRepository) MoodEntries(ctx context.Context, studentIDs []string, from, to time.Time) ([]models.MoodEntry, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, student_id, mood, date, created_at FROM mood_entries
WHERE student_id IN (?) AND date >= ? AND date <= ? ORDER BY date ASC, created_at ASC`, studentIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("build mood query: %w", err)
	}
	var entries []models.MoodEntry
	if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query mood entries: %w", err)
	}
	return entries, nil
}

// QuestRecords fetches quest outcomes for the roster within [from, to].
func (r *WellbeingRepository) QuestRecords(ctx context.Context, studentIDs []string, from, to time.Time) ([]models.QuestRecord, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, student_id, completed, date, coins, xp FROM quest_records
WHERE student_id IN (?) AND date >= ? AND date <= ? ORDER BY date ASC`, studentIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("build quest query: %w", err)
	}
	var records []models.QuestRecord
	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query quest records: %w", err)
	}
	return records, nil
}

// HelpRequests fetches help requests created within [from, to] for the roster.
func (r *WellbeingRepository) HelpRequests(ctx context.Context, studentIDs []string, from, to time.Time) ([]models.HelpRequest, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, student_id, urgency, status, created_at, resolved_at FROM help_requests
WHERE student_id IN (?) AND created_at >= ? AND created_at <= ? ORDER BY created_at ASC`, studentIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("build help request query: %w", err)
	}
	var requests []models.HelpRequest
	if err := r.db.SelectContext(ctx, &requests, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query help requests: %w", err)
	}
	return requests, nil
}

// ActivityEntries fetches timestamped practice logs from the named table.
// Valid tables are constrained to the known activity log set so the table name
// can be interpolated safely.
func (r *WellbeingRepository) ActivityEntries(ctx context.Context, table string, studentIDs []string, from, to time.Time) ([]models.ActivityEntry, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	if !validActivityTable(table) {
		return nil, fmt.Errorf("unknown activity table %q", table)
	}
	query, args, err := sqlx.In(fmt.Sprintf(`SELECT id, student_id, COALESCE(count, 1) AS count, created_at FROM %s
WHERE student_id IN (?) AND created_at >= ? AND created_at <= ? ORDER BY created_at ASC`, table), studentIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", table, err)
	}
	var entries []models.ActivityEntry
	if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	return entries, nil
}

// HabitEntries fetches sleep/hydration habit logs within [from, to].
func (r *WellbeingRepository) HabitEntries(ctx context.Context, studentIDs []string, from, to time.Time) ([]models.HabitEntry, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, student_id, sleep_hours, water_glasses, created_at FROM habit_entries
WHERE student_id IN (?) AND created_at >= ? AND created_at <= ? ORDER BY created_at ASC`, studentIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("build habit query: %w", err)
	}
	var entries []models.HabitEntry
	if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query habit entries: %w", err)
	}
	return entries, nil
}

// PetStates fetches the current companion-pet happiness per student.
func (r *WellbeingRepository) PetStates(ctx context.Context, studentIDs []string) ([]models.PetState, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("SELECT student_id, happiness FROM pets WHERE student_id IN (?)", studentIDs)
	if err != nil {
		return nil, fmt.Errorf("build pet query: %w", err)
	}
	var pets []models.PetState
	if err := r.db.SelectContext(ctx, &pets, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query pet states: %w", err)
	}
	return pets, nil
}

// Activity log tables readable through ActivityEntries.
const (
	TableGratitude   = "gratitude_entries"
	TableKindness    = "kindness_entries"
	TableCourage     = "courage_entries"
	TableMindfulness = "mindfulness_sessions"
)

func validActivityTable(table string) bool {
	switch table {
	case TableGratitude, TableKindness, TableCourage, TableMindfulness:
		return true
	default:
		return false
	}
}
