package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-wellbeing-api/internal/models"
	appErrors "github.com/noah-isme/sma-wellbeing-api/pkg/errors"
)

type fakeWellbeingRepo struct {
	students    []models.Student
	classes     []models.Class
	assignments []models.ClassAssignment
	moods       []models.MoodEntry
	quests      []models.QuestRecord
	help        []models.HelpRequest
	activities  map[string][]models.ActivityEntry
	habits      []models.HabitEntry
	pets        []models.PetState

	rosterErr   error
	optionalErr error

	mu          sync.Mutex
	rosterCalls int
	moodCalls   int
}

func (f *fakeWellbeingRepo) Roster(context.Context, string, string) ([]models.Student, error) {
	f.mu.Lock()
	f.rosterCalls++
	f.mu.Unlock()
	if f.rosterErr != nil {
		return nil, f.rosterErr
	}
	return f.students, nil
}

func (f *fakeWellbeingRepo) Classes(context.Context, string) ([]models.Class, error) {
	if f.optionalErr != nil {
		return nil, f.optionalErr
	}
	return f.classes, nil
}

func (f *fakeWellbeingRepo) Assignments(context.Context, []string) ([]models.ClassAssignment, error) {
	if f.optionalErr != nil {
		return nil, f.optionalErr
	}
	return f.assignments, nil
}

func (f *fakeWellbeingRepo) MoodEntries(context.Context, []string, time.Time, time.Time) ([]models.MoodEntry, error) {
	f.mu.Lock()
	f.moodCalls++
	f.mu.Unlock()
	if f.optionalErr != nil {
		return nil, f.optionalErr
	}
	return f.moods, nil
}

func (f *fakeWellbeingRepo) QuestRecords(context.Context, []string, time.Time, time.Time) ([]models.QuestRecord, error) {
	if f.optionalErr != nil {
		return nil, f.optionalErr
	}
	return f.quests, nil
}

func (f *fakeWellbeingRepo) HelpRequests(context.Context, []string, time.Time, time.Time) ([]models.HelpRequest, error) {
	if f.optionalErr != nil {
		return nil, f.optionalErr
	}
	return f.help, nil
}

func (f *fakeWellbeingRepo) ActivityEntries(_ context.Context, table string, _ []string, _, _ time.Time) ([]models.ActivityEntry, error) {
	if f.optionalErr != nil {
		return nil, f.optionalErr
	}
	return f.activities[table], nil
}

func (f *fakeWellbeingRepo) HabitEntries(context.Context, []string, time.Time, time.Time) ([]models.HabitEntry, error) {
	if f.optionalErr != nil {
		return nil, f.optionalErr
	}
	return f.habits, nil
}

func (f *fakeWellbeingRepo) PetStates(context.Context, []string) ([]models.PetState, error) {
	if f.optionalErr != nil {
		return nil, f.optionalErr
	}
	return f.pets, nil
}

type fakeReportCache struct {
	mu    sync.Mutex
	store map[string][]byte
}

func newFakeReportCache() *fakeReportCache {
	return &fakeReportCache{store: map[string][]byte{}}
}

func (f *fakeReportCache) Get(_ context.Context, key string, dest interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (f *fakeReportCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.store[key] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeReportCache) DeleteByPattern(context.Context, string) error {
	f.mu.Lock()
	f.store = map[string][]byte{}
	f.mu.Unlock()
	return nil
}

var reportNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// onDay returns a timestamp n days before the fixed test clock, at the given hour.
func onDay(daysAgo, hour int) time.Time {
	return time.Date(2026, 3, 15-daysAgo, hour, 0, 0, 0, time.UTC)
}

func newTestWellbeingService(repo *fakeWellbeingRepo, cache *CacheService, cacheEnabled bool) *WellbeingService {
	svc := NewWellbeingService(WellbeingServiceParams{
		Repo:   repo,
		Cache:  cache,
		Logger: zap.NewNop(),
		Config: WellbeingServiceConfig{CacheEnabled: cacheEnabled, CacheTTL: time.Minute},
	})
	svc.now = func() time.Time { return reportNow }
	return svc
}

// scenarioRepo builds a three-student school: one high-risk student with
// every concern firing, one medium-risk student with a lone open help
// request, and one healthy student.
func scenarioRepo() *fakeWellbeingRepo {
	repo := &fakeWellbeingRepo{
		students: []models.Student{
			{ID: "student-a", FullName: "Alice Tan", Grade: "5", ClassName: "5A"},
			{ID: "student-b", FullName: "Bob Lim", Grade: "5", ClassName: "5A"},
			{ID: "student-c", FullName: "Cara Ong", Grade: "6", ClassName: "6B"},
		},
		classes: []models.Class{
			{ID: "class-1", Name: "5A", Grade: "5"},
			{ID: "class-2", Name: "6B", Grade: "6"},
			{ID: "class-3", Name: "7C", Grade: "7"},
		},
		activities: map[string][]models.ActivityEntry{
			"gratitude_entries": {
				{ID: "g-1", StudentID: "student-c", Count: 1, CreatedAt: onDay(0, 8)},
			},
		},
		pets: []models.PetState{
			{StudentID: "student-a", Happiness: 20},
			{StudentID: "student-b", Happiness: 90},
			{StudentID: "student-c", Happiness: 50},
		},
	}
	for i := 0; i < 5; i++ {
		repo.moods = append(repo.moods, models.MoodEntry{
			ID: fmt.Sprintf("m-a-%d", i), StudentID: "student-a", Mood: "😢", Date: onDay(2+i, 9),
		})
		repo.quests = append(repo.quests, models.QuestRecord{
			ID: fmt.Sprintf("q-a-%d", i), StudentID: "student-a", Completed: false, Date: onDay(2+i, 9),
		})
	}
	for i := 0; i < 4; i++ {
		repo.moods = append(repo.moods, models.MoodEntry{
			ID: fmt.Sprintf("m-b-%d", i), StudentID: "student-b", Mood: "😊", Date: onDay(i, 9),
		})
	}
	for i := 0; i < 5; i++ {
		repo.quests = append(repo.quests, models.QuestRecord{
			ID: fmt.Sprintf("q-b-%d", i), StudentID: "student-b", Completed: i > 0, Date: onDay(1+i, 9),
		})
	}
	repo.moods = append(repo.moods, models.MoodEntry{
		ID: "m-c-0", StudentID: "student-c", Mood: "😐", Date: onDay(0, 10),
	})
	repo.help = []models.HelpRequest{
		{ID: "h-1", StudentID: "student-a", Urgency: models.HelpUrgencyHigh, Status: models.HelpStatusOpen, CreatedAt: onDay(5, 9)},
		{ID: "h-2", StudentID: "student-b", Urgency: models.HelpUrgencyLow, Status: models.HelpStatusOpen, CreatedAt: onDay(3, 9)},
	}
	return repo
}

func TestWellbeingServiceBuildsReport(t *testing.T) {
	repo := scenarioRepo()
	svc := newTestWellbeingService(repo, nil, false)

	report, cached, err := svc.GetAnalytics(context.Background(), models.WellbeingFilter{
		SchoolID:  "school-1",
		TimeRange: models.TimeRange7d,
	})
	require.NoError(t, err)
	assert.False(t, cached)

	assert.Equal(t, 3, report.TotalStudents)
	assert.Equal(t, 7, report.TimeRange)
	assert.Equal(t, 40, report.QuestCompletionRate)
	assert.Equal(t, 100, report.EngagementRate)
	assert.InDelta(t, 5.8, report.AverageWellbeingScore, 0.001)

	require.Len(t, report.StudentInsights, 2)
	high := report.StudentInsights[0]
	assert.Equal(t, "student-a", high.StudentID)
	assert.Equal(t, string(models.RiskHigh), high.RiskLevel)
	assert.ElementsMatch(t, []string{
		"frequent negative moods",
		"low quest completion",
		"open help request",
		"no activity streak",
	}, high.Concerns)
	assert.Empty(t, high.Strengths)

	medium := report.StudentInsights[1]
	assert.Equal(t, "student-b", medium.StudentID)
	assert.Equal(t, string(models.RiskMedium), medium.RiskLevel)
	assert.Equal(t, []string{"open help request"}, medium.Concerns)
	assert.Contains(t, medium.Strengths, "strong quest completion")
	assert.Contains(t, medium.Strengths, "thriving pet companion")
	assert.Contains(t, medium.Strengths, "consistently positive moods")

	require.Len(t, report.ClassAnalytics, 3)
	classA := report.ClassAnalytics[0]
	assert.Equal(t, "5A", classA.ClassName)
	assert.Equal(t, 2, classA.StudentCount)
	assert.InDelta(t, 44.4, classA.MoodPositivity, 0.001)
	assert.InDelta(t, 100, classA.EngagementRate, 0.001)
	assert.Equal(t, 2, classA.HelpRequests)
	assert.InDelta(t, 5.7, classA.WellbeingScore, 0.001)
	assert.Equal(t, string(models.RiskMedium), classA.RiskLevel)

	classB := report.ClassAnalytics[1]
	assert.Equal(t, "6B", classB.ClassName)
	assert.InDelta(t, 0, classB.MoodPositivity, 0.001)
	assert.InDelta(t, 4.0, classB.WellbeingScore, 0.001)
	assert.Equal(t, string(models.RiskHigh), classB.RiskLevel)

	empty := report.ClassAnalytics[2]
	assert.Equal(t, "7C", empty.ClassName)
	assert.Equal(t, 0, empty.StudentCount)
	assert.InDelta(t, 50, empty.MoodPositivity, 0.001)
	assert.InDelta(t, 3.0, empty.WellbeingScore, 0.001)
	assert.Equal(t, string(models.RiskHigh), empty.RiskLevel)

	assert.InDelta(t, 33.3, report.WellbeingDistribution.Thriving, 0.001)
	assert.InDelta(t, 33.3, report.WellbeingDistribution.Moderate, 0.001)
	assert.InDelta(t, 33.3, report.WellbeingDistribution.AtRisk, 0.001)

	require.Len(t, report.Metrics, 6)
	assert.Equal(t, "Average Wellbeing Score", report.Metrics[0].Name)
	assert.Equal(t, "down", report.Metrics[0].Trend)
	assert.InDelta(t, 7.5, report.Metrics[0].PreviousValue, 0.001)
	assert.Equal(t, "Mood Positivity", report.Metrics[1].Name)
	assert.InDelta(t, 40, report.Metrics[1].Value, 0.001)
	assert.Equal(t, "Help Requests", report.Metrics[4].Name)
	assert.InDelta(t, 2, report.Metrics[4].Value, 0.001)
	assert.Equal(t, "up", report.Metrics[4].Trend)
	assert.Equal(t, "Mindfulness Sessions", report.Metrics[5].Name)
	assert.Equal(t, "stable", report.Metrics[5].Trend)

	assert.Equal(t, 2, report.HelpRequests.Total)
	require.Len(t, report.HelpRequests.Timeline, 1)
	assert.Equal(t, "2026-03-08", report.HelpRequests.Timeline[0].Date)
	assert.Equal(t, 2, report.HelpRequests.Timeline[0].Requests)
	assert.Equal(t, 0, report.HelpRequests.Timeline[0].Resolved)

	require.Len(t, report.TrendData, 7)
	assert.Equal(t, "2026-03-09", report.TrendData[0].Date)
	today := report.TrendData[6]
	assert.Equal(t, "2026-03-15", today.Date)
	assert.Equal(t, 2, today.MoodCount)
	assert.InDelta(t, 7.8, today.Wellbeing, 0.001)
	assert.Equal(t, 0, today.QuestsCompleted)

	require.Len(t, report.ActivityBreakdown, 6)
	assert.Equal(t, "Gratitude", report.ActivityBreakdown[0].Subject)
	assert.InDelta(t, 33.3, report.ActivityBreakdown[0].A, 0.001)
	assert.Equal(t, 100, report.ActivityBreakdown[0].FullMark)
	assert.InDelta(t, 0, report.ActivityBreakdown[1].A, 0.001)

	// The previous window is empty, so the help delta measures against 1.
	assert.InDelta(t, 100, report.Trends.HelpRequestsChange, 0.001)
	assert.InDelta(t, -22.7, report.Trends.WellbeingChange, 0.11)
}

func TestWellbeingServiceEmptyRoster(t *testing.T) {
	repo := &fakeWellbeingRepo{}
	svc := newTestWellbeingService(repo, nil, false)

	report, _, err := svc.GetAnalytics(context.Background(), models.WellbeingFilter{
		SchoolID:  "school-1",
		TimeRange: models.TimeRange30d,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, report.TotalStudents)
	assert.InDelta(t, 7.5, report.AverageWellbeingScore, 0.001)
	assert.Equal(t, 0, report.EngagementRate)
	assert.Empty(t, report.ClassAnalytics)
	assert.Empty(t, report.StudentInsights)
	assert.Zero(t, report.WellbeingDistribution.Thriving)
	assert.Zero(t, report.WellbeingDistribution.AtRisk)

	// An empty roster skips the optional fan-out entirely.
	assert.Equal(t, 0, repo.moodCalls)
}

func TestWellbeingServiceRosterFailureIsFatal(t *testing.T) {
	repo := &fakeWellbeingRepo{rosterErr: errors.New("connection refused")}
	svc := newTestWellbeingService(repo, nil, false)

	_, _, err := svc.GetAnalytics(context.Background(), models.WellbeingFilter{
		SchoolID:  "school-1",
		TimeRange: models.TimeRange7d,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch roster")
}

func TestWellbeingServiceDegradesWhenOptionalDatasetsFail(t *testing.T) {
	repo := &fakeWellbeingRepo{
		students: []models.Student{
			{ID: "student-a", FullName: "Alice Tan", Grade: "5", ClassName: "5A"},
			{ID: "student-b", FullName: "Bob Lim", Grade: "5", ClassName: "5A"},
		},
		optionalErr: errors.New("relation does not exist"),
	}
	svc := newTestWellbeingService(repo, nil, false)

	report, _, err := svc.GetAnalytics(context.Background(), models.WellbeingFilter{
		SchoolID:  "school-1",
		TimeRange: models.TimeRange7d,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalStudents)
	assert.InDelta(t, 7.5, report.AverageWellbeingScore, 0.001)
	for _, entry := range report.ActivityBreakdown {
		assert.Zero(t, entry.A)
	}
	// No activity at all leaves each student with the streak concern only.
	require.Len(t, report.StudentInsights, 2)
	for _, insight := range report.StudentInsights {
		assert.Equal(t, string(models.RiskMedium), insight.RiskLevel)
		assert.Equal(t, []string{"no activity streak"}, insight.Concerns)
	}
	assert.InDelta(t, 100, report.WellbeingDistribution.Moderate, 0.001)
}

func TestWellbeingServiceReportIsDeterministic(t *testing.T) {
	repo := scenarioRepo()
	svc := newTestWellbeingService(repo, nil, false)
	filter := models.WellbeingFilter{SchoolID: "school-1", TimeRange: models.TimeRange7d}

	first, _, err := svc.GetAnalytics(context.Background(), filter)
	require.NoError(t, err)
	second, _, err := svc.GetAnalytics(context.Background(), filter)
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)
}

func TestWellbeingServiceCachesReports(t *testing.T) {
	repo := scenarioRepo()
	cacheRepo := newFakeReportCache()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	svc := newTestWellbeingService(repo, cache, true)
	filter := models.WellbeingFilter{SchoolID: "school-1", TimeRange: models.TimeRange7d}

	first, cached, err := svc.GetAnalytics(context.Background(), filter)
	require.NoError(t, err)
	assert.False(t, cached)

	// The entry lands under the report namespace so school-wide invalidation
	// can match it.
	cacheRepo.mu.Lock()
	_, stored := cacheRepo.store["wellbeing:report:school-1:7d:all"]
	cacheRepo.mu.Unlock()
	assert.True(t, stored)

	second, cached, err := svc.GetAnalytics(context.Background(), filter)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, repo.rosterCalls)
	assert.Equal(t, first.AverageWellbeingScore, second.AverageWellbeingScore)
	assert.Equal(t, first.TotalStudents, second.TotalStudents)

	require.NoError(t, svc.Invalidate(context.Background(), "school-1"))
	_, cached, err = svc.GetAnalytics(context.Background(), filter)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, repo.rosterCalls)
}

func TestWellbeingServiceCapsInsights(t *testing.T) {
	repo := &fakeWellbeingRepo{}
	for i := 0; i < 15; i++ {
		repo.students = append(repo.students, models.Student{
			ID:       fmt.Sprintf("student-%02d", i),
			FullName: fmt.Sprintf("Student %02d", i),
			Grade:    "5",
		})
	}
	svc := newTestWellbeingService(repo, nil, false)

	report, _, err := svc.GetAnalytics(context.Background(), models.WellbeingFilter{
		SchoolID:  "school-1",
		TimeRange: models.TimeRange7d,
	})
	require.NoError(t, err)

	require.Len(t, report.StudentInsights, 10)
	for i, insight := range report.StudentInsights {
		assert.Equal(t, fmt.Sprintf("student-%02d", i), insight.StudentID)
	}
}

func TestClassTierBoundaries(t *testing.T) {
	assert.Equal(t, models.RiskLow, classTier(7.5))
	assert.Equal(t, models.RiskMedium, classTier(7.499))
	assert.Equal(t, models.RiskMedium, classTier(5.5))
	assert.Equal(t, models.RiskHigh, classTier(5.499))
}

func TestTenantScoreStaysInBounds(t *testing.T) {
	best := periodTotals{moodPositive: 100, moodTotal: 100, questDone: 100, questTotal: 100, engaged: 10}
	assert.InDelta(t, 10, tenantScore(best, 10), 0.001)

	worst := periodTotals{moodNegative: 100, moodTotal: 100, helpUrgent: 50}
	assert.InDelta(t, 1, tenantScore(worst, 10), 0.001)

	assert.InDelta(t, 7.5, tenantScore(periodTotals{}, 10), 0.001)
}

func TestClassScoreStaysInBounds(t *testing.T) {
	assert.InDelta(t, 10, classScore(100, 100, 0), 0.001)
	assert.InDelta(t, 0, classScore(0, 0, 5), 0.001)
}

func TestPercentChangeSubstitutesUnitBase(t *testing.T) {
	assert.InDelta(t, 200, percentChange(3, 0), 0.001)
	assert.InDelta(t, -50, percentChange(1, 2), 0.001)
	// The substituted base applies even when both sides are zero.
	assert.InDelta(t, -100, percentChange(0, 0), 0.001)
}
