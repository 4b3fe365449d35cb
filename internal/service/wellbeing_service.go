package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-wellbeing-api/internal/dto"
	"github.com/noah-isme/sma-wellbeing-api/internal/models"
	"github.com/noah-isme/sma-wellbeing-api/internal/repository"
)

type wellbeingDatasetRepository interface {
	Roster(ctx context.Context, schoolID, grade string) ([]models.Student, error)
	Classes(ctx context.Context, schoolID string) ([]models.Class, error)
	Assignments(ctx context.Context, studentIDs []string) ([]models.ClassAssignment, error)
	MoodEntries(ctx context.Context, studentIDs []string, from, to time.Time) ([]models.MoodEntry, error)
	QuestRecords(ctx context.Context, studentIDs []string, from, to time.Time) ([]models.QuestRecord, error)
	HelpRequests(ctx context.Context, studentIDs []string, from, to time.Time) ([]models.HelpRequest, error)
	ActivityEntries(ctx context.Context, table string, studentIDs []string, from, to time.Time) ([]models.ActivityEntry, error)
	HabitEntries(ctx context.Context, studentIDs []string, from, to time.Time) ([]models.HabitEntry, error)
	PetStates(ctx context.Context, studentIDs []string) ([]models.PetState, error)
}

// WellbeingServiceConfig tunes report behaviour.
type WellbeingServiceConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// WellbeingService assembles the analytics report for one school. The report
// is a pure function of the fetched rows and the injected clock; nothing
// derived is written back.
type WellbeingService struct {
	repo    wellbeingDatasetRepository
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
	cfg     WellbeingServiceConfig
}

// WellbeingServiceParams groups constructor dependencies.
type WellbeingServiceParams struct {
	Repo    wellbeingDatasetRepository
	Cache   *CacheService
	Metrics *MetricsService
	Logger  *zap.Logger
	Config  WellbeingServiceConfig
}

// NewWellbeingService constructs a WellbeingService with sane defaults.
func NewWellbeingService(params WellbeingServiceParams) *WellbeingService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WellbeingService{
		repo:    params.Repo,
		cache:   params.Cache,
		metrics: params.Metrics,
		logger:  logger,
		now:     time.Now,
		cfg:     cfg,
	}
}

// GetAnalytics returns the assembled report and whether it came from cache.
func (s *WellbeingService) GetAnalytics(ctx context.Context, filter models.WellbeingFilter) (*dto.WellbeingReport, bool, error) {
	cacheKey := repository.ReportCacheKey(filter.SchoolID, string(filter.TimeRange), normaliseGrade(filter.Grade))
	if s.cfg.CacheEnabled && s.cache != nil {
		var cached dto.WellbeingReport
		hit, err := s.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			s.logger.Warn("report cache read failed", zap.String("key", cacheKey), zap.Error(err))
		} else if hit {
			return &cached, true, nil
		}
	}

	start := time.Now()
	datasets, err := s.fetchDatasets(ctx, filter)
	if err != nil {
		return nil, false, err
	}

	report := s.buildReport(datasets, filter)
	if s.metrics != nil {
		s.metrics.ObserveReportBuild(string(filter.TimeRange), time.Since(start))
	}

	if s.cfg.CacheEnabled && s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, report, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("report cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return report, false, nil
}

// Invalidate drops cached reports for a school after upstream data changes.
func (s *WellbeingService) Invalidate(ctx context.Context, schoolID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, repository.SchoolReportPattern(schoolID))
}

// fetchDatasets resolves the roster first, then fans out the optional dataset
// reads. The roster read is fatal; every optional read degrades to an empty
// set on failure so the report can still be assembled.
func (s *WellbeingService) fetchDatasets(ctx context.Context, filter models.WellbeingFilter) (*models.WellbeingDatasets, error) {
	students, err := s.repo.Roster(ctx, filter.SchoolID, normaliseGrade(filter.Grade))
	if err != nil {
		return nil, fmt.Errorf("fetch roster: %w", err)
	}

	datasets := &models.WellbeingDatasets{Students: students}
	if len(students) == 0 {
		return datasets, nil
	}

	ids := make([]string, 0, len(students))
	for _, student := range students {
		ids = append(ids, student.ID)
	}

	// Fetch twice the window so the preceding period is available for deltas.
	now := s.now().UTC()
	days := filter.TimeRange.Days()
	from := now.AddDate(0, 0, -2*days)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(s.optional("classes", func() error {
		classes, err := s.repo.Classes(gctx, filter.SchoolID)
		datasets.Classes = classes
		return err
	}))
	g.Go(s.optional("class assignments", func() error {
		assignments, err := s.repo.Assignments(gctx, ids)
		datasets.Assignments = assignments
		return err
	}))
	g.Go(s.optional("mood entries", func() error {
		moods, err := s.repo.MoodEntries(gctx, ids, from, now)
		datasets.Moods = moods
		return err
	}))
	g.Go(s.optional("quest records", func() error {
		quests, err := s.repo.QuestRecords(gctx, ids, from, now)
		datasets.Quests = quests
		return err
	}))
	g.Go(s.optional("help requests", func() error {
		help, err := s.repo.HelpRequests(gctx, ids, from, now)
		datasets.Help = help
		return err
	}))
	g.Go(s.optional("gratitude entries", func() error {
		entries, err := s.repo.ActivityEntries(gctx, repository.TableGratitude, ids, from, now)
		datasets.Gratitude = entries
		return err
	}))
	g.Go(s.optional("kindness entries", func() error {
		entries, err := s.repo.ActivityEntries(gctx, repository.TableKindness, ids, from, now)
		datasets.Kindness = entries
		return err
	}))
	g.Go(s.optional("courage entries", func() error {
		entries, err := s.repo.ActivityEntries(gctx, repository.TableCourage, ids, from, now)
		datasets.Courage = entries
		return err
	}))
	g.Go(s.optional("mindfulness sessions", func() error {
		entries, err := s.repo.ActivityEntries(gctx, repository.TableMindfulness, ids, from, now)
		datasets.Mindfulness = entries
		return err
	}))
	g.Go(s.optional("habit entries", func() error {
		habits, err := s.repo.HabitEntries(gctx, ids, from, now)
		datasets.Habits = habits
		return err
	}))
	g.Go(s.optional("pet states", func() error {
		pets, err := s.repo.PetStates(gctx, ids)
		datasets.Pets = pets
		return err
	}))

	// Optional fetches never return errors, so Wait only orders completion.
	_ = g.Wait()
	return datasets, nil
}

// optional wraps a dataset read so its failure is logged and swallowed.
func (s *WellbeingService) optional(name string, fetch func() error) func() error {
	return func() error {
		if err := fetch(); err != nil {
			s.logger.Warn("optional dataset unavailable, substituting empty set",
				zap.String("dataset", name), zap.Error(err))
		}
		return nil
	}
}

func normaliseGrade(grade string) string {
	if grade == "" {
		return "all"
	}
	return grade
}
