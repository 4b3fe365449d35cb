package service

import (
	"math"
	"time"

	"github.com/noah-isme/sma-wellbeing-api/internal/dto"
	"github.com/noah-isme/sma-wellbeing-api/internal/models"
)

// Fixed mood symbol sets. Symbols outside all three sets still count toward
// the ratio denominator.
var (
	positiveMoods = map[string]struct{}{
		"😊": {}, "😄": {}, "🤩": {}, "🥰": {}, "😎": {},
	}
	neutralMoods = map[string]struct{}{
		"😐": {}, "😌": {}, "🙂": {}, "😴": {},
	}
	negativeMoods = map[string]struct{}{
		"😢": {}, "😡": {}, "😰": {}, "😞": {}, "😭": {},
	}
)

const (
	// Neutral defaults used whenever a scope has no mood entries.
	defaultMoodRatio      = 50.0
	defaultWellbeingScore = 7.5

	// Class tier thresholds, applied to the unrounded score.
	classTierLowMin    = 7.5
	classTierMediumMin = 5.5

	insightsCap = 10

	dayFormat = "2006-01-02"
)

// Concern and strength labels, in evaluation order.
const (
	concernNegativeMoods = "frequent negative moods"
	concernLowQuests     = "low quest completion"
	concernOpenHelp      = "open help request"
	concernZeroStreak    = "no activity streak"

	strengthQuests       = "strong quest completion"
	strengthStreak       = "week-long activity streak"
	strengthPet          = "thriving pet companion"
	strengthPositiveMood = "consistently positive moods"
)

// studentStats accumulates one student's current-window activity.
type studentStats struct {
	moods        []models.MoodEntry
	questTotal   int
	questDone    int
	helpOpen     bool
	gratitude    int
	kindness     int
	courage      int
	mindfulness  int
	sleepSum     float64
	sleepCount   int
	waterSum     int
	waterCount   int
	petHappiness int
	activeDays   map[string]struct{}
}

func newStudentStats() *studentStats {
	return &studentStats{activeDays: map[string]struct{}{}}
}

func (st *studentStats) engaged() bool {
	return len(st.activeDays) > 0
}

func (st *studentStats) markActive(ts time.Time) {
	st.activeDays[ts.UTC().Format(dayFormat)] = struct{}{}
}

// streak counts consecutive active days ending today, or yesterday when
// today has no activity yet.
func (st *studentStats) streak(now time.Time) int {
	day := now.UTC()
	if _, ok := st.activeDays[day.Format(dayFormat)]; !ok {
		day = day.AddDate(0, 0, -1)
	}
	count := 0
	for {
		if _, ok := st.activeDays[day.Format(dayFormat)]; !ok {
			break
		}
		count++
		day = day.AddDate(0, 0, -1)
	}
	return count
}

// periodTotals are the whole-roster aggregates for one window partition.
type periodTotals struct {
	moodPositive int
	moodNeutral  int
	moodNegative int
	moodTotal    int
	questTotal   int
	questDone    int
	helpTotal    int
	helpUrgent   int
	engaged      int
	mindfulness  int
}

func (p periodTotals) moodBalance() float64 {
	if p.moodTotal == 0 {
		return 0
	}
	return float64(p.moodPositive-p.moodNegative) / float64(p.moodTotal)
}

func (p periodTotals) moodPositivity() float64 {
	if p.moodTotal == 0 {
		return defaultMoodRatio
	}
	return float64(p.moodPositive) / float64(p.moodTotal) * 100
}

func (p periodTotals) questRate() float64 {
	if p.questTotal == 0 {
		return 0
	}
	return float64(p.questDone) / float64(p.questTotal)
}

func (p periodTotals) engagementRate(roster int) float64 {
	if roster == 0 {
		return 0
	}
	return float64(p.engaged) / float64(roster)
}

// buildReport reduces the fetched datasets into the report payload. It is
// deterministic for a fixed clock and input rows.
func (s *WellbeingService) buildReport(datasets *models.WellbeingDatasets, filter models.WellbeingFilter) *dto.WellbeingReport {
	now := s.now().UTC()
	days := filter.TimeRange.Days()
	cutoff := now.AddDate(0, 0, -days)

	roster := len(datasets.Students)
	stats := s.collectStudentStats(datasets, cutoff, now)
	current := s.collectPeriodTotals(datasets, cutoff, now, stats)
	previous := s.collectPeriodTotals(datasets, now.AddDate(0, 0, -2*days), cutoff, nil)

	currentScore := tenantScore(current, roster)
	previousScore := tenantScore(previous, roster)

	insights, tierCounts := s.buildStudentInsights(datasets, stats, days, now)

	report := &dto.WellbeingReport{
		AverageWellbeingScore: round1(currentScore),
		QuestCompletionRate:   int(math.Round(current.questRate() * 100)),
		EngagementRate:        int(math.Round(current.engagementRate(roster) * 100)),
		Trends: dto.TrendDeltas{
			WellbeingChange:    percentChange(currentScore, previousScore),
			EngagementChange:   percentChange(current.engagementRate(roster)*100, previous.engagementRate(roster)*100),
			QuestChange:        percentChange(current.questRate()*100, previous.questRate()*100),
			HelpRequestsChange: percentChange(float64(current.helpTotal), float64(previous.helpTotal)),
		},
		ActivityBreakdown:     s.buildActivityBreakdown(datasets, stats, days),
		HelpRequests:          s.buildHelpTimeline(datasets.Help, cutoff, now, days),
		Metrics:               s.buildMetrics(current, previous, currentScore, previousScore, roster),
		ClassAnalytics:        s.buildClassRollups(datasets, stats),
		StudentInsights:       insights,
		TrendData:             s.buildTrendSeries(datasets, roster, now),
		WellbeingDistribution: buildDistribution(tierCounts, roster),
		TotalStudents:         roster,
		TimeRange:             days,
	}
	return report
}

// collectStudentStats folds every current-window dataset into per-student
// accumulators keyed by student id.
func (s *WellbeingService) collectStudentStats(datasets *models.WellbeingDatasets, cutoff, now time.Time) map[string]*studentStats {
	stats := make(map[string]*studentStats, len(datasets.Students))
	for _, student := range datasets.Students {
		stats[student.ID] = newStudentStats()
	}
	get := func(id string) *studentStats {
		st, ok := stats[id]
		if !ok {
			return nil
		}
		return st
	}

	for _, entry := range datasets.Moods {
		if entry.Date.Before(cutoff) || entry.Date.After(now) {
			continue
		}
		if st := get(entry.StudentID); st != nil {
			st.moods = append(st.moods, entry)
			st.markActive(entry.Date)
		}
	}
	for _, record := range datasets.Quests {
		if record.Date.Before(cutoff) || record.Date.After(now) {
			continue
		}
		if st := get(record.StudentID); st != nil {
			st.questTotal++
			if record.Completed {
				st.questDone++
				st.markActive(record.Date)
			}
		}
	}
	for _, request := range datasets.Help {
		if request.CreatedAt.Before(cutoff) || request.CreatedAt.After(now) {
			continue
		}
		if st := get(request.StudentID); st != nil && request.Status == models.HelpStatusOpen {
			st.helpOpen = true
		}
	}
	for _, entry := range datasets.Gratitude {
		if entry.CreatedAt.Before(cutoff) || entry.CreatedAt.After(now) {
			continue
		}
		if st := get(entry.StudentID); st != nil {
			st.gratitude += entry.Count
			st.markActive(entry.CreatedAt)
		}
	}
	for _, entry := range datasets.Kindness {
		if entry.CreatedAt.Before(cutoff) || entry.CreatedAt.After(now) {
			continue
		}
		if st := get(entry.StudentID); st != nil {
			st.kindness += entry.Count
			st.markActive(entry.CreatedAt)
		}
	}
	for _, entry := range datasets.Courage {
		if entry.CreatedAt.Before(cutoff) || entry.CreatedAt.After(now) {
			continue
		}
		if st := get(entry.StudentID); st != nil {
			st.courage += entry.Count
			st.markActive(entry.CreatedAt)
		}
	}
	for _, entry := range datasets.Mindfulness {
		if entry.CreatedAt.Before(cutoff) || entry.CreatedAt.After(now) {
			continue
		}
		if st := get(entry.StudentID); st != nil {
			st.mindfulness += entry.Count
			st.markActive(entry.CreatedAt)
		}
	}
	for _, entry := range datasets.Habits {
		if entry.CreatedAt.Before(cutoff) || entry.CreatedAt.After(now) {
			continue
		}
		if st := get(entry.StudentID); st != nil {
			st.sleepSum += entry.SleepHours
			st.sleepCount++
			st.waterSum += entry.WaterGlasses
			st.waterCount++
			st.markActive(entry.CreatedAt)
		}
	}
	for _, pet := range datasets.Pets {
		if st := get(pet.StudentID); st != nil {
			st.petHappiness = pet.Happiness
		}
	}
	return stats
}

// collectPeriodTotals aggregates roster-wide counters over [from, to). When
// stats is non-nil the engaged count reuses the current-window accumulators;
// otherwise engagement is recomputed from raw rows for the previous period.
func (s *WellbeingService) collectPeriodTotals(datasets *models.WellbeingDatasets, from, to time.Time, stats map[string]*studentStats) periodTotals {
	totals := periodTotals{}
	engagedIDs := map[string]struct{}{}

	for _, entry := range datasets.Moods {
		if entry.Date.Before(from) || !entry.Date.Before(to) {
			continue
		}
		totals.moodTotal++
		switch classifyMood(entry.Mood) {
		case models.RiskLow:
			totals.moodPositive++
		case models.RiskMedium:
			totals.moodNeutral++
		case models.RiskHigh:
			totals.moodNegative++
		}
		engagedIDs[entry.StudentID] = struct{}{}
	}
	for _, record := range datasets.Quests {
		if record.Date.Before(from) || !record.Date.Before(to) {
			continue
		}
		totals.questTotal++
		if record.Completed {
			totals.questDone++
			engagedIDs[record.StudentID] = struct{}{}
		}
	}
	for _, request := range datasets.Help {
		if request.CreatedAt.Before(from) || !request.CreatedAt.Before(to) {
			continue
		}
		totals.helpTotal++
		if request.Urgency == models.HelpUrgencyHigh {
			totals.helpUrgent++
		}
	}
	for _, entry := range datasets.Gratitude {
		if !entry.CreatedAt.Before(from) && entry.CreatedAt.Before(to) {
			engagedIDs[entry.StudentID] = struct{}{}
		}
	}
	for _, entry := range datasets.Kindness {
		if !entry.CreatedAt.Before(from) && entry.CreatedAt.Before(to) {
			engagedIDs[entry.StudentID] = struct{}{}
		}
	}
	for _, entry := range datasets.Courage {
		if !entry.CreatedAt.Before(from) && entry.CreatedAt.Before(to) {
			engagedIDs[entry.StudentID] = struct{}{}
		}
	}
	for _, entry := range datasets.Mindfulness {
		if !entry.CreatedAt.Before(from) && entry.CreatedAt.Before(to) {
			totals.mindfulness += entry.Count
			engagedIDs[entry.StudentID] = struct{}{}
		}
	}
	for _, entry := range datasets.Habits {
		if !entry.CreatedAt.Before(from) && entry.CreatedAt.Before(to) {
			engagedIDs[entry.StudentID] = struct{}{}
		}
	}

	if stats != nil {
		for _, st := range stats {
			if st.engaged() {
				totals.engaged++
			}
		}
	} else {
		totals.engaged = len(engagedIDs)
	}
	return totals
}

// classifyMood buckets a symbol: low=positive, medium=neutral, high=negative.
// Unknown symbols fall outside every bucket but stay in the denominator.
func classifyMood(symbol string) models.RiskTier {
	if _, ok := positiveMoods[symbol]; ok {
		return models.RiskLow
	}
	if _, ok := neutralMoods[symbol]; ok {
		return models.RiskMedium
	}
	if _, ok := negativeMoods[symbol]; ok {
		return models.RiskHigh
	}
	return ""
}

// tenantScore evaluates the school-wide linear scoring rule. The weights and
// clamp bounds are consumed by dashboard colour thresholds and must not drift.
func tenantScore(totals periodTotals, roster int) float64 {
	if totals.moodTotal == 0 {
		return defaultWellbeingScore
	}
	urgentPerCapita := 0.0
	if roster > 0 {
		urgentPerCapita = float64(totals.helpUrgent) / float64(roster)
	}
	score := 5 +
		totals.moodBalance()*5 +
		totals.questRate()*2 +
		totals.engagementRate(roster)*1.5 -
		urgentPerCapita*3
	return clamp(score, 1, 10)
}

// classScore evaluates the three-signal class formula on 0-100 ratios.
func classScore(moodRatio, engagementRatio, helpDensity float64) float64 {
	return clamp(moodRatio*0.06+engagementRatio*0.04-helpDensity, 0, 10)
}

func classTier(score float64) models.RiskTier {
	switch {
	case score >= classTierLowMin:
		return models.RiskLow
	case score >= classTierMediumMin:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

// classMemberResolver returns the member ids for one class, or an empty set
// when the strategy does not apply.
type classMemberResolver func(class models.Class, datasets *models.WellbeingDatasets) []string

// classMemberResolvers are tried in order; the first non-empty match wins.
var classMemberResolvers = []classMemberResolver{
	resolveByAssignment,
	resolveByClassName,
}

func resolveByAssignment(class models.Class, datasets *models.WellbeingDatasets) []string {
	var members []string
	for _, assignment := range datasets.Assignments {
		if assignment.ClassID == class.ID {
			members = append(members, assignment.StudentID)
		}
	}
	return members
}

func resolveByClassName(class models.Class, datasets *models.WellbeingDatasets) []string {
	var members []string
	for _, student := range datasets.Students {
		if student.ClassName == class.Name {
			members = append(members, student.ID)
		}
	}
	return members
}

func (s *WellbeingService) buildClassRollups(datasets *models.WellbeingDatasets, stats map[string]*studentStats) []dto.ClassRollup {
	rollups := make([]dto.ClassRollup, 0, len(datasets.Classes))
	if len(datasets.Students) == 0 {
		return rollups
	}

	for _, class := range datasets.Classes {
		var members []string
		for _, resolve := range classMemberResolvers {
			if members = resolve(class, datasets); len(members) > 0 {
				break
			}
		}

		rollup := dto.ClassRollup{
			ClassName:      class.Name,
			Grade:          class.Grade,
			StudentCount:   len(members),
			MoodPositivity: defaultMoodRatio,
		}

		if len(members) > 0 {
			var positive, moodTotal, engaged, helpCount int
			for _, id := range members {
				st, ok := stats[id]
				if !ok {
					continue
				}
				for _, entry := range st.moods {
					moodTotal++
					if classifyMood(entry.Mood) == models.RiskLow {
						positive++
					}
				}
				if st.engaged() {
					engaged++
				}
				if st.helpOpen {
					helpCount++
				}
			}
			moodRatio := defaultMoodRatio
			if moodTotal > 0 {
				moodRatio = float64(positive) / float64(moodTotal) * 100
			}
			engagementRatio := float64(engaged) / float64(len(members)) * 100
			helpDensity := float64(helpCount) / float64(len(members))

			rollup.MoodPositivity = round1(moodRatio)
			rollup.EngagementRate = round1(engagementRatio)
			rollup.HelpRequests = helpCount

			raw := classScore(moodRatio, engagementRatio, helpDensity)
			rollup.WellbeingScore = round1(raw)
			rollup.RiskLevel = string(classTier(raw))
		} else {
			// Absent data is signal; empty classes stay in the rollup.
			raw := classScore(defaultMoodRatio, 0, 0)
			rollup.WellbeingScore = round1(raw)
			rollup.RiskLevel = string(classTier(raw))
		}

		rollups = append(rollups, rollup)
	}
	return rollups
}

// buildStudentInsights classifies every student, returning the retained
// medium/high insights in roster order (capped, no secondary sort) together
// with the tier counts for the distribution buckets.
func (s *WellbeingService) buildStudentInsights(datasets *models.WellbeingDatasets, stats map[string]*studentStats, days int, now time.Time) ([]dto.StudentInsight, map[models.RiskTier]int) {
	insights := make([]dto.StudentInsight, 0, insightsCap)
	tierCounts := map[models.RiskTier]int{}

	for _, student := range datasets.Students {
		st, ok := stats[student.ID]
		if !ok {
			st = newStudentStats()
		}

		concerns := evaluateConcerns(st, now)
		strengths := evaluateStrengths(st, now)

		tier := models.RiskLow
		switch {
		case len(concerns) >= 3:
			tier = models.RiskHigh
		case len(concerns) >= 1:
			tier = models.RiskMedium
		}
		tierCounts[tier]++

		if tier == models.RiskLow || len(insights) >= insightsCap {
			continue
		}
		insights = append(insights, dto.StudentInsight{
			StudentID:      student.ID,
			Name:           student.FullName,
			Grade:          student.Grade,
			ClassName:      student.ClassName,
			RiskLevel:      string(tier),
			Concerns:       concerns,
			Strengths:      strengths,
			ActivityScores: adherenceScores(st, days),
		})
	}
	return insights, tierCounts
}

func evaluateConcerns(st *studentStats, now time.Time) []string {
	concerns := make([]string, 0, 4)

	recent := lastMoods(st.moods, 5)
	negative := 0
	for _, entry := range recent {
		if classifyMood(entry.Mood) == models.RiskHigh {
			negative++
		}
	}
	if negative >= 3 {
		concerns = append(concerns, concernNegativeMoods)
	}
	if st.questTotal >= 1 && float64(st.questDone)/float64(st.questTotal) < 0.3 {
		concerns = append(concerns, concernLowQuests)
	}
	if st.helpOpen {
		concerns = append(concerns, concernOpenHelp)
	}
	if st.streak(now) == 0 {
		concerns = append(concerns, concernZeroStreak)
	}
	return concerns
}

func evaluateStrengths(st *studentStats, now time.Time) []string {
	strengths := make([]string, 0, 4)

	if st.questTotal >= 3 && float64(st.questDone)/float64(st.questTotal) >= 0.8 {
		strengths = append(strengths, strengthQuests)
	}
	if st.streak(now) >= 7 {
		strengths = append(strengths, strengthStreak)
	}
	if st.petHappiness >= 80 {
		strengths = append(strengths, strengthPet)
	}
	recent := lastMoods(st.moods, 5)
	positive := 0
	for _, entry := range recent {
		if classifyMood(entry.Mood) == models.RiskLow {
			positive++
		}
	}
	if positive >= 4 {
		strengths = append(strengths, strengthPositiveMood)
	}
	return strengths
}

// adherenceScores maps window counts onto the six 0-100 scales. The scaling
// constants define what "100%" means and must be preserved exactly.
func adherenceScores(st *studentStats, days int) dto.ActivityScores {
	if days <= 0 {
		days = 7
	}
	perDay := func(count int) float64 {
		return float64(count) / float64(days) * 100
	}
	scores := dto.ActivityScores{
		Gratitude: math.Min(100, perDay(st.gratitude)*7),
		Kindness:  math.Min(100, perDay(st.kindness)/3),
		Breathing: math.Min(100, perDay(st.mindfulness)*7),
		Courage:   math.Min(100, perDay(st.courage)*7),
	}
	if st.sleepCount > 0 {
		avg := st.sleepSum / float64(st.sleepCount)
		scores.Sleep = math.Min(100, avg/8*100)
	}
	if st.waterCount > 0 {
		avg := float64(st.waterSum) / float64(st.waterCount)
		scores.Hydration = math.Min(100, avg/8*100)
	}
	scores.Gratitude = round1(scores.Gratitude)
	scores.Kindness = round1(scores.Kindness)
	scores.Breathing = round1(scores.Breathing)
	scores.Courage = round1(scores.Courage)
	scores.Sleep = round1(scores.Sleep)
	scores.Hydration = round1(scores.Hydration)
	return scores
}

// buildActivityBreakdown averages the six adherence scores across the roster.
// Iterates the roster slice so float accumulation order is stable.
func (s *WellbeingService) buildActivityBreakdown(datasets *models.WellbeingDatasets, stats map[string]*studentStats, days int) []dto.RadarEntry {
	subjects := []string{"Gratitude", "Kindness", "Breathing", "Courage", "Sleep", "Hydration"}
	sums := make([]float64, len(subjects))
	for _, student := range datasets.Students {
		st, ok := stats[student.ID]
		if !ok {
			continue
		}
		scores := adherenceScores(st, days)
		sums[0] += scores.Gratitude
		sums[1] += scores.Kindness
		sums[2] += scores.Breathing
		sums[3] += scores.Courage
		sums[4] += scores.Sleep
		sums[5] += scores.Hydration
	}

	entries := make([]dto.RadarEntry, 0, len(subjects))
	for i, subject := range subjects {
		value := 0.0
		if len(stats) > 0 {
			value = round1(sums[i] / float64(len(stats)))
		}
		entries = append(entries, dto.RadarEntry{Subject: subject, A: value, FullMark: 100})
	}
	return entries
}

// buildHelpTimeline buckets help requests into week slices across the window.
func (s *WellbeingService) buildHelpTimeline(requests []models.HelpRequest, cutoff, now time.Time, days int) dto.HelpRequestSummary {
	buckets := (days + 6) / 7
	summary := dto.HelpRequestSummary{Timeline: make([]dto.HelpTimelinePoint, 0, buckets)}

	for i := 0; i < buckets; i++ {
		start := cutoff.AddDate(0, 0, i*7)
		end := start.AddDate(0, 0, 7)
		if end.After(now) {
			end = now
		}
		point := dto.HelpTimelinePoint{Date: start.Format(dayFormat)}
		for _, request := range requests {
			if request.CreatedAt.Before(start) || !request.CreatedAt.Before(end) {
				continue
			}
			point.Requests++
			if request.Status == models.HelpStatusResolved {
				point.Resolved++
			}
		}
		summary.Total += point.Requests
		summary.Timeline = append(summary.Timeline, point)
	}
	return summary
}

func (s *WellbeingService) buildMetrics(current, previous periodTotals, currentScore, previousScore float64, roster int) []dto.MetricEntry {
	entries := []dto.MetricEntry{
		{
			Name:          "Average Wellbeing Score",
			Value:         round1(currentScore),
			PreviousValue: round1(previousScore),
			Category:      "wellbeing",
			Description:   "Composite 1-10 score across mood, quests, engagement and urgent help requests",
		},
		{
			Name:          "Mood Positivity",
			Value:         round1(current.moodPositivity()),
			PreviousValue: round1(previous.moodPositivity()),
			Category:      "wellbeing",
			Description:   "Share of mood check-ins classified positive",
		},
		{
			Name:          "Engagement Rate",
			Value:         round1(current.engagementRate(roster) * 100),
			PreviousValue: round1(previous.engagementRate(roster) * 100),
			Category:      "engagement",
			Description:   "Share of students with at least one activity in the window",
		},
		{
			Name:          "Quest Completion",
			Value:         round1(current.questRate() * 100),
			PreviousValue: round1(previous.questRate() * 100),
			Category:      "engagement",
			Description:   "Completed quests as a share of assigned quests",
		},
		{
			Name:          "Help Requests",
			Value:         float64(current.helpTotal),
			PreviousValue: float64(previous.helpTotal),
			Category:      "support",
			Description:   "Help requests opened during the window",
		},
		{
			Name:          "Mindfulness Sessions",
			Value:         float64(current.mindfulness),
			PreviousValue: float64(previous.mindfulness),
			Category:      "activity",
			Description:   "Breathing and mindfulness sessions logged during the window",
		},
	}
	for i := range entries {
		entries[i].Trend = trendDirection(entries[i].Value, entries[i].PreviousValue)
	}
	return entries
}

// buildTrendSeries produces the 7 daily points for the most recent calendar
// week, independent of the requested window length.
func (s *WellbeingService) buildTrendSeries(datasets *models.WellbeingDatasets, roster int, now time.Time) []dto.TrendPoint {
	points := make([]dto.TrendPoint, 0, 7)
	for offset := 6; offset >= 0; offset-- {
		day := now.AddDate(0, 0, -offset).Format(dayFormat)

		var positive, neutral, moodCount int
		engagedIDs := map[string]struct{}{}
		questsDone := 0

		for _, entry := range datasets.Moods {
			if entry.Date.UTC().Format(dayFormat) != day {
				continue
			}
			moodCount++
			switch classifyMood(entry.Mood) {
			case models.RiskLow:
				positive++
			case models.RiskMedium:
				neutral++
			}
			engagedIDs[entry.StudentID] = struct{}{}
		}
		for _, record := range datasets.Quests {
			if record.Date.UTC().Format(dayFormat) != day || !record.Completed {
				continue
			}
			questsDone++
			engagedIDs[record.StudentID] = struct{}{}
		}
		for _, entry := range datasets.Gratitude {
			if entry.CreatedAt.UTC().Format(dayFormat) == day {
				engagedIDs[entry.StudentID] = struct{}{}
			}
		}
		for _, entry := range datasets.Kindness {
			if entry.CreatedAt.UTC().Format(dayFormat) == day {
				engagedIDs[entry.StudentID] = struct{}{}
			}
		}
		for _, entry := range datasets.Courage {
			if entry.CreatedAt.UTC().Format(dayFormat) == day {
				engagedIDs[entry.StudentID] = struct{}{}
			}
		}
		for _, entry := range datasets.Mindfulness {
			if entry.CreatedAt.UTC().Format(dayFormat) == day {
				engagedIDs[entry.StudentID] = struct{}{}
			}
		}
		for _, entry := range datasets.Habits {
			if entry.CreatedAt.UTC().Format(dayFormat) == day {
				engagedIDs[entry.StudentID] = struct{}{}
			}
		}

		// Neutral check-ins count half toward the daily mood score.
		wellbeing := 5.5
		if moodCount > 0 {
			ratio := (float64(positive) + 0.5*float64(neutral)) / float64(moodCount)
			wellbeing = clamp(1+ratio*9, 1, 10)
		}
		engagement := 0
		if roster > 0 {
			engagement = int(math.Round(float64(len(engagedIDs)) / float64(roster) * 100))
		}

		points = append(points, dto.TrendPoint{
			Date:            day,
			Wellbeing:       round1(wellbeing),
			Engagement:      engagement,
			MoodCount:       moodCount,
			QuestsCompleted: questsDone,
		})
	}
	return points
}

func buildDistribution(tierCounts map[models.RiskTier]int, roster int) dto.WellbeingDistribution {
	if roster == 0 {
		return dto.WellbeingDistribution{}
	}
	pct := func(count int) float64 {
		return round1(float64(count) / float64(roster) * 100)
	}
	return dto.WellbeingDistribution{
		Thriving: pct(tierCounts[models.RiskLow]),
		Moderate: pct(tierCounts[models.RiskMedium]),
		AtRisk:   pct(tierCounts[models.RiskHigh]),
	}
}

func lastMoods(entries []models.MoodEntry, n int) []models.MoodEntry {
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

// percentChange substitutes 1 for a zero previous denominator so the delta
// stays finite; swings from a near-zero base are therefore indicative only.
func percentChange(current, previous float64) float64 {
	if previous == 0 {
		previous = 1
	}
	return round1((current - previous) / previous * 100)
}

func trendDirection(value, previous float64) string {
	switch {
	case value > previous:
		return "up"
	case value < previous:
		return "down"
	default:
		return "stable"
	}
}

func clamp(value, low, high float64) float64 {
	return math.Min(high, math.Max(low, value))
}

func round1(value float64) float64 {
	return math.Round(value*10) / 10
}
