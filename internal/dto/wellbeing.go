package dto

// WellbeingReport is the assembled analytics payload. Field names and nesting
// are consumed verbatim by the dashboard frontend and must stay stable.
type WellbeingReport struct {
	AverageWellbeingScore float64                `json:"averageWellbeingScore"`
	QuestCompletionRate   int                    `json:"questCompletionRate"`
	Trends                TrendDeltas            `json:"trends"`
	ActivityBreakdown     []RadarEntry           `json:"activityBreakdown"`
	HelpRequests          HelpRequestSummary     `json:"helpRequests"`
	Metrics               []MetricEntry          `json:"metrics"`
	ClassAnalytics        []ClassRollup          `json:"classAnalytics"`
	StudentInsights       []StudentInsight       `json:"studentInsights"`
	TrendData             []TrendPoint           `json:"trendData"`
	WellbeingDistribution WellbeingDistribution  `json:"wellbeingDistribution"`
	TotalStudents         int                    `json:"totalStudents"`
	TimeRange             int                    `json:"timeRange"`
	EngagementRate        int                    `json:"engagementRate"`
}

// TrendDeltas carries signed period-over-period percentage changes, one decimal.
type TrendDeltas struct {
	WellbeingChange    float64 `json:"wellbeingChange"`
	EngagementChange   float64 `json:"engagementChange"`
	QuestChange        float64 `json:"questChange"`
	HelpRequestsChange float64 `json:"helpRequestsChange"`
}

// RadarEntry is one axis of the six-point activity radar.
type RadarEntry struct {
	Subject  string  `json:"subject"`
	A        float64 `json:"A"`
	FullMark int     `json:"fullMark"`
}

// HelpRequestSummary totals help requests and buckets them per week.
type HelpRequestSummary struct {
	Total    int                 `json:"total"`
	Timeline []HelpTimelinePoint `json:"timeline"`
}

// HelpTimelinePoint is one weekly bucket of the help-request timeline.
type HelpTimelinePoint struct {
	Date     string `json:"date"`
	Requests int    `json:"requests"`
	Resolved int    `json:"resolved"`
}

// MetricEntry is one of the six fixed headline metrics.
type MetricEntry struct {
	Name          string  `json:"name"`
	Value         float64 `json:"value"`
	PreviousValue float64 `json:"previousValue"`
	Trend         string  `json:"trend"`
	Category      string  `json:"category"`
	Description   string  `json:"description"`
}

// ClassRollup summarises one class, including classes with no matched students.
type ClassRollup struct {
	ClassName      string  `json:"className"`
	Grade          string  `json:"grade"`
	StudentCount   int     `json:"studentCount"`
	MoodPositivity float64 `json:"moodPositivity"`
	EngagementRate float64 `json:"engagementRate"`
	HelpRequests   int     `json:"helpRequests"`
	WellbeingScore float64 `json:"wellbeingScore"`
	RiskLevel      string  `json:"riskLevel"`
}

// StudentInsight captures per-student risk classification output.
type StudentInsight struct {
	StudentID      string         `json:"studentId"`
	Name           string         `json:"name"`
	Grade          string         `json:"grade"`
	ClassName      string         `json:"className"`
	RiskLevel      string         `json:"riskLevel"`
	Concerns       []string       `json:"concerns"`
	Strengths      []string       `json:"strengths"`
	ActivityScores ActivityScores `json:"activityScores"`
}

// ActivityScores are the six 0-100 adherence scores per student.
type ActivityScores struct {
	Gratitude float64 `json:"gratitude"`
	Kindness  float64 `json:"kindness"`
	Breathing float64 `json:"breathing"`
	Courage   float64 `json:"courage"`
	Sleep     float64 `json:"sleep"`
	Hydration float64 `json:"hydration"`
}

// TrendPoint is one day of the seven-day trend series.
type TrendPoint struct {
	Date            string  `json:"date"`
	Wellbeing       float64 `json:"wellbeing"`
	Engagement      int     `json:"engagement"`
	MoodCount       int     `json:"moodCount"`
	QuestsCompleted int     `json:"questsCompleted"`
}

// WellbeingDistribution splits the roster into percentage buckets by tier.
type WellbeingDistribution struct {
	Thriving float64 `json:"thriving"`
	Moderate float64 `json:"moderate"`
	AtRisk   float64 `json:"atRisk"`
}
