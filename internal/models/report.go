package models

import "time"

// ReportPeriod selects the trailing window a calibration report covers.
type ReportPeriod string

const (
	PeriodWeek  ReportPeriod = "week"
	PeriodMonth ReportPeriod = "month"
	PeriodAll   ReportPeriod = "all"
)

// CalibrationQuality grades mean absolute calibration error across buckets.
type CalibrationQuality string

const (
	QualityExcellent        CalibrationQuality = "excellent"
	QualityGood             CalibrationQuality = "good"
	QualityNeedsImprovement CalibrationQuality = "needs-improvement"
	QualityPoor             CalibrationQuality = "poor"
)

// BucketStats holds per-confidence-band statistics.
// CalibrationError is predicted average minus observed success rate:
// positive means overconfident, negative underconfident.
type BucketStats struct {
	Range             string  `json:"range"`
	Min               float64 `json:"min"`
	Max               float64 `json:"max"`
	PredictionsCount  int     `json:"predictions_count"`
	ActualSuccessRate float64 `json:"actual_success_rate"`
	PredictedAvg      float64 `json:"predicted_confidence_avg"`
	CalibrationError  float64 `json:"calibration_error"`
	Recommendation    string  `json:"recommendation"`
}

// IssueTypeStats mirrors BucketStats scoped to a single issue category.
type IssueTypeStats struct {
	PredictionsCount  int     `json:"predictions_count"`
	ActualSuccessRate float64 `json:"actual_success_rate"`
	PredictedAvg      float64 `json:"predicted_confidence_avg"`
	CalibrationError  float64 `json:"calibration_error"`
}

// CalibrationReport is the composite output of a calibration pass.
// When no predictions match the filters, Message carries the explicit
// "no predictions found" indicator and the statistics sections stay empty.
type CalibrationReport struct {
	Period             ReportPeriod                 `json:"period"`
	TimeRange          TimeRange                    `json:"time_range"`
	TotalPredictions   int                          `json:"total_predictions"`
	OverallAccuracy    float64                      `json:"overall_accuracy"`
	ByBucket           []BucketStats                `json:"by_bucket,omitempty"`
	ByIssueType        map[IssueType]IssueTypeStats `json:"by_issue_type,omitempty"`
	Recommendations    []string                     `json:"recommendations,omitempty"`
	CalibrationQuality CalibrationQuality           `json:"calibration_quality,omitempty"`
	Message            string                       `json:"message,omitempty"`
	GeneratedAt        time.Time                    `json:"generated_at"`
}

// Empty reports whether the pass matched zero predictions.
func (r CalibrationReport) Empty() bool {
	return r.TotalPredictions == 0
}

// WeeklyTrend is one ISO-week entry in a trend analysis.
type WeeklyTrend struct {
	Week              string  `json:"week"`
	PredictedAvg      float64 `json:"predicted_avg"`
	ActualSuccessRate float64 `json:"actual_success_rate"`
	CalibrationError  float64 `json:"calibration_error"`
	PredictionsCount  int     `json:"predictions_count"`
}

// TrendSummary captures week-over-week calibration drift.
type TrendSummary struct {
	ImprovementTrend      string  `json:"improvement_trend"`
	ImprovementPercentage float64 `json:"improvement_percentage"`
	FirstHalfAvgError     float64 `json:"first_half_avg_error"`
	SecondHalfAvgError    float64 `json:"second_half_avg_error"`
}

// InsufficientData describes why a computation had too few records to be
// meaningful. It is a structured, non-fatal result, not an error.
type InsufficientData struct {
	Required int    `json:"required"`
	Got      int    `json:"got"`
	Reason   string `json:"reason"`
}

// TrendReport is the trend analyzer output.
type TrendReport struct {
	WeeksAnalyzed         int               `json:"weeks_analyzed"`
	Trends                []WeeklyTrend     `json:"trends,omitempty"`
	Summary               TrendSummary      `json:"summary"`
	PoorlyCalibratedTypes []IssueType       `json:"poorly_calibrated_types,omitempty"`
	Recommendations       []string          `json:"recommendations,omitempty"`
	Insufficient          *InsufficientData `json:"insufficient_data,omitempty"`
}

// Thresholds is an autonomous/assisted tier boundary pair.
type Thresholds struct {
	Autonomous float64 `json:"autonomous"`
	Assisted   float64 `json:"assisted"`
}

// ThresholdAdjustment is the threshold optimizer output, appended verbatim
// to the append-only audit history.
type ThresholdAdjustment struct {
	CurrentThresholds     Thresholds        `json:"current_thresholds"`
	RecommendedThresholds Thresholds        `json:"recommended_thresholds"`
	Justification         []string          `json:"justification,omitempty"`
	ExpectedImprovement   string            `json:"expected_improvement,omitempty"`
	AdjustmentNeeded      bool              `json:"adjustment_needed"`
	Timestamp             time.Time         `json:"timestamp"`
	Insufficient          *InsufficientData `json:"insufficient_data,omitempty"`
}
