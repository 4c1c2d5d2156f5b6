package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/remedystack/calibration-engine/internal/models"
	"github.com/remedystack/calibration-engine/internal/utils"
)

// poorCalibrationThreshold flags issue types whose mean absolute error
// against the outcome indicator exceeds it.
const poorCalibrationThreshold = 0.10

// TrendAnalyzer tracks calibration-error drift across calendar weeks.
type TrendAnalyzer struct {
	logger *slog.Logger
}

// NewTrendAnalyzer constructs an analyzer.
func NewTrendAnalyzer(logger *slog.Logger) *TrendAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrendAnalyzer{logger: logger}
}

// GroupByWeek buckets predictions by ISO-8601 week label and computes
// per-week statistics, sorted lexicographically (chronological because the
// labels are zero-padded).
func (a *TrendAnalyzer) GroupByWeek(preds []models.ConfidencePrediction) []models.WeeklyTrend {
	type agg struct {
		count     int
		successes int
		confSum   float64
	}
	byWeek := make(map[string]*agg)
	for _, pred := range preds {
		label := utils.WeekLabel(pred.Timestamp)
		w, ok := byWeek[label]
		if !ok {
			w = &agg{}
			byWeek[label] = w
		}
		w.count++
		w.confSum += pred.PredictedConfidence
		if pred.Succeeded() {
			w.successes++
		}
	}

	weeks := make([]models.WeeklyTrend, 0, len(byWeek))
	for label, w := range byWeek {
		predictedAvg := w.confSum / float64(w.count)
		successRate := float64(w.successes) / float64(w.count)
		weeks = append(weeks, models.WeeklyTrend{
			Week:              label,
			PredictedAvg:      predictedAvg,
			ActualSuccessRate: successRate,
			CalibrationError:  predictedAvg - successRate,
			PredictionsCount:  w.count,
		})
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].Week < weeks[j].Week })
	return weeks
}

// Analyze produces the full trend report. Zero records yield the
// InsufficientData sentinel; fewer than two weeks yield a stable summary
// with zero improvement figures, since the half-split needs two halves.
func (a *TrendAnalyzer) Analyze(preds []models.ConfidencePrediction) models.TrendReport {
	if len(preds) == 0 {
		return models.TrendReport{
			Summary: models.TrendSummary{ImprovementTrend: "stable"},
			Insufficient: &models.InsufficientData{
				Required: 1,
				Got:      0,
				Reason:   "no predictions in the analysis window",
			},
		}
	}

	weeks := a.GroupByWeek(preds)
	report := models.TrendReport{
		WeeksAnalyzed: len(weeks),
		Trends:        weeks,
	}

	if len(weeks) < 2 {
		report.Summary = models.TrendSummary{ImprovementTrend: "stable"}
		report.PoorlyCalibratedTypes = poorlyCalibratedTypes(preds)
		report.Recommendations = append(report.Recommendations,
			"only one week of history; collect more data before judging the trend")
		return report
	}

	// Split the chronologically sorted weeks into halves by count, not
	// elapsed time. The first half keeps the shorter share on odd counts.
	half := len(weeks) / 2
	firstMean := meanAbsError(weeks[:half])
	secondMean := meanAbsError(weeks[half:])
	improvement := firstMean - secondMean

	summary := models.TrendSummary{
		FirstHalfAvgError:  firstMean,
		SecondHalfAvgError: secondMean,
	}
	if firstMean != 0 {
		summary.ImprovementPercentage = improvement / firstMean * 100
	}
	switch {
	case improvement > 0:
		summary.ImprovementTrend = "improving"
	case improvement < 0:
		summary.ImprovementTrend = "degrading"
	default:
		summary.ImprovementTrend = "stable"
	}
	report.Summary = summary
	report.PoorlyCalibratedTypes = poorlyCalibratedTypes(preds)
	report.Recommendations = a.recommend(report, preds)
	return report
}

func meanAbsError(weeks []models.WeeklyTrend) float64 {
	if len(weeks) == 0 {
		return 0
	}
	sum := 0.0
	for _, w := range weeks {
		sum += math.Abs(w.CalibrationError)
	}
	return sum / float64(len(weeks))
}

// poorlyCalibratedTypes computes, per issue type, the mean absolute gap
// between predicted confidence and the outcome indicator (1 for success,
// 0 otherwise) across all matching records, and flags types above the
// threshold. This is a per-record average, not a bucket average.
func poorlyCalibratedTypes(preds []models.ConfidencePrediction) []models.IssueType {
	type agg struct {
		count  int
		errSum float64
	}
	byType := make(map[models.IssueType]*agg)
	for _, pred := range preds {
		indicator := 0.0
		if pred.Succeeded() {
			indicator = 1.0
		}
		a, ok := byType[pred.IssueType]
		if !ok {
			a = &agg{}
			byType[pred.IssueType] = a
		}
		a.count++
		a.errSum += math.Abs(pred.PredictedConfidence - indicator)
	}

	var flagged []models.IssueType
	for t, a := range byType {
		if a.errSum/float64(a.count) > poorCalibrationThreshold {
			flagged = append(flagged, t)
		}
	}
	sort.Slice(flagged, func(i, j int) bool { return flagged[i] < flagged[j] })
	return flagged
}

func (a *TrendAnalyzer) recommend(report models.TrendReport, preds []models.ConfidencePrediction) []string {
	recs := make([]string, 0, 2)
	if report.Summary.ImprovementTrend == "degrading" {
		recs = append(recs, "calibration error is growing week over week; review recent classifier changes")
	}
	for _, t := range report.PoorlyCalibratedTypes {
		recs = append(recs, fmt.Sprintf("confidence for %s issues diverges from outcomes; recalibrate that category", t))
	}
	if len(recs) == 0 {
		recs = append(recs, "calibration trend is healthy; keep current settings")
	}
	return recs
}
