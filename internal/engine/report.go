package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/remedystack/calibration-engine/internal/models"
)

// ReportArchiver persists generated reports.
type ReportArchiver interface {
	Save(report models.CalibrationReport) (string, error)
}

// ReportGenerator composes bucket statistics, issue-type statistics and
// recommendations into calibration reports.
type ReportGenerator struct {
	loader  PredictionLoader
	archive ReportArchiver
	rules   *RulePack
	logger  *slog.Logger
	now     func() time.Time
}

// NewReportGenerator constructs a generator; archive and rules may be nil.
func NewReportGenerator(loader PredictionLoader, archive ReportArchiver, rules *RulePack, logger *slog.Logger) *ReportGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportGenerator{
		loader:  loader,
		archive: archive,
		rules:   rules,
		logger:  logger,
		now:     time.Now,
	}
}

// Generate loads the period's records, builds the report, and archives it
// for week and month periods. Reports for period "all" are computed but
// never archived.
func (g *ReportGenerator) Generate(ctx context.Context, period models.ReportPeriod) (models.CalibrationReport, error) {
	timeRange, err := periodRange(period, g.now())
	if err != nil {
		return models.CalibrationReport{}, err
	}

	var within *models.TimeRange
	if !timeRange.IsZero() {
		within = &timeRange
	}
	preds, _, err := g.loader.LoadAll(ctx, within)
	if err != nil {
		return models.CalibrationReport{}, fmt.Errorf("load predictions for report: %w", err)
	}

	report := g.Build(preds, period, timeRange)

	if g.archive != nil && period != models.PeriodAll && !report.Empty() {
		path, err := g.archive.Save(report)
		if err != nil {
			return models.CalibrationReport{}, fmt.Errorf("archive report: %w", err)
		}
		g.logger.Info("report archived", slog.String("period", string(period)), slog.String("path", path))
	}
	return report, nil
}

// Build computes a calibration report over the given predictions. An empty
// input produces an explicit no-data payload rather than an error.
func (g *ReportGenerator) Build(preds []models.ConfidencePrediction, period models.ReportPeriod, timeRange models.TimeRange) models.CalibrationReport {
	report := models.CalibrationReport{
		Period:           period,
		TimeRange:        timeRange,
		TotalPredictions: len(preds),
		GeneratedAt:      g.now().UTC(),
	}
	if len(preds) == 0 {
		report.Message = "no predictions found"
		return report
	}

	successes := 0
	for _, pred := range preds {
		if pred.Succeeded() {
			successes++
		}
	}
	report.OverallAccuracy = float64(successes) / float64(len(preds))
	report.ByBucket = Aggregate(preds)
	report.ByIssueType = aggregateByIssueType(preds)
	report.CalibrationQuality = qualityGrade(report.ByBucket)
	report.Recommendations = g.recommend(report)
	return report
}

func aggregateByIssueType(preds []models.ConfidencePrediction) map[models.IssueType]models.IssueTypeStats {
	type agg struct {
		count     int
		successes int
		confSum   float64
	}
	byType := make(map[models.IssueType]*agg)
	for _, pred := range preds {
		a, ok := byType[pred.IssueType]
		if !ok {
			a = &agg{}
			byType[pred.IssueType] = a
		}
		a.count++
		a.confSum += pred.PredictedConfidence
		if pred.Succeeded() {
			a.successes++
		}
	}

	stats := make(map[models.IssueType]models.IssueTypeStats, len(byType))
	for t, a := range byType {
		successRate := float64(a.successes) / float64(a.count)
		predictedAvg := a.confSum / float64(a.count)
		stats[t] = models.IssueTypeStats{
			PredictionsCount:  a.count,
			ActualSuccessRate: successRate,
			PredictedAvg:      predictedAvg,
			CalibrationError:  predictedAvg - successRate,
		}
	}
	return stats
}

// qualityGrade summarises mean absolute calibration error across buckets.
func qualityGrade(stats []models.BucketStats) models.CalibrationQuality {
	if len(stats) == 0 {
		return models.QualityPoor
	}
	sum := 0.0
	for _, b := range stats {
		sum += math.Abs(b.CalibrationError)
	}
	mean := sum / float64(len(stats))
	switch {
	case mean < 0.05:
		return models.QualityExcellent
	case mean < 0.10:
		return models.QualityGood
	case mean < 0.20:
		return models.QualityNeedsImprovement
	default:
		return models.QualityPoor
	}
}

func (g *ReportGenerator) recommend(report models.CalibrationReport) []string {
	recs := make([]string, 0, 4)

	for _, b := range report.ByBucket {
		if b.Min != 0.90 {
			continue
		}
		if b.ActualSuccessRate < 0.90 {
			recs = append(recs, fmt.Sprintf(
				"autonomous-tier predictions succeed only %.1f%% of the time; raise the autonomous threshold",
				b.ActualSuccessRate*100))
		} else if b.ActualSuccessRate >= 0.95 {
			recs = append(recs, "autonomous tier is well calibrated")
		}
		break
	}

	for _, t := range sortedIssueTypes(report.ByIssueType) {
		stats := report.ByIssueType[t]
		if stats.CalibrationError > 0.10 {
			recs = append(recs, fmt.Sprintf(
				"apply a %.2f confidence multiplier to %s issues",
				math.Round((1-stats.CalibrationError)*100)/100, t))
		}
	}

	if len(recs) == 0 {
		recs = append(recs, "system is well calibrated across issue categories")
	}

	if g.rules != nil {
		recs = appendUnique(recs, g.rules.Recommend(report)...)
	}
	return recs
}

func sortedIssueTypes(stats map[models.IssueType]models.IssueTypeStats) []models.IssueType {
	types := make([]models.IssueType, 0, len(stats))
	for t := range stats {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// periodRange maps a report period to its trailing window ending at now.
func periodRange(period models.ReportPeriod, now time.Time) (models.TimeRange, error) {
	switch period {
	case models.PeriodWeek:
		return models.TimeRange{Start: now.AddDate(0, 0, -7), End: now}, nil
	case models.PeriodMonth:
		return models.TimeRange{Start: now.AddDate(0, 0, -30), End: now}, nil
	case models.PeriodAll:
		return models.TimeRange{}, nil
	default:
		return models.TimeRange{}, fmt.Errorf("unknown report period %q", period)
	}
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
