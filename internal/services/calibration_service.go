package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/remedystack/calibration-engine/internal/engine"
	"github.com/remedystack/calibration-engine/internal/metrics"
	"github.com/remedystack/calibration-engine/internal/models"
	"github.com/remedystack/calibration-engine/internal/utils"
)

// OutcomeStore is the record-store behaviour the service depends on.
type OutcomeStore interface {
	Persist(ctx context.Context, pred models.ConfidencePrediction) error
	LoadAll(ctx context.Context, within *models.TimeRange) ([]models.ConfidencePrediction, []models.MalformedRecord, error)
}

// HistoryReader exposes the threshold audit log to callers.
type HistoryReader interface {
	List() ([]models.ThresholdAdjustment, error)
}

// CalibrationService is the facade the API layer talks to. It owns the
// stores and engines and records metrics and latency per pass.
type CalibrationService struct {
	logger     *slog.Logger
	store      OutcomeStore
	generator  *engine.ReportGenerator
	trends     *engine.TrendAnalyzer
	optimizer  *engine.ThresholdOptimizer
	calibrator *engine.Calibrator
	history    HistoryReader
	trendDays  int
	latencies  *utils.LatencyTracker
	now        func() time.Time
}

// NewCalibrationService constructs the service facade.
func NewCalibrationService(
	logger *slog.Logger,
	store OutcomeStore,
	generator *engine.ReportGenerator,
	trends *engine.TrendAnalyzer,
	optimizer *engine.ThresholdOptimizer,
	calibrator *engine.Calibrator,
	history HistoryReader,
	trendWindowDays int,
) *CalibrationService {
	if logger == nil {
		logger = slog.Default()
	}
	if trendWindowDays <= 0 {
		trendWindowDays = 90
	}
	return &CalibrationService{
		logger:     logger,
		store:      store,
		generator:  generator,
		trends:     trends,
		optimizer:  optimizer,
		calibrator: calibrator,
		history:    history,
		trendDays:  trendWindowDays,
		latencies:  utils.NewLatencyTracker(1024),
		now:        time.Now,
	}
}

// RecordOutcome persists one prediction/outcome record. The timestamp is
// set at write time when the caller left it zero.
func (s *CalibrationService) RecordOutcome(ctx context.Context, pred models.ConfidencePrediction) error {
	if pred.Timestamp.IsZero() {
		pred.Timestamp = s.now().UTC()
	}
	if err := s.store.Persist(ctx, pred); err != nil {
		metrics.ObservePass("record", 0, metrics.OutcomeError)
		return err
	}
	metrics.RecordOutcome(string(pred.IssueType))
	s.logger.Debug("outcome recorded",
		slog.String("issue_id", pred.IssueID),
		slog.String("outcome", string(pred.ActualOutcome)))
	return nil
}

// ApplyConfidence calibrates one raw score through the calibrator.
func (s *CalibrationService) ApplyConfidence(ctx context.Context, raw float64) (float64, error) {
	calibrated, err := s.calibrator.Apply(ctx, raw)
	if err != nil {
		return 0, err
	}
	metrics.ObserveApply()
	return calibrated, nil
}

// BuildReport runs a report pass for the period, archiving per policy.
func (s *CalibrationService) BuildReport(ctx context.Context, period models.ReportPeriod) (models.CalibrationReport, error) {
	start := s.now()
	report, err := s.generator.Generate(ctx, period)
	duration := time.Since(start)
	if err != nil {
		metrics.ObservePass("report", duration, metrics.OutcomeError)
		return models.CalibrationReport{}, err
	}
	metrics.ObservePass("report", duration, metrics.OutcomeSuccess)
	if !report.Empty() {
		metrics.SetMeanAbsError(meanAbsBucketError(report.ByBucket))
	}
	s.observeLatency(duration)
	return report, nil
}

// AnalyzeTrends runs a trend pass over the trailing window. A non-positive
// days argument falls back to the configured window.
func (s *CalibrationService) AnalyzeTrends(ctx context.Context, days int) (models.TrendReport, error) {
	if days <= 0 {
		days = s.trendDays
	}
	start := s.now()
	window := models.TimeRange{Start: start.AddDate(0, 0, -days), End: start}

	preds, _, err := s.store.LoadAll(ctx, &window)
	if err != nil {
		metrics.ObservePass("trend", time.Since(start), metrics.OutcomeError)
		return models.TrendReport{}, fmt.Errorf("load predictions for trend: %w", err)
	}
	report := s.trends.Analyze(preds)
	duration := time.Since(start)
	metrics.ObservePass("trend", duration, metrics.OutcomeSuccess)
	s.observeLatency(duration)
	return report, nil
}

// AdjustThresholds runs the threshold sweep over the full history and
// appends the result to the audit log.
func (s *CalibrationService) AdjustThresholds(ctx context.Context, targetSuccessRate float64, minSampleSize int) (models.ThresholdAdjustment, error) {
	start := s.now()
	preds, _, err := s.store.LoadAll(ctx, nil)
	if err != nil {
		metrics.ObservePass("thresholds", time.Since(start), metrics.OutcomeError)
		return models.ThresholdAdjustment{}, fmt.Errorf("load predictions for threshold sweep: %w", err)
	}

	adj, err := s.optimizer.Adjust(preds, targetSuccessRate, minSampleSize)
	duration := time.Since(start)
	if err != nil {
		metrics.ObservePass("thresholds", duration, metrics.OutcomeError)
		return adj, err
	}
	metrics.ObservePass("thresholds", duration, metrics.OutcomeSuccess)
	s.observeLatency(duration)
	return adj, nil
}

// ThresholdHistory returns the audit log entries in append order.
func (s *CalibrationService) ThresholdHistory() ([]models.ThresholdAdjustment, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.List()
}

func (s *CalibrationService) observeLatency(d time.Duration) {
	s.latencies.Observe(d)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("calibration pass latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", count))
	}
}

// LatencyP95 returns the current p95 pass latency.
func (s *CalibrationService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

func meanAbsBucketError(stats []models.BucketStats) float64 {
	if len(stats) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range stats {
		sum += math.Abs(b.CalibrationError)
	}
	return sum / float64(len(stats))
}
