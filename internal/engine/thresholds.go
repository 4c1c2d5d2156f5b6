package engine

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/remedystack/calibration-engine/internal/models"
)

const (
	defaultAutonomousThreshold = 0.90
	defaultAssistedThreshold   = 0.70
	// assistedTargetRate is fixed regardless of the caller's target; the
	// assisted tier has a human in the loop and tolerates a lower bar.
	assistedTargetRate = 0.85
	// adjustmentBand is how far a recommendation must move from the
	// baseline before an adjustment is flagged as needed.
	adjustmentBand = 0.02
)

// HistoryAppender records threshold adjustments in the append-only audit log.
type HistoryAppender interface {
	Append(adj models.ThresholdAdjustment) error
}

// ThresholdOptimizer sweeps candidate tier boundaries against historical
// success rates and recommends new ones.
type ThresholdOptimizer struct {
	current models.Thresholds
	history HistoryAppender
	logger  *slog.Logger
	now     func() time.Time
}

// NewThresholdOptimizer constructs an optimizer; history may be nil for dry
// runs.
func NewThresholdOptimizer(current models.Thresholds, history HistoryAppender, logger *slog.Logger) *ThresholdOptimizer {
	if logger == nil {
		logger = slog.Default()
	}
	if current.Autonomous == 0 {
		current.Autonomous = defaultAutonomousThreshold
	}
	if current.Assisted == 0 {
		current.Assisted = defaultAssistedThreshold
	}
	return &ThresholdOptimizer{
		current: current,
		history: history,
		logger:  logger,
		now:     time.Now,
	}
}

// Adjust runs the threshold sweep over the given predictions and appends the
// resulting adjustment to the audit history. With fewer than minSampleSize
// records it returns the InsufficientData sentinel and performs no sweep and
// no append. The sweep is deterministic: identical inputs produce identical
// recommendations.
func (o *ThresholdOptimizer) Adjust(preds []models.ConfidencePrediction, targetSuccessRate float64, minSampleSize int) (models.ThresholdAdjustment, error) {
	if targetSuccessRate <= 0 {
		targetSuccessRate = 0.95
	}
	if minSampleSize <= 0 {
		minSampleSize = 10
	}

	adj := models.ThresholdAdjustment{
		CurrentThresholds: o.current,
		Timestamp:         o.now().UTC(),
	}

	if len(preds) < minSampleSize {
		adj.RecommendedThresholds = o.current
		adj.Insufficient = &models.InsufficientData{
			Required: minSampleSize,
			Got:      len(preds),
			Reason:   "not enough outcomes for a meaningful threshold sweep",
		}
		return adj, nil
	}

	autonomous, autoNote := o.sweepAutonomous(preds, targetSuccessRate, minSampleSize)
	assisted, assistNote := o.sweepAssisted(preds, autonomous, minSampleSize)
	adj.Justification = append(adj.Justification, autoNote, assistNote)

	// Post-condition: autonomous must not drop below assisted. The sweep
	// ranges overlap in [0.80,0.85], so an inversion is possible; clamp and
	// flag it as a defect rather than returning an inverted pair.
	if autonomous < assisted {
		adj.Justification = append(adj.Justification, fmt.Sprintf(
			"defect: sweep produced assisted threshold %.2f above autonomous %.2f; assisted clamped", assisted, autonomous))
		assisted = autonomous
	}

	adj.RecommendedThresholds = models.Thresholds{Autonomous: autonomous, Assisted: assisted}
	adj.AdjustmentNeeded = math.Abs(autonomous-o.current.Autonomous) > adjustmentBand ||
		math.Abs(assisted-o.current.Assisted) > adjustmentBand
	adj.ExpectedImprovement = o.expectedImprovement(preds, autonomous)

	if o.history != nil {
		if err := o.history.Append(adj); err != nil {
			return adj, fmt.Errorf("append threshold history: %w", err)
		}
	}
	o.logger.Info("threshold sweep complete",
		slog.Float64("autonomous", autonomous),
		slog.Float64("assisted", assisted),
		slog.Bool("adjustment_needed", adj.AdjustmentNeeded))
	return adj, nil
}

// sweepAutonomous walks candidates from 0.99 down to 0.80 and accepts the
// first (highest) threshold whose filtered success rate meets the target.
func (o *ThresholdOptimizer) sweepAutonomous(preds []models.ConfidencePrediction, target float64, minSample int) (float64, string) {
	for i := 99; i >= 80; i-- {
		candidate := float64(i) / 100
		count, successes := countAtOrAbove(preds, candidate)
		if count < minSample {
			continue
		}
		rate := float64(successes) / float64(count)
		if rate >= target {
			return candidate, fmt.Sprintf(
				"autonomous threshold %.2f: %d predictions at or above it succeed at %.1f%% (target %.0f%%)",
				candidate, count, rate*100, target*100)
		}
	}
	return defaultAutonomousThreshold, fmt.Sprintf(
		"no candidate in [0.80,0.99] reached the %.0f%% target; autonomous threshold defaulted to %.2f",
		target*100, defaultAutonomousThreshold)
}

// sweepAssisted walks candidates from 0.85 down to 0.50 over the band below
// the autonomous threshold, against the fixed assisted target.
func (o *ThresholdOptimizer) sweepAssisted(preds []models.ConfidencePrediction, autonomous float64, minSample int) (float64, string) {
	for i := 85; i >= 50; i-- {
		candidate := float64(i) / 100
		count, successes := countInBand(preds, candidate, autonomous)
		if count < minSample {
			continue
		}
		rate := float64(successes) / float64(count)
		if rate >= assistedTargetRate {
			return candidate, fmt.Sprintf(
				"assisted threshold %.2f: %d predictions in [%.2f,%.2f) succeed at %.1f%% (target %.0f%%)",
				candidate, count, candidate, autonomous, rate*100, assistedTargetRate*100)
		}
	}
	return defaultAssistedThreshold, fmt.Sprintf(
		"no candidate in [0.50,0.85] reached the %.0f%% target; assisted threshold defaulted to %.2f",
		assistedTargetRate*100, defaultAssistedThreshold)
}

// expectedImprovement compares the success rate at or above the old
// autonomous threshold against the new one.
func (o *ThresholdOptimizer) expectedImprovement(preds []models.ConfidencePrediction, newAutonomous float64) string {
	oldCount, oldSuccesses := countAtOrAbove(preds, o.current.Autonomous)
	newCount, newSuccesses := countAtOrAbove(preds, newAutonomous)

	oldRate := 0.0
	if oldCount > 0 {
		oldRate = float64(oldSuccesses) / float64(oldCount)
	}
	newRate := 0.0
	if newCount > 0 {
		newRate = float64(newSuccesses) / float64(newCount)
	}

	delta := (newRate - oldRate) * 100
	if math.Abs(delta) <= 1 {
		return "minimal change"
	}
	if delta > 0 {
		return fmt.Sprintf("autonomous success rate expected to rise by %.1f percentage points (%.1f%% to %.1f%%)",
			delta, oldRate*100, newRate*100)
	}
	return fmt.Sprintf("autonomous success rate expected to drop by %.1f percentage points (%.1f%% to %.1f%%)",
		-delta, oldRate*100, newRate*100)
}

func countAtOrAbove(preds []models.ConfidencePrediction, threshold float64) (count, successes int) {
	for _, pred := range preds {
		if pred.PredictedConfidence < threshold {
			continue
		}
		count++
		if pred.Succeeded() {
			successes++
		}
	}
	return count, successes
}

func countInBand(preds []models.ConfidencePrediction, low, high float64) (count, successes int) {
	for _, pred := range preds {
		if pred.PredictedConfidence < low || pred.PredictedConfidence >= high {
			continue
		}
		count++
		if pred.Succeeded() {
			successes++
		}
	}
	return count, successes
}
