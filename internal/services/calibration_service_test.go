package services

import (
	"context"
	"testing"
	"time"

	"github.com/remedystack/calibration-engine/internal/engine"
	"github.com/remedystack/calibration-engine/internal/models"
)

type fakeStore struct {
	persisted []models.ConfidencePrediction
	preds     []models.ConfidencePrediction
	lastRange *models.TimeRange
}

func (f *fakeStore) Persist(_ context.Context, pred models.ConfidencePrediction) error {
	f.persisted = append(f.persisted, pred)
	return nil
}

func (f *fakeStore) LoadAll(_ context.Context, within *models.TimeRange) ([]models.ConfidencePrediction, []models.MalformedRecord, error) {
	f.lastRange = within
	return f.preds, nil, nil
}

func newTestService(store *fakeStore) *CalibrationService {
	generator := engine.NewReportGenerator(store, nil, nil, nil)
	trends := engine.NewTrendAnalyzer(nil)
	optimizer := engine.NewThresholdOptimizer(models.Thresholds{Autonomous: 0.90, Assisted: 0.70}, nil, nil)
	calibrator := engine.NewCalibrator(store, nil, engine.CalibratorOptions{}, nil)
	return NewCalibrationService(nil, store, generator, trends, optimizer, calibrator, nil, 90)
}

func TestRecordOutcomeStampsMissingTimestamp(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)
	fixed := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	pred := models.ConfidencePrediction{
		IssueID:             "issue-1",
		PredictedConfidence: 0.9,
		PredictedAction:     models.ActionAutonomous,
		ActualOutcome:       models.OutcomeSuccess,
		IssueType:           models.IssueBroken,
	}
	if err := svc.RecordOutcome(context.Background(), pred); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(store.persisted) != 1 {
		t.Fatalf("persisted = %d", len(store.persisted))
	}
	if !store.persisted[0].Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v, want stamped %v", store.persisted[0].Timestamp, fixed)
	}

	// An explicit timestamp is left untouched.
	explicit := fixed.Add(-48 * time.Hour)
	pred.IssueID = "issue-2"
	pred.Timestamp = explicit
	if err := svc.RecordOutcome(context.Background(), pred); err != nil {
		t.Fatalf("record: %v", err)
	}
	if !store.persisted[1].Timestamp.Equal(explicit) {
		t.Errorf("timestamp = %v, want caller's %v", store.persisted[1].Timestamp, explicit)
	}
}

func TestAnalyzeTrendsUsesTrailingWindow(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)
	fixed := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	if _, err := svc.AnalyzeTrends(context.Background(), 30); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if store.lastRange == nil {
		t.Fatalf("expected a bounded load window")
	}
	if !store.lastRange.Start.Equal(fixed.AddDate(0, 0, -30)) || !store.lastRange.End.Equal(fixed) {
		t.Errorf("window = %+v", store.lastRange)
	}

	// Non-positive days fall back to the configured window.
	if _, err := svc.AnalyzeTrends(context.Background(), 0); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !store.lastRange.Start.Equal(fixed.AddDate(0, 0, -90)) {
		t.Errorf("fallback window start = %v", store.lastRange.Start)
	}
}

func TestAdjustThresholdsLoadsFullHistory(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)

	adj, err := svc.AdjustThresholds(context.Background(), 0.95, 10)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if store.lastRange != nil {
		t.Errorf("threshold sweep must load the full history, got window %+v", store.lastRange)
	}
	if adj.Insufficient == nil {
		t.Errorf("expected insufficient-data sentinel with no records")
	}
}

func TestThresholdHistoryNilReader(t *testing.T) {
	svc := newTestService(&fakeStore{})
	entries, err := svc.ThresholdHistory()
	if err != nil || entries != nil {
		t.Fatalf("nil reader should yield nothing, got %v, %v", entries, err)
	}
}
