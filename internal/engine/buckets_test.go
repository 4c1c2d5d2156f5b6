package engine

import (
	"math"
	"strings"
	"testing"

	"github.com/remedystack/calibration-engine/internal/models"
)

func pred(confidence float64, outcome models.Outcome) models.ConfidencePrediction {
	return models.ConfidencePrediction{
		PredictedConfidence: confidence,
		ActualOutcome:       outcome,
		IssueType:           models.IssueBroken,
	}
}

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		confidence float64
		want       string
	}{
		{1.00, "0.90-1.00"},
		{0.90, "0.90-1.00"},
		{0.899, "0.80-0.89"},
		{0.80, "0.80-0.89"},
		{0.70, "0.70-0.79"},
		{0.60, "0.60-0.69"},
		{0.50, "0.50-0.59"},
		{0.49, "0.00-0.49"},
		{0.00, "0.00-0.49"},
	}
	for _, tc := range cases {
		if got := Classify(tc.confidence).Label; got != tc.want {
			t.Errorf("Classify(%v) = %q, want %q", tc.confidence, got, tc.want)
		}
	}
}

func TestAggregateOverconfidentTopBucket(t *testing.T) {
	preds := make([]models.ConfidencePrediction, 0, 20)
	for i := 0; i < 20; i++ {
		outcome := models.OutcomeSuccess
		if i < 2 {
			outcome = models.OutcomeFailed
		}
		preds = append(preds, pred(0.95, outcome))
	}

	stats := Aggregate(preds)
	if len(stats) != 1 {
		t.Fatalf("expected one populated bucket, got %d", len(stats))
	}

	b := stats[0]
	if b.Range != "0.90-1.00" {
		t.Fatalf("expected top bucket, got %q", b.Range)
	}
	if b.PredictionsCount != 20 {
		t.Errorf("count = %d, want 20", b.PredictionsCount)
	}
	if math.Abs(b.ActualSuccessRate-0.90) > 1e-9 {
		t.Errorf("success rate = %v, want 0.90", b.ActualSuccessRate)
	}
	if math.Abs(b.PredictedAvg-0.95) > 1e-9 {
		t.Errorf("predicted avg = %v, want 0.95", b.PredictedAvg)
	}
	if math.Abs(b.CalibrationError-0.05) > 1e-9 {
		t.Errorf("calibration error = %v, want 0.05", b.CalibrationError)
	}
	if !strings.Contains(b.Recommendation, "0.95 multiplier") {
		t.Errorf("recommendation %q should suggest a 0.95 multiplier", b.Recommendation)
	}
}

func TestAggregateOmitsEmptyBucketsAndSortsDescending(t *testing.T) {
	preds := []models.ConfidencePrediction{
		pred(0.30, models.OutcomeFailed),
		pred(0.95, models.OutcomeSuccess),
		pred(0.75, models.OutcomeSuccess),
	}

	stats := Aggregate(preds)
	if len(stats) != 3 {
		t.Fatalf("expected 3 populated buckets, got %d", len(stats))
	}
	wantOrder := []string{"0.90-1.00", "0.70-0.79", "0.00-0.49"}
	for i, want := range wantOrder {
		if stats[i].Range != want {
			t.Errorf("stats[%d].Range = %q, want %q", i, stats[i].Range, want)
		}
	}
}

func TestBucketRecommendation(t *testing.T) {
	cases := []struct {
		calErr float64
		want   string
	}{
		{0.00, "well calibrated"},
		{0.04, "well calibrated"},
		{-0.04, "well calibrated"},
		{0.05, "slightly overconfident, consider a 0.95 multiplier"},
		{0.10, "slightly overconfident, consider a 0.90 multiplier"},
		{0.20, "significantly overconfident, lower threshold by 20%"},
		{-0.10, "underconfident, can be more aggressive"},
	}
	for _, tc := range cases {
		if got := bucketRecommendation(tc.calErr); got != tc.want {
			t.Errorf("bucketRecommendation(%v) = %q, want %q", tc.calErr, got, tc.want)
		}
	}
}

func TestAggregateRollbackCountsAsFailure(t *testing.T) {
	preds := []models.ConfidencePrediction{
		pred(0.95, models.OutcomeSuccess),
		pred(0.95, models.OutcomeRollback),
	}
	stats := Aggregate(preds)
	if len(stats) != 1 {
		t.Fatalf("expected one bucket, got %d", len(stats))
	}
	if math.Abs(stats[0].ActualSuccessRate-0.5) > 1e-9 {
		t.Errorf("success rate = %v, want 0.5", stats[0].ActualSuccessRate)
	}
}
