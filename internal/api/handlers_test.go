package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/remedystack/calibration-engine/internal/cache"
	"github.com/remedystack/calibration-engine/internal/engine"
	"github.com/remedystack/calibration-engine/internal/models"
	"github.com/remedystack/calibration-engine/internal/services"
	"github.com/remedystack/calibration-engine/internal/store"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	predictions, err := store.Open(store.StoreOptions{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = predictions.Close() })

	dir := t.TempDir()
	archive := store.NewReportArchive(filepath.Join(dir, "reports"))
	history := store.NewThresholdHistory(filepath.Join(dir, "history.jsonl"), nil)

	generator := engine.NewReportGenerator(predictions, archive, nil, nil)
	trends := engine.NewTrendAnalyzer(nil)
	optimizer := engine.NewThresholdOptimizer(models.Thresholds{Autonomous: 0.90, Assisted: 0.70}, history, nil)
	calibrator := engine.NewCalibrator(predictions, cache.NewMemoryProvider(), engine.CalibratorOptions{}, nil)

	service := services.NewCalibrationService(nil, predictions, generator, trends, optimizer, calibrator, history, 90)
	return NewHandler(nil, service)
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func outcomePayload(id string, confidence float64, outcome string) map[string]any {
	return map[string]any{
		"issue_id":                id,
		"predicted_confidence":    confidence,
		"predicted_action":        "autonomous",
		"actual_outcome":          outcome,
		"resolution_time_minutes": 14.5,
		"issue_type":              "broken",
		"timestamp":               time.Now().UTC().Format(time.RFC3339),
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestHandler(t)
	rec := get(handler, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRecordOutcome(t *testing.T) {
	handler := newTestHandler(t)

	rec := postJSON(t, handler, "/api/v1/calibration/outcomes", outcomePayload("issue-1", 0.95, "success"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["issue_id"] != "issue-1" {
		t.Errorf("response = %v", resp)
	}
}

func TestRecordOutcomeValidation(t *testing.T) {
	handler := newTestHandler(t)

	bad := outcomePayload("issue-1", 1.5, "success")
	rec := postJSON(t, handler, "/api/v1/calibration/outcomes", bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for out-of-range confidence", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/calibration/outcomes", bytes.NewReader([]byte("{not json")))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed body", resp.Code)
	}
}

func TestApplyConfidence(t *testing.T) {
	handler := newTestHandler(t)

	// 10 records at 0.95 with 8 successes: decile 9 observes 0.8.
	for i := 0; i < 10; i++ {
		outcome := "success"
		if i < 2 {
			outcome = "failed"
		}
		rec := postJSON(t, handler, "/api/v1/calibration/outcomes", outcomePayload(fmt.Sprintf("issue-%d", i), 0.95, outcome))
		if rec.Code != http.StatusCreated {
			t.Fatalf("seed outcome: status %d", rec.Code)
		}
	}

	rec := postJSON(t, handler, "/api/v1/calibration/apply", map[string]float64{"confidence": 0.93})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]float64
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["raw"] != 0.93 {
		t.Errorf("raw = %v", resp["raw"])
	}
	if resp["calibrated"] != 0.8 {
		t.Errorf("calibrated = %v, want observed rate 0.8", resp["calibrated"])
	}

	rec = postJSON(t, handler, "/api/v1/calibration/apply", map[string]float64{"confidence": 1.5})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for out-of-range confidence", rec.Code)
	}
}

func TestBuildReportEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	// No data yet: still 200, with the explicit no-data message.
	rec := get(handler, "/api/v1/calibration/report?period=all")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var report models.CalibrationReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Message != "no predictions found" {
		t.Fatalf("message = %q", report.Message)
	}

	for i := 0; i < 5; i++ {
		postJSON(t, handler, "/api/v1/calibration/outcomes", outcomePayload(fmt.Sprintf("issue-%d", i), 0.95, "success"))
	}
	rec = get(handler, "/api/v1/calibration/report?period=week")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.TotalPredictions != 5 {
		t.Errorf("total = %d, want 5", report.TotalPredictions)
	}

	rec = get(handler, "/api/v1/calibration/report?period=fortnight")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown period", rec.Code)
	}
}

func TestTrendsEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	rec := get(handler, "/api/v1/calibration/trends")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var report models.TrendReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Insufficient == nil {
		t.Errorf("expected insufficient-data sentinel with no records")
	}

	rec = get(handler, "/api/v1/calibration/trends?days=-1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for negative days", rec.Code)
	}
}

func TestThresholdsEndpointAndHistory(t *testing.T) {
	handler := newTestHandler(t)

	// Below the sample minimum: 200 with the sentinel, nothing appended.
	rec := postJSON(t, handler, "/api/v1/calibration/thresholds", map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var adj models.ThresholdAdjustment
	if err := json.Unmarshal(rec.Body.Bytes(), &adj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if adj.Insufficient == nil {
		t.Fatalf("expected insufficient-data sentinel")
	}

	rec = get(handler, "/api/v1/calibration/thresholds/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var hist struct {
		Entries []models.ThresholdAdjustment `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hist.Entries) != 0 {
		t.Fatalf("insufficient-data run must not append to history, got %d entries", len(hist.Entries))
	}

	// Enough records for a sweep: the adjustment lands in the audit log.
	for i := 0; i < 20; i++ {
		postJSON(t, handler, "/api/v1/calibration/outcomes", outcomePayload(fmt.Sprintf("issue-%d", i), 0.96, "success"))
	}
	rec = postJSON(t, handler, "/api/v1/calibration/thresholds", map[string]any{"target_success_rate": 0.95, "min_sample_size": 10})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	adj = models.ThresholdAdjustment{}
	if err := json.Unmarshal(rec.Body.Bytes(), &adj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if adj.Insufficient != nil {
		t.Fatalf("unexpected sentinel: %+v", adj.Insufficient)
	}
	if adj.RecommendedThresholds.Autonomous != 0.96 {
		t.Errorf("autonomous = %v, want 0.96", adj.RecommendedThresholds.Autonomous)
	}

	rec = get(handler, "/api/v1/calibration/thresholds/history")
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hist.Entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(hist.Entries))
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(t)
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/calibration/report", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
