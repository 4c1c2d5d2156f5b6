package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/remedystack/calibration-engine/internal/models"
)

func TestThresholdHistoryAppendAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "threshold-history.jsonl")
	h := NewThresholdHistory(path, nil)

	first := models.ThresholdAdjustment{
		CurrentThresholds:     models.Thresholds{Autonomous: 0.90, Assisted: 0.70},
		RecommendedThresholds: models.Thresholds{Autonomous: 0.92, Assisted: 0.70},
		AdjustmentNeeded:      false,
		Timestamp:             time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
	}
	second := first
	second.RecommendedThresholds.Autonomous = 0.95
	second.AdjustmentNeeded = true
	second.Timestamp = second.Timestamp.Add(24 * time.Hour)

	if err := h.Append(first); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := h.Append(second); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := h.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].RecommendedThresholds.Autonomous != 0.92 {
		t.Errorf("first entry out of order: %+v", entries[0])
	}
	if !entries[1].AdjustmentNeeded {
		t.Errorf("second entry lost its flag: %+v", entries[1])
	}
}

func TestThresholdHistoryAppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	h := NewThresholdHistory(path, nil)

	adj := models.ThresholdAdjustment{Timestamp: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)}
	if err := h.Append(adj); err != nil {
		t.Fatalf("append: %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if err := h.Append(adj); err != nil {
		t.Fatalf("append: %v", err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if !strings.HasPrefix(string(after), string(before)) {
		t.Fatalf("prior entries were rewritten")
	}
	if strings.Count(string(after), "\n") != 2 {
		t.Fatalf("expected two newline-terminated lines, got %q", string(after))
	}
}

func TestThresholdHistoryListMissingFile(t *testing.T) {
	h := NewThresholdHistory(filepath.Join(t.TempDir(), "absent.jsonl"), nil)
	entries, err := h.List()
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected no entries, got %v", entries)
	}
}

func TestThresholdHistorySkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	content := `{"adjustment_needed":true,"timestamp":"2026-07-01T12:00:00Z","current_thresholds":{"autonomous":0.9,"assisted":0.7},"recommended_thresholds":{"autonomous":0.9,"assisted":0.7}}
not json at all
{"adjustment_needed":false,"timestamp":"2026-07-02T12:00:00Z","current_thresholds":{"autonomous":0.9,"assisted":0.7},"recommended_thresholds":{"autonomous":0.9,"assisted":0.7}}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	h := NewThresholdHistory(path, nil)
	entries, err := h.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected malformed line skipped, got %d entries", len(entries))
	}
}
