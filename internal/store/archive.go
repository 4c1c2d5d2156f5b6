package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/remedystack/calibration-engine/internal/models"
	"github.com/remedystack/calibration-engine/internal/utils"
)

// ReportArchive persists calibration reports under a period-scoped path,
// one file per generation day.
type ReportArchive struct {
	dir string
}

// NewReportArchive constructs an archive rooted at dir.
func NewReportArchive(dir string) *ReportArchive {
	return &ReportArchive{dir: dir}
}

// Save writes the report as indented JSON to
// <dir>/<period>/calibration-report-YYYY-MM-DD.json and returns the path.
// Reports are serialized identically here and over the API.
func (a *ReportArchive) Save(report models.CalibrationReport) (string, error) {
	day := report.GeneratedAt
	if day.IsZero() {
		day = time.Now().UTC()
	}

	periodDir := filepath.Join(a.dir, string(report.Period))
	if err := os.MkdirAll(periodDir, 0o750); err != nil {
		return "", utils.NewStorageError("create archive directory", periodDir, err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", utils.NewStorageError("encode report", periodDir, err)
	}

	path := filepath.Join(periodDir, "calibration-report-"+day.Format("2006-01-02")+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", utils.NewStorageError("write report", path, err)
	}
	return path, nil
}
