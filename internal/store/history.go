package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/remedystack/calibration-engine/internal/models"
	"github.com/remedystack/calibration-engine/internal/utils"
)

// ThresholdHistory is the append-only audit log of threshold adjustments,
// one JSON document per line. Prior entries are never rewritten or removed.
type ThresholdHistory struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewThresholdHistory constructs a history writing to path.
func NewThresholdHistory(path string, logger *slog.Logger) *ThresholdHistory {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThresholdHistory{path: path, logger: logger}
}

// Append adds one adjustment to the end of the log.
func (h *ThresholdHistory) Append(adj models.ThresholdAdjustment) error {
	data, err := json.Marshal(adj)
	if err != nil {
		return utils.NewStorageError("encode threshold adjustment", h.path, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if dir := filepath.Dir(h.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return utils.NewStorageError("create history directory", dir, err)
		}
	}
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return utils.NewStorageError("open threshold history", h.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return utils.NewStorageError("append threshold history", h.path, err)
	}
	return nil
}

// List returns all recorded adjustments in append order. Lines that fail to
// parse are skipped with a warning.
func (h *ThresholdHistory) List() ([]models.ThresholdAdjustment, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.Open(h.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, utils.NewStorageError("open threshold history", h.path, err)
	}
	defer f.Close()

	var entries []models.ThresholdAdjustment
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var adj models.ThresholdAdjustment
		if err := json.Unmarshal(line, &adj); err != nil {
			h.logger.Warn("skipping malformed history line", slog.String("reason", err.Error()))
			continue
		}
		entries = append(entries, adj)
	}
	if err := scanner.Err(); err != nil {
		return nil, utils.NewStorageError("read threshold history", h.path, err)
	}
	return entries, nil
}
