package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/remedystack/calibration-engine/internal/cache"
	"github.com/remedystack/calibration-engine/internal/models"
)

// cacheKeyDecileMap is where a built calibration map is cached.
const cacheKeyDecileMap = "calibration:decile-map"

// DecilePoint is the observed success fraction for one 0.1-wide confidence
// decile.
type DecilePoint struct {
	Decile       int     `json:"decile"`
	ObservedRate float64 `json:"observed_rate"`
	Count        int     `json:"count"`
}

// CalibrationMap is the confidence-to-probability lookup built from history.
// Deciles are keyed by floor(confidence*10), independent of the six
// reporting buckets. The per-decile averages carry no monotonicity
// constraint; this is deliberately not isotonic regression.
type CalibrationMap struct {
	Deciles     map[int]DecilePoint `json:"deciles"`
	SampleCount int                 `json:"sample_count"`
	BuiltAt     time.Time           `json:"built_at"`
}

// BuildMap partitions predictions into deciles and computes each decile's
// raw observed success fraction.
func BuildMap(preds []models.ConfidencePrediction) CalibrationMap {
	type agg struct {
		count     int
		successes int
	}
	byDecile := make(map[int]*agg)

	for _, pred := range preds {
		d := decileOf(pred.PredictedConfidence)
		a, ok := byDecile[d]
		if !ok {
			a = &agg{}
			byDecile[d] = a
		}
		a.count++
		if pred.Succeeded() {
			a.successes++
		}
	}

	m := CalibrationMap{
		Deciles:     make(map[int]DecilePoint, len(byDecile)),
		SampleCount: len(preds),
		BuiltAt:     time.Now().UTC(),
	}
	for d, a := range byDecile {
		m.Deciles[d] = DecilePoint{
			Decile:       d,
			ObservedRate: float64(a.successes) / float64(a.count),
			Count:        a.count,
		}
	}
	return m
}

// Apply maps a raw confidence through the calibration lookup. An exact
// decile hit returns its observed rate; a miss interpolates linearly between
// the nearest populated deciles on either side, weighted by the fractional
// offset within the 0.1 interval. With only one populated side that side's
// value is returned; with none, the input passes through unchanged, so
// calibration degrades to a no-op rather than failing.
func Apply(confidence float64, m CalibrationMap) float64 {
	d := decileOf(confidence)
	if p, ok := m.Deciles[d]; ok {
		return p.ObservedRate
	}

	lower, hasLower := nearestBelow(m, d)
	upper, hasUpper := nearestAbove(m, d)
	switch {
	case hasLower && hasUpper:
		frac := confidence*10 - math.Floor(confidence*10)
		return lower.ObservedRate + (upper.ObservedRate-lower.ObservedRate)*frac
	case hasLower:
		return lower.ObservedRate
	case hasUpper:
		return upper.ObservedRate
	default:
		return confidence
	}
}

func decileOf(confidence float64) int {
	return int(math.Floor(confidence * 10))
}

func nearestBelow(m CalibrationMap, d int) (DecilePoint, bool) {
	for i := d - 1; i >= 0; i-- {
		if p, ok := m.Deciles[i]; ok {
			return p, true
		}
	}
	return DecilePoint{}, false
}

func nearestAbove(m CalibrationMap, d int) (DecilePoint, bool) {
	for i := d + 1; i <= 10; i++ {
		if p, ok := m.Deciles[i]; ok {
			return p, true
		}
	}
	return DecilePoint{}, false
}

// PredictionLoader is the record-store behaviour the engine depends on.
type PredictionLoader interface {
	LoadAll(ctx context.Context, within *models.TimeRange) ([]models.ConfidencePrediction, []models.MalformedRecord, error)
}

// CalibratorOptions defines the map refresh policy.
type CalibratorOptions struct {
	// RefreshAfter rebuilds the map after this many Apply calls.
	RefreshAfter int
	// MaxAge rebuilds the map once it is older than this.
	MaxAge time.Duration
	// CacheTTL bounds how long a built map may be served from the cache.
	CacheTTL time.Duration
}

// Calibrator is the caller-owned calibration context. It holds the current
// decile map and refreshes it per an explicit policy instead of hiding a
// load-once global behind the classifier.
type Calibrator struct {
	loader PredictionLoader
	cache  cache.Provider
	opts   CalibratorOptions
	logger *slog.Logger

	mu      sync.Mutex
	current CalibrationMap
	applies int
	loaded  bool
}

// NewCalibrator constructs a Calibrator. cacheProvider may be nil.
func NewCalibrator(loader PredictionLoader, cacheProvider cache.Provider, opts CalibratorOptions, logger *slog.Logger) *Calibrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if opts.RefreshAfter <= 0 {
		opts.RefreshAfter = 100
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 15 * time.Minute
	}
	return &Calibrator{
		loader: loader,
		cache:  cacheProvider,
		opts:   opts,
		logger: logger,
	}
}

// Apply calibrates one raw confidence score, refreshing the map first when
// the policy requires it.
func (c *Calibrator) Apply(ctx context.Context, confidence float64) (float64, error) {
	if confidence < 0 || confidence > 1 {
		return 0, fmt.Errorf("confidence %f outside [0,1]", confidence)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stale() {
		if err := c.refreshLocked(ctx); err != nil {
			return 0, err
		}
	}
	c.applies++
	return Apply(confidence, c.current), nil
}

// Refresh forces an immediate rebuild regardless of policy.
func (c *Calibrator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.cache.Del(ctx, cacheKeyDecileMap); err != nil {
		c.logger.Debug("cache invalidation failed", slog.Any("error", err))
	}
	return c.refreshLocked(ctx)
}

func (c *Calibrator) stale() bool {
	if !c.loaded {
		return true
	}
	if c.applies >= c.opts.RefreshAfter {
		return true
	}
	return time.Since(c.current.BuiltAt) > c.opts.MaxAge
}

func (c *Calibrator) refreshLocked(ctx context.Context) error {
	if data, err := c.cache.Get(ctx, cacheKeyDecileMap); err == nil {
		var m CalibrationMap
		if err := json.Unmarshal(data, &m); err == nil && time.Since(m.BuiltAt) <= c.opts.MaxAge {
			c.current = m
			c.applies = 0
			c.loaded = true
			return nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Debug("cache read failed", slog.Any("error", err))
	}

	preds, _, err := c.loader.LoadAll(ctx, nil)
	if err != nil {
		return fmt.Errorf("load predictions for calibration map: %w", err)
	}
	c.current = BuildMap(preds)
	c.applies = 0
	c.loaded = true

	if data, err := json.Marshal(c.current); err == nil {
		if err := c.cache.Set(ctx, cacheKeyDecileMap, data, c.opts.CacheTTL); err != nil {
			c.logger.Debug("cache write failed", slog.Any("error", err))
		}
	}
	c.logger.Debug("calibration map rebuilt",
		slog.Int("deciles", len(c.current.Deciles)),
		slog.Int("samples", c.current.SampleCount))
	return nil
}
