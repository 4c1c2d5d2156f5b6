package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels operations that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels operations that failed (storage or input issues).
	OutcomeError = "error"
)

var (
	outcomesRecordedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "calibration",
			Name:      "outcomes_recorded_total",
			Help:      "Prediction/outcome records persisted, partitioned by issue type.",
		},
		[]string{"issue_type"},
	)

	passesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "calibration",
			Name:      "passes_total",
			Help:      "Calibration passes handled, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	passDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "calibration",
			Name:      "pass_seconds",
			Help:      "Calibration pass latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	meanAbsCalibrationError = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "calibration",
			Name:      "mean_abs_error",
			Help:      "Mean absolute calibration error across buckets from the last report pass.",
		},
	)

	appliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "calibration",
			Name:      "applies_total",
			Help:      "Raw confidence scores calibrated for the classifier.",
		},
	)
)

// Register attaches calibration collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		outcomesRecordedTotal,
		passesTotal,
		passDurationSeconds,
		meanAbsCalibrationError,
		appliesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// RecordOutcome counts one persisted outcome record.
func RecordOutcome(issueType string) {
	outcomesRecordedTotal.WithLabelValues(issueType).Inc()
}

// ObservePass records a pass duration and outcome for an operation.
func ObservePass(operation string, duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	passesTotal.WithLabelValues(operation, label).Inc()
	if duration < 0 {
		duration = 0
	}
	passDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetMeanAbsError publishes the latest mean absolute calibration error.
func SetMeanAbsError(err float64) {
	meanAbsCalibrationError.Set(err)
}

// ObserveApply counts one calibrated score handed to the classifier.
func ObserveApply() {
	appliesTotal.Inc()
}
