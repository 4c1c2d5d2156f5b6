package engine

import (
	"fmt"
	"math"

	"github.com/remedystack/calibration-engine/internal/models"
)

// Bucket is one of the six fixed confidence bands used for reporting.
type Bucket struct {
	Min   float64
	Max   float64
	Label string
}

// buckets partition [0,1] without gaps. Classification tests them top-down
// and assigns the first match, so each boundary value (0.90, 0.80, ...)
// lands in the higher of its two adjacent bands.
var buckets = []Bucket{
	{Min: 0.90, Max: 1.00, Label: "0.90-1.00"},
	{Min: 0.80, Max: 0.89, Label: "0.80-0.89"},
	{Min: 0.70, Max: 0.79, Label: "0.70-0.79"},
	{Min: 0.60, Max: 0.69, Label: "0.60-0.69"},
	{Min: 0.50, Max: 0.59, Label: "0.50-0.59"},
	{Min: 0.00, Max: 0.49, Label: "0.00-0.49"},
}

// Classify maps a confidence in [0,1] to its bucket.
func Classify(confidence float64) Bucket {
	for _, b := range buckets[:len(buckets)-1] {
		if confidence >= b.Min {
			return b
		}
	}
	return buckets[len(buckets)-1]
}

// Aggregate groups predictions into buckets and computes per-bucket
// statistics. Buckets with no predictions are omitted; the result is sorted
// by descending range minimum.
func Aggregate(preds []models.ConfidencePrediction) []models.BucketStats {
	type agg struct {
		count     int
		successes int
		confSum   float64
	}
	byLabel := make(map[string]*agg, len(buckets))

	for _, pred := range preds {
		b := Classify(pred.PredictedConfidence)
		a, ok := byLabel[b.Label]
		if !ok {
			a = &agg{}
			byLabel[b.Label] = a
		}
		a.count++
		a.confSum += pred.PredictedConfidence
		if pred.Succeeded() {
			a.successes++
		}
	}

	stats := make([]models.BucketStats, 0, len(byLabel))
	for _, b := range buckets {
		a, ok := byLabel[b.Label]
		if !ok {
			continue
		}
		successRate := float64(a.successes) / float64(a.count)
		predictedAvg := a.confSum / float64(a.count)
		calErr := predictedAvg - successRate
		stats = append(stats, models.BucketStats{
			Range:             b.Label,
			Min:               b.Min,
			Max:               b.Max,
			PredictionsCount:  a.count,
			ActualSuccessRate: successRate,
			PredictedAvg:      predictedAvg,
			CalibrationError:  calErr,
			Recommendation:    bucketRecommendation(calErr),
		})
	}
	return stats
}

// bucketRecommendation derives advice purely from the calibration error
// magnitude and sign.
func bucketRecommendation(calErr float64) string {
	switch {
	case math.Abs(calErr) < 0.05:
		return "well calibrated"
	case calErr > 0.15:
		return fmt.Sprintf("significantly overconfident, lower threshold by %d%%", int(math.Round(calErr*100)))
	case calErr >= 0.05:
		return fmt.Sprintf("slightly overconfident, consider a %.2f multiplier", math.Round((1-calErr)*100)/100)
	case calErr < -0.05:
		return "underconfident, can be more aggressive"
	default:
		return "well calibrated"
	}
}
