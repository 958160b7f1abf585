package pk

import (
	"math"
	"time"

	"github.com/savegress/dosetrack/pkg/models"
)

// CalibrationOptions control how blood tests are weighed against the model.
type CalibrationOptions struct {
	DecayLambda  float64 // per-day exponential decay of a test's weight
	MinPredicted float64 // tests whose prediction is below this are skipped
	MaxFactor    float64 // upper clamp on the returned factor
}

// DefaultCalibrationOptions returns the standard recency weighting.
func DefaultCalibrationOptions() CalibrationOptions {
	return CalibrationOptions{
		DecayLambda:  0.02,
		MinPredicted: 1.0,
		MaxFactor:    2.0,
	}
}

// Calibrate compares measured blood tests against model predictions and
// returns a recency-weighted scaling factor together with the weighted
// variance of the per-test ratios. Tests predicted below MinPredicted are
// excluded; when nothing usable remains the result is (1, 0), meaning the
// model is trusted as is. The factor is clamped to [0, MaxFactor]; the
// variance is reported around the unclamped mean.
func Calibrate(reg *Registry, now time.Time, tests []models.BloodTest, doses []models.DoseRecord, opts CalibrationOptions) (float64, float64) {
	if len(tests) == 0 {
		return 1.0, 0.0
	}

	type sample struct {
		ratio  float64
		weight float64
	}
	var (
		samples     []sample
		weightedSum float64
		weightTotal float64
	)
	for _, test := range tests {
		predicted := LevelAt(reg, test.Timestamp, doses, 1.0)
		if predicted < opts.MinPredicted {
			continue
		}
		ratio := test.LevelPgML / predicted
		ageDays := now.Sub(test.Timestamp).Hours() / 24.0
		weight := math.Exp(-opts.DecayLambda * ageDays)

		weightedSum += ratio * weight
		weightTotal += weight
		samples = append(samples, sample{ratio: ratio, weight: weight})
	}
	if weightTotal <= 0 {
		return 1.0, 0.0
	}

	factor := weightedSum / weightTotal
	varSum := 0.0
	for _, s := range samples {
		varSum += s.weight * (s.ratio - factor) * (s.ratio - factor)
	}
	variance := varSum / weightTotal

	return math.Max(0.0, math.Min(opts.MaxFactor, factor)), variance
}
