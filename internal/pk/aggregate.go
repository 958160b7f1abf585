package pk

import (
	"time"

	"github.com/savegress/dosetrack/pkg/models"
)

// LevelAt sums every dose's contribution at the query time and applies the
// calibration scale. Doses with model keys missing from the registry are
// skipped, so stored records tolerate model table changes.
func LevelAt(reg *Registry, at time.Time, doses []models.DoseRecord, scale float64) float64 {
	total := 0.0
	for _, rec := range doses {
		m, ok := reg.Lookup(rec.ModelKey)
		if !ok {
			continue
		}
		t := at.Sub(rec.Timestamp).Hours() / 24.0
		total += m.LevelAfter(t, rec.AmountMg)
	}
	return total * scale
}

// Curve samples LevelAt from from to until inclusive at the given step.
func Curve(reg *Registry, from, until time.Time, step time.Duration, doses []models.DoseRecord, scale float64) []models.CurvePoint {
	if step <= 0 || until.Before(from) {
		return nil
	}
	var points []models.CurvePoint
	for ts := from; !ts.After(until); ts = ts.Add(step) {
		points = append(points, models.CurvePoint{
			Timestamp: ts,
			Level:     LevelAt(reg, ts, doses, scale),
		})
	}
	return points
}
