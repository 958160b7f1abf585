package solver

import (
	"math"

	"github.com/savegress/dosetrack/internal/pk"
	"github.com/savegress/dosetrack/pkg/models"
)

// Dispensable dose bounds shared by both solvers.
const (
	minDoseMg = 0.5
	maxDoseMg = 20.0
)

// roundDose rounds to the nearest 0.5 and clamps to the dispensable range.
func roundDose(dose float64) float64 {
	dose = math.Round(dose*2.0) / 2.0
	return math.Max(minDoseMg, math.Min(maxDoseMg, dose))
}

// steadyStateTrough sums the model's response at integer multiples of the
// interval for a 1 mg dose. Sixty periods is enough for the slowest
// elimination constants in the table to have fully decayed.
func steadyStateTrough(m pk.Model, intervalDays float64) float64 {
	trough := 0.0
	for n := 1; n < 60; n++ {
		trough += m.LevelAfter(float64(n)*intervalDays, 1.0)
	}
	return trough
}

// SuggestRegimen picks the first of the model's preferred intervals that can
// reach the target steady-state trough and sizes the dose accordingly.
// Intervals implying more than four administrations per week are skipped.
// Returns false when the model key is unknown or no interval is feasible.
func SuggestRegimen(reg *pk.Registry, modelKey string, targetTrough float64) (*models.RegimenSuggestion, bool) {
	m, ok := reg.Lookup(modelKey)
	if !ok {
		return nil, false
	}

	for _, interval := range m.Intervals {
		if 7.0/interval > 4.0 {
			continue
		}
		troughPerMg := steadyStateTrough(m, interval)
		if troughPerMg <= 0 {
			continue
		}
		return &models.RegimenSuggestion{
			ModelKey:     m.Key,
			DoseMg:       roundDose(targetTrough / troughPerMg),
			IntervalDays: interval,
			TargetTrough: targetTrough,
		}, true
	}
	return nil, false
}
