package solver

import (
	"math"
	"sort"

	"github.com/savegress/dosetrack/internal/pk"
	"github.com/savegress/dosetrack/pkg/models"
)

// DefaultMaxSchedules bounds the number of schedules FitCycle returns when
// the caller does not say otherwise.
const DefaultMaxSchedules = 4

// Auxiliary intervals considered alongside a model's preferred ones.
var auxIntervals = []float64{3.5, 4.0, 5.0, 7.0, 9.0, 10.0, 14.0, 28.0}

// Candidate intervals must divide a cycle into a workable dosing rhythm.
const (
	minFitInterval = 2.0
	maxFitInterval = 28.0
)

// A fitted dose below this is dropped as not worth administering.
const minKeepDoseMg = 0.25

type candidate struct {
	interval float64
	phase    float64
	basis    []float64
}

// FitCycle approximates the target curve over the cycle with up to
// maxSchedules periodic schedules of one model, selected greedily with a
// non-negative least squares refit at every step. Selection stops when no
// remaining candidate improves the fit, or once the relative improvement
// falls under 1%. Doses are rounded after the final refit and the residual
// is recomputed from the rounded doses. Returns false when the model key is
// unknown, the target is empty, or nothing improves on the all-zero fit.
func FitCycle(reg *pk.Registry, modelKey string, target []float64, maxSchedules int) (*models.CycleFit, bool) {
	m, ok := reg.Lookup(modelKey)
	if !ok || len(target) == 0 {
		return nil, false
	}
	if maxSchedules <= 0 {
		maxSchedules = DefaultMaxSchedules
	}
	nDays := len(target)

	candidates := buildCandidates(m, nDays)

	// Greedy forward selection.
	var selected []int
	chosen := make(map[int]bool)
	baselineMSE := 0.0
	for _, v := range target {
		baselineMSE += v * v
	}
	baselineMSE /= float64(nDays)
	prevMSE := baselineMSE

	for step := 0; step < maxSchedules; step++ {
		bestCI := -1
		bestMSE := prevMSE
		for ci := range candidates {
			if chosen[ci] {
				continue
			}
			cols := basisColumns(candidates, selected)
			cols = append(cols, candidates[ci].basis)
			x := nnls(cols, target)
			if mse := residualMSE(target, cols, x); mse < bestMSE {
				bestMSE = mse
				bestCI = ci
			}
		}
		if bestCI < 0 {
			break
		}
		if step > 0 && prevMSE > 0 && (prevMSE-bestMSE)/prevMSE < 0.01 {
			break
		}
		selected = append(selected, bestCI)
		chosen[bestCI] = true
		prevMSE = bestMSE
	}
	if len(selected) == 0 {
		return nil, false
	}

	// Final refit over everything selected, then round.
	cols := basisColumns(candidates, selected)
	finalX := nnls(cols, target)

	var schedules []models.CycleFitSchedule
	for i, si := range selected {
		if finalX[i] < minKeepDoseMg {
			continue
		}
		schedules = append(schedules, models.CycleFitSchedule{
			DoseMg:       roundDose(finalX[i]),
			IntervalDays: candidates[si].interval,
			PhaseDays:    candidates[si].phase,
		})
	}
	if len(schedules) == 0 {
		return nil, false
	}

	curve := make([]float64, nDays)
	for _, sch := range schedules {
		bv := pk.BasisVector(m.Params, sch.IntervalDays, sch.PhaseDays, nDays)
		for i := range curve {
			curve[i] += sch.DoseMg * bv[i]
		}
	}
	sumSq := 0.0
	for i := range curve {
		diff := target[i] - curve[i]
		sumSq += diff * diff
	}
	rms := math.Sqrt(sumSq / float64(nDays))
	for i := range curve {
		curve[i] = math.Round(curve[i]*10) / 10
	}

	return &models.CycleFit{
		ModelKey:    m.Key,
		Schedules:   schedules,
		ResidualRMS: math.Round(rms*100) / 100,
		FittedCurve: curve,
	}, true
}

// buildCandidates enumerates (interval, phase) pairs with their basis
// vectors: preferred and auxiliary intervals within range, one phase per
// whole day within each interval.
func buildCandidates(m pk.Model, nDays int) []candidate {
	intervalSet := make(map[float64]bool)
	for _, iv := range m.Intervals {
		intervalSet[iv] = true
	}
	for _, iv := range auxIntervals {
		intervalSet[iv] = true
	}
	intervals := make([]float64, 0, len(intervalSet))
	for iv := range intervalSet {
		intervals = append(intervals, iv)
	}
	sort.Float64s(intervals)

	var candidates []candidate
	for _, iv := range intervals {
		if iv < minFitInterval || iv > maxFitInterval {
			continue
		}
		nPhases := int(math.Ceil(iv))
		if nPhases < 1 {
			nPhases = 1
		}
		for phase := 0; phase < nPhases; phase++ {
			candidates = append(candidates, candidate{
				interval: iv,
				phase:    float64(phase),
				basis:    pk.BasisVector(m.Params, iv, float64(phase), nDays),
			})
		}
	}
	return candidates
}

func basisColumns(candidates []candidate, selected []int) [][]float64 {
	cols := make([][]float64, 0, len(selected)+1)
	for _, si := range selected {
		cols = append(cols, candidates[si].basis)
	}
	return cols
}

func residualMSE(target []float64, cols [][]float64, x []float64) float64 {
	mse := 0.0
	for i := range target {
		fitted := 0.0
		for j, xj := range x {
			fitted += xj * cols[j][i]
		}
		diff := target[i] - fitted
		mse += diff * diff
	}
	return mse / float64(len(target))
}
