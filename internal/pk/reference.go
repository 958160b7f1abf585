package pk

// CycleDays is the length of the reference menstrual cycle in days.
const CycleDays = 28

// Disclaimer accompanies every estimate surfaced to users.
const Disclaimer = "Estimated levels are pharmacokinetic APPROXIMATIONS based on population" +
	" models, not actual blood serum measurements. Individual absorption," +
	" metabolism, and other factors can cause significant variation." +
	" Always confirm with blood tests."

// Target range bounds (pg/mL), per WPATH SOC 8 / Endocrine Society guidance.
const (
	TargetRangeLower = 100.0
	TargetRangeUpper = 200.0
)

// Target trough presets for the regimen solver.
const (
	TargetTypeRange     = "target_range"
	TargetTypeMenstrual = "menstrual_range"
)

var targetTroughs = map[string]float64{
	TargetTypeRange:     200.0, // target range midpoint trough
	TargetTypeMenstrual: 100.0, // approximate mean of menstrual cycle E2
}

// TargetTrough returns the trough level for a named preset.
func TargetTrough(preset string) (float64, bool) {
	v, ok := targetTroughs[preset]
	return v, ok
}

// Menstrual cycle reference estradiol (pg/mL): mean and 5th/95th percentile
// per cycle day, from the estrannaise.js reference data.
var (
	menstrualE2 = []float64{
		37.99, 40.59, 37.49, 34.99, 35.49, 39.54, 41.99, 44.34, 53.43,
		58.58, 71.43, 98.92, 132.31, 177.35, 255.88, 182.80, 85.23,
		70.98, 87.97, 109.92, 122.77, 132.56, 150.30, 133.81, 137.16,
		134.96, 92.73, 85.68, 46.34, 41.19,
	}
	menstrualE2P5 = []float64{
		15.68, 17.99, 20.48, 21.63, 22.60, 23.86, 25.44, 30.64, 33.96,
		42.95, 51.88, 50.79, 65.79, 91.89, 137.25, 131.30, 43.55,
		42.12, 56.83, 73.49, 79.70, 72.75, 79.46, 76.79, 76.05,
		80.22, 57.26, 47.62, 27.77, 25.60,
	}
	menstrualE2P95 = []float64{
		52.97, 51.12, 51.58, 54.74, 53.59, 57.08, 61.20, 60.16, 72.79,
		85.36, 94.46, 133.70, 218.89, 314.28, 413.41, 388.28, 140.11,
		108.52, 135.06, 181.42, 191.73, 196.05, 189.45, 195.64, 208.23,
		219.75, 174.38, 148.77, 135.58, 188.92,
	}
)

// MenstrualCycle returns the mean reference curve over one cycle, the
// target the cycle-fit solver approximates.
func MenstrualCycle() []float64 {
	out := make([]float64, CycleDays)
	copy(out, menstrualE2[:CycleDays])
	return out
}

// CycleReference bundles the reference series for API consumers.
type CycleReference struct {
	Days []int     `json:"days"`
	E2   []float64 `json:"e2"`
	P5   []float64 `json:"e2_p5"`
	P95  []float64 `json:"e2_p95"`
}

// MenstrualReference returns the full mean and percentile series.
func MenstrualReference() CycleReference {
	ref := CycleReference{
		Days: make([]int, len(menstrualE2)),
		E2:   make([]float64, len(menstrualE2)),
		P5:   make([]float64, len(menstrualE2P5)),
		P95:  make([]float64, len(menstrualE2P95)),
	}
	for i := range ref.Days {
		ref.Days[i] = i
	}
	copy(ref.E2, menstrualE2)
	copy(ref.P5, menstrualE2P5)
	copy(ref.P95, menstrualE2P95)
	return ref
}
