package pk

import (
	"math"
)

// SingleDoseLevel returns the estimated level in pg/mL at t days after a
// single bolus dose. The closed form depends on which rate constants
// coincide; queries before the dose and degenerate parameters yield 0.
func SingleDoseLevel(p Params, t, dose float64) float64 {
	if t < 0 || dose <= 0 || p.D <= 0 {
		return 0
	}
	d, k1, k2, k3 := p.D, p.K1, p.K2, p.K3

	var v float64
	switch {
	case k1 == k2 && k2 == k3:
		v = dose * d * k1 * k1 * t * t * math.Exp(-k1*t) / 2.0
	case k1 == k2 && k2 != k3:
		v = dose * d * k1 * k1 *
			(math.Exp(-k3*t) - math.Exp(-k1*t)*(1+(k1-k3)*t)) /
			(k1 - k3) / (k1 - k3)
	case k1 != k2 && k1 == k3:
		v = dose * d * k1 * k2 *
			(math.Exp(-k2*t) - math.Exp(-k1*t)*(1+(k1-k2)*t)) /
			(k1 - k2) / (k1 - k2)
	case k1 != k2 && k2 == k3:
		v = dose * d * k1 * k2 *
			(math.Exp(-k1*t) - math.Exp(-k2*t)*(1-(k1-k2)*t)) /
			(k1 - k2) / (k1 - k2)
	default:
		// All rates distinct.
		v = dose * d * k1 * k2 * (math.Exp(-k1*t)/(k1-k2)/(k1-k3) -
			math.Exp(-k2*t)/(k1-k2)/(k2-k3) +
			math.Exp(-k3*t)/(k1-k3)/(k2-k3))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// esSingleDose returns the secondary compartment level t days after a dose,
// used as the initial condition when a patch is removed.
func esSingleDose(p Params, t, dose float64) float64 {
	if t < 0 || dose <= 0 || p.D <= 0 {
		return 0
	}
	d, k1, k2 := p.D, p.K1, p.K2
	if k1 == k2 {
		return dose * d * k1 * t * math.Exp(-k1*t)
	}
	return dose * d * k1 / (k1 - k2) * (math.Exp(-k2*t) - math.Exp(-k1*t))
}

// PatchLevel returns the estimated level in pg/mL at t days after applying
// a transdermal patch worn for wear days. While the patch is on this matches
// the bolus curve; after removal the residual compartment levels decay with
// no further absorption.
func PatchLevel(p Params, t, dose, wear float64) float64 {
	if t < 0 {
		return 0
	}
	if t <= wear {
		return SingleDoseLevel(p, t, dose)
	}
	esW := esSingleDose(p, wear, dose)
	e2W := SingleDoseLevel(p, wear, dose)
	ta := t - wear
	k2, k3 := p.K2, p.K3

	v := 0.0
	if esW > 0 {
		if k2 == k3 {
			v += esW * k2 * ta * math.Exp(-k2*ta)
		} else {
			v += esW * k2 / (k2 - k3) * (math.Exp(-k3*ta) - math.Exp(-k2*ta))
		}
	}
	if e2W > 0 {
		v += e2W * math.Exp(-k3*ta)
	}
	return v
}

// SteadyStateUnit returns the steady-state level at time t within the dosing
// interval for a 1 mg dose repeated every period days, via the geometric
// series of the distinct-rates closed form. Coincident rate constants and
// non-positive periods yield 0.
func SteadyStateUnit(p Params, t, period float64) float64 {
	if period <= 0 || p.D <= 0 {
		return 0
	}
	d, k1, k2, k3 := p.D, p.K1, p.K2, p.K3
	geom := func(k float64) float64 {
		return math.Exp(-k*t) / (1.0 - math.Exp(-k*period))
	}
	v := d * k1 * k2 * (geom(k1)/(k1-k2)/(k1-k3) -
		geom(k2)/(k1-k2)/(k2-k3) +
		geom(k3)/(k1-k3)/(k2-k3))
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// BasisVector samples the steady-state response of a 1 mg schedule at each
// whole cycle day, offset so that doses land on the phase day.
func BasisVector(p Params, interval, phase float64, nDays int) []float64 {
	out := make([]float64, nDays)
	for day := 0; day < nDays; day++ {
		t := math.Mod(float64(day)-phase, interval)
		if t < 0 {
			t += interval
		}
		out[day] = SteadyStateUnit(p, t, interval)
	}
	return out
}
