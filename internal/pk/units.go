package pk

import "math"

// Supported display units.
const (
	UnitPgPerML  = "pg/mL"
	UnitPmolPerL = "pmol/L"
)

// Unit describes a display unit for estradiol concentrations.
type Unit struct {
	Name      string  `json:"name"`
	Factor    float64 `json:"factor"` // multiplier applied to pg/mL values
	Precision int     `json:"precision"`
}

var unitTable = []Unit{
	{Name: UnitPgPerML, Factor: 1.0, Precision: 0},
	{Name: UnitPmolPerL, Factor: 3.6713, Precision: 0},
}

// Units returns the supported display units.
func Units() []Unit {
	out := make([]Unit, len(unitTable))
	copy(out, unitTable)
	return out
}

// LookupUnit returns the unit with the given name.
func LookupUnit(name string) (Unit, bool) {
	for _, u := range unitTable {
		if u.Name == name {
			return u, true
		}
	}
	return Unit{}, false
}

// Convert converts a pg/mL value to this unit.
func (u Unit) Convert(pgML float64) float64 {
	return pgML * u.Factor
}

// Round rounds a converted value to the unit's display precision.
func (u Unit) Round(v float64) float64 {
	scale := math.Pow(10, float64(u.Precision))
	return math.Round(v*scale) / scale
}
