package pk

import (
	"math"

	"github.com/savegress/dosetrack/pkg/models"
)

// Model keys for the built-in parameter table.
const (
	ModelEBIM      = "EB im"
	ModelEVIM      = "EV im"
	ModelEEnIM     = "EEn im"
	ModelECIM      = "EC im"
	ModelEUnIM     = "EUn im"
	ModelEUnCaSubQ = "EUn casubq"
	ModelPatchTW   = "patch tw"
	ModelPatchOW   = "patch ow"
	ModelEOral     = "E oral"
)

// modelPatch is the unresolved patch key; Resolve picks tw/ow by interval.
const modelPatch = "patch"

// Params holds the dose scale and rate constants of a three-compartment model.
type Params struct {
	D  float64 `json:"d"`
	K1 float64 `json:"k1"`
	K2 float64 `json:"k2"`
	K3 float64 `json:"k3"`
}

// Model is one entry in the PK model registry.
type Model struct {
	Key       string    `json:"key"`
	Params    Params    `json:"params"`
	WearDays  float64   `json:"wear_days,omitempty"` // patch wear duration in days, 0 for bolus models
	Intervals []float64 `json:"intervals"`           // preferred dosing intervals, most recommended first
}

// IsPatch reports whether the model describes a transdermal patch.
func (m Model) IsPatch() bool { return m.WearDays > 0 }

// LevelAfter returns the level contribution of a single dose t days after
// administration, dispatching to the patch evaluator when applicable.
func (m Model) LevelAfter(t, dose float64) float64 {
	if m.IsPatch() {
		return PatchLevel(m.Params, t, dose, m.WearDays)
	}
	return SingleDoseLevel(m.Params, t, dose)
}

// TerminalDays estimates when a dose's contribution has decayed to roughly
// 1% of peak (five half-lives across all three compartments).
func (m Model) TerminalDays() float64 {
	p := m.Params
	return 5.0 * math.Ln2 * (1.0/p.K1 + 1.0/p.K2 + 1.0/p.K3)
}

// Registry is an immutable lookup table of PK models and ester/method
// resolution rules. Construct with NewRegistry and share freely; it is
// never mutated after construction.
type Registry struct {
	byKey   map[string]Model
	keys    []string
	resolve map[routeKey]string
}

type routeKey struct {
	ester  models.Ester
	method models.Method
}

// NewRegistry returns the built-in model table.
//
// Parameters follow the estrannaise.js model data (three-compartment fits);
// preferred intervals follow pghrt.diy guidance. Oral estradiol uses k1=100
// so the three-compartment form collapses to a Bateman-like curve.
func NewRegistry() *Registry {
	entries := []Model{
		{Key: ModelEBIM, Params: Params{D: 1893.1, K1: 0.67, K2: 61.5, K3: 4.34}, Intervals: []float64{2.0, 3.0}},
		{Key: ModelEVIM, Params: Params{D: 478.0, K1: 0.236, K2: 4.85, K3: 1.24}, Intervals: []float64{3.5, 5.0, 7.0}},
		{Key: ModelEEnIM, Params: Params{D: 191.4, K1: 0.119, K2: 0.601, K3: 0.402}, Intervals: []float64{7.0, 10.0}},
		{Key: ModelECIM, Params: Params{D: 246.0, K1: 0.0825, K2: 3.57, K3: 0.669}, Intervals: []float64{7.0}},
		{Key: ModelEUnIM, Params: Params{D: 471.5, K1: 0.01729, K2: 6.528, K3: 2.285}, Intervals: []float64{14.0, 28.0}},
		{Key: ModelEUnCaSubQ, Params: Params{D: 16.15, K1: 0.046, K2: 0.022, K3: 0.101}, Intervals: []float64{14.0, 28.0}},
		{Key: ModelPatchTW, Params: Params{D: 16.792, K1: 0.283, K2: 5.592, K3: 4.3}, WearDays: 3.5, Intervals: []float64{3.5}},
		{Key: ModelPatchOW, Params: Params{D: 59.481, K1: 0.107, K2: 7.842, K3: 5.193}, WearDays: 7.0, Intervals: []float64{7.0}},
		{Key: ModelEOral, Params: Params{D: 51.5, K1: 100.0, K2: 8.88, K3: 1.032}, Intervals: []float64{1.0}},
	}

	reg := &Registry{
		byKey: make(map[string]Model, len(entries)),
		resolve: map[routeKey]string{
			{models.EsterEB, models.MethodIM}:    ModelEBIM,
			{models.EsterEV, models.MethodIM}:    ModelEVIM,
			{models.EsterEEn, models.MethodIM}:   ModelEEnIM,
			{models.EsterEC, models.MethodIM}:    ModelECIM,
			{models.EsterEUn, models.MethodIM}:   ModelEUnIM,
			// SubQ shares the IM parameters for most esters; EUn SubQ has
			// its own community-derived model.
			{models.EsterEB, models.MethodSubQ}:  ModelEBIM,
			{models.EsterEV, models.MethodSubQ}:  ModelEVIM,
			{models.EsterEEn, models.MethodSubQ}: ModelEEnIM,
			{models.EsterEC, models.MethodSubQ}:  ModelECIM,
			{models.EsterEUn, models.MethodSubQ}: ModelEUnCaSubQ,
			{models.EsterE, models.MethodPatch}:  modelPatch,
			{models.EsterE, models.MethodOral}:   ModelEOral,
		},
	}
	for _, m := range entries {
		reg.byKey[m.Key] = m
		reg.keys = append(reg.keys, m.Key)
	}
	return reg
}

// Lookup returns the model for a key.
func (r *Registry) Lookup(key string) (Model, bool) {
	m, ok := r.byKey[key]
	return m, ok
}

// Models returns every model in table order.
func (r *Registry) Models() []Model {
	out := make([]Model, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, r.byKey[k])
	}
	return out
}

// Resolve maps an ester and method to a model. For patches the interval
// selects the twice-weekly model at 5 days or less, once-weekly otherwise.
func (r *Registry) Resolve(ester models.Ester, method models.Method, intervalDays float64) (Model, bool) {
	key, ok := r.resolve[routeKey{ester, method}]
	if !ok {
		return Model{}, false
	}
	if key == modelPatch {
		if intervalDays <= 5.0 {
			key = ModelPatchTW
		} else {
			key = ModelPatchOW
		}
	}
	return r.Lookup(key)
}

// Supported reports whether an ester and method combination resolves to a
// model with parameters.
func (r *Registry) Supported(ester models.Ester, method models.Method) bool {
	key, ok := r.resolve[routeKey{ester, method}]
	if !ok {
		return false
	}
	if key == modelPatch {
		return true
	}
	_, ok = r.byKey[key]
	return ok
}

// TerminalDays returns the terminal elimination window for a model key,
// falling back to 30 days for unknown keys.
func (r *Registry) TerminalDays(key string) float64 {
	m, ok := r.byKey[key]
	if !ok {
		return 30.0
	}
	return m.TerminalDays()
}

// MaxTerminalDays returns the longest terminal window across the table.
func (r *Registry) MaxTerminalDays() float64 {
	max := 0.0
	for _, k := range r.keys {
		if d := r.byKey[k].TerminalDays(); d > max {
			max = d
		}
	}
	return max
}

// DoseUnit returns the dose unit string for a dosing method.
func DoseUnit(method models.Method) string {
	if method == models.MethodPatch {
		return "mcg/day"
	}
	return "mg"
}
