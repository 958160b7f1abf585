package models

import (
	"time"
)

// Ester identifies an estradiol ester
type Ester string

const (
	EsterE   Ester = "E"
	EsterEB  Ester = "EB"
	EsterEV  Ester = "EV"
	EsterEEn Ester = "EEn"
	EsterEC  Ester = "EC"
	EsterEUn Ester = "EUn"
)

// EsterNames maps ester identifiers to display names
var EsterNames = map[Ester]string{
	EsterE:   "Estradiol",
	EsterEB:  "Estradiol Benzoate",
	EsterEV:  "Estradiol Valerate",
	EsterEEn: "Estradiol Enanthate",
	EsterEC:  "Estradiol Cypionate",
	EsterEUn: "Estradiol Undecylate",
}

// Method identifies a route of administration
type Method string

const (
	MethodIM    Method = "im"
	MethodSubQ  Method = "subq"
	MethodPatch Method = "patch"
	MethodOral  Method = "oral"
)

// MethodNames maps method identifiers to display names
var MethodNames = map[Method]string{
	MethodIM:    "Intramuscular",
	MethodSubQ:  "Subcutaneous",
	MethodPatch: "Transdermal Patch",
	MethodOral:  "Oral (micronized Estradiol)",
}

// DoseSource indicates how a dose record was created
type DoseSource string

const (
	DoseSourceManual    DoseSource = "manual"
	DoseSourceAutomatic DoseSource = "automatic"
)

// DoseRecord represents a single administered dose
type DoseRecord struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	ModelKey   string     `json:"model_key"`
	AmountMg   float64    `json:"amount_mg"`
	Source     DoseSource `json:"source"`
	ScheduleID string     `json:"schedule_id,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// BloodTest represents a measured estradiol lab result
type BloodTest struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	LevelPgML float64   `json:"level_pg_ml"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Schedule represents a periodic dosing plan
type Schedule struct {
	ID           string    `json:"id"`
	ModelKey     string    `json:"model_key"`
	DoseMg       float64   `json:"dose_mg"`
	IntervalDays float64   `json:"interval_days"`
	PhaseDays    float64   `json:"phase_days"`
	DoseTime     string    `json:"dose_time,omitempty"` // HH:MM, defaults from config
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CurvePoint is one sample of an estimated concentration curve
type CurvePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Level     float64   `json:"level"`
}

// LevelSnapshot is the tracker's per-tick summary of the estimated level
type LevelSnapshot struct {
	Timestamp       time.Time  `json:"timestamp"`
	Level           float64    `json:"level"`
	Unit            string     `json:"unit"`
	TrendPerDay     float64    `json:"trend_per_day"`
	ScalingFactor   float64    `json:"scaling_factor"`
	ScalingVariance float64    `json:"scaling_variance"`
	DoseCount       int        `json:"dose_count"`
	TestCount       int        `json:"test_count"`
	NextDose        *time.Time `json:"next_dose,omitempty"`
	Baseline        bool       `json:"baseline,omitempty"`
}

// RegimenSuggestion is the output of the single-target regimen solver
type RegimenSuggestion struct {
	ModelKey     string  `json:"model_key"`
	DoseMg       float64 `json:"dose_mg"`
	IntervalDays float64 `json:"interval_days"`
	TargetTrough float64 `json:"target_trough"`
}

// CycleFitSchedule is one periodic schedule selected by the cycle-fit solver
type CycleFitSchedule struct {
	DoseMg       float64 `json:"dose_mg"`
	IntervalDays float64 `json:"interval_days"`
	PhaseDays    float64 `json:"phase_days"`
}

// CycleFit is the cycle-fit solver result over a 28-day reference curve
type CycleFit struct {
	ModelKey    string             `json:"model_key"`
	Schedules   []CycleFitSchedule `json:"schedules"`
	ResidualRMS float64            `json:"residual_rms"`
	FittedCurve []float64          `json:"fitted_curve"`
}

// AlertSeverity represents the severity of an alert
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertState represents the lifecycle state of an alert
type AlertState string

const (
	AlertStateActive       AlertState = "active"
	AlertStateResolved     AlertState = "resolved"
	AlertStateAcknowledged AlertState = "acknowledged"
)

// AlertRule defines a level range that triggers an alert when breached
type AlertRule struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Min      *float64      `json:"min,omitempty"`
	Max      *float64      `json:"max,omitempty"`
	Severity AlertSeverity `json:"severity"`
	Cooldown time.Duration `json:"cooldown"`
	Enabled  bool          `json:"enabled"`
}

// Alert represents a triggered alert instance
type Alert struct {
	ID         string        `json:"id"`
	RuleID     string        `json:"rule_id"`
	RuleName   string        `json:"rule_name"`
	Severity   AlertSeverity `json:"severity"`
	State      AlertState    `json:"state"`
	Level      float64       `json:"level"`
	Message    string        `json:"message"`
	StartedAt  time.Time     `json:"started_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
	AckedAt    *time.Time    `json:"acked_at,omitempty"`
}
