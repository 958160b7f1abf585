package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/savegress/dosetrack/internal/alerts"
	"github.com/savegress/dosetrack/internal/cache"
	"github.com/savegress/dosetrack/internal/config"
	"github.com/savegress/dosetrack/internal/pk"
	"github.com/savegress/dosetrack/internal/solver"
	"github.com/savegress/dosetrack/internal/storage"
	"github.com/savegress/dosetrack/internal/tracker"
	ws "github.com/savegress/dosetrack/internal/websocket"
	"github.com/savegress/dosetrack/pkg/models"
)

// maxCurvePoints caps the number of samples a single curve query may request
const maxCurvePoints = 5000

// Handlers contains all HTTP handlers
type Handlers struct {
	config   *config.Config
	storage  storage.Storage
	registry *pk.Registry
	tracker  *tracker.Tracker
	alerts   *alerts.Engine
	hub      *ws.Hub
	cache    *cache.Cache
}

// Response helpers

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Success: false, Error: message})
}

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "dosetrack",
		"time":      time.Now().UTC().Format(time.RFC3339),
		"websocket": h.hub.GetStats(),
	})
}

// ListModels returns the PK model registry and supported display units
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	list := h.registry.Models()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models": list,
		"units":  pk.Units(),
		"count":  len(list),
	})
}

// CreateDose records a manually administered dose
func (h *Handlers) CreateDose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Timestamp time.Time `json:"timestamp"`
		ModelKey  string    `json:"model_key"`
		AmountMg  float64   `json:"amount_mg"`
		Notes     string    `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, ok := h.registry.Lookup(req.ModelKey); !ok {
		writeError(w, http.StatusBadRequest, "Unknown model key")
		return
	}
	if req.AmountMg <= 0 {
		writeError(w, http.StatusBadRequest, "Dose amount must be positive")
		return
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	dose := &models.DoseRecord{
		Timestamp: ts.UTC(),
		ModelKey:  req.ModelKey,
		AmountMg:  req.AmountMg,
		Source:    models.DoseSourceManual,
		Notes:     req.Notes,
	}
	if err := h.storage.SaveDose(ctx, dose); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.refreshAfterWrite(ctx)
	writeJSON(w, http.StatusCreated, dose)
}

// ListDoses returns stored dose records, optionally filtered by time and model
func (h *Handlers) ListDoses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	since, err := parseTimeParam(r, "since")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	until, err := parseTimeParam(r, "until")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doses, err := h.storage.ListDoses(ctx, since, until, r.URL.Query().Get("model"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"doses": doses,
		"count": len(doses),
	})
}

// DeleteDose removes a dose record
func (h *Handlers) DeleteDose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := h.storage.DeleteDose(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Dose not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.refreshAfterWrite(ctx)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListPlannedDoses returns upcoming scheduled doses within the planning horizon
func (h *Handlers) ListPlannedDoses(w http.ResponseWriter, r *http.Request) {
	h.ensureSnapshot(r.Context())

	planned := h.tracker.PlannedDoses()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"planned": planned,
		"count":   len(planned),
	})
}

// CreateTest records a blood test result
func (h *Handlers) CreateTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Timestamp time.Time `json:"timestamp"`
		LevelPgML float64   `json:"level_pg_ml"`
		Notes     string    `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.LevelPgML <= 0 {
		writeError(w, http.StatusBadRequest, "Level must be positive")
		return
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	test := &models.BloodTest{
		Timestamp: ts.UTC(),
		LevelPgML: req.LevelPgML,
		Notes:     req.Notes,
	}
	if err := h.storage.SaveTest(ctx, test); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.refreshAfterWrite(ctx)
	writeJSON(w, http.StatusCreated, test)
}

// ListTests returns stored blood test results
func (h *Handlers) ListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := h.storage.ListTests(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tests": tests,
		"count": len(tests),
	})
}

// DeleteTest removes a blood test result
func (h *Handlers) DeleteTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := h.storage.DeleteTest(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Test not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.refreshAfterWrite(ctx)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// CreateSchedule registers a periodic dosing schedule
func (h *Handlers) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		ModelKey     string  `json:"model_key"`
		DoseMg       float64 `json:"dose_mg"`
		IntervalDays float64 `json:"interval_days"`
		PhaseDays    float64 `json:"phase_days"`
		DoseTime     string  `json:"dose_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, ok := h.registry.Lookup(req.ModelKey); !ok {
		writeError(w, http.StatusBadRequest, "Unknown model key")
		return
	}
	if req.DoseMg <= 0 {
		writeError(w, http.StatusBadRequest, "Dose amount must be positive")
		return
	}
	if req.IntervalDays < 0.5 {
		writeError(w, http.StatusBadRequest, "Interval must be at least half a day")
		return
	}
	if req.PhaseDays < 0 || req.PhaseDays >= pk.CycleDays {
		writeError(w, http.StatusBadRequest, "Phase must fall within the 28-day cycle")
		return
	}

	doseTime := req.DoseTime
	if doseTime == "" {
		doseTime = h.config.Dosing.DoseTime
	}

	schedule := &models.Schedule{
		ModelKey:     req.ModelKey,
		DoseMg:       req.DoseMg,
		IntervalDays: req.IntervalDays,
		PhaseDays:    req.PhaseDays,
		DoseTime:     doseTime,
		Enabled:      true,
	}
	if err := h.storage.SaveSchedule(ctx, schedule); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.refreshAfterWrite(ctx)
	writeJSON(w, http.StatusCreated, schedule)
}

// ListSchedules returns all dosing schedules
func (h *Handlers) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.storage.ListSchedules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

// DeleteSchedule removes a dosing schedule. Doses it already materialized
// remain as administered history.
func (h *Handlers) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := h.storage.DeleteSchedule(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Schedule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.refreshAfterWrite(ctx)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GetCurrentLevel returns the latest level snapshot in the requested unit
func (h *Handlers) GetCurrentLevel(w http.ResponseWriter, r *http.Request) {
	unit, ok := h.displayUnit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown unit")
		return
	}

	snap := h.ensureSnapshot(r.Context())
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "Snapshot not ready")
		return
	}

	out := *snap
	out.Unit = unit.Name
	out.Level = unit.Round(unit.Convert(snap.Level))
	out.TrendPerDay = unit.Round(unit.Convert(snap.TrendPerDay))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot":   out,
		"disclaimer": pk.Disclaimer,
	})
}

// GetCurve returns the calibrated concentration curve sampled over a time
// range. Upcoming planned doses are included so the projection extends past
// the last administered dose.
func (h *Handlers) GetCurve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	unit, ok := h.displayUnit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown unit")
		return
	}

	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	if from.IsZero() {
		from = now.AddDate(0, 0, -pk.CycleDays)
	}
	if to.IsZero() {
		to = now.AddDate(0, 0, pk.CycleDays)
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "Invalid time range")
		return
	}

	step := time.Hour
	if raw := r.URL.Query().Get("step"); raw != "" {
		step, err = time.ParseDuration(raw)
		if err != nil || step <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid step duration")
			return
		}
	}
	if int64(to.Sub(from)/step) >= maxCurvePoints {
		writeError(w, http.StatusBadRequest, "Step too small for the requested range")
		return
	}

	if points, err := h.cache.GetCurve(ctx, from, to, step, unit.Name); err == nil {
		writeJSON(w, http.StatusOK, curvePayload(points, unit.Name))
		return
	}

	snap := h.ensureSnapshot(ctx)
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "Snapshot not ready")
		return
	}

	doses, err := h.storage.ListDoses(ctx, time.Time{}, to, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	doses = append(doses, h.tracker.PlannedDoses()...)

	points := pk.Curve(h.registry, from, to, step, doses, snap.ScalingFactor)
	for i := range points {
		points[i].Level = unit.Round(unit.Convert(points[i].Level))
	}

	if err := h.cache.SetCurve(ctx, from, to, step, unit.Name, points); err != nil {
		log.Printf("Curve cache write failed: %v", err)
	}

	writeJSON(w, http.StatusOK, curvePayload(points, unit.Name))
}

func curvePayload(points []models.CurvePoint, unit string) map[string]interface{} {
	return map[string]interface{}{
		"points":     points,
		"unit":       unit,
		"count":      len(points),
		"disclaimer": pk.Disclaimer,
	}
}

// GetReference returns the built-in menstrual cycle reference curve
func (h *Handlers) GetReference(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reference": pk.MenstrualReference(),
		"target_range": map[string]float64{
			"lower": pk.TargetRangeLower,
			"upper": pk.TargetRangeUpper,
		},
		"disclaimer": pk.Disclaimer,
	})
}

// SuggestRegimen solves for a single periodic schedule reaching a target
// steady-state trough
func (h *Handlers) SuggestRegimen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ModelKey     string  `json:"model_key"`
		Ester        string  `json:"ester"`
		Method       string  `json:"method"`
		TargetTrough float64 `json:"target_trough"`
		Preset       string  `json:"preset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	modelKey := req.ModelKey
	if modelKey == "" && req.Ester != "" && req.Method != "" {
		m, ok := h.registry.Resolve(models.Ester(req.Ester), models.Method(req.Method), h.config.Dosing.DefaultInterval)
		if !ok {
			writeError(w, http.StatusBadRequest, "Unsupported ester and method combination")
			return
		}
		modelKey = m.Key
	}
	if _, ok := h.registry.Lookup(modelKey); !ok {
		writeError(w, http.StatusBadRequest, "Unknown model key")
		return
	}

	target := req.TargetTrough
	if target <= 0 {
		preset := req.Preset
		if preset == "" {
			preset = pk.TargetTypeRange
		}
		t, ok := pk.TargetTrough(preset)
		if !ok {
			writeError(w, http.StatusBadRequest, "Unknown target preset")
			return
		}
		target = t
	}

	suggestion, ok := solver.SuggestRegimen(h.registry, modelKey, target)
	if !ok {
		writeError(w, http.StatusBadRequest, "No feasible regimen for this model")
		return
	}

	schedule := models.Schedule{
		ModelKey:     suggestion.ModelKey,
		DoseMg:       suggestion.DoseMg,
		IntervalDays: suggestion.IntervalDays,
		DoseTime:     h.config.Dosing.DoseTime,
		Enabled:      true,
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"suggestion": suggestion,
		"schedule":   schedule,
		"disclaimer": pk.Disclaimer,
	})
}

// FitCycle approximates a target cycle curve with up to max_schedules
// periodic schedules of one model
func (h *Handlers) FitCycle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ModelKey     string    `json:"model_key"`
		Target       []float64 `json:"target"`
		MaxSchedules int       `json:"max_schedules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, ok := h.registry.Lookup(req.ModelKey); !ok {
		writeError(w, http.StatusBadRequest, "Unknown model key")
		return
	}

	target := req.Target
	if len(target) == 0 {
		target = pk.MenstrualCycle()
	} else if len(target) != pk.CycleDays {
		writeError(w, http.StatusBadRequest, "Target must cover one 28-day cycle")
		return
	}

	fit, ok := solver.FitCycle(h.registry, req.ModelKey, target, req.MaxSchedules)
	if !ok {
		writeError(w, http.StatusBadRequest, "No cycle fit found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fit":        fit,
		"disclaimer": pk.Disclaimer,
	})
}

// PreviewCalibration computes the calibration factor and variance from the
// stored tests and doses without persisting anything
func (h *Handlers) PreviewCalibration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tests, err := h.storage.ListTests(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	doses, err := h.storage.ListDoses(ctx, time.Time{}, time.Time{}, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	opts := pk.DefaultCalibrationOptions()
	if h.config.Calibration.DecayLambda > 0 {
		opts.DecayLambda = h.config.Calibration.DecayLambda
	}
	factor, variance := pk.Calibrate(h.registry, time.Now().UTC(), tests, doses, opts)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scaling_factor":   factor,
		"scaling_variance": variance,
		"test_count":       len(tests),
		"dose_count":       len(doses),
	})
}

// ListAlerts returns alerts, optionally filtered by lifecycle state
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	state := models.AlertState(r.URL.Query().Get("state"))

	list := h.alerts.ListAlerts(state)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": list,
		"count":  len(list),
	})
}

// ListAlertRules returns the configured alert rules
func (h *Handlers) ListAlertRules(w http.ResponseWriter, r *http.Request) {
	rules := h.alerts.ListRules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

// GetAlert returns a specific alert
func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	alert, ok := h.alerts.GetAlert(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Alert not found")
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// AcknowledgeAlert marks an active alert as acknowledged
func (h *Handlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	switch err := h.alerts.Acknowledge(id); err {
	case nil:
	case alerts.ErrAlertNotFound:
		writeError(w, http.StatusNotFound, "Alert not found")
		return
	case alerts.ErrAlertResolved:
		writeError(w, http.StatusConflict, "Alert already resolved")
		return
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	alert, _ := h.alerts.GetAlert(id)
	writeJSON(w, http.StatusOK, alert)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and attaches it to the live feed hub.
// The pumps outlive the handler, so they run on a background context.
func (h *Handlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn, uuid.New().String())
	h.hub.Register(client)

	go client.WritePump(context.Background())
	go client.ReadPump(context.Background())
}

// Helper functions

// refreshAfterWrite recomputes the snapshot and drops cached curves after a
// dose, test, or schedule mutation
func (h *Handlers) refreshAfterWrite(ctx context.Context) {
	if err := h.cache.InvalidateCurves(ctx); err != nil {
		log.Printf("Curve cache invalidation failed: %v", err)
	}
	if err := h.tracker.Refresh(ctx); err != nil {
		log.Printf("Tracker refresh failed: %v", err)
	}
}

// ensureSnapshot returns the tracker's snapshot, computing one on demand
// before the first poll tick
func (h *Handlers) ensureSnapshot(ctx context.Context) *models.LevelSnapshot {
	if snap := h.tracker.Snapshot(); snap != nil {
		return snap
	}
	if err := h.tracker.Refresh(ctx); err != nil {
		log.Printf("Tracker refresh failed: %v", err)
		return nil
	}
	return h.tracker.Snapshot()
}

// displayUnit resolves the unit query parameter, defaulting to the
// configured display unit
func (h *Handlers) displayUnit(r *http.Request) (pk.Unit, bool) {
	name := r.URL.Query().Get("unit")
	if name == "" {
		name = h.config.Dosing.Units
	}
	if name == "" {
		name = pk.UnitPgPerML
	}
	return pk.LookupUnit(name)
}

// parseTimeParam reads an optional RFC3339 or Unix-seconds query parameter.
// Absent values yield the zero time.
func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	if sec, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid %s time", name)
}
