package tracker

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/savegress/dosetrack/internal/config"
	"github.com/savegress/dosetrack/internal/pk"
	"github.com/savegress/dosetrack/internal/storage"
	"github.com/savegress/dosetrack/pkg/models"
)

// Tracker polls storage, materializes scheduled doses, calibrates against
// blood tests, and publishes level snapshots to subscribers.
type Tracker struct {
	cfg      *config.Config
	store    storage.Storage
	registry *pk.Registry

	defaultModel pk.Model
	hasDefault   bool

	mu          sync.RWMutex
	snapshot    *models.LevelSnapshot
	planned     []models.DoseRecord
	subscribers []func(*models.LevelSnapshot)
	running     bool
	stopCh      chan struct{}
}

// New creates a tracker. The default model for baseline estimation is
// resolved from the configured dosing defaults.
func New(cfg *config.Config, store storage.Storage, registry *pk.Registry) *Tracker {
	t := &Tracker{
		cfg:      cfg,
		store:    store,
		registry: registry,
		stopCh:   make(chan struct{}),
	}
	t.defaultModel, t.hasDefault = registry.Resolve(
		models.Ester(cfg.Dosing.DefaultEster),
		models.Method(cfg.Dosing.DefaultMethod),
		cfg.Dosing.DefaultInterval,
	)
	return t
}

// Start runs an immediate refresh and begins the polling loop
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = true
	t.mu.Unlock()

	if err := t.Refresh(ctx); err != nil {
		log.Printf("Initial tracker refresh failed: %v", err)
	}

	go t.pollLoop(ctx)

	return nil
}

// Stop stops the polling loop
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		close(t.stopCh)
		t.running = false
	}
}

// AddSubscriber registers a callback invoked with each published snapshot
func (t *Tracker) AddSubscriber(fn func(*models.LevelSnapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers = append(t.subscribers, fn)
}

// Snapshot returns the most recently published level snapshot
func (t *Tracker) Snapshot() *models.LevelSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot
}

// PlannedDoses returns upcoming scheduled doses within the planning horizon
func (t *Tracker) PlannedDoses() []models.DoseRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.DoseRecord, len(t.planned))
	copy(out, t.planned)
	return out
}

// Refresh runs a single tracker tick immediately
func (t *Tracker) Refresh(ctx context.Context) error {
	return t.refresh(ctx, time.Now().UTC())
}

func (t *Tracker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Tracker.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			if err := t.refresh(ctx, time.Now().UTC()); err != nil {
				log.Printf("Tracker refresh failed: %v", err)
			}
		}
	}
}

func (t *Tracker) refresh(ctx context.Context, now time.Time) error {
	nextDose, planned, err := t.materializeSchedules(ctx, now)
	if err != nil {
		return err
	}

	t.pruneStale(ctx, now)

	doses, err := t.store.ListDoses(ctx, time.Time{}, time.Time{}, "")
	if err != nil {
		return fmt.Errorf("load doses: %w", err)
	}
	tests, err := t.store.ListTests(ctx)
	if err != nil {
		return fmt.Errorf("load tests: %w", err)
	}

	opts := pk.DefaultCalibrationOptions()
	if t.cfg.Calibration.DecayLambda > 0 {
		opts.DecayLambda = t.cfg.Calibration.DecayLambda
	}
	factor, variance := pk.Calibrate(t.registry, now, tests, doses, opts)

	baselineAt := t.baselineFunc(now, factor, variance, tests, doses)
	baseline := baselineAt(now)
	levelNow := pk.LevelAt(t.registry, now, doses, factor) + baseline
	dayAgo := now.Add(-24 * time.Hour)
	levelPrev := pk.LevelAt(t.registry, dayAgo, doses, factor) + baselineAt(dayAgo)

	snap := &models.LevelSnapshot{
		Timestamp:       now,
		Level:           levelNow,
		Unit:            pk.UnitPgPerML,
		TrendPerDay:     levelNow - levelPrev,
		ScalingFactor:   factor,
		ScalingVariance: variance,
		DoseCount:       len(doses),
		TestCount:       len(tests),
		NextDose:        nextDose,
		Baseline:        baseline > 0,
	}

	t.mu.Lock()
	t.snapshot = snap
	t.planned = planned
	subs := make([]func(*models.LevelSnapshot), len(t.subscribers))
	copy(subs, t.subscribers)
	t.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}

	return nil
}

// materializeSchedules persists due automatic doses and returns the next
// planned dose time plus the upcoming occurrences within the horizon.
func (t *Tracker) materializeSchedules(ctx context.Context, now time.Time) (*time.Time, []models.DoseRecord, error) {
	schedules, err := t.store.ListSchedules(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load schedules: %w", err)
	}

	horizon := t.cfg.Tracker.PlanningHorizon
	var nextDose *time.Time
	var planned []models.DoseRecord

	for i := range schedules {
		sch := &schedules[i]
		if !sch.Enabled || sch.IntervalDays <= 0 {
			continue
		}
		if _, ok := t.registry.Lookup(sch.ModelKey); !ok {
			log.Printf("Schedule %s references unknown model %q, skipping", sch.ID, sch.ModelKey)
			continue
		}

		stored, err := t.store.AutomaticTimestamps(ctx, sch.ID)
		if err != nil {
			log.Printf("Failed to load automatic timestamps for schedule %s: %v", sch.ID, err)
			continue
		}

		due, upcoming := scheduleOccurrences(sch, now, horizon)
		for _, ts := range due {
			if ts.Before(sch.CreatedAt) || stored[ts.Unix()] {
				continue
			}
			dose := &models.DoseRecord{
				Timestamp:  ts,
				ModelKey:   sch.ModelKey,
				AmountMg:   sch.DoseMg,
				Source:     models.DoseSourceAutomatic,
				ScheduleID: sch.ID,
			}
			if err := t.store.SaveDose(ctx, dose); err != nil {
				log.Printf("Failed to record scheduled dose for %s: %v", sch.ID, err)
			}
		}

		for _, ts := range upcoming {
			planned = append(planned, models.DoseRecord{
				Timestamp:  ts,
				ModelKey:   sch.ModelKey,
				AmountMg:   sch.DoseMg,
				Source:     models.DoseSourceAutomatic,
				ScheduleID: sch.ID,
			})
		}
		if len(upcoming) > 0 {
			first := upcoming[0]
			if nextDose == nil || first.Before(*nextDose) {
				nextDose = &first
			}
		}
	}

	sort.Slice(planned, func(i, j int) bool {
		return planned[i].Timestamp.Before(planned[j].Timestamp)
	})

	return nextDose, planned, nil
}

// pruneStale removes automatic doses older than each model's terminal
// elimination window
func (t *Tracker) pruneStale(ctx context.Context, now time.Time) {
	var total int64
	for _, m := range t.registry.Models() {
		cutoff := now.Add(-time.Duration(m.TerminalDays() * 24 * float64(time.Hour)))
		pruned, err := t.store.PruneDoses(ctx, m.Key, cutoff)
		if err != nil {
			log.Printf("Failed to prune stale doses for %s: %v", m.Key, err)
			continue
		}
		total += pruned
	}
	if total > 0 {
		log.Printf("Pruned %d stale automatic doses", total)
	}
}

// baselineFunc returns the baseline contribution at a point in time. When
// calibration found no usable test and no dose contributes at any test
// time, the latest measured level decays forward using the default model's
// slowest elimination constant. Otherwise the returned function is zero.
func (t *Tracker) baselineFunc(now time.Time, factor, variance float64, tests []models.BloodTest, doses []models.DoseRecord) func(time.Time) float64 {
	zero := func(time.Time) float64 { return 0 }

	if len(tests) == 0 || factor != 1.0 || variance != 0.0 || !t.hasDefault {
		return zero
	}
	for _, bt := range tests {
		if pk.LevelAt(t.registry, bt.Timestamp, doses, 1.0) > 0 {
			return zero
		}
	}

	latest := tests[len(tests)-1]
	if now.Before(latest.Timestamp) {
		return zero
	}

	k3 := t.defaultModel.Params.K3
	return func(at time.Time) float64 {
		ageDays := at.Sub(latest.Timestamp).Hours() / 24.0
		if ageDays < 0 {
			return 0
		}
		return latest.LevelPgML * math.Exp(-k3*ageDays)
	}
}
