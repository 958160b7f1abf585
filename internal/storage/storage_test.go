package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/savegress/dosetrack/pkg/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "dosetrack-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	s, err := NewSQLiteStorage(filepath.Join(tmpDir, "dosetrack.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func TestNewSQLiteStorage(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "dosetrack-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "nested", "dosetrack.db")
	s, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer s.Close()

	if s.db == nil {
		t.Error("expected db to be initialized")
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestSaveAndListDoses(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	doses := []models.DoseRecord{
		{Timestamp: base, ModelKey: "EEn im", AmountMg: 4.0},
		{Timestamp: base.Add(7 * 24 * time.Hour), ModelKey: "EEn im", AmountMg: 4.0},
		{Timestamp: base.Add(3 * 24 * time.Hour), ModelKey: "EV im", AmountMg: 2.0},
	}
	for i := range doses {
		if err := s.SaveDose(ctx, &doses[i]); err != nil {
			t.Fatalf("failed to save dose: %v", err)
		}
		if doses[i].ID == "" {
			t.Error("expected ID to be assigned on save")
		}
		if doses[i].Source != models.DoseSourceManual {
			t.Errorf("expected default source manual, got %s", doses[i].Source)
		}
	}

	all, err := s.ListDoses(ctx, time.Time{}, time.Time{}, "")
	if err != nil {
		t.Fatalf("failed to list doses: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 doses, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.Before(all[i-1].Timestamp) {
			t.Error("expected doses ordered by timestamp ascending")
		}
	}
	if !all[0].Timestamp.Equal(base) {
		t.Errorf("timestamp round-trip: got %v, want %v", all[0].Timestamp, base)
	}

	byModel, err := s.ListDoses(ctx, time.Time{}, time.Time{}, "EEn im")
	if err != nil {
		t.Fatalf("failed to list doses by model: %v", err)
	}
	if len(byModel) != 2 {
		t.Errorf("expected 2 EEn doses, got %d", len(byModel))
	}

	ranged, err := s.ListDoses(ctx, base.Add(24*time.Hour), base.Add(5*24*time.Hour), "")
	if err != nil {
		t.Fatalf("failed to list doses in range: %v", err)
	}
	if len(ranged) != 1 {
		t.Fatalf("expected 1 dose in range, got %d", len(ranged))
	}
	if ranged[0].ModelKey != "EV im" {
		t.Errorf("expected EV dose in range, got %s", ranged[0].ModelKey)
	}
}

func TestDeleteDose(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	dose := &models.DoseRecord{Timestamp: time.Now().UTC(), ModelKey: "EEn im", AmountMg: 4.0}
	if err := s.SaveDose(ctx, dose); err != nil {
		t.Fatalf("failed to save dose: %v", err)
	}

	if err := s.DeleteDose(ctx, dose.ID); err != nil {
		t.Fatalf("failed to delete dose: %v", err)
	}

	all, err := s.ListDoses(ctx, time.Time{}, time.Time{}, "")
	if err != nil {
		t.Fatalf("failed to list doses: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected no doses after delete, got %d", len(all))
	}

	if err := s.DeleteDose(ctx, "missing-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing dose, got %v", err)
	}
}

func TestAutomaticTimestamps(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	doses := []models.DoseRecord{
		{Timestamp: base, ModelKey: "EEn im", AmountMg: 4.0, Source: models.DoseSourceAutomatic, ScheduleID: "sched-1"},
		{Timestamp: base.Add(7 * 24 * time.Hour), ModelKey: "EEn im", AmountMg: 4.0, Source: models.DoseSourceAutomatic, ScheduleID: "sched-1"},
		{Timestamp: base.Add(24 * time.Hour), ModelKey: "EEn im", AmountMg: 4.0, Source: models.DoseSourceManual},
		{Timestamp: base.Add(2 * 24 * time.Hour), ModelKey: "EEn im", AmountMg: 4.0, Source: models.DoseSourceAutomatic, ScheduleID: "sched-2"},
	}
	for i := range doses {
		if err := s.SaveDose(ctx, &doses[i]); err != nil {
			t.Fatalf("failed to save dose: %v", err)
		}
	}

	stored, err := s.AutomaticTimestamps(ctx, "sched-1")
	if err != nil {
		t.Fatalf("failed to query automatic timestamps: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 timestamps for sched-1, got %d", len(stored))
	}
	if !stored[base.Unix()] {
		t.Error("expected base timestamp to be stored")
	}
	if !stored[base.Add(7*24*time.Hour).Unix()] {
		t.Error("expected second occurrence to be stored")
	}

	empty, err := s.AutomaticTimestamps(ctx, "missing")
	if err != nil {
		t.Fatalf("failed to query automatic timestamps: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no timestamps for unknown schedule, got %d", len(empty))
	}
}

func TestPruneDosesKeepsManual(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-400 * 24 * time.Hour)

	doses := []models.DoseRecord{
		{Timestamp: old, ModelKey: "EEn im", AmountMg: 4.0, Source: models.DoseSourceAutomatic, ScheduleID: "sched-1"},
		{Timestamp: old, ModelKey: "EEn im", AmountMg: 4.0, Source: models.DoseSourceManual},
		{Timestamp: old, ModelKey: "EV im", AmountMg: 2.0, Source: models.DoseSourceAutomatic, ScheduleID: "sched-2"},
		{Timestamp: now, ModelKey: "EEn im", AmountMg: 4.0, Source: models.DoseSourceAutomatic, ScheduleID: "sched-1"},
	}
	for i := range doses {
		if err := s.SaveDose(ctx, &doses[i]); err != nil {
			t.Fatalf("failed to save dose: %v", err)
		}
	}

	pruned, err := s.PruneDoses(ctx, "EEn im", now.Add(-100*24*time.Hour))
	if err != nil {
		t.Fatalf("failed to prune doses: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned dose, got %d", pruned)
	}

	remaining, err := s.ListDoses(ctx, time.Time{}, time.Time{}, "")
	if err != nil {
		t.Fatalf("failed to list doses: %v", err)
	}
	if len(remaining) != 3 {
		t.Fatalf("expected 3 remaining doses, got %d", len(remaining))
	}
	for _, d := range remaining {
		if d.ModelKey == "EEn im" && d.Source == models.DoseSourceAutomatic && d.Timestamp.Before(now.Add(-time.Hour)) {
			t.Error("old automatic dose should have been pruned")
		}
	}
}

func TestSaveAndListTests(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	tests := []models.BloodTest{
		{Timestamp: base.Add(48 * time.Hour), LevelPgML: 150.0},
		{Timestamp: base, LevelPgML: 120.0, Notes: "morning draw"},
	}
	for i := range tests {
		if err := s.SaveTest(ctx, &tests[i]); err != nil {
			t.Fatalf("failed to save test: %v", err)
		}
		if tests[i].ID == "" {
			t.Error("expected ID to be assigned on save")
		}
	}

	all, err := s.ListTests(ctx)
	if err != nil {
		t.Fatalf("failed to list tests: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 tests, got %d", len(all))
	}
	if all[0].LevelPgML != 120.0 {
		t.Errorf("expected earliest test first, got level %f", all[0].LevelPgML)
	}
	if all[0].Notes != "morning draw" {
		t.Errorf("notes round-trip: got '%s'", all[0].Notes)
	}

	if err := s.DeleteTest(ctx, all[0].ID); err != nil {
		t.Fatalf("failed to delete test: %v", err)
	}
	if err := s.DeleteTest(ctx, all[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for deleted test, got %v", err)
	}
}

func TestScheduleUpsert(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sched := &models.Schedule{
		ModelKey:     "EEn im",
		DoseMg:       4.0,
		IntervalDays: 7.0,
		PhaseDays:    2,
		DoseTime:     "08:00",
		Enabled:      true,
	}
	if err := s.SaveSchedule(ctx, sched); err != nil {
		t.Fatalf("failed to save schedule: %v", err)
	}
	if sched.ID == "" {
		t.Fatal("expected ID to be assigned on save")
	}
	createdAt := sched.CreatedAt

	sched.DoseMg = 5.0
	sched.Enabled = false
	if err := s.SaveSchedule(ctx, sched); err != nil {
		t.Fatalf("failed to update schedule: %v", err)
	}

	all, err := s.ListSchedules(ctx)
	if err != nil {
		t.Fatalf("failed to list schedules: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 schedule after upsert, got %d", len(all))
	}
	got := all[0]
	if got.DoseMg != 5.0 {
		t.Errorf("expected updated dose 5.0, got %f", got.DoseMg)
	}
	if got.Enabled {
		t.Error("expected schedule disabled after update")
	}
	if got.IntervalDays != 7.0 {
		t.Errorf("expected interval 7.0, got %f", got.IntervalDays)
	}
	if got.PhaseDays != 2.0 {
		t.Errorf("expected phase 2, got %f", got.PhaseDays)
	}
	if !got.CreatedAt.Equal(createdAt.Truncate(time.Second)) {
		t.Errorf("expected created_at preserved, got %v want %v", got.CreatedAt, createdAt)
	}
}

func TestDeleteSchedule(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sched := &models.Schedule{ModelKey: "EV im", DoseMg: 2.0, IntervalDays: 3.5, DoseTime: "08:00", Enabled: true}
	if err := s.SaveSchedule(ctx, sched); err != nil {
		t.Fatalf("failed to save schedule: %v", err)
	}

	if err := s.DeleteSchedule(ctx, sched.ID); err != nil {
		t.Fatalf("failed to delete schedule: %v", err)
	}
	if err := s.DeleteSchedule(ctx, sched.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for deleted schedule, got %v", err)
	}
}
