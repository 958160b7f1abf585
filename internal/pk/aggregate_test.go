package pk

import (
	"testing"
	"time"

	"github.com/savegress/dosetrack/pkg/models"
)

func TestLevelAt(t *testing.T) {
	reg := NewRegistry()
	now := time.Unix(1700000000, 0).UTC()

	weekOld := models.DoseRecord{
		Timestamp: now.Add(-7 * 24 * time.Hour),
		ModelKey:  ModelEEnIM,
		AmountMg:  10.0,
	}
	dayOld := models.DoseRecord{
		Timestamp: now.Add(-24 * time.Hour),
		ModelKey:  ModelEEnIM,
		AmountMg:  10.0,
	}

	if got := LevelAt(reg, now, []models.DoseRecord{weekOld}, 1.0); !approxEqual(got, 311.7750511590, 1e-6) {
		t.Errorf("single dose level = %.10f, want 311.7750511590", got)
	}
	if got := LevelAt(reg, now, []models.DoseRecord{weekOld}, 0.5); !approxEqual(got, 155.8875255795, 1e-6) {
		t.Errorf("scaled level = %.10f, want 155.8875255795", got)
	}
	if got := LevelAt(reg, now, []models.DoseRecord{weekOld, dayOld}, 1.0); !approxEqual(got, 359.0946666167, 1e-6) {
		t.Errorf("summed level = %.10f, want 359.0946666167", got)
	}
}

func TestLevelAtSkipsUnknownModels(t *testing.T) {
	reg := NewRegistry()
	now := time.Unix(1700000000, 0).UTC()

	doses := []models.DoseRecord{
		{Timestamp: now.Add(-7 * 24 * time.Hour), ModelKey: ModelEEnIM, AmountMg: 10.0},
		{Timestamp: now.Add(-24 * time.Hour), ModelKey: "retired model", AmountMg: 50.0},
	}
	if got := LevelAt(reg, now, doses, 1.0); !approxEqual(got, 311.7750511590, 1e-6) {
		t.Errorf("level with unknown model = %.10f, want 311.7750511590", got)
	}
}

func TestLevelAtBeforeFirstDose(t *testing.T) {
	reg := NewRegistry()
	now := time.Unix(1700000000, 0).UTC()

	doses := []models.DoseRecord{
		{Timestamp: now.Add(24 * time.Hour), ModelKey: ModelEEnIM, AmountMg: 10.0},
	}
	if got := LevelAt(reg, now, doses, 1.0); got != 0 {
		t.Errorf("level before any dose = %v, want 0", got)
	}
}

func TestCurve(t *testing.T) {
	reg := NewRegistry()
	now := time.Unix(1700000000, 0).UTC()
	doses := []models.DoseRecord{
		{Timestamp: now.Add(-7 * 24 * time.Hour), ModelKey: ModelEEnIM, AmountMg: 10.0},
	}

	points := Curve(reg, now, now.Add(48*time.Hour), 24*time.Hour, doses, 1.0)
	if len(points) != 3 {
		t.Fatalf("len = %d, want 3", len(points))
	}
	if !points[0].Timestamp.Equal(now) {
		t.Errorf("first timestamp = %v, want %v", points[0].Timestamp, now)
	}
	if want := LevelAt(reg, now, doses, 1.0); points[0].Level != want {
		t.Errorf("first level = %v, want %v", points[0].Level, want)
	}
	if want := LevelAt(reg, now.Add(48*time.Hour), doses, 1.0); points[2].Level != want {
		t.Errorf("last level = %v, want %v", points[2].Level, want)
	}

	if got := Curve(reg, now, now.Add(time.Hour), 0, doses, 1.0); got != nil {
		t.Errorf("zero step curve = %v, want nil", got)
	}
	if got := Curve(reg, now, now.Add(-time.Hour), time.Hour, doses, 1.0); got != nil {
		t.Errorf("inverted range curve = %v, want nil", got)
	}
}
