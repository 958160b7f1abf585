package solver

import (
	"testing"

	"github.com/savegress/dosetrack/internal/pk"
)

func TestSuggestRegimen(t *testing.T) {
	reg := pk.NewRegistry()
	tests := []struct {
		name         string
		modelKey     string
		wantDose     float64
		wantInterval float64
	}{
		{"EEn weekly", pk.ModelEEnIM, 3.0, 7.0},
		{"EB every other day", pk.ModelEBIM, 1.5, 2.0},
		{"EV twice weekly", pk.ModelEVIM, 2.0, 3.5},
		{"EC weekly", pk.ModelECIM, 4.5, 7.0},
		{"EUn biweekly", pk.ModelEUnIM, 15.0, 14.0},
		{"EUn subq biweekly", pk.ModelEUnCaSubQ, 17.5, 14.0},
		{"patch tw clamped to max", pk.ModelPatchTW, 20.0, 3.5},
		{"patch ow clamped to max", pk.ModelPatchOW, 20.0, 7.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SuggestRegimen(reg, tt.modelKey, 200.0)
			if !ok {
				t.Fatalf("no regimen for %s", tt.modelKey)
			}
			if got.DoseMg != tt.wantDose || got.IntervalDays != tt.wantInterval {
				t.Errorf("regimen = (%v mg, %v days), want (%v mg, %v days)",
					got.DoseMg, got.IntervalDays, tt.wantDose, tt.wantInterval)
			}
			if got.ModelKey != tt.modelKey {
				t.Errorf("model key = %q, want %q", got.ModelKey, tt.modelKey)
			}
			if got.TargetTrough != 200.0 {
				t.Errorf("target = %v, want 200", got.TargetTrough)
			}
		})
	}
}

func TestSuggestRegimenInfeasible(t *testing.T) {
	reg := pk.NewRegistry()

	// Daily oral dosing exceeds the four administrations per week cap.
	if got, ok := SuggestRegimen(reg, pk.ModelEOral, 200.0); ok {
		t.Errorf("oral regimen = %+v, want none", got)
	}
	if got, ok := SuggestRegimen(reg, "no such model", 200.0); ok {
		t.Errorf("unknown model regimen = %+v, want none", got)
	}
}

func TestSuggestRegimenLowerTarget(t *testing.T) {
	reg := pk.NewRegistry()

	got, ok := SuggestRegimen(reg, pk.ModelEEnIM, 100.0)
	if !ok {
		t.Fatal("no regimen for EEn at 100 pg/mL")
	}
	if got.DoseMg != 1.5 || got.IntervalDays != 7.0 {
		t.Errorf("regimen = (%v mg, %v days), want (1.5 mg, 7 days)", got.DoseMg, got.IntervalDays)
	}
}

func TestRoundDose(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{3.6, 3.5},
		{3.8, 4.0},
		{0.1, 0.5},
		{30.0, 20.0},
		{2.0, 2.0},
	}
	for _, tt := range tests {
		if got := roundDose(tt.in); got != tt.want {
			t.Errorf("roundDose(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
