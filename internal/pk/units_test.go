package pk

import "testing"

func TestLookupUnit(t *testing.T) {
	u, ok := LookupUnit(UnitPmolPerL)
	if !ok {
		t.Fatal("pmol/L should be a known unit")
	}
	if !approxEqual(u.Convert(100.0), 367.13, 1e-9) {
		t.Errorf("100 pg/mL = %v pmol/L, want 367.13", u.Convert(100.0))
	}
	if got := u.Round(123.456); got != 123 {
		t.Errorf("rounded = %v, want 123", got)
	}

	if _, ok := LookupUnit("ng/dL"); ok {
		t.Error("ng/dL should not be a known unit")
	}

	pg, _ := LookupUnit(UnitPgPerML)
	if pg.Convert(42.0) != 42.0 {
		t.Errorf("pg/mL conversion should be identity, got %v", pg.Convert(42.0))
	}
}

func TestUnits(t *testing.T) {
	all := Units()
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
	if all[0].Name != UnitPgPerML {
		t.Errorf("first unit = %q, want %q", all[0].Name, UnitPgPerML)
	}
}
