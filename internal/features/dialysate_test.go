package features

import (
	"math"
	"testing"
	"time"
)

func TestDwellMinutes(t *testing.T) {
	t.Parallel()

	fill := time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)
	drain := fill.Add(12 * time.Hour)

	got, err := DwellMinutes(fill, drain)
	if err != nil {
		t.Fatalf("DwellMinutes returned error for valid instants: %v", err)
	}
	if got != 720 {
		t.Errorf("Expected 720 minutes for an overnight dwell, got %g", got)
	}

	// Zero-length dwell is allowed
	got, err = DwellMinutes(fill, fill)
	if err != nil || got != 0 {
		t.Errorf("Expected 0 minutes without error, got %g, %v", got, err)
	}

	// Drain before fill is a recording error
	if _, err := DwellMinutes(drain, fill); err == nil {
		t.Error("Expected error when drain precedes fill")
	}
}

func TestOsmolarity(t *testing.T) {
	t.Parallel()

	// Standard lactate-buffered exchange strengths
	cases := []struct {
		name    string
		glucose float64
		want    float64
	}{
		{"1.5% dextrose", 13.6, 345.4884547069272},
		{"2.27% glucose", 22.7, 395.99911190053285},
		{"4.25% dextrose", 38.6, 484.25399644760216},
	}
	for _, tc := range cases {
		c := DialysateComposition{
			GlucoseGPerL:   tc.glucose,
			SodiumMmolL:    132,
			LactateMmolL:   40,
			CalciumMmolL:   1.75,
			MagnesiumMmolL: 0.25,
		}
		got, err := c.Osmolarity()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: expected %v mOsm/L, got %v", tc.name, tc.want, got)
		}
	}
}

func TestOsmolarityGuards(t *testing.T) {
	t.Parallel()

	base := DialysateComposition{
		GlucoseGPerL:   13.6,
		SodiumMmolL:    132,
		LactateMmolL:   40,
		CalciumMmolL:   1.75,
		MagnesiumMmolL: 0.25,
	}

	c := base
	c.SodiumMmolL = 0
	if _, err := c.Osmolarity(); err == nil {
		t.Error("Expected error for zero sodium")
	}

	c = base
	c.GlucoseGPerL = -1
	if _, err := c.Osmolarity(); err == nil {
		t.Error("Expected error for negative glucose")
	}

	c = base
	c.LactateMmolL = 200
	if _, err := c.Osmolarity(); err == nil {
		t.Error("Expected error when lactate exceeds available cations")
	}
}

func TestUnitConversions(t *testing.T) {
	t.Parallel()

	if got := CreatinineToMicromol(1); got != 88.42 {
		t.Errorf("Expected 88.42 µmol/L, got %g", got)
	}
	if got := CreatinineToMgdl(650); math.Abs(got-7.351277991404659) > 1e-12 {
		t.Errorf("Expected 7.3513 mg/dL, got %v", got)
	}

	// Round trips
	if got := CreatinineToMgdl(CreatinineToMicromol(2.5)); math.Abs(got-2.5) > 1e-12 {
		t.Errorf("Creatinine round trip drifted: %v", got)
	}
	if got := UreaToMgdl(UreaToMmol(28)); math.Abs(got-28) > 1e-12 {
		t.Errorf("Urea round trip drifted: %v", got)
	}

	if got := UreaToMmol(28); math.Abs(got-9.996) > 1e-12 {
		t.Errorf("Expected 9.996 mmol/L, got %v", got)
	}
	if got := AlbuminToGramsPerLiter(3.6); got != 36 {
		t.Errorf("Expected 36 g/L, got %g", got)
	}
}
