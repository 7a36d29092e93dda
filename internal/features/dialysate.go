package features

import (
	"fmt"
	"time"
)

// Anhydrous glucose, g/mol.
const glucoseMolarMass = 180.16

// Conversion factors between conventional and SI lab units.
const (
	creatinineUmolPerMgdl = 88.42
	ureaMmolPerMgdl       = 0.357
)

// DwellMinutes returns the dwell duration in minutes between fill and
// drain instants.
func DwellMinutes(fill, drain time.Time) (float64, error) {
	if drain.Before(fill) {
		return 0, fmt.Errorf("drain at %s precedes fill at %s",
			drain.Format(time.RFC3339), fill.Format(time.RFC3339))
	}
	return drain.Sub(fill).Minutes(), nil
}

// DialysateComposition describes a PD fluid prescription. Glucose is
// anhydrous in g/L; electrolytes are in mmol/L.
type DialysateComposition struct {
	GlucoseGPerL   float64
	SodiumMmolL    float64
	LactateMmolL   float64
	CalciumMmolL   float64
	MagnesiumMmolL float64
}

// Osmolarity estimates the fluid osmolarity in mOsm/L by summing all
// solute concentrations. Chloride is not prescribed directly, so it is
// recovered from electroneutrality of the stated ions.
func (c DialysateComposition) Osmolarity() (float64, error) {
	if c.SodiumMmolL <= 0 {
		return 0, fmt.Errorf("sodium must be positive, got %g mmol/L", c.SodiumMmolL)
	}
	if c.GlucoseGPerL < 0 || c.LactateMmolL < 0 || c.CalciumMmolL < 0 || c.MagnesiumMmolL < 0 {
		return 0, fmt.Errorf("negative solute concentration in composition %+v", c)
	}
	chloride := c.SodiumMmolL + 2*c.CalciumMmolL + 2*c.MagnesiumMmolL - c.LactateMmolL
	if chloride < 0 {
		return 0, fmt.Errorf("lactate %g mmol/L exceeds available cations", c.LactateMmolL)
	}
	glucoseMmol := c.GlucoseGPerL * 1000 / glucoseMolarMass
	return c.SodiumMmolL + chloride + c.LactateMmolL + c.CalciumMmolL + c.MagnesiumMmolL + glucoseMmol, nil
}

// CreatinineToMicromol converts creatinine from mg/dL to µmol/L.
func CreatinineToMicromol(mgdl float64) float64 { return mgdl * creatinineUmolPerMgdl }

// CreatinineToMgdl converts creatinine from µmol/L to mg/dL.
func CreatinineToMgdl(umol float64) float64 { return umol / creatinineUmolPerMgdl }

// UreaToMmol converts urea nitrogen from mg/dL to urea in mmol/L.
func UreaToMmol(mgdl float64) float64 { return mgdl * ureaMmolPerMgdl }

// UreaToMgdl converts urea in mmol/L back to urea nitrogen in mg/dL.
func UreaToMgdl(mmol float64) float64 { return mmol / ureaMmolPerMgdl }

// AlbuminToGramsPerLiter converts albumin from g/dL to g/L.
func AlbuminToGramsPerLiter(gdl float64) float64 { return gdl * 10 }
