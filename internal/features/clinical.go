// Package features derives model inputs from raw clinical observations:
// comorbidity scoring, anthropometrics, dialysate chemistry and treatment
// timeline intervals. Anything it cannot derive stays absent from the
// produced vector, so the engine's missing-value routing applies.
package features

import (
	"fmt"
	"math"
	"time"
)

// charlsonWeights holds the standard Charlson comorbidity base weights.
var charlsonWeights = map[string]int{
	"myocardial_infarction":            1,
	"congestive_heart_failure":         1,
	"peripheral_vascular_disease":      1,
	"cerebrovascular_disease":          1,
	"dementia":                         1,
	"chronic_pulmonary_disease":        1,
	"connective_tissue_disease":        1,
	"peptic_ulcer_disease":             1,
	"mild_liver_disease":               1,
	"diabetes":                         1,
	"diabetes_with_end_organ_damage":   2,
	"hemiplegia":                       2,
	"moderate_or_severe_renal_disease": 2,
	"any_tumor":                        2,
	"leukemia":                         2,
	"lymphoma":                         2,
	"moderate_or_severe_liver_disease": 3,
	"metastatic_solid_tumor":           6,
	"aids_hiv":                         6,
}

const comorbidityRenal = "moderate_or_severe_renal_disease"

// CharlsonConfig controls Charlson index scoring. Weights entries override
// the base table per key; unlisted keys keep their base weight. Renal
// disease is added unconditionally when IncludeRenalDisease is set, since
// every patient on dialysis carries it.
type CharlsonConfig struct {
	Weights             map[string]int
	IncludeRenalDisease bool
	IncludeAge          bool
}

// DefaultCharlsonConfig returns the scoring used for dialysis cohorts:
// renal disease always counted, age adjustment on.
func DefaultCharlsonConfig() CharlsonConfig {
	return CharlsonConfig{IncludeRenalDisease: true, IncludeAge: true}
}

func (c CharlsonConfig) weight(comorbidity string) int {
	if w, ok := c.Weights[comorbidity]; ok {
		return w
	}
	return charlsonWeights[comorbidity]
}

// CharlsonIndex computes the Charlson comorbidity index for one patient.
// Comorbidity names use the base table keys; unknown names score zero.
// Pass NaN for age when it is unknown, which skips the age adjustment.
func CharlsonIndex(comorbidities []string, age float64, cfg CharlsonConfig) int {
	score := 0
	for _, c := range comorbidities {
		score += cfg.weight(c)
	}
	if cfg.IncludeRenalDisease {
		score += cfg.weight(comorbidityRenal)
	}
	if cfg.IncludeAge && !math.IsNaN(age) {
		score += ageAdjustment(age)
	}
	return score
}

// ageAdjustment maps age in years to the standard Charlson age brackets.
func ageAdjustment(age float64) int {
	switch {
	case age < 50:
		return 0
	case age < 60:
		return 1
	case age < 70:
		return 2
	case age < 80:
		return 3
	case age < 90:
		return 4
	default:
		return 5
	}
}

// BMI computes body mass index in kg/m².
func BMI(weightKg, heightCm float64) (float64, error) {
	if heightCm <= 0 {
		return 0, fmt.Errorf("height must be positive to compute BMI, got %g cm", heightCm)
	}
	heightM := heightCm / 100.0
	return weightKg / (heightM * heightM), nil
}

// BSADuBois computes body surface area in m² using the Du Bois formula.
func BSADuBois(weightKg, heightCm float64) (float64, error) {
	if weightKg <= 0 || heightCm <= 0 {
		return 0, fmt.Errorf("weight and height must be positive to compute BSA, got %g kg and %g cm", weightKg, heightCm)
	}
	return 0.007184 * math.Pow(weightKg, 0.425) * math.Pow(heightCm, 0.725), nil
}

// IntervalDays returns the whole days between start and end, truncated
// toward zero. Negative when end precedes start.
func IntervalDays(start, end time.Time) float64 {
	return float64(end.Sub(start) / (24 * time.Hour))
}
