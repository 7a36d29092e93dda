package features

import (
	"math"
	"time"

	"github.com/leungkcofficial/detect-pd/internal/booster"
)

// Canonical feature names shared by the stage and failure models.
const (
	FeatAge                    = "age"
	FeatBMI                    = "bmi"
	FeatBSA                    = "bsa"
	FeatCharlsonIndex          = "charlson_index"
	FeatBloodCreatinine        = "blood_creatinine"
	FeatBloodAlbumin           = "blood_albumin"
	FeatUrineProteinCreatinine = "urine_protein_creatinine"
	FeatPDFUrea                = "pdf_urea"
	FeatPDFCreatinine          = "pdf_creatinine"
	FeatDwellTimeMinutes       = "dwell_time_minutes"
	FeatPDFOsmolarity          = "pdf_osmolarity"
	FeatFailurePeriodDays      = "failure_period_days"
	FeatWaitingPeriodDays      = "waiting_period_days"
	FeatPDPeriodDays           = "pd_period_days"
)

// Observer counts feature pipeline outcomes. *metrics.MetricsWrapper
// satisfies it.
type Observer interface {
	FeatureVectorsInc()
	FeatureErrorsInc()
}

// Record holds the raw observations for one patient at one assessment.
// Nil fields were never observed. Direct values (BMI, CharlsonIndex,
// DwellMinutes, Osmolarity) take precedence over derivation from their
// underlying inputs.
type Record struct {
	Age      *float64
	WeightKg *float64
	HeightCm *float64
	BMI      *float64

	// Comorbidities uses the Charlson weight table keys. A nil slice
	// means comorbidity status was never assessed; an empty one means
	// assessed with none found.
	Comorbidities []string
	CharlsonIndex *float64

	BloodCreatinine        *float64 // µmol/L
	BloodAlbumin           *float64 // g/L
	UrineProteinCreatinine *float64 // mg/g
	PDFUrea                *float64 // mmol/L
	PDFCreatinine          *float64 // µmol/L

	DwellMinutes *float64
	FillTime     *time.Time
	DrainTime    *time.Time

	Osmolarity *float64
	Dialysate  *DialysateComposition

	RenalFailureDate      *time.Time // first eGFR below 10
	CatheterInsertionDate *time.Time
	PDStartDate           *time.Time
	AssessmentDate        *time.Time
}

// Builder assembles feature vectors from patient records.
type Builder struct {
	charlson CharlsonConfig
	obs      Observer
}

// NewBuilder returns a builder with default Charlson scoring. obs may be
// nil.
func NewBuilder(obs Observer) *Builder {
	return &Builder{charlson: DefaultCharlsonConfig(), obs: obs}
}

// Vector derives the named feature vector for rec. Derivations that fail
// their input guards are counted against the observer and the feature is
// left absent; the record's remaining features are unaffected.
func (b *Builder) Vector(rec Record) booster.FeatureVector {
	fv := booster.FeatureVector{}

	setIf := func(name string, v *float64) {
		if v != nil {
			fv[name] = *v
		}
	}
	setIf(FeatAge, rec.Age)
	setIf(FeatBloodCreatinine, rec.BloodCreatinine)
	setIf(FeatBloodAlbumin, rec.BloodAlbumin)
	setIf(FeatUrineProteinCreatinine, rec.UrineProteinCreatinine)
	setIf(FeatPDFUrea, rec.PDFUrea)
	setIf(FeatPDFCreatinine, rec.PDFCreatinine)

	switch {
	case rec.BMI != nil:
		fv[FeatBMI] = *rec.BMI
	case rec.WeightKg != nil && rec.HeightCm != nil:
		if v, err := BMI(*rec.WeightKg, *rec.HeightCm); err != nil {
			b.fail()
		} else {
			fv[FeatBMI] = v
		}
	}
	if rec.WeightKg != nil && rec.HeightCm != nil {
		if v, err := BSADuBois(*rec.WeightKg, *rec.HeightCm); err != nil {
			b.fail()
		} else {
			fv[FeatBSA] = v
		}
	}

	switch {
	case rec.CharlsonIndex != nil:
		fv[FeatCharlsonIndex] = *rec.CharlsonIndex
	case rec.Comorbidities != nil:
		age := math.NaN()
		if rec.Age != nil {
			age = *rec.Age
		}
		fv[FeatCharlsonIndex] = float64(CharlsonIndex(rec.Comorbidities, age, b.charlson))
	}

	switch {
	case rec.DwellMinutes != nil:
		fv[FeatDwellTimeMinutes] = *rec.DwellMinutes
	case rec.FillTime != nil && rec.DrainTime != nil:
		if v, err := DwellMinutes(*rec.FillTime, *rec.DrainTime); err != nil {
			b.fail()
		} else {
			fv[FeatDwellTimeMinutes] = v
		}
	}

	switch {
	case rec.Osmolarity != nil:
		fv[FeatPDFOsmolarity] = *rec.Osmolarity
	case rec.Dialysate != nil:
		if v, err := rec.Dialysate.Osmolarity(); err != nil {
			b.fail()
		} else {
			fv[FeatPDFOsmolarity] = v
		}
	}

	if rec.RenalFailureDate != nil && rec.PDStartDate != nil {
		fv[FeatFailurePeriodDays] = IntervalDays(*rec.RenalFailureDate, *rec.PDStartDate)
	}
	if rec.CatheterInsertionDate != nil && rec.PDStartDate != nil {
		fv[FeatWaitingPeriodDays] = IntervalDays(*rec.CatheterInsertionDate, *rec.PDStartDate)
	}
	if rec.PDStartDate != nil && rec.AssessmentDate != nil {
		fv[FeatPDPeriodDays] = IntervalDays(*rec.PDStartDate, *rec.AssessmentDate)
	}

	if b.obs != nil {
		b.obs.FeatureVectorsInc()
	}
	return fv
}

func (b *Builder) fail() {
	if b.obs != nil {
		b.obs.FeatureErrorsInc()
	}
}
