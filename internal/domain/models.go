package domain

import (
	"sort"
	"strings"
	"time"
)

// MedicationForCheck is a current or proposed medication submitted for screening.
type MedicationForCheck struct {
	ID          string     `json:"id"`
	GenericName string     `json:"generic_name"`
	BrandName   string     `json:"brand_name,omitempty"`
	Dosage      string     `json:"dosage"` // free-form, e.g. "500mg"
	Route       string     `json:"route"`
	StartDate   *time.Time `json:"start_date,omitempty"`
}

// DisplayName returns the name used in alert text.
func (m MedicationForCheck) DisplayName() string {
	if m.GenericName != "" {
		return m.GenericName
	}
	if m.BrandName != "" {
		return m.BrandName
	}
	return m.ID
}

// PatientAllergy is a recorded allergy.
type PatientAllergy struct {
	ID               string `json:"id"`
	Allergen         string `json:"allergen"`
	AllergenClass    string `json:"allergen_class,omitempty"`
	ReactionSeverity string `json:"reaction_severity,omitempty"`
}

// PatientDemographics holds the patient factors used by population screens and dose adjustment.
// Zero numbers and nil pointers mean "not supplied".
type PatientDemographics struct {
	Age                 int             `json:"age"`
	WeightKg            float64         `json:"weight_kg"`
	Sex                 string          `json:"sex,omitempty"`
	PregnancyStatus     *bool           `json:"pregnancy_status,omitempty"`
	LactationStatus     *bool           `json:"lactation_status,omitempty"`
	CreatinineClearance *float64        `json:"creatinine_clearance,omitempty"` // mL/min
	HepaticFunction     HepaticFunction `json:"hepatic_function,omitempty"`
}

// IsPregnant reports whether pregnancy status is known and true.
func (d PatientDemographics) IsPregnant() bool {
	return d.PregnancyStatus != nil && *d.PregnancyStatus
}

// IsLactating reports whether lactation status is known and true.
func (d PatientDemographics) IsLactating() bool {
	return d.LactationStatus != nil && *d.LactationStatus
}

// SuppliedFields counts the demographic inputs that were actually provided.
func (d PatientDemographics) SuppliedFields() int {
	n := 0
	if d.Age > 0 {
		n++
	}
	if d.WeightKg > 0 {
		n++
	}
	if strings.TrimSpace(d.Sex) != "" {
		n++
	}
	if d.CreatinineClearance != nil {
		n++
	}
	if d.HepaticFunction.IsValid() {
		n++
	}
	return n
}

// DosageRange is the standard adult dosage range of a drug.
type DosageRange struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Unit string  `json:"unit"`
}

// IsZero reports whether the range carries no bounds.
func (r DosageRange) IsZero() bool {
	return r.Min == 0 && r.Max == 0
}

// StandardDose is the reference adult dose for a drug and indication.
type StandardDose struct {
	Amount       float64 `json:"amount"`
	Unit         string  `json:"unit"`
	Frequency    string  `json:"frequency"`
	Route        string  `json:"route"`
	MaxDailyDose float64 `json:"max_daily_dose"`
	MgPerKg      float64 `json:"mg_per_kg,omitempty"` // > 0 when the drug is weight-dosed
}

// InteractionDescriptor describes a known interaction between two drugs.
type InteractionDescriptor struct {
	Severity         Severity `json:"severity"`
	Mechanism        string   `json:"mechanism"`
	ClinicalEffect   string   `json:"clinical_effect"`
	ManagementAdvice string   `json:"management_advice"`
	Onset            Onset    `json:"onset"`
	EvidenceLevel    string   `json:"evidence_level"`
	Alternatives     []string `json:"alternatives,omitempty"`
}

// DrugRecord is the reference entry for a drug.
type DrugRecord struct {
	ID                   string                           `json:"id"`
	GenericName          string                           `json:"generic_name"`
	TherapeuticClass     string                           `json:"therapeutic_class"`
	StandardDosageRange  DosageRange                      `json:"standard_dosage_range"`
	InteractionPartners  map[string]InteractionDescriptor `json:"interaction_partners,omitempty"`
	AllergenCrossClasses []string                         `json:"allergen_cross_classes,omitempty"`
	Contraindications    map[Population]Severity          `json:"contraindications,omitempty"`

	DefaultDose            *StandardDose           `json:"default_dose,omitempty"`
	IndicationDoses        map[string]StandardDose `json:"indication_doses,omitempty"`
	RenallyCleared         bool                    `json:"renally_cleared"`
	HepaticallyMetabolized bool                    `json:"hepatically_metabolized"`
	FactorAdjustments      map[string]float64      `json:"factor_adjustments,omitempty"`
	Alternatives           []string                `json:"alternatives,omitempty"`
}

// HasCrossClass reports whether the drug cross-reacts with the given allergen class.
func (d *DrugRecord) HasCrossClass(class string) bool {
	class = strings.TrimSpace(class)
	if class == "" {
		return false
	}
	for _, c := range d.AllergenCrossClasses {
		if strings.EqualFold(c, class) {
			return true
		}
	}
	return false
}

// DoseFor returns the standard dose for an indication, falling back to the default dose.
// The boolean is false when the default stood in for an indication-specific dose. Keys that
// differ only in case resolve to the first in sorted order.
func (d *DrugRecord) DoseFor(indication string) (*StandardDose, bool) {
	key := strings.ToLower(strings.TrimSpace(indication))
	if dose, ok := d.IndicationDoses[key]; ok {
		return &dose, true
	}
	if key != "" {
		keys := make([]string, 0, len(d.IndicationDoses))
		for k := range d.IndicationDoses {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if strings.ToLower(strings.TrimSpace(k)) == key {
				dose := d.IndicationDoses[k]
				return &dose, true
			}
		}
	}
	if d.DefaultDose != nil {
		dose := *d.DefaultDose
		return &dose, false
	}
	return nil, false
}

// ClinicalFactors are optional inputs to the dosage calculator.
type ClinicalFactors struct {
	Comorbidities               []string         `json:"comorbidities,omitempty"`
	CreatinineClearanceOverride *float64         `json:"creatinine_clearance_override,omitempty"`
	HepaticFunctionOverride     *HepaticFunction `json:"hepatic_function_override,omitempty"`
	GeneticFactors              []string         `json:"genetic_factors,omitempty"`
}
