package domain

import (
	"strings"

	"github.com/google/uuid"
)

// alertNamespace seeds deterministic alert IDs so that identical checks yield identical alerts.
var alertNamespace = uuid.MustParse("6f1d3c2e-8b7a-4e59-9a41-2c0d5e7f8a90")

// NewAlertID derives a stable alert ID from the alert kind and its identifying parts.
func NewAlertID(kind AlertKind, parts ...string) string {
	key := string(kind) + "|" + strings.ToLower(strings.Join(parts, "|"))
	return uuid.NewSHA1(alertNamespace, []byte(key)).String()
}

// Alert is implemented by every alert variant.
type Alert interface {
	Common() AlertBase
}

// AlertBase carries the fields shared by all alert kinds.
type AlertBase struct {
	ID              string    `json:"id"`
	Kind            AlertKind `json:"kind"`
	Severity        Severity  `json:"severity"`
	Rationale       string    `json:"rationale"`
	Recommendations []string  `json:"recommendations"`
}

// Common returns the shared alert fields.
func (b AlertBase) Common() AlertBase {
	return b
}

// DrugInteractionAlert reports a known interaction between two medications.
type DrugInteractionAlert struct {
	AlertBase
	Drug1              string   `json:"drug1"`
	Drug2              string   `json:"drug2"`
	Mechanism          string   `json:"mechanism"`
	ClinicalEffect     string   `json:"clinical_effect"`
	Management         string   `json:"management"`
	Onset              Onset    `json:"onset,omitempty"`
	EvidenceLevel      string   `json:"evidence_level,omitempty"`
	MonitoringRequired bool     `json:"monitoring_required"`
	Alternatives       []string `json:"alternatives,omitempty"`
}

// AllergyMatch tells how an allergy alert was triggered.
type AllergyMatch string

const (
	AllergyMatchDirect        AllergyMatch = "DIRECT"
	AllergyMatchCrossReactive AllergyMatch = "CROSS_REACTIVE"
)

// AllergyAlert reports a medication conflicting with a recorded allergy.
type AllergyAlert struct {
	AlertBase
	MedicationID     string       `json:"medication_id"`
	MedicationName   string       `json:"medication_name"`
	AllergyID        string       `json:"allergy_id"`
	Allergen         string       `json:"allergen"`
	AllergenClass    string       `json:"allergen_class,omitempty"`
	Match            AllergyMatch `json:"match"`
	ReactionSeverity string       `json:"reaction_severity,omitempty"`
}

// DuplicateTherapyAlert reports two or more medications in the same therapeutic class.
type DuplicateTherapyAlert struct {
	AlertBase
	TherapeuticClass string   `json:"therapeutic_class"`
	MedicationIDs    []string `json:"medication_ids"`
	MedicationNames  []string `json:"medication_names"`
	Monitoring       string   `json:"monitoring"`
}

// DosageAlert reports a prescribed dose outside the patient-adjusted range.
type DosageAlert struct {
	AlertBase
	MedicationID   string          `json:"medication_id"`
	MedicationName string          `json:"medication_name"`
	Direction      DosageDirection `json:"direction"`
	PrescribedDose float64         `json:"prescribed_dose"`
	RecommendedMin float64         `json:"recommended_min"`
	RecommendedMax float64         `json:"recommended_max"`
	Unit           string          `json:"unit"`
}

// PopulationAlert reports a contraindication for a patient population
// (pregnancy, lactation, renal, hepatic or age).
type PopulationAlert struct {
	AlertBase
	Population     Population `json:"population"`
	MedicationID   string     `json:"medication_id"`
	MedicationName string     `json:"medication_name"`
	Condition      string     `json:"condition"`
}
