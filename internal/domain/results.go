package domain

import (
	"time"
)

// CheckRequest asks for a full medication-safety check. Current medications, allergies
// and demographics left nil are fetched from the patient data provider.
type CheckRequest struct {
	PatientID           string               `json:"patient_id"`
	CurrentMedications  []MedicationForCheck `json:"current_medications,omitempty"`
	ProposedMedications []MedicationForCheck `json:"proposed_medications"`
	Allergies           []PatientAllergy     `json:"allergies,omitempty"`
	Demographics        *PatientDemographics `json:"demographics,omitempty"`
}

// Recommendation is one clinician-facing action in priority order.
type Recommendation struct {
	Priority        Severity `json:"priority"`
	Action          string   `json:"action"`
	Rationale       string   `json:"rationale"`
	RelatedAlertIDs []string `json:"related_alert_ids"`
}

// InteractionCheckResult is the immutable snapshot returned by a safety check.
type InteractionCheckResult struct {
	PatientID        string                  `json:"patient_id"`
	Timestamp        time.Time               `json:"timestamp"`
	DrugInteractions []DrugInteractionAlert  `json:"drug_interactions"`
	AllergyAlerts    []AllergyAlert          `json:"allergy_alerts"`
	DuplicateTherapy []DuplicateTherapyAlert `json:"duplicate_therapy"`
	DosageAlerts     []DosageAlert           `json:"dosage_alerts"`
	PregnancyAlerts  []PopulationAlert       `json:"pregnancy_alerts"`
	LactationAlerts  []PopulationAlert       `json:"lactation_alerts"`
	RenalAlerts      []PopulationAlert       `json:"renal_alerts"`
	HepaticAlerts    []PopulationAlert       `json:"hepatic_alerts"`
	AgeAlerts        []PopulationAlert       `json:"age_alerts"`
	OverallRiskScore int                     `json:"overall_risk_score"`
	Recommendations  []Recommendation        `json:"recommendations"`
}

// AllAlerts flattens every alert list in the fixed kind order.
func (r *InteractionCheckResult) AllAlerts() []Alert {
	alerts := make([]Alert, 0, r.AlertCount())
	for _, a := range r.DrugInteractions {
		alerts = append(alerts, a)
	}
	for _, a := range r.AllergyAlerts {
		alerts = append(alerts, a)
	}
	for _, a := range r.DuplicateTherapy {
		alerts = append(alerts, a)
	}
	for _, a := range r.DosageAlerts {
		alerts = append(alerts, a)
	}
	for _, group := range [][]PopulationAlert{r.PregnancyAlerts, r.LactationAlerts, r.RenalAlerts, r.HepaticAlerts, r.AgeAlerts} {
		for _, a := range group {
			alerts = append(alerts, a)
		}
	}
	return alerts
}

// AlertCount returns the total number of alerts of every kind.
func (r *InteractionCheckResult) AlertCount() int {
	return len(r.DrugInteractions) + len(r.AllergyAlerts) + len(r.DuplicateTherapy) +
		len(r.DosageAlerts) + len(r.PregnancyAlerts) + len(r.LactationAlerts) +
		len(r.RenalAlerts) + len(r.HepaticAlerts) + len(r.AgeAlerts)
}

// HighestSeverity returns the most severe band present, or "" when there are no alerts.
func (r *InteractionCheckResult) HighestSeverity() Severity {
	var highest Severity
	for _, a := range r.AllAlerts() {
		if s := a.Common().Severity; s.Rank() > highest.Rank() {
			highest = s
		}
	}
	return highest
}

// DosageAdjustment records one multiplicative correction applied by the dosage calculator.
type DosageAdjustment struct {
	Factor     string  `json:"factor"`
	Multiplier float64 `json:"multiplier"`
	Rationale  string  `json:"rationale"`
}

// Adjustment factors in the order they are applied.
const (
	AdjustmentAge      = "age"
	AdjustmentWeight   = "weight"
	AdjustmentRenal    = "renal"
	AdjustmentHepatic  = "hepatic"
	AdjustmentClinical = "clinical"
)

// CalculatedDosage is the patient-adjusted dose.
type CalculatedDosage struct {
	Amount       float64            `json:"amount"`
	Unit         string             `json:"unit"`
	Frequency    string             `json:"frequency"`
	Route        string             `json:"route"`
	MaxDailyDose float64            `json:"max_daily_dose"`
	Adjustments  []DosageAdjustment `json:"adjustments"`
}

// DosageRecommendation is the result of a dosage calculation.
type DosageRecommendation struct {
	MedicationID    string           `json:"medication_id"`
	PatientID       string           `json:"patient_id,omitempty"`
	CalculatedDose  CalculatedDosage `json:"calculated_dose"`
	Rationale       string           `json:"rationale"`
	Monitoring      []string         `json:"monitoring"`
	Warnings        []string         `json:"warnings"`
	Alternatives    []string         `json:"alternatives"`
	ConfidenceLevel int              `json:"confidence_level"`
	CalculatedAt    time.Time        `json:"calculated_at"`
}

// DosageRequest asks for a patient-adjusted dose.
type DosageRequest struct {
	PatientID       string              `json:"patient_id,omitempty"`
	DrugID          string              `json:"drug_id"`
	Indication      string              `json:"indication"`
	Demographics    PatientDemographics `json:"demographics"`
	ClinicalFactors *ClinicalFactors    `json:"clinical_factors,omitempty"`
}
