package mcp

import (
	"strings"

	"github.com/medication-safety-cds/internal/domain"
	"github.com/medication-safety-cds/internal/feedback"
)

// MedicationParam describes one medication in a tool call.
type MedicationParam struct {
	ID          string `json:"id,omitempty" jsonschema:"formulary identifier, defaults to the generic name"`
	GenericName string `json:"generic_name" jsonschema:"generic drug name, e.g. warfarin"`
	BrandName   string `json:"brand_name,omitempty"`
	Dosage      string `json:"dosage,omitempty" jsonschema:"free-form dose, e.g. 500mg"`
	Route       string `json:"route,omitempty" jsonschema:"administration route, e.g. oral"`
}

// AllergyParam describes one documented allergy.
type AllergyParam struct {
	ID               string `json:"id,omitempty"`
	Allergen         string `json:"allergen" jsonschema:"allergen name, e.g. penicillin"`
	AllergenClass    string `json:"allergen_class,omitempty" jsonschema:"drug class of the allergen, e.g. beta-lactam"`
	ReactionSeverity string `json:"reaction_severity,omitempty" jsonschema:"MILD, MODERATE, SEVERE or ANAPHYLAXIS"`
}

// DemographicsParam carries the patient factors used by population screens and dose adjustment.
type DemographicsParam struct {
	Age                 int      `json:"age,omitempty" jsonschema:"age in years"`
	WeightKg            float64  `json:"weight_kg,omitempty" jsonschema:"body weight in kilograms"`
	Sex                 string   `json:"sex,omitempty"`
	Pregnant            *bool    `json:"pregnant,omitempty"`
	Lactating           *bool    `json:"lactating,omitempty"`
	CreatinineClearance *float64 `json:"creatinine_clearance,omitempty" jsonschema:"creatinine clearance in mL/min"`
	HepaticFunction     string   `json:"hepatic_function,omitempty" jsonschema:"NORMAL, MILD, MODERATE or SEVERE"`
}

// CheckInteractionsParams defines parameters for the check_interactions tool
type CheckInteractionsParams struct {
	PatientID           string             `json:"patient_id" jsonschema:"patient identifier"`
	CurrentMedications  []MedicationParam  `json:"current_medications,omitempty" jsonschema:"medications the patient already takes"`
	ProposedMedications []MedicationParam  `json:"proposed_medications" jsonschema:"medications being considered"`
	Allergies           []AllergyParam     `json:"allergies,omitempty"`
	Demographics        *DemographicsParam `json:"demographics,omitempty"`
}

// CalculateDosageParams defines parameters for the calculate_dosage tool
type CalculateDosageParams struct {
	PatientID     string            `json:"patient_id,omitempty"`
	DrugID        string            `json:"drug_id" jsonschema:"formulary identifier or generic name"`
	Indication    string            `json:"indication,omitempty" jsonschema:"indication selecting the base dose"`
	Demographics  DemographicsParam `json:"demographics,omitempty"`
	Comorbidities []string          `json:"comorbidities,omitempty"`
}

// RecordFeedbackParams defines parameters for the record_alert_feedback tool
type RecordFeedbackParams struct {
	AlertID        string `json:"alert_id" jsonschema:"ID of the alert being answered"`
	AlertKind      string `json:"alert_kind,omitempty"`
	Severity       string `json:"severity,omitempty"`
	PatientID      string `json:"patient_id,omitempty"`
	Medications    string `json:"medications,omitempty" jsonschema:"display names involved in the alert"`
	Outcome        string `json:"outcome" jsonschema:"accepted, overridden or dismissed"`
	OverrideReason string `json:"override_reason,omitempty" jsonschema:"required when the alert is overridden"`
	Clinician      string `json:"clinician,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// ListFeedbackParams defines parameters for the list_alert_feedback tool
type ListFeedbackParams struct {
	Limit  int `json:"limit,omitempty" jsonschema:"page size, default 50"`
	Offset int `json:"offset,omitempty"`
}

// ListFeedbackResult is the structured output of list_alert_feedback.
type ListFeedbackResult struct {
	Feedback []*feedback.Feedback       `json:"feedback"`
	Total    int64                      `json:"total"`
	Outcomes map[feedback.Outcome]int64 `json:"outcomes"`
	Limit    int                        `json:"limit"`
	Offset   int                        `json:"offset"`
}

// ExportFeedbackParams defines parameters for the export_alert_feedback tool
type ExportFeedbackParams struct{}

// ExportFeedbackResult is the structured output of export_alert_feedback.
type ExportFeedbackResult struct {
	FilePath string `json:"file_path"`
	Count    int64  `json:"count"`
}

// ImportFeedbackParams defines parameters for the import_alert_feedback tool
type ImportFeedbackParams struct {
	FilePath string `json:"file_path" jsonschema:"path to a JSON export"`
}

// ImportFeedbackResult is the structured output of import_alert_feedback.
type ImportFeedbackResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

func (p MedicationParam) toDomain() domain.MedicationForCheck {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		id = strings.ToLower(strings.TrimSpace(p.GenericName))
	}
	return domain.MedicationForCheck{
		ID:          id,
		GenericName: p.GenericName,
		BrandName:   p.BrandName,
		Dosage:      p.Dosage,
		Route:       p.Route,
	}
}

func (p DemographicsParam) toDomain() domain.PatientDemographics {
	return domain.PatientDemographics{
		Age:                 p.Age,
		WeightKg:            p.WeightKg,
		Sex:                 p.Sex,
		PregnancyStatus:     p.Pregnant,
		LactationStatus:     p.Lactating,
		CreatinineClearance: p.CreatinineClearance,
		HepaticFunction:     domain.HepaticFunction(strings.ToUpper(strings.TrimSpace(p.HepaticFunction))),
	}
}

func (p CheckInteractionsParams) toRequest() *domain.CheckRequest {
	req := &domain.CheckRequest{PatientID: p.PatientID}
	for _, m := range p.CurrentMedications {
		req.CurrentMedications = append(req.CurrentMedications, m.toDomain())
	}
	for _, m := range p.ProposedMedications {
		req.ProposedMedications = append(req.ProposedMedications, m.toDomain())
	}
	for _, a := range p.Allergies {
		req.Allergies = append(req.Allergies, domain.PatientAllergy{
			ID:               a.ID,
			Allergen:         a.Allergen,
			AllergenClass:    a.AllergenClass,
			ReactionSeverity: strings.ToUpper(strings.TrimSpace(a.ReactionSeverity)),
		})
	}
	if p.Demographics != nil {
		d := p.Demographics.toDomain()
		req.Demographics = &d
	}
	return req
}

func (p CalculateDosageParams) toRequest() *domain.DosageRequest {
	req := &domain.DosageRequest{
		PatientID:    p.PatientID,
		DrugID:       strings.TrimSpace(p.DrugID),
		Indication:   p.Indication,
		Demographics: p.Demographics.toDomain(),
	}
	if len(p.Comorbidities) > 0 {
		req.ClinicalFactors = &domain.ClinicalFactors{Comorbidities: p.Comorbidities}
	}
	return req
}

func (p RecordFeedbackParams) toFeedback() *feedback.Feedback {
	return &feedback.Feedback{
		AlertID:        strings.TrimSpace(p.AlertID),
		AlertKind:      domain.AlertKind(strings.ToUpper(strings.TrimSpace(p.AlertKind))),
		Severity:       domain.Severity(p.Severity),
		PatientID:      p.PatientID,
		Medications:    p.Medications,
		Outcome:        feedback.Outcome(p.Outcome),
		OverrideReason: p.OverrideReason,
		Clinician:      p.Clinician,
		Notes:          p.Notes,
	}
}
