package service

import (
	"fmt"
	"strings"

	"github.com/medication-safety-cds/internal/domain"
)

// ScreenAllergies tests every (medication, allergy) pair for a direct name match and for
// cross-reactivity through the drug's allergen classes. Both may fire for the same pair.
func ScreenAllergies(meds []domain.MedicationForCheck, allergies []domain.PatientAllergy, records map[string]*domain.DrugRecord) []domain.AllergyAlert {
	alerts := make([]domain.AllergyAlert, 0)

	for _, med := range meds {
		record := records[medicationKey(med)]
		for _, allergy := range allergies {
			allergen := strings.TrimSpace(allergy.Allergen)

			if allergen != "" && (strings.EqualFold(allergen, strings.TrimSpace(med.GenericName)) ||
				strings.EqualFold(allergen, strings.TrimSpace(med.BrandName))) {
				alerts = append(alerts, newAllergyAlert(med, allergy, domain.AllergyMatchDirect))
			}

			if record != nil && record.HasCrossClass(allergy.AllergenClass) {
				alerts = append(alerts, newAllergyAlert(med, allergy, domain.AllergyMatchCrossReactive))
			}
		}
	}
	return alerts
}

func newAllergyAlert(med domain.MedicationForCheck, allergy domain.PatientAllergy, match domain.AllergyMatch) domain.AllergyAlert {
	severity := domain.SeverityMajor
	if domain.IsAnaphylactic(allergy.ReactionSeverity) {
		severity = domain.SeverityCritical
	}

	recommendations := []string{fmt.Sprintf("Discontinue or substitute %s", med.DisplayName())}
	var rationale string
	if match == domain.AllergyMatchDirect {
		rationale = fmt.Sprintf("Patient has a documented allergy to %s", allergy.Allergen)
	} else {
		rationale = fmt.Sprintf("%s may cross-react with the patient's %s allergy (%s class)",
			med.DisplayName(), allergy.Allergen, allergy.AllergenClass)
		recommendations = append(recommendations,
			fmt.Sprintf("Select an agent outside the %s class", strings.ToLower(allergy.AllergenClass)))
	}
	if severity == domain.SeverityCritical {
		rationale += "; prior reaction was anaphylactic"
	}

	return domain.AllergyAlert{
		AlertBase: domain.AlertBase{
			ID:              domain.NewAlertID(domain.AlertKindAllergy, med.ID, allergy.ID, allergy.Allergen, string(match)),
			Kind:            domain.AlertKindAllergy,
			Severity:        severity,
			Rationale:       rationale,
			Recommendations: recommendations,
		},
		MedicationID:     med.ID,
		MedicationName:   med.DisplayName(),
		AllergyID:        allergy.ID,
		Allergen:         allergy.Allergen,
		AllergenClass:    allergy.AllergenClass,
		Match:            match,
		ReactionSeverity: allergy.ReactionSeverity,
	}
}
