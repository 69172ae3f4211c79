package service

import (
	"fmt"

	"github.com/medication-safety-cds/internal/domain"
)

// ValidateDosages range-checks each prescribed dose against the drug's standard range scaled
// by the patient's age, renal and hepatic multipliers. Unparseable dosages, unknown drugs and
// incompatible units are skipped.
func ValidateDosages(meds []domain.MedicationForCheck, records map[string]*domain.DrugRecord, demographics domain.PatientDemographics) []domain.DosageAlert {
	alerts := make([]domain.DosageAlert, 0)

	for _, med := range meds {
		record := records[medicationKey(med)]
		if record == nil || record.StandardDosageRange.IsZero() {
			continue
		}
		parsed, err := ParseDosage(med.Dosage)
		if err != nil {
			continue
		}
		unit := record.StandardDosageRange.Unit
		amount, err := ConvertAmount(parsed.Amount, parsed.Unit, unit)
		if err != nil {
			continue
		}

		scale := rangeScale(record, demographics)
		minDose := round2(record.StandardDosageRange.Min * scale)
		maxDose := round2(record.StandardDosageRange.Max * scale)

		var direction domain.DosageDirection
		switch {
		case maxDose > 0 && amount > maxDose:
			direction = domain.DosageHigh
		case amount < minDose:
			direction = domain.DosageLow
		default:
			continue
		}

		alerts = append(alerts, newDosageAlert(med, direction, amount, minDose, maxDose, unit))
	}
	return alerts
}

func newDosageAlert(med domain.MedicationForCheck, direction domain.DosageDirection, amount, minDose, maxDose float64, unit string) domain.DosageAlert {
	severity := domain.SeverityModerate
	var rationale, action string
	if direction == domain.DosageHigh {
		if amount >= 2*maxDose {
			severity = domain.SeverityMajor
		}
		rationale = fmt.Sprintf("Prescribed %s dose of %.4g %s exceeds the recommended maximum of %.4g %s", med.DisplayName(), amount, unit, maxDose, unit)
		action = fmt.Sprintf("Reduce %s to at most %.4g %s", med.DisplayName(), maxDose, unit)
	} else {
		rationale = fmt.Sprintf("Prescribed %s dose of %.4g %s is below the recommended minimum of %.4g %s", med.DisplayName(), amount, unit, minDose, unit)
		action = fmt.Sprintf("Increase %s to at least %.4g %s or confirm the intended dose", med.DisplayName(), minDose, unit)
	}

	return domain.DosageAlert{
		AlertBase: domain.AlertBase{
			ID:              domain.NewAlertID(domain.AlertKindDosage, med.ID, string(direction)),
			Kind:            domain.AlertKindDosage,
			Severity:        severity,
			Rationale:       rationale,
			Recommendations: []string{action},
		},
		MedicationID:   med.ID,
		MedicationName: med.DisplayName(),
		Direction:      direction,
		PrescribedDose: amount,
		RecommendedMin: minDose,
		RecommendedMax: maxDose,
		Unit:           unit,
	}
}
