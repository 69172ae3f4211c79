package service

import (
	"fmt"
	"strings"

	"github.com/medication-safety-cds/internal/domain"
)

const duplicateTherapyMonitoring = "Review the regimen for additive effects and cumulative toxicity"

// DetectDuplicateTherapy groups medications by therapeutic class and emits one alert for
// every class with two or more members. Medications without a resolved class are skipped.
func DetectDuplicateTherapy(meds []domain.MedicationForCheck, classes map[string]string) []domain.DuplicateTherapyAlert {
	type group struct {
		class string
		meds  []domain.MedicationForCheck
	}

	var order []string
	groups := make(map[string]*group)
	for _, med := range meds {
		class := strings.TrimSpace(classes[medicationKey(med)])
		if class == "" {
			continue
		}
		key := strings.ToLower(class)
		g, ok := groups[key]
		if !ok {
			g = &group{class: class}
			groups[key] = g
			order = append(order, key)
		}
		g.meds = append(g.meds, med)
	}

	alerts := make([]domain.DuplicateTherapyAlert, 0)
	for _, key := range order {
		g := groups[key]
		if len(g.meds) < 2 {
			continue
		}

		ids := make([]string, len(g.meds))
		names := make([]string, len(g.meds))
		for i, med := range g.meds {
			ids[i] = med.ID
			names[i] = med.DisplayName()
		}

		rationale := fmt.Sprintf("%d medications from the %s class are prescribed together: %s",
			len(g.meds), g.class, strings.Join(names, ", "))
		action := fmt.Sprintf("Confirm that concurrent %s therapy is intended or discontinue the redundant agent", g.class)

		alerts = append(alerts, domain.DuplicateTherapyAlert{
			AlertBase: domain.AlertBase{
				ID:              domain.NewAlertID(domain.AlertKindDuplicateTherapy, append([]string{key}, ids...)...),
				Kind:            domain.AlertKindDuplicateTherapy,
				Severity:        domain.SeverityModerate,
				Rationale:       rationale,
				Recommendations: []string{action},
			},
			TherapeuticClass: g.class,
			MedicationIDs:    ids,
			MedicationNames:  names,
			Monitoring:       duplicateTherapyMonitoring,
		})
	}
	return alerts
}
