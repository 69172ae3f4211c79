package service

import (
	"fmt"

	"github.com/medication-safety-cds/internal/domain"
)

// Age thresholds for the age screen, in years.
const (
	pediatricAgeLimit = 18
	geriatricAgeFrom  = 65
)

// PopulationAlerts holds the output of the five population screens.
type PopulationAlerts struct {
	Pregnancy []domain.PopulationAlert
	Lactation []domain.PopulationAlert
	Renal     []domain.PopulationAlert
	Hepatic   []domain.PopulationAlert
	Age       []domain.PopulationAlert
}

// populationScreen matches one demographic condition to a contraindication category.
type populationScreen struct {
	population domain.Population
	condition  func(d domain.PatientDemographics) (string, bool)
	management string // %s is replaced by the medication name
}

var populationScreens = []populationScreen{
	{
		population: domain.PopulationPregnancy,
		condition: func(d domain.PatientDemographics) (string, bool) {
			return "pregnant", d.IsPregnant()
		},
		management: "Avoid %s during pregnancy unless the benefit clearly outweighs fetal risk; consider a pregnancy-compatible alternative",
	},
	{
		population: domain.PopulationLactation,
		condition: func(d domain.PatientDemographics) (string, bool) {
			return "breastfeeding", d.IsLactating()
		},
		management: "Avoid %s while breastfeeding or interrupt breastfeeding for the course of therapy",
	},
	{
		population: domain.PopulationRenal,
		condition: func(d domain.PatientDemographics) (string, bool) {
			if d.CreatinineClearance == nil || *d.CreatinineClearance >= renalNormalThreshold {
				return "", false
			}
			return fmt.Sprintf("creatinine clearance %.0f mL/min", *d.CreatinineClearance), true
		},
		management: "Reassess %s for renal impairment: reduce the dose, extend the interval or choose a non-renally cleared alternative",
	},
	{
		population: domain.PopulationHepatic,
		condition: func(d domain.PatientDemographics) (string, bool) {
			if !d.HepaticFunction.IsImpaired() {
				return "", false
			}
			return fmt.Sprintf("%s hepatic impairment", d.HepaticFunction), true
		},
		management: "Reassess %s for hepatic impairment and monitor liver function tests",
	},
	{
		population: domain.PopulationPediatric,
		condition: func(d domain.PatientDemographics) (string, bool) {
			if d.Age <= 0 || d.Age >= pediatricAgeLimit {
				return "", false
			}
			return fmt.Sprintf("pediatric patient (%d years)", d.Age), true
		},
		management: "Confirm %s is appropriate for pediatric use and dose by weight",
	},
	{
		population: domain.PopulationGeriatric,
		condition: func(d domain.PatientDemographics) (string, bool) {
			if d.Age < geriatricAgeFrom {
				return "", false
			}
			return fmt.Sprintf("geriatric patient (%d years)", d.Age), true
		},
		management: "Review %s against geriatric prescribing criteria; start low and titrate slowly",
	},
}

// ScreenPopulations compares the patient's pregnancy, lactation, renal, hepatic and age
// status with each drug's contraindications. Severity is taken from the drug record.
func ScreenPopulations(meds []domain.MedicationForCheck, records map[string]*domain.DrugRecord, demographics domain.PatientDemographics) PopulationAlerts {
	result := PopulationAlerts{
		Pregnancy: make([]domain.PopulationAlert, 0),
		Lactation: make([]domain.PopulationAlert, 0),
		Renal:     make([]domain.PopulationAlert, 0),
		Hepatic:   make([]domain.PopulationAlert, 0),
		Age:       make([]domain.PopulationAlert, 0),
	}

	for _, screen := range populationScreens {
		condition, applies := screen.condition(demographics)
		if !applies {
			continue
		}
		for _, med := range meds {
			record := records[medicationKey(med)]
			if record == nil {
				continue
			}
			severity, contraindicated := record.Contraindications[screen.population]
			if !contraindicated || !severity.IsValid() {
				continue
			}
			result.add(newPopulationAlert(screen, med, severity, condition))
		}
	}
	return result
}

func (p *PopulationAlerts) add(alert domain.PopulationAlert) {
	switch alert.Kind {
	case domain.AlertKindPregnancy:
		p.Pregnancy = append(p.Pregnancy, alert)
	case domain.AlertKindLactation:
		p.Lactation = append(p.Lactation, alert)
	case domain.AlertKindRenal:
		p.Renal = append(p.Renal, alert)
	case domain.AlertKindHepatic:
		p.Hepatic = append(p.Hepatic, alert)
	default:
		p.Age = append(p.Age, alert)
	}
}

func newPopulationAlert(screen populationScreen, med domain.MedicationForCheck, severity domain.Severity, condition string) domain.PopulationAlert {
	kind := screen.population.AlertKind()
	return domain.PopulationAlert{
		AlertBase: domain.AlertBase{
			ID:              domain.NewAlertID(kind, string(screen.population), med.ID),
			Kind:            kind,
			Severity:        severity,
			Rationale:       fmt.Sprintf("%s is contraindicated (%s) for this patient: %s", med.DisplayName(), severity, condition),
			Recommendations: []string{fmt.Sprintf(screen.management, med.DisplayName())},
		},
		Population:     screen.population,
		MedicationID:   med.ID,
		MedicationName: med.DisplayName(),
		Condition:      condition,
	}
}
