package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/medication-safety-cds/internal/domain"
)

// Renal clearance bands in mL/min.
const (
	renalNormalThreshold   = 60.0
	renalModerateThreshold = 30.0
	renalSevereThreshold   = 15.0
)

// ageMultiplier returns the age-band dose multiplier. Ages below one year are not
// representable, so an age of zero means "not supplied".
func ageMultiplier(age int) (float64, string, bool) {
	switch {
	case age <= 0:
		return 1, "", false
	case age < 2:
		return 0.25, "infant (<2 years)", true
	case age < 12:
		return 0.5, "child (2-11 years)", true
	case age < 18:
		return 0.75, "adolescent (12-17 years)", true
	case age < 65:
		return 1, "adult (18-64 years)", true
	case age < 80:
		return 0.75, "older adult (65-79 years)", true
	default:
		return 0.5, "elderly (80+ years)", true
	}
}

func renalMultiplier(crcl float64) (float64, string) {
	switch {
	case crcl >= renalNormalThreshold:
		return 1, fmt.Sprintf("creatinine clearance %.0f mL/min (normal)", crcl)
	case crcl >= renalModerateThreshold:
		return 0.75, fmt.Sprintf("creatinine clearance %.0f mL/min (mild-moderate impairment)", crcl)
	case crcl >= renalSevereThreshold:
		return 0.5, fmt.Sprintf("creatinine clearance %.0f mL/min (severe impairment)", crcl)
	default:
		return 0.25, fmt.Sprintf("creatinine clearance %.0f mL/min (kidney failure)", crcl)
	}
}

func hepaticMultiplier(h domain.HepaticFunction) float64 {
	switch h {
	case domain.HepaticMild:
		return 0.75
	case domain.HepaticModerate:
		return 0.5
	case domain.HepaticSevere:
		return 0.25
	default:
		return 1
	}
}

// effectiveOrganFunction applies clinical-factor overrides on top of the demographics.
func effectiveOrganFunction(d domain.PatientDemographics, f *domain.ClinicalFactors) (*float64, domain.HepaticFunction) {
	crcl, hepatic := d.CreatinineClearance, d.HepaticFunction
	if f != nil {
		if f.CreatinineClearanceOverride != nil {
			crcl = f.CreatinineClearanceOverride
		}
		if f.HepaticFunctionOverride != nil {
			hepatic = *f.HepaticFunctionOverride
		}
	}
	return crcl, hepatic
}

// rangeScale is the combined age, renal and hepatic multiplier used to scale a drug's
// standard range when validating a prescribed dose.
func rangeScale(record *domain.DrugRecord, d domain.PatientDemographics) float64 {
	scale, _, _ := ageMultiplier(d.Age)
	if record.RenallyCleared && d.CreatinineClearance != nil {
		m, _ := renalMultiplier(*d.CreatinineClearance)
		scale *= m
	}
	if record.HepaticallyMetabolized && d.HepaticFunction.IsValid() {
		scale *= hepaticMultiplier(d.HepaticFunction)
	}
	return scale
}

var adjustmentMonitoring = map[string]string{
	domain.AdjustmentAge:      "Monitor for age-related sensitivity and adverse effects",
	domain.AdjustmentWeight:   "Recalculate the dose if body weight changes",
	domain.AdjustmentRenal:    "Monitor renal function (serum creatinine and creatinine clearance)",
	domain.AdjustmentHepatic:  "Monitor liver function tests",
	domain.AdjustmentClinical: "Monitor therapeutic response given patient-specific clinical factors",
}

// CalculateDosage derives a patient-adjusted dose. Multipliers apply in a fixed order:
// age band, weight, renal, hepatic, clinical factors. Steps whose input is missing are
// skipped. Identical requests produce identical doses; only CalculatedAt varies.
func CalculateDosage(ctx context.Context, provider domain.ReferenceProvider, clock domain.Clock, req *domain.DosageRequest) (*domain.DosageRecommendation, error) {
	if err := validateDosageRequest(req); err != nil {
		return nil, err
	}

	record, err := provider.LookupDrug(ctx, req.DrugID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, &domain.DrugNotFoundError{DrugID: req.DrugID, Indication: req.Indication}
		}
		return nil, fmt.Errorf("failed to look up drug %s: %w", req.DrugID, err)
	}
	dose, specific := record.DoseFor(req.Indication)
	if dose == nil || dose.Amount <= 0 {
		return nil, &domain.DrugNotFoundError{DrugID: req.DrugID, Indication: req.Indication}
	}

	demographics := req.Demographics
	crcl, hepatic := effectiveOrganFunction(demographics, req.ClinicalFactors)

	var adjustments []domain.DosageAdjustment
	weightBased := dose.MgPerKg > 0 && demographics.WeightKg > 0

	if m, band, ok := ageMultiplier(demographics.Age); ok {
		rationale := "Age band: " + band
		if weightBased {
			m, rationale = 1, "Age band superseded by weight-based dosing"
		}
		adjustments = append(adjustments, domain.DosageAdjustment{Factor: domain.AdjustmentAge, Multiplier: m, Rationale: rationale})
	}

	if weightBased {
		target := math.Min(dose.MgPerKg*demographics.WeightKg, dose.Amount)
		adjustments = append(adjustments, domain.DosageAdjustment{
			Factor:     domain.AdjustmentWeight,
			Multiplier: target / dose.Amount,
			Rationale: fmt.Sprintf("%.4g %s/kg for %.4g kg, capped at the adult dose of %.4g %s",
				dose.MgPerKg, dose.Unit, demographics.WeightKg, dose.Amount, dose.Unit),
		})
	}

	if record.RenallyCleared && crcl != nil {
		m, band := renalMultiplier(*crcl)
		adjustments = append(adjustments, domain.DosageAdjustment{Factor: domain.AdjustmentRenal, Multiplier: m, Rationale: "Renally cleared drug; " + band})
	}

	if record.HepaticallyMetabolized && hepatic.IsValid() {
		adjustments = append(adjustments, domain.DosageAdjustment{
			Factor:     domain.AdjustmentHepatic,
			Multiplier: hepaticMultiplier(hepatic),
			Rationale:  fmt.Sprintf("Hepatically metabolized drug; hepatic function %s", strings.ToLower(string(hepatic))),
		})
	}

	if req.ClinicalFactors != nil {
		m, matched := clinicalMultiplier(record, req.ClinicalFactors)
		rationale := "No clinical factor adjustments apply"
		if len(matched) > 0 {
			rationale = "Clinical factors: " + strings.Join(matched, ", ")
		}
		adjustments = append(adjustments, domain.DosageAdjustment{Factor: domain.AdjustmentClinical, Multiplier: m, Rationale: rationale})
	}

	cumulative := 1.0
	monitoring := make([]string, 0)
	warnings := make([]string, 0)
	for _, adj := range adjustments {
		cumulative *= adj.Multiplier
		if adj.Multiplier != 1 {
			monitoring = append(monitoring, adjustmentMonitoring[adj.Factor])
		}
		if change := math.Abs(adj.Multiplier - 1); change > 0.5 {
			warnings = append(warnings, fmt.Sprintf("%s adjustment changes the dose by %.0f%%", adj.Factor, change*100))
		}
	}
	if record.RenallyCleared && crcl != nil && *crcl < renalModerateThreshold {
		warnings = append(warnings, "Severe renal impairment: consider an alternative or specialist review before dosing")
	}
	if record.HepaticallyMetabolized && hepatic == domain.HepaticSevere {
		warnings = append(warnings, "Severe hepatic impairment: use with caution and titrate slowly")
	}

	confidence := 50 + 10*demographics.SuppliedFields()
	if req.Indication != "" && !specific {
		confidence -= 10
	}

	calculated := domain.CalculatedDosage{
		Amount:       round2(dose.Amount * cumulative),
		Unit:         dose.Unit,
		Frequency:    dose.Frequency,
		Route:        dose.Route,
		MaxDailyDose: round2(dose.MaxDailyDose * cumulative),
		Adjustments:  adjustments,
	}
	if calculated.Adjustments == nil {
		calculated.Adjustments = []domain.DosageAdjustment{}
	}

	alternatives := append([]string{}, record.Alternatives...)

	return &domain.DosageRecommendation{
		MedicationID:    record.ID,
		PatientID:       req.PatientID,
		CalculatedDose:  calculated,
		Rationale:       dosageRationale(record, dose, req.Indication, specific, cumulative),
		Monitoring:      monitoring,
		Warnings:        warnings,
		Alternatives:    alternatives,
		ConfidenceLevel: clamp(confidence, 0, 100),
		CalculatedAt:    clock.Now(),
	}, nil
}

func validateDosageRequest(req *domain.DosageRequest) error {
	if req == nil {
		return domain.NewValidationError("request", "dosage request is required", nil)
	}
	if strings.TrimSpace(req.DrugID) == "" {
		return domain.NewValidationError("drug_id", "drug identifier is required", req.DrugID)
	}
	if req.Demographics.Age < 0 {
		return domain.NewValidationError("demographics.age", "must not be negative", req.Demographics.Age)
	}
	if req.Demographics.WeightKg < 0 {
		return domain.NewValidationError("demographics.weight_kg", "must not be negative", req.Demographics.WeightKg)
	}
	return nil
}

// clinicalMultiplier multiplies the drug's factor adjustments matched by comorbidity or
// genetic factor name. Matched names are returned sorted.
func clinicalMultiplier(record *domain.DrugRecord, factors *domain.ClinicalFactors) (float64, []string) {
	adjustments := make(map[string]float64, len(record.FactorAdjustments))
	for name, m := range record.FactorAdjustments {
		adjustments[normalizeName(name)] = m
	}

	seen := make(map[string]struct{})
	var matched []string
	for _, list := range [][]string{factors.Comorbidities, factors.GeneticFactors} {
		for _, factor := range list {
			key := normalizeName(factor)
			if _, dup := seen[key]; dup {
				continue
			}
			if _, ok := adjustments[key]; ok {
				seen[key] = struct{}{}
				matched = append(matched, key)
			}
		}
	}
	sort.Strings(matched)

	m := 1.0
	for _, key := range matched {
		m *= adjustments[key]
	}
	return m, matched
}

func dosageRationale(record *domain.DrugRecord, dose *domain.StandardDose, indication string, specific bool, cumulative float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Standard dose of %s is %.4g %s", record.GenericName, dose.Amount, dose.Unit)
	if dose.Frequency != "" {
		fmt.Fprintf(&b, " %s", dose.Frequency)
	}
	switch {
	case specific:
		fmt.Fprintf(&b, " for %s", indication)
	case indication != "":
		fmt.Fprintf(&b, " (default dose; no %s-specific dose on record)", indication)
	}
	if cumulative != 1 {
		fmt.Fprintf(&b, "; patient factors scale the dose to %.0f%% of standard", cumulative*100)
	}
	return b.String()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
