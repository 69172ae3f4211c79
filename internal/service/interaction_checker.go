package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/medication-safety-cds/internal/domain"
)

// DeduplicateMedications merges current and proposed medications, keeping the first
// occurrence of every identifier. Entries without an identifier are keyed by generic name.
func DeduplicateMedications(lists ...[]domain.MedicationForCheck) []domain.MedicationForCheck {
	seen := make(map[string]struct{})
	var result []domain.MedicationForCheck
	for _, list := range lists {
		for _, med := range list {
			key := medicationKey(med)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, med)
		}
	}
	return result
}

// medicationKey identifies a medication within one check: its identifier, or its
// normalized name when the identifier is missing.
func medicationKey(med domain.MedicationForCheck) string {
	if id := strings.TrimSpace(med.ID); id != "" {
		return id
	}
	return "name:" + normalizeName(med.DisplayName())
}

// pairKey returns the canonical (sorted, lower-cased) form of a drug pair.
func pairKey(a, b string) (string, string) {
	a, b = normalizeName(a), normalizeName(b)
	if b < a {
		a, b = b, a
	}
	return a, b
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type pairResult struct {
	descriptor *domain.InteractionDescriptor
	err        error
}

// pairMemo caches interaction lookups for the duration of one check.
type pairMemo struct {
	provider domain.ReferenceProvider
	results  map[[2]string]pairResult
}

func newPairMemo(provider domain.ReferenceProvider) *pairMemo {
	return &pairMemo{provider: provider, results: make(map[[2]string]pairResult)}
}

func (m *pairMemo) lookup(ctx context.Context, nameA, nameB string) (*domain.InteractionDescriptor, error) {
	a, b := pairKey(nameA, nameB)
	key := [2]string{a, b}
	if r, ok := m.results[key]; ok {
		return r.descriptor, r.err
	}
	descriptor, err := m.provider.LookupInteraction(ctx, a, b)
	m.results[key] = pairResult{descriptor: descriptor, err: err}
	return descriptor, err
}

// CheckDrugInteractions evaluates every unordered pair of medications against the
// reference provider. Medications must already be deduplicated by identifier.
// A miss yields no alert; any other lookup failure aborts the screen.
func CheckDrugInteractions(ctx context.Context, provider domain.ReferenceProvider, meds []domain.MedicationForCheck) ([]domain.DrugInteractionAlert, error) {
	memo := newPairMemo(provider)
	alerts := make([]domain.DrugInteractionAlert, 0)

	for i := 0; i < len(meds); i++ {
		for j := i + 1; j < len(meds); j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			drug1, drug2 := meds[i], meds[j]
			descriptor, err := memo.lookup(ctx, lookupName(drug1), lookupName(drug2))
			if err != nil {
				if domain.IsNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("interaction lookup %s/%s: %w", drug1.DisplayName(), drug2.DisplayName(), err)
			}
			if descriptor == nil || !descriptor.Severity.IsValid() {
				continue
			}
			alerts = append(alerts, newInteractionAlert(drug1, drug2, descriptor))
		}
	}
	return alerts, nil
}

func lookupName(med domain.MedicationForCheck) string {
	if med.GenericName != "" {
		return med.GenericName
	}
	return med.DisplayName()
}

func newInteractionAlert(drug1, drug2 domain.MedicationForCheck, d *domain.InteractionDescriptor) domain.DrugInteractionAlert {
	a, b := pairKey(lookupName(drug1), lookupName(drug2))
	monitoring := d.Severity == domain.SeverityMajor || d.Severity == domain.SeverityCritical

	var recommendations []string
	if d.ManagementAdvice != "" {
		recommendations = append(recommendations, d.ManagementAdvice)
	}
	if monitoring {
		recommendations = append(recommendations,
			fmt.Sprintf("Monitor closely while %s and %s are co-administered", drug1.DisplayName(), drug2.DisplayName()))
	}

	rationale := fmt.Sprintf("%s interaction between %s and %s", strings.ToLower(d.Severity.String()), drug1.DisplayName(), drug2.DisplayName())
	if d.ClinicalEffect != "" {
		rationale += ": " + d.ClinicalEffect
	}

	return domain.DrugInteractionAlert{
		AlertBase: domain.AlertBase{
			ID:              domain.NewAlertID(domain.AlertKindDrugInteraction, a, b),
			Kind:            domain.AlertKindDrugInteraction,
			Severity:        d.Severity,
			Rationale:       rationale,
			Recommendations: recommendations,
		},
		Drug1:              drug1.DisplayName(),
		Drug2:              drug2.DisplayName(),
		Mechanism:          d.Mechanism,
		ClinicalEffect:     d.ClinicalEffect,
		Management:         d.ManagementAdvice,
		Onset:              d.Onset,
		EvidenceLevel:      d.EvidenceLevel,
		MonitoringRequired: monitoring,
		Alternatives:       d.Alternatives,
	}
}
