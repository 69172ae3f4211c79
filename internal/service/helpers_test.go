package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/medication-safety-cds/internal/domain"
)

// MockReferenceProvider is a mock implementation of the ReferenceProvider interface
type MockReferenceProvider struct {
	mock.Mock
}

func (m *MockReferenceProvider) LookupDrug(ctx context.Context, drugID string) (*domain.DrugRecord, error) {
	args := m.Called(ctx, drugID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DrugRecord), args.Error(1)
}

func (m *MockReferenceProvider) LookupInteraction(ctx context.Context, drugA, drugB string) (*domain.InteractionDescriptor, error) {
	args := m.Called(ctx, drugA, drugB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InteractionDescriptor), args.Error(1)
}

func (m *MockReferenceProvider) LookupTherapeuticClass(ctx context.Context, drugID string) (string, error) {
	args := m.Called(ctx, drugID)
	return args.String(0), args.Error(1)
}

// MockPatientDataProvider is a mock implementation of the PatientDataProvider interface
type MockPatientDataProvider struct {
	mock.Mock
}

func (m *MockPatientDataProvider) GetCurrentMedications(ctx context.Context, patientID string) ([]domain.MedicationForCheck, error) {
	args := m.Called(ctx, patientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.MedicationForCheck), args.Error(1)
}

func (m *MockPatientDataProvider) GetPatientAllergies(ctx context.Context, patientID string) ([]domain.PatientAllergy, error) {
	args := m.Called(ctx, patientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PatientAllergy), args.Error(1)
}

func (m *MockPatientDataProvider) GetPatientDemographics(ctx context.Context, patientID string) (*domain.PatientDemographics, error) {
	args := m.Called(ctx, patientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PatientDemographics), args.Error(1)
}

// stubReference is an in-memory reference provider keyed by lower-cased ID or generic name.
type stubReference struct {
	drugs        map[string]*domain.DrugRecord
	interactions map[[2]string]*domain.InteractionDescriptor
	drugErr      error
}

func newStubReference(records ...*domain.DrugRecord) *stubReference {
	s := &stubReference{
		drugs:        make(map[string]*domain.DrugRecord),
		interactions: make(map[[2]string]*domain.InteractionDescriptor),
	}
	for _, r := range records {
		s.drugs[strings.ToLower(r.ID)] = r
		s.drugs[strings.ToLower(r.GenericName)] = r
	}
	return s
}

func (s *stubReference) withInteraction(a, b string, d domain.InteractionDescriptor) *stubReference {
	x, y := pairKey(a, b)
	s.interactions[[2]string{x, y}] = &d
	return s
}

func (s *stubReference) LookupDrug(_ context.Context, drugID string) (*domain.DrugRecord, error) {
	if s.drugErr != nil {
		return nil, s.drugErr
	}
	if r, ok := s.drugs[strings.ToLower(drugID)]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("drug %s: %w", drugID, domain.ErrNotFound)
}

func (s *stubReference) LookupInteraction(_ context.Context, drugA, drugB string) (*domain.InteractionDescriptor, error) {
	x, y := pairKey(drugA, drugB)
	if d, ok := s.interactions[[2]string{x, y}]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("interaction %s/%s: %w", drugA, drugB, domain.ErrNotFound)
}

func (s *stubReference) LookupTherapeuticClass(ctx context.Context, drugID string) (string, error) {
	r, err := s.LookupDrug(ctx, drugID)
	if err != nil {
		return "", err
	}
	if r.TherapeuticClass == "" {
		return "", fmt.Errorf("class for %s: %w", drugID, domain.ErrNotFound)
	}
	return r.TherapeuticClass, nil
}

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing
	return logger
}

func med(id, name, dosage string) domain.MedicationForCheck {
	return domain.MedicationForCheck{ID: id, GenericName: name, Dosage: dosage, Route: "oral"}
}

func floatPtr(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }

func recordsFor(meds []domain.MedicationForCheck, records ...*domain.DrugRecord) map[string]*domain.DrugRecord {
	byName := make(map[string]*domain.DrugRecord)
	for _, r := range records {
		byName[strings.ToLower(r.GenericName)] = r
	}
	result := make(map[string]*domain.DrugRecord)
	for _, m := range meds {
		if r, ok := byName[strings.ToLower(m.GenericName)]; ok {
			result[medicationKey(m)] = r
		}
	}
	return result
}

func warfarinRecord() *domain.DrugRecord {
	return &domain.DrugRecord{
		ID:                  "warfarin",
		GenericName:         "warfarin",
		TherapeuticClass:    "anticoagulant",
		StandardDosageRange: domain.DosageRange{Min: 1, Max: 10, Unit: "mg"},
		Contraindications: map[domain.Population]domain.Severity{
			domain.PopulationPregnancy: domain.SeverityCritical,
		},
		HepaticallyMetabolized: true,
	}
}

func aspirinRecord() *domain.DrugRecord {
	return &domain.DrugRecord{
		ID:                  "aspirin",
		GenericName:         "aspirin",
		TherapeuticClass:    "antiplatelet",
		StandardDosageRange: domain.DosageRange{Min: 75, Max: 1000, Unit: "mg"},
		Contraindications: map[domain.Population]domain.Severity{
			domain.PopulationPediatric: domain.SeverityMajor,
		},
	}
}

func amoxicillinRecord() *domain.DrugRecord {
	return &domain.DrugRecord{
		ID:                   "amoxicillin",
		GenericName:          "amoxicillin",
		TherapeuticClass:     "aminopenicillin",
		StandardDosageRange:  domain.DosageRange{Min: 250, Max: 1000, Unit: "mg"},
		AllergenCrossClasses: []string{"penicillins", "beta-lactams"},
		RenallyCleared:       true,
		DefaultDose: &domain.StandardDose{
			Amount: 500, Unit: "mg", Frequency: "every 8 hours", Route: "oral", MaxDailyDose: 3000, MgPerKg: 25,
		},
		IndicationDoses: map[string]domain.StandardDose{
			"otitis media": {Amount: 875, Unit: "mg", Frequency: "every 12 hours", Route: "oral", MaxDailyDose: 1750, MgPerKg: 45},
		},
		Alternatives: []string{"azithromycin", "doxycycline"},
	}
}

func metforminRecord() *domain.DrugRecord {
	return &domain.DrugRecord{
		ID:                  "metformin",
		GenericName:         "metformin",
		TherapeuticClass:    "biguanide",
		StandardDosageRange: domain.DosageRange{Min: 500, Max: 1000, Unit: "mg"},
		Contraindications: map[domain.Population]domain.Severity{
			domain.PopulationRenal: domain.SeverityMajor,
		},
		RenallyCleared: true,
		DefaultDose:    &domain.StandardDose{Amount: 1000, Unit: "mg", Frequency: "twice daily", Route: "oral", MaxDailyDose: 2000},
		FactorAdjustments: map[string]float64{
			"heart failure": 0.5,
			"CYP2C9*3":      0.8,
		},
	}
}
