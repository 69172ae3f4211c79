package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medication-safety-cds/internal/domain"
)

// SafetyChecker runs the medication-safety pipeline: resolve reference data once, fan out
// the screen families, aggregate a risk score and synthesize recommendations.
type SafetyChecker struct {
	logger    *logrus.Logger
	reference domain.ReferenceProvider
	patients  domain.PatientDataProvider
	clock     domain.Clock
	config    domain.EngineConfig
}

// NewSafetyChecker creates a new safety checker. patients may be nil when every
// request carries its own patient context.
func NewSafetyChecker(
	logger *logrus.Logger,
	reference domain.ReferenceProvider,
	patients domain.PatientDataProvider,
	clock domain.Clock,
	config domain.EngineConfig,
) *SafetyChecker {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &SafetyChecker{
		logger:    logger,
		reference: reference,
		patients:  patients,
		clock:     clock,
		config:    config,
	}
}

// referenceSnapshot holds the reference data resolved for one check, keyed by medicationKey.
// It is read-only once built.
type referenceSnapshot struct {
	records map[string]*domain.DrugRecord
	classes map[string]string
}

// CheckInteractions runs every screen family over the request and returns an immutable result.
func (s *SafetyChecker) CheckInteractions(ctx context.Context, req *domain.CheckRequest) (*domain.InteractionCheckResult, error) {
	startTime := time.Now()

	if req == nil {
		return nil, domain.NewValidationError("request", "check request is required", nil)
	}
	if s.config.CheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.CheckTimeout)
		defer cancel()
	}

	current, allergies, demographics := s.gatherPatientContext(ctx, req)
	meds := DeduplicateMedications(current, req.ProposedMedications)
	proposed := DeduplicateMedications(req.ProposedMedications)
	if s.config.MaxMedications > 0 && len(meds) > s.config.MaxMedications {
		return nil, domain.NewValidationError("proposed_medications",
			fmt.Sprintf("at most %d medications can be checked at once", s.config.MaxMedications), len(meds))
	}

	s.logger.WithFields(logrus.Fields{
		"patient_id":  req.PatientID,
		"medications": len(meds),
		"allergies":   len(allergies),
	}).Info("Starting medication safety check")

	snapshot := s.resolveSnapshot(ctx, meds)

	result := &domain.InteractionCheckResult{
		PatientID: req.PatientID,
		Timestamp: s.clock.Now(),
	}

	var wg sync.WaitGroup
	wg.Add(5)
	go func() {
		defer wg.Done()
		alerts, err := CheckDrugInteractions(ctx, s.reference, meds)
		if err != nil {
			s.logger.WithError(err).WithField("screen", "drug_interaction").Warn("Screen failed, contributing no alerts")
			alerts = []domain.DrugInteractionAlert{}
		}
		result.DrugInteractions = alerts
	}()
	go func() {
		defer wg.Done()
		result.AllergyAlerts = ScreenAllergies(meds, allergies, snapshot.records)
	}()
	go func() {
		defer wg.Done()
		result.DuplicateTherapy = DetectDuplicateTherapy(meds, snapshot.classes)
	}()
	go func() {
		defer wg.Done()
		result.DosageAlerts = ValidateDosages(proposed, snapshot.records, demographics)
	}()
	go func() {
		defer wg.Done()
		population := ScreenPopulations(meds, snapshot.records, demographics)
		result.PregnancyAlerts = population.Pregnancy
		result.LactationAlerts = population.Lactation
		result.RenalAlerts = population.Renal
		result.HepaticAlerts = population.Hepatic
		result.AgeAlerts = population.Age
	}()
	wg.Wait()

	alerts := result.AllAlerts()
	result.OverallRiskScore = AggregateRiskScore(alerts)
	result.Recommendations = SynthesizeRecommendations(alerts)

	s.logger.WithFields(logrus.Fields{
		"patient_id":        req.PatientID,
		"drug_interactions": len(result.DrugInteractions),
		"allergy_alerts":    len(result.AllergyAlerts),
		"duplicate_therapy": len(result.DuplicateTherapy),
		"dosage_alerts":     len(result.DosageAlerts),
		"total_alerts":      len(alerts),
		"risk_score":        result.OverallRiskScore,
		"processing_time":   time.Since(startTime),
	}).Info("Medication safety check completed")

	return result, nil
}

// CalculateDosage derives a patient-adjusted dose for one drug.
func (s *SafetyChecker) CalculateDosage(ctx context.Context, req *domain.DosageRequest) (*domain.DosageRecommendation, error) {
	recommendation, err := CalculateDosage(ctx, s.reference, s.clock, req)
	if err != nil {
		var notFound *domain.DrugNotFoundError
		if errors.As(err, &notFound) {
			s.logger.WithField("drug_id", notFound.DrugID).Info("No standard dose on record")
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"patient_id":  req.PatientID,
		"drug_id":     req.DrugID,
		"amount":      recommendation.CalculatedDose.Amount,
		"unit":        recommendation.CalculatedDose.Unit,
		"adjustments": len(recommendation.CalculatedDose.Adjustments),
		"confidence":  recommendation.ConfidenceLevel,
	}).Info("Dosage calculation completed")

	return recommendation, nil
}

// gatherPatientContext fills in the patient context the request left out. A failed fetch
// degrades to empty input.
func (s *SafetyChecker) gatherPatientContext(ctx context.Context, req *domain.CheckRequest) ([]domain.MedicationForCheck, []domain.PatientAllergy, domain.PatientDemographics) {
	current, allergies := req.CurrentMedications, req.Allergies
	var demographics domain.PatientDemographics
	if req.Demographics != nil {
		demographics = *req.Demographics
	}

	if s.patients == nil || strings.TrimSpace(req.PatientID) == "" {
		return current, allergies, demographics
	}
	logger := s.logger.WithField("patient_id", req.PatientID)

	if current == nil {
		meds, err := s.patients.GetCurrentMedications(ctx, req.PatientID)
		if err != nil {
			logger.WithError(err).Warn("Failed to fetch current medications, proceeding without them")
		}
		current = meds
	}
	if allergies == nil {
		fetched, err := s.patients.GetPatientAllergies(ctx, req.PatientID)
		if err != nil {
			logger.WithError(err).Warn("Failed to fetch allergies, proceeding without them")
		}
		allergies = fetched
	}
	if req.Demographics == nil {
		fetched, err := s.patients.GetPatientDemographics(ctx, req.PatientID)
		switch {
		case err != nil:
			logger.WithError(err).Warn("Failed to fetch demographics, proceeding without them")
		case fetched != nil:
			demographics = *fetched
		}
	}
	return current, allergies, demographics
}

// resolveSnapshot looks up each medication's drug record and therapeutic class once.
// Misses and provider outages are skipped, leaving that medication without a record or class.
func (s *SafetyChecker) resolveSnapshot(ctx context.Context, meds []domain.MedicationForCheck) *referenceSnapshot {
	snapshot := &referenceSnapshot{
		records: make(map[string]*domain.DrugRecord, len(meds)),
		classes: make(map[string]string, len(meds)),
	}

	for _, med := range meds {
		key := medicationKey(med)
		record, err := s.lookupDrug(ctx, med)
		switch {
		case err == nil:
		case domain.IsRetryable(err):
			s.logger.WithError(err).WithField("medication_id", med.ID).Warn("Drug lookup unavailable, screening without its record")
		default:
			s.logger.WithError(err).WithField("medication_id", med.ID).Debug("No drug record for medication")
		}
		if record != nil {
			snapshot.records[key] = record
			if record.TherapeuticClass != "" {
				snapshot.classes[key] = record.TherapeuticClass
				continue
			}
		}

		class, err := s.reference.LookupTherapeuticClass(ctx, lookupName(med))
		switch {
		case err == nil:
			snapshot.classes[key] = class
		case domain.IsRetryable(err):
			s.logger.WithError(err).WithField("medication_id", med.ID).Warn("Class lookup unavailable, screening without its class")
		default:
			s.logger.WithError(err).WithField("medication_id", med.ID).Debug("No therapeutic class for medication")
		}
	}
	return snapshot
}

// lookupDrug resolves a medication by identifier, then by generic name.
func (s *SafetyChecker) lookupDrug(ctx context.Context, med domain.MedicationForCheck) (*domain.DrugRecord, error) {
	var lastErr error
	for _, key := range []string{med.ID, med.GenericName} {
		if strings.TrimSpace(key) == "" {
			continue
		}
		record, err := s.reference.LookupDrug(ctx, key)
		if err == nil {
			return record, nil
		}
		if !domain.IsNotFound(err) {
			return nil, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: medication has neither identifier nor generic name", domain.ErrInvalidInput)
	}
	return nil, lastErr
}
