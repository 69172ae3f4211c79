package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medication-safety-cds/internal/domain"
)

func adjustmentByFactor(adjustments []domain.DosageAdjustment, factor string) (domain.DosageAdjustment, bool) {
	for _, a := range adjustments {
		if a.Factor == factor {
			return a, true
		}
	}
	return domain.DosageAdjustment{}, false
}

func TestCalculateDosage(t *testing.T) {
	ctx := context.Background()
	clock := domain.FixedClock(testTime)
	provider := newStubReference(amoxicillinRecord(), metforminRecord(), warfarinRecord())

	t.Run("Severe_Renal_Impairment_Reduces_Dose", func(t *testing.T) {
		rec, err := CalculateDosage(ctx, provider, clock, &domain.DosageRequest{
			DrugID:       "amoxicillin",
			Demographics: domain.PatientDemographics{Age: 45, CreatinineClearance: floatPtr(15)},
		})
		require.NoError(t, err)

		renal, ok := adjustmentByFactor(rec.CalculatedDose.Adjustments, domain.AdjustmentRenal)
		require.True(t, ok)
		assert.Less(t, renal.Multiplier, 1.0)
		assert.Equal(t, 0.5, renal.Multiplier)
		assert.NotEmpty(t, rec.Warnings)
		assert.Equal(t, 250.0, rec.CalculatedDose.Amount)
		assert.Equal(t, 1500.0, rec.CalculatedDose.MaxDailyDose)
		assert.Contains(t, rec.Monitoring, adjustmentMonitoring[domain.AdjustmentRenal])
	})

	t.Run("Deterministic_Apart_From_Timestamp", func(t *testing.T) {
		req := &domain.DosageRequest{
			DrugID:       "metformin",
			Indication:   "type 2 diabetes",
			Demographics: domain.PatientDemographics{Age: 82, WeightKg: 60, Sex: "F", CreatinineClearance: floatPtr(35)},
			ClinicalFactors: &domain.ClinicalFactors{
				Comorbidities: []string{"Heart Failure"},
			},
		}

		first, err := CalculateDosage(ctx, provider, domain.SystemClock{}, req)
		require.NoError(t, err)
		second, err := CalculateDosage(ctx, provider, domain.SystemClock{}, req)
		require.NoError(t, err)

		assert.Equal(t, first.CalculatedDose, second.CalculatedDose)
		assert.Equal(t, first.Warnings, second.Warnings)
		assert.Equal(t, first.ConfidenceLevel, second.ConfidenceLevel)
	})

	t.Run("Adjustments_Apply_In_Fixed_Order", func(t *testing.T) {
		hepatic := domain.HepaticModerate
		record := metforminRecord()
		record.HepaticallyMetabolized = true
		local := newStubReference(record)

		rec, err := CalculateDosage(ctx, local, clock, &domain.DosageRequest{
			DrugID:       "metformin",
			Demographics: domain.PatientDemographics{Age: 70, CreatinineClearance: floatPtr(50)},
			ClinicalFactors: &domain.ClinicalFactors{
				HepaticFunctionOverride: &hepatic,
				GeneticFactors:          []string{"cyp2c9*3"},
			},
		})
		require.NoError(t, err)

		factors := make([]string, 0, len(rec.CalculatedDose.Adjustments))
		for _, a := range rec.CalculatedDose.Adjustments {
			factors = append(factors, a.Factor)
		}
		assert.Equal(t, []string{domain.AdjustmentAge, domain.AdjustmentRenal, domain.AdjustmentHepatic, domain.AdjustmentClinical}, factors)
		// 1000 * 0.75 * 0.75 * 0.5 * 0.8
		assert.Equal(t, 225.0, rec.CalculatedDose.Amount)
	})

	t.Run("Weight_Based_Dosing_Supersedes_Age_Band", func(t *testing.T) {
		rec, err := CalculateDosage(ctx, provider, clock, &domain.DosageRequest{
			DrugID:       "amoxicillin",
			Indication:   "Otitis Media",
			Demographics: domain.PatientDemographics{Age: 3, WeightKg: 10},
		})
		require.NoError(t, err)

		age, ok := adjustmentByFactor(rec.CalculatedDose.Adjustments, domain.AdjustmentAge)
		require.True(t, ok)
		assert.Equal(t, 1.0, age.Multiplier)

		weight, ok := adjustmentByFactor(rec.CalculatedDose.Adjustments, domain.AdjustmentWeight)
		require.True(t, ok)
		assert.InDelta(t, 450.0/875.0, weight.Multiplier, 1e-9)
		assert.Equal(t, 450.0, rec.CalculatedDose.Amount)
		assert.Equal(t, "every 12 hours", rec.CalculatedDose.Frequency)
	})

	t.Run("Weight_Based_Dose_Is_Capped_At_Adult_Dose", func(t *testing.T) {
		rec, err := CalculateDosage(ctx, provider, clock, &domain.DosageRequest{
			DrugID:       "amoxicillin",
			Demographics: domain.PatientDemographics{Age: 16, WeightKg: 90},
		})
		require.NoError(t, err)

		weight, ok := adjustmentByFactor(rec.CalculatedDose.Adjustments, domain.AdjustmentWeight)
		require.True(t, ok)
		assert.Equal(t, 1.0, weight.Multiplier)
		assert.Equal(t, 500.0, rec.CalculatedDose.Amount)
	})

	t.Run("Age_Band_Without_Weight", func(t *testing.T) {
		rec, err := CalculateDosage(ctx, provider, clock, &domain.DosageRequest{
			DrugID:       "amoxicillin",
			Demographics: domain.PatientDemographics{Age: 1},
		})
		require.NoError(t, err)

		age, ok := adjustmentByFactor(rec.CalculatedDose.Adjustments, domain.AdjustmentAge)
		require.True(t, ok)
		assert.Equal(t, 0.25, age.Multiplier)
		assert.Equal(t, 125.0, rec.CalculatedDose.Amount)
		assert.Contains(t, rec.Warnings, "age adjustment changes the dose by 75%")
	})

	t.Run("Clinical_Factors_Multiply", func(t *testing.T) {
		rec, err := CalculateDosage(ctx, provider, clock, &domain.DosageRequest{
			DrugID:       "metformin",
			Demographics: domain.PatientDemographics{Age: 40},
			ClinicalFactors: &domain.ClinicalFactors{
				Comorbidities:  []string{"heart failure", "asthma"},
				GeneticFactors: []string{"CYP2C9*3"},
			},
		})
		require.NoError(t, err)

		clinical, ok := adjustmentByFactor(rec.CalculatedDose.Adjustments, domain.AdjustmentClinical)
		require.True(t, ok)
		assert.InDelta(t, 0.4, clinical.Multiplier, 1e-9)
		assert.Equal(t, 400.0, rec.CalculatedDose.Amount)
		assert.Equal(t, 800.0, rec.CalculatedDose.MaxDailyDose)
		assert.Contains(t, rec.Warnings, "clinical adjustment changes the dose by 60%")
	})

	t.Run("Confidence_Reflects_Supplied_Fields", func(t *testing.T) {
		full, err := CalculateDosage(ctx, provider, clock, &domain.DosageRequest{
			DrugID:     "amoxicillin",
			Indication: "otitis media",
			Demographics: domain.PatientDemographics{
				Age: 40, WeightKg: 70, Sex: "M", CreatinineClearance: floatPtr(90), HepaticFunction: domain.HepaticNormal,
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 100, full.ConfidenceLevel)

		sparse, err := CalculateDosage(ctx, provider, clock, &domain.DosageRequest{
			DrugID:     "amoxicillin",
			Indication: "sinusitis",
		})
		require.NoError(t, err)
		assert.Equal(t, 40, sparse.ConfidenceLevel)
		assert.Less(t, sparse.ConfidenceLevel, full.ConfidenceLevel)
		assert.Empty(t, sparse.CalculatedDose.Adjustments)
		assert.Equal(t, testTime, sparse.CalculatedAt)
	})

	t.Run("Unknown_Drug", func(t *testing.T) {
		_, err := CalculateDosage(ctx, provider, clock, &domain.DosageRequest{DrugID: "unobtainium"})

		assert.ErrorIs(t, err, domain.ErrDrugNotFound)
	})

	t.Run("Drug_Without_Standard_Dose", func(t *testing.T) {
		_, err := CalculateDosage(ctx, provider, clock, &domain.DosageRequest{DrugID: "warfarin"})

		var notFound *domain.DrugNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "warfarin", notFound.DrugID)
	})

	t.Run("Provider_Unavailable_Is_Retryable", func(t *testing.T) {
		failing := newStubReference()
		failing.drugErr = fmt.Errorf("breaker open: %w", domain.ErrProviderUnavailable)

		_, err := CalculateDosage(ctx, failing, clock, &domain.DosageRequest{DrugID: "amoxicillin"})

		assert.True(t, domain.IsRetryable(err))
		assert.NotErrorIs(t, err, domain.ErrDrugNotFound)
	})

	t.Run("Invalid_Request", func(t *testing.T) {
		_, err := CalculateDosage(ctx, provider, clock, &domain.DosageRequest{DrugID: "amoxicillin", Demographics: domain.PatientDemographics{WeightKg: -3}})

		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}
