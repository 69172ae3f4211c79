package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medication-safety-cds/internal/domain"
)

func TestCheckDrugInteractions(t *testing.T) {
	ctx := context.Background()

	t.Run("Evaluates_Every_Unordered_Pair_Once", func(t *testing.T) {
		for n := 0; n <= 6; n++ {
			provider := new(MockReferenceProvider)
			provider.On("LookupInteraction", mock.Anything, mock.Anything, mock.Anything).
				Return(nil, fmt.Errorf("no interaction: %w", domain.ErrNotFound))

			meds := make([]domain.MedicationForCheck, n)
			for i := range meds {
				meds[i] = med(fmt.Sprintf("m%d", i), fmt.Sprintf("drug-%d", i), "")
			}

			alerts, err := CheckDrugInteractions(ctx, provider, meds)
			require.NoError(t, err)
			assert.Empty(t, alerts)
			provider.AssertNumberOfCalls(t, "LookupInteraction", n*(n-1)/2)
		}
	})

	t.Run("Lookup_Is_Symmetric", func(t *testing.T) {
		provider := newStubReference().withInteraction("warfarin", "aspirin", domain.InteractionDescriptor{
			Severity:         domain.SeverityMajor,
			Mechanism:        "Additive antiplatelet and anticoagulant effects",
			ClinicalEffect:   "Increased bleeding risk",
			ManagementAdvice: "Avoid combination unless clearly indicated",
			Onset:            domain.OnsetRapid,
		})

		forward, err := CheckDrugInteractions(ctx, provider, []domain.MedicationForCheck{
			med("1", "Warfarin", "5mg"), med("2", "Aspirin", "81mg"),
		})
		require.NoError(t, err)
		backward, err := CheckDrugInteractions(ctx, provider, []domain.MedicationForCheck{
			med("2", "Aspirin", "81mg"), med("1", "Warfarin", "5mg"),
		})
		require.NoError(t, err)

		require.Len(t, forward, 1)
		require.Len(t, backward, 1)
		assert.Equal(t, forward[0].ID, backward[0].ID)
		assert.Equal(t, forward[0].Severity, backward[0].Severity)
		assert.Equal(t, forward[0].Mechanism, backward[0].Mechanism)
		assert.Equal(t, "Warfarin", forward[0].Drug1)
		assert.Equal(t, "Aspirin", backward[0].Drug1)
	})

	t.Run("Major_And_Critical_Require_Monitoring", func(t *testing.T) {
		provider := newStubReference().
			withInteraction("a", "b", domain.InteractionDescriptor{Severity: domain.SeverityCritical}).
			withInteraction("a", "c", domain.InteractionDescriptor{Severity: domain.SeverityMinor, ManagementAdvice: "No action needed"})

		alerts, err := CheckDrugInteractions(ctx, provider, []domain.MedicationForCheck{
			med("1", "a", ""), med("2", "b", ""), med("3", "c", ""),
		})
		require.NoError(t, err)
		require.Len(t, alerts, 2)

		assert.Equal(t, domain.SeverityCritical, alerts[0].Severity)
		assert.True(t, alerts[0].MonitoringRequired)
		assert.Equal(t, domain.SeverityMinor, alerts[1].Severity)
		assert.False(t, alerts[1].MonitoringRequired)
		assert.Equal(t, []string{"No action needed"}, alerts[1].Recommendations)
	})

	t.Run("Provider_Failure_Aborts_Screen", func(t *testing.T) {
		provider := new(MockReferenceProvider)
		provider.On("LookupInteraction", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("upstream: %w", domain.ErrProviderUnavailable))

		alerts, err := CheckDrugInteractions(ctx, provider, []domain.MedicationForCheck{
			med("1", "a", ""), med("2", "b", ""),
		})
		assert.Nil(t, alerts)
		assert.True(t, domain.IsRetryable(err))
	})

	t.Run("Repeated_Names_Are_Memoized", func(t *testing.T) {
		provider := new(MockReferenceProvider)
		provider.On("LookupInteraction", mock.Anything, "ibuprofen", "lisinopril").
			Return(&domain.InteractionDescriptor{Severity: domain.SeverityModerate}, nil)
		provider.On("LookupInteraction", mock.Anything, "ibuprofen", "ibuprofen").
			Return(nil, domain.ErrNotFound)

		alerts, err := CheckDrugInteractions(ctx, provider, []domain.MedicationForCheck{
			med("1", "Ibuprofen", "400mg"), med("2", "Lisinopril", "10mg"), med("3", "ibuprofen", "200mg"),
		})
		require.NoError(t, err)
		assert.Len(t, alerts, 2)
		provider.AssertNumberOfCalls(t, "LookupInteraction", 2)
	})
}

func TestDeduplicateMedications(t *testing.T) {
	current := []domain.MedicationForCheck{med("1", "warfarin", "5mg"), med("2", "aspirin", "81mg")}
	proposed := []domain.MedicationForCheck{
		med("2", "aspirin", "325mg"),
		med("3", "amoxicillin", "500mg"),
		{GenericName: "Ibuprofen"},
		{GenericName: "ibuprofen"},
	}

	merged := DeduplicateMedications(current, proposed)

	require.Len(t, merged, 4)
	assert.Equal(t, "81mg", merged[1].Dosage, "first occurrence wins")
	assert.Equal(t, "amoxicillin", merged[2].GenericName)
	assert.Equal(t, "Ibuprofen", merged[3].GenericName)
}
