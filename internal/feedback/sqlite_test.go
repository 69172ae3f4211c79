package feedback

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medication-safety-cds/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func interactionFeedback(patientID string, outcome Outcome) *Feedback {
	return &Feedback{
		AlertID:     domain.NewAlertID(domain.AlertKindDrugInteraction, "warfarin", "aspirin"),
		AlertKind:   domain.AlertKindDrugInteraction,
		Severity:    domain.SeverityMajor,
		PatientID:   patientID,
		Medications: "Warfarin, Aspirin",
		Outcome:     outcome,
		Clinician:   "dr-okafor",
	}
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "feedback.db")

	store, err := NewSQLiteStore(dbPath)

	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_Save(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	fb := interactionFeedback("patient-1", OutcomeAccepted)

	err := store.Save(ctx, fb)

	require.NoError(t, err)
	assert.NotZero(t, fb.ID, "ID should be assigned")
	assert.False(t, fb.CreatedAt.IsZero(), "CreatedAt should be set")
	assert.False(t, fb.UpdatedAt.IsZero(), "UpdatedAt should be set")
}

func TestSQLiteStore_Save_Validation(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	t.Run("Missing_Alert_ID", func(t *testing.T) {
		fb := interactionFeedback("patient-1", OutcomeAccepted)
		fb.AlertID = ""
		err := store.Save(ctx, fb)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("Unknown_Outcome", func(t *testing.T) {
		err := store.Save(ctx, interactionFeedback("patient-1", Outcome("ignored")))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("Override_Requires_Reason", func(t *testing.T) {
		err := store.Save(ctx, interactionFeedback("patient-1", OutcomeOverridden))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("Outcome_Normalized", func(t *testing.T) {
		fb := interactionFeedback("patient-2", Outcome(" Dismissed "))
		require.NoError(t, store.Save(ctx, fb))
		assert.Equal(t, OutcomeDismissed, fb.Outcome)
	})

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteStore_Save_Update(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	fb := interactionFeedback("patient-1", OutcomeAccepted)
	require.NoError(t, store.Save(ctx, fb))
	originalID := fb.ID
	originalCreated := fb.CreatedAt

	time.Sleep(10 * time.Millisecond)

	updated := interactionFeedback("patient-1", OutcomeOverridden)
	updated.OverrideReason = "INR monitored twice weekly"
	require.NoError(t, store.Save(ctx, updated))

	assert.Equal(t, originalID, updated.ID, "Same alert and patient should update in place")
	assert.True(t, updated.UpdatedAt.After(originalCreated))

	got, err := store.Get(ctx, fb.AlertID, "patient-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, OutcomeOverridden, got.Outcome)
	assert.Equal(t, "INR monitored twice weekly", got.OverrideReason)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteStore_Get(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	fb := interactionFeedback("patient-1", OutcomeAccepted)
	fb.Notes = "Switched to acetaminophen"
	require.NoError(t, store.Save(ctx, fb))

	t.Run("Existing_Entry", func(t *testing.T) {
		got, err := store.Get(ctx, fb.AlertID, "patient-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, fb.ID, got.ID)
		assert.Equal(t, domain.AlertKindDrugInteraction, got.AlertKind)
		assert.Equal(t, domain.SeverityMajor, got.Severity)
		assert.Equal(t, "Warfarin, Aspirin", got.Medications)
		assert.Equal(t, "dr-okafor", got.Clinician)
		assert.Equal(t, "Switched to acetaminophen", got.Notes)
	})

	t.Run("Other_Patient", func(t *testing.T) {
		got, err := store.Get(ctx, fb.AlertID, "patient-2")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Unknown_Alert", func(t *testing.T) {
		got, err := store.Get(ctx, "missing", "patient-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestSQLiteStore_List(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for _, patient := range []string{"p1", "p2", "p3"} {
		require.NoError(t, store.Save(ctx, interactionFeedback(patient, OutcomeAccepted)))
		time.Sleep(5 * time.Millisecond)
	}

	all, err := store.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "p3", all[0].PatientID, "Newest entry first")

	page, err := store.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "p1", page[0].PatientID)
}

func TestSQLiteStore_CountByOutcome(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	overridden := interactionFeedback("p2", OutcomeOverridden)
	overridden.OverrideReason = "Short course only"
	require.NoError(t, store.Save(ctx, interactionFeedback("p1", OutcomeAccepted)))
	require.NoError(t, store.Save(ctx, overridden))
	require.NoError(t, store.Save(ctx, interactionFeedback("p3", OutcomeAccepted)))

	counts, err := store.CountByOutcome(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[OutcomeAccepted])
	assert.Equal(t, int64(1), counts[OutcomeOverridden])
	assert.Zero(t, counts[OutcomeDismissed])
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	fb := interactionFeedback("patient-1", OutcomeDismissed)
	require.NoError(t, store.Save(ctx, fb))

	require.NoError(t, store.Delete(ctx, fb.ID))

	got, err := store.Get(ctx, fb.AlertID, "patient-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_ExportImport(t *testing.T) {
	source := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, source.Save(ctx, interactionFeedback("p1", OutcomeAccepted)))
	require.NoError(t, source.Save(ctx, interactionFeedback("p2", OutcomeDismissed)))

	var buf bytes.Buffer
	require.NoError(t, source.ExportJSON(ctx, &buf))
	assert.Contains(t, buf.String(), `"version": "1.0"`)
	assert.Contains(t, buf.String(), `"count": 2`)

	target := createTestStore(t)
	require.NoError(t, target.Save(ctx, interactionFeedback("p1", OutcomeAccepted)))

	imported, skipped, err := target.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))

	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, skipped, "Existing alert and patient pair should be skipped")

	count, err := target.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteStore_ImportJSON_Invalid(t *testing.T) {
	store := createTestStore(t)

	_, _, err := store.ImportJSON(context.Background(), bytes.NewReader([]byte("{not json")))

	assert.Error(t, err)
}

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		input    string
		expected Outcome
		wantErr  bool
	}{
		{"accepted", OutcomeAccepted, false},
		{"OVERRIDDEN", OutcomeOverridden, false},
		{" dismissed", OutcomeDismissed, false},
		{"snoozed", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseOutcome(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
