package feedback

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medication-safety-cds/internal/domain"
)

var feedbackRowColumns = []string{
	"id", "alert_id", "alert_kind", "severity", "patient_id", "medications",
	"outcome", "override_reason", "clinician", "notes", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectPing()
	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Save_Mock(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	fb := interactionFeedback("patient-1", OutcomeOverridden)
	fb.OverrideReason = "Cardiology aware"

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO alert_feedback")).
		WithArgs(fb.AlertID, "DRUG_INTERACTION", "MAJOR", "patient-1", "Warfarin, Aspirin",
			"overridden", "Cardiology aware", "dr-okafor", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), created))

	err := store.Save(context.Background(), fb)

	require.NoError(t, err)
	assert.Equal(t, int64(7), fb.ID)
	assert.Equal(t, created, fb.CreatedAt)
	assert.False(t, fb.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save_InvalidSkipsQuery(t *testing.T) {
	store, mock := newMockStore(t)

	err := store.Save(context.Background(), interactionFeedback("patient-1", OutcomeOverridden))

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_Mock(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	t.Run("Found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM alert_feedback WHERE alert_id = $1 AND patient_id = $2")).
			WithArgs("alert-1", "patient-1").
			WillReturnRows(sqlmock.NewRows(feedbackRowColumns).AddRow(
				int64(3), "alert-1", "ALLERGY", "CRITICAL", "patient-1", "Amoxicillin",
				"accepted", "", "dr-lee", "", now, now))

		got, err := store.Get(context.Background(), "alert-1", "patient-1")

		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, domain.AlertKindAllergy, got.AlertKind)
		assert.Equal(t, domain.SeverityCritical, got.Severity)
		assert.Equal(t, OutcomeAccepted, got.Outcome)
	})

	t.Run("Not_Found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM alert_feedback WHERE alert_id = $1")).
			WithArgs("alert-2", "patient-1").
			WillReturnError(sql.ErrNoRows)

		got, err := store.Get(context.Background(), "alert-2", "patient-1")

		require.NoError(t, err)
		assert.Nil(t, got)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountByOutcome_Mock(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT outcome, COUNT(*) FROM alert_feedback GROUP BY outcome")).
		WillReturnRows(sqlmock.NewRows([]string{"outcome", "count"}).
			AddRow("accepted", int64(4)).
			AddRow("overridden", int64(1)))

	counts, err := store.CountByOutcome(context.Background())

	require.NoError(t, err)
	assert.Equal(t, map[Outcome]int64{OutcomeAccepted: 4, OutcomeOverridden: 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete_Mock(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM alert_feedback WHERE id = $1")).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Delete(context.Background(), 9))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExportJSON_Mock(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM alert_feedback ORDER BY created_at DESC")).
		WithArgs(maxExportLimit, 0).
		WillReturnRows(sqlmock.NewRows(feedbackRowColumns).AddRow(
			int64(1), "alert-1", "RENAL", "MAJOR", "patient-9", "Metformin",
			"dismissed", "", "", "", now, now))

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(context.Background(), &buf))

	assert.Contains(t, buf.String(), `"alert_kind": "RENAL"`)
	assert.Contains(t, buf.String(), `"count": 1`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// getTestDB returns a live database connection, skipping when TEST_DATABASE_URL is not set.
func getTestDB(t *testing.T) *sql.DB {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL tests")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS alert_feedback (
			id BIGSERIAL PRIMARY KEY,
			alert_id TEXT NOT NULL,
			alert_kind TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT '',
			patient_id TEXT NOT NULL DEFAULT '',
			medications TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			override_reason TEXT NOT NULL DEFAULT '',
			clinician TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			CONSTRAINT alert_feedback_alert_patient_unique UNIQUE (alert_id, patient_id)
		)
	`)
	require.NoError(t, err)

	_, err = db.Exec("DELETE FROM alert_feedback")
	require.NoError(t, err)

	return db
}

func TestPostgresStore_Live(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	ctx := context.Background()

	fb := interactionFeedback("patient-1", OutcomeAccepted)
	require.NoError(t, store.Save(ctx, fb))
	firstID := fb.ID

	again := interactionFeedback("patient-1", OutcomeDismissed)
	require.NoError(t, store.Save(ctx, again))
	assert.Equal(t, firstID, again.ID, "Upsert should keep the row")

	got, err := store.Get(ctx, fb.AlertID, "patient-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, OutcomeDismissed, got.Outcome)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
