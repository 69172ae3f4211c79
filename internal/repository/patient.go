package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/medication-safety-cds/internal/domain"
)

// PatientRepository handles patient context persistence.
// It implements domain.PatientDataProvider.
type PatientRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPatientRepository creates a new patient repository
func NewPatientRepository(db *pgxpool.Pool, logger *logrus.Logger) *PatientRepository {
	return &PatientRepository{
		db:  db,
		log: logger,
	}
}

// GetCurrentMedications returns the medications a patient is taking now, oldest first.
func (r *PatientRepository) GetCurrentMedications(ctx context.Context, patientID string) ([]domain.MedicationForCheck, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, drug_id, generic_name, brand_name, dosage, route, start_date
		FROM patient_medication
		WHERE patient_id = $1 AND (end_date IS NULL OR end_date > NOW())
		ORDER BY start_date NULLS LAST, created_at`, patientID)
	if err != nil {
		return nil, fmt.Errorf("querying medications: %w", err)
	}
	defer rows.Close()

	var meds []domain.MedicationForCheck
	for rows.Next() {
		var rowID, drugID string
		var med domain.MedicationForCheck
		var start *time.Time
		if err := rows.Scan(&rowID, &drugID, &med.GenericName, &med.BrandName, &med.Dosage, &med.Route, &start); err != nil {
			return nil, fmt.Errorf("scanning medication: %w", err)
		}
		med.ID = drugID
		med.StartDate = start
		meds = append(meds, med)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating medications: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"patient_id": patientID,
		"count":      len(meds),
	}).Debug("Loaded current medications")

	return meds, nil
}

// GetPatientAllergies returns the recorded allergies of a patient.
func (r *PatientRepository) GetPatientAllergies(ctx context.Context, patientID string) ([]domain.PatientAllergy, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, allergen, allergen_class, reaction_severity
		FROM patient_allergy
		WHERE patient_id = $1
		ORDER BY created_at`, patientID)
	if err != nil {
		return nil, fmt.Errorf("querying allergies: %w", err)
	}

	allergies, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PatientAllergy, error) {
		var a domain.PatientAllergy
		err := row.Scan(&a.ID, &a.Allergen, &a.AllergenClass, &a.ReactionSeverity)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning allergies: %w", err)
	}
	return allergies, nil
}

// GetPatientDemographics returns the stored demographics of a patient.
func (r *PatientRepository) GetPatientDemographics(ctx context.Context, patientID string) (*domain.PatientDemographics, error) {
	var d domain.PatientDemographics
	var hepatic string
	err := r.db.QueryRow(ctx, `
		SELECT age, weight_kg, sex, pregnancy_status, lactation_status, creatinine_clearance, hepatic_function
		FROM patient_demographics
		WHERE patient_id = $1`, patientID).Scan(
		&d.Age, &d.WeightKg, &d.Sex, &d.PregnancyStatus, &d.LactationStatus, &d.CreatinineClearance, &hepatic,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("demographics for patient %s: %w", patientID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("querying demographics: %w", err)
	}
	d.HepaticFunction = domain.HepaticFunction(hepatic)
	return &d, nil
}

// AddMedication records an active medication for a patient and returns the row id.
func (r *PatientRepository) AddMedication(ctx context.Context, patientID string, med domain.MedicationForCheck) (string, error) {
	id := uuid.New().String()
	_, err := r.db.Exec(ctx, `
		INSERT INTO patient_medication (id, patient_id, drug_id, generic_name, brand_name, dosage, route, start_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, patientID, med.ID, med.GenericName, med.BrandName, med.Dosage, med.Route, med.StartDate,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"drug_id":    med.ID,
			"error":      err,
		}).Error("Failed to add medication")
		return "", fmt.Errorf("adding medication: %w", err)
	}
	return id, nil
}

// DiscontinueMedication ends a medication so it is no longer current.
func (r *PatientRepository) DiscontinueMedication(ctx context.Context, rowID string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE patient_medication SET end_date = $2 WHERE id = $1`, rowID, at)
	if err != nil {
		return fmt.Errorf("discontinuing medication: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("medication %s: %w", rowID, domain.ErrNotFound)
	}
	return nil
}

// AddAllergy records an allergy for a patient.
func (r *PatientRepository) AddAllergy(ctx context.Context, patientID string, allergy domain.PatientAllergy) (string, error) {
	id := allergy.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO patient_allergy (id, patient_id, allergen, allergen_class, reaction_severity)
		VALUES ($1, $2, $3, $4, $5)`,
		id, patientID, allergy.Allergen, allergy.AllergenClass, allergy.ReactionSeverity,
	)
	if err != nil {
		return "", fmt.Errorf("adding allergy: %w", err)
	}
	return id, nil
}

// SaveDemographics inserts or replaces the demographics of a patient.
func (r *PatientRepository) SaveDemographics(ctx context.Context, patientID string, d domain.PatientDemographics) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO patient_demographics (
			patient_id, age, weight_kg, sex, pregnancy_status, lactation_status, creatinine_clearance, hepatic_function
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (patient_id) DO UPDATE SET
			age = EXCLUDED.age,
			weight_kg = EXCLUDED.weight_kg,
			sex = EXCLUDED.sex,
			pregnancy_status = EXCLUDED.pregnancy_status,
			lactation_status = EXCLUDED.lactation_status,
			creatinine_clearance = EXCLUDED.creatinine_clearance,
			hepatic_function = EXCLUDED.hepatic_function,
			updated_at = NOW()`,
		patientID, d.Age, d.WeightKg, d.Sex, d.PregnancyStatus, d.LactationStatus, d.CreatinineClearance, string(d.HepaticFunction),
	)
	if err != nil {
		return fmt.Errorf("saving demographics: %w", err)
	}

	r.log.WithField("patient_id", patientID).Info("Patient demographics saved")
	return nil
}
