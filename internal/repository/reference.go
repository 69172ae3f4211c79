package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/medication-safety-cds/internal/domain"
	"github.com/medication-safety-cds/pkg/formulary"
)

// ReferenceRepository serves drug reference data from PostgreSQL.
// It implements domain.ReferenceProvider.
type ReferenceRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewReferenceRepository creates a new reference repository
func NewReferenceRepository(db *pgxpool.Pool, logger *logrus.Logger) *ReferenceRepository {
	return &ReferenceRepository{
		db:  db,
		log: logger,
	}
}

const selectDrugSQL = `
	SELECT id, generic_name, therapeutic_class, dosage_min, dosage_max, dosage_unit,
		   renally_cleared, hepatically_metabolized, factor_adjustments, alternatives
	FROM drug
	WHERE id = $1 OR LOWER(generic_name) = LOWER($1)
	ORDER BY (id = $1) DESC
	LIMIT 1`

// LookupDrug resolves a drug by id or generic name, including its contraindications,
// allergen cross-classes and standard doses.
func (r *ReferenceRepository) LookupDrug(ctx context.Context, drugID string) (*domain.DrugRecord, error) {
	key := strings.TrimSpace(drugID)

	var record domain.DrugRecord
	err := r.db.QueryRow(ctx, selectDrugSQL, key).Scan(
		&record.ID,
		&record.GenericName,
		&record.TherapeuticClass,
		&record.StandardDosageRange.Min,
		&record.StandardDosageRange.Max,
		&record.StandardDosageRange.Unit,
		&record.RenallyCleared,
		&record.HepaticallyMetabolized,
		&record.FactorAdjustments,
		&record.Alternatives,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("drug %q: %w", drugID, domain.ErrNotFound)
		}
		return nil, r.unavailable("looking up drug", err)
	}

	if err := r.loadContraindications(ctx, &record); err != nil {
		return nil, err
	}
	if err := r.loadCrossClasses(ctx, &record); err != nil {
		return nil, err
	}
	if err := r.loadDoses(ctx, &record); err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"drug_id":      record.ID,
		"generic_name": record.GenericName,
	}).Debug("Drug resolved from database")

	return &record, nil
}

func (r *ReferenceRepository) loadContraindications(ctx context.Context, record *domain.DrugRecord) error {
	rows, err := r.db.Query(ctx,
		`SELECT population, severity FROM drug_contraindication WHERE drug_id = $1`, record.ID)
	if err != nil {
		return r.unavailable("loading contraindications", err)
	}
	defer rows.Close()

	for rows.Next() {
		var population, severity string
		if err := rows.Scan(&population, &severity); err != nil {
			return fmt.Errorf("scanning contraindication: %w", err)
		}
		if record.Contraindications == nil {
			record.Contraindications = make(map[domain.Population]domain.Severity)
		}
		record.Contraindications[domain.Population(population)] = domain.Severity(severity)
	}
	return rows.Err()
}

func (r *ReferenceRepository) loadCrossClasses(ctx context.Context, record *domain.DrugRecord) error {
	rows, err := r.db.Query(ctx,
		`SELECT allergen_class FROM drug_cross_class WHERE drug_id = $1 ORDER BY allergen_class`, record.ID)
	if err != nil {
		return r.unavailable("loading cross classes", err)
	}
	classes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("scanning cross classes: %w", err)
	}
	record.AllergenCrossClasses = classes
	return nil
}

func (r *ReferenceRepository) loadDoses(ctx context.Context, record *domain.DrugRecord) error {
	rows, err := r.db.Query(ctx, `
		SELECT indication, amount, unit, frequency, route, max_daily_dose, mg_per_kg
		FROM drug_dose WHERE drug_id = $1`, record.ID)
	if err != nil {
		return r.unavailable("loading doses", err)
	}
	defer rows.Close()

	for rows.Next() {
		var indication string
		var dose domain.StandardDose
		if err := rows.Scan(&indication, &dose.Amount, &dose.Unit, &dose.Frequency,
			&dose.Route, &dose.MaxDailyDose, &dose.MgPerKg); err != nil {
			return fmt.Errorf("scanning dose: %w", err)
		}
		if indication == "" {
			d := dose
			record.DefaultDose = &d
			continue
		}
		if record.IndicationDoses == nil {
			record.IndicationDoses = make(map[string]domain.StandardDose)
		}
		record.IndicationDoses[indication] = dose
	}
	return rows.Err()
}

// LookupInteraction returns the descriptor for an unordered pair of drugs.
func (r *ReferenceRepository) LookupInteraction(ctx context.Context, drugA, drugB string) (*domain.InteractionDescriptor, error) {
	nameA, err := r.canonicalName(ctx, drugA)
	if err != nil {
		return nil, err
	}
	nameB, err := r.canonicalName(ctx, drugB)
	if err != nil {
		return nil, err
	}
	first, second := orderedPair(nameA, nameB)

	var d domain.InteractionDescriptor
	var severity, onset string
	err = r.db.QueryRow(ctx, `
		SELECT severity, mechanism, clinical_effect, management, onset, evidence_level, alternatives
		FROM drug_interaction
		WHERE medication_a_name = $1 AND medication_b_name = $2`, first, second).Scan(
		&severity, &d.Mechanism, &d.ClinicalEffect, &d.ManagementAdvice, &onset, &d.EvidenceLevel, &d.Alternatives,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("interaction %q/%q: %w", drugA, drugB, domain.ErrNotFound)
		}
		return nil, r.unavailable("looking up interaction", err)
	}

	d.Severity = domain.Severity(severity)
	d.Onset = domain.Onset(onset)
	return &d, nil
}

// LookupTherapeuticClass returns the therapeutic class of a drug.
func (r *ReferenceRepository) LookupTherapeuticClass(ctx context.Context, drugID string) (string, error) {
	var class string
	err := r.db.QueryRow(ctx, `
		SELECT therapeutic_class FROM drug
		WHERE id = $1 OR LOWER(generic_name) = LOWER($1)
		ORDER BY (id = $1) DESC
		LIMIT 1`, strings.TrimSpace(drugID)).Scan(&class)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("class of %q: %w", drugID, domain.ErrNotFound)
		}
		return "", r.unavailable("looking up therapeutic class", err)
	}
	if class == "" {
		return "", fmt.Errorf("class of %q: %w", drugID, domain.ErrNotFound)
	}
	return class, nil
}

// canonicalName maps an id or name to the lowercase generic name used as the interaction key.
// Unknown drugs keep their own name.
func (r *ReferenceRepository) canonicalName(ctx context.Context, drug string) (string, error) {
	key := strings.TrimSpace(drug)
	var name string
	err := r.db.QueryRow(ctx, `
		SELECT LOWER(generic_name) FROM drug
		WHERE id = $1 OR LOWER(generic_name) = LOWER($1)
		ORDER BY (id = $1) DESC
		LIMIT 1`, key).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return strings.ToLower(key), nil
	}
	if err != nil {
		return "", r.unavailable("resolving drug name", err)
	}
	return name, nil
}

// ImportDocument upserts every drug and interaction of a formulary document in one transaction.
func (r *ReferenceRepository) ImportDocument(ctx context.Context, doc formulary.Document) (drugs int, interactions int, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	names := make(map[string]string, len(doc.Drugs)*2)
	for i := range doc.Drugs {
		record := doc.Drugs[i]
		if record.GenericName == "" {
			record.GenericName = record.ID
		}
		if err := importDrug(ctx, tx, &record); err != nil {
			return 0, 0, err
		}
		canonical := strings.ToLower(record.GenericName)
		names[strings.ToLower(record.ID)] = canonical
		names[canonical] = canonical
		drugs++
	}

	resolve := func(name string) string {
		key := strings.ToLower(strings.TrimSpace(name))
		if n, ok := names[key]; ok {
			return n
		}
		return key
	}

	for _, record := range doc.Drugs {
		for partner, descriptor := range record.InteractionPartners {
			a, b := resolve(record.ID), resolve(partner)
			severity, err := domain.ParseSeverity(string(descriptor.Severity))
			if err != nil {
				return 0, 0, fmt.Errorf("interaction %s/%s: %w", record.ID, partner, err)
			}
			descriptor.Severity = severity
			if err := importInteraction(ctx, tx, a, b, descriptor); err != nil {
				return 0, 0, err
			}
			interactions++
		}
	}

	for _, entry := range doc.Interactions {
		severity, err := domain.ParseSeverity(string(entry.Severity))
		if err != nil {
			return 0, 0, fmt.Errorf("interaction %s/%s: %w", entry.DrugA, entry.DrugB, err)
		}
		descriptor := entry.InteractionDescriptor
		descriptor.Severity = severity
		if err := importInteraction(ctx, tx, resolve(entry.DrugA), resolve(entry.DrugB), descriptor); err != nil {
			return 0, 0, err
		}
		interactions++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("committing import: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"version":      doc.Version,
		"drugs":        drugs,
		"interactions": interactions,
	}).Info("Formulary imported")

	return drugs, interactions, nil
}

func importDrug(ctx context.Context, tx pgx.Tx, record *domain.DrugRecord) error {
	factors := record.FactorAdjustments
	if factors == nil {
		factors = map[string]float64{}
	}
	alternatives := record.Alternatives
	if alternatives == nil {
		alternatives = []string{}
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO drug (
			id, generic_name, therapeutic_class, dosage_min, dosage_max, dosage_unit,
			renally_cleared, hepatically_metabolized, factor_adjustments, alternatives
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			generic_name = EXCLUDED.generic_name,
			therapeutic_class = EXCLUDED.therapeutic_class,
			dosage_min = EXCLUDED.dosage_min,
			dosage_max = EXCLUDED.dosage_max,
			dosage_unit = EXCLUDED.dosage_unit,
			renally_cleared = EXCLUDED.renally_cleared,
			hepatically_metabolized = EXCLUDED.hepatically_metabolized,
			factor_adjustments = EXCLUDED.factor_adjustments,
			alternatives = EXCLUDED.alternatives,
			updated_at = NOW()`,
		record.ID, record.GenericName, record.TherapeuticClass,
		record.StandardDosageRange.Min, record.StandardDosageRange.Max, record.StandardDosageRange.Unit,
		record.RenallyCleared, record.HepaticallyMetabolized, factors, alternatives,
	)
	if err != nil {
		return fmt.Errorf("upserting drug %s: %w", record.ID, err)
	}

	for _, table := range []string{"drug_contraindication", "drug_cross_class", "drug_dose"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE drug_id = $1", record.ID); err != nil {
			return fmt.Errorf("clearing %s for %s: %w", table, record.ID, err)
		}
	}

	batch := &pgx.Batch{}
	for population, severity := range record.Contraindications {
		batch.Queue(`INSERT INTO drug_contraindication (drug_id, population, severity) VALUES ($1, $2, $3)`,
			record.ID, string(population), string(severity))
	}
	for _, class := range record.AllergenCrossClasses {
		batch.Queue(`INSERT INTO drug_cross_class (drug_id, allergen_class) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			record.ID, class)
	}
	queueDose := func(indication string, dose domain.StandardDose) {
		batch.Queue(`
			INSERT INTO drug_dose (drug_id, indication, amount, unit, frequency, route, max_daily_dose, mg_per_kg)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			record.ID, indication, dose.Amount, dose.Unit, dose.Frequency, dose.Route, dose.MaxDailyDose, dose.MgPerKg)
	}
	if record.DefaultDose != nil {
		queueDose("", *record.DefaultDose)
	}
	for indication, dose := range record.IndicationDoses {
		queueDose(strings.ToLower(indication), dose)
	}

	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting details for %s: %w", record.ID, err)
	}
	return nil
}

func importInteraction(ctx context.Context, tx pgx.Tx, a, b string, d domain.InteractionDescriptor) error {
	first, second := orderedPair(a, b)
	alternatives := d.Alternatives
	if alternatives == nil {
		alternatives = []string{}
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO drug_interaction (
			medication_a_name, medication_b_name, severity, mechanism, clinical_effect,
			management, onset, evidence_level, alternatives
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (medication_a_name, medication_b_name) DO UPDATE SET
			severity = EXCLUDED.severity,
			mechanism = EXCLUDED.mechanism,
			clinical_effect = EXCLUDED.clinical_effect,
			management = EXCLUDED.management,
			onset = EXCLUDED.onset,
			evidence_level = EXCLUDED.evidence_level,
			alternatives = EXCLUDED.alternatives`,
		first, second, string(d.Severity), d.Mechanism, d.ClinicalEffect,
		d.ManagementAdvice, string(d.Onset), d.EvidenceLevel, alternatives,
	)
	if err != nil {
		return fmt.Errorf("upserting interaction %s/%s: %w", a, b, err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (r *ReferenceRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *ReferenceRepository) unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	r.log.WithFields(logrus.Fields{
		"operation": op,
		"error":     err,
	}).Error("Reference database query failed")
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrProviderUnavailable)
}

func orderedPair(a, b string) (string, string) {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a > b {
		return b, a
	}
	return a, b
}
