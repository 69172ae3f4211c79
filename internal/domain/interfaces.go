package domain

import (
	"context"
	"time"
)

// ReferenceProvider gives read-only access to drug reference data.
// Implementations return an error wrapping ErrNotFound on a miss and
// ErrProviderUnavailable on transient failures.
type ReferenceProvider interface {
	// LookupDrug resolves a drug by identifier or generic name.
	LookupDrug(ctx context.Context, drugID string) (*DrugRecord, error)
	// LookupInteraction is symmetric: (a, b) and (b, a) yield the same descriptor.
	LookupInteraction(ctx context.Context, drugA, drugB string) (*InteractionDescriptor, error)
	LookupTherapeuticClass(ctx context.Context, drugID string) (string, error)
}

// PatientDataProvider supplies patient context missing from a check request.
type PatientDataProvider interface {
	GetCurrentMedications(ctx context.Context, patientID string) ([]MedicationForCheck, error)
	GetPatientAllergies(ctx context.Context, patientID string) ([]PatientAllergy, error)
	GetPatientDemographics(ctx context.Context, patientID string) (*PatientDemographics, error)
}

// SafetyEngine is the public surface of the medication-safety engine.
type SafetyEngine interface {
	CheckInteractions(ctx context.Context, req *CheckRequest) (*InteractionCheckResult, error)
	CalculateDosage(ctx context.Context, req *DosageRequest) (*DosageRecommendation, error)
}

// Clock supplies the timestamps recorded on results.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return time.Time(c)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetReferenceAPIConfig() *ReferenceAPIConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
