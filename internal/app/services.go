// Package app assembles the database-backed services shared by the HTTP and MCP servers.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/medication-safety-cds/internal/database"
	"github.com/medication-safety-cds/internal/domain"
	"github.com/medication-safety-cds/internal/feedback"
	"github.com/medication-safety-cds/internal/repository"
	"github.com/medication-safety-cds/internal/service"
	"github.com/medication-safety-cds/pkg/external"
)

// Services holds the wired service graph. Close releases everything it opened.
type Services struct {
	DB            *database.DB
	KnowledgeBase *external.KnowledgeBaseService
	Patients      *repository.PatientRepository
	Reference     *repository.ReferenceRepository
	Engine        *service.SafetyChecker
	Feedback      *feedback.PostgresStore
	logger        *logrus.Logger
}

// Options tune NewServices.
type Options struct {
	// SkipMigrations leaves the schema untouched at startup.
	SkipMigrations bool
}

// NewServices connects to PostgreSQL, applies migrations and builds the safety engine.
// Reference data comes from the remote knowledge base when one is configured and from
// the database otherwise.
func NewServices(ctx context.Context, cfg *domain.Config, logger *logrus.Logger, opts Options) (*Services, error) {
	dbCfg := database.ConfigFromDomain(cfg.Database)

	if !opts.SkipMigrations {
		if err := Migrate(ctx, dbCfg.URL(), cfg.Database.MigrationsPath, logger); err != nil {
			return nil, err
		}
	}

	db, err := database.NewConnection(ctx, dbCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := &Services{DB: db, logger: logger}

	s.Reference = repository.NewReferenceRepository(db.Pool, logger)
	var source domain.ReferenceProvider = s.Reference
	if cfg.ReferenceAPI.BaseURL != "" {
		source = external.NewDrugReferenceClient(cfg.ReferenceAPI)
		logger.WithField("base_url", cfg.ReferenceAPI.BaseURL).Info("Using remote drug knowledge base")
	}

	s.KnowledgeBase, err = external.NewKnowledgeBaseService(source, cfg.Cache, cfg.Breaker, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create knowledge base service: %w", err)
	}

	s.Patients = repository.NewPatientRepository(db.Pool, logger)
	s.Engine = service.NewSafetyChecker(logger, s.KnowledgeBase, s.Patients, domain.SystemClock{}, cfg.Engine)

	s.Feedback, err = feedback.NewPostgresStoreFromURL(dbCfg.URL())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create feedback store: %w", err)
	}

	return s, nil
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, databaseURL, migrationsPath string, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(databaseURL, migrationsPath, logger)
	if err != nil {
		return fmt.Errorf("failed to create migration runner: %w", err)
	}
	defer runner.Close()

	if err := runner.Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Health reports the database, cache, breakers and reference source.
func (s *Services) Health(ctx context.Context) map[string]bool {
	health := s.KnowledgeBase.HealthCheck(ctx)
	health["database"] = s.DB.Health(ctx) == nil
	return health
}

// Close releases the feedback store, caches and the connection pool.
func (s *Services) Close() {
	if s.Feedback != nil {
		if err := s.Feedback.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close feedback store")
		}
	}
	if s.KnowledgeBase != nil {
		if err := s.KnowledgeBase.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close knowledge base")
		}
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
