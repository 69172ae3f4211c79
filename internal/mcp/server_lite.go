package mcp

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/medication-safety-cds/internal/config"
	"github.com/medication-safety-cds/internal/domain"
	"github.com/medication-safety-cds/internal/feedback"
	"github.com/medication-safety-cds/internal/logging"
	"github.com/medication-safety-cds/internal/service"
	"github.com/medication-safety-cds/pkg/external"
	"github.com/medication-safety-cds/pkg/formulary"
)

// LiteServer is a lightweight MCP server that requires no external databases.
// Reference data comes from a formulary file or the embedded seed, cached in memory,
// and feedback is kept in SQLite.
type LiteServer struct {
	*Server
	config        *config.LiteConfig
	knowledgeBase *external.KnowledgeBaseService
	feedbackStore feedback.Store
	ownsStore     bool
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithFeedbackStore sets a custom feedback store. The caller keeps ownership of it.
func WithFeedbackStore(store feedback.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.feedbackStore = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.Server = &Server{logger: logger}
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *config.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{config: cfg}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	logger, err := liteLogger(server, cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	source, err := loadFormulary(cfg.KnowledgeBasePath)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"version":      source.Version(),
		"drugs":        len(source.DrugIDs()),
		"interactions": source.InteractionCount(),
	}).Info("Formulary loaded")

	kb, err := external.NewKnowledgeBaseService(source, cfg.CacheConfig(), domain.BreakerConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create knowledge base service: %w", err)
	}
	server.knowledgeBase = kb

	if server.feedbackStore == nil {
		store, err := feedback.NewSQLiteStore(cfg.FeedbackDBPath())
		if err != nil {
			kb.Close()
			return nil, fmt.Errorf("failed to create feedback store: %w", err)
		}
		server.feedbackStore = store
		server.ownsStore = true
	}

	engine := service.NewSafetyChecker(logger, kb, nil, domain.SystemClock{}, cfg.EngineConfig())

	mcpServer, err := NewServer(domain.MCPConfig{
		ServerName:    defaultServerName + "-lite",
		TransportType: "stdio",
	}, Dependencies{
		Engine:    engine,
		Feedback:  server.feedbackStore,
		ExportDir: cfg.ExportDir(),
	}, logger)
	if err != nil {
		server.Close()
		return nil, err
	}
	server.Server = mcpServer

	logger.Info("Lite server initialized successfully")
	return server, nil
}

// Start starts the lite MCP server on stdio.
func (s *LiteServer) Start(ctx context.Context) error {
	return s.Server.Start(ctx)
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.ownsStore && s.feedbackStore != nil {
		if err := s.feedbackStore.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close feedback store")
		}
	}
	if s.knowledgeBase != nil {
		if err := s.knowledgeBase.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close knowledge base")
		}
	}
	return nil
}

// GetFeedbackStore returns the feedback store for external access.
func (s *LiteServer) GetFeedbackStore() feedback.Store {
	return s.feedbackStore
}

// GetKnowledgeBase returns the cached reference service for external access.
func (s *LiteServer) GetKnowledgeBase() *external.KnowledgeBaseService {
	return s.knowledgeBase
}

func liteLogger(s *LiteServer, cfg *config.LiteConfig) (*logrus.Logger, error) {
	if s.Server != nil && s.Server.logger != nil {
		return s.Server.logger, nil
	}
	logger, err := logging.NewLogger(cfg.LoggingConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	s.Server = &Server{logger: logger}
	return logger, nil
}

func loadFormulary(path string) (*formulary.Formulary, error) {
	if path == "" {
		kb, err := formulary.Default()
		if err != nil {
			return nil, fmt.Errorf("failed to load embedded formulary: %w", err)
		}
		return kb, nil
	}
	kb, err := formulary.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load formulary %s: %w", path, err)
	}
	return kb, nil
}
