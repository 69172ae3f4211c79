package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/medication-safety-cds/internal/app"
	"github.com/medication-safety-cds/internal/config"
	"github.com/medication-safety-cds/internal/logging"
	"github.com/medication-safety-cds/internal/mcp"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}

	// stdout carries the protocol
	cfg := configManager.GetConfig()
	cfg.Logging.Output = "stderr"
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		logrus.Fatalf("Failed to create logger: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	services, err := app.NewServices(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize services")
	}
	defer services.Close()

	mcpServer, err := mcp.NewServer(cfg.MCP, mcp.Dependencies{
		Engine:   services.Engine,
		Feedback: services.Feedback,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create MCP server")
		return
	}

	if err := mcpServer.Start(ctx); err != nil {
		logger.WithError(err).Error("MCP server failed")
		return
	}

	logger.Info("MCP server stopped")
}
