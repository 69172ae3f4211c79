// Package main provides the lightweight entry point for the medication safety MCP server.
// This version requires no external databases: reference data comes from the embedded
// formulary and feedback is kept in SQLite.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/medication-safety-cds/internal/config"
	"github.com/medication-safety-cds/internal/mcp"
)

func main() {
	// Load lightweight configuration
	cfg := config.LoadLiteConfig()

	// Create lite MCP server
	server, err := mcp.NewLiteServer(cfg)
	if err != nil {
		logrus.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		logrus.Errorf("MCP server failed: %v", err)
	}
}
