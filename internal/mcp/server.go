// Package mcp exposes the medication safety engine as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/medication-safety-cds/internal/domain"
	"github.com/medication-safety-cds/internal/feedback"
)

const (
	defaultServerName    = "medication-safety-cds"
	defaultServerVersion = "v1.0.0"
)

// Dependencies are the services behind the MCP tools.
type Dependencies struct {
	Engine    domain.SafetyEngine
	Feedback  feedback.Store // optional; feedback tools report an error without it
	ExportDir string         // target of export_alert_feedback
}

// Server represents the medication safety MCP server
type Server struct {
	config    domain.MCPConfig
	mcpServer *mcp.Server
	engine    domain.SafetyEngine
	feedback  feedback.Store
	exportDir string
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance and registers its tools
func NewServer(cfg domain.MCPConfig, deps Dependencies, logger *logrus.Logger) (*Server, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("safety engine is required")
	}
	if cfg.ServerName == "" {
		cfg.ServerName = defaultServerName
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = defaultServerVersion
	}
	if cfg.TransportType == "" {
		cfg.TransportType = "stdio"
	}

	serverInfo := &mcp.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}

	server := &Server{
		config:    cfg,
		mcpServer: mcp.NewServer(serverInfo, nil),
		engine:    deps.Engine,
		feedback:  deps.Feedback,
		exportDir: deps.ExportDir,
		logger:    logger,
	}

	server.registerTools()

	return server, nil
}

// registerTools registers the safety and feedback tools with the MCP SDK
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "check_interactions",
		Description: "Screen proposed medications against current medications, allergies and patient " +
			"factors. Returns drug interaction, allergy, duplicate therapy, dosage and population alerts " +
			"with an overall risk score and prioritized recommendations.",
	}, s.handleCheckInteractions)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "calculate_dosage",
		Description: "Calculate a patient-specific dose for one drug, applying weight, age, renal and " +
			"hepatic adjustments, with rationale, monitoring and a confidence level.",
	}, s.handleCalculateDosage)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "record_alert_feedback",
		Description: "Record whether a clinician accepted, overrode or dismissed a safety alert.",
	}, s.handleRecordFeedback)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_alert_feedback",
		Description: "List recorded alert feedback, newest first, with totals per outcome.",
	}, s.handleListFeedback)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "export_alert_feedback",
		Description: "Export all alert feedback to a JSON file in the data directory.",
	}, s.handleExportFeedback)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "import_alert_feedback",
		Description: "Import alert feedback from a JSON export. Existing entries are skipped.",
	}, s.handleImportFeedback)

	s.logger.WithField("tool_count", 6).Info("Registered MCP tools")
}

// Start runs the server over stdio until the client disconnects or ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	if s.config.TransportType != "stdio" {
		return fmt.Errorf("unsupported MCP transport %q: only stdio is available", s.config.TransportType)
	}

	s.logger.WithFields(logrus.Fields{
		"name":      s.config.ServerName,
		"version":   s.config.ServerVersion,
		"transport": s.config.TransportType,
	}).Info("Starting MCP server")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// MCPServer exposes the underlying SDK server, mainly for in-memory transports in tests.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
