package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/medication-safety-cds/internal/domain"
	"github.com/medication-safety-cds/internal/feedback"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// handleCheckInteractions handles the check_interactions tool invocation
func (s *Server) handleCheckInteractions(ctx context.Context, req *mcp.CallToolRequest, params CheckInteractionsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":       "check_interactions",
		"patient_id": params.PatientID,
		"proposed":   len(params.ProposedMedications),
	}).Info("Tool invoked")

	result, err := s.engine.CheckInteractions(ctx, params.toRequest())
	if err != nil {
		return s.createErrorResult("Interaction check failed", err), nil, nil
	}

	summary := fmt.Sprintf("%d alert(s), highest severity %s, risk score %d",
		result.AlertCount(), severityLabel(result.HighestSeverity()), result.OverallRiskScore)
	return s.createJSONResult(summary, result), result, nil
}

// handleCalculateDosage handles the calculate_dosage tool invocation
func (s *Server) handleCalculateDosage(ctx context.Context, req *mcp.CallToolRequest, params CalculateDosageParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":    "calculate_dosage",
		"drug_id": params.DrugID,
	}).Info("Tool invoked")

	rec, err := s.engine.CalculateDosage(ctx, params.toRequest())
	if err != nil {
		return s.createErrorResult("Dosage calculation failed", err), nil, nil
	}

	summary := fmt.Sprintf("%s: %g %s %s (confidence %d)",
		rec.MedicationID, rec.CalculatedDose.Amount, rec.CalculatedDose.Unit, rec.CalculatedDose.Frequency, rec.ConfidenceLevel)
	return s.createJSONResult(summary, rec), rec, nil
}

// handleRecordFeedback handles the record_alert_feedback tool invocation
func (s *Server) handleRecordFeedback(ctx context.Context, req *mcp.CallToolRequest, params RecordFeedbackParams) (*mcp.CallToolResult, any, error) {
	if s.feedback == nil {
		return s.createErrorResult("Feedback storage is not configured", nil), nil, nil
	}

	fb := params.toFeedback()
	if err := s.feedback.Save(ctx, fb); err != nil {
		return s.createErrorResult("Failed to record feedback", err), nil, nil
	}

	s.logger.WithFields(logrus.Fields{
		"tool":     "record_alert_feedback",
		"alert_id": fb.AlertID,
		"outcome":  fb.Outcome,
	}).Info("Alert feedback recorded")

	return s.createJSONResult(fmt.Sprintf("Recorded %s for alert %s", fb.Outcome, fb.AlertID), fb), fb, nil
}

// handleListFeedback handles the list_alert_feedback tool invocation
func (s *Server) handleListFeedback(ctx context.Context, req *mcp.CallToolRequest, params ListFeedbackParams) (*mcp.CallToolResult, any, error) {
	if s.feedback == nil {
		return s.createErrorResult("Feedback storage is not configured", nil), nil, nil
	}

	limit := params.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	entries, err := s.feedback.List(ctx, limit, offset)
	if err != nil {
		return s.createErrorResult("Failed to list feedback", err), nil, nil
	}
	total, err := s.feedback.Count(ctx)
	if err != nil {
		return s.createErrorResult("Failed to count feedback", err), nil, nil
	}
	outcomes, err := s.feedback.CountByOutcome(ctx)
	if err != nil {
		return s.createErrorResult("Failed to count feedback", err), nil, nil
	}
	if entries == nil {
		entries = []*feedback.Feedback{}
	}

	result := ListFeedbackResult{Feedback: entries, Total: total, Outcomes: outcomes, Limit: limit, Offset: offset}
	return s.createJSONResult(fmt.Sprintf("%d of %d feedback entries", len(entries), total), result), result, nil
}

// handleExportFeedback writes every feedback entry to a timestamped file in the export directory
func (s *Server) handleExportFeedback(ctx context.Context, req *mcp.CallToolRequest, params ExportFeedbackParams) (*mcp.CallToolResult, any, error) {
	if s.feedback == nil {
		return s.createErrorResult("Feedback storage is not configured", nil), nil, nil
	}
	if s.exportDir == "" {
		return s.createErrorResult("Export directory is not configured", nil), nil, nil
	}
	if err := os.MkdirAll(s.exportDir, 0755); err != nil {
		return s.createErrorResult("Failed to create export directory", err), nil, nil
	}

	filePath := filepath.Join(s.exportDir, fmt.Sprintf("alert_feedback_%s.json", time.Now().Format("20060102_150405")))
	file, err := os.Create(filePath)
	if err != nil {
		return s.createErrorResult("Failed to create export file", err), nil, nil
	}
	defer file.Close()

	if err := s.feedback.ExportJSON(ctx, file); err != nil {
		return s.createErrorResult("Failed to export feedback", err), nil, nil
	}
	count, _ := s.feedback.Count(ctx)

	result := ExportFeedbackResult{FilePath: filePath, Count: count}
	return s.createJSONResult(fmt.Sprintf("Exported %d feedback entries to %s", count, filePath), result), result, nil
}

// handleImportFeedback loads a JSON export, skipping entries that already exist
func (s *Server) handleImportFeedback(ctx context.Context, req *mcp.CallToolRequest, params ImportFeedbackParams) (*mcp.CallToolResult, any, error) {
	if s.feedback == nil {
		return s.createErrorResult("Feedback storage is not configured", nil), nil, nil
	}
	if params.FilePath == "" {
		return s.createErrorResult("Missing required parameter",
			domain.NewValidationError("file_path", "is required", nil)), nil, nil
	}

	file, err := os.Open(params.FilePath)
	if err != nil {
		return s.createErrorResult("Failed to open file",
			domain.NewValidationError("file_path", err.Error(), params.FilePath)), nil, nil
	}
	defer file.Close()

	imported, skipped, err := s.feedback.ImportJSON(ctx, file)
	if err != nil {
		return s.createErrorResult("Failed to import feedback", err), nil, nil
	}

	result := ImportFeedbackResult{Imported: imported, Skipped: skipped}
	return s.createJSONResult(fmt.Sprintf("Imported %d entries, skipped %d duplicates", imported, skipped), result), result, nil
}

// createJSONResult pairs a one-line summary with the indented JSON payload
func (s *Server) createJSONResult(summary string, payload any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return s.createErrorResult("Failed to encode result", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summary},
			&mcp.TextContent{Text: string(data)},
		},
	}
}

// createErrorResult reports a tool failure as a CDS error envelope. Errors stay in the
// result so the client model can read them.
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	var cdsErr *domain.CDSError
	if err != nil {
		cdsErr = domain.ToCDSError(err, "")
	} else {
		cdsErr = domain.NewCDSError(domain.ErrCodeInternalServer, message, "", "")
	}

	entry := s.logger.WithFields(logrus.Fields{"code": cdsErr.Code, "message": message})
	if cdsErr.Code == domain.ErrCodeInternalServer || cdsErr.Code == domain.ErrCodeDatabaseError {
		entry.WithError(err).Error("Tool failed")
	} else {
		entry.Debug("Tool rejected input")
	}

	data, _ := json.Marshal(cdsErr)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%s: %s", message, cdsErr.Message)},
			&mcp.TextContent{Text: string(data)},
		},
		IsError: true,
	}
}

func severityLabel(s domain.Severity) string {
	if s == "" {
		return "NONE"
	}
	return string(s)
}
