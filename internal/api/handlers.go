package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/medication-safety-cds/internal/domain"
	"github.com/medication-safety-cds/internal/feedback"
	"github.com/medication-safety-cds/internal/middleware"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// handleHealth reports overall and per-component health.
func (s *Server) handleHealth(c *gin.Context) {
	components := map[string]bool{}
	if s.deps.Health != nil {
		components = s.deps.Health(c.Request.Context())
	}

	status, code := "healthy", http.StatusOK
	for _, ok := range components {
		if !ok {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(code, gin.H{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC(),
		"version":    Version,
	})
}

// handleCheckInteractions runs a full medication safety check.
func (s *Server) handleCheckInteractions(c *gin.Context) {
	var req domain.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.NewValidationError("body", "malformed JSON: "+err.Error(), nil))
		return
	}

	result, err := s.deps.Engine.CheckInteractions(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleCalculateDosage computes a patient-specific dose.
func (s *Server) handleCalculateDosage(c *gin.Context) {
	var req domain.DosageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.NewValidationError("body", "malformed JSON: "+err.Error(), nil))
		return
	}

	rec, err := s.deps.Engine.CalculateDosage(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// handleRecordFeedback stores a clinician response to an alert.
func (s *Server) handleRecordFeedback(c *gin.Context) {
	if !s.requireFeedback(c) {
		return
	}
	var fb feedback.Feedback
	if err := c.ShouldBindJSON(&fb); err != nil {
		s.writeError(c, domain.NewValidationError("body", "malformed JSON: "+err.Error(), nil))
		return
	}
	fb.ID = 0

	if err := s.deps.Feedback.Save(c.Request.Context(), &fb); err != nil {
		s.writeError(c, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"alert_id":   fb.AlertID,
		"alert_kind": fb.AlertKind,
		"outcome":    fb.Outcome,
	}).Info("Alert feedback recorded")

	c.JSON(http.StatusCreated, fb)
}

// handleListFeedback pages through recorded feedback, newest first.
func (s *Server) handleListFeedback(c *gin.Context) {
	if !s.requireFeedback(c) {
		return
	}
	limit := queryInt(c, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	entries, err := s.deps.Feedback.List(ctx, limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	total, err := s.deps.Feedback.Count(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	outcomes, err := s.deps.Feedback.CountByOutcome(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if entries == nil {
		entries = []*feedback.Feedback{}
	}

	c.JSON(http.StatusOK, gin.H{
		"feedback": entries,
		"total":    total,
		"outcomes": outcomes,
		"limit":    limit,
		"offset":   offset,
	})
}

// handleGetFeedback returns the feedback for one alert and patient.
func (s *Server) handleGetFeedback(c *gin.Context) {
	if !s.requireFeedback(c) {
		return
	}
	fb, err := s.deps.Feedback.Get(c.Request.Context(), c.Param("alert_id"), c.Query("patient_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if fb == nil {
		c.JSON(http.StatusNotFound, domain.NewCDSError("NOT_FOUND", "No feedback recorded for this alert", "",
			c.GetString(middleware.CorrelationIDKey)))
		return
	}
	c.JSON(http.StatusOK, fb)
}

// handleExportFeedback streams every entry in the JSON export format.
func (s *Server) handleExportFeedback(c *gin.Context) {
	if !s.requireFeedback(c) {
		return
	}
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", `attachment; filename="alert-feedback.json"`)
	c.Status(http.StatusOK)
	if err := s.deps.Feedback.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		s.logger.WithError(err).Error("Feedback export failed")
	}
}

func (s *Server) requireFeedback(c *gin.Context) bool {
	if s.deps.Feedback != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, domain.NewCDSError(domain.ErrCodeDatabaseError,
		"Feedback storage is not configured", "", c.GetString(middleware.CorrelationIDKey)))
	return false
}

// writeError maps an error onto the envelope and an HTTP status.
func (s *Server) writeError(c *gin.Context, err error) {
	cdsErr := domain.ToCDSError(err, c.GetString(middleware.CorrelationIDKey))
	status := statusForCode(cdsErr.Code)

	entry := s.logger.WithFields(logrus.Fields{
		"correlation_id": cdsErr.RequestID,
		"code":           cdsErr.Code,
		"path":           c.FullPath(),
	})
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("Request failed")
	} else {
		entry.Debug(cdsErr.Message)
	}

	c.AbortWithStatusJSON(status, cdsErr)
}

func statusForCode(code string) int {
	switch code {
	case domain.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case domain.ErrCodeDrugNotFound:
		return http.StatusNotFound
	case domain.ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case domain.ErrCodeProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
