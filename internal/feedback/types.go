// Package feedback stores clinician responses to safety alerts.
// Responses are kept outside the engine and never influence a check.
package feedback

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/medication-safety-cds/internal/domain"
)

// Outcome is what the clinician did with an alert.
type Outcome string

const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeOverridden Outcome = "overridden"
	OutcomeDismissed  Outcome = "dismissed"
)

// ParseOutcome parses an outcome case-insensitively.
func ParseOutcome(v string) (Outcome, error) {
	o := Outcome(strings.ToLower(strings.TrimSpace(v)))
	switch o {
	case OutcomeAccepted, OutcomeOverridden, OutcomeDismissed:
		return o, nil
	default:
		return "", domain.NewValidationError("outcome", "must be accepted, overridden or dismissed", v)
	}
}

// Feedback represents a clinician's response to one alert for one patient.
type Feedback struct {
	ID             int64            `json:"id,omitempty"`
	AlertID        string           `json:"alert_id"`
	AlertKind      domain.AlertKind `json:"alert_kind"`
	Severity       domain.Severity  `json:"severity"`
	PatientID      string           `json:"patient_id"`
	Medications    string           `json:"medications,omitempty"` // display names involved in the alert
	Outcome        Outcome          `json:"outcome"`
	OverrideReason string           `json:"override_reason,omitempty"`
	Clinician      string           `json:"clinician,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Validate checks the fields a store requires.
func (f *Feedback) Validate() error {
	if strings.TrimSpace(f.AlertID) == "" {
		return domain.NewValidationError("alert_id", "is required", f.AlertID)
	}
	outcome, err := ParseOutcome(string(f.Outcome))
	if err != nil {
		return err
	}
	f.Outcome = outcome
	if f.Severity != "" {
		severity, err := domain.ParseSeverity(string(f.Severity))
		if err != nil {
			return err
		}
		f.Severity = severity
	}
	if f.Outcome == OutcomeOverridden && strings.TrimSpace(f.OverrideReason) == "" {
		return domain.NewValidationError("override_reason", "is required when an alert is overridden", nil)
	}
	return nil
}

// Store defines the interface for feedback storage operations.
type Store interface {
	// Save stores or updates feedback. An alert has at most one entry per patient.
	Save(ctx context.Context, feedback *Feedback) error

	// Get retrieves the feedback for an alert and patient, or nil when none exists.
	Get(ctx context.Context, alertID string, patientID string) (*Feedback, error)

	// List returns feedback entries newest first with pagination.
	List(ctx context.Context, limit, offset int) ([]*Feedback, error)

	// Count returns the total number of feedback entries.
	Count(ctx context.Context) (int64, error)

	// CountByOutcome returns entry counts per outcome.
	CountByOutcome(ctx context.Context) (map[Outcome]int64, error)

	// Delete removes a feedback entry by ID.
	Delete(ctx context.Context, id int64) error

	// ExportJSON exports all feedback to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports feedback from a JSON reader.
	// Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// FeedbackExport represents the JSON export format.
type FeedbackExport struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Feedback   []*Feedback `json:"feedback"`
}

const exportVersion = "1.0"

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

func wrapValidation(err error) error {
	return fmt.Errorf("invalid feedback: %w", err)
}
