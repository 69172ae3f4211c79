package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy of the engine.
var (
	// ErrNotFound marks a reference-data miss. It is never fatal: the aspect produces no alert.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput marks malformed input; the affected check or adjustment is skipped.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDrugNotFound is matched by *DrugNotFoundError.
	ErrDrugNotFound = errors.New("drug not found")
	// ErrProviderUnavailable marks a transient failure of the reference source. Callers may retry.
	ErrProviderUnavailable = errors.New("reference provider unavailable")
)

// DrugNotFoundError is returned by dosage calculation when no base dose can be resolved.
type DrugNotFoundError struct {
	DrugID     string
	Indication string
}

func (e *DrugNotFoundError) Error() string {
	if e.Indication != "" {
		return fmt.Sprintf("drug not found: no standard dose for %q (indication %q)", e.DrugID, e.Indication)
	}
	return fmt.Sprintf("drug not found: no standard dose for %q", e.DrugID)
}

// Is lets errors.Is(err, ErrDrugNotFound) match.
func (e *DrugNotFoundError) Is(target error) bool {
	return target == ErrDrugNotFound
}

// IsNotFound reports whether err is a reference-data miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// CDSError is the error envelope returned to API and tool callers.
type CDSError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *CDSError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeDrugNotFound        = "DRUG_NOT_FOUND"
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	ErrCodeDatabaseError       = "DATABASE_ERROR"
	ErrCodeRateLimit           = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalServer      = "INTERNAL_SERVER_ERROR"
)

// NewCDSError creates a new CDSError with timestamp
func NewCDSError(code, message, details, requestID string) *CDSError {
	return &CDSError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: code == ErrCodeProviderUnavailable || code == ErrCodeRateLimit,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ToCDSError maps an engine error onto the error envelope.
func ToCDSError(err error, requestID string) *CDSError {
	var cdsErr *CDSError
	if errors.As(err, &cdsErr) {
		return cdsErr
	}

	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		return NewCDSError(ErrCodeInvalidInput, validationErr.Error(), validationErr.Field, requestID)
	case errors.Is(err, ErrDrugNotFound):
		return NewCDSError(ErrCodeDrugNotFound, "Drug not found", err.Error(), requestID)
	case errors.Is(err, ErrProviderUnavailable):
		return NewCDSError(ErrCodeProviderUnavailable, "Reference data provider unavailable", err.Error(), requestID)
	case errors.Is(err, ErrInvalidInput):
		return NewCDSError(ErrCodeInvalidInput, "Invalid input", err.Error(), requestID)
	default:
		return NewCDSError(ErrCodeInternalServer, "Internal error", err.Error(), requestID)
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Unwrap ties validation failures to ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
