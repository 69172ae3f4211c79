package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCDSError(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		message   string
		details   string
		requestID string
		retryable bool
	}{
		{
			name:      "Invalid input",
			code:      ErrCodeInvalidInput,
			message:   "Proposed medications are required",
			details:   "proposed_medications",
			requestID: "req-123",
		},
		{
			name:      "Provider unavailable",
			code:      ErrCodeProviderUnavailable,
			message:   "Reference data provider unavailable",
			details:   "circuit breaker is open",
			requestID: "req-456",
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewCDSError(tt.code, tt.message, tt.details, tt.requestID)

			if err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, err.Code)
			}
			if err.Details != tt.details {
				t.Errorf("Expected details %s, got %s", tt.details, err.Details)
			}
			if err.RequestID != tt.requestID {
				t.Errorf("Expected requestID %s, got %s", tt.requestID, err.RequestID)
			}
			if err.Retryable != tt.retryable {
				t.Errorf("Expected retryable %v, got %v", tt.retryable, err.Retryable)
			}
			if time.Since(err.Timestamp) > time.Minute {
				t.Errorf("Timestamp should be recent, got %v", err.Timestamp)
			}

			expectedError := tt.code + ": " + tt.message
			if err.Error() != expectedError {
				t.Errorf("Expected error string %s, got %s", expectedError, err.Error())
			}
		})
	}
}

func TestDrugNotFoundError(t *testing.T) {
	var err error = &DrugNotFoundError{DrugID: "unobtainium", Indication: "pain"}
	wrapped := fmt.Errorf("calculate dosage: %w", err)

	if !errors.Is(wrapped, ErrDrugNotFound) {
		t.Error("Expected wrapped DrugNotFoundError to match ErrDrugNotFound")
	}
	if errors.Is(wrapped, ErrNotFound) {
		t.Error("DrugNotFoundError must stay distinct from a reference-data miss")
	}

	var target *DrugNotFoundError
	if !errors.As(wrapped, &target) || target.DrugID != "unobtainium" {
		t.Errorf("Expected errors.As to recover the drug ID, got %+v", target)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(fmt.Errorf("lookup drug: %w", ErrProviderUnavailable)) {
		t.Error("Expected provider failures to be retryable")
	}
	if IsRetryable(fmt.Errorf("lookup drug: %w", ErrNotFound)) {
		t.Error("Expected misses not to be retryable")
	}
	if !IsNotFound(fmt.Errorf("lookup drug: %w", ErrNotFound)) {
		t.Error("Expected wrapped miss to be reported as not found")
	}
}

func TestToCDSError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"validation", NewValidationError("drug_id", "required", ""), ErrCodeInvalidInput},
		{"invalid input", fmt.Errorf("parse: %w", ErrInvalidInput), ErrCodeInvalidInput},
		{"drug not found", &DrugNotFoundError{DrugID: "x"}, ErrCodeDrugNotFound},
		{"provider", fmt.Errorf("lookup: %w", ErrProviderUnavailable), ErrCodeProviderUnavailable},
		{"other", errors.New("boom"), ErrCodeInternalServer},
		{"passthrough", NewCDSError(ErrCodeRateLimit, "slow down", "", "req"), ErrCodeRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToCDSError(tt.err, "req-1")
			if got.Code != tt.expected {
				t.Errorf("Expected code %s, got %s", tt.expected, got.Code)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("demographics.age", "must not be negative", -1)

	expected := "validation error for field 'demographics.age': must not be negative"
	if err.Error() != expected {
		t.Errorf("Expected error string %s, got %s", expected, err.Error())
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("Expected validation errors to match ErrInvalidInput")
	}
}
