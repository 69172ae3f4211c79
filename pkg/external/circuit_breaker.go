package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/medication-safety-cds/internal/domain"
)

const (
	breakerDrug        = "drug"
	breakerInteraction = "interaction"
	breakerClass       = "therapeutic_class"
)

// ResilientReferenceProvider wraps a reference provider with one circuit breaker per lookup family
type ResilientReferenceProvider struct {
	source domain.ReferenceProvider
	logger *logrus.Logger

	drugBreaker        *gobreaker.CircuitBreaker
	interactionBreaker *gobreaker.CircuitBreaker
	classBreaker       *gobreaker.CircuitBreaker
}

// NewResilientReferenceProvider creates a breaker-guarded reference provider
func NewResilientReferenceProvider(source domain.ReferenceProvider, config domain.BreakerConfig, logger *logrus.Logger) *ResilientReferenceProvider {
	if config.MaxRequests == 0 {
		config.MaxRequests = 3
	}
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}

	return &ResilientReferenceProvider{
		source:             source,
		logger:             logger,
		drugBreaker:        newBreaker(breakerDrug, config, logger),
		interactionBreaker: newBreaker(breakerInteraction, config, logger),
		classBreaker:       newBreaker(breakerClass, config, logger),
	}
}

func newBreaker(name string, config domain.BreakerConfig, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		// A missing drug or pair is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || domain.IsNotFound(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}

// LookupDrug fetches a drug record through the drug breaker
func (r *ResilientReferenceProvider) LookupDrug(ctx context.Context, drugID string) (*domain.DrugRecord, error) {
	result, err := r.drugBreaker.Execute(func() (interface{}, error) {
		return r.source.LookupDrug(ctx, drugID)
	})
	if err != nil {
		return nil, breakerError(breakerDrug, err)
	}
	return result.(*domain.DrugRecord), nil
}

// LookupInteraction fetches an interaction descriptor through the interaction breaker
func (r *ResilientReferenceProvider) LookupInteraction(ctx context.Context, drugA, drugB string) (*domain.InteractionDescriptor, error) {
	result, err := r.interactionBreaker.Execute(func() (interface{}, error) {
		return r.source.LookupInteraction(ctx, drugA, drugB)
	})
	if err != nil {
		return nil, breakerError(breakerInteraction, err)
	}
	return result.(*domain.InteractionDescriptor), nil
}

// LookupTherapeuticClass fetches a therapeutic class through the class breaker
func (r *ResilientReferenceProvider) LookupTherapeuticClass(ctx context.Context, drugID string) (string, error) {
	result, err := r.classBreaker.Execute(func() (interface{}, error) {
		return r.source.LookupTherapeuticClass(ctx, drugID)
	})
	if err != nil {
		return "", breakerError(breakerClass, err)
	}
	return result.(string), nil
}

// GetCircuitBreakerStats returns statistics for all circuit breakers
func (r *ResilientReferenceProvider) GetCircuitBreakerStats() map[string]gobreaker.Counts {
	return map[string]gobreaker.Counts{
		breakerDrug:        r.drugBreaker.Counts(),
		breakerInteraction: r.interactionBreaker.Counts(),
		breakerClass:       r.classBreaker.Counts(),
	}
}

// GetCircuitBreakerStates returns the current state of all circuit breakers
func (r *ResilientReferenceProvider) GetCircuitBreakerStates() map[string]gobreaker.State {
	return map[string]gobreaker.State{
		breakerDrug:        r.drugBreaker.State(),
		breakerInteraction: r.interactionBreaker.State(),
		breakerClass:       r.classBreaker.State(),
	}
}

// breakerError maps breaker rejections onto the provider-unavailable taxonomy.
// Not-found and unavailable errors from the source pass through unchanged.
func breakerError(name string, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%s lookups suspended (%v): %w", name, err, domain.ErrProviderUnavailable)
	case domain.IsNotFound(err), domain.IsRetryable(err), errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%s lookup failed: %v: %w", name, err, domain.ErrProviderUnavailable)
	}
}
