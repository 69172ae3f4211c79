package external

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/medication-safety-cds/internal/domain"
)

// KnowledgeBaseService implements domain.ReferenceProvider on top of a reference source.
// Lookups go memory cache -> redis cache -> circuit breaker -> source.
type KnowledgeBaseService struct {
	source    domain.ReferenceProvider
	resilient *ResilientReferenceProvider
	cached    *CachedReferenceProvider
	memory    *MemoryCache
	redis     *CacheClient
	logger    *logrus.Logger
}

// NewKnowledgeBaseService creates a new knowledge base service.
// Redis is used only when the cache is enabled and a URL is configured.
func NewKnowledgeBaseService(
	source domain.ReferenceProvider,
	cacheConfig domain.CacheConfig,
	breakerConfig domain.BreakerConfig,
	logger *logrus.Logger,
) (*KnowledgeBaseService, error) {
	var redisClient *CacheClient
	if cacheConfig.Enabled && cacheConfig.RedisURL != "" {
		client, err := NewCacheClient(cacheConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache client: %w", err)
		}
		redisClient = client
	}
	return newKnowledgeBaseService(source, redisClient, cacheConfig, breakerConfig, logger), nil
}

func newKnowledgeBaseService(
	source domain.ReferenceProvider,
	redisClient *CacheClient,
	cacheConfig domain.CacheConfig,
	breakerConfig domain.BreakerConfig,
	logger *logrus.Logger,
) *KnowledgeBaseService {
	resilient := NewResilientReferenceProvider(source, breakerConfig, logger)
	memory := NewMemoryCache(cacheConfig.MemoryMaxItems, cacheConfig.MemoryTTL)

	// A nil *CacheClient must not become a non-nil interface value.
	var tier ReferenceCache
	if redisClient != nil {
		tier = redisClient
	}

	return &KnowledgeBaseService{
		source:    source,
		resilient: resilient,
		cached:    NewCachedReferenceProvider(resilient, memory, tier, cacheConfig.DefaultTTL, logger),
		memory:    memory,
		redis:     redisClient,
		logger:    logger,
	}
}

// LookupDrug implements domain.ReferenceProvider
func (k *KnowledgeBaseService) LookupDrug(ctx context.Context, drugID string) (*domain.DrugRecord, error) {
	return k.cached.LookupDrug(ctx, drugID)
}

// LookupInteraction implements domain.ReferenceProvider
func (k *KnowledgeBaseService) LookupInteraction(ctx context.Context, drugA, drugB string) (*domain.InteractionDescriptor, error) {
	return k.cached.LookupInteraction(ctx, drugA, drugB)
}

// LookupTherapeuticClass implements domain.ReferenceProvider
func (k *KnowledgeBaseService) LookupTherapeuticClass(ctx context.Context, drugID string) (string, error) {
	return k.cached.LookupTherapeuticClass(ctx, drugID)
}

// GetStats returns statistics about breakers and cache tiers
func (k *KnowledgeBaseService) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{
		"circuit_breaker_stats":  k.resilient.GetCircuitBreakerStats(),
		"circuit_breaker_states": breakerStateNames(k.resilient.GetCircuitBreakerStates()),
		"cache_stats":            k.cached.GetCacheStats(),
		"memory_cache_items":     k.memory.Len(),
	}

	if k.redis != nil {
		redisStats, err := k.redis.GetStats(ctx)
		if err != nil {
			k.logger.WithError(err).Warn("Failed to collect Redis statistics")
		} else {
			stats["redis_stats"] = redisStats
		}
	}

	return stats, nil
}

// HealthCheck reports per-component health. A lookup family is healthy while its breaker is closed.
func (k *KnowledgeBaseService) HealthCheck(ctx context.Context) map[string]bool {
	health := make(map[string]bool)

	for name, state := range k.resilient.GetCircuitBreakerStates() {
		health[name] = state == gobreaker.StateClosed
	}

	if k.redis != nil {
		health["cache"] = k.redis.Ping(ctx) == nil
	}

	if pinger, ok := k.source.(interface{ Ping(context.Context) error }); ok {
		health["source"] = pinger.Ping(ctx) == nil
	}

	return health
}

// InvalidateDrug drops cached data for a drug from both tiers
func (k *KnowledgeBaseService) InvalidateDrug(ctx context.Context, drugID string) error {
	k.memory.Remove(drugKey(drugID))
	k.memory.Remove(classKey(drugID))
	if k.redis == nil {
		return nil
	}
	return k.redis.InvalidateDrug(ctx, drugID)
}

// Close closes the service and all underlying connections
func (k *KnowledgeBaseService) Close() error {
	k.memory.Purge()
	if k.redis == nil {
		return nil
	}
	return k.redis.Close()
}

func breakerStateNames(states map[string]gobreaker.State) map[string]string {
	names := make(map[string]string, len(states))
	for name, state := range states {
		names[name] = state.String()
	}
	return names
}
