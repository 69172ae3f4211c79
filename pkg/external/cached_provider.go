package external

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medication-safety-cds/internal/domain"
)

// ReferenceCache is the distributed tier of a CachedReferenceProvider. *CacheClient implements it.
type ReferenceCache interface {
	GetDrug(ctx context.Context, drugID string) (*domain.DrugRecord, bool, error)
	SetDrug(ctx context.Context, drugID string, record *domain.DrugRecord, ttl time.Duration) error
	GetInteraction(ctx context.Context, drugA, drugB string) (*domain.InteractionDescriptor, bool, error)
	SetInteraction(ctx context.Context, drugA, drugB string, descriptor *domain.InteractionDescriptor, ttl time.Duration) error
	GetTherapeuticClass(ctx context.Context, drugID string) (string, bool, error)
	SetTherapeuticClass(ctx context.Context, drugID, class string, ttl time.Duration) error
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	MemoryHits    int64     `json:"memory_hits"`
	MemoryMisses  int64     `json:"memory_misses"`
	RedisHits     int64     `json:"redis_hits"`
	RedisMisses   int64     `json:"redis_misses"`
	SourceCalls   int64     `json:"source_calls"`
	TotalRequests int64     `json:"total_requests"`
	ErrorCount    int64     `json:"error_count"`
	LastReset     time.Time `json:"last_reset"`
}

// CachedReferenceProvider serves reference lookups from memory, then redis, then the source.
// Either tier may be nil. Not-found answers are cached too; transient failures never are.
type CachedReferenceProvider struct {
	source domain.ReferenceProvider
	memory *MemoryCache
	redis  ReferenceCache
	ttl    time.Duration
	logger *logrus.Logger

	stats   CacheStats
	statsMu sync.Mutex
}

// NewCachedReferenceProvider creates a tiered cache in front of source
func NewCachedReferenceProvider(source domain.ReferenceProvider, memory *MemoryCache, redis ReferenceCache, ttl time.Duration, logger *logrus.Logger) *CachedReferenceProvider {
	return &CachedReferenceProvider{
		source: source,
		memory: memory,
		redis:  redis,
		ttl:    ttl,
		logger: logger,
		stats:  CacheStats{LastReset: time.Now()},
	}
}

// LookupDrug implements domain.ReferenceProvider
func (p *CachedReferenceProvider) LookupDrug(ctx context.Context, drugID string) (*domain.DrugRecord, error) {
	key := drugKey(drugID)
	value, err := p.lookup(ctx, key,
		func() (interface{}, bool, error) { return p.redis.GetDrug(ctx, drugID) },
		func() (interface{}, error) { return p.source.LookupDrug(ctx, drugID) },
		func(v interface{}) error {
			record, _ := v.(*domain.DrugRecord)
			return p.redis.SetDrug(ctx, drugID, record, p.ttl)
		},
	)
	if err != nil {
		return nil, err
	}
	return value.(*domain.DrugRecord), nil
}

// LookupInteraction implements domain.ReferenceProvider
func (p *CachedReferenceProvider) LookupInteraction(ctx context.Context, drugA, drugB string) (*domain.InteractionDescriptor, error) {
	key := interactionKey(drugA, drugB)
	value, err := p.lookup(ctx, key,
		func() (interface{}, bool, error) { return p.redis.GetInteraction(ctx, drugA, drugB) },
		func() (interface{}, error) { return p.source.LookupInteraction(ctx, drugA, drugB) },
		func(v interface{}) error {
			descriptor, _ := v.(*domain.InteractionDescriptor)
			return p.redis.SetInteraction(ctx, drugA, drugB, descriptor, p.ttl)
		},
	)
	if err != nil {
		return nil, err
	}
	return value.(*domain.InteractionDescriptor), nil
}

// LookupTherapeuticClass implements domain.ReferenceProvider
func (p *CachedReferenceProvider) LookupTherapeuticClass(ctx context.Context, drugID string) (string, error) {
	key := classKey(drugID)
	value, err := p.lookup(ctx, key,
		func() (interface{}, bool, error) { return p.redis.GetTherapeuticClass(ctx, drugID) },
		func() (interface{}, error) { return p.source.LookupTherapeuticClass(ctx, drugID) },
		func(v interface{}) error {
			class, _ := v.(string)
			return p.redis.SetTherapeuticClass(ctx, drugID, class, p.ttl)
		},
	)
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// GetCacheStats returns a snapshot of cache statistics
func (p *CachedReferenceProvider) GetCacheStats() CacheStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *CachedReferenceProvider) lookup(
	ctx context.Context,
	key string,
	fromRedis func() (interface{}, bool, error),
	fromSource func() (interface{}, error),
	toRedis func(interface{}) error,
) (interface{}, error) {
	p.count(func(s *CacheStats) { s.TotalRequests++ })

	if p.memory != nil {
		if value, missing, ok := p.memory.Get(key); ok {
			p.count(func(s *CacheStats) { s.MemoryHits++ })
			if missing {
				return nil, domain.ErrNotFound
			}
			return value, nil
		}
		p.count(func(s *CacheStats) { s.MemoryMisses++ })
	}

	if p.redis != nil {
		value, found, err := fromRedis()
		switch {
		case found && domain.IsNotFound(err):
			p.count(func(s *CacheStats) { s.RedisHits++ })
			p.remember(key, nil, true)
			return nil, domain.ErrNotFound
		case found && err == nil:
			p.count(func(s *CacheStats) { s.RedisHits++ })
			p.remember(key, value, false)
			return value, nil
		case err != nil:
			p.logger.WithError(err).WithField("cache_key", key).Warn("Redis cache read failed")
		}
		p.count(func(s *CacheStats) { s.RedisMisses++ })
	}

	p.count(func(s *CacheStats) { s.SourceCalls++ })
	value, err := fromSource()
	missing := domain.IsNotFound(err)
	if err != nil && !missing {
		p.count(func(s *CacheStats) { s.ErrorCount++ })
		return nil, err
	}

	p.remember(key, value, missing)
	if p.redis != nil {
		var stored interface{}
		if !missing {
			stored = value
		}
		if cacheErr := toRedis(stored); cacheErr != nil {
			p.logger.WithError(cacheErr).WithField("cache_key", key).Warn("Failed to cache reference data")
		}
	}

	if missing {
		return nil, err
	}
	return value, nil
}

func (p *CachedReferenceProvider) remember(key string, value interface{}, missing bool) {
	if p.memory == nil {
		return
	}
	if missing {
		p.memory.SetMissing(key)
		return
	}
	p.memory.Set(key, value)
}

func (p *CachedReferenceProvider) count(update func(*CacheStats)) {
	p.statsMu.Lock()
	update(&p.stats)
	p.statsMu.Unlock()
}
