package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medication-safety-cds/internal/domain"
)

const (
	cacheKindDrug        = "drug"
	cacheKindInteraction = "interaction"
	cacheKindClass       = "class"
)

// CacheClient wraps a Redis client with caching for reference lookups
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCacheClient creates a new cache client
func NewCacheClient(config domain.CacheConfig) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newCacheClientWith(client, config.DefaultTTL), nil
}

func newCacheClientWith(client *redis.Client, defaultTTL time.Duration) *CacheClient {
	if defaultTTL == 0 {
		defaultTTL = time.Hour
	}
	return &CacheClient{redis: client, defaultTTL: defaultTTL}
}

// cachedEntry is the stored envelope. Missing records a confirmed not-found answer.
type cachedEntry struct {
	Data      json.RawMessage `json:"data,omitempty"`
	Missing   bool            `json:"missing,omitempty"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// GetDrug retrieves a cached drug record. found is false on a cache miss;
// a cached not-found answer returns domain.ErrNotFound.
func (c *CacheClient) GetDrug(ctx context.Context, drugID string) (*domain.DrugRecord, bool, error) {
	var record domain.DrugRecord
	found, err := c.get(ctx, drugKey(drugID), &record)
	if !found || err != nil {
		return nil, found, err
	}
	return &record, true, nil
}

// SetDrug caches a drug record, or a not-found answer when record is nil
func (c *CacheClient) SetDrug(ctx context.Context, drugID string, record *domain.DrugRecord, ttl time.Duration) error {
	return c.set(ctx, drugKey(drugID), record, record == nil, ttl)
}

// GetInteraction retrieves a cached interaction descriptor for an unordered pair
func (c *CacheClient) GetInteraction(ctx context.Context, drugA, drugB string) (*domain.InteractionDescriptor, bool, error) {
	var descriptor domain.InteractionDescriptor
	found, err := c.get(ctx, interactionKey(drugA, drugB), &descriptor)
	if !found || err != nil {
		return nil, found, err
	}
	return &descriptor, true, nil
}

// SetInteraction caches an interaction descriptor, or a not-found answer when descriptor is nil
func (c *CacheClient) SetInteraction(ctx context.Context, drugA, drugB string, descriptor *domain.InteractionDescriptor, ttl time.Duration) error {
	return c.set(ctx, interactionKey(drugA, drugB), descriptor, descriptor == nil, ttl)
}

// GetTherapeuticClass retrieves a cached therapeutic class
func (c *CacheClient) GetTherapeuticClass(ctx context.Context, drugID string) (string, bool, error) {
	var class string
	found, err := c.get(ctx, classKey(drugID), &class)
	return class, found, err
}

// SetTherapeuticClass caches a therapeutic class, or a not-found answer when class is empty
func (c *CacheClient) SetTherapeuticClass(ctx context.Context, drugID, class string, ttl time.Duration) error {
	return c.set(ctx, classKey(drugID), class, class == "", ttl)
}

// InvalidateDrug removes the cached record and class for a drug
func (c *CacheClient) InvalidateDrug(ctx context.Context, drugID string) error {
	return c.redis.Del(ctx, drugKey(drugID), classKey(drugID)).Err()
}

// InvalidatePattern removes all cached data matching a pattern
func (c *CacheClient) InvalidatePattern(ctx context.Context, pattern string) error {
	keys, err := c.redis.Keys(ctx, pattern).Result()
	if err != nil {
		return fmt.Errorf("failed to get keys for pattern %s: %w", pattern, err)
	}

	if len(keys) == 0 {
		return nil
	}

	return c.redis.Del(ctx, keys...).Err()
}

// GetStats returns cache statistics
func (c *CacheClient) GetStats(ctx context.Context) (map[string]interface{}, error) {
	keyspace, err := c.redis.Info(ctx, "keyspace").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis keyspace: %w", err)
	}

	pool := c.redis.PoolStats()
	return map[string]interface{}{
		"keyspace":    keyspace,
		"pool_hits":   pool.Hits,
		"pool_misses": pool.Misses,
		"total_conns": pool.TotalConns,
		"idle_conns":  pool.IdleConns,
	}, nil
}

// Ping checks if Redis connection is alive
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	return c.redis.Close()
}

func (c *CacheClient) get(ctx context.Context, key string, dst interface{}) (bool, error) {
	val, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}

	var entry cachedEntry
	if err := json.Unmarshal(val, &entry); err != nil {
		// Corrupted entries are dropped and treated as a miss
		c.redis.Del(ctx, key)
		return false, nil
	}
	if time.Now().After(entry.ExpiresAt) {
		c.redis.Del(ctx, key)
		return false, nil
	}
	if entry.Missing {
		return true, domain.ErrNotFound
	}
	if err := json.Unmarshal(entry.Data, dst); err != nil {
		c.redis.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

func (c *CacheClient) set(ctx context.Context, key string, value interface{}, missing bool, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	entry := cachedEntry{Missing: missing, CachedAt: now, ExpiresAt: now.Add(ttl)}
	if !missing {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal cache value: %w", err)
		}
		entry.Data = data
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return c.redis.Set(ctx, key, payload, ttl).Err()
}

func drugKey(drugID string) string {
	return cacheKey(cacheKindDrug, drugID)
}

func classKey(drugID string) string {
	return cacheKey(cacheKindClass, drugID)
}

func interactionKey(drugA, drugB string) string {
	return cacheKey(cacheKindInteraction, drugA, drugB)
}

// cacheKey hashes the lookup tuple. Interaction pairs are sorted so (a,b) and (b,a) share a key.
func cacheKey(kind string, parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = strings.ToLower(strings.TrimSpace(p))
	}
	if kind == cacheKindInteraction {
		sort.Strings(normalized)
	}
	hash := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return fmt.Sprintf("medsafe:%s:%x", kind, hash[:12])
}
