package external

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	value   interface{}
	missing bool
}

// MemoryCache is the in-process tier: a size-bounded LRU whose entries expire after a fixed TTL
type MemoryCache struct {
	lru *expirable.LRU[string, memoryEntry]
}

// NewMemoryCache creates a memory cache holding at most maxItems entries
func NewMemoryCache(maxItems int, ttl time.Duration) *MemoryCache {
	if maxItems <= 0 {
		maxItems = 1000
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MemoryCache{lru: expirable.NewLRU[string, memoryEntry](maxItems, nil, ttl)}
}

// Get returns the cached value. missing is true when a not-found answer was cached.
func (m *MemoryCache) Get(key string) (value interface{}, missing bool, ok bool) {
	entry, ok := m.lru.Get(key)
	if !ok {
		return nil, false, false
	}
	return entry.value, entry.missing, true
}

// Set stores a value
func (m *MemoryCache) Set(key string, value interface{}) {
	m.lru.Add(key, memoryEntry{value: value})
}

// SetMissing stores a not-found answer
func (m *MemoryCache) SetMissing(key string) {
	m.lru.Add(key, memoryEntry{missing: true})
}

// Remove drops a key
func (m *MemoryCache) Remove(key string) {
	m.lru.Remove(key)
}

// Len returns the number of live entries
func (m *MemoryCache) Len() int {
	return m.lru.Len()
}

// Purge empties the cache
func (m *MemoryCache) Purge() {
	m.lru.Purge()
}
