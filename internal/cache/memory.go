package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheEntry represents a cached item with expiration
type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// MemoryCache is an in-memory LRU cache with TTL support
type MemoryCache[K comparable, V any] struct {
	cache *lru.Cache[K, *cacheEntry[V]]
	ttl   time.Duration
	mu    sync.RWMutex

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache[K comparable, V any](size int, ttl time.Duration) (*MemoryCache[K, V], error) {
	cache, err := lru.New[K, *cacheEntry[V]](size)
	if err != nil {
		return nil, err
	}

	mc := &MemoryCache[K, V]{
		cache: cache,
		ttl:   ttl,
		done:  make(chan struct{}),
	}

	// Start background cleanup goroutine
	if ttl > 0 {
		go mc.cleanupLoop()
	}

	return mc, nil
}

// Get retrieves a value from the cache
func (mc *MemoryCache[K, V]) Get(key K) (V, bool) {
	var zero V

	mc.mu.RLock()
	entry, ok := mc.cache.Get(key)
	mc.mu.RUnlock()

	if !ok {
		return zero, false
	}

	// Check if entry has expired
	if mc.ttl > 0 && time.Now().After(entry.expiresAt) {
		mc.mu.Lock()
		mc.cache.Remove(key)
		mc.mu.Unlock()
		return zero, false
	}

	return entry.value, true
}

// Set stores a value in the cache
func (mc *MemoryCache[K, V]) Set(key K, value V) {
	entry := &cacheEntry[V]{
		value:     value,
		expiresAt: time.Now().Add(mc.ttl),
	}

	mc.mu.Lock()
	mc.cache.Add(key, entry)
	mc.mu.Unlock()
}

// Len returns the number of entries, expired ones included until swept
func (mc *MemoryCache[K, V]) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.cache.Len()
}

// Close stops the cleanup goroutine
func (mc *MemoryCache[K, V]) Close() {
	mc.closeOnce.Do(func() {
		close(mc.done)
	})
}

// cleanupLoop periodically removes expired entries
func (mc *MemoryCache[K, V]) cleanupLoop() {
	ticker := time.NewTicker(mc.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-mc.done:
			return
		case <-ticker.C:
			mc.removeExpired()
		}
	}
}

// removeExpired removes all expired entries from the cache
func (mc *MemoryCache[K, V]) removeExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	keys := mc.cache.Keys()

	for _, key := range keys {
		entry, ok := mc.cache.Peek(key)
		if ok && now.After(entry.expiresAt) {
			mc.cache.Remove(key)
		}
	}
}

// NoopCache is a cache that does nothing (used when caching is disabled)
type NoopCache[K comparable, V any] struct{}

// NewNoopCache creates a new no-op cache
func NewNoopCache[K comparable, V any]() *NoopCache[K, V] {
	return &NoopCache[K, V]{}
}

// Get always returns not found
func (nc *NoopCache[K, V]) Get(key K) (V, bool) {
	var zero V
	return zero, false
}

// Set does nothing
func (nc *NoopCache[K, V]) Set(key K, value V) {}

// Close does nothing
func (nc *NoopCache[K, V]) Close() {}
