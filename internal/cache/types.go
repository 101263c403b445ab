package cache

// Cache is a generic key/value cache
type Cache[K comparable, V any] interface {
	// Get retrieves a cached value by key
	// Returns the value and true if found and not expired, the zero value and false otherwise
	Get(key K) (V, bool)

	// Set stores a value in the cache with the given key
	Set(key K, value V)

	// Close releases any resources held by the cache
	Close()
}
