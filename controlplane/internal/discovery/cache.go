package discovery

import (
	"iter"
	"maps"
	"sync"
)

// Cache is a generic key-value cache.
//
// Writers are expected to be the controller event loop, while readers may be
// inspection handlers, so access is guarded by a lock.
type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	cache map[K]V
}

// NewEmptyCache returns an empty cache.
func NewEmptyCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		cache: map[K]V{},
	}
}

// Store inserts or overwrites the value for the key.
func (m *Cache[K, V]) Store(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache[key] = value
}

// Lookup returns the value for the specified key.
func (m *Cache[K, V]) Lookup(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.cache[key]
	return v, ok
}

// Clear drops every entry.
func (m *Cache[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.cache)
}

// Len returns the number of entries.
func (m *Cache[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.cache)
}

// View returns a read-only snapshot of this cache.
func (m *Cache[K, V]) View() CacheView[K, V] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return CacheView[K, V]{cache: maps.Clone(m.cache)}
}

// CacheView is a read-only snapshot of the cache.
type CacheView[K comparable, V any] struct {
	cache map[K]V
}

// Lookup returns the value for the specified key.
func (m *CacheView[K, V]) Lookup(key K) (V, bool) {
	v, ok := m.cache[key]
	return v, ok
}

// Entries returns entries in the snapshot as an iterator.
func (m *CacheView[K, V]) Entries() (iter.Seq[V], int) {
	return maps.Values(m.cache), len(m.cache)
}
