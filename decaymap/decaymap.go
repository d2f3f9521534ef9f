// Package decaymap is a generic map with per-entry expiry. Expired entries
// act like they were never inserted and are evicted lazily on access or in
// bulk via Cleanup.
package decaymap

import (
	"sync"
	"time"
)

// Zilch returns the zero value of any type.
func Zilch[T any]() T { return *new(T) }

type entry[V any] struct {
	value  V
	expiry time.Time
}

type Impl[K comparable, V any] struct {
	data map[K]entry[V]
	lock sync.RWMutex

	// Now is the clock used for expiry decisions, swappable in tests.
	Now func() time.Time
}

func New[K comparable, V any]() *Impl[K, V] {
	return &Impl[K, V]{
		data: map[K]entry[V]{},
		Now:  time.Now,
	}
}

// Get returns the value for key if it exists and has not expired. An expired
// entry is deleted on the way out.
func (m *Impl[K, V]) Get(key K) (V, bool) {
	m.lock.RLock()
	e, ok := m.data[key]
	m.lock.RUnlock()

	if !ok {
		return Zilch[V](), false
	}

	if m.Now().After(e.expiry) {
		m.lock.Lock()
		// Re-check in case another goroutine raced the delete.
		if e2, ok := m.data[key]; ok && m.Now().After(e2.expiry) {
			delete(m.data, key)
		}
		m.lock.Unlock()
		return Zilch[V](), false
	}

	return e.value, true
}

// Set inserts or replaces a value with the given time to live.
func (m *Impl[K, V]) Set(key K, value V, ttl time.Duration) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.data[key] = entry[V]{
		value:  value,
		expiry: m.Now().Add(ttl),
	}
}

// Delete removes a key. It reports whether the key existed.
func (m *Impl[K, V]) Delete(key K) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	_, ok := m.data[key]
	if ok {
		delete(m.data, key)
	}
	return ok
}

// Cleanup evicts every expired entry in one pass. Callers decide when to
// amortize this; the map never spawns its own goroutine.
func (m *Impl[K, V]) Cleanup() {
	now := m.Now()

	m.lock.Lock()
	defer m.lock.Unlock()

	for key, e := range m.data {
		if now.After(e.expiry) {
			delete(m.data, key)
		}
	}
}

// Len reports the number of entries, including any not yet swept.
func (m *Impl[K, V]) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.data)
}
