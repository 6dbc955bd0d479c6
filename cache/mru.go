// Package cache provides the in-process caches of cascade: a generic MRU
// cache and the positive blob-existence LRU layered over blob stores.
package cache

import (
	"sync"
	"time"
)

type entry[TK comparable, TV any] struct {
	value     TV
	expiresAt time.Time
	dllNode   *node[TK]
}

// MRU is a bounded, TTL-aware, mutex-guarded most-recently-used cache.
// Entries past their TTL are never returned, even before eviction.
type MRU[TK comparable, TV any] struct {
	locker      sync.Mutex
	maxCapacity int
	ttl         time.Duration
	lookup      map[TK]*entry[TK, TV]
	dll         *doublyLinkedList[TK]
}

// NewMRU creates an MRU bounded to maxCapacity entries. ttl of 0 means no
// time-based expiry.
func NewMRU[TK comparable, TV any](maxCapacity int, ttl time.Duration) *MRU[TK, TV] {
	return &MRU[TK, TV]{
		maxCapacity: maxCapacity,
		ttl:         ttl,
		lookup:      make(map[TK]*entry[TK, TV], maxCapacity),
		dll:         newDoublyLinkedList[TK](),
	}
}

// Set inserts or refreshes the key, evicting from the tail when full.
func (m *MRU[TK, TV]) Set(key TK, value TV) {
	m.locker.Lock()
	defer m.locker.Unlock()
	if e, ok := m.lookup[key]; ok {
		m.dll.delete(e.dllNode)
	}
	m.evict()
	e := &entry[TK, TV]{value: value, dllNode: m.dll.addToHead(key)}
	if m.ttl > 0 {
		e.expiresAt = time.Now().Add(m.ttl)
	}
	m.lookup[key] = e
}

// Get returns the cached value and refreshes its recency.
func (m *MRU[TK, TV]) Get(key TK) (TV, bool) {
	m.locker.Lock()
	defer m.locker.Unlock()
	var zero TV
	e, ok := m.lookup[key]
	if !ok {
		return zero, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		m.dll.delete(e.dllNode)
		delete(m.lookup, key)
		return zero, false
	}
	m.dll.delete(e.dllNode)
	e.dllNode = m.dll.addToHead(key)
	return e.value, true
}

// Delete removes the key if present.
func (m *MRU[TK, TV]) Delete(key TK) {
	m.locker.Lock()
	defer m.locker.Unlock()
	if e, ok := m.lookup[key]; ok {
		m.dll.delete(e.dllNode)
		delete(m.lookup, key)
	}
}

// Count returns the number of cached entries.
func (m *MRU[TK, TV]) Count() int {
	m.locker.Lock()
	defer m.locker.Unlock()
	return m.dll.count()
}

// evict removes entries from the tail while the cache is at capacity.
// Caller holds the lock.
func (m *MRU[TK, TV]) evict() {
	for m.dll.count() >= m.maxCapacity {
		id, ok := m.dll.deleteFromTail()
		if !ok {
			break
		}
		if e, found := m.lookup[id]; found {
			e.dllNode = nil
			delete(m.lookup, id)
		}
	}
}
