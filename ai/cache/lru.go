// Package cache provides a small generic LRU cache with per-entry TTL.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a bounded least-recently-used cache with TTL support.
// The read path is write-locked because hits reorder the recency list.
type LRU[K comparable, V any] struct {
	entries    map[K]*entry[K, V]
	order      *list.List
	capacity   int
	defaultTTL time.Duration
	mu         sync.Mutex
}

type entry[K comparable, V any] struct {
	expiresAt time.Time
	element   *list.Element
	key       K
	value     V
}

// New creates an LRU cache. Non-positive capacity defaults to 1000,
// non-positive ttl to 5 minutes.
func New[K comparable, V any](capacity int, defaultTTL time.Duration) *LRU[K, V] {
	if capacity <= 0 {
		capacity = 1000
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}

	return &LRU[K, V]{
		capacity:   capacity,
		defaultTTL: defaultTTL,
		entries:    make(map[K]*entry[K, V]),
		order:      list.New(),
	}
}

// Get retrieves a value, refreshing its recency. Expired entries miss.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		c.removeEntry(e)
		var zero V
		return zero, false
	}

	c.order.MoveToFront(e.element)
	return e.value, true
}

// Set stores a value. A non-positive ttl uses the cache default.
func (c *LRU[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = time.Now().Add(ttl)
		c.order.MoveToFront(e.element)
		return
	}

	for len(c.entries) >= c.capacity {
		c.evictOldest()
	}

	e := &entry[K, V]{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	e.element = c.order.PushFront(e)
	c.entries[key] = e
}

// Remove drops one entry. Reports whether it was present.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.removeEntry(e)
		return true
	}
	return false
}

// RemoveFunc drops every entry whose key matches the predicate and
// returns the number removed. Used to invalidate all parameters of one
// chat without tracking per-chat key lists.
func (c *LRU[K, V]) RemoveFunc(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var doomed []*entry[K, V]
	for key, e := range c.entries {
		if match(key) {
			doomed = append(doomed, e)
		}
	}
	for _, e := range doomed {
		c.removeEntry(e)
	}
	return len(doomed)
}

// Purge removes all entries.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*entry[K, V])
	c.order.Init()
}

// Len returns the number of live entries, counting expired ones not yet
// collected.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cap returns the maximum capacity.
func (c *LRU[K, V]) Cap() int {
	return c.capacity
}

// evictOldest removes the least recently used entry. Lock must be held.
func (c *LRU[K, V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	if e, ok := oldest.Value.(*entry[K, V]); ok {
		c.removeEntry(e)
	}
}

// removeEntry unlinks an entry. Lock must be held.
func (c *LRU[K, V]) removeEntry(e *entry[K, V]) {
	c.order.Remove(e.element)
	delete(c.entries, e.key)
}
