// Package cache provides the LRU caches used during execution: column index
// lookups keyed by result-set shape, and optional query results.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Stats represents cache statistics
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Size      int     `json:"size"`
	MaxSize   int     `json:"maxSize"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hitRate"`
}

// LRU is a size bounded cache with optional per-entry TTL. It is safe for
// concurrent use; a Set on an existing key overwrites it.
type LRU[V any] struct {
	mu         sync.Mutex
	data       map[string]*node[V]
	maxSize    int
	defaultTTL time.Duration
	head       *node[V]
	tail       *node[V]
	stats      Stats
	now        func() time.Time
}

// node represents a node in the doubly-linked list for LRU
type node[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	prev      *node[V]
	next      *node[V]
}

// NewLRU creates a new LRU cache. A maxSize below one is treated as one.
func NewLRU[V any](maxSize int, defaultTTL time.Duration) *LRU[V] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRU[V]{
		data:       make(map[string]*node[V]),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		stats:      Stats{MaxSize: maxSize},
		now:        time.Now,
	}
}

// Get retrieves a value from the cache
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	n, ok := c.data[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}

	// Check if expired
	if !n.expiresAt.IsZero() && c.now().After(n.expiresAt) {
		c.remove(n)
		c.stats.Misses++
		return zero, false
	}

	c.moveToFront(n)
	c.stats.Hits++
	return n.value, true
}

// Set stores a value. A zero ttl uses the default TTL; a negative ttl never
// expires.
func (c *LRU[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl == 0 {
		ttl = c.defaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	if n, exists := c.data[key]; exists {
		n.value = value
		n.expiresAt = expiresAt
		c.moveToFront(n)
		return
	}

	if len(c.data) >= c.maxSize && c.tail != nil {
		c.remove(c.tail)
		c.stats.Evictions++
	}

	n := &node[V]{key: key, value: value, expiresAt: expiresAt}
	c.addToFront(n)
	c.data[key] = n
}

// Invalidate removes a specific key from the cache
func (c *LRU[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.data[key]; ok {
		c.remove(n)
	}
}

// InvalidatePrefix removes every key starting with prefix.
func (c *LRU[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var doomed []*node[V]
	for key, n := range c.data {
		if strings.HasPrefix(key, prefix) {
			doomed = append(doomed, n)
		}
	}
	for _, n := range doomed {
		c.remove(n)
	}
	return len(doomed)
}

// Clear removes all entries and resets the statistics.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]*node[V])
	c.head = nil
	c.tail = nil
	c.stats = Stats{MaxSize: c.maxSize}
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Stats returns cache statistics
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = len(c.data)
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

// addToFront adds a node to the front of the list
func (c *LRU[V]) addToFront(n *node[V]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

// moveToFront moves a node to the front of the list
func (c *LRU[V]) moveToFront(n *node[V]) {
	if n == c.head {
		return
	}
	c.unlink(n)
	c.addToFront(n)
}

// remove unlinks a node and deletes its key
func (c *LRU[V]) remove(n *node[V]) {
	c.unlink(n)
	delete(c.data, n.key)
}

func (c *LRU[V]) unlink(n *node[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
}
