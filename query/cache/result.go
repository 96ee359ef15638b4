package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/satishbabariya/querykit/query/domain"
)

// ResultCache caches query results keyed by a structural hash of the
// statement and its arguments.
type ResultCache struct {
	lru *LRU[*domain.Result]
}

// NewResultCache creates a result cache.
func NewResultCache(size int, defaultTTL time.Duration) *ResultCache {
	return &ResultCache{lru: NewLRU[*domain.Result](size, defaultTTL)}
}

// Get returns a cached result.
func (r *ResultCache) Get(key string) (*domain.Result, bool) {
	return r.lru.Get(key)
}

// Set stores a result.
func (r *ResultCache) Set(key string, result *domain.Result, ttl time.Duration) {
	r.lru.Set(key, result, ttl)
}

// Invalidate drops every cached result of a definition.
func (r *ResultCache) Invalidate(name string) int {
	return r.lru.InvalidatePrefix(name + ":")
}

// Clear drops every cached result.
func (r *ResultCache) Clear() {
	r.lru.Clear()
}

// Stats returns cache statistics.
func (r *ResultCache) Stats() Stats {
	return r.lru.Stats()
}

// Key generates a cache key from the definition name, the SQL statements,
// the bind values and a caller partition such as a security cache key.
func Key(name, sql, countSQL string, binds map[string]any, partition string) string {
	hasher := sha256.New()
	hasher.Write([]byte(sql))
	hasher.Write([]byte{0})
	hasher.Write([]byte(countSQL))
	hasher.Write([]byte{0})

	names := make([]string, 0, len(binds))
	for n := range binds {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(hasher, "%s=%T:%v;", n, binds[n], binds[n])
	}
	hasher.Write([]byte{0})
	hasher.Write([]byte(partition))

	return name + ":" + hex.EncodeToString(hasher.Sum(nil))[:32]
}
