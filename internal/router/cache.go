package router

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// CacheStrategy selects the fingerprint cache's eviction policy, carried
// over from the teacher's EnterpriseCache multi-strategy knob
// (internal/cache/cache.go CacheStrategy) narrowed to the strategies this
// fabric actually exercises.
type CacheStrategy int

const (
	CacheStrategyLRU CacheStrategy = iota
	CacheStrategyLFU
	CacheStrategyFIFO
)

type cacheEntry struct {
	key         string
	value       Response
	expiresAt   time.Time
	accessCount int64
	element     *list.Element
}

// Cache is a generic fingerprint -> Response store with TTL and a
// configurable eviction strategy, generalized from the teacher's
// block-specific EnterpriseCache (internal/cache/cache.go) into a plain
// Get/Set/Delete/Len K/V store (spec section 4.C "fingerprint cache").
type Cache struct {
	mu         sync.Mutex
	strategy   CacheStrategy
	maxEntries int
	entries    map[string]*cacheEntry
	order      *list.List // front = most-recently-used / most-recently-inserted

	hits   int64
	misses int64
}

// NewCache constructs an empty Cache bounded to maxEntries, evicting under
// strategy once full.
func NewCache(maxEntries int, strategy CacheStrategy) *Cache {
	return &Cache{
		strategy:   strategy,
		maxEntries: maxEntries,
		entries:    make(map[string]*cacheEntry),
		order:      list.New(),
	}
}

// Get returns the cached Response for key if present and unexpired.
func (c *Cache) Get(key string) (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return Response{}, false
	}
	if time.Now().After(entry.expiresAt) {
		c.removeLocked(entry)
		atomic.AddInt64(&c.misses, 1)
		return Response{}, false
	}

	atomic.AddInt64(&c.hits, 1)
	entry.accessCount++
	if c.strategy == CacheStrategyLRU {
		c.order.MoveToFront(entry.element)
	}
	resp := entry.value
	resp.Cached = true
	return resp, true
}

// Set stores value under key with the given TTL, evicting the lowest-
// priority entry under the configured strategy if the cache is full.
func (c *Cache) Set(key string, value Response, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.removeLocked(existing)
	}

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}

	entry := &cacheEntry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	entry.element = c.order.PushFront(entry)
	c.entries[key] = entry
}

// Delete removes key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		c.removeLocked(entry)
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// HitRate returns hits / (hits + misses), or 0 if the cache has never been
// queried.
func (c *Cache) HitRate() float64 {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func (c *Cache) removeLocked(entry *cacheEntry) {
	c.order.Remove(entry.element)
	delete(c.entries, entry.key)
}

// evictLocked removes one entry under the configured strategy: LRU evicts
// the list tail (least recently used), FIFO evicts the list tail (oldest
// inserted, since neither strategy reorders on Set), LFU evicts the
// lowest access count.
func (c *Cache) evictLocked() {
	switch c.strategy {
	case CacheStrategyLFU:
		var victim *cacheEntry
		for _, entry := range c.entries {
			if victim == nil || entry.accessCount < victim.accessCount {
				victim = entry
			}
		}
		if victim != nil {
			c.removeLocked(victim)
		}
	default: // LRU, FIFO
		back := c.order.Back()
		if back != nil {
			c.removeLocked(back.Value.(*cacheEntry))
		}
	}
}
