// Package cache provides the bounded in-memory recency cache of
// temperature readings.
//
// The cache is a sliding window over the most recently recorded readings,
// not a per-sensor map: entries are never deduplicated, and eviction order
// follows recording recency, not reading timestamps. Reads never alter
// recency order; only Record does. When the cache is full, recording a new
// reading evicts the least recently recorded one in the same operation.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/meteolog/internal/reading"
)

// Cache is a thread-safe recency cache.
// It uses a simple mutex-based approach for correctness.
type Cache struct {
	mu       sync.RWMutex
	order    *list.List // front = most recently recorded
	capacity int

	// Statistics
	recordCount atomic.Int64
	evictCount  atomic.Int64
}

// New creates a Cache with the given capacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		order:    list.New(),
		capacity: capacity,
	}
}

// Record inserts a reading as the most recent entry. If the cache is full,
// the least recently recorded entry is evicted first; both steps happen
// under one lock so the capacity bound holds at every observable instant.
// Record never fails.
func (c *Cache) Record(r reading.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.order.Len() >= c.capacity {
		if back := c.order.Back(); back != nil {
			c.order.Remove(back)
			c.evictCount.Add(1)
		}
	}

	c.order.PushFront(r)
	c.recordCount.Add(1)
}

// MostRecent returns up to limit readings ordered from most to least
// recently recorded. A limit <= 0 returns nil; a limit beyond the current
// size returns everything held.
func (c *Cache) MostRecent(limit int) []reading.Reading {
	if limit <= 0 {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	n := c.order.Len()
	if limit < n {
		n = limit
	}
	if n == 0 {
		return nil
	}

	result := make([]reading.Reading, 0, n)
	for e := c.order.Front(); e != nil && len(result) < n; e = e.Next() {
		result = append(result, e.Value.(reading.Reading))
	}
	return result
}

// SnapshotSince returns copies of all held readings with a timestamp at or
// after cutoff, in no guaranteed order. Because retention follows recording
// recency rather than timestamps, a cutoff may match nothing even when
// older data exists in storage.
func (c *Cache) SnapshotSince(cutoff time.Time) []reading.Reading {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []reading.Reading
	for e := c.order.Front(); e != nil; e = e.Next() {
		r := e.Value.(reading.Reading)
		if !r.Timestamp.Before(cutoff) {
			result = append(result, r)
		}
	}
	return result
}

// Size returns the current number of cached readings.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// Capacity returns the maximum number of cached readings.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Clear removes all cached readings.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Size:        c.order.Len(),
		Capacity:    c.capacity,
		UsageRatio:  float64(c.order.Len()) / float64(c.capacity),
		RecordCount: c.recordCount.Load(),
		EvictCount:  c.evictCount.Load(),
	}
}

// Stats holds cache statistics.
type Stats struct {
	Size        int     `json:"size"`
	Capacity    int     `json:"capacity"`
	UsageRatio  float64 `json:"usage_ratio"`
	RecordCount int64   `json:"record_count"`
	EvictCount  int64   `json:"evict_count"`
}
