// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

// Package cache provides the in-memory data structures backing the analytics
// engine: a per-period TTL cache for computed snapshots and sliding-window
// counters for real-time statistics.
package cache

import (
	"sync"
	"time"

	"github.com/tomtom215/vendwatch/internal/models"
)

// snapshotEntry pairs a cached snapshot with its expiry.
type snapshotEntry struct {
	snapshot  *models.AnalyticsSnapshot
	expiresAt time.Time
}

// SnapshotCache is a thread-safe TTL cache keyed by reporting period.
//
// Entries expire after the configured TTL or when Clear is called (any
// ingested event invalidates every period, since a single event can shift
// top-N rankings, histograms, and comparisons). A cache hit returns the
// stored snapshot pointer unchanged, so two reads with no intervening
// invalidation observe the identical object.
type SnapshotCache struct {
	mu      sync.RWMutex
	entries map[models.Period]snapshotEntry
	ttl     time.Duration

	stats CacheStats
}

// CacheStats tracks hit/miss/eviction counts for monitoring.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// NewSnapshotCache creates a snapshot cache with the given TTL.
func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		entries: make(map[models.Period]snapshotEntry, 4),
		ttl:     ttl,
	}
}

// Get returns the live cached snapshot for the period, or nil, false when
// the entry is absent or expired. Expired entries are removed on access.
func (c *SnapshotCache) Get(period models.Period) (*models.AnalyticsSnapshot, bool) {
	c.mu.RLock()
	entry, exists := c.entries[period]
	c.mu.RUnlock()

	if !exists {
		c.record(func(s *CacheStats) { s.Misses++ })
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, period)
		c.mu.Unlock()
		c.record(func(s *CacheStats) { s.Misses++; s.Evictions++ })
		return nil, false
	}

	c.record(func(s *CacheStats) { s.Hits++ })
	return entry.snapshot, true
}

// Set stores a freshly computed snapshot for its period.
func (c *SnapshotCache) Set(snapshot *models.AnalyticsSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[snapshot.Period] = snapshotEntry{
		snapshot:  snapshot,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Clear removes every cached snapshot. Called on each ingested event.
func (c *SnapshotCache) Clear() {
	c.mu.Lock()
	evicted := int64(len(c.entries))
	c.entries = make(map[models.Period]snapshotEntry, 4)
	c.mu.Unlock()

	c.record(func(s *CacheStats) { s.Evictions += evicted })
}

// Len returns the number of live entries (expired entries included until
// their next access).
func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a copy of the cache counters.
func (c *SnapshotCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *SnapshotCache) record(fn func(*CacheStats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}
