// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

// Package analytics turns the purchase event log into query-able
// aggregates: period snapshots with a TTL cache, rolling real-time
// counters, and generated insight messages.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/vendwatch/internal/bus"
	"github.com/tomtom215/vendwatch/internal/cache"
	"github.com/tomtom215/vendwatch/internal/catalog"
	"github.com/tomtom215/vendwatch/internal/logging"
	"github.com/tomtom215/vendwatch/internal/metrics"
	"github.com/tomtom215/vendwatch/internal/models"
	"github.com/tomtom215/vendwatch/internal/store"
	"github.com/tomtom215/vendwatch/internal/validation"
)

// DefaultCacheTTL bounds snapshot staleness when no ingest invalidates the
// cache first.
const DefaultCacheTTL = 24 * time.Hour

// Config controls engine behavior.
type Config struct {
	// CacheTTL for computed snapshots. Default 24h.
	CacheTTL time.Duration
}

// Engine owns the in-memory working set of purchase events and every
// derived view over it. The working set is kept most-recent-first; the
// durable store is the recovery source, not the query path.
type Engine struct {
	store   store.EventStore
	catalog *catalog.Catalog
	cache   *cache.SnapshotCache
	bus     *bus.Bus

	mu     sync.RWMutex
	events []models.PurchaseEvent // newest first

	// ingestRate tracks sales over the trailing hour for health reporting
	// and the stats_update broadcast payload.
	ingestRate *cache.SalesWindow

	now func() time.Time
}

// NewEngine creates an engine over the given store. eventBus may be nil;
// recorded sales then stay local to the engine.
func NewEngine(cfg Config, eventStore store.EventStore, cat *catalog.Catalog, eventBus *bus.Bus) *Engine {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cat == nil {
		cat = catalog.Default()
	}

	return &Engine{
		store:      eventStore,
		catalog:    cat,
		cache:      cache.NewSnapshotCache(cfg.CacheTTL),
		bus:        eventBus,
		ingestRate: cache.NewSalesWindow(time.Hour, 60),
		now:        time.Now,
	}
}

// Load populates the working set from the store. Called once at startup
// before the stream client begins delivering events.
func (e *Engine) Load(ctx context.Context) error {
	events, err := e.store.Query(ctx, store.QueryOptions{})
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	e.mu.Lock()
	e.events = make([]models.PurchaseEvent, len(events))
	for i, ev := range events {
		// Store order is chronological; the working set wants newest first.
		e.events[len(events)-1-i] = ev
	}
	e.mu.Unlock()

	e.cache.Clear()
	metrics.StoreEventCount.Set(float64(len(events)))
	logging.Info().Int("events", len(events)).Msg("analytics working set loaded")
	return nil
}

// AddEvent validates a decoded stream payload and records it. Payloads
// that are not valid sales are rejected with no state change.
func (e *Engine) AddEvent(ctx context.Context, decoded interface{}) (*models.PurchaseEvent, error) {
	kind, sale, reason := validation.ClassifySale(decoded)
	switch kind {
	case validation.PayloadValidSale:
	case validation.PayloadMalformed:
		metrics.RecordReject(reason)
		return nil, fmt.Errorf("malformed sale: %s", reason)
	default:
		metrics.RecordReject("not_a_sale")
		return nil, fmt.Errorf("payload is not a sale")
	}

	return e.AddSale(ctx, sale)
}

// AddSale records an already-validated sale: enrich, prepend to the
// working set, persist, invalidate every cached snapshot, announce on the
// bus. Persistence failures are logged and absorbed so the ingest path
// never stalls on storage.
func (e *Engine) AddSale(ctx context.Context, sale *models.ValidatedSale) (*models.PurchaseEvent, error) {
	if sale == nil {
		return nil, fmt.Errorf("nil sale")
	}

	event := e.enrich(sale)

	e.mu.Lock()
	e.events = append([]models.PurchaseEvent{event}, e.events...)
	total := len(e.events)
	e.mu.Unlock()

	e.cache.Clear()
	e.ingestRate.Record(event.Price)
	metrics.RecordIngest()
	metrics.StoreEventCount.Set(float64(total))

	if err := e.store.Append(ctx, &event); err != nil {
		logging.Warn().Err(err).Str("event_id", event.ID).Msg("event persist failed")
	}

	if e.bus != nil {
		if err := e.bus.PublishSale(event); err != nil {
			logging.Warn().Err(err).Str("event_id", event.ID).Msg("sale publish failed")
		}
	}

	logging.Debug().
		Str("product", event.ProductName).
		Float64("price", event.Price).
		Msg("sale recorded")
	return &event, nil
}

// enrich fills derived fields: identity, ingestion timestamp when the feed
// carried none, catalog attributes, and calendar components.
func (e *Engine) enrich(sale *models.ValidatedSale) models.PurchaseEvent {
	ts := sale.Timestamp
	if ts <= 0 {
		ts = e.now().UnixMilli()
	}

	entry := e.catalog.Lookup(sale.ProductName)
	t := time.UnixMilli(ts).In(e.now().Location())
	_, week := t.ISOWeek()

	return models.PurchaseEvent{
		ID:          uuid.NewString(),
		ProductName: sale.ProductName,
		Price:       sale.Price,
		Timestamp:   ts,
		Category:    entry.Category,
		Emoji:       entry.Emoji,
		Color:       entry.Color,
		Hour:        t.Hour(),
		DayOfWeek:   int(t.Weekday()),
		WeekOfYear:  week,
		Month:       int(t.Month()),
		Year:        t.Year(),
	}
}

// ReplaceAll swaps the entire event log, both in memory and durably.
// Used by import/restore.
func (e *Engine) ReplaceAll(ctx context.Context, events []models.PurchaseEvent) error {
	if err := e.store.BulkReplace(ctx, events); err != nil {
		return fmt.Errorf("replace events: %w", err)
	}
	return e.Load(ctx)
}

// Snapshot returns the analytics view for period. With useCache, a live
// cached snapshot is returned verbatim; otherwise the window is recomputed
// and cached.
func (e *Engine) Snapshot(period models.Period, useCache bool) *models.AnalyticsSnapshot {
	if useCache {
		if snap, ok := e.cache.Get(period); ok {
			metrics.RecordSnapshot(string(period), 0, true)
			return snap
		}
	}

	started := time.Now()
	now := e.now()

	e.mu.RLock()
	window := e.windowLocked(period, now)
	snap := compute(period, window, now)
	if period != models.PeriodAll {
		snap.Comparison = e.comparisonLocked(period, snap, now)
	}
	e.mu.RUnlock()

	e.cache.Set(snap)
	metrics.RecordSnapshot(string(period), time.Since(started), false)
	return snap
}

// windowLocked filters the working set to the period window, preserving
// working-set order (newest first). Caller holds at least a read lock.
func (e *Engine) windowLocked(period models.Period, now time.Time) []models.PurchaseEvent {
	start, bounded := period.WindowStart(now)
	if !bounded {
		return e.events
	}

	startMs := start.UnixMilli()
	out := make([]models.PurchaseEvent, 0, len(e.events))
	for _, ev := range e.events {
		if ev.Timestamp >= startMs {
			out = append(out, ev)
		}
	}
	return out
}

// comparisonLocked computes the preceding same-length window and the
// percent deltas against it. Caller holds at least a read lock.
func (e *Engine) comparisonLocked(period models.Period, current *models.AnalyticsSnapshot, now time.Time) *models.Comparison {
	start, bounded := period.WindowStart(now)
	if !bounded {
		return nil
	}

	length := now.Sub(start)
	prevStart := start.Add(-length).UnixMilli()
	prevEnd := start.UnixMilli()

	prevCount := 0
	prevRevenue := 0.0
	for _, ev := range e.events {
		if ev.Timestamp >= prevStart && ev.Timestamp < prevEnd {
			prevCount++
			prevRevenue += ev.Price
		}
	}

	prevAverage := 0.0
	if prevCount > 0 {
		prevAverage = prevRevenue / float64(prevCount)
	}

	return &models.Comparison{
		PreviousCount:    prevCount,
		PreviousRevenue:  prevRevenue,
		PreviousAverage:  prevAverage,
		CountChangePct:   percentChange(float64(current.TotalSales), float64(prevCount)),
		RevenueChangePct: percentChange(current.TotalRevenue, prevRevenue),
		AverageChangePct: percentChange(current.AveragePrice, prevAverage),
	}
}

// percentChange defines change against a zero previous value as 100 for
// any positive current value, else 0.
func percentChange(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return (current - previous) / previous * 100
}

// RealTimeStats scans the working set directly on every call.
func (e *Engine) RealTimeStats() models.RealTimeStats {
	now := e.now()
	hourAgo := now.Add(-time.Hour).UnixMilli()
	dayAgo := now.Add(-24 * time.Hour).UnixMilli()

	e.mu.RLock()
	defer e.mu.RUnlock()

	var stats models.RealTimeStats
	for _, ev := range e.events {
		stats.TotalSales++
		stats.TotalRevenue += ev.Price
		if ev.Timestamp >= dayAgo {
			stats.SalesLast24h++
			stats.RevenueLast24h += ev.Price
		}
		if ev.Timestamp >= hourAgo {
			stats.SalesLastHour++
		}
		if ev.Timestamp > stats.LastSaleTime {
			stats.LastSaleTime = ev.Timestamp
		}
	}

	stats.IsActive = stats.SalesLastHour >= 1
	return stats
}

// IngestRate reports sales and revenue over the trailing hour from the
// bucketed counter, cheap enough for frequent health polls.
func (e *Engine) IngestRate() (int64, float64) {
	return e.ingestRate.Totals()
}

// RecentEvents returns up to limit events, newest first. limit <= 0 means
// all.
func (e *Engine) RecentEvents(limit int) []models.PurchaseEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()

	n := len(e.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.PurchaseEvent, n)
	copy(out, e.events[:n])
	return out
}

// EventCount returns the working set size.
func (e *Engine) EventCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.events)
}

// CacheStats exposes snapshot cache counters for the health endpoint.
func (e *Engine) CacheStats() cache.CacheStats {
	return e.cache.Stats()
}
