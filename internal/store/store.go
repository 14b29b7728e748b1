// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

// Package store provides durable, queryable persistence for the purchase
// event log and the inventory record set.
//
// Two backends exist: BadgerStore, the indexed transactional fast path, and
// FileStore, a flat size-bounded JSON fallback. ResilientStore composes the
// two with a circuit breaker so that a failing primary degrades to the
// fallback instead of surfacing errors into the stream-processing path.
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/vendwatch/internal/models"
)

// Sentinel errors shared by the backends.
var (
	ErrClosed = errors.New("store: closed")
)

// QueryOptions narrows, orders, and caps a Query. The zero value returns
// every stored event in timestamp order.
type QueryOptions struct {
	// Filter keeps events for which it returns true. Nil keeps all.
	Filter func(models.PurchaseEvent) bool

	// Sort is a less function applied after filtering. Nil keeps the
	// backend's natural (timestamp ascending) order.
	Sort func(a, b models.PurchaseEvent) bool

	// Limit caps the result length. 0 means unlimited.
	Limit int
}

// EventStore is the durable append-only event log.
type EventStore interface {
	// Append persists one event, assigning an ID and normalized
	// timestamp when missing.
	Append(ctx context.Context, event *models.PurchaseEvent) error

	// BulkReplace atomically replaces the entire stored event set.
	// Used for import/restore.
	BulkReplace(ctx context.Context, events []models.PurchaseEvent) error

	// Query returns events narrowed, ordered, and capped per opts.
	Query(ctx context.Context, opts QueryOptions) ([]models.PurchaseEvent, error)

	// Count returns the number of stored events.
	Count(ctx context.Context) (int, error)

	Close() error
}

// InventoryStore persists the inventory record set as a whole. Both
// backends implement it so inventory survives a primary outage too.
type InventoryStore interface {
	SaveInventory(ctx context.Context, records []models.InventoryRecord) error
	LoadInventory(ctx context.Context) ([]models.InventoryRecord, error)
}

// Store is the full persistence surface the rest of the system depends on.
type Store interface {
	EventStore
	InventoryStore
}

// normalize fills in a missing ID and timestamp ahead of persistence.
func normalize(event *models.PurchaseEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp <= 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
}

// applyQuery runs the in-memory part of a query (filter, sort, limit) over
// events already in timestamp order.
func applyQuery(events []models.PurchaseEvent, opts QueryOptions) []models.PurchaseEvent {
	out := events
	if opts.Filter != nil {
		out = make([]models.PurchaseEvent, 0, len(events))
		for _, e := range events {
			if opts.Filter(e) {
				out = append(out, e)
			}
		}
	}
	if opts.Sort != nil {
		if opts.Filter == nil {
			// Copy before sorting so the backend's slice stays untouched.
			out = append([]models.PurchaseEvent(nil), events...)
		}
		sort.SliceStable(out, func(i, j int) bool { return opts.Sort(out[i], out[j]) })
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}
