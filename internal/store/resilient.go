// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package store

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/vendwatch/internal/logging"
	"github.com/tomtom215/vendwatch/internal/metrics"
	"github.com/tomtom215/vendwatch/internal/models"
)

// ResilientStore routes operations to a primary backend and falls back to a
// secondary when the primary fails. A circuit breaker in front of the
// primary stops hammering it once failures become consecutive; while the
// breaker is open all traffic goes straight to the fallback.
//
// Degradation order for writes: primary, then fallback, then drop with a
// warning. Reads degrade to an empty result rather than an error so the
// analytics layer keeps serving whatever it has in memory.
type ResilientStore struct {
	primary  Store
	fallback Store
	breaker  *gobreaker.CircuitBreaker[any]
}

// NewResilient wraps primary and fallback. fallback may be nil, in which
// case failures surface to the caller once the breaker opens.
func NewResilient(primary, fallback Store) *ResilientStore {
	settings := gobreaker.Settings{
		Name:        "store-primary",
		MaxRequests: 1,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("store circuit breaker state change")
			metrics.RecordStoreBreakerState(to.String())
		},
	}

	return &ResilientStore{
		primary:  primary,
		fallback: fallback,
		breaker:  gobreaker.NewCircuitBreaker[any](settings),
	}
}

// exec runs op against the primary behind the breaker.
func (r *ResilientStore) exec(op func(Store) error) error {
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, op(r.primary)
	})
	return err
}

// Append writes to the primary, retrying once on the fallback. A sale that
// fails both backends is dropped, not queued; the stream layer has its own
// redelivery story and the analytics working set already holds the event.
func (r *ResilientStore) Append(ctx context.Context, event *models.PurchaseEvent) error {
	err := r.exec(func(s Store) error { return s.Append(ctx, event) })
	if err == nil {
		metrics.RecordStoreWrite("primary")
		return nil
	}

	logging.Warn().Err(err).Str("event_id", event.ID).Msg("primary store append failed")
	if r.fallback == nil {
		metrics.RecordStoreDrop()
		return err
	}

	if ferr := r.fallback.Append(ctx, event); ferr != nil {
		logging.Error().Err(ferr).Str("event_id", event.ID).Msg("fallback store append failed, dropping event")
		metrics.RecordStoreDrop()
		return ferr
	}

	metrics.RecordStoreWrite("fallback")
	return nil
}

// BulkReplace follows the same primary-then-fallback order as Append.
func (r *ResilientStore) BulkReplace(ctx context.Context, events []models.PurchaseEvent) error {
	err := r.exec(func(s Store) error { return s.BulkReplace(ctx, events) })
	if err == nil {
		return nil
	}

	logging.Warn().Err(err).Int("count", len(events)).Msg("primary store bulk replace failed")
	if r.fallback == nil {
		return err
	}
	return r.fallback.BulkReplace(ctx, events)
}

// Query reads from the primary and falls back on error. When both backends
// fail it returns an empty slice so callers render an empty view instead of
// an error page.
func (r *ResilientStore) Query(ctx context.Context, opts QueryOptions) ([]models.PurchaseEvent, error) {
	var events []models.PurchaseEvent
	err := r.exec(func(s Store) error {
		var qerr error
		events, qerr = s.Query(ctx, opts)
		return qerr
	})
	if err == nil {
		return events, nil
	}

	logging.Warn().Err(err).Msg("primary store query failed")
	if r.fallback == nil {
		return []models.PurchaseEvent{}, nil
	}

	events, ferr := r.fallback.Query(ctx, opts)
	if ferr != nil {
		logging.Error().Err(ferr).Msg("fallback store query failed")
		return []models.PurchaseEvent{}, nil
	}
	return events, nil
}

// Count degrades to zero on double failure.
func (r *ResilientStore) Count(ctx context.Context) (int, error) {
	var n int
	err := r.exec(func(s Store) error {
		var cerr error
		n, cerr = s.Count(ctx)
		return cerr
	})
	if err == nil {
		return n, nil
	}
	if r.fallback == nil {
		return 0, nil
	}
	if n, ferr := r.fallback.Count(ctx); ferr == nil {
		return n, nil
	}
	return 0, nil
}

// SaveInventory writes to both backends so a later primary outage still has
// a current fallback copy to serve.
func (r *ResilientStore) SaveInventory(ctx context.Context, records []models.InventoryRecord) error {
	err := r.exec(func(s Store) error { return s.SaveInventory(ctx, records) })
	if err != nil {
		logging.Warn().Err(err).Msg("primary store inventory save failed")
	}
	if r.fallback != nil {
		if ferr := r.fallback.SaveInventory(ctx, records); ferr != nil {
			logging.Warn().Err(ferr).Msg("fallback store inventory save failed")
			if err == nil {
				return nil
			}
			return ferr
		}
		return nil
	}
	return err
}

// LoadInventory reads from the primary and falls back on error.
func (r *ResilientStore) LoadInventory(ctx context.Context) ([]models.InventoryRecord, error) {
	var records []models.InventoryRecord
	err := r.exec(func(s Store) error {
		var lerr error
		records, lerr = s.LoadInventory(ctx)
		return lerr
	})
	if err == nil {
		return records, nil
	}

	logging.Warn().Err(err).Msg("primary store inventory load failed")
	if r.fallback == nil {
		return nil, nil
	}
	records, ferr := r.fallback.LoadInventory(ctx)
	if ferr != nil {
		return nil, nil
	}
	return records, nil
}

// Close closes both backends, returning the first error seen.
func (r *ResilientStore) Close() error {
	err := r.primary.Close()
	if r.fallback != nil {
		if ferr := r.fallback.Close(); err == nil {
			err = ferr
		}
	}
	return err
}
