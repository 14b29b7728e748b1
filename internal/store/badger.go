// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/vendwatch/internal/logging"
	"github.com/tomtom215/vendwatch/internal/models"
)

// Key layout. Sale keys embed the zero-padded millisecond timestamp so that
// lexicographic iteration is chronological; the product index maps back to
// the sale key. Product names are restricted to a safe character set at the
// validation boundary, so ':' never appears inside a name.
const (
	prefixSale      = "sale:"
	prefixProductIdx = "idx:product:"
	prefixInventory = "inventory:"
)

// BadgerConfig tunes the indexed backend.
type BadgerConfig struct {
	// Path is the BadgerDB directory.
	Path string

	// SyncWrites forces fsync per write. Off by default: the feed is
	// best-effort and the in-memory working set leads the durable copy.
	SyncWrites bool

	// Retention ages out sales older than this window. 0 disables ageing.
	Retention time.Duration

	// RetentionInterval is how often the ageing pass runs.
	RetentionInterval time.Duration

	// GCInterval is how often Badger value-log GC runs.
	GCInterval time.Duration
}

// DefaultBadgerConfig returns production defaults with a 90-day retention
// window.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:              path,
		SyncWrites:        false,
		Retention:         90 * 24 * time.Hour,
		RetentionInterval: time.Hour,
		GCInterval:        10 * time.Minute,
	}
}

// BadgerStore is the indexed, transactional event store. It keeps the sale
// log, a product-name secondary index, and the inventory collection in one
// Badger keyspace.
type BadgerStore struct {
	db     *badger.DB
	config BadgerConfig

	mu     sync.RWMutex
	closed bool
}

// OpenBadger opens (or creates) the store at cfg.Path.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Dur("retention", cfg.Retention).
		Msg("badger store opened")

	return &BadgerStore{db: db, config: cfg}, nil
}

// saleKey builds the primary key for an event.
func saleKey(e *models.PurchaseEvent) []byte {
	return []byte(fmt.Sprintf("%s%013d:%s", prefixSale, e.Timestamp, e.ID))
}

// productIdxKey builds the secondary index key for an event.
func productIdxKey(e *models.PurchaseEvent) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixProductIdx, e.ProductName, e.ID))
}

// Append persists one event together with its product index entry.
func (s *BadgerStore) Append(ctx context.Context, event *models.PurchaseEvent) error {
	if err := s.guard(); err != nil {
		return err
	}
	normalize(event)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := saleKey(event)
	return s.db.Update(func(txn *badger.Txn) error {
		if s.config.Retention > 0 {
			e := badger.NewEntry(key, data).WithTTL(s.config.Retention)
			if err := txn.SetEntry(e); err != nil {
				return err
			}
			idx := badger.NewEntry(productIdxKey(event), key).WithTTL(s.config.Retention)
			return txn.SetEntry(idx)
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(productIdxKey(event), key)
	})
}

// BulkReplace drops the sale keyspace (log and index) and writes the given
// set. Badger's DropPrefix runs outside a transaction, so a crash between
// drop and write can leave the store empty; acceptable for the
// import/restore path this serves.
func (s *BadgerStore) BulkReplace(ctx context.Context, events []models.PurchaseEvent) error {
	if err := s.guard(); err != nil {
		return err
	}

	if err := s.db.DropPrefix([]byte(prefixSale), []byte(prefixProductIdx)); err != nil {
		return fmt.Errorf("drop sale keyspace: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for i := range events {
		e := events[i]
		normalize(&e)
		data, err := json.Marshal(&e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		key := saleKey(&e)
		if err := wb.Set(key, data); err != nil {
			return err
		}
		if err := wb.Set(productIdxKey(&e), key); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Query iterates the sale keyspace chronologically and applies opts.
func (s *BadgerStore) Query(ctx context.Context, opts QueryOptions) ([]models.PurchaseEvent, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var events []models.PurchaseEvent
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixSale)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var e models.PurchaseEvent
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return fmt.Errorf("unmarshal event: %w", err)
			}
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applyQuery(events, opts), nil
}

// QueryByProduct serves product-filtered reads through the secondary index
// instead of a full scan.
func (s *BadgerStore) QueryByProduct(ctx context.Context, productName string, limit int) ([]models.PurchaseEvent, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var events []models.PurchaseEvent
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixProductIdx + productName + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var key []byte
			if err := it.Item().Value(func(val []byte) error {
				key = append([]byte(nil), val...)
				return nil
			}); err != nil {
				return err
			}

			item, err := txn.Get(key)
			if err != nil {
				// Index entry outlived the sale (retention race); skip.
				continue
			}
			var e models.PurchaseEvent
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			events = append(events, e)
			if limit > 0 && len(events) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Count returns the number of stored sales without decoding values.
func (s *BadgerStore) Count(ctx context.Context) (int, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixSale)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// SaveInventory replaces the persisted inventory collection.
func (s *BadgerStore) SaveInventory(ctx context.Context, records []models.InventoryRecord) error {
	if err := s.guard(); err != nil {
		return err
	}

	if err := s.db.DropPrefix([]byte(prefixInventory)); err != nil {
		return fmt.Errorf("drop inventory keyspace: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for i := range records {
		data, err := json.Marshal(&records[i])
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if err := wb.Set([]byte(prefixInventory+records[i].ID), data); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// LoadInventory reads the persisted inventory collection.
func (s *BadgerStore) LoadInventory(ctx context.Context) ([]models.InventoryRecord, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var records []models.InventoryRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixInventory)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r models.InventoryRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			records = append(records, r)
		}
		return nil
	})
	return records, err
}

// RunRetention ages out expired data and runs value-log GC until the
// context is canceled. Designed to run under the supervisor tree.
func (s *BadgerStore) RunRetention(ctx context.Context) error {
	gcTicker := time.NewTicker(s.config.GCInterval)
	defer gcTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-gcTicker.C:
			// Badger returns ErrNoRewrite when there is nothing to
			// collect; that is the steady state, not a failure.
			if err := s.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
				logging.Warn().Err(err).Msg("badger value log gc failed")
			}
		}
	}
}

// Close shuts the store down. Further operations return ErrClosed.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.db.Close()
}

func (s *BadgerStore) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
