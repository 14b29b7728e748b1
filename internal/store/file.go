// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vendwatch/internal/logging"
	"github.com/tomtom215/vendwatch/internal/models"
)

// DefaultFileCap bounds the fallback store at roughly twice the feed
// display limit of 100 events.
const DefaultFileCap = 200

const (
	salesFile     = "sales.json"
	inventoryFile = "inventory.json"
)

// FileStore is the flat, size-bounded fallback backend. Events live in a
// single JSON file kept in timestamp order; appends beyond the cap evict
// the oldest entries first.
//
// Writes go through a temp-file rename so a crash mid-write never corrupts
// the previous copy.
type FileStore struct {
	dir string
	cap int

	mu     sync.RWMutex
	events []models.PurchaseEvent
	closed bool
}

// OpenFile opens the fallback store in dir, loading any existing data.
// maxEvents <= 0 selects DefaultFileCap.
func OpenFile(dir string, maxEvents int) (*FileStore, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultFileCap
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &FileStore{dir: dir, cap: maxEvents}
	if err := s.loadSales(); err != nil {
		// A corrupt fallback file is not fatal: start empty and log.
		logging.Warn().Err(err).Str("dir", dir).Msg("fallback store unreadable, starting empty")
		s.events = nil
	}

	logging.Info().Str("dir", dir).Int("cap", maxEvents).Int("loaded", len(s.events)).Msg("file store opened")
	return s, nil
}

func (s *FileStore) loadSales() error {
	data, err := os.ReadFile(filepath.Join(s.dir, salesFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &s.events); err != nil {
		return fmt.Errorf("decode sales file: %w", err)
	}
	sort.SliceStable(s.events, func(i, j int) bool {
		return s.events[i].Timestamp < s.events[j].Timestamp
	})
	return nil
}

// persistSales writes the event slice atomically. Must be called with the
// lock held.
func (s *FileStore) persistSales() error {
	return s.writeFile(salesFile, s.events)
}

func (s *FileStore) writeFile(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.Rename(tmp, path)
}

// Append persists one event, evicting the oldest entries once the cap is
// exceeded.
func (s *FileStore) Append(ctx context.Context, event *models.PurchaseEvent) error {
	normalize(event)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	// Insert keeping timestamp order; events usually arrive in order, so
	// scan from the tail.
	i := len(s.events)
	for i > 0 && s.events[i-1].Timestamp > event.Timestamp {
		i--
	}
	s.events = append(s.events, models.PurchaseEvent{})
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = *event

	if over := len(s.events) - s.cap; over > 0 {
		s.events = append([]models.PurchaseEvent(nil), s.events[over:]...)
	}

	return s.persistSales()
}

// BulkReplace swaps in the given set, capped oldest-first.
func (s *FileStore) BulkReplace(ctx context.Context, events []models.PurchaseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	next := make([]models.PurchaseEvent, len(events))
	for i := range events {
		next[i] = events[i]
		normalize(&next[i])
	}
	sort.SliceStable(next, func(i, j int) bool { return next[i].Timestamp < next[j].Timestamp })

	if over := len(next) - s.cap; over > 0 {
		next = next[over:]
	}

	s.events = next
	return s.persistSales()
}

// Query applies opts over the in-memory set.
func (s *FileStore) Query(ctx context.Context, opts QueryOptions) ([]models.PurchaseEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	return applyQuery(append([]models.PurchaseEvent(nil), s.events...), opts), nil
}

// Count returns the number of stored events.
func (s *FileStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.events), nil
}

// SaveInventory replaces the persisted inventory collection.
func (s *FileStore) SaveInventory(ctx context.Context, records []models.InventoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.writeFile(inventoryFile, records)
}

// LoadInventory reads the persisted inventory collection.
func (s *FileStore) LoadInventory(ctx context.Context) ([]models.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	data, err := os.ReadFile(filepath.Join(s.dir, inventoryFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records []models.InventoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode inventory file: %w", err)
	}
	return records, nil
}

// Close marks the store closed. Data is already on disk after every write.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
