// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tomtom215/vendwatch/internal/models"
)

func testEvent(name string, price float64, ts int64) *models.PurchaseEvent {
	return &models.PurchaseEvent{
		ProductName: name,
		Price:       price,
		Timestamp:   ts,
	}
}

func TestFileStoreAppendAndQuery(t *testing.T) {
	s, err := OpenFile(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	base := time.Now().UnixMilli()
	for i := 0; i < 5; i++ {
		ev := testEvent(fmt.Sprintf("Product %d", i), 1.50, base+int64(i))
		if err := s.Append(ctx, ev); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if ev.ID == "" {
			t.Fatal("Append did not assign an ID")
		}
	}

	events, err := s.Query(ctx, QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp < events[i-1].Timestamp {
			t.Fatal("events not in chronological order")
		}
	}

	n, err := s.Count(ctx)
	if err != nil || n != 5 {
		t.Fatalf("Count = %d, %v; want 5, nil", n, err)
	}
}

func TestFileStoreCapEvictsOldest(t *testing.T) {
	s, err := OpenFile(t.TempDir(), 3)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	base := time.Now().UnixMilli()
	for i := 0; i < 5; i++ {
		if err := s.Append(ctx, testEvent(fmt.Sprintf("P%d", i), 1, base+int64(i))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	events, err := s.Query(ctx, QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want cap of 3", len(events))
	}
	if events[0].ProductName != "P2" {
		t.Fatalf("oldest surviving event = %q, want P2", events[0].ProductName)
	}
}

func TestFileStoreReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenFile(dir, 10)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := s.Append(ctx, testEvent("Cola", 1.50, time.Now().UnixMilli())); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.SaveInventory(ctx, []models.InventoryRecord{{ID: "inv-1", Name: "Cola", CurrentStock: 4}}); err != nil {
		t.Fatalf("SaveInventory: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := OpenFile(dir, 10)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	events, err := s2.Query(ctx, QueryOptions{})
	if err != nil || len(events) != 1 || events[0].ProductName != "Cola" {
		t.Fatalf("reloaded events = %v, %v", events, err)
	}
	records, err := s2.LoadInventory(ctx)
	if err != nil || len(records) != 1 || records[0].ID != "inv-1" {
		t.Fatalf("reloaded inventory = %v, %v", records, err)
	}
}

func TestFileStoreBulkReplaceCaps(t *testing.T) {
	s, err := OpenFile(t.TempDir(), 2)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	base := time.Now().UnixMilli()
	in := []models.PurchaseEvent{
		*testEvent("A", 1, base),
		*testEvent("B", 1, base+1),
		*testEvent("C", 1, base+2),
	}
	if err := s.BulkReplace(ctx, in); err != nil {
		t.Fatalf("BulkReplace: %v", err)
	}

	events, _ := s.Query(ctx, QueryOptions{})
	if len(events) != 2 || events[0].ProductName != "B" {
		t.Fatalf("got %v, want the two newest events", events)
	}
}

func TestFileStoreClosed(t *testing.T) {
	s, err := OpenFile(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	s.Close()

	if err := s.Append(context.Background(), testEvent("X", 1, 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Append after Close = %v, want ErrClosed", err)
	}
}

func TestQueryOptionsFilterAndLimit(t *testing.T) {
	s, err := OpenFile(t.TempDir(), 20)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	base := time.Now().UnixMilli()
	for i := 0; i < 10; i++ {
		name := "Cola"
		if i%2 == 1 {
			name = "Chips"
		}
		if err := s.Append(ctx, testEvent(name, 1, base+int64(i))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	events, err := s.Query(ctx, QueryOptions{
		Filter: func(e models.PurchaseEvent) bool { return e.ProductName == "Cola" },
		Limit:  3,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for _, e := range events {
		if e.ProductName != "Cola" {
			t.Fatalf("filter leaked %q", e.ProductName)
		}
	}
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	cfg := DefaultBadgerConfig(t.TempDir())
	s, err := OpenBadger(cfg)
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	base := time.Now().UnixMilli()
	for i := 0; i < 4; i++ {
		name := "Cola"
		if i == 3 {
			name = "Water"
		}
		if err := s.Append(ctx, testEvent(name, 1.25, base+int64(i))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	events, err := s.Query(ctx, QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp < events[i-1].Timestamp {
			t.Fatal("badger query not chronological")
		}
	}

	byProduct, err := s.QueryByProduct(ctx, "Cola", 0)
	if err != nil {
		t.Fatalf("QueryByProduct: %v", err)
	}
	if len(byProduct) != 3 {
		t.Fatalf("got %d Cola events, want 3", len(byProduct))
	}

	n, err := s.Count(ctx)
	if err != nil || n != 4 {
		t.Fatalf("Count = %d, %v; want 4, nil", n, err)
	}
}

func TestBadgerStoreBulkReplace(t *testing.T) {
	s, err := OpenBadger(DefaultBadgerConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	base := time.Now().UnixMilli()
	if err := s.Append(ctx, testEvent("Old", 1, base)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	replacement := []models.PurchaseEvent{
		*testEvent("New A", 2, base+1),
		*testEvent("New B", 3, base+2),
	}
	if err := s.BulkReplace(ctx, replacement); err != nil {
		t.Fatalf("BulkReplace: %v", err)
	}

	events, err := s.Query(ctx, QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events after replace, want 2", len(events))
	}
	for _, e := range events {
		if e.ProductName == "Old" {
			t.Fatal("replaced event survived BulkReplace")
		}
	}
}

func TestBadgerStoreInventory(t *testing.T) {
	s, err := OpenBadger(DefaultBadgerConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	records := []models.InventoryRecord{
		{ID: "a", Name: "Cola Classic", CurrentStock: 8, MinStock: 3, IsActive: true},
		{ID: "b", Name: "Chips", CurrentStock: 0, MinStock: 2, IsActive: true},
	}
	if err := s.SaveInventory(ctx, records); err != nil {
		t.Fatalf("SaveInventory: %v", err)
	}

	loaded, err := s.LoadInventory(ctx)
	if err != nil {
		t.Fatalf("LoadInventory: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("got %d records, want 2", len(loaded))
	}
}

// failingStore errors on every operation, standing in for a broken primary.
type failingStore struct{}

var errBroken = errors.New("backend unavailable")

func (failingStore) Append(context.Context, *models.PurchaseEvent) error { return errBroken }
func (failingStore) BulkReplace(context.Context, []models.PurchaseEvent) error {
	return errBroken
}
func (failingStore) Query(context.Context, QueryOptions) ([]models.PurchaseEvent, error) {
	return nil, errBroken
}
func (failingStore) Count(context.Context) (int, error) { return 0, errBroken }
func (failingStore) SaveInventory(context.Context, []models.InventoryRecord) error {
	return errBroken
}
func (failingStore) LoadInventory(context.Context) ([]models.InventoryRecord, error) {
	return nil, errBroken
}
func (failingStore) Close() error { return nil }

func TestResilientFallsBackOnWrite(t *testing.T) {
	fallback, err := OpenFile(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	r := NewResilient(failingStore{}, fallback)
	defer r.Close()

	ctx := context.Background()
	if err := r.Append(ctx, testEvent("Cola", 1.50, time.Now().UnixMilli())); err != nil {
		t.Fatalf("Append with healthy fallback: %v", err)
	}

	events, err := fallback.Query(ctx, QueryOptions{})
	if err != nil || len(events) != 1 {
		t.Fatalf("fallback holds %d events, %v; want 1", len(events), err)
	}
}

func TestResilientReadsDegradeEmpty(t *testing.T) {
	r := NewResilient(failingStore{}, failingStore{})
	defer r.Close()

	events, err := r.Query(context.Background(), QueryOptions{})
	if err != nil {
		t.Fatalf("Query should not error on double failure: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("got %d events, want empty", len(events))
	}
}

func TestResilientBreakerOpens(t *testing.T) {
	fallback, err := OpenFile(t.TempDir(), 50)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	r := NewResilient(failingStore{}, fallback)
	defer r.Close()

	ctx := context.Background()
	base := time.Now().UnixMilli()
	// Enough consecutive failures to trip the breaker; every write must
	// still land on the fallback.
	for i := 0; i < 6; i++ {
		if err := r.Append(ctx, testEvent("Cola", 1, base+int64(i))); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	n, err := fallback.Count(ctx)
	if err != nil || n != 6 {
		t.Fatalf("fallback count = %d, %v; want 6", n, err)
	}
}

func TestResilientPrefersPrimary(t *testing.T) {
	primary, err := OpenFile(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("OpenFile primary: %v", err)
	}
	fallback, err := OpenFile(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("OpenFile fallback: %v", err)
	}
	r := NewResilient(primary, fallback)
	defer r.Close()

	ctx := context.Background()
	if err := r.Append(ctx, testEvent("Water", 1, time.Now().UnixMilli())); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if n, _ := primary.Count(ctx); n != 1 {
		t.Fatalf("primary count = %d, want 1", n)
	}
	if n, _ := fallback.Count(ctx); n != 0 {
		t.Fatalf("fallback count = %d, want 0", n)
	}
}
