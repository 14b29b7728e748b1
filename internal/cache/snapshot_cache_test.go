// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package cache

import (
	"testing"
	"time"

	"github.com/tomtom215/vendwatch/internal/models"
)

func TestSnapshotCacheHitReturnsSamePointer(t *testing.T) {
	c := NewSnapshotCache(time.Minute)

	snap := &models.AnalyticsSnapshot{Period: models.PeriodToday, TotalSales: 3}
	c.Set(snap)

	got1, ok1 := c.Get(models.PeriodToday)
	got2, ok2 := c.Get(models.PeriodToday)
	if !ok1 || !ok2 {
		t.Fatal("expected cache hits")
	}
	if got1 != snap || got2 != snap {
		t.Error("cache hit must return the identical snapshot pointer")
	}
}

func TestSnapshotCacheMissOnOtherPeriod(t *testing.T) {
	c := NewSnapshotCache(time.Minute)
	c.Set(&models.AnalyticsSnapshot{Period: models.PeriodToday})

	if _, ok := c.Get(models.PeriodWeek); ok {
		t.Error("expected miss for uncached period")
	}
}

func TestSnapshotCacheTTLExpiry(t *testing.T) {
	c := NewSnapshotCache(10 * time.Millisecond)
	c.Set(&models.AnalyticsSnapshot{Period: models.PeriodAll})

	if _, ok := c.Get(models.PeriodAll); !ok {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get(models.PeriodAll); ok {
		t.Error("expected miss after TTL expiry")
	}
}

func TestSnapshotCacheClear(t *testing.T) {
	c := NewSnapshotCache(time.Minute)
	for _, p := range []models.Period{models.PeriodToday, models.PeriodWeek, models.PeriodMonth, models.PeriodAll} {
		c.Set(&models.AnalyticsSnapshot{Period: p})
	}
	if c.Len() != 4 {
		t.Fatalf("expected 4 entries, got %d", c.Len())
	}

	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after clear, got %d entries", c.Len())
	}
	for _, p := range []models.Period{models.PeriodToday, models.PeriodWeek, models.PeriodMonth, models.PeriodAll} {
		if _, ok := c.Get(p); ok {
			t.Errorf("expected miss for %s after clear", p)
		}
	}
}

func TestSalesWindowTotals(t *testing.T) {
	w := NewSalesWindow(time.Hour, 60)
	w.Record(1.5)
	w.Record(2.5)
	w.Record(0)

	count, revenue := w.Totals()
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if revenue != 4.0 {
		t.Errorf("revenue = %v, want 4.0", revenue)
	}
}

func TestSalesWindowExpiry(t *testing.T) {
	// 50ms window with 5 buckets: everything recorded now is gone after
	// the full window elapses.
	w := NewSalesWindow(50*time.Millisecond, 5)
	w.Record(3.0)

	time.Sleep(80 * time.Millisecond)
	count, revenue := w.Totals()
	if count != 0 || revenue != 0 {
		t.Errorf("expected empty window, got count=%d revenue=%v", count, revenue)
	}
}

func TestSalesWindowReset(t *testing.T) {
	w := NewSalesWindow(time.Hour, 10)
	w.Record(9.99)
	w.Reset()
	if count, rev := w.Totals(); count != 0 || rev != 0 {
		t.Errorf("expected zeroed window after reset, got count=%d revenue=%v", count, rev)
	}
}
