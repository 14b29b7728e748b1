// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package cache

import (
	"sync"
	"time"
)

// SalesWindow is a sliding-window counter that tracks both sale counts and
// revenue. Time is divided into fixed buckets summed on read, giving O(1)
// recording and O(buckets) queries without touching the event store.
//
// The engine keeps one window for the rolling hour and one for the rolling
// 24 hours to serve real-time stats.
type SalesWindow struct {
	mu         sync.Mutex
	counts     []int64
	revenue    []float64
	bucketSize time.Duration
	numBuckets int
	current    int
	lastUpdate time.Time
}

// NewSalesWindow creates a window of the given total size divided into
// numBuckets buckets.
func NewSalesWindow(windowSize time.Duration, numBuckets int) *SalesWindow {
	if numBuckets <= 0 {
		numBuckets = 60
	}
	if windowSize <= 0 {
		windowSize = time.Hour
	}
	return &SalesWindow{
		counts:     make([]int64, numBuckets),
		revenue:    make([]float64, numBuckets),
		bucketSize: windowSize / time.Duration(numBuckets),
		numBuckets: numBuckets,
		lastUpdate: time.Now(),
	}
}

// Record adds one sale with the given price to the current bucket.
func (w *SalesWindow) Record(price float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.advance()
	w.counts[w.current]++
	w.revenue[w.current] += price
}

// Totals returns the sale count and revenue within the window.
func (w *SalesWindow) Totals() (int64, float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.advance()

	var count int64
	var rev float64
	for i := range w.counts {
		count += w.counts[i]
		rev += w.revenue[i]
	}
	return count, rev
}

// Reset clears all buckets.
func (w *SalesWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range w.counts {
		w.counts[i] = 0
		w.revenue[i] = 0
	}
	w.current = 0
	w.lastUpdate = time.Now()
}

// advance moves the window forward based on elapsed time.
// Must be called with the lock held.
func (w *SalesWindow) advance() {
	now := time.Now()
	elapsed := now.Sub(w.lastUpdate)

	bucketsElapsed := int(elapsed / w.bucketSize)
	if bucketsElapsed <= 0 {
		return
	}

	if bucketsElapsed >= w.numBuckets {
		// Entire window has elapsed, clear all
		for i := range w.counts {
			w.counts[i] = 0
			w.revenue[i] = 0
		}
		w.current = 0
	} else {
		for i := 0; i < bucketsElapsed; i++ {
			w.current = (w.current + 1) % w.numBuckets
			w.counts[w.current] = 0
			w.revenue[w.current] = 0
		}
	}

	w.lastUpdate = now
}
