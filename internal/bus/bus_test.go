// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/vendwatch/internal/models"
)

func TestPublishSaleReachesSubscriber(t *testing.T) {
	b := New()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sales, err := b.SubscribeSales(ctx)
	if err != nil {
		t.Fatalf("SubscribeSales: %v", err)
	}

	want := models.PurchaseEvent{
		ID:          "ev-1",
		ProductName: "Cola",
		Price:       1.50,
		Timestamp:   time.Now().UnixMilli(),
		Category:    "beverages",
	}
	if err := b.PublishSale(want); err != nil {
		t.Fatalf("PublishSale: %v", err)
	}

	select {
	case got := <-sales:
		if got.ID != want.ID || got.ProductName != want.ProductName || got.Price != want.Price {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sale never delivered")
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	b := New()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alerts, err := b.SubscribeAlerts(ctx)
	if err != nil {
		t.Fatalf("SubscribeAlerts: %v", err)
	}

	if err := b.PublishSale(models.PurchaseEvent{ID: "ev-1", ProductName: "Chips"}); err != nil {
		t.Fatalf("PublishSale: %v", err)
	}
	if err := b.PublishAlert(models.StockAlert{RecordID: "p1", Level: models.StockOut}); err != nil {
		t.Fatalf("PublishAlert: %v", err)
	}

	select {
	case alert := <-alerts:
		if alert.RecordID != "p1" {
			t.Fatalf("got alert %+v, want p1", alert)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alert never delivered")
	}

	select {
	case alert := <-alerts:
		t.Fatalf("unexpected second alert %+v", alert)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishAfterClose(t *testing.T) {
	b := New()
	b.Close()

	if err := b.PublishSale(models.PurchaseEvent{ID: "x"}); err == nil {
		t.Fatal("expected error publishing on closed bus")
	}
}

func TestSubscriberChannelClosesOnCancel(t *testing.T) {
	b := New()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sales, err := b.SubscribeSales(ctx)
	if err != nil {
		t.Fatalf("SubscribeSales: %v", err)
	}

	cancel()
	select {
	case _, ok := <-sales:
		if ok {
			t.Fatal("expected closed channel after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel never closed")
	}
}
