// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/vendwatch/internal/analytics"
	"github.com/tomtom215/vendwatch/internal/config"
	"github.com/tomtom215/vendwatch/internal/inventory"
	"github.com/tomtom215/vendwatch/internal/models"
	"github.com/tomtom215/vendwatch/internal/store"
	"github.com/tomtom215/vendwatch/internal/websocket"
)

type testEnv struct {
	engine  *analytics.Engine
	tracker *inventory.Tracker
	server  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.OpenFile(t.TempDir(), 500)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	engine := analytics.NewEngine(analytics.Config{}, s, nil, nil)
	tracker := inventory.NewTracker(inventory.Config{AutoTrack: true, DefaultMinStock: 3}, s, nil)

	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.RunWithContext(ctx) //nolint:errcheck

	handlers := NewHandlers(engine, tracker, s, hub, nil)
	router := NewRouter(config.ServerConfig{
		RateLimitReqs:   1000,
		RateLimitWindow: time.Minute,
		CORSOrigins:     []string{"*"},
	}, handlers)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{engine: engine, tracker: tracker, server: srv}
}

func (env *testEnv) addSale(t *testing.T, name string, price float64, at time.Time) {
	t.Helper()
	_, err := env.engine.AddSale(context.Background(), &models.ValidatedSale{
		ProductName: name,
		Price:       price,
		Timestamp:   at.UnixMilli(),
	})
	if err != nil {
		t.Fatalf("AddSale(%s): %v", name, err)
	}
}

func (env *testEnv) get(t *testing.T, path string) (*http.Response, models.APIResponse) {
	t.Helper()
	resp, err := http.Get(env.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var envelope models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil && resp.StatusCode != http.StatusNotModified {
		t.Fatalf("decode %s: %v", path, err)
	}
	return resp, envelope
}

func (env *testEnv) send(t *testing.T, method, path string, body interface{}) (*http.Response, models.APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, env.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var envelope models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return resp, envelope
}

func reencode(t *testing.T, data interface{}, into interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	env.addSale(t, "Cola", 1.50, now)
	env.addSale(t, "Chips", 2.00, now)

	resp, envelope := env.get(t, "/api/v1/snapshot/today")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if envelope.Status != "success" {
		t.Fatalf("envelope status = %q", envelope.Status)
	}

	var snapshot models.AnalyticsSnapshot
	reencode(t, envelope.Data, &snapshot)
	if snapshot.TotalSales != 2 {
		t.Errorf("TotalSales = %d, want 2", snapshot.TotalSales)
	}
	if snapshot.TotalRevenue != 3.50 {
		t.Errorf("TotalRevenue = %v, want 3.50", snapshot.TotalRevenue)
	}
}

func TestSnapshotRejectsUnknownPeriod(t *testing.T) {
	env := newTestEnv(t)

	resp, envelope := env.get(t, "/api/v1/snapshot/fortnight")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != "invalid_period" {
		t.Fatalf("error = %+v, want invalid_period", envelope.Error)
	}
}

func TestSnapshotETagRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.addSale(t, "Cola", 1.50, time.Now())

	first, _ := env.get(t, "/api/v1/snapshot/all")
	etag := first.Header.Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag header")
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/snapshot/all", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", resp.StatusCode)
	}
}

func TestRealTimeStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.addSale(t, "Water", 1.00, time.Now())

	resp, envelope := env.get(t, "/api/v1/stats/realtime")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var stats models.RealTimeStats
	reencode(t, envelope.Data, &stats)
	if stats.TotalSales != 1 || !stats.IsActive {
		t.Errorf("stats = %+v, want 1 sale and active", stats)
	}
}

func TestEventsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	base := time.Now().Add(-time.Hour)
	env.addSale(t, "Cola", 1.50, base)
	env.addSale(t, "Chips", 2.00, base.Add(time.Minute))
	env.addSale(t, "Cola Zero", 1.75, base.Add(2*time.Minute))

	resp, envelope := env.get(t, "/api/v1/events?limit=2")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var payload struct {
		Events []models.PurchaseEvent `json:"events"`
		Count  int                    `json:"count"`
	}
	reencode(t, envelope.Data, &payload)

	if payload.Count != 2 {
		t.Fatalf("count = %d, want 2", payload.Count)
	}
	// Default order is newest first.
	if payload.Events[0].ProductName != "Cola Zero" {
		t.Errorf("first event = %q, want Cola Zero", payload.Events[0].ProductName)
	}
}

func TestEventsProductFilter(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	env.addSale(t, "Cola", 1.50, now)
	env.addSale(t, "Cola Zero", 1.75, now)
	env.addSale(t, "Chips", 2.00, now)

	_, envelope := env.get(t, "/api/v1/events?product=cola")

	var payload struct {
		Events []models.PurchaseEvent `json:"events"`
		Count  int                    `json:"count"`
	}
	reencode(t, envelope.Data, &payload)

	if payload.Count != 2 {
		t.Fatalf("count = %d, want 2 cola events", payload.Count)
	}
	for _, ev := range payload.Events {
		if ev.ProductName == "Chips" {
			t.Errorf("filter leaked %q", ev.ProductName)
		}
	}
}

func TestInventoryCreateAndGet(t *testing.T) {
	env := newTestEnv(t)

	resp, envelope := env.send(t, http.MethodPost, "/api/v1/inventory", inventory.ProductInput{
		Name:     "Cola",
		Stock:    10,
		MinStock: 3,
		Price:    1.50,
		Category: "beverages",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var created models.InventoryRecord
	reencode(t, envelope.Data, &created)
	if created.ID == "" || created.CurrentStock != 10 {
		t.Fatalf("created = %+v", created)
	}

	getResp, getEnvelope := env.get(t, "/api/v1/inventory/"+created.ID)
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", getResp.StatusCode)
	}
	var fetched models.InventoryRecord
	reencode(t, getEnvelope.Data, &fetched)
	if fetched.Name != "Cola" {
		t.Errorf("fetched name = %q", fetched.Name)
	}
}

func TestInventoryCreateValidationFailure(t *testing.T) {
	env := newTestEnv(t)

	resp, envelope := env.send(t, http.MethodPost, "/api/v1/inventory", inventory.ProductInput{
		Name:  "",
		Stock: -5,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != "validation_failed" {
		t.Fatalf("error = %+v, want validation_failed", envelope.Error)
	}
	if len(envelope.Error.Details) == 0 {
		t.Error("expected per-field details")
	}
}

func TestInventoryGetUnknownIs404(t *testing.T) {
	env := newTestEnv(t)

	resp, envelope := env.get(t, "/api/v1/inventory/no-such-id")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != "not_found" {
		t.Fatalf("error = %+v, want not_found", envelope.Error)
	}
}

func TestInventorySetStock(t *testing.T) {
	env := newTestEnv(t)
	record, err := env.tracker.AddProduct(context.Background(), inventory.ProductInput{
		Name: "Water", Stock: 2, MinStock: 1, Price: 1.00,
	})
	if err != nil {
		t.Fatalf("AddProduct: %v", err)
	}

	resp, envelope := env.send(t, http.MethodPut, "/api/v1/inventory/"+record.ID+"/stock",
		stockUpdateRequest{Stock: 20, Reason: "restock visit"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var updated models.InventoryRecord
	reencode(t, envelope.Data, &updated)
	if updated.CurrentStock != 20 {
		t.Errorf("CurrentStock = %d, want 20", updated.CurrentStock)
	}
	if updated.LastRestocked.IsZero() {
		t.Error("LastRestocked not set after restock")
	}
}

func TestInventoryDelete(t *testing.T) {
	env := newTestEnv(t)
	record, err := env.tracker.AddProduct(context.Background(), inventory.ProductInput{
		Name: "Chips", Stock: 5, Price: 2.00,
	})
	if err != nil {
		t.Fatalf("AddProduct: %v", err)
	}

	resp, _ := env.send(t, http.MethodDelete, "/api/v1/inventory/"+record.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	// Soft delete keeps the record, inactive.
	got, err := env.tracker.Get(record.ID)
	if err != nil {
		t.Fatalf("Get after soft delete: %v", err)
	}
	if got.IsActive {
		t.Error("record still active after soft delete")
	}

	hardResp, _ := env.send(t, http.MethodDelete, "/api/v1/inventory/"+record.ID+"?hard=true", nil)
	if hardResp.StatusCode != http.StatusOK {
		t.Fatalf("hard delete status = %d, want 200", hardResp.StatusCode)
	}
	if _, err := env.tracker.Get(record.ID); err == nil {
		t.Error("record survived hard delete")
	}
}

func TestInventoryStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.tracker.AddProduct(ctx, inventory.ProductInput{Name: "Cola", Stock: 10, Price: 1.50}); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	if _, err := env.tracker.AddProduct(ctx, inventory.ProductInput{Name: "Chips", Stock: 4, Price: 2.00}); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}

	_, envelope := env.get(t, "/api/v1/inventory/stats")

	var stats models.InventoryStats
	reencode(t, envelope.Data, &stats)
	if stats.TotalProducts != 2 || stats.TotalStock != 14 {
		t.Errorf("stats = %+v, want 2 products with 14 units", stats)
	}
}

func TestInventorySearchRequiresQuery(t *testing.T) {
	env := newTestEnv(t)

	resp, envelope := env.get(t, "/api/v1/inventory/search")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != "missing_query" {
		t.Fatalf("error = %+v, want missing_query", envelope.Error)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.addSale(t, "Cola", 1.50, time.Now())

	resp, envelope := env.get(t, "/api/v1/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var payload struct {
		Status     string `json:"status"`
		EventCount int    `json:"eventCount"`
		Stream     struct {
			State string `json:"state"`
		} `json:"stream"`
	}
	reencode(t, envelope.Data, &payload)

	if payload.Status != "ok" {
		t.Errorf("status = %q, want ok", payload.Status)
	}
	if payload.EventCount != 1 {
		t.Errorf("eventCount = %d, want 1", payload.EventCount)
	}
	// No stream client wired in tests.
	if payload.Stream.State != "disconnected" {
		t.Errorf("stream state = %q, want disconnected", payload.Stream.State)
	}
}

func TestMetricsEndpointServesPrometheus(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestInvalidBodyRejected(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/api/v1/inventory",
		bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
