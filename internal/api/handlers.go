// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/vendwatch/internal/analytics"
	"github.com/tomtom215/vendwatch/internal/inventory"
	"github.com/tomtom215/vendwatch/internal/models"
	"github.com/tomtom215/vendwatch/internal/store"
	"github.com/tomtom215/vendwatch/internal/stream"
	"github.com/tomtom215/vendwatch/internal/validation"
	"github.com/tomtom215/vendwatch/internal/websocket"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// StreamStatus reports the upstream feed connection for the health payload.
type StreamStatus interface {
	State() stream.State
	QueuedMessages() int
}

// Handlers binds the HTTP endpoints to the analytics engine, inventory
// tracker, event store, and WebSocket hub.
type Handlers struct {
	engine    *analytics.Engine
	tracker   *inventory.Tracker
	events    store.EventStore
	hub       *websocket.Hub
	upstream  StreamStatus // nil when the process runs without a feed
	startedAt time.Time
}

// NewHandlers creates the handler set. upstream may be nil.
func NewHandlers(engine *analytics.Engine, tracker *inventory.Tracker, events store.EventStore, hub *websocket.Hub, upstream StreamStatus) *Handlers {
	return &Handlers{
		engine:    engine,
		tracker:   tracker,
		events:    events,
		hub:       hub,
		upstream:  upstream,
		startedAt: time.Now(),
	}
}

// GetSnapshot returns the analytics snapshot for the requested period.
// GET /api/v1/snapshot/{period}
func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	raw := getURLParam(r, "period")
	period, ok := models.ParsePeriod(raw)
	if !ok {
		respondError(w, r, http.StatusBadRequest, "invalid_period",
			"period must be one of: today, week, month, all")
		return
	}

	fresh := r.URL.Query().Get("fresh") == "true"
	snapshot := h.engine.Snapshot(period, !fresh)
	respondJSON(w, r, http.StatusOK, snapshot)
}

// GetRealTimeStats returns activity counters computed over the working set.
// GET /api/v1/stats/realtime
func (h *Handlers) GetRealTimeStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, h.engine.RealTimeStats())
}

// GetEvents returns stored purchase events, newest first by default.
// GET /api/v1/events?limit=&product=&order=
func (h *Handlers) GetEvents(w http.ResponseWriter, r *http.Request) {
	limit := getIntParam(r, "limit", defaultEventLimit, maxEventLimit)
	product := strings.TrimSpace(r.URL.Query().Get("product"))
	order := r.URL.Query().Get("order")

	opts := store.QueryOptions{Limit: limit}
	if product != "" {
		needle := strings.ToLower(product)
		opts.Filter = func(e models.PurchaseEvent) bool {
			return strings.Contains(strings.ToLower(e.ProductName), needle)
		}
	}
	if order != "asc" {
		opts.Sort = func(a, b models.PurchaseEvent) bool {
			return a.Timestamp > b.Timestamp
		}
	}

	events, err := h.events.Query(r.Context(), opts)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "store_failure", "could not read events")
		return
	}
	if events == nil {
		events = []models.PurchaseEvent{}
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// ListInventory returns inventory records in insertion order.
// GET /api/v1/inventory?includeInactive=true
func (h *Handlers) ListInventory(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("includeInactive") == "true"
	respondJSON(w, r, http.StatusOK, h.tracker.List(includeInactive))
}

// CreateProduct adds an inventory record.
// POST /api/v1/inventory
func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var input inventory.ProductInput
	if !decodeBody(w, r, &input) {
		return
	}

	record, err := h.tracker.AddProduct(r.Context(), input)
	if err != nil {
		h.respondTrackerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, record)
}

// GetProduct returns one inventory record by ID.
// GET /api/v1/inventory/{id}
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	record, err := h.tracker.Get(getURLParam(r, "id"))
	if err != nil {
		h.respondTrackerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, record)
}

// UpdateProduct replaces an inventory record's mutable fields.
// PUT /api/v1/inventory/{id}
func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var input inventory.ProductInput
	if !decodeBody(w, r, &input) {
		return
	}

	record, err := h.tracker.UpdateProduct(r.Context(), getURLParam(r, "id"), input)
	if err != nil {
		h.respondTrackerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, record)
}

// stockUpdateRequest is the body for PUT /api/v1/inventory/{id}/stock.
type stockUpdateRequest struct {
	Stock  int    `json:"stock"`
	Reason string `json:"reason"`
}

// SetStock sets a record's stock level directly, e.g. after a restock visit.
// PUT /api/v1/inventory/{id}/stock
func (h *Handlers) SetStock(w http.ResponseWriter, r *http.Request) {
	var req stockUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	record, err := h.tracker.SetStock(r.Context(), getURLParam(r, "id"), req.Stock, req.Reason)
	if err != nil {
		h.respondTrackerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, record)
}

// DeleteProduct deactivates a record, or deletes it outright with ?hard=true.
// DELETE /api/v1/inventory/{id}
func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	hard := r.URL.Query().Get("hard") == "true"
	if err := h.tracker.RemoveProduct(r.Context(), getURLParam(r, "id"), hard); err != nil {
		h.respondTrackerError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{"removed": true, "hard": hard})
}

// GetInventoryStats returns aggregate stock figures for active records.
// GET /api/v1/inventory/stats
func (h *Handlers) GetInventoryStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, h.tracker.Stats())
}

// SearchInventory returns active records whose name contains the query.
// GET /api/v1/inventory/search?q=
func (h *Handlers) SearchInventory(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, r, http.StatusBadRequest, "missing_query", "query parameter q is required")
		return
	}
	respondJSON(w, r, http.StatusOK, h.tracker.Search(q))
}

// ServeWS upgrades the connection and attaches it to the broadcast hub.
// GET /ws
func (h *Handlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWS(h.hub, w, r)
}

// GetHealth reports liveness plus a few operational gauges.
// GET /api/v1/health
func (h *Handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	streamState := stream.StateDisconnected.String()
	queued := 0
	if h.upstream != nil {
		streamState = h.upstream.State().String()
		queued = h.upstream.QueuedMessages()
	}

	count, rate := h.engine.IngestRate()
	cacheStats := h.engine.CacheStats()

	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"uptimeSeconds": int64(time.Since(h.startedAt).Seconds()),
		"eventCount":    h.engine.EventCount(),
		"stream": map[string]interface{}{
			"state":  streamState,
			"queued": queued,
		},
		"ingest": map[string]interface{}{
			"salesLastHour":   count,
			"revenueLastHour": rate,
		},
		"cache": map[string]interface{}{
			"hits":      cacheStats.Hits,
			"misses":    cacheStats.Misses,
			"evictions": cacheStats.Evictions,
		},
		"wsClients": h.hub.ClientCount(),
	})
}

// respondTrackerError maps inventory errors to HTTP statuses.
func (h *Handlers) respondTrackerError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.StructError
	switch {
	case errors.As(err, &verr):
		respondValidationError(w, r, verr)
	case errors.Is(err, inventory.ErrNotFound):
		respondError(w, r, http.StatusNotFound, "not_found", "no inventory record with that ID")
	default:
		respondError(w, r, http.StatusInternalServerError, "inventory_failure", "inventory operation failed")
	}
}
