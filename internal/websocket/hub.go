// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

// Package websocket pushes live updates to dashboard clients: recorded
// sales, rate-limited stats refreshes, and inventory alerts.
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/vendwatch/internal/logging"
	"github.com/tomtom215/vendwatch/internal/metrics"
	"github.com/tomtom215/vendwatch/internal/models"
)

// Message types pushed to dashboard clients.
const (
	MessageTypeSale           = "sale"
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
	MessageTypeStatsUpdate    = "stats_update"
	MessageTypeInventoryAlert = "inventory_alert"
)

// Message is the envelope for every frame sent to clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and fans broadcasts out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	// statsLimiter throttles stats_update frames; every sale would
	// otherwise trigger one.
	statsLimiter *rate.Limiter
}

// NewHub creates an idle hub. Run it under the supervisor via
// RunWithContext.
func NewHub() *Hub {
	return &Hub{
		broadcast:    make(chan Message, 256),
		Register:     make(chan *Client),
		Unregister:   make(chan *Client),
		clients:      make(map[*Client]bool),
		statsLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// RunWithContext runs the hub loop until ctx is canceled, then closes all
// clients and returns ctx.Err() so the supervisor sees a clean stop.
//
// Selection is priority ordered: shutdown first, then client lifecycle,
// then broadcasts. Client state is always settled before messages flow.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnectionsActive.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnectionsActive.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	metrics.WSConnectionsActive.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", len(clients)).
		Msg("websocket hub stopped")
}

// broadcastToClients delivers to clients in ID order. A client whose send
// buffer is full is dropped rather than allowed to stall the fan-out.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		logging.Warn().Msg("websocket client send buffer full, dropping client")
	}
}

func (h *Hub) enqueue(message Message) {
	select {
	case h.broadcast <- message:
		metrics.RecordWSBroadcast(message.Type)
	default:
		logging.Warn().Str("message_type", message.Type).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastSale pushes one recorded purchase to all clients.
func (h *Hub) BroadcastSale(event models.PurchaseEvent) {
	h.enqueue(Message{Type: MessageTypeSale, Data: event})
}

// BroadcastAlert pushes an inventory alert to all clients.
func (h *Hub) BroadcastAlert(alert models.StockAlert) {
	h.enqueue(Message{Type: MessageTypeInventoryAlert, Data: alert})
}

// StatsUpdateData is the stats_update payload.
type StatsUpdateData struct {
	Timestamp string               `json:"timestamp"`
	Stats     models.RealTimeStats `json:"stats"`
}

// BroadcastStats pushes a real-time stats refresh, throttled to one frame
// per second across all triggers.
func (h *Hub) BroadcastStats(stats models.RealTimeStats) {
	if !h.statsLimiter.Allow() {
		return
	}
	h.enqueue(Message{
		Type: MessageTypeStatsUpdate,
		Data: StatsUpdateData{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Stats:     stats,
		},
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
