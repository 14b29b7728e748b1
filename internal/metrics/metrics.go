// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Stream connection lifecycle and message classification
// - Store write path (primary/fallback/dropped) and breaker state
// - Analytics snapshot generation and cache efficiency
// - Inventory alerts
// - API endpoint latency and WebSocket fan-out

var (
	// Stream Metrics
	StreamConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_connection_state",
			Help: "Current stream connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)",
		},
	)

	StreamReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_reconnect_attempts_total",
			Help: "Total number of stream reconnection attempts",
		},
	)

	StreamMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_messages_received_total",
			Help: "Total number of stream messages received by classification",
		},
		[]string{"kind"}, // "sale", "malformed", "other"
	)

	StreamMessagesQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_send_queue_depth",
			Help: "Messages waiting in the outbound queue for the next connection",
		},
	)

	// Store Metrics
	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_writes_total",
			Help: "Total number of store writes by backend",
		},
		[]string{"backend"}, // "primary", "fallback"
	)

	StoreDroppedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_dropped_events_total",
			Help: "Events dropped after both store backends failed",
		},
	)

	StoreBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "store_breaker_state",
			Help: "Circuit breaker state in front of the primary store (1=current state)",
		},
		[]string{"state"},
	)

	StoreEventCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_events",
			Help: "Number of events in the primary store",
		},
	)

	// Analytics Metrics
	SnapshotDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analytics_snapshot_duration_seconds",
			Help:    "Time to compute an analytics snapshot",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"period"},
	)

	SnapshotCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_snapshot_cache_hits_total",
			Help: "Total number of snapshot cache hits",
		},
	)

	SnapshotCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_snapshot_cache_misses_total",
			Help: "Total number of snapshot cache misses",
		},
	)

	EventsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_events_ingested_total",
			Help: "Total number of purchase events accepted by the analytics engine",
		},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_events_rejected_total",
			Help: "Total number of purchase events rejected at validation",
		},
		[]string{"reason"},
	)

	// Inventory Metrics
	InventoryAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_alerts_total",
			Help: "Total number of stock alerts emitted by severity",
		},
		[]string{"severity"}, // "low", "out"
	)

	InventoryProducts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventory_products",
			Help: "Number of active products being tracked",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// WebSocket Metrics
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Current number of connected WebSocket clients",
		},
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages broadcast by type",
		},
		[]string{"type"},
	)

	// Bus Metrics
	BusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_published_total",
			Help: "Total number of messages published to the in-process bus",
		},
		[]string{"topic"},
	)
)

// RecordStreamState updates the connection state gauge.
func RecordStreamState(state int) {
	StreamConnectionState.Set(float64(state))
}

// RecordStreamMessage records a received stream message by classification.
func RecordStreamMessage(kind string) {
	StreamMessagesReceived.WithLabelValues(kind).Inc()
}

// RecordStreamReconnect records one reconnection attempt.
func RecordStreamReconnect() {
	StreamReconnectAttempts.Inc()
}

// RecordStoreWrite records a successful write on the given backend.
func RecordStoreWrite(backend string) {
	StoreWrites.WithLabelValues(backend).Inc()
}

// RecordStoreDrop records an event dropped after both backends failed.
func RecordStoreDrop() {
	StoreDroppedEvents.Inc()
}

// RecordStoreBreakerState marks the given breaker state current.
func RecordStoreBreakerState(state string) {
	StoreBreakerState.Reset()
	StoreBreakerState.WithLabelValues(state).Set(1)
}

// RecordSnapshot records snapshot computation time and cache outcome.
func RecordSnapshot(period string, duration time.Duration, cached bool) {
	if cached {
		SnapshotCacheHits.Inc()
		return
	}
	SnapshotCacheMisses.Inc()
	SnapshotDuration.WithLabelValues(period).Observe(duration.Seconds())
}

// RecordIngest records an accepted purchase event.
func RecordIngest() {
	EventsIngested.Inc()
}

// RecordReject records a rejected purchase event.
func RecordReject(reason string) {
	EventsRejected.WithLabelValues(reason).Inc()
}

// RecordInventoryAlert records an emitted stock alert.
func RecordInventoryAlert(severity string) {
	InventoryAlerts.WithLabelValues(severity).Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordWSBroadcast records one broadcast message by type.
func RecordWSBroadcast(msgType string) {
	WSMessagesSent.WithLabelValues(msgType).Inc()
}

// RecordBusPublish records one in-process bus publish.
func RecordBusPublish(topic string) {
	BusPublished.WithLabelValues(topic).Inc()
}
