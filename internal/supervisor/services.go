// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package supervisor

import (
	"context"
	"errors"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/vendwatch/internal/analytics"
	"github.com/tomtom215/vendwatch/internal/bus"
	"github.com/tomtom215/vendwatch/internal/inventory"
	"github.com/tomtom215/vendwatch/internal/logging"
	"github.com/tomtom215/vendwatch/internal/store"
	"github.com/tomtom215/vendwatch/internal/stream"
	"github.com/tomtom215/vendwatch/internal/websocket"
)

// StreamService runs the upstream feed client under supervision. A network
// failure restarts the client with fresh backoff state; a permanent give-up
// removes the service so the rest of the process keeps serving.
type StreamService struct {
	client *stream.Client
}

// NewStreamService wraps a stream client as a suture service.
func NewStreamService(client *stream.Client) *StreamService {
	return &StreamService{client: client}
}

// Serve implements suture.Service.
func (s *StreamService) Serve(ctx context.Context) error {
	err := s.client.Run(ctx)
	if errors.Is(err, stream.ErrGaveUp) {
		logging.Error().Err(err).Msg("Stream client exhausted reconnect attempts, not restarting")
		return suture.ErrDoNotRestart
	}
	return err
}

// String names the service in supervisor logs.
func (s *StreamService) String() string {
	return "stream-client"
}

// HubService runs the WebSocket broadcast hub under supervision.
type HubService struct {
	hub *websocket.Hub
}

// NewHubService wraps the hub as a suture service.
func NewHubService(hub *websocket.Hub) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String names the service in supervisor logs.
func (s *HubService) String() string {
	return "websocket-hub"
}

// RetentionService runs the badger retention and value-log GC loop.
type RetentionService struct {
	store *store.BadgerStore
}

// NewRetentionService wraps the badger retention loop as a suture service.
func NewRetentionService(s *store.BadgerStore) *RetentionService {
	return &RetentionService{store: s}
}

// Serve implements suture.Service.
func (s *RetentionService) Serve(ctx context.Context) error {
	return s.store.RunRetention(ctx)
}

// String names the service in supervisor logs.
func (s *RetentionService) String() string {
	return "store-retention"
}

// RelayService consumes the internal event bus and fans events out to the
// inventory tracker and WebSocket clients. Keeping this off the ingestion
// path means a slow broadcast never blocks the stream client.
type RelayService struct {
	engine  *analytics.Engine
	tracker *inventory.Tracker
	hub     *websocket.Hub
	bus     *bus.Bus
}

// NewRelayService creates the bus-to-hub relay.
func NewRelayService(engine *analytics.Engine, tracker *inventory.Tracker, hub *websocket.Hub, eventBus *bus.Bus) *RelayService {
	return &RelayService{engine: engine, tracker: tracker, hub: hub, bus: eventBus}
}

// Serve implements suture.Service. Blocks until the context is cancelled
// or the bus closes.
func (s *RelayService) Serve(ctx context.Context) error {
	sales, err := s.bus.SubscribeSales(ctx)
	if err != nil {
		return err
	}
	alerts, err := s.bus.SubscribeAlerts(ctx)
	if err != nil {
		return err
	}

	logging.Info().Msg("Event relay started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-sales:
			if !ok {
				return ctx.Err()
			}
			s.tracker.HandleSale(ctx, event)
			s.hub.BroadcastSale(event)
			s.hub.BroadcastStats(s.engine.RealTimeStats())
		case alert, ok := <-alerts:
			if !ok {
				return ctx.Err()
			}
			s.hub.BroadcastAlert(alert)
		}
	}
}

// String names the service in supervisor logs.
func (s *RelayService) String() string {
	return "event-relay"
}
