// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

// Package main is the entry point for the Vendwatch server.
//
// Vendwatch subscribes to a vending machine's real-time sales feed over
// WebSocket, persists every purchase event, and serves incremental analytics
// (period snapshots, live stats, inventory levels) over a REST and WebSocket
// API.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered load from defaults, config.yaml, and
//     VENDWATCH_* environment variables (Koanf v2)
//  2. Storage: BadgerDB primary with a JSON file fallback behind a
//     circuit breaker
//  3. Event bus: in-process Watermill pub/sub connecting ingestion to
//     inventory tracking and WebSocket broadcast
//  4. Analytics engine: in-memory working set rebuilt from the store
//  5. Inventory tracker: stock records rebuilt from the store
//  6. Stream client: reconnecting WebSocket subscription to the sales feed
//  7. HTTP server: REST API, WebSocket endpoint, Prometheus metrics
//
// All long-running components run under a suture supervisor tree, so a
// crash in one layer restarts that layer without taking the process down.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (VENDWATCH_SECTION_KEY)
//   - Config file (config.yaml, or VENDWATCH_CONFIG)
//   - Built-in defaults
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the stream client
// closes its connection, in-flight HTTP requests drain, and both storage
// backends are flushed and closed.
//
// # Example Usage
//
//	export VENDWATCH_STREAM_URL=wss://machine.example.com/feed
//	export VENDWATCH_STORE_PATH=/data/vendwatch
//	./vendwatch
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/tomtom215/vendwatch/internal/analytics"
	"github.com/tomtom215/vendwatch/internal/api"
	"github.com/tomtom215/vendwatch/internal/bus"
	"github.com/tomtom215/vendwatch/internal/catalog"
	"github.com/tomtom215/vendwatch/internal/config"
	"github.com/tomtom215/vendwatch/internal/inventory"
	"github.com/tomtom215/vendwatch/internal/logging"
	"github.com/tomtom215/vendwatch/internal/models"
	"github.com/tomtom215/vendwatch/internal/store"
	"github.com/tomtom215/vendwatch/internal/stream"
	"github.com/tomtom215/vendwatch/internal/supervisor"
	ws "github.com/tomtom215/vendwatch/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("stream_url", cfg.Stream.URL).
		Str("store_backend", cfg.Store.Backend).
		Str("store_path", cfg.Store.Path).
		Str("addr", cfg.Server.Addr()).
		Msg("Starting Vendwatch")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage: primary backend plus file fallback behind a circuit breaker.
	var (
		primary     store.Store
		badgerStore *store.BadgerStore
	)
	switch cfg.Store.Backend {
	case "badger":
		badgerCfg := store.DefaultBadgerConfig(cfg.Store.Path)
		badgerCfg.SyncWrites = cfg.Store.SyncWrites
		badgerCfg.Retention = cfg.Store.RetentionWindow()
		badgerStore, err = store.OpenBadger(badgerCfg)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open badger store")
		}
		primary = badgerStore
	case "file":
		primary, err = store.OpenFile(cfg.Store.Path, cfg.Store.FallbackCap)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open file store")
		}
	default:
		logging.Fatal().Str("backend", cfg.Store.Backend).Msg("Unknown store backend")
	}

	fallback, err := store.OpenFile(cfg.Store.FallbackPath, cfg.Store.FallbackCap)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Store.FallbackPath).Msg("Failed to open fallback store")
	}

	resilient := store.NewResilient(primary, fallback)
	defer func() {
		if err := resilient.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing stores")
		}
	}()

	eventBus := bus.New()
	defer func() {
		if err := eventBus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	engine := analytics.NewEngine(analytics.Config{CacheTTL: cfg.Analytics.CacheTTL}, resilient, catalog.Default(), eventBus)
	if err := engine.Load(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to load event history")
	}
	logging.Info().Int("events", engine.EventCount()).Msg("Event history loaded")

	tracker := inventory.NewTracker(inventory.Config{
		AutoTrack:       cfg.Inventory.AutoTrack,
		AlertCooldown:   cfg.Inventory.AlertCooldown,
		DefaultMinStock: cfg.Inventory.DefaultMinStock,
	}, resilient, eventBus)
	if err := tracker.Load(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to load inventory records")
	}

	hub := ws.NewHub()

	streamClient, err := stream.NewClient(stream.Config{
		URL:               cfg.Stream.URL,
		ConnectTimeout:    cfg.Stream.ConnectTimeout,
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		BaseBackoff:       cfg.Stream.BaseBackoff,
		MaxBackoff:        cfg.Stream.MaxBackoff,
		MaxAttempts:       cfg.Stream.MaxAttempts,
		QueueLimit:        cfg.Stream.QueueLimit,
	}, stream.Callbacks{
		OnStateChange: func(prev, next stream.State) {
			logging.Info().
				Str("from", prev.String()).
				Str("to", next.String()).
				Msg("Stream state changed")
		},
		OnMessage: func(msg models.StreamMessage) {
			if msg.Sale == nil {
				return
			}
			if _, err := engine.AddSale(ctx, msg.Sale); err != nil {
				logging.Warn().Err(err).Msg("Sale rejected at ingestion")
			}
		},
		OnError: func(err error) {
			logging.Warn().Err(err).Msg("Stream error, will retry")
		},
		OnGiveUp: func() {
			logging.Error().Msg("Stream client gave up; serving stored data only")
		},
	})
	if err != nil {
		logging.Fatal().Err(err).Str("url", cfg.Stream.URL).Msg("Invalid stream configuration")
	}

	handlers := api.NewHandlers(engine, tracker, resilient, hub, streamClient)
	router := api.NewRouter(cfg.Server, handlers)
	server := api.NewServer(cfg.Server, router)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddIngestService(supervisor.NewStreamService(streamClient))
	tree.AddIngestService(supervisor.NewRelayService(engine, tracker, hub, eventBus))
	if badgerStore != nil {
		tree.AddIngestService(supervisor.NewRetentionService(badgerStore))
	}
	tree.AddMessagingService(supervisor.NewHubService(hub))
	tree.AddAPIService(server)

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
	}

	logging.Info().Msg("Vendwatch stopped")
}
