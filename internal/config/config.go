// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

// Package config holds the process configuration, loaded from layered
// sources: built-in defaults, an optional YAML file, then environment
// variables.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration.
type Config struct {
	Stream    StreamConfig    `koanf:"stream"`
	Store     StoreConfig     `koanf:"store"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Inventory InventoryConfig `koanf:"inventory"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// StreamConfig configures the feed client.
type StreamConfig struct {
	// URL of the purchase event feed (ws:// or wss://).
	URL string `koanf:"url"`

	ConnectTimeout    time.Duration `koanf:"connect_timeout"`
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	BaseBackoff       time.Duration `koanf:"base_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`

	// MaxAttempts bounds consecutive reconnects; 0 retries forever.
	MaxAttempts int `koanf:"max_attempts"`
	QueueLimit  int `koanf:"queue_limit"`
}

// StoreConfig configures the durable event store.
type StoreConfig struct {
	// Backend selects the primary: "badger" or "file".
	Backend string `koanf:"backend"`

	Path       string `koanf:"path"`
	SyncWrites bool   `koanf:"sync_writes"`

	// RetentionDays ages sales out of the badger backend; 0 disables.
	RetentionDays int `koanf:"retention_days"`

	// FallbackPath enables the flat-file fallback when non-empty.
	FallbackPath string `koanf:"fallback_path"`
	FallbackCap  int    `koanf:"fallback_cap"`
}

// RetentionWindow converts RetentionDays to a duration. 0 disables ageing.
func (c StoreConfig) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// AnalyticsConfig configures the analytics engine.
type AnalyticsConfig struct {
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// InventoryConfig configures the stock tracker.
type InventoryConfig struct {
	AutoTrack       bool          `koanf:"auto_track"`
	AlertCooldown   time.Duration `koanf:"alert_cooldown"`
	DefaultMinStock int           `koanf:"default_min_stock"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks cross-field constraints after loading.
func (c *Config) Validate() error {
	if c.Stream.URL != "" {
		u, err := url.Parse(c.Stream.URL)
		if err != nil {
			return fmt.Errorf("stream.url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("stream.url scheme %q: want ws or wss", u.Scheme)
		}
	}
	if c.Stream.MaxAttempts < 0 {
		return fmt.Errorf("stream.max_attempts must be >= 0")
	}
	if c.Stream.BaseBackoff > c.Stream.MaxBackoff {
		return fmt.Errorf("stream.base_backoff exceeds stream.max_backoff")
	}

	switch c.Store.Backend {
	case "badger", "file":
	default:
		return fmt.Errorf("store.backend %q: want badger or file", c.Store.Backend)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Store.RetentionDays < 0 {
		return fmt.Errorf("store.retention_days must be >= 0")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q unrecognized", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q: want json or console", c.Logging.Format)
	}

	return nil
}

// Addr returns the HTTP listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
