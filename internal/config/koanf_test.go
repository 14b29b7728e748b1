// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Store.Backend != "badger" {
		t.Fatalf("store.backend = %q, want badger", cfg.Store.Backend)
	}
	if cfg.Stream.MaxBackoff != 30*time.Second {
		t.Fatalf("stream.max_backoff = %v, want 30s", cfg.Stream.MaxBackoff)
	}
	if !cfg.Inventory.AutoTrack {
		t.Fatal("inventory.auto_track default must be true")
	}
	if cfg.Inventory.DefaultMinStock != 5 {
		t.Fatalf("inventory.default_min_stock = %d, want 5", cfg.Inventory.DefaultMinStock)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 9090\nstream:\n  url: ws://machine.local/feed\nlogging:\n  level: debug\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("server.port = %d, want file override 9090", cfg.Server.Port)
	}
	if cfg.Stream.URL != "ws://machine.local/feed" {
		t.Fatalf("stream.url = %q", cfg.Stream.URL)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging.level = %q, want debug", cfg.Logging.Level)
	}
	// Untouched sections keep defaults.
	if cfg.Store.FallbackCap != 200 {
		t.Fatalf("store.fallback_cap = %d, want default 200", cfg.Store.FallbackCap)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("VENDWATCH_SERVER_PORT", "7070")
	t.Setenv("VENDWATCH_LOGGING_FORMAT", "console")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("server.port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("logging.format = %q, want console", cfg.Logging.Format)
	}
}

func TestCORSOriginsFromEnv(t *testing.T) {
	t.Setenv("VENDWATCH_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != "https://a.example" {
		t.Fatalf("cors_origins = %v", cfg.Server.CORSOrigins)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Stream.URL = "http://not-ws" },
		func(c *Config) { c.Store.Backend = "sqlite" },
		func(c *Config) { c.Store.Path = "" },
		func(c *Config) { c.Server.Port = 0 },
		func(c *Config) { c.Logging.Level = "verbose" },
		func(c *Config) { c.Logging.Format = "text" },
		func(c *Config) { c.Stream.BaseBackoff = time.Minute },
	}
	for i, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: invalid config accepted", i)
		}
	}
}
