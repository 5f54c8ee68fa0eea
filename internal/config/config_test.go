// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration invalid: %v", err)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("default backend = %q, want memory", cfg.Storage.Backend)
	}
	if cfg.Server.Port != 8372 {
		t.Errorf("default port = %d, want 8372", cfg.Server.Port)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }},
		{"badger without path", func(c *Config) {
			c.Storage.Backend = "badger"
			c.Storage.Path = ""
		}},
		{"unknown eviction policy", func(c *Config) { c.Limits.EvictionPolicy = "clock" }},
		{"negative max items", func(c *Config) { c.Limits.MaxItems = -1 }},
		{"malformed max size", func(c *Config) { c.Limits.MaxSize = "ten megabytes" }},
		{"empty host", func(c *Config) { c.Server.Host = "" }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"timeout too small", func(c *Config) { c.Server.Timeout = 100 * time.Millisecond }},
		{"zero item ttl", func(c *Config) { c.TTL.Item.Default = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid configuration")
			}
		})
	}
}

func TestStoreLimits(t *testing.T) {
	cfg := defaultConfig()
	cfg.Limits.MaxSize = "10MB"
	cfg.Limits.MaxItems = 500

	limits, err := cfg.StoreLimits()
	if err != nil {
		t.Fatalf("StoreLimits: %v", err)
	}
	if limits.MaxBytes != 10_000_000 {
		t.Errorf("MaxBytes = %d, want 10000000", limits.MaxBytes)
	}
	if limits.MaxItems != 500 {
		t.Errorf("MaxItems = %d, want 500", limits.MaxItems)
	}

	cfg.Limits.MaxSize = ""
	limits, err = cfg.StoreLimits()
	if err != nil {
		t.Fatalf("StoreLimits: %v", err)
	}
	if limits.MaxBytes != 0 {
		t.Errorf("MaxBytes = %d, want 0 (unlimited)", limits.MaxBytes)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"STRATA_STORAGE_BACKEND", "storage.backend"},
		{"STRATA_STORAGE_PATH", "storage.path"},
		{"STRATA_LIMITS_MAX_SIZE", "limits.max_size"},
		{"STRATA_LIMITS_MAX_ITEMS", "limits.max_items"},
		{"STRATA_LIMITS_EVICTION_POLICY", "limits.eviction_policy"},
		{"STRATA_SERVER_PORT", "server.port"},
		{"STRATA_SWEEP_INTERVAL", "sweep.interval"},
		{"STRATA_LOGGING_LEVEL", "logging.level"},
		{"STRATA_TTL_ENABLED", "ttl.enabled"},
		{"STRATA_TTL_ITEM_DEFAULT", "ttl.item.default"},
		{"STRATA_TTL_QUERY_COMPLETE", "ttl.query.complete"},
		{"STRATA_TTL_QUERY_FACETED", "ttl.query.faceted"},
		{"STRATA_TTL_ADJUSTMENTS_STALE_WHILE_REVALIDATE", "ttl.adjustments.stale_while_revalidate"},
		{"STRATA_TTL_ADJUSTMENTS_PEAK_HOURS_START", "ttl.adjustments.peak_hours.start"},
		{"STRATA_TTL_ADJUSTMENTS_PEAK_HOURS_MULTIPLIER", "ttl.adjustments.peak_hours.multiplier"},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.env); got != tt.want {
			t.Errorf("envTransformFunc(%s) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("backend = %q, want memory", cfg.Storage.Backend)
	}
	if cfg.Sweep.Interval != time.Minute {
		t.Errorf("sweep interval = %v, want 1m", cfg.Sweep.Interval)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STRATA_LIMITS_MAX_ITEMS", "250")
	t.Setenv("STRATA_LIMITS_EVICTION_POLICY", "arc")
	t.Setenv("STRATA_SERVER_PORT", "9000")
	t.Setenv("STRATA_TTL_ITEM_DEFAULT", "2m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Limits.MaxItems != 250 {
		t.Errorf("MaxItems = %d, want 250", cfg.Limits.MaxItems)
	}
	if cfg.Limits.EvictionPolicy != "arc" {
		t.Errorf("EvictionPolicy = %q, want arc", cfg.Limits.EvictionPolicy)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.TTL.Item.Default != 2*time.Minute {
		t.Errorf("TTL item default = %v, want 2m", cfg.TTL.Item.Default)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strata.yaml")
	data := []byte(`
storage:
  backend: memory
limits:
  max_size: 64MiB
  eviction_policy: lfu
server:
  enabled: false
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Limits.MaxSize != "64MiB" {
		t.Errorf("MaxSize = %q, want 64MiB", cfg.Limits.MaxSize)
	}
	if cfg.Limits.EvictionPolicy != "lfu" {
		t.Errorf("EvictionPolicy = %q, want lfu", cfg.Limits.EvictionPolicy)
	}
	if cfg.Server.Enabled {
		t.Error("server enabled, want disabled from file")
	}
	// Untouched settings keep their defaults.
	if cfg.Server.Port != 8372 {
		t.Errorf("Port = %d, want default 8372", cfg.Server.Port)
	}
}

func TestLoadEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strata.yaml")
	if err := os.WriteFile(path, []byte("limits:\n  max_items: 10\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("STRATA_LIMITS_MAX_ITEMS", "99")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Limits.MaxItems != 99 {
		t.Errorf("MaxItems = %d, want 99 (env wins over file)", cfg.Limits.MaxItems)
	}
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("STRATA_STORAGE_BACKEND", "redis")
	if _, err := Load(); err == nil {
		t.Error("Load accepted an unknown storage backend")
	}
}
