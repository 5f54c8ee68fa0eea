// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

// Package config loads Strata's configuration with Koanf v2 layering:
// built-in defaults, then an optional YAML file, then environment
// variables. All validation happens at load time; a process that starts
// has a fully valid configuration.
package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/strata/internal/eviction"
	"github.com/tomtom215/strata/internal/logging"
	"github.com/tomtom215/strata/internal/sizeof"
	"github.com/tomtom215/strata/internal/store"
	"github.com/tomtom215/strata/internal/ttl"
)

// StorageConfig selects the store backend.
type StorageConfig struct {
	// Backend is "memory" or "badger".
	Backend string `koanf:"backend" validate:"oneof=memory badger"`

	// Path is the BadgerDB directory; required for the badger backend.
	Path string `koanf:"path" validate:"required_if=Backend badger"`
}

// LimitsConfig bounds the cache. Empty/zero values mean unlimited.
type LimitsConfig struct {
	// MaxSize is a human-readable byte bound: "512MB", "2GiB". Decimal
	// suffixes are powers of 1000, binary suffixes powers of 1024.
	MaxSize string `koanf:"max_size"`

	// MaxItems bounds the live entry count.
	MaxItems int `koanf:"max_items" validate:"min=0"`

	// EvictionPolicy names the strategy enforcing the limits: lru, lfu,
	// fifo, mru, random, arc, 2q. Empty disables enforcement.
	EvictionPolicy string `koanf:"eviction_policy"`
}

// ServerConfig configures the ops HTTP server (health, metrics, stats).
type ServerConfig struct {
	Enabled bool          `koanf:"enabled"`
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`
}

// SweepConfig configures the background TTL sweeper.
type SweepConfig struct {
	// Interval between expired-item sweeps. Zero disables the sweeper;
	// expired entries are then dropped lazily at read time only.
	Interval time.Duration `koanf:"interval" validate:"min=0"`
}

// Config is the full configuration surface.
type Config struct {
	Storage StorageConfig  `koanf:"storage"`
	Limits  LimitsConfig   `koanf:"limits"`
	TTL     ttl.Config     `koanf:"ttl"`
	Sweep   SweepConfig    `koanf:"sweep"`
	Server  ServerConfig   `koanf:"server"`
	Logging logging.Config `koanf:"logging"`
}

// defaultConfig returns the built-in defaults, applied before file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: "memory",
			Path:    "/data/strata",
		},
		Limits: LimitsConfig{
			MaxSize:        "",
			MaxItems:       0,
			EvictionPolicy: eviction.PolicyLRU,
		},
		TTL: ttl.DefaultConfig(),
		Sweep: SweepConfig{
			Interval: time.Minute,
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8372,
			Timeout: 30 * time.Second,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// StoreLimits resolves the configured bounds into the store's limit type.
func (c *Config) StoreLimits() (store.Limits, error) {
	limits := store.Limits{MaxItems: c.Limits.MaxItems}
	if c.Limits.MaxSize != "" {
		bytes, err := sizeof.Parse(c.Limits.MaxSize)
		if err != nil {
			return store.Limits{}, fmt.Errorf("limits.max_size: %w", err)
		}
		limits.MaxBytes = bytes
	}
	return limits, nil
}

// Validate checks the configuration: struct tags first, then the semantic
// rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	if c.Limits.EvictionPolicy != "" && !eviction.ValidPolicy(c.Limits.EvictionPolicy) {
		return fmt.Errorf("limits.eviction_policy: %w: %q",
			eviction.ErrUnknownPolicy, c.Limits.EvictionPolicy)
	}
	if _, err := c.StoreLimits(); err != nil {
		return err
	}
	if err := ttl.Validate(c.TTL); err != nil {
		return fmt.Errorf("ttl: %w", err)
	}
	return nil
}
