// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order. The
// first file found wins.
var DefaultConfigPaths = []string{
	"strata.yaml",
	"strata.yml",
	"/etc/strata/config.yaml",
	"/etc/strata/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "STRATA_CONFIG_PATH"

// envPrefix scopes Strata's environment variables: STRATA_LIMITS_MAX_ITEMS
// becomes limits.max_items.
const envPrefix = "STRATA_"

// Load builds the configuration from layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
//
// The result is validated before it is returned; precedence is
// ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first config file that exists, checking the
// environment override before the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf paths:
//
//	STRATA_STORAGE_BACKEND        -> storage.backend
//	STRATA_LIMITS_MAX_SIZE        -> limits.max_size
//	STRATA_LIMITS_EVICTION_POLICY -> limits.eviction_policy
//	STRATA_TTL_ITEM_DEFAULT       -> ttl.item.default
//	STRATA_SERVER_PORT            -> server.port
//
// Section names take the first underscore; the remainder keeps its
// underscores except for the nested ttl.item / ttl.query /
// ttl.adjustments groups.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	// Multi-level sections that a single split cannot express.
	nested := map[string]string{
		"ttl_item_default":                       "ttl.item.default",
		"ttl_query_complete":                     "ttl.query.complete",
		"ttl_query_faceted":                      "ttl.query.faceted",
		"ttl_adjustments_stale_while_revalidate": "ttl.adjustments.stale_while_revalidate",
		"ttl_adjustments_peak_hours_start":       "ttl.adjustments.peak_hours.start",
		"ttl_adjustments_peak_hours_end":         "ttl.adjustments.peak_hours.end",
		"ttl_adjustments_peak_hours_multiplier":  "ttl.adjustments.peak_hours.multiplier",
	}
	if path, ok := nested[key]; ok {
		return path
	}

	section, rest, found := strings.Cut(key, "_")
	if !found {
		return key
	}
	return section + "." + rest
}
