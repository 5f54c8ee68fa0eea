// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

// Package main is the entry point for the Strata cache daemon.
//
// Strata is a size- and time-bounded caching engine for keyed domain
// objects: canonical composite keys, pluggable eviction strategies (LRU,
// LFU, FIFO, MRU, random, ARC, 2Q), a TTL model with per-type overrides and
// stale-while-revalidate, and an anti-poisoning query-result cache.
//
// The daemon initializes components in the following order:
//
//  1. Configuration: Koanf v2 layering (defaults, YAML file, environment)
//  2. Logging: zerolog, json or console format
//  3. Store backend: in-memory, or BadgerDB for durability across restarts
//  4. Engine: eviction manager + TTL manager over the store
//  5. Supervisor tree: TTL sweeper and ops HTTP server under suture
//
// # Configuration
//
// Settings layer highest-priority-wins: environment variables over the
// config file over built-in defaults. Examples:
//
//	export STRATA_STORAGE_BACKEND=badger
//	export STRATA_STORAGE_PATH=/data/strata
//	export STRATA_LIMITS_MAX_SIZE=512MB
//	export STRATA_LIMITS_MAX_ITEMS=100000
//	export STRATA_LIMITS_EVICTION_POLICY=arc
//	export STRATA_TTL_ENABLED=true
//	./strata
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the ops server drains
// in-flight requests, the sweeper stops, and the Badger backend (when in
// use) is closed cleanly.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/strata/internal/cache"
	"github.com/tomtom215/strata/internal/config"
	"github.com/tomtom215/strata/internal/eviction"
	"github.com/tomtom215/strata/internal/logging"
	"github.com/tomtom215/strata/internal/server"
	"github.com/tomtom215/strata/internal/store"
	"github.com/tomtom215/strata/internal/store/badgerstore"
	"github.com/tomtom215/strata/internal/supervisor"
	"github.com/tomtom215/strata/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging)

	limits, err := cfg.StoreLimits()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to resolve cache limits")
	}

	var backend store.Store
	switch cfg.Storage.Backend {
	case "badger":
		bs, err := badgerstore.Open(cfg.Storage.Path, limits)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open badger backend")
		}
		defer func() {
			if err := bs.Close(); err != nil {
				logging.Error().Err(err).Msg("Failed to close badger backend")
			}
		}()
		backend = bs
		logging.Info().Str("path", cfg.Storage.Path).Msg("Badger backend opened")
	default:
		backend = store.NewMemory(limits)
		logging.Info().Msg("In-memory backend initialized")
	}

	engine, err := cache.New(cache.Config{
		Store:           backend,
		EvictionPolicy:  cfg.Limits.EvictionPolicy,
		EvictionOptions: eviction.Options{Capacity: limits.MaxItems},
		TTL:             cfg.TTL,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build cache engine")
	}
	logging.Info().
		Str("policy", cfg.Limits.EvictionPolicy).
		Int("max_items", limits.MaxItems).
		Int64("max_bytes", limits.MaxBytes).
		Bool("ttl_enabled", cfg.TTL.Enabled).
		Msg("Cache engine initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	if cfg.TTL.Enabled && cfg.Sweep.Interval > 0 {
		tree.AddMaintenanceService(services.NewSweeperService(engine, cfg.Sweep.Interval))
		logging.Info().Dur("interval", cfg.Sweep.Interval).Msg("TTL sweeper service added")
	}

	if cfg.Server.Enabled {
		httpServer := server.New(engine).HTTPServer(cfg.Server.Host, cfg.Server.Port, cfg.Server.Timeout)
		tree.AddAPIService(services.NewHTTPServerService(httpServer, 10*time.Second))
		logging.Info().Str("addr", httpServer.Addr).Msg("Ops HTTP server service added")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Strata stopped gracefully")
}
