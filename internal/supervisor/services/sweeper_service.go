// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

package services

import (
	"context"
	"time"

	"github.com/tomtom215/strata/internal/logging"
)

// Sweeper is the engine surface the sweeper service needs.
type Sweeper interface {
	SweepExpired() (int, error)
}

// SweeperService periodically removes hard-expired entries so memory is
// reclaimed even for keys that are never read again. Expiry remains correct
// without it (reads drop expired entries lazily); the sweeper only bounds
// how long dead entries linger.
type SweeperService struct {
	engine   Sweeper
	interval time.Duration
	name     string
}

// NewSweeperService creates the sweeper. interval must be positive; the
// caller decides whether to register the service at all when sweeping is
// disabled.
func NewSweeperService(engine Sweeper, interval time.Duration) *SweeperService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SweeperService{
		engine:   engine,
		interval: interval,
		name:     "ttl-sweeper",
	}
}

// Serve implements suture.Service: sweep on every tick until the context is
// canceled. A failing sweep is logged and retried on the next tick rather
// than crashing the service.
func (s *SweeperService) Serve(ctx context.Context) error {
	log := logging.With().Str("service", s.name).Logger()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("ttl sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("ttl sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			removed, err := s.engine.SweepExpired()
			if err != nil {
				log.Error().Err(err).Msg("sweep failed")
				continue
			}
			if removed > 0 {
				log.Debug().Int("removed", removed).Msg("swept expired entries")
			}
		}
	}
}

// String implements fmt.Stringer; suture uses it in event logs.
func (s *SweeperService) String() string {
	return s.name
}
