// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

// Package ttl implements the cache's time-to-live model: a pure calculator
// resolving per-type and per-facet TTLs with peak-hour adjustment, and a
// manager that stamps and checks expiry against the item store.
//
// Staleness and expiry are distinct: a stale-but-unexpired item may still
// be served while a background refresh is triggered (stale-while-
// revalidate); an expired item must be refetched before serving.
package ttl

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidTTLConfig is returned at construction for non-positive TTLs,
// out-of-range peak hours, or a multiplier outside (0, 1].
var ErrInvalidTTLConfig = errors.New("invalid ttl configuration")

// PeakHours shrinks TTLs during a daily window. The window is [Start, End)
// in local hours and wraps around midnight when Start > End (22-6 covers
// late evening through early morning).
type PeakHours struct {
	Start      int     `koanf:"start"`
	End        int     `koanf:"end"`
	Multiplier float64 `koanf:"multiplier"`
}

// Adjustments are the optional TTL modifiers.
type Adjustments struct {
	PeakHours            *PeakHours `koanf:"peak_hours"`
	StaleWhileRevalidate bool       `koanf:"stale_while_revalidate"`
}

// ItemConfig holds item TTLs: a default plus per-type overrides.
type ItemConfig struct {
	Default time.Duration            `koanf:"default"`
	ByType  map[string]time.Duration `koanf:"by_type"`
}

// QueryConfig holds query-result TTLs. Complete and faceted results use
// distinct classes so a short-lived faceted result can never stand in for
// a complete one.
type QueryConfig struct {
	Complete time.Duration            `koanf:"complete"`
	Faceted  time.Duration            `koanf:"faceted"`
	ByFacet  map[string]time.Duration `koanf:"by_facet"`
}

// Config is the full TTL configuration surface.
type Config struct {
	Enabled     bool        `koanf:"enabled"`
	Item        ItemConfig  `koanf:"item"`
	Query       QueryConfig `koanf:"query"`
	Adjustments Adjustments `koanf:"adjustments"`
}

// IsZero reports whether the configuration is entirely unset, as opposed to
// an explicitly disabled one that still carries durations. Config holds maps,
// so callers cannot compare against the zero value directly.
func (c Config) IsZero() bool {
	return !c.Enabled &&
		c.Item.Default == 0 && len(c.Item.ByType) == 0 &&
		c.Query.Complete == 0 && c.Query.Faceted == 0 && len(c.Query.ByFacet) == 0 &&
		c.Adjustments.PeakHours == nil && !c.Adjustments.StaleWhileRevalidate
}

// DefaultConfig returns a disabled TTL model with sane values should it be
// enabled via UpdateConfig later.
func DefaultConfig() Config {
	return Config{
		Enabled: false,
		Item:    ItemConfig{Default: 5 * time.Minute},
		Query: QueryConfig{
			Complete: 5 * time.Minute,
			Faceted:  time.Minute,
		},
	}
}

// Adjustment records one applied TTL modifier for observability.
type Adjustment struct {
	Name       string
	Multiplier float64
}

// Result is the calculator's output: the effective TTL, the base it was
// derived from, the adjustments applied, and the staleness threshold
// (always floor(0.8 * ttl)).
type Result struct {
	TTL            time.Duration
	BaseTTL        time.Duration
	StaleThreshold time.Duration
	Adjustments    []Adjustment
}

// Calculator resolves TTLs. It is a pure function of its configuration and
// the supplied timestamp; it never reads the clock itself.
type Calculator struct {
	cfg Config
}

// NewCalculator validates the configuration and returns a calculator.
func NewCalculator(cfg Config) (*Calculator, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &Calculator{cfg: cfg}, nil
}

// Validate checks a TTL configuration. Exposed so the config package can
// reject bad values at load time.
func Validate(cfg Config) error {
	if cfg.Item.Default <= 0 {
		return fmt.Errorf("%w: item default ttl must be positive", ErrInvalidTTLConfig)
	}
	for t, d := range cfg.Item.ByType {
		if d <= 0 {
			return fmt.Errorf("%w: item ttl for type %q must be positive", ErrInvalidTTLConfig, t)
		}
	}
	if cfg.Query.Complete <= 0 || cfg.Query.Faceted <= 0 {
		return fmt.Errorf("%w: query ttls must be positive", ErrInvalidTTLConfig)
	}
	for f, d := range cfg.Query.ByFacet {
		if d <= 0 {
			return fmt.Errorf("%w: query ttl for facet %q must be positive", ErrInvalidTTLConfig, f)
		}
	}
	if ph := cfg.Adjustments.PeakHours; ph != nil {
		if ph.Start < 0 || ph.Start > 23 || ph.End < 0 || ph.End > 23 {
			return fmt.Errorf("%w: peak hours out of range", ErrInvalidTTLConfig)
		}
		if ph.Multiplier <= 0 || ph.Multiplier > 1 {
			return fmt.Errorf("%w: peak multiplier must be in (0, 1]", ErrInvalidTTLConfig)
		}
	}
	return nil
}

// ItemTTL resolves the TTL for an item type at the given moment:
// per-type override if present, otherwise the default, then peak-hour
// adjustment.
func (c *Calculator) ItemTTL(itemType string, now time.Time) Result {
	base := c.cfg.Item.Default
	if override, ok := c.cfg.Item.ByType[itemType]; ok {
		base = override
	}
	return c.finish(base, now)
}

// QueryTTL resolves the TTL for a query result. Complete results always use
// the complete-query class; faceted results use the per-facet override when
// present.
func (c *Calculator) QueryTTL(queryType string, complete bool, now time.Time) Result {
	var base time.Duration
	if complete {
		base = c.cfg.Query.Complete
	} else if override, ok := c.cfg.Query.ByFacet[queryType]; ok {
		base = override
	} else {
		base = c.cfg.Query.Faceted
	}
	return c.finish(base, now)
}

// finish applies adjustments and derives the stale threshold.
func (c *Calculator) finish(base time.Duration, now time.Time) Result {
	res := Result{TTL: base, BaseTTL: base}
	if ph := c.cfg.Adjustments.PeakHours; ph != nil && inPeakWindow(ph, now.Hour()) {
		// Multiply and floor to whole seconds, matching the integer-second
		// TTL model of the configuration surface.
		seconds := math.Floor(res.TTL.Seconds() * ph.Multiplier)
		res.TTL = time.Duration(seconds) * time.Second
		res.Adjustments = append(res.Adjustments, Adjustment{
			Name:       "peak_hours",
			Multiplier: ph.Multiplier,
		})
	}
	res.StaleThreshold = StaleThreshold(res.TTL)
	return res
}

// inPeakWindow reports whether hour falls in [start, end), wrapping
// around midnight when start > end.
func inPeakWindow(ph *PeakHours, hour int) bool {
	if ph.Start == ph.End {
		return false
	}
	if ph.Start < ph.End {
		return hour >= ph.Start && hour < ph.End
	}
	return hour >= ph.Start || hour < ph.End
}

// StaleThreshold is floor(0.8 * ttl) in whole seconds.
func StaleThreshold(ttl time.Duration) time.Duration {
	return time.Duration(math.Floor(ttl.Seconds()*0.8)) * time.Second
}

// IsStale reports whether an entry added at addedAt has crossed its
// staleness threshold: (now - addedAt) > floor(0.8 * ttl). A stale entry
// may still be served while a refresh runs.
func IsStale(addedAt time.Time, ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(addedAt) > StaleThreshold(ttl)
}

// IsExpired reports whether an entry has reached hard expiry:
// (now - addedAt) >= ttl. An expired entry must be refetched before
// serving.
func IsExpired(addedAt time.Time, ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(addedAt) >= ttl
}
