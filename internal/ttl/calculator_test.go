// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

package ttl

import (
	"errors"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Enabled: true,
		Item: ItemConfig{
			Default: 5 * time.Minute,
			ByType:  map[string]time.Duration{"track": time.Minute},
		},
		Query: QueryConfig{
			Complete: 10 * time.Minute,
			Faceted:  time.Minute,
			ByFacet:  map[string]time.Duration{"by-artist": 30 * time.Second},
		},
	}
}

func TestConfigIsZero(t *testing.T) {
	if !(Config{}).IsZero() {
		t.Error("zero value not reported as zero")
	}
	if DefaultConfig().IsZero() {
		t.Error("DefaultConfig reported as zero")
	}
	disabled := validConfig()
	disabled.Enabled = false
	if disabled.IsZero() {
		t.Error("disabled config with durations reported as zero")
	}
	withType := Config{Item: ItemConfig{ByType: map[string]time.Duration{"track": time.Minute}}}
	if withType.IsZero() {
		t.Error("config with per-type override reported as zero")
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero item default", func(c *Config) { c.Item.Default = 0 }},
		{"negative per-type", func(c *Config) { c.Item.ByType["track"] = -time.Second }},
		{"zero complete query", func(c *Config) { c.Query.Complete = 0 }},
		{"zero faceted query", func(c *Config) { c.Query.Faceted = 0 }},
		{"zero per-facet", func(c *Config) { c.Query.ByFacet["by-artist"] = 0 }},
		{"peak hour out of range", func(c *Config) {
			c.Adjustments.PeakHours = &PeakHours{Start: 24, End: 6, Multiplier: 0.5}
		}},
		{"peak multiplier zero", func(c *Config) {
			c.Adjustments.PeakHours = &PeakHours{Start: 8, End: 20, Multiplier: 0}
		}},
		{"peak multiplier above one", func(c *Config) {
			c.Adjustments.PeakHours = &PeakHours{Start: 8, End: 20, Multiplier: 1.5}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if _, err := NewCalculator(cfg); !errors.Is(err, ErrInvalidTTLConfig) {
				t.Errorf("NewCalculator error = %v, want ErrInvalidTTLConfig", err)
			}
		})
	}
}

func TestItemTTLResolution(t *testing.T) {
	calc, err := NewCalculator(validConfig())
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	if res := calc.ItemTTL("track", now); res.TTL != time.Minute {
		t.Errorf("ItemTTL(track) = %v, want 1m (per-type override)", res.TTL)
	}
	if res := calc.ItemTTL("album", now); res.TTL != 5*time.Minute {
		t.Errorf("ItemTTL(album) = %v, want 5m (default)", res.TTL)
	}
}

func TestQueryTTLClasses(t *testing.T) {
	calc, _ := NewCalculator(validConfig())
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	// Complete results always use the complete class, even when a facet
	// override exists for the query type.
	if res := calc.QueryTTL("by-artist", true, now); res.TTL != 10*time.Minute {
		t.Errorf("complete QueryTTL = %v, want 10m", res.TTL)
	}
	if res := calc.QueryTTL("by-artist", false, now); res.TTL != 30*time.Second {
		t.Errorf("faceted QueryTTL(by-artist) = %v, want 30s (override)", res.TTL)
	}
	if res := calc.QueryTTL("by-genre", false, now); res.TTL != time.Minute {
		t.Errorf("faceted QueryTTL(by-genre) = %v, want 1m (default)", res.TTL)
	}
}

func TestPeakHoursAdjustment(t *testing.T) {
	cfg := validConfig()
	cfg.Adjustments.PeakHours = &PeakHours{Start: 8, End: 20, Multiplier: 0.5}
	calc, err := NewCalculator(cfg)
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}

	peak := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	offPeak := time.Date(2026, 8, 23, 23, 0, 0, 0, time.UTC)

	res := calc.ItemTTL("album", peak)
	if res.TTL != 150*time.Second {
		t.Errorf("peak TTL = %v, want 2m30s (5m * 0.5)", res.TTL)
	}
	if res.BaseTTL != 5*time.Minute {
		t.Errorf("BaseTTL = %v, want 5m", res.BaseTTL)
	}
	if len(res.Adjustments) != 1 || res.Adjustments[0].Name != "peak_hours" {
		t.Errorf("Adjustments = %+v, want one peak_hours entry", res.Adjustments)
	}

	res = calc.ItemTTL("album", offPeak)
	if res.TTL != 5*time.Minute {
		t.Errorf("off-peak TTL = %v, want 5m unadjusted", res.TTL)
	}
	if len(res.Adjustments) != 0 {
		t.Errorf("off-peak Adjustments = %+v, want none", res.Adjustments)
	}
}

func TestPeakWindowWrapsMidnight(t *testing.T) {
	ph := &PeakHours{Start: 22, End: 6, Multiplier: 0.5}
	tests := []struct {
		hour int
		want bool
	}{
		{21, false},
		{22, true},
		{23, true},
		{0, true},
		{5, true},
		{6, false},
		{12, false},
	}
	for _, tt := range tests {
		if got := inPeakWindow(ph, tt.hour); got != tt.want {
			t.Errorf("inPeakWindow(hour=%d) = %v, want %v", tt.hour, got, tt.want)
		}
	}
	// Start == End means the window never matches.
	never := &PeakHours{Start: 8, End: 8, Multiplier: 0.5}
	for hour := 0; hour < 24; hour++ {
		if inPeakWindow(never, hour) {
			t.Errorf("degenerate window matched hour %d", hour)
		}
	}
}

func TestStaleThresholdFlooring(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want time.Duration
	}{
		{10 * time.Second, 8 * time.Second},
		{5 * time.Minute, 4 * time.Minute},
		{time.Second, 0},                    // floor(0.8)
		{11 * time.Second, 8 * time.Second}, // floor(8.8)
	}
	for _, tt := range tests {
		if got := StaleThreshold(tt.ttl); got != tt.want {
			t.Errorf("StaleThreshold(%v) = %v, want %v", tt.ttl, got, tt.want)
		}
	}
}

func TestStaleBeforeExpiredBoundaries(t *testing.T) {
	addedAt := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	ttl := 10 * time.Second // stale threshold 8s

	tests := []struct {
		elapsed     time.Duration
		wantStale   bool
		wantExpired bool
	}{
		{7 * time.Second, false, false},
		{8 * time.Second, false, false}, // threshold is strict >
		{8*time.Second + time.Millisecond, true, false},
		{9 * time.Second, true, false},
		{10 * time.Second, true, true}, // expiry is >=
		{11 * time.Second, true, true},
	}
	for _, tt := range tests {
		now := addedAt.Add(tt.elapsed)
		if got := IsStale(addedAt, ttl, now); got != tt.wantStale {
			t.Errorf("IsStale at +%v = %v, want %v", tt.elapsed, got, tt.wantStale)
		}
		if got := IsExpired(addedAt, ttl, now); got != tt.wantExpired {
			t.Errorf("IsExpired at +%v = %v, want %v", tt.elapsed, got, tt.wantExpired)
		}
	}
}

func TestZeroTTLNeverStaleNorExpired(t *testing.T) {
	addedAt := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	now := addedAt.Add(1000 * time.Hour)
	if IsStale(addedAt, 0, now) {
		t.Error("zero ttl must never be stale")
	}
	if IsExpired(addedAt, 0, now) {
		t.Error("zero ttl must never expire")
	}
}
