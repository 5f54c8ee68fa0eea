// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

// Package cache is the engine tying the pieces together: the item store,
// the eviction manager, the TTL manager and the query-result cache, with
// hit/miss accounting and Prometheus instrumentation.
//
// The engine is the single owner of its store. Operations issued
// sequentially against one engine observe a single consistent order; the
// engine does not serialize genuinely parallel mutation beyond what the
// store's own locking provides.
package cache

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/strata/internal/eviction"
	"github.com/tomtom215/strata/internal/keys"
	"github.com/tomtom215/strata/internal/logging"
	"github.com/tomtom215/strata/internal/metrics"
	"github.com/tomtom215/strata/internal/store"
	"github.com/tomtom215/strata/internal/ttl"
)

// ErrNoStore is returned by New when no store is supplied.
var ErrNoStore = errors.New("cache: store is required")

// Config assembles an engine. All validation happens here, at construction
// time: an unknown eviction policy or invalid TTL configuration fails New,
// never a later operation.
type Config struct {
	// Store is the backend holding entries. Required.
	Store store.Store

	// EvictionPolicy names the strategy (lru, lfu, fifo, mru, random, arc,
	// 2q). Empty disables eviction; limits are then accounted but never
	// enforced.
	EvictionPolicy string

	// EvictionOptions tunes the strategy variants.
	EvictionOptions eviction.Options

	// TTL is the time-to-live model. The zero value disables TTL.
	TTL ttl.Config

	// Logger overrides the global logger when non-nil.
	Logger *zerolog.Logger
}

// Stats is a snapshot of the engine's counters and the store's accounting.
type Stats struct {
	Hits         uint64 `json:"hits"`
	Misses       uint64 `json:"misses"`
	StaleServes  uint64 `json:"stale_serves"`
	Evictions    uint64 `json:"evictions"`
	Expirations  uint64 `json:"expirations"`
	ItemCount    int    `json:"item_count"`
	SizeBytes    int64  `json:"size_bytes"`
	QueryEntries int    `json:"query_entries"`
	QueryBytes   int64  `json:"query_bytes"`
	Policy       string `json:"policy"`
	TTLEnabled   bool   `json:"ttl_enabled"`
}

// Status qualifies a read. Stale means the entry crossed its staleness
// threshold but not hard expiry: serve it, but schedule a refresh.
type Status struct {
	Hit   bool
	Stale bool
}

// Cache is the engine. Create with New.
type Cache struct {
	store    store.Store
	eviction *eviction.Manager
	ttl      *ttl.Manager
	log      zerolog.Logger
	now      func() time.Time

	// retained so Clone can rebuild fresh strategy/manager state
	policy    string
	evictOpts eviction.Options
	ttlCfg    ttl.Config

	statsMu sync.Mutex
	stats   Stats
}

// New validates the configuration and assembles an engine.
func New(cfg Config) (*Cache, error) {
	if cfg.Store == nil {
		return nil, ErrNoStore
	}

	var strategy eviction.Strategy
	if cfg.EvictionPolicy != "" {
		if cfg.EvictionOptions.Capacity <= 0 {
			if limits := cfg.Store.SizeLimits(); limits.MaxItems > 0 {
				cfg.EvictionOptions.Capacity = limits.MaxItems
			}
		}
		s, err := eviction.New(cfg.EvictionPolicy, cfg.EvictionOptions)
		if err != nil {
			return nil, err
		}
		strategy = s
	}

	ttlCfg := cfg.TTL
	if ttlCfg.IsZero() {
		ttlCfg = ttl.DefaultConfig()
	}
	ttlMgr, err := ttl.NewManager(ttlCfg)
	if err != nil {
		return nil, err
	}

	log := logging.With().Str("component", "cache").Logger()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	return &Cache{
		store:     cfg.Store,
		eviction:  eviction.NewManager(strategy),
		ttl:       ttlMgr,
		log:       log,
		now:       time.Now,
		policy:    cfg.EvictionPolicy,
		evictOpts: cfg.EvictionOptions,
		ttlCfg:    ttlCfg,
	}, nil
}

// Get returns the cached item for the key, treating expired entries as
// misses (the expired entry is removed on the way out).
func (c *Cache) Get(k keys.Key) (any, bool, error) {
	value, status, err := c.GetWithStatus(k)
	return value, status.Hit, err
}

// GetWithStatus is Get plus the staleness signal for stale-while-
// revalidate callers.
func (c *Cache) GetWithStatus(k keys.Key) (any, Status, error) {
	value, ok, err := c.store.Get(k)
	if err != nil {
		return nil, Status{}, err
	}
	if !ok {
		c.miss()
		return nil, Status{}, nil
	}

	expired, err := c.ttl.IsExpired(k, c.store)
	if err != nil {
		return nil, Status{}, err
	}
	if expired {
		if _, err := c.store.Delete(k); err != nil {
			return nil, Status{}, fmt.Errorf("cache: drop expired entry: %w", err)
		}
		if err := c.eviction.OnItemRemoved(k); err != nil {
			return nil, Status{}, err
		}
		c.expired(1)
		c.miss()
		c.syncGauges()
		return nil, Status{}, nil
	}

	md, found, err := c.store.GetMetadata(k)
	if err != nil {
		return nil, Status{}, err
	}
	if found {
		if err := c.eviction.OnItemAccessed(k, md); err != nil {
			return nil, Status{}, err
		}
	}

	stale, err := c.ttl.IsStale(k, c.store)
	if err != nil {
		return nil, Status{}, err
	}
	c.hit(stale)
	return value, Status{Hit: true, Stale: stale}, nil
}

// Set inserts or updates an item, stamps its TTL, and enforces the
// configured limits. Evicted entries are deleted in one batch so their
// query entries are invalidated in a single pass.
func (c *Cache) Set(k keys.Key, value any) error {
	if err := c.store.Set(k, value); err != nil {
		return err
	}
	if err := c.ttl.OnItemAdded(k, c.store); err != nil {
		return err
	}

	victims, err := c.eviction.OnItemAdded(k, c.store)
	if err != nil {
		return err
	}
	if len(victims) > 0 {
		if err := c.store.DeleteMany(victims); err != nil {
			return fmt.Errorf("cache: delete evicted entries: %w", err)
		}
		c.evicted(len(victims))
		c.log.Debug().
			Int("victims", len(victims)).
			Str("policy", c.eviction.StrategyName()).
			Msg("evicted entries to satisfy limits")
	}
	c.syncGauges()
	return nil
}

// Delete removes an item and every query entry referencing it.
func (c *Cache) Delete(k keys.Key) (bool, error) {
	removed, err := c.store.Delete(k)
	if err != nil {
		return false, err
	}
	if removed {
		if err := c.eviction.OnItemRemoved(k); err != nil {
			return false, err
		}
		metrics.Evictions.WithLabelValues("invalidated").Inc()
		c.syncGauges()
	}
	return removed, nil
}

// IncludesKey reports whether a live entry exists for the key.
func (c *Cache) IncludesKey(k keys.Key) (bool, error) { return c.store.IncludesKey(k) }

// Keys returns the live keys in insertion order.
func (c *Cache) Keys() ([]keys.Key, error) { return c.store.Keys() }

// Values returns the live values in insertion order.
func (c *Cache) Values() ([]any, error) { return c.store.Values() }

// AllIn returns the items whose location chain equals location; an empty
// location returns everything.
func (c *Cache) AllIn(location []keys.Ref) ([]any, error) { return c.store.AllIn(location) }

// Contains reports whether any item in the location scope matches the
// predicate.
func (c *Cache) Contains(predicate func(any) bool, location []keys.Ref) (bool, error) {
	return c.store.Contains(predicate, location)
}

// QueryIn returns the items in the location scope matching the predicate.
func (c *Cache) QueryIn(predicate func(any) bool, location []keys.Ref) ([]any, error) {
	return c.store.QueryIn(predicate, location)
}

// Clear drops all items. Query entries survive and are validated lazily on
// their next read. The eviction strategy is told about every removal so its
// queues start empty too.
func (c *Cache) Clear() error {
	live, err := c.store.Keys()
	if err != nil {
		return err
	}
	if err := c.store.Clear(); err != nil {
		return err
	}
	for _, k := range live {
		if err := c.eviction.OnItemRemoved(k); err != nil {
			return err
		}
	}
	c.syncGauges()
	return nil
}

// Clone returns an independent engine over a deep copy of the store's
// bookkeeping. Strategy and TTL state start fresh; stored values are shared
// by reference and treated as immutable.
func (c *Cache) Clone() (*Cache, error) {
	storeCopy, err := c.store.Clone()
	if err != nil {
		return nil, fmt.Errorf("cache: clone store: %w", err)
	}
	return New(Config{
		Store:           storeCopy,
		EvictionPolicy:  c.policy,
		EvictionOptions: c.evictOpts,
		TTL:             c.ttlCfg,
		Logger:          &c.log,
	})
}

// SweepExpired removes every hard-expired item in one pass. Returns the
// number of items dropped. Called by the background sweeper; safe to call
// when TTL is disabled (no-op).
func (c *Cache) SweepExpired() (int, error) {
	start := c.now()
	expired, err := c.ttl.FindExpiredItems(c.store)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		metrics.SweepDuration.Observe(c.now().Sub(start).Seconds())
		return 0, nil
	}
	if err := c.store.DeleteMany(expired); err != nil {
		return 0, fmt.Errorf("cache: sweep expired entries: %w", err)
	}
	for _, k := range expired {
		if err := c.eviction.OnItemRemoved(k); err != nil {
			return 0, err
		}
	}
	c.expired(len(expired))
	c.syncGauges()
	metrics.SweepDuration.Observe(c.now().Sub(start).Seconds())
	return len(expired), nil
}

// SetEvictionPolicy swaps the eviction strategy at runtime. An empty name
// disables eviction while accounting continues.
func (c *Cache) SetEvictionPolicy(policy string) error {
	if policy == "" {
		c.eviction.SetStrategy(nil)
		c.policy = ""
		return nil
	}
	s, err := eviction.New(policy, c.evictOpts)
	if err != nil {
		return err
	}
	c.eviction.SetStrategy(s)
	c.policy = policy
	return nil
}

// IsEvictionSupported reports whether a strategy is active.
func (c *Cache) IsEvictionSupported() bool { return c.eviction.IsEvictionSupported() }

// EvictionPolicy returns the active policy name, or "".
func (c *Cache) EvictionPolicy() string { return c.eviction.StrategyName() }

// UpdateTTLConfig applies a partial TTL reconfiguration.
func (c *Cache) UpdateTTLConfig(update ttl.ConfigUpdate) error {
	return c.ttl.UpdateConfig(update)
}

// Stats returns a snapshot of counters and accounting.
func (c *Cache) Stats() Stats {
	c.statsMu.Lock()
	snapshot := c.stats
	c.statsMu.Unlock()

	size := c.store.CurrentSize()
	snapshot.ItemCount = size.ItemCount
	snapshot.SizeBytes = size.SizeBytes
	snapshot.QueryEntries, snapshot.QueryBytes = c.store.QueryCacheSize()
	snapshot.Policy = c.eviction.StrategyName()
	snapshot.TTLEnabled = c.ttl.IsTTLEnabled()
	return snapshot
}

func (c *Cache) hit(stale bool) {
	c.statsMu.Lock()
	c.stats.Hits++
	if stale {
		c.stats.StaleServes++
	}
	c.statsMu.Unlock()
	metrics.CacheHits.Inc()
	if stale {
		metrics.StaleServes.Inc()
	}
}

func (c *Cache) miss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
	metrics.CacheMisses.Inc()
}

func (c *Cache) evicted(n int) {
	c.statsMu.Lock()
	c.stats.Evictions += uint64(n)
	c.statsMu.Unlock()
	metrics.Evictions.WithLabelValues("eviction").Add(float64(n))
}

func (c *Cache) expired(n int) {
	c.statsMu.Lock()
	c.stats.Expirations += uint64(n)
	c.statsMu.Unlock()
	metrics.Evictions.WithLabelValues("expired").Add(float64(n))
}

// syncGauges pushes the store's accounting into the Prometheus gauges.
func (c *Cache) syncGauges() {
	size := c.store.CurrentSize()
	metrics.ItemCount.Set(float64(size.ItemCount))
	metrics.SizeBytes.Set(float64(size.SizeBytes))
	entries, bytes := c.store.QueryCacheSize()
	metrics.QueryEntries.Set(float64(entries))
	metrics.QueryBytes.Set(float64(bytes))
}

// Fingerprint derives a stable query fingerprint from the query type and
// its parameters: the sha256 of the JSON encoding, truncated for compact
// table keys.
func Fingerprint(queryType string, params any) string {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", queryType, params)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", queryType, sum[:16])
}
