// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

// Package metrics exposes Prometheus instrumentation for the cache engine:
// hit/miss ratios, eviction and expiration activity, and the live item and
// query-cache accounting. Collectors are registered at init via promauto
// and scraped through the ops server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts item reads served from the store.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	// CacheMisses counts item reads that found nothing servable, including
	// reads rejected because the entry had expired.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_cache_misses_total",
			Help: "Total number of cache misses (absent or expired)",
		},
	)

	// StaleServes counts stale-while-revalidate reads: entries served past
	// their staleness threshold but before hard expiry.
	StaleServes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_cache_stale_serves_total",
			Help: "Total number of stale entries served pending refresh",
		},
	)

	// Evictions counts removals, partitioned by what triggered them.
	Evictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_cache_evictions_total",
			Help: "Total number of entries removed from the cache",
		},
		[]string{"reason"}, // "eviction", "expired", "invalidated"
	)

	// OverLimit counts the times eviction ran out of candidates while the
	// cache was still above its configured limits.
	OverLimit = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_eviction_overlimit_total",
			Help: "Times the cache accepted an over-limit state after eviction exhaustion",
		},
	)

	// ItemCount is the live (non-placeholder) entry count.
	ItemCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_cache_items",
			Help: "Current number of live cache entries",
		},
	)

	// SizeBytes is the estimated byte cost of live entries.
	SizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_cache_size_bytes",
			Help: "Estimated total size of live cache entries in bytes",
		},
	)

	// QueryEntries and QueryBytes track the query-result cache, accounted
	// separately from items.
	QueryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_query_cache_entries",
			Help: "Current number of cached query results",
		},
	)

	QueryBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_query_cache_size_bytes",
			Help: "Estimated size of cached query results in bytes",
		},
	)

	// QueryHits and QueryMisses count query-result reads. A miss includes
	// entries dropped at read time because a referenced item disappeared.
	QueryHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_query_cache_hits_total",
			Help: "Total number of query-result cache hits",
		},
	)

	QueryMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_query_cache_misses_total",
			Help: "Total number of query-result cache misses",
		},
	)

	// SweepDuration observes background expired-item sweeps.
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_ttl_sweep_duration_seconds",
			Help:    "Duration of background TTL sweeps in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
