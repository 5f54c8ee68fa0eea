// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

// Package store defines the item storage contract every cache backend must
// realize: the per-key entry table, per-entry metadata, incremental
// size/count accounting, and the query-result cache with its invalidation
// protocol. The in-memory backend lives here; the durable Badger backend in
// the badgerstore subpackage implements the same contract.
package store

import (
	"errors"
	"time"

	"github.com/tomtom215/strata/internal/keys"
)

// ErrNilValue is returned when Set is called with a nil value. A nil value
// slot is reserved for metadata-only placeholders, which are created through
// SetMetadata, never through Set.
var ErrNilValue = errors.New("store: nil value")

// Metadata is the per-entry bookkeeping sidecar. EstimatedSize participates
// in the store's byte accounting; ExpiresAt and TTL are stamped by the TTL
// manager and are zero when TTL is disabled.
type Metadata struct {
	AddedAt        time.Time     `json:"added_at"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
	AccessCount    uint64        `json:"access_count"`
	EstimatedSize  int64         `json:"estimated_size"`
	ExpiresAt      time.Time     `json:"expires_at,omitempty"`
	TTL            time.Duration `json:"ttl,omitempty"`
}

// Size is the store's live item accounting. Placeholder entries (metadata
// without a value) are excluded from both figures.
type Size struct {
	ItemCount int   `json:"item_count"`
	SizeBytes int64 `json:"size_bytes"`
}

// Limits holds the configured bounds. Zero means unlimited.
type Limits struct {
	MaxItems int   `json:"max_items"`
	MaxBytes int64 `json:"max_bytes"`
}

// QueryInfo classifies a query result for TTL purposes. Complete results
// and faceted (filtered) results use distinct TTL classes so a short-lived
// faceted result can never backfill a complete one.
type QueryInfo struct {
	QueryType string `json:"query_type"`
	Complete  bool   `json:"complete"`
}

// QueryEntry maps a query fingerprint to the ordered set of item keys the
// query produced. No item values are duplicated, only references.
type QueryEntry struct {
	Fingerprint   string     `json:"fingerprint"`
	Info          QueryInfo  `json:"info"`
	ItemKeys      []keys.Key `json:"item_keys"`
	AddedAt       time.Time  `json:"added_at"`
	EstimatedSize int64      `json:"estimated_size"`
}

// Store is the storage contract of the cache engine. Implementations may be
// purely in-memory or wrap an I/O-bound backend; the contract itself is
// synchronous and single-owner (one Store instance belongs to one cache,
// and Clone produces a fully independent instance).
type Store interface {
	// Get looks up an item by canonical key. Placeholder entries are never
	// returned. A hit bumps LastAccessedAt and AccessCount.
	Get(k keys.Key) (any, bool, error)

	// Set inserts or updates an item. AddedAt is stamped only on first
	// insert; existing metadata is never cleared, and the byte accounting
	// is adjusted by the size delta.
	Set(k keys.Key, value any) error

	// IncludesKey reports whether a live (non-placeholder) entry exists.
	IncludesKey(k keys.Key) (bool, error)

	// Delete removes the entry and its metadata, and removes every query
	// entry referencing the key. Reports whether an entry was removed.
	Delete(k keys.Key) (bool, error)

	// DeleteMany removes several entries, deferring query invalidation to
	// a single batched pass over the query cache.
	DeleteMany(ks []keys.Key) error

	// Keys and Values are snapshot views in insertion order, excluding
	// placeholders.
	Keys() ([]keys.Key, error)
	Values() ([]any, error)

	// AllIn returns items whose composite key's location chain exactly
	// equals location. An empty location returns all items.
	AllIn(location []keys.Ref) ([]any, error)

	// Contains reports whether any item in the location scope satisfies
	// the predicate.
	Contains(predicate func(any) bool, location []keys.Ref) (bool, error)

	// QueryIn returns the items in the location scope satisfying the
	// predicate, in insertion order.
	QueryIn(predicate func(any) bool, location []keys.Ref) ([]any, error)

	// Clear removes all item entries and resets the item accounting.
	// Query entries are left in place and validated lazily at read time.
	Clear() error

	// Clone returns a deep, independent copy of the store's bookkeeping:
	// entry table, metadata, query entries and aggregates. Stored values
	// are shared by reference and must be treated as immutable.
	Clone() (Store, error)

	// Metadata accessors. SetMetadata creates a metadata-only placeholder
	// when the key has no item yet. DeleteMetadata removes placeholder
	// entries and is a no-op for live entries, whose metadata lives and
	// dies with the item. ClearMetadata resets live entries' metadata
	// (keeping EstimatedSize, which the accounting depends on) and drops
	// placeholder-only entries.
	GetMetadata(k keys.Key) (Metadata, bool, error)
	SetMetadata(k keys.Key, md Metadata) error
	DeleteMetadata(k keys.Key) error
	AllMetadata() (map[string]Metadata, error)
	ClearMetadata() error

	// CurrentSize and SizeLimits expose the incremental accounting.
	CurrentSize() Size
	SizeLimits() Limits

	// Query-result cache. GetQueryResult verifies at read time that every
	// referenced key still resolves; a dangling reference deletes the
	// entry and reports a miss.
	SetQueryResult(fingerprint string, info QueryInfo, itemKeys []keys.Key) error
	GetQueryResult(fingerprint string) (QueryEntry, bool, error)
	HasQueryResult(fingerprint string) (bool, error)
	DeleteQueryResult(fingerprint string) error
	ClearQueryResults() error

	// QueryCacheSize is tracked separately from the item accounting.
	QueryCacheSize() (entries int, bytes int64)

	// InvalidateItemKeys removes every query entry whose item keys
	// intersect ks, in one call. It does not touch the items themselves.
	InvalidateItemKeys(ks []keys.Key) error

	// InvalidateLocation deletes the items in the location scope (an empty
	// location targets primary, non-located items) and cascades through
	// InvalidateItemKeys.
	InvalidateLocation(location []keys.Ref) error
}
