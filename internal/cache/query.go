// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

package cache

import (
	"github.com/tomtom215/strata/internal/keys"
	"github.com/tomtom215/strata/internal/metrics"
	"github.com/tomtom215/strata/internal/store"
	"github.com/tomtom215/strata/internal/ttl"
)

// SetQueryResult records that the query identified by fingerprint resolved
// to the given item keys. The entry stores key references only; the values
// stay in the item store.
func (c *Cache) SetQueryResult(fingerprint, queryType string, complete bool, itemKeys []keys.Key) error {
	info := store.QueryInfo{QueryType: queryType, Complete: complete}
	if err := c.store.SetQueryResult(fingerprint, info, itemKeys); err != nil {
		return err
	}
	c.syncGauges()
	return nil
}

// GetQueryResult resolves a cached query back to its item keys. The entry
// misses, and is dropped, when any referenced item has disappeared or the
// entry has outlived its query-class TTL.
func (c *Cache) GetQueryResult(fingerprint string) ([]keys.Key, bool, error) {
	entry, ok, err := c.store.GetQueryResult(fingerprint)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		metrics.QueryMisses.Inc()
		return nil, false, nil
	}

	if c.ttl.IsTTLEnabled() {
		res := c.ttl.Calculator().QueryTTL(entry.Info.QueryType, entry.Info.Complete, c.now())
		if ttl.IsExpired(entry.AddedAt, res.TTL, c.now()) {
			if err := c.store.DeleteQueryResult(fingerprint); err != nil {
				return nil, false, err
			}
			metrics.QueryMisses.Inc()
			c.syncGauges()
			return nil, false, nil
		}
	}

	metrics.QueryHits.Inc()
	return entry.ItemKeys, true, nil
}

// HasQueryResult reports whether a query entry exists, without validating
// its item references or TTL.
func (c *Cache) HasQueryResult(fingerprint string) (bool, error) {
	return c.store.HasQueryResult(fingerprint)
}

// DeleteQueryResult removes one query entry.
func (c *Cache) DeleteQueryResult(fingerprint string) error {
	if err := c.store.DeleteQueryResult(fingerprint); err != nil {
		return err
	}
	c.syncGauges()
	return nil
}

// ClearQueryResults drops the whole query cache. Items are untouched.
func (c *Cache) ClearQueryResults() error {
	if err := c.store.ClearQueryResults(); err != nil {
		return err
	}
	c.syncGauges()
	return nil
}

// InvalidateItemKeys drops every query entry referencing any of the given
// keys. Called when items change out from under their cached queries.
func (c *Cache) InvalidateItemKeys(itemKeys []keys.Key) error {
	if err := c.store.InvalidateItemKeys(itemKeys); err != nil {
		return err
	}
	c.syncGauges()
	return nil
}

// InvalidateLocation removes every item in the location scope and the query
// entries referencing them. An empty location clears all primary items. The
// removals are reported to the eviction strategy so ARC/2Q bookkeeping does
// not hold on to dead hashes.
func (c *Cache) InvalidateLocation(location []keys.Ref) error {
	live, err := c.store.Keys()
	if err != nil {
		return err
	}
	var removed []keys.Key
	for _, k := range live {
		if keys.LocationEqual(k.Location, location) {
			removed = append(removed, k)
		}
	}
	if err := c.store.InvalidateLocation(location); err != nil {
		return err
	}
	for _, k := range removed {
		if err := c.eviction.OnItemRemoved(k); err != nil {
			return err
		}
	}
	c.syncGauges()
	return nil
}
