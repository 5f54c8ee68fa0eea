// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

package ttl

import (
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/strata/internal/keys"
	"github.com/tomtom215/strata/internal/store"
)

// Manager orchestrates expiry and staleness checks against the item store's
// metadata. All methods are safe under the store's single-owner model; the
// internal lock only protects runtime reconfiguration.
type Manager struct {
	mu   sync.RWMutex
	cfg  Config
	calc *Calculator
	now  func() time.Time
}

// NewManager validates the configuration and builds a manager.
func NewManager(cfg Config) (*Manager, error) {
	calc, err := NewCalculator(cfg)
	if err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg, calc: calc, now: time.Now}, nil
}

// IsTTLEnabled reports whether any TTL bookkeeping happens at all.
func (m *Manager) IsTTLEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Enabled
}

// DefaultTTL returns the active default item TTL.
func (m *Manager) DefaultTTL() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Item.Default
}

// Calculator returns the active calculator for callers that need query TTL
// classes (the engine's query-result reads).
func (m *Manager) Calculator() *Calculator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calc
}

// OnItemAdded stamps ExpiresAt and TTL into the entry's metadata using the
// calculator. No-op when TTL is disabled.
func (m *Manager) OnItemAdded(k keys.Key, st store.Store) error {
	m.mu.RLock()
	enabled, calc, now := m.cfg.Enabled, m.calc, m.now()
	m.mu.RUnlock()

	if !enabled {
		return nil
	}
	md, ok, err := st.GetMetadata(k)
	if err != nil {
		return fmt.Errorf("ttl: read metadata: %w", err)
	}
	if !ok {
		return nil
	}
	res := calc.ItemTTL(k.Type, now)
	base := md.AddedAt
	if base.IsZero() {
		base = now
	}
	md.TTL = res.TTL
	md.ExpiresAt = base.Add(res.TTL)
	if err := st.SetMetadata(k, md); err != nil {
		return fmt.Errorf("ttl: stamp metadata: %w", err)
	}
	return nil
}

// ValidateItem reports whether the item may still be served: true when TTL
// is disabled, the key is unknown, or the entry has not expired.
func (m *Manager) ValidateItem(k keys.Key, st store.Store) (bool, error) {
	expired, err := m.IsExpired(k, st)
	if err != nil {
		return false, err
	}
	return !expired, nil
}

// IsExpired reports whether the entry's stamped expiry has passed. Entries
// without a stamp never expire.
func (m *Manager) IsExpired(k keys.Key, st store.Store) (bool, error) {
	m.mu.RLock()
	enabled, now := m.cfg.Enabled, m.now()
	m.mu.RUnlock()

	if !enabled {
		return false, nil
	}
	md, ok, err := st.GetMetadata(k)
	if err != nil {
		return false, err
	}
	if !ok || md.TTL <= 0 {
		return false, nil
	}
	return IsExpired(md.AddedAt, md.TTL, now), nil
}

// IsStale reports whether the entry has crossed its staleness threshold but
// may still be served while a refresh runs.
func (m *Manager) IsStale(k keys.Key, st store.Store) (bool, error) {
	m.mu.RLock()
	enabled, swr, now := m.cfg.Enabled, m.cfg.Adjustments.StaleWhileRevalidate, m.now()
	m.mu.RUnlock()

	if !enabled || !swr {
		return false, nil
	}
	md, ok, err := st.GetMetadata(k)
	if err != nil {
		return false, err
	}
	if !ok || md.TTL <= 0 {
		return false, nil
	}
	return IsStale(md.AddedAt, md.TTL, now), nil
}

// FindExpiredItems scans the store's metadata and returns every key whose
// expiry has passed. Used by the background sweeper.
func (m *Manager) FindExpiredItems(st store.Store) ([]keys.Key, error) {
	m.mu.RLock()
	enabled, now := m.cfg.Enabled, m.now()
	m.mu.RUnlock()

	if !enabled {
		return nil, nil
	}
	liveKeys, err := st.Keys()
	if err != nil {
		return nil, fmt.Errorf("ttl: list keys: %w", err)
	}
	var expired []keys.Key
	for _, k := range liveKeys {
		md, ok, err := st.GetMetadata(k)
		if err != nil {
			return nil, err
		}
		if !ok || md.TTL <= 0 {
			continue
		}
		if IsExpired(md.AddedAt, md.TTL, now) {
			expired = append(expired, k)
		}
	}
	return expired, nil
}

// ConfigUpdate is a partial runtime reconfiguration. Nil fields keep their
// current values.
type ConfigUpdate struct {
	Enabled          *bool
	DefaultItemTTL   *time.Duration
	CompleteQueryTTL *time.Duration
	FacetedQueryTTL  *time.Duration
}

// UpdateConfig applies a partial update, re-validating the result before it
// takes effect. Invalid updates leave the previous configuration in place.
func (m *Manager) UpdateConfig(update ConfigUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.cfg
	if update.Enabled != nil {
		next.Enabled = *update.Enabled
	}
	if update.DefaultItemTTL != nil {
		next.Item.Default = *update.DefaultItemTTL
	}
	if update.CompleteQueryTTL != nil {
		next.Query.Complete = *update.CompleteQueryTTL
	}
	if update.FacetedQueryTTL != nil {
		next.Query.Faceted = *update.FacetedQueryTTL
	}
	calc, err := NewCalculator(next)
	if err != nil {
		return err
	}
	m.cfg = next
	m.calc = calc
	return nil
}
