// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

package eviction

import (
	"fmt"
	"sync"

	"github.com/tomtom215/strata/internal/keys"
	"github.com/tomtom215/strata/internal/logging"
	"github.com/tomtom215/strata/internal/metrics"
	"github.com/tomtom215/strata/internal/store"
)

// Manager orchestrates strategy invocation against the store's configured
// limits. It owns the strategy instance; setting a nil strategy disables
// enforcement while the store keeps accounting.
type Manager struct {
	mu       sync.Mutex
	strategy Strategy
}

// NewManager creates a manager around the given strategy. A nil strategy
// means eviction is disabled.
func NewManager(strategy Strategy) *Manager {
	return &Manager{strategy: strategy}
}

// IsEvictionSupported reports whether a strategy is currently attached.
func (m *Manager) IsEvictionSupported() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.strategy != nil
}

// StrategyName returns the active policy name, or "" when disabled.
func (m *Manager) StrategyName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.strategy == nil {
		return ""
	}
	return m.strategy.Name()
}

// SetStrategy swaps the active strategy at runtime. Passing nil disables
// eviction entirely.
func (m *Manager) SetStrategy(s Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategy = s
}

// OnItemAdded runs after every successful Set. It feeds the strategy's
// lifecycle callback, then loops victim selection until the accounting is
// back within limits. Victims are returned to the caller, who is
// responsible for deleting them from the store (batching the query-cache
// invalidation into one pass).
//
// When the strategy runs out of candidates while still over limit, the
// over-limit state is accepted and logged rather than rejecting the insert.
func (m *Manager) OnItemAdded(k keys.Key, st store.Store) ([]keys.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, err := keys.CanonicalHash(k)
	if err != nil {
		return nil, err
	}
	if m.strategy != nil {
		md, ok, mdErr := st.GetMetadata(k)
		if mdErr != nil {
			return nil, fmt.Errorf("eviction: read metadata: %w", mdErr)
		}
		if ok {
			m.strategy.OnItemAdded(hash, md)
		}
	}

	limits := st.SizeLimits()
	if limits.MaxItems == 0 && limits.MaxBytes == 0 {
		return nil, nil
	}
	size := st.CurrentSize()
	if withinLimits(size.ItemCount, size.SizeBytes, limits) {
		return nil, nil
	}
	if m.strategy == nil {
		return nil, nil
	}

	snapshot, err := st.AllMetadata()
	if err != nil {
		return nil, fmt.Errorf("eviction: snapshot metadata: %w", err)
	}
	// The item that triggered enforcement is never its own victim; when
	// nothing else can be freed the over-limit state is accepted instead.
	delete(snapshot, hash)
	hashToKey, err := hashIndex(st)
	if err != nil {
		return nil, err
	}

	var victims []keys.Key
	items, bytes := size.ItemCount, size.SizeBytes
	for !withinLimits(items, bytes, limits) {
		victimHash, ok := m.strategy.SelectForEviction(snapshot)
		if !ok {
			// No live candidates left. The newly added item itself may
			// remain over-limit; accepted, never an error.
			logging.Warn().
				Str("policy", m.strategy.Name()).
				Int("items", items).
				Int64("bytes", bytes).
				Int("max_items", limits.MaxItems).
				Int64("max_bytes", limits.MaxBytes).
				Msg("eviction exhausted, accepting over-limit state")
			metrics.OverLimit.Inc()
			break
		}
		md := snapshot[victimHash]
		delete(snapshot, victimHash)
		items--
		bytes -= md.EstimatedSize
		m.strategy.OnItemRemoved(victimHash)
		if vk, ok := hashToKey[victimHash]; ok {
			victims = append(victims, vk)
		}
	}
	return victims, nil
}

// OnItemAccessed forwards recency/frequency updates to the strategy. It
// never triggers eviction.
func (m *Manager) OnItemAccessed(k keys.Key, md store.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.strategy == nil {
		return nil
	}
	hash, err := keys.CanonicalHash(k)
	if err != nil {
		return err
	}
	m.strategy.OnItemAccessed(hash, md)
	return nil
}

// OnItemRemoved tells the strategy a key left the store through deletion
// or invalidation rather than eviction.
func (m *Manager) OnItemRemoved(k keys.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.strategy == nil {
		return nil
	}
	hash, err := keys.CanonicalHash(k)
	if err != nil {
		return err
	}
	m.strategy.OnItemRemoved(hash)
	return nil
}

func withinLimits(items int, bytes int64, limits store.Limits) bool {
	if limits.MaxItems > 0 && items > limits.MaxItems {
		return false
	}
	if limits.MaxBytes > 0 && bytes > limits.MaxBytes {
		return false
	}
	return true
}

// hashIndex maps canonical hashes back to keys so victims can be returned
// in key form.
func hashIndex(st store.Store) (map[string]keys.Key, error) {
	liveKeys, err := st.Keys()
	if err != nil {
		return nil, fmt.Errorf("eviction: list keys: %w", err)
	}
	out := make(map[string]keys.Key, len(liveKeys))
	for _, k := range liveKeys {
		hash, err := keys.CanonicalHash(k)
		if err != nil {
			return nil, err
		}
		out[hash] = k
	}
	return out, nil
}
