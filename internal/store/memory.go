// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

package store

import (
	"sync"
	"time"

	"github.com/tomtom215/strata/internal/keys"
	"github.com/tomtom215/strata/internal/sizeof"
)

// entry is one row of the in-memory table. present distinguishes a live
// item from a metadata-only placeholder.
type entry struct {
	key     keys.Key
	value   any
	present bool
	md      Metadata
}

// Memory is the in-process Store implementation: a canonical-hash-keyed
// table guarded by a RWMutex, with insertion-order tracking for snapshot
// views and incrementally maintained size/count aggregates.
type Memory struct {
	mu sync.RWMutex

	entries map[string]*entry
	order   []string // insertion order of hashes, live and placeholder

	queries    map[string]*QueryEntry
	queryBytes int64

	itemCount int
	sizeBytes int64
	limits    Limits

	now func() time.Time
}

// NewMemory creates an empty in-memory store with the given limits.
// Zero limits mean unlimited; enforcement is the eviction manager's job,
// the store only accounts.
func NewMemory(limits Limits) *Memory {
	return &Memory{
		entries: make(map[string]*entry),
		queries: make(map[string]*QueryEntry),
		limits:  limits,
		now:     time.Now,
	}
}

// Get implements Store.
func (m *Memory) Get(k keys.Key) (any, bool, error) {
	hash, err := keys.CanonicalHash(k)
	if err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[hash]
	if !ok || !e.present {
		return nil, false, nil
	}
	e.md.LastAccessedAt = m.now()
	e.md.AccessCount++
	return e.value, true, nil
}

// Set implements Store.
func (m *Memory) Set(k keys.Key, value any) error {
	if value == nil {
		return ErrNilValue
	}
	nk, err := keys.Normalize(k)
	if err != nil {
		return err
	}
	hash, err := keys.CanonicalHash(nk)
	if err != nil {
		return err
	}
	est := sizeof.Estimate(value)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.entries[hash]
	switch {
	case !ok:
		m.entries[hash] = &entry{
			key:     nk,
			value:   value,
			present: true,
			md: Metadata{
				AddedAt:        now,
				LastAccessedAt: now,
				EstimatedSize:  est,
			},
		}
		m.order = append(m.order, hash)
		m.itemCount++
		m.sizeBytes += est
	case !e.present:
		// Placeholder becomes live. Metadata set earlier survives.
		e.value = value
		e.present = true
		if e.md.AddedAt.IsZero() {
			e.md.AddedAt = now
		}
		if e.md.LastAccessedAt.IsZero() {
			e.md.LastAccessedAt = now
		}
		e.md.EstimatedSize = est
		m.itemCount++
		m.sizeBytes += est
	default:
		m.sizeBytes += est - e.md.EstimatedSize
		e.md.EstimatedSize = est
		e.value = value
	}
	return nil
}

// IncludesKey implements Store.
func (m *Memory) IncludesKey(k keys.Key) (bool, error) {
	hash, err := keys.CanonicalHash(k)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[hash]
	return ok && e.present, nil
}

// Delete implements Store.
func (m *Memory) Delete(k keys.Key) (bool, error) {
	hash, err := keys.CanonicalHash(k)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[hash]; !ok {
		return false, nil
	}
	m.removeLocked(hash)
	m.invalidateHashesLocked(map[string]struct{}{hash: {}})
	return true, nil
}

// DeleteMany implements Store.
func (m *Memory) DeleteMany(ks []keys.Key) error {
	hashes := make(map[string]struct{}, len(ks))
	for _, k := range ks {
		hash, err := keys.CanonicalHash(k)
		if err != nil {
			return err
		}
		hashes[hash] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for hash := range hashes {
		if _, ok := m.entries[hash]; ok {
			m.removeLocked(hash)
		}
	}
	// One batched pass over the query cache for the whole set.
	m.invalidateHashesLocked(hashes)
	return nil
}

// removeLocked deletes the entry and fixes the accounting. Caller holds the
// write lock and is responsible for query invalidation.
func (m *Memory) removeLocked(hash string) {
	e := m.entries[hash]
	if e.present {
		m.itemCount--
		m.sizeBytes -= e.md.EstimatedSize
	}
	delete(m.entries, hash)
	for i, h := range m.order {
		if h == hash {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Keys implements Store.
func (m *Memory) Keys() ([]keys.Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]keys.Key, 0, m.itemCount)
	for _, hash := range m.order {
		if e := m.entries[hash]; e.present {
			out = append(out, e.key)
		}
	}
	return out, nil
}

// Values implements Store.
func (m *Memory) Values() ([]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]any, 0, m.itemCount)
	for _, hash := range m.order {
		if e := m.entries[hash]; e.present {
			out = append(out, e.value)
		}
	}
	return out, nil
}

// AllIn implements Store.
func (m *Memory) AllIn(location []keys.Ref) ([]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allInLocked(location), nil
}

func (m *Memory) allInLocked(location []keys.Ref) []any {
	out := make([]any, 0)
	for _, hash := range m.order {
		e := m.entries[hash]
		if !e.present {
			continue
		}
		if len(location) == 0 || keys.LocationEqual(e.key.Location, location) {
			out = append(out, e.value)
		}
	}
	return out
}

// Contains implements Store.
func (m *Memory) Contains(predicate func(any) bool, location []keys.Ref) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, v := range m.allInLocked(location) {
		if predicate(v) {
			return true, nil
		}
	}
	return false, nil
}

// QueryIn implements Store.
func (m *Memory) QueryIn(predicate func(any) bool, location []keys.Ref) ([]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]any, 0)
	for _, v := range m.allInLocked(location) {
		if predicate(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// Clear implements Store. Query entries are intentionally left behind; they
// are validated lazily on their next read.
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*entry)
	m.order = nil
	m.itemCount = 0
	m.sizeBytes = 0
	return nil
}

// Clone implements Store.
func (m *Memory) Clone() (Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clone := &Memory{
		entries:    make(map[string]*entry, len(m.entries)),
		order:      append([]string(nil), m.order...),
		queries:    make(map[string]*QueryEntry, len(m.queries)),
		queryBytes: m.queryBytes,
		itemCount:  m.itemCount,
		sizeBytes:  m.sizeBytes,
		limits:     m.limits,
		now:        m.now,
	}
	for hash, e := range m.entries {
		ce := *e
		clone.entries[hash] = &ce
	}
	for fp, q := range m.queries {
		cq := *q
		cq.ItemKeys = append([]keys.Key(nil), q.ItemKeys...)
		clone.queries[fp] = &cq
	}
	return clone, nil
}

// GetMetadata implements Store.
func (m *Memory) GetMetadata(k keys.Key) (Metadata, bool, error) {
	hash, err := keys.CanonicalHash(k)
	if err != nil {
		return Metadata{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[hash]
	if !ok {
		return Metadata{}, false, nil
	}
	return e.md, true, nil
}

// SetMetadata implements Store. A key with no item yet gets a placeholder
// entry so metadata can be staged before the value arrives.
func (m *Memory) SetMetadata(k keys.Key, md Metadata) error {
	nk, err := keys.Normalize(k)
	if err != nil {
		return err
	}
	hash, err := keys.CanonicalHash(nk)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[hash]
	if !ok {
		m.entries[hash] = &entry{key: nk, md: md}
		m.order = append(m.order, hash)
		return nil
	}
	if e.present {
		// Keep the byte accounting in step with the recorded size.
		m.sizeBytes += md.EstimatedSize - e.md.EstimatedSize
	}
	e.md = md
	return nil
}

// DeleteMetadata implements Store. Live entries keep their metadata (it is
// removed only with the item); a placeholder-only entry is dropped whole.
func (m *Memory) DeleteMetadata(k keys.Key) error {
	hash, err := keys.CanonicalHash(k)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[hash]
	if !ok || e.present {
		return nil
	}
	m.removeLocked(hash)
	return nil
}

// AllMetadata implements Store. The snapshot covers live entries only,
// keyed by canonical hash, which is what eviction strategies select over.
func (m *Memory) AllMetadata() (map[string]Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Metadata, m.itemCount)
	for hash, e := range m.entries {
		if e.present {
			out[hash] = e.md
		}
	}
	return out, nil
}

// ClearMetadata implements Store. Live entries get their metadata reset,
// keeping EstimatedSize so the accounting invariant keeps holding;
// placeholder-only entries are removed.
func (m *Memory) ClearMetadata() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var placeholders []string
	for hash, e := range m.entries {
		if !e.present {
			placeholders = append(placeholders, hash)
			continue
		}
		e.md = Metadata{EstimatedSize: e.md.EstimatedSize}
	}
	for _, hash := range placeholders {
		m.removeLocked(hash)
	}
	return nil
}

// CurrentSize implements Store.
func (m *Memory) CurrentSize() Size {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Size{ItemCount: m.itemCount, SizeBytes: m.sizeBytes}
}

// SizeLimits implements Store.
func (m *Memory) SizeLimits() Limits {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limits
}

// SetQueryResult implements Store.
func (m *Memory) SetQueryResult(fingerprint string, info QueryInfo, itemKeys []keys.Key) error {
	normalized := make([]keys.Key, len(itemKeys))
	for i, k := range itemKeys {
		nk, err := keys.Normalize(k)
		if err != nil {
			return err
		}
		normalized[i] = nk
	}
	est := int64(len(fingerprint)) + sizeof.Estimate(normalized)

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.queries[fingerprint]; ok {
		m.queryBytes -= old.EstimatedSize
	}
	m.queries[fingerprint] = &QueryEntry{
		Fingerprint:   fingerprint,
		Info:          info,
		ItemKeys:      normalized,
		AddedAt:       m.now(),
		EstimatedSize: est,
	}
	m.queryBytes += est
	return nil
}

// GetQueryResult implements Store. A query entry referencing a key that no
// longer resolves is stale: it is deleted and reported as a miss.
func (m *Memory) GetQueryResult(fingerprint string) (QueryEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queries[fingerprint]
	if !ok {
		return QueryEntry{}, false, nil
	}
	for _, k := range q.ItemKeys {
		hash, err := keys.CanonicalHash(k)
		if err != nil {
			return QueryEntry{}, false, err
		}
		e, ok := m.entries[hash]
		if !ok || !e.present {
			m.deleteQueryLocked(fingerprint)
			return QueryEntry{}, false, nil
		}
	}
	out := *q
	out.ItemKeys = append([]keys.Key(nil), q.ItemKeys...)
	return out, true, nil
}

// HasQueryResult implements Store. Presence only; no reference validation.
func (m *Memory) HasQueryResult(fingerprint string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.queries[fingerprint]
	return ok, nil
}

// DeleteQueryResult implements Store.
func (m *Memory) DeleteQueryResult(fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteQueryLocked(fingerprint)
	return nil
}

// ClearQueryResults implements Store.
func (m *Memory) ClearQueryResults() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = make(map[string]*QueryEntry)
	m.queryBytes = 0
	return nil
}

// QueryCacheSize implements Store.
func (m *Memory) QueryCacheSize() (int, int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queries), m.queryBytes
}

// InvalidateItemKeys implements Store.
func (m *Memory) InvalidateItemKeys(ks []keys.Key) error {
	hashes := make(map[string]struct{}, len(ks))
	for _, k := range ks {
		hash, err := keys.CanonicalHash(k)
		if err != nil {
			return err
		}
		hashes[hash] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateHashesLocked(hashes)
	return nil
}

// InvalidateLocation implements Store.
func (m *Memory) InvalidateLocation(location []keys.Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	victims := make(map[string]struct{})
	for _, hash := range m.order {
		e := m.entries[hash]
		if !e.present {
			continue
		}
		if len(location) == 0 {
			if len(e.key.Location) == 0 {
				victims[hash] = struct{}{}
			}
			continue
		}
		if keys.LocationEqual(e.key.Location, location) {
			victims[hash] = struct{}{}
		}
	}
	for hash := range victims {
		m.removeLocked(hash)
	}
	m.invalidateHashesLocked(victims)
	return nil
}

// QueryEntrySnapshot returns the stored query entry without validating its
// item references. Durable backends persist entries through this.
func (m *Memory) QueryEntrySnapshot(fingerprint string) (QueryEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.queries[fingerprint]
	if !ok {
		return QueryEntry{}, false
	}
	out := *q
	out.ItemKeys = append([]keys.Key(nil), q.ItemKeys...)
	return out, true
}

// QueryFingerprints returns the fingerprints of all live query entries.
// Durable backends reconcile their persisted query table against this after
// cascading invalidation.
func (m *Memory) QueryFingerprints() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.queries))
	for fp := range m.queries {
		out = append(out, fp)
	}
	return out
}

// RestoreQueryEntry installs a previously persisted query entry verbatim,
// preserving its AddedAt and size accounting. Used by durable backends
// during replay.
func (m *Memory) RestoreQueryEntry(q QueryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.queries[q.Fingerprint]; ok {
		m.queryBytes -= old.EstimatedSize
	}
	stored := q
	stored.ItemKeys = append([]keys.Key(nil), q.ItemKeys...)
	m.queries[q.Fingerprint] = &stored
	m.queryBytes += stored.EstimatedSize
}

// deleteQueryLocked removes one query entry and fixes the query accounting.
func (m *Memory) deleteQueryLocked(fingerprint string) {
	q, ok := m.queries[fingerprint]
	if !ok {
		return
	}
	m.queryBytes -= q.EstimatedSize
	delete(m.queries, fingerprint)
}

// invalidateHashesLocked removes every query entry whose item keys
// intersect the given hash set. Never leaves a dangling reference behind.
func (m *Memory) invalidateHashesLocked(hashes map[string]struct{}) {
	if len(hashes) == 0 {
		return
	}
	var stale []string
	for fp, q := range m.queries {
		for _, k := range q.ItemKeys {
			hash, err := keys.CanonicalHash(k)
			if err != nil {
				continue
			}
			if _, hit := hashes[hash]; hit {
				stale = append(stale, fp)
				break
			}
		}
	}
	for _, fp := range stale {
		m.deleteQueryLocked(fp)
	}
}

// Compile-time contract check.
var _ Store = (*Memory)(nil)
