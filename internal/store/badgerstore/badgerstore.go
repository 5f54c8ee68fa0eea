// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

// Package badgerstore is the durable Store backend: a write-through layer
// over the in-memory store that persists every entry, metadata record and
// query entry to BadgerDB and replays them on open.
//
// Values must be JSON-serializable. After a restart they rehydrate as
// generic JSON (maps, slices, float64 numbers), so predicates passed to
// Contains and QueryIn should match on that shape rather than on concrete
// Go types.
package badgerstore

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/strata/internal/keys"
	"github.com/tomtom215/strata/internal/store"
)

// Key prefixes for BadgerDB storage.
const (
	itemKeyPrefix  = "item:"
	queryKeyPrefix = "query:"
)

// itemRecord is the persisted form of one entry. Seq preserves insertion
// order across restarts; Live distinguishes items from metadata-only
// placeholders.
type itemRecord struct {
	Seq      uint64          `json:"seq"`
	Key      keys.Key        `json:"key"`
	Value    json.RawMessage `json:"value,omitempty"`
	Live     bool            `json:"live"`
	Metadata store.Metadata  `json:"metadata"`
}

// row is the in-process index of a persisted record.
type row struct {
	key keys.Key
	seq uint64
	raw json.RawMessage // nil for placeholders
}

// Store is the BadgerDB-backed implementation of store.Store. All reads are
// served from the in-memory mirror; mutations write through to disk.
type Store struct {
	db  *badger.DB
	mem *store.Memory

	mu   sync.Mutex
	seq  uint64
	rows map[string]*row
	fps  map[string]struct{}

	ownsDB bool
}

// Open opens (or creates) a Badger database at path and replays its
// contents. Badger's own logger is silenced; Strata logs at the engine
// layer.
func Open(path string, limits store.Limits) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %s: %w", path, err)
	}
	s, err := New(db, limits)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// New wraps an already-open Badger database and replays its contents into
// a fresh in-memory mirror.
func New(db *badger.DB, limits store.Limits) (*Store, error) {
	s := &Store{
		db:   db,
		mem:  store.NewMemory(limits),
		rows: make(map[string]*row),
		fps:  make(map[string]struct{}),
	}
	if err := s.replay(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database when this store opened it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// replay loads every persisted record into the in-memory mirror, items in
// their original insertion order.
func (s *Store) replay() error {
	var records []itemRecord
	var queries []store.QueryEntry

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(itemKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec itemRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode item record: %w", err)
			}
			records = append(records, rec)
		}

		prefix = []byte(queryKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var q store.QueryEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &q)
			}); err != nil {
				return fmt.Errorf("decode query record: %w", err)
			}
			queries = append(queries, q)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badgerstore: replay: %w", err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	for _, rec := range records {
		hash, err := keys.CanonicalHash(rec.Key)
		if err != nil {
			return fmt.Errorf("badgerstore: replay key: %w", err)
		}
		if rec.Live {
			var value any
			if err := json.Unmarshal(rec.Value, &value); err != nil {
				return fmt.Errorf("badgerstore: replay value: %w", err)
			}
			if err := s.mem.Set(rec.Key, value); err != nil {
				return err
			}
		}
		// SetMetadata restores the persisted bookkeeping, including the
		// recorded EstimatedSize the accounting was built on.
		if err := s.mem.SetMetadata(rec.Key, rec.Metadata); err != nil {
			return err
		}
		s.rows[hash] = &row{key: rec.Key, seq: rec.Seq, raw: rec.Value}
		if !rec.Live {
			s.rows[hash].raw = nil
		}
		if rec.Seq >= s.seq {
			s.seq = rec.Seq + 1
		}
	}

	for _, q := range queries {
		s.mem.RestoreQueryEntry(q)
		s.fps[q.Fingerprint] = struct{}{}
	}
	return nil
}

// persistRow writes one item record to disk.
func (s *Store) persistRow(hash string, r *row, md store.Metadata) error {
	rec := itemRecord{
		Seq:      r.seq,
		Key:      r.key,
		Value:    r.raw,
		Live:     r.raw != nil,
		Metadata: md,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("badgerstore: marshal record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(itemKeyPrefix+hash), data)
	})
}

// deleteRows removes the given hashes from disk and from the row index.
func (s *Store) deleteRows(hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, hash := range hashes {
			if err := txn.Delete([]byte(itemKeyPrefix + hash)); err != nil &&
				!errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badgerstore: delete records: %w", err)
	}
	for _, hash := range hashes {
		delete(s.rows, hash)
	}
	return nil
}

// reconcileQueries deletes persisted query entries the in-memory mirror no
// longer holds. Called after any operation that can cascade into query
// invalidation.
func (s *Store) reconcileQueries() error {
	live := make(map[string]struct{})
	for _, fp := range s.mem.QueryFingerprints() {
		live[fp] = struct{}{}
	}
	var gone []string
	for fp := range s.fps {
		if _, ok := live[fp]; !ok {
			gone = append(gone, fp)
		}
	}
	if len(gone) == 0 {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, fp := range gone {
			if err := txn.Delete([]byte(queryKeyPrefix + fp)); err != nil &&
				!errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badgerstore: reconcile queries: %w", err)
	}
	for _, fp := range gone {
		delete(s.fps, fp)
	}
	return nil
}

// Get implements store.Store. The access bump is persisted so hit counts
// survive restarts.
func (s *Store) Get(k keys.Key) (any, bool, error) {
	value, ok, err := s.mem.Get(k)
	if err != nil || !ok {
		return nil, false, err
	}
	hash, err := keys.CanonicalHash(k)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, exists := s.rows[hash]; exists {
		md, _, err := s.mem.GetMetadata(k)
		if err != nil {
			return nil, false, err
		}
		if err := s.persistRow(hash, r, md); err != nil {
			return nil, false, err
		}
	}
	return value, true, nil
}

// Set implements store.Store.
func (s *Store) Set(k keys.Key, value any) error {
	if value == nil {
		return store.ErrNilValue
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("badgerstore: marshal value: %w", err)
	}
	if err := s.mem.Set(k, value); err != nil {
		return err
	}
	hash, err := keys.CanonicalHash(k)
	if err != nil {
		return err
	}
	nk, err := keys.Normalize(k)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rows[hash]
	if !exists {
		r = &row{key: nk, seq: s.seq}
		s.seq++
		s.rows[hash] = r
	}
	r.raw = raw

	md, _, err := s.mem.GetMetadata(k)
	if err != nil {
		return err
	}
	return s.persistRow(hash, r, md)
}

// IncludesKey implements store.Store.
func (s *Store) IncludesKey(k keys.Key) (bool, error) { return s.mem.IncludesKey(k) }

// Delete implements store.Store.
func (s *Store) Delete(k keys.Key) (bool, error) {
	removed, err := s.mem.Delete(k)
	if err != nil || !removed {
		return removed, err
	}
	hash, err := keys.CanonicalHash(k)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deleteRows([]string{hash}); err != nil {
		return false, err
	}
	return true, s.reconcileQueries()
}

// DeleteMany implements store.Store.
func (s *Store) DeleteMany(ks []keys.Key) error {
	if err := s.mem.DeleteMany(ks); err != nil {
		return err
	}
	hashes := make([]string, 0, len(ks))
	for _, k := range ks {
		hash, err := keys.CanonicalHash(k)
		if err != nil {
			return err
		}
		hashes = append(hashes, hash)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deleteRows(hashes); err != nil {
		return err
	}
	return s.reconcileQueries()
}

// Keys implements store.Store.
func (s *Store) Keys() ([]keys.Key, error) { return s.mem.Keys() }

// Values implements store.Store.
func (s *Store) Values() ([]any, error) { return s.mem.Values() }

// AllIn implements store.Store.
func (s *Store) AllIn(location []keys.Ref) ([]any, error) { return s.mem.AllIn(location) }

// Contains implements store.Store.
func (s *Store) Contains(predicate func(any) bool, location []keys.Ref) (bool, error) {
	return s.mem.Contains(predicate, location)
}

// QueryIn implements store.Store.
func (s *Store) QueryIn(predicate func(any) bool, location []keys.Ref) ([]any, error) {
	return s.mem.QueryIn(predicate, location)
}

// Clear implements store.Store. Query entries stay, matching the in-memory
// semantics; they are validated lazily at read time.
func (s *Store) Clear() error {
	if err := s.mem.Clear(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hashes := make([]string, 0, len(s.rows))
	for hash := range s.rows {
		hashes = append(hashes, hash)
	}
	return s.deleteRows(hashes)
}

// Clone implements store.Store. The clone is a detached in-memory snapshot:
// independent bookkeeping, no disk attachment of its own.
func (s *Store) Clone() (store.Store, error) {
	return s.mem.Clone()
}

// GetMetadata implements store.Store.
func (s *Store) GetMetadata(k keys.Key) (store.Metadata, bool, error) {
	return s.mem.GetMetadata(k)
}

// SetMetadata implements store.Store.
func (s *Store) SetMetadata(k keys.Key, md store.Metadata) error {
	if err := s.mem.SetMetadata(k, md); err != nil {
		return err
	}
	hash, err := keys.CanonicalHash(k)
	if err != nil {
		return err
	}
	nk, err := keys.Normalize(k)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rows[hash]
	if !exists {
		r = &row{key: nk, seq: s.seq}
		s.seq++
		s.rows[hash] = r
	}
	return s.persistRow(hash, r, md)
}

// DeleteMetadata implements store.Store. Mirrors the in-memory semantics:
// placeholders are dropped, live entries untouched.
func (s *Store) DeleteMetadata(k keys.Key) error {
	if err := s.mem.DeleteMetadata(k); err != nil {
		return err
	}
	hash, err := keys.CanonicalHash(k)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rows[hash]
	if !exists || r.raw != nil {
		return nil
	}
	return s.deleteRows([]string{hash})
}

// AllMetadata implements store.Store.
func (s *Store) AllMetadata() (map[string]store.Metadata, error) {
	return s.mem.AllMetadata()
}

// ClearMetadata implements store.Store. Live rows are re-persisted with
// their reset metadata; placeholder rows are dropped from disk.
func (s *Store) ClearMetadata() error {
	if err := s.mem.ClearMetadata(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var placeholders []string
	for hash, r := range s.rows {
		if r.raw == nil {
			placeholders = append(placeholders, hash)
			continue
		}
		md, _, err := s.mem.GetMetadata(r.key)
		if err != nil {
			return err
		}
		if err := s.persistRow(hash, r, md); err != nil {
			return err
		}
	}
	return s.deleteRows(placeholders)
}

// CurrentSize implements store.Store.
func (s *Store) CurrentSize() store.Size { return s.mem.CurrentSize() }

// SizeLimits implements store.Store.
func (s *Store) SizeLimits() store.Limits { return s.mem.SizeLimits() }

// SetQueryResult implements store.Store.
func (s *Store) SetQueryResult(fingerprint string, info store.QueryInfo, itemKeys []keys.Key) error {
	if err := s.mem.SetQueryResult(fingerprint, info, itemKeys); err != nil {
		return err
	}
	q, ok := s.mem.QueryEntrySnapshot(fingerprint)
	if !ok {
		return nil
	}
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("badgerstore: marshal query entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(queryKeyPrefix+fingerprint), data)
	})
	if err != nil {
		return fmt.Errorf("badgerstore: persist query entry: %w", err)
	}
	s.fps[fingerprint] = struct{}{}
	return nil
}

// GetQueryResult implements store.Store. A read-time drop (dangling item
// reference) is reconciled to disk before reporting the miss.
func (s *Store) GetQueryResult(fingerprint string) (store.QueryEntry, bool, error) {
	q, ok, err := s.mem.GetQueryResult(fingerprint)
	if err != nil {
		return store.QueryEntry{}, false, err
	}
	if !ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		if reconcileErr := s.reconcileQueries(); reconcileErr != nil {
			return store.QueryEntry{}, false, reconcileErr
		}
		return store.QueryEntry{}, false, nil
	}
	return q, true, nil
}

// HasQueryResult implements store.Store.
func (s *Store) HasQueryResult(fingerprint string) (bool, error) {
	return s.mem.HasQueryResult(fingerprint)
}

// DeleteQueryResult implements store.Store.
func (s *Store) DeleteQueryResult(fingerprint string) error {
	if err := s.mem.DeleteQueryResult(fingerprint); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(queryKeyPrefix + fingerprint)); err != nil &&
			!errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badgerstore: delete query entry: %w", err)
	}
	delete(s.fps, fingerprint)
	return nil
}

// ClearQueryResults implements store.Store.
func (s *Store) ClearQueryResults() error {
	if err := s.mem.ClearQueryResults(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconcileQueries()
}

// QueryCacheSize implements store.Store.
func (s *Store) QueryCacheSize() (int, int64) { return s.mem.QueryCacheSize() }

// InvalidateItemKeys implements store.Store.
func (s *Store) InvalidateItemKeys(ks []keys.Key) error {
	if err := s.mem.InvalidateItemKeys(ks); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconcileQueries()
}

// InvalidateLocation implements store.Store.
func (s *Store) InvalidateLocation(location []keys.Ref) error {
	if err := s.mem.InvalidateLocation(location); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var gone []string
	for hash, r := range s.rows {
		if _, ok, err := s.mem.GetMetadata(r.key); err != nil {
			return err
		} else if !ok {
			gone = append(gone, hash)
		}
	}
	if err := s.deleteRows(gone); err != nil {
		return err
	}
	return s.reconcileQueries()
}

// Compile-time contract check.
var _ store.Store = (*Store)(nil)
