// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

package store

import (
	"testing"
	"time"

	"github.com/tomtom215/strata/internal/keys"
)

func TestMemorySetGet(t *testing.T) {
	m := NewMemory(Limits{})
	k := keys.New("track", 1)

	if err := m.Set(k, "song"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, ok, err := m.Get(k)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || value != "song" {
		t.Errorf("Get = (%v, %v), want (song, true)", value, ok)
	}

	// Numeric and string ids address the same entry.
	value, ok, err = m.Get(keys.New("track", "1"))
	if err != nil {
		t.Fatalf("Get string id: %v", err)
	}
	if !ok || value != "song" {
		t.Errorf("Get with string id = (%v, %v), want (song, true)", value, ok)
	}
}

func TestMemorySetNilValue(t *testing.T) {
	m := NewMemory(Limits{})
	if err := m.Set(keys.New("track", 1), nil); err != ErrNilValue {
		t.Errorf("Set(nil) = %v, want ErrNilValue", err)
	}
}

func TestMemoryAccountingInvariant(t *testing.T) {
	m := NewMemory(Limits{MaxItems: 10, MaxBytes: 1 << 20})

	k1 := keys.New("track", 1)
	k2 := keys.New("track", 2)
	if err := m.Set(k1, "aaaa"); err != nil {
		t.Fatalf("Set k1: %v", err)
	}
	if err := m.Set(k2, "bbbbbbbb"); err != nil {
		t.Fatalf("Set k2: %v", err)
	}

	size := m.CurrentSize()
	if size.ItemCount != 2 {
		t.Errorf("ItemCount = %d, want 2", size.ItemCount)
	}

	all, err := m.AllMetadata()
	if err != nil {
		t.Fatalf("AllMetadata: %v", err)
	}
	var sum int64
	for _, md := range all {
		sum += md.EstimatedSize
	}
	if sum != size.SizeBytes {
		t.Errorf("SizeBytes = %d, metadata sum = %d; accounting out of step", size.SizeBytes, sum)
	}

	// Overwrite adjusts by the delta, not by re-adding.
	if err := m.Set(k1, "a much longer replacement value"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	size = m.CurrentSize()
	all, _ = m.AllMetadata()
	sum = 0
	for _, md := range all {
		sum += md.EstimatedSize
	}
	if sum != size.SizeBytes {
		t.Errorf("after overwrite: SizeBytes = %d, metadata sum = %d", size.SizeBytes, sum)
	}
	if size.ItemCount != 2 {
		t.Errorf("overwrite changed item count: %d", size.ItemCount)
	}

	// Delete returns the accounting to zero for the removed entry.
	if _, err := m.Delete(k1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Delete(k2); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	size = m.CurrentSize()
	if size.ItemCount != 0 || size.SizeBytes != 0 {
		t.Errorf("after deleting all: size = %+v, want zero", size)
	}
}

func TestMemoryMetadataBumpsOnGet(t *testing.T) {
	m := NewMemory(Limits{})
	k := keys.New("track", 1)
	if err := m.Set(k, "song"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	md1, _, _ := m.GetMetadata(k)
	if md1.AccessCount != 0 {
		t.Errorf("fresh entry AccessCount = %d, want 0", md1.AccessCount)
	}

	if _, _, err := m.Get(k); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, _, err := m.Get(k); err != nil {
		t.Fatalf("Get: %v", err)
	}
	md2, _, _ := m.GetMetadata(k)
	if md2.AccessCount != 2 {
		t.Errorf("AccessCount = %d, want 2", md2.AccessCount)
	}
	if md2.AddedAt != md1.AddedAt {
		t.Error("AddedAt must not change on access")
	}
}

func TestMemoryPlaceholderMetadata(t *testing.T) {
	m := NewMemory(Limits{})
	k := keys.New("track", 1)

	// Metadata staged before the value arrives.
	if err := m.SetMetadata(k, Metadata{AccessCount: 7}); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}

	// Placeholder is invisible to item reads and accounting.
	if _, ok, _ := m.Get(k); ok {
		t.Error("placeholder must not be returned by Get")
	}
	if ok, _ := m.IncludesKey(k); ok {
		t.Error("placeholder must not satisfy IncludesKey")
	}
	if size := m.CurrentSize(); size.ItemCount != 0 {
		t.Errorf("placeholder counted: %+v", size)
	}

	// But the metadata is readable.
	md, ok, err := m.GetMetadata(k)
	if err != nil || !ok {
		t.Fatalf("GetMetadata = (%v, %v)", ok, err)
	}
	if md.AccessCount != 7 {
		t.Errorf("AccessCount = %d, want 7", md.AccessCount)
	}

	// Promotion to live keeps the staged metadata.
	if err := m.Set(k, "song"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	md, _, _ = m.GetMetadata(k)
	if md.AccessCount != 7 {
		t.Errorf("promotion lost metadata: AccessCount = %d", md.AccessCount)
	}
	if size := m.CurrentSize(); size.ItemCount != 1 {
		t.Errorf("promoted entry not counted: %+v", size)
	}
}

func TestMemoryDeleteMetadataSemantics(t *testing.T) {
	m := NewMemory(Limits{})
	live := keys.New("track", 1)
	ghost := keys.New("track", 2)

	if err := m.Set(live, "song"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.SetMetadata(ghost, Metadata{}); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}

	// No-op for live entries.
	if err := m.DeleteMetadata(live); err != nil {
		t.Fatalf("DeleteMetadata(live): %v", err)
	}
	if _, ok, _ := m.GetMetadata(live); !ok {
		t.Error("live entry metadata must survive DeleteMetadata")
	}

	// Drops placeholders whole.
	if err := m.DeleteMetadata(ghost); err != nil {
		t.Fatalf("DeleteMetadata(ghost): %v", err)
	}
	if _, ok, _ := m.GetMetadata(ghost); ok {
		t.Error("placeholder must be removed by DeleteMetadata")
	}
}

func TestMemoryClearMetadata(t *testing.T) {
	m := NewMemory(Limits{})
	live := keys.New("track", 1)
	ghost := keys.New("track", 2)
	if err := m.Set(live, "song"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, _, err := m.Get(live); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := m.SetMetadata(ghost, Metadata{}); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}

	before := m.CurrentSize()
	if err := m.ClearMetadata(); err != nil {
		t.Fatalf("ClearMetadata: %v", err)
	}

	md, ok, _ := m.GetMetadata(live)
	if !ok {
		t.Fatal("live entry lost by ClearMetadata")
	}
	if md.AccessCount != 0 || !md.LastAccessedAt.IsZero() {
		t.Errorf("metadata not reset: %+v", md)
	}
	if md.EstimatedSize == 0 {
		t.Error("EstimatedSize must survive ClearMetadata")
	}
	if after := m.CurrentSize(); after != before {
		t.Errorf("accounting changed by ClearMetadata: %+v -> %+v", before, after)
	}
	if _, ok, _ := m.GetMetadata(ghost); ok {
		t.Error("placeholder must be dropped by ClearMetadata")
	}
}

func TestMemoryLocationScopes(t *testing.T) {
	m := NewMemory(Limits{})
	album3 := []keys.Ref{{Type: "album", ID: 3}}
	album4 := []keys.Ref{{Type: "album", ID: 4}}

	if err := m.Set(keys.NewIn("track", 1, album3...), "a"); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(keys.NewIn("track", 2, album3...), "b"); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(keys.NewIn("track", 3, album4...), "c"); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(keys.New("playlist", 9), "d"); err != nil {
		t.Fatal(err)
	}

	in3, err := m.AllIn(album3)
	if err != nil {
		t.Fatalf("AllIn: %v", err)
	}
	if len(in3) != 2 {
		t.Errorf("AllIn(album3) = %d items, want 2", len(in3))
	}

	// Normalized location matching: string id "3" addresses the same scope.
	in3s, _ := m.AllIn([]keys.Ref{{Type: "album", ID: "3"}})
	if len(in3s) != 2 {
		t.Errorf("AllIn(album\"3\") = %d items, want 2", len(in3s))
	}

	// Empty location returns everything.
	all, _ := m.AllIn(nil)
	if len(all) != 4 {
		t.Errorf("AllIn(nil) = %d items, want 4", len(all))
	}

	found, _ := m.Contains(func(v any) bool { return v == "b" }, album3)
	if !found {
		t.Error("Contains should find b in album3")
	}
	found, _ = m.Contains(func(v any) bool { return v == "c" }, album3)
	if found {
		t.Error("Contains must not find c in album3")
	}

	matches, _ := m.QueryIn(func(v any) bool { return v == "a" || v == "c" }, nil)
	if len(matches) != 2 {
		t.Errorf("QueryIn = %d matches, want 2", len(matches))
	}
}

func TestMemoryKeysValuesInsertionOrder(t *testing.T) {
	m := NewMemory(Limits{})
	for i := 1; i <= 3; i++ {
		if err := m.Set(keys.New("track", i), i*10); err != nil {
			t.Fatal(err)
		}
	}
	values, err := m.Values()
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	for i, v := range values {
		if v != (i+1)*10 {
			t.Errorf("values[%d] = %v, want %d", i, v, (i+1)*10)
		}
	}
	ks, _ := m.Keys()
	if len(ks) != 3 {
		t.Fatalf("Keys = %d, want 3", len(ks))
	}
	if !keys.Equal(ks[0], keys.New("track", 1)) {
		t.Errorf("keys[0] = %+v, want track/1", ks[0])
	}
}

func TestMemoryQueryResultLifecycle(t *testing.T) {
	m := NewMemory(Limits{})
	k1 := keys.New("track", 1)
	k2 := keys.New("track", 2)
	if err := m.Set(k1, "a"); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(k2, "b"); err != nil {
		t.Fatal(err)
	}

	info := QueryInfo{QueryType: "by-artist", Complete: true}
	if err := m.SetQueryResult("fp1", info, []keys.Key{k1, k2}); err != nil {
		t.Fatalf("SetQueryResult: %v", err)
	}

	q, ok, err := m.GetQueryResult("fp1")
	if err != nil || !ok {
		t.Fatalf("GetQueryResult = (%v, %v)", ok, err)
	}
	if len(q.ItemKeys) != 2 || q.Info != info {
		t.Errorf("query entry = %+v", q)
	}

	entries, bytes := m.QueryCacheSize()
	if entries != 1 || bytes <= 0 {
		t.Errorf("QueryCacheSize = (%d, %d)", entries, bytes)
	}

	// Deleting a referenced item invalidates the query entry.
	if _, err := m.Delete(k2); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := m.GetQueryResult("fp1"); ok {
		t.Error("query entry must be invalidated when a referenced item is deleted")
	}
	entries, bytes = m.QueryCacheSize()
	if entries != 0 || bytes != 0 {
		t.Errorf("query accounting after invalidation = (%d, %d), want (0, 0)", entries, bytes)
	}
}

func TestMemoryQueryResultDanglingReferenceDroppedAtRead(t *testing.T) {
	m := NewMemory(Limits{})
	k := keys.New("track", 1)

	// Entry recorded against a key that never existed.
	if err := m.SetQueryResult("fp1", QueryInfo{QueryType: "q"}, []keys.Key{k}); err != nil {
		t.Fatalf("SetQueryResult: %v", err)
	}
	if ok, _ := m.HasQueryResult("fp1"); !ok {
		t.Fatal("HasQueryResult should see the entry before validation")
	}
	if _, ok, _ := m.GetQueryResult("fp1"); ok {
		t.Error("dangling query entry must miss")
	}
	if ok, _ := m.HasQueryResult("fp1"); ok {
		t.Error("dangling query entry must be dropped after the failed read")
	}
}

func TestMemoryClearKeepsQueryEntries(t *testing.T) {
	m := NewMemory(Limits{})
	k := keys.New("track", 1)
	if err := m.Set(k, "a"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetQueryResult("fp1", QueryInfo{}, []keys.Key{k}); err != nil {
		t.Fatal(err)
	}

	if err := m.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	// Entry survives Clear but misses lazily because its item is gone.
	if ok, _ := m.HasQueryResult("fp1"); !ok {
		t.Error("Clear must leave query entries in place")
	}
	if _, ok, _ := m.GetQueryResult("fp1"); ok {
		t.Error("query entry over cleared items must miss at read")
	}
}

func TestMemoryInvalidateItemKeys(t *testing.T) {
	m := NewMemory(Limits{})
	k1 := keys.New("track", 1)
	k2 := keys.New("track", 2)
	if err := m.Set(k1, "a"); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(k2, "b"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetQueryResult("both", QueryInfo{}, []keys.Key{k1, k2}); err != nil {
		t.Fatal(err)
	}
	if err := m.SetQueryResult("only2", QueryInfo{}, []keys.Key{k2}); err != nil {
		t.Fatal(err)
	}

	if err := m.InvalidateItemKeys([]keys.Key{k1}); err != nil {
		t.Fatalf("InvalidateItemKeys: %v", err)
	}
	if ok, _ := m.HasQueryResult("both"); ok {
		t.Error("entry referencing k1 must be invalidated")
	}
	if ok, _ := m.HasQueryResult("only2"); !ok {
		t.Error("entry not referencing k1 must survive")
	}
	// Items themselves are untouched.
	if ok, _ := m.IncludesKey(k1); !ok {
		t.Error("InvalidateItemKeys must not delete items")
	}
}

func TestMemoryInvalidateLocation(t *testing.T) {
	m := NewMemory(Limits{})
	album := []keys.Ref{{Type: "album", ID: 3}}
	located := keys.NewIn("track", 1, album...)
	primary := keys.New("track", 2)
	if err := m.Set(located, "a"); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(primary, "b"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetQueryResult("fp", QueryInfo{}, []keys.Key{located}); err != nil {
		t.Fatal(err)
	}

	if err := m.InvalidateLocation(album); err != nil {
		t.Fatalf("InvalidateLocation: %v", err)
	}
	if ok, _ := m.IncludesKey(located); ok {
		t.Error("located item must be removed")
	}
	if ok, _ := m.IncludesKey(primary); !ok {
		t.Error("primary item must survive a located invalidation")
	}
	if ok, _ := m.HasQueryResult("fp"); ok {
		t.Error("query entry referencing the removed item must be invalidated")
	}

	// Empty location targets primary (non-located) items only.
	if err := m.Set(located, "a"); err != nil {
		t.Fatal(err)
	}
	if err := m.InvalidateLocation(nil); err != nil {
		t.Fatalf("InvalidateLocation(nil): %v", err)
	}
	if ok, _ := m.IncludesKey(primary); ok {
		t.Error("primary item must be removed by empty-location invalidation")
	}
	if ok, _ := m.IncludesKey(located); !ok {
		t.Error("located item must survive empty-location invalidation")
	}
}

func TestMemoryCloneIndependence(t *testing.T) {
	m := NewMemory(Limits{MaxItems: 5})
	k := keys.New("track", 1)
	if err := m.Set(k, "a"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetQueryResult("fp", QueryInfo{}, []keys.Key{k}); err != nil {
		t.Fatal(err)
	}

	cloned, err := m.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}

	// Mutating the original must not leak into the clone.
	if _, err := m.Delete(k); err != nil {
		t.Fatal(err)
	}
	if ok, _ := cloned.IncludesKey(k); !ok {
		t.Error("clone lost an entry deleted from the original")
	}
	if _, ok, _ := cloned.GetQueryResult("fp"); !ok {
		t.Error("clone lost a query entry invalidated in the original")
	}

	// And the other direction.
	if err := cloned.Set(keys.New("track", 2), "b"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := m.IncludesKey(keys.New("track", 2)); ok {
		t.Error("original sees entries added to the clone")
	}
	if limits := cloned.SizeLimits(); limits.MaxItems != 5 {
		t.Errorf("clone limits = %+v, want MaxItems 5", limits)
	}
}

func TestMemoryDeleteManyBatchesInvalidation(t *testing.T) {
	m := NewMemory(Limits{})
	var ks []keys.Key
	for i := 1; i <= 4; i++ {
		k := keys.New("track", i)
		ks = append(ks, k)
		if err := m.Set(k, i); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.SetQueryResult("fp", QueryInfo{}, ks[:2]); err != nil {
		t.Fatal(err)
	}

	if err := m.DeleteMany(ks[:3]); err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if size := m.CurrentSize(); size.ItemCount != 1 {
		t.Errorf("ItemCount = %d, want 1", size.ItemCount)
	}
	if ok, _ := m.HasQueryResult("fp"); ok {
		t.Error("query entry referencing deleted items must be gone")
	}
}

func TestMemoryMetadataTimestamps(t *testing.T) {
	m := NewMemory(Limits{})
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	current := base
	m.now = func() time.Time { return current }

	k := keys.New("track", 1)
	if err := m.Set(k, "a"); err != nil {
		t.Fatal(err)
	}
	current = base.Add(time.Minute)
	if _, _, err := m.Get(k); err != nil {
		t.Fatal(err)
	}

	md, _, _ := m.GetMetadata(k)
	if !md.AddedAt.Equal(base) {
		t.Errorf("AddedAt = %v, want %v", md.AddedAt, base)
	}
	if !md.LastAccessedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("LastAccessedAt = %v, want %v", md.LastAccessedAt, base.Add(time.Minute))
	}
}
