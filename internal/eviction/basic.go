// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

package eviction

import (
	"math/rand"
	"sort"
	"time"

	"github.com/tomtom215/strata/internal/store"
)

// The recency/age strategies carry no auxiliary state: the metadata
// snapshot already holds everything they rank on, so the lifecycle
// callbacks are no-ops.

// lruStrategy evicts the entry with the minimum LastAccessedAt.
type lruStrategy struct{}

func (*lruStrategy) Name() string                                  { return PolicyLRU }
func (*lruStrategy) OnItemAdded(string, store.Metadata)            {}
func (*lruStrategy) OnItemAccessed(string, store.Metadata)         {}
func (*lruStrategy) OnItemRemoved(string)                          {}
func (*lruStrategy) SelectForEviction(s map[string]store.Metadata) (string, bool) {
	return selectLRU(s)
}

// mruStrategy evicts the entry with the maximum LastAccessedAt: the item
// just used. Useful for scan-resistant workloads where the most recent
// access is the least likely to repeat.
type mruStrategy struct{}

func (*mruStrategy) Name() string                          { return PolicyMRU }
func (*mruStrategy) OnItemAdded(string, store.Metadata)    {}
func (*mruStrategy) OnItemAccessed(string, store.Metadata) {}
func (*mruStrategy) OnItemRemoved(string)                  {}
func (*mruStrategy) SelectForEviction(s map[string]store.Metadata) (string, bool) {
	return selectBest(s, func(a, b store.Metadata) bool {
		return a.LastAccessedAt.After(b.LastAccessedAt)
	})
}

// fifoStrategy evicts the entry with the minimum AddedAt, irrespective of
// how often it was read since.
type fifoStrategy struct{}

func (*fifoStrategy) Name() string                          { return PolicyFIFO }
func (*fifoStrategy) OnItemAdded(string, store.Metadata)    {}
func (*fifoStrategy) OnItemAccessed(string, store.Metadata) {}
func (*fifoStrategy) OnItemRemoved(string)                  {}
func (*fifoStrategy) SelectForEviction(s map[string]store.Metadata) (string, bool) {
	return selectBest(s, func(a, b store.Metadata) bool {
		return a.AddedAt.Before(b.AddedAt)
	})
}

// randomStrategy evicts a uniformly random live key. The snapshot keys are
// sorted before indexing so a seeded source yields a reproducible pick.
type randomStrategy struct {
	rng *rand.Rand
}

func newRandomStrategy(seed int64) *randomStrategy {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &randomStrategy{rng: rand.New(rand.NewSource(seed))}
}

func (*randomStrategy) Name() string                          { return PolicyRandom }
func (*randomStrategy) OnItemAdded(string, store.Metadata)    {}
func (*randomStrategy) OnItemAccessed(string, store.Metadata) {}
func (*randomStrategy) OnItemRemoved(string)                  {}

func (r *randomStrategy) SelectForEviction(snapshot map[string]store.Metadata) (string, bool) {
	if len(snapshot) == 0 {
		return "", false
	}
	hashes := make([]string, 0, len(snapshot))
	for hash := range snapshot {
		hashes = append(hashes, hash)
	}
	sort.Strings(hashes)
	return hashes[r.rng.Intn(len(hashes))], true
}
