// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

package eviction

import (
	"hash/fnv"

	"github.com/tomtom215/strata/internal/store"
)

// lfuStrategy evicts the entry with the minimum access count, ties broken
// by oldest LastAccessedAt, then by smallest hash.
//
// In exact mode the counts come straight from the metadata snapshot. With a
// SketchConfig the counts come from a count-min sketch fed by the lifecycle
// callbacks, bounding memory for large key spaces at the cost of
// overestimation on colliding keys.
type lfuStrategy struct {
	sketch *countMinSketch // nil in exact mode
}

func newLFUStrategy(cfg *SketchConfig) *lfuStrategy {
	if cfg == nil {
		return &lfuStrategy{}
	}
	return &lfuStrategy{sketch: newCountMinSketch(*cfg)}
}

func (*lfuStrategy) Name() string { return PolicyLFU }

func (s *lfuStrategy) OnItemAdded(hash string, _ store.Metadata) {
	if s.sketch != nil {
		s.sketch.observe(hash)
	}
}

func (s *lfuStrategy) OnItemAccessed(hash string, _ store.Metadata) {
	if s.sketch != nil {
		s.sketch.observe(hash)
	}
}

func (*lfuStrategy) OnItemRemoved(string) {}

func (s *lfuStrategy) SelectForEviction(snapshot map[string]store.Metadata) (string, bool) {
	if s.sketch == nil {
		return selectBest(snapshot, func(a, b store.Metadata) bool {
			if a.AccessCount != b.AccessCount {
				return a.AccessCount < b.AccessCount
			}
			return a.LastAccessedAt.Before(b.LastAccessedAt)
		})
	}

	// Approximate mode: rank by sketch estimate instead of the exact
	// counter, with the same tie-break chain.
	var (
		bestHash  string
		bestCount uint64
		bestMD    store.Metadata
		found     bool
	)
	for hash, md := range snapshot {
		count := s.sketch.estimate(hash)
		switch {
		case !found,
			count < bestCount,
			count == bestCount && md.LastAccessedAt.Before(bestMD.LastAccessedAt),
			count == bestCount && md.LastAccessedAt.Equal(bestMD.LastAccessedAt) && hash < bestHash:
			bestHash, bestCount, bestMD, found = hash, count, md, true
		}
	}
	return bestHash, found
}

// countMinSketch is a width x depth matrix of counters with periodic decay,
// giving bounded-memory approximate frequency counting.
type countMinSketch struct {
	width        uint32
	depth        uint32
	counters     [][]uint64
	decayFactor  float64
	decayEvery   uint64
	observations uint64
}

func newCountMinSketch(cfg SketchConfig) *countMinSketch {
	if cfg.Width == 0 {
		cfg.Width = 1024
	}
	if cfg.Depth == 0 {
		cfg.Depth = 4
	}
	if cfg.DecayFactor <= 0 || cfg.DecayFactor >= 1 {
		cfg.DecayFactor = 0.5
	}
	if cfg.DecayEvery == 0 {
		cfg.DecayEvery = 10000
	}
	counters := make([][]uint64, cfg.Depth)
	for i := range counters {
		counters[i] = make([]uint64, cfg.Width)
	}
	return &countMinSketch{
		width:       cfg.Width,
		depth:       cfg.Depth,
		counters:    counters,
		decayFactor: cfg.DecayFactor,
		decayEvery:  cfg.DecayEvery,
	}
}

func (c *countMinSketch) observe(key string) {
	for row := uint32(0); row < c.depth; row++ {
		c.counters[row][c.index(key, row)]++
	}
	c.observations++
	if c.observations%c.decayEvery == 0 {
		c.decay()
	}
}

func (c *countMinSketch) estimate(key string) uint64 {
	min := uint64(0)
	for row := uint32(0); row < c.depth; row++ {
		v := c.counters[row][c.index(key, row)]
		if row == 0 || v < min {
			min = v
		}
	}
	return min
}

// decay scales every counter down so old popularity fades instead of
// pinning entries forever.
func (c *countMinSketch) decay() {
	for _, row := range c.counters {
		for i, v := range row {
			row[i] = uint64(float64(v) * c.decayFactor)
		}
	}
}

// index hashes the key into row's counter slot. Each row salts the hash
// with its row number to approximate independent hash functions.
func (c *countMinSketch) index(key string, row uint32) uint32 {
	h := fnv.New32a()
	h.Write([]byte{byte(row), byte(row >> 8)}) //nolint:errcheck // fnv never fails
	h.Write([]byte(key))                       //nolint:errcheck
	return h.Sum32() % c.width
}
