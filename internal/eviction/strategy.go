// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

// Package eviction provides the pluggable eviction-strategy framework and
// the manager that enforces configured item/byte limits.
//
// A strategy never owns entries; it observes lifecycle callbacks and selects
// victims over metadata snapshots supplied by the store. Strategy auxiliary
// state (ARC's four lists, 2Q's queues, the optional LFU sketch) is private
// to the strategy instance and mutated only through the callbacks.
package eviction

import (
	"errors"
	"fmt"

	"github.com/tomtom215/strata/internal/store"
)

// ErrUnknownPolicy is returned at construction time for a policy name
// outside the closed set. Configuration error, never deferred to first use.
var ErrUnknownPolicy = errors.New("unknown eviction policy")

// Policy names accepted by New. The set is closed; variants (LFU sketch,
// enhanced ARC, frequency-weighted 2Q) are gated by Options, not by
// additional names.
const (
	PolicyLRU    = "lru"
	PolicyLFU    = "lfu"
	PolicyFIFO   = "fifo"
	PolicyMRU    = "mru"
	PolicyRandom = "random"
	PolicyARC    = "arc"
	Policy2Q     = "2q"
)

// Strategy is the capability set every eviction algorithm implements.
// Callbacks are keyed by canonical hash; SelectForEviction picks one victim
// from the live-metadata snapshot or reports none when the snapshot is
// empty.
type Strategy interface {
	Name() string
	OnItemAdded(hash string, md store.Metadata)
	OnItemAccessed(hash string, md store.Metadata)
	OnItemRemoved(hash string)
	SelectForEviction(snapshot map[string]store.Metadata) (string, bool)
}

// SketchConfig enables approximate LFU counting via a count-min sketch,
// for key spaces where exact per-key counters are too costly.
type SketchConfig struct {
	Width       uint32  // counters per row; default 1024
	Depth       uint32  // hash rows; default 4
	DecayFactor float64 // counter halving factor applied on decay; default 0.5
	DecayEvery  uint64  // observations between decays; default 10000
}

// ARCConfig tunes the enhanced ARC variant. Zero values select classic ARC.
type ARCConfig struct {
	// FrequencyThreshold is the access count a T1 entry needs before it is
	// promoted to T2. Classic ARC promotes on the first re-reference (1).
	FrequencyThreshold int
	// LearningRate scales the adaptation step applied on ghost hits.
	// Classic ARC uses 1.0.
	LearningRate float64
}

// TwoQConfig tunes the 2Q variant. Zero values select classic 2Q.
type TwoQConfig struct {
	// ColdFraction is the share of capacity reserved for the cold FIFO
	// queue. Default 0.25, following the 2Q paper's Kin recommendation.
	ColdFraction float64
	// PromotionThreshold is the number of re-references a cold entry needs
	// before promotion to the hot queue. Default 1.
	PromotionThreshold int
	// Decay, when > 0, enables the frequency-weighted hot queue: hot
	// weights are multiplied by (1 - Decay) on every promotion, so stale
	// frequency fades.
	Decay float64
}

// Options carries construction parameters shared by the strategies.
type Options struct {
	// Capacity is the working-set hint used to size ARC ghost lists and
	// the 2Q cold queue. When the cache is byte-limited rather than
	// item-limited, callers pass an estimate; default 1024.
	Capacity int

	// Seed makes the random strategy deterministic in tests. Zero means
	// time-seeded.
	Seed int64

	Sketch *SketchConfig
	ARC    *ARCConfig
	TwoQ   *TwoQConfig
}

// New constructs a strategy from its policy name. Unknown names are a
// configuration error.
func New(policy string, opts Options) (Strategy, error) {
	if opts.Capacity <= 0 {
		opts.Capacity = 1024
	}
	switch policy {
	case PolicyLRU:
		return &lruStrategy{}, nil
	case PolicyMRU:
		return &mruStrategy{}, nil
	case PolicyFIFO:
		return &fifoStrategy{}, nil
	case PolicyRandom:
		return newRandomStrategy(opts.Seed), nil
	case PolicyLFU:
		return newLFUStrategy(opts.Sketch), nil
	case PolicyARC:
		return newARCStrategy(opts.Capacity, opts.ARC), nil
	case Policy2Q:
		return newTwoQStrategy(opts.Capacity, opts.TwoQ), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
}

// ValidPolicy reports whether name is in the closed policy set. Used by the
// config loader to reject unknown policies before the engine is built.
func ValidPolicy(name string) bool {
	switch name {
	case PolicyLRU, PolicyLFU, PolicyFIFO, PolicyMRU, PolicyRandom, PolicyARC, Policy2Q:
		return true
	}
	return false
}

// selectBest scans the snapshot and returns the hash preferred by less.
// When two candidates compare equal in both directions, the smaller
// canonical hash wins, giving every strategy deterministic ties.
func selectBest(snapshot map[string]store.Metadata, less func(a, b store.Metadata) bool) (string, bool) {
	var (
		bestHash string
		bestMD   store.Metadata
		found    bool
	)
	for hash, md := range snapshot {
		if !found {
			bestHash, bestMD, found = hash, md, true
			continue
		}
		switch {
		case less(md, bestMD):
			bestHash, bestMD = hash, md
		case !less(bestMD, md) && hash < bestHash:
			// Equal under the criterion: lexicographic tie-break.
			bestHash, bestMD = hash, md
		}
	}
	return bestHash, found
}

// selectLRU is the shared fallback: minimum LastAccessedAt over the
// snapshot. ARC and 2Q use it when their private queues hold no key that is
// still live (e.g. right after a runtime strategy swap).
func selectLRU(snapshot map[string]store.Metadata) (string, bool) {
	return selectBest(snapshot, func(a, b store.Metadata) bool {
		return a.LastAccessedAt.Before(b.LastAccessedAt)
	})
}
