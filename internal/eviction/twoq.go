// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

package eviction

import (
	"github.com/tomtom215/strata/internal/store"
)

// twoQStrategy implements the 2Q policy: new keys enter a cold FIFO queue
// and only graduate to the hot LRU queue when re-referenced while still
// cold. A key that ages out of the cold queue without a re-reference is the
// preferred eviction victim, which keeps one-shot scans from flushing the
// hot set.
//
// The frequency-weighted variant (TwoQConfig.Decay > 0) keeps a weight per
// hot key, decayed on every promotion, and evicts the lightest hot key
// instead of the least recently used one.
type twoQStrategy struct {
	capacity     int
	coldCapacity int

	cold *orderedSet // FIFO: front is oldest
	hot  *orderedSet // LRU:  front is least recently used

	promotionThreshold int
	coldRefs           map[string]int // re-references while cold

	decay      float64
	hotWeights map[string]float64 // only with decay > 0
}

func newTwoQStrategy(capacity int, cfg *TwoQConfig) *twoQStrategy {
	coldFraction := 0.25
	promotion := 1
	decay := 0.0
	if cfg != nil {
		if cfg.ColdFraction > 0 && cfg.ColdFraction < 1 {
			coldFraction = cfg.ColdFraction
		}
		if cfg.PromotionThreshold > 0 {
			promotion = cfg.PromotionThreshold
		}
		if cfg.Decay > 0 && cfg.Decay < 1 {
			decay = cfg.Decay
		}
	}
	coldCap := int(float64(capacity) * coldFraction)
	if coldCap < 1 {
		coldCap = 1
	}
	s := &twoQStrategy{
		capacity:           capacity,
		coldCapacity:       coldCap,
		cold:               newOrderedSet(),
		hot:                newOrderedSet(),
		promotionThreshold: promotion,
		coldRefs:           make(map[string]int),
		decay:              decay,
	}
	if decay > 0 {
		s.hotWeights = make(map[string]float64)
	}
	return s
}

func (*twoQStrategy) Name() string { return Policy2Q }

func (s *twoQStrategy) OnItemAdded(hash string, _ store.Metadata) {
	if s.cold.has(hash) || s.hot.has(hash) {
		// Overwrite of a tracked key counts as an access.
		s.OnItemAccessed(hash, store.Metadata{})
		return
	}
	s.cold.pushBack(hash)
	s.coldRefs[hash] = 0
}

func (s *twoQStrategy) OnItemAccessed(hash string, _ store.Metadata) {
	switch {
	case s.cold.has(hash):
		s.coldRefs[hash]++
		if s.coldRefs[hash] >= s.promotionThreshold {
			s.promote(hash)
		}
	case s.hot.has(hash):
		s.hot.pushBack(hash)
		if s.hotWeights != nil {
			s.hotWeights[hash]++
		}
	default:
		// Unknown key: adopt as cold.
		s.cold.pushBack(hash)
		s.coldRefs[hash] = 0
	}
}

func (s *twoQStrategy) OnItemRemoved(hash string) {
	if s.cold.remove(hash) {
		delete(s.coldRefs, hash)
	}
	if s.hot.remove(hash) {
		delete(s.hotWeights, hash)
	}
}

func (s *twoQStrategy) SelectForEviction(snapshot map[string]store.Metadata) (string, bool) {
	if len(snapshot) == 0 {
		return "", false
	}

	// Cold entries that were never re-referenced go first; once the cold
	// queue is within bounds, fall back to the hot queue.
	if s.cold.len() > 0 {
		if hash, ok := s.cold.oldestIn(snapshot); ok {
			return hash, true
		}
	}
	if s.hotWeights != nil && s.hot.len() > 0 {
		if hash, ok := s.lightestHot(snapshot); ok {
			return hash, true
		}
	}
	if hash, ok := s.hot.oldestIn(snapshot); ok {
		return hash, true
	}
	return selectLRU(snapshot)
}

// promote moves a cold key into the hot queue, applying the frequency decay
// to the whole hot set so long-unused weight fades over time.
func (s *twoQStrategy) promote(hash string) {
	s.cold.remove(hash)
	delete(s.coldRefs, hash)
	s.hot.pushBack(hash)
	if s.hotWeights == nil {
		return
	}
	for h, w := range s.hotWeights {
		s.hotWeights[h] = w * (1 - s.decay)
	}
	s.hotWeights[hash] = 1
}

// lightestHot returns the live hot key with the smallest frequency weight,
// ties broken by the smaller hash.
func (s *twoQStrategy) lightestHot(snapshot map[string]store.Metadata) (string, bool) {
	var (
		bestHash   string
		bestWeight float64
		found      bool
	)
	for hash, weight := range s.hotWeights {
		if _, live := snapshot[hash]; !live {
			continue
		}
		if !found || weight < bestWeight || (weight == bestWeight && hash < bestHash) {
			bestHash, bestWeight, found = hash, weight, true
		}
	}
	return bestHash, found
}
