// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

package eviction

import (
	"container/list"

	"github.com/tomtom215/strata/internal/store"
)

// orderedSet is an O(1) membership list: front is oldest (LRU end), back is
// newest (MRU end). Shared by the ARC lists and the 2Q queues.
type orderedSet struct {
	ll    *list.List
	index map[string]*list.Element
}

func newOrderedSet() *orderedSet {
	return &orderedSet{ll: list.New(), index: make(map[string]*list.Element)}
}

func (s *orderedSet) len() int { return s.ll.Len() }

func (s *orderedSet) has(hash string) bool {
	_, ok := s.index[hash]
	return ok
}

// pushBack appends hash at the MRU end, moving it there if already present.
func (s *orderedSet) pushBack(hash string) {
	if el, ok := s.index[hash]; ok {
		s.ll.MoveToBack(el)
		return
	}
	s.index[hash] = s.ll.PushBack(hash)
}

func (s *orderedSet) remove(hash string) bool {
	el, ok := s.index[hash]
	if !ok {
		return false
	}
	s.ll.Remove(el)
	delete(s.index, hash)
	return true
}

// popFront removes and returns the oldest member.
func (s *orderedSet) popFront() (string, bool) {
	el := s.ll.Front()
	if el == nil {
		return "", false
	}
	hash := el.Value.(string)
	s.ll.Remove(el)
	delete(s.index, hash)
	return hash, true
}

// oldestIn returns the oldest member still present in the snapshot,
// discarding members the store no longer knows about.
func (s *orderedSet) oldestIn(snapshot map[string]store.Metadata) (string, bool) {
	for el := s.ll.Front(); el != nil; {
		next := el.Next()
		hash := el.Value.(string)
		if _, live := snapshot[hash]; live {
			return hash, true
		}
		s.ll.Remove(el)
		delete(s.index, hash)
		el = next
	}
	return "", false
}

// arcStrategy implements the Adaptive Replacement Cache selection policy.
//
// T1 holds keys seen once recently, T2 keys seen at least twice. B1 and B2
// are ghost lists remembering keys recently evicted from T1 and T2; a hit
// on a ghost list shifts the target size p of T1 toward the list that would
// have kept the key, so the policy adapts between recency and frequency.
//
// The enhanced variant (ARCConfig) promotes from T1 to T2 only after
// FrequencyThreshold accesses and scales the adaptation step by
// LearningRate.
type arcStrategy struct {
	capacity int
	p        int // adaptive target size of T1

	t1, t2, b1, b2 *orderedSet

	freqThreshold int
	learningRate  float64
	freq          map[string]int // per-key accesses since entering T1
}

func newARCStrategy(capacity int, cfg *ARCConfig) *arcStrategy {
	s := &arcStrategy{
		capacity:      capacity,
		t1:            newOrderedSet(),
		t2:            newOrderedSet(),
		b1:            newOrderedSet(),
		b2:            newOrderedSet(),
		freqThreshold: 1,
		learningRate:  1.0,
		freq:          make(map[string]int),
	}
	if cfg != nil {
		if cfg.FrequencyThreshold > 1 {
			s.freqThreshold = cfg.FrequencyThreshold
		}
		if cfg.LearningRate > 0 {
			s.learningRate = cfg.LearningRate
		}
	}
	return s
}

func (*arcStrategy) Name() string { return PolicyARC }

func (s *arcStrategy) OnItemAdded(hash string, _ store.Metadata) {
	switch {
	case s.b1.has(hash):
		// Ghost hit in B1: recency would have kept it. Grow T1's target.
		s.adapt(s.b1.len(), s.b2.len(), true)
		s.b1.remove(hash)
		s.t2.pushBack(hash)
	case s.b2.has(hash):
		// Ghost hit in B2: frequency would have kept it. Shrink T1's target.
		s.adapt(s.b2.len(), s.b1.len(), false)
		s.b2.remove(hash)
		s.t2.pushBack(hash)
	case s.t1.has(hash) || s.t2.has(hash):
		// Re-add of a tracked key (overwrite): treat as access.
		s.OnItemAccessed(hash, store.Metadata{})
	default:
		s.t1.pushBack(hash)
		s.freq[hash] = 1
	}
	s.trimGhosts()
}

func (s *arcStrategy) OnItemAccessed(hash string, _ store.Metadata) {
	switch {
	case s.t1.has(hash):
		s.freq[hash]++
		if s.freq[hash] > s.freqThreshold {
			s.t1.remove(hash)
			s.t2.pushBack(hash)
			delete(s.freq, hash)
		} else {
			s.t1.pushBack(hash) // refresh recency within T1
		}
	case s.t2.has(hash):
		s.t2.pushBack(hash)
	default:
		// Unknown key (strategy attached after the fact): adopt into T1.
		s.t1.pushBack(hash)
		s.freq[hash] = 1
	}
}

func (s *arcStrategy) OnItemRemoved(hash string) {
	if s.t1.remove(hash) {
		delete(s.freq, hash)
		s.b1.pushBack(hash)
	} else if s.t2.remove(hash) {
		s.b2.pushBack(hash)
	}
	s.trimGhosts()
}

func (s *arcStrategy) SelectForEviction(snapshot map[string]store.Metadata) (string, bool) {
	if len(snapshot) == 0 {
		return "", false
	}

	// Per the adapted target: draw from T1 while it is at or above p,
	// otherwise from T2.
	if s.t1.len() > 0 && s.t1.len() >= s.p {
		if hash, ok := s.t1.oldestIn(snapshot); ok {
			return hash, true
		}
	}
	if hash, ok := s.t2.oldestIn(snapshot); ok {
		return hash, true
	}
	if hash, ok := s.t1.oldestIn(snapshot); ok {
		return hash, true
	}
	// Lists know nothing about the live set; fall back to snapshot LRU.
	return selectLRU(snapshot)
}

// adapt moves the T1 target p by at least one slot, weighted by the
// relative ghost-list sizes and scaled by the learning rate.
func (s *arcStrategy) adapt(hitLen, otherLen int, grow bool) {
	step := 1
	if hitLen > 0 && otherLen > hitLen {
		step = otherLen / hitLen
	}
	step = int(float64(step) * s.learningRate)
	if step < 1 {
		step = 1
	}
	if grow {
		s.p += step
		if s.p > s.capacity {
			s.p = s.capacity
		}
	} else {
		s.p -= step
		if s.p < 0 {
			s.p = 0
		}
	}
}

// trimGhosts bounds each ghost list to the capacity, discarding the oldest
// remembered evictions first.
func (s *arcStrategy) trimGhosts() {
	for s.b1.len() > s.capacity {
		s.b1.popFront()
	}
	for s.b2.len() > s.capacity {
		s.b2.popFront()
	}
}
