// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

// Package keys defines the canonical key model used by every layer of the
// cache: a primary key (type + id) optionally contained in an ordered chain
// of ancestor references. Two keys denote the same entity iff their
// canonical hashes are equal, independent of whether ids arrived as numbers
// or strings.
package keys

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// ErrInvalidKey is returned when a key is structurally unusable: empty type
// tag, missing id, or an id of a type that has no canonical string form.
// Mutating operations must reject such keys before touching any state.
var ErrInvalidKey = errors.New("invalid key")

// Ref identifies one ancestor in a key's location chain.
type Ref struct {
	Type string `json:"kt"`
	ID   any    `json:"pk"`
}

// Key identifies a cached item. A primary key has an empty Location; a
// composite key carries the ordered ancestor chain the item lives in.
//
// ID may be a string or any numeric value; Normalize converts it to its
// canonical string form so that 5 and "5" address the same entry.
type Key struct {
	Type     string `json:"kt"`
	ID       any    `json:"pk"`
	Location []Ref  `json:"loc,omitempty"`
}

// New returns a primary key.
func New(keyType string, id any) Key {
	return Key{Type: keyType, ID: id}
}

// NewIn returns a composite key located under the given ancestor chain.
func NewIn(keyType string, id any, location ...Ref) Key {
	return Key{Type: keyType, ID: id, Location: location}
}

// Validate reports whether the key can be normalized. All errors wrap
// ErrInvalidKey so callers can match with errors.Is.
func (k Key) Validate() error {
	if k.Type == "" {
		return fmt.Errorf("%w: empty type", ErrInvalidKey)
	}
	if _, err := normalizeID(k.ID); err != nil {
		return fmt.Errorf("%w: id: %v", ErrInvalidKey, err)
	}
	for i, ref := range k.Location {
		if ref.Type == "" {
			return fmt.Errorf("%w: location[%d]: empty type", ErrInvalidKey, i)
		}
		if _, err := normalizeID(ref.ID); err != nil {
			return fmt.Errorf("%w: location[%d]: %v", ErrInvalidKey, i, err)
		}
	}
	return nil
}

// Normalize converts the key's id fields to their canonical string form.
// When nothing needs conversion the key is returned as-is, sharing the
// original Location slice to avoid needless allocation.
func Normalize(k Key) (Key, error) {
	if err := k.Validate(); err != nil {
		return Key{}, err
	}

	id, _ := normalizeID(k.ID)
	changed := id != k.ID

	loc := k.Location
	copied := false
	for i, ref := range k.Location {
		rid, _ := normalizeID(ref.ID)
		if rid == ref.ID {
			continue
		}
		if !copied {
			// First conversion inside the chain: copy before mutating.
			loc = make([]Ref, len(k.Location))
			copy(loc, k.Location)
			copied = true
		}
		loc[i].ID = rid
		changed = true
	}

	if !changed {
		return k, nil
	}
	return Key{Type: k.Type, ID: id, Location: loc}, nil
}

// CanonicalHash returns the deterministic serialization of the normalized
// key, used as the storage table key. The equality contract is:
//
//	CanonicalHash(a) == CanonicalHash(b)  iff  a and b denote the same entity
func CanonicalHash(k Key) (string, error) {
	nk, err := Normalize(k)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(nk)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return string(data), nil
}

// Equal reports whether two keys denote the same logical entity.
func Equal(a, b Key) bool {
	ha, err := CanonicalHash(a)
	if err != nil {
		return false
	}
	hb, err := CanonicalHash(b)
	if err != nil {
		return false
	}
	return ha == hb
}

// LocationEqual reports whether two location chains are equal after id
// normalization. Used by the store's location-scoped queries, which match
// on the exact chain rather than a prefix.
func LocationEqual(a, b []Ref) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type {
			return false
		}
		aid, err := normalizeID(a[i].ID)
		if err != nil {
			return false
		}
		bid, err := normalizeID(b[i].ID)
		if err != nil {
			return false
		}
		if aid != bid {
			return false
		}
	}
	return true
}

// normalizeID converts an id to its canonical string form. Strings pass
// through untouched; integer and float kinds format to their shortest
// decimal representation so that 5, 5.0 and "5" collide.
func normalizeID(id any) (string, error) {
	switch v := id.(type) {
	case string:
		if v == "" {
			return "", errors.New("empty id")
		}
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		if v == "" {
			return "", errors.New("empty id")
		}
		return string(v), nil
	case nil:
		return "", errors.New("nil id")
	default:
		return "", fmt.Errorf("unsupported id type %T", id)
	}
}
