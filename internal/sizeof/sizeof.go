// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

// Package sizeof estimates the in-memory byte cost of cached values and
// parses human-readable size strings ("10MB", "1KiB") into byte counts for
// the configuration layer.
package sizeof

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unsafe"

	"github.com/goccy/go-json"
)

// ErrInvalidSize is returned when a size string cannot be parsed. Size
// strings come from configuration, so this is a configuration error raised
// at load time, never deferred to first use.
var ErrInvalidSize = errors.New("invalid size string")

// decimal and binary suffix multipliers. A bare number is bytes.
var sizeSuffixes = []struct {
	suffix     string
	multiplier int64
}{
	// Binary suffixes first: "KiB" must not match the "B" fallthrough.
	{"KiB", 1 << 10},
	{"MiB", 1 << 20},
	{"GiB", 1 << 30},
	{"TiB", 1 << 40},
	{"KB", 1_000},
	{"MB", 1_000_000},
	{"GB", 1_000_000_000},
	{"TB", 1_000_000_000_000},
	{"B", 1},
}

// Parse converts a size string into a byte count. Decimal suffixes
// (KB, MB, GB, TB) are powers of 1000, binary suffixes (KiB, MiB, GiB, TiB)
// powers of 1024, and a bare number is bytes. Parsing is case-sensitive for
// the "i" but tolerant of surrounding whitespace.
func Parse(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidSize)
	}

	numPart := trimmed
	multiplier := int64(1)
	for _, sfx := range sizeSuffixes {
		if strings.HasSuffix(trimmed, sfx.suffix) {
			numPart = strings.TrimSpace(strings.TrimSuffix(trimmed, sfx.suffix))
			multiplier = sfx.multiplier
			break
		}
	}

	if numPart == "" {
		return 0, fmt.Errorf("%w: %q has no numeric part", ErrInvalidSize, s)
	}

	// Allow fractional sizes like "1.5GB"; the result is floored to bytes.
	if strings.ContainsAny(numPart, ".eE") {
		f, err := strconv.ParseFloat(numPart, 64)
		if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
		}
		return int64(f * float64(multiplier)), nil
	}

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	return n * multiplier, nil
}

// Estimate returns the approximate in-memory byte cost of a value. The
// estimate walks strings, slices, maps and structs reflectively; anything
// it cannot walk (channels, funcs) falls back to the word size. Values that
// marshal to JSON more compactly than the reflective walk suggests still
// report the walk's figure, because the cache holds the decoded form.
func Estimate(value any) int64 {
	if value == nil {
		return 0
	}
	seen := make(map[uintptr]struct{})
	size := estimateValue(reflect.ValueOf(value), seen, 0)
	if size > 0 {
		return size
	}
	// Last resort for opaque values: length of the JSON encoding.
	if data, err := json.Marshal(value); err == nil {
		return int64(len(data))
	}
	return int64(unsafe.Sizeof(uintptr(0)))
}

// maxEstimateDepth bounds the reflective walk against pathological nesting.
const maxEstimateDepth = 32

func estimateValue(v reflect.Value, seen map[uintptr]struct{}, depth int) int64 {
	if !v.IsValid() || depth > maxEstimateDepth {
		return 0
	}

	switch v.Kind() {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 4
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64,
		reflect.Uintptr, reflect.Float64, reflect.Complex64:
		return 8
	case reflect.Complex128:
		return 16
	case reflect.String:
		return int64(len(v.String())) + 16 // string header
	case reflect.Slice:
		if v.IsNil() {
			return 24 // slice header
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return int64(v.Len()) + 24
		}
		size := int64(24)
		for i := 0; i < v.Len(); i++ {
			size += estimateValue(v.Index(i), seen, depth+1)
		}
		return size
	case reflect.Array:
		size := int64(0)
		for i := 0; i < v.Len(); i++ {
			size += estimateValue(v.Index(i), seen, depth+1)
		}
		return size
	case reflect.Map:
		if v.IsNil() {
			return 8
		}
		size := int64(48) // map header overhead
		iter := v.MapRange()
		for iter.Next() {
			size += estimateValue(iter.Key(), seen, depth+1)
			size += estimateValue(iter.Value(), seen, depth+1)
		}
		return size
	case reflect.Struct:
		size := int64(0)
		for i := 0; i < v.NumField(); i++ {
			size += estimateValue(v.Field(i), seen, depth+1)
		}
		return size
	case reflect.Ptr:
		if v.IsNil() {
			return 8
		}
		ptr := v.Pointer()
		if _, ok := seen[ptr]; ok {
			return 8 // already counted; avoid cycles
		}
		seen[ptr] = struct{}{}
		return 8 + estimateValue(v.Elem(), seen, depth+1)
	case reflect.Interface:
		if v.IsNil() {
			return 16
		}
		return 16 + estimateValue(v.Elem(), seen, depth+1)
	default:
		return 8
	}
}
