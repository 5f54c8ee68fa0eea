// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

package sizeof

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"0", 0},
		{"512", 512},
		{"512B", 512},
		{"10KB", 10_000},
		{"10MB", 10_000_000},
		{"2GB", 2_000_000_000},
		{"1TB", 1_000_000_000_000},
		{"1KiB", 1024},
		{"1MiB", 1 << 20},
		{"2GiB", 2 << 30},
		{"1TiB", 1 << 40},
		{"1.5GB", 1_500_000_000},
		{"0.5KiB", 512},
		{" 10 MB ", 10_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, input := range []string{"", "  ", "MB", "-5MB", "ten MB", "10XB10", "1..5GB"} {
		t.Run(input, func(t *testing.T) {
			if _, err := Parse(input); !errors.Is(err, ErrInvalidSize) {
				t.Errorf("Parse(%q) error = %v, want ErrInvalidSize", input, err)
			}
		})
	}
}

func TestEstimate(t *testing.T) {
	if got := Estimate(nil); got != 0 {
		t.Errorf("Estimate(nil) = %d, want 0", got)
	}

	small := Estimate("a")
	large := Estimate(string(make([]byte, 4096)))
	if large <= small {
		t.Errorf("larger string should estimate larger: %d <= %d", large, small)
	}

	type payload struct {
		Name string
		Data []byte
	}
	p := payload{Name: "track", Data: make([]byte, 1024)}
	if got := Estimate(p); got < 1024 {
		t.Errorf("Estimate(struct with 1KiB payload) = %d, want >= 1024", got)
	}

	m := map[string]int{"a": 1, "b": 2}
	if got := Estimate(m); got <= 0 {
		t.Errorf("Estimate(map) = %d, want > 0", got)
	}
}

func TestEstimateCyclicPointer(t *testing.T) {
	type node struct {
		Next *node
	}
	n := &node{}
	n.Next = n
	// Must terminate and return a positive figure.
	if got := Estimate(n); got <= 0 {
		t.Errorf("Estimate(cyclic) = %d, want > 0", got)
	}
}

func TestEstimateDeterministic(t *testing.T) {
	value := map[string]any{"id": 7, "tags": []string{"x", "y"}}
	first := Estimate(value)
	for i := 0; i < 5; i++ {
		if got := Estimate(value); got != first {
			t.Fatalf("Estimate not deterministic: %d vs %d", got, first)
		}
	}
}
