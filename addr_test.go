// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import "testing"

func TestAddressOffset(t *testing.T) {
	a := Address(0x1000)
	if got := a.Offset(8); got != Address(0x1008) {
		t.Errorf("Offset(8) = %s, want 0x1008", got)
	}
	if got := a.Offset(8).OffsetFrom(Address(0x1000)); got != 8 {
		t.Errorf("OffsetFrom = %d, want 8", got)
	}
}

func TestAddressOffsetFromPanicsOnNegative(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for negative offset")
		}
	}()
	Address(0x100).OffsetFrom(Address(0x200))
}

func TestAddressAligned(t *testing.T) {
	cases := []struct {
		addr Address
		want bool
	}{
		{0, true},
		{8, true},
		{16, true},
		{1, false},
		{9, false},
	}
	for _, c := range cases {
		if got := c.addr.Aligned(); got != c.want {
			t.Errorf("Aligned(%s) = %v, want %v", c.addr, got, c.want)
		}
	}
}

func TestAddressWords(t *testing.T) {
	a := Address(0x100)
	if got := a.AddWords(2); got != Address(0x110) {
		t.Errorf("AddWords(2) = %s, want 0x110", got)
	}
	if got := a.AddWords(2).SubWords(2); got != a {
		t.Errorf("SubWords did not invert AddWords: got %s, want %s", got, a)
	}
}

func TestRegionContains(t *testing.T) {
	r := Region{Start: 0x1000, End: 0x2000}
	if !r.Contains(0x1000) {
		t.Error("region should contain its start")
	}
	if r.Contains(0x2000) {
		t.Error("region end is exclusive")
	}
	if !r.ValidTop(0x2000) {
		t.Error("region end is a valid bump-cursor top")
	}
}

func TestRegionDisjointOverlaps(t *testing.T) {
	a := Region{Start: 0, End: 10}
	b := Region{Start: 10, End: 20}
	c := Region{Start: 5, End: 15}

	if !a.Disjoint(b) {
		t.Error("adjacent half-open regions should be disjoint")
	}
	if !a.Overlaps(c) {
		t.Error("a and c should overlap")
	}
	if a.FullyContains(c) {
		t.Error("a does not fully contain c")
	}
}

func TestRegionSize(t *testing.T) {
	r := Region{Start: 100, End: 164}
	if got := r.Size(); got != 64 {
		t.Errorf("Size() = %d, want 64", got)
	}
	inverted := Region{Start: 200, End: 100}
	if got := inverted.Size(); got != 0 {
		t.Errorf("Size() of an inverted region = %d, want 0", got)
	}
}
