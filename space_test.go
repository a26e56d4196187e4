// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import "testing"

func TestSpaceAllocateWithinPage(t *testing.T) {
	s, err := newSpace(defaultBacking(), 4096)
	if err != nil {
		t.Fatalf("newSpace: %v", err)
	}
	defer s.Close()

	addr, needsGC, err := s.Allocate(64)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if addr.IsNull() {
		t.Fatal("Allocate should not return a null address when room is available")
	}
	if needsGC {
		t.Error("the first allocation into a fresh page should not need growth")
	}
}

func TestSpaceAllocateGrows(t *testing.T) {
	s, err := newSpace(defaultBacking(), 128)
	if err != nil {
		t.Fatalf("newSpace: %v", err)
	}
	defer s.Close()

	// The backing rounds the 128-byte page up to a whole OS page, so
	// allocate one more 64-byte object than that first page can hold.
	n := int(s.pages[0].region.Size()/64) + 1
	for i := 0; i < n; i++ {
		if _, _, err := s.Allocate(64); err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
	}
	if len(s.pages) < 2 {
		t.Errorf("expected the Space to have grown past one page, has %d", len(s.pages))
	}
}

func TestSpaceAllocateLargeObjectGetsOwnPage(t *testing.T) {
	s, err := newSpace(defaultBacking(), 128)
	if err != nil {
		t.Fatalf("newSpace: %v", err)
	}
	defer s.Close()

	addr, needsGC, err := s.Allocate(4096)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if addr.IsNull() || !needsGC {
		t.Error("an allocation larger than the page size should succeed on a dedicated page and report needsGC")
	}
	if len(s.pages) != 2 {
		t.Errorf("expected a dedicated large-object page, have %d pages", len(s.pages))
	}
}

func TestSpaceSwap(t *testing.T) {
	a, err := newSpace(defaultBacking(), 4096)
	if err != nil {
		t.Fatalf("newSpace a: %v", err)
	}
	defer a.Close()
	b, err := newSpace(defaultBacking(), 4096)
	if err != nil {
		t.Fatalf("newSpace b: %v", err)
	}
	defer b.Close()

	addrInA, _, err := a.Allocate(32)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	a.Swap(b)
	// After the flip, b owns the page addrInA lives on; resolving its
	// header through b must not panic.
	_ = b.headerFor(addrInA).Color()

	aNoLongerOwnsIt := func() (panicked bool) {
		defer func() {
			if recover() != nil {
				panicked = true
			}
		}()
		a.headerFor(addrInA)
		return false
	}()
	if !aNoLongerOwnsIt {
		t.Error("a should no longer own addrInA after Swap")
	}
}

func TestSpaceResetPages(t *testing.T) {
	s, err := newSpace(defaultBacking(), 128)
	if err != nil {
		t.Fatalf("newSpace: %v", err)
	}
	defer s.Close()

	for i := 0; i < 4; i++ {
		if _, _, err := s.Allocate(64); err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
	}
	s.ResetPages()
	if len(s.pages) != 1 {
		t.Errorf("ResetPages should leave exactly one page, has %d", len(s.pages))
	}
	if s.Used() != 0 {
		t.Errorf("ResetPages should reset the cursor, Used() = %d", s.Used())
	}
}

func TestSpaceCompactionCursor(t *testing.T) {
	s, err := newSpace(defaultBacking(), 128)
	if err != nil {
		t.Fatalf("newSpace: %v", err)
	}
	defer s.Close()

	a1, _, _ := s.Allocate(32)
	a2, _, _ := s.Allocate(32)

	cursor := s.beginCompaction()
	d1 := cursor.bump(16)
	d2 := cursor.bump(16)
	if d1 == d2 {
		t.Fatal("two bump() calls should not alias")
	}
	s.copyHeader(a1, d1)
	s.copyHeader(a2, d2)
	s.finishCompaction(cursor)

	if s.Used() != 32 {
		t.Errorf("Used() after compaction = %d, want 32", s.Used())
	}
}
