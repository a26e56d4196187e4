// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import "testing"

func newTestHeader(t *testing.T) (Header, Address) {
	t.Helper()
	arena := make([]byte, headerBytes)
	addr := Address(0x1000)
	h := headerAt(arena, 0)
	h.initSelfForwarded(addr)
	return h, addr
}

func TestHeaderInitialState(t *testing.T) {
	h, addr := newTestHeader(t)
	if h.Color() != White {
		t.Errorf("Color() = %s, want white", h.Color())
	}
	if h.Fwd() != addr {
		t.Errorf("Fwd() = %s, want self %s", h.Fwd(), addr)
	}
	if h.IsForwarded(addr) {
		t.Error("a freshly initialised header should not report as forwarded")
	}
	if h.Age() != 0 || h.SoftMarked() {
		t.Error("age and soft-mark should start clear")
	}
}

func TestHeaderColorTransitions(t *testing.T) {
	h, _ := newTestHeader(t)
	if !h.TryGrey() {
		t.Fatal("TryGrey should succeed from White")
	}
	if h.TryGrey() {
		t.Fatal("TryGrey should fail once already non-White")
	}
	h.Mark()
	if h.Color() != Black || !h.IsMarked() {
		t.Error("Mark should set Black and IsMarked")
	}
	h.Unmark()
	if h.Color() != White || h.IsMarked() {
		t.Error("Unmark should reset to White")
	}
}

func TestHeaderSetFwdPreservesColor(t *testing.T) {
	h, addr := newTestHeader(t)
	h.SetColor(Grey)
	dst := addr.AddWords(2)
	h.SetFwd(dst)
	if h.Fwd() != dst {
		t.Errorf("Fwd() = %s, want %s", h.Fwd(), dst)
	}
	if h.Color() != Grey {
		t.Error("SetFwd must not disturb the colour bits")
	}
	if !h.IsForwarded(addr) {
		t.Error("IsForwarded should be true once Fwd differs from self")
	}
}

func TestHeaderSetFwdRejectsMisaligned(t *testing.T) {
	h, addr := newTestHeader(t)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for a misaligned forwarding address")
		}
	}()
	h.SetFwd(addr.Offset(1))
}

func TestHeaderAgeing(t *testing.T) {
	h, _ := newTestHeader(t)
	for i := uint8(1); i <= 7; i++ {
		if got := h.BumpAge(); got != i {
			t.Errorf("BumpAge() = %d, want %d", got, i)
		}
	}
	if got := h.BumpAge(); got != 7 {
		t.Errorf("BumpAge should saturate at 7, got %d", got)
	}
	h.ResetAge()
	if h.Age() != 0 {
		t.Error("ResetAge should clear the survivor count")
	}
	h.SetAge(3)
	if h.Age() != 3 {
		t.Errorf("SetAge(3): Age() = %d, want 3", h.Age())
	}
}

func TestHeaderSoftMark(t *testing.T) {
	h, _ := newTestHeader(t)
	h.SetSoftMark(true)
	if !h.SoftMarked() {
		t.Error("SoftMarked should report true after SetSoftMark(true)")
	}
	// Age bits must be untouched by the soft-mark flag.
	h.SetAge(5)
	if !h.SoftMarked() {
		t.Error("SetAge should not clear the soft-mark bit")
	}
	h.SetSoftMark(false)
	if h.SoftMarked() {
		t.Error("SoftMarked should report false after SetSoftMark(false)")
	}
	if h.Age() != 5 {
		t.Error("SetSoftMark should not disturb the age bits")
	}
}
