// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import "testing"

func TestRootRegistrySnapshotPrunesDead(t *testing.T) {
	r := newRootRegistry()
	rec1 := r.register(Address(0x100))
	rec2 := r.register(Address(0x200))

	if got := r.snapshot(); len(got) != 2 {
		t.Fatalf("snapshot() = %v, want 2 live targets", got)
	}

	rec2.rooted.Store(false)
	live := r.snapshot()
	if len(live) != 1 || live[0] != Address(0x100) {
		t.Errorf("snapshot() after dropping rec2 = %v, want [0x100]", live)
	}
	if len(r.records) != 1 || r.records[0] != rec1 {
		t.Error("the dead record should have been pruned from the registry")
	}
}

func TestRootRecordSlot(t *testing.T) {
	var rec rootRecord
	rec.target = Address(0x10)
	if rec.Target() != Address(0x10) {
		t.Fatal("Target() should return the record's address")
	}
	rec.Retarget(Address(0x20))
	if rec.Target() != Address(0x20) {
		t.Fatal("Retarget() should update the address Target() returns")
	}
}

func TestRefEqualAndNil(t *testing.T) {
	var zero Ref[Leaf]
	if !zero.IsNil() {
		t.Error("the zero Ref should be nil")
	}

	a := Ref[Leaf]{addr: Address(0x10)}
	b := Ref[Leaf]{addr: Address(0x10)}
	c := Ref[Leaf]{addr: Address(0x20)}
	if !a.Equal(b) {
		t.Error("two references to the same address should be Equal")
	}
	if a.Equal(c) {
		t.Error("references to different addresses should not be Equal")
	}
}
