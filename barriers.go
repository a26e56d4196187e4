// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import "sync"

// Barrier is the stop-the-world rendezvous point the multi-mutator
// variant parks at: one safepoint ID is "active" at a time, mutators
// wait on it, and the collector releases them all at once by clearing
// it. Grounded directly on original_source/src/barriers.rs's
// Mutex<usize>+Condvar pair — the same structure, translated from
// parking_lot to sync.Mutex/sync.Cond.
type Barrier struct {
	mu     sync.Mutex
	cond   *sync.Cond
	active uint64
}

func newBarrier() *Barrier {
	b := &Barrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// guard installs id as the active safepoint. Only one safepoint may be
// active at a time.
func (b *Barrier) guard(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id == 0 {
		panic("tgc: safepoint id must be nonzero")
	}
	if b.active != 0 {
		panic("tgc: a safepoint is already active")
	}
	b.active = id
}

// resume clears the active safepoint and wakes every mutator parked
// in wait.
func (b *Barrier) resume(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active != id {
		panic("tgc: resume called with a stale safepoint id")
	}
	b.active = 0
	b.cond.Broadcast()
}

// wait blocks the calling mutator until the safepoint identified by id
// is no longer active.
func (b *Barrier) wait(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.active == id {
		b.cond.Wait()
	}
}

func (b *Barrier) activeID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// writeBarrier implements the Steele incremental-update algorithm
// spec.md §4.10 mandates: "if parent is Black and child is White, set
// parent Grey and push it onto the work queue." Installing a pointer to
// an unreached object into an already-fully-scanned parent would
// otherwise let that object vanish from a mark pass that has already
// moved past the parent — the fix re-darkens the *parent*, not the
// child, so the next mark phase rescans it and discovers the new edge
// itself (§4.6, invariant: no Black object ever points at a White one).
//
// Both Allocate and AllocateShared call this for every outgoing
// reference a freshly boxed value already holds, with the new object
// itself as parent — the same "newly allocated objects may already
// contain pointers, so check them once at creation" treatment
// Go-zh-go.old/src/runtime/mbarrier.go's write barrier gives allocation
// sites. A host linking two already-live objects together explicitly
// (outside of Allocate) uses the exported WriteBarrier, below.
func (h *Heap) writeBarrier(parent, newTarget Address) {
	if parent.IsNull() || newTarget.IsNull() {
		return
	}
	parentHdr := h.headerFor(parent)
	if parentHdr.Color() != Black {
		return
	}
	if h.headerFor(newTarget).Color() != White {
		return
	}
	if parentHdr.TryRegrey() {
		h.pushGrey(parent)
	}
}

// WriteBarrier is the exported form of writeBarrier, for a host that
// mutates an already-live aggregate to point at newTarget (§4.10). It
// does not replace the read barrier: Rooted.Get and Ref.Get still run
// readBarrier on every load. parent is the
// address of the object slot belongs to (Rooted.Address/Ref.Address);
// slot is retargeted to newTarget's address first, then the barrier
// check runs against parent's current colour.
func WriteBarrier[T any](h *Heap, parent Address, slot Slot, newTarget Ref[T]) {
	slot.Retarget(newTarget.addr)
	h.writeBarrier(parent, newTarget.addr)
}

// pushGrey enqueues a regreyed object's address so the next mark phase
// picks it up as an extra root (phase1RootSnapshot drains this queue
// alongside the usual rooted set).
func (h *Heap) pushGrey(addr Address) {
	h.greyMu.Lock()
	h.greyQueue = append(h.greyQueue, addr)
	h.greyMu.Unlock()
}

// drainGrey removes and returns every address pushGrey has queued since
// the last drain.
func (h *Heap) drainGrey() []Address {
	h.greyMu.Lock()
	out := h.greyQueue
	h.greyQueue = nil
	h.greyMu.Unlock()
	return out
}

// readBarrier self-heals a stale reference: if addr's object has
// already been relocated this cycle (its header is forwarded), follow
// the forwarding pointer instead of resolving the stale address. Ref[T]
// and Rooted[T] call this before every slot lookup so a reference that
// has not yet been rewritten by Phase 4/a copying pass still resolves
// correctly (§4.6's "every live reference is updated exactly once" is
// about when rewriting happens, not a promise every load races past it).
func (h *Heap) readBarrier(addr Address) Address {
	if addr.IsNull() {
		return addr
	}
	hdr := h.headerFor(addr)
	if hdr.IsForwarded(addr) {
		return hdr.Fwd()
	}
	return addr
}
