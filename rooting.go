// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// rootRecord is the stable, heap-resident record a Rooted[T] handle
// points at (§4.8: "the collector relocates objects, so mutator-visible
// references cannot be raw pointers into the heap"). Grounded on
// original_source/src/rooting.rs's RootedInner{rooted, inner}.
//
// rootRecord implements Slot so Phase 4 relocation can rewrite target
// the same way it rewrites an embedded Ref[T] field, even though roots
// are discovered by walking the registry (Phase 1), not by tracing.
type rootRecord struct {
	rooted atomic.Bool
	target Address
}

func (r *rootRecord) Target() Address     { return r.target }
func (r *rootRecord) Retarget(a Address)   { r.target = a }

// rootRegistry is the per-Heap table of outstanding root handles. The
// multi-mutator variant shares this one registry among every registered
// mutator, guarded by mu.
type rootRegistry struct {
	mu      sync.Mutex
	records []*rootRecord
}

func newRootRegistry() *rootRegistry { return &rootRegistry{} }

func (r *rootRegistry) register(target Address) *rootRecord {
	rec := &rootRecord{target: target}
	rec.rooted.Store(true)
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
	return rec
}

// snapshot implements Phase 1 (§4.2): drop every record whose rooted flag
// has gone false, and return the targets of the ones that remain.
func (r *rootRegistry) snapshot() []Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	live := r.records[:0]
	targets := make([]Address, 0, len(r.records))
	for _, rec := range r.records {
		if !rec.rooted.Load() {
			continue
		}
		live = append(live, rec)
		targets = append(targets, rec.target)
	}
	r.records = live
	return targets
}

// forEachLive calls fn with every still-rooted record, for relocation
// rewriting (Phase 4) without taking a full snapshot.
func (r *rootRegistry) forEachLive(fn func(*rootRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.rooted.Load() {
			fn(rec)
		}
	}
}

// Rooted is a mutator-held handle keeping its target reachable for as
// long as the handle exists (§4.8). It is returned by Heap.Allocate.
//
// Rooted is generic over T itself rather than over Traceable: T's
// TraceWith, when it has one, is typically declared on *T (see
// Traceable's doc comment), so T does not always satisfy the Traceable
// interface directly even though *T does. Allocate only ever stores a
// *T and dispatches tracing through that pointer, so this is safe; it
// just means the constraint has to be any instead of Traceable here.
type Rooted[T any] struct {
	heap *Heap
	rec  *rootRecord
}

func newRooted[T any](h *Heap, addr Address) Rooted[T] {
	r := Rooted[T]{heap: h, rec: h.roots.register(addr)}
	runtime.SetFinalizer(r.rec, func(rec *rootRecord) {
		// Backstop for a Rooted value the host dropped without calling
		// Release: flip rooted false so the registry can reclaim the
		// record on the next sweep. This is not a substitute for
		// Release — it only runs once Go's own GC notices rec is
		// unreachable, which may be arbitrarily late.
		rec.rooted.Store(false)
	})
	return r
}

// Get returns the current value. Panics (MisuseOfHandle, §7) if the
// handle's record has already been released.
func (r Rooted[T]) Get() *T {
	if !r.rec.rooted.Load() {
		panic("tgc: use of Rooted after Release (MisuseOfHandle)")
	}
	return mustSlot[T](r.heap, r.rec.target)
}

// GetMut is Get's mutable-access counterpart; Go's aliasing rules make
// the distinction a documentation-only one (both return *T), but it is
// kept to mirror the spec's Get/GetMut pair (§6).
func (r Rooted[T]) GetMut() *T { return r.Get() }

// Downgrade produces an on-heap reference from this root — the handle a
// Traceable host type embeds to point at another managed object (§4.8).
func (r Rooted[T]) Downgrade() Ref[T] {
	return Ref[T]{addr: r.rec.target}
}

// Address returns the current heap address backing this handle, for a
// host that needs to identify the parent object in a call to
// WriteBarrier (§4.10). It follows relocation the same as Get/Downgrade.
func (r Rooted[T]) Address() Address { return r.rec.target }

// Release drops this root. The collector reclaims the registry record on
// its next sweep (§4.8).
func (r Rooted[T]) Release() {
	r.rec.rooted.Store(false)
	runtime.SetFinalizer(r.rec, nil)
}

// Ref is an in-object reference to another managed object (spec's
// "Heap<T>" on-heap reference handle; renamed to avoid colliding with
// the facade type Heap — see DESIGN.md). A Traceable aggregate embeds
// Ref[T] fields and visits them from TraceWith so the collector can
// rewrite addr after relocation (§4.8). Generic over T itself for the
// same reason as Rooted, above.
type Ref[T any] struct {
	addr Address
}

// Target/Retarget implement Slot.
func (h *Ref[T]) Target() Address   { return h.addr }
func (h *Ref[T]) Retarget(a Address) { h.addr = a }

// IsNil reports whether the reference points at nothing.
func (h Ref[T]) IsNil() bool { return h.addr.IsNull() }

// Get dereferences the reference through heap h. The zero Ref is not
// self-describing (it does not know its owning Heap), so callers pass
// the heap explicitly — mirroring the spec's note that Heap<T> is
// "equality by logical identity, copy, and hashable" rather than a
// smart pointer in its own right.
func (h Ref[T]) Get(heap *Heap) *T {
	if h.IsNil() {
		return nil
	}
	return mustSlot[T](heap, h.addr)
}

// Equal compares two references by logical identity (their address),
// per spec.md §6.
func (h Ref[T]) Equal(o Ref[T]) bool { return h.addr == o.addr }

// Address returns the address this reference currently targets, for a
// host that needs to identify the parent object in a call to
// WriteBarrier (§4.10).
func (h Ref[T]) Address() Address { return h.addr }
