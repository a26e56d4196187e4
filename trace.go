// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

// Traceable is implemented by every type the host stores in the managed
// heap. TraceWith must call t.Visit once for every outgoing heap
// reference the value holds (every embedded Ref[T] field) — it is the
// collector's only polymorphism point (§4.7, §9 "Type-erased tracing").
//
// A type with any outgoing Ref[T] field MUST implement TraceWith on a
// pointer receiver (func (n *Node) TraceWith(t *Tracer), not func (n
// Node) ...): relocation rewrites a reference in place by taking its
// address off the value TraceWith is called on, and a value-receiver
// method only ever sees a copy. Allocate and friends are generic over
// T itself (not *T) for exactly this reason — they box the value with
// new(T) and always call TraceWith through that *T, never through a
// copy, so a pointer-receiver TraceWith sees and can mutate the real
// stored fields.
//
// Values that hold no outgoing heap references (scalars, strings, and
// aggregates built only from those) can embed Leaf, whose TraceWith is a
// no-op value-receiver method — see original_source/src/gc.rs's
// `simple!` macro for the equivalent leaf-type list in the source this
// was distilled from.
type Traceable interface {
	TraceWith(t *Tracer)
}

// Finalizer is optionally implemented by a Traceable value to run cleanup
// when the collector determines the value is unreachable. Finalize must
// not allocate on the collected heap (§4.2 "Finalizer ordering",
// §7 InvalidFinalizerAction) — doing so is a programmer error, and the
// collector does not detect it, with or without Config.Debug.
type Finalizer interface {
	Finalize()
}

// Leaf is embedded by Traceable types that hold no outgoing heap
// references.
type Leaf struct{}

func (Leaf) TraceWith(*Tracer) {}

// Slot is the rewriteable capability the collector needs for every
// outgoing reference (§4.7: "mark, unmark, slot_address, size, get_fwd,
// set_fwd, copy_to, inner_header"). Ref[T] implements Slot directly: its
// Target/Retarget pair is exactly the slot_address/set_fwd pairing the
// collector uses to rewrite embedded references after relocation.
type Slot interface {
	// Target returns the address this slot currently refers to. The
	// null address means the slot holds no live reference.
	Target() Address
	// Retarget rewrites the slot's referent. Called by the collector
	// during Phase 4/relocation or a copying Phase 3, and by WriteBarrier.
	Retarget(Address)
}

// Tracer accumulates the outgoing Slots a TraceWith call discovers. One
// Tracer is reused per object visited during Phase 2 (Mark).
type Tracer struct {
	slots []Slot
}

// Visit records one outgoing reference. Call it once per embedded
// Ref[T] (or other Slot implementation) field, including ones that are
// currently null — a null slot is simply skipped by the collector.
func (t *Tracer) Visit(s Slot) {
	t.slots = append(t.slots, s)
}

// Slots returns the references discovered since the last reset.
func (t *Tracer) Slots() []Slot { return t.slots }

// reset clears the tracer for reuse against the next object.
func (t *Tracer) reset() { t.slots = t.slots[:0] }
