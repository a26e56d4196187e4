// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import (
	"context"
	"sort"
	"time"
)

// Collect runs one full collection cycle per the configured policy
// (§4.9). Infallible: a host that wants to know whether memory was
// actually freed should compare Fragmentation/NeedsGC before and after.
// On a Heap with EnableMultiMutator called, this first stops every
// registered mutator at a safepoint (§5); on any other Heap it just
// takes h.mu, as it always has.
func (h *Heap) Collect() {
	if h.threads != nil {
		_ = h.stopTheWorldAndRun(context.Background(), func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.collectLocked()
		})
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.collectLocked()
}

// collectLocked assumes h.mu is already held (by Collect or by Allocate
// on exhaustion).
func (h *Heap) collectLocked() {
	start := time.Now()
	before := h.slotCount()
	var compacted bool
	switch h.cfg.Policy {
	case MarkCompact:
		compacted = h.collectMarkCompact(h.cfg.CompactionThreshold)
	case SemiSpaceCopying:
		h.collectCopying()
		compacted = true // the flip is itself a compaction (§9, Open Question)
	case GenerationalCopying:
		compacted = h.collectGenerational()
	}
	after := h.slotCount()
	frag := h.fragmentationLocked()
	h.metrics.observeCycle(h.cfg.Policy, compacted)
	h.metrics.observeFragmentation(frag)
	h.reportSpaceMetrics()
	h.logCycle(cycleReport{
		policy:        h.cfg.Policy,
		compacted:     compacted,
		liveObjects:   after,
		freedObjects:  before - after,
		fragmentation: frag,
		duration:      time.Since(start),
	})
}

// slotCount returns the number of objects currently in the slot table.
func (h *Heap) slotCount() int {
	h.slotsMu.Lock()
	defer h.slotsMu.Unlock()
	return len(h.slots)
}

// reportSpaceMetrics publishes tgc_heap_bytes{space} (§4.12) for every
// Space this Heap's policy maintains.
func (h *Heap) reportSpaceMetrics() {
	switch h.cfg.Policy {
	case MarkCompact:
		h.metrics.observeSpace("heap", h.space.Used())
	case SemiSpaceCopying:
		h.metrics.observeSpace("from", h.fromSpace.Used())
		h.metrics.observeSpace("to", h.toSpace.Used())
	case GenerationalCopying:
		h.metrics.observeSpace("young", h.young.Used())
		h.metrics.observeSpace("old", h.old.Used())
	}
}

func (h *Heap) fragmentationLocked() float32 {
	switch h.cfg.Policy {
	case MarkCompact:
		return h.free.fragmentation()
	case GenerationalCopying:
		return h.oldFree.fragmentation()
	default:
		return 0
	}
}

// ForceCompact runs Phases 1–5 with fragmentation forced to 1.0 (§4.9),
// guaranteeing a compaction regardless of the measured ratio. Like
// Collect, it stops every registered mutator first on a multi-mutator
// Heap.
func (h *Heap) ForceCompact() {
	run := func() {
		switch h.cfg.Policy {
		case MarkCompact:
			h.collectMarkCompact(0) // any measured fragmentation >= 0 compacts
		case SemiSpaceCopying:
			h.collectCopying() // copying always compacts implicitly
		case GenerationalCopying:
			h.collectGenerational()
			h.majorCompactOld(0)
		}
	}
	if h.threads != nil {
		_ = h.stopTheWorldAndRun(context.Background(), run)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	run()
}

// phase1RootSnapshot implements §4.2 Phase 1 for policies that need a
// plain target list up front (mark-compact). Copying policies call
// rootRegistry.snapshot only to prune dead records, then walk
// rootRegistry.forEachLive so they can rewrite each root's target as
// they go. The snapshot is extended with every address
// writeBarrier has regreyed since the last cycle (§4.10): a Black parent
// that got re-darkened because it started pointing at a White object
// must be rescanned even though it was never dropped as a root.
func (h *Heap) phase1RootSnapshot() []Address {
	roots := h.roots.snapshot()
	return append(roots, h.drainGrey()...)
}

// phase2Mark implements §4.2 Phase 2 generically: it drains a work set
// seeded from roots, shading every reachable object Grey→Black and
// returning the full live set in address order (the "sort the heap
// object registry by address" precondition Phase 1 calls for is
// satisfied here, once, on the result, rather than on the whole
// registry up front — equivalent since only live objects matter to
// every later phase).
func (h *Heap) phase2Mark(roots []Address) []Address {
	seen := make(map[Address]bool, len(roots))
	stack := make([]Address, 0, len(roots))
	for _, r := range roots {
		if !r.IsNull() {
			stack = append(stack, r)
		}
	}

	var live []Address
	var tracer Tracer
	for len(stack) > 0 {
		addr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[addr] {
			continue
		}
		seen[addr] = true
		live = append(live, addr)

		hdr := h.headerFor(addr)
		hdr.SetColor(Grey)

		slot := h.slotFor(addr)
		tracer.reset()
		if tr, ok := slot.payload.(Traceable); ok {
			tr.TraceWith(&tracer)
		}
		for _, s := range tracer.Slots() {
			t := s.Target()
			if !t.IsNull() && !seen[t] {
				stack = append(stack, t)
			}
		}
		hdr.SetColor(Black)
	}

	sort.Slice(live, func(i, j int) bool { return live[i] < live[j] })
	return live
}

// addrSet builds a membership map from a slice of addresses, for
// repeated "is this address live" tests against a live set.
func addrSet(addrs []Address) map[Address]bool {
	m := make(map[Address]bool, len(addrs))
	for _, a := range addrs {
		m[a] = true
	}
	return m
}

// deleteSlot removes addr's entry from the slot table. Callers must have
// already finalized it if appropriate.
func (h *Heap) deleteSlot(addr Address) {
	h.slotsMu.Lock()
	delete(h.slots, addr)
	h.slotsMu.Unlock()
}

func (h *Heap) moveSlot(from, to Address) {
	if from == to {
		return // compaction left this object where it was
	}
	h.slotsMu.Lock()
	h.slots[to] = h.slots[from]
	delete(h.slots, from)
	h.slotsMu.Unlock()
}

// addrsInSpace returns every address currently in the slot table that
// physically lives inside s, used by sweep-style reclamation to find an
// "all objects" registry without a separate side list.
func (h *Heap) addrsInSpace(s *Space) []Address {
	h.slotsMu.Lock()
	addrs := make([]Address, 0, len(h.slots))
	for a := range h.slots {
		addrs = append(addrs, a)
	}
	h.slotsMu.Unlock()

	out := addrs[:0]
	for _, a := range addrs {
		if h.inSpace(a, s) {
			out = append(out, a)
		}
	}
	return out
}
