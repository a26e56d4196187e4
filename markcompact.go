// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import "time"

// collectMarkCompact runs the five phases of §4.2 over h.space. It
// compacts only when the measured fragmentation is at or above
// threshold, per §4.9's "fragmentation-triggered compaction" policy; a
// threshold of 0 always compacts (ForceCompact).
func (h *Heap) collectMarkCompact(threshold float32) bool {
	t0 := time.Now()
	roots := h.phase1RootSnapshot()
	h.logPhase("root-snapshot", time.Since(t0))

	t1 := time.Now()
	live := h.phase2Mark(roots)
	h.metrics.observePhase("mark", h.cfg.Policy, time.Since(t1))
	h.logPhase("mark", time.Since(t1))

	t2 := time.Now()
	h.phase3ReclaimMarkCompact(live)
	h.metrics.observePhase("reclaim", h.cfg.Policy, time.Since(t2))
	h.logPhase("reclaim", time.Since(t2))

	frag := h.free.fragmentation()
	if frag < threshold {
		return false
	}

	t3 := time.Now()
	h.phase4ForwardRelocate(live)
	h.metrics.observePhase("relocate", h.cfg.Policy, time.Since(t3))
	h.logPhase("relocate", time.Since(t3))

	t4 := time.Now()
	h.phase5CleanupMarkCompact(live)
	h.metrics.observePhase("cleanup", h.cfg.Policy, time.Since(t4))
	h.logPhase("cleanup", time.Since(t4))

	return true
}

// phase3ReclaimMarkCompact implements §4.2 Phase 3: every object not in
// the live set is finalized, then (once all of them have been) swept
// back into the freelist as reclaimable space, and every live header
// reverts to White for the next cycle (colour is only meaningful
// mid-cycle, §4.6).
func (h *Heap) phase3ReclaimMarkCompact(live []Address) {
	liveSet := addrSet(live)
	var dead []Address
	for _, addr := range h.addrsInSpace(h.space) {
		if !liveSet[addr] {
			dead = append(dead, addr)
		}
	}
	for _, addr := range dead {
		h.finalize(addr)
	}
	for _, addr := range dead {
		size := h.slotSizeOrHeader(addr)
		h.deleteSlot(addr)
		h.free.add(addr, size)
	}
	h.free.coalesce()
	h.unmarkAll(live)
}

// slotSizeOrHeader returns the size charged against the freelist for a
// reclaimed object. The slot is still present at this point in Phase 3
// (deleteSlot runs after), so this always resolves through the slot
// table rather than guessing from header spacing.
func (h *Heap) slotSizeOrHeader(addr Address) uintptr {
	h.slotsMu.Lock()
	defer h.slotsMu.Unlock()
	if s, ok := h.slots[addr]; ok {
		return s.size
	}
	return headerBytes
}

func (h *Heap) unmarkAll(live []Address) {
	for _, addr := range live {
		h.headerFor(addr).Unmark()
	}
}

// phase4ForwardRelocate implements §4.2 Phase 4: live objects are bumped
// into a compacted prefix of h.space's existing pages (no new OS memory
// is requested — compaction only ever shrinks the high-water mark), each
// header's forwarding pointer is updated, and every Slot reachable from
// roots or from another live object is rewritten to the new address
// (§4.6, invariant 3: "every live reference is updated exactly once").
func (h *Heap) phase4ForwardRelocate(live []Address) {
	cursor := h.space.beginCompaction()
	newAddrs := make(map[Address]Address, len(live))

	for _, addr := range live {
		size := h.slotSizeOrHeader(addr)
		dst := cursor.bump(size)
		newAddrs[addr] = dst
		h.space.copyHeader(addr, dst)
		h.headerFor(dst).SetFwd(dst)
		h.moveSlot(addr, dst)
	}

	var tracer Tracer
	for _, addr := range live {
		dst := newAddrs[addr]
		slot := h.slotFor(dst)
		tracer.reset()
		if tr, ok := slot.payload.(Traceable); ok {
			tr.TraceWith(&tracer)
		}
		for _, s := range tracer.Slots() {
			if to, ok := newAddrs[s.Target()]; ok {
				s.Retarget(to)
			}
		}
	}

	h.roots.forEachLive(func(rec *rootRecord) {
		if to, ok := newAddrs[rec.Target()]; ok {
			rec.Retarget(to)
		}
	})

	h.space.finishCompaction(cursor)
}

// phase5CleanupMarkCompact implements §4.2 Phase 5: the freelist is
// reset (every stale address it held was invalidated by Phase 4's
// relocation, DESIGN.md Open Question 4) and any bytes above the new
// high-water mark are handed back as one large free run so the next
// allocation can reuse them without growing the Space.
func (h *Heap) phase5CleanupMarkCompact(live []Address) {
	h.free.reset()
	top := h.space.cur.bump.Top()
	limit := h.space.cur.bump.Limit()
	if limit.OffsetFrom(top) > 0 {
		h.free.add(top, limit.OffsetFrom(top))
	}
}
