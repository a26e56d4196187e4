// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import "time"

// collectGenerational runs one minor cycle over h.young, then an
// optional major cycle over h.old when the old generation's measured
// fragmentation has crossed Config.CompactionThreshold (§4.9's
// fragmentation trigger, applied per-generation rather than globally).
func (h *Heap) collectGenerational() bool {
	h.minorCollect()
	if h.oldFree.fragmentation() < h.cfg.CompactionThreshold {
		return false
	}
	return h.majorCompactOld(h.cfg.CompactionThreshold)
}

// minorCollect copies every young object reachable from a root (or from
// a reachable old-generation object) into h.youngTo, promoting anything
// that has survived TenuringThreshold minor cycles straight into h.old
// instead (§4.3's generational variant).
//
// Old-generation objects are never relocated during a minor cycle, but
// they are still traced: whenever the trace reaches an old object (from
// a root, or from any object already reached this cycle), that
// object is soft-marked (Header.SetSoftMark, §4.2) and its own outgoing
// references are scanned so a young object reachable only through the
// old generation is not missed. An old object the trace never reaches
// this cycle is left untouched — no soft-mark, no scan — so the cost of
// a minor cycle scales with how much of the old generation is actually
// live-and-reachable-from-roots, not with the old generation's total
// size. This traces precisely (every object a full mark from roots
// would reach), it just stands in for the "only rescan what a write
// barrier told you changed" optimization a remembered set would add on
// top: nothing in this package can intercept a plain Go field
// assignment into a Ref[T], so there is no mutator-side hook to mark an
// old object dirty the moment it starts pointing at a new young object
// outside of this trace. See DESIGN.md for the remaining gap that
// leaves open.
func (h *Heap) minorCollect() {
	t0 := time.Now()
	h.roots.snapshot()

	var worklist []Address   // young objects copied this cycle
	var oldWorklist []Address // old objects soft-marked this cycle

	copyYoung := func(addr Address) Address {
		if addr.IsNull() {
			return NullAddress
		}
		hdr := h.young.headerFor(addr)
		if hdr.IsForwarded(addr) {
			return hdr.Fwd()
		}
		age := hdr.Age()
		size := h.slotSizeOrHeader(addr)

		if age+1 >= h.cfg.TenuringThreshold {
			dst := h.promoteToOld(size)
			h.old.headerFor(dst).initSelfForwarded(dst)
			hdr.SetFwd(dst)
			h.moveSlot(addr, dst)
			worklist = append(worklist, dst)
			return dst
		}

		dst, _, err := h.youngTo.Allocate(size)
		if err != nil {
			panic(err)
		}
		newHdr := h.youngTo.headerFor(dst)
		newHdr.initSelfForwarded(dst)
		newHdr.SetAge(age + 1)
		hdr.SetFwd(dst)
		h.moveSlot(addr, dst)
		worklist = append(worklist, dst)
		return dst
	}

	// softMarkOld records that addr (known to live in h.old) was reached
	// this cycle, queuing its outgoing references for scanning exactly
	// once per cycle.
	softMarkOld := func(addr Address) {
		hdr := h.old.headerFor(addr)
		if hdr.SoftMarked() {
			return
		}
		hdr.SetSoftMark(true)
		oldWorklist = append(oldWorklist, addr)
	}

	// followAndCopy visits one outgoing reference during the trace: old
	// targets are soft-marked in place, young targets are copied/promoted.
	followAndCopy := func(addr Address) Address {
		if addr.IsNull() {
			return NullAddress
		}
		if h.inSpace(addr, h.old) {
			softMarkOld(addr)
			return addr
		}
		return copyYoung(addr)
	}

	h.roots.forEachLive(func(rec *rootRecord) {
		rec.Retarget(followAndCopy(rec.Target()))
	})

	var tracer Tracer
	traceOne := func(addr Address) {
		slot := h.slotFor(addr)
		tracer.reset()
		if tr, ok := slot.payload.(Traceable); ok {
			tr.TraceWith(&tracer)
		}
		for _, s := range tracer.Slots() {
			t := s.Target()
			if t.IsNull() {
				continue
			}
			s.Retarget(followAndCopy(t))
		}
	}

	// Tracing an old object can copy more young objects, and tracing a
	// young object can soft-mark more old ones, so drain both lists until
	// neither grows.
	for i, j := 0, 0; i < len(oldWorklist) || j < len(worklist); {
		if i < len(oldWorklist) {
			traceOne(oldWorklist[i])
			i++
			continue
		}
		traceOne(worklist[j])
		j++
	}
	h.metrics.observePhase("minor-copy", h.cfg.Policy, time.Since(t0))
	h.logPhase("minor-copy", time.Since(t0))

	// Soft marks are a per-cycle "reached this trace" flag, not a
	// standing remembered set — clear them before the next minor cycle.
	for _, addr := range oldWorklist {
		h.old.headerFor(addr).SetSoftMark(false)
	}

	t1 := time.Now()
	for _, addr := range h.addrsInSpace(h.young) {
		if h.young.headerFor(addr).IsForwarded(addr) {
			continue
		}
		h.finalize(addr)
		h.deleteSlot(addr)
	}
	h.metrics.observePhase("minor-finalize", h.cfg.Policy, time.Since(t1))

	h.young.Swap(h.youngTo)
	h.youngTo.ResetPages()
	h.rebuildSpaceList()
}

// promoteToOld allocates size bytes in the old generation, preferring a
// reused freelist run over growing the Space (§4.4 applied to the old
// generation's own freelist).
func (h *Heap) promoteToOld(size uintptr) Address {
	if addr, ok := h.oldFree.alloc(size); ok {
		return addr
	}
	addr, _, err := h.old.Allocate(size)
	if err != nil {
		panic(err)
	}
	return addr
}

// majorCompactOld runs a full mark over every space (young objects can
// be the only thing keeping an old object reachable) but only reclaims
// and, once past threshold, compacts h.old — the young generation is
// already kept tight by minorCollect. Returns whether compaction ran.
func (h *Heap) majorCompactOld(threshold float32) bool {
	t0 := time.Now()
	roots := h.phase1RootSnapshot()
	live := h.phase2Mark(roots)
	h.metrics.observePhase("major-mark", h.cfg.Policy, time.Since(t0))
	h.logPhase("major-mark", time.Since(t0))

	liveOld := make([]Address, 0, len(live))
	for _, a := range live {
		if h.inSpace(a, h.old) {
			liveOld = append(liveOld, a)
		}
	}
	liveOldSet := addrSet(liveOld)

	t1 := time.Now()
	var deadOld []Address
	for _, addr := range h.addrsInSpace(h.old) {
		if !liveOldSet[addr] {
			deadOld = append(deadOld, addr)
		}
	}
	for _, addr := range deadOld {
		h.finalize(addr)
	}
	for _, addr := range deadOld {
		size := h.slotSizeOrHeader(addr)
		h.deleteSlot(addr)
		h.oldFree.add(addr, size)
	}
	h.oldFree.coalesce()
	h.unmarkAll(live)
	h.metrics.observePhase("major-reclaim", h.cfg.Policy, time.Since(t1))

	frag := h.oldFree.fragmentation()
	if frag < threshold {
		return false
	}

	t2 := time.Now()
	cursor := h.old.beginCompaction()
	newAddrs := make(map[Address]Address, len(liveOld))
	for _, addr := range liveOld {
		size := h.slotSizeOrHeader(addr)
		dst := cursor.bump(size)
		newAddrs[addr] = dst
		h.old.copyHeader(addr, dst)
		h.old.headerFor(dst).SetFwd(dst)
		h.moveSlot(addr, dst)
	}

	retarget := func(addr Address) {
		slot := h.slotFor(addr)
		var tracer Tracer
		if tr, ok := slot.payload.(Traceable); ok {
			tr.TraceWith(&tracer)
		}
		for _, s := range tracer.Slots() {
			if to, ok := newAddrs[s.Target()]; ok {
				s.Retarget(to)
			}
		}
	}
	for _, addr := range liveOld {
		retarget(newAddrs[addr])
	}
	for _, addr := range h.addrsInSpace(h.young) {
		retarget(addr)
	}
	h.roots.forEachLive(func(rec *rootRecord) {
		if to, ok := newAddrs[rec.Target()]; ok {
			rec.Retarget(to)
		}
	})

	h.old.finishCompaction(cursor)
	h.oldFree.reset()
	top := h.old.cur.bump.Top()
	limit := h.old.cur.bump.Limit()
	if limit.OffsetFrom(top) > 0 {
		h.oldFree.add(top, limit.OffsetFrom(top))
	}
	h.metrics.observePhase("major-compact", h.cfg.Policy, time.Since(t2))
	h.logPhase("major-compact", time.Since(t2))
	return true
}
