// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import "time"

// collectCopying runs Cheney's algorithm (§4.2, SemiSpaceCopying
// variant): every reachable object is copied once from h.fromSpace into
// h.toSpace, breadth-first, using each object's own forwarding pointer
// as the "already copied" test so a reference reached by two different
// paths still only gets one copy. A Go slice stands in for the
// classic scan-pointer-into-to-space queue; the traversal order is the
// same.
func (h *Heap) collectCopying() {
	t0 := time.Now()
	h.roots.snapshot() // drop dead root records before tracing begins
	h.logPhase("root-snapshot", time.Since(t0))

	t1 := time.Now()
	worklist := make([]Address, 0, 64)

	copyOne := func(addr Address) Address {
		if addr.IsNull() {
			return NullAddress
		}
		hdr := h.fromSpace.headerFor(addr)
		if hdr.IsForwarded(addr) {
			return hdr.Fwd()
		}
		size := h.slotSizeOrHeader(addr)
		dst, _, err := h.toSpace.Allocate(size)
		if err != nil {
			panic(err) // OS refused growth mid-cycle; nothing sane to return to
		}
		h.toSpace.headerFor(dst).initSelfForwarded(dst)
		hdr.SetFwd(dst)
		h.moveSlot(addr, dst)
		worklist = append(worklist, dst)
		return dst
	}

	h.roots.forEachLive(func(rec *rootRecord) {
		rec.Retarget(copyOne(rec.Target()))
	})

	var tracer Tracer
	for i := 0; i < len(worklist); i++ {
		addr := worklist[i]
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
			s.Retarget(copyOne(t))
		}
	}
	h.metrics.observePhase("copy", h.cfg.Policy, time.Since(t1))
	h.logPhase("copy", time.Since(t1))

	t2 := time.Now()
	for _, addr := range h.addrsInSpace(h.fromSpace) {
		if h.fromSpace.headerFor(addr).IsForwarded(addr) {
			continue // already moved to toSpace above
		}
		h.finalize(addr)
		h.deleteSlot(addr)
	}
	h.metrics.observePhase("finalize-unreached", h.cfg.Policy, time.Since(t2))

	h.fromSpace.Swap(h.toSpace)
	h.toSpace.ResetPages()
	h.rebuildSpaceList()
}
