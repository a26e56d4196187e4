// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import (
	"sync"
	"unsafe"
)

// objectSlot is the Go-managed half of every allocation: the boxed
// payload and its optional finalizer. See DESIGN.md, "Address
// representation" for why this lives apart from the header arena.
type objectSlot struct {
	payload  any // holds a *T for whatever T the caller allocated
	finalize func()
	size     uintptr
	finalized bool
}

// Heap is the collector facade (§4.9, C11): the type a host constructs
// with New and allocates into. It is safe for concurrent use by multiple
// mutator goroutines only when Config.Policy's variant says so (§5) —
// MarkCompact/SemiSpaceCopying/GenerationalCopying are documented as
// single-mutator; see safepoint.go for the multi-mutator entry points.
type Heap struct {
	cfg Config

	backing backing

	// MarkCompact / SemiSpaceCopying
	space     *Space
	fromSpace *Space
	toSpace   *Space
	free      *freelist

	// GenerationalCopying
	young   *Space
	youngTo *Space
	old     *Space
	oldFree *freelist

	spaces []*Space // every Space currently in play, for headerFor lookups

	roots *rootRegistry

	slotsMu sync.Mutex
	slots   map[Address]*objectSlot

	scanQueue []Address // not read or written by any collection cycle

	greyMu    sync.Mutex
	greyQueue []Address // objects writeBarrier regreyed, pending rescan

	threads *threadRegistry // non-nil only once EnableMultiMutator is called

	metrics *metricsSet

	mu sync.Mutex // serializes whole collection cycles end to end
}

// New constructs a Heap per cfg, committing its initial OS-backed memory
// (§4.9). It fails with ErrOutOfMemory if the OS refuses the reservation.
func New(cfg Config) (*Heap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := &Heap{
		cfg:     cfg,
		backing: defaultBacking(),
		roots:   newRootRegistry(),
		slots:   make(map[Address]*objectSlot),
		metrics: newMetricsSet(cfg.Registerer),
	}

	// cfg.PageSize, when set, overrides every Space's initial commit and
	// growth-chunk size uniformly; otherwise each Space starts sized at
	// its own budget field (HeapSize/YoungSize/OldSize) and grows in
	// further chunks of that same size (Space.Allocate).
	var err error
	switch cfg.Policy {
	case MarkCompact:
		h.space, err = newSpace(h.backing, cfg.pageSizeOr(cfg.HeapSize))
		if err != nil {
			return nil, err
		}
		h.free = newFreelist()
		h.spaces = []*Space{h.space}

	case SemiSpaceCopying:
		pageSize := cfg.pageSizeOr(cfg.HeapSize / 2)
		h.fromSpace, err = newSpace(h.backing, pageSize)
		if err != nil {
			return nil, err
		}
		h.toSpace, err = newSpace(h.backing, pageSize)
		if err != nil {
			h.fromSpace.Close()
			return nil, err
		}
		h.spaces = []*Space{h.fromSpace, h.toSpace}

	case GenerationalCopying:
		if h.young, err = newSpace(h.backing, cfg.pageSizeOr(cfg.YoungSize)); err != nil {
			return nil, err
		}
		if h.youngTo, err = newSpace(h.backing, cfg.pageSizeOr(cfg.YoungSize)); err != nil {
			return nil, err
		}
		if h.old, err = newSpace(h.backing, cfg.pageSizeOr(cfg.OldSize)); err != nil {
			return nil, err
		}
		h.oldFree = newFreelist()
		h.spaces = []*Space{h.young, h.youngTo, h.old}
	}
	h.reportSpaceMetrics()
	return h, nil
}

func (h *Heap) rebuildSpaceList() {
	switch h.cfg.Policy {
	case MarkCompact:
		h.spaces = []*Space{h.space}
	case SemiSpaceCopying:
		h.spaces = []*Space{h.fromSpace, h.toSpace}
	case GenerationalCopying:
		h.spaces = []*Space{h.young, h.youngTo, h.old}
	}
}

// headerFor resolves the Header view owning addr across every Space this
// Heap currently manages.
func (h *Heap) headerFor(addr Address) Header {
	for _, s := range h.spaces {
		for _, p := range s.pages {
			if p.region.Contains(addr) {
				return p.header(addr)
			}
		}
	}
	panic("tgc: address not owned by this heap")
}

func (h *Heap) inSpace(addr Address, s *Space) bool {
	for _, p := range s.pages {
		if p.region.Contains(addr) {
			return true
		}
	}
	return false
}

func (h *Heap) slotFor(addr Address) *objectSlot {
	h.slotsMu.Lock()
	defer h.slotsMu.Unlock()
	s, ok := h.slots[addr]
	if !ok {
		panic("tgc: dangling reference to reclaimed object")
	}
	return s
}

func mustSlot[T any](h *Heap, addr Address) *T {
	s := h.slotFor(h.readBarrier(addr))
	v, ok := s.payload.(*T)
	if !ok {
		panic("tgc: slot type mismatch")
	}
	return v
}

// objectSize estimates the logical size an allocation of v charges
// against the Space/freelist accounting: the packed header plus a
// shallow size-of the value itself. It does not follow pointers — like
// the teacher's size classes, it only needs to be a stable, comparable
// number, not a precise byte count of the whole reachable graph. The
// result is rounded up to wordSize so every Address handed out stays
// word-aligned.
func objectSize[T any](v T) uintptr {
	n := headerBytes + unsafe.Sizeof(v)
	return (n + wordSize - 1) &^ (wordSize - 1)
}

// Allocate stores value in the managed heap and returns a Rooted handle
// to it (§4.9). It triggers one collection cycle if the active allocator
// is exhausted, and fails with ErrHeapExhausted if that does not free
// enough room.
//
// Allocate is generic over T itself, not over Traceable — see
// Traceable's doc comment for why a type with outgoing references
// should implement TraceWith on *T, which this function always
// dispatches through (never through a copy).
func Allocate[T any](h *Heap, value T) (Rooted[T], error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := objectSize(value)
	addr, err := h.allocateRaw(size)
	if err != nil {
		return Rooted[T]{}, err
	}
	if addr.IsNull() {
		h.collectLocked()
		addr, err = h.allocateRaw(size)
		if err != nil {
			return Rooted[T]{}, err
		}
		if addr.IsNull() {
			return Rooted[T]{}, ErrHeapExhausted
		}
	}

	h.headerFor(addr).initSelfForwarded(addr)

	boxed := new(T)
	*boxed = value
	slot := &objectSlot{payload: boxed, size: size}
	if f, ok := any(boxed).(Finalizer); ok {
		slot.finalize = f.Finalize
	}
	h.slotsMu.Lock()
	h.slots[addr] = slot
	h.slotsMu.Unlock()

	h.barrierOwnReferences(addr, boxed)

	return newRooted[T](h, addr), nil
}

// barrierOwnReferences runs the write barrier (§4.10) against every
// outgoing reference a freshly boxed value already holds at allocation
// time: addr is brand new, but its fields may already point at existing
// objects (a caller building a chain bottom-up, as in Allocate(h,
// Node{Next: tail.Downgrade()})), so the same check a later mutation
// would trigger has to run here too.
func (h *Heap) barrierOwnReferences(addr Address, boxed any) {
	tr, ok := boxed.(Traceable)
	if !ok {
		return
	}
	var tracer Tracer
	tr.TraceWith(&tracer)
	for _, s := range tracer.Slots() {
		h.writeBarrier(addr, s.Target())
	}
}

// allocateRaw performs the Space/freelist allocation appropriate to the
// active policy. A null, error-free Address means "exhausted, try a
// collection."
func (h *Heap) allocateRaw(size uintptr) (Address, error) {
	switch h.cfg.Policy {
	case MarkCompact:
		if addr, ok := h.free.alloc(size); ok {
			return addr, nil
		}
		addr, _, err := h.space.Allocate(size)
		return addr, err
	case SemiSpaceCopying:
		addr, _, err := h.fromSpace.Allocate(size)
		return addr, err
	case GenerationalCopying:
		addr, _, err := h.young.Allocate(size)
		return addr, err
	default:
		panic("tgc: unknown policy")
	}
}

// NeedsGC reports whether the active allocator is out of room in its
// current page and the next allocation would have to grow the Space.
func (h *Heap) NeedsGC() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.cfg.Policy {
	case MarkCompact:
		return h.space.cur.bump.available() == 0 && h.free.totalFreeBytes() == 0
	case SemiSpaceCopying:
		return h.fromSpace.cur.bump.available() == 0
	case GenerationalCopying:
		return h.young.cur.bump.available() == 0
	default:
		return false
	}
}

// Fragmentation returns the active freelist's fragmentation ratio
// (§4.4): the heap's freelist under MarkCompact, the old generation's
// under GenerationalCopying, and 0 under SemiSpaceCopying, which holds
// no freelist.
func (h *Heap) Fragmentation() float32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.cfg.Policy {
	case MarkCompact:
		return h.free.fragmentation()
	case GenerationalCopying:
		return h.oldFree.fragmentation()
	default:
		return 0
	}
}

// finalize invokes an object's Finalizer exactly once (§4.2, invariant 5).
func (h *Heap) finalize(addr Address) {
	slot := h.slotFor(addr)
	if slot.finalized || slot.finalize == nil {
		return
	}
	slot.finalized = true
	slot.finalize()
}

// Close releases every OS-backed page this Heap owns. The Heap must not
// be used afterwards; a Rooted handle used after Close panics in its
// address lookup, with no MisuseOfHandle check (§7).
func (h *Heap) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.spaces {
		s.Close()
	}
}
