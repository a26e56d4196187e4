// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ThreadState is a registered mutator's current relationship to the
// collector (§5). Grounded on original_source/src/threads.rs's
// ThreadState enum.
type ThreadState int32

const (
	// ThreadRunning is the normal state: the mutator holds its running
	// permit and may allocate or mutate the heap.
	ThreadRunning ThreadState = iota
	// ThreadParked is a mutator that has voluntarily given up its
	// permit without being asked to (e.g. blocked in a host syscall);
	// the collector does not need to wait for it.
	ThreadParked
	// ThreadBlocked is a mutator parked at the Barrier for an active
	// safepoint.
	ThreadBlocked
)

// threadRegistry is the multi-mutator coordination state a Heap grows
// once EnableMultiMutator is called (§5). A running mutator holds one
// unit of sem; requesting a safepoint means the collector tries to
// acquire the semaphore's whole weight, which only succeeds once every
// mutator has released its own and parked at barrier — the semaphore
// doubles as the "all threads blocked" countdown original_source's
// stop_threads busy-polls for with thread::yield_now(), done here with
// golang.org/x/sync/semaphore.Weighted instead of a spin loop.
type threadRegistry struct {
	mu      sync.Mutex
	count   int64
	sem     *semaphore.Weighted
	barrier *Barrier
	nextID  uint64
	active  atomic.Bool
}

func newThreadRegistry() *threadRegistry {
	return &threadRegistry{
		sem:     semaphore.NewWeighted(1 << 30),
		barrier: newBarrier(),
	}
}

// EnableMultiMutator opts a Heap into the safepoint/barrier protocol
// (§5). Call it once, before any goroutine calls RegisterMutator; the
// single-mutator entry points (Allocate, Collect, ForceCompact) keep
// working unchanged for a Heap that never calls this.
func (h *Heap) EnableMultiMutator() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.threads == nil {
		h.threads = newThreadRegistry()
	}
}

// MutatorToken is a registered mutator goroutine's handle into the
// safepoint protocol, returned by RegisterMutator. A goroutine calling
// into a multi-mutator Heap must poll SafepointPoll at a bounded
// interval (every allocation is the usual choice, mirroring
// original_source/src/safepoint.rs's safepoint! macro called from
// generated allocation fast paths).
type MutatorToken struct {
	heap  *Heap
	reg   *threadRegistry
	state ThreadState
}

// RegisterMutator admits one more mutator goroutine into the safepoint
// protocol, acquiring its running permit. The Heap must already have
// had EnableMultiMutator called.
func (h *Heap) RegisterMutator(ctx context.Context) (*MutatorToken, error) {
	h.mu.Lock()
	reg := h.threads
	h.mu.Unlock()
	if reg == nil {
		panic("tgc: RegisterMutator called before EnableMultiMutator")
	}

	reg.mu.Lock()
	reg.count++
	reg.mu.Unlock()

	if err := reg.sem.Acquire(ctx, 1); err != nil {
		reg.mu.Lock()
		reg.count--
		reg.mu.Unlock()
		return nil, err
	}
	tok := &MutatorToken{heap: h, reg: reg, state: ThreadRunning}

	// A thread attaching while a safepoint is already in flight must not
	// start running until that safepoint resumes — otherwise it would
	// mutate the heap concurrently with the very cycle stopTheWorldAndRun
	// believes has every mutator quiesced.
	if err := tok.SafepointPoll(ctx); err != nil {
		return nil, err
	}
	return tok, nil
}

// Unregister releases this mutator's permit permanently, shrinking the
// count the collector waits on.
func (t *MutatorToken) Unregister() {
	t.reg.mu.Lock()
	t.reg.count--
	t.reg.mu.Unlock()
	if t.state == ThreadRunning {
		t.reg.sem.Release(1)
	}
}

// SafepointPoll blocks the calling mutator if (and only if) the
// collector currently has a safepoint request outstanding. Call it
// between allocations and at loop back-edges, the same granularity
// original_source's safepoint! macro is inserted at.
func (t *MutatorToken) SafepointPoll(ctx context.Context) error {
	if !t.reg.active.Load() {
		return nil
	}
	id := t.reg.barrier.activeID()
	if id == 0 {
		return nil
	}

	start := time.Now()
	t.reg.sem.Release(1)
	t.state = ThreadBlocked
	t.reg.barrier.wait(id)
	t.state = ThreadRunning
	t.heap.metrics.observeSafepointWait(time.Since(start))

	return t.reg.sem.Acquire(ctx, 1)
}

// stopTheWorldAndRun requests a safepoint, waits for every registered
// mutator to park at it, runs f with every mutator quiesced, then
// resumes them. A Heap with no registered mutators (threads == nil)
// just runs f directly, which is what Collect/ForceCompact already did
// before the multi-mutator variant existed.
func (h *Heap) stopTheWorldAndRun(ctx context.Context, f func()) error {
	reg := h.threads
	if reg == nil {
		f()
		return nil
	}

	reg.mu.Lock()
	n := reg.count
	reg.nextID++
	id := reg.nextID
	reg.mu.Unlock()

	if n == 0 {
		f()
		return nil
	}

	reg.barrier.guard(id)
	reg.active.Store(true)

	// Acquiring the semaphore's whole weight succeeds only once every
	// running mutator has released its unit in SafepointPoll.
	if err := reg.sem.Acquire(ctx, 1<<30); err != nil {
		reg.active.Store(false)
		reg.barrier.resume(id)
		return err
	}

	f()

	reg.sem.Release(1 << 30)
	reg.active.Store(false)
	reg.barrier.resume(id)
	return nil
}

// AllocateShared is Allocate's multi-mutator counterpart (§5): it races
// other registered mutators for room via the active Space's lock-free
// bump path and, on exhaustion, polls the safepoint so a concurrently
// requested stop-the-world collection can run instead of deadlocking
// every mutator against an empty Space.
func AllocateShared[T any](ctx context.Context, h *Heap, tok *MutatorToken, value T) (Rooted[T], error) {
	size := objectSize(value)

	for attempt := 0; attempt < 2; attempt++ {
		var addr Address
		h.mu.Lock()
		switch h.cfg.Policy {
		case MarkCompact:
			addr = h.space.AllocateShared(size)
		case SemiSpaceCopying:
			addr = h.fromSpace.AllocateShared(size)
		case GenerationalCopying:
			addr = h.young.AllocateShared(size)
		}
		h.mu.Unlock()

		if !addr.IsNull() {
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

		if err := tok.SafepointPoll(ctx); err != nil {
			return Rooted[T]{}, err
		}
	}
	return Rooted[T]{}, ErrHeapExhausted
}
