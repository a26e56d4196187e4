// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import "sync/atomic"

// bumpAllocator owns a monotonically advancing cursor within [base, limit).
// Single-mutator callers use allocSingle; the multi-mutator variant uses
// allocShared, a lock-free CAS loop grounded directly on
// original_source/src/bump.rs's BumpAllocator, the spec's own ancestor
// for this exact structure. There is no ABA risk because top only moves
// forward within one cycle and is reset only at a safepoint (§4.3).
type bumpAllocator struct {
	top   uint64 // atomic
	limit uint64 // atomic
	base  Address
}

func newBumpAllocator(region Region) *bumpAllocator {
	return &bumpAllocator{
		top:   uint64(region.Start),
		limit: uint64(region.End),
		base:  region.Start,
	}
}

func (b *bumpAllocator) reset(region Region) {
	atomic.StoreUint64(&b.top, uint64(region.Start))
	atomic.StoreUint64(&b.limit, uint64(region.End))
	b.base = region.Start
}

func (b *bumpAllocator) resetLimit(limit Address) {
	atomic.StoreUint64(&b.limit, uint64(limit))
}

func (b *bumpAllocator) Top() Address   { return Address(atomic.LoadUint64(&b.top)) }
func (b *bumpAllocator) Limit() Address { return Address(atomic.LoadUint64(&b.limit)) }

// allocSingle is the fast, non-atomic path for single-mutator policies.
func (b *bumpAllocator) allocSingle(size uintptr) Address {
	top := b.top
	limit := b.limit
	neu := top + uint64(size)
	if neu > limit {
		return NullAddress
	}
	b.top = neu
	return Address(top)
}

// allocShared is the CAS path for the multi-mutator variant (§4.3, §5).
func (b *bumpAllocator) allocShared(size uintptr) Address {
	for {
		old := atomic.LoadUint64(&b.top)
		neu := old + uint64(size)
		if neu > atomic.LoadUint64(&b.limit) {
			return NullAddress
		}
		if atomic.CompareAndSwapUint64(&b.top, old, neu) {
			return Address(old)
		}
	}
}

// available reports the number of bytes left between top and limit.
func (b *bumpAllocator) available() uintptr {
	limit := atomic.LoadUint64(&b.limit)
	top := atomic.LoadUint64(&b.top)
	if limit < top {
		return 0
	}
	return uintptr(limit - top)
}
