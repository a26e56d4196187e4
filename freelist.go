// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import (
	"math/bits"
	"sort"
)

// minSplit is the smallest remainder worth splitting off as its own
// freelist entry; smaller remainders are left attached to the allocation
// as internal fragmentation rather than creating an entry no allocation
// could ever satisfy.
const minSplit = headerBytes

// numSizeClasses bounds the bucket array; sizeClass never returns an
// index beyond this, since no single allocation exceeds a page.
const numSizeClasses = 32

// freeEntry is one coalesced run of free bytes. The spec (§4.4) stores
// these intrusively at addr to avoid a side allocation; this
// implementation keeps them as ordinary Go-managed linked-list nodes
// instead (one small Go allocation per add), which avoids aliasing raw
// header-arena bytes as a linked-list node.
type freeEntry struct {
	addr Address
	size uintptr
	next *freeEntry
}

// freelist is a size-segregated, first-fit free-list allocator over one
// Space's header arena. Grounded on malloc.go's MCentral/size-class
// hierarchy (cloudfly-readgo/runtime/malloc.go, mcentral.go).
type freelist struct {
	buckets     [numSizeClasses]*freeEntry
	classBytes  [numSizeClasses]uintptr // total bytes currently in each class
	totalFree   uintptr
	largestFree uintptr
}

func newFreelist() *freelist { return &freelist{} }

// sizeClass maps a byte size to the bucket of the smallest size class
// that can satisfy it (next-power-of-two, §4.4).
func sizeClass(n uintptr) int {
	if n <= 1 {
		return 0
	}
	c := bits.Len64(uint64(n - 1))
	if c >= numSizeClasses {
		c = numSizeClasses - 1
	}
	return c
}

func classCapacity(c int) uintptr { return uintptr(1) << uint(c) }

// alloc finds the first class able to satisfy n and unlinks its head,
// splitting off any remainder >= minSplit as a new entry (§4.4).
func (f *freelist) alloc(n uintptr) (Address, bool) {
	start := sizeClass(n)
	for c := start; c < numSizeClasses; c++ {
		if f.buckets[c] == nil {
			continue
		}
		e := f.buckets[c]
		f.buckets[c] = e.next
		f.classBytes[c] -= e.size
		f.totalFree -= e.size

		remainder := e.size - n
		addr := e.addr
		if remainder >= minSplit {
			f.add(addr.Offset(n), remainder)
		} else {
			n = e.size // hand over the whole entry, including the slack
		}
		f.recomputeLargest()
		return addr, true
	}
	return NullAddress, false
}

// add classifies and links a freed range (§4.4).
func (f *freelist) add(addr Address, size uintptr) {
	if size == 0 {
		return
	}
	c := classForInsert(size)
	f.buckets[c] = &freeEntry{addr: addr, size: size, next: f.buckets[c]}
	f.classBytes[c] += size
	f.totalFree += size
	if size > f.largestFree {
		f.largestFree = size
	}
}

// classForInsert buckets an entry by the largest class it still fully
// belongs to, so every entry alloc's forward scan from sizeClass(n)
// finds is big enough to satisfy n. An entry in the class just below
// sizeClass(n) is not considered even when it is large enough (a
// 48-byte entry sits in class 5; alloc(40) starts at class 6).
func classForInsert(size uintptr) int {
	c := bits.Len64(uint64(size))
	if c == 0 {
		c = 1
	}
	c--
	if c >= numSizeClasses {
		c = numSizeClasses - 1
	}
	return c
}

// reset discards every entry (mandated on compaction — DESIGN.md, Open
// Question 4: relocation invalidates every stale freelist address).
func (f *freelist) reset() {
	*f = freelist{}
}

// coalesce merges freelist entries whose ranges are byte-adjacent. It is
// optional per §4.4 and is run at sweep boundaries by the mark-compact
// policy to keep fragmentation() honest.
func (f *freelist) coalesce() {
	var all []*freeEntry
	for c := range f.buckets {
		for e := f.buckets[c]; e != nil; e = e.next {
			all = append(all, e)
		}
		f.buckets[c] = nil
		f.classBytes[c] = 0
	}
	if len(all) == 0 {
		f.totalFree = 0
		f.largestFree = 0
		return
	}
	sort.Slice(all, func(i, j int) bool { return all[i].addr < all[j].addr })

	f.totalFree = 0
	f.largestFree = 0
	merged := all[0]
	flush := func(e *freeEntry) {
		f.add(e.addr, e.size)
	}
	for _, e := range all[1:] {
		if merged.addr.Offset(merged.size) == e.addr {
			merged.size += e.size
			continue
		}
		flush(merged)
		merged = e
	}
	flush(merged)
}

func (f *freelist) recomputeLargest() {
	var max uintptr
	for c := numSizeClasses - 1; c >= 0; c-- {
		for e := f.buckets[c]; e != nil; e = e.next {
			if e.size > max {
				max = e.size
			}
		}
	}
	f.largestFree = max
}

// fragmentation is 1 - largest_free_block/total_free_bytes, clamped to
// [0,1], 0 when there is no free memory at all (§4.4).
func (f *freelist) fragmentation() float32 {
	if f.totalFree == 0 {
		return 0
	}
	v := 1 - float32(f.largestFree)/float32(f.totalFree)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (f *freelist) totalFreeBytes() uintptr { return f.totalFree }
