// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import (
	"math/bits"
	"sync/atomic"
	"unsafe"
)

// defaultPageSize mirrors the 8 KiB mark-compact block size of §3. No
// Space uses it: New sizes every Space from its Config size field or
// from Config.PageSize.
const defaultPageSize = 8 * 1024

// page is one contiguous OS-committed range backing a run of header
// metadata blocks. Grounded on malloc.go's MSpan: a page never spans two
// distinct OS reservations, and an allocation larger than a page gets a
// dedicated large-object page (§3, Space/Page invariant).
type page struct {
	arena  []byte
	region Region
	bump   *bumpAllocator
	large  bool
}

func newPage(b backing, size uintptr, large bool) (*page, error) {
	arena, err := b.reserve(size)
	if err != nil {
		return nil, err
	}
	start := Address(uintptr(unsafe.Pointer(&arena[0])))
	region := Region{Start: start, End: start.Offset(uintptr(len(arena)))}
	return &page{
		arena:  arena,
		region: region,
		bump:   newBumpAllocator(region),
		large:  large,
	}, nil
}

// header returns the Header view for an address this page owns.
func (p *page) header(addr Address) Header {
	return headerAt(p.arena, addr.OffsetFrom(p.region.Start))
}

// Space is an ordered list of pages plus the cursor driving allocation
// into the current one (§3, §4.5). One Space instance backs either a
// whole mark-compact heap, one copying-collector semispace, or one
// generation.
type Space struct {
	backing  backing
	pageSize uintptr
	pages    []*page
	cur      *page
}

func newSpace(b backing, pageSize uintptr) (*Space, error) {
	s := &Space{backing: b, pageSize: pageSize}
	p, err := newPage(b, pageSize, false)
	if err != nil {
		return nil, err
	}
	s.pages = append(s.pages, p)
	s.cur = p
	return s, nil
}

// nextPow2 rounds n up to the next power of two.
func nextPow2(n uintptr) uintptr {
	if n <= 1 {
		return 1
	}
	return uintptr(1) << uint(bits.Len64(uint64(n-1)))
}

// Allocate bumps size bytes out of the current page, growing the Space
// with a fresh page from the OS backing if needed. needsGC reports
// whether growth happened, which the engine treats as a hint that a
// cycle may be due soon (§4.5).
func (s *Space) Allocate(size uintptr) (addr Address, needsGC bool, err error) {
	if size > s.pageSize {
		p, perr := newPage(s.backing, size+headerBytes, true)
		if perr != nil {
			return NullAddress, true, perr
		}
		a := p.bump.allocSingle(size)
		s.pages = append(s.pages, p)
		return a, true, nil
	}

	if a := s.cur.bump.allocSingle(size); !a.IsNull() {
		return a, false, nil
	}

	newSize := s.pageSize
	if want := nextPow2(size + headerBytes); want > newSize {
		newSize = want
	}
	p, perr := newPage(s.backing, newSize, false)
	if perr != nil {
		return NullAddress, true, perr
	}
	s.pages = append(s.pages, p)
	s.cur = p
	a := p.bump.allocSingle(size)
	return a, true, nil
}

// AllocateShared is Allocate's multi-mutator counterpart: it never grows
// the Space itself (growth only happens at a safepoint, §5), it only
// races other mutators for room in the current page via CAS.
func (s *Space) AllocateShared(size uintptr) Address {
	return s.cur.bump.allocShared(size)
}

// headerFor resolves the Header view owning addr, wherever its page is.
func (s *Space) headerFor(addr Address) Header {
	for _, p := range s.pages {
		if p.region.Contains(addr) {
			return p.header(addr)
		}
	}
	panic("tgc: address not owned by this space")
}

// Swap exchanges page lists and cursors with other — the semispace flip
// of the copying collector (§4.5).
func (s *Space) Swap(other *Space) {
	s.pages, other.pages = other.pages, s.pages
	s.cur, other.cur = other.cur, s.cur
}

// ResetPages releases every page but the first back to the OS and resets
// the surviving page's bump cursor to its start, matching §4.5's
// "unmaps/uncommits all but one page."
func (s *Space) ResetPages() {
	for _, p := range s.pages[1:] {
		_ = s.backing.release(p.arena)
	}
	s.pages = s.pages[:1]
	s.cur = s.pages[0]
	s.cur.bump.reset(s.cur.region)
}

// ResetCursorTo rewinds the current page's bump cursor to resumeAt
// without discarding any other pages. The collector does not call it;
// after a compaction, finishCompaction sets the new bump-top itself.
func (s *Space) ResetCursorTo(resumeAt Address) {
	atomic.StoreUint64(&s.cur.bump.top, uint64(resumeAt))
}

// compactCursor tracks where Phase 4 (§4.2) should bump-allocate the next
// live object while relocating in place across a Space's existing pages.
// It never requests new OS memory — compaction only ever shrinks the
// high-water mark, so the live set (which just fit before compaction
// started) always fits again.
type compactCursor struct {
	pages   []*page
	idx     int
	atStart Address // current bump position within pages[idx]
}

// beginCompaction starts a cursor at the very first byte of the Space's
// first page.
func (s *Space) beginCompaction() *compactCursor {
	return &compactCursor{pages: s.pages, idx: 0, atStart: s.pages[0].region.Start}
}

// bump hands out the next size bytes from the cursor, advancing to the
// next page when the current one runs out of room.
func (c *compactCursor) bump(size uintptr) Address {
	for {
		p := c.pages[c.idx]
		if c.atStart.Offset(size) <= p.region.End {
			addr := c.atStart
			c.atStart = c.atStart.Offset(size)
			return addr
		}
		c.idx++
		c.atStart = c.pages[c.idx].region.Start
	}
}

// pageOwning returns the page whose region contains addr.
func (s *Space) pageOwning(addr Address) *page {
	for _, p := range s.pages {
		if p.region.Contains(addr) {
			return p
		}
	}
	panic("tgc: address not owned by this space")
}

// copyHeader copies one object's packed metadata block from src's
// location to dst's, which may be on different pages.
func (s *Space) copyHeader(src, dst Address) {
	if src == dst {
		return
	}
	srcPage := s.pageOwning(src)
	dstPage := s.pageOwning(dst)
	so := src.OffsetFrom(srcPage.region.Start)
	do := dst.OffsetFrom(dstPage.region.Start)
	copy(dstPage.arena[do:do+headerBytes], srcPage.arena[so:so+headerBytes])
}

// finishCompaction installs the cursor's final position as the Space's
// new bump frontier: the page the cursor stopped in becomes s.cur with
// its top set just past the last relocated object, and every page after
// it is reset to empty so future allocations reuse that freed room
// instead of growing the Space.
func (s *Space) finishCompaction(c *compactCursor) {
	for i := c.idx + 1; i < len(s.pages); i++ {
		s.pages[i].bump.reset(s.pages[i].region)
	}
	cur := s.pages[c.idx]
	cur.bump.reset(cur.region)
	cur.bump.resetLimit(cur.region.End)
	atomic.StoreUint64(&cur.bump.top, uint64(c.atStart))
	s.cur = cur
}

// Capacity returns the total committed bytes across every page.
func (s *Space) Capacity() uintptr {
	var total uintptr
	for _, p := range s.pages {
		total += p.region.Size()
	}
	return total
}

// Used returns bytes bumped into so far across every page.
func (s *Space) Used() uintptr {
	var total uintptr
	for _, p := range s.pages {
		total += p.bump.Top().OffsetFrom(p.region.Start)
	}
	return total
}

// Close releases every page this Space owns.
func (s *Space) Close() {
	for _, p := range s.pages {
		_ = s.backing.release(p.arena)
	}
	s.pages = nil
	s.cur = nil
}
