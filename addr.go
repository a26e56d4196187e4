// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import "fmt"

// wordSize is the stride every Address advances by. Header words are
// packed with a tri-state color in their low bits (see header.go), so
// every live Address must be a multiple of wordSize to keep those bits
// free.
const wordSize = 8

// Address is a word-strided integer handle into the collector's header
// arena. It plays the role of a machine pointer in the original design
// (see DESIGN.md, "Address representation") without being one: arithmetic
// on it is ordinary integer arithmetic, not pointer aliasing.
type Address uintptr

// NullAddress is never a valid allocation.
const NullAddress Address = 0

// IsNull reports whether a is the null address.
func (a Address) IsNull() bool { return a == 0 }

// Offset returns a advanced by n bytes.
func (a Address) Offset(n uintptr) Address { return a + Address(n) }

// OffsetFrom returns the byte distance from base to a.
func (a Address) OffsetFrom(base Address) uintptr {
	if a < base {
		panic("tgc: negative address offset")
	}
	return uintptr(a - base)
}

// AddWords returns a advanced by n words.
func (a Address) AddWords(n uintptr) Address { return a + Address(n*wordSize) }

// SubWords returns a retreated by n words.
func (a Address) SubWords(n uintptr) Address { return a - Address(n*wordSize) }

// Aligned reports whether a is a multiple of wordSize.
func (a Address) Aligned() bool { return uintptr(a)%wordSize == 0 }

func (a Address) String() string { return fmt.Sprintf("0x%x", uintptr(a)) }

// Region is a half-open byte range [Start, End).
type Region struct {
	Start Address
	End   Address
}

// Size returns the number of bytes the region spans.
func (r Region) Size() uintptr {
	if r.End < r.Start {
		return 0
	}
	return uintptr(r.End - r.Start)
}

// Contains reports whether a lies in [Start, End).
func (r Region) Contains(a Address) bool {
	return r.Start <= a && a < r.End
}

// ValidTop reports whether a is a legal one-past-end bump cursor value,
// i.e. a lies in [Start, End].
func (r Region) ValidTop(a Address) bool {
	return r.Start <= a && a <= r.End
}

// Disjoint reports whether r and o share no bytes.
func (r Region) Disjoint(o Region) bool {
	return r.End <= o.Start || o.End <= r.Start
}

// Overlaps reports whether r and o share at least one byte.
func (r Region) Overlaps(o Region) bool { return !r.Disjoint(o) }

// FullyContains reports whether o lies entirely within r.
func (r Region) FullyContains(o Region) bool {
	return r.Start <= o.Start && o.End <= r.End
}

func (r Region) String() string {
	return fmt.Sprintf("[%s,%s)", r.Start, r.End)
}
