// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tgc is a tracing garbage collector for embedding in a host Go
// program: a managed heap of Traceable values, reached only through
// Rooted and Ref handles, collected by one of three interchangeable
// policies (MarkCompact, SemiSpaceCopying, GenerationalCopying).
//
// A host constructs a Heap with New, allocates into it with Allocate,
// and lets Rooted handles go out of scope (or calls Release explicitly)
// to drop roots. Collect runs one cycle on demand; NeedsGC reports
// when the active allocator is close enough to exhausted that the host
// should call it. A Heap is single-mutator by default; calling
// EnableMultiMutator and registering goroutines with RegisterMutator
// opts into the safepoint/barrier protocol described in barriers.go and
// safepoint.go, after which AllocateShared replaces Allocate on the
// registered goroutines.
package tgc
