// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// IntBox is a Traceable leaf value: no outgoing references, so a
// value-receiver TraceWith (inherited from Leaf) is perfectly safe.
type IntBox struct {
	Leaf
	V int
}

// Node has an outgoing reference and therefore implements TraceWith on
// a pointer receiver, per Traceable's doc comment.
type Node struct {
	V    int
	Next Ref[Node]
}

func (n *Node) TraceWith(t *Tracer) { t.Visit(&n.Next) }

// Finalized records whether Finalize ran, for finalizer-ordering tests.
type Finalized struct {
	Leaf
	called *bool
}

func (f *Finalized) Finalize() { *f.called = true }

func TestAllocateAndGet(t *testing.T) {
	h, err := New(Config{Policy: MarkCompact, HeapSize: 64 << 10})
	require.NoError(t, err)
	defer h.Close()

	r, err := Allocate(h, IntBox{V: 42})
	require.NoError(t, err)
	require.Equal(t, 42, r.Get().V)

	r.Get().V = 7
	require.Equal(t, 7, r.Get().V)
}

func TestMarkCompactReclaimsUnrootedAndFinalizes(t *testing.T) {
	h, err := New(Config{Policy: MarkCompact, HeapSize: 64 << 10})
	require.NoError(t, err)
	defer h.Close()

	var called bool
	r, err := Allocate(h, Finalized{called: &called})
	require.NoError(t, err)
	r.Release()

	h.Collect()
	require.True(t, called, "an unrooted object's Finalize should run during collection")
}

func TestMarkCompactKeepsRootedObjectsAlive(t *testing.T) {
	h, err := New(Config{Policy: MarkCompact, HeapSize: 64 << 10})
	require.NoError(t, err)
	defer h.Close()

	kept, err := Allocate(h, IntBox{V: 99})
	require.NoError(t, err)

	dropped, err := Allocate(h, IntBox{V: -1})
	require.NoError(t, err)
	dropped.Release()

	h.Collect()
	require.Equal(t, 99, kept.Get().V)
}

func TestForceCompactRelocatesChainAndRewritesReferences(t *testing.T) {
	h, err := New(Config{Policy: MarkCompact, HeapSize: 64 << 10})
	require.NoError(t, err)
	defer h.Close()

	tail, err := Allocate(h, Node{V: 3})
	require.NoError(t, err)
	mid, err := Allocate(h, Node{V: 2, Next: tail.Downgrade()})
	require.NoError(t, err)
	head, err := Allocate(h, Node{V: 1, Next: mid.Downgrade()})
	require.NoError(t, err)

	// Only the head is rooted; mid and tail stay alive solely because
	// the chain reaches them.
	mid.Release()
	tail.Release()

	h.ForceCompact()

	n := head.Get()
	require.Equal(t, 1, n.V)
	next := n.Next.Get(h)
	require.NotNil(t, next, "relocation must rewrite head.Next to the compacted address")
	require.Equal(t, 2, next.V)
	next2 := next.Next.Get(h)
	require.NotNil(t, next2)
	require.Equal(t, 3, next2.V)
}

func TestFragmentationBounds(t *testing.T) {
	h, err := New(Config{Policy: MarkCompact, HeapSize: 64 << 10})
	require.NoError(t, err)
	defer h.Close()

	for i := 0; i < 8; i++ {
		r, err := Allocate(h, IntBox{V: i})
		require.NoError(t, err)
		if i%2 == 0 {
			r.Release()
		}
	}
	h.Collect()

	f := h.Fragmentation()
	require.GreaterOrEqual(t, f, float32(0))
	require.LessOrEqual(t, f, float32(1))
}

func TestSemiSpaceCopyingKeepsLiveDropsDead(t *testing.T) {
	h, err := New(Config{Policy: SemiSpaceCopying, HeapSize: 64 << 10})
	require.NoError(t, err)
	defer h.Close()

	kept, err := Allocate(h, IntBox{V: 123})
	require.NoError(t, err)
	dead, err := Allocate(h, IntBox{V: 456})
	require.NoError(t, err)
	dead.Release()

	h.Collect()
	require.Equal(t, 123, kept.Get().V)
}

func TestGenerationalPromotesAfterTenuring(t *testing.T) {
	h, err := New(Config{
		Policy:            GenerationalCopying,
		YoungSize:         8 << 10,
		OldSize:           64 << 10,
		TenuringThreshold: 2,
	})
	require.NoError(t, err)
	defer h.Close()

	r, err := Allocate(h, IntBox{V: 5})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		h.Collect()
	}

	require.Equal(t, 5, r.Get().V, "value must survive every minor collection, promoted or not")
	require.True(t, h.inSpace(h.readBarrier(r.rec.target), h.old),
		"an object surviving TenuringThreshold minor cycles should have been promoted to old space")
}

func TestReleaseThenGetPanics(t *testing.T) {
	h, err := New(Config{Policy: MarkCompact, HeapSize: 64 << 10})
	require.NoError(t, err)
	defer h.Close()

	r, err := Allocate(h, IntBox{V: 1})
	require.NoError(t, err)
	r.Release()

	require.Panics(t, func() { r.Get() })
}
