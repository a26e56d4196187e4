// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnableMultiMutatorRegisterUnregister(t *testing.T) {
	h, err := New(Config{Policy: MarkCompact, HeapSize: 64 << 10})
	require.NoError(t, err)
	defer h.Close()

	h.EnableMultiMutator()
	require.NotNil(t, h.threads)

	tok, err := h.RegisterMutator(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), h.threads.count)

	tok.Unregister()
	require.Equal(t, int64(0), h.threads.count)
}

func TestAllocateSharedRoundTrip(t *testing.T) {
	h, err := New(Config{Policy: MarkCompact, HeapSize: 64 << 10})
	require.NoError(t, err)
	defer h.Close()

	h.EnableMultiMutator()
	tok, err := h.RegisterMutator(context.Background())
	require.NoError(t, err)
	defer tok.Unregister()

	r, err := AllocateShared(context.Background(), h, tok, IntBox{V: 11})
	require.NoError(t, err)
	require.Equal(t, 11, r.Get().V)
}

// TestStopTheWorldAndRunPausesRegisteredMutator verifies that a
// collection cycle blocks a registered mutator until the cycle
// finishes, and that the mutator resumes once it does.
func TestStopTheWorldAndRunPausesRegisteredMutator(t *testing.T) {
	h, err := New(Config{Policy: MarkCompact, HeapSize: 64 << 10})
	require.NoError(t, err)
	defer h.Close()

	h.EnableMultiMutator()
	tok, err := h.RegisterMutator(context.Background())
	require.NoError(t, err)
	defer tok.Unregister()

	var pollsReturned int
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			_ = tok.SafepointPoll(context.Background())
			pollsReturned++
			time.Sleep(time.Millisecond)
		}
	}()

	h.Collect()
	wg.Wait()

	require.Equal(t, 5, pollsReturned)
}

func TestStopTheWorldAndRunWithNoRegisteredMutatorsRunsDirectly(t *testing.T) {
	h, err := New(Config{Policy: MarkCompact, HeapSize: 64 << 10})
	require.NoError(t, err)
	defer h.Close()

	h.EnableMultiMutator()

	ran := false
	err = h.stopTheWorldAndRun(context.Background(), func() { ran = true })
	require.NoError(t, err)
	require.True(t, ran)
}

func TestBarrierGuardRejectsDoubleActivation(t *testing.T) {
	b := newBarrier()
	b.guard(1)
	require.Panics(t, func() { b.guard(2) })
	b.resume(1)
	b.guard(2)
	b.resume(2)
}

func TestBarrierWaitUnblocksOnResume(t *testing.T) {
	b := newBarrier()
	b.guard(1)

	done := make(chan struct{})
	go func() {
		b.wait(1)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("wait returned before resume")
	case <-time.After(20 * time.Millisecond):
	}

	b.resume(1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not return after resume")
	}
}
