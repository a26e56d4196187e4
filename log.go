// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import (
	"time"

	"go.uber.org/zap"
)

// cycleReport is the structured record logged once per collection cycle
// when Config.TraceGC is set, the Go-native equivalent of the teacher's
// GODEBUG gctrace=1 single-line summary (Go-zh-go.old/src/runtime/extern.go).
type cycleReport struct {
	policy        Policy
	compacted     bool
	liveObjects   int
	freedObjects  int
	fragmentation float32
	duration      time.Duration
}

func (h *Heap) logCycle(r cycleReport) {
	if !h.cfg.TraceGC {
		return
	}
	h.cfg.Logger.Info("tgc: collection cycle",
		zap.String("policy", r.policy.String()),
		zap.Bool("compacted", r.compacted),
		zap.Int("live_objects", r.liveObjects),
		zap.Int("freed_objects", r.freedObjects),
		zap.Float32("fragmentation", r.fragmentation),
		zap.Duration("duration", r.duration),
	)
}

// logPhase emits a debug-level record per phase transition when
// TraceGCTimings is set — gctrace=2's "repeats each collection" detail,
// one level finer than logCycle.
func (h *Heap) logPhase(phase string, d time.Duration) {
	if !h.cfg.TraceGCTimings {
		return
	}
	h.cfg.Logger.Debug("tgc: phase", zap.String("phase", phase), zap.Duration("duration", d))
}
