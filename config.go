// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Policy selects the collection strategy (§4.2). The data model, rooting
// scheme and invariants are shared; only Phases 3–4 differ per policy.
type Policy int

const (
	// MarkCompact sweeps a single heap to a freelist and compacts in
	// place once fragmentation crosses CompactionThreshold.
	MarkCompact Policy = iota
	// SemiSpaceCopying copies survivors between two semispaces every
	// cycle; compaction is implicit in the flip.
	SemiSpaceCopying
	// GenerationalCopying copies survivors young→old, tenuring objects
	// whose age saturates TenuringThreshold.
	GenerationalCopying
)

func (p Policy) String() string {
	switch p {
	case MarkCompact:
		return "mark-compact"
	case SemiSpaceCopying:
		return "semi-space-copying"
	case GenerationalCopying:
		return "generational-copying"
	default:
		return "unknown"
	}
}

// Config carries every optional flag spec.md §6 enumerates, plus the
// policy selector and the ambient-stack wiring (§4.11–§4.13 of
// SPEC_FULL.md). The zero Config is invalid; call Validate or just pass
// it to New, which validates internally.
type Config struct {
	// Policy selects the collection strategy. Required.
	Policy Policy

	// HeapSize is the initial size of the MarkCompact heap, or of each
	// semispace (half of it apiece) under SemiSpaceCopying: the size of
	// the first page and the minimum size of every page the Space grows
	// by. The Space grows past it on demand, so it is not an upper bound.
	// Required by MarkCompact and SemiSpaceCopying; GenerationalCopying
	// ignores it.
	HeapSize uintptr

	// YoungSize/OldSize size the two generations under
	// GenerationalCopying (the young generation is itself
	// double-buffered, like SemiSpaceCopying), in the same way HeapSize
	// sizes a MarkCompact heap.
	YoungSize uintptr
	OldSize   uintptr

	// PageSize, when nonzero, replaces the size fields above as every
	// Space's page size. Each page's backing memory is rounded up to the
	// OS page size.
	PageSize uintptr

	// TenuringThreshold is the survivor age (1..7) at which a young
	// object promotes to old space. Default 5.
	TenuringThreshold uint8

	// CompactionThreshold is the fragmentation ratio (§4.4) at or above
	// which a mark-compact cycle also runs Phases 4–5. Default 0.50.
	CompactionThreshold float32

	// TraceGC/TraceGCTimings gate the structured log record emitted per
	// cycle/phase (§4.11), mirroring the teacher's GODEBUG
	// gctrace/gctrace=2 knobs (Go-zh-go.old/src/runtime/extern.go).
	TraceGC        bool
	TraceGCTimings bool

	// Debug is stored but no check in this package reads it: a finalizer
	// that allocates (InvalidFinalizerAction, §7) is not detected, and a
	// Rooted used after Release panics with a plain string whether or
	// not Debug is set.
	Debug bool

	// Logger receives the structured log records when TraceGC is set.
	// Defaults to zap.NewNop().
	Logger *zap.Logger

	// Registerer, if non-nil, receives the Prometheus collectors of
	// §4.12. A nil Registerer disables metrics entirely.
	Registerer prometheus.Registerer
}

// DefaultConfig returns a Config with every optional flag at its spec.md
// §6 default, Policy set to MarkCompact, and a 4 MiB heap.
func DefaultConfig() Config {
	return Config{
		Policy:              MarkCompact,
		HeapSize:            4 << 20,
		TenuringThreshold:   5,
		CompactionThreshold: 0.50,
		Logger:              zap.NewNop(),
	}
}

// Validate rejects an out-of-range Config before New commits any OS
// memory (§4.13).
func (c *Config) Validate() error {
	if c.TenuringThreshold == 0 {
		c.TenuringThreshold = 5
	}
	if c.TenuringThreshold > 7 {
		return errors.Errorf("tgc: TenuringThreshold %d out of range [1,7]", c.TenuringThreshold)
	}
	if c.CompactionThreshold == 0 {
		c.CompactionThreshold = 0.50
	}
	if c.CompactionThreshold < 0 || c.CompactionThreshold > 1 {
		return errors.Errorf("tgc: CompactionThreshold %v out of range [0,1]", c.CompactionThreshold)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	switch c.Policy {
	case MarkCompact, SemiSpaceCopying:
		if c.HeapSize == 0 {
			return errors.New("tgc: HeapSize must be > 0")
		}
	case GenerationalCopying:
		if c.YoungSize == 0 || c.OldSize == 0 {
			return errors.New("tgc: YoungSize and OldSize must both be > 0 for GenerationalCopying")
		}
	default:
		return errors.Errorf("tgc: unknown Policy %d", c.Policy)
	}
	return nil
}

func (c Config) pageSizeOr(def uintptr) uintptr {
	if c.PageSize != 0 {
		return c.PageSize
	}
	return def
}
