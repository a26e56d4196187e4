// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsSet is the collection of Prometheus collectors described in
// SPEC_FULL.md §4.12. It is wired when Config.Registerer is non-nil;
// otherwise newMetricsSet returns nil, and every method is a safe no-op
// on a nil *metricsSet so collector code never needs to branch on
// whether metrics are enabled.
type metricsSet struct {
	heapBytes      *prometheus.GaugeVec
	fragmentation  prometheus.Gauge
	gcDuration     *prometheus.HistogramVec
	gcCycles       *prometheus.CounterVec
	safepointWait  prometheus.Histogram
}

func newMetricsSet(reg prometheus.Registerer) *metricsSet {
	if reg == nil {
		return nil
	}
	m := &metricsSet{
		heapBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tgc_heap_bytes",
			Help: "Live bytes held per space.",
		}, []string{"space"}),
		fragmentation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tgc_fragmentation_ratio",
			Help: "Most recently measured free-list fragmentation ratio, in [0,1].",
		}),
		gcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tgc_gc_duration_seconds",
			Help:    "Wall-clock duration of a collection phase.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase", "policy"}),
		gcCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tgc_gc_cycles_total",
			Help: "Completed collection cycles.",
		}, []string{"policy", "compacted"}),
		safepointWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tgc_safepoint_wait_seconds",
			Help:    "Time a mutator spent blocked at a safepoint.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.heapBytes, m.fragmentation, m.gcDuration, m.gcCycles, m.safepointWait)
	return m
}

func (m *metricsSet) observeSpace(space string, bytes uintptr) {
	if m == nil {
		return
	}
	m.heapBytes.WithLabelValues(space).Set(float64(bytes))
}

func (m *metricsSet) observeFragmentation(v float32) {
	if m == nil {
		return
	}
	m.fragmentation.Set(float64(v))
}

func (m *metricsSet) observePhase(phase string, policy Policy, d time.Duration) {
	if m == nil {
		return
	}
	m.gcDuration.WithLabelValues(phase, policy.String()).Observe(d.Seconds())
}

func (m *metricsSet) observeCycle(policy Policy, compacted bool) {
	if m == nil {
		return
	}
	m.gcCycles.WithLabelValues(policy.String(), boolLabel(compacted)).Inc()
}

func (m *metricsSet) observeSafepointWait(d time.Duration) {
	if m == nil {
		return
	}
	m.safepointWait.Observe(d.Seconds())
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
