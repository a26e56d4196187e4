// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import "github.com/pkg/errors"

// ErrHeapExhausted is returned by Allocate when an allocation still
// cannot be satisfied after one collection cycle (§4.9's retry policy:
// "a second failure is fatal for the request, not for the collector").
var ErrHeapExhausted = errors.New("tgc: heap exhausted")

// Fault is the panic value assertDebug raises for the two assertion-only
// error classes of §7, InvalidFinalizerAction and MisuseOfHandle. It
// carries a stack trace via github.com/pkg/errors. No code in this
// package calls assertDebug, so no Fault is ever raised: neither class
// is diagnosed, whether or not Config.Debug is set.
type Fault struct {
	Kind string // "InvalidFinalizerAction" or "MisuseOfHandle"
	err  error
}

func (f *Fault) Error() string { return f.err.Error() }
func (f *Fault) Unwrap() error { return f.err }

func newFault(kind, msg string) *Fault {
	return &Fault{Kind: kind, err: errors.New(msg)}
}

// assertDebug panics with a Fault of the given kind when cfg.Debug is
// set; it is a silent no-op otherwise, per §7's "diagnosed in debug
// builds only (assertion), undefined otherwise."
func assertDebug(debug bool, kind, msg string) {
	if !debug {
		return
	}
	panic(newFault(kind, msg))
}
