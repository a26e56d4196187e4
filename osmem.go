// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tgc

import "github.com/pkg/errors"

// backing reserves and commits the page-aligned byte ranges that back a
// Space's header arena. It mirrors the teacher runtime's per-OS
// os_darwin.go/os_freebsd.go mmap wrappers (Go-zh-go.old/src/runtime),
// collapsed to the three operations this collector actually needs:
// reserve a fresh range, release it, and report the OS page size.
//
// backing never touches Go-managed memory: every byte it hands back is
// pointer-free header-arena storage (see DESIGN.md, "Address
// representation"), so it is safe to obtain from mmap/VirtualAlloc
// without involving Go's own garbage collector.
type backing interface {
	// reserve commits a zero-filled range of at least n bytes, rounded
	// up to the backing's page size, and returns the live bytes.
	reserve(n uintptr) ([]byte, error)
	// release returns previously reserved bytes to the OS.
	release(b []byte) error
	// pageSize reports the backing's native page size.
	pageSize() uintptr
}

// ErrOutOfMemory is returned when the OS refuses a backing reservation.
var ErrOutOfMemory = errors.New("tgc: out of memory")

// roundUpPage rounds n up to the next multiple of page.
func roundUpPage(n, page uintptr) uintptr {
	if page == 0 {
		return n
	}
	return (n + page - 1) &^ (page - 1)
}

// defaultBacking returns the platform backing implementation, selected at
// build time (osmem_unix.go / osmem_other.go), exactly as the teacher
// selects os_darwin.go vs os_plan9.go per GOOS.
func defaultBacking() backing { return newPlatformBacking() }
