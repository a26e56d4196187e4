// Copyright 2024 The tgc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package tgc

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// unixBacking reserves anonymous, private mmap ranges. Grounded on
// Go-zh-go.old/src/runtime/os_darwin.go and os_freebsd.go, which commit
// heap memory the same way (MAP_ANON|MAP_PRIVATE, PROT_READ|PROT_WRITE).
type unixBacking struct {
	page uintptr
}

func newPlatformBacking() backing {
	return &unixBacking{page: uintptr(unix.Getpagesize())}
}

func (b *unixBacking) pageSize() uintptr { return b.page }

func (b *unixBacking) reserve(n uintptr) ([]byte, error) {
	size := roundUpPage(n, b.page)
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(ErrOutOfMemory, "mmap %d bytes: %v", size, err)
	}
	return mem, nil
}

func (b *unixBacking) release(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	if err := unix.Munmap(mem); err != nil {
		return errors.Wrap(err, "tgc: munmap")
	}
	return nil
}
