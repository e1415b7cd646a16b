// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:build unix

package posix

import (
	"github.com/ava-labs/avalanchego/utils/wrappers"
	"golang.org/x/exp/maps"
	"golang.org/x/sys/unix"

	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime"
)

// Guest handles 0 to 2 are reserved for the standard streams, which are not
// exposed to guests.
const firstHandle = 3

var _ runtime.InstanceState = (*handleTable)(nil)

// handleTable maps guest handles to host file descriptors. Guests never see a
// host descriptor.
type handleTable struct {
	fds   map[int32]int
	limit int
}

func newHandleTable(limit int) *handleTable {
	return &handleTable{
		fds:   map[int32]int{},
		limit: limit,
	}
}

// insert returns the lowest free guest handle for fd, or false when the table
// is full.
func (t *handleTable) insert(fd int) (int32, bool) {
	if len(t.fds) >= t.limit {
		return 0, false
	}
	h := int32(firstHandle)
	for {
		if _, ok := t.fds[h]; !ok {
			t.fds[h] = fd
			return h, true
		}
		h++
	}
}

func (t *handleTable) get(h int32) (int, bool) {
	fd, ok := t.fds[h]
	return fd, ok
}

func (t *handleTable) remove(h int32) (int, bool) {
	fd, ok := t.fds[h]
	if ok {
		delete(t.fds, h)
	}
	return fd, ok
}

func (t *handleTable) len() int {
	return len(t.fds)
}

// Close releases every descriptor the guest left open.
func (t *handleTable) Close() error {
	errs := wrappers.Errs{}
	for _, h := range maps.Keys(t.fds) {
		fd, _ := t.remove(h)
		errs.Add(unix.Close(fd))
	}
	return errs.Err
}
