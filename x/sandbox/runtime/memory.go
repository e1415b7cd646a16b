// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"fmt"
	"math"
)

const (
	// The name of the memory export
	MemoryName = "memory"
	// The name of the allocation function export
	AllocName = "alloc"

	wasmPageSize = 64 * 1024
)

// LinearMemory is an engine's view of an instance's memory. Data may return
// a different slice after the memory grows.
type LinearMemory interface {
	Size() uint64
	Data() []byte
}

// Memory checks every guest supplied range against the current size of
// linear memory before handing out host bytes.
//
// Slices returned by Validate and Read alias guest memory and must not be
// held across any call back into the guest.
type Memory struct {
	mem     LinearMemory
	onFault func()
}

func NewMemory(mem LinearMemory) *Memory {
	return &Memory{mem: mem}
}

// Size is the current memory size in bytes.
func (m *Memory) Size() uint64 {
	return m.mem.Size()
}

// Validate returns the host bytes backing [offset, offset+length).
// A zero length range still requires offset to lie within memory.
func (m *Memory) Validate(offset, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	size := m.mem.Size()
	if end > math.MaxUint32 || end > size {
		if m.onFault != nil {
			m.onFault()
		}
		return nil, fmt.Errorf("%w: [%d, %d) in memory of %d bytes", ErrOutOfBounds, offset, end, size)
	}
	data := m.mem.Data()
	if uint64(len(data)) < end {
		return nil, fmt.Errorf("%w: backing store shorter than memory size", ErrOutOfBounds)
	}
	return data[offset:end:end], nil
}

// Read is Validate under the name callers use for input ranges.
func (m *Memory) Read(offset, length uint32) ([]byte, error) {
	return m.Validate(offset, length)
}

// ReadString copies a guest string out of memory.
func (m *Memory) ReadString(offset, length uint32) (string, error) {
	b, err := m.Validate(offset, length)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Write copies data into guest memory at offset.
func (m *Memory) Write(offset uint32, data []byte) error {
	if uint64(len(data)) > math.MaxUint32 {
		return fmt.Errorf("%w: write of %d bytes", ErrOutOfBounds, len(data))
	}
	dst, err := m.Validate(offset, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}
