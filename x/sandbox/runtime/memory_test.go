// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

type sliceMemory struct {
	data []byte
}

func (m *sliceMemory) Size() uint64 {
	return uint64(len(m.data))
}

func (m *sliceMemory) Data() []byte {
	return m.data
}

func TestMemoryValidate(t *testing.T) {
	tests := []struct {
		name   string
		offset uint32
		length uint32
		err    error
	}{
		{name: "whole memory", offset: 0, length: 16},
		{name: "interior", offset: 4, length: 8},
		{name: "last byte", offset: 15, length: 1},
		{name: "empty at end", offset: 16, length: 0},
		{name: "empty inside", offset: 3, length: 0},
		{name: "empty past end", offset: 17, length: 0, err: ErrOutOfBounds},
		{name: "one past end", offset: 8, length: 9, err: ErrOutOfBounds},
		{name: "offset past end", offset: 32, length: 1, err: ErrOutOfBounds},
		{name: "wraps address space", offset: math.MaxUint32, length: 2, err: ErrOutOfBounds},
		{name: "max length", offset: 0, length: math.MaxUint32, err: ErrOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			faults := 0
			m := NewMemory(&sliceMemory{data: make([]byte, 16)})
			m.onFault = func() { faults++ }

			b, err := m.Validate(tt.offset, tt.length)
			require.ErrorIs(err, tt.err)
			if tt.err != nil {
				require.Nil(b)
				require.Equal(1, faults)
				return
			}
			require.Len(b, int(tt.length))
			require.Equal(int(tt.length), cap(b))
			require.Zero(faults)
		})
	}
}

func TestMemoryAliasesGuestBytes(t *testing.T) {
	require := require.New(t)
	mem := &sliceMemory{data: make([]byte, 8)}
	m := NewMemory(mem)

	require.NoError(m.Write(2, []byte("hi")))
	require.Equal([]byte{0, 0, 'h', 'i', 0, 0, 0, 0}, mem.data)

	s, err := m.ReadString(2, 2)
	require.NoError(err)
	require.Equal("hi", s)

	require.ErrorIs(m.Write(7, []byte("hi")), ErrOutOfBounds)
	require.Equal(byte(0), mem.data[7])
}

func TestMemoryFollowsGrowth(t *testing.T) {
	require := require.New(t)
	mem := &sliceMemory{data: make([]byte, 4)}
	m := NewMemory(mem)

	_, err := m.Validate(4, 4)
	require.ErrorIs(err, ErrOutOfBounds)

	mem.data = append(mem.data, 1, 2, 3, 4)
	b, err := m.Validate(4, 4)
	require.NoError(err)
	require.Equal([]byte{1, 2, 3, 4}, b)
}

func TestInstanceMemory(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind EngineKind) {
		require := require.New(t)
		ctx := context.Background()
		r := newTestRuntime(t, NewConfig().SetEngine(kind))
		inst := newTestInstance(t, r, `
		(module
		  (memory (export "memory") 1 2)
		  (func (export "grow") (result i32)
		    (memory.grow (i32.const 1)))
		  (func (export "load") (param i32) (result i32)
		    (i32.load8_u (local.get 0))))
		`)

		mem, err := inst.Memory()
		require.NoError(err)
		require.Equal(uint64(wasmPageSize), mem.Size())

		require.NoError(mem.Write(wasmPageSize-1, []byte{7}))
		out, err := inst.Call(ctx, "load", wasmPageSize-1)
		require.NoError(err)
		require.Equal([]uint64{7}, out)

		_, err = mem.Validate(wasmPageSize, 1)
		require.ErrorIs(err, ErrOutOfBounds)

		out, err = inst.Call(ctx, "grow")
		require.NoError(err)
		require.Equal([]uint64{1}, out)
		require.Equal(uint64(2*wasmPageSize), mem.Size())
		require.NoError(mem.Write(wasmPageSize, []byte{9}))
		out, err = inst.Call(ctx, "load", wasmPageSize)
		require.NoError(err)
		require.Equal([]uint64{9}, out)
	})
}

func TestInstanceWithoutMemory(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind EngineKind) {
		require := require.New(t)
		r := newTestRuntime(t, NewConfig().SetEngine(kind))
		inst := newTestInstance(t, r, `(module (func (export "f")))`)
		_, err := inst.Memory()
		require.ErrorIs(err, ErrMissingMemory)

		_, err = inst.WriteBytes(context.Background(), []byte("x"))
		require.ErrorIs(err, ErrMissingAlloc)
	})
}

func TestUnexportedMemoryIsMissing(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind EngineKind) {
		r := newTestRuntime(t, NewConfig().SetEngine(kind))
		inst := newTestInstance(t, r, `(module (memory 1) (func (export "f")))`)
		_, err := inst.Memory()
		require.ErrorIs(t, err, ErrMissingMemory)
	})
}
