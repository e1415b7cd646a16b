// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const checksumModule = `
(module
  (memory (export "memory") 1)
  (global $heap (mut i32) (i32.const 16))
  (func (export "alloc") (param $size i32) (result i32)
    (local $ptr i32)
    (local.set $ptr (global.get $heap))
    (global.set $heap (i32.add (global.get $heap) (local.get $size)))
    (local.get $ptr))
  ;; sums the bytes of [ptr, ptr+len) and adds bias
  (func (export "checksum") (param $ptr i32) (param $len i32) (param $bias i32) (result i32)
    (local $sum i32)
    (block $done
      (loop $next
        (br_if $done (i32.eqz (local.get $len)))
        (local.set $sum (i32.add (local.get $sum) (i32.load8_u (local.get $ptr))))
        (local.set $ptr (i32.add (local.get $ptr) (i32.const 1)))
        (local.set $len (i32.sub (local.get $len) (i32.const 1)))
        (br $next)))
    (i32.add (local.get $sum) (local.get $bias))))
`

func TestExecute(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind EngineKind) {
		require := require.New(t)
		r := newTestRuntime(t, NewConfig().SetEngine(kind).SetBudget(10_000))

		result, err := r.Execute(context.Background(), wat(t, checksumModule), &CallInfo{
			FunctionName: "checksum",
			Input:        []byte{1, 2, 3},
			Params:       []uint64{100},
		})
		require.NoError(err)
		require.Equal([]uint64{106}, result.Results)
		require.Positive(result.ConsumedPoints)
		require.Equal(int64(10_000)-result.ConsumedPoints, result.RemainingPoints)
		require.Zero(r.instances.Load())
	})
}

func TestExecutePointsOverride(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind EngineKind) {
		require := require.New(t)
		r := newTestRuntime(t, NewConfig().SetEngine(kind))
		points := int64(10)

		result, err := r.Execute(context.Background(), wat(t, checksumModule), &CallInfo{
			FunctionName: "checksum",
			Input:        make([]byte, 64),
			Params:       []uint64{0},
			Points:       &points,
		})
		require.ErrorIs(err, ErrPointsExhausted)
		require.NotNil(result)
		require.Nil(result.Results)
		require.GreaterOrEqual(result.RemainingPoints, int64(0))
		require.Equal(points-result.RemainingPoints, result.ConsumedPoints)
	})
}

func TestExecuteInvalidCall(t *testing.T) {
	r := newTestRuntime(t, NewConfig())
	_, err := r.Execute(context.Background(), wat(t, checksumModule), &CallInfo{})
	require.ErrorIs(t, err, ErrInvalidArguments)
}

var errStateClose = errors.New("state close failed")

type failingState struct{}

func (failingState) Close() error {
	return errStateClose
}

func TestExecuteReportsCloseError(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind EngineKind) {
		require := require.New(t)
		r, err := NewRuntime(NewConfig().SetEngine(kind), nil, WithImports(&ImportModule{
			Name:      "state",
			Functions: map[string]HostFunction{},
			NewState: func() InstanceState {
				return failingState{}
			},
		}))
		require.NoError(err)
		defer r.Close(context.Background())

		result, err := r.Execute(context.Background(), wat(t, `(module (func (export "f") (result i32) (i32.const 1)))`), &CallInfo{
			FunctionName: "f",
		})
		require.ErrorIs(err, errStateClose)
		require.Equal([]uint64{1}, result.Results)
	})
}
