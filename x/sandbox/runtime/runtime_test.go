// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/bytecodealliance/wasmtime-go/v25"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/sync/errgroup"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime/metering"
)

var engines = []EngineKind{EngineWasmtime, EngineWazero}

// forEachEngine runs f once per engine backend.
func forEachEngine(t *testing.T, f func(t *testing.T, kind EngineKind)) {
	for _, kind := range engines {
		t.Run(string(kind), func(t *testing.T) {
			f(t, kind)
		})
	}
}

func wat(t *testing.T, src string) []byte {
	t.Helper()
	wasm, err := wasmtime.Wat2Wasm(src)
	require.NoError(t, err)
	return wasm
}

func newTestRuntime(t *testing.T, cfg *Config, opts ...Option) *Runtime {
	t.Helper()
	r, err := NewRuntime(cfg, logging.NoLog{}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, r.Close(context.Background()))
	})
	return r
}

func newTestInstance(t *testing.T, r *Runtime, src string) *Instance {
	t.Helper()
	ctx := context.Background()
	mod, err := r.Compile(ctx, wat(t, src))
	require.NoError(t, err)
	inst, err := r.Instantiate(ctx, mod)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, inst.Close())
	})
	return inst
}

const counterModule = `
(module
  (memory (export "memory") 1)
  (global $n (mut i32) (i32.const 0))
  (func (export "inc") (result i32)
    (global.set $n (i32.add (global.get $n) (i32.const 1)))
    (global.get $n)))
`

func TestNewRuntimeRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "nil", cfg: nil},
		{name: "negative budget", cfg: NewConfig().SetBudget(-1)},
		{name: "nil costs", cfg: NewConfig().SetCosts(nil)},
		{name: "unknown engine", cfg: NewConfig().SetEngine("v8")},
		{
			name: "incomplete cost table",
			cfg: NewConfig().SetCosts(mustCompile(t, metering.Schedule{
				Categories:      map[string]uint64{"numeric": 1},
				RequireCoverage: true,
			})),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuntime(tt.cfg, logging.NoLog{})
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func mustCompile(t *testing.T, s metering.Schedule) *metering.CostTable {
	t.Helper()
	table, err := s.Compile()
	require.NoError(t, err)
	return table
}

func TestCompileInstruments(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind EngineKind) {
		require := require.New(t)
		r := newTestRuntime(t, NewConfig().SetEngine(kind))

		mod, err := r.Compile(context.Background(), wat(t, counterModule))
		require.NoError(err)

		meta, err := metering.Parse(mod.Bytes())
		require.NoError(err)
		require.True(meta.Metered())

		var names []string
		for _, exp := range mod.Exports() {
			names = append(names, exp.Name)
		}
		require.Contains(names, "inc")
		require.Contains(names, metering.RemainingPointsExport)
		require.Contains(names, metering.PointsExhaustedExport)
	})
}

func TestCompileRejectsInvalidModule(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind EngineKind) {
		r := newTestRuntime(t, NewConfig().SetEngine(kind))

		_, err := r.Compile(context.Background(), []byte("not wasm"))
		require.ErrorIs(t, err, ErrInvalidModule)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "parse", verr.Rule)
	})
}

func TestCompileRejectsReservedExport(t *testing.T) {
	r := newTestRuntime(t, NewConfig())
	_, err := r.Compile(context.Background(), wat(t, `
	(module
	  (global (export "metering_remaining_points") i64 (i64.const 0)))
	`))
	require.ErrorIs(t, err, metering.ErrReservedExport)
}

func TestCompileCache(t *testing.T) {
	require := require.New(t)
	reg := prometheus.NewRegistry()
	r := newTestRuntime(t, NewConfig(), WithRegisterer(reg))
	wasm := wat(t, counterModule)

	first, err := r.Compile(context.Background(), wasm)
	require.NoError(err)
	second, err := r.Compile(context.Background(), wasm)
	require.NoError(err)

	require.Same(first, second)
	require.Equal(first.ID(), second.ID())
	require.InDelta(1, testutil.ToFloat64(r.metrics.compiles), 0)
	require.InDelta(1, testutil.ToFloat64(r.metrics.cacheHits), 0)
}

func TestInstancesAreIndependent(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind EngineKind) {
		require := require.New(t)
		ctx := context.Background()
		r := newTestRuntime(t, NewConfig().SetEngine(kind).SetBudget(1_000))
		mod, err := r.Compile(ctx, wat(t, counterModule))
		require.NoError(err)

		const (
			numInstances = 8
			numCalls     = 5
		)
		points := make([]int64, numInstances)
		var eg errgroup.Group
		for n := 0; n < numInstances; n++ {
			n := n
			eg.Go(func() error {
				inst, err := r.Instantiate(ctx, mod)
				if err != nil {
					return err
				}
				defer inst.Close()

				for i := 1; i <= numCalls; i++ {
					out, err := inst.Call(ctx, "inc")
					if err != nil {
						return err
					}
					if out[0] != uint64(i) {
						return errors.New("instance state shared between instances")
					}
				}
				points[n] = inst.RemainingPoints()
				return nil
			})
		}
		require.NoError(eg.Wait())
		for _, p := range points[1:] {
			require.Equal(points[0], p)
		}
		require.Less(points[0], int64(1_000))
		require.Zero(r.instances.Load())
	})
}

func TestRuntimeClosed(t *testing.T) {
	require := require.New(t)
	r, err := NewRuntime(NewConfig(), nil)
	require.NoError(err)
	require.NoError(r.Close(context.Background()))
	require.NoError(r.Close(context.Background()))

	_, err = r.Compile(context.Background(), wat(t, counterModule))
	require.ErrorIs(err, ErrRuntimeClosed)
}

func TestInstanceClosed(t *testing.T) {
	require := require.New(t)
	r := newTestRuntime(t, NewConfig().SetBudget(100))
	mod, err := r.Compile(context.Background(), wat(t, counterModule))
	require.NoError(err)
	inst, err := r.Instantiate(context.Background(), mod)
	require.NoError(err)

	_, err = inst.Call(context.Background(), "inc")
	require.NoError(err)
	remaining := inst.RemainingPoints()

	require.NoError(inst.Close())
	require.NoError(inst.Close())

	_, err = inst.Call(context.Background(), "inc")
	require.ErrorIs(err, ErrInstanceClosed)
	require.ErrorIs(inst.SetRemainingPoints(10), ErrInstanceClosed)
	_, err = inst.Memory()
	require.ErrorIs(err, ErrInstanceClosed)
	require.Equal(remaining, inst.RemainingPoints())
}

func TestTracing(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() {
		require.NoError(provider.Shutdown(ctx))
	}()

	r := newTestRuntime(t, NewConfig(), WithTracer(provider.Tracer("sandbox")))
	inst := newTestInstance(t, r, counterModule)
	_, err := inst.Call(ctx, "inc")
	require.NoError(err)
	_, err = inst.Call(ctx, "missing")
	require.ErrorIs(err, ErrFunctionNotFound)

	spans := recorder.Ended()
	require.Len(spans, 3)
	require.Equal("Runtime.Compile", spans[0].Name())
	require.Equal("Instance.Call", spans[1].Name())
	require.Equal(codes.Unset, spans[1].Status().Code)
	require.Equal("Instance.Call", spans[2].Name())
	require.Equal(codes.Error, spans[2].Status().Code)
}
