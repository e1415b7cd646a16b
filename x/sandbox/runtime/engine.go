// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"context"
	"fmt"
)

// engine compiles and instantiates instrumented modules. Host functions are
// linked once, when the engine is built.
type engine interface {
	compile(ctx context.Context, wasm []byte) (compiledModule, error)
	// instantiate runs the module's start function, if any, on behalf of inst.
	instantiate(ctx context.Context, mod compiledModule, inst *Instance) (engineInstance, error)
	close(ctx context.Context) error
}

type compiledModule interface {
	close(ctx context.Context) error
}

// engineInstance passes values in their raw 64-bit encoding.
type engineInstance interface {
	call(ctx context.Context, name string, args []uint64) ([]uint64, error)
	getGlobal(name string) (uint64, error)
	setGlobal(name string, v uint64) error
	// memory returns nil when the module has no memory.
	memory() LinearMemory
	close(ctx context.Context) error
}

func newEngine(ctx context.Context, cfg *Config, imports *Imports) (engine, error) {
	switch cfg.Engine {
	case EngineWasmtime:
		return newWasmtimeEngine(cfg, imports)
	case EngineWazero:
		return newWazeroEngine(ctx, cfg, imports)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEngine, cfg.Engine)
	}
}

type instanceKey struct{}

func withInstance(ctx context.Context, inst *Instance) context.Context {
	return context.WithValue(ctx, instanceKey{}, inst)
}

func instanceFrom(ctx context.Context) *Instance {
	inst, _ := ctx.Value(instanceKey{}).(*Instance)
	return inst
}
