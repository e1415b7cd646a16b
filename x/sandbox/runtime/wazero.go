// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

const maxWasmPages = 65536

var (
	_ engine         = (*wazeroEngine)(nil)
	_ engineInstance = (*wazeroInstance)(nil)
	_ LinearMemory   = wazeroMemory{}
)

type wazeroEngine struct {
	runtime wazero.Runtime
}

func newWazeroEngine(ctx context.Context, cfg *Config, imports *Imports) (*wazeroEngine, error) {
	rtCfg := wazero.NewRuntimeConfig().WithCoreFeatures(api.CoreFeaturesV2)
	if pages := cfg.Limits.MaxMemoryPages; pages > 0 && pages <= maxWasmPages {
		rtCfg = rtCfg.WithMemoryLimitPages(pages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)

	for _, mod := range imports.Modules() {
		builder := rt.NewHostModuleBuilder(mod.Name)
		for name, fn := range mod.Functions {
			builder.NewFunctionBuilder().
				WithGoModuleFunction(wazeroHostFunc(mod.Name, name, fn), wazeroTypes(fn.Params), wazeroTypes(fn.Results)).
				Export(name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("failed to link %s: %w", mod.Name, err)
		}
	}
	return &wazeroEngine{runtime: rt}, nil
}

func wazeroTypes(types []ValueType) []api.ValueType {
	out := make([]api.ValueType, len(types))
	for i, t := range types {
		if t == I64 {
			out[i] = api.ValueTypeI64
		} else {
			out[i] = api.ValueTypeI32
		}
	}
	return out
}

func wazeroHostFunc(module, name string, fn HostFunction) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		c := &Caller{ctx: ctx, inst: instanceFrom(ctx), module: module}
		// only the exported memory, as on wasmtime
		if mem := mod.ExportedMemory(MemoryName); mem != nil {
			c.mem = wazeroMemory{mem: mem}
		}
		if allocFn := mod.ExportedFunction(AllocName); allocFn != nil {
			c.alloc = func(size uint32) (uint32, error) {
				out, err := allocFn.Call(ctx, api.EncodeU32(size))
				if err != nil {
					return 0, err
				}
				if len(out) != 1 {
					return 0, fmt.Errorf("%w: %s must return a single i32", ErrInvalidArguments, AllocName)
				}
				return api.DecodeU32(out[0]), nil
			}
		}

		args := append([]uint64(nil), stack[:len(fn.Params)]...)
		results, err := invoke(c, name, fn, args)
		if err != nil {
			// wazero turns a panicking host function into a trap of the
			// current call
			panic(err)
		}
		copy(stack, results)
	}
}

func (e *wazeroEngine) compile(ctx context.Context, wasm []byte) (compiledModule, error) {
	mod, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, err
	}
	return &wazeroModule{mod: mod}, nil
}

func (e *wazeroEngine) instantiate(ctx context.Context, mod compiledModule, inst *Instance) (engineInstance, error) {
	wm, ok := mod.(*wazeroModule)
	if !ok {
		return nil, fmt.Errorf("%w: module compiled by another engine", ErrUnsupportedEngine)
	}
	// anonymous, so that any number of instances of one module can coexist
	cfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	m, err := e.runtime.InstantiateModule(withInstance(ctx, inst), wm.mod, cfg)
	if err != nil {
		return nil, err
	}
	return &wazeroInstance{inst: inst, mod: m}, nil
}

func (e *wazeroEngine) close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

type wazeroModule struct {
	mod wazero.CompiledModule
}

func (m *wazeroModule) close(ctx context.Context) error {
	return m.mod.Close(ctx)
}

type wazeroInstance struct {
	inst *Instance
	mod  api.Module
}

func (i *wazeroInstance) call(ctx context.Context, name string, args []uint64) ([]uint64, error) {
	fn := i.mod.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	if params := fn.Definition().ParamTypes(); len(params) != len(args) {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInvalidArguments, name, len(params), len(args))
	}
	return fn.Call(withInstance(ctx, i.inst), args...)
}

func (i *wazeroInstance) global(name string) (api.MutableGlobal, error) {
	g, ok := i.mod.ExportedGlobal(name).(api.MutableGlobal)
	if !ok {
		return nil, fmt.Errorf("%w: missing global %s", ErrNotMetered, name)
	}
	return g, nil
}

func (i *wazeroInstance) getGlobal(name string) (uint64, error) {
	g, err := i.global(name)
	if err != nil {
		return 0, err
	}
	if g.Type() == api.ValueTypeI32 {
		return uint64(uint32(g.Get())), nil
	}
	return g.Get(), nil
}

func (i *wazeroInstance) setGlobal(name string, v uint64) error {
	g, err := i.global(name)
	if err != nil {
		return err
	}
	if g.Type() == api.ValueTypeI32 {
		v = uint64(uint32(v))
	}
	g.Set(v)
	return nil
}

func (i *wazeroInstance) memory() LinearMemory {
	mem := i.mod.ExportedMemory(MemoryName)
	if mem == nil {
		return nil
	}
	return wazeroMemory{mem: mem}
}

func (i *wazeroInstance) close(ctx context.Context) error {
	return i.mod.Close(ctx)
}

type wazeroMemory struct {
	mem api.Memory
}

func (m wazeroMemory) Size() uint64 {
	return uint64(m.mem.Size())
}

func (m wazeroMemory) Data() []byte {
	data, _ := m.mem.Read(0, m.mem.Size())
	return data
}
