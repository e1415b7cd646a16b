// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sync"

	"github.com/bytecodealliance/wasmtime-go/v25"
)

var (
	_ engine         = (*wasmtimeEngine)(nil)
	_ engineInstance = (*wasmtimeInstance)(nil)
	_ LinearMemory   = (*wasmtimeMemory)(nil)
)

type wasmtimeEngine struct {
	cfg    *Config
	engine *wasmtime.Engine
	linker *wasmtime.Linker

	lock       sync.RWMutex
	callerInfo map[uintptr]*Instance
}

func newWasmtimeConfig(cfg *Config) *wasmtime.Config {
	wcfg := wasmtime.NewConfig()
	// metering is done by instrumentation, not by the engine
	wcfg.SetConsumeFuel(false)
	wcfg.SetWasmThreads(false)
	wcfg.SetWasmMultiMemory(false)
	wcfg.SetWasmMemory64(false)
	wcfg.SetCraneliftOptLevel(wasmtime.OptLevelSpeed)
	wcfg.SetMaxWasmStack(cfg.MaxWasmStack)
	return wcfg
}

func newWasmtimeEngine(cfg *Config, imports *Imports) (*wasmtimeEngine, error) {
	e := &wasmtimeEngine{
		cfg:        cfg,
		engine:     wasmtime.NewEngineWithConfig(newWasmtimeConfig(cfg)),
		callerInfo: map[uintptr]*Instance{},
	}
	e.linker = wasmtime.NewLinker(e.engine)
	for _, mod := range imports.Modules() {
		for name, fn := range mod.Functions {
			ty := wasmtime.NewFuncType(wasmtimeTypes(fn.Params), wasmtimeTypes(fn.Results))
			if err := e.linker.FuncNew(mod.Name, name, ty, e.hostFunc(mod.Name, name, fn)); err != nil {
				return nil, fmt.Errorf("failed to link %s.%s: %w", mod.Name, name, err)
			}
		}
	}
	return e, nil
}

func wasmtimeTypes(types []ValueType) []*wasmtime.ValType {
	out := make([]*wasmtime.ValType, len(types))
	for i, t := range types {
		if t == I64 {
			out[i] = wasmtime.NewValType(wasmtime.KindI64)
		} else {
			out[i] = wasmtime.NewValType(wasmtime.KindI32)
		}
	}
	return out
}

func (e *wasmtimeEngine) hostFunc(module, name string, fn HostFunction) func(*wasmtime.Caller, []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	return func(caller *wasmtime.Caller, vals []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
		inst := e.getCallInfo(caller)
		c := &Caller{inst: inst, module: module, ctx: context.Background()}
		if inst != nil && inst.callCtx != nil {
			c.ctx = inst.callCtx
		}
		if ext := caller.GetExport(MemoryName); ext != nil {
			if mem := ext.Memory(); mem != nil {
				c.mem = &wasmtimeMemory{mem: mem, store: caller}
			}
		}
		if ext := caller.GetExport(AllocName); ext != nil {
			if allocFn := ext.Func(); allocFn != nil {
				c.alloc = func(size uint32) (uint32, error) {
					out, err := allocFn.Call(caller, int32(size))
					if err != nil {
						return 0, err
					}
					ptr, ok := out.(int32)
					if !ok {
						return 0, fmt.Errorf("%w: %s must return a single i32", ErrInvalidArguments, AllocName)
					}
					return uint32(ptr), nil
				}
			}
		}

		args := make([]uint64, len(vals))
		for i, v := range vals {
			args[i] = fromWasmtimeVal(v)
		}
		results, err := invoke(c, name, fn, args)
		if err != nil {
			return nil, wasmtime.NewTrap(err.Error())
		}
		out := make([]wasmtime.Val, len(results))
		for i, r := range results {
			if fn.Results[i] == I64 {
				out[i] = wasmtime.ValI64(int64(r))
			} else {
				out[i] = wasmtime.ValI32(int32(uint32(r)))
			}
		}
		return out, nil
	}
}

func (e *wasmtimeEngine) compile(_ context.Context, wasm []byte) (compiledModule, error) {
	mod, err := wasmtime.NewModule(e.engine, wasm)
	if err != nil {
		return nil, err
	}
	return &wasmtimeModule{mod: mod}, nil
}

func (e *wasmtimeEngine) instantiate(_ context.Context, mod compiledModule, inst *Instance) (engineInstance, error) {
	wm, ok := mod.(*wasmtimeModule)
	if !ok {
		return nil, fmt.Errorf("%w: module compiled by another engine", ErrUnsupportedEngine)
	}
	store := wasmtime.NewStore(e.engine)
	store.Limiter(
		int64(e.cfg.Limits.MaxMemoryPages)*wasmPageSize,
		int64(e.cfg.Limits.MaxTableSize),
		-1,
		-1,
		-1,
	)

	e.setCallInfo(store, inst)
	wi, err := e.linker.Instantiate(store, wm.mod)
	if err != nil {
		e.deleteCallInfo(store)
		store.Close()
		return nil, err
	}
	return &wasmtimeInstance{engine: e, inst: wi, store: store}, nil
}

func (*wasmtimeEngine) close(context.Context) error {
	return nil
}

func toMapKey(storeLike wasmtime.Storelike) uintptr {
	return reflect.ValueOf(storeLike.Context()).Pointer()
}

func (e *wasmtimeEngine) setCallInfo(storeLike wasmtime.Storelike, inst *Instance) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.callerInfo[toMapKey(storeLike)] = inst
}

func (e *wasmtimeEngine) getCallInfo(storeLike wasmtime.Storelike) *Instance {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.callerInfo[toMapKey(storeLike)]
}

func (e *wasmtimeEngine) deleteCallInfo(storeLike wasmtime.Storelike) {
	e.lock.Lock()
	defer e.lock.Unlock()
	delete(e.callerInfo, toMapKey(storeLike))
}

type wasmtimeModule struct {
	mod *wasmtime.Module
}

func (*wasmtimeModule) close(context.Context) error {
	return nil
}

type wasmtimeInstance struct {
	engine *wasmtimeEngine
	inst   *wasmtime.Instance
	store  *wasmtime.Store
}

func (i *wasmtimeInstance) call(_ context.Context, name string, args []uint64) ([]uint64, error) {
	fn := i.inst.GetFunc(i.store, name)
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	params := fn.Type(i.store).Params()
	if len(params) != len(args) {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInvalidArguments, name, len(params), len(args))
	}
	in := make([]interface{}, len(args))
	for j, p := range params {
		switch p.Kind() {
		case wasmtime.KindI32:
			in[j] = int32(uint32(args[j]))
		case wasmtime.KindI64:
			in[j] = int64(args[j])
		case wasmtime.KindF32:
			in[j] = math.Float32frombits(uint32(args[j]))
		case wasmtime.KindF64:
			in[j] = math.Float64frombits(args[j])
		default:
			return nil, fmt.Errorf("%w: %s takes a reference argument", ErrInvalidArguments, name)
		}
	}

	out, err := fn.Call(i.store, in...)
	if err != nil {
		return nil, err
	}
	switch v := out.(type) {
	case nil:
		return nil, nil
	case []wasmtime.Val:
		results := make([]uint64, len(v))
		for j, val := range v {
			results[j] = fromWasmtimeVal(val)
		}
		return results, nil
	default:
		r, err := fromWasmtimeValue(v)
		if err != nil {
			return nil, err
		}
		return []uint64{r}, nil
	}
}

func fromWasmtimeValue(v interface{}) (uint64, error) {
	switch v := v.(type) {
	case int32:
		return uint64(uint32(v)), nil
	case int64:
		return uint64(v), nil
	case float32:
		return uint64(math.Float32bits(v)), nil
	case float64:
		return math.Float64bits(v), nil
	default:
		return 0, fmt.Errorf("%w: unsupported result type %T", ErrInvalidArguments, v)
	}
}

func fromWasmtimeVal(v wasmtime.Val) uint64 {
	switch v.Kind() {
	case wasmtime.KindI32:
		return uint64(uint32(v.I32()))
	case wasmtime.KindI64:
		return uint64(v.I64())
	case wasmtime.KindF32:
		return uint64(math.Float32bits(v.F32()))
	case wasmtime.KindF64:
		return math.Float64bits(v.F64())
	default:
		return 0
	}
}

func (i *wasmtimeInstance) global(name string) (*wasmtime.Global, error) {
	ext := i.inst.GetExport(i.store, name)
	if ext == nil || ext.Global() == nil {
		return nil, fmt.Errorf("%w: missing global %s", ErrNotMetered, name)
	}
	return ext.Global(), nil
}

func (i *wasmtimeInstance) getGlobal(name string) (uint64, error) {
	g, err := i.global(name)
	if err != nil {
		return 0, err
	}
	return fromWasmtimeVal(g.Get(i.store)), nil
}

func (i *wasmtimeInstance) setGlobal(name string, v uint64) error {
	g, err := i.global(name)
	if err != nil {
		return err
	}
	if g.Type(i.store).Content().Kind() == wasmtime.KindI64 {
		return g.Set(i.store, wasmtime.ValI64(int64(v)))
	}
	return g.Set(i.store, wasmtime.ValI32(int32(uint32(v))))
}

func (i *wasmtimeInstance) memory() LinearMemory {
	ext := i.inst.GetExport(i.store, MemoryName)
	if ext == nil || ext.Memory() == nil {
		return nil
	}
	return &wasmtimeMemory{mem: ext.Memory(), store: i.store}
}

func (i *wasmtimeInstance) close(context.Context) error {
	i.engine.deleteCallInfo(i.store)
	i.store.Close()
	return nil
}

type wasmtimeMemory struct {
	mem   *wasmtime.Memory
	store wasmtime.Storelike
}

func (m *wasmtimeMemory) Size() uint64 {
	return uint64(m.mem.DataSize(m.store))
}

func (m *wasmtimeMemory) Data() []byte {
	return m.mem.UnsafeData(m.store)
}
