// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/zap"
)

var errDuplicateImport = errors.New("duplicate import")

// ValueType is a guest visible value type of a host function.
type ValueType byte

const (
	I32 ValueType = iota
	I64
)

func (t ValueType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	default:
		return fmt.Sprintf("valuetype(%d)", byte(t))
	}
}

// HostFunction is a Go function the guest can import. Arguments and results
// use the raw encoding: an i32 occupies the low 32 bits.
//
// Returning an error traps the guest call. The error is surfaced unchanged to
// the caller of Instance.Call.
type HostFunction struct {
	Params  []ValueType
	Results []ValueType
	Call    func(caller *Caller, args []uint64) ([]uint64, error)
}

// InstanceState is host side state owned by a single instance. It is closed
// when the instance is.
type InstanceState interface {
	Close() error
}

// ImportModule groups host functions under one import module name.
type ImportModule struct {
	Name      string
	Functions map[string]HostFunction
	// NewState, if set, is called once per instance.
	NewState func() InstanceState
}

// Imports collects the modules a runtime links for its guests.
type Imports struct {
	modules map[string]*ImportModule
	order   []string
}

func NewImports() *Imports {
	return &Imports{modules: map[string]*ImportModule{}}
}

// AddModule registers mod. A module name may only be registered once.
func (i *Imports) AddModule(mod *ImportModule) error {
	if _, ok := i.modules[mod.Name]; ok {
		return fmt.Errorf("%w: %s", errDuplicateImport, mod.Name)
	}
	i.modules[mod.Name] = mod
	i.order = append(i.order, mod.Name)
	return nil
}

// Modules returns the registered modules in registration order.
func (i *Imports) Modules() []*ImportModule {
	mods := make([]*ImportModule, 0, len(i.order))
	for _, name := range i.order {
		mods = append(mods, i.modules[name])
	}
	return mods
}

// Caller is handed to a host function for the duration of one invocation.
type Caller struct {
	ctx    context.Context
	inst   *Instance
	module string
	mem    LinearMemory
	alloc  func(size uint32) (uint32, error)
}

// Context returns the context of the guest call being served.
func (c *Caller) Context() context.Context {
	return c.ctx
}

// Memory returns the validator for the calling instance's linear memory.
func (c *Caller) Memory() (*Memory, error) {
	if c.mem == nil {
		return nil, ErrMissingMemory
	}
	m := NewMemory(c.mem)
	if c.inst != nil {
		m.onFault = c.inst.rt.metrics.outOfBounds.Inc
	}
	return m, nil
}

// Alloc asks the guest for size bytes through its alloc export. The guest
// pays for the allocation from the same ledger.
func (c *Caller) Alloc(size uint32) (uint32, error) {
	if c.alloc == nil {
		return 0, ErrMissingAlloc
	}
	return c.alloc(size)
}

// State returns the calling instance's state for the import module, or nil.
func (c *Caller) State() InstanceState {
	if c.inst == nil {
		return nil
	}
	return c.inst.states[c.module]
}

func (c *Caller) Logger() logging.Logger {
	if c.inst == nil {
		return logging.NoLog{}
	}
	return c.inst.rt.log
}

// invoke runs fn on behalf of the instance and records host failures so the
// resulting trap can be classified once the engine unwinds.
func invoke(c *Caller, name string, fn HostFunction, args []uint64) ([]uint64, error) {
	if c.inst != nil {
		c.inst.rt.metrics.hostCalls.Inc()
	}
	results, err := fn.Call(c, args)
	if err == nil && len(results) != len(fn.Results) {
		err = fmt.Errorf("%w: %s.%s returned %d results, want %d", ErrInvalidArguments, c.module, name, len(results), len(fn.Results))
	}
	if err != nil {
		if c.inst != nil {
			c.inst.hostErr = err
		}
		c.Logger().Debug("host call failed",
			zap.String("module", c.module),
			zap.String("function", name),
			zap.Error(err),
		)
		return nil, err
	}
	return results, nil
}
