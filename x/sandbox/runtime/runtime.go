// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"context"
	"fmt"

	"github.com/ava-labs/avalanchego/cache"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/hashing"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime/metering"
)

// Runtime compiles metered modules and creates instances of them. It is safe
// for concurrent use; the instances it creates are not.
type Runtime struct {
	log     logging.Logger
	cfg     *Config
	engine  engine
	imports *Imports

	validator ModuleValidator
	metrics   *metrics
	tracer    trace.Tracer

	moduleCache cache.Cacher[ids.ID, *Module]

	instances atomic.Int64
	closed    atomic.Bool
}

type options struct {
	imports    []*ImportModule
	validator  ModuleValidator
	registerer prometheus.Registerer
	tracer     trace.Tracer
}

type Option func(*options)

// WithImports links host modules into every instance.
func WithImports(mods ...*ImportModule) Option {
	return func(o *options) {
		o.imports = append(o.imports, mods...)
	}
}

// WithValidator runs v on every module before it is instrumented.
func WithValidator(v ModuleValidator) Option {
	return func(o *options) {
		o.validator = v
	}
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// Module is an instrumented, compiled module.
type Module struct {
	id       ids.ID
	meta     *metering.Module
	compiled compiledModule
}

// ID is the hash of the module's original bytecode.
func (m *Module) ID() ids.ID {
	return m.id
}

// Bytes returns the instrumented bytecode.
func (m *Module) Bytes() []byte {
	return m.meta.Bytes()
}

func (m *Module) Exports() []metering.Export {
	return m.meta.Exports
}

// NewRuntime fails if cfg is invalid or an import cannot be linked.
func NewRuntime(cfg *Config, log logging.Logger, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NoLog{}
	}
	o := options{
		registerer: prometheus.NewRegistry(),
		tracer:     noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(&o)
	}

	hostImports := NewImports()
	for _, mod := range o.imports {
		if err := hostImports.AddModule(mod); err != nil {
			return nil, err
		}
	}

	r := &Runtime{
		log:       log,
		cfg:       cfg,
		imports:   hostImports,
		validator: o.validator,
		tracer:    o.tracer,
		moduleCache: cache.NewSizedLRU(cfg.ModuleCacheSize, func(id ids.ID, mod *Module) int {
			return len(id) + len(mod.Bytes())
		}),
	}
	m, err := newMetrics(o.registerer, func() float64 {
		return float64(r.instances.Load())
	})
	if err != nil {
		return nil, err
	}
	r.metrics = m

	r.engine, err = newEngine(context.Background(), cfg, hostImports)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Compile validates, instruments and compiles wasm. Results are cached by
// the hash of wasm.
func (r *Runtime) Compile(ctx context.Context, wasm []byte) (_ *Module, err error) {
	if r.closed.Load() {
		return nil, ErrRuntimeClosed
	}
	ctx, span := r.tracer.Start(ctx, "Runtime.Compile", trace.WithAttributes(
		attribute.Int("size", len(wasm)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Validate module size
	if uint64(len(wasm)) > uint64(r.cfg.Limits.MaxModuleSize) {
		return nil, NewValidationError(
			fmt.Sprintf("module size %d exceeds maximum allowed size %d", len(wasm), r.cfg.Limits.MaxModuleSize),
			"module-size",
			ErrResourceLimitExceeded,
		)
	}

	id := ids.ID(hashing.ComputeHash256Array(wasm))
	if mod, ok := r.moduleCache.Get(id); ok {
		r.metrics.cacheHits.Inc()
		return mod, nil
	}

	parsed, err := metering.Parse(wasm)
	if err != nil {
		return nil, NewValidationError("failed to parse module", "parse", fmt.Errorf("%w: %w", ErrInvalidModule, err))
	}
	if err := r.cfg.Limits.Check(parsed); err != nil {
		return nil, err
	}
	if r.validator != nil {
		if err := r.validator.ValidateModule(parsed); err != nil {
			return nil, err
		}
	}

	instrumented, err := metering.Pass{Costs: r.cfg.Costs, Budget: r.cfg.Budget}.Apply(parsed)
	if err != nil {
		return nil, NewValidationError("failed to instrument module", "metering", err)
	}
	compiled, err := r.engine.compile(ctx, instrumented.Bytes())
	if err != nil {
		return nil, NewValidationError("failed to compile module", "", fmt.Errorf("%w: %w", ErrInvalidModule, err))
	}

	mod := &Module{id: id, meta: instrumented, compiled: compiled}
	r.moduleCache.Put(id, mod)
	r.metrics.compiles.Inc()
	r.log.Debug("compiled module",
		zap.Stringer("id", id),
		zap.Int("size", len(wasm)),
		zap.Int("instrumentedSize", len(instrumented.Bytes())),
	)
	return mod, nil
}

// Instantiate creates an instance whose ledger holds the configured budget,
// minus whatever the module's start function consumed.
func (r *Runtime) Instantiate(ctx context.Context, mod *Module) (*Instance, error) {
	if r.closed.Load() {
		return nil, ErrRuntimeClosed
	}
	inst := &Instance{
		rt:      r,
		module:  mod,
		states:  map[string]InstanceState{},
		callCtx: ctx,
	}
	for _, im := range r.imports.Modules() {
		if im.NewState != nil {
			inst.states[im.Name] = im.NewState()
		}
	}

	inner, err := r.engine.instantiate(ctx, mod.compiled, inst)
	inst.callCtx = nil
	if err != nil {
		_ = inst.closeStates()
		if inst.hostErr != nil {
			return nil, fmt.Errorf("failed to instantiate module: %w", inst.hostErr)
		}
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}
	inst.inner = inner
	r.instances.Inc()
	r.log.Debug("instantiated module",
		zap.Stringer("id", mod.id),
		zap.Int64("points", inst.RemainingPoints()),
	)
	return inst, nil
}

// Close releases the engine. Instances must be closed first.
func (r *Runtime) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.moduleCache.Flush()
	return r.engine.close(ctx)
}
