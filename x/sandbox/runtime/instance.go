// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/utils/wrappers"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Instance owns one linear memory and one points ledger.
//
// An Instance must not be used concurrently. In particular the ledger may
// only be read or reset while no call is running on the instance.
type Instance struct {
	rt     *Runtime
	module *Module
	inner  engineInstance
	states map[string]InstanceState

	// set for the duration of a call into the guest
	callCtx context.Context
	hostErr error

	closed      bool
	finalPoints int64
}

func (i *Instance) Module() *Module {
	return i.module
}

// Call invokes an exported function. Arguments and results use the raw
// encoding: an i32 occupies the low 32 bits, floats are IEEE 754 bits.
//
// Errors match ErrPointsExhausted when the ledger could not pay for a block,
// ErrTrap for any other guest trap, or wrap the error a host function
// returned.
func (i *Instance) Call(ctx context.Context, name string, args ...uint64) (_ []uint64, err error) {
	if i.closed {
		return nil, ErrInstanceClosed
	}
	if i.Exhausted() {
		return nil, fmt.Errorf("%w: instance must be recharged before calling %s", ErrPointsExhausted, name)
	}

	ctx, span := i.rt.tracer.Start(ctx, "Instance.Call", trace.WithAttributes(
		attribute.String("function", name),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	before := i.RemainingPoints()
	i.callCtx = ctx
	i.hostErr = nil
	results, err := i.inner.call(ctx, name, args)
	hostErr := i.hostErr
	i.callCtx = nil
	i.hostErr = nil

	i.rt.metrics.calls.Inc()
	after := i.RemainingPoints()
	if consumed := before - after; consumed > 0 {
		i.rt.metrics.pointsConsumed.Add(float64(consumed))
	}
	span.SetAttributes(attribute.Int64("points.remaining", after))
	if err != nil {
		return nil, i.classify(name, err, hostErr)
	}
	return results, nil
}

func (i *Instance) classify(name string, err, hostErr error) error {
	if errors.Is(err, ErrFunctionNotFound) || errors.Is(err, ErrInvalidArguments) {
		return err
	}
	if i.Exhausted() {
		i.rt.metrics.exhausted.Inc()
		i.rt.log.Debug("points exhausted",
			zap.String("function", name),
			zap.Int64("remaining", i.RemainingPoints()),
		)
		return fmt.Errorf("%w: calling %s with %d points remaining", ErrPointsExhausted, name, i.RemainingPoints())
	}
	if hostErr != nil {
		return fmt.Errorf("calling %s: %w", name, hostErr)
	}
	i.rt.metrics.traps.Inc()
	i.rt.log.Warn("guest trapped",
		zap.String("function", name),
		zap.Error(err),
	)
	return fmt.Errorf("%w: calling %s: %w", ErrTrap, name, err)
}

// Memory returns a validator over the instance's exported memory.
func (i *Instance) Memory() (*Memory, error) {
	if i.closed {
		return nil, ErrInstanceClosed
	}
	mem := i.inner.memory()
	if mem == nil {
		return nil, ErrMissingMemory
	}
	m := NewMemory(mem)
	m.onFault = i.rt.metrics.outOfBounds.Inc
	return m, nil
}

// WriteBytes copies data into memory obtained from the guest's alloc export
// and returns its offset. The allocation is paid for from the ledger.
func (i *Instance) WriteBytes(ctx context.Context, data []byte) (uint32, error) {
	out, err := i.Call(ctx, AllocName, uint64(len(data)))
	if err != nil {
		if errors.Is(err, ErrFunctionNotFound) {
			return 0, ErrMissingAlloc
		}
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("%w: %s must return a single i32", ErrInvalidArguments, AllocName)
	}
	offset := uint32(out[0])
	mem, err := i.Memory()
	if err != nil {
		return 0, err
	}
	if err := mem.Write(offset, data); err != nil {
		return 0, err
	}
	return offset, nil
}

func (i *Instance) closeStates() error {
	errs := wrappers.Errs{}
	for _, s := range i.states {
		errs.Add(s.Close())
	}
	i.states = nil
	return errs.Err
}

// Close releases the instance and the host state attached to it, such as
// open file handles. It is safe to call more than once.
func (i *Instance) Close() error {
	if i.closed {
		return nil
	}
	i.finalPoints = i.RemainingPoints()
	i.closed = true
	i.rt.instances.Dec()

	errs := wrappers.Errs{}
	errs.Add(
		i.inner.close(context.Background()),
		i.closeStates(),
	)
	return errs.Err
}
