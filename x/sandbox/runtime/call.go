// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"context"
	"errors"
	"fmt"
)

var errMissingFunctionName = errors.New("missing function name")

type CallInfo struct {
	// the name of the exported function being called
	FunctionName string

	// raw arguments passed to the function
	Params []uint64

	// bytes copied into guest memory before the call. When set, their offset
	// and length are passed ahead of Params.
	Input []byte

	// overrides the configured budget for this call, when set
	Points *int64
}

type CallResult struct {
	Results []uint64

	// the ledger after the call, including after a trap
	RemainingPoints int64

	// points deducted during the call, including the cost of copying Input
	ConsumedPoints int64
}

// Execute compiles wasm, runs a single call on a fresh instance and closes
// it. The result is returned even when the call fails so callers can observe
// the ledger at the point of failure.
func (r *Runtime) Execute(ctx context.Context, wasm []byte, callInfo *CallInfo) (_ *CallResult, err error) {
	if callInfo == nil || callInfo.FunctionName == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArguments, errMissingFunctionName)
	}
	mod, err := r.Compile(ctx, wasm)
	if err != nil {
		return nil, err
	}
	inst, err := r.Instantiate(ctx, mod)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := inst.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close instance: %w", closeErr))
		}
	}()

	return inst.Execute(ctx, callInfo)
}

// Execute runs callInfo against an existing instance.
func (i *Instance) Execute(ctx context.Context, callInfo *CallInfo) (*CallResult, error) {
	if callInfo.Points != nil {
		if err := i.SetRemainingPoints(*callInfo.Points); err != nil {
			return nil, err
		}
	}
	start := i.RemainingPoints()
	result := &CallResult{}
	finish := func() {
		result.RemainingPoints = i.RemainingPoints()
		result.ConsumedPoints = start - result.RemainingPoints
	}

	args := callInfo.Params
	if callInfo.Input != nil {
		offset, err := i.WriteBytes(ctx, callInfo.Input)
		if err != nil {
			finish()
			return result, fmt.Errorf("failed to write input: %w", err)
		}
		args = append([]uint64{uint64(offset), uint64(len(callInfo.Input))}, callInfo.Params...)
	}

	results, err := i.Call(ctx, callInfo.FunctionName, args...)
	finish()
	if err != nil {
		return result, err
	}
	result.Results = results
	return result, nil
}
