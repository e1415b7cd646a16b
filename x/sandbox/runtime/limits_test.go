// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime/metering"
)

func TestValidationError(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		rule     string
		err      error
		expected string
	}{
		{
			name:     "error with underlying cause",
			message:  "validation failed",
			rule:     "test-rule",
			err:      ErrInvalidModule,
			expected: "validation failed for rule test-rule: validation failed: invalid module",
		},
		{
			name:     "error without cause",
			message:  "validation failed",
			rule:     "test-rule",
			err:      nil,
			expected: "validation failed for rule test-rule: validation failed",
		},
		{
			name:     "error without rule",
			message:  "validation failed",
			rule:     "",
			err:      ErrInvalidModule,
			expected: "validation error: validation failed: invalid module",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidationError(tt.message, tt.rule, tt.err)
			require.Equal(t, tt.expected, err.Error())
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestResourceLimits(t *testing.T) {
	limits := DefaultResourceLimits()
	limits.MaxFunctions = 2
	limits.MaxExports = 2
	limits.MaxGlobals = 1
	limits.MaxImports = 1
	limits.MaxInitialMemoryPages = 1
	limits.MaxMemoryPages = 2
	limits.MaxTableSize = 10

	tests := []struct {
		name    string
		wat     string
		wantErr bool
	}{
		{
			name: "within limits",
			wat: `(module
				(memory 1 2)
				(table 10 funcref)
				(global i32 (i32.const 0))
				(func (export "a")))`,
		},
		{
			name:    "too many functions",
			wat:     `(module (func) (func) (func))`,
			wantErr: true,
		},
		{
			name:    "imported functions count",
			wat:     `(module (import "env" "f" (func)) (func) (func))`,
			wantErr: true,
		},
		{
			name:    "too many imports",
			wat:     `(module (import "env" "f" (func)) (import "env" "g" (func)))`,
			wantErr: true,
		},
		{
			name:    "too many exports",
			wat:     `(module (func (export "a") (export "b") (export "c")))`,
			wantErr: true,
		},
		{
			name:    "too many globals",
			wat:     `(module (global i32 (i32.const 0)) (global i32 (i32.const 0)))`,
			wantErr: true,
		},
		{
			name:    "initial memory too large",
			wat:     `(module (memory 2))`,
			wantErr: true,
		},
		{
			name:    "maximum memory too large",
			wat:     `(module (memory 1 3))`,
			wantErr: true,
		},
		{
			name:    "imported memory too large",
			wat:     `(module (import "env" "memory" (memory 2)))`,
			wantErr: true,
		},
		{
			name:    "table too large",
			wat:     `(module (table 11 funcref))`,
			wantErr: true,
		},
		{
			name:    "table maximum too large",
			wat:     `(module (table 1 20 funcref))`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := metering.Parse(wat(t, tt.wat))
			require.NoError(t, err)

			err = limits.Check(mod)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrResourceLimitExceeded)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, "resource-limits", verr.Rule)
		})
	}
}

func TestModuleSizeLimit(t *testing.T) {
	limits := DefaultResourceLimits()
	limits.MaxModuleSize = 8
	r := newTestRuntime(t, NewConfig().SetLimits(limits))

	_, err := r.Compile(context.Background(), wat(t, counterModule))
	require.ErrorIs(t, err, ErrResourceLimitExceeded)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "module-size", verr.Rule)
}

type rejectingValidator struct {
	calls int
}

func (v *rejectingValidator) ValidateModule(*metering.Module) error {
	v.calls++
	return NewValidationError("rejected", "test", ErrSecurityRuleViolation)
}

func (*rejectingValidator) ValidateSecurityRules(*metering.Module, []SecurityRule) error {
	return nil
}

func (*rejectingValidator) ValidateResourceLimits(*metering.Module, ResourceLimits) error {
	return nil
}

func TestCompileRunsValidator(t *testing.T) {
	require := require.New(t)
	v := &rejectingValidator{}
	r := newTestRuntime(t, NewConfig(), WithValidator(v))

	_, err := r.Compile(context.Background(), wat(t, counterModule))
	require.ErrorIs(err, ErrSecurityRuleViolation)
	require.Equal(1, v.calls)

	// rejected modules are not cached
	_, err = r.Compile(context.Background(), wat(t, counterModule))
	require.True(errors.Is(err, ErrSecurityRuleViolation))
	require.Equal(2, v.calls)
}
