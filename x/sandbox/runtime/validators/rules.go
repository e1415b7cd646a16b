// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validators

import (
	"fmt"

	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime"
	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime/metering"
)

// Common security rules that can be used with any validator

func addRule(v runtime.ModuleValidator, rule runtime.SecurityRule) error {
	dv, ok := v.(*DefaultValidator)
	if !ok {
		return nil
	}
	return dv.AddCustomRule(rule)
}

// WithDeterministicFloatingPoint returns a ValidatorOption that configures
// floating point validation rules
func WithDeterministicFloatingPoint() runtime.ValidatorOption {
	return func(v runtime.ModuleValidator) error {
		return addRule(v, runtime.SecurityRule{
			Type: runtime.RuleTypeFloatingPoint,
			Name: "strict-float",
			AllowList: []string{
				"f32.add", "f32.sub", "f32.mul", "f32.div",
				"f64.add", "f64.sub", "f64.mul", "f64.div",
				"f32.eq", "f32.ne", "f32.lt", "f32.gt", "f32.le", "f32.ge",
				"f64.eq", "f64.ne", "f64.lt", "f64.gt", "f64.le", "f64.ge",
				"f32.abs", "f32.neg", "f64.abs", "f64.neg",
			},
			DenyList: []string{
				"f32.nearest", "f32.ceil", "f32.floor", "f32.trunc",
				"f64.nearest", "f64.ceil", "f64.floor", "f64.trunc",
			},
		})
	}
}

// WithRestrictedInstructions returns a ValidatorOption that configures
// instruction validation rules
func WithRestrictedInstructions() runtime.ValidatorOption {
	return func(v runtime.ModuleValidator) error {
		return addRule(v, runtime.SecurityRule{
			Type: runtime.RuleTypeInstruction,
			Name: "restricted-instructions",
			DenyList: []string{
				"memory.grow", "memory.size",
				"table.grow", "table.size",
				"unreachable",
			},
		})
	}
}

// WithCustomMemoryLimits returns a ValidatorOption that configures
// custom memory validation rules
func WithCustomMemoryLimits(maxPages uint32) runtime.ValidatorOption {
	return func(v runtime.ModuleValidator) error {
		return addRule(v, runtime.SecurityRule{
			Type: runtime.RuleTypeCustom,
			Name: "custom-memory-limits",
			Validator: func(mod *metering.Module) error {
				memories := append([]metering.Limits(nil), mod.Memories...)
				for _, imp := range mod.Imports {
					if imp.Kind == metering.ExternalMemory {
						memories = append(memories, imp.Memory)
					}
				}
				for _, mem := range memories {
					if mem.Min > maxPages {
						return fmt.Errorf("%w: initial memory pages %d exceed custom limit %d", runtime.ErrResourceLimitExceeded, mem.Min, maxPages)
					}
					if !mem.HasMax || mem.Max > maxPages {
						return fmt.Errorf("%w: maximum memory pages exceed custom limit %d", runtime.ErrResourceLimitExceeded, maxPages)
					}
				}
				return nil
			},
		})
	}
}

// WithRules returns a ValidatorOption that adds rules built elsewhere, such
// as from a config file.
func WithRules(rules ...runtime.SecurityRule) runtime.ValidatorOption {
	return func(v runtime.ModuleValidator) error {
		for _, rule := range rules {
			if err := addRule(v, rule); err != nil {
				return err
			}
		}
		return nil
	}
}
