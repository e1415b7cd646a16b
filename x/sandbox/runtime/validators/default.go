// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validators

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime"
	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime/metering"
)

var (
	_ runtime.ModuleValidator = (*DefaultValidator)(nil)

	errUnknownOperatorName = errors.New("unknown operator name")
)

// DefaultValidator implements the ModuleValidator interface with standard validation rules
type DefaultValidator struct {
	defaultRules []runtime.SecurityRule
	customRules  []runtime.SecurityRule
	config       runtime.ValidatorConfig
}

// NewDefaultValidator creates a new DefaultValidator with standard rules.
// Rules naming an operator that does not exist are rejected.
func NewDefaultValidator(config runtime.ValidatorConfig) (*DefaultValidator, error) {
	v := &DefaultValidator{
		config: config,
	}
	if config.DefaultRules {
		v.defaultRules = defaultSecurityRules()
	}
	for _, rule := range config.CustomRules {
		if err := v.AddCustomRule(rule); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// NewDefaultValidatorWithOptions creates a new DefaultValidator with options
func NewDefaultValidatorWithOptions(opts ...runtime.ValidatorOption) (*DefaultValidator, error) {
	v, err := NewDefaultValidator(runtime.DefaultValidatorConfig())
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, fmt.Errorf("failed to apply validator option: %w", err)
		}
	}
	return v, nil
}

// ValidateModule implements ModuleValidator.ValidateModule
func (v *DefaultValidator) ValidateModule(mod *metering.Module) error {
	if err := v.ValidateSecurityRules(mod, v.defaultRules); err != nil {
		return err
	}
	if err := v.ValidateSecurityRules(mod, v.customRules); err != nil {
		return err
	}
	return v.ValidateResourceLimits(mod, v.config.ResourceLimits)
}

// ValidateSecurityRules implements ModuleValidator.ValidateSecurityRules
func (*DefaultValidator) ValidateSecurityRules(mod *metering.Module, rules []runtime.SecurityRule) error {
	for _, rule := range rules {
		var err error
		switch rule.Type {
		case runtime.RuleTypeInstruction:
			err = validateInstructions(mod, rule)
		case runtime.RuleTypeFloatingPoint:
			err = validateFloatingPoint(mod, rule)
		case runtime.RuleTypeMemory:
			err = validateMemoryOperations(mod, rule)
		case runtime.RuleTypeCustom:
			if rule.Validator != nil {
				if verr := rule.Validator(mod); verr != nil {
					err = runtime.NewValidationError("custom validation failed", rule.Name, verr)
				}
			}
		default:
			err = runtime.NewValidationError(
				fmt.Sprintf("unknown rule type %q", rule.Type),
				rule.Name,
				runtime.ErrSecurityRuleViolation,
			)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ValidateResourceLimits implements ModuleValidator.ValidateResourceLimits
func (*DefaultValidator) ValidateResourceLimits(mod *metering.Module, limits runtime.ResourceLimits) error {
	return limits.Check(mod)
}

// AddCustomRule adds a custom security rule to the validator
func (v *DefaultValidator) AddCustomRule(rule runtime.SecurityRule) error {
	for _, name := range append(append([]string(nil), rule.AllowList...), rule.DenyList...) {
		if _, ok := metering.OperatorsByName(name); !ok {
			return fmt.Errorf("%w %q in rule %s", errUnknownOperatorName, name, rule.Name)
		}
	}
	v.customRules = append(v.customRules, rule)
	return nil
}

// CustomRules returns the current set of custom security rules
func (v *DefaultValidator) CustomRules() []runtime.SecurityRule {
	return v.customRules
}

// defaultSecurityRules returns the default set of security rules
func defaultSecurityRules() []runtime.SecurityRule {
	return []runtime.SecurityRule{
		{
			Type: runtime.RuleTypeInstruction,
			Name: "default-instructions",
			DenyList: []string{
				// Deny table operations by default
				"table.get",
				"table.set",
				"table.size",
				"table.grow",
				"table.fill",
				"table.init",
				"elem.drop",
				"table.copy",
			},
		},
		{
			Type: runtime.RuleTypeMemory,
			Name: "default-memory",
			DenyList: []string{
				"memory.grow",
			},
		},
	}
}

// visit calls f for every instruction of every defined function, stopping
// at the first error.
func visit(mod *metering.Module, f func(fn int, op metering.Operator) error) error {
	base := mod.ImportedFunctions()
	for i, fn := range mod.Functions {
		for _, ins := range fn.Instructions {
			if err := f(base+i, ins.Op); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateInstructions validates WebAssembly instructions against allow/deny lists
func validateInstructions(mod *metering.Module, rule runtime.SecurityRule) error {
	return visit(mod, func(fn int, op metering.Operator) error {
		name := op.String()
		if slices.Contains(rule.DenyList, name) || (len(rule.AllowList) > 0 && !slices.Contains(rule.AllowList, name)) {
			return runtime.NewValidationError(
				fmt.Sprintf("instruction %s not allowed in function %d", name, fn),
				rule.Name,
				runtime.ErrInvalidInstruction,
			)
		}
		return nil
	})
}

func isFloatingPoint(op metering.Operator) bool {
	switch op.Category() {
	case metering.CategoryNumeric, metering.CategoryConversion:
		name := op.String()
		return strings.Contains(name, "f32") || strings.Contains(name, "f64")
	default:
		return false
	}
}

// validateFloatingPoint validates floating point arithmetic and conversions.
// Without any list every floating point operation is rejected.
func validateFloatingPoint(mod *metering.Module, rule runtime.SecurityRule) error {
	return visit(mod, func(fn int, op metering.Operator) error {
		if !isFloatingPoint(op) {
			return nil
		}
		name := op.String()
		allowed := !slices.Contains(rule.DenyList, name)
		if len(rule.AllowList) > 0 {
			allowed = allowed && slices.Contains(rule.AllowList, name)
		} else if len(rule.DenyList) == 0 {
			allowed = false
		}
		if !allowed {
			return runtime.NewValidationError(
				fmt.Sprintf("floating point operation %s not allowed in function %d", name, fn),
				rule.Name,
				runtime.ErrSecurityRuleViolation,
			)
		}
		return nil
	})
}

// boundedMemory reports whether every memory, imported or defined, declares
// a maximum.
func boundedMemory(mod *metering.Module) bool {
	for _, mem := range mod.Memories {
		if !mem.HasMax {
			return false
		}
	}
	for _, imp := range mod.Imports {
		if imp.Kind == metering.ExternalMemory && !imp.Memory.HasMax {
			return false
		}
	}
	return true
}

// validateMemoryOperations validates memory-related operations. A denied
// memory.grow is still accepted when growth is bounded by a declared maximum.
func validateMemoryOperations(mod *metering.Module, rule runtime.SecurityRule) error {
	bounded := boundedMemory(mod)
	return visit(mod, func(fn int, op metering.Operator) error {
		if op.Category() != metering.CategoryMemory {
			return nil
		}
		name := op.String()
		denied := slices.Contains(rule.DenyList, name)
		if op == metering.OpMemoryGrow && denied && bounded {
			denied = false
		}
		if denied || (len(rule.AllowList) > 0 && !slices.Contains(rule.AllowList, name)) {
			msg := fmt.Sprintf("memory operation %s not allowed in function %d", name, fn)
			if op == metering.OpMemoryGrow {
				msg = fmt.Sprintf("unbounded memory growth not allowed in function %d", fn)
			}
			return runtime.NewValidationError(msg, rule.Name, runtime.ErrInvalidMemoryOperation)
		}
		return nil
	})
}
