// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"errors"
	"fmt"
)

var (
	// ErrPointsExhausted is returned when a call could not pay for a block,
	// or when a call is attempted on an instance that is still exhausted.
	ErrPointsExhausted = errors.New("points exhausted")
	// ErrTrap is returned for every other guest trap.
	ErrTrap = errors.New("guest trapped")
	// ErrOutOfBounds is returned when a guest range falls outside linear memory.
	ErrOutOfBounds = errors.New("memory access out of bounds")

	ErrInvalidConfig     = errors.New("invalid config")
	ErrFunctionNotFound  = errors.New("function not found")
	ErrInvalidArguments  = errors.New("invalid arguments")
	ErrMissingMemory     = errors.New("module does not export memory")
	ErrMissingAlloc      = errors.New("module does not export alloc")
	ErrNotMetered        = errors.New("module is not metered")
	ErrRuntimeClosed     = errors.New("runtime closed")
	ErrInstanceClosed    = errors.New("instance closed")
	ErrUnsupportedEngine = errors.New("unsupported engine")
)

// ExitError is returned from a call whose guest invoked the exit import and
// whose exit function returned instead of terminating the process.
type ExitError struct {
	Code int32
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("guest exited with code %d", e.Code)
}

// ValidationError represents an error that occurs during WebAssembly validation
type ValidationError struct {
	Message string // General error message
	Rule    string // Optional: specific validation rule that failed
	Cause   error  // Optional: underlying error
}

func (e *ValidationError) Error() string {
	if e.Rule != "" {
		if e.Cause != nil {
			return fmt.Sprintf("validation failed for rule %s: %s: %v", e.Rule, e.Message, e.Cause)
		}
		return fmt.Sprintf("validation failed for rule %s: %s", e.Rule, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new ValidationError with an optional rule name
func NewValidationError(msg string, rule string, err error) error {
	return &ValidationError{
		Message: msg,
		Rule:    rule,
		Cause:   err,
	}
}
