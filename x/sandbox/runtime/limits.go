// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"fmt"

	"github.com/ava-labs/avalanchego/utils/units"

	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime/metering"
)

// ResourceLimits defines constraints for guest modules
type ResourceLimits struct {
	// Maximum size of module bytecode in bytes
	MaxModuleSize uint32 `mapstructure:"max_module_size"`

	// Maximum number of functions in a module, imports included
	MaxFunctions uint32 `mapstructure:"max_functions"`

	// Maximum number of imports in a module
	MaxImports uint32 `mapstructure:"max_imports"`

	// Maximum number of exports in a module
	MaxExports uint32 `mapstructure:"max_exports"`

	// Maximum number of globals in a module
	MaxGlobals uint32 `mapstructure:"max_globals"`

	// Maximum initial memory pages (64KB per page)
	MaxInitialMemoryPages uint32 `mapstructure:"max_initial_memory_pages"`

	// Maximum memory pages after growth
	MaxMemoryPages uint32 `mapstructure:"max_memory_pages"`

	// Maximum table size
	MaxTableSize uint32 `mapstructure:"max_table_size"`
}

// DefaultResourceLimits returns resource limits with safe default values
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxModuleSize:         1 * units.MiB,
		MaxFunctions:          1000,
		MaxImports:            100,
		MaxExports:            100,
		MaxGlobals:            100,
		MaxInitialMemoryPages: 4,  // 256KB
		MaxMemoryPages:        16, // 1MB
		MaxTableSize:          10000,
	}
}

func limitExceeded(format string, args ...any) error {
	return NewValidationError(fmt.Sprintf(format, args...), "resource-limits", ErrResourceLimitExceeded)
}

// Check reports the first limit the parsed module exceeds.
func (l ResourceLimits) Check(mod *metering.Module) error {
	if n := len(mod.Bytes()); uint64(n) > uint64(l.MaxModuleSize) {
		return NewValidationError(
			fmt.Sprintf("module size %d exceeds maximum allowed size %d", n, l.MaxModuleSize),
			"module-size",
			ErrResourceLimitExceeded,
		)
	}
	if n := mod.FunctionCount(); uint64(n) > uint64(l.MaxFunctions) {
		return limitExceeded("function count %d exceeds limit %d", n, l.MaxFunctions)
	}
	if n := len(mod.Imports); uint64(n) > uint64(l.MaxImports) {
		return limitExceeded("import count %d exceeds limit %d", n, l.MaxImports)
	}
	if n := len(mod.Exports); uint64(n) > uint64(l.MaxExports) {
		return limitExceeded("export count %d exceeds limit %d", n, l.MaxExports)
	}
	if n := mod.GlobalCount(); uint64(n) > uint64(l.MaxGlobals) {
		return limitExceeded("global count %d exceeds limit %d", n, l.MaxGlobals)
	}

	memories := append([]metering.Limits(nil), mod.Memories...)
	tables := append([]metering.TableType(nil), mod.Tables...)
	for _, imp := range mod.Imports {
		switch imp.Kind {
		case metering.ExternalMemory:
			memories = append(memories, imp.Memory)
		case metering.ExternalTable:
			tables = append(tables, imp.Table)
		}
	}
	for _, mem := range memories {
		if mem.Min > l.MaxInitialMemoryPages {
			return limitExceeded("initial memory pages %d exceeds limit %d", mem.Min, l.MaxInitialMemoryPages)
		}
		if mem.HasMax && mem.Max > l.MaxMemoryPages {
			return limitExceeded("maximum memory pages %d exceeds limit %d", mem.Max, l.MaxMemoryPages)
		}
	}
	for _, table := range tables {
		if table.Limits.Min > l.MaxTableSize {
			return limitExceeded("minimum table size %d exceeds limit %d", table.Limits.Min, l.MaxTableSize)
		}
		if table.Limits.HasMax && table.Limits.Max > l.MaxTableSize {
			return limitExceeded("maximum table size %d exceeds limit %d", table.Limits.Max, l.MaxTableSize)
		}
	}
	return nil
}
