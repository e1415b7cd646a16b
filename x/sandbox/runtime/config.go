// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"fmt"
	"os"

	"github.com/ava-labs/avalanchego/utils/units"
	"github.com/spf13/viper"

	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime/metering"
)

type EngineKind string

const (
	EngineWasmtime EngineKind = "wasmtime"
	EngineWazero   EngineKind = "wazero"
)

const (
	defaultBudget          = 10_000_000
	defaultModuleCacheSize = 32 * units.MiB
	defaultMaxWasmStack    = 256 * units.KiB
)

// Config is fixed once a Runtime is built from it.
type Config struct {
	Engine EngineKind
	// Budget is the initial value of every instance's ledger.
	Budget int64
	Costs  metering.CostModel
	// ModuleCacheSize bounds the compiled module cache, in bytes of
	// instrumented bytecode.
	ModuleCacheSize int
	Limits          ResourceLimits
	MaxWasmStack    int
}

// NewConfig returns a config charging one point per operator.
func NewConfig() *Config {
	return &Config{
		Engine:          EngineWasmtime,
		Budget:          defaultBudget,
		Costs:           metering.Uniform(1),
		ModuleCacheSize: defaultModuleCacheSize,
		Limits:          DefaultResourceLimits(),
		MaxWasmStack:    defaultMaxWasmStack,
	}
}

func (c *Config) SetEngine(kind EngineKind) *Config {
	c.Engine = kind
	return c
}

func (c *Config) SetBudget(budget int64) *Config {
	c.Budget = budget
	return c
}

func (c *Config) SetCosts(costs metering.CostModel) *Config {
	c.Costs = costs
	return c
}

func (c *Config) SetLimits(limits ResourceLimits) *Config {
	c.Limits = limits
	return c
}

// Validate rejects configs that would fail at run time.
func (c *Config) Validate() error {
	if c.Budget < 0 {
		return fmt.Errorf("%w: negative budget %d", ErrInvalidConfig, c.Budget)
	}
	if c.Costs == nil {
		return fmt.Errorf("%w: missing cost model", ErrInvalidConfig)
	}
	if v, ok := c.Costs.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	switch c.Engine {
	case EngineWasmtime, EngineWazero:
	default:
		return fmt.Errorf("%w: %w %q", ErrInvalidConfig, ErrUnsupportedEngine, c.Engine)
	}
	if c.ModuleCacheSize < 0 {
		return fmt.Errorf("%w: negative module cache size", ErrInvalidConfig)
	}
	if c.MaxWasmStack <= 0 {
		return fmt.Errorf("%w: max wasm stack must be positive", ErrInvalidConfig)
	}
	return nil
}

type costsConfig struct {
	Default         uint64            `mapstructure:"default"`
	Categories      map[string]uint64 `mapstructure:"categories"`
	RequireCoverage bool              `mapstructure:"require_coverage"`
	// ScheduleFile points at a YAML metering.Schedule. Operator names contain
	// dots, which viper treats as key separators, so per-operator prices are
	// only read from this file.
	ScheduleFile string `mapstructure:"schedule_file"`
}

// LoadConfig builds a Config from v, keeping defaults for unset keys.
func LoadConfig(v *viper.Viper) (*Config, error) {
	cfg := NewConfig()
	if v.IsSet("engine") {
		cfg.Engine = EngineKind(v.GetString("engine"))
	}
	if v.IsSet("budget") {
		cfg.Budget = v.GetInt64("budget")
	}
	if v.IsSet("module_cache_size") {
		cfg.ModuleCacheSize = v.GetInt("module_cache_size")
	}
	if v.IsSet("max_wasm_stack") {
		cfg.MaxWasmStack = v.GetInt("max_wasm_stack")
	}
	if v.IsSet("limits") {
		if err := v.UnmarshalKey("limits", &cfg.Limits); err != nil {
			return nil, fmt.Errorf("%w: limits: %w", ErrInvalidConfig, err)
		}
	}
	if v.IsSet("costs") {
		costs, err := loadCosts(v)
		if err != nil {
			return nil, err
		}
		cfg.Costs = costs
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadCosts(v *viper.Viper) (metering.CostModel, error) {
	var cc costsConfig
	if err := v.UnmarshalKey("costs", &cc); err != nil {
		return nil, fmt.Errorf("%w: costs: %w", ErrInvalidConfig, err)
	}
	schedule := metering.Schedule{
		Default:         cc.Default,
		Categories:      cc.Categories,
		RequireCoverage: cc.RequireCoverage,
	}
	if cc.ScheduleFile != "" {
		f, err := os.Open(cc.ScheduleFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		defer f.Close()
		if schedule, err = metering.LoadSchedule(f); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	table, err := schedule.Compile()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return table, nil
}
