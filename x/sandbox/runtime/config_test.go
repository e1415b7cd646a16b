// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime/metering"
)

func readConfig(t *testing.T, src string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(src)))
	return v
}

func TestLoadConfigDefaults(t *testing.T) {
	require := require.New(t)
	cfg, err := LoadConfig(viper.New())
	require.NoError(err)

	want := NewConfig()
	require.Equal(want.Engine, cfg.Engine)
	require.Equal(want.Budget, cfg.Budget)
	require.Equal(want.Limits, cfg.Limits)
	require.Equal(want.ModuleCacheSize, cfg.ModuleCacheSize)
	require.Equal(uint64(1), cfg.Costs.Cost(metering.OpI32Add))
}

func TestLoadConfig(t *testing.T) {
	require := require.New(t)
	cfg, err := LoadConfig(readConfig(t, `
engine: wazero
budget: 500
limits:
  max_memory_pages: 8
  max_functions: 10
costs:
  default: 2
  categories:
    memory: 5
`))
	require.NoError(err)
	require.Equal(EngineWazero, cfg.Engine)
	require.Equal(int64(500), cfg.Budget)
	require.Equal(uint32(8), cfg.Limits.MaxMemoryPages)
	require.Equal(uint32(10), cfg.Limits.MaxFunctions)
	require.Equal(uint64(2), cfg.Costs.Cost(metering.OpI32Add))
	require.Equal(uint64(5), cfg.Costs.Cost(metering.OpI32Load))
}

func TestLoadConfigScheduleFile(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "costs.yaml")
	require.NoError(os.WriteFile(path, []byte(`
default: 1
operators:
  i64.div_s: 40
`), 0o600))

	cfg, err := LoadConfig(readConfig(t, "costs:\n  schedule_file: "+path+"\n"))
	require.NoError(err)
	require.Equal(uint64(40), cfg.Costs.Cost(metering.OpI64DivS))
	require.Equal(uint64(1), cfg.Costs.Cost(metering.OpI64Add))
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "negative budget", src: "budget: -1\n"},
		{name: "unknown engine", src: "engine: v8\n"},
		{name: "unknown category", src: "costs:\n  categories:\n    vector: 1\n"},
		{
			name: "incomplete coverage",
			src:  "costs:\n  require_coverage: true\n  categories:\n    numeric: 1\n",
		},
		{name: "missing schedule file", src: "costs:\n  schedule_file: /does/not/exist.yaml\n"},
		{name: "zero stack", src: "max_wasm_stack: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(readConfig(t, tt.src))
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
