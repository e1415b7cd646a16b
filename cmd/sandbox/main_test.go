// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime"
	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime/metering"
)

const addModule = `
(module
  (func (export "add") (param i32 i32) (result i32)
    (i32.add (local.get 0) (local.get 1)))
  (func (export "spin")
    (loop $again
      (br $again))))
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(args ...string) (string, error) {
	color.NoColor = true
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRun(t *testing.T) {
	require := require.New(t)
	path := writeFile(t, "add.wat", addModule)

	out, err := execute("run", path, "add", "2", "40", "--budget", "100", "--log-level", "off")
	require.NoError(err)
	require.Contains(out, "results: 42")
	// local.get, local.get, i32.add, end
	require.Contains(out, "points consumed: 4 remaining: 96")
}

func TestRunExhausted(t *testing.T) {
	require := require.New(t)
	path := writeFile(t, "add.wat", addModule)

	for _, engine := range []string{"wasmtime", "wazero"} {
		out, err := execute("run", path, "spin", "--budget", "1000", "--engine", engine, "--log-level", "off")
		require.ErrorIs(err, runtime.ErrPointsExhausted)
		require.Equal(exitExhausted, exitCode(err))
		require.Contains(out, "remaining: 0")
	}
}

func TestRunConfigFile(t *testing.T) {
	require := require.New(t)
	path := writeFile(t, "add.wat", addModule)
	config := writeFile(t, "config.yaml", `
budget: 50
costs:
  default: 1
  categories:
    numeric: 10
`)

	out, err := execute("run", path, "add", "1", "1", "--config", config, "--log-level", "off")
	require.NoError(err)
	require.Contains(out, "points consumed: 13 remaining: 37")

	// flags win over the file
	out, err = execute("run", path, "add", "1", "1", "--config", config, "--budget", "20", "--log-level", "off")
	require.NoError(err)
	require.Contains(out, "remaining: 7")
}

const exitModule = `
(module
  (import "env" "exit" (func $exit (param i32)))
  (func (export "main")
    (call $exit (i32.const 0))))
`

func TestRunGuestExit(t *testing.T) {
	require := require.New(t)
	path := writeFile(t, "exit.wat", exitModule)

	_, err := execute("run", path, "main", "--allow-exit", "--log-level", "off")
	var exitErr *runtime.ExitError
	require.ErrorAs(err, &exitErr)
	require.True(isGuestExit(err))
	require.Zero(exitCode(err))
	require.False(isGuestExit(runtime.ErrTrap))
}

func TestRunInvalidMaxHandles(t *testing.T) {
	require := require.New(t)
	path := writeFile(t, "add.wat", addModule)

	_, err := execute("run", path, "add", "1", "2", "--max-handles", "0", "--log-level", "off")
	require.ErrorIs(err, runtime.ErrInvalidConfig)
}

func TestInstrument(t *testing.T) {
	require := require.New(t)
	path := writeFile(t, "add.wat", addModule)
	output := filepath.Join(t.TempDir(), "add.wasm")

	out, err := execute("instrument", path, "-o", output, "--budget", "500", "--log-level", "off")
	require.NoError(err)
	require.Contains(out, fmt.Sprintf("wrote %s", output))

	b, err := os.ReadFile(output)
	require.NoError(err)
	mod, err := metering.Parse(b)
	require.NoError(err)
	require.True(mod.Metered())
}

func TestParseArgs(t *testing.T) {
	require := require.New(t)
	args, err := parseArgs([]string{"1", "0x10", "-1"})
	require.NoError(err)
	require.Equal([]uint64{1, 16, 0xFFFFFFFFFFFFFFFF}, args)

	_, err = parseArgs([]string{"one"})
	require.Error(err)
}

func TestExitCode(t *testing.T) {
	require := require.New(t)
	require.Equal(5, exitCode(fmt.Errorf("wrapped: %w", &runtime.ExitError{Code: 5})))
	require.Equal(exitTrap, exitCode(runtime.ErrTrap))
	require.Equal(exitFailure, exitCode(os.ErrNotExist))
}
