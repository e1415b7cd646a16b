// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/bytecodealliance/wasmtime-go/v25"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime"
)

const (
	configFlag   = "config"
	budgetFlag   = "budget"
	engineFlag   = "engine"
	logLevelFlag = "log-level"
)

// exit codes
const (
	exitFailure   = 1
	exitExhausted = 2
	exitTrap      = 3
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "sandbox",
		Short:         "Run WebAssembly modules under a points budget",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString(configFlag)
			if err != nil || path == "" {
				return err
			}
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config %s: %w", path, err)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(configFlag, "", "path to a config file")
	flags.Int64(budgetFlag, 0, "points available to each instance")
	flags.String(engineFlag, string(runtime.EngineWasmtime), "engine backend, wasmtime or wazero")
	flags.String(logLevelFlag, logging.Info.String(), "log level")
	for _, name := range []string{budgetFlag, engineFlag} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	cmd.AddCommand(
		newRunCmd(v),
		newInstrumentCmd(v),
	)
	return cmd
}

func newLogger(cmd *cobra.Command) (logging.Logger, error) {
	name, err := cmd.Flags().GetString(logLevelFlag)
	if err != nil {
		return nil, err
	}
	level, err := logging.ToLevel(name)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(
		"sandbox",
		logging.NewWrappedCore(level, os.Stderr, logging.Colors.ConsoleEncoder()),
	), nil
}

// readModule loads a binary module, converting text format files first.
func readModule(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) != ".wat" {
		return b, nil
	}
	wasm, err := wasmtime.Wat2Wasm(string(b))
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", path, err)
	}
	return wasm, nil
}

func exitCode(err error) int {
	var exitErr *runtime.ExitError
	switch {
	case errors.As(err, &exitErr):
		return int(exitErr.Code)
	case errors.Is(err, runtime.ErrPointsExhausted):
		return exitExhausted
	case errors.Is(err, runtime.ErrTrap):
		return exitTrap
	default:
		return exitFailure
	}
}
