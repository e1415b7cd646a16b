// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime"
	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime/posix"
	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime/validators"
)

type runFlags struct {
	input      string
	env        []string
	inheritEnv bool
	allowExit  bool
	restricted bool
	maxHandles int
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <module> <function> [args...]",
		Short: "Call an exported function and report the points it used",
		Long: "Call an exported function of a .wasm or .wat module. Integer arguments are " +
			"passed as raw i32/i64 values. With --input the bytes are copied into guest " +
			"memory through its alloc export and their offset and length are passed first.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v, f, args)
		},
	}
	cmd.Flags().StringVar(&f.input, "input", "", "bytes to copy into guest memory")
	cmd.Flags().StringSliceVar(&f.env, "env", nil, "KEY=VALUE pairs visible to get_env")
	cmd.Flags().BoolVar(&f.inheritEnv, "inherit-env", false, "expose the host environment to get_env")
	cmd.Flags().BoolVar(&f.allowExit, "allow-exit", false, "link the exit import")
	cmd.Flags().BoolVar(&f.restricted, "restricted", false, "reject modules using memory.grow, table.grow or unreachable")
	cmd.Flags().IntVar(&f.maxHandles, "max-handles", posix.DefaultMaxHandles, "files a guest may hold open")
	return cmd
}

func parseArgs(args []string) ([]uint64, error) {
	out := make([]uint64, len(args))
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			n, err := strconv.ParseInt(arg, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid argument %q: %w", arg, err)
			}
			out[i] = uint64(n)
			continue
		}
		n, err := strconv.ParseUint(arg, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid argument %q: %w", arg, err)
		}
		out[i] = n
	}
	return out, nil
}

func envLookup(f runFlags) func(string) (string, bool) {
	if f.inheritEnv {
		return os.LookupEnv
	}
	vars := make(map[string]string, len(f.env))
	for _, kv := range f.env {
		k, val, _ := strings.Cut(kv, "=")
		vars[k] = val
	}
	return func(name string) (string, bool) {
		val, ok := vars[name]
		return val, ok
	}
}

func run(cmd *cobra.Command, v *viper.Viper, f runFlags, args []string) error {
	ctx := cmd.Context()
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	cfg, err := runtime.LoadConfig(v)
	if err != nil {
		return err
	}
	wasm, err := readModule(args[0])
	if err != nil {
		return err
	}
	params, err := parseArgs(args[2:])
	if err != nil {
		return err
	}

	bridgeOpts := []posix.Option{
		posix.WithEnv(envLookup(f)),
		posix.WithMaxHandles(f.maxHandles),
	}
	if f.allowExit {
		// the exit code is reported through *runtime.ExitError
		bridgeOpts = append(bridgeOpts, posix.WithExit(func(int32) {}))
	}
	imports, err := posix.NewModule(bridgeOpts...)
	if err != nil {
		return err
	}
	opts := []runtime.Option{runtime.WithImports(imports)}
	if f.restricted {
		validator, err := validators.NewDefaultValidatorWithOptions(validators.WithRestrictedInstructions())
		if err != nil {
			return err
		}
		opts = append(opts, runtime.WithValidator(validator))
	}

	r, err := runtime.NewRuntime(cfg, log, opts...)
	if err != nil {
		return err
	}
	defer r.Close(ctx)

	callInfo := &runtime.CallInfo{
		FunctionName: args[1],
		Params:       params,
	}
	if cmd.Flags().Changed("input") {
		callInfo.Input = []byte(f.input)
	}
	log.Debug("running module",
		zap.String("path", args[0]),
		zap.String("function", callInfo.FunctionName),
		zap.Int64("budget", cfg.Budget),
		zap.String("engine", string(cfg.Engine)),
	)

	result, err := r.Execute(ctx, wasm, callInfo)
	if result != nil {
		printResult(cmd, cfg.Budget, result)
	}
	return err
}

func printResult(cmd *cobra.Command, budget int64, result *runtime.CallResult) {
	out := cmd.OutOrStdout()
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	if len(result.Results) > 0 {
		values := make([]string, len(result.Results))
		for i, r := range result.Results {
			values[i] = strconv.FormatUint(r, 10)
		}
		green.Fprintf(out, "results: %s\n", strings.Join(values, " "))
	}
	points := green
	if result.RemainingPoints <= 0 || result.RemainingPoints < budget/10 {
		points = yellow
	}
	points.Fprintf(out, "points consumed: %d remaining: %d\n", result.ConsumedPoints, result.RemainingPoints)
}
