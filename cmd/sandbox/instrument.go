// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime"
	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime/metering"
)

func newInstrumentCmd(v *viper.Viper) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "instrument <module>",
		Short: "Write the metered form of a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			mod, err := metering.Parse(wasm)
			if err != nil {
				return err
			}
			if err := cfg.Limits.Check(mod); err != nil {
				return err
			}
			out, err := metering.Pass{Costs: cfg.Costs, Budget: cfg.Budget}.Apply(mod)
			if err != nil {
				return err
			}
			if output == "" {
				output = args[0] + ".metered.wasm"
			}
			if err := os.WriteFile(output, out.Bytes(), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}

			log.Debug("instrumented module",
				zap.String("input", args[0]),
				zap.String("output", output),
				zap.Int("functions", len(out.Functions)),
			)
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(),
				"wrote %s (%d -> %d bytes, %d functions, budget %d)\n",
				output, len(wasm), len(out.Bytes()), len(out.Functions), cfg.Budget,
			)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path, defaults to <module>.metered.wasm")
	return cmd
}
