// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// "sandbox" runs and instruments metered WebAssembly modules.
package main

import (
	"errors"
	"os"

	"github.com/fatih/color"

	"github.com/ava-labs/wasmsandbox/x/sandbox/runtime"
)

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	if !isGuestExit(err) {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// isGuestExit reports whether the guest ended the run through exit, which is
// not a failure of the command.
func isGuestExit(err error) bool {
	var exitErr *runtime.ExitError
	return errors.As(err, &exitErr)
}
