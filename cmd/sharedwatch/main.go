// Package main provides the entry point for the sharedwatch CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Aman-CERP/sharedwatch/cmd/sharedwatch/cmd"
	swerrors "github.com/Aman-CERP/sharedwatch/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		slog.Debug("command failed", swerrors.LogAttrs(err)...)
		fmt.Fprint(os.Stderr, swerrors.FormatForCLI(err))
		os.Exit(1)
	}
}
