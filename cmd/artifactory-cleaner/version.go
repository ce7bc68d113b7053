package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stderr, "artifactory-cleaner version %s\n", Version)
		fmt.Fprintf(os.Stderr, "  Go version: %s\n", runtime.Version())
	},
}
