// Package main is the entry point for the advisor directory crawler CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:          "crawler",
		Short:        "Wealth advisor directory crawler",
		Long:         "Crawls financial-advisor directory sites with an LLM-guided browser, recovering from blocking pages.",
		Version:      fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newDetectCmd())
	rootCmd.AddCommand(newURLsCmd())

	return rootCmd.Execute()
}
