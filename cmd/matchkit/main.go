// Package main provides the entry point for the matchkit CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/matchkit/cmd/matchkit/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "matchkit",
		Short: "Matchkit - prefix matching and bucketed work scheduling toolkit",
		Long: `Matchkit matches text against rule sets with a compact prefix tree and
scans file trees concurrently with a bucketed work scheduler.

Commands:
  match     Match input lines against a rule set
  scan      Scan files and directories for rule matches`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewMatchCommand())
	rootCmd.AddCommand(commands.NewScanCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
