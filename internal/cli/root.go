package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mcp-gateway",
	Short: "Policy gateway for autonomous agent tool calls",
	Long:  "Mediates tool invocations from autonomous agents against human-defined rules.\nRisky calls are suspended pending human approval; every decision, approval,\nand execution is recorded to a tamper-evident audit trail.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
