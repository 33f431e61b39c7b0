package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "castellan",
	Short: "Sub-agent dispatch and coordination core",
	Long: `Castellan gates and tracks the sub-agents an orchestrating assistant
dispatches during a conversation turn.

Every skill invocation passes a four-level admission check before it runs:
  1. Per-skill fuse (opens after repeated upstream failures)
  2. Per-agent skill-call budget
  3. Per-turn dispatch and skill-call budgets
  4. Per-conversation sliding-window rate limit

Dispatched agents move through a strict lifecycle (pending, running,
awaiting_orchestrator, then completed/failed/timeout) and every admitted
dispatch is written to the local audit database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}
