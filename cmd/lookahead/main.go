// Package main is a command-line host for the lookahead engine. It loads a
// YAML scenario, registers its subsystems and runs either an eager lookahead
// or a time-sliced one driven the way a frame loop would.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lookahead",
		Short: "Compute multi-step lookaheads for open quantum subsystems",
		Long: `lookahead evolves every subsystem of a scenario under its Lindblad
master equation and reports purity, Bloch data, mutual information and
the force-directed layout of each qubit for a number of future steps.

Defaults come from the environment (and an optional .env file).`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("scenario", "", "Scenario YAML file (required)")
	rootCmd.PersistentFlags().Int("steps", 0, "Lookahead steps (overrides scenario and LOOKAHEAD_STEPS)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("out", "", "Write the full result as msgpack to this file")
	_ = rootCmd.MarkPersistentFlagRequired("scenario")

	rootCmd.AddCommand(
		newRunCmd(),
		newSlicedCmd(),
	)
	return rootCmd
}
