package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dlsnode",
	Short: "Tools for running and inspecting a DLS consensus committee",
	Long: `dlsnode provides small operational tools around the DLS
(Dwork-Lynch-Stockmeyer) chained consensus implementation: validating a
session's committee parameters, running an in-process simulation to a
target block height, and benchmarking round throughput.`,
}

func main() {
	rootCmd.AddCommand(
		checkCmd(),
		simCmd(),
		benchCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
