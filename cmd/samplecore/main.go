package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"samplecore/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "samplecore",
		Short: "samplecore - laboratory sample tracking core",
		Long: `samplecore tracks physical laboratory specimens through their lifecycle:
intake, quality gating, storage assignment, sequencing submission, and
completion. Every location change is recorded in an append-only ledger
and no two samples ever claim the same storage slot.`,
	}

	rootCmd.AddCommand(cli.CheckCmd())
	rootCmd.AddCommand(cli.ProvisionCmd())
	rootCmd.AddCommand(cli.IntakeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
