package main

import (
	"fmt"
	"os"

	"github.com/benvon/habit-tracker/cmd/habitctl/commands"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "habitctl",
		Short: "Operator tool for the habit tracker",
		Long:  "CLI tool for schema migration, challenge reconciliation and analytics spot checks",
	}

	rootCmd.AddCommand(commands.NewMigrateCmd())
	rootCmd.AddCommand(commands.NewReconcileCmd())
	rootCmd.AddCommand(commands.NewLeaderboardCmd())
	rootCmd.AddCommand(commands.NewStreakCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
