package main

import (
	"os"

	"github.com/grovetools/pgpulse/cli"
	"github.com/grovetools/pgpulse/cmd"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"pgpulse",
		"Real-time PostgreSQL monitoring with session recording and replay",
	)

	rootCmd.AddCommand(cmd.NewMonitorCmd())
	rootCmd.AddCommand(cmd.NewReplayCmd())
	rootCmd.AddCommand(cmd.NewAttachCmd())
	rootCmd.AddCommand(cmd.NewSessionsCmd())
	rootCmd.AddCommand(cmd.NewConfigCmd())
	rootCmd.AddCommand(cmd.NewPathsCmd())
	rootCmd.AddCommand(cli.NewVersionCommand("pgpulse"))

	cli.ApplyStyledHelpRecursive(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
		cli.NewErrorHandler(verbose).Handle(err)
		os.Exit(1)
	}
}
