// Package main provides the entry point for the relayrotor CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for relayrotor.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relayrotor",
		Short: "Rotate tunnel clients across a pool of upstream relays",
		Long: `relayrotor keeps a fleet of tunnel clients rotating across a pool of
upstream relays. Each client gets its own virtual interface, policy routes,
and bridging process; on every rotation the client moves to the least
recently used relay, avoiding the location it just left.

The daemon exposes a local HTTP API for status queries and manual rotations.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewRotateCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}
