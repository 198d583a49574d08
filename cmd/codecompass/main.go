// Package main is the entry point for the codecompass CLI.
package main

import (
	"fmt"
	"os"

	"github.com/codecompass/codecompass"
	"github.com/spf13/cobra"
)

// Version information set via ldflags during build.
var (
	version = codecompass.Version
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codecompass",
		Short: "CodeCompass code intelligence server",
		Long: `CodeCompass indexes a Git repository into a vector store and serves
semantic code search, commit history context, and AI code suggestions
over the Model Context Protocol.`,
		// Errors are printed once by main; stdout stays clean for the
		// MCP stdio transport.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}
