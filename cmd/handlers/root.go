// Package handlers defines the later CLI commands.
package handlers

import (
	"fmt"
	"os"

	"later/internal/config"

	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "later",
		Short: "A read-later queue with semantic search",
		Long: `later saves articles for reading, summarises and embeds them in the
background, and makes the queue searchable.

Examples:
  # Run the HTTP API
  later serve

  # Save an article
  later add https://example.com/post

  # Search saved items
  later search "database internals"

  # Map the queue as labelled topic clusters
  later analyze --clustering kmeans --label`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.later.yaml)")

	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewAddCmd())
	rootCmd.AddCommand(NewListCmd())
	rootCmd.AddCommand(NewSearchCmd())
	rootCmd.AddCommand(NewAnalyzeCmd())

	cobra.OnInitialize(initConfig)
	return rootCmd
}

func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
