package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "mercator",
	Short: "Mercator Jupiter - multi-provider LLM API gateway",
	Long: `Mercator Jupiter is a reverse-proxy gateway for LLM APIs.

It routes OpenAI-dialect requests across a configured set of upstream
instances, providing:
  - Model-prefix based routing across providers
  - Weighted priority load balancing with sticky sessions
  - Health-aware retry/failover across instances
  - Request/response format conversion and SSE streaming translation
  - Accounting of completed requests to an embedded SQLite store

For more information, visit: https://github.com/mercator-hq/jupiter`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Disable default completion command (we'll add our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
