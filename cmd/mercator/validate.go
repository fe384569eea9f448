package main

import (
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/jupiter/pkg/cli"
	"mercator-hq/jupiter/pkg/config"
)

var validateFlags struct {
	outputFormat string
}

type validateResult struct {
	Valid           bool     `json:"valid"`
	ListenAddress   string   `json:"listen_address"`
	DefaultProvider string   `json:"default_provider"`
	Providers       []string `json:"providers"`
	RoutingRules    int      `json:"routing_rules"`
	Principals      int      `json:"principals"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a gateway config file",
	Long: `Load and validate a gateway config file without starting the server.

Examples:
  mercator validate
  mercator validate --config /etc/mercator/gateway.yaml
  mercator validate --output json`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateFlags.outputFormat, "output", "o", "text", "output format (text, json)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	providers, rules, principals, defaultProvider, listenAddress, err := config.Load(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, err.Error())
	}

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}

	result := validateResult{
		Valid:           true,
		ListenAddress:   listenAddress,
		DefaultProvider: defaultProvider,
		Providers:       names,
		RoutingRules:    len(rules),
		Principals:      len(principals),
	}

	formatter := cli.NewFormatter(cli.OutputFormat(validateFlags.outputFormat))
	return formatter.FormatTo(os.Stdout, result)
}
