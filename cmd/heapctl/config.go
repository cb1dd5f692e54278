package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newConfigCmd())
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `The config command prints the configuration heapctl would run with:
the built-in defaults overlaid with --config, as TOML (or JSON with --json).

Example:
  heapctl config
  heapctl config --config heapkit.toml > effective.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), cfg)
			}
			return cfg.Encode(cmd.OutOrStdout())
		},
	}
}
