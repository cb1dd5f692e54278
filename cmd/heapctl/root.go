package main

import (
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/heapkit/internal/config"
	"github.com/joshuapare/heapkit/internal/logger"
)

var (
	// Global flags
	configPath string
	verbose    bool
	quiet      bool
	jsonOut    bool
)

// cfg is the effective configuration, loaded before every command runs.
var cfg = config.Default()

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var rootCmd = &cobra.Command{
	Use:   "heapctl",
	Short: "Stress and inspect the heapkit allocators",
	Long: `heapctl drives the heapkit allocators with concurrent random workloads,
verifies every allocation against a fill pattern, and reports allocator and
page statistics. It can also serve the allocator metrics to Prometheus while
the workload runs.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
}

func execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config over the defaults and initializes logging.
func loadConfig(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	opts := cfg.LogOptions()
	if verbose {
		opts.Level = "debug"
	}
	return logger.Init(opts)
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(w io.Writer, format string, args ...interface{}) {
	if !quiet {
		message.NewPrinter(language.English).Fprintf(w, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(w io.Writer, format string, args ...interface{}) {
	if verbose && !quiet {
		message.NewPrinter(language.English).Fprintf(w, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
