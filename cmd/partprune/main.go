// Package main implements the partprune binary: the planning service and
// the commands that manage its catalog.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/arkilian/partprune/internal/config"
	"github.com/arkilian/partprune/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

type globalFlags struct {
	configFile string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "partprune",
		Short:         "Partition pruning planner for hash and range partitioned relations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level override (trace, debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(flags),
		newExplainCmd(flags),
		newCatalogCmd(flags),
		newRouteCmd(flags),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration and applies command line overrides.
func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "partprune version %s (commit: %s)\n", version, commit)
		},
	}
}

// commandLogger logs to stderr so command output on stdout stays clean.
func commandLogger(cfg *config.Config) zerolog.Logger {
	if cfg.Log.Pretty {
		return logging.New(cfg.Log)
	}
	return logging.NewWithWriter(os.Stderr, cfg.Log)
}
