package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arkilian/partprune/internal/app"
	"github.com/arkilian/partprune/internal/logging"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC planning service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Log)

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info().
				Str("version", version).
				Str("http", cfg.HTTP.Addr).
				Bool("grpc", cfg.GRPC.Enabled).
				Str("data_dir", cfg.DataDir).
				Msg("starting partprune")
			return a.Run(ctx)
		},
	}
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
