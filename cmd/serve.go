package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/internal/observability"
	"github.com/xkilldash9x/conductor/internal/server"
	"github.com/xkilldash9x/conductor/internal/service"
)

// newServeCmd creates the `serve` command, which hosts the HTTP trigger endpoint.
func newServeCmd(factory service.ComponentFactory) *cobra.Command {
	var addr string
	var strategies []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API that runs automations on request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.SetServerAddr(addr)
			}
			if cmd.Flags().Changed("strategies") {
				cfg.SetBrowserStrategies(strategies)
			}

			components, err := factory.Create(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			srv := server.New(cfg.Server(), cfg.Automation().MaxDuration, components.Automation, components.History(), logger)
			if err := srv.ListenAndServe(ctx); err != nil {
				return err
			}
			logger.Info("Server stopped", zap.String("address", cfg.Server().Addr))
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringSliceVar(&strategies, "strategies", nil, "browser strategies to try in order (local, remote-token, remote-header)")
	return cmd
}
