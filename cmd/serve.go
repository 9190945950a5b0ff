// -- cmd/serve.go --
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/internal/browser"
	"github.com/xkilldash9x/goalpilot/internal/executor"
	"github.com/xkilldash9x/goalpilot/internal/loop"
	"github.com/xkilldash9x/goalpilot/internal/observability"
	"github.com/xkilldash9x/goalpilot/internal/oracle"
	"github.com/xkilldash9x/goalpilot/internal/planner"
	"github.com/xkilldash9x/goalpilot/internal/server"
	"github.com/xkilldash9x/goalpilot/internal/session"
	"github.com/xkilldash9x/goalpilot/internal/stream"
)

// newServeCmd creates the `serve` command, which runs the HTTP API.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the goalpilot API server",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("server.address", cmd.Flags().Lookup("address")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := appCfg

			oracleClient, err := oracle.NewClient(cfg.Oracle, logger)
			if err != nil {
				return fmt.Errorf("failed to create oracle client: %w", err)
			}

			browserMgr := browser.NewManager(cfg, logger)
			sessions := session.NewManager(cfg, browserMgr, logger)
			plan := planner.New(oracleClient, cfg.Loop, cfg.Oracle.APITimeout, logger)
			exec := executor.New(cfg.Executor, cfg.Loop.PostActionWait, logger)
			ctl := loop.New(cfg.Loop, plan, exec, logger)
			broadcaster := stream.NewBroadcaster(cfg.Stream, logger)

			srv := server.New(cfg, sessions, ctl, broadcaster, logger)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				logger.Info("Shutdown signal received; draining.")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP server shutdown error.", zap.Error(err))
			}
			sessions.CloseAll(shutdownCtx)
			if err := browserMgr.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Browser manager shutdown error.", zap.Error(err))
			}
			observability.Sync()
			return nil
		},
	}

	serveCmd.Flags().String("address", "", "listen address (overrides server.address)")
	return serveCmd
}
