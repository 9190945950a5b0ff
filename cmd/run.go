// -- cmd/run.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/api/schemas"
	"github.com/xkilldash9x/goalpilot/internal/browser"
	"github.com/xkilldash9x/goalpilot/internal/executor"
	"github.com/xkilldash9x/goalpilot/internal/loop"
	"github.com/xkilldash9x/goalpilot/internal/observability"
	"github.com/xkilldash9x/goalpilot/internal/oracle"
	"github.com/xkilldash9x/goalpilot/internal/planner"
	"github.com/xkilldash9x/goalpilot/internal/session"
)

// newRunCmd creates the `run` command: a one-shot session that drives the
// plan loop toward a goal and prints the structured run to stdout.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [goal]",
		Short: "Runs the plan/execute loop against a goal in a throwaway session",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("loop.max_steps", cmd.Flags().Lookup("max-steps")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := appCfg

			goal := strings.Join(args, " ")
			startURL := viper.GetString("url")
			force := viper.GetBool("force")

			oracleClient, err := oracle.NewClient(cfg.Oracle, logger)
			if err != nil {
				return fmt.Errorf("failed to create oracle client: %w", err)
			}

			browserMgr := browser.NewManager(cfg, logger)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := browserMgr.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Browser manager shutdown error.", zap.Error(err))
				}
			}()

			sessions := session.NewManager(cfg, browserMgr, logger)
			plan := planner.New(oracleClient, cfg.Loop, cfg.Oracle.APITimeout, logger)
			exec := executor.New(cfg.Executor, cfg.Loop.PostActionWait, logger)
			ctl := loop.New(cfg.Loop, plan, exec, logger)

			sess, err := sessions.Create(ctx, schemas.SessionOptions{})
			if err != nil {
				return fmt.Errorf("failed to create session: %w", err)
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := sessions.Close(closeCtx, sess.ID, false); err != nil {
					logger.Warn("Error closing session.", zap.Error(err))
				}
			}()

			if startURL != "" {
				if err := sess.Handle().Navigate(ctx, startURL); err != nil {
					return fmt.Errorf("failed to open start url: %w", err)
				}
			}

			run, runErr := ctl.Run(ctx, sess, schemas.LoopRequest{Goal: goal, Force: force})
			if run != nil {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(run); err != nil {
					return fmt.Errorf("failed to encode run: %w", err)
				}
			}
			if runErr != nil {
				return fmt.Errorf("run aborted: %w", runErr)
			}
			return nil
		},
	}

	runCmd.Flags().String("url", "", "start URL to open before the first planning step")
	runCmd.Flags().Int("max-steps", 0, "cap on loop iterations (overrides loop.max_steps)")
	runCmd.Flags().Bool("force", false, "execute actions regardless of confidence")
	return runCmd
}
