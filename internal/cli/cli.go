// Package cli is the visa-scheduler command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/app"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/config"
)

const stopTimeout = 10 * time.Second

type CLI struct {
	cfgPath string
	envFile string
}

func New() *CLI { return &CLI{} }

func (cli *CLI) RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "visa-scheduler",
		Short:         "Watch the visa appointment portal and move the booking to an earlier date",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          cli.runE,
	}
	cmd.PersistentFlags().StringVar(&cli.cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	cmd.PersistentFlags().StringVar(&cli.envFile, "env-file", ".env", "dotenv file with secret overrides; missing is fine")

	cmd.AddCommand(cli.runCmd())
	cmd.AddCommand(cli.checkCmd())
	cmd.AddCommand(VersionCmd())
	return cmd
}

func (cli *CLI) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler until interrupted",
		Args:  cobra.NoArgs,
		RunE:  cli.runE,
	}
}

func (cli *CLI) runE(cmd *cobra.Command, _ []string) error {
	env, err := config.LoadEnv(cli.envFile)
	if err != nil {
		return err
	}
	a, err := app.NewApp(cli.cfgPath, env)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
		defer stopCancel()
		_ = a.Stop(stopCtx, app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (cli *CLI) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config and print what would run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := config.LoadEnv(cli.envFile)
			if err != nil {
				return err
			}
			cfg, err := config.NewConfigManager(cli.cfgPath, env).Parse()
			if err != nil {
				return err
			}
			plan, err := app.Resolve(cfg)
			if err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return plan.Write(cmd.OutOrStdout())
		},
	}
}
