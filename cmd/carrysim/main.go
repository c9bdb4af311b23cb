package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"carry-backtest/internal/app"
	"carry-backtest/internal/config"
	"carry-backtest/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultEnvFile = ".env"

var cfgFile string

func main() {
	if err := config.LoadEnv(defaultEnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:           "carrysim",
		Short:         "Backtest a leveraged delta-neutral carry trade",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to config file")
	rootCmd.AddCommand(runCmd(), sweepCmd(), breakevenCmd(), exportCmd(), runsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads config and builds the app. The returned cleanup closes the app
// and flushes the logger.
func setup() (*app.App, *zap.Logger, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, err
	}
	log := logging.New(cfg.Log)
	log.Info("config loaded", zap.String("path", cfgFile))
	application, err := app.New(cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, nil, err
	}
	cleanup := func() {
		if err := application.Close(); err != nil {
			log.Warn("app close failed", zap.Error(err))
		}
		_ = log.Sync()
	}
	return application, log, cleanup, nil
}

func runCmd() *cobra.Command {
	var opts app.RunOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate the configured run",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()
			view, err := a.LoadMarket()
			if err != nil {
				return err
			}
			_, err = a.RunOnce(cmd.Context(), view, cmd.OutOrStdout(), opts)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.Label, "label", "", "label stored with the run")
	cmd.Flags().BoolVar(&opts.ShowEvents, "events", false, "print the event log")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Simulate every combination in the sweep grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, log, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()
			view, err := a.LoadMarket()
			if err != nil {
				return err
			}
			_, err = a.Sweep(cmd.Context(), view, cmd.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				log.Warn("sweep interrupted")
			}
			return err
		},
	}
}

func breakevenCmd() *cobra.Command {
	opts := app.BreakevenOptions{HoldingDays: 365, RebalancesPerYear: 6}
	cmd := &cobra.Command{
		Use:   "breakeven",
		Short: "Print the rate spread needed to cover costs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()
			return a.Breakeven(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().Float64Var(&opts.HoldingDays, "holding-days", opts.HoldingDays, "days a position is held before closing")
	cmd.Flags().Float64Var(&opts.RebalancesPerYear, "rebalances", opts.RebalancesPerYear, "capital transfers per year")
	cmd.Flags().Float64Var(&opts.LendAPY, "lend-apy", 0, "lending APY in percent")
	cmd.Flags().Float64Var(&opts.BorrowAPY, "borrow-apy", 0, "borrowing APY in percent")
	return cmd
}

func exportCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export-parquet",
		Short: "Write the aligned market data as parquet",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()
			view, err := a.LoadMarket()
			if err != nil {
				return err
			}
			return a.ExportParquet(view, dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default data.dir)")
	return cmd
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()
			return a.ListRuns(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()
			return a.ShowRun(cmd.Context(), args[0], cmd.OutOrStdout())
		},
	})
	return cmd
}
