package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"liquidityOracle/internal/config"
	"liquidityOracle/internal/model"
)

func main() {
	root := &cobra.Command{
		Use:          "oracle",
		Short:        "Cross-chain token price and TVL oracle",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch one price snapshot and print it as JSON",
		RunE:  runSnapshot,
	}
	addCommonFlags(snapshotCmd.Flags())
	root.AddCommand(snapshotCmd)

	tvlCmd := &cobra.Command{
		Use:   "tvl",
		Short: "Print the USD liquidity of one chain",
		RunE:  runTVL,
	}
	addCommonFlags(tvlCmd.Flags())
	tvlCmd.Flags().String("chain", "", "chain to report (ethereum, optimism, base, osmosis)")
	_ = tvlCmd.MarkFlagRequired("chain")
	root.AddCommand(tvlCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh snapshots on an interval and stream them as JSON lines",
		RunE:  runWatch,
	}
	addCommonFlags(watchCmd.Flags())
	watchCmd.Flags().Duration("interval", time.Minute, "poll interval")
	watchCmd.Flags().String("metrics-addr", "", "listen address for /metrics and /healthz (empty disables)")
	root.AddCommand(watchCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(flags *pflag.FlagSet) {
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Duration("cache-ttl", 5*time.Minute, "snapshot cache lifetime")
	flags.Duration("fetch-timeout", 20*time.Second, "per-chain fetch timeout")
	flags.String("snapshot-file", "", "write every snapshot to this JSON file")
	flags.String("pg-dsn", "", "Postgres DSN for the latest price table")
	flags.String("redis-addr", "", "Redis address for the shared snapshot key")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database")
	flags.String("redis-key", "liquidity-oracle:snapshot:latest", "Redis snapshot key")
	flags.Bool("cosmos-liveness", true, "check node_info before using an LCD endpoint")
	flags.Float64("cosmos-rate-limit", 5, "LCD requests per second per endpoint")
	flags.Int("cosmos-rate-burst", 5, "LCD request burst per endpoint")
}

// setup loads .env, config and the logger shared by every subcommand.
func setup(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	_ = godotenv.Load()

	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	snapshot, err := app.oracle.Snapshot(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(snapshot)
}

func runTVL(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	raw, _ := cmd.Flags().GetString("chain")
	chainID, err := model.ParseChainID(raw)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	tvl, err := app.oracle.TVL(ctx, chainID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %.2f\n", chainID, tvl)
	return err
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
