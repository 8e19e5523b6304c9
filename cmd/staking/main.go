package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stakingRewards/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "staking",
		Short:        "Staking rewards ledger",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file path")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("state", "./data/state.json", "state snapshot path (file backend)")
	pf.String("pg-dsn", "", "Postgres DSN; selects the Postgres backend")
	pf.String("journal", "./data/operations.jsonl", "operation journal JSONL path, empty disables")
	pf.String("clock", config.ClockSystem, "time source (system, chain)")
	pf.String("rpc", "", "RPC URL for the chain clock")
	pf.String("at", "", "pin the operation time (unix seconds or RFC3339)")
	pf.Int("max-retries", 5, "retries after the first attempt for Postgres conflicts and chain clock reads")
	pf.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")

	root.AddCommand(
		newInitCmd(),
		newStakeCmd(),
		newWithdrawCmd(),
		newClaimCmd(),
		newShowCmd(),
		newFundCmd(),
		newServeCmd(),
	)
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	return config.Load(cfgFile, cmd.Flags())
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
