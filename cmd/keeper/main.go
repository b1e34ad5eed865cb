package main

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "keeper",
		Short:        "Floor vault keeper",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			return loadEnv(envFile)
		},
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before config")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the keeper loop and HTTP API",
		RunE:  runKeeper,
	}
	chainFlags(runCmd.Flags())
	runCmd.Flags().String("private-key", "", "keeper private key (hex); prefer KEEPER_PRIVATE_KEY")
	runCmd.Flags().String("events-out", "./data/events.jsonl", "events JSONL path, empty to disable")
	runCmd.Flags().String("keeper-state", "./data/keeper.json", "keeper state file (ignored with --pg-dsn)")
	runCmd.Flags().Duration("interval", time.Minute, "poll interval")
	runCmd.Flags().Duration("poll-interval", 2*time.Second, "receipt poll interval")
	runCmd.Flags().String("http-addr", ":8080", "HTTP listen address, empty to disable")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Int("samples", 48, "spot price samples kept for volatility")
	runCmd.Flags().Duration("adjust-every", 24*time.Hour, "minimum time between supply recommendations")
	root.AddCommand(runCmd)

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Print vault info and positions as JSON",
		RunE:  runInfo,
	}
	chainFlags(infoCmd.Flags())
	root.AddCommand(infoCmd)

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run genesis and a spot price path against an in-memory pool",
		RunE:  runSimulate,
	}
	simulateCmd.Flags().String("spot", "1", "initial spot price")
	simulateCmd.Flags().String("floor-price", "0.5", "genesis floor price")
	simulateCmd.Flags().String("supply", "1000000", "token0 total supply")
	simulateCmd.Flags().String("idle0", "900000", "vault token0 at genesis")
	simulateCmd.Flags().String("idle1", "80000", "vault token1 at genesis")
	simulateCmd.Flags().String("path", "1.2,1.1,0.95,0.7,0.8", "comma-separated spot prices")
	simulateCmd.Flags().String("events-out", "", "optional events JSONL path")
	simulateCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")
	root.AddCommand(simulateCmd)

	rewardsCmd := &cobra.Command{
		Use:   "rewards",
		Short: "Compute staking rewards, optionally cross-checked on chain",
		RunE:  runRewards,
	}
	rewardsCmd.Flags().String("eth-amount", "", "token1 amount")
	rewardsCmd.Flags().String("imv", "", "intrinsic minimum value")
	rewardsCmd.Flags().String("circulating", "", "circulating supply")
	rewardsCmd.Flags().String("total-supply", "", "total supply")
	rewardsCmd.Flags().String("volatility", "0", "annualized volatility")
	rewardsCmd.Flags().String("kr", "0.1", "supply ratio sensitivity")
	rewardsCmd.Flags().String("kv", "0.5", "volatility sensitivity")
	rewardsCmd.Flags().String("calculator", "", "reward calculator contract for cross-check")
	rewardsCmd.Flags().String("rpc", "", "RPC URL for the cross-check")
	rewardsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(rewardsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// chainFlags are shared by commands that talk to a deployed vault.
func chainFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "RPC URL")
	flags.String("pool", "", "V3 pool address")
	flags.String("vault", "", "vault contract address")
	flags.String("token0", "", "vault token address")
	flags.String("token1", "", "reserve token address")
	flags.StringSlice("authority", nil, "addresses allowed to bump (comma-separated)")
	flags.String("pg-dsn", "", "Postgres DSN for positions, events and keeper state")
	flags.String("state-file", "./data/positions.json", "positions file (ignored with --pg-dsn)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
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
