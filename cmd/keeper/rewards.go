package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"floorVault/internal/chain"
	"floorVault/internal/config"
	"floorVault/internal/fixedpoint"
	"floorVault/internal/supply"
)

type rewardsOutput struct {
	Rewards    string `json:"rewards"`
	RewardsWei string `json:"rewards_wei"`
	Remote     string `json:"remote,omitempty"`
	Match      *bool  `json:"match,omitempty"`
}

func runRewards(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadRewards(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	local, err := supply.CalculateRewards(cfg.Params)
	if err != nil {
		return err
	}
	out := rewardsOutput{Rewards: fixedpoint.FormatWad(local), RewardsWei: local.Dec()}

	if cfg.Calculator != "" {
		if cfg.RPCURL == "" {
			return fmt.Errorf("rpc url is required with --calculator")
		}
		calculator, err := chain.ParseAddress("calculator", cfg.Calculator)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer client.Close()

		remote, err := supply.RemoteRewards(ctx, client, calculator, cfg.Params)
		if err != nil {
			return err
		}
		match := remote.Eq(local)
		out.Remote = fixedpoint.FormatWad(remote)
		out.Match = &match
		if !match {
			logger.Warn("on-chain rewards differ",
				zap.String("local", local.Dec()),
				zap.String("remote", remote.Dec()),
			)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
