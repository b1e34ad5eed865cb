package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"floorVault/internal/config"
	"floorVault/internal/model"
)

type infoOutput struct {
	Vault      string          `json:"vault"`
	Tick       int32           `json:"tick"`
	Info       model.VaultInfo `json:"info"`
	Positions  model.Positions `json:"positions"`
	Collateral any             `json:"collateral"`
	Fees       map[string]any  `json:"fees"`
	Staking    string          `json:"staking,omitempty"`
}

func runInfo(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	// info never signs.
	cfg.PrivateKey = ""

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := st.vault.Snapshot(ctx)
	if err != nil {
		return err
	}
	info, err := st.vault.VaultInfo(ctx)
	if err != nil {
		return err
	}
	fees0, fees1, err := st.vault.AccumulatedFees(ctx)
	if err != nil {
		return err
	}
	out := infoOutput{
		Vault:      st.vault.Address().Hex(),
		Tick:       snap.Slot0.Tick,
		Info:       info,
		Positions:  snap.Positions,
		Collateral: snap.Collateral,
		Fees:       map[string]any{"token0": fees0, "token1": fees1},
	}
	if addr, ok, err := st.vault.StakingContract(ctx); err == nil && ok {
		out.Staking = addr.Hex()
	} else if err != nil {
		logger.Warn("staking contract lookup failed", zap.Error(err))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
