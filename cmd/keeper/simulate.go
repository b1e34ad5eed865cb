package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"floorVault/internal/config"
	"floorVault/internal/events"
	"floorVault/internal/fixedpoint"
	"floorVault/internal/pool"
	"floorVault/internal/rebalance"
	"floorVault/internal/supply"
	"floorVault/internal/vault"
)

var (
	simVault  = common.HexToAddress("0x000000000000000000000000000000000000f100")
	simAdmin  = common.HexToAddress("0x000000000000000000000000000000000000a100")
	simKeeper = common.HexToAddress("0x000000000000000000000000000000000000b200")
)

// simStep is one line of simulate output.
type simStep struct {
	Step         int    `json:"step"`
	Price        string `json:"price"`
	Tick         int32  `json:"tick"`
	State        string `json:"state"`
	Operation    string `json:"operation,omitempty"`
	Instructions int    `json:"instructions,omitempty"`
	RatioBefore  string `json:"ratio_before,omitempty"`
	RatioAfter   string `json:"ratio_after,omitempty"`
	FloorLower   int32  `json:"floor_lower"`
	IMV          string `json:"imv"`
	Error        string `json:"error,omitempty"`
}

type simSummary struct {
	Steps      int                `json:"steps"`
	Events     int                `json:"events"`
	Volatility string             `json:"volatility,omitempty"`
	Adjustment *supply.Adjustment `json:"adjustment,omitempty"`
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	tick, err := fixedpoint.TickAtPrice(cfg.SpotPrice)
	if err != nil {
		return err
	}
	mp, err := pool.NewMemoryPool(tick)
	if err != nil {
		return err
	}
	mp.SetTotalSupply(cfg.TotalSupply)
	mp.Credit(simVault, cfg.Idle0, cfg.Idle1)

	engine, err := rebalance.NewEngine(cfg.Params, logger.Named("engine"))
	if err != nil {
		return err
	}
	supplyCfg := supply.DefaultConfig()
	supplyCfg.IncludeStaked = cfg.Params.IncludeStaked
	controller, err := supply.NewController(supplyCfg, logger.Named("supply"))
	if err != nil {
		return err
	}

	recorder := events.NewRecorder(0)
	sinks := events.Multi{recorder}
	if cfg.Events != "" {
		sinks = append(sinks, events.NewJSONL(cfg.Events))
	}

	o, err := vault.New(simVault, []common.Address{simAdmin}, vault.Deps{
		Pool:   mp,
		Ledger: mp,
		Engine: engine,
		Supply: controller,
		Sink:   sinks,
		Logger: logger.Named("vault"),
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if _, err := o.Initialize(ctx, simAdmin, cfg.FloorPrice); err != nil {
		return err
	}
	genesis, err := observe(ctx, o, 0)
	if err != nil {
		return err
	}
	genesis.Operation = "genesis"
	if err := enc.Encode(genesis); err != nil {
		return err
	}

	// Each step stands for one day of trading.
	const stepInterval = 24 * time.Hour
	samples := []supply.PriceSample{{At: time.Unix(0, 0), Price: cfg.SpotPrice}}

	for i, price := range cfg.Path {
		if err := mp.SetPrice(price); err != nil {
			return err
		}
		samples = append(samples, supply.PriceSample{At: time.Unix(0, 0).Add(time.Duration(i+1) * stepInterval), Price: price})

		step, err := observe(ctx, o, i+1)
		if err != nil {
			return err
		}
		var res vault.Result
		switch step.State {
		case rebalance.StateNeedsShift.String():
			res, err = o.Shift(ctx, simKeeper)
		case rebalance.StateNeedsSlide.String():
			res, err = o.Slide(ctx, simKeeper)
		}
		if err != nil {
			step.Error = err.Error()
			logger.Warn("operation failed", zap.Int("step", i+1), zap.Error(err))
		} else if res.OperationID != "" {
			after, err := observe(ctx, o, i+1)
			if err != nil {
				return err
			}
			step.Operation = string(res.Plan.Kind)
			step.Instructions = len(res.Plan.Instructions)
			step.RatioAfter = fixedpoint.FormatWad(res.Info.LiquidityRatio)
			step.FloorLower, step.IMV = after.FloorLower, after.IMV
		}
		if err := enc.Encode(step); err != nil {
			return err
		}
	}

	summary := simSummary{Steps: len(cfg.Path), Events: len(recorder.Events())}
	if volatility, err := supply.Volatility(samples, stepInterval); err == nil {
		summary.Volatility = fixedpoint.FormatWad(volatility)
		if adj, err := o.AdjustSupply(ctx, volatility, time.Duration(len(cfg.Path))*stepInterval); err == nil {
			summary.Adjustment = &adj
		} else {
			logger.Warn("supply adjustment failed", zap.Error(err))
		}
	}
	return enc.Encode(summary)
}

// observe reads the vault state at the current price.
func observe(ctx context.Context, o *vault.Orchestrator, step int) (simStep, error) {
	snap, err := o.Snapshot(ctx)
	if err != nil {
		return simStep{}, err
	}
	state, ratio, err := o.Engine().State(snap)
	if err != nil {
		return simStep{}, err
	}
	imv, err := o.IntrinsicMinimumValue(ctx)
	if err != nil {
		return simStep{}, err
	}
	return simStep{
		Step:        step,
		Price:       fixedpoint.FormatWad(snap.SpotPrice()),
		Tick:        snap.Slot0.Tick,
		State:       state.String(),
		RatioBefore: fixedpoint.FormatWad(ratio),
		FloorLower:  snap.Positions.Floor().LowerTick,
		IMV:         fixedpoint.FormatWad(imv),
	}, nil
}
