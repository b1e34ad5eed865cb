package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
	"floorVault/internal/rebalance"
	"floorVault/internal/supply"
	"floorVault/internal/valuation"
	"floorVault/internal/vault"
)

// Vault is the part of vault.Orchestrator the keeper drives.
type Vault interface {
	Snapshot(ctx context.Context) (valuation.Snapshot, error)
	Engine() *rebalance.Engine
	Shift(ctx context.Context, caller common.Address) (vault.Result, error)
	Slide(ctx context.Context, caller common.Address) (vault.Result, error)
	AdjustSupply(ctx context.Context, volatility *uint256.Int, elapsed time.Duration) (supply.Adjustment, error)
}

// Config holds runtime settings for the keeper loop.
type Config struct {
	Caller       common.Address
	Interval     time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	// Samples is the size of the spot price window used for volatility.
	Samples int
	// AdjustEvery is the minimum time between supply recommendations.
	AdjustEvery time.Duration
}

// Keeper polls the vault, triggers shift or slide when the liquidity ratio
// leaves the stable band, and recommends supply adjustments.
type Keeper struct {
	cfg     Config
	vault   Vault
	store   StateStore
	sampler *Sampler
	logger  *zap.Logger
	now     func() time.Time
	state   model.KeeperState
}

// New builds a Keeper. A nil store keeps state in memory.
func New(cfg Config, v Vault, store StateStore, logger *zap.Logger) (*Keeper, error) {
	if v == nil {
		return nil, fmt.Errorf("vault is nil")
	}
	if cfg.Caller == (common.Address{}) {
		return nil, fmt.Errorf("%w: keeper caller", model.ErrZeroAddress)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be greater than zero")
	}
	if cfg.Samples == 0 {
		cfg.Samples = 48
	}
	if store == nil {
		store = &MemoryStateStore{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Keeper{
		cfg:     cfg,
		vault:   v,
		store:   store,
		sampler: NewSampler(cfg.Samples),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// State returns what the keeper currently remembers.
func (k *Keeper) State() model.KeeperState { return k.state }

// Run executes the keeper loop until ctx is done. A failed step is logged
// and the loop continues on the next tick.
func (k *Keeper) Run(ctx context.Context) error {
	state, ok, err := k.store.LoadKeeperState(ctx)
	if err != nil {
		return fmt.Errorf("load keeper state: %w", err)
	}
	if ok {
		k.state = state
		k.logger.Info("resume keeper",
			zap.Time("last_adjustment_at", state.LastAdjustmentAt),
			zap.String("last_operation", string(state.LastOperation)),
		)
	}

	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := k.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Error("keeper step failed", zap.Error(err), zap.Bool("permanent", Permanent(err)))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Step runs one poll: sample the price, rebalance if needed, then consider a
// supply adjustment.
func (k *Keeper) Step(ctx context.Context) error {
	now := k.now().UTC()

	var snap valuation.Snapshot
	err := withRetry(ctx, k.cfg.MaxRetries, k.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		snap, err = k.vault.Snapshot(ctx)
		if err != nil && !Permanent(err) {
			k.logger.Warn("snapshot failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	k.sampler.Add(now, snap.SpotPrice())
	k.state.LastTick = snap.Slot0.Tick

	state, ratio, err := k.vault.Engine().State(snap)
	if err != nil {
		return fmt.Errorf("classify ratio: %w", err)
	}
	k.logger.Debug("vault polled",
		zap.Int32("tick", snap.Slot0.Tick),
		zap.String("state", state.String()),
		zap.String("ratio", fixedpoint.FormatWad(ratio)),
	)

	if op := k.operation(state); op != nil {
		var res vault.Result
		err := withRetry(ctx, k.cfg.MaxRetries, k.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			res, err = op(ctx, k.cfg.Caller)
			if err != nil && !Permanent(err) {
				k.logger.Warn("rebalance attempt failed", zap.String("state", state.String()), zap.Error(err))
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("%s: %w", state, err)
		}
		if !res.Plan.Noop {
			k.state.LastOperation = res.Plan.Kind
		}
	}

	if err := k.adjust(ctx, now); err != nil {
		return err
	}
	if err := k.store.SaveKeeperState(ctx, k.state); err != nil {
		return fmt.Errorf("save keeper state: %w", err)
	}
	return nil
}

func (k *Keeper) operation(state rebalance.State) func(context.Context, common.Address) (vault.Result, error) {
	switch state {
	case rebalance.StateNeedsShift:
		return k.vault.Shift
	case rebalance.StateNeedsSlide:
		return k.vault.Slide
	default:
		return nil
	}
}

func (k *Keeper) adjust(ctx context.Context, now time.Time) error {
	if k.state.LastAdjustmentAt.IsZero() {
		k.state.LastAdjustmentAt = now
		return nil
	}
	elapsed := now.Sub(k.state.LastAdjustmentAt)
	if elapsed < k.cfg.AdjustEvery {
		return nil
	}

	volatility, err := k.sampler.Volatility(k.cfg.Interval)
	if errors.Is(err, supply.ErrInsufficientData) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("volatility: %w", err)
	}

	adj, err := k.vault.AdjustSupply(ctx, volatility, elapsed)
	if errors.Is(err, vault.ErrNoSupplyControl) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("adjust supply: %w", err)
	}

	k.state.LastAdjustmentAt = now
	k.state.LastVolatility = fixedpoint.FormatWad(volatility)
	k.logger.Info("supply adjustment",
		zap.String("condition", adj.Condition.String()),
		zap.String("volatility", k.state.LastVolatility),
		zap.String("delta_supply", fixedpoint.FormatWad(adj.DeltaSupply)),
		zap.String("mint", fixedpoint.FormatWad(adj.Mint)),
		zap.String("burn", fixedpoint.FormatWad(adj.Burn)),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}
