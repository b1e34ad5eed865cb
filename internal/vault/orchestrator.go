package vault

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"floorVault/internal/events"
	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
	"floorVault/internal/pool"
	"floorVault/internal/rebalance"
	"floorVault/internal/registry"
	"floorVault/internal/supply"
	"floorVault/internal/valuation"
)

var (
	ErrUnauthorized    = errors.New("vault: caller not authorized")
	ErrReentrant       = errors.New("vault: operation in progress")
	ErrNotInitialized  = registry.ErrNotInitialized
	ErrNoSupplyControl = errors.New("vault: supply controller not configured")
	ErrHalted          = errors.New("vault: halted on unconfirmed batch")
)

// Deps are the components an Orchestrator composes. Pool, Ledger and Engine
// are required; the rest fall back to empty implementations.
type Deps struct {
	Pool     pool.Pool
	Ledger   Ledger
	Loans    LoanBook
	Fees     FeeSource
	Staking  StakingSource
	Engine   *rebalance.Engine
	Supply   *supply.Controller
	Registry *registry.Registry
	Store    registry.StateStore
	Sink     events.Sink
	Logger   *zap.Logger
	Now      func() time.Time
}

// Orchestrator is the single entry point for vault reads and mutations.
// Mutations are serialized by an in-flight flag; reads never wait on it.
type Orchestrator struct {
	address     common.Address
	authorities map[common.Address]struct{}

	pool     pool.Pool
	ledger   Ledger
	loans    LoanBook
	fees     FeeSource
	staking  StakingSource
	engine   *rebalance.Engine
	supply   *supply.Controller
	registry *registry.Registry
	store    registry.StateStore
	sink     events.Sink
	logger   *zap.Logger
	now      func() time.Time

	inFlight atomic.Bool
	halted   atomic.Pointer[error]
}

// Result describes one mutating call.
type Result struct {
	OperationID string
	Plan        rebalance.Plan
	Info        model.VaultInfo
}

// New builds an Orchestrator for the vault at address.
func New(address common.Address, authorities []common.Address, deps Deps) (*Orchestrator, error) {
	if address == (common.Address{}) {
		return nil, fmt.Errorf("%w: vault address", model.ErrZeroAddress)
	}
	if deps.Pool == nil || deps.Ledger == nil || deps.Engine == nil {
		return nil, fmt.Errorf("%w: pool, ledger and engine are required", model.ErrInvalidParameters)
	}
	auth := make(map[common.Address]struct{}, len(authorities))
	for _, a := range authorities {
		if a == (common.Address{}) {
			return nil, fmt.Errorf("%w: authority", model.ErrZeroAddress)
		}
		auth[a] = struct{}{}
	}

	static := Static{}
	o := &Orchestrator{
		address:     address,
		authorities: auth,
		pool:        deps.Pool,
		ledger:      deps.Ledger,
		loans:       deps.Loans,
		fees:        deps.Fees,
		staking:     deps.Staking,
		engine:      deps.Engine,
		supply:      deps.Supply,
		registry:    deps.Registry,
		store:       deps.Store,
		sink:        deps.Sink,
		logger:      deps.Logger,
		now:         deps.Now,
	}
	if o.loans == nil {
		o.loans = static
	}
	if o.fees == nil {
		o.fees = static
	}
	if o.staking == nil {
		o.staking = static
	}
	if o.registry == nil {
		o.registry = registry.New()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Address returns the vault address.
func (o *Orchestrator) Address() common.Address { return o.address }

// Engine returns the rebalance engine.
func (o *Orchestrator) Engine() *rebalance.Engine { return o.engine }

// Load restores persisted positions. It reports false when nothing was stored.
func (o *Orchestrator) Load(ctx context.Context) (bool, error) {
	if o.store == nil {
		return false, nil
	}
	state, ok, err := o.store.Load(ctx)
	if err != nil || !ok {
		return false, err
	}
	if err := o.registry.Restore(state); err != nil {
		return false, fmt.Errorf("restore positions: %w", err)
	}
	o.logger.Info("positions restored", zap.Uint64("version", state.Version))
	return true, nil
}

// Positions returns Floor, Anchor and Discovery in that order.
func (o *Orchestrator) Positions(_ context.Context) (model.Positions, error) {
	return o.registry.Positions()
}

// VaultInfo derives metrics from a fresh snapshot.
func (o *Orchestrator) VaultInfo(ctx context.Context) (model.VaultInfo, error) {
	snap, err := o.Snapshot(ctx)
	if err != nil {
		return model.VaultInfo{}, err
	}
	return o.engine.Model().VaultInfo(snap)
}

// IntrinsicMinimumValue returns the price at the Floor lower tick.
func (o *Orchestrator) IntrinsicMinimumValue(_ context.Context) (*uint256.Int, error) {
	positions, err := o.registry.Positions()
	if err != nil {
		return nil, err
	}
	return fixedpoint.PriceAtTick(positions.Floor().LowerTick)
}

// AccumulatedFees returns unclaimed fees in token0 and token1.
func (o *Orchestrator) AccumulatedFees(ctx context.Context) (*uint256.Int, *uint256.Int, error) {
	return o.fees.AccumulatedFees(ctx)
}

// CollateralAmount returns token0 locked as loan collateral.
func (o *Orchestrator) CollateralAmount(ctx context.Context) (*uint256.Int, error) {
	return o.loans.CollateralAmount(ctx)
}

// StakingContract returns the staking contract, if any.
func (o *Orchestrator) StakingContract(ctx context.Context) (common.Address, bool, error) {
	return o.staking.StakingContract(ctx)
}

// AdjustSupply recommends mint and burn amounts for the current supply gap.
func (o *Orchestrator) AdjustSupply(ctx context.Context, volatility *uint256.Int, elapsed time.Duration) (supply.Adjustment, error) {
	if o.supply == nil {
		return supply.Adjustment{}, ErrNoSupplyControl
	}
	snap, err := o.Snapshot(ctx)
	if err != nil {
		return supply.Adjustment{}, err
	}
	return o.supply.AdjustSupply(snap, volatility, elapsed)
}

// Snapshot reads pool and collaborator state once.
func (o *Orchestrator) Snapshot(ctx context.Context) (valuation.Snapshot, error) {
	positions, err := o.registry.Positions()
	if err != nil {
		return valuation.Snapshot{}, err
	}
	return o.snapshot(ctx, positions)
}

func (o *Orchestrator) snapshot(ctx context.Context, positions model.Positions) (valuation.Snapshot, error) {
	slot0, err := o.pool.Slot0(ctx)
	if err != nil {
		return valuation.Snapshot{}, fmt.Errorf("slot0: %w", err)
	}
	snap := valuation.Snapshot{Slot0: slot0, Positions: positions}

	for _, tier := range model.Tiers {
		p := positions.Get(tier)
		if p.LowerTick == p.UpperTick {
			continue
		}
		onPool, err := o.pool.PositionLiquidity(ctx, o.address, p.LowerTick, p.UpperTick)
		if err != nil {
			return valuation.Snapshot{}, fmt.Errorf("%s liquidity: %w", tier, err)
		}
		if !onPool.Eq(fixedpoint.OrZero(p.Liquidity)) {
			o.logger.Warn("position liquidity drift",
				zap.String("tier", tier.String()),
				zap.String("registry", fixedpoint.OrZero(p.Liquidity).Dec()),
				zap.String("pool", onPool.Dec()),
			)
			snap.Positions[tier].Liquidity = onPool
		}
	}

	if snap.TotalSupply, err = o.ledger.TotalSupply(ctx); err != nil {
		return valuation.Snapshot{}, fmt.Errorf("total supply: %w", err)
	}
	if snap.Idle0, err = o.ledger.Balance0(ctx, o.address); err != nil {
		return valuation.Snapshot{}, fmt.Errorf("token0 balance: %w", err)
	}
	if snap.Idle1, err = o.ledger.Balance1(ctx, o.address); err != nil {
		return valuation.Snapshot{}, fmt.Errorf("token1 balance: %w", err)
	}
	if snap.Collateral, err = o.loans.CollateralAmount(ctx); err != nil {
		return valuation.Snapshot{}, fmt.Errorf("collateral: %w", err)
	}
	if snap.Fees0, snap.Fees1, err = o.fees.AccumulatedFees(ctx); err != nil {
		return valuation.Snapshot{}, fmt.Errorf("fees: %w", err)
	}
	if snap.Staked, err = o.staking.StakedBalance(ctx); err != nil {
		return valuation.Snapshot{}, fmt.Errorf("staked balance: %w", err)
	}
	return snap, nil
}

// Shift rebalances when the liquidity ratio is below the shift threshold.
// Anyone may call it; it is a no-op in the stable band.
func (o *Orchestrator) Shift(ctx context.Context, caller common.Address) (Result, error) {
	return o.mutate(ctx, caller, model.OpShift, false, o.engine.Shift)
}

// Slide rebalances when the liquidity ratio is above the slide threshold.
func (o *Orchestrator) Slide(ctx context.Context, caller common.Address) (Result, error) {
	return o.mutate(ctx, caller, model.OpSlide, false, o.engine.Slide)
}

// BumpFloor moves amount of idle token1 into the Floor.
func (o *Orchestrator) BumpFloor(ctx context.Context, caller common.Address, amount *uint256.Int) (Result, error) {
	return o.mutate(ctx, caller, model.OpBumpFloor, true, func(snap valuation.Snapshot) (rebalance.Plan, error) {
		return o.engine.BumpFloor(snap, amount)
	})
}

// BumpRewards adds amount of idle token1 to the Floor range.
func (o *Orchestrator) BumpRewards(ctx context.Context, caller common.Address, amount *uint256.Int) (Result, error) {
	return o.mutate(ctx, caller, model.OpBumpRewards, true, func(snap valuation.Snapshot) (rebalance.Plan, error) {
		return o.engine.BumpRewards(snap, amount)
	})
}

// Initialize deploys the three tiers from the vault's idle balances with the
// Floor at floorPrice.
func (o *Orchestrator) Initialize(ctx context.Context, caller common.Address, floorPrice *uint256.Int) (Result, error) {
	return o.mutate(ctx, caller, model.OpGenesis, true, func(snap valuation.Snapshot) (rebalance.Plan, error) {
		return o.engine.Genesis(snap, floorPrice)
	})
}

func (o *Orchestrator) authorize(caller common.Address, privileged bool) error {
	if caller == (common.Address{}) {
		return fmt.Errorf("%w: caller", model.ErrZeroAddress)
	}
	if !privileged {
		return nil
	}
	if _, ok := o.authorities[caller]; !ok {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// Halted returns the unconfirmed batch error that stopped mutations, or nil.
func (o *Orchestrator) Halted() error {
	if cause := o.halted.Load(); cause != nil {
		return *cause
	}
	return nil
}

func (o *Orchestrator) mutate(
	ctx context.Context,
	caller common.Address,
	kind model.OperationKind,
	privileged bool,
	planFn func(valuation.Snapshot) (rebalance.Plan, error),
) (Result, error) {
	if err := o.authorize(caller, privileged); err != nil {
		return Result{}, err
	}
	if !o.inFlight.CompareAndSwap(false, true) {
		return Result{}, ErrReentrant
	}
	defer o.inFlight.Store(false)
	if cause := o.halted.Load(); cause != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrHalted, *cause)
	}

	genesis := kind == model.OpGenesis
	var (
		snap valuation.Snapshot
		err  error
	)
	if genesis {
		if o.registry.Initialized() {
			return Result{}, fmt.Errorf("%w: vault already initialized", model.ErrInvalidParameters)
		}
		snap, err = o.snapshot(ctx, model.Positions{})
	} else {
		snap, err = o.Snapshot(ctx)
	}
	if err != nil {
		return Result{}, fmt.Errorf("%s snapshot: %w", kind, err)
	}

	plan, err := planFn(snap)
	if err != nil {
		o.logger.Warn("operation rejected", zap.String("kind", string(kind)), zap.Error(err))
		return Result{}, fmt.Errorf("%s: %w", kind, err)
	}
	if plan.Noop {
		o.logger.Debug("operation is a no-op", zap.String("kind", string(kind)),
			zap.String("ratio", fixedpoint.FormatWad(plan.InfoBefore.LiquidityRatio)))
		return Result{Plan: plan, Info: plan.InfoBefore}, nil
	}

	prev, stateErr := o.registry.State()
	if err := o.pool.Apply(ctx, o.address, plan.Instructions); err != nil {
		if errors.Is(err, pool.ErrBatchPending) {
			// The batch may still land; positions are neither committed nor
			// rolled back until an operator reconciles them.
			o.halted.Store(&err)
			o.logger.Error("batch unconfirmed, halting mutations",
				zap.String("kind", string(kind)), zap.Error(err))
		}
		return Result{}, fmt.Errorf("%s apply: %w", kind, err)
	}
	if _, err := o.registry.Commit(plan.After); err != nil {
		o.rollback(ctx, prev, stateErr == nil)
		return Result{}, fmt.Errorf("%s commit: %w", kind, err)
	}

	post, err := o.Snapshot(ctx)
	if err == nil {
		var info model.VaultInfo
		if info, err = o.engine.Model().EnforceSolvencyInvariant(post); err == nil {
			return o.finalize(ctx, caller, kind, plan, info, post.Slot0.Tick), nil
		}
	}
	o.rollback(ctx, prev, stateErr == nil)
	return Result{}, fmt.Errorf("%s post-check: %w", kind, err)
}

// rollback undoes an applied batch where the pool supports it and restores
// the registry to prev.
func (o *Orchestrator) rollback(ctx context.Context, prev registry.State, hadState bool) {
	if r, ok := o.pool.(pool.Reverter); ok {
		if err := r.RevertLast(ctx); err != nil {
			o.logger.Error("pool revert failed", zap.Error(err))
		}
	} else {
		o.logger.Error("pool cannot revert; on-chain positions may differ from registry")
	}
	if !hadState {
		o.registry.Reset()
		return
	}
	if err := o.registry.Restore(prev); err != nil {
		o.logger.Error("registry restore failed", zap.Error(err))
	}
}

func (o *Orchestrator) finalize(
	ctx context.Context,
	caller common.Address,
	kind model.OperationKind,
	plan rebalance.Plan,
	info model.VaultInfo,
	tick int32,
) Result {
	opID := uuid.NewString()
	now := o.now().UTC()

	if o.store != nil {
		if state, err := o.registry.State(); err == nil {
			if err := o.store.Save(ctx, state); err != nil {
				o.logger.Error("persist positions failed", zap.String("operation_id", opID), zap.Error(err))
			}
		}
	}

	floorBefore, _ := fixedpoint.PriceAtTick(plan.Before.Floor().LowerTick)
	floorAfter, _ := fixedpoint.PriceAtTick(plan.After.Floor().LowerTick)
	envelope := func(name string) model.VaultEvent {
		return model.VaultEvent{
			OperationID: opID,
			Vault:       o.address.Hex(),
			Name:        name,
			Caller:      caller.Hex(),
			EmittedAt:   now,
		}
	}

	var evs []model.VaultEvent
	if kind != model.OpGenesis && plan.FloorMoved() {
		ev := envelope(model.EventFloorUpdated)
		ev.FloorUpdated = &model.FloorUpdated{
			OldIMV:  floorBefore,
			NewIMV:  floorAfter,
			OldTick: plan.Before.Floor().LowerTick,
			NewTick: plan.After.Floor().LowerTick,
		}
		evs = append(evs, ev)
	}
	ev := envelope(model.EventRebalanceExecuted)
	ev.RebalanceExecuted = &model.RebalanceExecuted{
		Kind:        kind,
		RatioBefore: plan.InfoBefore.LiquidityRatio,
		RatioAfter:  info.LiquidityRatio,
		FloorBefore: floorBefore,
		FloorAfter:  floorAfter,
	}
	evs = append(evs, ev)

	for i := range evs {
		log, err := events.EncodeLog(o.address, evs[i])
		if err != nil {
			o.logger.Warn("encode event log failed", zap.String("event", evs[i].Name), zap.Error(err))
			continue
		}
		evs[i].Log = events.ToEventLog(log)
	}

	if o.sink != nil {
		if err := o.sink.PutEvents(ctx, evs); err != nil {
			o.logger.Error("emit events failed", zap.String("operation_id", opID), zap.Error(err))
		}
		snapshot := model.VaultSnapshot{
			OperationID: opID,
			Vault:       o.address.Hex(),
			Kind:        kind,
			Tick:        tick,
			Info:        info,
			Positions:   plan.After.Clone(),
			TakenAt:     now,
		}
		if err := o.sink.PutSnapshot(ctx, snapshot); err != nil {
			o.logger.Error("record snapshot failed", zap.String("operation_id", opID), zap.Error(err))
		}
	}

	o.logger.Info("operation committed",
		zap.String("operation_id", opID),
		zap.String("kind", string(kind)),
		zap.String("caller", caller.Hex()),
		zap.Int("instructions", len(plan.Instructions)),
		zap.Int32("floor_lower", plan.After.Floor().LowerTick),
		zap.String("ratio_before", fixedpoint.FormatWad(plan.InfoBefore.LiquidityRatio)),
		zap.String("ratio_after", fixedpoint.FormatWad(info.LiquidityRatio)),
	)
	return Result{OperationID: opID, Plan: plan, Info: info}
}
