package rebalance

import (
	"fmt"

	"github.com/holiman/uint256"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
	"floorVault/internal/pool"
	"floorVault/internal/valuation"
)

// Plan is a fully validated state transition. Nothing is mutated until the
// orchestrator applies Instructions and commits After.
type Plan struct {
	Kind         model.OperationKind
	Noop         bool
	Before       model.Positions
	After        model.Positions
	Instructions []pool.Instruction

	InfoBefore model.VaultInfo
	InfoAfter  model.VaultInfo
	Projected  valuation.Snapshot
}

// FloorMoved reports whether the Floor lower tick changed.
func (p Plan) FloorMoved() bool {
	return p.Before.Floor().LowerTick != p.After.Floor().LowerTick
}

// builder accumulates instructions against a projected snapshot.
type builder struct {
	snap         valuation.Snapshot
	spacing      int32
	instructions []pool.Instruction
}

func newBuilder(snap valuation.Snapshot, spacing int32) *builder {
	return &builder{snap: snap.Clone(), spacing: spacing}
}

func (b *builder) position(tier model.Tier) model.LiquidityPosition {
	return b.snap.Positions.Get(tier)
}

// withdraw burns all liquidity of a tier and collects it into idle balances.
func (b *builder) withdraw(tier model.Tier) (*uint256.Int, *uint256.Int, error) {
	position := b.position(tier)
	if position.IsEmpty() {
		return new(uint256.Int), new(uint256.Int), nil
	}
	amount0, amount1, err := b.snap.Amounts(position)
	if err != nil {
		return nil, nil, err
	}
	b.instructions = append(b.instructions,
		pool.Instruction{Op: pool.OpBurn, Tier: tier, LowerTick: position.LowerTick, UpperTick: position.UpperTick, Liquidity: new(uint256.Int).Set(position.Liquidity)},
		pool.Instruction{Op: pool.OpCollect, Tier: tier, LowerTick: position.LowerTick, UpperTick: position.UpperTick},
	)
	b.snap.Idle0 = fixedpoint.Sum(b.snap.Idle0, amount0)
	b.snap.Idle1 = fixedpoint.Sum(b.snap.Idle1, amount1)
	b.snap.Positions[tier].Liquidity = new(uint256.Int)
	return amount0, amount1, nil
}

// liquidityFor returns the liquidity the budgets buy in [lower, upper] at spot.
func (b *builder) liquidityFor(lower, upper int32, budget0, budget1 *uint256.Int) (*uint256.Int, error) {
	sqrtA, err := fixedpoint.SqrtRatioAtTick(lower)
	if err != nil {
		return nil, err
	}
	sqrtB, err := fixedpoint.SqrtRatioAtTick(upper)
	if err != nil {
		return nil, err
	}
	return fixedpoint.LiquidityForAmounts(b.snap.Slot0.SqrtPriceX96, sqrtA, sqrtB,
		fixedpoint.Min(budget0, fixedpoint.OrZero(b.snap.Idle0)),
		fixedpoint.Min(budget1, fixedpoint.OrZero(b.snap.Idle1)))
}

// mint adds liquidity to a tier's range and debits idle balances.
func (b *builder) mint(tier model.Tier, lower, upper int32, liquidity *uint256.Int) error {
	existing := b.position(tier)
	total := new(uint256.Int).Set(liquidity)
	if existing.LowerTick == lower && existing.UpperTick == upper && !existing.IsEmpty() {
		total.Add(total, existing.Liquidity)
	}
	next, err := model.NewPosition(lower, upper, total, b.spacing)
	if err != nil {
		return err
	}
	if liquidity.IsZero() {
		b.snap.Positions[tier] = next
		return nil
	}

	minted := model.LiquidityPosition{LowerTick: lower, UpperTick: upper, Liquidity: liquidity}
	amount0, amount1, err := b.snap.Amounts(minted)
	if err != nil {
		return err
	}
	if fixedpoint.OrZero(b.snap.Idle0).Lt(amount0) || fixedpoint.OrZero(b.snap.Idle1).Lt(amount1) {
		return fmt.Errorf("%w: %s mint needs %s/%s", model.ErrInsufficientReserves, tier, amount0.Dec(), amount1.Dec())
	}
	b.snap.Idle0 = new(uint256.Int).Sub(b.snap.Idle0, amount0)
	b.snap.Idle1 = new(uint256.Int).Sub(b.snap.Idle1, amount1)
	b.snap.Positions[tier] = next
	b.instructions = append(b.instructions, pool.Instruction{
		Op: pool.OpMint, Tier: tier, LowerTick: lower, UpperTick: upper, Liquidity: new(uint256.Int).Set(liquidity),
	})
	return nil
}

// deposit places a tier at [lower, upper] funded from the budgets.
func (b *builder) deposit(tier model.Tier, lower, upper int32, budget0, budget1 *uint256.Int) error {
	liquidity, err := b.liquidityFor(lower, upper, budget0, budget1)
	if err != nil {
		return fmt.Errorf("%s liquidity: %w", tier, err)
	}
	return b.mint(tier, lower, upper, liquidity)
}
