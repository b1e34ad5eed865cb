package rebalance

import (
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
	"floorVault/internal/valuation"
)

func checkReserves(snap valuation.Snapshot, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return model.ErrZeroAmount
	}
	if fixedpoint.OrZero(snap.Idle1).Lt(amount) {
		return fmt.Errorf("%w: requested %s idle %s", model.ErrInsufficientReserves,
			fixedpoint.FormatWad(amount), fixedpoint.FormatWad(fixedpoint.OrZero(snap.Idle1)))
	}
	return nil
}

// BumpFloor moves amount of idle token1 into the Floor and raises its lower
// tick when the enlarged reserves support a strictly higher price. A raised
// Floor pushes the Anchor lower bound up with it; Discovery is untouched.
func (e *Engine) BumpFloor(snap valuation.Snapshot, amount *uint256.Int) (Plan, error) {
	if err := checkReserves(snap, amount); err != nil {
		return Plan{}, err
	}
	circulating, err := e.model.CirculatingSupply(snap, e.params.IncludeStaked)
	if err != nil {
		return Plan{}, err
	}

	floor := snap.Positions.Floor()
	anchor := snap.Positions.Anchor()
	spacing := e.params.TickSpacing

	b := newBuilder(snap, spacing)
	floor0, floor1, err := b.withdraw(model.TierFloor)
	if err != nil {
		return Plan{}, err
	}
	reserves := fixedpoint.Sum(floor1, amount)

	target := floor.LowerTick
	candidate, ok, err := e.candidateFloorTick(reserves, circulating)
	if err != nil {
		return Plan{}, fmt.Errorf("candidate floor: %w", err)
	}
	if ok {
		// Anchor must keep at least one spacing above the new Floor.
		if limit := e.floorCap(snap.Slot0.Tick, anchor.UpperTick-spacing); candidate > limit {
			candidate = limit
		}
		if candidate > target {
			target = candidate
		}
	}

	e.logger.Info("bump floor",
		zap.Int32("current_lower", floor.LowerTick),
		zap.Int32("target_lower", target),
		zap.String("amount", fixedpoint.FormatWad(amount)),
	)

	if target == floor.LowerTick {
		if err := b.deposit(model.TierFloor, target, floor.UpperTick, floor0, reserves); err != nil {
			return Plan{}, err
		}
		return e.finish(model.OpBumpFloor, snap, b, true)
	}

	anchor0, anchor1, err := b.withdraw(model.TierAnchor)
	if err != nil {
		return Plan{}, err
	}
	if err := b.deposit(model.TierFloor, target, target+spacing, floor0, reserves); err != nil {
		return Plan{}, err
	}
	if err := b.deposit(model.TierAnchor, target+spacing, anchor.UpperTick, anchor0, anchor1); err != nil {
		return Plan{}, err
	}
	return e.finish(model.OpBumpFloor, snap, b, true)
}

// BumpRewards adds amount of idle token1 to the Floor range without moving any tick.
func (e *Engine) BumpRewards(snap valuation.Snapshot, amount *uint256.Int) (Plan, error) {
	if err := checkReserves(snap, amount); err != nil {
		return Plan{}, err
	}
	floor := snap.Positions.Floor()
	b := newBuilder(snap, e.params.TickSpacing)

	liquidity, err := b.liquidityFor(floor.LowerTick, floor.UpperTick, new(uint256.Int), amount)
	if err != nil {
		return Plan{}, fmt.Errorf("floor liquidity: %w", err)
	}
	if liquidity.IsZero() {
		return Plan{}, fmt.Errorf("%w: reward %s buys no floor liquidity at spot", model.ErrNoLiquidity, fixedpoint.FormatWad(amount))
	}
	if err := b.mint(model.TierFloor, floor.LowerTick, floor.UpperTick, liquidity); err != nil {
		return Plan{}, err
	}
	return e.finish(model.OpBumpRewards, snap, b, true)
}
