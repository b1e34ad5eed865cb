package rebalance

import (
	"fmt"

	"go.uber.org/zap"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
	"floorVault/internal/valuation"
)

// Shift redeploys Anchor and Discovery around a higher spot price and raises
// the Floor with the token1 they captured above the Anchor reserve target.
// Discovery's token1 is swept into Anchor before the excess is measured. The
// Floor only moves when the candidate tick is strictly above the current one.
// Outside NeedsShift it returns a no-op plan.
func (e *Engine) Shift(snap valuation.Snapshot) (Plan, error) {
	state, ratio, err := e.State(snap)
	if err != nil {
		return Plan{}, err
	}
	if state != StateNeedsShift {
		return e.noop(model.OpShift, snap)
	}

	circulating, err := e.model.CirculatingSupply(snap, e.params.IncludeStaked)
	if err != nil {
		return Plan{}, err
	}

	floor := snap.Positions.Floor()
	_, floor1, err := snap.Amounts(floor)
	if err != nil {
		return Plan{}, err
	}
	anchorLowerPrice, err := fixedpoint.PriceAtTick(snap.Positions.Anchor().LowerTick)
	if err != nil {
		return Plan{}, err
	}

	b := newBuilder(snap, e.params.TickSpacing)
	_, anchor1, err := b.withdraw(model.TierAnchor)
	if err != nil {
		return Plan{}, err
	}
	_, discovery1, err := b.withdraw(model.TierDiscovery)
	if err != nil {
		return Plan{}, err
	}

	anchor0Target, err := e.anchorToken0Target(snap)
	if err != nil {
		return Plan{}, err
	}
	anchorReserve1, err := fixedpoint.MulWad(anchor0Target, anchorLowerPrice)
	if err != nil {
		return Plan{}, err
	}
	captured := fixedpoint.Sum(anchor1, discovery1)
	excess := fixedpoint.SubClamp(captured, anchorReserve1)

	floorReserves := fixedpoint.Sum(floor1, excess)
	candidate, ok, err := e.candidateFloorTick(floorReserves, circulating)
	if err != nil {
		return Plan{}, fmt.Errorf("candidate floor: %w", err)
	}
	if ok {
		if limit := e.floorCap(snap.Slot0.Tick, fixedpoint.MaxUsableTick(e.params.TickSpacing)); candidate > limit {
			candidate = limit
		}
	}
	raise := ok && candidate > floor.LowerTick

	anchorBudget1 := captured
	floorUpper := floor.UpperTick
	if raise {
		floor0, _, err := b.withdraw(model.TierFloor)
		if err != nil {
			return Plan{}, err
		}
		if err := b.deposit(model.TierFloor, candidate, candidate+e.params.TickSpacing, floor0, floorReserves); err != nil {
			return Plan{}, err
		}
		floorUpper = candidate + e.params.TickSpacing
		anchorBudget1 = fixedpoint.SubClamp(anchorBudget1, excess)
	}

	e.logger.Info("shift candidate floor",
		zap.Bool("raise", raise),
		zap.Int32("current_lower", floor.LowerTick),
		zap.Int32("candidate_lower", candidate),
		zap.String("excess_token1", fixedpoint.FormatWad(excess)),
		zap.String("ratio", fixedpoint.FormatWad(ratio)),
	)

	anchorUpper, err := e.anchorUpperTick(snap, e.params.AnchorUpperBips, floorUpper)
	if err != nil {
		return Plan{}, err
	}
	if err := e.placeUpperTiers(b, floorUpper, anchorUpper, anchorBudget1); err != nil {
		return Plan{}, err
	}

	return e.finish(model.OpShift, snap, b, true)
}
