package rebalance

import (
	"fmt"

	"github.com/holiman/uint256"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
	"floorVault/internal/valuation"
)

// Genesis deploys the three tiers from the vault's idle balances. The Floor
// sits at floorPrice and is sized to absorb FloorPercentage of total supply;
// the Anchor is sized to absorb AnchorPercentage at the Floor's upper price.
func (e *Engine) Genesis(snap valuation.Snapshot, floorPrice *uint256.Int) (Plan, error) {
	for _, tier := range model.Tiers {
		if !snap.Positions.Get(tier).IsEmpty() {
			return Plan{}, fmt.Errorf("%w: %s already holds liquidity", model.ErrInvalidParameters, tier)
		}
	}
	if floorPrice == nil || floorPrice.IsZero() {
		return Plan{}, fmt.Errorf("%w: floor price must be positive", model.ErrInvalidParameters)
	}
	supply := fixedpoint.OrZero(snap.TotalSupply)
	if supply.IsZero() {
		return Plan{}, fmt.Errorf("%w: total supply is zero", model.ErrInvalidParameters)
	}

	spacing := e.params.TickSpacing
	tick, err := fixedpoint.TickAtPrice(floorPrice)
	if err != nil {
		return Plan{}, err
	}
	floorLower := fixedpoint.RoundDownTick(tick, spacing)
	if limit := e.floorCap(snap.Slot0.Tick, fixedpoint.MaxUsableTick(spacing)); floorLower > limit {
		return Plan{}, fmt.Errorf("%w: floor tick %d above spot limit %d", model.ErrTierOrdering, floorLower, limit)
	}
	floorUpper := floorLower + spacing

	floorLowerPrice, err := fixedpoint.PriceAtTick(floorLower)
	if err != nil {
		return Plan{}, err
	}
	floorUpperPrice, err := fixedpoint.PriceAtTick(floorUpper)
	if err != nil {
		return Plan{}, err
	}

	floorShare, err := fixedpoint.MulWad(e.params.FloorPercentage, supply)
	if err != nil {
		return Plan{}, err
	}
	floor1, err := fixedpoint.MulWad(floorShare, floorLowerPrice)
	if err != nil {
		return Plan{}, err
	}
	if fixedpoint.OrZero(snap.Idle1).Lt(floor1) {
		return Plan{}, fmt.Errorf("%w: floor needs %s token1, vault holds %s", model.ErrInsufficientReserves,
			fixedpoint.FormatWad(floor1), fixedpoint.FormatWad(fixedpoint.OrZero(snap.Idle1)))
	}
	anchorShare, err := e.anchorToken0Target(snap)
	if err != nil {
		return Plan{}, err
	}
	anchor1, err := fixedpoint.MulWad(anchorShare, floorUpperPrice)
	if err != nil {
		return Plan{}, err
	}

	b := newBuilder(snap, spacing)
	if err := b.deposit(model.TierFloor, floorLower, floorUpper, new(uint256.Int), floor1); err != nil {
		return Plan{}, err
	}
	anchorUpper, err := e.anchorUpperTick(snap, e.params.AnchorUpperBips, floorUpper)
	if err != nil {
		return Plan{}, err
	}
	if err := e.placeUpperTiers(b, floorUpper, anchorUpper, anchor1); err != nil {
		return Plan{}, err
	}
	return e.finish(model.OpGenesis, snap, b, false)
}
