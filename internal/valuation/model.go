package valuation

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
)

// Model derives vault metrics from a Snapshot. It never mutates state.
type Model struct {
	IncludeStaked bool
}

// New returns a Model configured from protocol parameters.
func New(params model.ProtocolParameters) Model {
	return Model{IncludeStaked: params.IncludeStaked}
}

// LiquidityRatio is the Anchor upper-tick price divided by spot.
// A zero spot returns the maximum value.
func (m Model) LiquidityRatio(snap Snapshot) (*uint256.Int, error) {
	spot := snap.SpotPrice()
	if spot.IsZero() {
		return fixedpoint.Max(), nil
	}
	upper, err := fixedpoint.PriceAtTick(snap.Positions.Anchor().UpperTick)
	if err != nil {
		return nil, err
	}
	ratio, err := fixedpoint.DivWad(upper, spot)
	if err != nil {
		if errors.Is(err, fixedpoint.ErrOverflow) {
			return fixedpoint.Max(), nil
		}
		return nil, err
	}
	return ratio, nil
}

// PositionCapacity is the token0 amount a position's token1 can absorb at its
// lower-tick price. Floor capacity also counts loan collateral.
func (m Model) PositionCapacity(snap Snapshot, tier model.Tier) (*uint256.Int, error) {
	position := snap.Positions.Get(tier)
	if position.IsEmpty() {
		return nil, fmt.Errorf("%w: %s", model.ErrNoLiquidity, tier)
	}
	_, amount1, err := snap.Amounts(position)
	if err != nil {
		return nil, err
	}
	price, err := fixedpoint.PriceAtTick(position.LowerTick)
	if err != nil {
		return nil, err
	}
	capacity := new(uint256.Int)
	if !price.IsZero() {
		capacity, err = fixedpoint.DivWad(amount1, price)
		if err != nil {
			return nil, fmt.Errorf("%s capacity: %w", tier, err)
		}
	}
	if tier == model.TierFloor {
		capacity = fixedpoint.Sum(capacity, snap.Collateral)
	}
	return capacity, nil
}

// LockedToken0 sums token0 held across the three positions.
func (m Model) LockedToken0(snap Snapshot) (*uint256.Int, error) {
	locked := new(uint256.Int)
	for _, tier := range model.Tiers {
		amount0, _, err := snap.Amounts(snap.Positions.Get(tier))
		if err != nil {
			return nil, err
		}
		locked = fixedpoint.Sum(locked, amount0)
	}
	return locked, nil
}

// CirculatingSupply is total supply minus everything the protocol holds,
// clamped to zero.
func (m Model) CirculatingSupply(snap Snapshot, includeStaked bool) (*uint256.Int, error) {
	locked, err := m.LockedToken0(snap)
	if err != nil {
		return nil, err
	}
	held := fixedpoint.Sum(locked, snap.Idle0, snap.Collateral, snap.Fees0)
	if includeStaked {
		held = fixedpoint.Sum(held, snap.Staked)
	}
	return fixedpoint.SubClamp(fixedpoint.OrZero(snap.TotalSupply), held), nil
}

// IntrinsicMinimumValue is the price at the Floor lower tick.
func (m Model) IntrinsicMinimumValue(snap Snapshot) (*uint256.Int, error) {
	return fixedpoint.PriceAtTick(snap.Positions.Floor().LowerTick)
}

// VaultInfo derives every metric from one snapshot.
func (m Model) VaultInfo(snap Snapshot) (model.VaultInfo, error) {
	ratio, err := m.LiquidityRatio(snap)
	if err != nil {
		return model.VaultInfo{}, fmt.Errorf("liquidity ratio: %w", err)
	}
	circulating, err := m.CirculatingSupply(snap, m.IncludeStaked)
	if err != nil {
		return model.VaultInfo{}, fmt.Errorf("circulating supply: %w", err)
	}
	anchorCapacity, err := m.capacityOrZero(snap, model.TierAnchor)
	if err != nil {
		return model.VaultInfo{}, err
	}
	floorCapacity, err := m.capacityOrZero(snap, model.TierFloor)
	if err != nil {
		return model.VaultInfo{}, err
	}
	imv, err := m.IntrinsicMinimumValue(snap)
	if err != nil {
		return model.VaultInfo{}, fmt.Errorf("intrinsic minimum value: %w", err)
	}

	return model.VaultInfo{
		LiquidityRatio:    ratio,
		CirculatingSupply: circulating,
		SpotPrice:         snap.SpotPrice(),
		AnchorCapacity:    anchorCapacity,
		FloorCapacity:     floorCapacity,
		Token0:            new(uint256.Int).Set(fixedpoint.OrZero(snap.Idle0)),
		Token1:            new(uint256.Int).Set(fixedpoint.OrZero(snap.Idle1)),
		NewFloor:          imv,
	}, nil
}

func (m Model) capacityOrZero(snap Snapshot, tier model.Tier) (*uint256.Int, error) {
	capacity, err := m.PositionCapacity(snap, tier)
	if errors.Is(err, model.ErrNoLiquidity) {
		if tier == model.TierFloor {
			return new(uint256.Int).Set(fixedpoint.OrZero(snap.Collateral)), nil
		}
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s capacity: %w", tier, err)
	}
	return capacity, nil
}

// EnforceSolvencyInvariant fails with ErrInsolvency unless
// anchor + floor capacity exceeds circulating supply.
func (m Model) EnforceSolvencyInvariant(snap Snapshot) (model.VaultInfo, error) {
	info, err := m.VaultInfo(snap)
	if err != nil {
		return model.VaultInfo{}, err
	}
	if !info.Solvent() {
		return info, fmt.Errorf("%w: anchor %s + floor %s <= circulating %s", model.ErrInsolvency,
			info.AnchorCapacity.Dec(), info.FloorCapacity.Dec(), info.CirculatingSupply.Dec())
	}
	return info, nil
}
