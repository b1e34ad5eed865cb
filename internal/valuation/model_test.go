package valuation

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
	"floorVault/internal/pool"
)

func slotAt(t *testing.T, tick int32) pool.Slot0 {
	t.Helper()
	sqrt, err := fixedpoint.SqrtRatioAtTick(tick)
	if err != nil {
		t.Fatalf("sqrt ratio: %v", err)
	}
	return pool.Slot0{SqrtPriceX96: sqrt, Tick: tick}
}

func positionWithToken1(t *testing.T, lower, upper int32, amount1 *uint256.Int) model.LiquidityPosition {
	t.Helper()
	sqrtA, _ := fixedpoint.SqrtRatioAtTick(lower)
	sqrtB, _ := fixedpoint.SqrtRatioAtTick(upper)
	liquidity, err := fixedpoint.LiquidityForAmount1(sqrtA, sqrtB, amount1)
	if err != nil {
		t.Fatalf("liquidity: %v", err)
	}
	p, err := model.NewPosition(lower, upper, liquidity, 60)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	return p
}

func positionWithToken0(t *testing.T, lower, upper int32, amount0 *uint256.Int) model.LiquidityPosition {
	t.Helper()
	sqrtA, _ := fixedpoint.SqrtRatioAtTick(lower)
	sqrtB, _ := fixedpoint.SqrtRatioAtTick(upper)
	liquidity, err := fixedpoint.LiquidityForAmount0(sqrtA, sqrtB, amount0)
	if err != nil {
		t.Fatalf("liquidity: %v", err)
	}
	p, err := model.NewPosition(lower, upper, liquidity, 60)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	return p
}

func baseSnapshot(t *testing.T) Snapshot {
	return Snapshot{
		Slot0: slotAt(t, 0),
		Positions: model.Positions{
			positionWithToken1(t, -1200, -1140, fixedpoint.Units(100)),
			positionWithToken1(t, -1140, 1200, fixedpoint.Units(50)),
			positionWithToken0(t, 1200, 5280, fixedpoint.Units(500)),
		},
		TotalSupply: fixedpoint.Units(1000),
		Idle0:       fixedpoint.Units(300),
		Idle1:       fixedpoint.Units(5),
		Staked:      fixedpoint.Units(10),
		Collateral:  fixedpoint.Units(20),
		Fees0:       fixedpoint.Units(1),
	}
}

func TestLiquidityRatio(t *testing.T) {
	m := Model{IncludeStaked: true}
	snap := baseSnapshot(t)

	ratio, err := m.LiquidityRatio(snap)
	if err != nil {
		t.Fatalf("ratio: %v", err)
	}
	want, _ := fixedpoint.PriceAtTick(1200)
	if !ratio.Eq(want) {
		t.Fatalf("ratio at spot 1: got %s want %s", ratio.Dec(), want.Dec())
	}

	snap.Slot0.SqrtPriceX96 = fixedpoint.Zero()
	ratio, err = m.LiquidityRatio(snap)
	if err != nil {
		t.Fatalf("ratio zero spot: %v", err)
	}
	if !ratio.Eq(fixedpoint.Max()) {
		t.Fatalf("zero spot must saturate, got %s", ratio.Dec())
	}
}

func TestPositionCapacity(t *testing.T) {
	m := Model{}
	snap := baseSnapshot(t)

	floorCapacity, err := m.PositionCapacity(snap, model.TierFloor)
	if err != nil {
		t.Fatalf("floor capacity: %v", err)
	}
	// ~100 / 1.0001^-1200 plus 20 collateral.
	low, _ := fixedpoint.ParseWad("132.7")
	high, _ := fixedpoint.ParseWad("132.8")
	if floorCapacity.Lt(low) || floorCapacity.Gt(high) {
		t.Fatalf("floor capacity out of range: %s", fixedpoint.FormatWad(floorCapacity))
	}

	snap.Collateral = fixedpoint.Zero()
	withoutCollateral, err := m.PositionCapacity(snap, model.TierFloor)
	if err != nil {
		t.Fatalf("floor capacity: %v", err)
	}
	if diff := new(uint256.Int).Sub(floorCapacity, withoutCollateral); !diff.Eq(fixedpoint.Units(20)) {
		t.Fatalf("collateral not added: %s", diff.Dec())
	}

	snap.Positions[model.TierAnchor].Liquidity = fixedpoint.Zero()
	if _, err := m.PositionCapacity(snap, model.TierAnchor); !errors.Is(err, model.ErrNoLiquidity) {
		t.Fatalf("expected no liquidity error, got %v", err)
	}
}

func TestCirculatingSupply(t *testing.T) {
	m := Model{}
	snap := baseSnapshot(t)

	withStaked, err := m.CirculatingSupply(snap, true)
	if err != nil {
		t.Fatalf("circulating: %v", err)
	}
	withoutStaked, err := m.CirculatingSupply(snap, false)
	if err != nil {
		t.Fatalf("circulating: %v", err)
	}
	if diff := new(uint256.Int).Sub(withoutStaked, withStaked); !diff.Eq(fixedpoint.Units(10)) {
		t.Fatalf("staked balance not excluded: %s", diff.Dec())
	}

	// 1000 - (~500 discovery + ~anchor token0 + 300 idle + 20 collateral + 1 fees + 10 staked)
	if withStaked.IsZero() || !withStaked.Lt(fixedpoint.Units(169)) {
		t.Fatalf("unexpected circulating supply: %s", fixedpoint.FormatWad(withStaked))
	}
}

func TestCirculatingSupplyClampsToZero(t *testing.T) {
	m := Model{IncludeStaked: true}
	snap := baseSnapshot(t)
	snap.TotalSupply = fixedpoint.Units(100)
	snap.Staked = fixedpoint.Units(300)
	snap.Collateral = fixedpoint.Units(300)

	got, err := m.CirculatingSupply(snap, true)
	if err != nil {
		t.Fatalf("circulating: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("expected clamp to zero, got %s", got.Dec())
	}
}

func TestEnforceSolvencyInvariant(t *testing.T) {
	m := Model{IncludeStaked: true}
	snap := baseSnapshot(t)

	info, err := m.EnforceSolvencyInvariant(snap)
	if err != nil {
		t.Fatalf("expected solvent vault: %v", err)
	}
	imv, _ := fixedpoint.PriceAtTick(-1200)
	if !info.NewFloor.Eq(imv) {
		t.Fatalf("imv mismatch: %s", info.NewFloor.Dec())
	}

	snap.TotalSupply = fixedpoint.Units(100_000)
	if _, err := m.EnforceSolvencyInvariant(snap); !errors.Is(err, model.ErrInsolvency) {
		t.Fatalf("expected insolvency, got %v", err)
	}
}

// Below the Floor range every position holds only token0, so both capacities
// are zero. With nothing circulating, 0 > 0 still fails.
func TestSolvencyFailsBelowFloorRange(t *testing.T) {
	m := Model{IncludeStaked: true}
	snap := baseSnapshot(t)
	snap.Slot0 = slotAt(t, -2400)
	snap.Collateral = new(uint256.Int)
	snap.TotalSupply = fixedpoint.Units(1)

	info, err := m.EnforceSolvencyInvariant(snap)
	if !errors.Is(err, model.ErrInsolvency) {
		t.Fatalf("expected insolvency, got %v", err)
	}
	if !info.AnchorCapacity.IsZero() || !info.FloorCapacity.IsZero() || !info.CirculatingSupply.IsZero() {
		t.Fatalf("expected zero capacities and supply: anchor %s floor %s circulating %s",
			info.AnchorCapacity.Dec(), info.FloorCapacity.Dec(), info.CirculatingSupply.Dec())
	}
}
