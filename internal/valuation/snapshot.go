package valuation

import (
	"github.com/holiman/uint256"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
	"floorVault/internal/pool"
)

// Snapshot is every external value one operation reads, captured once.
type Snapshot struct {
	Slot0     pool.Slot0
	Positions model.Positions

	TotalSupply *uint256.Int
	// Idle0 and Idle1 are the vault's token balances outside the pool.
	Idle0 *uint256.Int
	Idle1 *uint256.Int
	// Staked is the token0 balance of the staking contract.
	Staked     *uint256.Int
	Collateral *uint256.Int
	Fees0      *uint256.Int
	Fees1      *uint256.Int
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	cp := func(x *uint256.Int) *uint256.Int { return new(uint256.Int).Set(fixedpoint.OrZero(x)) }
	return Snapshot{
		Slot0:       pool.Slot0{SqrtPriceX96: cp(s.Slot0.SqrtPriceX96), Tick: s.Slot0.Tick},
		Positions:   s.Positions.Clone(),
		TotalSupply: cp(s.TotalSupply),
		Idle0:       cp(s.Idle0),
		Idle1:       cp(s.Idle1),
		Staked:      cp(s.Staked),
		Collateral:  cp(s.Collateral),
		Fees0:       cp(s.Fees0),
		Fees1:       cp(s.Fees1),
	}
}

// SpotPrice returns the WAD price of token0 in token1.
func (s Snapshot) SpotPrice() *uint256.Int {
	return fixedpoint.PriceFromSqrtX96(s.Slot0.SqrtPriceX96)
}

// Amounts returns the tokens a position holds at the snapshot price.
func (s Snapshot) Amounts(position model.LiquidityPosition) (*uint256.Int, *uint256.Int, error) {
	if position.IsEmpty() {
		return new(uint256.Int), new(uint256.Int), nil
	}
	sqrtA, err := fixedpoint.SqrtRatioAtTick(position.LowerTick)
	if err != nil {
		return nil, nil, err
	}
	sqrtB, err := fixedpoint.SqrtRatioAtTick(position.UpperTick)
	if err != nil {
		return nil, nil, err
	}
	amount0, amount1 := fixedpoint.AmountsForLiquidity(fixedpoint.OrZero(s.Slot0.SqrtPriceX96), sqrtA, sqrtB, position.Liquidity)
	return amount0, amount1, nil
}
