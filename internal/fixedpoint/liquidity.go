package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

var ErrLiquidityOverflow = errors.New("fixedpoint: liquidity exceeds uint128")

func sortRatios(a, b *uint256.Int) (*uint256.Int, *uint256.Int) {
	if a.Gt(b) {
		return b, a
	}
	return a, b
}

// Amount0ForLiquidity returns the token0 amount held by liquidity between two sqrt prices, rounded down.
func Amount0ForLiquidity(sqrtA, sqrtB, liquidity *uint256.Int) *uint256.Int {
	sqrtA, sqrtB = sortRatios(sqrtA, sqrtB)
	if sqrtA.IsZero() || sqrtA.Eq(sqrtB) || liquidity == nil || liquidity.IsZero() {
		return new(uint256.Int)
	}
	numerator := new(uint256.Int).Lsh(liquidity, 96)
	diff := new(uint256.Int).Sub(sqrtB, sqrtA)
	scaled, err := MulDiv(numerator, diff, sqrtB)
	if err != nil {
		return Max()
	}
	return scaled.Div(scaled, sqrtA)
}

// Amount1ForLiquidity returns the token1 amount held by liquidity between two sqrt prices, rounded down.
func Amount1ForLiquidity(sqrtA, sqrtB, liquidity *uint256.Int) *uint256.Int {
	sqrtA, sqrtB = sortRatios(sqrtA, sqrtB)
	if liquidity == nil || liquidity.IsZero() {
		return new(uint256.Int)
	}
	amount, err := MulDiv(liquidity, new(uint256.Int).Sub(sqrtB, sqrtA), q96)
	if err != nil {
		return Max()
	}
	return amount
}

// AmountsForLiquidity returns the token amounts a range position holds at the current sqrt price.
func AmountsForLiquidity(sqrtPrice, sqrtA, sqrtB, liquidity *uint256.Int) (*uint256.Int, *uint256.Int) {
	sqrtA, sqrtB = sortRatios(sqrtA, sqrtB)
	switch {
	case !sqrtPrice.Gt(sqrtA):
		return Amount0ForLiquidity(sqrtA, sqrtB, liquidity), new(uint256.Int)
	case sqrtPrice.Lt(sqrtB):
		return Amount0ForLiquidity(sqrtPrice, sqrtB, liquidity), Amount1ForLiquidity(sqrtA, sqrtPrice, liquidity)
	default:
		return new(uint256.Int), Amount1ForLiquidity(sqrtA, sqrtB, liquidity)
	}
}

// LiquidityForAmount0 returns the liquidity a token0 amount buys between two sqrt prices.
func LiquidityForAmount0(sqrtA, sqrtB, amount0 *uint256.Int) (*uint256.Int, error) {
	sqrtA, sqrtB = sortRatios(sqrtA, sqrtB)
	if sqrtA.Eq(sqrtB) {
		return nil, ErrDivideByZero
	}
	intermediate, err := MulDiv(sqrtA, sqrtB, q96)
	if err != nil {
		return nil, err
	}
	liquidity, err := MulDiv(amount0, intermediate, new(uint256.Int).Sub(sqrtB, sqrtA))
	if err != nil {
		return nil, err
	}
	return checkLiquidity(liquidity)
}

// LiquidityForAmount1 returns the liquidity a token1 amount buys between two sqrt prices.
func LiquidityForAmount1(sqrtA, sqrtB, amount1 *uint256.Int) (*uint256.Int, error) {
	sqrtA, sqrtB = sortRatios(sqrtA, sqrtB)
	if sqrtA.Eq(sqrtB) {
		return nil, ErrDivideByZero
	}
	liquidity, err := MulDiv(amount1, q96, new(uint256.Int).Sub(sqrtB, sqrtA))
	if err != nil {
		return nil, err
	}
	return checkLiquidity(liquidity)
}

// LiquidityForAmounts returns the maximum liquidity the two amounts buy for a range at the current price.
func LiquidityForAmounts(sqrtPrice, sqrtA, sqrtB, amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	sqrtA, sqrtB = sortRatios(sqrtA, sqrtB)
	switch {
	case !sqrtPrice.Gt(sqrtA):
		return LiquidityForAmount0(sqrtA, sqrtB, amount0)
	case sqrtPrice.Lt(sqrtB):
		l0, err := LiquidityForAmount0(sqrtPrice, sqrtB, amount0)
		if err != nil {
			return nil, err
		}
		l1, err := LiquidityForAmount1(sqrtA, sqrtPrice, amount1)
		if err != nil {
			return nil, err
		}
		return Min(l0, l1), nil
	default:
		return LiquidityForAmount1(sqrtA, sqrtB, amount1)
	}
}

func checkLiquidity(liquidity *uint256.Int) (*uint256.Int, error) {
	if liquidity.Gt(maxUint128) {
		return nil, ErrLiquidityOverflow
	}
	return liquidity, nil
}
