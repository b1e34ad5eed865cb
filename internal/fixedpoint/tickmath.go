package fixedpoint

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var ErrTickOutOfRange = errors.New("fixedpoint: tick out of range")

var (
	minSqrtRatio = uint256.NewInt(4295128739)
	maxSqrtRatio = uint256.MustFromHex("0xfffd8963efd1fc6a506488495d951d5263988d26")

	oddTickRatio  = uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001")
	evenTickRatio = uint256.MustFromHex("0x100000000000000000000000000000000")

	// Multipliers for bits 1..19 of |tick|.
	tickRatioSteps = [19]*uint256.Int{
		uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
		uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
		uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
		uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
		uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
		uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
		uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
		uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
		uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
		uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
		uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
		uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
		uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
		uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
		uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
	}

	q128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)
)

// MinSqrtRatio returns sqrt(1.0001^MinTick) in Q64.96.
func MinSqrtRatio() *uint256.Int { return new(uint256.Int).Set(minSqrtRatio) }

// MaxSqrtRatio returns sqrt(1.0001^MaxTick) in Q64.96.
func MaxSqrtRatio() *uint256.Int { return new(uint256.Int).Set(maxSqrtRatio) }

// SqrtRatioAtTick returns sqrt(1.0001^tick) * 2^96, matching the pool's TickMath.
func SqrtRatioAtTick(tick int32) (*uint256.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("%w: %d", ErrTickOutOfRange, tick)
	}
	absTick := uint64(tick)
	if tick < 0 {
		absTick = uint64(-int64(tick))
	}

	ratio := new(uint256.Int)
	if absTick&1 != 0 {
		ratio.Set(oddTickRatio)
	} else {
		ratio.Set(evenTickRatio)
	}
	for i, step := range tickRatioSteps {
		if absTick&(uint64(1)<<(i+1)) != 0 {
			ratio.Mul(ratio, step)
			ratio.Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		ratio.Div(Max(), ratio)
	}

	// Round up when converting from Q128.128 to Q64.96.
	remainder := new(uint256.Int).And(ratio, uint256.NewInt(0xffffffff))
	ratio.Rsh(ratio, 32)
	if !remainder.IsZero() {
		ratio.AddUint64(ratio, 1)
	}
	return ratio, nil
}

// TickAtSqrtRatio returns the greatest tick whose sqrt ratio is <= sqrtPriceX96.
func TickAtSqrtRatio(sqrtPriceX96 *uint256.Int) (int32, error) {
	if sqrtPriceX96.Lt(minSqrtRatio) || !sqrtPriceX96.Lt(maxSqrtRatio) {
		return 0, fmt.Errorf("%w: sqrt price %s", ErrTickOutOfRange, sqrtPriceX96.Dec())
	}

	lo, hi := MinTick, MaxTick
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		ratio, err := SqrtRatioAtTick(mid)
		if err != nil {
			return 0, err
		}
		if ratio.Gt(sqrtPriceX96) {
			hi = mid - 1
		} else {
			lo = mid
		}
	}
	return lo, nil
}

// PriceFromSqrtX96 converts a Q64.96 sqrt price into a WAD price of token0 in token1.
// Prices too large for 256 bits saturate at Max.
func PriceFromSqrtX96(sqrtPriceX96 *uint256.Int) *uint256.Int {
	if sqrtPriceX96 == nil || sqrtPriceX96.IsZero() {
		return new(uint256.Int)
	}
	priceX96, err := MulDiv(sqrtPriceX96, sqrtPriceX96, q96)
	if err != nil {
		return Max()
	}
	price, err := MulDiv(priceX96, wad, q96)
	if err != nil {
		return Max()
	}
	return price
}

// PriceAtTick returns 1.0001^tick as a WAD price.
func PriceAtTick(tick int32) (*uint256.Int, error) {
	sqrt, err := SqrtRatioAtTick(tick)
	if err != nil {
		return nil, err
	}
	return PriceFromSqrtX96(sqrt), nil
}

// SqrtX96FromPrice converts a WAD price into a Q64.96 sqrt price clamped to the valid tick range.
func SqrtX96FromPrice(price *uint256.Int) (*uint256.Int, error) {
	if price == nil || price.IsZero() {
		return MinSqrtRatio(), nil
	}
	scaled, err := MulDiv(price, q128, wad)
	if err != nil {
		return nil, fmt.Errorf("%w: price %s", ErrTickOutOfRange, price.Dec())
	}
	// sqrt(price * 2^128) = sqrt(price) * 2^64; shift up to 2^96.
	root := new(uint256.Int).Sqrt(scaled)
	root.Lsh(root, 32)
	if root.Lt(minSqrtRatio) {
		return MinSqrtRatio(), nil
	}
	if !root.Lt(maxSqrtRatio) {
		return new(uint256.Int).SubUint64(maxSqrtRatio, 1), nil
	}
	return root, nil
}

// TickAtPrice returns the greatest tick whose price is <= price.
func TickAtPrice(price *uint256.Int) (int32, error) {
	sqrt, err := SqrtX96FromPrice(price)
	if err != nil {
		return 0, err
	}
	return TickAtSqrtRatio(sqrt)
}

// RoundDownTick aligns tick to the spacing grid towards negative infinity.
func RoundDownTick(tick, spacing int32) int32 {
	if spacing <= 1 {
		return tick
	}
	rem := tick % spacing
	if rem < 0 {
		rem += spacing
	}
	aligned := tick - rem
	if aligned < MinTick {
		aligned += spacing
	}
	return aligned
}

// RoundUpTick aligns tick to the spacing grid towards positive infinity.
func RoundUpTick(tick, spacing int32) int32 {
	down := RoundDownTick(tick, spacing)
	if down >= tick {
		return down
	}
	up := down + spacing
	if up > MaxTick {
		up -= spacing
	}
	return up
}

// MaxUsableTick returns the largest tick aligned to spacing.
func MaxUsableTick(spacing int32) int32 {
	if spacing <= 1 {
		return MaxTick
	}
	return MaxTick / spacing * spacing
}

// MinUsableTick returns the smallest tick aligned to spacing.
func MinUsableTick(spacing int32) int32 {
	if spacing <= 1 {
		return MinTick
	}
	return MinTick / spacing * spacing
}
