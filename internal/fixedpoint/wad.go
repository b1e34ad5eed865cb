package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

// Decimals is the base scale of every WAD value: 1 unit = 1e18.
const Decimals = 18

// BipsDenominator is the basis-point scale used by bips parameters.
const BipsDenominator = 10_000

var (
	ErrOverflow     = errors.New("fixedpoint: overflow")
	ErrDivideByZero = errors.New("fixedpoint: divide by zero")
)

var (
	wad        = uint256.NewInt(1_000_000_000_000_000_000)
	q96        = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	maxUint128 = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)
	bipsDenom  = uint256.NewInt(BipsDenominator)
)

// One returns a fresh WAD-scaled 1.
func One() *uint256.Int { return new(uint256.Int).Set(wad) }

// Max returns a fresh 2^256-1.
func Max() *uint256.Int { return new(uint256.Int).SetAllOne() }

// MaxLiquidity returns the largest value a uint128 liquidity slot can hold.
func MaxLiquidity() *uint256.Int { return new(uint256.Int).Set(maxUint128) }

// Q96 returns a fresh 2^96.
func Q96() *uint256.Int { return new(uint256.Int).Set(q96) }

// Zero returns a fresh zero.
func Zero() *uint256.Int { return new(uint256.Int) }

// Units converts a whole-unit count into WAD.
func Units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), wad)
}

// OrZero returns x, or a fresh zero when x is nil.
func OrZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}

// MulDiv computes floor(x*y/d) with a 512-bit intermediate.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivideByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulDivRoundingUp is MulDiv rounded towards positive infinity.
func MulDivRoundingUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(x, y, d)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(x, y, d).IsZero() {
		return z, nil
	}
	if z.Eq(Max()) {
		return nil, ErrOverflow
	}
	return z.AddUint64(z, 1), nil
}

// MulWad multiplies two WAD values.
func MulWad(x, y *uint256.Int) (*uint256.Int, error) {
	return MulDiv(x, y, wad)
}

// DivWad divides two WAD values.
func DivWad(x, y *uint256.Int) (*uint256.Int, error) {
	return MulDiv(x, wad, y)
}

// MulBips scales x by bips/10000.
func MulBips(x *uint256.Int, bips uint64) (*uint256.Int, error) {
	return MulDiv(x, uint256.NewInt(bips), bipsDenom)
}

// Add returns x+y or ErrOverflow.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// SubClamp returns x-y, or zero when y exceeds x.
func SubClamp(x, y *uint256.Int) *uint256.Int {
	if y.Gt(x) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(x, y)
}

// Sum adds all values, saturating at Max.
func Sum(values ...*uint256.Int) *uint256.Int {
	total := new(uint256.Int)
	for _, v := range values {
		if v == nil {
			continue
		}
		if _, overflow := total.AddOverflow(total, v); overflow {
			return Max()
		}
	}
	return total
}

// Min returns a copy of the smaller value.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int).Set(x)
	}
	return new(uint256.Int).Set(y)
}
