package fixedpoint

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ParseWad parses a non-negative human decimal such as "0.9" into WAD.
func ParseWad(input string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(input)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", input, err)
	}
	return WadFromDecimal(d)
}

// WadFromDecimal scales a decimal by 1e18, truncating extra precision.
func WadFromDecimal(d decimal.Decimal) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("negative value %s", d.String())
	}
	scaled := d.Shift(Decimals).Truncate(0)
	value, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, ErrOverflow
	}
	return value, nil
}

// WadFromFloat converts a float into WAD. Negative inputs become zero.
func WadFromFloat(f float64) *uint256.Int {
	if f <= 0 {
		return new(uint256.Int)
	}
	value, err := WadFromDecimal(decimal.NewFromFloat(f))
	if err != nil {
		return Max()
	}
	return value
}

// ToDecimal converts a WAD value into a decimal.
func ToDecimal(x *uint256.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x.ToBig(), -Decimals)
}

// FormatWad renders a WAD value as a human decimal string.
func FormatWad(x *uint256.Int) string {
	return ToDecimal(x).String()
}

// ToFloat converts a WAD value into a float64, losing precision.
func ToFloat(x *uint256.Int) float64 {
	f, _ := ToDecimal(x).Float64()
	return f
}
