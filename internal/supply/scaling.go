package supply

import (
	"github.com/holiman/uint256"

	"floorVault/internal/fixedpoint"
)

// HarmonicUp adds rate/(1+i) to value for each of iterations steps.
func HarmonicUp(value, rate *uint256.Int, iterations int) (*uint256.Int, error) {
	out := new(uint256.Int).Set(value)
	for i := 0; i < iterations; i++ {
		step := new(uint256.Int).Div(rate, uint256.NewInt(uint64(i+1)))
		next, err := fixedpoint.Add(out, step)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}

// HarmonicDown subtracts rate/(1+i) from value for each of iterations steps,
// stopping at zero.
func HarmonicDown(value, rate *uint256.Int, iterations int) (*uint256.Int, error) {
	out := new(uint256.Int).Set(value)
	for i := 0; i < iterations; i++ {
		step := new(uint256.Int).Div(rate, uint256.NewInt(uint64(i+1)))
		out = fixedpoint.SubClamp(out, step)
	}
	return out, nil
}

var (
	quadraticCeiling = fixedpoint.WadFromFloat(1.1)
	quadraticFloor   = fixedpoint.WadFromFloat(0.9)
)

// QuadraticUp is value*(1+rate^2), with the scale factor capped at 1.1.
func QuadraticUp(value, rate *uint256.Int) (*uint256.Int, error) {
	sq, err := fixedpoint.MulWad(rate, rate)
	if err != nil {
		return nil, err
	}
	factor, err := fixedpoint.Add(fixedpoint.One(), sq)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulWad(value, fixedpoint.Min(factor, quadraticCeiling))
}

// QuadraticDown is value*(1-rate^2), with the scale factor floored at 0.9.
func QuadraticDown(value, rate *uint256.Int) (*uint256.Int, error) {
	sq, err := fixedpoint.MulWad(rate, rate)
	if err != nil {
		return nil, err
	}
	factor := fixedpoint.SubClamp(fixedpoint.One(), sq)
	if factor.Lt(quadraticFloor) {
		factor = new(uint256.Int).Set(quadraticFloor)
	}
	return fixedpoint.MulWad(value, factor)
}

// ExpGrowth is exp(rate)-1.
func ExpGrowth(rate *uint256.Int) (*uint256.Int, error) {
	e, err := fixedpoint.Exp(rate)
	if err != nil {
		return nil, err
	}
	return fixedpoint.SubClamp(e, fixedpoint.One()), nil
}
