package fixedpoint

import "github.com/holiman/uint256"

// ExpMaxIterations caps the Taylor expansion used by Exp. Reference outputs
// for supply adjustment are tolerance-bound to this truncation.
const ExpMaxIterations = 20

// ExpEpsilon is the term size below which the series stops early.
var ExpEpsilon = uint256.NewInt(1)

// Exp approximates e^x for a WAD x with a truncated Taylor series.
func Exp(x *uint256.Int) (*uint256.Int, error) {
	sum := One()
	term := One()
	for i := uint64(1); i <= ExpMaxIterations; i++ {
		divisor := new(uint256.Int).Mul(wad, uint256.NewInt(i))
		next, err := MulDiv(term, x, divisor)
		if err != nil {
			return nil, err
		}
		term = next
		if term.Lt(ExpEpsilon) {
			break
		}
		if sum, err = Add(sum, term); err != nil {
			return nil, err
		}
	}
	return sum, nil
}
