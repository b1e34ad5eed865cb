package supply

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/holiman/uint256"

	"floorVault/internal/fixedpoint"
)

// ErrInsufficientData is returned when fewer than two usable prices are given.
var ErrInsufficientData = errors.New("supply: need at least two positive prices")

const year = 365 * 24 * time.Hour

// PriceSample is one spot observation.
type PriceSample struct {
	At    time.Time
	Price *uint256.Int
}

// Volatility is the annualized standard deviation of log returns over samples
// taken every interval. Non-positive prices are skipped.
func Volatility(samples []PriceSample, interval time.Duration) (*uint256.Int, error) {
	if len(samples) < 2 || interval <= 0 {
		return nil, ErrInsufficientData
	}
	sorted := make([]PriceSample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })

	returns := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		prev := fixedpoint.ToFloat(sorted[i-1].Price)
		cur := fixedpoint.ToFloat(sorted[i].Price)
		if prev <= 0 || cur <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	if len(returns) == 0 {
		return nil, ErrInsufficientData
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	if len(returns) > 1 {
		variance /= float64(len(returns) - 1)
	}

	annualization := math.Sqrt(float64(year) / float64(interval))
	return fixedpoint.WadFromFloat(math.Sqrt(variance) * annualization), nil
}
