package keeper

import (
	"sync"
	"time"

	"github.com/holiman/uint256"

	"floorVault/internal/supply"
)

// Sampler is a fixed-size ring of spot price observations.
type Sampler struct {
	mu      sync.Mutex
	samples []supply.PriceSample
	next    int
	full    bool
}

func NewSampler(size int) *Sampler {
	if size < 2 {
		size = 2
	}
	return &Sampler{samples: make([]supply.PriceSample, size)}
}

// Add records a price, overwriting the oldest sample once full.
func (s *Sampler) Add(at time.Time, price *uint256.Int) {
	if price == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[s.next] = supply.PriceSample{At: at, Price: new(uint256.Int).Set(price)}
	s.next = (s.next + 1) % len(s.samples)
	if s.next == 0 {
		s.full = true
	}
}

// Samples returns the recorded samples, oldest first.
func (s *Sampler) Samples() []supply.PriceSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full {
		return append([]supply.PriceSample(nil), s.samples[:s.next]...)
	}
	out := make([]supply.PriceSample, 0, len(s.samples))
	out = append(out, s.samples[s.next:]...)
	return append(out, s.samples[:s.next]...)
}

// Volatility annualizes the recorded samples taken every interval.
func (s *Sampler) Volatility(interval time.Duration) (*uint256.Int, error) {
	return supply.Volatility(s.Samples(), interval)
}
