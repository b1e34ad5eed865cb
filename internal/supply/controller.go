package supply

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
	"floorVault/internal/valuation"
)

// DefaultPeriod is the elapsed time at which a full adjustment applies.
const DefaultPeriod = 7 * 24 * time.Hour

const (
	lowIterations    = 1
	mediumIterations = 10
)

// MarketCondition is the volatility regime that selects a scaling function.
type MarketCondition int

const (
	ConditionLow MarketCondition = iota
	ConditionMedium
	ConditionHigh
	ConditionExtreme
)

func (c MarketCondition) String() string {
	switch c {
	case ConditionLow:
		return "low"
	case ConditionMedium:
		return "medium"
	case ConditionHigh:
		return "high"
	default:
		return "extreme"
	}
}

// Conditions lists every regime from calmest to most volatile.
var Conditions = []MarketCondition{ConditionLow, ConditionMedium, ConditionHigh, ConditionExtreme}

// Thresholds are the upper volatility bounds (WAD, annualized) of each regime.
// Extreme also caps the volatility fed into the exponential rate.
type Thresholds struct {
	Low     *uint256.Int `json:"low"`
	Medium  *uint256.Int `json:"medium"`
	High    *uint256.Int `json:"high"`
	Extreme *uint256.Int `json:"extreme"`
}

// DefaultThresholds returns 20%, 50%, 100% and 200% annualized volatility.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Low:     fixedpoint.WadFromFloat(0.2),
		Medium:  fixedpoint.WadFromFloat(0.5),
		High:    fixedpoint.Units(1),
		Extreme: fixedpoint.Units(2),
	}
}

// Validate requires non-nil thresholds in strictly increasing order.
func (t Thresholds) Validate() error {
	values := []*uint256.Int{t.Low, t.Medium, t.High, t.Extreme}
	for i, v := range values {
		if v == nil || v.IsZero() {
			return fmt.Errorf("%w: threshold %d is zero", model.ErrInvalidThresholds, i)
		}
		if i > 0 && !v.Gt(values[i-1]) {
			return fmt.Errorf("%w: %s must exceed %s", model.ErrInvalidThresholds,
				fixedpoint.FormatWad(v), fixedpoint.FormatWad(values[i-1]))
		}
	}
	return nil
}

// Rates are the per-regime rates handed to each scaling function.
type Rates struct {
	Low     *uint256.Int `json:"low"`
	Medium  *uint256.Int `json:"medium"`
	High    *uint256.Int `json:"high"`
	Extreme *uint256.Int `json:"extreme"`
}

// DefaultRates returns 0.01, 0.01, 0.2 and 0.1.
func DefaultRates() Rates {
	return Rates{
		Low:     fixedpoint.WadFromFloat(0.01),
		Medium:  fixedpoint.WadFromFloat(0.01),
		High:    fixedpoint.WadFromFloat(0.2),
		Extreme: fixedpoint.WadFromFloat(0.1),
	}
}

func (r Rates) get(c MarketCondition) *uint256.Int {
	switch c {
	case ConditionLow:
		return fixedpoint.OrZero(r.Low)
	case ConditionMedium:
		return fixedpoint.OrZero(r.Medium)
	case ConditionHigh:
		return fixedpoint.OrZero(r.High)
	default:
		return fixedpoint.OrZero(r.Extreme)
	}
}

// Config configures a Controller.
type Config struct {
	Thresholds    Thresholds
	Rates         Rates
	Period        time.Duration
	IncludeStaked bool
}

// DefaultConfig returns the default thresholds, rates and period.
func DefaultConfig() Config {
	return Config{
		Thresholds:    DefaultThresholds(),
		Rates:         DefaultRates(),
		Period:        DefaultPeriod,
		IncludeStaked: true,
	}
}

// Adjustment is one mint/burn recommendation.
type Adjustment struct {
	Condition   MarketCondition `json:"condition"`
	Volatility  *uint256.Int    `json:"volatility"`
	DeltaSupply *uint256.Int    `json:"deltaSupply"`
	Mint        *uint256.Int    `json:"mint"`
	Burn        *uint256.Int    `json:"burn"`
}

// Controller maps a volatility signal and the supply gap to mint and burn amounts.
type Controller struct {
	cfg    Config
	model  valuation.Model
	logger *zap.Logger
}

// NewController validates cfg. Rates must produce mint and burn factors that
// strictly increase from Low to Extreme.
func NewController(cfg Config, logger *zap.Logger) (*Controller, error) {
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("%w: period must be positive", model.ErrInvalidParameters)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		cfg:    cfg,
		model:  valuation.Model{IncludeStaked: cfg.IncludeStaked},
		logger: logger,
	}

	var prevUp, prevDown *uint256.Int
	for _, cond := range Conditions {
		up, down, err := c.factors(cond, cfg.Thresholds.High)
		if err != nil {
			return nil, fmt.Errorf("%s factors: %w", cond, err)
		}
		if up.IsZero() || down.IsZero() {
			return nil, fmt.Errorf("%w: %s rate yields a zero factor", model.ErrInvalidParameters, cond)
		}
		if prevUp != nil && (!up.Gt(prevUp) || !down.Gt(prevDown)) {
			return nil, fmt.Errorf("%w: %s factors do not exceed the calmer regime", model.ErrInvalidParameters, cond)
		}
		prevUp, prevDown = up, down
	}
	return c, nil
}

// Config returns the controller's configuration.
func (c *Controller) Config() Config { return c.cfg }

// Condition buckets an annualized volatility.
func (c *Controller) Condition(volatility *uint256.Int) MarketCondition {
	v := fixedpoint.OrZero(volatility)
	switch {
	case !v.Gt(c.cfg.Thresholds.Low):
		return ConditionLow
	case !v.Gt(c.cfg.Thresholds.Medium):
		return ConditionMedium
	case !v.Gt(c.cfg.Thresholds.High):
		return ConditionHigh
	default:
		return ConditionExtreme
	}
}

// factors returns the mint and burn fractions of the supply gap for cond.
// volatility only matters in the extreme regime, where the rate grows with
// volatility/High up to the Extreme threshold.
func (c *Controller) factors(cond MarketCondition, volatility *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	one := fixedpoint.One()
	rate := c.cfg.Rates.get(cond)

	switch cond {
	case ConditionLow, ConditionMedium:
		iterations := lowIterations
		if cond == ConditionMedium {
			iterations = mediumIterations
		}
		up, err := HarmonicUp(one, rate, iterations)
		if err != nil {
			return nil, nil, err
		}
		down, err := HarmonicDown(one, rate, iterations)
		if err != nil {
			return nil, nil, err
		}
		return fixedpoint.SubClamp(up, one), fixedpoint.SubClamp(one, down), nil
	case ConditionHigh:
		up, err := QuadraticUp(one, rate)
		if err != nil {
			return nil, nil, err
		}
		down, err := QuadraticDown(one, rate)
		if err != nil {
			return nil, nil, err
		}
		return fixedpoint.SubClamp(up, one), fixedpoint.SubClamp(one, down), nil
	default:
		v := fixedpoint.Min(fixedpoint.OrZero(volatility), c.cfg.Thresholds.Extreme)
		if v.Lt(c.cfg.Thresholds.High) {
			v = c.cfg.Thresholds.High
		}
		scaled, err := fixedpoint.MulDiv(rate, v, c.cfg.Thresholds.High)
		if err != nil {
			return nil, nil, err
		}
		g, err := ExpGrowth(scaled)
		if err != nil {
			return nil, nil, err
		}
		return g, new(uint256.Int).Set(g), nil
	}
}

// Amounts scales deltaSupply by the regime factors and by the share of the
// period that has elapsed.
func (c *Controller) Amounts(deltaSupply, volatility *uint256.Int, elapsed time.Duration) (Adjustment, error) {
	cond := c.Condition(volatility)
	adj := Adjustment{
		Condition:   cond,
		Volatility:  new(uint256.Int).Set(fixedpoint.OrZero(volatility)),
		DeltaSupply: new(uint256.Int).Set(fixedpoint.OrZero(deltaSupply)),
		Mint:        new(uint256.Int),
		Burn:        new(uint256.Int),
	}
	if elapsed <= 0 || adj.DeltaSupply.IsZero() {
		return adj, nil
	}
	if elapsed > c.cfg.Period {
		elapsed = c.cfg.Period
	}

	up, down, err := c.factors(cond, volatility)
	if err != nil {
		return Adjustment{}, err
	}
	elapsedN := uint256.NewInt(uint64(elapsed))
	periodN := uint256.NewInt(uint64(c.cfg.Period))

	for _, out := range []struct {
		factor *uint256.Int
		dst    *uint256.Int
	}{{up, adj.Mint}, {down, adj.Burn}} {
		full, err := fixedpoint.MulWad(adj.DeltaSupply, out.factor)
		if err != nil {
			return Adjustment{}, err
		}
		scaled, err := fixedpoint.MulDiv(full, elapsedN, periodN)
		if err != nil {
			return Adjustment{}, err
		}
		out.dst.Set(scaled)
	}
	return adj, nil
}

// AdjustSupply recommends mint and burn amounts for the gap between total and
// circulating supply.
func (c *Controller) AdjustSupply(snap valuation.Snapshot, volatility *uint256.Int, elapsed time.Duration) (Adjustment, error) {
	circulating, err := c.model.CirculatingSupply(snap, c.cfg.IncludeStaked)
	if err != nil {
		return Adjustment{}, err
	}
	delta := fixedpoint.SubClamp(fixedpoint.OrZero(snap.TotalSupply), circulating)
	adj, err := c.Amounts(delta, volatility, elapsed)
	if err != nil {
		return Adjustment{}, err
	}
	c.logger.Debug("supply adjustment",
		zap.String("condition", adj.Condition.String()),
		zap.String("delta", fixedpoint.FormatWad(delta)),
		zap.String("mint", fixedpoint.FormatWad(adj.Mint)),
		zap.String("burn", fixedpoint.FormatWad(adj.Burn)),
	)
	return adj, nil
}
