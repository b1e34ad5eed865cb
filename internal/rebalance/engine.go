package rebalance

import (
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
	"floorVault/internal/valuation"
)

// State is the rebalance state of a vault at one snapshot.
type State int

const (
	StateStable State = iota
	StateNeedsShift
	StateNeedsSlide
)

func (s State) String() string {
	switch s {
	case StateNeedsShift:
		return "needs_shift"
	case StateNeedsSlide:
		return "needs_slide"
	default:
		return "stable"
	}
}

// Engine computes shift, slide and bump plans. It holds no mutable state.
type Engine struct {
	params model.ProtocolParameters
	model  valuation.Model
	logger *zap.Logger
}

// NewEngine validates params and builds an Engine.
func NewEngine(params model.ProtocolParameters, logger *zap.Logger) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{params: params, model: valuation.New(params), logger: logger}, nil
}

// Params returns the engine's protocol parameters.
func (e *Engine) Params() model.ProtocolParameters { return e.params }

// Model returns the valuation model the engine validates with.
func (e *Engine) Model() valuation.Model { return e.model }

// State classifies the liquidity ratio against the shift and slide thresholds.
func (e *Engine) State(snap valuation.Snapshot) (State, *uint256.Int, error) {
	ratio, err := e.model.LiquidityRatio(snap)
	if err != nil {
		return StateStable, nil, err
	}
	switch {
	case ratio.Lt(e.params.ShiftRatio):
		return StateNeedsShift, ratio, nil
	case ratio.Gt(e.params.SlideRatio):
		return StateNeedsSlide, ratio, nil
	default:
		return StateStable, ratio, nil
	}
}

func (e *Engine) noop(kind model.OperationKind, snap valuation.Snapshot) (Plan, error) {
	info, err := e.model.VaultInfo(snap)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Kind:       kind,
		Noop:       true,
		Before:     snap.Positions.Clone(),
		After:      snap.Positions.Clone(),
		InfoBefore: info,
		InfoAfter:  info,
		Projected:  snap.Clone(),
	}, nil
}

// finish validates the projected state and assembles the plan.
func (e *Engine) finish(kind model.OperationKind, before valuation.Snapshot, b *builder, checkFloor bool) (Plan, error) {
	after := b.snap.Positions
	if err := after.Validate(); err != nil {
		return Plan{}, err
	}
	if checkFloor && after.Floor().LowerTick < before.Positions.Floor().LowerTick {
		return Plan{}, fmt.Errorf("%w: lower tick %d -> %d", model.ErrFloorDecrease,
			before.Positions.Floor().LowerTick, after.Floor().LowerTick)
	}

	infoAfter, err := e.model.EnforceSolvencyInvariant(b.snap)
	if err != nil {
		return Plan{}, err
	}
	infoBefore, err := e.model.VaultInfo(before)
	if err != nil {
		return Plan{}, err
	}

	e.logger.Debug("plan ready",
		zap.String("kind", string(kind)),
		zap.Int("instructions", len(b.instructions)),
		zap.Int32("floor_lower", after.Floor().LowerTick),
		zap.Int32("anchor_upper", after.Anchor().UpperTick),
		zap.String("ratio_after", fixedpoint.FormatWad(infoAfter.LiquidityRatio)),
	)

	return Plan{
		Kind:         kind,
		Before:       before.Positions.Clone(),
		After:        after.Clone(),
		Instructions: b.instructions,
		InfoBefore:   infoBefore,
		InfoAfter:    infoAfter,
		Projected:    b.snap,
	}, nil
}

// anchorUpperTick returns the aligned tick at spot*bips, at least one spacing above lower.
func (e *Engine) anchorUpperTick(snap valuation.Snapshot, bips uint64, lower int32) (int32, error) {
	target, err := fixedpoint.MulBips(snap.SpotPrice(), bips)
	if err != nil {
		return 0, err
	}
	tick, err := fixedpoint.TickAtPrice(target)
	if err != nil {
		return 0, err
	}
	upper := fixedpoint.RoundUpTick(tick, e.params.TickSpacing)
	if upper < lower+e.params.TickSpacing {
		upper = lower + e.params.TickSpacing
	}
	return e.clampUpper(upper)
}

// discoveryRange spans from lower to the aligned tick at price(lower)*DiscoveryBips.
func (e *Engine) discoveryRange(lower int32) (int32, int32, error) {
	base, err := fixedpoint.PriceAtTick(lower)
	if err != nil {
		return 0, 0, err
	}
	target, err := fixedpoint.MulBips(base, e.params.DiscoveryBips)
	if err != nil {
		return 0, 0, err
	}
	tick, err := fixedpoint.TickAtPrice(target)
	if err != nil {
		return 0, 0, err
	}
	upper := fixedpoint.RoundUpTick(tick, e.params.TickSpacing)
	if upper < lower+e.params.TickSpacing {
		upper = lower + e.params.TickSpacing
	}
	upper, err = e.clampUpper(upper)
	return lower, upper, err
}

func (e *Engine) clampUpper(upper int32) (int32, error) {
	limit := fixedpoint.MaxUsableTick(e.params.TickSpacing)
	if upper > limit {
		return 0, fmt.Errorf("%w: upper tick %d beyond %d", model.ErrTierOrdering, upper, limit)
	}
	return upper, nil
}

// floorCap is the highest Floor lower tick that keeps the Floor below spot
// and under the given ceiling.
func (e *Engine) floorCap(spotTick, ceiling int32) int32 {
	limit := fixedpoint.RoundDownTick(spotTick, e.params.TickSpacing) - e.params.TickSpacing
	if c := ceiling - e.params.TickSpacing; c < limit {
		limit = c
	}
	return limit
}

// candidateFloorTick is the aligned tick at which reserves1 covers circulating supply.
// ok is false when no candidate exists.
func (e *Engine) candidateFloorTick(reserves1, circulating *uint256.Int) (int32, bool, error) {
	if circulating.IsZero() || reserves1.IsZero() {
		return 0, false, nil
	}
	price, err := fixedpoint.DivWad(reserves1, circulating)
	if err != nil {
		return 0, false, err
	}
	if price.IsZero() {
		return 0, false, nil
	}
	tick, err := fixedpoint.TickAtPrice(price)
	if err != nil {
		return 0, false, err
	}
	return fixedpoint.RoundDownTick(tick, e.params.TickSpacing), true, nil
}

// anchorToken0Target is AnchorPercentage of total supply.
func (e *Engine) anchorToken0Target(snap valuation.Snapshot) (*uint256.Int, error) {
	return fixedpoint.MulWad(e.params.AnchorPercentage, fixedpoint.OrZero(snap.TotalSupply))
}

// placeUpperTiers deploys Anchor at [lower, upper] and Discovery above it with
// all remaining idle token0.
func (e *Engine) placeUpperTiers(b *builder, lower, upper int32, anchor1 *uint256.Int) error {
	anchor0, err := e.anchorToken0Target(b.snap)
	if err != nil {
		return err
	}
	if err := b.deposit(model.TierAnchor, lower, upper, anchor0, anchor1); err != nil {
		return err
	}
	discLower, discUpper, err := e.discoveryRange(upper)
	if err != nil {
		return err
	}
	return b.deposit(model.TierDiscovery, discLower, discUpper, fixedpoint.OrZero(b.snap.Idle0), new(uint256.Int))
}
