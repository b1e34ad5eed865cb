package rebalance

import (
	"go.uber.org/zap"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
	"floorVault/internal/valuation"
)

// Slide pulls Anchor back toward a lower spot price and re-places Discovery
// above it. The Floor is never touched.
func (e *Engine) Slide(snap valuation.Snapshot) (Plan, error) {
	state, ratio, err := e.State(snap)
	if err != nil {
		return Plan{}, err
	}
	if state != StateNeedsSlide {
		return e.noop(model.OpSlide, snap)
	}

	b := newBuilder(snap, e.params.TickSpacing)
	_, anchor1, err := b.withdraw(model.TierAnchor)
	if err != nil {
		return Plan{}, err
	}
	_, discovery1, err := b.withdraw(model.TierDiscovery)
	if err != nil {
		return Plan{}, err
	}

	floorUpper := snap.Positions.Floor().UpperTick
	anchorUpper, err := e.anchorUpperTick(snap, e.params.SlideAnchorUpperBips, floorUpper)
	if err != nil {
		return Plan{}, err
	}

	e.logger.Info("slide anchor",
		zap.Int32("anchor_upper_before", snap.Positions.Anchor().UpperTick),
		zap.Int32("anchor_upper_after", anchorUpper),
		zap.String("ratio", fixedpoint.FormatWad(ratio)),
	)

	if err := e.placeUpperTiers(b, floorUpper, anchorUpper, fixedpoint.Sum(anchor1, discovery1)); err != nil {
		return Plan{}, err
	}
	return e.finish(model.OpSlide, snap, b, true)
}
