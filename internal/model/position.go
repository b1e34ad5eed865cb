package model

import (
	"fmt"

	"github.com/holiman/uint256"

	"floorVault/internal/fixedpoint"
)

// Tier identifies one of the three protocol-owned liquidity ranges.
type Tier uint8

const (
	TierFloor Tier = iota
	TierAnchor
	TierDiscovery
)

// Tiers lists every tier in registry order.
var Tiers = [3]Tier{TierFloor, TierAnchor, TierDiscovery}

func (t Tier) String() string {
	switch t {
	case TierFloor:
		return "floor"
	case TierAnchor:
		return "anchor"
	case TierDiscovery:
		return "discovery"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// LiquidityPosition is a tick range owned by the vault and the liquidity minted into it.
type LiquidityPosition struct {
	LowerTick   int32        `json:"lower_tick"`
	UpperTick   int32        `json:"upper_tick"`
	Liquidity   *uint256.Int `json:"liquidity"`
	Price       *uint256.Int `json:"price"`
	TickSpacing int32        `json:"tick_spacing"`
}

// NewPosition builds a position and fills Price from the lower tick.
func NewPosition(lower, upper int32, liquidity *uint256.Int, spacing int32) (LiquidityPosition, error) {
	price, err := fixedpoint.PriceAtTick(lower)
	if err != nil {
		return LiquidityPosition{}, err
	}
	return LiquidityPosition{
		LowerTick:   lower,
		UpperTick:   upper,
		Liquidity:   new(uint256.Int).Set(fixedpoint.OrZero(liquidity)),
		Price:       price,
		TickSpacing: spacing,
	}, nil
}

// Clone returns a deep copy.
func (p LiquidityPosition) Clone() LiquidityPosition {
	out := p
	out.Liquidity = new(uint256.Int).Set(fixedpoint.OrZero(p.Liquidity))
	out.Price = new(uint256.Int).Set(fixedpoint.OrZero(p.Price))
	return out
}

// IsEmpty reports whether the position holds no liquidity.
func (p LiquidityPosition) IsEmpty() bool {
	return p.Liquidity == nil || p.Liquidity.IsZero()
}

// SameRange reports whether both positions cover the same ticks.
func (p LiquidityPosition) SameRange(other LiquidityPosition) bool {
	return p.LowerTick == other.LowerTick && p.UpperTick == other.UpperTick
}

func (p LiquidityPosition) validate(tier Tier) error {
	if p.TickSpacing <= 0 {
		return fmt.Errorf("%w: %s tick spacing %d", ErrTierOrdering, tier, p.TickSpacing)
	}
	if p.LowerTick >= p.UpperTick {
		return fmt.Errorf("%w: %s lower %d >= upper %d", ErrTierOrdering, tier, p.LowerTick, p.UpperTick)
	}
	if p.LowerTick < fixedpoint.MinTick || p.UpperTick > fixedpoint.MaxTick {
		return fmt.Errorf("%w: %s range [%d,%d] outside tick bounds", ErrTierOrdering, tier, p.LowerTick, p.UpperTick)
	}
	if p.LowerTick%p.TickSpacing != 0 || p.UpperTick%p.TickSpacing != 0 {
		return fmt.Errorf("%w: %s range [%d,%d] not aligned to %d", ErrTierOrdering, tier, p.LowerTick, p.UpperTick, p.TickSpacing)
	}
	if p.Liquidity != nil && p.Liquidity.Gt(fixedpoint.MaxLiquidity()) {
		return fmt.Errorf("%w: %s", fixedpoint.ErrLiquidityOverflow, tier)
	}
	return nil
}

// Positions holds the vault's three positions indexed by Tier.
type Positions [3]LiquidityPosition

// Get returns the position for a tier.
func (ps Positions) Get(tier Tier) LiquidityPosition { return ps[tier] }

// Floor returns the Floor position.
func (ps Positions) Floor() LiquidityPosition { return ps[TierFloor] }

// Anchor returns the Anchor position.
func (ps Positions) Anchor() LiquidityPosition { return ps[TierAnchor] }

// Discovery returns the Discovery position.
func (ps Positions) Discovery() LiquidityPosition { return ps[TierDiscovery] }

// Clone returns a deep copy of all three positions.
func (ps Positions) Clone() Positions {
	var out Positions
	for i := range ps {
		out[i] = ps[i].Clone()
	}
	return out
}

// Validate checks every range and the ordering
// Floor.Upper <= Anchor.Lower <= Anchor.Upper <= Discovery.Lower.
func (ps Positions) Validate() error {
	for _, tier := range Tiers {
		if err := ps[tier].validate(tier); err != nil {
			return err
		}
	}
	floor, anchor, discovery := ps[TierFloor], ps[TierAnchor], ps[TierDiscovery]
	if floor.UpperTick > anchor.LowerTick {
		return fmt.Errorf("%w: floor upper %d > anchor lower %d", ErrTierOrdering, floor.UpperTick, anchor.LowerTick)
	}
	if anchor.UpperTick > discovery.LowerTick {
		return fmt.Errorf("%w: anchor upper %d > discovery lower %d", ErrTierOrdering, anchor.UpperTick, discovery.LowerTick)
	}
	return nil
}
