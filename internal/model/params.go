package model

import (
	"fmt"

	"github.com/holiman/uint256"

	"floorVault/internal/fixedpoint"
)

// ProtocolParameters is the static configuration of one vault.
type ProtocolParameters struct {
	// FloorPercentage and AnchorPercentage are WAD shares of total supply that
	// Floor and Anchor must be able to absorb at genesis.
	FloorPercentage  *uint256.Int
	AnchorPercentage *uint256.Int

	ShiftRatio *uint256.Int
	SlideRatio *uint256.Int

	DiscoveryBips        uint64
	AnchorUpperBips      uint64
	SlideAnchorUpperBips uint64

	TickSpacing int32
	FeeTier     uint32
	LoanFeeBips uint64

	IncludeStaked bool
}

func mustWad(s string) *uint256.Int {
	v, err := fixedpoint.ParseWad(s)
	if err != nil {
		panic(err)
	}
	return v
}

// DefaultParameters returns the deployment defaults.
func DefaultParameters() ProtocolParameters {
	return ProtocolParameters{
		FloorPercentage:      mustWad("0.10"),
		AnchorPercentage:     mustWad("0.05"),
		ShiftRatio:           mustWad("0.90"),
		SlideRatio:           mustWad("1.15"),
		DiscoveryBips:        15000,
		AnchorUpperBips:      10500,
		SlideAnchorUpperBips: 10500,
		TickSpacing:          60,
		FeeTier:              3000,
		LoanFeeBips:          57,
		IncludeStaked:        true,
	}
}

// Validate rejects parameter sets the engine cannot run with.
func (p ProtocolParameters) Validate() error {
	if p.FloorPercentage == nil || p.AnchorPercentage == nil || p.ShiftRatio == nil || p.SlideRatio == nil {
		return fmt.Errorf("%w: missing value", ErrInvalidParameters)
	}
	if p.FloorPercentage.IsZero() || p.AnchorPercentage.IsZero() {
		return fmt.Errorf("%w: floor and anchor percentages must be positive", ErrInvalidParameters)
	}
	if !fixedpoint.Sum(p.FloorPercentage, p.AnchorPercentage).Lt(fixedpoint.One()) {
		return fmt.Errorf("%w: floor + anchor percentage must be below 1", ErrInvalidParameters)
	}
	if p.ShiftRatio.IsZero() || !p.ShiftRatio.Lt(p.SlideRatio) {
		return fmt.Errorf("%w: shift ratio %s must be positive and below slide ratio %s",
			ErrInvalidParameters, fixedpoint.FormatWad(p.ShiftRatio), fixedpoint.FormatWad(p.SlideRatio))
	}
	if p.DiscoveryBips <= fixedpoint.BipsDenominator {
		return fmt.Errorf("%w: discovery bips %d must exceed %d", ErrInvalidParameters, p.DiscoveryBips, fixedpoint.BipsDenominator)
	}
	if p.AnchorUpperBips <= fixedpoint.BipsDenominator || p.SlideAnchorUpperBips <= fixedpoint.BipsDenominator {
		return fmt.Errorf("%w: anchor upper bips must exceed %d", ErrInvalidParameters, fixedpoint.BipsDenominator)
	}
	if p.TickSpacing <= 0 {
		return fmt.Errorf("%w: tick spacing %d", ErrInvalidParameters, p.TickSpacing)
	}
	return nil
}
