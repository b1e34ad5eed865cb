package model

import "errors"

// Invariant violations. These abort the whole operation.
var (
	ErrInsolvency    = errors.New("insolvency invariant violated")
	ErrTierOrdering  = errors.New("tier ordering violated")
	ErrFloorDecrease = errors.New("floor would decrease")
)

// Precondition errors.
var (
	ErrNoLiquidity          = errors.New("position has no liquidity")
	ErrZeroAddress          = errors.New("zero address")
	ErrZeroAmount           = errors.New("amount must be greater than zero")
	ErrInvalidThresholds    = errors.New("thresholds must be strictly increasing")
	ErrInvalidParameters    = errors.New("invalid protocol parameters")
	ErrInsufficientReserves = errors.New("insufficient reserves")
)
