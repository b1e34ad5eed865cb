package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
)

var (
	ErrInsufficientBalance   = errors.New("pool: insufficient owner balance")
	ErrInsufficientLiquidity = errors.New("pool: insufficient position liquidity")
	ErrNothingToRevert       = errors.New("pool: nothing to revert")

	// ErrBatchPending means the batch was submitted but its outcome is unknown.
	ErrBatchPending = errors.New("pool: batch submitted but not confirmed")
)

// Op is a liquidity instruction kind.
type Op uint8

const (
	OpMint Op = iota + 1
	OpBurn
	OpCollect
)

func (o Op) String() string {
	switch o {
	case OpMint:
		return "mint"
	case OpBurn:
		return "burn"
	case OpCollect:
		return "collect"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Instruction mints, burns or collects one tick range.
type Instruction struct {
	Op        Op           `json:"op"`
	Tier      model.Tier   `json:"tier"`
	LowerTick int32        `json:"lower_tick"`
	UpperTick int32        `json:"upper_tick"`
	Liquidity *uint256.Int `json:"liquidity,omitempty"`
}

func (i Instruction) String() string {
	if i.Op == OpCollect {
		return fmt.Sprintf("%s %s [%d,%d]", i.Op, i.Tier, i.LowerTick, i.UpperTick)
	}
	return fmt.Sprintf("%s %s [%d,%d] L=%s", i.Op, i.Tier, i.LowerTick, i.UpperTick, fixedpoint.OrZero(i.Liquidity).Dec())
}

// Slot0 is the pool's current price state.
type Slot0 struct {
	SqrtPriceX96 *uint256.Int
	Tick         int32
}

// Pool is the concentrated-liquidity AMM the vault owns positions in.
type Pool interface {
	Slot0(ctx context.Context) (Slot0, error)
	PositionLiquidity(ctx context.Context, owner common.Address, lower, upper int32) (*uint256.Int, error)
	// Apply executes the batch atomically: either every instruction lands or none does.
	Apply(ctx context.Context, owner common.Address, batch []Instruction) error
}

// Reverter is implemented by pools that can undo their last applied batch.
type Reverter interface {
	RevertLast(ctx context.Context) error
}
