package vault

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorVault/internal/fixedpoint"
)

// Ledger reads token0 supply and the vault's token balances.
type Ledger interface {
	TotalSupply(ctx context.Context) (*uint256.Int, error)
	Balance0(ctx context.Context, account common.Address) (*uint256.Int, error)
	Balance1(ctx context.Context, account common.Address) (*uint256.Int, error)
}

// LoanBook reports token0 locked as loan collateral.
type LoanBook interface {
	CollateralAmount(ctx context.Context) (*uint256.Int, error)
}

// FeeSource reports fees accrued but not yet claimed.
type FeeSource interface {
	AccumulatedFees(ctx context.Context) (*uint256.Int, *uint256.Int, error)
}

// StakingSource reports the staking contract and the token0 it holds.
type StakingSource interface {
	StakingContract(ctx context.Context) (common.Address, bool, error)
	StakedBalance(ctx context.Context) (*uint256.Int, error)
}

// Static is a fixed-value LoanBook, FeeSource and StakingSource.
type Static struct {
	Collateral *uint256.Int
	Fees0      *uint256.Int
	Fees1      *uint256.Int
	Staking    common.Address
	Staked     *uint256.Int
}

func (s Static) CollateralAmount(context.Context) (*uint256.Int, error) {
	return new(uint256.Int).Set(fixedpoint.OrZero(s.Collateral)), nil
}

func (s Static) AccumulatedFees(context.Context) (*uint256.Int, *uint256.Int, error) {
	return new(uint256.Int).Set(fixedpoint.OrZero(s.Fees0)), new(uint256.Int).Set(fixedpoint.OrZero(s.Fees1)), nil
}

func (s Static) StakingContract(context.Context) (common.Address, bool, error) {
	return s.Staking, s.Staking != (common.Address{}), nil
}

func (s Static) StakedBalance(context.Context) (*uint256.Int, error) {
	if s.Staking == (common.Address{}) {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(fixedpoint.OrZero(s.Staked)), nil
}
