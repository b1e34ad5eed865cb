package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// VaultReader reads the loan, fee and staking views of a deployed vault.
type VaultReader struct {
	caller  Caller
	address common.Address
	token0  *Token
}

// NewVaultReader binds the vault at address. token0 is used to read the
// staking contract's balance.
func NewVaultReader(caller Caller, address common.Address, token0 *Token) *VaultReader {
	return &VaultReader{caller: caller, address: address, token0: token0}
}

func (v *VaultReader) call(ctx context.Context, method string) ([]interface{}, error) {
	parsed, err := VaultABI()
	if err != nil {
		return nil, fmt.Errorf("parse vault abi: %w", err)
	}
	return Call(ctx, v.caller, v.address, parsed, method)
}

// CollateralAmount returns token0 held as loan collateral.
func (v *VaultReader) CollateralAmount(ctx context.Context) (*uint256.Int, error) {
	values, err := v.call(ctx, "getCollateralAmount")
	if err != nil {
		return nil, err
	}
	return AsUint256(values[0])
}

// AccumulatedFees returns fees earned but not yet claimed.
func (v *VaultReader) AccumulatedFees(ctx context.Context) (*uint256.Int, *uint256.Int, error) {
	values, err := v.call(ctx, "getAccumulatedFees")
	if err != nil {
		return nil, nil, err
	}
	if len(values) < 2 {
		return nil, nil, fmt.Errorf("getAccumulatedFees returned %d values", len(values))
	}
	fees0, err := AsUint256(values[0])
	if err != nil {
		return nil, nil, fmt.Errorf("fees0: %w", err)
	}
	fees1, err := AsUint256(values[1])
	if err != nil {
		return nil, nil, fmt.Errorf("fees1: %w", err)
	}
	return fees0, fees1, nil
}

// StakingContract returns the staking contract, or false when none is set.
func (v *VaultReader) StakingContract(ctx context.Context) (common.Address, bool, error) {
	values, err := v.call(ctx, "getStakingContract")
	if err != nil {
		return common.Address{}, false, err
	}
	addr, err := AsAddress(values[0])
	if err != nil {
		return common.Address{}, false, err
	}
	return addr, addr != (common.Address{}), nil
}

// StakedBalance returns token0 held by the staking contract, zero when none is set.
func (v *VaultReader) StakedBalance(ctx context.Context) (*uint256.Int, error) {
	staking, ok, err := v.StakingContract(ctx)
	if err != nil || !ok {
		return new(uint256.Int), err
	}
	return v.token0.BalanceOf(ctx, staking)
}
