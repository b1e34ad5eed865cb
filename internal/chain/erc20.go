package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token reads an ERC20 contract.
type Token struct {
	caller  Caller
	address common.Address
}

// NewToken binds an ERC20 at address.
func NewToken(caller Caller, address common.Address) *Token {
	return &Token{caller: caller, address: address}
}

// Address returns the token contract address.
func (t *Token) Address() common.Address { return t.address }

// TotalSupply returns the token's total supply.
func (t *Token) TotalSupply(ctx context.Context) (*uint256.Int, error) {
	return t.uintCall(ctx, "totalSupply")
}

// BalanceOf returns account's balance.
func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error) {
	return t.uintCall(ctx, "balanceOf", account)
}

func (t *Token) uintCall(ctx context.Context, method string, args ...interface{}) (*uint256.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := Call(ctx, t.caller, t.address, parsed, method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", t.address.Hex(), method, err)
	}
	return AsUint256(values[0])
}

// Ledger reads supply and balances of the vault's token pair.
type Ledger struct {
	Token0 *Token
	Token1 *Token
}

// NewLedger binds both tokens of the pair.
func NewLedger(caller Caller, token0, token1 common.Address) *Ledger {
	return &Ledger{Token0: NewToken(caller, token0), Token1: NewToken(caller, token1)}
}

// TotalSupply returns token0's total supply.
func (l *Ledger) TotalSupply(ctx context.Context) (*uint256.Int, error) {
	return l.Token0.TotalSupply(ctx)
}

// Balance0 returns account's token0 balance.
func (l *Ledger) Balance0(ctx context.Context, account common.Address) (*uint256.Int, error) {
	return l.Token0.BalanceOf(ctx, account)
}

// Balance1 returns account's token1 balance.
func (l *Ledger) Balance1(ctx context.Context, account common.Address) (*uint256.Int, error) {
	return l.Token1.BalanceOf(ctx, account)
}
