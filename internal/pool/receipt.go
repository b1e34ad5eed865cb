package pool

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"floorVault/internal/chain"
	"floorVault/internal/fixedpoint"
)

// ErrReceiptMismatch means the mined receipt does not show an instruction's liquidity change.
var ErrReceiptMismatch = errors.New("pool: receipt does not match batch")

// LiquidityChange is a Mint or Burn log emitted by the pool.
type LiquidityChange struct {
	Op        Op
	Owner     common.Address
	LowerTick int32
	UpperTick int32
	Liquidity *uint256.Int
	Amount0   *uint256.Int
	Amount1   *uint256.Int
}

// DecodeLiquidityChanges extracts the Mint and Burn logs of pool from receipt logs.
// Logs from other contracts and other pool events are skipped.
func DecodeLiquidityChanges(pool common.Address, logs []*types.Log) ([]LiquidityChange, error) {
	parsed, err := chain.PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	mint, burn := parsed.Events["Mint"], parsed.Events["Burn"]

	var out []LiquidityChange
	for _, log := range logs {
		if log == nil || log.Address != pool || len(log.Topics) == 0 {
			continue
		}
		var (
			change LiquidityChange
			err    error
		)
		switch log.Topics[0] {
		case mint.ID:
			change, err = decodeChange(mint, OpMint, log)
		case burn.ID:
			change, err = decodeChange(burn, OpBurn, log)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s log %d: %w", log.TxHash.Hex(), log.Index, err)
		}
		out = append(out, change)
	}
	return out, nil
}

func decodeChange(event abi.Event, op Op, log *types.Log) (LiquidityChange, error) {
	indexedArgs := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexedArgs)+1 {
		return LiquidityChange{}, fmt.Errorf("expected %d topics, got %d", len(indexedArgs)+1, len(log.Topics))
	}
	var indexed struct {
		Owner     common.Address
		TickLower *big.Int
		TickUpper *big.Int
	}
	if err := abi.ParseTopics(&indexed, indexedArgs, log.Topics[1:]); err != nil {
		return LiquidityChange{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return LiquidityChange{}, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	// Mint carries the sender ahead of the amounts.
	if op == OpMint {
		if len(values) != 4 {
			return LiquidityChange{}, fmt.Errorf("unexpected mint values: %d", len(values))
		}
		values = values[1:]
	}
	if len(values) != 3 {
		return LiquidityChange{}, fmt.Errorf("unexpected %s values: %d", event.Name, len(values))
	}

	change := LiquidityChange{Op: op, Owner: indexed.Owner}
	if change.LowerTick, err = chain.AsInt24(indexed.TickLower); err != nil {
		return LiquidityChange{}, fmt.Errorf("tickLower: %w", err)
	}
	if change.UpperTick, err = chain.AsInt24(indexed.TickUpper); err != nil {
		return LiquidityChange{}, fmt.Errorf("tickUpper: %w", err)
	}
	if change.Liquidity, err = chain.AsUint256(values[0]); err != nil {
		return LiquidityChange{}, fmt.Errorf("amount: %w", err)
	}
	if change.Amount0, err = chain.AsUint256(values[1]); err != nil {
		return LiquidityChange{}, fmt.Errorf("amount0: %w", err)
	}
	if change.Amount1, err = chain.AsUint256(values[2]); err != nil {
		return LiquidityChange{}, fmt.Errorf("amount1: %w", err)
	}
	return change, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

// MatchBatch checks that every mint and burn with liquidity in batch shows up
// as a change for owner with the same range and amount. Collects are not logged
// as liquidity changes and are ignored.
func MatchBatch(owner common.Address, batch []Instruction, changes []LiquidityChange) error {
	used := make([]bool, len(changes))
	for _, ins := range batch {
		if ins.Op == OpCollect || fixedpoint.OrZero(ins.Liquidity).IsZero() {
			continue
		}
		found := false
		for i, c := range changes {
			if used[i] || c.Op != ins.Op || c.Owner != owner ||
				c.LowerTick != ins.LowerTick || c.UpperTick != ins.UpperTick ||
				!c.Liquidity.Eq(ins.Liquidity) {
				continue
			}
			used[i] = true
			found = true
			break
		}
		if !found {
			return fmt.Errorf("%w: no log for %s", ErrReceiptMismatch, ins)
		}
	}
	return nil
}
