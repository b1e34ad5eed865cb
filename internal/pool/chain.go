package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"floorVault/internal/chain"
	"floorVault/internal/fixedpoint"
)

// ErrForeignOwner is returned when a batch targets positions the vault does not own.
var ErrForeignOwner = errors.New("pool: batch owner is not the vault")

// Sender submits a transaction and waits for its receipt.
type Sender interface {
	Send(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error)
}

// ChainPool reads a deployed V3 pool and applies instruction batches through
// one multicall transaction to the vault contract that owns the positions.
type ChainPool struct {
	caller chain.Caller
	sender Sender
	pool   common.Address
	vault  common.Address
	logger *zap.Logger
}

// NewChainPool binds pool and vault. sender may be nil for read-only use.
func NewChainPool(caller chain.Caller, sender Sender, pool, vault common.Address, logger *zap.Logger) *ChainPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainPool{caller: caller, sender: sender, pool: pool, vault: vault, logger: logger}
}

// Slot0 reads the pool's current sqrt price and tick.
func (p *ChainPool) Slot0(ctx context.Context) (Slot0, error) {
	parsed, err := chain.PoolABI()
	if err != nil {
		return Slot0{}, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := chain.Call(ctx, p.caller, p.pool, parsed, "slot0")
	if err != nil {
		return Slot0{}, err
	}
	if len(values) < 2 {
		return Slot0{}, fmt.Errorf("slot0 returned %d values", len(values))
	}
	sqrt, err := chain.AsUint256(values[0])
	if err != nil {
		return Slot0{}, fmt.Errorf("sqrtPriceX96: %w", err)
	}
	tick, err := chain.AsInt24(values[1])
	if err != nil {
		return Slot0{}, fmt.Errorf("tick: %w", err)
	}
	return Slot0{SqrtPriceX96: sqrt, Tick: tick}, nil
}

// PositionKey is keccak256(abi.encodePacked(owner, int24 lower, int24 upper)).
func PositionKey(owner common.Address, lower, upper int32) common.Hash {
	buf := make([]byte, 0, common.AddressLength+6)
	buf = append(buf, owner.Bytes()...)
	buf = appendInt24(buf, lower)
	buf = appendInt24(buf, upper)
	return crypto.Keccak256Hash(buf)
}

func appendInt24(buf []byte, v int32) []byte {
	u := uint32(v)
	return append(buf, byte(u>>16), byte(u>>8), byte(u))
}

// PositionLiquidity reads the liquidity of owner's position in [lower, upper].
func (p *ChainPool) PositionLiquidity(ctx context.Context, owner common.Address, lower, upper int32) (*uint256.Int, error) {
	parsed, err := chain.PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := chain.Call(ctx, p.caller, p.pool, parsed, "positions", PositionKey(owner, lower, upper))
	if err != nil {
		return nil, err
	}
	return chain.AsUint256(values[0])
}

// EncodeBatch packs the batch as vault calls wrapped in one multicall.
func EncodeBatch(batch []Instruction) ([]byte, error) {
	parsed, err := chain.VaultABI()
	if err != nil {
		return nil, fmt.Errorf("parse vault abi: %w", err)
	}
	calls := make([][]byte, 0, len(batch))
	for _, ins := range batch {
		call, err := encodeInstruction(parsed, ins)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", ins, err)
		}
		calls = append(calls, call)
	}
	return parsed.Pack("multicall", calls)
}

func encodeInstruction(parsed abi.ABI, ins Instruction) ([]byte, error) {
	lower := big.NewInt(int64(ins.LowerTick))
	upper := big.NewInt(int64(ins.UpperTick))
	switch ins.Op {
	case OpMint:
		return parsed.Pack("mintLiquidity", lower, upper, fixedpoint.OrZero(ins.Liquidity).ToBig())
	case OpBurn:
		return parsed.Pack("burnLiquidity", lower, upper, fixedpoint.OrZero(ins.Liquidity).ToBig())
	case OpCollect:
		return parsed.Pack("collectLiquidity", lower, upper)
	default:
		return nil, fmt.Errorf("unknown op %s", ins.Op)
	}
}

// Apply sends the batch as one multicall transaction from the keeper to the
// vault. The transaction reverts as a whole, so the batch is atomic.
func (p *ChainPool) Apply(ctx context.Context, owner common.Address, batch []Instruction) error {
	if owner != p.vault {
		return fmt.Errorf("%w: %s", ErrForeignOwner, owner.Hex())
	}
	if len(batch) == 0 {
		return nil
	}
	if p.sender == nil {
		return errors.New("pool: chain pool is read-only")
	}
	data, err := EncodeBatch(batch)
	if err != nil {
		return err
	}
	receipt, err := p.sender.Send(ctx, p.vault, data)
	if errors.Is(err, chain.ErrTransactionPending) {
		return fmt.Errorf("multicall: %w: %w", ErrBatchPending, err)
	}
	if err != nil {
		return fmt.Errorf("multicall: %w", err)
	}
	p.logger.Info("batch applied",
		zap.String("tx", receipt.TxHash.Hex()),
		zap.Int("instructions", len(batch)),
		zap.Uint64("gas_used", receipt.GasUsed),
	)

	// The transaction is mined either way; a mismatch is reconciled by the
	// next snapshot reading positions back from the pool.
	changes, err := DecodeLiquidityChanges(p.pool, receipt.Logs)
	if err != nil {
		p.logger.Warn("decode receipt logs failed", zap.String("tx", receipt.TxHash.Hex()), zap.Error(err))
		return nil
	}
	if err := MatchBatch(p.vault, batch, changes); err != nil {
		p.logger.Warn("receipt mismatch", zap.String("tx", receipt.TxHash.Hex()), zap.Int("changes", len(changes)), zap.Error(err))
	}
	return nil
}
