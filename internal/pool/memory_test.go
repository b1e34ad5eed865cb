package pool

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
)

var testOwner = common.HexToAddress("0x1111111111111111111111111111111111111111")

func TestMemoryPoolMintBurnCollect(t *testing.T) {
	ctx := context.Background()
	p, err := NewMemoryPool(0)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	p.Credit(testOwner, fixedpoint.Units(100), fixedpoint.Units(100))

	liquidity := fixedpoint.Units(500)
	batch := []Instruction{{Op: OpMint, Tier: model.TierAnchor, LowerTick: -600, UpperTick: 600, Liquidity: liquidity}}
	if err := p.Apply(ctx, testOwner, batch); err != nil {
		t.Fatalf("mint: %v", err)
	}

	got, _ := p.PositionLiquidity(ctx, testOwner, -600, 600)
	if !got.Eq(liquidity) {
		t.Fatalf("liquidity mismatch: %s", got.Dec())
	}
	bal0, _ := p.Balance0(ctx, testOwner)
	if !bal0.Lt(fixedpoint.Units(100)) {
		t.Fatalf("mint did not debit token0: %s", bal0.Dec())
	}

	batch = []Instruction{
		{Op: OpBurn, Tier: model.TierAnchor, LowerTick: -600, UpperTick: 600, Liquidity: liquidity},
		{Op: OpCollect, Tier: model.TierAnchor, LowerTick: -600, UpperTick: 600},
	}
	if err := p.Apply(ctx, testOwner, batch); err != nil {
		t.Fatalf("burn: %v", err)
	}
	got, _ = p.PositionLiquidity(ctx, testOwner, -600, 600)
	if !got.IsZero() {
		t.Fatalf("expected empty position, got %s", got.Dec())
	}
	bal0, _ = p.Balance0(ctx, testOwner)
	if fixedpoint.SubClamp(fixedpoint.Units(100), bal0).Gt(uint256.NewInt(2)) {
		t.Fatalf("collect did not return token0: %s", bal0.Dec())
	}
}

func TestMemoryPoolApplyIsAtomic(t *testing.T) {
	ctx := context.Background()
	p, err := NewMemoryPool(0)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	p.Credit(testOwner, fixedpoint.Units(10), fixedpoint.Units(10))

	batch := []Instruction{
		{Op: OpMint, Tier: model.TierFloor, LowerTick: -1200, UpperTick: -600, Liquidity: fixedpoint.Units(1)},
		{Op: OpBurn, Tier: model.TierAnchor, LowerTick: -600, UpperTick: 600, Liquidity: fixedpoint.Units(1)},
	}
	err = p.Apply(ctx, testOwner, batch)
	if !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
	got, _ := p.PositionLiquidity(ctx, testOwner, -1200, -600)
	if !got.IsZero() {
		t.Fatalf("failed batch left a partial mint: %s", got.Dec())
	}
	bal1, _ := p.Balance1(ctx, testOwner)
	if !bal1.Eq(fixedpoint.Units(10)) {
		t.Fatalf("failed batch debited balance: %s", bal1.Dec())
	}
}

func TestMemoryPoolRevertLast(t *testing.T) {
	ctx := context.Background()
	p, err := NewMemoryPool(0)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	if err := p.RevertLast(ctx); !errors.Is(err, ErrNothingToRevert) {
		t.Fatalf("expected nothing to revert, got %v", err)
	}
	p.Credit(testOwner, nil, fixedpoint.Units(10))

	batch := []Instruction{{Op: OpMint, Tier: model.TierFloor, LowerTick: -1200, UpperTick: -600, Liquidity: fixedpoint.Units(1)}}
	if err := p.Apply(ctx, testOwner, batch); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := p.SetTick(120); err != nil {
		t.Fatalf("set tick: %v", err)
	}
	if err := p.RevertLast(ctx); err != nil {
		t.Fatalf("revert: %v", err)
	}
	got, _ := p.PositionLiquidity(ctx, testOwner, -1200, -600)
	if !got.IsZero() {
		t.Fatalf("revert kept liquidity: %s", got.Dec())
	}
	slot, _ := p.Slot0(ctx)
	if slot.Tick != 120 {
		t.Fatalf("revert moved price: %d", slot.Tick)
	}
}

func TestMemoryPoolInsufficientBalance(t *testing.T) {
	p, err := NewMemoryPool(0)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	batch := []Instruction{{Op: OpMint, Tier: model.TierFloor, LowerTick: -1200, UpperTick: -600, Liquidity: fixedpoint.Units(1)}}
	if err := p.Apply(context.Background(), testOwner, batch); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}
