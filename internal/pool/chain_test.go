package pool

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"floorVault/internal/chain"
	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
)

type stubCaller struct {
	out map[string][]byte
	msg ethereum.CallMsg
}

func (s *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	s.msg = msg
	return s.out[string(msg.Data[:4])], nil
}

type stubSender struct {
	to   common.Address
	data []byte
}

func (s *stubSender) Send(_ context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	s.to, s.data = to, data
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func TestPositionKeyMatchesPackedEncoding(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	// -60 as int24 is 0xffffc4, 60 is 0x00003c
	packed := append(owner.Bytes(), 0xff, 0xff, 0xc4, 0x00, 0x00, 0x3c)
	if got, want := PositionKey(owner, -60, 60), crypto.Keccak256Hash(packed); got != want {
		t.Fatalf("key %s want %s", got.Hex(), want.Hex())
	}
}

func TestChainPoolSlot0(t *testing.T) {
	parsed, err := chain.PoolABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	sqrt, _ := fixedpoint.SqrtRatioAtTick(-120)
	out, err := parsed.Methods["slot0"].Outputs.Pack(sqrt.ToBig(), big.NewInt(-120), uint16(0), uint16(1), uint16(1), uint8(0), true)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	caller := &stubCaller{out: map[string][]byte{string(parsed.Methods["slot0"].ID): out}}
	p := NewChainPool(caller, nil, common.HexToAddress("0x01"), common.HexToAddress("0x02"), nil)

	slot, err := p.Slot0(context.Background())
	if err != nil {
		t.Fatalf("slot0: %v", err)
	}
	if slot.Tick != -120 || !slot.SqrtPriceX96.Eq(sqrt) {
		t.Fatalf("slot0 mismatch: %d %s", slot.Tick, slot.SqrtPriceX96.Dec())
	}
}

func TestChainPoolApplySendsMulticall(t *testing.T) {
	vault := common.HexToAddress("0x02")
	sender := &stubSender{}
	p := NewChainPool(&stubCaller{}, sender, common.HexToAddress("0x01"), vault, nil)

	batch := []Instruction{
		{Op: OpBurn, Tier: model.TierAnchor, LowerTick: -60, UpperTick: 600, Liquidity: fixedpoint.Units(1)},
		{Op: OpCollect, Tier: model.TierAnchor, LowerTick: -60, UpperTick: 600},
		{Op: OpMint, Tier: model.TierAnchor, LowerTick: 0, UpperTick: 660, Liquidity: fixedpoint.Units(1)},
	}
	if err := p.Apply(context.Background(), vault, batch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if sender.to != vault {
		t.Fatalf("sent to %s", sender.to.Hex())
	}

	parsed, _ := chain.VaultABI()
	method, err := parsed.MethodById(sender.data[:4])
	if err != nil || method.Name != "multicall" {
		t.Fatalf("method: %v %v", method, err)
	}
	args, err := method.Inputs.Unpack(sender.data[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	calls := args[0].([][]byte)
	if len(calls) != 3 {
		t.Fatalf("calls: %d", len(calls))
	}
	for i, name := range []string{"burnLiquidity", "collectLiquidity", "mintLiquidity"} {
		m, err := parsed.MethodById(calls[i][:4])
		if err != nil || m.Name != name {
			t.Fatalf("call %d: %v %v", i, m, err)
		}
	}

	if err := p.Apply(context.Background(), common.HexToAddress("0x03"), batch); !errors.Is(err, ErrForeignOwner) {
		t.Fatalf("expected foreign owner, got %v", err)
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func topicFromInt24(value int32) common.Hash {
	bigVal := big.NewInt(int64(value))
	if value < 0 {
		bigVal = new(big.Int).Add(bigVal, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return common.BigToHash(bigVal)
}

func TestDecodeLiquidityChanges(t *testing.T) {
	parsed, err := chain.PoolABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	pool := common.HexToAddress("0x01")
	vault := common.HexToAddress("0x02")

	burnData, err := parsed.Events["Burn"].Inputs.NonIndexed().Pack(big.NewInt(5000), big.NewInt(10), big.NewInt(20))
	if err != nil {
		t.Fatalf("pack burn: %v", err)
	}
	mintData, err := parsed.Events["Mint"].Inputs.NonIndexed().Pack(vault, big.NewInt(7000), big.NewInt(30), big.NewInt(0))
	if err != nil {
		t.Fatalf("pack mint: %v", err)
	}
	logs := []*types.Log{
		{Address: pool, Topics: []common.Hash{parsed.Events["Burn"].ID, topicFromAddress(vault), topicFromInt24(-120), topicFromInt24(600)}, Data: burnData},
		// Same event from another pool is ignored.
		{Address: common.HexToAddress("0x09"), Topics: []common.Hash{parsed.Events["Burn"].ID, topicFromAddress(vault), topicFromInt24(-120), topicFromInt24(600)}, Data: burnData},
		{Address: pool, Topics: []common.Hash{parsed.Events["Mint"].ID, topicFromAddress(vault), topicFromInt24(0), topicFromInt24(660)}, Data: mintData},
	}

	changes, err := DecodeLiquidityChanges(pool, logs)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("changes: %d", len(changes))
	}
	burn, mint := changes[0], changes[1]
	if burn.Op != OpBurn || burn.Owner != vault || burn.LowerTick != -120 || burn.UpperTick != 600 || burn.Liquidity.Uint64() != 5000 || burn.Amount1.Uint64() != 20 {
		t.Fatalf("burn mismatch: %+v", burn)
	}
	if mint.Op != OpMint || mint.LowerTick != 0 || mint.UpperTick != 660 || mint.Liquidity.Uint64() != 7000 || mint.Amount0.Uint64() != 30 {
		t.Fatalf("mint mismatch: %+v", mint)
	}

	batch := []Instruction{
		{Op: OpBurn, Tier: model.TierAnchor, LowerTick: -120, UpperTick: 600, Liquidity: uint256.NewInt(5000)},
		{Op: OpCollect, Tier: model.TierAnchor, LowerTick: -120, UpperTick: 600},
		{Op: OpMint, Tier: model.TierAnchor, LowerTick: 0, UpperTick: 660, Liquidity: uint256.NewInt(7000)},
	}
	if err := MatchBatch(vault, batch, changes); err != nil {
		t.Fatalf("match: %v", err)
	}
	batch[2].Liquidity = uint256.NewInt(7001)
	if err := MatchBatch(vault, batch, changes); !errors.Is(err, ErrReceiptMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}
