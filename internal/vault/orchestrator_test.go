package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorVault/internal/events"
	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
	"floorVault/internal/pool"
	"floorVault/internal/rebalance"
	"floorVault/internal/registry"
)

var (
	vaultAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	admin     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	keeper    = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type harness struct {
	pool     *pool.MemoryPool
	recorder *events.Recorder
	vault    *Orchestrator
}

func newHarness(t *testing.T, wrap func(*pool.MemoryPool) pool.Pool) harness {
	t.Helper()
	mp, err := pool.NewMemoryPool(0)
	if err != nil {
		t.Fatalf("memory pool: %v", err)
	}
	mp.SetTotalSupply(fixedpoint.Units(1_000_000))
	mp.Credit(vaultAddr, fixedpoint.Units(900_000), fixedpoint.Units(80_000))

	engine, err := rebalance.NewEngine(model.DefaultParameters(), nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	var p pool.Pool = mp
	if wrap != nil {
		p = wrap(mp)
	}
	rec := events.NewRecorder(0)
	o, err := New(vaultAddr, []common.Address{admin}, Deps{
		Pool:   p,
		Ledger: mp,
		Engine: engine,
		Sink:   rec,
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return harness{pool: mp, recorder: rec, vault: o}
}

func (h harness) initialize(t *testing.T) {
	t.Helper()
	floorPrice, _ := fixedpoint.ParseWad("0.5")
	if _, err := h.vault.Initialize(context.Background(), admin, floorPrice); err != nil {
		t.Fatalf("initialize: %v", err)
	}
}

func TestNewRejectsZeroAddresses(t *testing.T) {
	mp, _ := pool.NewMemoryPool(0)
	engine, _ := rebalance.NewEngine(model.DefaultParameters(), nil)
	deps := Deps{Pool: mp, Ledger: mp, Engine: engine}

	if _, err := New(common.Address{}, nil, deps); !errors.Is(err, model.ErrZeroAddress) {
		t.Fatalf("expected zero address error, got %v", err)
	}
	if _, err := New(vaultAddr, []common.Address{{}}, deps); !errors.Is(err, model.ErrZeroAddress) {
		t.Fatalf("expected zero authority error, got %v", err)
	}
	if _, err := New(vaultAddr, nil, Deps{Pool: mp}); !errors.Is(err, model.ErrInvalidParameters) {
		t.Fatalf("expected missing deps error, got %v", err)
	}
}

func TestReadsBeforeInitialize(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.vault.Positions(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("positions: expected not initialized, got %v", err)
	}
	if _, err := h.vault.VaultInfo(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("info: expected not initialized, got %v", err)
	}
	if _, err := h.vault.Shift(ctx, keeper); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("shift: expected not initialized, got %v", err)
	}
}

func TestInitializeDeploysPositions(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)
	ctx := context.Background()

	ps, err := h.vault.Positions(ctx)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	for _, tier := range model.Tiers {
		p := ps.Get(tier)
		onPool, err := h.pool.PositionLiquidity(ctx, vaultAddr, p.LowerTick, p.UpperTick)
		if err != nil {
			t.Fatalf("pool liquidity: %v", err)
		}
		if p.IsEmpty() || !onPool.Eq(p.Liquidity) {
			t.Fatalf("%s: registry %s pool %s", tier, p.Liquidity.Dec(), onPool.Dec())
		}
	}

	imv, err := h.vault.IntrinsicMinimumValue(ctx)
	if err != nil {
		t.Fatalf("imv: %v", err)
	}
	want, _ := fixedpoint.PriceAtTick(ps.Floor().LowerTick)
	if !imv.Eq(want) {
		t.Fatalf("imv %s want %s", imv.Dec(), want.Dec())
	}

	floorPrice, _ := fixedpoint.ParseWad("0.5")
	if _, err := h.vault.Initialize(ctx, admin, floorPrice); !errors.Is(err, model.ErrInvalidParameters) {
		t.Fatalf("second initialize: expected invalid parameters, got %v", err)
	}
	if n := len(h.recorder.Events()); n != 1 {
		t.Fatalf("genesis events: %d", n)
	}
}

func TestShiftRaisesFloorAndIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)
	ctx := context.Background()

	before, _ := h.vault.IntrinsicMinimumValue(ctx)
	if err := h.pool.SetTick(2166); err != nil {
		t.Fatalf("set tick: %v", err)
	}

	res, err := h.vault.Shift(ctx, keeper)
	if err != nil {
		t.Fatalf("shift: %v", err)
	}
	if res.Plan.Noop || res.OperationID == "" {
		t.Fatalf("shift did nothing: %+v", res.Plan)
	}
	after, _ := h.vault.IntrinsicMinimumValue(ctx)
	if !after.Gt(before) {
		t.Fatalf("imv not raised: %s -> %s", before.Dec(), after.Dec())
	}
	params := h.vault.Engine().Params()
	if res.Info.LiquidityRatio.Lt(params.ShiftRatio) || !res.Info.Solvent() {
		t.Fatalf("post-shift ratio %s solvent=%v", fixedpoint.FormatWad(res.Info.LiquidityRatio), res.Info.Solvent())
	}

	var floorEvents, rebalanceEvents int
	for _, ev := range h.recorder.Events() {
		if ev.OperationID != res.OperationID {
			continue
		}
		if ev.Log == nil {
			t.Fatalf("%s missing log", ev.Name)
		}
		switch ev.Name {
		case model.EventFloorUpdated:
			floorEvents++
			if ev.FloorUpdated.NewTick <= ev.FloorUpdated.OldTick {
				t.Fatalf("floor event not a raise: %+v", ev.FloorUpdated)
			}
		case model.EventRebalanceExecuted:
			rebalanceEvents++
		}
	}
	if floorEvents != 1 || rebalanceEvents != 1 {
		t.Fatalf("events: floor=%d rebalance=%d", floorEvents, rebalanceEvents)
	}

	again, err := h.vault.Shift(ctx, keeper)
	if err != nil {
		t.Fatalf("second shift: %v", err)
	}
	if !again.Plan.Noop {
		t.Fatalf("second shift should be a no-op, got %d instructions", len(again.Plan.Instructions))
	}
}

func TestPrivilegedOperationsRequireAuthority(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)
	ctx := context.Background()
	amount := fixedpoint.Units(100)

	if _, err := h.vault.BumpFloor(ctx, keeper, amount); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bump floor: expected unauthorized, got %v", err)
	}
	if _, err := h.vault.BumpRewards(ctx, keeper, amount); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bump rewards: expected unauthorized, got %v", err)
	}
	if _, err := h.vault.Shift(ctx, common.Address{}); !errors.Is(err, model.ErrZeroAddress) {
		t.Fatalf("shift: expected zero address, got %v", err)
	}
	if _, err := h.vault.Slide(ctx, keeper); err != nil {
		t.Fatalf("slide by anyone: %v", err)
	}
	if _, err := h.vault.BumpRewards(ctx, admin, amount); err != nil {
		t.Fatalf("bump rewards by admin: %v", err)
	}
}

// blockingPool holds Apply until released.
type blockingPool struct {
	*pool.MemoryPool
	entered chan struct{}
	release chan struct{}
}

func (b *blockingPool) Apply(ctx context.Context, owner common.Address, batch []pool.Instruction) error {
	close(b.entered)
	<-b.release
	return b.MemoryPool.Apply(ctx, owner, batch)
}

func TestConcurrentMutationIsRejected(t *testing.T) {
	var bp *blockingPool
	h := newHarness(t, nil)
	h.initialize(t)
	bp = &blockingPool{MemoryPool: h.pool, entered: make(chan struct{}), release: make(chan struct{})}
	h.vault.pool = bp
	ctx := context.Background()

	if err := h.pool.SetTick(2166); err != nil {
		t.Fatalf("set tick: %v", err)
	}

	var (
		wg       sync.WaitGroup
		shiftErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, shiftErr = h.vault.Shift(ctx, keeper)
	}()
	<-bp.entered

	if _, err := h.vault.Slide(ctx, keeper); !errors.Is(err, ErrReentrant) {
		t.Fatalf("expected reentrant error, got %v", err)
	}
	if _, err := h.vault.VaultInfo(ctx); err != nil {
		t.Fatalf("reads must not block: %v", err)
	}

	close(bp.release)
	wg.Wait()
	if shiftErr != nil {
		t.Fatalf("shift: %v", shiftErr)
	}
}

// drainingPool reports no liquidity on chain after a batch, as if the
// positions were drained between apply and the post-check.
type drainingPool struct {
	*pool.MemoryPool
	drained bool
}

func (d *drainingPool) Apply(ctx context.Context, owner common.Address, batch []pool.Instruction) error {
	if err := d.MemoryPool.Apply(ctx, owner, batch); err != nil {
		return err
	}
	d.drained = true
	return nil
}

func (d *drainingPool) PositionLiquidity(ctx context.Context, owner common.Address, lower, upper int32) (*uint256.Int, error) {
	if d.drained {
		return new(uint256.Int), nil
	}
	return d.MemoryPool.PositionLiquidity(ctx, owner, lower, upper)
}

func (d *drainingPool) RevertLast(ctx context.Context) error {
	d.drained = false
	return d.MemoryPool.RevertLast(ctx)
}

func TestFailedPostCheckRollsBack(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)
	ctx := context.Background()
	dp := &drainingPool{MemoryPool: h.pool}
	h.vault.pool = dp

	before, err := h.vault.Positions(ctx)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if err := h.pool.SetTick(2166); err != nil {
		t.Fatalf("set tick: %v", err)
	}
	eventsBefore := len(h.recorder.Events())

	if _, err := h.vault.Shift(ctx, keeper); !errors.Is(err, model.ErrInsolvency) {
		t.Fatalf("expected insolvency, got %v", err)
	}

	after, err := h.vault.Positions(ctx)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	for _, tier := range model.Tiers {
		if !before.Get(tier).SameRange(after.Get(tier)) || !before.Get(tier).Liquidity.Eq(after.Get(tier).Liquidity) {
			t.Fatalf("%s not restored", tier)
		}
		p := after.Get(tier)
		onPool, _ := h.pool.PositionLiquidity(ctx, vaultAddr, p.LowerTick, p.UpperTick)
		if !onPool.Eq(p.Liquidity) {
			t.Fatalf("%s pool not reverted", tier)
		}
	}
	if len(h.recorder.Events()) != eventsBefore {
		t.Fatalf("failed operation emitted events")
	}
}

// pendingPool broadcasts nothing and reports every batch as unconfirmed.
type pendingPool struct {
	*pool.MemoryPool
}

func (pendingPool) Apply(context.Context, common.Address, []pool.Instruction) error {
	return fmt.Errorf("multicall: %w", pool.ErrBatchPending)
}

func TestUnconfirmedBatchHaltsMutations(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)
	ctx := context.Background()
	h.vault.pool = pendingPool{MemoryPool: h.pool}

	before, err := h.vault.Positions(ctx)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if err := h.pool.SetTick(2166); err != nil {
		t.Fatalf("set tick: %v", err)
	}
	eventsBefore := len(h.recorder.Events())

	if _, err := h.vault.Shift(ctx, keeper); !errors.Is(err, pool.ErrBatchPending) {
		t.Fatalf("expected pending batch, got %v", err)
	}
	if !errors.Is(h.vault.Halted(), pool.ErrBatchPending) {
		t.Fatalf("vault not halted: %v", h.vault.Halted())
	}

	after, err := h.vault.Positions(ctx)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	for _, tier := range model.Tiers {
		if !before.Get(tier).SameRange(after.Get(tier)) || !before.Get(tier).Liquidity.Eq(after.Get(tier).Liquidity) {
			t.Fatalf("%s changed without a confirmed batch", tier)
		}
	}
	if len(h.recorder.Events()) != eventsBefore {
		t.Fatalf("unconfirmed operation emitted events")
	}

	// A retry must not plan a second batch on top of the pending one.
	h.vault.pool = h.pool
	if _, err := h.vault.Shift(ctx, keeper); !errors.Is(err, ErrHalted) {
		t.Fatalf("expected halted, got %v", err)
	}
	if _, err := h.vault.Slide(ctx, keeper); !errors.Is(err, ErrHalted) {
		t.Fatalf("expected halted, got %v", err)
	}
	if _, err := h.vault.VaultInfo(ctx); err != nil {
		t.Fatalf("reads must keep working: %v", err)
	}
}

func TestLoadRestoresPersistedPositions(t *testing.T) {
	h := newHarness(t, nil)
	store := &registry.FileStateStore{Path: t.TempDir() + "/state.json"}
	h.vault.store = store
	h.initialize(t)
	ctx := context.Background()

	engine, _ := rebalance.NewEngine(model.DefaultParameters(), nil)
	fresh, err := New(vaultAddr, nil, Deps{Pool: h.pool, Ledger: h.pool, Engine: engine, Store: store})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ok, err := fresh.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	want, _ := h.vault.Positions(ctx)
	got, err := fresh.Positions(ctx)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if got.Floor().LowerTick != want.Floor().LowerTick || !got.Anchor().Liquidity.Eq(want.Anchor().Liquidity) {
		t.Fatalf("restored %+v want %+v", got, want)
	}
}

func TestCollaboratorReads(t *testing.T) {
	h := newHarness(t, nil)
	staking := common.HexToAddress("0x00000000000000000000000000000000000000c3")
	static := Static{Collateral: fixedpoint.Units(5), Fees0: fixedpoint.Units(1), Fees1: fixedpoint.Units(2), Staking: staking}
	h.vault.loans, h.vault.fees, h.vault.staking = static, static, static
	ctx := context.Background()

	collateral, err := h.vault.CollateralAmount(ctx)
	if err != nil || !collateral.Eq(fixedpoint.Units(5)) {
		t.Fatalf("collateral %v err %v", collateral, err)
	}
	f0, f1, err := h.vault.AccumulatedFees(ctx)
	if err != nil || !f0.Eq(fixedpoint.Units(1)) || !f1.Eq(fixedpoint.Units(2)) {
		t.Fatalf("fees %v %v err %v", f0, f1, err)
	}
	addr, ok, err := h.vault.StakingContract(ctx)
	if err != nil || !ok || addr != staking {
		t.Fatalf("staking %s ok=%v err=%v", addr.Hex(), ok, err)
	}
	if _, err := h.vault.AdjustSupply(ctx, fixedpoint.Zero(), 0); !errors.Is(err, ErrNoSupplyControl) {
		t.Fatalf("expected no supply control, got %v", err)
	}
}
