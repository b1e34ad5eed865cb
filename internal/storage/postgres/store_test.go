package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"floorVault/internal/events"
	"floorVault/internal/fixedpoint"
	"floorVault/internal/keeper"
	"floorVault/internal/model"
	"floorVault/internal/registry"
)

var (
	_ registry.StateStore = (*Store)(nil)
	_ events.Sink         = (*Store)(nil)
	_ keeper.StateStore   = (*Store)(nil)
)

// newTestStore connects to KEEPER_TEST_PG_DSN under a fresh vault key.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("KEEPER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("KEEPER_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn, "0xtest-"+uuid.NewString())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func testPositions(t *testing.T) model.Positions {
	t.Helper()
	var ps model.Positions
	ranges := [3][2]int32{{-6960, -6900}, {-6900, 540}, {540, 4620}}
	for i, r := range ranges {
		p, err := model.NewPosition(r[0], r[1], fixedpoint.Units(uint64(1000*(i+1))), 60)
		if err != nil {
			t.Fatalf("position: %v", err)
		}
		ps[i] = p
	}
	return ps
}

func TestNewStoreRequiresDSNAndVault(t *testing.T) {
	if _, err := NewStore(context.Background(), "", "0x1"); err == nil {
		t.Fatalf("expected dsn error")
	}
	if _, err := NewStore(context.Background(), "postgres://localhost/db", ""); err == nil {
		t.Fatalf("expected vault error")
	}
}

func TestPositionsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("empty load: ok=%v err=%v", ok, err)
	}

	want := registry.State{Version: 3, Positions: testPositions(t)}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Version != want.Version {
		t.Fatalf("version %d want %d", got.Version, want.Version)
	}
	for _, tier := range model.Tiers {
		g, w := got.Positions.Get(tier), want.Positions.Get(tier)
		if !g.SameRange(w) || !g.Liquidity.Eq(w.Liquidity) || !g.Price.Eq(w.Price) {
			t.Fatalf("%s: %+v != %+v", tier, g, w)
		}
	}
}

func TestEventsAreIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev := model.VaultEvent{
		OperationID: uuid.NewString(),
		Vault:       store.vault,
		Name:        model.EventRebalanceExecuted,
		Caller:      "0xb2",
		EmittedAt:   time.Now().UTC(),
		RebalanceExecuted: &model.RebalanceExecuted{
			Kind:        model.OpShift,
			RatioBefore: fixedpoint.Units(1),
			RatioAfter:  fixedpoint.Units(1),
		},
	}
	for i := 0; i < 2; i++ {
		if err := store.PutEvents(ctx, []model.VaultEvent{ev}); err != nil {
			t.Fatalf("put events (%d): %v", i, err)
		}
	}

	var count int
	if err := store.pool.QueryRow(ctx, `SELECT count(*) FROM vault_events WHERE operation_id=$1`, ev.OperationID).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("events stored %d times", count)
	}
}

func TestKeeperStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := model.KeeperState{
		LastAdjustmentAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		LastOperation:    model.OpSlide,
		LastTick:         -1283,
	}
	if err := store.SaveKeeperState(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.LoadKeeperState(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if !got.LastAdjustmentAt.Equal(want.LastAdjustmentAt) || got.LastOperation != want.LastOperation || got.LastTick != want.LastTick {
		t.Fatalf("state %+v want %+v", got, want)
	}
}
