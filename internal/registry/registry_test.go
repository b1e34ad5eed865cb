package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"

	"floorVault/internal/model"
)

func testPositions(t *testing.T) model.Positions {
	t.Helper()
	var ps model.Positions
	ranges := [3][2]int32{{-600, -540}, {-540, 600}, {600, 4680}}
	for i, r := range ranges {
		p, err := model.NewPosition(r[0], r[1], uint256.NewInt(uint64(1000*(i+1))), 60)
		if err != nil {
			t.Fatalf("position: %v", err)
		}
		ps[i] = p
	}
	return ps
}

func TestRegistryCommit(t *testing.T) {
	r := New()
	if _, err := r.Positions(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}

	ps := testPositions(t)
	version, err := r.Commit(ps)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if version != 1 {
		t.Fatalf("version: %d", version)
	}

	got, err := r.Positions()
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	got[model.TierFloor].Liquidity.SetUint64(7)
	again, _ := r.Positions()
	if again[model.TierFloor].Liquidity.Uint64() != 1000 {
		t.Fatalf("positions leaked internal storage")
	}
}

func TestRegistryCommitRejectsBadOrdering(t *testing.T) {
	r := New()
	ps := testPositions(t)
	if _, err := r.Commit(ps); err != nil {
		t.Fatalf("commit: %v", err)
	}

	bad := ps.Clone()
	bad[model.TierAnchor].UpperTick = 660
	if _, err := r.Commit(bad); !errors.Is(err, model.ErrTierOrdering) {
		t.Fatalf("expected ordering error, got %v", err)
	}
	got, _ := r.Positions()
	if got[model.TierAnchor].UpperTick != 600 {
		t.Fatalf("failed commit changed state")
	}
	if r.Version() != 1 {
		t.Fatalf("failed commit bumped version")
	}
}

func TestFileStateStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := &FileStateStore{Path: filepath.Join(t.TempDir(), "state", "positions.json")}

	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("empty load: ok=%v err=%v", ok, err)
	}

	r := New()
	if _, err := r.Commit(testPositions(t)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	state, err := r.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	restored := New()
	if err := restored.Restore(loaded); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, _ := restored.Positions()
	if got[model.TierDiscovery].Liquidity.Uint64() != 3000 || got[model.TierDiscovery].UpperTick != 4680 {
		t.Fatalf("restored positions mismatch: %+v", got[model.TierDiscovery])
	}
	if restored.Version() != 1 {
		t.Fatalf("restored version: %d", restored.Version())
	}
}
