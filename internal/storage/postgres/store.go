package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"floorVault/internal/model"
	"floorVault/internal/registry"
)

const schema = `
CREATE TABLE IF NOT EXISTS vault_positions (
	vault        TEXT    NOT NULL,
	tier         SMALLINT NOT NULL,
	lower_tick   INTEGER NOT NULL,
	upper_tick   INTEGER NOT NULL,
	liquidity    NUMERIC(78, 0) NOT NULL,
	price        NUMERIC(78, 0) NOT NULL,
	tick_spacing INTEGER NOT NULL,
	version      BIGINT  NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (vault, tier)
);
CREATE TABLE IF NOT EXISTS vault_snapshots (
	operation_id       TEXT PRIMARY KEY,
	vault              TEXT NOT NULL,
	kind               TEXT NOT NULL,
	tick               INTEGER NOT NULL,
	liquidity_ratio    NUMERIC(78, 0) NOT NULL,
	circulating_supply NUMERIC(78, 0) NOT NULL,
	imv                NUMERIC(78, 0) NOT NULL,
	info               JSONB NOT NULL,
	positions          JSONB NOT NULL,
	taken_at           TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS vault_events (
	operation_id TEXT NOT NULL,
	name         TEXT NOT NULL,
	vault        TEXT NOT NULL,
	caller       TEXT NOT NULL,
	payload      JSONB NOT NULL,
	emitted_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (operation_id, name)
);
CREATE TABLE IF NOT EXISTS keeper_state (
	vault      TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for one vault's positions, snapshots,
// events and keeper state.
type Store struct {
	pool  *pgxpool.Pool
	vault string
}

func NewStore(ctx context.Context, dsn, vault string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	if vault == "" {
		return nil, fmt.Errorf("vault address is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, vault: vault}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func dec(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.Dec()
}

// Save upserts all three positions in one batch.
func (s *Store) Save(ctx context.Context, state registry.State) error {
	updatedAt := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, tier := range model.Tiers {
		p := state.Positions.Get(tier)
		batch.Queue(`
			INSERT INTO vault_positions (
				vault, tier, lower_tick, upper_tick, liquidity, price, tick_spacing, version, updated_at
			) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9)
			ON CONFLICT (vault, tier)
			DO UPDATE SET
				lower_tick = EXCLUDED.lower_tick,
				upper_tick = EXCLUDED.upper_tick,
				liquidity = EXCLUDED.liquidity,
				price = EXCLUDED.price,
				tick_spacing = EXCLUDED.tick_spacing,
				version = EXCLUDED.version,
				updated_at = EXCLUDED.updated_at
		`,
			s.vault,
			int16(tier),
			p.LowerTick,
			p.UpperTick,
			dec(p.Liquidity),
			dec(p.Price),
			p.TickSpacing,
			int64(state.Version),
			updatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range model.Tiers {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save positions: %w", err)
		}
	}
	return nil
}

// Load reads the persisted positions. It reports false when none are stored.
func (s *Store) Load(ctx context.Context) (registry.State, bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tier, lower_tick, upper_tick, liquidity::text, price::text, tick_spacing, version, updated_at
		FROM vault_positions WHERE vault = $1 ORDER BY tier
	`, s.vault)
	if err != nil {
		return registry.State{}, false, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	var (
		state registry.State
		found int
	)
	for rows.Next() {
		var (
			tier             int16
			liquidity, price string
			version          int64
			updatedAt        time.Time
			p                model.LiquidityPosition
		)
		if err := rows.Scan(&tier, &p.LowerTick, &p.UpperTick, &liquidity, &price, &p.TickSpacing, &version, &updatedAt); err != nil {
			return registry.State{}, false, err
		}
		if tier < 0 || int(tier) >= len(state.Positions) {
			return registry.State{}, false, fmt.Errorf("unknown tier %d", tier)
		}
		p.Liquidity, p.Price = new(uint256.Int), new(uint256.Int)
		if err := p.Liquidity.SetFromDecimal(liquidity); err != nil {
			return registry.State{}, false, fmt.Errorf("tier %d liquidity: %w", tier, err)
		}
		if err := p.Price.SetFromDecimal(price); err != nil {
			return registry.State{}, false, fmt.Errorf("tier %d price: %w", tier, err)
		}
		state.Positions[tier] = p
		state.Version = uint64(version)
		state.UpdatedAt = updatedAt.Format(time.RFC3339Nano)
		found++
	}
	if err := rows.Err(); err != nil {
		return registry.State{}, false, err
	}
	if found == 0 {
		return registry.State{}, false, nil
	}
	if found != len(model.Tiers) {
		return registry.State{}, false, fmt.Errorf("expected %d positions, found %d", len(model.Tiers), found)
	}
	return state, true, nil
}

// PutEvents inserts events, ignoring duplicates.
func (s *Store) PutEvents(ctx context.Context, events []model.VaultEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		batch.Queue(`
			INSERT INTO vault_events (operation_id, name, vault, caller, payload, emitted_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (operation_id, name) DO NOTHING
		`, ev.OperationID, ev.Name, ev.Vault, ev.Caller, payload, ev.EmittedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PutSnapshot records one post-operation VaultInfo.
func (s *Store) PutSnapshot(ctx context.Context, snap model.VaultSnapshot) error {
	info, err := json.Marshal(snap.Info)
	if err != nil {
		return fmt.Errorf("marshal info: %w", err)
	}
	positions, err := json.Marshal(snap.Positions)
	if err != nil {
		return fmt.Errorf("marshal positions: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO vault_snapshots (
			operation_id, vault, kind, tick, liquidity_ratio, circulating_supply, imv, info, positions, taken_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10)
		ON CONFLICT (operation_id) DO NOTHING
	`,
		snap.OperationID,
		snap.Vault,
		string(snap.Kind),
		snap.Tick,
		dec(snap.Info.LiquidityRatio),
		dec(snap.Info.CirculatingSupply),
		dec(snap.Info.NewFloor),
		info,
		positions,
		snap.TakenAt,
	)
	return err
}

// LoadKeeperState returns the keeper state for this vault.
func (s *Store) LoadKeeperState(ctx context.Context) (model.KeeperState, bool, error) {
	var raw []byte
	row := s.pool.QueryRow(ctx, `SELECT state FROM keeper_state WHERE vault=$1`, s.vault)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.KeeperState{}, false, nil
		}
		return model.KeeperState{}, false, err
	}
	var state model.KeeperState
	if err := json.Unmarshal(raw, &state); err != nil {
		return model.KeeperState{}, false, fmt.Errorf("parse keeper state: %w", err)
	}
	return state, true, nil
}

// SaveKeeperState upserts the keeper state for this vault.
func (s *Store) SaveKeeperState(ctx context.Context, state model.KeeperState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal keeper state: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO keeper_state (vault, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (vault) DO UPDATE
		SET state = EXCLUDED.state, updated_at = now()
	`, s.vault, raw)
	return err
}
