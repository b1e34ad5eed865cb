package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"floorVault/internal/chain"
	"floorVault/internal/config"
	"floorVault/internal/events"
	"floorVault/internal/keeper"
	"floorVault/internal/pool"
	"floorVault/internal/rebalance"
	"floorVault/internal/registry"
	"floorVault/internal/storage/postgres"
	"floorVault/internal/supply"
	"floorVault/internal/vault"
)

// stack is a vault orchestrator wired to a deployed pool and vault.
type stack struct {
	client      *chain.Client
	pg          *postgres.Store
	vault       *vault.Orchestrator
	keeperStore keeper.StateStore
	caller      common.Address
}

func (s *stack) Close() {
	if s.pg != nil {
		s.pg.Close()
	}
	if s.client != nil {
		s.client.Close()
	}
}

// buildStack connects to the chain and storage. Without a private key the
// pool is read-only.
func buildStack(ctx context.Context, cfg config.Config, logger *zap.Logger) (*stack, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	poolAddr, err := chain.ParseAddress("pool", cfg.Pool)
	if err != nil {
		return nil, err
	}
	vaultAddr, err := chain.ParseAddress("vault", cfg.Vault)
	if err != nil {
		return nil, err
	}
	token0Addr, err := chain.ParseAddress("token0", cfg.Token0)
	if err != nil {
		return nil, err
	}
	token1Addr, err := chain.ParseAddress("token1", cfg.Token1)
	if err != nil {
		return nil, err
	}
	authorities, err := chain.ParseAddresses(cfg.Authorities)
	if err != nil {
		return nil, err
	}

	s := &stack{}
	s.client, err = chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	var sender pool.Sender
	if cfg.PrivateKey != "" {
		tx, err := chain.NewTransactor(s.client, cfg.PrivateKey, cfg.PollInterval, logger.Named("tx"))
		if err != nil {
			s.Close()
			return nil, err
		}
		sender = tx
		s.caller = tx.From()
	}

	deps := vault.Deps{
		Pool:   pool.NewChainPool(s.client, sender, poolAddr, vaultAddr, logger.Named("pool")),
		Ledger: chain.NewLedger(s.client, token0Addr, token1Addr),
		Logger: logger.Named("vault"),
	}
	reader := chain.NewVaultReader(s.client, vaultAddr, chain.NewToken(s.client, token0Addr))
	deps.Loans, deps.Fees, deps.Staking = reader, reader, reader

	if deps.Engine, err = rebalance.NewEngine(cfg.Params, logger.Named("engine")); err != nil {
		s.Close()
		return nil, err
	}
	if deps.Supply, err = supply.NewController(cfg.Supply, logger.Named("supply")); err != nil {
		s.Close()
		return nil, err
	}

	var sinks events.Multi
	if cfg.EventsOut != "" {
		sinks = append(sinks, events.NewJSONL(cfg.EventsOut))
	}
	if cfg.PGDSN != "" {
		s.pg, err = postgres.NewStore(ctx, cfg.PGDSN, vaultAddr.Hex())
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := s.pg.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		deps.Store = s.pg
		sinks = append(sinks, s.pg)
		s.keeperStore = s.pg
	} else {
		deps.Store = &registry.FileStateStore{Path: cfg.StateFile}
		s.keeperStore = keeper.NewFileStateStore(cfg.KeeperStateFile)
	}
	deps.Sink = sinks

	s.vault, err = vault.New(vaultAddr, authorities, deps)
	if err != nil {
		s.Close()
		return nil, err
	}
	if _, err := s.vault.Load(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("load positions: %w", err)
	}
	return s, nil
}
