package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

var (
	// ErrTransactionReverted is returned when a mined transaction has a failed status.
	ErrTransactionReverted = errors.New("chain: transaction reverted")
	// ErrTransactionPending is returned when a broadcast transaction has no
	// receipt within the mine timeout. It may still be mined.
	ErrTransactionPending = errors.New("chain: transaction broadcast but not mined")
)

// DefaultMineTimeout bounds the receipt wait once a transaction is broadcast.
const DefaultMineTimeout = 10 * time.Minute

// Backend is the RPC surface a Transactor needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Transactor signs, sends and confirms EIP-1559 transactions from one key.
type Transactor struct {
	backend      Backend
	key          *ecdsa.PrivateKey
	from         common.Address
	pollInterval time.Duration
	mineTimeout  time.Duration
	logger       *zap.Logger
}

// NewTransactor parses a hex private key, with or without 0x prefix.
func NewTransactor(backend Backend, hexKey string, pollInterval time.Duration, logger *zap.Logger) (*Transactor, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transactor{
		backend:      backend,
		key:          key,
		from:         crypto.PubkeyToAddress(key.PublicKey),
		pollInterval: pollInterval,
		mineTimeout:  DefaultMineTimeout,
		logger:       logger,
	}, nil
}

// From returns the signing address.
func (t *Transactor) From() common.Address { return t.from }

// SetMineTimeout changes how long Send waits for a receipt after broadcast.
func (t *Transactor) SetMineTimeout(d time.Duration) {
	if d > 0 {
		t.mineTimeout = d
	}
}

// Send submits data to to and blocks until the receipt is available. Once the
// transaction is broadcast, cancelling ctx no longer stops the wait; only the
// mine timeout does, and it yields ErrTransactionPending.
func (t *Transactor) Send(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	chainID, err := t.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	nonce, err := t.backend.PendingNonceAt(ctx, t.from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	tip, err := t.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas tip: %w", err)
	}
	head, err := t.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	gas, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{From: t.from, To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas + gas/5,
		To:        &to,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), t.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}
	t.logger.Info("transaction sent",
		zap.String("hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", signed.Gas()),
	)

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.mineTimeout)
	defer cancel()
	receipt, err := t.waitMined(waitCtx, signed.Hash())
	if err != nil && waitCtx.Err() != nil {
		return nil, fmt.Errorf("%w: %s after %s", ErrTransactionPending, signed.Hash().Hex(), t.mineTimeout)
	}
	return receipt, err
}

func (t *Transactor) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := t.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %s", ErrTransactionReverted, hash.Hex())
			}
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			t.logger.Warn("receipt lookup failed", zap.String("hash", hash.Hex()), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
