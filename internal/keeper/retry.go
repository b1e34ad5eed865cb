package keeper

import (
	"context"
	"errors"
	"time"

	"floorVault/internal/model"
	"floorVault/internal/pool"
	"floorVault/internal/vault"
)

// permanentErrors are never retried: repeating the call cannot change the outcome.
var permanentErrors = []error{
	model.ErrInsolvency,
	model.ErrTierOrdering,
	model.ErrFloorDecrease,
	model.ErrNoLiquidity,
	model.ErrZeroAddress,
	model.ErrZeroAmount,
	model.ErrInvalidThresholds,
	model.ErrInvalidParameters,
	model.ErrInsufficientReserves,
	vault.ErrUnauthorized,
	vault.ErrNotInitialized,
	vault.ErrNoSupplyControl,
	vault.ErrHalted,
	pool.ErrBatchPending,
	context.Canceled,
	context.DeadlineExceeded,
}

// Permanent reports whether err must not be retried.
func Permanent(err error) bool {
	for _, target := range permanentErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || Permanent(err) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
