package model

import "time"

// KeeperState is what the keeper loop remembers between runs.
type KeeperState struct {
	LastAdjustmentAt time.Time     `json:"last_adjustment_at"`
	LastOperation    OperationKind `json:"last_operation,omitempty"`
	LastTick         int32         `json:"last_tick"`
	LastVolatility   string        `json:"last_volatility,omitempty"`
}
