package model

import (
	"time"

	"github.com/holiman/uint256"
)

// OperationKind names a mutating vault operation.
type OperationKind string

const (
	OpGenesis     OperationKind = "genesis"
	OpShift       OperationKind = "shift"
	OpSlide       OperationKind = "slide"
	OpBumpFloor   OperationKind = "bump_floor"
	OpBumpRewards OperationKind = "bump_rewards"
)

const (
	EventFloorUpdated      = "FloorUpdated"
	EventRebalanceExecuted = "RebalanceExecuted"
)

// FloorUpdated is emitted whenever the Floor lower tick moves.
type FloorUpdated struct {
	OldIMV  *uint256.Int `json:"old_imv"`
	NewIMV  *uint256.Int `json:"new_imv"`
	OldTick int32        `json:"old_tick"`
	NewTick int32        `json:"new_tick"`
}

// RebalanceExecuted is emitted after every committed shift, slide or bump.
type RebalanceExecuted struct {
	Kind        OperationKind `json:"kind"`
	RatioBefore *uint256.Int  `json:"ratio_before"`
	RatioAfter  *uint256.Int  `json:"ratio_after"`
	FloorBefore *uint256.Int  `json:"floor_before"`
	FloorAfter  *uint256.Int  `json:"floor_after"`
}

// VaultEvent is the envelope written to event sinks.
type VaultEvent struct {
	OperationID string    `json:"operation_id"`
	Vault       string    `json:"vault"`
	Name        string    `json:"name"`
	Caller      string    `json:"caller"`
	EmittedAt   time.Time `json:"emitted_at"`

	FloorUpdated      *FloorUpdated      `json:"floor_updated,omitempty"`
	RebalanceExecuted *RebalanceExecuted `json:"rebalance_executed,omitempty"`

	Log *EventLog `json:"log,omitempty"`
}

// VaultSnapshot records VaultInfo after an operation for observability.
type VaultSnapshot struct {
	OperationID string        `json:"operation_id"`
	Vault       string        `json:"vault"`
	Kind        OperationKind `json:"kind"`
	Tick        int32         `json:"tick"`
	Info        VaultInfo     `json:"info"`
	Positions   Positions     `json:"positions"`
	TakenAt     time.Time     `json:"taken_at"`
}
