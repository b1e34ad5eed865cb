package events

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
)

const vaultEventsABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "oldIMV", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "newIMV", "type": "uint256"},
      {"indexed": false, "internalType": "int24", "name": "oldTick", "type": "int24"},
      {"indexed": false, "internalType": "int24", "name": "newTick", "type": "int24"}
    ],
    "name": "FloorUpdated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "string", "name": "kind", "type": "string"},
      {"indexed": false, "internalType": "uint256", "name": "ratioBefore", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "ratioAfter", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "floorBefore", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "floorAfter", "type": "uint256"}
    ],
    "name": "RebalanceExecuted",
    "type": "event"
  }
]`

// ErrUnknownEvent is returned for logs whose topic0 is not a vault event.
var ErrUnknownEvent = errors.New("events: unknown event")

var (
	eventsABI     abi.ABI
	eventsABIOnce sync.Once
	eventsABIErr  error
)

// VaultEventsABI returns the parsed vault event ABI.
func VaultEventsABI() (abi.ABI, error) {
	eventsABIOnce.Do(func() {
		eventsABI, eventsABIErr = abi.JSON(strings.NewReader(vaultEventsABIJSON))
	})
	return eventsABI, eventsABIErr
}

func big256(x *uint256.Int) *big.Int { return fixedpoint.OrZero(x).ToBig() }

// EncodeLog renders ev as the log the vault contract would emit.
func EncodeLog(vault common.Address, ev model.VaultEvent) (types.Log, error) {
	parsed, err := VaultEventsABI()
	if err != nil {
		return types.Log{}, fmt.Errorf("parse events abi: %w", err)
	}
	event, ok := parsed.Events[ev.Name]
	if !ok {
		return types.Log{}, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Name)
	}

	var args []interface{}
	switch {
	case ev.FloorUpdated != nil:
		f := ev.FloorUpdated
		args = []interface{}{big256(f.OldIMV), big256(f.NewIMV), big.NewInt(int64(f.OldTick)), big.NewInt(int64(f.NewTick))}
	case ev.RebalanceExecuted != nil:
		r := ev.RebalanceExecuted
		args = []interface{}{string(r.Kind), big256(r.RatioBefore), big256(r.RatioAfter), big256(r.FloorBefore), big256(r.FloorAfter)}
	default:
		return types.Log{}, fmt.Errorf("%w: %s has no payload", ErrUnknownEvent, ev.Name)
	}

	data, err := event.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		return types.Log{}, fmt.Errorf("pack %s: %w", ev.Name, err)
	}
	return types.Log{Address: vault, Topics: []common.Hash{event.ID}, Data: data}, nil
}

// ToEventLog hex encodes a log for storage.
func ToEventLog(log types.Log) *model.EventLog {
	topics := make([]string, 0, len(log.Topics))
	for _, t := range log.Topics {
		topics = append(topics, t.Hex())
	}
	return &model.EventLog{Address: log.Address.Hex(), Topics: topics, Data: hexutil.Encode(log.Data)}
}

// DecodeLog parses a vault event log back into its payload.
func DecodeLog(log types.Log) (model.VaultEvent, error) {
	parsed, err := VaultEventsABI()
	if err != nil {
		return model.VaultEvent{}, fmt.Errorf("parse events abi: %w", err)
	}
	if len(log.Topics) == 0 {
		return model.VaultEvent{}, ErrUnknownEvent
	}
	event, err := parsed.EventByID(log.Topics[0])
	if err != nil {
		return model.VaultEvent{}, fmt.Errorf("%w: %s", ErrUnknownEvent, log.Topics[0].Hex())
	}
	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.VaultEvent{}, fmt.Errorf("unpack %s: %w", event.Name, err)
	}

	out := model.VaultEvent{Vault: log.Address.Hex(), Name: event.Name}
	u := func(i int) *uint256.Int {
		v, _ := uint256.FromBig(values[i].(*big.Int))
		return v
	}
	switch event.Name {
	case model.EventFloorUpdated:
		out.FloorUpdated = &model.FloorUpdated{
			OldIMV:  u(0),
			NewIMV:  u(1),
			OldTick: int32(values[2].(*big.Int).Int64()),
			NewTick: int32(values[3].(*big.Int).Int64()),
		}
	case model.EventRebalanceExecuted:
		out.RebalanceExecuted = &model.RebalanceExecuted{
			Kind:        model.OperationKind(values[0].(string)),
			RatioBefore: u(1),
			RatioAfter:  u(2),
			FloorBefore: u(3),
			FloorAfter:  u(4),
		}
	}
	return out, nil
}
