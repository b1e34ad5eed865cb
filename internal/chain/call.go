package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Caller performs read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Call packs method with args, performs an eth_call against to and unpacks the result.
func Call(ctx context.Context, caller Caller, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

// AsUint256 converts an ABI integer value into a uint256.
func AsUint256(value interface{}) (*uint256.Int, error) {
	b, err := asBigInt(value)
	if err != nil {
		return nil, err
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s", b.String())
	}
	out, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("value %s overflows uint256", b.String())
	}
	return out, nil
}

// AsInt24 converts an ABI int24 value into an int32.
func AsInt24(value interface{}) (int32, error) {
	b, err := asBigInt(value)
	if err != nil {
		return 0, err
	}
	if !b.IsInt64() {
		return 0, fmt.Errorf("int24 out of range")
	}
	v := b.Int64()
	if v < -(1<<23) || v > (1<<23)-1 {
		return 0, fmt.Errorf("int24 out of range: %d", v)
	}
	return int32(v), nil
}

// AsAddress converts an ABI address value.
func AsAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return v, nil
	case big.Int:
		return &v, nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported integer type %T", value)
	}
}
