package supply

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
)

// RewardParams are the WAD inputs of a reward computation.
type RewardParams struct {
	EthAmount   *uint256.Int `json:"ethAmount"`
	IMV         *uint256.Int `json:"imv"`
	Circulating *uint256.Int `json:"circulating"`
	TotalSupply *uint256.Int `json:"totalSupply"`
	Volatility  *uint256.Int `json:"volatility"`
	Kr          *uint256.Int `json:"kr"`
	Kv          *uint256.Int `json:"kv"`
}

// CalculateRewards returns (eth/imv) / (1 + kr*r) / (1 + kv*volatility) where
// r is circulating/totalSupply.
func CalculateRewards(p RewardParams) (*uint256.Int, error) {
	if p.IMV == nil || p.IMV.IsZero() || p.TotalSupply == nil || p.TotalSupply.IsZero() {
		return nil, fmt.Errorf("%w: imv and total supply must be positive", model.ErrInvalidParameters)
	}
	base, err := fixedpoint.DivWad(fixedpoint.OrZero(p.EthAmount), p.IMV)
	if err != nil {
		return nil, err
	}
	r, err := fixedpoint.DivWad(fixedpoint.OrZero(p.Circulating), p.TotalSupply)
	if err != nil {
		return nil, err
	}
	out, err := divOnePlus(base, fixedpoint.OrZero(p.Kr), r)
	if err != nil {
		return nil, err
	}
	return divOnePlus(out, fixedpoint.OrZero(p.Kv), fixedpoint.OrZero(p.Volatility))
}

// divOnePlus is value / (1 + k*x).
func divOnePlus(value, k, x *uint256.Int) (*uint256.Int, error) {
	kx, err := fixedpoint.MulWad(k, x)
	if err != nil {
		return nil, err
	}
	denominator, err := fixedpoint.Add(fixedpoint.One(), kx)
	if err != nil {
		return nil, err
	}
	return fixedpoint.DivWad(value, denominator)
}

const rewardCalculatorABIJSON = `[
  {
    "inputs": [
      {
        "components": [
          {"internalType": "uint256", "name": "ethAmount", "type": "uint256"},
          {"internalType": "uint256", "name": "imv", "type": "uint256"},
          {"internalType": "uint256", "name": "circulating", "type": "uint256"},
          {"internalType": "uint256", "name": "totalSupply", "type": "uint256"},
          {"internalType": "uint256", "name": "volatility", "type": "uint256"},
          {"internalType": "uint256", "name": "kr", "type": "uint256"},
          {"internalType": "uint256", "name": "kv", "type": "uint256"}
        ],
        "internalType": "struct RewardCalculator.RewardParams",
        "name": "params",
        "type": "tuple"
      }
    ],
    "name": "calculateRewards",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "pure",
    "type": "function"
  }
]`

var (
	rewardABI     abi.ABI
	rewardABIOnce sync.Once
	rewardABIErr  error
)

func rewardCalculatorABI() (abi.ABI, error) {
	rewardABIOnce.Do(func() {
		rewardABI, rewardABIErr = abi.JSON(strings.NewReader(rewardCalculatorABIJSON))
	})
	return rewardABI, rewardABIErr
}

// ContractCaller performs read-only contract calls.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// rewardTuple mirrors RewardCalculator.RewardParams for ABI packing.
type rewardTuple struct {
	EthAmount   *big.Int
	Imv         *big.Int
	Circulating *big.Int
	TotalSupply *big.Int
	Volatility  *big.Int
	Kr          *big.Int
	Kv          *big.Int
}

// PackRewardCall encodes a calculateRewards call.
func PackRewardCall(p RewardParams) ([]byte, error) {
	parsed, err := rewardCalculatorABI()
	if err != nil {
		return nil, fmt.Errorf("parse reward abi: %w", err)
	}
	return parsed.Pack("calculateRewards", rewardTuple{
		EthAmount:   fixedpoint.OrZero(p.EthAmount).ToBig(),
		Imv:         fixedpoint.OrZero(p.IMV).ToBig(),
		Circulating: fixedpoint.OrZero(p.Circulating).ToBig(),
		TotalSupply: fixedpoint.OrZero(p.TotalSupply).ToBig(),
		Volatility:  fixedpoint.OrZero(p.Volatility).ToBig(),
		Kr:          fixedpoint.OrZero(p.Kr).ToBig(),
		Kv:          fixedpoint.OrZero(p.Kv).ToBig(),
	})
}

// RemoteRewards calls a deployed RewardCalculator contract.
func RemoteRewards(ctx context.Context, caller ContractCaller, calculator common.Address, p RewardParams) (*uint256.Int, error) {
	parsed, err := rewardCalculatorABI()
	if err != nil {
		return nil, fmt.Errorf("parse reward abi: %w", err)
	}
	data, err := PackRewardCall(p)
	if err != nil {
		return nil, fmt.Errorf("pack calculateRewards: %w", err)
	}
	resp, err := caller.CallContract(ctx, ethereum.CallMsg{To: &calculator, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call calculateRewards: %w", err)
	}
	values, err := parsed.Unpack("calculateRewards", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack calculateRewards: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("calculateRewards returned %d values", len(values))
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unsupported reward type %T", values[0])
	}
	out, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, fixedpoint.ErrOverflow
	}
	return out, nil
}
