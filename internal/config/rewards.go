package config

import (
	"github.com/spf13/pflag"

	"floorVault/internal/supply"
)

// RewardsConfig holds configuration for the rewards command.
type RewardsConfig struct {
	Params     supply.RewardParams
	Calculator string
	RPCURL     string
	LogLevel   string
}

// LoadRewards merges config file, environment variables, and flags into RewardsConfig.
func LoadRewards(cfgFile string, flags *pflag.FlagSet) (RewardsConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"kr": "0.1",
		"kv": "0.5",
	})
	if err != nil {
		return RewardsConfig{}, err
	}
	w, err := wadValues(v, "eth-amount", "imv", "circulating", "total-supply", "volatility", "kr", "kv")
	if err != nil {
		return RewardsConfig{}, err
	}
	return RewardsConfig{
		Params: supply.RewardParams{
			EthAmount:   w[0],
			IMV:         w[1],
			Circulating: w[2],
			TotalSupply: w[3],
			Volatility:  w[4],
			Kr:          w[5],
			Kv:          w[6],
		},
		Calculator: v.GetString("calculator"),
		RPCURL:     v.GetString("rpc"),
		LogLevel:   v.GetString("log-level"),
	}, nil
}
