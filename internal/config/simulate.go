package config

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/spf13/pflag"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
)

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	SpotPrice   *uint256.Int
	FloorPrice  *uint256.Int
	TotalSupply *uint256.Int
	Idle0       *uint256.Int
	Idle1       *uint256.Int
	Path        []*uint256.Int
	Events      string
	LogLevel    string
	Params      model.ProtocolParameters
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	defaults := map[string]any{
		"spot":        "1",
		"floor-price": "0.5",
		"supply":      "1000000",
		"idle0":       "900000",
		"idle1":       "80000",
		"path":        "1.2,1.1,0.95,0.7,0.8",
	}
	for key, value := range parameterDefaults() {
		defaults[key] = value
	}
	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return SimulateConfig{}, err
	}

	params, err := protocolParameters(v)
	if err != nil {
		return SimulateConfig{}, err
	}
	w, err := wadValues(v, "spot", "floor-price", "supply", "idle0", "idle1")
	if err != nil {
		return SimulateConfig{}, err
	}

	raw := getStringSlice(v, "path")
	path := make([]*uint256.Int, 0, len(raw))
	for _, item := range raw {
		price, err := fixedpoint.ParseWad(item)
		if err != nil {
			return SimulateConfig{}, fmt.Errorf("path: %w", err)
		}
		if price.IsZero() {
			return SimulateConfig{}, fmt.Errorf("path: price must be positive")
		}
		path = append(path, price)
	}

	return SimulateConfig{
		SpotPrice:   w[0],
		FloorPrice:  w[1],
		TotalSupply: w[2],
		Idle0:       w[3],
		Idle1:       w[4],
		Path:        path,
		Events:      v.GetString("events-out"),
		LogLevel:    v.GetString("log-level"),
		Params:      params,
	}, nil
}
