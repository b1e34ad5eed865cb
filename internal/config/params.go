package config

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/spf13/viper"

	"floorVault/internal/fixedpoint"
	"floorVault/internal/model"
	"floorVault/internal/supply"
)

// parameterDefaults renders the built-in protocol and supply defaults as the
// decimal strings users write in config.
func parameterDefaults() map[string]any {
	p := model.DefaultParameters()
	s := supply.DefaultConfig()
	return map[string]any{
		"floor-percentage":        fixedpoint.FormatWad(p.FloorPercentage),
		"anchor-percentage":       fixedpoint.FormatWad(p.AnchorPercentage),
		"shift-ratio":             fixedpoint.FormatWad(p.ShiftRatio),
		"slide-ratio":             fixedpoint.FormatWad(p.SlideRatio),
		"discovery-bips":          p.DiscoveryBips,
		"anchor-upper-bips":       p.AnchorUpperBips,
		"slide-anchor-upper-bips": p.SlideAnchorUpperBips,
		"tick-spacing":            p.TickSpacing,
		"fee-tier":                p.FeeTier,
		"loan-fee-bips":           p.LoanFeeBips,
		"include-staked":          p.IncludeStaked,

		"vol-low":       fixedpoint.FormatWad(s.Thresholds.Low),
		"vol-medium":    fixedpoint.FormatWad(s.Thresholds.Medium),
		"vol-high":      fixedpoint.FormatWad(s.Thresholds.High),
		"vol-extreme":   fixedpoint.FormatWad(s.Thresholds.Extreme),
		"rate-low":      fixedpoint.FormatWad(s.Rates.Low),
		"rate-medium":   fixedpoint.FormatWad(s.Rates.Medium),
		"rate-high":     fixedpoint.FormatWad(s.Rates.High),
		"rate-extreme":  fixedpoint.FormatWad(s.Rates.Extreme),
		"supply-period": s.Period,
	}
}

func wadValue(v *viper.Viper, key string) (*uint256.Int, error) {
	value, err := fixedpoint.ParseWad(v.GetString(key))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

func wadValues(v *viper.Viper, keys ...string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(keys))
	for i, key := range keys {
		value, err := wadValue(v, key)
		if err != nil {
			return nil, err
		}
		out[i] = value
	}
	return out, nil
}

func protocolParameters(v *viper.Viper) (model.ProtocolParameters, error) {
	w, err := wadValues(v, "floor-percentage", "anchor-percentage", "shift-ratio", "slide-ratio")
	if err != nil {
		return model.ProtocolParameters{}, err
	}
	params := model.ProtocolParameters{
		FloorPercentage:      w[0],
		AnchorPercentage:     w[1],
		ShiftRatio:           w[2],
		SlideRatio:           w[3],
		DiscoveryBips:        v.GetUint64("discovery-bips"),
		AnchorUpperBips:      v.GetUint64("anchor-upper-bips"),
		SlideAnchorUpperBips: v.GetUint64("slide-anchor-upper-bips"),
		TickSpacing:          v.GetInt32("tick-spacing"),
		FeeTier:              v.GetUint32("fee-tier"),
		LoanFeeBips:          v.GetUint64("loan-fee-bips"),
		IncludeStaked:        v.GetBool("include-staked"),
	}
	if err := params.Validate(); err != nil {
		return model.ProtocolParameters{}, err
	}
	return params, nil
}

func supplyConfig(v *viper.Viper) (supply.Config, error) {
	t, err := wadValues(v, "vol-low", "vol-medium", "vol-high", "vol-extreme")
	if err != nil {
		return supply.Config{}, err
	}
	r, err := wadValues(v, "rate-low", "rate-medium", "rate-high", "rate-extreme")
	if err != nil {
		return supply.Config{}, err
	}
	cfg := supply.Config{
		Thresholds: supply.Thresholds{Low: t[0], Medium: t[1], High: t[2], Extreme: t[3]},
		Rates:      supply.Rates{Low: r[0], Medium: r[1], High: r[2], Extreme: r[3]},
		Period:     v.GetDuration("supply-period"),
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return supply.Config{}, err
	}
	if cfg.Period <= 0 {
		cfg.Period = supply.DefaultPeriod
	}
	return cfg, nil
}
