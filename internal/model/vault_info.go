package model

import "github.com/holiman/uint256"

// VaultInfo is derived from positions and pool state on demand.
type VaultInfo struct {
	LiquidityRatio    *uint256.Int `json:"liquidity_ratio"`
	CirculatingSupply *uint256.Int `json:"circulating_supply"`
	SpotPrice         *uint256.Int `json:"spot_price"`
	AnchorCapacity    *uint256.Int `json:"anchor_capacity"`
	FloorCapacity     *uint256.Int `json:"floor_capacity"`
	Token0            *uint256.Int `json:"token0"`
	Token1            *uint256.Int `json:"token1"`
	NewFloor          *uint256.Int `json:"new_floor"`
}

// Solvent reports whether Anchor and Floor capacity cover circulating supply.
func (v VaultInfo) Solvent() bool {
	backing := new(uint256.Int)
	if v.AnchorCapacity != nil {
		backing.Add(backing, v.AnchorCapacity)
	}
	if v.FloorCapacity != nil {
		if _, overflow := backing.AddOverflow(backing, v.FloorCapacity); overflow {
			return true
		}
	}
	circulating := v.CirculatingSupply
	if circulating == nil {
		circulating = new(uint256.Int)
	}
	return backing.Gt(circulating)
}
