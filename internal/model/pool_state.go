package model

import (
	"math/big"

	sdkmath "cosmossdk.io/math"
)

// PoolState is the raw pool snapshot returned by a pool reader.
// Exactly one of the concrete variants below implements it.
type PoolState interface {
	Family() Family
}

// V2State holds constant-product reserves.
type V2State struct {
	Pool     string
	Reserve0 *big.Int
	Reserve1 *big.Int
	Token0   string
	Token1   string
}

func (V2State) Family() Family { return FamilyV2 }

// V3State holds concentrated-liquidity slot0 and liquidity.
type V3State struct {
	Pool         string
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32
	Token0       string
	Token1       string
}

func (V3State) Family() Family { return FamilyV3 }

// CosmosAsset is one pooled asset of a Cosmos AMM pool.
type CosmosAsset struct {
	Denom  string
	Amount sdkmath.Int
	Weight sdkmath.Int
}

// CosmosState holds the pooled assets of a Cosmos AMM pool.
type CosmosState struct {
	PoolID string
	Assets []CosmosAsset
}

func (CosmosState) Family() Family { return FamilyCosmosAMM }

// Asset returns the pooled asset with the given denom.
func (s CosmosState) Asset(denom string) (CosmosAsset, bool) {
	for _, asset := range s.Assets {
		if asset.Denom == denom {
			return asset, true
		}
	}
	return CosmosAsset{}, false
}
