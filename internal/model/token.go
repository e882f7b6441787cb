package model

import (
	"fmt"
	"strings"
)

// Family is the AMM design used by a pool.
type Family string

const (
	FamilyV2        Family = "v2"
	FamilyV3        Family = "v3"
	FamilyCosmosAMM Family = "cosmos-amm"
)

// ParseFamily converts a config value into a Family.
func ParseFamily(input string) (Family, error) {
	switch Family(strings.ToLower(strings.TrimSpace(input))) {
	case FamilyV2:
		return FamilyV2, nil
	case FamilyV3:
		return FamilyV3, nil
	case FamilyCosmosAMM, "cosmos", "gamm":
		return FamilyCosmosAMM, nil
	default:
		return "", fmt.Errorf("unsupported pool family: %q", input)
	}
}

// Side says which pool token is the tracked one.
type Side string

const (
	SideAuto   Side = "auto"
	SideToken0 Side = "token0"
	SideToken1 Side = "token1"
)

// ParseSide converts a config value into a Side. Empty means auto.
func ParseSide(input string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(input))) {
	case "", SideAuto:
		return SideAuto, nil
	case SideToken0, "0":
		return SideToken0, nil
	case SideToken1, "1":
		return SideToken1, nil
	default:
		return "", fmt.Errorf("unsupported pool side: %q", input)
	}
}

// TVLMethod selects how EVM pool depth is measured.
type TVLMethod string

const (
	// TVLLiquidity uses reserves (v2) or the in-range liquidity approximation (v3).
	TVLLiquidity TVLMethod = "liquidity"
	// TVLBalance reads ERC20 balanceOf(pool) for both pool tokens.
	TVLBalance TVLMethod = "balance"
)

// MaxCosmosDecimals bounds the decimals of Cosmos assets. Scaling by 10^decimals
// past this point overflows the 18-digit fixed point type used for pool math.
const MaxCosmosDecimals = 36

// TokenConfig describes the tracked token on one chain. It is loaded once and never mutated.
type TokenConfig struct {
	Chain        ChainID
	Address      string
	Decimals     uint8
	Pool         string
	Family       Family
	Side         Side
	PairDecimals uint8
	PairDenom    string
	TVLMethod    TVLMethod
}

// ReferenceConfig points at the stable pair that prices the EVM reference asset.
type ReferenceConfig struct {
	Chain             ChainID
	Pool              string
	Family            Family
	ReferenceIsToken0 bool
	ReferenceDecimals uint8
	StableDecimals    uint8
}

// CosmosReferenceConfig points at the pool that prices the Cosmos base asset in USD.
type CosmosReferenceConfig struct {
	PoolID         string
	BaseDenom      string
	BaseDecimals   uint8
	StableDenom    string
	StableDecimals uint8
}
