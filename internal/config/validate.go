package config

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"liquidityOracle/internal/model"
)

// Validate checks that the token table is complete and consistent with the endpoints.
func (c Config) Validate() error {
	if len(c.Tokens) == 0 {
		return errors.New("at least one token entry is required")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache-ttl must be > 0, got %s", c.CacheTTL)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch-timeout must be > 0, got %s", c.FetchTimeout)
	}

	seen := make(map[model.ChainID]bool, len(c.Tokens))
	var needsReference, needsCosmosReference bool
	for _, token := range c.Tokens {
		if seen[token.Chain] {
			return fmt.Errorf("%s: duplicate token entry", token.Chain)
		}
		seen[token.Chain] = true

		if len(c.Endpoints[token.Chain]) == 0 {
			return fmt.Errorf("%s: no endpoints configured", token.Chain)
		}
		if token.Pool == "" || token.Address == "" {
			return fmt.Errorf("%s: address and pool are required", token.Chain)
		}

		switch token.Chain.Kind() {
		case model.KindEVM:
			needsReference = true
			if token.Family != model.FamilyV2 && token.Family != model.FamilyV3 {
				return fmt.Errorf("%s: family %q is not an EVM pool family", token.Chain, token.Family)
			}
			if !common.IsHexAddress(token.Address) || !common.IsHexAddress(token.Pool) {
				return fmt.Errorf("%s: token and pool must be hex addresses", token.Chain)
			}
			switch token.TVLMethod {
			case "", model.TVLLiquidity, model.TVLBalance:
			default:
				return fmt.Errorf("%s: unsupported tvl-method %q", token.Chain, token.TVLMethod)
			}
		case model.KindCosmos:
			needsCosmosReference = true
			if token.Family != model.FamilyCosmosAMM {
				return fmt.Errorf("%s: family %q is not a Cosmos pool family", token.Chain, token.Family)
			}
			if token.Decimals > model.MaxCosmosDecimals {
				return fmt.Errorf("%s: decimals %d exceed %d", token.Chain, token.Decimals, model.MaxCosmosDecimals)
			}
		default:
			return fmt.Errorf("%s: unsupported chain", token.Chain)
		}
	}

	if needsReference {
		if c.Reference == nil {
			return errors.New("reference pool is required for EVM tokens")
		}
		if c.Reference.Chain.Kind() != model.KindEVM {
			return fmt.Errorf("reference chain %q is not an EVM chain", c.Reference.Chain)
		}
		if !common.IsHexAddress(c.Reference.Pool) {
			return fmt.Errorf("reference pool %q is not a hex address", c.Reference.Pool)
		}
		if len(c.Endpoints[c.Reference.Chain]) == 0 {
			return fmt.Errorf("reference chain %s has no endpoints", c.Reference.Chain)
		}
	}
	if needsCosmosReference {
		ref := c.CosmosReference
		if ref == nil || ref.PoolID == "" || ref.BaseDenom == "" || ref.StableDenom == "" {
			return errors.New("cosmos-reference pool-id, base-denom and stable-denom are required for Cosmos tokens")
		}
		if ref.BaseDecimals > model.MaxCosmosDecimals || ref.StableDecimals > model.MaxCosmosDecimals {
			return fmt.Errorf("cosmos-reference decimals exceed %d", model.MaxCosmosDecimals)
		}
	}
	return nil
}
