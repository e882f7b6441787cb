package cosmos

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"liquidityOracle/internal/model"
)

func parsePoolAssets(poolID string, resp poolResponse) (model.CosmosState, error) {
	if len(resp.Pool.PoolAssets) == 0 {
		return model.CosmosState{}, fmt.Errorf("%w: missing pool_assets", model.ErrInvalidPoolState)
	}

	id := resp.Pool.ID
	if id == "" {
		id = poolID
	}

	assets := make([]model.CosmosAsset, 0, len(resp.Pool.PoolAssets))
	for _, raw := range resp.Pool.PoolAssets {
		if raw.Token.Denom == "" {
			return model.CosmosState{}, fmt.Errorf("pool asset without denom")
		}
		amount, ok := sdkmath.NewIntFromString(raw.Token.Amount)
		if !ok {
			return model.CosmosState{}, fmt.Errorf("invalid amount %q for %s", raw.Token.Amount, raw.Token.Denom)
		}
		if amount.IsNegative() {
			return model.CosmosState{}, fmt.Errorf("negative amount for %s", raw.Token.Denom)
		}

		weight := sdkmath.ZeroInt()
		if raw.Weight != "" {
			parsed, ok := sdkmath.NewIntFromString(raw.Weight)
			if !ok {
				return model.CosmosState{}, fmt.Errorf("invalid weight %q for %s", raw.Weight, raw.Token.Denom)
			}
			weight = parsed
		}

		assets = append(assets, model.CosmosAsset{
			Denom:  raw.Token.Denom,
			Amount: amount,
			Weight: weight,
		})
	}

	return model.CosmosState{PoolID: id, Assets: assets}, nil
}
