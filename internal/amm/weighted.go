package amm

import (
	"math"

	"liquidityOracle/internal/model"
)

// Observation is one chain's price and the liquidity backing it.
type Observation struct {
	Chain     model.ChainID
	Price     float64
	Liquidity float64
}

// WeightedAverage returns Σ(price·liquidity)/Σ(liquidity) over observations with a
// positive price. When total liquidity is zero it falls back to the arithmetic mean of
// positive prices. With nothing eligible it returns ErrNoEligiblePrices.
func WeightedAverage(observations []Observation) (float64, error) {
	var (
		weightedSum  float64
		totalWeight  float64
		plainSum     float64
		eligibleSeen int
	)

	for _, obs := range observations {
		if !isUsable(obs.Price) || obs.Price <= 0 {
			continue
		}
		eligibleSeen++
		plainSum += obs.Price

		liquidity := obs.Liquidity
		if !isUsable(liquidity) || liquidity <= 0 {
			continue
		}
		weightedSum += obs.Price * liquidity
		totalWeight += liquidity
	}

	if eligibleSeen == 0 {
		return 0, ErrNoEligiblePrices
	}
	if totalWeight == 0 {
		return plainSum / float64(eligibleSeen), nil
	}
	return weightedSum / totalWeight, nil
}

func isUsable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
