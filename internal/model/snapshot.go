package model

import (
	"sort"
	"time"
)

// PriceSnapshot is one consistent view of the tracked token across chains.
// A snapshot is built once per refresh and never modified afterwards.
type PriceSnapshot struct {
	Prices            map[ChainID]float64 `json:"prices"`
	TVL               map[ChainID]float64 `json:"tvl,omitempty"`
	ReferencePriceUSD *float64            `json:"reference_price_usd,omitempty"`
	WeightedPriceUSD  float64             `json:"weighted_price_usd"`
	Failures          map[ChainID]string  `json:"failures,omitempty"`
	FetchedAt         time.Time           `json:"fetched_at"`
}

// Price returns the USD price for a chain and whether it is present.
func (s *PriceSnapshot) Price(chain ChainID) (float64, bool) {
	if s == nil {
		return 0, false
	}
	price, ok := s.Prices[chain]
	return price, ok
}

// ChainTVL returns the USD liquidity for a chain and whether it is present.
func (s *PriceSnapshot) ChainTVL(chain ChainID) (float64, bool) {
	if s == nil {
		return 0, false
	}
	tvl, ok := s.TVL[chain]
	return tvl, ok
}

// TotalTVL sums the liquidity of every chain present in the snapshot.
func (s *PriceSnapshot) TotalTVL() float64 {
	if s == nil {
		return 0
	}
	var total float64
	for _, tvl := range s.TVL {
		total += tvl
	}
	return total
}

// Chains returns the chains with a price, sorted by name.
func (s *PriceSnapshot) Chains() []ChainID {
	if s == nil {
		return nil
	}
	chains := make([]ChainID, 0, len(s.Prices))
	for chain := range s.Prices {
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	return chains
}
