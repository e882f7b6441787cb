package pricing

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"go.uber.org/zap"

	"liquidityOracle/internal/amm"
	"liquidityOracle/internal/model"
)

// CosmosPoolReader reads a pool by id from a Cosmos AMM.
type CosmosPoolReader interface {
	Pool(ctx context.Context, poolID string) (model.CosmosState, error)
}

// CosmosFetcher prices a token held in a Cosmos weighted pool. The pair asset is priced
// through a second pool that quotes the chain's base asset in a USD stablecoin.
type CosmosFetcher struct {
	token     model.TokenConfig
	reference model.CosmosReferenceConfig
	resolver  EndpointResolver[CosmosPoolReader]
	logger    *zap.Logger
}

// NewCosmosFetcher validates the configs and builds a fetcher.
func NewCosmosFetcher(token model.TokenConfig, reference model.CosmosReferenceConfig, resolver EndpointResolver[CosmosPoolReader], logger *zap.Logger) (*CosmosFetcher, error) {
	if token.Chain.Kind() != model.KindCosmos {
		return nil, fmt.Errorf("chain %q is not a Cosmos chain", token.Chain)
	}
	if token.Family != model.FamilyCosmosAMM {
		return nil, fmt.Errorf("%s: pool family %q is not a Cosmos family", token.Chain, token.Family)
	}
	if token.Pool == "" || token.Address == "" {
		return nil, fmt.Errorf("%s: pool id and denom are required", token.Chain)
	}
	if reference.PoolID == "" || reference.BaseDenom == "" || reference.StableDenom == "" {
		return nil, fmt.Errorf("%s: reference pool id, base denom and stable denom are required", token.Chain)
	}
	if token.PairDenom == "" {
		token.PairDenom = reference.BaseDenom
	}
	switch token.PairDenom {
	case reference.BaseDenom:
		token.PairDecimals = reference.BaseDecimals
	case reference.StableDenom:
		token.PairDecimals = reference.StableDecimals
	default:
		return nil, fmt.Errorf("%s: pair denom %q is neither %q nor %q", token.Chain, token.PairDenom, reference.BaseDenom, reference.StableDenom)
	}
	for _, dec := range []uint8{token.Decimals, reference.BaseDecimals, reference.StableDecimals} {
		if dec > model.MaxCosmosDecimals {
			return nil, fmt.Errorf("%s: decimals %d exceed %d", token.Chain, dec, model.MaxCosmosDecimals)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CosmosFetcher{
		token:     token,
		reference: reference,
		resolver:  resolver,
		logger:    logger.With(zap.String("chain", token.Chain.String()), zap.String("pool", token.Pool)),
	}, nil
}

// Chain returns the chain this fetcher prices.
func (f *CosmosFetcher) Chain() model.ChainID {
	return f.token.Chain
}

// Fetch ignores the EVM reference future; the Cosmos base asset is priced on chain.
func (f *CosmosFetcher) Fetch(ctx context.Context, _ *ReferenceFuture) (Quote, error) {
	chainID := f.token.Chain

	f.logger.Debug("fetch stage", zap.String("stage", string(StageResolvingEndpoint)))
	client, err := f.resolver.Resolve(ctx, chainID)
	if err != nil {
		return Quote{}, &StageError{Chain: chainID, Stage: StageResolvingEndpoint, Err: err}
	}

	f.logger.Debug("fetch stage", zap.String("stage", string(StageReadingPool)))
	pool, err := client.Pool(ctx, f.token.Pool)
	if err != nil {
		invalidateOnTransport(f.resolver, chainID, err)
		return Quote{}, &StageError{Chain: chainID, Stage: StageReadingPool, Err: err}
	}
	refPool := pool
	if f.reference.PoolID != f.token.Pool {
		refPool, err = client.Pool(ctx, f.reference.PoolID)
		if err != nil {
			invalidateOnTransport(f.resolver, chainID, err)
			return Quote{}, &StageError{Chain: chainID, Stage: StageReadingPool, Err: err}
		}
	}

	f.logger.Debug("fetch stage", zap.String("stage", string(StageComputing)))
	prices, err := f.prices(pool, refPool)
	if err != nil {
		return Quote{}, &StageError{Chain: chainID, Stage: StageComputing, Err: err}
	}

	priceUSD, err := prices.tracked.Float64()
	if err != nil || !validPrice(priceUSD) {
		return Quote{}, &StageError{Chain: chainID, Stage: StageComputing, Err: fmt.Errorf("%w: price %s", model.ErrInvalidPoolState, prices.tracked)}
	}

	quote := Quote{Chain: chainID, PriceUSD: priceUSD}
	tvl := CosmosTVL(pool, f.decimalsByDenom(), prices.byDenom())
	quote.TVLUSD = &tvl

	f.logger.Debug("fetch done", zap.Float64("price_usd", priceUSD), zap.Float64("tvl_usd", tvl))
	return quote, nil
}

// cosmosPrices holds the USD prices derived in one fetch.
type cosmosPrices struct {
	trackedDenom string
	tracked      sdkmath.LegacyDec
	baseDenom    string
	base         sdkmath.LegacyDec
	stableDenom  string
}

func (p cosmosPrices) byDenom() map[string]sdkmath.LegacyDec {
	prices := make(map[string]sdkmath.LegacyDec, 3)
	prices[p.baseDenom] = p.base
	prices[p.stableDenom] = sdkmath.LegacyOneDec()
	prices[p.trackedDenom] = p.tracked
	return prices
}

func (f *CosmosFetcher) prices(pool, refPool model.CosmosState) (cosmosPrices, error) {
	base, ok := refPool.Asset(f.reference.BaseDenom)
	if !ok {
		return cosmosPrices{}, fmt.Errorf("%w: reference pool %s has no %s", model.ErrInvalidPoolState, refPool.PoolID, f.reference.BaseDenom)
	}
	stable, ok := refPool.Asset(f.reference.StableDenom)
	if !ok {
		return cosmosPrices{}, fmt.Errorf("%w: reference pool %s has no %s", model.ErrInvalidPoolState, refPool.PoolID, f.reference.StableDenom)
	}
	baseUSD, err := amm.BalancerSpotPrice(base.Amount, base.Weight, f.reference.BaseDecimals, stable.Amount, stable.Weight, f.reference.StableDecimals)
	if err != nil {
		return cosmosPrices{}, fmt.Errorf("base asset price: %w", err)
	}

	tracked, ok := pool.Asset(f.token.Address)
	if !ok {
		return cosmosPrices{}, fmt.Errorf("%w: pool %s has no %s", model.ErrInvalidPoolState, pool.PoolID, f.token.Address)
	}
	pair, ok := pool.Asset(f.token.PairDenom)
	if !ok {
		return cosmosPrices{}, fmt.Errorf("%w: pool %s has no %s", model.ErrInvalidPoolState, pool.PoolID, f.token.PairDenom)
	}
	trackedInPair, err := amm.BalancerSpotPrice(tracked.Amount, tracked.Weight, f.token.Decimals, pair.Amount, pair.Weight, f.token.PairDecimals)
	if err != nil {
		return cosmosPrices{}, fmt.Errorf("tracked price: %w", err)
	}

	pairUSD := baseUSD
	if f.token.PairDenom == f.reference.StableDenom {
		pairUSD = sdkmath.LegacyOneDec()
	}

	return cosmosPrices{
		trackedDenom: f.token.Address,
		tracked:      trackedInPair.Mul(pairUSD),
		baseDenom:    f.reference.BaseDenom,
		base:         baseUSD,
		stableDenom:  f.reference.StableDenom,
	}, nil
}

func (f *CosmosFetcher) decimalsByDenom() map[string]uint8 {
	decimals := make(map[string]uint8, 3)
	decimals[f.reference.BaseDenom] = f.reference.BaseDecimals
	decimals[f.reference.StableDenom] = f.reference.StableDecimals
	decimals[f.token.Address] = f.token.Decimals
	return decimals
}

// CosmosTVL sums the USD value of every pool asset with a known price. Assets without
// a price or decimals are left out.
func CosmosTVL(pool model.CosmosState, decimals map[string]uint8, pricesUSD map[string]sdkmath.LegacyDec) float64 {
	total := sdkmath.LegacyZeroDec()
	for _, asset := range pool.Assets {
		price, ok := pricesUSD[asset.Denom]
		if !ok || price.IsNil() {
			continue
		}
		dec, ok := decimals[asset.Denom]
		if !ok || asset.Amount.IsNil() {
			continue
		}
		amount, err := amm.NormalizeCosmos(asset.Amount, dec)
		if err != nil {
			continue
		}
		total = total.Add(amount.Mul(price))
	}
	f, err := total.Float64()
	if err != nil {
		return 0
	}
	return f
}
