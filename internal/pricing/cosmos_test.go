package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityOracle/internal/chain"
	"liquidityOracle/internal/model"
)

const (
	pageDenom = "ibc/23A62409E4AD8133116C249B1FA38EED30E500A115D7B153109462CD82C1CD99"
	osmoDenom = "uosmo"
	usdcDenom = "ibc/498A0751C798A0D9A389AA3691123DADA57DAA4FE165D5C75894505B876BA6E4"
)

type fakePools struct {
	mu    sync.Mutex
	pools map[string]model.CosmosState
	err   error
}

func (f *fakePools) Pool(_ context.Context, poolID string) (model.CosmosState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.CosmosState{}, f.err
	}
	pool, ok := f.pools[poolID]
	if !ok {
		return model.CosmosState{}, &model.PoolReadError{Pool: poolID, Op: "pool", Err: model.ErrPoolNotFound}
	}
	return pool, nil
}

func cosmosUnits(amount, decimals int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(amount, int(decimals))
}

func pool(id string, assets ...model.CosmosAsset) model.CosmosState {
	return model.CosmosState{PoolID: id, Assets: assets}
}

func asset(denom string, amount sdkmath.Int) model.CosmosAsset {
	return model.CosmosAsset{Denom: denom, Amount: amount, Weight: sdkmath.NewInt(536870912000000)}
}

func newCosmosResolver(reader CosmosPoolReader, dials *atomic.Int32) *chain.Resolver[CosmosPoolReader] {
	return chain.NewResolver[CosmosPoolReader](
		map[model.ChainID][]string{model.ChainOsmosis: {"https://lcd.invalid"}},
		chain.DialerFunc[CosmosPoolReader](func(context.Context, string) (CosmosPoolReader, error) {
			if dials != nil {
				dials.Add(1)
			}
			return reader, nil
		}),
		nil,
	)
}

func pageToken() model.TokenConfig {
	return model.TokenConfig{
		Chain:     model.ChainOsmosis,
		Address:   pageDenom,
		Decimals:  8,
		Pool:      "1344",
		Family:    model.FamilyCosmosAMM,
		PairDenom: osmoDenom,
	}
}

func osmoReference() model.CosmosReferenceConfig {
	return model.CosmosReferenceConfig{
		PoolID:         "678",
		BaseDenom:      osmoDenom,
		BaseDecimals:   6,
		StableDenom:    usdcDenom,
		StableDecimals: 6,
	}
}

func pagePools() *fakePools {
	return &fakePools{pools: map[string]model.CosmosState{
		"1344": pool("1344", asset(pageDenom, cosmosUnits(10_000, 8)), asset(osmoDenom, cosmosUnits(50_000, 6))),
		"678":  pool("678", asset(osmoDenom, cosmosUnits(1_000_000, 6)), asset(usdcDenom, cosmosUnits(500_000, 6))),
	}}
}

func TestCosmosFetcherPrice(t *testing.T) {
	fetcher, err := NewCosmosFetcher(pageToken(), osmoReference(), newCosmosResolver(pagePools(), nil), nil)
	require.NoError(t, err)
	assert.Equal(t, model.ChainOsmosis, fetcher.Chain())

	quote, err := fetcher.Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2.5, quote.PriceUSD)

	require.NotNil(t, quote.TVLUSD)
	// 10,000 PAGE at $2.50 plus 50,000 OSMO at $0.50.
	assert.Equal(t, 50_000.0, *quote.TVLUSD)
}

func TestCosmosFetcherDefaultsPairToBaseDenom(t *testing.T) {
	token := pageToken()
	token.PairDenom = ""
	fetcher, err := NewCosmosFetcher(token, osmoReference(), newCosmosResolver(pagePools(), nil), nil)
	require.NoError(t, err)

	quote, err := fetcher.Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2.5, quote.PriceUSD)
}

func TestCosmosFetcherStablePair(t *testing.T) {
	pools := &fakePools{pools: map[string]model.CosmosState{
		"9":   pool("9", asset(pageDenom, cosmosUnits(4_000, 8)), asset(usdcDenom, cosmosUnits(1_000, 6))),
		"678": pool("678", asset(osmoDenom, cosmosUnits(1_000_000, 6)), asset(usdcDenom, cosmosUnits(500_000, 6))),
	}}
	token := pageToken()
	token.Pool = "9"
	token.PairDenom = usdcDenom

	fetcher, err := NewCosmosFetcher(token, osmoReference(), newCosmosResolver(pools, nil), nil)
	require.NoError(t, err)

	quote, err := fetcher.Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.25, quote.PriceUSD)
	require.NotNil(t, quote.TVLUSD)
	assert.Equal(t, 2_000.0, *quote.TVLUSD)
}

func TestCosmosFetcherMissingAsset(t *testing.T) {
	pools := pagePools()
	pools.pools["1344"] = pool("1344", asset("uion", cosmosUnits(1, 6)), asset(osmoDenom, cosmosUnits(50_000, 6)))

	fetcher, err := NewCosmosFetcher(pageToken(), osmoReference(), newCosmosResolver(pools, nil), nil)
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background(), nil)
	assert.ErrorIs(t, err, model.ErrInvalidPoolState)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageComputing, stageErr.Stage)
}

func TestCosmosFetcherPoolNotFound(t *testing.T) {
	pools := pagePools()
	delete(pools.pools, "678")

	var dials atomic.Int32
	fetcher, err := NewCosmosFetcher(pageToken(), osmoReference(), newCosmosResolver(pools, &dials), nil)
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background(), nil)
	assert.ErrorIs(t, err, model.ErrPoolNotFound)

	_, err = fetcher.Fetch(context.Background(), nil)
	assert.ErrorIs(t, err, model.ErrPoolNotFound)
	assert.Equal(t, int32(1), dials.Load(), "data errors keep the endpoint")
}

func TestCosmosFetcherTransportInvalidates(t *testing.T) {
	pools := pagePools()
	pools.err = &model.TransportError{Err: errors.New("connection reset")}

	var dials atomic.Int32
	fetcher, err := NewCosmosFetcher(pageToken(), osmoReference(), newCosmosResolver(pools, &dials), nil)
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background(), nil)
	assert.ErrorIs(t, err, model.ErrTransport)

	pools.mu.Lock()
	pools.err = nil
	pools.mu.Unlock()

	quote, err := fetcher.Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2.5, quote.PriceUSD)
	assert.Equal(t, int32(2), dials.Load())
}

func TestNewCosmosFetcherValidation(t *testing.T) {
	token := pageToken()
	token.Chain = model.ChainEthereum
	_, err := NewCosmosFetcher(token, osmoReference(), nil, nil)
	assert.Error(t, err)

	token = pageToken()
	token.PairDenom = "uatom"
	_, err = NewCosmosFetcher(token, osmoReference(), nil, nil)
	assert.Error(t, err)

	ref := osmoReference()
	ref.StableDenom = ""
	_, err = NewCosmosFetcher(pageToken(), ref, nil, nil)
	assert.Error(t, err)

	token = pageToken()
	token.Decimals = 80
	_, err = NewCosmosFetcher(token, osmoReference(), nil, nil)
	assert.ErrorContains(t, err, "decimals 80 exceed")

	ref = osmoReference()
	ref.BaseDecimals = model.MaxCosmosDecimals + 1
	_, err = NewCosmosFetcher(pageToken(), ref, nil, nil)
	assert.Error(t, err)
}

func TestCosmosTVLSkipsUnpricedAssets(t *testing.T) {
	state := pool("7",
		asset(osmoDenom, cosmosUnits(10, 6)),
		asset("uion", cosmosUnits(1_000, 6)),
	)
	tvl := CosmosTVL(state,
		map[string]uint8{osmoDenom: 6},
		map[string]sdkmath.LegacyDec{osmoDenom: sdkmath.LegacyMustNewDecFromStr("0.5")},
	)
	assert.Equal(t, 5.0, tvl)

	// Decimals the fixed point type cannot scale by are skipped rather than valued.
	tvl = CosmosTVL(state,
		map[string]uint8{osmoDenom: 6, "uion": 80},
		map[string]sdkmath.LegacyDec{osmoDenom: sdkmath.LegacyMustNewDecFromStr("0.5"), "uion": sdkmath.LegacyOneDec()},
	)
	assert.Equal(t, 5.0, tvl)
}

func ExampleCosmosTVL() {
	state := model.CosmosState{PoolID: "1", Assets: []model.CosmosAsset{
		{Denom: "uosmo", Amount: sdkmath.NewInt(3_000_000)},
	}}
	fmt.Println(CosmosTVL(state, map[string]uint8{"uosmo": 6}, map[string]sdkmath.LegacyDec{"uosmo": sdkmath.LegacyNewDec(2)}))
	// Output: 6
}
