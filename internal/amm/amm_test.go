package amm

import (
	"errors"
	"math"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityOracle/internal/model"
)

func tokens(amount int64, decimals uint8) *big.Int {
	return new(big.Int).Mul(big.NewInt(amount), pow10(decimals))
}

func TestV2PriceReciprocal(t *testing.T) {
	states := []struct {
		r0, r1     *big.Int
		dec0, dec1 uint8
	}{
		{tokens(1_000_000, 6), tokens(500, 18), 6, 18},
		{big.NewInt(123456789), big.NewInt(987654321987), 8, 18},
		{tokens(42, 18), tokens(42, 18), 18, 18},
		{big.NewInt(1), new(big.Int).Lsh(big.NewInt(1), 111), 0, 18},
	}
	for _, s := range states {
		aInB, err := V2Price(s.r0, s.r1, s.dec0, s.dec1)
		require.NoError(t, err)
		bInA, err := V2Price(s.r1, s.r0, s.dec1, s.dec0)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, aInB*bInA, 1e-12)
	}
}

func TestV2TrackedPriceExample(t *testing.T) {
	// token0: 1,000,000 units of a 6-decimal token, token1 (tracked): 500 units of an 18-decimal token.
	reserve0 := tokens(1_000_000, 6)
	reserve1 := tokens(500, 18)

	ratio, err := V2TrackedPrice(reserve0, reserve1, false, 18, 6)
	require.NoError(t, err)
	assert.InDelta(t, 2000.0, ratio, 1e-9)

	usd := ratio * 3000
	assert.InDelta(t, 6_000_000.0, usd, 1e-6)
}

func TestV2PriceDivisionByZero(t *testing.T) {
	_, err := V2Price(big.NewInt(0), big.NewInt(10), 18, 18)
	assert.ErrorIs(t, err, ErrDivisionByZero)

	_, err = V2Price(nil, big.NewInt(10), 18, 18)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestV3PriceAtParity(t *testing.T) {
	price, err := V3Price0In1(new(big.Int).Set(q96), 18, 18)
	require.NoError(t, err)
	assert.Equal(t, 1.0, price)

	// Same raw ratio, but token0 has 12 fewer decimals.
	price, err = V3Price0In1(new(big.Int).Set(q96), 6, 18)
	require.NoError(t, err)
	assert.InDelta(t, 1e-12, price, 1e-24)
}

func TestV3TrackedPriceUSDCWETH(t *testing.T) {
	// token0 = USDC (6), token1 = WETH (18), ETH at $3000.
	sqrtPrice, err := SqrtPriceX96FromPrice(1.0/3000.0, 6, 18)
	require.NoError(t, err)
	require.Greater(t, sqrtPrice.BitLen(), 64)

	ethInUSDC, err := V3TrackedPrice(sqrtPrice, 6, 18, false)
	require.NoError(t, err)
	assert.InEpsilon(t, 3000.0, ethInUSDC, 1e-9)

	usdcInEth, err := V3TrackedPrice(sqrtPrice, 6, 18, true)
	require.NoError(t, err)
	assert.InEpsilon(t, 1.0/3000.0, usdcInEth, 1e-9)
}

func TestV3SqrtPriceRoundTrip(t *testing.T) {
	inputs := []string{
		"79228162514264337593543950336",
		"1461446703485210103287273052203988822378723970341",
		"4295128740",
		"1771595571142957166518320255467520",
		"3068493046300702895936233891",
	}
	for _, input := range inputs {
		sqrtPrice, ok := new(big.Int).SetString(input, 10)
		require.True(t, ok)

		price, err := V3Price0In1(sqrtPrice, 18, 6)
		require.NoError(t, err)

		back, err := SqrtPriceX96FromPrice(price, 18, 6)
		require.NoError(t, err)

		diff := new(big.Float).SetInt(new(big.Int).Sub(back, sqrtPrice))
		rel, _ := new(big.Float).Quo(diff, new(big.Float).SetInt(sqrtPrice)).Float64()
		assert.Less(t, math.Abs(rel), 1e-9, "round trip of %s", input)
	}
}

func TestV3InvalidState(t *testing.T) {
	_, err := V3Price0In1(big.NewInt(0), 18, 18)
	assert.ErrorIs(t, err, model.ErrInvalidPoolState)

	_, err = V3TrackedPrice(nil, 18, 18, false)
	assert.ErrorIs(t, err, model.ErrInvalidPoolState)

	_, err = SqrtPriceX96FromPrice(0, 18, 18)
	assert.ErrorIs(t, err, model.ErrInvalidPoolState)

	_, _, err = V3Amounts(big.NewInt(1), big.NewInt(0), 18, 18)
	assert.ErrorIs(t, err, model.ErrInvalidPoolState)
}

func TestV3AmountsApproximation(t *testing.T) {
	liquidity := tokens(1, 18)
	amount0, amount1, err := V3Amounts(liquidity, new(big.Int).Set(q96), 18, 18)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, amount0, 1e-12)
	assert.InDelta(t, 1.0, amount1, 1e-12)

	// Price 4 (sqrt 2): token0 amount halves and token1 amount doubles.
	doubled := new(big.Int).Lsh(q96, 1)
	amount0, amount1, err = V3Amounts(liquidity, doubled, 18, 18)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, amount0, 1e-12)
	assert.InDelta(t, 2.0, amount1, 1e-12)
}

func TestBalancerSpotPriceExample(t *testing.T) {
	weight := sdkmath.NewInt(536870912000000)
	page := sdkmath.NewInt(10_000).Mul(sdkmath.NewInt(100_000_000))
	osmo := sdkmath.NewInt(50_000).Mul(sdkmath.NewInt(1_000_000))

	pageInOsmo, err := BalancerSpotPrice(page, weight, 8, osmo, weight, 6)
	require.NoError(t, err)
	assert.True(t, pageInOsmo.Equal(sdkmath.LegacyNewDec(5)), pageInOsmo.String())

	osmoUSD := sdkmath.LegacyMustNewDecFromStr("0.5")
	pageUSD := pageInOsmo.Mul(osmoUSD)
	assert.True(t, pageUSD.Equal(sdkmath.LegacyMustNewDecFromStr("2.5")), pageUSD.String())

	f, err := pageUSD.Float64()
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)
}

func TestBalancerSpotPriceWeights(t *testing.T) {
	// 80/20 pool: base 80% weight with 400 units, quote 20% with 100 units -> (100/20)/(400/80) = 1.
	price, err := BalancerSpotPrice(sdkmath.NewInt(400), sdkmath.NewInt(80), 0, sdkmath.NewInt(100), sdkmath.NewInt(20), 0)
	require.NoError(t, err)
	assert.True(t, price.Equal(sdkmath.LegacyOneDec()), price.String())

	// Missing weights fall back to quote/base.
	price, err = BalancerSpotPrice(sdkmath.NewInt(400), sdkmath.Int{}, 0, sdkmath.NewInt(100), sdkmath.Int{}, 0)
	require.NoError(t, err)
	assert.True(t, price.Equal(sdkmath.LegacyMustNewDecFromStr("0.25")), price.String())

	_, err = BalancerSpotPrice(sdkmath.ZeroInt(), sdkmath.NewInt(1), 0, sdkmath.NewInt(100), sdkmath.NewInt(1), 0)
	assert.True(t, errors.Is(err, ErrDivisionByZero))
}

func TestBalancerSpotPriceRejectsOversizedDecimals(t *testing.T) {
	_, err := BalancerSpotPrice(sdkmath.NewInt(400), sdkmath.NewInt(1), 80, sdkmath.NewInt(100), sdkmath.NewInt(1), 6)
	require.ErrorIs(t, err, ErrDecimalsOutOfRange)

	_, err = BalancerSpotPrice(sdkmath.NewInt(400), sdkmath.NewInt(1), 6, sdkmath.NewInt(100), sdkmath.NewInt(1), model.MaxCosmosDecimals+1)
	require.ErrorIs(t, err, ErrDecimalsOutOfRange)

	_, err = BalancerSpotPrice(sdkmath.NewInt(400), sdkmath.NewInt(1), model.MaxCosmosDecimals, sdkmath.NewInt(100), sdkmath.NewInt(1), model.MaxCosmosDecimals)
	require.NoError(t, err)
}

func TestWeightedAverageEqualLiquidityIsMean(t *testing.T) {
	obs := []Observation{
		{Chain: model.ChainEthereum, Price: 1.0, Liquidity: 500},
		{Chain: model.ChainOptimism, Price: 2.0, Liquidity: 500},
		{Chain: model.ChainBase, Price: 4.5, Liquidity: 500},
	}
	avg, err := WeightedAverage(obs)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, avg, 1e-12)
}

func TestWeightedAverageZeroLiquidityExcluded(t *testing.T) {
	obs := []Observation{
		{Chain: model.ChainEthereum, Price: 1.0, Liquidity: 100},
		{Chain: model.ChainBase, Price: 3.0, Liquidity: 300},
		{Chain: model.ChainOsmosis, Price: 10.0, Liquidity: 0},
	}
	first, err := WeightedAverage(obs)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, first, 1e-12)

	obs[2].Price = 1000.0
	second, err := WeightedAverage(obs)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestWeightedAverageFallbacks(t *testing.T) {
	avg, err := WeightedAverage([]Observation{
		{Chain: model.ChainEthereum, Price: 2.0},
		{Chain: model.ChainBase, Price: 4.0},
		{Chain: model.ChainOsmosis, Price: 0},
	})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, avg, 1e-12)

	_, err = WeightedAverage(nil)
	assert.ErrorIs(t, err, ErrNoEligiblePrices)

	_, err = WeightedAverage([]Observation{{Chain: model.ChainBase, Price: math.NaN(), Liquidity: 1}})
	assert.ErrorIs(t, err, ErrNoEligiblePrices)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1.500000", FormatAmount(big.NewInt(1_500_000), 6))
	assert.Equal(t, "-0.05", FormatAmount(big.NewInt(-5), 2))
	assert.Equal(t, "0", FormatAmount(nil, 18))
	assert.Equal(t, "42", FormatAmount(big.NewInt(42), 0))
}
