package amm

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"liquidityOracle/internal/model"
)

// NormalizeCosmos converts a raw Cosmos amount into whole-token units. Decimals above
// model.MaxCosmosDecimals overflow LegacyDec and are rejected.
func NormalizeCosmos(amount sdkmath.Int, decimals uint8) (sdkmath.LegacyDec, error) {
	if decimals > model.MaxCosmosDecimals {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %d", ErrDecimalsOutOfRange, decimals)
	}
	if amount.IsNil() {
		return sdkmath.LegacyZeroDec(), nil
	}
	return sdkmath.LegacyNewDecFromInt(amount).Quo(sdkmath.LegacyNewDec(10).Power(uint64(decimals))), nil
}

func weightDec(weight sdkmath.Int) sdkmath.LegacyDec {
	if weight.IsNil() || !weight.IsPositive() {
		return sdkmath.LegacyOneDec()
	}
	return sdkmath.LegacyNewDecFromInt(weight)
}

// BalancerSpotPrice returns the price of the base asset in quote units for a weighted
// pool: (quote/wQuote) / (base/wBase). With equal or missing weights this is quote/base.
// Both weights must be set for them to be applied.
func BalancerSpotPrice(baseAmount, baseWeight sdkmath.Int, baseDecimals uint8, quoteAmount, quoteWeight sdkmath.Int, quoteDecimals uint8) (sdkmath.LegacyDec, error) {
	base, err := NormalizeCosmos(baseAmount, baseDecimals)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("base: %w", err)
	}
	if !base.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: base amount is zero", ErrDivisionByZero)
	}
	quote, err := NormalizeCosmos(quoteAmount, quoteDecimals)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("quote: %w", err)
	}

	wBase, wQuote := sdkmath.LegacyOneDec(), sdkmath.LegacyOneDec()
	if !baseWeight.IsNil() && baseWeight.IsPositive() && !quoteWeight.IsNil() && quoteWeight.IsPositive() {
		wBase, wQuote = weightDec(baseWeight), weightDec(quoteWeight)
	}

	return quote.Mul(wBase).Quo(base.Mul(wQuote)), nil
}
