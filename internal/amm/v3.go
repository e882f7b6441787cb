package amm

import (
	"fmt"
	"math/big"

	"liquidityOracle/internal/model"
)

// v3Price0In1Rat returns the decimal-adjusted price of token0 in token1 units:
// sqrtPriceX96² / 2^192 × 10^(decimals0 − decimals1). Squaring stays in big.Int
// because a 160-bit value squared does not fit any fixed-width type.
func v3Price0In1Rat(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) (*big.Rat, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return nil, fmt.Errorf("%w: sqrtPriceX96 must be positive", model.ErrInvalidPoolState)
	}
	squared := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	price := new(big.Rat).SetFrac(squared, q192)
	price.Mul(price, new(big.Rat).SetFrac(pow10(decimals0), pow10(decimals1)))
	return price, nil
}

// V3Price0In1 returns how many token1 one token0 is worth.
func V3Price0In1(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) (float64, error) {
	price, err := v3Price0In1Rat(sqrtPriceX96, decimals0, decimals1)
	if err != nil {
		return 0, err
	}
	f, _ := price.Float64()
	return f, nil
}

// V3TrackedPrice prices the tracked token in units of the other pool token.
func V3TrackedPrice(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8, trackedIsToken0 bool) (float64, error) {
	price, err := v3Price0In1Rat(sqrtPriceX96, decimals0, decimals1)
	if err != nil {
		return 0, err
	}
	if !trackedIsToken0 {
		if price.Sign() == 0 {
			return 0, fmt.Errorf("%w: token0 price is zero", ErrDivisionByZero)
		}
		price = new(big.Rat).Inv(price)
	}
	f, _ := price.Float64()
	return f, nil
}

// SqrtPriceX96FromPrice encodes a decimal-adjusted token0-in-token1 price back into
// the pool's fixed-point square-root representation.
func SqrtPriceX96FromPrice(price0In1 float64, decimals0, decimals1 uint8) (*big.Int, error) {
	if price0In1 <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", model.ErrInvalidPoolState)
	}
	raw := new(big.Float).SetPrec(floatPrec).SetFloat64(price0In1)
	raw.Mul(raw, new(big.Float).SetPrec(floatPrec).SetInt(pow10(decimals1)))
	raw.Quo(raw, new(big.Float).SetPrec(floatPrec).SetInt(pow10(decimals0)))

	root := new(big.Float).SetPrec(floatPrec).Sqrt(raw)
	root.Mul(root, new(big.Float).SetPrec(floatPrec).SetInt(q96))

	out, _ := root.Int(nil)
	return out, nil
}

// V3Amounts estimates the token amounts backing the current in-range liquidity:
//
//	amount0 ≈ L·2^96/sqrtPriceX96, amount1 ≈ L·sqrtPriceX96/2^96
//
// This treats all liquidity as sitting at the current tick. It is not an exact
// full-range accounting of the pool and can differ from the pool's token balances.
func V3Amounts(liquidity, sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) (float64, float64, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0, 0, fmt.Errorf("%w: sqrtPriceX96 must be positive", model.ErrInvalidPoolState)
	}
	if liquidity == nil || liquidity.Sign() < 0 {
		return 0, 0, fmt.Errorf("%w: liquidity must be non-negative", model.ErrInvalidPoolState)
	}

	raw0 := new(big.Rat).SetFrac(new(big.Int).Mul(liquidity, q96), sqrtPriceX96)
	raw1 := new(big.Rat).SetFrac(new(big.Int).Mul(liquidity, sqrtPriceX96), q96)

	amount0, _ := raw0.Quo(raw0, new(big.Rat).SetInt(pow10(decimals0))).Float64()
	amount1, _ := raw1.Quo(raw1, new(big.Rat).SetInt(pow10(decimals1))).Float64()
	return amount0, amount1, nil
}
