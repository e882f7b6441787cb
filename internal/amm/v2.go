package amm

import (
	"fmt"
	"math/big"
)

// V2Price returns the price of token A denominated in token B for a constant-product
// pool: normalized reserve B divided by normalized reserve A.
func V2Price(reserveA, reserveB *big.Int, decimalsA, decimalsB uint8) (float64, error) {
	normA := NormalizeRat(reserveA, decimalsA)
	if normA.Sign() == 0 {
		return 0, fmt.Errorf("%w: reserve of priced token is zero", ErrDivisionByZero)
	}
	normB := NormalizeRat(reserveB, decimalsB)
	price, _ := new(big.Rat).Quo(normB, normA).Float64()
	return price, nil
}

// V2TrackedPrice prices the tracked token of a pair in units of the other pool token.
func V2TrackedPrice(reserve0, reserve1 *big.Int, trackedIsToken0 bool, trackedDecimals, pairDecimals uint8) (float64, error) {
	if trackedIsToken0 {
		return V2Price(reserve0, reserve1, trackedDecimals, pairDecimals)
	}
	return V2Price(reserve1, reserve0, trackedDecimals, pairDecimals)
}
