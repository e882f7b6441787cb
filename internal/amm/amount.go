// Package amm holds the pure pricing math for the supported AMM families.
// Nothing in this package performs I/O.
package amm

import (
	"errors"
	"math/big"
)

var (
	// ErrDivisionByZero is returned instead of coercing a ratio to zero or infinity.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrNoEligiblePrices is returned when an aggregate has nothing to average.
	ErrNoEligiblePrices = errors.New("no eligible prices")
	// ErrDecimalsOutOfRange is returned for token decimals the decimal type cannot scale by.
	ErrDecimalsOutOfRange = errors.New("decimals out of range")
)

const floatPrec = 256

var (
	q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	q192 = new(big.Int).Lsh(big.NewInt(1), 192)
)

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// NormalizeRat converts a raw integer amount into whole-token units.
func NormalizeRat(raw *big.Int, decimals uint8) *big.Rat {
	if raw == nil {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(raw, pow10(decimals))
}

// Normalize converts a raw integer amount into whole-token units as a float64.
func Normalize(raw *big.Int, decimals uint8) float64 {
	f, _ := NormalizeRat(raw, decimals).Float64()
	return f
}

// FormatAmount renders a raw amount with its decimal point applied.
func FormatAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	text := new(big.Rat).SetFrac(abs, pow10(decimals)).FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}
