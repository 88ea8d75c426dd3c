// Package rational provides the exact-decimal arithmetic the tabulation
// engine relies on. Ballot weights and tallies are rational numbers
// represented as normalized numerator/denominator pairs; nothing in this
// package ever converts to float64.
package rational

import "math/big"

// Zero returns the rational zero. Each call returns a distinct value safe
// to mutate.
func Zero() *big.Rat {
	return new(big.Rat)
}

// One returns the rational one.
func One() *big.Rat {
	return big.NewRat(1, 1)
}

// Add returns a + b without mutating either argument.
func Add(a, b *big.Rat) *big.Rat {
	return new(big.Rat).Add(a, b)
}

// Sub returns a - b without mutating either argument.
func Sub(a, b *big.Rat) *big.Rat {
	return new(big.Rat).Sub(a, b)
}

// Mul returns a * b without mutating either argument.
func Mul(a, b *big.Rat) *big.Rat {
	return new(big.Rat).Mul(a, b)
}

// Quo returns a / b without mutating either argument. Panics if b is zero,
// matching math/big.Rat.Quo's own contract.
func Quo(a, b *big.Rat) *big.Rat {
	return new(big.Rat).Quo(a, b)
}

// IsZero reports whether r is exactly zero.
func IsZero(r *big.Rat) bool {
	return r.Sign() == 0
}

// IsPositive reports whether r is strictly greater than zero.
func IsPositive(r *big.Rat) bool {
	return r.Sign() > 0
}

// FromInt converts an integer vote count to an exact rational.
func FromInt(n int) *big.Rat {
	return new(big.Rat).SetInt64(int64(n))
}

// Sum adds a slice of rationals, returning zero for an empty slice.
func Sum(rs ...*big.Rat) *big.Rat {
	total := Zero()
	for _, r := range rs {
		total.Add(total, r)
	}
	return total
}

// RoundMode selects the rounding rule applied when an exact rational is
// truncated to a fixed number of decimal places for reporting.
type RoundMode int

const (
	// RoundHalfUp rounds .5 away from zero.
	RoundHalfUp RoundMode = iota
	// RoundHalfEven rounds .5 to the nearest even digit (banker's rounding).
	RoundHalfEven
)

// Round truncates r to places decimal digits under the given mode. The
// result is itself an exact rational (e.g. 1/3 rounded to 2 places is
// exactly 33/100), preserving the "no floating point" requirement even at
// the reporting boundary.
func Round(r *big.Rat, places int, mode RoundMode) *big.Rat {
	if places < 0 {
		places = 0
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil)
	scaleRat := new(big.Rat).SetInt(scale)

	scaled := new(big.Rat).Mul(r, scaleRat)

	neg := scaled.Sign() < 0
	if neg {
		scaled.Neg(scaled)
	}

	num := new(big.Int).Set(scaled.Num())
	den := scaled.Denom()

	quotient := new(big.Int)
	remainder := new(big.Int)
	quotient.QuoRem(num, den, remainder)

	if remainder.Sign() != 0 {
		twiceRemainder := new(big.Int).Lsh(remainder, 1)
		cmp := twiceRemainder.Cmp(den)

		roundUp := false
		switch {
		case cmp > 0:
			roundUp = true
		case cmp == 0:
			switch mode {
			case RoundHalfEven:
				roundUp = quotient.Bit(0) == 1
			default:
				roundUp = true
			}
		}

		if roundUp {
			quotient.Add(quotient, big.NewInt(1))
		}
	}

	result := new(big.Rat).SetFrac(quotient, scale)
	if neg {
		result.Neg(result)
	}
	return result
}

// Cmp is a thin readability wrapper around (*big.Rat).Cmp for call sites
// that compare tallies against a threshold.
func Cmp(a, b *big.Rat) int {
	return a.Cmp(b)
}
