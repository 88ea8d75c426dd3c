// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package threshold computes the winning threshold a candidate's tally
// must reach to be elected (spec §4.3).
package threshold

import (
	"math/big"

	"github.com/rankedvote/tabulator/config"
	"github.com/rankedvote/tabulator/rational"
)

// Result carries the computed threshold and the comparison the tabulator
// must use against it. Both Droop and Hare use greater-than-or-equal
// (spec §4.1 step 4, §4.3, Open Question 2 resolved in DESIGN.md: the
// comparison operator is tied to the quota choice, not separately
// configurable — Droop's floor+1 already makes the threshold the minimal
// winning count, so reaching it is sufficient).
type Result struct {
	Threshold *big.Rat
	Strict    bool // true => candidate must have tally > Threshold to win
}

// Meets reports whether a candidate's tally clears the threshold under
// this Result's comparison rule.
func (r Result) Meets(tally *big.Rat) bool {
	cmp := tally.Cmp(r.Threshold)
	if r.Strict {
		return cmp > 0
	}
	return cmp >= 0
}

// Compute derives the threshold from the first round's active-assignment
// weights. cfg.ContinueUntilTwoRemainFlag disables the threshold check
// entirely (single-winner IRV decided by majority-of-continuing instead);
// callers should skip threshold comparison altogether in that mode.
func Compute(cfg config.Config, firstRoundActiveWeight *big.Rat) Result {
	v := firstRoundActiveWeight
	if !cfg.NonIntegerWinningThreshold {
		v = rational.Round(v, cfg.DecimalPlacesForVoteArithmetic, roundMode(cfg))
	}

	w := rational.FromInt(cfg.NumberOfWinners)

	if cfg.HareQuota {
		return Result{
			Threshold: rational.Quo(v, w),
			Strict:    false,
		}
	}

	// Droop: floor(V/(W+1)) + 1, computed exactly; this is already the
	// minimal winning tally, so reaching it (>=) is enough.
	wPlusOne := rational.Add(w, rational.One())
	quotient := rational.Quo(v, wPlusOne)
	floored := floorRat(quotient)
	return Result{
		Threshold: rational.Add(floored, rational.One()),
		Strict:    false,
	}
}

func roundMode(cfg config.Config) rational.RoundMode {
	if cfg.RoundTalliesHalfToEven {
		return rational.RoundHalfEven
	}
	return rational.RoundHalfUp
}

// floorRat returns the greatest integer (as an exact rational) <= r.
func floorRat(r *big.Rat) *big.Rat {
	num := new(big.Int).Set(r.Num())
	den := r.Denom()

	q := new(big.Int)
	m := new(big.Int)
	q.QuoRem(num, den, m)

	if m.Sign() != 0 && num.Sign() < 0 {
		q.Sub(q, big.NewInt(1))
	}

	return new(big.Rat).SetInt(q)
}
