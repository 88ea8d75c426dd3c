// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package surplus computes and applies the fractional-weight transfer a
// newly elected candidate's surplus votes undergo (spec §4.5).
package surplus

import (
	"math/big"

	"github.com/rankedvote/tabulator/ballot"
	"github.com/rankedvote/tabulator/rational"
)

// Elected describes one candidate elected in the current round, the
// input surplus transfer needs to compute its transfer fraction.
type Elected struct {
	CandidateID string
	RoundTally  *big.Rat
}

// Fraction is the per-candidate transfer fraction f = (tally - T) / tally.
// Zero when the candidate's tally exactly equals the threshold (no
// surplus to transfer).
type Fraction struct {
	CandidateID string
	F           *big.Rat
}

// ComputeFractions derives every elected candidate's transfer fraction
// from round-r state before any weight is mutated, so that simultaneously
// elected winners never see each other's transfer (spec §4.5: "No
// candidate's surplus depends on another's transfer within the same
// round").
func ComputeFractions(elected []Elected, threshold *big.Rat) []Fraction {
	fractions := make([]Fraction, 0, len(elected))
	for _, e := range elected {
		if !rational.IsPositive(e.RoundTally) || e.RoundTally.Cmp(threshold) <= 0 {
			fractions = append(fractions, Fraction{CandidateID: e.CandidateID, F: rational.Zero()})
			continue
		}
		surplus := rational.Sub(e.RoundTally, threshold)
		f := rational.Quo(surplus, e.RoundTally)
		fractions = append(fractions, Fraction{CandidateID: e.CandidateID, F: f})
	}
	return fractions
}

// Apply multiplies every ballot currently assigned to an elected
// candidate by that candidate's transfer fraction. states and ballots
// must be parallel slices (ballots[i]'s mutable state is states[i]).
// Applying every fraction from the already-computed slice (rather than
// recomputing per-candidate mid-loop) is what keeps simultaneous
// elections independent.
func Apply(ballots []*ballot.Ballot, states []*ballot.State, fractions []Fraction) {
	byCandidate := make(map[string]*big.Rat, len(fractions))
	for _, fr := range fractions {
		byCandidate[fr.CandidateID] = fr.F
	}

	for i, b := range ballots {
		st := states[i]
		if st.IsExhausted() || rational.IsZero(st.Weight) {
			continue
		}
		f, ok := byCandidate[st.AssignedCandidate]
		if !ok {
			continue
		}
		_ = b // ballot identity not needed beyond its parallel state
		st.Weight = rational.Mul(st.Weight, f)
	}
}

// RecordedTally returns a newly elected candidate's round-r tally as
// recorded in the Result bookkeeping: the threshold itself, since the
// surplus above it is attributed to the transfer ledger rather than the
// candidate's own recorded tally (spec §4.5, last sentence).
func RecordedTally(roundTally *big.Rat, threshold *big.Rat) *big.Rat {
	if roundTally.Cmp(threshold) <= 0 {
		return roundTally
	}
	return threshold
}
