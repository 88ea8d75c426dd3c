// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package result defines the in-memory outcome record the tabulation
// engine returns. Serialization (summary JSON, CDF JSON, audit log) is an
// external concern (spec §1); this package only accumulates the data.
package result

import (
	"math/big"
	"time"

	"github.com/rankedvote/tabulator/tiebreak"
)

// Transfer records one candidate's weight movement out of a round: either
// a surplus fraction (elected candidates) or a full-weight elimination
// transfer.
type Transfer struct {
	FromCandidate string
	Fraction      *big.Rat // 1 for a full elimination transfer
}

// RoundOutcome is one round's full accounting: the tally, the threshold in
// force, who was elected/eliminated, the transfers applied, and any tie
// resolutions consulted.
type RoundOutcome struct {
	Round      int
	Tally      map[string]*big.Rat
	Exhausted  *big.Rat
	Overvote   *big.Rat
	Skipped    *big.Rat
	Threshold  *big.Rat
	Elected    []string
	Eliminated []string
	Transfers  []Transfer
	TieBreaks  []tiebreak.Resolution
}

// Terminal enumerates how a tabulation run ended.
type Terminal int

const (
	TerminalNormal Terminal = iota
	TerminalCancelled
)

// Result is the full, ordered record of a tabulation run.
type Result struct {
	ContestID        string
	RunID            string
	RoundOutcomes    []RoundOutcome
	ElectedInOrder   []string
	TieBreakLog      []tiebreak.Resolution
	FinalTallies     map[string]*big.Rat
	GeneratedAt      time.Time
	Terminal         Terminal
}

// New returns an empty Result for the given contest/run identifiers.
func New(contestID, runID string) *Result {
	return &Result{ContestID: contestID, RunID: runID}
}

// AppendRound records one round's outcome and folds any newly-elected
// candidates into ElectedInOrder (which, across the whole run, reflects
// the order candidates actually won seats in).
func (r *Result) AppendRound(o RoundOutcome) {
	r.RoundOutcomes = append(r.RoundOutcomes, o)
	r.ElectedInOrder = append(r.ElectedInOrder, o.Elected...)
	r.TieBreakLog = append(r.TieBreakLog, o.TieBreaks...)
}
