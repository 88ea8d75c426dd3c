// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package tiebreak resolves ties among candidates for election or
// elimination under one of six configurable modes (spec §4.4). The
// interactive mode never touches stdin itself — it defers to an injected
// Oracle, the re-architected form of the teacher's suspension-point
// re-architecture note (spec §9, "interactive side effect").
package tiebreak

import (
	"errors"
	"fmt"
	"math/big"
	"math/rand"

	"golang.org/x/exp/slices"

	"github.com/rankedvote/tabulator/config"
	"github.com/rankedvote/tabulator/tally"
)

// ErrTieUnresolvable is returned when PreviousRoundCounts exhausts every
// prior round without breaking the tie and no fallback mode applies
// (spec §7's TieUnresolvable kind).
var ErrTieUnresolvable = errors.New("tie unresolvable")

// ErrOracleCancelled is returned when an Oracle refuses to choose
// (spec §7's OracleCancelled kind).
var ErrOracleCancelled = errors.New("oracle cancelled")

// Oracle is the abstract capability the Interactive mode defers to. A test
// double or a console-backed implementation are both pure functions of
// their inputs for reproducibility, per spec §6.
type Oracle interface {
	ChooseLoser(tied []string, round int, tallies map[string]*big.Rat) (string, error)
	ChooseWinner(tied []string, round int, tallies map[string]*big.Rat) (string, error)
}

// Resolution is the outcome of one tie resolution: the chosen candidate
// plus a human-readable explanation for the audit log (spec §4.4's
// (chosen, explanation) contract).
type Resolution struct {
	Candidate   string
	Explanation string
}

// History gives PreviousRoundCounts access to every prior round's tally,
// indexed 1..len(History) (History[0] is round 1).
type History []*tally.RoundTally

// Breaker resolves ties using the mode and seed/permutation carried on
// Config.
type Breaker struct {
	cfg    config.Config
	oracle Oracle
}

// New constructs a Breaker. oracle may be nil if cfg.TieBreakMode never
// reaches an Interactive branch.
func New(cfg config.Config, oracle Oracle) *Breaker {
	return &Breaker{cfg: cfg, oracle: oracle}
}

// SelectLoser resolves a tie for elimination: the lowest-tally candidates
// among tied. round is the current round number; currentTally supplies
// the values tied candidates share; history supplies prior rounds for
// PreviousRoundCounts.
func (b *Breaker) SelectLoser(tied []string, round int, currentTally *tally.RoundTally, history History) (Resolution, error) {
	return b.resolve(tied, round, currentTally, history, false)
}

// SelectWinner resolves a tie for election: the highest-tally candidates
// among tied. Symmetric to SelectLoser.
func (b *Breaker) SelectWinner(tied []string, round int, currentTally *tally.RoundTally, history History) (Resolution, error) {
	return b.resolve(tied, round, currentTally, history, true)
}

func (b *Breaker) resolve(tied []string, round int, currentTally *tally.RoundTally, history History, selectWinner bool) (Resolution, error) {
	if len(tied) == 0 {
		return Resolution{}, fmt.Errorf("%w: empty tied set", ErrTieUnresolvable)
	}
	if len(tied) == 1 {
		return Resolution{Candidate: tied[0], Explanation: "only candidate in contention"}, nil
	}

	ordered := append([]string(nil), tied...)
	slices.Sort(ordered)

	switch b.cfg.TieBreakMode {
	case config.Interactive:
		return b.askOracle(ordered, round, currentTally, selectWinner)

	case config.Random:
		return b.pickRandom(ordered, round, selectWinner)

	case config.UsePermutation, config.GeneratePermutation:
		return b.pickByPermutation(ordered, selectWinner)

	case config.PreviousRoundCountsThenRandom:
		if res, ok, err := b.pickByPreviousRoundCounts(ordered, history, selectWinner); ok || err != nil {
			return res, err
		}
		return b.pickRandom(ordered, round, selectWinner)

	case config.PreviousRoundCountsThenInteractive:
		if res, ok, err := b.pickByPreviousRoundCounts(ordered, history, selectWinner); ok || err != nil {
			return res, err
		}
		return b.askOracle(ordered, round, currentTally, selectWinner)

	default:
		return Resolution{}, fmt.Errorf("%w: unrecognized tie break mode", ErrTieUnresolvable)
	}
}

func (b *Breaker) askOracle(tied []string, round int, currentTally *tally.RoundTally, selectWinner bool) (Resolution, error) {
	if b.oracle == nil {
		return Resolution{}, fmt.Errorf("%w: interactive mode configured with no oracle", ErrOracleCancelled)
	}

	values := make(map[string]*big.Rat, len(tied))
	for _, id := range tied {
		values[id] = currentTally.For(id)
	}

	var (
		chosen string
		err    error
	)
	if selectWinner {
		chosen, err = b.oracle.ChooseWinner(tied, round, values)
	} else {
		chosen, err = b.oracle.ChooseLoser(tied, round, values)
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %w", ErrOracleCancelled, err)
	}

	return Resolution{
		Candidate:   chosen,
		Explanation: fmt.Sprintf("operator choice among %v at round %d", tied, round),
	}, nil
}

func (b *Breaker) pickRandom(tied []string, round int, selectWinner bool) (Resolution, error) {
	src := rand.New(rand.NewSource(b.cfg.RandomSeed + int64(round)))
	idx := src.Intn(len(tied))
	role := "loser"
	if selectWinner {
		role = "winner"
	}
	return Resolution{
		Candidate:   tied[idx],
		Explanation: fmt.Sprintf("random draw (seed %d, round %d) selected %s among %v", b.cfg.RandomSeed, round, role, tied),
	}, nil
}

func (b *Breaker) pickByPermutation(tied []string, selectWinner bool) (Resolution, error) {
	order := b.cfg.CandidatePermutation
	if len(order) == 0 {
		return Resolution{}, fmt.Errorf("%w: permutation-based tie break mode configured with no candidatePermutation", ErrTieUnresolvable)
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}

	best := tied[0]
	bestPos, ok := pos[best]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: candidate %q absent from candidatePermutation", ErrTieUnresolvable, best)
	}
	for _, id := range tied[1:] {
		p, ok := pos[id]
		if !ok {
			return Resolution{}, fmt.Errorf("%w: candidate %q absent from candidatePermutation", ErrTieUnresolvable, id)
		}
		// Winner selection takes the earliest position; loser selection
		// takes the latest.
		if selectWinner && p < bestPos {
			best, bestPos = id, p
		}
		if !selectWinner && p > bestPos {
			best, bestPos = id, p
		}
	}

	return Resolution{
		Candidate:   best,
		Explanation: fmt.Sprintf("candidate permutation order selected %s among %v", best, tied),
	}, nil
}

// pickByPreviousRoundCounts scans rounds r-1..1, restricting to the tied
// set, looking for a uniquely lowest (loser) or highest (winner) prior
// tally. ok is false if every prior round remained fully tied, signalling
// the caller should fall through to its configured fallback.
func (b *Breaker) pickByPreviousRoundCounts(tied []string, history History, selectWinner bool) (Resolution, bool, error) {
	for r := len(history); r >= 1; r-- {
		roundTally := history[r-1]

		best := tied[0]
		bestVal := roundTally.For(best)
		unique := true
		for _, id := range tied[1:] {
			v := roundTally.For(id)
			cmp := v.Cmp(bestVal)
			better := (selectWinner && cmp > 0) || (!selectWinner && cmp < 0)
			tiedWithBest := cmp == 0
			if better {
				best, bestVal, unique = id, v, true
			} else if tiedWithBest {
				unique = false
			}
		}

		if unique {
			role := "lowest"
			if selectWinner {
				role = "highest"
			}
			return Resolution{
				Candidate:   best,
				Explanation: fmt.Sprintf("round %d tally was uniquely %s among %v", r, role, tied),
			}, true, nil
		}
	}
	return Resolution{}, false, nil
}
