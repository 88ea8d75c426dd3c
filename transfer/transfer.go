// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package transfer walks each ballot's rank map against the current
// candidate statuses to determine its effective assignment (spec §4.2),
// generalizing the teacher's "walk a collection, branch on a per-item
// rule, accumulate a result" shape (handlers/bmj.go's score walk) from a
// single pass over scores to a rank-by-rank walk with overvote/skip/
// duplicate branching.
package transfer

import (
	"github.com/rankedvote/tabulator/ballot"
	"github.com/rankedvote/tabulator/config"
)

// Assign recomputes a ballot's effective current assignment. It is called
// once per ballot per round for any ballot whose previous assignment is no
// longer Continuing (the tabulator skips the recomputation otherwise, per
// spec §4.1 step 1's "no recomputation needed" shortcut).
//
// Assign mutates st in place: it sets st.CurrentRank, st.AssignedCandidate,
// and st.Exhausted.
//
// The walk always runs out to cfg.MaxRankingsAllowed rather than stopping
// at the ballot's own last marked rank: a ballot that simply didn't mark
// further ranks has empty ranks past that point like any other skipped
// rank, and those positions are still subject to SkippedRankRule.
func Assign(b *ballot.Ballot, st *ballot.State, statuses ballot.StatusMap, cfg config.Config) {
	seen := make(map[string]bool)
	consecutiveSkips := 0

	maxRank := cfg.MaxRankingsAllowed

	for rank := 1; rank <= maxRank; rank++ {
		candidates := b.CandidatesAt(rank)

		if len(candidates) == 0 {
			switch cfg.SkippedRankRule {
			case config.ExhaustOnSkippedRank:
				exhaust(st, rank, ballot.ExhaustedSkippedRank)
				return
			case config.ExhaustOnTwoConsecutiveSkippedRanks:
				consecutiveSkips++
				if consecutiveSkips >= 2 {
					exhaust(st, rank, ballot.ExhaustedSkippedRank)
					return
				}
			}
			continue
		}
		consecutiveSkips = 0

		candidateID := resolveBlank(candidates, cfg)

		if len(candidateID) > 1 {
			assigned, stop := handleOvervote(candidateID, statuses, cfg)
			if stop {
				exhaust(st, rank, ballot.ExhaustedOvervote)
				return
			}
			if assigned == "" {
				continue
			}
			candidateID = []string{assigned}
		}

		id := candidateID[0]

		if seen[id] {
			switch cfg.DuplicateCandidateRule {
			case config.DuplicateExhaust:
				exhaust(st, rank, ballot.ExhaustedDuplicate)
				return
			case config.DuplicateSkipToNext:
				continue
			}
		}
		seen[id] = true

		switch statuses.Kind(id) {
		case ballot.Continuing:
			st.CurrentRank = rank
			st.AssignedCandidate = id
			st.Exhausted = ballot.NotExhausted
			return
		default:
			continue // Elected, Eliminated, Excluded: this candidate is used up
		}
	}

	exhaust(st, maxRank, ballot.ExhaustedNoMoreRankings)
}

// NeedsReassignment reports whether a ballot's existing assignment is
// stale and must be re-walked: it is stale when the ballot is not already
// exhausted and its assigned candidate is no longer Continuing.
func NeedsReassignment(st *ballot.State, statuses ballot.StatusMap) bool {
	if st.IsExhausted() {
		return false
	}
	if st.AssignedCandidate == "" {
		return true
	}
	return !statuses.IsContinuing(st.AssignedCandidate)
}

func exhaust(st *ballot.State, rank int, reason ballot.ExhaustionReason) {
	st.CurrentRank = rank
	st.AssignedCandidate = ""
	st.Exhausted = reason
}

// resolveBlank maps an empty candidate-ID rank entry to UWI when
// configured to, otherwise returns the entry unchanged. A genuinely empty
// rank entry is handled earlier as a skipped rank; this only concerns
// ballots whose vendor format encodes a blank write-in as an empty string
// ID within a non-empty entry.
func resolveBlank(candidates []string, cfg config.Config) []string {
	if !cfg.TreatBlankAsUndeclaredWriteIn {
		return candidates
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		if c == "" {
			out[i] = ballot.UWI
		} else {
			out[i] = c
		}
	}
	return out
}

// handleOvervote applies the overvote rule to a multi-candidate rank
// entry. It returns (candidateID, false) when the ballot should be
// assigned to a single continuing candidate, ("", false) when the walk
// should simply advance to the next rank, and (_, true) when the ballot
// is immediately exhausted as an overvote.
func handleOvervote(candidates []string, statuses ballot.StatusMap, cfg config.Config) (string, bool) {
	switch cfg.OvervoteRule {
	case config.ExhaustImmediately:
		return "", true

	case config.AlwaysSkipToNextRank:
		return "", false

	case config.ExhaustIfMultipleContinuing:
		var continuing []string
		for _, id := range candidates {
			if statuses.IsContinuing(id) {
				continuing = append(continuing, id)
			}
		}
		switch len(continuing) {
		case 0:
			return "", false
		case 1:
			return continuing[0], false
		default:
			return "", true
		}

	default:
		return "", true
	}
}
