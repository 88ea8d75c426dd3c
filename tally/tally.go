// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package tally holds the per-round tally and its inverted index. Both are
// rebuilt from scratch every round (spec §4.6) and rely on an explicit
// canonical candidate ordering rather than Go's unspecified map iteration
// order, per spec §9's "never iterate hashed containers" note.
package tally

import (
	"math/big"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/rankedvote/tabulator/rational"
)

// RoundTally is the per-round candidate->vote-weight mapping, restricted
// to Continuing candidates, plus the three exhaustion buckets.
type RoundTally struct {
	byCandidate map[string]*big.Rat
	Exhausted   *big.Rat
	Overvote    *big.Rat
	Skipped     *big.Rat
}

// New returns an empty RoundTally.
func New() *RoundTally {
	return &RoundTally{
		byCandidate: make(map[string]*big.Rat),
		Exhausted:   rational.Zero(),
		Overvote:    rational.Zero(),
		Skipped:     rational.Zero(),
	}
}

// Add accumulates weight into a candidate's bucket.
func (t *RoundTally) Add(candidateID string, weight *big.Rat) {
	cur, ok := t.byCandidate[candidateID]
	if !ok {
		cur = rational.Zero()
	}
	t.byCandidate[candidateID] = rational.Add(cur, weight)
}

// For returns a candidate's current tally, or exact zero if it has none.
func (t *RoundTally) For(candidateID string) *big.Rat {
	if v, ok := t.byCandidate[candidateID]; ok {
		return v
	}
	return rational.Zero()
}

// Candidates returns every candidate ID with a non-empty tally entry, in
// no particular order (callers needing a canonical order use TallyIndex).
func (t *RoundTally) Candidates() []string {
	return maps.Keys(t.byCandidate)
}

// Total sums every continuing candidate's tally plus the exhaustion
// buckets. Used to check the conservation invariant (spec §3 invariant 1,
// §8 property 1).
func (t *RoundTally) Total() *big.Rat {
	total := rational.Sum(t.Exhausted, t.Overvote, t.Skipped)
	for _, v := range t.byCandidate {
		total = rational.Add(total, v)
	}
	return total
}

// CanonicalLess builds a three-way comparator from the canonical ordering:
// candidates present in order are compared by their index in it; any
// candidate absent from order (should not happen for a validated config)
// sorts after all present candidates, then lexicographically. Exported so
// callers outside this package (e.g. tie-break ordering within a round)
// can sort candidate ID slices the same deterministic way TallyIndex does.
func CanonicalLess(order []string) func(a, b string) int {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	return func(a, b string) int {
		ia, aok := pos[a]
		ib, bok := pos[b]
		switch {
		case aok && bok:
			return ia - ib
		case aok:
			return -1
		case bok:
			return 1
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
}

// Index is the inverted view of a RoundTally: an ordered list of
// (tally value, candidates at that tally) buckets. Candidate lists within
// a bucket follow the canonical ordering (the configured permutation, or
// lexicographic candidate ID), never map iteration order.
type Index struct {
	buckets []Bucket
}

// Bucket pairs one tally value with every continuing candidate holding it.
type Bucket struct {
	Tally      *big.Rat
	Candidates []string
}

// BuildIndex constructs a TallyIndex from a RoundTally. order is the
// canonical candidate ordering (config.CandidatePermutation if set, else
// the caller should pass a lexicographically sorted candidate ID list).
// descending selects winner-selection order (highest tally first) vs.
// loser-selection order (lowest tally first, ascending=!descending).
func BuildIndex(t *RoundTally, order []string, descending bool) *Index {
	candidates := t.Candidates()
	slices.SortFunc(candidates, CanonicalLess(order))

	byValue := make(map[string][]string)
	var values []*big.Rat
	seen := make(map[string]bool)
	for _, id := range candidates {
		v := t.For(id)
		key := v.RatString()
		if !seen[key] {
			seen[key] = true
			values = append(values, v)
		}
		byValue[key] = append(byValue[key], id)
	}

	slices.SortFunc(values, func(a, b *big.Rat) int {
		c := a.Cmp(b)
		if descending {
			return -c
		}
		return c
	})

	buckets := make([]Bucket, 0, len(values))
	for _, v := range values {
		key := v.RatString()
		buckets = append(buckets, Bucket{Tally: v, Candidates: byValue[key]})
	}

	return &Index{buckets: buckets}
}

// Buckets returns the ordered tally buckets.
func (idx *Index) Buckets() []Bucket {
	return idx.buckets
}

// TopCandidates returns the candidate(s) in the first bucket (the highest
// tally if the index was built descending, the lowest if ascending), or
// nil if the index is empty.
func (idx *Index) TopCandidates() []string {
	if len(idx.buckets) == 0 {
		return nil
	}
	return idx.buckets[0].Candidates
}

// CanonicalOrder returns the ordering to use for TallyIndex construction
// and tie-candidate enumeration: the configured permutation if non-empty,
// otherwise every known candidate ID sorted lexicographically.
func CanonicalOrder(permutation []string, allCandidateIDs []string) []string {
	if len(permutation) > 0 {
		return permutation
	}
	sorted := append([]string(nil), allCandidateIDs...)
	slices.SortFunc(sorted, func(a, b string) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	})
	return sorted
}
