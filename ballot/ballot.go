// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package ballot defines the tabulation engine's immutable ballot/candidate
// data model and the per-run mutable ballot state the round driver updates.
package ballot

import "math/big"

// UWI is the sentinel candidate ID representing an undeclared write-in.
const UWI = "UWI"

// Candidate is an opaque, immutable contest participant.
type Candidate struct {
	ID   string
	Name string
}

// StatusKind enumerates the lifecycle states a candidate passes through
// during a single tabulation run. Transitions are one-way: Continuing may
// become Elected or Eliminated, never the reverse.
type StatusKind int

const (
	Continuing StatusKind = iota
	Elected
	Eliminated
	Excluded
)

func (k StatusKind) String() string {
	switch k {
	case Continuing:
		return "continuing"
	case Elected:
		return "elected"
	case Eliminated:
		return "eliminated"
	case Excluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// Status records a candidate's terminal (or still-continuing) state. Round
// and Order are meaningful only once Kind is Elected or Eliminated: Round
// is the 1-indexed round the transition happened in, Order is the
// within-round sequence (for simultaneous batch eliminations or
// same-round multi-seat elections).
type Status struct {
	Kind  StatusKind
	Round int
	Order int
}

// Continuing reports whether the candidate is still eligible to receive
// votes.
func (s Status) Continuing() bool {
	return s.Kind == Continuing
}

// Terminal reports whether the candidate's status can never change again.
func (s Status) Terminal() bool {
	return s.Kind == Elected || s.Kind == Eliminated
}

// RankEntry is one (rank position, candidate IDs) pair from a ballot's
// rank map. Len(Candidates) > 1 encodes an overvote at that rank.
type RankEntry struct {
	Rank       int
	Candidates []string
}

// Ballot is an immutable cast vote record: a stable ID, an optional
// precinct tag, and a rank map. Ranks need not be contiguous.
type Ballot struct {
	ID       string
	Precinct string // empty if not supplied
	Ranks    []RankEntry
}

// CandidatesAt returns the candidate set marked at the given rank
// position, or nil if that rank has no entry (a skipped rank).
func (b *Ballot) CandidatesAt(rank int) []string {
	for _, entry := range b.Ranks {
		if entry.Rank == rank {
			return entry.Candidates
		}
	}
	return nil
}

// MaxRank returns the highest rank position present on the ballot, or 0
// for a ballot with no marks at all.
func (b *Ballot) MaxRank() int {
	max := 0
	for _, entry := range b.Ranks {
		if entry.Rank > max {
			max = entry.Rank
		}
	}
	return max
}

// ExhaustionReason names why a ballot stopped contributing to any
// continuing candidate's tally.
type ExhaustionReason int

const (
	NotExhausted ExhaustionReason = iota
	ExhaustedOvervote
	ExhaustedSkippedRank
	ExhaustedDuplicate
	ExhaustedNoMoreRankings
)

func (r ExhaustionReason) String() string {
	switch r {
	case NotExhausted:
		return ""
	case ExhaustedOvervote:
		return "overvote"
	case ExhaustedSkippedRank:
		return "skipped"
	case ExhaustedDuplicate:
		return "duplicate"
	case ExhaustedNoMoreRankings:
		return "noMoreRankings"
	default:
		return "unknown"
	}
}

// State is the mutable, per-ballot, per-run bookkeeping the round driver
// carries between rounds. Weight is monotonically non-increasing; it never
// resets across rounds within one Tabulate call.
type State struct {
	Weight            *big.Rat
	CurrentRank       int // 0 if not yet assigned or exhausted
	AssignedCandidate string
	Exhausted         ExhaustionReason
}

// NewState returns the initial per-ballot state: full weight, unassigned.
func NewState() *State {
	return &State{Weight: big.NewRat(1, 1)}
}

// IsExhausted reports whether the ballot has stopped contributing to any
// candidate's tally.
func (s *State) IsExhausted() bool {
	return s.Exhausted != NotExhausted
}

// StatusMap is the per-run candidate-ID -> Status view the round driver
// passes to BallotTransfer and SurplusTransfer. A candidate absent from
// the map is treated as Continuing unless it is the UWI sentinel and the
// caller has chosen to exclude it.
type StatusMap map[string]Status

// Kind returns a candidate's current status kind, defaulting to
// Continuing for any candidate not yet recorded.
func (m StatusMap) Kind(candidateID string) StatusKind {
	if s, ok := m[candidateID]; ok {
		return s.Kind
	}
	return Continuing
}

// IsContinuing reports whether a candidate may still receive ballots.
func (m StatusMap) IsContinuing(candidateID string) bool {
	return m.Kind(candidateID) == Continuing
}
