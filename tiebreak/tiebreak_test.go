package tiebreak

import (
	"errors"
	"math/big"
	"testing"

	"github.com/rankedvote/tabulator/config"
	"github.com/rankedvote/tabulator/tally"
)

type stubOracle struct {
	loser, winner string
	err           error
}

func (s stubOracle) ChooseLoser(tied []string, round int, tallies map[string]*big.Rat) (string, error) {
	return s.loser, s.err
}
func (s stubOracle) ChooseWinner(tied []string, round int, tallies map[string]*big.Rat) (string, error) {
	return s.winner, s.err
}

func tallyOf(values map[string]int64) *tally.RoundTally {
	rt := tally.New()
	for id, v := range values {
		rt.Add(id, big.NewRat(v, 1))
	}
	return rt
}

func TestResolveSingleCandidateNeedsNoTieBreak(t *testing.T) {
	b := New(config.Config{TieBreakMode: config.Random}, nil)
	res, err := b.SelectLoser([]string{"alice"}, 1, tallyOf(nil), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Candidate != "alice" {
		t.Errorf("Candidate = %q, want alice", res.Candidate)
	}
}

func TestInteractiveDefersToOracle(t *testing.T) {
	oracle := stubOracle{loser: "bob"}
	b := New(config.Config{TieBreakMode: config.Interactive}, oracle)

	res, err := b.SelectLoser([]string{"alice", "bob"}, 1, tallyOf(map[string]int64{"alice": 5, "bob": 5}), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Candidate != "bob" {
		t.Errorf("Candidate = %q, want bob", res.Candidate)
	}
}

func TestInteractiveWithNoOracleFails(t *testing.T) {
	b := New(config.Config{TieBreakMode: config.Interactive}, nil)
	_, err := b.SelectLoser([]string{"alice", "bob"}, 1, tallyOf(nil), nil)
	if !errors.Is(err, ErrOracleCancelled) {
		t.Errorf("expected ErrOracleCancelled, got %v", err)
	}
}

func TestRandomIsDeterministicGivenSameSeedAndRound(t *testing.T) {
	b := New(config.Config{TieBreakMode: config.Random, RandomSeed: 7}, nil)
	tied := []string{"alice", "bob", "carol"}

	first, err := b.SelectLoser(tied, 3, tallyOf(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.SelectLoser(tied, 3, tallyOf(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	if first.Candidate != second.Candidate {
		t.Errorf("random tie break should be deterministic for the same seed and round: got %q then %q", first.Candidate, second.Candidate)
	}
}

func TestUsePermutationEarliestWinsLatestLoses(t *testing.T) {
	b := New(config.Config{TieBreakMode: config.UsePermutation, CandidatePermutation: []string{"carol", "alice", "bob"}}, nil)
	tied := []string{"alice", "bob"}

	winner, err := b.SelectWinner(tied, 1, tallyOf(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	if winner.Candidate != "alice" {
		t.Errorf("winner should be the earliest in permutation, got %q", winner.Candidate)
	}

	loser, err := b.SelectLoser(tied, 1, tallyOf(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	if loser.Candidate != "bob" {
		t.Errorf("loser should be the latest in permutation, got %q", loser.Candidate)
	}
}

func TestPreviousRoundCountsThenRandomUsesUniquePriorRound(t *testing.T) {
	history := History{
		tallyOf(map[string]int64{"alice": 3, "bob": 5}), // round 1: bob uniquely ahead
	}
	b := New(config.Config{TieBreakMode: config.PreviousRoundCountsThenRandom, RandomSeed: 1}, nil)

	winner, err := b.SelectWinner([]string{"alice", "bob"}, 2, tallyOf(map[string]int64{"alice": 5, "bob": 5}), history)
	if err != nil {
		t.Fatal(err)
	}
	if winner.Candidate != "bob" {
		t.Errorf("winner should be bob (uniquely ahead in round 1), got %q", winner.Candidate)
	}
}

func TestPreviousRoundCountsFallsBackWhenHistoryNeverBreaksTie(t *testing.T) {
	history := History{
		tallyOf(map[string]int64{"alice": 5, "bob": 5}),
	}
	b := New(config.Config{TieBreakMode: config.PreviousRoundCountsThenRandom, RandomSeed: 1}, nil)

	res, err := b.SelectLoser([]string{"alice", "bob"}, 2, tallyOf(map[string]int64{"alice": 5, "bob": 5}), history)
	if err != nil {
		t.Fatalf("should fall back to random rather than error: %v", err)
	}
	if res.Candidate != "alice" && res.Candidate != "bob" {
		t.Errorf("unexpected candidate %q", res.Candidate)
	}
}
