package ballot

import (
	"math/big"
	"testing"
)

func TestBallotCandidatesAt(t *testing.T) {
	b := &Ballot{
		ID: "b1",
		Ranks: []RankEntry{
			{Rank: 1, Candidates: []string{"alice"}},
			{Rank: 3, Candidates: []string{"bob", "carol"}},
		},
	}

	if got := b.CandidatesAt(1); len(got) != 1 || got[0] != "alice" {
		t.Errorf("CandidatesAt(1) = %v", got)
	}
	if got := b.CandidatesAt(2); got != nil {
		t.Errorf("CandidatesAt(2) = %v, want nil (skipped rank)", got)
	}
	if got := b.CandidatesAt(3); len(got) != 2 {
		t.Errorf("CandidatesAt(3) = %v, want 2 candidates (overvote)", got)
	}
}

func TestBallotMaxRank(t *testing.T) {
	b := &Ballot{Ranks: []RankEntry{{Rank: 2, Candidates: []string{"a"}}, {Rank: 5, Candidates: []string{"b"}}}}
	if b.MaxRank() != 5 {
		t.Errorf("MaxRank() = %d, want 5", b.MaxRank())
	}
	if (&Ballot{}).MaxRank() != 0 {
		t.Error("MaxRank() of an empty ballot should be 0")
	}
}

func TestNewStateStartsAtFullWeight(t *testing.T) {
	st := NewState()
	if st.Weight.Cmp(big.NewRat(1, 1)) != 0 {
		t.Errorf("NewState().Weight = %s, want 1", st.Weight.RatString())
	}
	if st.IsExhausted() {
		t.Error("a fresh state should not be exhausted")
	}
}

func TestStatusMapDefaultsToContinuing(t *testing.T) {
	m := StatusMap{"alice": {Kind: Eliminated}}
	if m.Kind("bob") != Continuing {
		t.Errorf("unrecorded candidate should default to Continuing, got %v", m.Kind("bob"))
	}
	if m.IsContinuing("alice") {
		t.Error("alice is eliminated and should not be continuing")
	}
	if !m.IsContinuing("bob") {
		t.Error("bob is unrecorded and should be continuing")
	}
}

func TestStatusTerminal(t *testing.T) {
	if (Status{Kind: Continuing}).Terminal() {
		t.Error("Continuing should not be terminal")
	}
	if !(Status{Kind: Elected}).Terminal() {
		t.Error("Elected should be terminal")
	}
	if !(Status{Kind: Eliminated}).Terminal() {
		t.Error("Eliminated should be terminal")
	}
}
