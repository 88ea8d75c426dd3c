package result

import (
	"math/big"
	"testing"
)

func TestNewResultStartsEmpty(t *testing.T) {
	r := New("contest-1", "run-1")
	if r.ContestID != "contest-1" || r.RunID != "run-1" {
		t.Errorf("New() did not set identifiers, got %+v", r)
	}
	if len(r.RoundOutcomes) != 0 || len(r.ElectedInOrder) != 0 {
		t.Error("New() should start with no rounds or winners")
	}
}

func TestAppendRoundAccumulatesElectedInOrder(t *testing.T) {
	r := New("contest-1", "run-1")

	r.AppendRound(RoundOutcome{Round: 1, Elected: []string{"alice"}})
	r.AppendRound(RoundOutcome{Round: 2, Elected: []string{"bob", "carol"}})

	want := []string{"alice", "bob", "carol"}
	if len(r.ElectedInOrder) != len(want) {
		t.Fatalf("ElectedInOrder = %v, want %v", r.ElectedInOrder, want)
	}
	for i, id := range want {
		if r.ElectedInOrder[i] != id {
			t.Errorf("ElectedInOrder[%d] = %q, want %q", i, r.ElectedInOrder[i], id)
		}
	}
	if len(r.RoundOutcomes) != 2 {
		t.Errorf("len(RoundOutcomes) = %d, want 2", len(r.RoundOutcomes))
	}
}

func TestAppendRoundAccumulatesTieBreakLog(t *testing.T) {
	r := New("contest-1", "run-1")
	r.AppendRound(RoundOutcome{Round: 1, Tally: map[string]*big.Rat{"alice": big.NewRat(5, 1)}})
	if r.TieBreakLog != nil {
		t.Error("no tie breaks recorded in round 1, TieBreakLog should stay nil")
	}
}
