package cvr

import (
	"strings"
	"testing"

	"github.com/rankedvote/tabulator/config"
)

func knownFor(ids ...string) map[string]bool {
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	return known
}

func TestReadAcceptsWellFormedLines(t *testing.T) {
	input := `{"ballotId":"b1","marks":[{"rank":1,"candidateId":"A"},{"rank":2,"candidateId":"B"}]}
{"ballotId":"b2","marks":[{"rank":1,"candidateId":"B"}]}`

	ballots, diag, err := Read(strings.NewReader(input), knownFor("A", "B"), config.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diag.Accepted != 2 || diag.Rejected != 0 {
		t.Errorf("diag = %+v, want 2 accepted, 0 rejected", diag)
	}
	if len(ballots) != 2 {
		t.Fatalf("len(ballots) = %d, want 2", len(ballots))
	}
	if ballots[0].ID != "b1" || len(ballots[0].Ranks) != 2 {
		t.Errorf("ballots[0] = %+v, want id b1 with 2 ranks", ballots[0])
	}
}

func TestReadGroupsMultipleMarksAtSameRankAsOvervote(t *testing.T) {
	input := `{"ballotId":"b1","marks":[{"rank":1,"candidateId":"A"},{"rank":1,"candidateId":"B"}]}`

	ballots, _, err := Read(strings.NewReader(input), knownFor("A", "B"), config.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ballots[0].Ranks) != 1 {
		t.Fatalf("expected 1 rank entry, got %d", len(ballots[0].Ranks))
	}
	if got := ballots[0].Ranks[0].Candidates; len(got) != 2 {
		t.Errorf("rank 1 candidates = %v, want 2 marks grouped together", got)
	}
}

func TestReadSkipsMalformedRecordsByDefault(t *testing.T) {
	input := `not json
{"ballotId":"b1","marks":[{"rank":1,"candidateId":"A"}]}
{"ballotId":"b2","marks":[{"rank":0,"candidateId":"A"}]}
{"ballotId":"b3","marks":[{"rank":1,"candidateId":"ZZZ"}]}`

	ballots, diag, err := Read(strings.NewReader(input), knownFor("A"), config.Config{RejectMalformedBallots: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diag.Accepted != 1 {
		t.Errorf("Accepted = %d, want 1", diag.Accepted)
	}
	if diag.Rejected != 3 {
		t.Errorf("Rejected = %d, want 3", diag.Rejected)
	}
	if len(ballots) != 1 || ballots[0].ID != "b1" {
		t.Errorf("ballots = %+v, want only b1", ballots)
	}
}

func TestReadAbortsOnFirstMalformedRecordWhenConfigured(t *testing.T) {
	input := `{"ballotId":"b1","marks":[{"rank":1,"candidateId":"A"}]}
not json`

	_, _, err := Read(strings.NewReader(input), knownFor("A"), config.Config{RejectMalformedBallots: true})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestReadRejectsUnknownCandidate(t *testing.T) {
	input := `{"ballotId":"b1","marks":[{"rank":1,"candidateId":"ZZZ"}]}`
	_, diag, err := Read(strings.NewReader(input), knownFor("A"), config.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diag.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", diag.Rejected)
	}
}

func TestReadRejectsMissingBallotID(t *testing.T) {
	input := `{"marks":[{"rank":1,"candidateId":"A"}]}`
	_, diag, err := Read(strings.NewReader(input), knownFor("A"), config.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diag.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", diag.Rejected)
	}
}

func TestDiagnosticsSummary(t *testing.T) {
	all := Diagnostics{Accepted: 3, Rejected: 0}
	if got := all.Summary(); got != "accepted all 3 ballots" {
		t.Errorf("Summary() = %q, want %q", got, "accepted all 3 ballots")
	}

	some := Diagnostics{Accepted: 2, Rejected: 1}
	if got := some.Summary(); got != "rejected 1 of 3 ballots" {
		t.Errorf("Summary() = %q, want %q", got, "rejected 1 of 3 ballots")
	}
}

func TestReadDominionMapsNumericIDsToStrings(t *testing.T) {
	manifest := `{"Candidates":[{"Id":1,"Description":"Alice"},{"Id":2,"Description":"Bob"}]}`
	export := `{"Sessions":[{"TabulatorId":7,"RecordId":42,"Original":[{"Marks":[{"CandidateId":1,"Rank":1},{"CandidateId":2,"Rank":2}]}]}]}`

	ballots, candidates, err := ReadDominion(strings.NewReader(manifest), strings.NewReader(export))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 2 || candidates[0].ID != "1" || candidates[0].Name != "Alice" {
		t.Errorf("candidates = %+v, want stringified Dominion IDs", candidates)
	}
	if len(ballots) != 1 {
		t.Fatalf("len(ballots) = %d, want 1", len(ballots))
	}
	if ballots[0].ID != "7-42" {
		t.Errorf("ballot ID = %q, want 7-42", ballots[0].ID)
	}
	if len(ballots[0].Ranks) != 2 || ballots[0].Ranks[0].Candidates[0] != "1" {
		t.Errorf("ballots[0].Ranks = %+v, want rank 1 -> [1], rank 2 -> [2]", ballots[0].Ranks)
	}
}

func TestReadDominionSkipsMarksForUnknownCandidates(t *testing.T) {
	manifest := `{"Candidates":[{"Id":1,"Description":"Alice"}]}`
	export := `{"Sessions":[{"TabulatorId":1,"RecordId":1,"Original":[{"Marks":[{"CandidateId":1,"Rank":1},{"CandidateId":99,"Rank":2}]}]}]}`

	ballots, _, err := ReadDominion(strings.NewReader(manifest), strings.NewReader(export))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ballots[0].Ranks) != 1 {
		t.Errorf("Ranks = %+v, want only rank 1 (rank 2 references an unknown candidate)", ballots[0].Ranks)
	}
}

