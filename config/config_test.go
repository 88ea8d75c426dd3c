package config

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
)

func TestLoadRequiresContestID(t *testing.T) {
	_, err := Load([]string{})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load([]string{"-contest", "c1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NumberOfWinners != 1 {
		t.Errorf("NumberOfWinners = %d, want 1", cfg.NumberOfWinners)
	}
	if cfg.TabulationMode != SingleWinnerIRV {
		t.Errorf("TabulationMode = %v, want SingleWinnerIRV", cfg.TabulationMode)
	}
	if cfg.OvervoteRule != ExhaustImmediately {
		t.Errorf("OvervoteRule = %v, want ExhaustImmediately", cfg.OvervoteRule)
	}
	if cfg.MaxRankingsAllowed != 1<<20 {
		t.Errorf("MaxRankingsAllowed = %d, want default", cfg.MaxRankingsAllowed)
	}
	if !cfg.BatchElimination {
		t.Error("BatchElimination should default to true")
	}
}

func TestLoadFallsBackToEnvironmentVariables(t *testing.T) {
	os.Setenv("CONTEST_ID", "env-contest")
	os.Setenv("TABULATION_MODE", "MultiSeatSTV")
	defer os.Unsetenv("CONTEST_ID")
	defer os.Unsetenv("TABULATION_MODE")

	cfg, err := Load([]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ContestID != "env-contest" {
		t.Errorf("ContestID = %q, want env-contest", cfg.ContestID)
	}
	if cfg.TabulationMode != MultiSeatSTV {
		t.Errorf("TabulationMode = %v, want MultiSeatSTV", cfg.TabulationMode)
	}
}

func TestLoadFlagTakesPrecedenceOverEnvironment(t *testing.T) {
	os.Setenv("CONTEST_ID", "env-contest")
	defer os.Unsetenv("CONTEST_ID")

	cfg, err := Load([]string{"-contest", "flag-contest"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ContestID != "flag-contest" {
		t.Errorf("ContestID = %q, want flag-contest (flag should win over env)", cfg.ContestID)
	}
}

func TestLoadRejectsUnrecognizedEnum(t *testing.T) {
	_, err := Load([]string{"-contest", "c1", "-mode", "NotARealMode"})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestLoadParsesCandidatePermutationAndExcludedCandidates(t *testing.T) {
	cfg, err := Load([]string{"-contest", "c1", "-permutation", "A, B ,C", "-excluded", "D,E"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"A", "B", "C"}
	if len(cfg.CandidatePermutation) != 3 {
		t.Fatalf("CandidatePermutation = %v, want %v", cfg.CandidatePermutation, want)
	}
	for i, id := range want {
		if cfg.CandidatePermutation[i] != id {
			t.Errorf("CandidatePermutation[%d] = %q, want %q", i, cfg.CandidatePermutation[i], id)
		}
	}
	if len(cfg.ExcludedCandidates) != 2 || cfg.ExcludedCandidates[0] != "D" {
		t.Errorf("ExcludedCandidates = %v, want [D E]", cfg.ExcludedCandidates)
	}
}

func TestValidateRejectsZeroWinners(t *testing.T) {
	cfg := Config{NumberOfWinners: 0, MaxRankingsAllowed: 1}
	if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestValidateRejectsOutOfRangeDecimalPlaces(t *testing.T) {
	cfg := Config{NumberOfWinners: 1, MaxRankingsAllowed: 1, DecimalPlacesForVoteArithmetic: 21}
	if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestValidateRejectsOverlapBetweenPermutationAndExcluded(t *testing.T) {
	cfg := Config{
		NumberOfWinners:      1,
		MaxRankingsAllowed:   1,
		CandidatePermutation: []string{"A", "B"},
		ExcludedCandidates:   []string{"B"},
	}
	if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid for overlapping candidate %q, got %v", "B", err)
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := Config{NumberOfWinners: 2, MaxRankingsAllowed: 5, DecimalPlacesForVoteArithmetic: 4}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTabulationModeString(t *testing.T) {
	cases := map[TabulationMode]string{
		SingleWinnerIRV:        "SingleWinnerIRV",
		MultiSeatSTV:           "MultiSeatSTV",
		BottomsUpMultiSeat:     "BottomsUpMultiSeat",
		SequentialMultiSeat:    "SequentialMultiSeat",
		ContinueUntilTwoRemain: "ContinueUntilTwoRemain",
	}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", mode, got, want)
		}
	}
}

func TestMarshalJSONRendersTabulationModeAsName(t *testing.T) {
	cfg := Config{ContestID: "c1", NumberOfWinners: 2, TabulationMode: MultiSeatSTV, MaxRankingsAllowed: 10}
	b, err := cfg.MarshalJSON()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("failed to decode rendered JSON: %v", err)
	}
	if decoded["tabulation_mode"] != "MultiSeatSTV" {
		t.Errorf("tabulation_mode = %v, want MultiSeatSTV", decoded["tabulation_mode"])
	}
	if decoded["contest_id"] != "c1" {
		t.Errorf("contest_id = %v, want c1", decoded["contest_id"])
	}
}
