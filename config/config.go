// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package config loads and validates contest configuration, the tabulation
// engine's other declared external collaborator (spec §1). It follows the
// teacher's flag-then-environment-variable pattern: flags take precedence
// and missing values fall back to the environment. A contest ID still
// missing after that is a hard failure (ErrConfigInvalid); the other
// options fall back to built-in defaults (for example one winner and
// 1<<20 maximum rankings), and the result must still pass Validate.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// TabulationMode selects the overall RCV rule family.
type TabulationMode int

const (
	SingleWinnerIRV TabulationMode = iota
	MultiSeatSTV
	BottomsUpMultiSeat
	SequentialMultiSeat
	ContinueUntilTwoRemain
)

func (m TabulationMode) String() string {
	switch m {
	case SingleWinnerIRV:
		return "SingleWinnerIRV"
	case MultiSeatSTV:
		return "MultiSeatSTV"
	case BottomsUpMultiSeat:
		return "BottomsUpMultiSeat"
	case SequentialMultiSeat:
		return "SequentialMultiSeat"
	case ContinueUntilTwoRemain:
		return "ContinueUntilTwoRemain"
	default:
		return "unknown"
	}
}

// OvervoteRule selects how BallotTransfer handles a rank with more than
// one candidate marked.
type OvervoteRule int

const (
	ExhaustImmediately OvervoteRule = iota
	AlwaysSkipToNextRank
	ExhaustIfMultipleContinuing
)

// SkippedRankRule selects how BallotTransfer handles an empty rank.
type SkippedRankRule int

const (
	Ignore SkippedRankRule = iota
	ExhaustOnSkippedRank
	ExhaustOnTwoConsecutiveSkippedRanks
)

// DuplicateCandidateRule selects how BallotTransfer handles a candidate ID
// that repeats across ranks on the same ballot.
type DuplicateCandidateRule int

const (
	DuplicateIgnore DuplicateCandidateRule = iota
	DuplicateExhaust
	DuplicateSkipToNext
)

// TieBreakMode selects the algorithm TieBreaker uses to resolve ties.
type TieBreakMode int

const (
	Interactive TieBreakMode = iota
	Random
	UsePermutation
	GeneratePermutation
	PreviousRoundCountsThenRandom
	PreviousRoundCountsThenInteractive
)

// Config is the validated, immutable contest configuration the engine
// consumes. Every field corresponds to a row in spec §6's configuration
// table.
type Config struct {
	ContestID      string
	NumberOfWinners int

	TabulationMode TabulationMode
	HareQuota       bool

	NonIntegerWinningThreshold   bool
	DecimalPlacesForVoteArithmetic int
	RoundTalliesHalfToEven         bool

	BatchElimination        bool
	ContinueUntilTwoRemainFlag bool
	MinimumVoteThreshold    int

	OvervoteRule           OvervoteRule
	SkippedRankRule        SkippedRankRule
	DuplicateCandidateRule DuplicateCandidateRule

	TieBreakMode TieBreakMode
	RandomSeed   int64
	// CandidatePermutation, when non-empty, is the canonical candidate
	// ordering used by TallyIndex insertion order and by the
	// UsePermutation/GeneratePermutation tie-break modes.
	CandidatePermutation []string

	MaxRankingsAllowed             int
	TreatBlankAsUndeclaredWriteIn bool
	ExcludedCandidates             []string

	// RejectMalformedBallots aborts tabulation on the first malformed
	// ballot instead of accumulating a diagnostic and continuing.
	RejectMalformedBallots bool
}

// ErrConfigInvalid is returned (possibly wrapped) when a Config fails
// validation. It is the engine's ConfigInvalid error kind (spec §7).
var ErrConfigInvalid = errors.New("config invalid")

// Load parses CLI flags, falling back to environment variables, and
// returns a fully validated Config. It never returns a Config that fails
// Validate.
func Load(args []string) (Config, error) {
	var (
		cfg            Config
		mode           string
		overvote       string
		skippedRank    string
		duplicate      string
		tieBreak       string
		permutationCSV string
		excludedCSV    string
	)

	fs := flag.NewFlagSet("tabulate", flag.ContinueOnError)
	fs.StringVar(&cfg.ContestID, "contest", "", "Contest ID")
	fs.IntVar(&cfg.NumberOfWinners, "winners", 0, "Number of seats to fill")
	fs.StringVar(&mode, "mode", "", "Tabulation mode")
	fs.BoolVar(&cfg.HareQuota, "hare", false, "Use Hare quota instead of Droop")
	fs.BoolVar(&cfg.NonIntegerWinningThreshold, "fractional-threshold", false, "Allow a fractional winning threshold")
	fs.IntVar(&cfg.DecimalPlacesForVoteArithmetic, "decimals", 4, "Decimal places for reported vote arithmetic")
	fs.BoolVar(&cfg.RoundTalliesHalfToEven, "half-even", false, "Round reported tallies half-to-even instead of half-up")
	fs.BoolVar(&cfg.BatchElimination, "batch-elimination", true, "Enable batch elimination")
	fs.BoolVar(&cfg.ContinueUntilTwoRemainFlag, "continue-until-two", false, "Single-winner: continue until two candidates remain")
	fs.IntVar(&cfg.MinimumVoteThreshold, "min-vote-threshold", 0, "Pre-round-1 elimination floor")
	fs.StringVar(&overvote, "overvote-rule", "", "Overvote rule")
	fs.StringVar(&skippedRank, "skipped-rank-rule", "", "Skipped rank rule")
	fs.StringVar(&duplicate, "duplicate-rule", "", "Duplicate candidate rule")
	fs.StringVar(&tieBreak, "tie-break-mode", "", "Tie break mode")
	fs.Int64Var(&cfg.RandomSeed, "seed", 0, "Random seed for tie-breaking")
	fs.StringVar(&permutationCSV, "permutation", "", "Comma-separated canonical candidate order")
	fs.IntVar(&cfg.MaxRankingsAllowed, "max-rankings", 0, "Maximum rank position considered")
	fs.BoolVar(&cfg.TreatBlankAsUndeclaredWriteIn, "blank-as-uwi", false, "Treat blank ranks as undeclared write-in")
	fs.StringVar(&excludedCSV, "excluded", "", "Comma-separated pre-excluded candidate IDs")
	fs.BoolVar(&cfg.RejectMalformedBallots, "reject-malformed", false, "Abort on the first malformed ballot")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	if cfg.ContestID == "" {
		cfg.ContestID = os.Getenv("CONTEST_ID")
	}
	if cfg.ContestID == "" {
		return Config{}, fmt.Errorf("%w: contest ID required (use -contest or CONTEST_ID)", ErrConfigInvalid)
	}

	if cfg.NumberOfWinners == 0 {
		if v := os.Getenv("NUMBER_OF_WINNERS"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return Config{}, fmt.Errorf("%w: invalid NUMBER_OF_WINNERS: %w", ErrConfigInvalid, err)
			}
			cfg.NumberOfWinners = n
		} else {
			cfg.NumberOfWinners = 1
		}
	}

	if mode == "" {
		mode = os.Getenv("TABULATION_MODE")
	}
	parsedMode, err := parseTabulationMode(mode)
	if err != nil {
		return Config{}, err
	}
	cfg.TabulationMode = parsedMode

	if overvote == "" {
		overvote = os.Getenv("OVERVOTE_RULE")
	}
	parsedOvervote, err := parseOvervoteRule(overvote)
	if err != nil {
		return Config{}, err
	}
	cfg.OvervoteRule = parsedOvervote

	if skippedRank == "" {
		skippedRank = os.Getenv("SKIPPED_RANK_RULE")
	}
	parsedSkipped, err := parseSkippedRankRule(skippedRank)
	if err != nil {
		return Config{}, err
	}
	cfg.SkippedRankRule = parsedSkipped

	if duplicate == "" {
		duplicate = os.Getenv("DUPLICATE_CANDIDATE_RULE")
	}
	parsedDuplicate, err := parseDuplicateRule(duplicate)
	if err != nil {
		return Config{}, err
	}
	cfg.DuplicateCandidateRule = parsedDuplicate

	if tieBreak == "" {
		tieBreak = os.Getenv("TIE_BREAK_MODE")
	}
	parsedTieBreak, err := parseTieBreakMode(tieBreak)
	if err != nil {
		return Config{}, err
	}
	cfg.TieBreakMode = parsedTieBreak

	if permutationCSV == "" {
		permutationCSV = os.Getenv("CANDIDATE_PERMUTATION")
	}
	if permutationCSV != "" {
		cfg.CandidatePermutation = splitCSV(permutationCSV)
	}

	if excludedCSV == "" {
		excludedCSV = os.Getenv("EXCLUDED_CANDIDATES")
	}
	if excludedCSV != "" {
		cfg.ExcludedCandidates = splitCSV(excludedCSV)
	}

	if cfg.MaxRankingsAllowed == 0 {
		if v := os.Getenv("MAX_RANKINGS_ALLOWED"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return Config{}, fmt.Errorf("%w: invalid MAX_RANKINGS_ALLOWED: %w", ErrConfigInvalid, err)
			}
			cfg.MaxRankingsAllowed = n
		} else {
			cfg.MaxRankingsAllowed = 1 << 20
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks invariants Load cannot express via flag defaults alone.
func (c Config) Validate() error {
	if c.NumberOfWinners < 1 {
		return fmt.Errorf("%w: numberOfWinners must be >= 1", ErrConfigInvalid)
	}
	if c.DecimalPlacesForVoteArithmetic < 0 || c.DecimalPlacesForVoteArithmetic > 20 {
		return fmt.Errorf("%w: decimalPlacesForVoteArithmetic must be 0-20", ErrConfigInvalid)
	}
	if c.MaxRankingsAllowed < 1 {
		return fmt.Errorf("%w: maxRankingsAllowed must be >= 1", ErrConfigInvalid)
	}

	excluded := make(map[string]bool, len(c.ExcludedCandidates))
	for _, id := range c.ExcludedCandidates {
		excluded[id] = true
	}
	for _, id := range c.CandidatePermutation {
		if excluded[id] {
			return fmt.Errorf("%w: candidate %q appears in both candidatePermutation and excludedCandidates", ErrConfigInvalid, id)
		}
	}

	needsFallback := c.TieBreakMode == PreviousRoundCountsThenRandom || c.TieBreakMode == PreviousRoundCountsThenInteractive
	_ = needsFallback // the mode name itself encodes the fallback; nothing further to validate here.

	return nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseTabulationMode(s string) (TabulationMode, error) {
	switch s {
	case "", "SingleWinnerIRV":
		return SingleWinnerIRV, nil
	case "MultiSeatSTV":
		return MultiSeatSTV, nil
	case "BottomsUpMultiSeat":
		return BottomsUpMultiSeat, nil
	case "SequentialMultiSeat":
		return SequentialMultiSeat, nil
	case "ContinueUntilTwoRemain":
		return ContinueUntilTwoRemain, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized tabulationMode %q", ErrConfigInvalid, s)
	}
}

func parseOvervoteRule(s string) (OvervoteRule, error) {
	switch s {
	case "", "ExhaustImmediately":
		return ExhaustImmediately, nil
	case "AlwaysSkipToNextRank":
		return AlwaysSkipToNextRank, nil
	case "ExhaustIfMultipleContinuing":
		return ExhaustIfMultipleContinuing, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized overvoteRule %q", ErrConfigInvalid, s)
	}
}

func parseSkippedRankRule(s string) (SkippedRankRule, error) {
	switch s {
	case "", "Ignore":
		return Ignore, nil
	case "ExhaustOnSkippedRank":
		return ExhaustOnSkippedRank, nil
	case "ExhaustOnTwoConsecutive", "ExhaustOnTwoConsecutiveSkippedRanks":
		return ExhaustOnTwoConsecutiveSkippedRanks, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized skippedRankRule %q", ErrConfigInvalid, s)
	}
}

func parseDuplicateRule(s string) (DuplicateCandidateRule, error) {
	switch s {
	case "", "Ignore":
		return DuplicateIgnore, nil
	case "Exhaust":
		return DuplicateExhaust, nil
	case "SkipToNext":
		return DuplicateSkipToNext, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized duplicateCandidateRule %q", ErrConfigInvalid, s)
	}
}

func parseTieBreakMode(s string) (TieBreakMode, error) {
	switch s {
	case "", "Interactive":
		return Interactive, nil
	case "Random":
		return Random, nil
	case "UsePermutation":
		return UsePermutation, nil
	case "GeneratePermutation":
		return GeneratePermutation, nil
	case "PreviousRoundCountsThenRandom":
		return PreviousRoundCountsThenRandom, nil
	case "PreviousRoundCountsThenInteractive":
		return PreviousRoundCountsThenInteractive, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized tieBreakMode %q", ErrConfigInvalid, s)
	}
}

// MarshalJSON renders the Config as the contest-definition JSON the store
// package archives alongside each tabulation run.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias struct {
		ContestID                      string   `json:"contest_id"`
		NumberOfWinners                int      `json:"number_of_winners"`
		TabulationMode                 string   `json:"tabulation_mode"`
		HareQuota                      bool     `json:"hare_quota"`
		NonIntegerWinningThreshold     bool     `json:"non_integer_winning_threshold"`
		DecimalPlacesForVoteArithmetic int      `json:"decimal_places_for_vote_arithmetic"`
		BatchElimination               bool     `json:"batch_elimination"`
		MinimumVoteThreshold           int      `json:"minimum_vote_threshold"`
		RandomSeed                     int64    `json:"random_seed"`
		CandidatePermutation           []string `json:"candidate_permutation,omitempty"`
		MaxRankingsAllowed             int      `json:"max_rankings_allowed"`
		ExcludedCandidates             []string `json:"excluded_candidates,omitempty"`
	}
	return json.Marshal(alias{
		ContestID:                      c.ContestID,
		NumberOfWinners:                c.NumberOfWinners,
		TabulationMode:                 c.TabulationMode.String(),
		HareQuota:                      c.HareQuota,
		NonIntegerWinningThreshold:     c.NonIntegerWinningThreshold,
		DecimalPlacesForVoteArithmetic: c.DecimalPlacesForVoteArithmetic,
		BatchElimination:               c.BatchElimination,
		MinimumVoteThreshold:           c.MinimumVoteThreshold,
		RandomSeed:                     c.RandomSeed,
		CandidatePermutation:           c.CandidatePermutation,
		MaxRankingsAllowed:             c.MaxRankingsAllowed,
		ExcludedCandidates:             c.ExcludedCandidates,
	})
}
