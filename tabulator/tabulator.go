// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package tabulator is the round-based tabulation engine: the state
// machine that tallies ballots, selects winners against a threshold,
// selects losers under a batch-elimination and tie-break policy,
// transfers surplus and eliminated votes, and terminates according to the
// configured mode (spec §4.1). Tabulate is a pure function of its inputs
// modulo the tie-break oracle, mirroring main.go's ordered, fail-fast
// startup phases but generalized from "parse config, open db, serve" to
// "assign, tally, threshold, elect, terminate?, eliminate, transfer, loop".
package tabulator

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/rankedvote/tabulator/ballot"
	"github.com/rankedvote/tabulator/config"
	"github.com/rankedvote/tabulator/rational"
	"github.com/rankedvote/tabulator/result"
	"github.com/rankedvote/tabulator/surplus"
	"github.com/rankedvote/tabulator/tally"
	"github.com/rankedvote/tabulator/threshold"
	"github.com/rankedvote/tabulator/tiebreak"
	"github.com/rankedvote/tabulator/transfer"
)

// ErrInvariantViolation is returned when the conservation invariant fails
// at a round boundary (spec §7's InvariantViolation kind). Fatal: the
// engine aborts.
var ErrInvariantViolation = errors.New("invariant violation")

// ErrRoundLimitExceeded is returned when the round counter exceeds the
// safety bound len(candidates)+1 (spec §7's RoundLimitExceeded kind, §4.1.1).
var ErrRoundLimitExceeded = errors.New("round limit exceeded")

// EventSink receives structured tabulation events. The engine never logs
// to a package-global logger (spec §9's "re-architect as a passed-in
// sink" note); callers that want slog output supply their own EventSink,
// as this package provides only NoopSink.
type EventSink interface {
	Event(msg string, args ...any)
}

type noopSink struct{}

func (noopSink) Event(string, ...any) {}

// NoopSink discards every event. Useful in tests that don't care about
// the event stream.
func NoopSink() EventSink { return noopSink{} }

// Tabulate runs the full round-based tabulation over ballots under cfg,
// consulting oracle only when a configured tie-break mode requires it.
// Identical arguments (including oracle's responses) always produce the
// same rounds, tallies, transfers, tie breaks and elected order; RunID (a
// fresh random UUID) and GeneratedAt (the wall-clock completion time)
// differ from call to call, so two Results are not byte-identical.
//
// Every round-level error is returned together with the partial Result
// built so far; when the error is tiebreak.ErrOracleCancelled, that
// Result's Terminal is result.TerminalCancelled.
//
// config.SequentialMultiSeat is dispatched to tabulateSequentialMultiSeat
// instead of running the round loop below directly: per
// original_source's isSequentialMultiSeatEnabled() (exercised by
// TabulatorTests.java's per-seat numbered output), sequential multi-seat
// is numberOfWinners independent single-winner IRV contests run one after
// another, not MultiSeatSTV's continuous Droop/Hare loop with fractional
// surplus transfer.
func Tabulate(candidates []ballot.Candidate, ballots []*ballot.Ballot, cfg config.Config, oracle tiebreak.Oracle, sink EventSink) (*result.Result, error) {
	if sink == nil {
		sink = NoopSink()
	}
	var (
		res *result.Result
		err error
	)
	if cfg.TabulationMode == config.SequentialMultiSeat {
		res, err = tabulateSequentialMultiSeat(candidates, ballots, cfg, oracle, sink)
	} else {
		res, err = tabulateSingleContest(candidates, ballots, cfg, oracle, sink)
	}
	if res != nil && errors.Is(err, tiebreak.ErrOracleCancelled) {
		res.Terminal = result.TerminalCancelled
	}
	return res, err
}

// tabulateSequentialMultiSeat runs one full single-winner IRV contest per
// seat, excluding every candidate already elected in an earlier seat, and
// concatenates each seat's rounds (renumbered) into one Result. Unlike
// MultiSeatSTV, an elected candidate's votes are never fractionally
// transferred: the next seat's contest simply starts over with that
// candidate excluded, so their ballots flow to their next continuing
// choice at full weight like any other exclusion.
func tabulateSequentialMultiSeat(candidates []ballot.Candidate, ballots []*ballot.Ballot, cfg config.Config, oracle tiebreak.Oracle, sink EventSink) (*result.Result, error) {
	runID := uuid.New().String()
	res := result.New(cfg.ContestID, runID)

	excluded := append([]string(nil), cfg.ExcludedCandidates...)
	roundOffset := 0

	for seat := 1; seat <= cfg.NumberOfWinners; seat++ {
		seatCfg := cfg
		seatCfg.TabulationMode = config.SingleWinnerIRV
		seatCfg.NumberOfWinners = 1
		seatCfg.ContinueUntilTwoRemainFlag = false
		seatCfg.ExcludedCandidates = excluded

		sink.Event("tabulator.seat.start", "seat", seat, "contest", cfg.ContestID)
		seatRes, err := tabulateSingleContest(candidates, ballots, seatCfg, oracle, sink)
		if err != nil {
			return res, fmt.Errorf("seat %d: %w", seat, err)
		}
		if len(seatRes.ElectedInOrder) != 1 {
			return res, fmt.Errorf("%w: seat %d produced %d winners, want 1", ErrInvariantViolation, seat, len(seatRes.ElectedInOrder))
		}

		for _, round := range seatRes.RoundOutcomes {
			round.Round += roundOffset
			res.AppendRound(round)
		}
		roundOffset += len(seatRes.RoundOutcomes)

		excluded = append(excluded, seatRes.ElectedInOrder[0])
		res.FinalTallies = seatRes.FinalTallies
	}

	res.GeneratedAt = time.Now()
	return res, nil
}

// tabulateSingleContest runs the round-based state machine (assignment,
// tally, threshold, elect, terminate?, eliminate, transfer, loop) for
// every mode except SequentialMultiSeat's per-seat rerun.
func tabulateSingleContest(candidates []ballot.Candidate, ballots []*ballot.Ballot, cfg config.Config, oracle tiebreak.Oracle, sink EventSink) (*result.Result, error) {
	runID := uuid.New().String()
	res := result.New(cfg.ContestID, runID)

	allIDs := make([]string, len(candidates))
	for i, c := range candidates {
		allIDs[i] = c.ID
	}

	statuses := ballot.StatusMap{}
	for _, id := range cfg.ExcludedCandidates {
		statuses[id] = ballot.Status{Kind: ballot.Excluded}
	}

	order := tally.CanonicalOrder(cfg.CandidatePermutation, allIDs)
	breaker := tiebreak.New(cfg, oracle)

	states := make([]*ballot.State, len(ballots))
	for i := range ballots {
		states[i] = ballot.NewState()
	}

	maxRounds := len(allIDs) + 1
	electedOrder := 0
	eliminatedOrder := 0
	var history tiebreak.History
	// electedTallies pins every elected candidate's recorded tally (spec
	// §4.5's threshold-capped amount, or the raw final tally for a
	// termination-driven election with no further surplus round) so it
	// stays visible in every later round's snapshot instead of vanishing
	// once their ballots transfer away (spec §3 invariant 5).
	electedTallies := make(map[string]*big.Rat)

	var thresholdResult threshold.Result
	thresholdComputed := false
	usesThreshold := !(cfg.TabulationMode == config.ContinueUntilTwoRemain || cfg.ContinueUntilTwoRemainFlag)

	for round := 1; ; round++ {
		if round > maxRounds {
			return res, fmt.Errorf("%w: round %d exceeds safety bound %d", ErrRoundLimitExceeded, round, maxRounds)
		}

		sink.Event("tabulator.round.start", "round", round, "contest", cfg.ContestID)

		// 1. Assignment phase.
		for i, b := range ballots {
			st := states[i]
			if rational.IsZero(st.Weight) {
				continue
			}
			if transfer.NeedsReassignment(st, statuses) {
				transfer.Assign(b, st, statuses, cfg)
			}
		}

		// 2. Tally phase.
		roundTally := buildRoundTally(ballots, states)
		history = append(history, roundTally)

		if err := checkConservation(states, roundTally, round); err != nil {
			return res, err
		}

		// 3. Threshold phase (computed once, at round 1, unless disabled).
		if usesThreshold && !thresholdComputed {
			thresholdResult = threshold.Compute(cfg, firstRoundActiveWeight(roundTally, statuses, allIDs))
			thresholdComputed = true
		}

		continuingIDs := continuingCandidates(statuses, allIDs)

		// 4. Winner phase.
		var winners []string
		var roundTieBreaks []tiebreak.Resolution
		if thresholdComputed {
			var meeting []string
			for _, id := range continuingIDs {
				if thresholdResult.Meets(roundTally.For(id)) {
					meeting = append(meeting, id)
				}
			}
			if len(meeting) > 0 {
				ordered, ties, err := orderDescending(meeting, roundTally, order, breaker, round, history)
				if err != nil {
					return res, err
				}
				winners = ordered
				roundTieBreaks = append(roundTieBreaks, ties...)
			}
		}

		for _, id := range winners {
			electedOrder++
			statuses[id] = ballot.Status{Kind: ballot.Elected, Round: round, Order: electedOrder}
			sink.Event("tabulator.candidate.elected", "round", round, "candidate", id)
			if thresholdComputed {
				electedTallies[id] = surplus.RecordedTally(roundTally.For(id), thresholdResult.Threshold)
			} else {
				electedTallies[id] = roundTally.For(id)
			}
		}

		var transfers []result.Transfer
		if len(winners) > 0 && thresholdComputed {
			electedList := make([]surplus.Elected, len(winners))
			for i, id := range winners {
				electedList[i] = surplus.Elected{CandidateID: id, RoundTally: roundTally.For(id)}
			}
			fractions := surplus.ComputeFractions(electedList, thresholdResult.Threshold)
			surplus.Apply(ballots, states, fractions)
			for _, f := range fractions {
				transfers = append(transfers, result.Transfer{FromCandidate: f.CandidateID, Fraction: f.F})
			}
		}

		// 5. Termination check.
		remainingContinuing := continuingCandidates(statuses, allIDs)
		terminate, extraElected := checkTermination(cfg, statuses, remainingContinuing, winners)
		if terminate {
			// No later round transfers these winners' surplus, so each
			// keeps its raw final-round tally.
			for _, id := range winners {
				electedTallies[id] = roundTally.For(id)
			}
		}
		for _, id := range extraElected {
			electedOrder++
			statuses[id] = ballot.Status{Kind: ballot.Elected, Round: round, Order: electedOrder}
			sink.Event("tabulator.candidate.elected", "round", round, "candidate", id)
			electedTallies[id] = roundTally.For(id)
		}
		winners = append(winners, extraElected...)

		var eliminated []string

		// 6. Elimination phase: only when no winner was elected this
		// round, or the mode demands continuing elimination to produce a
		// full order of finish.
		runElimination := !terminate && (len(winners) == 0 || cfg.TabulationMode == config.ContinueUntilTwoRemain)
		if runElimination {
			losers, ties, err := selectLosers(round, roundTally, remainingContinuing, order, cfg, breaker, history)
			if err != nil {
				return res, err
			}
			eliminated = losers
			roundTieBreaks = append(roundTieBreaks, ties...)

			for i, id := range eliminated {
				eliminatedOrder++
				statuses[id] = ballot.Status{Kind: ballot.Eliminated, Round: round, Order: eliminatedOrder}
				sink.Event("tabulator.candidate.eliminated", "round", round, "candidate", id)
				transfers = append(transfers, result.Transfer{FromCandidate: id, Fraction: rational.One()})
				_ = i
			}
		}

		res.AppendRound(result.RoundOutcome{
			Round:      round,
			Tally:      snapshotTally(roundTally, cfg, electedTallies),
			Exhausted:  rational.Round(roundTally.Exhausted, cfg.DecimalPlacesForVoteArithmetic, roundMode(cfg)),
			Overvote:   rational.Round(roundTally.Overvote, cfg.DecimalPlacesForVoteArithmetic, roundMode(cfg)),
			Skipped:    rational.Round(roundTally.Skipped, cfg.DecimalPlacesForVoteArithmetic, roundMode(cfg)),
			Threshold:  thresholdOrNil(thresholdComputed, thresholdResult),
			Elected:    winners,
			Eliminated: eliminated,
			Transfers:  transfers,
			TieBreaks:  roundTieBreaks,
		})

		if terminate {
			res.FinalTallies = snapshotTally(roundTally, cfg, electedTallies)
			res.GeneratedAt = time.Now()
			return res, nil
		}
	}
}

func buildRoundTally(ballots []*ballot.Ballot, states []*ballot.State) *tally.RoundTally {
	rt := tally.New()
	for i := range ballots {
		st := states[i]
		if rational.IsZero(st.Weight) {
			continue
		}
		switch st.Exhausted {
		case ballot.ExhaustedOvervote:
			rt.Overvote = rational.Add(rt.Overvote, st.Weight)
		case ballot.ExhaustedSkippedRank:
			rt.Skipped = rational.Add(rt.Skipped, st.Weight)
		case ballot.ExhaustedDuplicate, ballot.ExhaustedNoMoreRankings:
			rt.Exhausted = rational.Add(rt.Exhausted, st.Weight)
		default:
			rt.Add(st.AssignedCandidate, st.Weight)
		}
	}
	return rt
}

func checkConservation(states []*ballot.State, rt *tally.RoundTally, round int) error {
	var totalWeight *big.Rat = rational.Zero()
	for _, st := range states {
		totalWeight = rational.Add(totalWeight, st.Weight)
	}
	if rt.Total().Cmp(totalWeight) != 0 {
		return fmt.Errorf("%w: round %d tally total %s != active weight total %s",
			ErrInvariantViolation, round, rt.Total().RatString(), totalWeight.RatString())
	}
	return nil
}

// firstRoundActiveWeight is V in spec §4.3: the sum of all first-round
// continuing-candidate tallies (exhausted/overvote/skipped ballots never
// reached a candidate and are not "active").
func firstRoundActiveWeight(rt *tally.RoundTally, statuses ballot.StatusMap, allIDs []string) *big.Rat {
	total := rational.Zero()
	for _, id := range allIDs {
		if statuses.IsContinuing(id) {
			total = rational.Add(total, rt.For(id))
		}
	}
	return total
}

func continuingCandidates(statuses ballot.StatusMap, allIDs []string) []string {
	var out []string
	for _, id := range allIDs {
		if statuses.IsContinuing(id) {
			out = append(out, id)
		}
	}
	return out
}

// checkTermination implements spec §4.1.1, evaluated in order. extraElected
// holds candidates this function itself declares elected as part of
// terminating (the single-continuing-candidate default and the
// bottoms-up "elect everyone left" case).
func checkTermination(cfg config.Config, statuses ballot.StatusMap, continuing []string, winnersThisRound []string) (terminate bool, extraElected []string) {
	electedCount := 0
	for _, s := range statuses {
		if s.Kind == ballot.Elected {
			electedCount++
		}
	}

	if electedCount >= cfg.NumberOfWinners {
		return true, nil
	}

	singleWinnerDefault := cfg.TabulationMode == config.SingleWinnerIRV && !cfg.ContinueUntilTwoRemainFlag
	if singleWinnerDefault && len(continuing) == 1 {
		return true, continuing
	}

	if cfg.TabulationMode == config.ContinueUntilTwoRemain || cfg.ContinueUntilTwoRemainFlag {
		if len(continuing) <= 2 {
			return true, nil
		}
	}

	if cfg.TabulationMode == config.BottomsUpMultiSeat && len(continuing) == cfg.NumberOfWinners {
		return true, continuing
	}

	return false, nil
}

// orderDescending sorts ids by descending tally, resolving same-tally
// groups via the configured tie-break mode in selectWinner orientation.
// The winner phase uses it to assign election Order; selectLosers builds
// its own ascending index instead of calling it.
func orderDescending(ids []string, rt *tally.RoundTally, order []string, breaker *tiebreak.Breaker, round int, history tiebreak.History) ([]string, []tiebreak.Resolution, error) {
	scoped := tally.New()
	for _, id := range ids {
		scoped.Add(id, rt.For(id))
	}
	idx := tally.BuildIndex(scoped, order, true)

	var ordered []string
	var ties []tiebreak.Resolution
	for _, bucket := range idx.Buckets() {
		if len(bucket.Candidates) == 1 {
			ordered = append(ordered, bucket.Candidates[0])
			continue
		}
		resolved, res, err := resolveGroup(bucket.Candidates, round, rt, history, breaker, true)
		if err != nil {
			return nil, nil, err
		}
		ordered = append(ordered, resolved...)
		ties = append(ties, res...)
	}
	return ordered, ties, nil
}

// resolveGroup fully orders a set of tied candidates by repeatedly asking
// the tie-breaker for the next winner/loser and removing it, until one
// remains.
func resolveGroup(group []string, round int, rt *tally.RoundTally, history tiebreak.History, breaker *tiebreak.Breaker, selectWinner bool) ([]string, []tiebreak.Resolution, error) {
	remaining := append([]string(nil), group...)
	var ordered []string
	var resolutions []tiebreak.Resolution

	for len(remaining) > 1 {
		var (
			res tiebreak.Resolution
			err error
		)
		if selectWinner {
			res, err = breaker.SelectWinner(remaining, round, rt, history)
		} else {
			res, err = breaker.SelectLoser(remaining, round, rt, history)
		}
		if err != nil {
			return nil, nil, err
		}
		resolutions = append(resolutions, res)
		ordered = append(ordered, res.Candidate)
		remaining = removeString(remaining, res.Candidate)
	}
	if len(remaining) == 1 {
		ordered = append(ordered, remaining[0])
	}
	return ordered, resolutions, nil
}

func removeString(s []string, target string) []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// selectLosers implements spec §4.1.2: the minimum-vote-threshold cut
// (round 1 only), then batch elimination (if enabled), falling back to a
// single tie-broken loser when no batch prefix qualifies.
func selectLosers(round int, rt *tally.RoundTally, continuing []string, order []string, cfg config.Config, breaker *tiebreak.Breaker, history tiebreak.History) ([]string, []tiebreak.Resolution, error) {
	if round == 1 && cfg.MinimumVoteThreshold > 0 {
		floor := rational.FromInt(cfg.MinimumVoteThreshold)
		var below []string
		for _, id := range continuing {
			if rt.For(id).Cmp(floor) < 0 {
				below = append(below, id)
			}
		}
		if len(below) > 0 {
			return below, nil, nil
		}
	}

	scoped := tally.New()
	for _, id := range continuing {
		scoped.Add(id, rt.For(id))
	}
	idx := tally.BuildIndex(scoped, order, false) // ascending
	buckets := idx.Buckets()
	if len(buckets) == 0 {
		return nil, nil, nil
	}

	if !cfg.BatchElimination {
		return pickSingleLoser(buckets[0], round, rt, history, breaker)
	}

	// Batch elimination: expand the eliminable prefix across buckets
	// while the cumulative sum stays strictly below the next bucket's
	// tally.
	sum := rational.Zero()
	eliminable := 0
	for i := 0; i < len(buckets)-1; i++ {
		bucketSum := rational.Zero()
		for _, id := range buckets[i].Candidates {
			bucketSum = rational.Add(bucketSum, rt.For(id))
		}
		candidateSum := rational.Add(sum, bucketSum)
		if candidateSum.Cmp(buckets[i+1].Tally) < 0 {
			sum = candidateSum
			eliminable = i + 1
		} else {
			break
		}
	}

	if eliminable == 0 {
		return pickSingleLoser(buckets[0], round, rt, history, breaker)
	}

	var losers []string
	for i := 0; i < eliminable; i++ {
		losers = append(losers, buckets[i].Candidates...)
	}
	return losers, nil, nil
}

func pickSingleLoser(bucket tally.Bucket, round int, rt *tally.RoundTally, history tiebreak.History, breaker *tiebreak.Breaker) ([]string, []tiebreak.Resolution, error) {
	if len(bucket.Candidates) == 1 {
		return bucket.Candidates, nil, nil
	}
	res, err := breaker.SelectLoser(bucket.Candidates, round, rt, history)
	if err != nil {
		return nil, nil, err
	}
	return []string{res.Candidate}, []tiebreak.Resolution{res}, nil
}

// snapshotTally renders a round's recorded tallies, rounded for display.
// pinned overrides rt's raw value for any already-elected candidate: once
// elected, a candidate's recorded tally stays fixed at its spec §4.5
// threshold-capped (or final, surplus-free) amount rather than vanishing
// once their ballots transfer away in a later round's assignment phase.
func snapshotTally(rt *tally.RoundTally, cfg config.Config, pinned map[string]*big.Rat) map[string]*big.Rat {
	out := make(map[string]*big.Rat)
	for _, id := range rt.Candidates() {
		out[id] = rational.Round(rt.For(id), cfg.DecimalPlacesForVoteArithmetic, roundMode(cfg))
	}
	for id, t := range pinned {
		out[id] = rational.Round(t, cfg.DecimalPlacesForVoteArithmetic, roundMode(cfg))
	}
	return out
}

func roundMode(cfg config.Config) rational.RoundMode {
	if cfg.RoundTalliesHalfToEven {
		return rational.RoundHalfEven
	}
	return rational.RoundHalfUp
}

func thresholdOrNil(computed bool, t threshold.Result) *big.Rat {
	if !computed {
		return nil
	}
	return t.Threshold
}
