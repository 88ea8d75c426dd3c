// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package tabtest holds fixture builders shared across the engine's test
// suites, generalized from the teacher's testutil package (poll/ballot/
// vote fixtures) to contest/ballot/run fixtures.
package tabtest

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/rankedvote/tabulator/ballot"
	"github.com/rankedvote/tabulator/config"
	"github.com/rankedvote/tabulator/store"
)

// SetupTestDB opens a fresh in-memory SQLite database with the full
// schema applied, for tests that need real persistence without a running
// Postgres instance.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := store.CreateSchema(db); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

// Candidates builds a candidate roster from bare IDs, naming each
// candidate after its own ID (tests rarely care about display names).
func Candidates(ids ...string) []ballot.Candidate {
	out := make([]ballot.Candidate, len(ids))
	for i, id := range ids {
		out[i] = ballot.Candidate{ID: id, Name: id}
	}
	return out
}

// Ballot builds a fully-ranked ballot from an ordered candidate list: the
// first entry is rank 1, and so on. A "" entry produces a skipped rank; a
// []string entry (via BallotOvervote) produces an overvote.
func Ballot(id string, ranking ...string) *ballot.Ballot {
	ranks := make([]ballot.RankEntry, 0, len(ranking))
	for i, c := range ranking {
		var candidates []string
		if c != "" {
			candidates = []string{c}
		}
		ranks = append(ranks, ballot.RankEntry{Rank: i + 1, Candidates: candidates})
	}
	return &ballot.Ballot{ID: id, Ranks: ranks}
}

// BallotOvervote builds a ballot whose given rank position lists more
// than one candidate.
func BallotOvervote(id string, rank int, candidates ...string) *ballot.Ballot {
	return &ballot.Ballot{ID: id, Ranks: []ballot.RankEntry{{Rank: rank, Candidates: candidates}}}
}

// DefaultConfig returns a minimal valid single-winner IRV configuration,
// the baseline most engine tests start from and override fields on.
func DefaultConfig(contestID string) config.Config {
	return config.Config{
		ContestID:                      contestID,
		NumberOfWinners:                1,
		TabulationMode:                 config.SingleWinnerIRV,
		DecimalPlacesForVoteArithmetic: 4,
		BatchElimination:               true,
		OvervoteRule:                   config.ExhaustImmediately,
		SkippedRankRule:                config.Ignore,
		DuplicateCandidateRule:         config.DuplicateIgnore,
		TieBreakMode:                   config.PreviousRoundCountsThenRandom,
		RandomSeed:                     42,
		MaxRankingsAllowed:             1 << 20,
	}
}

// Rat is a terse constructor for exact rational literals in test
// assertions.
func Rat(num, den int64) *big.Rat {
	return big.NewRat(num, den)
}

// MakeRequest builds an httptest request with a JSON body and headers.
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

// AssertStatus fails the test if the recorded response status doesn't
// match expected.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("expected status %d, got %d. body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into v.
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
}
