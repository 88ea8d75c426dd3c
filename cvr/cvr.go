// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package cvr reads cast-vote records into the normalized in-memory
// ballot shape the tabulation engine consumes. It supports a generic
// line-delimited JSON format and a minimal Dominion-style CVR export;
// the engine never learns which adapter produced a ballot.
package cvr

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/rankedvote/tabulator/ballot"
	"github.com/rankedvote/tabulator/config"
)

// ErrBallotMalformed is returned (wrapped with the offending record's
// detail) for a ballot the reader could not normalize (spec §7's
// BallotMalformed kind).
var ErrBallotMalformed = errors.New("ballot malformed")

// record is the wire shape of one line in the generic CVR file: a ballot
// ID, an optional precinct, and a flat list of (rank, candidateID) pairs
// mirroring spec.md §6's "rank entries as a list of (rank, candidateID)
// pairs".
type record struct {
	BallotID string       `json:"ballotId"`
	Precinct string       `json:"precinct"`
	Marks    []markRecord `json:"marks"`
}

type markRecord struct {
	Rank        int    `json:"rank"`
	CandidateID string `json:"candidateId"`
}

// Diagnostics summarizes the ballots a Read call rejected.
type Diagnostics struct {
	Accepted int
	Rejected int
	Reasons  []string
}

// Summary renders a human-readable one-line summary of a read pass,
// suitable for a startup log line or CLI output.
func (d Diagnostics) Summary() string {
	total := d.Accepted + d.Rejected
	if d.Rejected == 0 {
		return fmt.Sprintf("accepted all %s ballots", humanize.Comma(int64(total)))
	}
	return fmt.Sprintf("rejected %s of %s ballots", humanize.Comma(int64(d.Rejected)), humanize.Comma(int64(total)))
}

// Read parses one JSON record per line from r into normalized ballots,
// validating each record's ranks against knownCandidateIDs. Behavior on a
// malformed record is governed by cfg.RejectMalformedBallots: false skips
// the record and continues (the default, matching a real canvass where a
// handful of damaged CVRs shouldn't halt the count); true aborts on the
// first malformed record.
func Read(r io.Reader, knownCandidateIDs map[string]bool, cfg config.Config) ([]*ballot.Ballot, Diagnostics, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		ballots []*ballot.Ballot
		diag    Diagnostics
	)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			if cfg.RejectMalformedBallots {
				return nil, diag, fmt.Errorf("%w: line %d: %v", ErrBallotMalformed, lineNum, err)
			}
			diag.Rejected++
			diag.Reasons = append(diag.Reasons, fmt.Sprintf("line %d: invalid JSON: %v", lineNum, err))
			continue
		}

		b, err := normalize(rec, knownCandidateIDs)
		if err != nil {
			if cfg.RejectMalformedBallots {
				return nil, diag, fmt.Errorf("%w: line %d: %v", ErrBallotMalformed, lineNum, err)
			}
			diag.Rejected++
			diag.Reasons = append(diag.Reasons, fmt.Sprintf("line %d: %v", lineNum, err))
			continue
		}

		ballots = append(ballots, b)
		diag.Accepted++
	}
	if err := scanner.Err(); err != nil {
		return nil, diag, fmt.Errorf("scanning CVR stream: %w", err)
	}

	slog.Info("cvr read complete", "summary", diag.Summary())
	return ballots, diag, nil
}

// normalize converts one wire record into a ballot.Ballot, grouping marks
// by rank (a rank with more than one mark becomes an overvote entry, left
// for transfer.Assign to resolve per the configured OvervoteRule) and
// rejecting ranks below 1 or candidates outside the contest.
func normalize(rec record, knownCandidateIDs map[string]bool) (*ballot.Ballot, error) {
	if rec.BallotID == "" {
		return nil, fmt.Errorf("missing ballotId")
	}

	byRank := make(map[int][]string)
	maxRank := 0
	for _, m := range rec.Marks {
		if m.Rank < 1 {
			return nil, fmt.Errorf("ballot %s: rank %d out of range", rec.BallotID, m.Rank)
		}
		if m.CandidateID != "" && !knownCandidateIDs[m.CandidateID] {
			return nil, fmt.Errorf("ballot %s: unknown candidate %q", rec.BallotID, m.CandidateID)
		}
		byRank[m.Rank] = append(byRank[m.Rank], m.CandidateID)
		if m.Rank > maxRank {
			maxRank = m.Rank
		}
	}

	ranks := make([]ballot.RankEntry, 0, maxRank)
	for rank := 1; rank <= maxRank; rank++ {
		ranks = append(ranks, ballot.RankEntry{Rank: rank, Candidates: byRank[rank]})
	}

	return &ballot.Ballot{ID: rec.BallotID, Precinct: rec.Precinct, Ranks: ranks}, nil
}

// dominionManifest is the subset of a Dominion CandidateManifest.json /
// ContestManifest.json this adapter needs: a contest's candidates keyed
// by the numeric ID the CvrExport references.
type dominionManifest struct {
	Candidates []struct {
		ID   int    `json:"Id"`
		Name string `json:"Description"`
	} `json:"Candidates"`
}

// dominionCVR is the subset of a Dominion CvrExport.json record this
// adapter reads: one ballot with a list of contests, each holding marks
// ordered by rank.
type dominionCVR struct {
	Sessions []struct {
		TabulatorID int `json:"TabulatorId"`
		BallotID    int `json:"RecordId"`
		Contests    []struct {
			Marks []struct {
				CandidateID int `json:"CandidateId"`
				Rank        int `json:"Rank"`
			} `json:"Marks"`
		} `json:"Original"`
	} `json:"Sessions"`
}

// ReadDominion parses a Dominion-style manifest + CVR export pair into
// normalized ballots. Candidate IDs are stringified from the manifest's
// numeric IDs so they compare equal to the rest of the engine's string
// candidate IDs.
func ReadDominion(manifestR, cvrR io.Reader) ([]*ballot.Ballot, []ballot.Candidate, error) {
	var manifest dominionManifest
	if err := json.NewDecoder(manifestR).Decode(&manifest); err != nil {
		return nil, nil, fmt.Errorf("decoding candidate manifest: %w", err)
	}

	candidates := make([]ballot.Candidate, 0, len(manifest.Candidates))
	idFor := make(map[int]string, len(manifest.Candidates))
	for _, c := range manifest.Candidates {
		id := fmt.Sprintf("%d", c.ID)
		idFor[c.ID] = id
		candidates = append(candidates, ballot.Candidate{ID: id, Name: c.Name})
	}

	var export dominionCVR
	if err := json.NewDecoder(cvrR).Decode(&export); err != nil {
		return nil, nil, fmt.Errorf("decoding cvr export: %w", err)
	}

	var ballots []*ballot.Ballot
	for _, session := range export.Sessions {
		byRank := make(map[int][]string)
		maxRank := 0
		for _, contest := range session.Contests {
			for _, m := range contest.Marks {
				id, ok := idFor[m.CandidateID]
				if !ok {
					continue
				}
				byRank[m.Rank] = append(byRank[m.Rank], id)
				if m.Rank > maxRank {
					maxRank = m.Rank
				}
			}
		}
		ranks := make([]ballot.RankEntry, 0, maxRank)
		for rank := 1; rank <= maxRank; rank++ {
			ranks = append(ranks, ballot.RankEntry{Rank: rank, Candidates: byRank[rank]})
		}
		ballots = append(ballots, &ballot.Ballot{
			ID:    fmt.Sprintf("%d-%d", session.TabulatorID, session.BallotID),
			Ranks: ranks,
		})
	}

	return ballots, candidates, nil
}
