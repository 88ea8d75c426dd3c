// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/rankedvote/tabulator/result"
	"github.com/rankedvote/tabulator/tiebreak"
)

// Open connects to the backend named by dsn. A "postgres://" or
// "postgresql://" prefix selects lib/pq; anything else (including a bare
// filesystem path) is treated as a modernc.org/sqlite database file.
func Open(dsn string) (*sql.DB, error) {
	driver, source := "sqlite", dsn
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver, source = "postgres", dsn
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s store: %w", driver, err)
	}
	return db, nil
}

// Store wraps a database handle with the tabulation-specific queries.
type Store struct {
	db *sql.DB
}

// New wraps an already-open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveContest upserts a contest's configuration JSON, the form config.Config
// itself already knows how to render (config.MarshalJSON).
func (s *Store) SaveContest(ctx context.Context, contestID string, numberOfWinners int, tabulationMode, configJSON string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contest (id, number_of_winners, tabulation_mode, config_json)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			number_of_winners = excluded.number_of_winners,
			tabulation_mode = excluded.tabulation_mode,
			config_json = excluded.config_json
	`, contestID, numberOfWinners, tabulationMode, configJSON)
	if err != nil {
		return fmt.Errorf("saving contest %s: %w", contestID, err)
	}
	return nil
}

// SaveRun persists a completed tabulation run: the run header, every round
// outcome, and the flattened tie-break audit trail, in one transaction so a
// reader never observes a run with some rounds missing.
func (s *Store) SaveRun(ctx context.Context, r *result.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning run save transaction: %w", err)
	}
	defer tx.Rollback()

	electedJSON, err := json.Marshal(r.ElectedInOrder)
	if err != nil {
		return fmt.Errorf("marshalling elected order: %w", err)
	}
	finalTalliesJSON, err := marshalTallies(r.FinalTallies)
	if err != nil {
		return fmt.Errorf("marshalling final tallies: %w", err)
	}

	terminal := "normal"
	if r.Terminal == result.TerminalCancelled {
		terminal = "cancelled"
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tabulation_run (id, contest_id, terminal, elected_json, final_tallies_json, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.RunID, r.ContestID, terminal, string(electedJSON), string(finalTalliesJSON), generatedAt(r)); err != nil {
		return fmt.Errorf("inserting tabulation run: %w", err)
	}

	sequence := 0
	for _, round := range r.RoundOutcomes {
		payload, err := marshalRoundOutcome(round)
		if err != nil {
			return fmt.Errorf("marshalling round %d: %w", round.Round, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO round_outcome (run_id, round, payload_json) VALUES ($1, $2, $3)
		`, r.RunID, round.Round, payload); err != nil {
			return fmt.Errorf("inserting round %d: %w", round.Round, err)
		}

		for _, tb := range round.TieBreaks {
			sequence++
			if err := insertTieBreak(ctx, tx, r.RunID, round.Round, sequence, tb); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func insertTieBreak(ctx context.Context, tx *sql.Tx, runID string, round, sequence int, tb tiebreak.Resolution) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tie_break_event (run_id, round, candidate, explanation, sequence)
		VALUES ($1, $2, $3, $4, $5)
	`, runID, round, tb.Candidate, tb.Explanation, sequence)
	if err != nil {
		return fmt.Errorf("inserting tie break event: %w", err)
	}
	return nil
}

// ArchiveFilename renders the snapshot name for an offline, embedded-SQLite
// tabulation run: the contest ID plus a timestamp, matching the naming a
// real tabulator run directory needs (spec.md §5.3). It only formats the
// name; nothing in this package writes a file under it.
func ArchiveFilename(contestID string, t time.Time) string {
	return fmt.Sprintf("contest-%s_%s.db", contestID, strftime.Format("%Y%m%dT%H%M%S", t))
}

func generatedAt(r *result.Result) time.Time {
	if r.GeneratedAt.IsZero() {
		return time.Now()
	}
	return r.GeneratedAt
}

// RunSummary is the header row of a tabulation run, without its round
// detail, used for index listings (GET /contests/{id}/runs).
type RunSummary struct {
	RunID          string
	ContestID      string
	Terminal       string
	ElectedInOrder []string
	GeneratedAt    time.Time
}

// ListRuns returns every run recorded for a contest, most recent first.
func (s *Store) ListRuns(ctx context.Context, contestID string) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contest_id, terminal, elected_json, generated_at
		FROM tabulation_run
		WHERE contest_id = $1
		ORDER BY generated_at DESC
	`, contestID)
	if err != nil {
		return nil, fmt.Errorf("listing runs for contest %s: %w", contestID, err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			sum         RunSummary
			electedJSON string
		)
		if err := rows.Scan(&sum.RunID, &sum.ContestID, &sum.Terminal, &electedJSON, &sum.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		if err := json.Unmarshal([]byte(electedJSON), &sum.ElectedInOrder); err != nil {
			return nil, fmt.Errorf("unmarshalling elected order: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// RunDetail is a full persisted run: its header plus every round's
// recorded payload, in round order (GET /contests/{id}/runs/{runID}).
type RunDetail struct {
	RunSummary
	Rounds []json.RawMessage
}

// GetRun fetches a run's header and every recorded round payload.
func (s *Store) GetRun(ctx context.Context, runID string) (RunDetail, error) {
	var (
		detail      RunDetail
		electedJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, contest_id, terminal, elected_json, generated_at
		FROM tabulation_run WHERE id = $1
	`, runID).Scan(&detail.RunID, &detail.ContestID, &detail.Terminal, &electedJSON, &detail.GeneratedAt)
	if err != nil {
		return RunDetail{}, fmt.Errorf("fetching run %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(electedJSON), &detail.ElectedInOrder); err != nil {
		return RunDetail{}, fmt.Errorf("unmarshalling elected order: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload_json FROM round_outcome WHERE run_id = $1 ORDER BY round ASC
	`, runID)
	if err != nil {
		return RunDetail{}, fmt.Errorf("listing rounds for run %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return RunDetail{}, fmt.Errorf("scanning round row: %w", err)
		}
		detail.Rounds = append(detail.Rounds, json.RawMessage(payload))
	}
	return detail, rows.Err()
}

// RoundDetail is one round's payload as recorded, keyed for lookup by
// round number (GET /contests/{id}/runs/{runID}/rounds/{n}).
type RoundDetail struct {
	Round   int
	Payload json.RawMessage
}

// GetRound fetches one round's recorded payload.
func (s *Store) GetRound(ctx context.Context, runID string, round int) (RoundDetail, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload_json FROM round_outcome WHERE run_id = $1 AND round = $2
	`, runID, round).Scan(&payload)
	if err != nil {
		return RoundDetail{}, fmt.Errorf("fetching round %d of run %s: %w", round, runID, err)
	}
	return RoundDetail{Round: round, Payload: json.RawMessage(payload)}, nil
}

func marshalTallies(tallies map[string]*big.Rat) ([]byte, error) {
	flat := make(map[string]string, len(tallies))
	for id, v := range tallies {
		flat[id] = v.RatString()
	}
	return json.Marshal(flat)
}

func marshalRoundOutcome(o result.RoundOutcome) (string, error) {
	type wireTransfer struct {
		FromCandidate string `json:"fromCandidate"`
		Fraction      string `json:"fraction"`
	}
	type wireOutcome struct {
		Round      int               `json:"round"`
		Tally      map[string]string `json:"tally"`
		Exhausted  string            `json:"exhausted"`
		Overvote   string            `json:"overvote"`
		Skipped    string            `json:"skipped"`
		Threshold  string            `json:"threshold,omitempty"`
		Elected    []string          `json:"elected,omitempty"`
		Eliminated []string          `json:"eliminated,omitempty"`
		Transfers  []wireTransfer    `json:"transfers,omitempty"`
	}

	w := wireOutcome{
		Round:      o.Round,
		Tally:      make(map[string]string, len(o.Tally)),
		Exhausted:  o.Exhausted.RatString(),
		Overvote:   o.Overvote.RatString(),
		Skipped:    o.Skipped.RatString(),
		Elected:    o.Elected,
		Eliminated: o.Eliminated,
	}
	for id, v := range o.Tally {
		w.Tally[id] = v.RatString()
	}
	if o.Threshold != nil {
		w.Threshold = o.Threshold.RatString()
	}
	for _, t := range o.Transfers {
		w.Transfers = append(w.Transfers, wireTransfer{FromCandidate: t.FromCandidate, Fraction: t.Fraction.RatString()})
	}

	b, err := json.Marshal(w)
	return string(b), err
}
