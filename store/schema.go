// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// schema is written in a Postgres/SQLite common subset: TIMESTAMP DEFAULT
// CURRENT_TIMESTAMP and a TEXT payload column instead of Postgres's JSONB,
// since modernc.org/sqlite has no JSON column type to mirror it with.
const schema = `
-- Contests
CREATE TABLE IF NOT EXISTS contest (
    id TEXT PRIMARY KEY,
    number_of_winners INTEGER NOT NULL,
    tabulation_mode TEXT NOT NULL,
    config_json TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Tabulation runs
CREATE TABLE IF NOT EXISTS tabulation_run (
    id TEXT PRIMARY KEY,
    contest_id TEXT NOT NULL REFERENCES contest(id) ON DELETE CASCADE,
    terminal TEXT NOT NULL,
    elected_json TEXT NOT NULL,
    final_tallies_json TEXT NOT NULL,
    generated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tabulation_run_contest_id ON tabulation_run(contest_id);

-- Round outcomes
CREATE TABLE IF NOT EXISTS round_outcome (
    run_id TEXT NOT NULL REFERENCES tabulation_run(id) ON DELETE CASCADE,
    round INTEGER NOT NULL,
    payload_json TEXT NOT NULL,
    PRIMARY KEY (run_id, round)
);

CREATE INDEX IF NOT EXISTS idx_round_outcome_run_id ON round_outcome(run_id);

-- Tie break events
CREATE TABLE IF NOT EXISTS tie_break_event (
    run_id TEXT NOT NULL REFERENCES tabulation_run(id) ON DELETE CASCADE,
    round INTEGER NOT NULL,
    candidate TEXT NOT NULL,
    explanation TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    PRIMARY KEY (run_id, round, sequence)
);

CREATE INDEX IF NOT EXISTS idx_tie_break_event_run_id ON tie_break_event(run_id);
`
