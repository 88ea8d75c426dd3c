// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package store persists contest configuration and tabulation run results.

# Backends

Open selects a driver from the DSN scheme:

  - postgres://... or postgresql://...  -> github.com/lib/pq
  - a bare file path, or sqlite://...    -> modernc.org/sqlite (embedded, cgo-free)

Both backends share the same schema (schema.go) and the same query layer
(store.go); Postgres is the production target, SQLite backs local runs
and tests that would otherwise need a running database.

# Schema Creation

CreateSchema initializes all required tables:

	if err := store.CreateSchema(db); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and
indexes.

# Tables

  - contest: contest configuration, one row per contest
  - tabulation_run: one row per Tabulate invocation
  - round_outcome: one row per round of a run
  - tie_break_event: one row per tie resolution, across all rounds of a run

# Relationships

	contest 1──* tabulation_run
	tabulation_run 1──* round_outcome
	tabulation_run 1──* tie_break_event

All foreign keys use ON DELETE CASCADE.
*/
package store
