// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package api

import (
	"database/sql"
	"net/http"

	"github.com/rankedvote/tabulator/httpmw"
)

// NewRouter builds the results/operator HTTP surface (spec §5.4).
func NewRouter(db *sql.DB, cfg ServerConfig) *http.ServeMux {
	mux := http.NewServeMux()

	contests := NewContestHandler(db, cfg)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("POST /contests", httpmw.WithLogging(contests.CreateContest))
	mux.HandleFunc("POST /contests/{id}/tabulate", httpmw.WithLogging(contests.Tabulate))
	mux.HandleFunc("GET /contests/{id}/runs", httpmw.WithLogging(contests.ListRuns))
	mux.HandleFunc("GET /contests/{id}/runs/{runID}", httpmw.WithLogging(contests.GetRun))
	mux.HandleFunc("GET /contests/{id}/runs/{runID}/rounds/{n}", httpmw.WithLogging(contests.GetRound))

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tabulator API v1"))
	})

	return mux
}
