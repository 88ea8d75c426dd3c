// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package api is the results/operator HTTP service: it accepts a contest
// definition and CVR upload, runs the tabulation engine, and serves back
// persisted runs. Generalized from the teacher's router+handlers pair
// (spec.md's engine stays a pure library; this package is the concrete
// "external collaborator" spec.md §1 describes).
package api

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rankedvote/tabulator/apiauth"
	"github.com/rankedvote/tabulator/ballot"
	"github.com/rankedvote/tabulator/config"
	"github.com/rankedvote/tabulator/httpmw"
	"github.com/rankedvote/tabulator/store"
	"github.com/rankedvote/tabulator/tabulator"
)

// ServerConfig carries the values a running api server needs beyond
// per-request config.Config: the admin key salt.
type ServerConfig struct {
	AdminKeySalt string
}

// ContestHandler serves contest lifecycle and tabulation endpoints.
type ContestHandler struct {
	db  *sql.DB
	str *store.Store
	cfg ServerConfig
}

// NewContestHandler wires a ContestHandler to its database handle.
func NewContestHandler(db *sql.DB, cfg ServerConfig) *ContestHandler {
	return &ContestHandler{db: db, str: store.New(db), cfg: cfg}
}

type createContestRequest struct {
	ContestID string          `json:"contestId"`
	Config    json.RawMessage `json:"config"`
}

type createContestResponse struct {
	ContestID string `json:"contestId"`
	AdminKey  string `json:"adminKey"`
}

// CreateContest handles POST /contests: registers a contest's tabulation
// configuration and mints its admin key.
func (h *ContestHandler) CreateContest(w http.ResponseWriter, r *http.Request) {
	var req createContestRequest
	if err := httpmw.ParseJSONBody(r, &req); err != nil {
		httpmw.ErrorResponse(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ContestID == "" {
		httpmw.ErrorResponse(w, http.StatusBadRequest, "contestId is required")
		return
	}

	var cfg config.Config
	if err := json.Unmarshal(req.Config, &cfg); err != nil {
		httpmw.ErrorResponse(w, http.StatusBadRequest, "invalid config: "+err.Error())
		return
	}
	cfg.ContestID = req.ContestID
	if err := cfg.Validate(); err != nil {
		httpmw.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	configJSON, err := cfg.MarshalJSON()
	if err != nil {
		slog.Error("failed to marshal contest config", "error", err)
		httpmw.ErrorResponse(w, http.StatusInternalServerError, "failed to create contest")
		return
	}

	if err := h.str.SaveContest(r.Context(), cfg.ContestID, cfg.NumberOfWinners, cfg.TabulationMode.String(), string(configJSON)); err != nil {
		slog.Error("failed to save contest", "error", err)
		httpmw.ErrorResponse(w, http.StatusInternalServerError, "failed to create contest")
		return
	}

	adminKey := apiauth.GenerateAdminKey(cfg.ContestID, h.cfg.AdminKeySalt)
	slog.Info("contest created", "contest_id", cfg.ContestID)

	httpmw.JSONResponse(w, http.StatusCreated, createContestResponse{
		ContestID: cfg.ContestID,
		AdminKey:  adminKey,
	})
}

type tabulateRequest struct {
	Candidates []ballot.Candidate `json:"candidates"`
	Config     json.RawMessage    `json:"config"`
	CVR        []cvrMark          `json:"cvr"`
}

type cvrMark struct {
	BallotID string             `json:"ballotId"`
	Precinct string             `json:"precinct"`
	Marks    []cvrMarkRankEntry `json:"marks"`
}

type cvrMarkRankEntry struct {
	Rank        int    `json:"rank"`
	CandidateID string `json:"candidateId"`
}

type tabulateResponse struct {
	RunID          string   `json:"runId"`
	ElectedInOrder []string `json:"electedInOrder"`
	Rounds         int      `json:"rounds"`
}

// Tabulate handles POST /contests/{id}/tabulate: runs the engine over an
// inline CVR upload and persists the result. Requires the contest's
// admin key in the X-Admin-Key header.
func (h *ContestHandler) Tabulate(w http.ResponseWriter, r *http.Request) {
	contestID := r.PathValue("id")
	if contestID == "" {
		httpmw.ErrorResponse(w, http.StatusBadRequest, "contest id is required")
		return
	}

	adminKey := r.Header.Get("X-Admin-Key")
	if err := apiauth.ValidateAdminKey(contestID, adminKey, h.cfg.AdminKeySalt); err != nil {
		httpmw.ErrorResponse(w, http.StatusUnauthorized, "invalid admin key")
		return
	}

	var req tabulateRequest
	if err := httpmw.ParseJSONBody(r, &req); err != nil {
		httpmw.ErrorResponse(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Candidates) == 0 {
		httpmw.ErrorResponse(w, http.StatusBadRequest, "candidates is required")
		return
	}

	var cfg config.Config
	if err := json.Unmarshal(req.Config, &cfg); err != nil {
		httpmw.ErrorResponse(w, http.StatusBadRequest, "invalid config: "+err.Error())
		return
	}
	cfg.ContestID = contestID
	if err := cfg.Validate(); err != nil {
		httpmw.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	known := make(map[string]bool, len(req.Candidates)+1)
	known[ballot.UWI] = true
	for _, c := range req.Candidates {
		known[c.ID] = true
	}

	ballots := make([]*ballot.Ballot, 0, len(req.CVR))
	for _, m := range req.CVR {
		ranks := make([]ballot.RankEntry, 0, len(m.Marks))
		byRank := make(map[int][]string)
		maxRank := 0
		for _, mark := range m.Marks {
			byRank[mark.Rank] = append(byRank[mark.Rank], mark.CandidateID)
			if mark.Rank > maxRank {
				maxRank = mark.Rank
			}
		}
		for rank := 1; rank <= maxRank; rank++ {
			ranks = append(ranks, ballot.RankEntry{Rank: rank, Candidates: byRank[rank]})
		}
		ballots = append(ballots, &ballot.Ballot{ID: m.BallotID, Precinct: m.Precinct, Ranks: ranks})
	}

	res, err := tabulator.Tabulate(req.Candidates, ballots, cfg, nil, tabulator.NoopSink())
	if err != nil {
		slog.Error("tabulation failed", "contest_id", contestID, "error", err)
		httpmw.ErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.str.SaveRun(r.Context(), res); err != nil {
		slog.Error("failed to persist run", "run_id", res.RunID, "error", err)
		httpmw.ErrorResponse(w, http.StatusInternalServerError, "tabulation succeeded but could not be saved")
		return
	}

	slog.Info("tabulation complete", "contest_id", contestID, "run_id", res.RunID, "rounds", len(res.RoundOutcomes))
	httpmw.JSONResponse(w, http.StatusOK, tabulateResponse{
		RunID:          res.RunID,
		ElectedInOrder: res.ElectedInOrder,
		Rounds:         len(res.RoundOutcomes),
	})
}

// ListRuns handles GET /contests/{id}/runs.
func (h *ContestHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	contestID := r.PathValue("id")
	runs, err := h.str.ListRuns(r.Context(), contestID)
	if err != nil {
		slog.Error("failed to list runs", "contest_id", contestID, "error", err)
		httpmw.ErrorResponse(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	httpmw.JSONResponse(w, http.StatusOK, runs)
}

// GetRun handles GET /contests/{id}/runs/{runID}.
func (h *ContestHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	detail, err := h.str.GetRun(r.Context(), runID)
	if err != nil {
		httpmw.ErrorResponse(w, http.StatusNotFound, "run not found")
		return
	}
	httpmw.JSONResponse(w, http.StatusOK, detail)
}

// GetRound handles GET /contests/{id}/runs/{runID}/rounds/{n}.
func (h *ContestHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	roundStr := r.PathValue("n")

	round, err := strconv.Atoi(roundStr)
	if err != nil || round < 1 {
		httpmw.ErrorResponse(w, http.StatusBadRequest, "invalid round number")
		return
	}

	detail, err := h.str.GetRound(r.Context(), runID, round)
	if err != nil {
		httpmw.ErrorResponse(w, http.StatusNotFound, "round not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(detail.Payload)
}
