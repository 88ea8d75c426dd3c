// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/rankedvote/tabulator/api"
	"github.com/rankedvote/tabulator/ballot"
	"github.com/rankedvote/tabulator/config"
	"github.com/rankedvote/tabulator/cvr"
	"github.com/rankedvote/tabulator/store"
	"github.com/rankedvote/tabulator/tabulator"
	"github.com/rankedvote/tabulator/tiebreak"
)

var errRequired = errors.New("-contest and -cvr are required without -serve")

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", "error", err)
	}

	appCfg, err := parseAppFlags(os.Args[1:])
	if err != nil {
		slog.Error("error parsing flags", "error", err)
		os.Exit(1)
	}

	dbConn, err := store.Open(appCfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	if err := store.CreateSchema(dbConn); err != nil {
		slog.Error("schema creation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("database schema ready")

	if appCfg.Serve {
		runServer(dbConn, appCfg)
		return
	}

	if err := runBatch(dbConn, appCfg); err != nil {
		slog.Error("tabulation failed", "error", err)
		os.Exit(1)
	}
}

func runServer(dbConn *sql.DB, appCfg appConfig) {
	mux := api.NewRouter(dbConn, api.ServerConfig{AdminKeySalt: appCfg.AdminKeySalt})

	server := http.Server{
		Handler: mux,
		Addr:    ":" + strconv.Itoa(appCfg.Port),
	}

	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctrlc
		server.Close()
	}()

	slog.Info("listening", "port", appCfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server closed", "error", err)
	} else {
		slog.Info("server closed")
	}
}

// fileContest is the on-disk shape a batch run reads its contest
// definition from: candidates plus the tabulation config, parallel to
// api's tabulateRequest but sourced from a file instead of an HTTP body.
type fileContest struct {
	ContestID  string             `json:"contestId"`
	Candidates []ballot.Candidate `json:"candidates"`
	Config     json.RawMessage    `json:"config"`
}

func runBatch(dbConn *sql.DB, appCfg appConfig) error {
	if appCfg.ContestJSON == "" || appCfg.CVRPath == "" {
		return errRequired
	}

	contestFile, err := os.Open(appCfg.ContestJSON)
	if err != nil {
		return err
	}
	defer contestFile.Close()

	var fc fileContest
	if err := json.NewDecoder(contestFile).Decode(&fc); err != nil {
		return err
	}

	var cfg config.Config
	if err := json.Unmarshal(fc.Config, &cfg); err != nil {
		return err
	}
	cfg.ContestID = fc.ContestID
	if err := cfg.Validate(); err != nil {
		return err
	}

	cvrFile, err := os.Open(appCfg.CVRPath)
	if err != nil {
		return err
	}
	defer cvrFile.Close()

	known := make(map[string]bool, len(fc.Candidates)+1)
	known[ballot.UWI] = true
	for _, c := range fc.Candidates {
		known[c.ID] = true
	}

	ballots, diag, err := cvr.Read(cvrFile, known, cfg)
	if err != nil {
		return err
	}
	slog.Info("cvr loaded", "summary", diag.Summary())

	var oracle tiebreak.Oracle
	if cfg.TieBreakMode == config.Interactive || cfg.TieBreakMode == config.PreviousRoundCountsThenInteractive {
		console, err := newConsoleOracle()
		if err != nil {
			return err
		}
		oracle = console
	}

	start := time.Now()
	res, err := tabulator.Tabulate(fc.Candidates, ballots, cfg, oracle, tabulator.NoopSink())
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	ctx := context.Background()
	str := store.New(dbConn)
	configJSON, err := cfg.MarshalJSON()
	if err != nil {
		return err
	}
	if err := str.SaveContest(ctx, cfg.ContestID, cfg.NumberOfWinners, cfg.TabulationMode.String(), string(configJSON)); err != nil {
		return err
	}
	if err := str.SaveRun(ctx, res); err != nil {
		return err
	}

	if !strings.HasPrefix(appCfg.DatabaseURL, "postgres://") && !strings.HasPrefix(appCfg.DatabaseURL, "postgresql://") {
		slog.Info("offline run archived", "snapshot", store.ArchiveFilename(cfg.ContestID, res.GeneratedAt))
	}

	slog.Info("tabulation complete",
		"contest_id", cfg.ContestID,
		"run_id", res.RunID,
		"rounds", len(res.RoundOutcomes),
		"ballots", humanize.Comma(int64(len(ballots))),
		"elapsed", elapsed.String(),
	)
	for i, id := range res.ElectedInOrder {
		slog.Info("elected", "order", i+1, "candidate", id)
	}

	return nil
}
