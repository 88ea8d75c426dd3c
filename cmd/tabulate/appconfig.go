// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"errors"
	"flag"
	"os"
	"strconv"
)

// appConfig is the process-level configuration cmd/tabulate needs beyond
// the per-contest tabulation config.Config: where to store results and
// how to authenticate admin requests when serving the API. Mirrors the
// teacher's cliparse.Config shape.
type appConfig struct {
	Serve        bool
	Port         int
	DatabaseURL  string
	AdminKeySalt string
	CVRPath      string
	ContestJSON  string
}

// parseAppFlags reads flags and falls back to environment variables, in
// the cliparse idiom: flags first, then env, then a default (port 8080,
// database file tabulator.db). The only hard failure is a missing admin
// key salt when -serve is set.
func parseAppFlags(args []string) (appConfig, error) {
	var cfg appConfig

	fs := flag.NewFlagSet("tabulate", flag.ContinueOnError)
	fs.BoolVar(&cfg.Serve, "serve", false, "Run the results/operator HTTP API instead of one batch tabulation")
	fs.IntVar(&cfg.Port, "p", 0, "Server port (with -serve)")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL or file path")
	fs.StringVar(&cfg.AdminKeySalt, "admin-salt", "", "Admin key salt (prefer env)")
	fs.StringVar(&cfg.CVRPath, "cvr", "", "Path to a line-delimited CVR JSON file (without -serve)")
	fs.StringVar(&cfg.ContestJSON, "contest", "", "Path to a contest config JSON file (without -serve)")

	if err := fs.Parse(args); err != nil {
		return appConfig{}, err
	}

	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return appConfig{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 8080
		}
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "tabulator.db"
	}

	if cfg.AdminKeySalt == "" {
		cfg.AdminKeySalt = os.Getenv("ADMIN_KEY_SALT")
	}
	if cfg.AdminKeySalt == "" && cfg.Serve {
		return appConfig{}, errors.New("ADMIN_KEY_SALT required to serve the API")
	}

	return cfg, nil
}
