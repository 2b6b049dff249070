// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashall/hashall/internal/catalogdb"
	"github.com/hashall/hashall/internal/config"
	"github.com/hashall/hashall/internal/herrors"
	"github.com/hashall/hashall/internal/logging"
)

var (
	flagConfigPath string
	flagDBPath     string
)

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hashall/config.toml"
	}
	return filepath.Join(home, ".hashall", "config.toml")
}

// loadConfig resolves config.toml (honoring HASHALL_CONFIG and --config),
// applies the --db / HASHALL_DB override, and initializes logging.
func loadConfig() (*config.Config, error) {
	path := flagConfigPath
	if path == "" {
		if env := os.Getenv("HASHALL_CONFIG"); env != "" {
			path = env
		} else {
			path = defaultConfigPath()
		}
	}

	cfg, err := config.New(path)
	if err != nil {
		return nil, err
	}

	if flagDBPath != "" {
		cfg.DatabasePath = flagDBPath
	} else if env := os.Getenv("HASHALL_DB"); env != "" {
		cfg.DatabasePath = env
	}

	logging.Init(cfg)
	return cfg, nil
}

// openCatalog loads config and opens the catalog store in one step, the
// shared entry point for every subcommand that touches the database.
func openCatalog() (*catalogdb.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return catalogdb.Open(cfg.DatabasePath)
}

// exitCodeFor maps herrors.Kind to the process exit codes from spec.md §6:
// 0 success, 1 general failure, 2 invalid argument, 3 catalog store
// failure, 4 permission denied, 5 plan execution failure.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	switch herrors.Of(err) {
	case herrors.InvalidArgument:
		return 2
	case herrors.StoreBusy, herrors.StoreCorrupt:
		return 3
	case herrors.PermissionDenied:
		return 4
	case herrors.CrossFilesystem, herrors.VerificationFailed, herrors.RollbackLeftBackup, herrors.PlanTerminal:
		return 5
	default:
		return 1
	}
}

func printTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string) {
		for i, cell := range cells {
			fmt.Printf("%-*s  ", widths[i], cell)
		}
		fmt.Println()
	}
	printRow(headers)
	for _, row := range rows {
		printRow(row)
	}
}
