// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dbinterface provides database interfaces to avoid import cycles.
// This package has no dependencies and can be imported by both database
// implementations and models/stores.
package dbinterface

import (
	"context"
	"database/sql"
	"strings"
)

// Querier is the centralized interface for database operations.
// It is implemented by *sql.DB, *sql.Tx, and *catalogdb.DB.
// This allows stores and repositories to accept any of these types
// and enables transaction support without code duplication.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TxBeginner is an interface for types that can begin transactions.
// It is implemented by *sql.DB; *catalogdb.DB's BeginTx has a different
// signature and does not satisfy it.
type TxBeginner interface {
	Querier
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// BuildQueryWithPlaceholders expands a "%s" placeholder in template into
// rows groups of argsPerRow "(?, ?, ...)" tuples separated by commas. Used
// for batched multi-row INSERTs where the row count is only known at call time.
func BuildQueryWithPlaceholders(template string, argsPerRow, rows int) string {
	if rows <= 0 {
		return strings.Replace(template, "%s", "", 1)
	}

	group := "(" + strings.TrimSuffix(strings.Repeat("?, ", argsPerRow), ", ") + ")"
	groups := make([]string, rows)
	for i := range groups {
		groups[i] = group
	}

	return strings.Replace(template, "%s", strings.Join(groups, ", "), 1)
}
