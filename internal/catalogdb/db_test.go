// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalogdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenRunsMigrations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations").Scan(&count))
	require.GreaterOrEqual(t, count, 1)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	db1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	db2, err := Open(path)
	require.NoError(t, err)
	defer db2.Close()

	var count int
	require.NoError(t, db2.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM migrations").Scan(&count))
	require.Equal(t, 1, count, "re-opening must not re-apply the same migration")
}

func TestIsWriteQuery(t *testing.T) {
	cases := map[string]bool{
		"SELECT 1":                  false,
		"  select * from devices":   false,
		"INSERT INTO devices VALUES(1)": true,
		"update devices set x = 1":  true,
		"DELETE FROM devices":       true,
		"":                          false,
	}
	for q, want := range cases {
		require.Equal(t, want, isWriteQuery(q), "query: %q", q)
	}
}
