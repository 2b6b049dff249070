// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package analyzer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashall/hashall/internal/catalogdb"
)

func openTestStore(t *testing.T) *catalogdb.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	db, err := catalogdb.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAnalyzeReportsSavingsForMultiInodeGroup(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	const deviceID int64 = 1
	require.NoError(t, db.EnsureFilesTable(ctx, deviceID))

	require.NoError(t, db.UpsertBatch(ctx, deviceID, []catalogdb.FileRow{
		{Path: "/m/a", Size: 1000, Inode: 1, QuickHash: "q1", SHA256: "dup"},
		{Path: "/m/b", Size: 1000, Inode: 2, QuickHash: "q1", SHA256: "dup"},
		{Path: "/m/c", Size: 1000, Inode: 3, QuickHash: "q1", SHA256: "dup"},
		{Path: "/m/unique", Size: 500, Inode: 4, QuickHash: "q2", SHA256: "solo"},
	}))

	groups, err := Analyze(ctx, db, deviceID, 0)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 3, groups[0].DistinctInodes)
	assert.Equal(t, int64(2000), groups[0].PotentialSaving)
}

func TestAnalyzeExcludesAlreadyHardlinkedSingleInode(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	const deviceID int64 = 1
	require.NoError(t, db.EnsureFilesTable(ctx, deviceID))

	require.NoError(t, db.UpsertBatch(ctx, deviceID, []catalogdb.FileRow{
		{Path: "/m/a", Size: 1000, Inode: 1, QuickHash: "q1", SHA256: "dup"},
		{Path: "/m/b", Size: 1000, Inode: 1, QuickHash: "q1", SHA256: "dup"},
	}))

	groups, err := Analyze(ctx, db, deviceID, 0)
	require.NoError(t, err)
	assert.Empty(t, groups, "two paths to the same inode already contribute zero additional saving")
}

func TestAnalyzeRespectsMinSize(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	const deviceID int64 = 1
	require.NoError(t, db.EnsureFilesTable(ctx, deviceID))

	require.NoError(t, db.UpsertBatch(ctx, deviceID, []catalogdb.FileRow{
		{Path: "/m/a", Size: 10, Inode: 1, QuickHash: "q1", SHA256: "dup"},
		{Path: "/m/b", Size: 10, Inode: 2, QuickHash: "q1", SHA256: "dup"},
	}))

	groups, err := Analyze(ctx, db, deviceID, 100)
	require.NoError(t, err)
	assert.Empty(t, groups, "groups below min-size must be excluded")
}
