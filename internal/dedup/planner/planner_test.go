// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package planner

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
	require.NoError(t, db.InsertDevice(context.Background(), &catalogdb.Device{
		DeviceID: 1, FSUUID: "test-uuid", MountPoint: "/", PreferredMountPoint: "/", FSType: "test",
	}))
	return db
}

func TestCreatePlanPicksLowestInodeAsCanonical(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	const deviceID int64 = 1
	require.NoError(t, db.EnsureFilesTable(ctx, deviceID))

	require.NoError(t, db.UpsertBatch(ctx, deviceID, []catalogdb.FileRow{
		{Path: "/m/z/high-inode", Size: 100, Inode: 5, QuickHash: "q", SHA256: "dup"},
		{Path: "/m/a/low-inode", Size: 100, Inode: 2, QuickHash: "q", SHA256: "dup"},
	}))

	planID, err := CreatePlan(ctx, db, "test", deviceID, 0)
	require.NoError(t, err)

	actions, err := db.Actions(ctx, planID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "/m/a/low-inode", actions[0].SourcePath)
	assert.Equal(t, "/m/z/high-inode", actions[0].TargetPath)
	assert.Equal(t, catalogdb.ActionHardlink, actions[0].ActionType)
	assert.Equal(t, int64(100), actions[0].BytesSaveable)
}

func TestCreatePlanEmitsNoopForAlreadyLinkedPath(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	const deviceID int64 = 1
	require.NoError(t, db.EnsureFilesTable(ctx, deviceID))

	require.NoError(t, db.UpsertBatch(ctx, deviceID, []catalogdb.FileRow{
		{Path: "/m/canonical", Size: 100, Inode: 1, QuickHash: "q", SHA256: "dup"},
		{Path: "/m/already-linked", Size: 100, Inode: 1, QuickHash: "q", SHA256: "dup"},
		{Path: "/m/other-copy", Size: 100, Inode: 2, QuickHash: "q", SHA256: "dup"},
	}))

	planID, err := CreatePlan(ctx, db, "test", deviceID, 0)
	require.NoError(t, err)

	actions, err := db.Actions(ctx, planID)
	require.NoError(t, err)
	require.Len(t, actions, 2)

	var sawNoop, sawHardlink bool
	for _, a := range actions {
		if a.ActionType == catalogdb.ActionNoop {
			sawNoop = true
			assert.Equal(t, "/m/canonical", a.SourcePath)
			assert.Equal(t, "/m/already-linked", a.TargetPath)
		}
		if a.ActionType == catalogdb.ActionHardlink {
			sawHardlink = true
			assert.Equal(t, "/m/other-copy", a.TargetPath)
		}
	}
	assert.True(t, sawNoop)
	assert.True(t, sawHardlink)
}

func TestCreatePlanIsDeterministic(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	const deviceID int64 = 1
	require.NoError(t, db.EnsureFilesTable(ctx, deviceID))

	require.NoError(t, db.UpsertBatch(ctx, deviceID, []catalogdb.FileRow{
		{Path: "/m/a", Size: 100, Inode: 1, QuickHash: "q1", SHA256: "sha1"},
		{Path: "/m/b", Size: 100, Inode: 2, QuickHash: "q1", SHA256: "sha1"},
		{Path: "/m/c", Size: 200, Inode: 3, QuickHash: "q2", SHA256: "sha2"},
		{Path: "/m/d", Size: 200, Inode: 4, QuickHash: "q2", SHA256: "sha2"},
	}))

	plan1, err := CreatePlan(ctx, db, "first", deviceID, 0)
	require.NoError(t, err)
	plan2, err := CreatePlan(ctx, db, "second", deviceID, 0)
	require.NoError(t, err)

	actions1, err := db.Actions(ctx, plan1)
	require.NoError(t, err)
	actions2, err := db.Actions(ctx, plan2)
	require.NoError(t, err)

	require.Len(t, actions1, len(actions2))
	for i := range actions1 {
		assert.Equal(t, actions1[i].SourcePath, actions2[i].SourcePath)
		assert.Equal(t, actions1[i].TargetPath, actions2[i].TargetPath)
		assert.Equal(t, actions1[i].ActionType, actions2[i].ActionType)
	}
}
