// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalogdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashall/hashall/internal/herrors"
)

func TestInsertAndLookupDevice(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	d := &Device{
		DeviceID:            42,
		FSUUID:              "uuid-a",
		MountPoint:          "/mnt/pool",
		PreferredMountPoint: "/mnt/pool",
		FSType:              "zfs",
	}
	require.NoError(t, db.InsertDevice(ctx, d))

	byUUID, err := db.DeviceByUUID(ctx, "uuid-a")
	require.NoError(t, err)
	assert.Equal(t, int64(42), byUUID.DeviceID)

	byID, err := db.DeviceByID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "uuid-a", byID.FSUUID)

	_, err = db.DeviceByUUID(ctx, "missing")
	assert.True(t, herrors.Is(err, herrors.NotFound))
}

func TestRefreshMountPointPreservesPreferred(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertDevice(ctx, &Device{
		DeviceID: 1, FSUUID: "u1", MountPoint: "/mnt/a", PreferredMountPoint: "/data", FSType: "ext4",
	}))

	require.NoError(t, db.RefreshMountPoint(ctx, "u1", "/mnt/a-remounted", "ext4"))

	d, err := db.DeviceByUUID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "/mnt/a-remounted", d.MountPoint)
	assert.Equal(t, "/data", d.PreferredMountPoint, "preferred_mount_point must never be overwritten by a refresh")
}

func TestRenameDeviceIDMovesFileTableAndRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertDevice(ctx, &Device{
		DeviceID: 10, FSUUID: "drift", MountPoint: "/mnt/x", PreferredMountPoint: "/mnt/x", FSType: "zfs",
	}))
	require.NoError(t, db.EnsureFilesTable(ctx, 10))
	require.NoError(t, db.UpsertBatch(ctx, 10, []FileRow{
		{Path: "/mnt/x/a", Size: 1, MTime: 1, Inode: 1, QuickHash: "aa"},
	}))
	require.NoError(t, db.RecordScanRoot(ctx, 10, "/mnt/x"))

	require.NoError(t, db.RenameDeviceID(ctx, "drift", 10, 20))

	d, err := db.DeviceByUUID(ctx, "drift")
	require.NoError(t, err)
	assert.Equal(t, int64(20), d.DeviceID)

	row, err := db.FileByPath(ctx, 20, "/mnt/x/a")
	require.NoError(t, err)
	assert.Equal(t, "aa", row.QuickHash)

	roots, err := db.ScanRoots(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"/mnt/x"}, roots)

	_, err = db.FileByPath(ctx, 10, "/mnt/x/a")
	assert.True(t, herrors.Is(err, herrors.NotFound), "old device_id's table should no longer exist")
}

func TestSetAlias(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertDevice(ctx, &Device{DeviceID: 5, FSUUID: "u5", MountPoint: "/m", PreferredMountPoint: "/m", FSType: "ext4"}))
	require.NoError(t, db.SetAlias(ctx, 5, "backup-pool"))

	d, err := db.DeviceByAlias(ctx, "backup-pool")
	require.NoError(t, err)
	assert.Equal(t, int64(5), d.DeviceID)
}
