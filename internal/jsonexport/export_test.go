// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package jsonexport

import (
	"bytes"
	"context"
	"encoding/json"
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

func TestWriteProducesStableFieldsWithNullHashes(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	const deviceID int64 = 1
	require.NoError(t, db.EnsureFilesTable(ctx, deviceID))
	require.NoError(t, db.InsertDevice(ctx, &catalogdb.Device{
		DeviceID: deviceID, FSUUID: "uuid-1", MountPoint: "/mnt/data", FSType: "ext4",
	}))
	require.NoError(t, db.UpsertBatch(ctx, deviceID, []catalogdb.FileRow{
		{Path: "/mnt/data/a", Size: 10, Inode: 1},
		{Path: "/mnt/data/b", Size: 20, Inode: 2, QuickHash: "q", SHA256: "s"},
	}))

	var buf bytes.Buffer
	require.NoError(t, Write(ctx, db, deviceID, &buf))

	var out struct {
		DeviceID int64  `json:"device_id"`
		FSUUID   string `json:"fs_uuid"`
		Root     string `json:"root"`
		Files    []struct {
			Path      string  `json:"path"`
			QuickHash *string `json:"quick_hash"`
			SHA256    *string `json:"sha256"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))

	assert.Equal(t, deviceID, out.DeviceID)
	assert.Equal(t, "uuid-1", out.FSUUID)
	assert.Equal(t, "/mnt/data", out.Root)
	require.Len(t, out.Files, 2)
	assert.Nil(t, out.Files[0].QuickHash)
	assert.NotNil(t, out.Files[1].QuickHash)
	assert.Equal(t, "q", *out.Files[1].QuickHash)
}
