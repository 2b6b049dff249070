// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

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
		DeviceID: testDeviceID, FSUUID: "test-uuid", MountPoint: "/", PreferredMountPoint: "/", FSType: "test",
	}))
	return db
}

const testDeviceID int64 = 1

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func TestScanAddsNewFiles(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureFilesTable(ctx, testDeviceID))

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), []byte("hello"))
	writeFile(t, filepath.Join(root, "sub", "b.txt"), []byte("world"))

	res, err := Scan(ctx, db, testDeviceID, root, Options{HashMode: HashModeFast, Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 0, res.Unchanged)
	assert.Equal(t, 0, res.Deleted)

	row, err := db.FileByPath(ctx, testDeviceID, filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.NotEmpty(t, row.QuickHash)
	assert.Empty(t, row.SHA256, "fast mode must not populate full hash")
}

func TestRescanWithNoChangesIsIdempotent(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureFilesTable(ctx, testDeviceID))

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), []byte("hello"))

	_, err := Scan(ctx, db, testDeviceID, root, Options{HashMode: HashModeFast, Workers: 2})
	require.NoError(t, err)

	res, err := Scan(ctx, db, testDeviceID, root, Options{HashMode: HashModeFast, Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, 0, res.Deleted)
}

func TestIncrementalRescanDetectsUpdateAndDelete(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureFilesTable(ctx, testDeviceID))

	root := t.TempDir()
	keepPath := filepath.Join(root, "keep.txt")
	updatePath := filepath.Join(root, "update.txt")
	deletePath := filepath.Join(root, "delete.txt")

	writeFile(t, keepPath, []byte("keep"))
	writeFile(t, updatePath, []byte("original"))
	writeFile(t, deletePath, []byte("gone-soon"))

	_, err := Scan(ctx, db, testDeviceID, root, Options{HashMode: HashModeFast, Workers: 2})
	require.NoError(t, err)

	require.NoError(t, os.Remove(deletePath))
	// Ensure the mtime actually advances on filesystems with coarse mtime resolution.
	require.NoError(t, os.WriteFile(updatePath, []byte("changed content"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(updatePath, future, future))

	res, err := Scan(ctx, db, testDeviceID, root, Options{HashMode: HashModeFast, Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, 1, res.Deleted)
}

func TestFullHashModePopulatesSHA256(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureFilesTable(ctx, testDeviceID))

	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	writeFile(t, path, []byte("hello"))

	_, err := Scan(ctx, db, testDeviceID, root, Options{HashMode: HashModeFull, Workers: 1})
	require.NoError(t, err)

	row, err := db.FileByPath(ctx, testDeviceID, path)
	require.NoError(t, err)
	assert.NotEmpty(t, row.SHA256)
}

func TestFullHashModeBackfillsSHA256OnUnchangedRescan(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureFilesTable(ctx, testDeviceID))

	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	writeFile(t, path, []byte("hello"))

	_, err := Scan(ctx, db, testDeviceID, root, Options{HashMode: HashModeFast, Workers: 1})
	require.NoError(t, err)

	row, err := db.FileByPath(ctx, testDeviceID, path)
	require.NoError(t, err)
	require.Empty(t, row.SHA256, "fast scan must leave SHA256 unset")

	res, err := Scan(ctx, db, testDeviceID, root, Options{HashMode: HashModeFull, Workers: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 1, res.Updated, "full mode must backfill an otherwise-unchanged row")
	assert.Equal(t, 0, res.Unchanged)

	row, err = db.FileByPath(ctx, testDeviceID, path)
	require.NoError(t, err)
	assert.NotEmpty(t, row.SHA256, "rescanning in full mode must populate the full hash")
}

func TestUpgradeHashModeBackfillsOnlyMissingSHA256(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureFilesTable(ctx, testDeviceID))

	root := t.TempDir()
	hashedPath := filepath.Join(root, "hashed.txt")
	unhashedPath := filepath.Join(root, "unhashed.txt")
	writeFile(t, hashedPath, []byte("already hashed"))
	writeFile(t, unhashedPath, []byte("not hashed yet"))

	_, err := Scan(ctx, db, testDeviceID, root, Options{HashMode: HashModeFull, Workers: 1})
	require.NoError(t, err)

	hashedBefore, err := db.FileByPath(ctx, testDeviceID, hashedPath)
	require.NoError(t, err)
	require.NotEmpty(t, hashedBefore.SHA256)

	// Simulate a row catalogued under fast mode by clearing its SHA256 directly.
	require.NoError(t, db.UpsertBatch(ctx, testDeviceID, []catalogdb.FileRow{
		{
			Path:      hashedBefore.Path,
			Size:      hashedBefore.Size,
			MTime:     hashedBefore.MTime,
			Inode:     hashedBefore.Inode,
			QuickHash: hashedBefore.QuickHash,
			SHA256:    "",
			Status:    catalogdb.FileStatusActive,
		},
	}))

	res, err := Scan(ctx, db, testDeviceID, root, Options{HashMode: HashModeUpgrade, Workers: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated, "upgrade mode must backfill the row with no SHA256")
	assert.Equal(t, 1, res.Unchanged, "upgrade mode must leave already-hashed rows untouched")

	hashedAfter, err := db.FileByPath(ctx, testDeviceID, hashedPath)
	require.NoError(t, err)
	assert.NotEmpty(t, hashedAfter.SHA256)
}
