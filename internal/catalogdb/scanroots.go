// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalogdb

import (
	"context"
	"time"
)

// RecordScanRoot upserts a scan-root row, scoping deletion detection to the
// given subtree (spec.md §3 "Scan root").
func (db *DB) RecordScanRoot(ctx context.Context, deviceID int64, path string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO scan_roots (device_id, path, last_scanned_at)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id, path) DO UPDATE SET last_scanned_at = excluded.last_scanned_at`,
		deviceID, path, time.Now().Unix())
	return err
}

// ScanRoots lists every registered scan root for a device.
func (db *DB) ScanRoots(ctx context.Context, deviceID int64) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT path FROM scan_roots WHERE device_id = ? ORDER BY path`, deviceID)
	if err != nil {
		return nil, translateBusy(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
