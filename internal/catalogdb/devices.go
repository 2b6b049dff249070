// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalogdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hashall/hashall/internal/herrors"
)

// Device is the persisted identity of a filesystem, per spec.md §3.
type Device struct {
	DeviceID             int64
	FSUUID               string
	MountPoint           string
	PreferredMountPoint  string
	FSType               string
	Alias                string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// DeviceByUUID looks up a device by its stable fs_uuid. Returns
// herrors.NotFound if no row exists.
func (db *DB) DeviceByUUID(ctx context.Context, fsUUID string) (*Device, error) {
	row := db.QueryRowContext(ctx, `
		SELECT device_id, fs_uuid, mount_point, preferred_mount_point, fs_type,
		       COALESCE(alias, ''), created_at, updated_at
		FROM devices WHERE fs_uuid = ?`, fsUUID)
	return scanDevice(row)
}

// DeviceByID looks up a device by its current kernel device number.
func (db *DB) DeviceByID(ctx context.Context, deviceID int64) (*Device, error) {
	row := db.QueryRowContext(ctx, `
		SELECT device_id, fs_uuid, mount_point, preferred_mount_point, fs_type,
		       COALESCE(alias, ''), created_at, updated_at
		FROM devices WHERE device_id = ?`, deviceID)
	return scanDevice(row)
}

// DeviceByMountPoint looks up a device by its currently recorded mount
// point. Returns herrors.NotFound if no row exists.
func (db *DB) DeviceByMountPoint(ctx context.Context, mountPoint string) (*Device, error) {
	row := db.QueryRowContext(ctx, `
		SELECT device_id, fs_uuid, mount_point, preferred_mount_point, fs_type,
		       COALESCE(alias, ''), created_at, updated_at
		FROM devices WHERE mount_point = ?`, mountPoint)
	return scanDevice(row)
}

// DeviceByAlias resolves an operator-assigned alias to a device.
func (db *DB) DeviceByAlias(ctx context.Context, alias string) (*Device, error) {
	row := db.QueryRowContext(ctx, `
		SELECT device_id, fs_uuid, mount_point, preferred_mount_point, fs_type,
		       COALESCE(alias, ''), created_at, updated_at
		FROM devices WHERE alias = ?`, alias)
	return scanDevice(row)
}

func scanDevice(row *sql.Row) (*Device, error) {
	var d Device
	var created, updated int64
	err := row.Scan(&d.DeviceID, &d.FSUUID, &d.MountPoint, &d.PreferredMountPoint,
		&d.FSType, &d.Alias, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, herrors.New(herrors.NotFound, "device not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan device row: %w", err)
	}
	d.CreatedAt = time.Unix(created, 0).UTC()
	d.UpdatedAt = time.Unix(updated, 0).UTC()
	return &d, nil
}

// ListDevices returns every registered device, ordered by device_id.
func (db *DB) ListDevices(ctx context.Context) ([]*Device, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT device_id, fs_uuid, mount_point, preferred_mount_point, fs_type,
		       COALESCE(alias, ''), created_at, updated_at
		FROM devices ORDER BY device_id`)
	if err != nil {
		return nil, translateBusy(err)
	}
	defer rows.Close()

	var out []*Device
	for rows.Next() {
		var d Device
		var created, updated int64
		if err := rows.Scan(&d.DeviceID, &d.FSUUID, &d.MountPoint, &d.PreferredMountPoint,
			&d.FSType, &d.Alias, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan device row: %w", err)
		}
		d.CreatedAt = time.Unix(created, 0).UTC()
		d.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, &d)
	}
	return out, rows.Err()
}

// InsertDevice persists a newly observed device.
func (db *DB) InsertDevice(ctx context.Context, d *Device) error {
	now := time.Now().Unix()
	_, err := db.ExecContext(ctx, `
		INSERT INTO devices (device_id, fs_uuid, mount_point, preferred_mount_point, fs_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.DeviceID, d.FSUUID, d.MountPoint, d.PreferredMountPoint, d.FSType, now, now)
	return err
}

// RefreshMountPoint updates mount_point and fs_type without touching
// preferred_mount_point, per spec.md §4.3 step 4.
func (db *DB) RefreshMountPoint(ctx context.Context, fsUUID, mountPoint, fsType string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE devices SET mount_point = ?, fs_type = ?, updated_at = ?
		WHERE fs_uuid = ?`, mountPoint, fsType, time.Now().Unix(), fsUUID)
	return err
}

// SetAlias assigns an operator-friendly alias to a device.
func (db *DB) SetAlias(ctx context.Context, deviceID int64, alias string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE devices SET alias = ?, updated_at = ? WHERE device_id = ?`,
		alias, time.Now().Unix(), deviceID)
	return err
}

// RenameDeviceID performs the full device-id-drift transaction from
// spec.md §4.3 step 3: rename the per-device file table, update the device
// row's device_id, all inside one transaction so a crash mid-rename never
// leaves the catalog pointing at a table that no longer matches the row.
func (db *DB) RenameDeviceID(ctx context.Context, fsUUID string, oldID, newID int64) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	// Swapping devices.device_id (the FK parent key) while scan_roots/plans
	// still reference the old value would otherwise trip SQLite's immediate
	// foreign-key check; defer it to commit time for this transaction only.
	if _, err := tx.ExecContext(ctx, "PRAGMA defer_foreign_keys = ON"); err != nil {
		return fmt.Errorf("defer foreign keys: %w", err)
	}

	oldTable := filesTableName(oldID)
	newTable := filesTableName(newID)

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, oldTable, newTable)); err != nil {
		return fmt.Errorf("rename file table %s -> %s: %w", oldTable, newTable, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE devices SET device_id = ?, updated_at = ? WHERE fs_uuid = ?`,
		newID, time.Now().Unix(), fsUUID); err != nil {
		return fmt.Errorf("update device_id for %s: %w", fsUUID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE scan_roots SET device_id = ? WHERE device_id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("rehome scan roots: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE plans SET device_id = ? WHERE device_id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("rehome plans: %w", err)
	}

	return tx.Commit()
}
