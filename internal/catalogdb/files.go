// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalogdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hashall/hashall/internal/dbinterface"
	"github.com/hashall/hashall/internal/herrors"
)

// deleteBatchSize bounds how many paths go into a single IN(...) clause,
// staying well under SQLite's default bound-parameter limit.
const deleteBatchSize = 500

// FileStatus is the closed enum for file row lifecycle state (spec.md §3).
type FileStatus string

const (
	FileStatusActive  FileStatus = "active"
	FileStatusDeleted FileStatus = "deleted"
)

// FileRow is one row of a per-device files_<device_id> table.
type FileRow struct {
	Path       string
	Size       int64
	MTime      float64 // unix seconds, fractional
	Inode      uint64
	QuickHash  string // empty means NULL
	SHA256     string // empty means NULL
	Status     FileStatus
}

func filesTableName(deviceID int64) string {
	return fmt.Sprintf("files_%d", deviceID)
}

// isMissingTable reports whether err is SQLite's "no such table" error,
// which surfaces for a device whose per-device table was never created or
// was renamed out from under a stale device_id.
func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// EnsureFilesTable creates the per-device file table if it doesn't exist.
// Modeled as "a typed view keyed by device" (spec.md §9): one schema, many
// physical tables named by device, rather than generated Go types per device.
func (db *DB) EnsureFilesTable(ctx context.Context, deviceID int64) error {
	table := filesTableName(deviceID)
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			path TEXT PRIMARY KEY,
			size INTEGER NOT NULL,
			mtime REAL NOT NULL,
			inode INTEGER NOT NULL,
			quick_hash TEXT,
			sha256 TEXT,
			status TEXT NOT NULL DEFAULT 'active'
		)`, table))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_inode ON %s(inode)`, table, table))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_quick ON %s(quick_hash)`, table, table))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_sha ON %s(sha256)`, table, table))
	return err
}

// FileByPath performs a point lookup by (device_id, path).
func (db *DB) FileByPath(ctx context.Context, deviceID int64, path string) (*FileRow, error) {
	table := filesTableName(deviceID)
	row := db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT path, size, mtime, inode, COALESCE(quick_hash, ''), COALESCE(sha256, ''), status
		FROM %s WHERE path = ?`, table), path)

	var f FileRow
	var status string
	err := row.Scan(&f.Path, &f.Size, &f.MTime, &f.Inode, &f.QuickHash, &f.SHA256, &status)
	if err == sql.ErrNoRows {
		return nil, herrors.New(herrors.NotFound, "file row not found")
	}
	if err != nil {
		if isMissingTable(err) {
			return nil, herrors.Wrap(herrors.NotFound, "device has no file table", err)
		}
		return nil, fmt.Errorf("scan file row: %w", err)
	}
	f.Status = FileStatus(status)
	return &f, nil
}

// ListActiveFiles returns every active row for a device, used by the JSON
// exporter. Rows are read in a single pass rather than paged and are all
// returned in one slice.
func (db *DB) ListActiveFiles(ctx context.Context, deviceID int64) ([]FileRow, error) {
	table := filesTableName(deviceID)
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT path, size, mtime, inode, COALESCE(quick_hash, ''), COALESCE(sha256, ''), status
		FROM %s WHERE status = 'active' ORDER BY path`, table))
	if err != nil {
		if isMissingTable(err) {
			return nil, nil
		}
		return nil, translateBusy(err)
	}
	defer rows.Close()

	var out []FileRow
	for rows.Next() {
		var f FileRow
		var status string
		if err := rows.Scan(&f.Path, &f.Size, &f.MTime, &f.Inode, &f.QuickHash, &f.SHA256, &status); err != nil {
			return nil, err
		}
		f.Status = FileStatus(status)
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpsertBatch writes a batch of file rows transactionally. The scanner
// flushes every ~500 rows (spec.md §4.2); each call here is one catalog
// transaction, so a crash between calls leaves previously flushed batches
// committed and the in-flight batch entirely absent, never half-written.
func (db *DB) UpsertBatch(ctx context.Context, deviceID int64, rows []FileRow) error {
	if len(rows) == 0 {
		return nil
	}

	table := filesTableName(deviceID)
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	stmt, err := tx.tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (path, size, mtime, inode, quick_hash, sha256, status)
		VALUES (?, ?, ?, ?, ?, ?, 'active')
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mtime = excluded.mtime,
			inode = excluded.inode,
			quick_hash = excluded.quick_hash,
			sha256 = excluded.sha256,
			status = 'active'`, table))
	if err != nil {
		return fmt.Errorf("prepare batch upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx, r.Path, r.Size, r.MTime, r.Inode,
			nullableString(r.QuickHash), nullableString(r.SHA256))
		if err != nil {
			return fmt.Errorf("upsert %s: %w", r.Path, err)
		}
	}

	return tx.Commit()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// MarkDeletedExcept marks every active row under pathPrefix as deleted
// except those whose path is in the observed set, per spec.md §4.4 step 4.
// Scoping to pathPrefix is what keeps a partial scan from orphaning rows
// outside the scanned subtree.
func (db *DB) MarkDeletedExcept(ctx context.Context, deviceID int64, pathPrefix string, observed map[string]struct{}) (int, error) {
	table := filesTableName(deviceID)
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT path FROM %s WHERE status = 'active' AND path LIKE ? ESCAPE '\'`, table),
		likePrefix(pathPrefix))
	if err != nil {
		return 0, translateBusy(err)
	}

	var toDelete []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := observed[p]; !ok {
			toDelete = append(toDelete, p)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(toDelete) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	for start := 0; start < len(toDelete); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(toDelete) {
			end = len(toDelete)
		}
		chunk := toDelete[start:end]

		query := dbinterface.BuildQueryWithPlaceholders(
			fmt.Sprintf(`UPDATE %s SET status = 'deleted' WHERE path IN (%%s)`, table),
			1, len(chunk))
		args := make([]any, len(chunk))
		for i, p := range chunk {
			args[i] = p
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("mark deleted batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(toDelete), nil
}

// likePrefix escapes a path for use as a LIKE prefix pattern.
func likePrefix(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}

// QuickHashCollisionGroups returns active rows grouped by quick_hash where
// two or more rows share the value (spec.md §4.5 find_quick_hash_collisions).
func (db *DB) QuickHashCollisionGroups(ctx context.Context, deviceID int64) (map[string][]FileRow, error) {
	table := filesTableName(deviceID)
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT path, size, mtime, inode, quick_hash, COALESCE(sha256, ''), status
		FROM %s
		WHERE status = 'active' AND quick_hash IS NOT NULL AND quick_hash IN (
			SELECT quick_hash FROM %s
			WHERE status = 'active' AND quick_hash IS NOT NULL
			GROUP BY quick_hash HAVING COUNT(*) > 1
		)`, table, table))
	if err != nil {
		return nil, translateBusy(err)
	}
	defer rows.Close()

	groups := make(map[string][]FileRow)
	for rows.Next() {
		var f FileRow
		var status string
		if err := rows.Scan(&f.Path, &f.Size, &f.MTime, &f.Inode, &f.QuickHash, &f.SHA256, &status); err != nil {
			return nil, err
		}
		f.Status = FileStatus(status)
		groups[f.QuickHash] = append(groups[f.QuickHash], f)
	}
	return groups, rows.Err()
}

// SHA256Groups returns active rows with a non-null sha256, grouped by
// sha256 (spec.md §4.6 duplicate analyzer input).
func (db *DB) SHA256Groups(ctx context.Context, deviceID int64) (map[string][]FileRow, error) {
	table := filesTableName(deviceID)
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT path, size, mtime, inode, COALESCE(quick_hash, ''), sha256, status
		FROM %s WHERE status = 'active' AND sha256 IS NOT NULL`, table))
	if err != nil {
		return nil, translateBusy(err)
	}
	defer rows.Close()

	groups := make(map[string][]FileRow)
	for rows.Next() {
		var f FileRow
		var status string
		if err := rows.Scan(&f.Path, &f.Size, &f.MTime, &f.Inode, &f.QuickHash, &f.SHA256, &status); err != nil {
			return nil, err
		}
		f.Status = FileStatus(status)
		groups[f.SHA256] = append(groups[f.SHA256], f)
	}
	return groups, rows.Err()
}

// HasAnySHA256 reports whether the device's table has at least one row with
// a non-null sha256. Used to guard planning against stale SHA-1-only
// catalogs per spec.md §9's open question.
func (db *DB) HasAnySHA256(ctx context.Context, deviceID int64) (bool, error) {
	table := filesTableName(deviceID)
	var count int
	err := db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM %s WHERE sha256 IS NOT NULL LIMIT 1`, table)).Scan(&count)
	if err != nil {
		return false, translateBusy(err)
	}
	return count > 0, nil
}

// UpdateSHA256 persists a promoted full hash for a single row (collision
// engine promotion, spec.md §4.5).
func (db *DB) UpdateSHA256(ctx context.Context, deviceID int64, path, sha256 string) error {
	table := filesTableName(deviceID)
	_, err := db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET sha256 = ? WHERE path = ?`, table), sha256, path)
	return err
}

// CountByStatus returns active/deleted row counts for stats reporting.
func (db *DB) CountByStatus(ctx context.Context, deviceID int64) (active, deleted int64, err error) {
	table := filesTableName(deviceID)
	row := db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT
			SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'deleted' THEN 1 ELSE 0 END)
		FROM %s`, table))
	var a, d sql.NullInt64
	if err := row.Scan(&a, &d); err != nil {
		return 0, 0, translateBusy(err)
	}
	return a.Int64, d.Int64, nil
}
