// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package catalogdb provides the single persistent SQLite-backed store for
// the file catalog: devices, per-device file tables, scan roots, link plans
// and link actions.
//
// WRITER MODEL:
//
// Single-statement writes issued through ExecContext are handed to one
// writer goroutine, which executes them one at a time using statements
// prepared on the connection pool. Multi-statement transactions (BeginTx)
// run on one dedicated write connection. Readers use the regular connection
// pool and are never blocked by writers, since the catalog runs in WAL
// journal mode. SQLite admits only one writer at a time for the whole
// catalog file, which gives the store the "single writer per device table,
// unblocked readers" guarantee spec.md §4.2 asks for without a per-device
// lock.
//
// BUSY TIMEOUT:
//
// PRAGMA busy_timeout absorbs transient contention (a dashboard reading
// while a scan is flushing a batch); callers see a StoreBusy error only if
// SQLite still can't acquire the lock after the timeout elapses.
package catalogdb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hashall/hashall/internal/herrors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	defaultBusyTimeout       = 5 * time.Second
	defaultBusyTimeoutMillis = int(defaultBusyTimeout / time.Millisecond)
	connectionSetupTimeout   = 5 * time.Second
	writeChannelBuffer       = 256
	stmtCacheTTL             = 5 * time.Minute
)

type writeReq struct {
	ctx   context.Context
	query string
	args  []any
	resCh chan writeRes
}

type writeRes struct {
	result sql.Result
	err    error
}

// DB is the catalog's single persistent handle. Opened once on process
// entry, closed once on exit with all writes flushed.
type DB struct {
	conn      *sql.DB
	writeConn *sql.Conn
	writeCh   chan writeReq

	stmts   map[string]*stmtEntry
	stmtsMu sync.Mutex

	stop      chan struct{}
	closeOnce sync.Once
	writerWG  sync.WaitGroup
	closing   atomic.Bool
	closeErr  error
}

type stmtEntry struct {
	stmt    *sql.Stmt
	expires time.Time
}

// Tx wraps sql.Tx so callers get the same ExecContext/QueryContext surface
// as DB for code that needs multi-statement atomicity (plan + action writes).
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

var driverInit sync.Once

type pragmaExecFn func(ctx context.Context, stmt string) error

func registerConnectionHook() {
	driverInit.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
			defer cancel()

			return applyConnectionPragmas(ctx, func(ctx context.Context, stmt string) error {
				_, err := conn.ExecContext(ctx, stmt, nil)
				if err != nil {
					return fmt.Errorf("connection hook exec %q: %w", stmt, err)
				}
				return nil
			})
		})
	})
}

func applyConnectionPragmas(ctx context.Context, exec pragmaExecFn) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", defaultBusyTimeoutMillis),
		"PRAGMA analysis_limit = 400",
	}

	for _, pragma := range pragmas {
		if err := exec(ctx, pragma); err != nil {
			return fmt.Errorf("apply connection pragma %q: %w", pragma, err)
		}
	}

	return nil
}

// Open opens (creating if necessary) the catalog file at databasePath,
// applies pending migrations, and starts the write goroutine.
func Open(databasePath string) (*DB, error) {
	log.Info().Str("path", databasePath).Msg("catalogdb: opening catalog")

	if dir := filepath.Dir(databasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create catalog directory %s: %w", dir, err)
		}
	}

	registerConnectionHook()

	conn, err := sql.Open("sqlite", databasePath)
	if err != nil {
		return nil, fmt.Errorf("open catalog at %s: %w", databasePath, err)
	}

	// Single connection during migrations to avoid stale-schema races.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
	defer cancel()
	if err := applyConnectionPragmas(ctx, func(ctx context.Context, stmt string) error {
		_, execErr := conn.ExecContext(ctx, stmt)
		return execErr
	}); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{
		conn:    conn,
		writeCh: make(chan writeReq, writeChannelBuffer),
		stmts:   make(map[string]*stmtEntry),
		stop:    make(chan struct{}),
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	conn.SetMaxOpenConns(0)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(0)

	ctx2, cancel2 := context.WithTimeout(context.Background(), connectionSetupTimeout)
	defer cancel2()
	writeConn, err := conn.Conn(ctx2)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("acquire write connection: %w", err)
	}
	db.writeConn = writeConn

	db.writerWG.Add(1)
	go db.writerLoop()

	db.writerWG.Add(1)
	go db.stmtCacheJanitor()

	return db, nil
}

// Conn exposes the underlying reader pool for components that need raw
// access (e.g. ranged iteration queries the higher-level stores don't wrap).
func (db *DB) Conn() *sql.DB { return db.conn }

func (db *DB) getStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	db.stmtsMu.Lock()
	if entry, ok := db.stmts[query]; ok {
		entry.expires = time.Now().Add(stmtCacheTTL)
		db.stmtsMu.Unlock()
		return entry.stmt, nil
	}
	db.stmtsMu.Unlock()

	stmt, err := db.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}

	db.stmtsMu.Lock()
	db.stmts[query] = &stmtEntry{stmt: stmt, expires: time.Now().Add(stmtCacheTTL)}
	db.stmtsMu.Unlock()

	return stmt, nil
}

// stmtCacheJanitor evicts prepared statements unused for longer than
// stmtCacheTTL, bounding memory for catalogs touched by many ad-hoc queries
// (ranged prefix scans use a fresh query per device table name).
func (db *DB) stmtCacheJanitor() {
	defer db.writerWG.Done()

	ticker := time.NewTicker(stmtCacheTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			db.stmtsMu.Lock()
			for q, entry := range db.stmts {
				if now.After(entry.expires) {
					entry.stmt.Close()
					delete(db.stmts, q)
				}
			}
			db.stmtsMu.Unlock()
		case <-db.stop:
			return
		}
	}
}

func isWriteQuery(query string) bool {
	q := strings.TrimLeftFunc(query, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' })
	if q == "" {
		return false
	}
	upper := strings.ToUpper(q)
	return strings.HasPrefix(upper, "INSERT") ||
		strings.HasPrefix(upper, "UPDATE") ||
		strings.HasPrefix(upper, "REPLACE") ||
		strings.HasPrefix(upper, "DELETE") ||
		strings.HasPrefix(upper, "CREATE") ||
		strings.HasPrefix(upper, "DROP") ||
		strings.HasPrefix(upper, "ALTER")
}

// ExecContext routes write queries through the single writer goroutine;
// reads use the prepared-statement cache directly against the pool.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if !isWriteQuery(query) {
		stmt, err := db.getStmt(ctx, query)
		if err != nil {
			return db.conn.ExecContext(ctx, query, args...)
		}
		return stmt.ExecContext(ctx, args...)
	}

	if db.closing.Load() {
		return nil, herrors.New(herrors.StoreCorrupt, "catalog store is closing")
	}

	resCh := make(chan writeRes, 1)
	req := writeReq{ctx: ctx, query: query, args: args, resCh: resCh}

	select {
	case db.writeCh <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-db.stop:
		return nil, herrors.New(herrors.StoreCorrupt, "catalog store is closing")
	}

	res := <-resCh
	return res.result, translateBusy(res.err)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	stmt, err := db.getStmt(ctx, query)
	if err != nil {
		return db.conn.QueryContext(ctx, query, args...)
	}
	return stmt.QueryContext(ctx, args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	stmt, err := db.getStmt(ctx, query)
	if err != nil {
		return db.conn.QueryRowContext(ctx, query, args...)
	}
	return stmt.QueryRowContext(ctx, args...)
}

// BeginTx begins a transaction on the dedicated write connection. All
// multi-statement catalog writes (batched file-row flushes, plan+action
// persistence, device table renames) go through this so they commit or
// roll back as one unit.
func (db *DB) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := db.writeConn.BeginTx(ctx, nil)
	if err != nil {
		return nil, translateBusy(err)
	}
	return &Tx{tx: tx}, nil
}

// translateBusy maps SQLite's busy/locked errors onto herrors.StoreBusy so
// callers can retry without string-matching driver errors.
func translateBusy(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *sqlite.Error
	if ok := asSQLiteError(err, &sqliteErr); ok {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return herrors.Wrap(herrors.StoreBusy, "catalog store busy", err)
		case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
			return herrors.Wrap(herrors.StoreCorrupt, "catalog store corrupt", err)
		}
	}
	return err
}

func asSQLiteError(err error, target **sqlite.Error) bool {
	for err != nil {
		if se, ok := err.(*sqlite.Error); ok { //nolint:errorlint // sqlite.Error does not implement Unwrap in this driver version
			*target = se
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func (db *DB) writerLoop() {
	defer db.writerWG.Done()

	draining := false
	for {
		if draining {
			select {
			case req, ok := <-db.writeCh:
				if !ok {
					return
				}
				db.processWrite(req)
			default:
				return
			}
			continue
		}

		select {
		case req, ok := <-db.writeCh:
			if !ok {
				return
			}
			db.processWrite(req)
		case <-db.stop:
			draining = true
		}
	}
}

func (db *DB) processWrite(req writeReq) {
	stmt, err := db.getStmt(req.ctx, req.query)
	if err != nil {
		res, execErr := db.writeConn.ExecContext(req.ctx, req.query, req.args...)
		req.resCh <- writeRes{result: res, err: execErr}
		return
	}

	res, execErr := stmt.ExecContext(req.ctx, req.args...)
	req.resCh <- writeRes{result: res, err: execErr}
}

func (db *DB) migrate() error {
	ctx := context.Background()

	if _, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".sql" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	pending, err := db.findPendingMigrations(ctx, files)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		log.Debug().Msg("catalogdb: no pending migrations")
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	for _, filename := range pending {
		contents, err := migrationsFS.ReadFile(filepath.Join("migrations", filename))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", filename, err)
		}
		if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", filename, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO migrations (filename) VALUES (?)", filename); err != nil {
			return fmt.Errorf("record migration %s: %w", filename, err)
		}
		log.Info().Str("migration", filename).Msg("catalogdb: applied migration")
	}

	return tx.Commit()
}

func (db *DB) findPendingMigrations(ctx context.Context, allFiles []string) ([]string, error) {
	var pending []string
	for _, filename := range allFiles {
		var count int
		if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations WHERE filename = ?", filename).Scan(&count); err != nil {
			return nil, fmt.Errorf("check migration status for %s: %w", filename, err)
		}
		if count == 0 {
			pending = append(pending, filename)
		}
	}
	return pending, nil
}

// AppliedMigrations returns every migration filename that has been applied
// to this catalog, oldest first.
func (db *DB) AppliedMigrations(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT filename FROM migrations ORDER BY id`)
	if err != nil {
		return nil, translateBusy(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var filename string
		if err := rows.Scan(&filename); err != nil {
			return nil, err
		}
		out = append(out, filename)
	}
	return out, rows.Err()
}

// Close flushes and closes the catalog. Safe to call multiple times.
func (db *DB) Close() error {
	db.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
		defer cancel()
		if _, err := db.conn.ExecContext(ctx, "PRAGMA optimize"); err != nil {
			log.Warn().Err(err).Msg("catalogdb: PRAGMA optimize failed during close")
		}

		db.closing.Store(true)
		close(db.stop)
		db.writerWG.Wait()

		db.stmtsMu.Lock()
		for _, entry := range db.stmts {
			entry.stmt.Close()
		}
		db.stmtsMu.Unlock()

		if db.writeConn != nil {
			if err := db.writeConn.Close(); err != nil {
				log.Warn().Err(err).Msg("catalogdb: failed to close write connection")
			}
		}

		db.closeErr = db.conn.Close()
	})

	return db.closeErr
}
