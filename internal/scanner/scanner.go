// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package scanner walks a filesystem root, reconciles it against the
// catalog, and drives the bounded hashing worker pool.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hashall/hashall/internal/catalogdb"
	"github.com/hashall/hashall/internal/filehash"
	"github.com/hashall/hashall/pkg/hardlink"
)

// HashMode selects how much hashing work a scan performs per file.
type HashMode string

const (
	// HashModeFast computes only the quick hash.
	HashModeFast HashMode = "fast"
	// HashModeFull computes both quick and full hashes for every file.
	HashModeFull HashMode = "full"
	// HashModeUpgrade computes the full hash only where it is currently null.
	HashModeUpgrade HashMode = "upgrade"
)

const defaultBatchSize = 500

// Store is the subset of catalogdb.DB the scanner depends on.
type Store interface {
	FileByPath(ctx context.Context, deviceID int64, path string) (*catalogdb.FileRow, error)
	UpsertBatch(ctx context.Context, deviceID int64, rows []catalogdb.FileRow) error
	MarkDeletedExcept(ctx context.Context, deviceID int64, pathPrefix string, observed map[string]struct{}) (int, error)
	RecordScanRoot(ctx context.Context, deviceID int64, path string) error
}

// Options configures a single scan invocation.
type Options struct {
	HashMode             HashMode
	Workers              int
	QuickHashSampleBytes int64
}

// Result summarizes what a scan did, for reporting (spec.md §8 scenario 2:
// "Second scan reports adds=1, updates=1, deletes=1, unchanged=998").
type Result struct {
	Added     int
	Updated   int
	Unchanged int
	Deleted   int
	Failed    int
}

// Scan implements spec.md §4.4: it walks root under deviceID, classifies
// each regular file as added/updated/unchanged against the catalog, hashes
// as required by opts.HashMode, and marks any previously catalogued file
// under root that was not observed this pass as deleted.
func Scan(ctx context.Context, store Store, deviceID int64, root string, opts Options) (*Result, error) {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QuickHashSampleBytes <= 0 {
		opts.QuickHashSampleBytes = filehash.DefaultQuickHashSampleBytes
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve scan root: %w", err)
	}
	root, err = filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("resolve scan root: %w", err)
	}

	if err := store.RecordScanRoot(ctx, deviceID, root); err != nil {
		return nil, err
	}

	type hashJob struct {
		path string
		fi   fs.FileInfo
	}

	jobs := make(chan hashJob)
	rowsCh := make(chan catalogdb.FileRow)

	result := &Result{}
	var resultMu sync.Mutex
	observed := make(map[string]struct{})
	var observedMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < opts.Workers; i++ {
		g.Go(func() error {
			for job := range jobs {
				row, classification, err := classifyAndHash(gctx, store, deviceID, job.path, job.fi, opts)
				if err != nil {
					if isRecoverable(err) {
						log.Warn().Err(err).Str("path", job.path).Msg("scanner: skipping file after recoverable error")
						resultMu.Lock()
						result.Failed++
						resultMu.Unlock()
						continue
					}
					return err
				}

				observedMu.Lock()
				observed[job.path] = struct{}{}
				observedMu.Unlock()

				resultMu.Lock()
				switch classification {
				case classAdded:
					result.Added++
				case classUpdated:
					result.Updated++
				case classUnchanged:
					result.Unchanged++
				}
				resultMu.Unlock()

				if classification == classUnchanged {
					continue
				}
				select {
				case rowsCh <- row:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	var batchErr error
	batchDone := make(chan struct{})
	go func() {
		defer close(batchDone)
		batch := make([]catalogdb.FileRow, 0, defaultBatchSize)
		flush := func() {
			if len(batch) == 0 {
				return
			}
			if err := store.UpsertBatch(ctx, deviceID, batch); err != nil {
				batchErr = err
			}
			batch = batch[:0]
		}
		for row := range rowsCh {
			batch = append(batch, row)
			if len(batch) >= defaultBatchSize {
				flush()
			}
		}
		flush()
	}()

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("scanner: walk error, skipping")
			return nil
		}
		if gctx.Err() != nil {
			return gctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		canonical, fi, err := resolveEntry(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("scanner: skipping unreadable entry")
			return nil
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		if !isPathInsideRoot(root, canonical) {
			// Bind-mount duplication: a symlink escaping the scanned subtree.
			return nil
		}

		select {
		case jobs <- hashJob{path: canonical, fi: fi}:
		case <-gctx.Done():
			return gctx.Err()
		}
		return nil
	})

	close(jobs)
	groupErr := g.Wait()
	close(rowsCh)
	<-batchDone

	if walkErr != nil {
		return nil, fmt.Errorf("walk %s: %w", root, walkErr)
	}
	if groupErr != nil {
		return nil, groupErr
	}
	if batchErr != nil {
		return nil, fmt.Errorf("commit scan batch: %w", batchErr)
	}

	// A trailing separator keeps the prefix match from reaching sibling
	// directories that merely share root's name as a prefix.
	deletePrefix := root
	if !strings.HasSuffix(deletePrefix, string(filepath.Separator)) {
		deletePrefix += string(filepath.Separator)
	}
	deleted, err := store.MarkDeletedExcept(ctx, deviceID, deletePrefix, observed)
	if err != nil {
		return nil, err
	}
	result.Deleted = deleted

	return result, nil
}

type classification int

const (
	classUnchanged classification = iota
	classAdded
	classUpdated
)

func classifyAndHash(ctx context.Context, store Store, deviceID int64, path string, fi os.FileInfo, opts Options) (catalogdb.FileRow, classification, error) {
	fid, _, err := hardlink.GetFileID(fi, path)
	if err != nil {
		return catalogdb.FileRow{}, 0, recoverableErr{err}
	}

	existing, err := store.FileByPath(ctx, deviceID, path)
	exists := err == nil

	mtime := float64(fi.ModTime().UnixNano()) / 1e9
	size := fi.Size()

	if exists && existing.QuickHash != "" && existing.Size == size && existing.MTime == mtime {
		row := *existing
		if (opts.HashMode == HashModeUpgrade || opts.HashMode == HashModeFull) && row.SHA256 == "" {
			full, err := filehash.FullHash(path)
			if err != nil {
				return catalogdb.FileRow{}, 0, recoverableErr{err}
			}
			row.SHA256 = full
			return row, classUpdated, nil
		}
		return row, classUnchanged, nil
	}

	quick, err := filehash.QuickHash(path, opts.QuickHashSampleBytes)
	if err != nil {
		return catalogdb.FileRow{}, 0, recoverableErr{err}
	}

	row := catalogdb.FileRow{
		Path:      path,
		Size:      size,
		MTime:     mtime,
		Inode:     fid.Ino,
		QuickHash: quick,
		Status:    catalogdb.FileStatusActive,
	}

	if opts.HashMode == HashModeFull {
		full, err := filehash.FullHash(path)
		if err != nil {
			return catalogdb.FileRow{}, 0, recoverableErr{err}
		}
		row.SHA256 = full
	}

	if exists {
		return row, classUpdated, nil
	}
	return row, classAdded, nil
}

func resolveEntry(path string) (string, os.FileInfo, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return "", nil, err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return "", nil, err
		}
		target, err := os.Stat(resolved)
		if err != nil {
			return "", nil, err
		}
		return resolved, target, nil
	}
	return path, fi, nil
}

func isPathInsideRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// recoverableErr marks an error the scanner should log and continue past,
// per spec.md §4.4's per-file failure semantics, rather than abort the scan.
type recoverableErr struct{ err error }

func (r recoverableErr) Error() string { return r.err.Error() }
func (r recoverableErr) Unwrap() error { return r.err }

func isRecoverable(err error) bool {
	_, ok := err.(recoverableErr)
	return ok
}
