// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package collision implements the quick-hash collision engine: grouping
// rows that share a cheap hash, promoting them to a full hash, and
// classifying the result as true duplicates or false collisions.
package collision

import (
	"context"

	"github.com/hashall/hashall/internal/catalogdb"
	"github.com/hashall/hashall/internal/filehash"
)

// Store is the subset of catalogdb.DB the collision engine depends on.
type Store interface {
	QuickHashCollisionGroups(ctx context.Context, deviceID int64) (map[string][]catalogdb.FileRow, error)
	UpdateSHA256(ctx context.Context, deviceID int64, path, sha256 string) error
}

// Group is a set of rows sharing one quick hash, per spec.md §4.5
// find_quick_hash_collisions.
type Group struct {
	QuickHash string
	Rows      []catalogdb.FileRow
}

// FindQuickHashCollisions returns every group of two or more active rows
// that share a quick_hash.
func FindQuickHashCollisions(ctx context.Context, store Store, deviceID int64) ([]Group, error) {
	raw, err := store.QuickHashCollisionGroups(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	groups := make([]Group, 0, len(raw))
	for hash, rows := range raw {
		groups = append(groups, Group{QuickHash: hash, Rows: rows})
	}
	return groups, nil
}

// PromoteGroup computes and persists the full hash for every row in group
// that doesn't already have one. Idempotent: rows that already carry a
// sha256 are skipped, so re-running promotion does no duplicate hash work.
func PromoteGroup(ctx context.Context, store Store, deviceID int64, group Group) ([]catalogdb.FileRow, error) {
	promoted := make([]catalogdb.FileRow, len(group.Rows))
	for i, row := range group.Rows {
		if row.SHA256 != "" {
			promoted[i] = row
			continue
		}
		full, err := filehash.FullHash(row.Path)
		if err != nil {
			return nil, err
		}
		if err := store.UpdateSHA256(ctx, deviceID, row.Path, full); err != nil {
			return nil, err
		}
		row.SHA256 = full
		promoted[i] = row
	}
	return promoted, nil
}

// Partition is the outcome of splitting a promoted group by distinct
// sha256: two or more distinct inodes sharing a hash means a true
// duplicate; otherwise the quick-hash match was a false collision.
type Partition struct {
	SHA256       string
	Rows         []catalogdb.FileRow
	DistinctInodes int
	TrueDuplicate  bool
}

// Classify partitions a promoted group's rows by their full hash and
// reports which partitions are true duplicates (spec.md §4.5 step 3).
func Classify(rows []catalogdb.FileRow) []Partition {
	bySHA := make(map[string][]catalogdb.FileRow)
	for _, r := range rows {
		bySHA[r.SHA256] = append(bySHA[r.SHA256], r)
	}

	partitions := make([]Partition, 0, len(bySHA))
	for sha, group := range bySHA {
		inodes := make(map[uint64]struct{})
		for _, r := range group {
			inodes[r.Inode] = struct{}{}
		}
		partitions = append(partitions, Partition{
			SHA256:         sha,
			Rows:           group,
			DistinctInodes: len(inodes),
			TrueDuplicate:  len(inodes) >= 2,
		})
	}
	return partitions
}
