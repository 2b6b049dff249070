// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package analyzer groups catalogued rows by full content hash and reports
// potential hardlink savings within a device.
package analyzer

import (
	"context"

	"github.com/hashall/hashall/internal/catalogdb"
)

// Store is the subset of catalogdb.DB the analyzer depends on.
type Store interface {
	HasAnySHA256(ctx context.Context, deviceID int64) (bool, error)
	SHA256Groups(ctx context.Context, deviceID int64) (map[string][]catalogdb.FileRow, error)
}

// DuplicateGroup is a set of rows sharing one full content hash, with at
// least two distinct inodes among them.
type DuplicateGroup struct {
	SHA256        string
	Rows          []catalogdb.FileRow
	DistinctInodes int
	RepresentativeSize int64
	PotentialSaving    int64
}

// Analyze implements spec.md §4.6: groups active, fully-hashed rows by
// sha256, keeps groups with at least two distinct inodes and every file at
// least minSize bytes, and reports the bytes a hardlink pass could save.
func Analyze(ctx context.Context, store Store, deviceID int64, minSize int64) ([]DuplicateGroup, error) {
	hasHashes, err := store.HasAnySHA256(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !hasHashes {
		return nil, nil
	}

	raw, err := store.SHA256Groups(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	var groups []DuplicateGroup
	for sha, rows := range raw {
		inodes := make(map[uint64]struct{})
		belowMin := false
		for _, r := range rows {
			inodes[r.Inode] = struct{}{}
			if r.Size < minSize {
				belowMin = true
			}
		}
		if len(inodes) < 2 || belowMin {
			continue
		}

		size := rows[0].Size
		groups = append(groups, DuplicateGroup{
			SHA256:             sha,
			Rows:               rows,
			DistinctInodes:     len(inodes),
			RepresentativeSize: size,
			PotentialSaving:    size * int64(len(inodes)-1),
		})
	}
	return groups, nil
}
