// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package planner turns duplicate groups from the analyzer into an ordered,
// persisted list of hardlink actions.
package planner

import (
	"context"
	"sort"

	"github.com/hashall/hashall/internal/catalogdb"
	"github.com/hashall/hashall/internal/dedup/analyzer"
)

// Store is the subset of catalogdb.DB the planner depends on.
type Store interface {
	analyzer.Store
	CreatePlan(ctx context.Context, name string, deviceID int64, actions []catalogdb.Action) (int64, error)
}

// CreatePlan implements spec.md §4.7: analyzes the device for duplicate
// groups, picks a deterministic canonical file per group, and emits one
// HARDLINK action per other distinct inode (or a NOOP when that target is
// already linked to the canonical file).
func CreatePlan(ctx context.Context, store Store, name string, deviceID int64, minSize int64) (int64, error) {
	groups, err := analyzer.Analyze(ctx, store, deviceID, minSize)
	if err != nil {
		return 0, err
	}

	// Sort groups by sha256 so the persisted action order is deterministic
	// across runs, matching create_plan's "same catalog state yields the
	// same action list" requirement.
	sort.Slice(groups, func(i, j int) bool { return groups[i].SHA256 < groups[j].SHA256 })

	var actions []catalogdb.Action
	for _, group := range groups {
		canonical := canonicalFile(group.Rows)

		byInode := make(map[uint64][]catalogdb.FileRow)
		for _, r := range group.Rows {
			byInode[r.Inode] = append(byInode[r.Inode], r)
		}

		inodes := make([]uint64, 0, len(byInode))
		for inode := range byInode {
			inodes = append(inodes, inode)
		}
		sort.Slice(inodes, func(i, j int) bool { return inodes[i] < inodes[j] })

		for _, inode := range inodes {
			if inode == canonical.Inode {
				// Other paths already hardlinked to the canonical file: report
				// them as NOOP rather than silently dropping them, so the plan
				// reflects the group is already fully optimal.
				for _, r := range byInode[inode] {
					if r.Path == canonical.Path {
						continue
					}
					actions = append(actions, catalogdb.Action{
						ActionType: catalogdb.ActionNoop,
						SHA256:     group.SHA256,
						SourcePath: canonical.Path,
						TargetPath: r.Path,
					})
				}
				continue
			}
			rep := representativeForInode(byInode[inode])
			actions = append(actions, catalogdb.Action{
				ActionType:    catalogdb.ActionHardlink,
				SHA256:        group.SHA256,
				SourcePath:    canonical.Path,
				TargetPath:    rep.Path,
				BytesSaveable: rep.Size,
			})
		}
	}

	return store.CreatePlan(ctx, name, deviceID, actions)
}

// canonicalFile picks the deterministic keeper for a duplicate group:
// lowest inode, then shortest path, then lexicographically smallest path.
func canonicalFile(rows []catalogdb.FileRow) catalogdb.FileRow {
	best := rows[0]
	for _, r := range rows[1:] {
		if isCanonicalPreferred(r, best) {
			best = r
		}
	}
	return best
}

func isCanonicalPreferred(a, b catalogdb.FileRow) bool {
	if a.Inode != b.Inode {
		return a.Inode < b.Inode
	}
	if len(a.Path) != len(b.Path) {
		return len(a.Path) < len(b.Path)
	}
	return a.Path < b.Path
}

// representativeForInode picks a stable representative among rows that
// share an inode (multiple paths already hardlinked to it), using the same
// shortest-then-lexicographic tie-break as canonicalFile.
func representativeForInode(rows []catalogdb.FileRow) catalogdb.FileRow {
	best := rows[0]
	for _, r := range rows[1:] {
		if len(r.Path) < len(best.Path) || (len(r.Path) == len(best.Path) && r.Path < best.Path) {
			best = r
		}
	}
	return best
}
