// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package jsonexport writes a device's catalog out as one JSON object with
// stable field names. The JSON output is written one file record at a time,
// but the device's active rows are first loaded from the catalog into a
// single slice, so the whole active file list is held in memory during an
// export.
package jsonexport

import (
	"context"
	"encoding/json"
	"io"

	"github.com/hashall/hashall/internal/catalogdb"
)

// Store is the subset of catalogdb.DB the exporter depends on.
type Store interface {
	DeviceByID(ctx context.Context, deviceID int64) (*catalogdb.Device, error)
	ListActiveFiles(ctx context.Context, deviceID int64) ([]catalogdb.FileRow, error)
}

// fileRecord is one exported file entry. QuickHash/SHA256 use pointers so
// an absent hash serializes as JSON null rather than an empty string.
type fileRecord struct {
	Path      string  `json:"path"`
	Size      int64   `json:"size"`
	MTime     float64 `json:"mtime"`
	Inode     uint64  `json:"inode"`
	QuickHash *string `json:"quick_hash"`
	SHA256    *string `json:"sha256"`
}

// Write writes one device's catalog to w as a single JSON object
// matching spec.md §6: {device_id, fs_uuid, root, files: [...]}.
func Write(ctx context.Context, store Store, deviceID int64, w io.Writer) error {
	device, err := store.DeviceByID(ctx, deviceID)
	if err != nil {
		return err
	}
	rows, err := store.ListActiveFiles(ctx, deviceID)
	if err != nil {
		return err
	}

	if _, err := io.WriteString(w, `{"device_id":`); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	if err := writeJSONValue(w, device.DeviceID); err != nil {
		return err
	}
	if _, err := io.WriteString(w, `,"fs_uuid":`); err != nil {
		return err
	}
	if err := writeJSONValue(w, device.FSUUID); err != nil {
		return err
	}
	if _, err := io.WriteString(w, `,"root":`); err != nil {
		return err
	}
	if err := writeJSONValue(w, device.MountPoint); err != nil {
		return err
	}
	if _, err := io.WriteString(w, `,"files":[`); err != nil {
		return err
	}

	for i, r := range rows {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		rec := fileRecord{
			Path:      r.Path,
			Size:      r.Size,
			MTime:     r.MTime,
			Inode:     r.Inode,
			QuickHash: nullableString(r.QuickHash),
			SHA256:    nullableString(r.SHA256),
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}

	_, err = io.WriteString(w, "]}\n")
	return err
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func writeJSONValue(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
