// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package filehash computes the quick and full content hashes the catalog
// uses to find hardlink candidates.
package filehash

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
)

// DefaultQuickHashSampleBytes is how much of a file's head is read for the
// cheap first-pass hash before a full hash is considered.
const DefaultQuickHashSampleBytes = 1 << 20 // 1 MiB

const streamBufferSize = 1 << 20 // 1 MiB

// QuickHash hashes the first sampleBytes of the file at path. Files smaller
// than sampleBytes are hashed in full, so the quick hash of a small file
// equals its full hash and no promotion is ever needed for it.
func QuickHash(path string, sampleBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyN(h, f, sampleBytes); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FullHash streams the entire file through SHA-256 with a fixed-size buffer.
func FullHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, streamBufferSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SampleHash hashes the first, middle, and last sampleBytes chunks of the
// file, for the fast-but-probabilistic "--verify fast" mode. Files whose
// full size is at most 3*sampleBytes are hashed in full instead, since the
// sampled windows would otherwise overlap or cover the whole file anyway.
func SampleHash(path string, sampleBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	size := info.Size()

	if size <= 3*sampleBytes {
		h := sha256.New()
		buf := make([]byte, streamBufferSize)
		if _, err := io.CopyBuffer(h, f, buf); err != nil {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	h := sha256.New()
	offsets := []int64{0, size/2 - sampleBytes/2, size - sampleBytes}
	for _, off := range offsets {
		if _, err := f.Seek(off, io.SeekStart); err != nil {
			return "", err
		}
		if _, err := io.CopyN(h, f, sampleBytes); err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
