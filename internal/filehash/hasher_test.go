// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package filehash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestQuickHashSmallFileEqualsFullHash(t *testing.T) {
	content := bytes.Repeat([]byte("a"), 100)
	path := writeTempFile(t, content)

	quick, err := QuickHash(path, DefaultQuickHashSampleBytes)
	require.NoError(t, err)

	full, err := FullHash(path)
	require.NoError(t, err)

	assert.Equal(t, full, quick, "a file smaller than the sample size hashes identically both ways")
}

func TestQuickHashOnlyReadsSamplePrefix(t *testing.T) {
	prefix := bytes.Repeat([]byte("x"), 10)
	content := append(append([]byte{}, prefix...), bytes.Repeat([]byte("y"), 1000)...)
	pathA := writeTempFile(t, content)

	content2 := append(append([]byte{}, prefix...), bytes.Repeat([]byte("z"), 1000)...)
	pathB := writeTempFile(t, content2)

	quickA, err := QuickHash(pathA, 10)
	require.NoError(t, err)
	quickB, err := QuickHash(pathB, 10)
	require.NoError(t, err)

	assert.Equal(t, quickA, quickB, "identical 10-byte prefixes must quick-hash the same")

	fullA, err := FullHash(pathA)
	require.NoError(t, err)
	fullB, err := FullHash(pathB)
	require.NoError(t, err)
	assert.NotEqual(t, fullA, fullB, "full hash must distinguish the diverging tails")
}

func TestFullHashMatchesStdlibSHA256(t *testing.T) {
	content := bytes.Repeat([]byte("deadbeef"), 50000)
	path := writeTempFile(t, content)

	got, err := FullHash(path)
	require.NoError(t, err)

	sum := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestSampleHashFallsBackToFullForSmallFiles(t *testing.T) {
	content := bytes.Repeat([]byte("q"), 50)
	path := writeTempFile(t, content)

	sample, err := SampleHash(path, 20)
	require.NoError(t, err)
	full, err := FullHash(path)
	require.NoError(t, err)
	assert.Equal(t, full, sample)
}

func TestSampleHashDiffersWhenMiddleDiffers(t *testing.T) {
	sampleSize := int64(16)
	size := 10 * sampleSize

	a := bytes.Repeat([]byte{0}, int(size))
	b := append([]byte{}, a...)
	mid := size / 2
	b[mid] = 1 // flip a byte inside the middle sample window

	pathA := writeTempFile(t, a)
	pathB := writeTempFile(t, b)

	hashA, err := SampleHash(pathA, sampleSize)
	require.NoError(t, err)
	hashB, err := SampleHash(pathB, sampleSize)
	require.NoError(t, err)

	assert.NotEqual(t, hashA, hashB)
}
