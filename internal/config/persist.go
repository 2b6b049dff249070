// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// UpdateLogSettings rewrites the on-disk config file's log settings in
// place, preserving the rest of the file (comments, ordering, other
// sections) exactly as a user left them.
func (c *Config) UpdateLogSettings(level, path string, maxSize, maxBackups int) error {
	raw, err := os.ReadFile(c.configPath)
	if err != nil {
		return fmt.Errorf("read config for update: %w", err)
	}

	updated := updateLogSettingsInTOML(string(raw), level, path, maxSize, maxBackups)

	if err := os.WriteFile(c.configPath, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("write updated config: %w", err)
	}

	c.LogLevel = level
	c.LogPath = path
	c.LogMaxSize = maxSize
	c.LogMaxBackups = maxBackups
	return nil
}

// updateLogSettingsInTOML sets logLevel/logPath/logMaxSize/logMaxBackups in
// content, editing an existing (possibly commented-out) key line in place.
// A key with no existing line, commented or not, is appended right before
// the first [section] header so generated files keep top-level keys above
// any table.
func updateLogSettingsInTOML(content, level, path string, maxSize, maxBackups int) string {
	content = setTOMLKey(content, "logLevel", quoteTOML(level))
	content = setTOMLKey(content, "logPath", quoteTOML(path))
	content = setTOMLKey(content, "logMaxSize", strconv.Itoa(maxSize))
	content = setTOMLKey(content, "logMaxBackups", strconv.Itoa(maxBackups))
	return content
}

func quoteTOML(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func setTOMLKey(content, key, value string) string {
	line := key + " = " + value
	pattern := regexp.MustCompile(`(?m)^#?\s*` + regexp.QuoteMeta(key) + `\s*=.*$`)

	if pattern.MatchString(content) {
		return pattern.ReplaceAllString(content, line)
	}

	lines := strings.Split(content, "\n")
	insertAt := len(lines)
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "[") {
			insertAt = i
			break
		}
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:insertAt]...)
	out = append(out, line)
	out = append(out, lines[insertAt:]...)
	return strings.Join(out, "\n")
}
