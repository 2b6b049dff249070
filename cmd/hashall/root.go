// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hashall",
		Short:         "Catalog filesystem content and deduplicate same-device duplicates via hardlinks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Path to config.toml (default: ~/.hashall/config.toml)")
	cmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "Path to the catalog database file (overrides config)")

	cmd.AddCommand(
		newScanCommand(),
		newLinkCommand(),
		newDevicesCommand(),
		newStatsCommand(),
		newExportCommand(),
		newDBCommand(),
	)

	return cmd
}
