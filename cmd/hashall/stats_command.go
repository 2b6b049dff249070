// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hashall/hashall/internal/dedup/analyzer"
)

func newStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <device-id>",
		Short: "Summarize catalog coverage and duplicate savings for a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, err := parseDeviceArg(args[0])
			if err != nil {
				return err
			}

			db, err := openCatalog()
			if err != nil {
				return err
			}
			defer db.Close()

			active, deleted, err := db.CountByStatus(cmd.Context(), deviceID)
			if err != nil {
				return err
			}

			groups, err := analyzer.Analyze(cmd.Context(), db, deviceID, 0)
			if err != nil {
				return err
			}
			var totalSaving int64
			for _, g := range groups {
				totalSaving += g.PotentialSaving
			}

			fmt.Printf("Device %d\n", deviceID)
			fmt.Printf("  active files:          %d\n", active)
			fmt.Printf("  deleted files:         %d\n", deleted)
			fmt.Printf("  duplicate groups:      %d\n", len(groups))
			fmt.Printf("  potential bytes saved: %d\n", totalSaving)
			return nil
		},
	}
	return cmd
}
