// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hashall/hashall/internal/jsonexport"
)

func newExportCommand() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export <device-id>",
		Short: "Export a device's catalog as one JSON object (for archival)",
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

			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			return jsonexport.Write(cmd.Context(), db, deviceID, out)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "Write JSON to this file instead of stdout")
	return cmd
}
