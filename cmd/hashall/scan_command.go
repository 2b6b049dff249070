// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hashall/hashall/internal/device"
	"github.com/hashall/hashall/internal/herrors"
	"github.com/hashall/hashall/internal/scanner"
)

func newScanCommand() *cobra.Command {
	var (
		hashMode string
		workers  int
	)

	cmd := &cobra.Command{
		Use:   "scan <path>",
		Short: "Walk a directory tree, catalog its files, and detect adds/updates/deletes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(args[0])
			if err != nil {
				return herrors.Wrap(herrors.InvalidArgument, "resolve scan path", err)
			}

			db, err := openCatalog()
			if err != nil {
				return err
			}
			defer db.Close()

			dev, err := device.RegisterOrResolve(cmd.Context(), db, root)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = cfg.ScanWorkers
			}

			opts := scanner.Options{
				HashMode:             scanner.HashMode(hashMode),
				Workers:              workers,
				QuickHashSampleBytes: cfg.QuickHashSampleBytes,
			}

			log.Info().Str("root", root).Str("fs_uuid", dev.FSUUID).Msg("hashall: starting scan")

			result, err := scanner.Scan(cmd.Context(), db, dev.DeviceID, root, opts)
			if err != nil {
				return err
			}

			fmt.Printf("Scan complete: %d added, %d updated, %d unchanged, %d deleted, %d failed\n",
				result.Added, result.Updated, result.Unchanged, result.Deleted, result.Failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&hashMode, "hash-mode", string(scanner.HashModeFast), "Hash mode: fast, full, or upgrade")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent hashing workers (default: scanWorkers from config)")

	return cmd
}
