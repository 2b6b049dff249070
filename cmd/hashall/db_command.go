// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Catalog database operations",
	}
	cmd.AddCommand(newDBMigrateCommand())
	return cmd
}

// newDBMigrateCommand applies pending embedded schema migrations and
// reports which ones ran. hashall's catalog is SQLite-only: unlike a
// cross-engine offline migration, opening the database is enough to bring
// the schema up to date, so this command just surfaces that as an explicit
// operator action.
func newDBMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending catalog schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openCatalog()
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := db.AppliedMigrations(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Catalog schema up to date (%d migrations applied)\n", len(applied))
			for _, m := range applied {
				fmt.Printf("  - %s\n", m)
			}
			return nil
		},
	}
	return cmd
}
