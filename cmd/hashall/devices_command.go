// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newDevicesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Inspect and manage the device registry",
	}
	cmd.AddCommand(newDevicesListCommand(), newDevicesShowCommand(), newDevicesAliasCommand())
	return cmd
}

func newDevicesListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every registered device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openCatalog()
			if err != nil {
				return err
			}
			defer db.Close()

			devices, err := db.ListDevices(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(devices))
			for _, d := range devices {
				rows = append(rows, []string{
					strconv.FormatInt(d.DeviceID, 10), d.FSUUID, d.MountPoint, d.FSType, d.Alias,
				})
			}
			printTable([]string{"device-id", "fs-uuid", "mount-point", "fs-type", "alias"}, rows)
			return nil
		},
	}
	return cmd
}

func newDevicesShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <device-id>",
		Short: "Show one device's details and file counts",
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

			dev, err := db.DeviceByID(cmd.Context(), deviceID)
			if err != nil {
				return err
			}
			active, deleted, err := db.CountByStatus(cmd.Context(), deviceID)
			if err != nil {
				return err
			}

			fmt.Printf("Device %d\n", dev.DeviceID)
			fmt.Printf("  fs_uuid:              %s\n", dev.FSUUID)
			fmt.Printf("  mount_point:          %s\n", dev.MountPoint)
			fmt.Printf("  preferred_mount_point: %s\n", dev.PreferredMountPoint)
			fmt.Printf("  fs_type:              %s\n", dev.FSType)
			fmt.Printf("  alias:                %s\n", dev.Alias)
			fmt.Printf("  active files:         %d\n", active)
			fmt.Printf("  deleted files:        %d\n", deleted)
			return nil
		},
	}
	return cmd
}

func newDevicesAliasCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alias <device-id> <alias>",
		Short: "Assign an operator-friendly alias to a device",
		Args:  cobra.ExactArgs(2),
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

			if err := db.SetAlias(cmd.Context(), deviceID, args[1]); err != nil {
				return err
			}
			fmt.Printf("Device %d aliased to %q\n", deviceID, args[1])
			return nil
		},
	}
	return cmd
}
