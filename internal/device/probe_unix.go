// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build !windows

package device

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// fstypeMagic maps a handful of well-known statfs f_type magic numbers
// (Linux) to a canonical filesystem name. Anything unrecognized surfaces as
// "unknown" rather than failing the scan.
var fstypeMagic = map[int64]string{
	0x0000EF53: "ext4",
	0x58465342: "xfs",
	0x2FC12FC1: "zfs",
	0x6969:     "nfs",
	0x9123683E: "btrfs",
}

func probeFSType(path string) (string, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return "", err
	}
	if name, ok := fstypeMagic[int64(st.Type)]; ok { //nolint:unconvert // Type's width differs across unix targets
		return name, nil
	}
	return "unknown", nil
}

// zfsPoolGUID shells out to `zfs list` to read the dataset's stable GUID
// property. Degrades to an error (caller falls back to synthetic UUID) when
// the zfs CLI isn't installed, matching systems without ZFS support.
func zfsPoolGUID(mountPoint string) (string, error) {
	path, err := exec.LookPath("zfs")
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "list", "-H", "-o", "guid", mountPoint)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("zfs list: %w", err)
	}
	guid := strings.TrimSpace(string(out))
	if guid == "" || guid == "-" {
		return "", fmt.Errorf("zfs list returned no guid for %s", mountPoint)
	}
	return "zfs-" + guid, nil
}

// blkidUUID resolves the mount point to its backing block device via
// /proc/mounts, then reads that device's UUID from the udev-populated
// /dev/disk/by-uuid symlink farm. No blkid binary is required since the
// by-uuid links are maintained by the kernel/udev directly.
func blkidUUID(mountPoint string) (string, error) {
	device, err := deviceForMount(mountPoint)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir("/dev/disk/by-uuid")
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		target, err := os.Readlink("/dev/disk/by-uuid/" + e.Name())
		if err != nil {
			continue
		}
		resolved := target
		if !strings.HasPrefix(resolved, "/dev") {
			resolved = "/dev/disk/by-uuid/" + resolved
		}
		if resolved == device || strings.TrimPrefix(resolved, "../..") == strings.TrimPrefix(device, "/dev") {
			return e.Name(), nil
		}
	}
	return "", fmt.Errorf("no by-uuid entry for device %s", device)
}

func deviceForMount(mountPoint string) (string, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return "", err
	}
	defer f.Close()

	var best string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		device, target := fields[0], fields[1]
		if !strings.HasPrefix(device, "/dev") {
			continue
		}
		if target == mountPoint || (strings.HasPrefix(mountPoint, target) && len(target) > len(best)) {
			best = device
		}
	}
	if best == "" {
		return "", fmt.Errorf("no mount entry covers %s", mountPoint)
	}
	return best, nil
}
