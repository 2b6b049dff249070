// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build windows

package device

import (
	"fmt"

	"golang.org/x/sys/windows"
)

func probeFSType(path string) (string, error) {
	pathp, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return "", err
	}
	var fsNameBuf [windows.MAX_PATH + 1]uint16
	if err := windows.GetVolumeInformation(pathp, nil, 0, nil, nil, nil, &fsNameBuf[0], uint32(len(fsNameBuf))); err != nil {
		return "", err
	}
	return windows.UTF16ToString(fsNameBuf[:]), nil
}

// zfsPoolGUID is unreachable on Windows (ZFS pool GUIDs aren't applicable);
// present only to satisfy registry.go's probeFSUUID call signature.
func zfsPoolGUID(string) (string, error) {
	return "", fmt.Errorf("zfs not supported on windows")
}

// blkidUUID resolves the NTFS/ReFS volume GUID path, which is Windows'
// equivalent of a stable by-uuid device identity.
func blkidUUID(mountPoint string) (string, error) {
	pathp, err := windows.UTF16PtrFromString(mountPoint)
	if err != nil {
		return "", err
	}
	var volumeName [50]uint16
	if err := windows.GetVolumeNameForVolumeMountPoint(pathp, &volumeName[0], uint32(len(volumeName))); err != nil {
		return "", err
	}
	return windows.UTF16ToString(volumeName[:]), nil
}
