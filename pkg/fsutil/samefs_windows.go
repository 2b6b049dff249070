// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build windows

package fsutil

import "syscall"

func sameFilesystem(path1, path2 string) (bool, error) {
	serial1, err := volumeSerialNumber(path1)
	if err != nil {
		return false, err
	}
	serial2, err := volumeSerialNumber(path2)
	if err != nil {
		return false, err
	}
	return serial1 == serial2, nil
}

func volumeSerialNumber(path string) (uint32, error) {
	pathp, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	attrs := uint32(syscall.FILE_FLAG_BACKUP_SEMANTICS)
	shareMode := uint32(syscall.FILE_SHARE_READ | syscall.FILE_SHARE_WRITE | syscall.FILE_SHARE_DELETE)
	h, err := syscall.CreateFile(pathp, 0x0080, shareMode, nil, syscall.OPEN_EXISTING, attrs, 0)
	if err != nil {
		return 0, err
	}
	defer syscall.CloseHandle(h)

	var info syscall.ByHandleFileInformation
	if err := syscall.GetFileInformationByHandle(h, &info); err != nil {
		return 0, err
	}
	return info.VolumeSerialNumber, nil
}
