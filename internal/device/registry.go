// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package device resolves a filesystem root to a stable catalog device,
// probing for a filesystem UUID and tracking kernel device-number drift.
package device

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hashall/hashall/internal/catalogdb"
	"github.com/hashall/hashall/internal/herrors"
	"github.com/hashall/hashall/pkg/hardlink"
)

// Store is the subset of catalogdb.DB the registry depends on.
type Store interface {
	DeviceByUUID(ctx context.Context, fsUUID string) (*catalogdb.Device, error)
	DeviceByID(ctx context.Context, deviceID int64) (*catalogdb.Device, error)
	DeviceByMountPoint(ctx context.Context, mountPoint string) (*catalogdb.Device, error)
	InsertDevice(ctx context.Context, d *catalogdb.Device) error
	RefreshMountPoint(ctx context.Context, fsUUID, mountPoint, fsType string) error
	RenameDeviceID(ctx context.Context, fsUUID string, oldID, newID int64) error
	EnsureFilesTable(ctx context.Context, deviceID int64) error
}

// RegisterOrResolve implements spec.md §4.3: it stats rootPath for the
// current kernel device number, probes a stable filesystem UUID, and
// reconciles that against any previously catalogued device with the same
// UUID, renaming the per-device file table on device-id drift.
func RegisterOrResolve(ctx context.Context, store Store, rootPath string) (*catalogdb.Device, error) {
	fi, err := os.Stat(rootPath)
	if err != nil {
		return nil, herrors.Wrap(herrors.IoError, "stat scan root", err)
	}

	fid, _, err := hardlink.GetFileID(fi, rootPath)
	if err != nil {
		return nil, herrors.Wrap(herrors.IoError, "determine device number", err)
	}
	currentDeviceID := int64(fid.Dev) //nolint:gosec // device numbers are small positive integers in practice

	fsType, err := probeFSType(rootPath)
	if err != nil {
		log.Warn().Err(err).Str("path", rootPath).Msg("device: fs type probe failed, continuing as unknown")
		fsType = "unknown"
	}

	fsUUID, synthetic, err := probeFSUUID(rootPath, fsType)
	if err != nil {
		return nil, herrors.Wrap(herrors.IoError, "probe filesystem uuid", err)
	}

	if byMount, err := store.DeviceByMountPoint(ctx, rootPath); err == nil {
		if byMount.FSUUID != fsUUID {
			return nil, herrors.New(herrors.UnstableIdentity, fmt.Sprintf(
				"mount %s previously resolved to fs_uuid %s, now probes as %s", rootPath, byMount.FSUUID, fsUUID))
		}
	} else if !herrors.Is(err, herrors.NotFound) {
		return nil, err
	}

	if byID, err := store.DeviceByID(ctx, currentDeviceID); err == nil {
		if byID.FSUUID != fsUUID {
			return nil, herrors.New(herrors.AmbiguousDevice, fmt.Sprintf(
				"device id %d is already claimed by fs_uuid %s while %s now probes as %s",
				currentDeviceID, byID.FSUUID, rootPath, fsUUID))
		}
	} else if !herrors.Is(err, herrors.NotFound) {
		return nil, err
	}

	existing, err := store.DeviceByUUID(ctx, fsUUID)
	if herrors.Is(err, herrors.NotFound) {
		d := &catalogdb.Device{
			DeviceID:            currentDeviceID,
			FSUUID:              fsUUID,
			MountPoint:          rootPath,
			PreferredMountPoint: rootPath,
			FSType:              fsType,
		}
		if synthetic {
			log.Info().Str("fs_uuid", fsUUID).Str("path", rootPath).
				Msg("device: no native filesystem uuid available, using synthetic identity")
		}
		if err := store.InsertDevice(ctx, d); err != nil {
			return nil, err
		}
		if err := store.EnsureFilesTable(ctx, currentDeviceID); err != nil {
			return nil, err
		}
		return d, nil
	}
	if err != nil {
		return nil, err
	}

	if existing.DeviceID != currentDeviceID {
		log.Info().Str("fs_uuid", fsUUID).
			Int64("old_device_id", existing.DeviceID).Int64("new_device_id", currentDeviceID).
			Msg("device: device-id drift detected, renaming file table")
		if err := store.RenameDeviceID(ctx, fsUUID, existing.DeviceID, currentDeviceID); err != nil {
			return nil, err
		}
		existing.DeviceID = currentDeviceID
	}

	if err := store.RefreshMountPoint(ctx, fsUUID, rootPath, fsType); err != nil {
		return nil, err
	}
	existing.MountPoint = rootPath
	existing.FSType = fsType
	return existing, nil
}

// probeFSUUID attempts filesystem-native UUID discovery in order of
// specificity (ZFS pool GUID, blkid device UUID), falling back to a
// synthetic UUID derived from the mount point and filesystem type. The
// synthetic value is deterministic so re-registering the same unprobeable
// mount doesn't mint a new device every time.
func probeFSUUID(mountPoint, fsType string) (fsUUID string, synthetic bool, err error) {
	if fsType == "zfs" {
		if guid, err := zfsPoolGUID(mountPoint); err == nil && guid != "" {
			return guid, false, nil
		}
	}

	if id, err := blkidUUID(mountPoint); err == nil && id != "" {
		return id, false, nil
	}

	return syntheticUUID(mountPoint, fsType), true, nil
}

func syntheticUUID(mountPoint, fsType string) string {
	ns := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("hashall-device://%s/%s", fsType, mountPoint)))
	return ns.String()
}
