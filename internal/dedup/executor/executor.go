// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package executor consumes a persisted plan and mutates the filesystem,
// replacing target files with hardlinks to their canonical source with an
// atomic backup/rollback dance around every replacement.
package executor

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/hashall/hashall/internal/catalogdb"
	"github.com/hashall/hashall/internal/filehash"
	"github.com/hashall/hashall/internal/herrors"
	"github.com/hashall/hashall/pkg/fsutil"
	"github.com/hashall/hashall/pkg/hardlink"
)

// VerifyMode selects how thoroughly an action's source/target are checked
// against their recorded state immediately before mutation.
type VerifyMode string

const (
	VerifyFast     VerifyMode = "fast"
	VerifyParanoid VerifyMode = "paranoid"
	VerifyNone     VerifyMode = "none"
)

// Store is the subset of catalogdb.DB the executor depends on.
type Store interface {
	PlanByID(ctx context.Context, planID int64) (*catalogdb.Plan, error)
	PendingActions(ctx context.Context, planID int64) ([]*catalogdb.Action, error)
	SetPlanStatus(ctx context.Context, planID int64, status catalogdb.PlanStatus) error
	RecordActionOutcome(ctx context.Context, action *catalogdb.Action, bytesSaved int64) error
}

// Options configures one execute invocation.
type Options struct {
	VerifyMode VerifyMode
	DryRun     bool
	NoBackup   bool
	// Limit bounds how many actions this invocation attempts; 0 means
	// unlimited. Actions beyond the limit stay pending for a later resume.
	Limit int
}

// Summary reports what Execute did.
type Summary struct {
	Executed int
	Failed   int
	Skipped  int
}

// Execute implements spec.md §4.8. It resumes from whatever actions are
// still pending (so a crash mid-execution picks up at the next action, per
// spec.md §8 scenario 5), runs each HARDLINK through the verify/backup/
// rollback sequence, and finally transitions the plan to completed or
// failed.
func Execute(ctx context.Context, store Store, planID int64, opts Options) (*Summary, error) {
	plan, err := store.PlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status == catalogdb.PlanCompleted || plan.Status == catalogdb.PlanFailed || plan.Status == catalogdb.PlanCancelled {
		return nil, herrors.New(herrors.PlanTerminal, "plan is already in a terminal state")
	}

	actions, err := store.PendingActions(ctx, planID)
	if err != nil {
		return nil, err
	}

	if !opts.DryRun && plan.Status == catalogdb.PlanPending {
		if err := store.SetPlanStatus(ctx, planID, catalogdb.PlanInProgress); err != nil {
			return nil, err
		}
	}

	summary := &Summary{}
	anyFailed := false

	for i, action := range actions {
		if opts.Limit > 0 && i >= opts.Limit {
			break
		}
		if ctx.Err() != nil {
			break
		}

		outcome, bytesSaved := runAction(plan, action, opts)
		action.Status = outcome.status
		action.ErrorMessage = outcome.errorMessage

		switch outcome.status {
		case catalogdb.ActionExecuted:
			summary.Executed++
		case catalogdb.ActionSkipped:
			summary.Skipped++
		case catalogdb.ActionFailed:
			summary.Failed++
			anyFailed = true
		}

		if opts.DryRun {
			continue
		}
		if err := store.RecordActionOutcome(ctx, action, bytesSaved); err != nil {
			return summary, err
		}
	}

	if opts.DryRun {
		return summary, nil
	}

	remaining, err := store.PendingActions(ctx, planID)
	if err != nil {
		return summary, err
	}
	if len(remaining) == 0 {
		finalStatus := catalogdb.PlanCompleted
		if anyFailed {
			finalStatus = catalogdb.PlanFailed
		}
		if err := store.SetPlanStatus(ctx, planID, finalStatus); err != nil {
			return summary, err
		}
	}

	return summary, nil
}

type actionOutcome struct {
	status       catalogdb.ActionStatus
	errorMessage string
}

// runAction evaluates and, unless dry-run, carries out one action. plan is
// accepted for parity with spec.md §4.8's "device-boundary check against
// the device recorded in the plan" but the device-boundary check itself is
// done by comparing source and target directly (fsutil.SameFilesystem):
// since both paths were planned together from one device's catalog, this
// is equivalent to re-resolving plan.DeviceID's current mount point, and
// catches any cross-device drift without a second store round trip.
func runAction(plan *catalogdb.Plan, action *catalogdb.Action, opts Options) (actionOutcome, int64) {
	if action.ActionType == catalogdb.ActionNoop {
		return actionOutcome{status: catalogdb.ActionSkipped, errorMessage: "already optimal"}, 0
	}

	sourceFI, err := os.Stat(action.SourcePath)
	if err != nil {
		return actionOutcome{status: catalogdb.ActionSkipped, errorMessage: herrors.FileVanished.String()}, 0
	}
	targetFI, err := os.Stat(action.TargetPath)
	if err != nil {
		return actionOutcome{status: catalogdb.ActionSkipped, errorMessage: herrors.FileVanished.String()}, 0
	}

	sameFS, err := fsutil.SameFilesystem(action.SourcePath, action.TargetPath)
	if err != nil {
		return actionOutcome{status: catalogdb.ActionFailed, errorMessage: err.Error()}, 0
	}
	if !sameFS {
		return actionOutcome{status: catalogdb.ActionFailed, errorMessage: herrors.CrossFilesystem.String()}, 0
	}

	sourceID, _, err := hardlink.GetFileID(sourceFI, action.SourcePath)
	if err != nil {
		return actionOutcome{status: catalogdb.ActionFailed, errorMessage: err.Error()}, 0
	}
	targetID, _, err := hardlink.GetFileID(targetFI, action.TargetPath)
	if err != nil {
		return actionOutcome{status: catalogdb.ActionFailed, errorMessage: err.Error()}, 0
	}
	if sourceID == targetID {
		return actionOutcome{status: catalogdb.ActionSkipped, errorMessage: "already hardlinked"}, 0
	}

	if err := verifyContent(action, sourceFI, targetFI, opts.VerifyMode); err != nil {
		return actionOutcome{status: catalogdb.ActionFailed, errorMessage: herrors.VerificationFailed.String() + ": " + err.Error()}, 0
	}

	if opts.DryRun {
		return actionOutcome{status: catalogdb.ActionExecuted}, action.BytesSaveable
	}

	if err := replaceWithHardlink(action.SourcePath, action.TargetPath, opts.NoBackup); err != nil {
		var rollbackErr rollbackLeftBackupError
		if errors.As(err, &rollbackErr) {
			log.Error().Str("target", action.TargetPath).Str("backup", rollbackErr.backupPath).
				Msg("executor: rollback left a backup file behind, manual recovery required")
			return actionOutcome{status: catalogdb.ActionFailed, errorMessage: herrors.RollbackLeftBackup.String() + ": " + rollbackErr.backupPath}, 0
		}
		return actionOutcome{status: catalogdb.ActionFailed, errorMessage: err.Error()}, 0
	}

	return actionOutcome{status: catalogdb.ActionExecuted}, action.BytesSaveable
}

func verifyContent(action *catalogdb.Action, sourceFI, targetFI os.FileInfo, mode VerifyMode) error {
	switch mode {
	case VerifyNone, "":
		return nil
	case VerifyParanoid:
		sourceHash, err := filehash.FullHash(action.SourcePath)
		if err != nil {
			return err
		}
		targetHash, err := filehash.FullHash(action.TargetPath)
		if err != nil {
			return err
		}
		if sourceHash != action.SHA256 || targetHash != action.SHA256 {
			return errors.New("full hash mismatch against recorded plan hash")
		}
		return nil
	default: // VerifyFast
		if sourceFI.Size() != targetFI.Size() {
			return errors.New("size changed since plan creation")
		}
		sourceSample, err := filehash.SampleHash(action.SourcePath, filehash.DefaultQuickHashSampleBytes)
		if err != nil {
			return err
		}
		targetSample, err := filehash.SampleHash(action.TargetPath, filehash.DefaultQuickHashSampleBytes)
		if err != nil {
			return err
		}
		if sourceSample != targetSample {
			return errors.New("sample hash mismatch since plan creation")
		}
		return nil
	}
}

type rollbackLeftBackupError struct {
	backupPath string
	cause      error
}

func (e rollbackLeftBackupError) Error() string {
	return "rollback left backup at " + e.backupPath + ": " + e.cause.Error()
}

// replaceWithHardlink implements spec.md §4.8 step 5: create target.bak,
// unlink target, relink target to source, then drop the backup. If
// unlinking the target fails, the backup link is removed and the error is
// returned. If relinking the target fails, the target is restored from the
// backup; if that rollback itself fails, the backup is left in place and
// the caller must surface RollbackLeftBackup. If dropping the backup fails
// after a successful relink, the target already points at the source and
// the leftover backup is reported as RollbackLeftBackup as well.
func replaceWithHardlink(sourcePath, targetPath string, noBackup bool) error {
	if noBackup {
		if err := os.Remove(targetPath); err != nil {
			return err
		}
		if err := os.Link(sourcePath, targetPath); err != nil {
			return err
		}
		return nil
	}

	backupPath := targetPath + ".bak"
	if err := os.Link(targetPath, backupPath); err != nil {
		return err
	}

	if err := os.Remove(targetPath); err != nil {
		_ = os.Remove(backupPath)
		return err
	}

	if err := os.Link(sourcePath, targetPath); err != nil {
		if rollbackErr := os.Link(backupPath, targetPath); rollbackErr != nil {
			return rollbackLeftBackupError{backupPath: backupPath, cause: rollbackErr}
		}
		_ = os.Remove(backupPath)
		return err
	}

	if err := os.Remove(backupPath); err != nil {
		return rollbackLeftBackupError{backupPath: backupPath, cause: err}
	}
	return nil
}
