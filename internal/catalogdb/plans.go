// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalogdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hashall/hashall/internal/herrors"
)

// PlanStatus is the closed plan state machine from spec.md §3/§4.8.
type PlanStatus string

const (
	PlanPending    PlanStatus = "pending"
	PlanInProgress PlanStatus = "in_progress"
	PlanCompleted  PlanStatus = "completed"
	PlanFailed     PlanStatus = "failed"
	PlanCancelled  PlanStatus = "cancelled"
)

// ActionType is the closed action-type enum from spec.md §3.
type ActionType string

const (
	ActionHardlink ActionType = "HARDLINK"
	ActionNoop     ActionType = "NOOP"
)

// ActionStatus is the closed per-action state from spec.md §3.
type ActionStatus string

const (
	ActionPending  ActionStatus = "pending"
	ActionExecuted ActionStatus = "executed"
	ActionFailed   ActionStatus = "failed"
	ActionSkipped  ActionStatus = "skipped"
)

// Plan mirrors the "Link plan" entity in spec.md §3.
type Plan struct {
	PlanID              int64
	Name                string
	DeviceID            int64
	Status              PlanStatus
	Opportunities       int64
	TotalBytesSaveable  int64
	ExecutedCount       int64
	FailedCount         int64
	SkippedCount        int64
	BytesSaved          int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Action mirrors the "Link action" entity in spec.md §3.
type Action struct {
	ActionID      int64
	PlanID        int64
	Seq           int
	ActionType    ActionType
	SHA256        string
	SourcePath    string
	TargetPath    string
	BytesSaveable int64
	Status        ActionStatus
	ErrorMessage  string
}

// CreatePlan persists a plan and all of its actions in one transaction, per
// spec.md §4.7 step 5. The actions slice order becomes the plan's execution
// order (spec.md §4.8 "Ordering of actions within a plan is the stored order").
func (db *DB) CreatePlan(ctx context.Context, name string, deviceID int64, actions []Action) (int64, error) {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	var totalBytes int64
	for _, a := range actions {
		if a.ActionType == ActionHardlink {
			totalBytes += a.BytesSaveable
		}
	}

	now := time.Now().Unix()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO plans (name, device_id, status, opportunities, total_bytes_saveable, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		name, deviceID, PlanPending, len(actions), totalBytes, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert plan: %w", err)
	}
	planID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.tx.PrepareContext(ctx, `
		INSERT INTO actions (plan_id, seq, action_type, sha256, source_path, target_path, bytes_saveable, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, a := range actions {
		if _, err := stmt.ExecContext(ctx, planID, i, a.ActionType, a.SHA256, a.SourcePath, a.TargetPath,
			a.BytesSaveable, ActionPending); err != nil {
			return 0, fmt.Errorf("insert action %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return planID, nil
}

// PlanByID fetches a plan's header row.
func (db *DB) PlanByID(ctx context.Context, planID int64) (*Plan, error) {
	row := db.QueryRowContext(ctx, `
		SELECT plan_id, name, device_id, status, opportunities, total_bytes_saveable,
		       executed_count, failed_count, skipped_count, bytes_saved, created_at, updated_at
		FROM plans WHERE plan_id = ?`, planID)
	return scanPlan(row)
}

func scanPlan(row *sql.Row) (*Plan, error) {
	var p Plan
	var status string
	var created, updated int64
	err := row.Scan(&p.PlanID, &p.Name, &p.DeviceID, &status, &p.Opportunities, &p.TotalBytesSaveable,
		&p.ExecutedCount, &p.FailedCount, &p.SkippedCount, &p.BytesSaved, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, herrors.New(herrors.NotFound, "plan not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan plan row: %w", err)
	}
	p.Status = PlanStatus(status)
	p.CreatedAt = time.Unix(created, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return &p, nil
}

// ListPlans returns every plan, most recent first.
func (db *DB) ListPlans(ctx context.Context) ([]*Plan, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT plan_id, name, device_id, status, opportunities, total_bytes_saveable,
		       executed_count, failed_count, skipped_count, bytes_saved, created_at, updated_at
		FROM plans ORDER BY plan_id DESC`)
	if err != nil {
		return nil, translateBusy(err)
	}
	defer rows.Close()

	var out []*Plan
	for rows.Next() {
		var p Plan
		var status string
		var created, updated int64
		if err := rows.Scan(&p.PlanID, &p.Name, &p.DeviceID, &status, &p.Opportunities, &p.TotalBytesSaveable,
			&p.ExecutedCount, &p.FailedCount, &p.SkippedCount, &p.BytesSaved, &created, &updated); err != nil {
			return nil, err
		}
		p.Status = PlanStatus(status)
		p.CreatedAt = time.Unix(created, 0).UTC()
		p.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Actions returns a plan's actions in stored (execution) order.
func (db *DB) Actions(ctx context.Context, planID int64) ([]*Action, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT action_id, plan_id, seq, action_type, sha256, source_path, target_path,
		       bytes_saveable, status, COALESCE(error_message, '')
		FROM actions WHERE plan_id = ? ORDER BY seq`, planID)
	if err != nil {
		return nil, translateBusy(err)
	}
	defer rows.Close()

	var out []*Action
	for rows.Next() {
		var a Action
		var actionType, status string
		if err := rows.Scan(&a.ActionID, &a.PlanID, &a.Seq, &actionType, &a.SHA256, &a.SourcePath, &a.TargetPath,
			&a.BytesSaveable, &status, &a.ErrorMessage); err != nil {
			return nil, err
		}
		a.ActionType = ActionType(actionType)
		a.Status = ActionStatus(status)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// PendingActions returns a plan's actions still awaiting execution, in
// stored order, so executor resume (spec.md §8 scenario 5) picks up where
// a prior invocation left off.
func (db *DB) PendingActions(ctx context.Context, planID int64) ([]*Action, error) {
	all, err := db.Actions(ctx, planID)
	if err != nil {
		return nil, err
	}
	var pending []*Action
	for _, a := range all {
		if a.Status == ActionPending {
			pending = append(pending, a)
		}
	}
	return pending, nil
}

// SetPlanStatus transitions a plan's status. Callers are responsible for
// enforcing the state machine (pending -> in_progress -> {completed,
// failed, cancelled}); this is a raw write used by the executor.
func (db *DB) SetPlanStatus(ctx context.Context, planID int64, status PlanStatus) error {
	_, err := db.ExecContext(ctx, `
		UPDATE plans SET status = ?, updated_at = ? WHERE plan_id = ?`,
		status, time.Now().Unix(), planID)
	return err
}

// RecordActionOutcome updates one action's status/error and increments the
// plan's counters in one transaction, keeping spec.md §8's invariant
// "opportunities >= executed + failed + skipped + pending" always true.
func (db *DB) RecordActionOutcome(ctx context.Context, action *Action, bytesSaved int64) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	if _, err := tx.ExecContext(ctx, `
		UPDATE actions SET status = ?, error_message = ? WHERE action_id = ?`,
		action.Status, nullableString(action.ErrorMessage), action.ActionID); err != nil {
		return fmt.Errorf("update action %d: %w", action.ActionID, err)
	}

	var counterColumn string
	switch action.Status {
	case ActionExecuted:
		counterColumn = "executed_count"
	case ActionFailed:
		counterColumn = "failed_count"
	case ActionSkipped:
		counterColumn = "skipped_count"
	default:
		return tx.Commit()
	}

	query := fmt.Sprintf(`
		UPDATE plans SET %s = %s + 1, bytes_saved = bytes_saved + ?, updated_at = ?
		WHERE plan_id = ?`, counterColumn, counterColumn)
	if _, err := tx.ExecContext(ctx, query, bytesSaved, time.Now().Unix(), action.PlanID); err != nil {
		return fmt.Errorf("update plan counters: %w", err)
	}

	return tx.Commit()
}

// DeletePlan removes a plan and, via ON DELETE CASCADE, all of its actions.
func (db *DB) DeletePlan(ctx context.Context, planID int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM plans WHERE plan_id = ?`, planID)
	return err
}
