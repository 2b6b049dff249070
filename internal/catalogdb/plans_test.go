// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalogdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashall/hashall/internal/herrors"
)

func seedPlanDevice(t *testing.T, db *DB) int64 {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.InsertDevice(ctx, &Device{
		DeviceID: 1, FSUUID: "plan-dev", MountPoint: "/m", PreferredMountPoint: "/m", FSType: "ext4",
	}))
	return 1
}

func TestCreatePlanComputesSaveableBytesAndOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	deviceID := seedPlanDevice(t, db)

	actions := []Action{
		{ActionType: ActionHardlink, SHA256: "aaa", SourcePath: "/m/a", TargetPath: "/m/b", BytesSaveable: 100},
		{ActionType: ActionNoop, SHA256: "bbb", SourcePath: "/m/c", TargetPath: "/m/d", BytesSaveable: 0},
		{ActionType: ActionHardlink, SHA256: "ccc", SourcePath: "/m/e", TargetPath: "/m/f", BytesSaveable: 50},
	}

	planID, err := db.CreatePlan(ctx, "nightly", deviceID, actions)
	require.NoError(t, err)

	plan, err := db.PlanByID(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, PlanPending, plan.Status)
	assert.Equal(t, int64(3), plan.Opportunities)
	assert.Equal(t, int64(150), plan.TotalBytesSaveable)

	stored, err := db.Actions(ctx, planID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, "/m/a", stored[0].SourcePath)
	assert.Equal(t, "/m/c", stored[1].SourcePath)
	assert.Equal(t, "/m/e", stored[2].SourcePath)
	for i, a := range stored {
		assert.Equal(t, i, a.Seq)
		assert.Equal(t, ActionPending, a.Status)
	}
}

func TestListPlansMostRecentFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	deviceID := seedPlanDevice(t, db)

	first, err := db.CreatePlan(ctx, "first", deviceID, nil)
	require.NoError(t, err)
	second, err := db.CreatePlan(ctx, "second", deviceID, nil)
	require.NoError(t, err)

	plans, err := db.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, second, plans[0].PlanID)
	assert.Equal(t, first, plans[1].PlanID)
}

func TestPendingActionsExcludesResolved(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	deviceID := seedPlanDevice(t, db)

	planID, err := db.CreatePlan(ctx, "resume", deviceID, []Action{
		{ActionType: ActionHardlink, SHA256: "aaa", SourcePath: "/m/a", TargetPath: "/m/b", BytesSaveable: 10},
		{ActionType: ActionHardlink, SHA256: "bbb", SourcePath: "/m/c", TargetPath: "/m/d", BytesSaveable: 20},
	})
	require.NoError(t, err)

	actions, err := db.Actions(ctx, planID)
	require.NoError(t, err)
	require.Len(t, actions, 2)

	executed := actions[0]
	executed.Status = ActionExecuted
	require.NoError(t, db.RecordActionOutcome(ctx, executed, executed.BytesSaveable))

	pending, err := db.PendingActions(ctx, planID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "/m/c", pending[0].SourcePath)

	plan, err := db.PlanByID(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), plan.ExecutedCount)
	assert.Equal(t, int64(10), plan.BytesSaved)
}

func TestRecordActionOutcomeFailedIncrementsFailedCount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	deviceID := seedPlanDevice(t, db)

	planID, err := db.CreatePlan(ctx, "failure", deviceID, []Action{
		{ActionType: ActionHardlink, SHA256: "aaa", SourcePath: "/m/a", TargetPath: "/m/b", BytesSaveable: 10},
	})
	require.NoError(t, err)

	actions, err := db.Actions(ctx, planID)
	require.NoError(t, err)

	failed := actions[0]
	failed.Status = ActionFailed
	failed.ErrorMessage = "cross-device link"
	require.NoError(t, db.RecordActionOutcome(ctx, failed, 0))

	plan, err := db.PlanByID(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), plan.FailedCount)
	assert.Equal(t, int64(0), plan.BytesSaved)

	reread, err := db.Actions(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, "cross-device link", reread[0].ErrorMessage)
}

func TestSetPlanStatusAndDeletePlanCascades(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	deviceID := seedPlanDevice(t, db)

	planID, err := db.CreatePlan(ctx, "cleanup", deviceID, []Action{
		{ActionType: ActionHardlink, SHA256: "aaa", SourcePath: "/m/a", TargetPath: "/m/b", BytesSaveable: 10},
	})
	require.NoError(t, err)

	require.NoError(t, db.SetPlanStatus(ctx, planID, PlanCompleted))
	plan, err := db.PlanByID(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, PlanCompleted, plan.Status)

	require.NoError(t, db.DeletePlan(ctx, planID))

	_, err = db.PlanByID(ctx, planID)
	assert.True(t, herrors.Is(err, herrors.NotFound))

	remaining, err := db.Actions(ctx, planID)
	require.NoError(t, err)
	assert.Empty(t, remaining, "cascade delete must remove the plan's actions")
}
