// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hashall/hashall/internal/dedup/analyzer"
	"github.com/hashall/hashall/internal/dedup/executor"
	"github.com/hashall/hashall/internal/dedup/planner"
	"github.com/hashall/hashall/internal/herrors"
)

func newLinkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Analyze, plan, and execute same-device hardlink deduplication",
	}

	cmd.AddCommand(
		newLinkAnalyzeCommand(),
		newLinkPlanCommand(),
		newLinkShowPlanCommand(),
		newLinkListPlansCommand(),
		newLinkExecuteCommand(),
	)
	return cmd
}

func newLinkAnalyzeCommand() *cobra.Command {
	var minSize int64

	cmd := &cobra.Command{
		Use:   "analyze <device-id>",
		Short: "Report potential hardlink savings for a device without creating a plan",
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

			groups, err := analyzer.Analyze(cmd.Context(), db, deviceID, minSize)
			if err != nil {
				return err
			}

			var totalSaving int64
			rows := make([][]string, 0, len(groups))
			for _, g := range groups {
				totalSaving += g.PotentialSaving
				rows = append(rows, []string{
					g.SHA256[:minInt(12, len(g.SHA256))],
					strconv.Itoa(g.DistinctInodes),
					strconv.FormatInt(g.RepresentativeSize, 10),
					strconv.FormatInt(g.PotentialSaving, 10),
				})
			}
			printTable([]string{"sha256", "inodes", "size", "saveable"}, rows)
			fmt.Printf("\n%d duplicate groups, %d bytes saveable\n", len(groups), totalSaving)
			return nil
		},
	}
	cmd.Flags().Int64Var(&minSize, "min-size", 0, "Ignore files smaller than this many bytes")
	return cmd
}

func newLinkPlanCommand() *cobra.Command {
	var (
		name    string
		minSize int64
	)

	cmd := &cobra.Command{
		Use:   "plan <device-id>",
		Short: "Create and persist a hardlink execution plan for a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, err := parseDeviceArg(args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = fmt.Sprintf("plan-device-%d", deviceID)
			}

			db, err := openCatalog()
			if err != nil {
				return err
			}
			defer db.Close()

			planID, err := planner.CreatePlan(cmd.Context(), db, name, deviceID, minSize)
			if err != nil {
				return err
			}
			fmt.Printf("Created plan %d (%s)\n", planID, name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Plan name (default: plan-device-<id>)")
	cmd.Flags().Int64Var(&minSize, "min-size", 0, "Ignore files smaller than this many bytes")
	return cmd
}

func newLinkShowPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show-plan <plan-id>",
		Short: "Show a plan's header and its actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planID, err := parseInt64Arg(args[0], "plan-id")
			if err != nil {
				return err
			}

			db, err := openCatalog()
			if err != nil {
				return err
			}
			defer db.Close()

			plan, err := db.PlanByID(cmd.Context(), planID)
			if err != nil {
				return err
			}
			actions, err := db.Actions(cmd.Context(), planID)
			if err != nil {
				return err
			}

			fmt.Printf("Plan %d %q: status=%s opportunities=%d saveable=%d executed=%d failed=%d skipped=%d saved=%d\n",
				plan.PlanID, plan.Name, plan.Status, plan.Opportunities, plan.TotalBytesSaveable,
				plan.ExecutedCount, plan.FailedCount, plan.SkippedCount, plan.BytesSaved)

			rows := make([][]string, 0, len(actions))
			for _, a := range actions {
				rows = append(rows, []string{
					strconv.Itoa(a.Seq), string(a.ActionType), string(a.Status), a.SourcePath, a.TargetPath,
				})
			}
			printTable([]string{"seq", "type", "status", "source", "target"}, rows)
			return nil
		},
	}
	return cmd
}

func newLinkListPlansCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-plans",
		Short: "List all persisted plans, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openCatalog()
			if err != nil {
				return err
			}
			defer db.Close()

			plans, err := db.ListPlans(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(plans))
			for _, p := range plans {
				rows = append(rows, []string{
					strconv.FormatInt(p.PlanID, 10), p.Name, string(p.Status),
					strconv.FormatInt(p.Opportunities, 10), strconv.FormatInt(p.TotalBytesSaveable, 10),
				})
			}
			printTable([]string{"plan-id", "name", "status", "opportunities", "saveable"}, rows)
			return nil
		},
	}
	return cmd
}

func newLinkExecuteCommand() *cobra.Command {
	var (
		verifyMode string
		dryRun     bool
		noBackup   bool
		limit      int
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "execute <plan-id>",
		Short: "Execute a plan's pending hardlink actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planID, err := parseInt64Arg(args[0], "plan-id")
			if err != nil {
				return err
			}

			if !dryRun && !yes {
				return herrors.New(herrors.InvalidArgument,
					"refusing to execute a plan without --yes (use --dry-run to preview first)")
			}

			db, err := openCatalog()
			if err != nil {
				return err
			}
			defer db.Close()

			summary, err := executor.Execute(cmd.Context(), db, planID, executor.Options{
				VerifyMode: executor.VerifyMode(verifyMode),
				DryRun:     dryRun,
				NoBackup:   noBackup,
				Limit:      limit,
			})
			if err != nil {
				return err
			}

			mode := "executed"
			if dryRun {
				mode = "dry-run"
			}
			fmt.Printf("Plan %d %s: %d executed, %d skipped, %d failed\n",
				planID, mode, summary.Executed, summary.Skipped, summary.Failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&verifyMode, "verify", string(executor.VerifyFast), "Verification mode: fast, paranoid, or none")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report outcomes without mutating the filesystem")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "Skip the target.bak safety backup (operator risk)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of actions to attempt (0 = unlimited)")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm a non-dry-run execution (required unless --dry-run)")

	return cmd
}

func parseDeviceArg(raw string) (int64, error) {
	return parseInt64Arg(raw, "device-id")
}

func parseInt64Arg(raw, name string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, herrors.Wrap(herrors.InvalidArgument, fmt.Sprintf("invalid %s %q", name, raw), err)
	}
	return v, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
