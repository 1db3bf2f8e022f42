package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vexxhost/migratekit-cleanroom/internal/joblog"
	"github.com/vexxhost/migratekit-cleanroom/internal/recovery"
	"github.com/vexxhost/migratekit-cleanroom/internal/report"
	"github.com/vexxhost/migratekit-cleanroom/internal/status"
)

var (
	threatScan    bool
	defenderScan  bool
	entityIDs     []int64
	reportDir     string
	reportThreats bool
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Inspect and recover recovery groups",
}

func loadGroup(ctx context.Context, name string) (*recovery.Group, error) {
	return recovery.NewGroup(ctx, env.deps, name, 0)
}

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recovery groups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		groups, err := recovery.NewGroups(cmd.Context(), env.deps)
		if err != nil {
			return err
		}

		all := groups.All()
		return render(os.Stdout, output, all, func(t *tabwriter.Writer) {
			row(t, "NAME", "ID")
			for _, name := range groups.Names() {
				row(t, name, all[name])
			}
		})
	},
}

var groupsShowCmd = &cobra.Command{
	Use:   "show <group>",
	Short: "Show a recovery group and its settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, err := loadGroup(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		summary := group.Summary()
		return render(os.Stdout, output, summary, func(t *tabwriter.Writer) {
			row(t, "ID", summary.ID)
			row(t, "Name", summary.Name)
			row(t, "Target", summary.TargetName)
			row(t, "Threat scan", yesNo(summary.ThreatScan))
			row(t, "Windows Defender scan", yesNo(summary.WindowsDefenderScan))
			row(t, "Autoscale", yesNo(summary.Autoscale))
			row(t, "Power off after recovery", yesNo(summary.PowerOffAfterRecovery))
			row(t, "Entities", len(summary.EntityIDs))
		})
	},
}

var groupsStatusCmd = &cobra.Command{
	Use:   "status <group>",
	Short: "Show the listed recovery status of every entity in a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, err := loadGroup(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		states := group.EntityStatus()
		names := slices.Sorted(maps.Keys(states))

		return render(os.Stdout, output, states, func(t *tabwriter.Writer) {
			row(t, "ENTITY", "RECOVERY STATUS", "NOT READY CATEGORY")
			for _, name := range names {
				state := states[name]
				label := "-"
				if state.RecoveryStatus != nil {
					label = status.RecoveryStatus(*state.RecoveryStatus).String()
				}
				row(t, name, label, optional(state.NotReadyCategory))
			}
		})
	},
}

var groupsRecoverCmd = &cobra.Command{
	Use:   "recover <group>",
	Short: "Submit a recovery job for a group",
	Long:  "Submit a recovery job for every eligible entity of a group, or for the entities given with --entity.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		group, err := loadGroup(ctx, args[0])
		if err != nil {
			return err
		}

		opts := recovery.RecoverOptions{ThreatScan: threatScan, WindowsDefenderScan: defenderScan}
		count := len(entityIDs)
		if count == 0 {
			count = len(group.EligibleEntityIDs(defenderScan))
		}

		jobID, err := env.tracker.Track(ctx, joblog.SubmissionStart{
			Operation:   joblog.OperationRecover,
			GroupName:   group.Name(),
			GroupID:     group.ID(),
			EntityCount: count,
			Metadata:    opts,
		}, func(ctx context.Context) (int64, error) {
			if len(entityIDs) > 0 {
				return group.RecoverEntities(ctx, entityIDs, opts)
			}
			return group.RecoverAll(ctx, opts)
		})
		if err != nil {
			return err
		}

		fmt.Println(jobID)
		return nil
	},
}

var groupsCleanupCmd = &cobra.Command{
	Use:   "cleanup <group>",
	Short: "Submit a cleanup job for the recovered entities of a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		group, err := loadGroup(ctx, args[0])
		if err != nil {
			return err
		}

		jobID, err := env.tracker.Track(ctx, joblog.SubmissionStart{
			Operation:   joblog.OperationCleanup,
			GroupName:   group.Name(),
			GroupID:     group.ID(),
			EntityCount: len(group.EntityIDs()),
		}, group.CleanupRecoveredEntities)
		if err != nil {
			return err
		}

		fmt.Println(jobID)
		return nil
	},
}

var groupsThreatsCmd = &cobra.Command{
	Use:   "threats <group>",
	Short: "Show the threat count of a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, err := loadGroup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		count, err := group.ThreatsCount(cmd.Context())
		if err != nil {
			return err
		}

		result := map[string]any{"group": group.Name(), "threats_count": count}
		return render(os.Stdout, output, result, func(t *tabwriter.Writer) {
			row(t, "GROUP", "THREATS")
			row(t, group.Name(), count)
		})
	},
}

var groupsDeleteCmd = &cobra.Command{
	Use:   "delete <group>",
	Short: "Delete a recovery group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		group, err := loadGroup(ctx, args[0])
		if err != nil {
			return err
		}

		_, err = env.tracker.Track(ctx, joblog.SubmissionStart{
			Operation:   joblog.OperationDelete,
			GroupName:   group.Name(),
			GroupID:     group.ID(),
			EntityCount: len(group.EntityIDs()),
		}, func(ctx context.Context) (int64, error) {
			deleted, err := group.Delete(ctx)
			if err != nil {
				return 0, err
			}
			if !deleted {
				return 0, fmt.Errorf("backend did not delete recovery group %s", group.Name())
			}
			return 0, nil
		})
		return err
	},
}

var groupsReportCmd = &cobra.Command{
	Use:   "report <group>",
	Short: "Write a JSON report of a group and its entities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		group, err := loadGroup(ctx, args[0])
		if err != nil {
			return err
		}

		r, err := report.Build(ctx, group, report.Options{Threats: reportThreats})
		if err != nil {
			return err
		}
		if env.hasLedger() {
			r.Submissions, err = env.tracker.List(ctx, joblog.Filter{GroupName: group.Name()})
			if err != nil {
				return err
			}
		}

		path, err := report.Write(reportDir, r)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var groupsHistoryCmd = &cobra.Command{
	Use:   "history <group>",
	Short: "List the submissions recorded for a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !env.hasLedger() {
			return fmt.Errorf("no submission ledger configured")
		}
		subs, err := env.tracker.List(cmd.Context(), joblog.Filter{GroupName: args[0]})
		if err != nil {
			return err
		}

		return render(os.Stdout, output, subs, func(t *tabwriter.Writer) {
			row(t, "ID", "OPERATION", "STATUS", "JOB", "ENTITIES", "STARTED")
			for _, s := range subs {
				row(t, s.ID, s.Operation, s.Status, optional(s.BackendJobID), s.EntityCount, s.StartedAt.Format("2006-01-02 15:04:05"))
			}
		})
	},
}

func init() {
	groupsRecoverCmd.Flags().BoolVar(&threatScan, "threat-scan", false, "Request a threat scan of the recovered entities")
	groupsRecoverCmd.Flags().BoolVar(&defenderScan, "defender-scan", false, "Request a Windows Defender scan; only Windows entities are eligible")
	groupsRecoverCmd.Flags().Int64SliceVar(&entityIDs, "entity", nil, "Recover only these entity IDs (repeatable)")

	groupsReportCmd.Flags().StringVar(&reportDir, "out-dir", ".", "Directory the report is written to")
	groupsReportCmd.Flags().BoolVar(&reportThreats, "threats", false, "Include the group threat count")

	groupsCmd.AddCommand(groupsListCmd)
	groupsCmd.AddCommand(groupsShowCmd)
	groupsCmd.AddCommand(groupsStatusCmd)
	groupsCmd.AddCommand(groupsRecoverCmd)
	groupsCmd.AddCommand(groupsCleanupCmd)
	groupsCmd.AddCommand(groupsThreatsCmd)
	groupsCmd.AddCommand(groupsDeleteCmd)
	groupsCmd.AddCommand(groupsReportCmd)
	groupsCmd.AddCommand(groupsHistoryCmd)
}
