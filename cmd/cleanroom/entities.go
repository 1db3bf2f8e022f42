package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vexxhost/migratekit-cleanroom/internal/progress"
	"github.com/vexxhost/migratekit-cleanroom/internal/recovery"
	"github.com/vexxhost/migratekit-cleanroom/internal/status"
)

var (
	waitInterval time.Duration
	waitTimeout  time.Duration
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Inspect the entities of a recovery group",
}

var entitiesShowCmd = &cobra.Command{
	Use:   "show <group> <entity-id>",
	Short: "Show one recovery entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid entity id %q: %w", args[1], err)
		}

		group, err := loadGroup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		entity, err := group.Entities().Get(cmd.Context(), id)
		if err != nil {
			return err
		}

		summary := entity.Summary()
		return render(os.Stdout, output, summary, func(t *tabwriter.Writer) {
			row(t, "ID", summary.ID)
			row(t, "Group", summary.Group)
			row(t, "Target", summary.Target)
			row(t, "Source VM", summary.SourceVM)
			row(t, "Destination VM", summary.DestinationVM)
			row(t, "Workload", summary.Workload)
			row(t, "Readiness", summary.Readiness)
			row(t, "Recovery status", summary.RecoveryStatus)
			row(t, "Validation status", summary.ValidationStatus)
			if summary.Validation != nil && summary.Validation.FailureReason != "" {
				row(t, "Validation failure", summary.Validation.FailureReason)
			}
			row(t, "Recovery point", fmt.Sprintf("%s (%d)", summary.RecoveryPoint.Category, summary.RecoveryPoint.Point))
			row(t, "Last recovery job", summary.LastRecoveryJob)
			if summary.LastRestoreJob != 0 {
				row(t, "Last restore job", summary.LastRestoreJob)
			}
		})
	},
}

// groupPoller re-reads the group and reports the listed status of each entity.
// A missing status reads as NO_STATUS.
func groupPoller(group *recovery.Group) progress.Poller {
	return func(ctx context.Context) (map[string]status.RecoveryStatus, error) {
		if err := group.Refresh(ctx); err != nil {
			return nil, err
		}
		out := make(map[string]status.RecoveryStatus)
		for name, state := range group.EntityStatus() {
			var code int64
			if state.RecoveryStatus != nil {
				code = *state.RecoveryStatus
			}
			out[name] = status.RecoveryStatus(code)
		}
		return out, nil
	}
}

var entitiesWaitCmd = &cobra.Command{
	Use:   "wait <group>",
	Short: "Wait until no entity of a group is in progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, err := loadGroup(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		result, err := progress.Wait(cmd.Context(), groupPoller(group), progress.WaitOptions{
			Interval:    waitInterval,
			Timeout:     waitTimeout,
			Description: fmt.Sprintf("Waiting for %s", group.Name()),
		})
		if err != nil {
			log.WithFields(log.Fields{
				"group_name": group.Name(),
				"pending":    result.Pending(),
			}).Warn("⚠️ Entities still in progress")
			return err
		}

		log.WithFields(log.Fields{
			"group_name": group.Name(),
			"entities":   len(result.Statuses),
			"polls":      result.Polls,
		}).Info("✅ No entity in progress")
		return render(os.Stdout, output, result.Statuses, func(t *tabwriter.Writer) {
			row(t, "ENTITY", "RECOVERY STATUS")
			for _, name := range slices.Sorted(maps.Keys(result.Statuses)) {
				row(t, name, result.Statuses[name])
			}
		})
	},
}

func init() {
	entitiesWaitCmd.Flags().DurationVar(&waitInterval, "interval", 15*time.Second, "Polling interval")
	entitiesWaitCmd.Flags().DurationVar(&waitTimeout, "timeout", 0, "Give up after this long (0 waits forever)")

	entitiesCmd.AddCommand(entitiesShowCmd)
	entitiesCmd.AddCommand(entitiesWaitCmd)
}
