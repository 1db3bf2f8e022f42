package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vexxhost/migratekit-cleanroom/internal/target"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Inspect recovery targets",
}

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recovery targets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, err := target.NewTargets(cmd.Context(), env.backend)
		if err != nil {
			return err
		}

		all := targets.All()
		return render(os.Stdout, output, all, func(t *tabwriter.Writer) {
			row(t, "NAME", "ID")
			for _, name := range targets.Names() {
				row(t, name, all[name])
			}
		})
	},
}

var targetsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one recovery target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, err := target.NewTargets(cmd.Context(), env.backend)
		if err != nil {
			return err
		}
		t, err := targets.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		summary := t.Summary()
		return render(os.Stdout, output, summary, func(w *tabwriter.Writer) {
			row(w, "ID", summary.ID)
			row(w, "Name", summary.Name)
			row(w, "Application type", summary.ApplicationType)
			row(w, "Vendor", summary.Vendor)
			row(w, "Policy", t.PolicyType())
			row(w, "Destination hypervisor", summary.DestinationHypervisor)
			row(w, "Access node", summary.AccessNode)
			if summary.VMPrefix != "" || summary.VMSuffix != "" {
				row(w, "VM name", fmt.Sprintf("%s<name>%s", summary.VMPrefix, summary.VMSuffix))
			}
			if summary.ExpirationTime != "" {
				row(w, "Expires", summary.ExpirationTime)
			}
		})
	},
}

var targetsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a recovery target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, err := target.NewTargets(cmd.Context(), env.backend)
		if err != nil {
			return err
		}
		t, err := targets.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		deleted, err := t.Delete(cmd.Context())
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("backend did not delete target %s", t.Name())
		}
		return nil
	},
}

func init() {
	targetsCmd.AddCommand(targetsListCmd)
	targetsCmd.AddCommand(targetsShowCmd)
	targetsCmd.AddCommand(targetsDeleteCmd)
}
