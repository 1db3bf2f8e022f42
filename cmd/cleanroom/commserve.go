package main

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vexxhost/migratekit-cleanroom/internal/config"
	"github.com/vexxhost/migratekit-cleanroom/internal/csrecovery"
)

var (
	commserveGUID   string
	addressPrefixes string
	forgetAddress   bool
	showPassword    bool
)

var commserveCmd = &cobra.Command{
	Use:   "commserve",
	Short: "Stage uploaded CommServe backupsets in a cleanroom VM",
}

func loadCommServe(cmd *cobra.Command) (*csrecovery.CommServeRecovery, error) {
	return csrecovery.New(cmd.Context(), env.backend, commserveGUID)
}

func parseRequestID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid request id %q", arg)
	}
	return id, nil
}

var commserveLicenseCmd = &cobra.Command{
	Use:   "license",
	Short: "Show the recovery license and retention quotas",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := loadCommServe(cmd)
		if err != nil {
			return err
		}
		license, err := r.LicenseDetails(cmd.Context())
		if err != nil {
			return err
		}
		retention, err := r.RetentionDetails(cmd.Context())
		if err != nil {
			return err
		}

		result := map[string]any{"license": license, "retention": retention}
		return render(os.Stdout, output, result, func(t *tabwriter.Writer) {
			row(t, "Licensed", yesNo(license.Licensed))
			row(t, "Recoveries", fmt.Sprintf("%d/%d", license.UsedRecoveries, license.MaxRecoveries))
			row(t, "Retains", fmt.Sprintf("%d/%d", retention.ConsumedRetains, retention.MaxRetains))
		})
	},
}

var commserveBackupsetsCmd = &cobra.Command{
	Use:   "backupsets",
	Short: "List uploaded CommServe backupsets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := loadCommServe(cmd)
		if err != nil {
			return err
		}
		sets, err := r.Backupsets(cmd.Context())
		if err != nil {
			return err
		}

		return render(os.Stdout, output, sets, func(t *tabwriter.Writer) {
			row(t, "NAME", "ID", "SIZE", "BACKUP TIME", "RETAINED")
			for _, name := range slices.Sorted(maps.Keys(sets)) {
				s := sets[name]
				row(t, name, s.ID, s.Size, s.BackupTime.Format(time.RFC3339), yesNo(s.ManuallyRetained))
			}
		})
	},
}

var commserveRequestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List active CommServe recovery requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := loadCommServe(cmd)
		if err != nil {
			return err
		}
		requests, err := r.ActiveRequests(cmd.Context())
		if err != nil {
			return err
		}
		if !showPassword {
			maskPasswords(requests)
		}

		return render(os.Stdout, output, requests, func(t *tabwriter.Writer) {
			row(t, "ID", "BACKUPSET", "REQUESTOR", "STATUS", "COMMAND CENTER")
			for _, id := range slices.Sorted(maps.Keys(requests)) {
				req := requests[id]
				url := "-"
				if req.VM != nil {
					url = req.VM.CommandCenterURL
				}
				row(t, id, req.Backupset, req.Requestor, req.Status, url)
			}
		})
	},
}

// maskPasswords hides staged VM passwords in place.
func maskPasswords(requests map[int64]csrecovery.Request) {
	for id, req := range requests {
		if req.VM == nil {
			continue
		}
		vm := *req.VM
		vm.Password = "********"
		req.VM = &vm
		requests[id] = req
	}
}

var commserveStartCmd = &cobra.Command{
	Use:   "start <backupset>",
	Short: "Request a cleanroom VM staging a backupset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := loadCommServe(cmd)
		if err != nil {
			return err
		}
		id, err := r.StartRecovery(cmd.Context(), args[0], csrecovery.StartOptions{
			AddressPrefixes: addressPrefixes,
			ForgetAddress:   forgetAddress,
		})
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var commserveExtendCmd = &cobra.Command{
	Use:   "extend <request-id>",
	Short: "Extend the VM reservation of a request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRequestID(args[0])
		if err != nil {
			return err
		}
		r, err := loadCommServe(cmd)
		if err != nil {
			return err
		}
		return r.ExtendReservation(cmd.Context(), id)
	},
}

var commserveCloseCmd = &cobra.Command{
	Use:   "close <request-id>",
	Short: "Close a request and release its VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRequestID(args[0])
		if err != nil {
			return err
		}
		r, err := loadCommServe(cmd)
		if err != nil {
			return err
		}
		return r.CloseReservation(cmd.Context(), id)
	},
}

func init() {
	commserveCmd.PersistentFlags().StringVar(&commserveGUID, "guid", config.GetEnvOrDefault("CLEANROOM_COMMSERVE_GUID", ""), "GUID of the CommServe whose backupsets are staged")
	commserveStartCmd.Flags().StringVar(&addressPrefixes, "address-prefixes", "*", "Client address prefixes allowed to reach the VM")
	commserveStartCmd.Flags().BoolVar(&forgetAddress, "forget-address", false, "Do not remember the allowed addresses for later requests")
	commserveRequestsCmd.Flags().BoolVar(&showPassword, "show-password", false, "Print VM passwords instead of masking them")

	commserveCmd.AddCommand(commserveLicenseCmd)
	commserveCmd.AddCommand(commserveBackupsetsCmd)
	commserveCmd.AddCommand(commserveRequestsCmd)
	commserveCmd.AddCommand(commserveStartCmd)
	commserveCmd.AddCommand(commserveExtendCmd)
	commserveCmd.AddCommand(commserveCloseCmd)
}
