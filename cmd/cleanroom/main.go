package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/vexxhost/migratekit-cleanroom/internal/status"
)

type ReadinessDecodeOpts enumflag.Flag

const (
	Bitmask ReadinessDecodeOpts = iota
	Strict
	FirstBit
)

var ReadinessDecodeOptsIds = map[ReadinessDecodeOpts][]string{
	Bitmask:  {"bitmask"},
	Strict:   {"strict"},
	FirstBit: {"first-bit"},
}

// Strategy maps the flag onto the status decoder.
func (o ReadinessDecodeOpts) Strategy() status.DecodeStrategy {
	switch o {
	case Strict:
		return status.DecodeStrict
	case FirstBit:
		return status.DecodeFirstBit
	default:
		return status.DecodeBitmask
	}
}

type OutputOpts enumflag.Flag

const (
	Table OutputOpts = iota
	JSON
)

var OutputOptsIds = map[OutputOpts][]string{
	Table: {"table"},
	JSON:  {"json"},
}

var (
	debug           bool
	configPath      string
	readinessDecode ReadinessDecodeOpts
	output          OutputOpts

	env *app
)

var rootCmd = &cobra.Command{
	Use:           "cleanroom",
	Short:         "Cleanroom recovery toolkit for backup server recovery groups",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if debug {
			log.SetLevel(log.DebugLevel)
		}

		var override *status.DecodeStrategy
		if cmd.Flags().Changed("readiness-decode") {
			strategy := readinessDecode.Strategy()
			override = &strategy
		}

		var err error
		env, err = newApp(configPath, override)
		if err != nil {
			log.WithError(err).Error("Failed to initialize cleanroom client")
			return err
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if env == nil {
			return nil
		}
		return env.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the configuration file (default ~/.cleanroom.yaml)")

	rootCmd.PersistentFlags().Var(enumflag.New(&readinessDecode, "readiness-decode", ReadinessDecodeOptsIds, enumflag.EnumCaseInsensitive), "readiness-decode", "How multi-bit not-ready categories are decoded (bitmask, strict, first-bit)")
	rootCmd.PersistentFlags().VarP(enumflag.New(&output, "output", OutputOptsIds, enumflag.EnumCaseInsensitive), "output", "o", "Output format (table, json)")

	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(commserveCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.WithError(err).Error("❌ Command failed")
		os.Exit(1)
	}
}
