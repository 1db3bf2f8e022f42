package main

import (
	"context"
	"os"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vexxhost/migratekit-cleanroom/internal/api"
	"github.com/vexxhost/migratekit-cleanroom/internal/config"
	"github.com/vexxhost/migratekit-cleanroom/internal/services"
)

var (
	serveListen string
	watchConfig bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve read-only recovery group snapshots over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := env.cfg.StatusServer

		listen := cfg.Listen
		if serveListen != "" {
			listen = serveListen
		}

		snapshots := services.NewSnapshotService(services.NewRecoverySource(env.deps), services.SnapshotConfig{
			Schedule:    cfg.RefreshSchedule,
			Groups:      cfg.Groups,
			Concurrency: cfg.Concurrency,
		})
		if err := snapshots.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := snapshots.Stop(stopCtx); err != nil {
				log.WithError(err).Warn("Snapshot refresh did not stop cleanly")
			}
		}()

		if watchConfig {
			path := env.path
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := os.Stat(path); err == nil {
				if err := config.Watch(ctx, path, func(next *config.Config) {
					logReload(cfg, next.StatusServer)
				}); err != nil {
					log.WithError(err).Warn("⚠️ Configuration changes will not be detected")
				}
			}
		}

		server, err := api.NewServer(&api.Config{
			Listen:    listen,
			Debug:     debug,
			Snapshots: snapshots,
			Ledger:    env.ledger,
		})
		if err != nil {
			return err
		}
		return server.Start(ctx)
	},
}

// logReload reports status server settings that changed on disk. They apply
// on the next start.
func logReload(current, next config.StatusServerConfig) {
	fields := log.Fields{}
	if current.Listen != next.Listen {
		fields["listen"] = next.Listen
	}
	if current.RefreshSchedule != next.RefreshSchedule {
		fields["refresh_schedule"] = next.RefreshSchedule
	}
	if current.Concurrency != next.Concurrency {
		fields["concurrency"] = next.Concurrency
	}
	if !slices.Equal(current.Groups, next.Groups) {
		fields["groups"] = next.Groups
	}

	if len(fields) == 0 {
		log.Info("🔄 Configuration reloaded, status server settings unchanged")
		return
	}
	log.WithFields(fields).Warn("🔄 Status server settings changed on disk, restart to apply")
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (overrides status_server.listen)")
	serveCmd.Flags().BoolVar(&watchConfig, "watch-config", true, "Log changes to the configuration file while serving")
}
