package main

import (
	"errors"
	"fmt"
	"log/slog"

	log "github.com/sirupsen/logrus"

	"github.com/vexxhost/migratekit-cleanroom/internal/config"
	"github.com/vexxhost/migratekit-cleanroom/internal/database"
	"github.com/vexxhost/migratekit-cleanroom/internal/joblog"
	"github.com/vexxhost/migratekit-cleanroom/internal/recovery"
	"github.com/vexxhost/migratekit-cleanroom/internal/session"
	"github.com/vexxhost/migratekit-cleanroom/internal/status"
)

// app holds everything a command needs once the configuration is loaded.
type app struct {
	cfg     *config.Config
	path    string
	backend session.Backend
	deps    recovery.Deps
	ledger  database.Connection
	// tracker is nil without a ledger; Track then just runs the submission.
	tracker *joblog.Tracker
}

func newApp(path string, decode *status.DecodeStrategy) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if decode != nil {
		cfg.Readiness.Decode = decode.String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	strategy, err := cfg.DecodeStrategy()
	if err != nil {
		return nil, err
	}

	client, err := session.NewClient(cfg.SessionOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create backup server client: %w", err)
	}

	var requester session.Requester = client
	if cfg.Retry.Enabled {
		requester = session.NewRetrying(client, cfg.RetryPolicy())
	}

	a := &app{
		cfg:     cfg,
		path:    path,
		backend: session.NewBackend(requester, cfg.Endpoints),
	}
	a.deps = recovery.NewDeps(a.backend, strategy)

	if err := a.openLedger(); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"server":           cfg.Server.URL,
		"readiness_decode": strategy.String(),
		"retry":            cfg.Retry.Enabled,
		"ledger":           a.ledger.GetStatus(),
	}).Debug("Cleanroom client initialized")
	return a, nil
}

func (a *app) openLedger() error {
	if a.cfg.Ledger == nil {
		a.ledger = database.NewMemoryConnection()
		return nil
	}

	conn, err := database.NewMariaDBConnection(a.cfg.Ledger)
	if err != nil {
		return fmt.Errorf("failed to open submission ledger: %w", err)
	}
	if err := conn.AutoMigrate(); err != nil {
		conn.Close()
		return err
	}

	a.ledger = conn
	a.tracker = joblog.New(conn.SQLX(),
		joblog.NewLogrusHandler(log.StandardLogger()),
		joblog.NewEventHandler(conn.SQLX(), slog.LevelInfo),
	)
	return nil
}

func (a *app) hasLedger() bool {
	return a.tracker != nil
}

func (a *app) Close() error {
	var errs []error
	if a.tracker != nil {
		errs = append(errs, a.tracker.Close())
	}
	if a.ledger != nil {
		errs = append(errs, a.ledger.Close())
	}
	return errors.Join(errs...)
}
