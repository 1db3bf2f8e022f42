// Package services holds the long running pieces behind `cleanroom serve`.
package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vexxhost/migratekit-cleanroom/internal/recovery"
)

// GroupSnapshot is the published, read-only view of one recovery group.
type GroupSnapshot struct {
	Group       recovery.GroupSummary    `json:"group"`
	Entities    []recovery.EntitySummary `json:"entities"`
	RefreshedAt time.Time                `json:"refreshed_at"`
	Error       string                   `json:"error,omitempty"`
}

// Source loads group data from the backup server.
type Source interface {
	Groups(ctx context.Context) (map[string]int64, error)
	Snapshot(ctx context.Context, name string, id int64) (*GroupSnapshot, error)
}

// SnapshotConfig configures a SnapshotService
type SnapshotConfig struct {
	// Schedule is a cron expression with seconds, or a descriptor like "@every 1m".
	Schedule string
	// Groups restricts refreshes to these names; empty means every group.
	Groups      []string
	Concurrency int
}

// SnapshotService refreshes group snapshots on a schedule and serves the
// latest ones to readers.
type SnapshotService struct {
	source Source
	config SnapshotConfig
	cron   *cron.Cron

	mu          sync.RWMutex
	snapshots   map[string]*GroupSnapshot
	lastRefresh time.Time
	lastError   error

	runningMutex sync.Mutex
	isRunning    bool
	entryID      cron.EntryID
	cancel       context.CancelFunc
}

func NewSnapshotService(source Source, config SnapshotConfig) *SnapshotService {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	return &SnapshotService{
		source:    source,
		config:    config,
		cron:      cron.New(cron.WithSeconds()),
		snapshots: make(map[string]*GroupSnapshot),
	}
}

// Start runs one refresh and then schedules the rest.
func (s *SnapshotService) Start(ctx context.Context) error {
	s.runningMutex.Lock()
	defer s.runningMutex.Unlock()

	if s.isRunning {
		return fmt.Errorf("snapshot service is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	entryID, err := s.cron.AddFunc(s.config.Schedule, func() {
		if err := s.Refresh(runCtx); err != nil {
			log.WithError(err).Warn("Scheduled snapshot refresh failed")
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to schedule snapshot refresh %q: %w", s.config.Schedule, err)
	}

	if err := s.Refresh(runCtx); err != nil {
		log.WithError(err).Warn("Initial snapshot refresh failed")
	}

	s.cron.Start()
	s.entryID = entryID
	s.cancel = cancel
	s.isRunning = true

	log.WithFields(log.Fields{
		"schedule": s.config.Schedule,
		"groups":   len(s.config.Groups),
	}).Info("🚀 Snapshot service started")
	return nil
}

// Stop halts scheduling and waits for a running refresh until ctx is done.
func (s *SnapshotService) Stop(ctx context.Context) error {
	s.runningMutex.Lock()
	defer s.runningMutex.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cron.Remove(s.entryID)
	cronCtx := s.cron.Stop()
	s.cancel()
	s.isRunning = false

	select {
	case <-cronCtx.Done():
		log.Info("🛑 Snapshot service stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for snapshot refresh to finish: %w", ctx.Err())
	}
}

// Refresh reloads every selected group. A failing group keeps its previous
// data with Error set; only failing to list groups is returned.
func (s *SnapshotService) Refresh(ctx context.Context) error {
	start := time.Now()

	all, err := s.source.Groups(ctx)
	if err != nil {
		s.mu.Lock()
		s.lastError = err
		s.mu.Unlock()
		return fmt.Errorf("failed to list recovery groups: %w", err)
	}

	selected := s.selectGroups(all)

	var resultsMu sync.Mutex
	results := make(map[string]*GroupSnapshot, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for name, id := range selected {
		g.Go(func() error {
			snap, err := s.source.Snapshot(gctx, name, id)
			if err != nil {
				log.WithError(err).WithField("group_name", name).Warn("Failed to refresh recovery group snapshot")
				snap = s.failedSnapshot(name, id, err)
			}
			resultsMu.Lock()
			results[name] = snap
			resultsMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	s.snapshots = results
	s.lastRefresh = time.Now()
	s.lastError = nil
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"groups":   len(results),
		"duration": time.Since(start).String(),
	}).Debug("Refreshed recovery group snapshots")
	return nil
}

func (s *SnapshotService) selectGroups(all map[string]int64) map[string]int64 {
	if len(s.config.Groups) == 0 {
		return all
	}
	selected := make(map[string]int64, len(s.config.Groups))
	for _, name := range s.config.Groups {
		if id, ok := all[name]; ok {
			selected[name] = id
			continue
		}
		log.WithField("group_name", name).Warn("Configured recovery group does not exist")
	}
	return selected
}

func (s *SnapshotService) failedSnapshot(name string, id int64, err error) *GroupSnapshot {
	s.mu.RLock()
	prev, ok := s.snapshots[name]
	s.mu.RUnlock()

	snap := &GroupSnapshot{
		Group:       recovery.GroupSummary{ID: id, Name: name},
		RefreshedAt: time.Now(),
		Error:       err.Error(),
	}
	if ok {
		snap.Group = prev.Group
		snap.Entities = prev.Entities
		snap.RefreshedAt = prev.RefreshedAt
	}
	return snap
}

// Snapshot returns the latest snapshot of a group.
func (s *SnapshotService) Snapshot(name string) (*GroupSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[name]
	return snap, ok
}

// Snapshots returns the latest snapshots sorted by group name.
func (s *SnapshotService) Snapshots() []*GroupSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*GroupSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group.Name < out[j].Group.Name })
	return out
}

// ServiceStatus reports scheduling state for the health endpoint.
type ServiceStatus struct {
	Running     bool      `json:"running"`
	Schedule    string    `json:"schedule"`
	Groups      int       `json:"groups"`
	LastRefresh time.Time `json:"last_refresh"`
	LastError   string    `json:"last_error,omitempty"`
}

func (s *SnapshotService) Status() ServiceStatus {
	s.runningMutex.Lock()
	running := s.isRunning
	s.runningMutex.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	st := ServiceStatus{
		Running:     running,
		Schedule:    s.config.Schedule,
		Groups:      len(s.snapshots),
		LastRefresh: s.lastRefresh,
	}
	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}
	return st
}
