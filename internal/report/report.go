// Package report exports the state of a recovery group as a JSON document.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gosimple/slug"
	log "github.com/sirupsen/logrus"

	"github.com/vexxhost/migratekit-cleanroom/internal/database"
	"github.com/vexxhost/migratekit-cleanroom/internal/recovery"
)

// Report is the exported state of one recovery group.
type Report struct {
	GeneratedAt  time.Time                `json:"generated_at"`
	Group        recovery.GroupSummary    `json:"group"`
	Entities     []recovery.EntitySummary `json:"entities"`
	ThreatsCount *int64                   `json:"threats_count,omitempty"`
	Submissions  []database.Submission    `json:"submissions,omitempty"`
}

// Options selects the optional parts of a report.
type Options struct {
	Threats bool
	Now     func() time.Time
}

// Build loads every entity of group. Any entity failure fails the report.
func Build(ctx context.Context, group *recovery.Group, opts Options) (*Report, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	entities := group.Entities()
	r := &Report{
		GeneratedAt: now().UTC(),
		Group:       group.Summary(),
		Entities:    make([]recovery.EntitySummary, 0, len(entities.IDs())),
	}
	for _, id := range entities.IDs() {
		entity, err := entities.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load entity %d: %w", id, err)
		}
		r.Entities = append(r.Entities, entity.Summary())
	}

	if opts.Threats {
		count, err := group.ThreatsCount(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read threats count: %w", err)
		}
		r.ThreatsCount = &count
	}
	return r, nil
}

// FileName is the slug of the group name plus a UTC timestamp.
func FileName(group string, at time.Time) string {
	name := slug.Make(group)
	if name == "" {
		name = "recovery-group"
	}
	return fmt.Sprintf("%s-%s.json", name, at.UTC().Format("20060102T150405Z"))
}

// Write stores r under dir and returns the file path.
func Write(dir string, r *Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	path := filepath.Join(dir, FileName(r.Group.Name, r.GeneratedAt))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report %s: %w", path, err)
	}

	log.WithFields(log.Fields{
		"group_name": r.Group.Name,
		"entities":   len(r.Entities),
		"path":       path,
	}).Info("📄 Recovery group report written")
	return path, nil
}
