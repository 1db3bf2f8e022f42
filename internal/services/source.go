package services

import (
	"context"
	"fmt"
	"time"

	"github.com/vexxhost/migratekit-cleanroom/internal/recovery"
)

// RecoverySource reads snapshots through the recovery package.
type RecoverySource struct {
	deps recovery.Deps
}

func NewRecoverySource(deps recovery.Deps) *RecoverySource {
	return &RecoverySource{deps: deps}
}

func (r *RecoverySource) Groups(ctx context.Context) (map[string]int64, error) {
	groups, err := recovery.NewGroups(ctx, r.deps)
	if err != nil {
		return nil, err
	}
	return groups.All(), nil
}

func (r *RecoverySource) Snapshot(ctx context.Context, name string, id int64) (*GroupSnapshot, error) {
	group, err := recovery.NewGroup(ctx, r.deps, name, id)
	if err != nil {
		return nil, err
	}

	entities := group.Entities()
	summaries := make([]recovery.EntitySummary, 0, len(entities.IDs()))
	for _, entityID := range entities.IDs() {
		entity, err := entities.Get(ctx, entityID)
		if err != nil {
			return nil, fmt.Errorf("failed to load entity %d of %s: %w", entityID, name, err)
		}
		summaries = append(summaries, entity.Summary())
	}

	return &GroupSnapshot{
		Group:       group.Summary(),
		Entities:    summaries,
		RefreshedAt: time.Now(),
	}, nil
}
