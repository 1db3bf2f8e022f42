package recovery

import (
	"context"

	"github.com/vexxhost/migratekit-cleanroom/internal/session"
	"github.com/vexxhost/migratekit-cleanroom/internal/target"
)

// Entities is the catalog of entities of one group. It is handed the group
// name, target and entity ids by the owning group and never reads the group.
type Entities struct {
	deps      Deps
	groupName string
	target    *target.Target
	ids       []int64
}

func (e *Entities) setIDs(ids []int64) {
	e.ids = append([]int64(nil), ids...)
}

// Exists scans the cached entity list. No request is made.
func (e *Entities) Exists(id int64) bool {
	for _, known := range e.ids {
		if known == id {
			return true
		}
	}
	return false
}

func (e *Entities) IDs() []int64 {
	return append([]int64(nil), e.ids...)
}

// Get fetches and decodes one entity of the group.
func (e *Entities) Get(ctx context.Context, id int64) (*Entity, error) {
	op := "get recovery entity"
	if e.groupName == "" {
		return nil, session.InvalidArgument(op, "recovery group name is empty")
	}
	if !e.Exists(id) {
		return nil, session.NotFound(op, "no recovery entity exists with id: %d", id)
	}

	entity := &Entity{
		deps:      e.deps,
		id:        id,
		groupName: e.groupName,
		target:    e.target,
	}
	if err := entity.Refresh(ctx); err != nil {
		return nil, err
	}
	return entity, nil
}
