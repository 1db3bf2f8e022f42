package recovery

import (
	"context"
	"net/http"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/vexxhost/migratekit-cleanroom/internal/session"
)

// Groups is the catalog of recovery groups keyed by name.
type Groups struct {
	deps   Deps
	groups map[string]int64
}

func NewGroups(ctx context.Context, deps Deps) (*Groups, error) {
	g := &Groups{deps: deps}
	if err := g.Refresh(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Groups) Refresh(ctx context.Context) error {
	op := "list recovery groups"
	resp, err := g.deps.Backend.Do(ctx, http.MethodGet, g.deps.Backend.Endpoints.RecoveryGroups, nil)
	if err != nil {
		return err
	}

	var body struct {
		RecoveryGroups *[]session.Ref `json:"recoveryGroups"`
	}
	if err := resp.Decode(op, &body); err != nil {
		return err
	}
	if body.RecoveryGroups == nil {
		return session.MissingKey(op, "recoveryGroups")
	}

	groups := make(map[string]int64, len(*body.RecoveryGroups))
	for _, ref := range *body.RecoveryGroups {
		groups[ref.Name] = ref.ID.Int64()
	}
	g.groups = groups

	log.WithField("count", len(groups)).Debug("Loaded recovery groups")
	return nil
}

// All returns a copy of the name to id map.
func (g *Groups) All() map[string]int64 {
	out := make(map[string]int64, len(g.groups))
	for k, v := range g.groups {
		out[k] = v
	}
	return out
}

// Names returns the group names in sorted order.
func (g *Groups) Names() []string {
	names := make([]string, 0, len(g.groups))
	for name := range g.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g *Groups) Has(name string) bool {
	_, ok := g.groups[name]
	return ok
}

func (g *Groups) ID(name string) (int64, bool) {
	id, ok := g.groups[name]
	return id, ok
}

// Get constructs the named group with its target and entity catalog.
func (g *Groups) Get(ctx context.Context, name string) (*Group, error) {
	if name == "" {
		return nil, session.InvalidArgument("get recovery group", "recovery group name is required")
	}
	id, ok := g.groups[name]
	if !ok {
		return nil, session.NotFound("get recovery group", "no recovery group exists with name: %s", name)
	}
	return NewGroup(ctx, g.deps, name, id)
}
