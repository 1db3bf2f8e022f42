package target

import (
	"context"
	"net/http"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vexxhost/migratekit-cleanroom/internal/session"
)

const cleanroomApplicationType = "CLEAN_ROOM"

// Targets is the catalog of cleanroom targets keyed by lower-cased name.
type Targets struct {
	backend session.Backend
	targets map[string]int64
}

// NewTargets loads the catalog.
func NewTargets(ctx context.Context, backend session.Backend) (*Targets, error) {
	t := &Targets{backend: backend}
	if err := t.Refresh(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Refresh reloads all targets, keeping only cleanroom ones.
func (t *Targets) Refresh(ctx context.Context) error {
	op := "list targets"
	resp, err := t.backend.Do(ctx, http.MethodGet, t.backend.Endpoints.RecoveryTargets, nil)
	if err != nil {
		return err
	}

	var body struct {
		RecoveryTargets *[]struct {
			ID              session.FlexInt `json:"id"`
			Name            string          `json:"name"`
			ApplicationType string          `json:"applicationType"`
		} `json:"recoveryTargets"`
	}
	if err := resp.Decode(op, &body); err != nil {
		return err
	}
	if body.RecoveryTargets == nil {
		return session.MissingKey(op, "recoveryTargets")
	}

	targets := make(map[string]int64, len(*body.RecoveryTargets))
	for _, rt := range *body.RecoveryTargets {
		if rt.ApplicationType != cleanroomApplicationType {
			continue
		}
		targets[strings.ToLower(rt.Name)] = rt.ID.Int64()
	}
	t.targets = targets

	log.WithField("count", len(targets)).Debug("Loaded cleanroom targets")
	return nil
}

// All returns a copy of the name to id map.
func (t *Targets) All() map[string]int64 {
	out := make(map[string]int64, len(t.targets))
	for k, v := range t.targets {
		out[k] = v
	}
	return out
}

// Names returns the target names in sorted order.
func (t *Targets) Names() []string {
	names := make([]string, 0, len(t.targets))
	for name := range t.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Targets) Has(name string) bool {
	_, ok := t.targets[strings.ToLower(name)]
	return ok
}

// ID looks up the id of a target by name, case-insensitively.
func (t *Targets) ID(name string) (int64, bool) {
	id, ok := t.targets[strings.ToLower(name)]
	return id, ok
}

// Get constructs the named target.
func (t *Targets) Get(ctx context.Context, name string) (*Target, error) {
	if name == "" {
		return nil, session.InvalidArgument("get target", "target name is required")
	}
	name = strings.ToLower(name)
	id, ok := t.targets[name]
	if !ok {
		return nil, session.NotFound("get target", "no target exists with name: %s", name)
	}
	return New(ctx, t.backend, name, id)
}

// Create submits a new runbook target and returns the created reference.
func (t *Targets) Create(ctx context.Context, req *CreateRequest) (session.Ref, error) {
	op := "create target"
	if req == nil {
		return session.Ref{}, session.InvalidArgument(op, "payload is required")
	}

	resp, err := t.backend.Do(ctx, http.MethodPost, t.backend.Endpoints.CreateRunbookTarget, req)
	if err != nil {
		return session.Ref{}, err
	}

	var body struct {
		ID   *session.FlexInt `json:"id"`
		Name string           `json:"name"`
	}
	if err := resp.Decode(op, &body); err != nil {
		return session.Ref{}, err
	}
	if body.ID == nil {
		return session.Ref{}, session.MissingKey(op, "id")
	}

	ref := session.Ref{ID: *body.ID, Name: body.Name}
	log.WithFields(log.Fields{
		"target_id":   ref.ID,
		"target_name": ref.Name,
	}).Info("✅ Cleanroom target created")
	return ref, nil
}
