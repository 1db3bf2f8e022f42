// Package recovery drives cleanroom recovery groups and decodes the state of
// their entities.
package recovery

import (
	"github.com/vexxhost/migratekit-cleanroom/internal/catalog"
	"github.com/vexxhost/migratekit-cleanroom/internal/jobs"
	"github.com/vexxhost/migratekit-cleanroom/internal/session"
	"github.com/vexxhost/migratekit-cleanroom/internal/status"
)

// Deps are the collaborators shared by groups and the entities they own.
type Deps struct {
	Backend session.Backend
	Jobs    jobs.Source
	Catalog catalog.Resolver
	// Decode selects how multi-reason not-ready categories are read.
	Decode status.DecodeStrategy
}

// NewDeps wires the REST implementations of every collaborator.
func NewDeps(backend session.Backend, decode status.DecodeStrategy) Deps {
	return Deps{
		Backend: backend,
		Jobs:    jobs.NewClient(backend),
		Catalog: catalog.NewREST(backend),
		Decode:  decode,
	}
}
