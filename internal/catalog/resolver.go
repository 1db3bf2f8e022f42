// Package catalog resolves clients, agents and instances of the backup
// server by name.
package catalog

import (
	"context"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vexxhost/migratekit-cleanroom/internal/session"
)

type Client struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Agent struct {
	ClientID int64  `json:"client_id"`
	ID       int64  `json:"id"`
	Name     string `json:"name"`
}

type Instance struct {
	ClientID int64  `json:"client_id"`
	AgentID  int64  `json:"agent_id"`
	ID       int64  `json:"id"`
	Name     string `json:"name"`
}

// Resolver looks up catalog objects. Every call reads through to the server.
type Resolver interface {
	Client(ctx context.Context, name string) (Client, error)
	Agent(ctx context.Context, client Client, name string) (Agent, error)
	Instance(ctx context.Context, agent Agent, name string) (Instance, error)
}

// REST resolves catalog objects over the backup server REST API.
type REST struct {
	backend session.Backend
}

func NewREST(backend session.Backend) *REST {
	return &REST{backend: backend}
}

func (r *REST) get(ctx context.Context, op, path string, out any) error {
	resp, err := r.backend.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return resp.Decode(op, out)
}

func (r *REST) Client(ctx context.Context, name string) (Client, error) {
	op := "resolve client"
	if name == "" {
		return Client{}, session.InvalidArgument(op, "client name is required")
	}

	var body struct {
		ClientProperties *[]struct {
			Client struct {
				ClientEntity struct {
					ClientID   session.FlexInt `json:"clientId"`
					ClientName string          `json:"clientName"`
				} `json:"clientEntity"`
			} `json:"client"`
		} `json:"clientProperties"`
	}
	if err := r.get(ctx, op, session.Path(r.backend.Endpoints.ClientByName, name), &body); err != nil {
		return Client{}, err
	}
	if body.ClientProperties == nil {
		return Client{}, session.MissingKey(op, "clientProperties")
	}
	for _, p := range *body.ClientProperties {
		entity := p.Client.ClientEntity
		if strings.EqualFold(entity.ClientName, name) {
			log.WithFields(log.Fields{"client": entity.ClientName, "client_id": entity.ClientID}).Debug("Resolved client")
			return Client{ID: entity.ClientID.Int64(), Name: entity.ClientName}, nil
		}
	}
	return Client{}, session.NotFound(op, "no client exists with name: %s", name)
}

func (r *REST) Agent(ctx context.Context, client Client, name string) (Agent, error) {
	op := "resolve agent"
	if name == "" {
		return Agent{}, session.InvalidArgument(op, "agent name is required")
	}

	var body struct {
		AgentProperties *[]struct {
			IdaEntity struct {
				AppName       string          `json:"appName"`
				ApplicationID session.FlexInt `json:"applicationId"`
			} `json:"idaEntity"`
		} `json:"agentProperties"`
	}
	if err := r.get(ctx, op, session.Path(r.backend.Endpoints.ClientAgents, client.ID), &body); err != nil {
		return Agent{}, err
	}
	if body.AgentProperties == nil {
		return Agent{}, session.MissingKey(op, "agentProperties")
	}
	for _, p := range *body.AgentProperties {
		if strings.EqualFold(p.IdaEntity.AppName, name) {
			return Agent{ClientID: client.ID, ID: p.IdaEntity.ApplicationID.Int64(), Name: p.IdaEntity.AppName}, nil
		}
	}
	return Agent{}, session.NotFound(op, "agent %s is not installed on client %s", name, client.Name)
}

func (r *REST) Instance(ctx context.Context, agent Agent, name string) (Instance, error) {
	op := "resolve instance"
	if name == "" {
		return Instance{}, session.InvalidArgument(op, "instance name is required")
	}

	var body struct {
		InstanceProperties *[]struct {
			Instance struct {
				InstanceID   session.FlexInt `json:"instanceId"`
				InstanceName string          `json:"instanceName"`
			} `json:"instance"`
		} `json:"instanceProperties"`
	}
	if err := r.get(ctx, op, session.Path(r.backend.Endpoints.AgentInstances, agent.ClientID, agent.ID), &body); err != nil {
		return Instance{}, err
	}
	if body.InstanceProperties == nil {
		return Instance{}, session.MissingKey(op, "instanceProperties")
	}
	for _, p := range *body.InstanceProperties {
		if strings.EqualFold(p.Instance.InstanceName, name) {
			return Instance{
				ClientID: agent.ClientID,
				AgentID:  agent.ID,
				ID:       p.Instance.InstanceID.Int64(),
				Name:     p.Instance.InstanceName,
			}, nil
		}
	}
	return Instance{}, session.NotFound(op, "instance %s does not exist under agent %s", name, agent.Name)
}
