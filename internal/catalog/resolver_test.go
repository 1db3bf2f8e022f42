package catalog

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexxhost/migratekit-cleanroom/internal/session"
	"github.com/vexxhost/migratekit-cleanroom/internal/testutil"
)

func TestResolveChain(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	fake.JSON(http.MethodGet, "Client/byName(clientName='azure-hv')", map[string]any{
		"clientProperties": []map[string]any{
			{"client": map[string]any{"clientEntity": map[string]any{"clientId": "31", "clientName": "Azure-HV"}}},
		},
	})
	fake.JSON(http.MethodGet, "Agent", map[string]any{
		"agentProperties": []map[string]any{
			{"idaEntity": map[string]any{"appName": "File System", "applicationId": 33}},
			{"idaEntity": map[string]any{"appName": "Virtual Server", "applicationId": 106}},
		},
	})
	fake.JSON(http.MethodGet, "Instance", map[string]any{
		"instanceProperties": []map[string]any{
			{"instance": map[string]any{"instanceId": 5, "instanceName": "Azure Resource Manager"}},
		},
	})

	r := NewREST(fake.Backend())
	ctx := context.Background()

	client, err := r.Client(ctx, "azure-hv")
	require.NoError(t, err)
	assert.Equal(t, Client{ID: 31, Name: "Azure-HV"}, client)

	agent, err := r.Agent(ctx, client, "virtual server")
	require.NoError(t, err)
	assert.Equal(t, Agent{ClientID: 31, ID: 106, Name: "Virtual Server"}, agent)

	instance, err := r.Instance(ctx, agent, "Azure Resource Manager")
	require.NoError(t, err)
	assert.Equal(t, Instance{ClientID: 31, AgentID: 106, ID: 5, Name: "Azure Resource Manager"}, instance)

	_, err = r.Instance(ctx, agent, "Amazon Web Services")
	assert.ErrorIs(t, err, session.ErrNotFound)

	_, err = r.Agent(ctx, client, "Exchange Mailbox")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestResolveFailures(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	fake.JSON(http.MethodGet, "Client/byName(clientName='ghost')", map[string]any{"errorCode": 0})

	r := NewREST(fake.Backend())

	_, err := r.Client(context.Background(), "ghost")
	assert.ErrorIs(t, err, session.ErrResponse)
	assert.Contains(t, err.Error(), "missing key: clientProperties")

	_, err = r.Client(context.Background(), "")
	assert.ErrorIs(t, err, session.ErrInvalidArgument)
	assert.Equal(t, 1, fake.Total())
}
