package recovery

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vexxhost/migratekit-cleanroom/internal/catalog"
	"github.com/vexxhost/migratekit-cleanroom/internal/jobs"
	"github.com/vexxhost/migratekit-cleanroom/internal/status"
	"github.com/vexxhost/migratekit-cleanroom/internal/testutil"
)

const (
	groupID    = 5
	groupName  = "finance"
	groupPath  = "V4/recoverygroup/5"
	targetID   = 11
	targetName = "finance-Target"
)

func targetRef() map[string]any {
	return map[string]any{"id": targetID, "name": targetName}
}

func entityRow(id int, name string, recoveryStatus, category int, osType any) map[string]any {
	row := map[string]any{
		"id":                             id,
		"recoveryStatus":                 recoveryStatus,
		"recoveryStatusNotReadyCategory": category,
		"target":                         targetRef(),
		"recoveryConfiguration": map[string]any{
			"configuration": map[string]any{
				"azure": map[string]any{
					"resourceGroup":  "cr-rg",
					"storageAccount": "crstorage",
					"overrideReplicationOptions": map[string]any{
						"securityGroup":  map[string]any{"id": "nsg-7"},
						"virtualNetwork": map[string]any{"networkName": "cr-vnet"},
					},
				},
			},
		},
	}
	if name != "" {
		row["name"] = name
	}
	if osType != nil {
		row["osType"] = osType
	}
	return row
}

func groupPayload(threatScan, defender bool, entities ...map[string]any) map[string]any {
	if entities == nil {
		entities = []map[string]any{}
	}
	return map[string]any{
		"recoveryGroup": map[string]any{
			"id":   groupID,
			"name": groupName,
			"threatScan": map[string]any{
				"enableThreatScan":          threatScan,
				"enableWindowsDefenderScan": defender,
			},
			"advancedOptions": map[string]any{
				"enableAutoScale":         true,
				"powerOffVmAfterRecovery": false,
			},
		},
		"entities": entities,
	}
}

func registerTarget(fake *testutil.FakeBackend, policy string) {
	fake.JSON(http.MethodGet, "V4/recoverytarget/11", map[string]any{
		"entity": map[string]any{
			"applicationType":       "CLEAN_ROOM",
			"destinationHypervisor": map[string]any{"name": "finance-Target-Hypervisor"},
			"policyType":            policy,
		},
		"accessNode": map[string]any{"type": "Automatic"},
	})
	fake.JSON(http.MethodGet, "V4/runbook/target/11", map[string]any{
		"general": map[string]any{"name": targetName, "vendor": policy},
	})
}

type stubJobs map[string][]jobs.Phase

func (s stubJobs) Phases(ctx context.Context, jobID int64) (map[string][]jobs.Phase, error) {
	return s, nil
}

type stubCatalog struct {
	clients   []string
	agents    []string
	instances []string
}

func (s *stubCatalog) Client(ctx context.Context, name string) (catalog.Client, error) {
	s.clients = append(s.clients, name)
	return catalog.Client{ID: 31, Name: name}, nil
}

func (s *stubCatalog) Agent(ctx context.Context, client catalog.Client, name string) (catalog.Agent, error) {
	s.agents = append(s.agents, name)
	return catalog.Agent{ClientID: client.ID, ID: 106, Name: name}, nil
}

func (s *stubCatalog) Instance(ctx context.Context, agent catalog.Agent, name string) (catalog.Instance, error) {
	s.instances = append(s.instances, name)
	return catalog.Instance{ClientID: agent.ClientID, AgentID: agent.ID, ID: 5, Name: name}, nil
}

func testDeps(fake *testutil.FakeBackend) Deps {
	deps := NewDeps(fake.Backend(), status.DecodeBitmask)
	deps.Jobs = stubJobs{}
	deps.Catalog = &stubCatalog{}
	return deps
}

// newTestGroup serves a group payload with an Azure target and loads it by id.
func newTestGroup(t *testing.T, fake *testutil.FakeBackend, payload map[string]any) *Group {
	t.Helper()
	return newTestGroupWith(t, fake, testDeps(fake), payload)
}

func newTestGroupWith(t *testing.T, fake *testutil.FakeBackend, deps Deps, payload map[string]any) *Group {
	t.Helper()
	fake.JSON(http.MethodGet, groupPath, payload)
	registerTarget(fake, "AZURE_V2")

	g, err := NewGroup(context.Background(), deps, groupName, groupID)
	require.NoError(t, err)
	return g
}
