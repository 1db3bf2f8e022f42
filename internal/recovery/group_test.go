package recovery

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexxhost/migratekit-cleanroom/internal/session"
	"github.com/vexxhost/migratekit-cleanroom/internal/status"
	"github.com/vexxhost/migratekit-cleanroom/internal/testutil"
)

func TestGroupsCatalog(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	fake.JSON(http.MethodGet, "V4/recoverygroups", map[string]any{
		"recoveryGroups": []map[string]any{
			{"id": groupID, "name": groupName},
			{"id": "9", "name": "Payroll"},
		},
	})
	fake.JSON(http.MethodGet, groupPath, groupPayload(false, false, entityRow(101, "vm1", 2, 0, 0)))
	registerTarget(fake, "AZURE_V2")

	groups, err := NewGroups(context.Background(), testDeps(fake))
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"finance": 5, "Payroll": 9}, groups.All())
	assert.Equal(t, []string{"Payroll", "finance"}, groups.Names())
	assert.True(t, groups.Has("Payroll"))
	assert.False(t, groups.Has("payroll"))

	_, err = groups.Get(context.Background(), "")
	assert.ErrorIs(t, err, session.ErrInvalidArgument)

	_, err = groups.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Equal(t, 1, fake.Total())

	g, err := groups.Get(context.Background(), groupName)
	require.NoError(t, err)
	assert.Equal(t, int64(groupID), g.ID())
}

func TestGroupsMissingKey(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	fake.JSON(http.MethodGet, "V4/recoverygroups", map[string]any{"errorCode": 0})

	_, err := NewGroups(context.Background(), testDeps(fake))
	assert.ErrorIs(t, err, session.ErrResponse)
	assert.Contains(t, err.Error(), "missing key: recoveryGroups")
}

func TestNewGroupLooksUpIDAndTarget(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	fake.JSON(http.MethodGet, "V4/recoverygroups", map[string]any{
		"recoveryGroups": []map[string]any{{"id": groupID, "name": groupName}},
	})
	fake.JSON(http.MethodGet, groupPath, groupPayload(true, false, entityRow(101, "vm1", 2, 0, 0)))
	registerTarget(fake, "AZURE_V2")

	g, err := NewGroup(context.Background(), testDeps(fake), groupName, 0)
	require.NoError(t, err)

	require.NotNil(t, g.Target())
	assert.Equal(t, "finance-target", g.Target().Name())
	assert.Equal(t, targetName, g.TargetName())
	assert.True(t, g.ThreatScanEnabled())
	assert.False(t, g.WindowsDefenderScanEnabled())
	assert.True(t, g.AutoscaleEnabled())
	assert.False(t, g.PowerOffAfterRecovery())

	assert.Equal(t, "finance-Target", g.NewTargetName())
	assert.Equal(t, "finance-Target-Hypervisor", g.NewHypervisorName())
	assert.True(t, g.ValidateNewRecoveryTargetExists())
	assert.True(t, g.ValidateNewHypervisorExists())

	_, err = NewGroup(context.Background(), testDeps(fake), "ghost", 0)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestGroupWithoutEntitiesHasNoTarget(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	g := newTestGroup(t, fake, groupPayload(false, false))

	assert.Nil(t, g.Target())
	assert.Empty(t, g.TargetName())
	assert.False(t, g.ValidateNewRecoveryTargetExists())
	assert.False(t, g.ValidateNewHypervisorExists())
	assert.Equal(t, 1, fake.Total())

	_, err := g.DestinationClient(context.Background())
	assert.ErrorIs(t, err, session.ErrInvalidArgument)
}

func TestGroupRefreshRequiresRecoveryGroup(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	fake.JSON(http.MethodGet, groupPath, map[string]any{"entities": []any{}})

	_, err := NewGroup(context.Background(), testDeps(fake), groupName, groupID)
	assert.ErrorIs(t, err, session.ErrResponse)
	assert.Contains(t, err.Error(), "missing key: recoveryGroup")
}

func TestEligibleEntityIDs(t *testing.T) {
	tests := []struct {
		name     string
		entities []map[string]any
		defender bool
		want     []int64
	}{
		{
			name: "defender requires windows",
			entities: []map[string]any{
				entityRow(1, "vm1", int(status.StatusReady), 0, 0),
				entityRow(2, "vm2", int(status.StatusReady), 0, 1),
			},
			defender: true,
			want:     []int64{1},
		},
		{
			name: "not ready and in progress excluded",
			entities: []map[string]any{
				entityRow(1, "vm1", int(status.StatusNotReady), 0, 0),
				entityRow(2, "vm2", int(status.StatusInProgress), 0, 0),
				entityRow(3, "vm3", int(status.StatusReady), 0, 0),
			},
			want: []int64{3},
		},
		{
			name: "not ready excluded with defender",
			entities: []map[string]any{
				entityRow(1, "vm1", int(status.StatusNotReady), 0, 0),
				entityRow(2, "vm2", int(status.StatusRecovered), 0, 0),
			},
			defender: true,
			want:     []int64{2},
		},
		{
			name: "missing os type is not windows",
			entities: []map[string]any{
				entityRow(1, "vm1", int(status.StatusReady), 0, nil),
			},
			defender: true,
			want:     []int64{},
		},
		{
			name: "os type ignored without defender",
			entities: []map[string]any{
				entityRow(1, "vm1", int(status.StatusReady), 0, nil),
				entityRow(2, "vm2", int(status.StatusFailed), 0, 1),
			},
			want: []int64{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeBackend(t)
			g := newTestGroup(t, fake, groupPayload(false, false, tt.entities...))
			assert.Equal(t, tt.want, g.EligibleEntityIDs(tt.defender))
		})
	}
}

func TestRecoverAll(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	g := newTestGroup(t, fake, groupPayload(true, false,
		entityRow(1, "vm1", int(status.StatusReady), 0, 0),
		entityRow(2, "vm2", int(status.StatusReady), 0, 1),
		entityRow(3, "vm3", int(status.StatusInProgress), 0, 0),
	))
	fake.JSON(http.MethodPost, "V4/recoverygroup/5/recover", map[string]any{"jobId": "777"})

	jobID, err := g.RecoverAll(context.Background(), RecoverOptions{WindowsDefenderScan: true})
	require.NoError(t, err)
	assert.Equal(t, int64(777), jobID)
	assert.Equal(t, 1, fake.Calls(http.MethodPost, "V4/recoverygroup/5/recover"))

	body := fake.LastBody(http.MethodPost, "V4/recoverygroup/5/recover")
	assert.Equal(t, map[string]any{"id": float64(groupID)}, body["recoveryGroup"])
	assert.Equal(t, []any{map[string]any{"id": float64(1)}}, body["entities"])
	assert.Equal(t, map[string]any{
		"enableThreatScan":          true,
		"enableWindowsDefenderScan": true,
	}, body["threatScan"])
}

func TestRecoverKeepsGroupScanEnabled(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	g := newTestGroup(t, fake, groupPayload(true, true, entityRow(1, "vm1", 2, 0, 0)))
	fake.JSON(http.MethodPost, "V4/recoverygroup/5/recover", map[string]any{"jobId": 1})

	_, err := g.RecoverAll(context.Background(), RecoverOptions{})
	require.NoError(t, err)

	body := fake.LastBody(http.MethodPost, "V4/recoverygroup/5/recover")
	assert.Equal(t, map[string]any{
		"enableThreatScan":          true,
		"enableWindowsDefenderScan": true,
	}, body["threatScan"])
}

func TestRecoverAllWithoutEligibleEntities(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	g := newTestGroup(t, fake, groupPayload(false, false, entityRow(1, "vm1", int(status.StatusNotReady), 1, 0)))
	before := fake.Total()

	_, err := g.RecoverAll(context.Background(), RecoverOptions{})
	assert.ErrorIs(t, err, session.ErrInvalidArgument)
	assert.Equal(t, before, fake.Total())
}

func TestRecoverMissingJobID(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	g := newTestGroup(t, fake, groupPayload(false, false, entityRow(1, "vm1", 2, 0, 0)))
	fake.JSON(http.MethodPost, "V4/recoverygroup/5/recover", map[string]any{"errorCode": 0})

	_, err := g.RecoverEntities(context.Background(), []int64{1}, RecoverOptions{})
	assert.ErrorIs(t, err, session.ErrResponse)
	assert.Contains(t, err.Error(), "missing key: jobId")
	assert.Equal(t, 1, fake.Calls(http.MethodPost, "V4/recoverygroup/5/recover"))

	_, err = g.RecoverEntities(context.Background(), nil, RecoverOptions{})
	assert.ErrorIs(t, err, session.ErrInvalidArgument)
	assert.Equal(t, 1, fake.Calls(http.MethodPost, "V4/recoverygroup/5/recover"))
}

func TestRecoverTransportErrorIsNotRetried(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	g := newTestGroup(t, fake, groupPayload(false, false, entityRow(1, "vm1", 2, 0, 0)))
	fake.Handle(http.MethodPost, "V4/recoverygroup/5/recover", http.StatusInternalServerError,
		`{"errorMessage": "recovery already running"}`)

	_, err := g.RecoverAll(context.Background(), RecoverOptions{})
	assert.ErrorIs(t, err, session.ErrTransport)
	assert.Contains(t, err.Error(), "recovery already running")
	assert.Equal(t, 1, fake.Calls(http.MethodPost, "V4/recoverygroup/5/recover"))
}

func TestCleanupRecoveredEntities(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	g := newTestGroup(t, fake, groupPayload(false, false,
		entityRow(1, "vm1", int(status.StatusRecovered), 0, 0),
		entityRow(2, "vm2", int(status.StatusNotReady), 1, 0),
	))
	fake.JSON(http.MethodPost, "V4/recoverygroup/cleanup", map[string]any{"jobId": 88})

	jobID, err := g.CleanupRecoveredEntities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(88), jobID)

	body := fake.LastBody(http.MethodPost, "V4/recoverygroup/cleanup")
	assert.Equal(t, []any{
		map[string]any{"id": float64(1)},
		map[string]any{"id": float64(2)},
	}, body["entities"])
}

func TestCleanupWithoutEntities(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	g := newTestGroup(t, fake, groupPayload(false, false))
	before := fake.Total()

	_, err := g.CleanupRecoveredEntities(context.Background())
	assert.ErrorIs(t, err, session.ErrInvalidArgument)
	assert.Equal(t, "InvalidArgument", session.Code(err))
	assert.Equal(t, before, fake.Total())
}

func TestThreatsCount(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	g := newTestGroup(t, fake, groupPayload(false, false, entityRow(1, "vm1", 2, 0, 0)))
	fake.JSON(http.MethodGet, "V4/recoverygroup/5/threats-count", map[string]any{
		"KPI": []map[string]any{{"threatCount": 4}},
	})

	count, err := g.ThreatsCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestThreatsCountMissingKPI(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	g := newTestGroup(t, fake, groupPayload(false, false, entityRow(1, "vm1", 2, 0, 0)))
	fake.JSON(http.MethodGet, "V4/recoverygroup/5/threats-count", map[string]any{"KPI": []any{}})

	_, err := g.ThreatsCount(context.Background())
	assert.ErrorIs(t, err, session.ErrResponse)
	assert.Contains(t, err.Error(), "missing key: KPI[0].threatCount")
}

func TestEntityStatusIsAProjection(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	partial := map[string]any{"id": 3, "name": "vm3", "target": targetRef()}
	g := newTestGroup(t, fake, groupPayload(false, false,
		entityRow(1, "vm1", int(status.StatusReady), 0, 0),
		entityRow(2, "", int(status.StatusReady), 0, 0),
		entityRow(4, "vm4", int(status.StatusNotReady), 32, 0),
		partial,
	))
	before := fake.Total()

	first := g.EntityStatus()
	second := g.EntityStatus()
	assert.Equal(t, first, second)
	assert.Equal(t, before, fake.Total())

	require.Len(t, first, 3)
	require.NotNil(t, first["vm1"].RecoveryStatus)
	assert.Equal(t, int64(2), *first["vm1"].RecoveryStatus)
	assert.Equal(t, int64(0), *first["vm1"].NotReadyCategory)
	assert.Equal(t, int64(32), *first["vm4"].NotReadyCategory)
	assert.Nil(t, first["vm3"].RecoveryStatus)
	assert.Nil(t, first["vm3"].NotReadyCategory)
}

func TestAzureAccessors(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	g := newTestGroup(t, fake, groupPayload(false, false, entityRow(1, "vm1", 2, 0, 0)))

	for name, get := range map[string]func() (string, error){
		"nsg-7":     g.SecurityGroup,
		"cr-vnet":   g.VirtualNetwork,
		"cr-rg":     g.ResourceGroup,
		"crstorage": g.StorageAccount,
	} {
		value, err := get()
		require.NoError(t, err)
		assert.Equal(t, name, value)
	}
}

func TestAzureAccessorMissingKey(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	row := map[string]any{"id": 1, "name": "vm1", "target": targetRef(), "recoveryConfiguration": map[string]any{}}
	g := newTestGroup(t, fake, groupPayload(false, false, row))

	_, err := g.ResourceGroup()
	assert.ErrorIs(t, err, session.ErrResponse)
	assert.Contains(t, err.Error(), "missing key: recoveryConfiguration.configuration")
}

func TestDestinationHelpers(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	g := newTestGroup(t, fake, groupPayload(false, false, entityRow(1, "vm1", 2, 0, 0)))
	stub := g.deps.Catalog.(*stubCatalog)

	instance, err := g.DestinationInstance(context.Background(), status.WorkloadVirtualServer)
	require.NoError(t, err)
	assert.Equal(t, "Azure Resource Manager", instance.Name)
	assert.Equal(t, []string{"finance-Target-Hypervisor"}, stub.clients)
	assert.Equal(t, []string{"Virtual Server"}, stub.agents)

	_, err = g.DestinationAgent(context.Background(), status.Workload(42))
	assert.ErrorIs(t, err, session.ErrInvalidArgument)

	_, err = g.DestinationClient(context.Background())
	require.NoError(t, err)
	assert.Len(t, stub.clients, 2)
}

func TestGroupDelete(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	g := newTestGroup(t, fake, groupPayload(false, false, entityRow(1, "vm1", 2, 0, 0)))
	fake.JSON(http.MethodDelete, groupPath, map[string]any{"errorCode": 0})

	ok, err := g.Delete(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGroupDeleteRejectsBadBody(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"empty", "", "empty body"},
		{"truncated json", "{oops", "malformed body"},
		{"html page", "<html>gateway</html>", "malformed body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeBackend(t)
			g := newTestGroup(t, fake, groupPayload(false, false, entityRow(1, "vm1", 2, 0, 0)))
			fake.HandleFunc(http.MethodDelete, groupPath, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			ok, err := g.Delete(context.Background())
			assert.False(t, ok)
			assert.ErrorIs(t, err, session.ErrResponse)
			assert.Contains(t, err.Error(), tt.detail)
		})
	}
}

func TestGroupSummary(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	g := newTestGroup(t, fake, groupPayload(true, false, entityRow(1, "vm1", 2, 0, 0)))

	summary := g.Summary()
	assert.Equal(t, groupName, summary.Name)
	assert.Equal(t, targetName, summary.TargetName)
	assert.True(t, summary.ThreatScan)
	assert.Equal(t, []int64{1}, summary.EntityIDs)
	assert.Contains(t, summary.EntityStatus, "vm1")
}
