package report

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexxhost/migratekit-cleanroom/internal/recovery"
	"github.com/vexxhost/migratekit-cleanroom/internal/status"
	"github.com/vexxhost/migratekit-cleanroom/internal/testutil"
)

var fixed = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

func TestFileName(t *testing.T) {
	assert.Equal(t, "finance-group-20261017T093000Z.json", FileName("Finance Group", fixed))
	assert.Equal(t, "recovery-group-20261017T093000Z.json", FileName("", fixed))
}

func loadGroup(t *testing.T, fake *testutil.FakeBackend) *recovery.Group {
	t.Helper()
	fake.JSON(http.MethodGet, "V4/recoverygroup/5", map[string]any{
		"recoveryGroup": map[string]any{
			"id":         5,
			"name":       "Finance Group",
			"threatScan": map[string]any{"enableThreatScan": true},
		},
		"entities": []map[string]any{},
	})
	deps := recovery.NewDeps(fake.Backend(), status.DecodeBitmask)
	g, err := recovery.NewGroup(context.Background(), deps, "Finance Group", 5)
	require.NoError(t, err)
	return g
}

func TestBuildAndWrite(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	group := loadGroup(t, fake)
	fake.JSON(http.MethodGet, "V4/recoverygroup/5/threats-count", map[string]any{
		"KPI": []map[string]any{{"threatCount": 3}},
	})

	r, err := Build(context.Background(), group, Options{Threats: true, Now: func() time.Time { return fixed }})
	require.NoError(t, err)
	assert.Equal(t, fixed, r.GeneratedAt)
	assert.True(t, r.Group.ThreatScan)
	assert.Empty(t, r.Entities)
	require.NotNil(t, r.ThreatsCount)
	assert.Equal(t, int64(3), *r.ThreatsCount)

	dir := filepath.Join(t.TempDir(), "reports")
	path, err := Write(dir, r)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "finance-group-20261017T093000Z.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(3), decoded["threats_count"])
	assert.Equal(t, "Finance Group", decoded["group"].(map[string]any)["name"])
	assert.NotContains(t, decoded, "submissions")
}

func TestBuildWithoutThreats(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	group := loadGroup(t, fake)
	before := fake.Total()

	r, err := Build(context.Background(), group, Options{})
	require.NoError(t, err)
	assert.Nil(t, r.ThreatsCount)
	assert.Equal(t, before, fake.Total())
}

func TestBuildThreatsFailure(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	group := loadGroup(t, fake)
	fake.JSON(http.MethodGet, "V4/recoverygroup/5/threats-count", map[string]any{"KPI": []any{}})

	_, err := Build(context.Background(), group, Options{Threats: true})
	assert.ErrorContains(t, err, "missing key: KPI[0].threatCount")
}
