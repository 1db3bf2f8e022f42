package target

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexxhost/migratekit-cleanroom/internal/session"
	"github.com/vexxhost/migratekit-cleanroom/internal/testutil"
)

func TestClassifyVendor(t *testing.T) {
	tests := map[string]PolicyType{
		"AMAZON":                 1,
		"MICROSOFT":              2,
		"AZURE_V2":               7,
		"VMW_BACKUP_LABTEMPLATE": 13,
		"VMW_LIVEMOUNT":          13,
		"AZURE_RESOURCE_MANAGER": -1,
		"amazon":                 -1,
		"":                       -1,
		"OPENSTACK":              -1,
	}
	for vendor, want := range tests {
		t.Run(vendor, func(t *testing.T) {
			assert.Equal(t, want, ClassifyVendor(vendor))
			assert.Equal(t, want, ClassifyVendor(vendor), "classification is stable")
		})
	}
}

func TestLookupTables(t *testing.T) {
	key, ok := PolicyAzure.ConfigurationKey()
	assert.True(t, ok)
	assert.Equal(t, "azure", key)

	key, ok = PolicyAmazon.ConfigurationKey()
	assert.True(t, ok)
	assert.Equal(t, "amazon", key)

	_, ok = PolicyVMware.ConfigurationKey()
	assert.False(t, ok)

	name, ok := InstanceName("AMAZON")
	assert.True(t, ok)
	assert.Equal(t, "Amazon Web Services", name)

	_, ok = InstanceName("MICROSOFT")
	assert.False(t, ok)
}

func TestTargetsCatalog(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	fake.JSON(http.MethodGet, "V4/recoverytargets", targetList())
	fake.JSON(http.MethodGet, "V4/recoverytarget/12", amazonLegacy())
	fake.JSON(http.MethodGet, "V4/runbook/target/12", map[string]any{"general": map[string]any{}})

	targets, err := NewTargets(context.Background(), fake.Backend())
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"mytarget": 11, "aws-target": 12}, targets.All())
	assert.Equal(t, []string{"aws-target", "mytarget"}, targets.Names())
	assert.True(t, targets.Has("MYTARGET"))
	assert.False(t, targets.Has("replica"))

	tgt, err := targets.Get(context.Background(), "AWS-Target")
	require.NoError(t, err)
	assert.Equal(t, "aws-target", tgt.Name())
	assert.Equal(t, PolicyAmazon, tgt.PolicyType())

	_, err = targets.Get(context.Background(), "")
	assert.ErrorIs(t, err, session.ErrInvalidArgument)

	_, err = targets.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Contains(t, err.Error(), "no target exists with name: missing")
}

func TestTargetsRequiresList(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	fake.JSON(http.MethodGet, "V4/recoverytargets", map[string]any{"other": 1})

	_, err := NewTargets(context.Background(), fake.Backend())
	assert.ErrorIs(t, err, session.ErrResponse)
	assert.Contains(t, err.Error(), "missing key: recoveryTargets")
}

func TestCreate(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	fake.JSON(http.MethodGet, "V4/recoverytargets", map[string]any{"recoveryTargets": []any{}})
	fake.JSON(http.MethodPost, "V4/runbook/target", map[string]any{"id": 77, "name": "new-target"})

	targets, err := NewTargets(context.Background(), fake.Backend())
	require.NoError(t, err)

	req, err := BuildCreateRequest(Spec{Name: "new-target"}, &Region{GUID: "eastus (Commcell)", Name: "US East"}, nil)
	require.NoError(t, err)

	ref, err := targets.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(77), ref.ID.Int64())
	assert.Equal(t, "new-target", ref.Name)

	body := fake.LastBody(http.MethodPost, "V4/runbook/target")
	options := body["options"].(map[string]any)
	assert.Equal(t, "AZURE_V2", options["vendor"])
	assert.Equal(t, "US East", options["region"].(map[string]any)["name"])

	_, err = targets.Create(context.Background(), nil)
	assert.ErrorIs(t, err, session.ErrInvalidArgument)
}

func TestCreateWithoutID(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	fake.JSON(http.MethodGet, "V4/recoverytargets", map[string]any{"recoveryTargets": []any{}})
	fake.JSON(http.MethodPost, "V4/runbook/target", map[string]any{"name": "x"})

	targets, err := NewTargets(context.Background(), fake.Backend())
	require.NoError(t, err)

	_, err = targets.Create(context.Background(), &CreateRequest{})
	assert.ErrorIs(t, err, session.ErrResponse)
	assert.Contains(t, err.Error(), "missing key: id")
}
