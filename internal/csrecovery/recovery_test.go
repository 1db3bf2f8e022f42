package csrecovery

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexxhost/migratekit-cleanroom/internal/session"
	"github.com/vexxhost/migratekit-cleanroom/internal/testutil"
)

const (
	guid          = "4C1D2E3F-AAAA-BBBB-CCCC-0123456789AB"
	licensePath   = "V4/commserverecovery/license/" + guid
	retentionPath = "V4/commserverecovery/retention/" + guid
	backupsetPath = "V4/commserverecovery/backupsets/" + guid
	requestPath   = "V4/commserverecovery"
)

func newTestRecovery(t *testing.T, fake *testutil.FakeBackend) *CommServeRecovery {
	t.Helper()
	fake.JSON(http.MethodGet, licensePath, map[string]any{
		"license":         true,
		"quotaStartDate":  1711929600,
		"quotaEndDate":    1743465600,
		"recoveriesCount": 1,
		"maxRecoveries":   4,
	})
	fake.JSON(http.MethodGet, retentionPath, map[string]any{
		"cleanup_lock_time": 1712534400,
		"quota_start_date":  1711929600,
		"quota_end_date":    1743465600,
		"consumed_retains":  1,
		"max_retains":       2,
	})
	r, err := New(context.Background(), fake.Backend(), guid)
	require.NoError(t, err)
	return r
}

func backupsets() map[string]any {
	return map[string]any{
		"companies": []map[string]any{{
			"commcells": []map[string]any{{
				"sets": []map[string]any{
					{
						"set_name":      "set_2024_04_05",
						"set_id":        "71",
						"time_modified": "2024-04-05T10:15:00Z",
						"files":         []map[string]any{{"size": "1024"}, {"size": 2048}},
					},
					{
						"set_name":          "set_2024_03_01",
						"set_id":            70,
						"time_modified":     "2024-03-01T08:00:00Z",
						"cleanup_lock_time": 1712534400,
						"files":             []map[string]any{},
					},
				},
			}},
		}},
	}
}

func TestNewLoadsQuotas(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	r := newTestRecovery(t, fake)

	assert.Equal(t, guid, r.GUID())
	assert.True(t, r.IsLicensed())
	assert.Equal(t, int64(1712534400), r.CleanupLockTime())

	license, err := r.LicenseDetails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, License{Licensed: true, QuotaStart: 1711929600, QuotaEnd: 1743465600, UsedRecoveries: 1, MaxRecoveries: 4}, license)
}

func TestNewRequiresGUID(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	_, err := New(context.Background(), fake.Backend(), "  ")
	assert.ErrorIs(t, err, session.ErrInvalidArgument)
	assert.Zero(t, fake.Total())
}

func TestNewUnlicensedNumericFlag(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	fake.JSON(http.MethodGet, licensePath, map[string]any{"license": 0})
	fake.JSON(http.MethodGet, retentionPath, map[string]any{})

	r, err := New(context.Background(), fake.Backend(), guid)
	require.NoError(t, err)
	assert.False(t, r.IsLicensed())
	assert.Zero(t, r.CleanupLockTime())
}

func TestNewMissingLicenseKey(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	fake.JSON(http.MethodGet, licensePath, map[string]any{"maxRecoveries": 4})

	_, err := New(context.Background(), fake.Backend(), guid)
	assert.ErrorIs(t, err, session.ErrResponse)
	assert.ErrorContains(t, err, "missing key: license")
}

func TestBackupsets(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	r := newTestRecovery(t, fake)
	fake.JSON(http.MethodGet, backupsetPath, backupsets())

	sets, err := r.Backupsets(context.Background())
	require.NoError(t, err)
	require.Len(t, sets, 2)

	latest := sets["set_2024_04_05"]
	assert.Equal(t, int64(71), latest.ID)
	assert.Equal(t, int64(3072), latest.Size)
	assert.Equal(t, time.Date(2024, 4, 5, 10, 15, 0, 0, time.UTC), latest.BackupTime)
	assert.False(t, latest.ManuallyRetained)

	retained := sets["set_2024_03_01"]
	assert.Zero(t, retained.Size)
	assert.True(t, retained.ManuallyRetained)
	assert.Equal(t, int64(1712534400), retained.RetainedUntil)
}

func TestBackupsetsErrors(t *testing.T) {
	tests := []struct {
		name string
		body any
		kind error
	}{
		{"no companies", map[string]any{"companies": []any{}}, session.ErrNotFound},
		{"companies missing", map[string]any{}, session.ErrNotFound},
		{"no commcells", map[string]any{"companies": []map[string]any{{}}}, session.ErrResponse},
		{"bad time", map[string]any{"companies": []map[string]any{{
			"commcells": []map[string]any{{"sets": []map[string]any{{"set_name": "s", "time_modified": "yesterday"}}}},
		}}}, session.ErrResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeBackend(t)
			r := newTestRecovery(t, fake)
			fake.JSON(http.MethodGet, backupsetPath, tt.body)

			_, err := r.Backupsets(context.Background())
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestStartRecovery(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	r := newTestRecovery(t, fake)
	fake.JSON(http.MethodGet, backupsetPath, backupsets())
	fake.JSON(http.MethodPost, requestPath, map[string]any{"success": true, "requestId": 301})

	id, err := r.StartRecovery(context.Background(), "set_2024_04_05", StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(301), id)

	body := fake.LastBody(http.MethodPost, requestPath)
	assert.Equal(t, guid, body["commcellGUID"])
	assert.EqualValues(t, 71, body["setId"])
	assert.Equal(t, "set_2024_04_05", body["setName"])
	assert.EqualValues(t, 3072, body["setSize"])
	assert.Equal(t, "*", body["addressPrefixes"])
	assert.Equal(t, true, body["rememberAddress"])
}

func TestStartRecoveryOptions(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	r := newTestRecovery(t, fake)
	fake.JSON(http.MethodGet, backupsetPath, backupsets())
	fake.JSON(http.MethodPost, requestPath, map[string]any{"success": true, "requestId": "302"})

	id, err := r.StartRecovery(context.Background(), "set_2024_03_01", StartOptions{AddressPrefixes: "10.0.0.", ForgetAddress: true})
	require.NoError(t, err)
	assert.Equal(t, int64(302), id)

	body := fake.LastBody(http.MethodPost, requestPath)
	assert.Equal(t, "10.0.0.", body["addressPrefixes"])
	assert.Equal(t, false, body["rememberAddress"])
}

func TestStartRecoveryUnknownBackupset(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	r := newTestRecovery(t, fake)
	fake.JSON(http.MethodGet, backupsetPath, backupsets())

	_, err := r.StartRecovery(context.Background(), "set_1999", StartOptions{})
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Zero(t, fake.Calls(http.MethodPost, requestPath))
}

func TestStartRecoveryRejected(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		detail string
	}{
		{"not successful", map[string]any{"success": false, "errorMessage": "quota exceeded"}, "quota exceeded"},
		{"no request id", map[string]any{"success": true}, "missing key: requestId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeBackend(t)
			r := newTestRecovery(t, fake)
			fake.JSON(http.MethodGet, backupsetPath, backupsets())
			fake.JSON(http.MethodPost, requestPath, tt.body)

			_, err := r.StartRecovery(context.Background(), "set_2024_04_05", StartOptions{})
			assert.ErrorIs(t, err, session.ErrResponse)
			assert.ErrorContains(t, err, tt.detail)
		})
	}
}

func TestUpdateReservation(t *testing.T) {
	tests := []struct {
		name      string
		call      func(*CommServeRecovery) error
		operation float64
	}{
		{"extend", func(r *CommServeRecovery) error { return r.ExtendReservation(context.Background(), 301) }, 2},
		{"close", func(r *CommServeRecovery) error { return r.CloseReservation(context.Background(), 301) }, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeBackend(t)
			r := newTestRecovery(t, fake)
			fake.JSON(http.MethodPut, requestPath, map[string]any{"errorCode": 0})

			require.NoError(t, tt.call(r))
			body := fake.LastBody(http.MethodPut, requestPath)
			assert.Equal(t, guid, body["csGuid"])
			assert.EqualValues(t, 301, body["requestId"])
			assert.Equal(t, tt.operation, body["operation"])
		})
	}
}

func TestUpdateReservationErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		detail string
	}{
		{"error code", map[string]any{"errorCode": 2, "errorMessage": "request is closed"}, "request is closed"},
		{"no error code", map[string]any{}, "missing key: errorCode"},
		{"empty body", "", "empty body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeBackend(t)
			r := newTestRecovery(t, fake)
			fake.JSON(http.MethodPut, requestPath, tt.body)

			err := r.CloseReservation(context.Background(), 301)
			assert.ErrorIs(t, err, session.ErrResponse)
			assert.ErrorContains(t, err, tt.detail)
		})
	}
}

func activeRequests() map[string]any {
	return map[string]any{
		"errorCode": 0,
		"requests": []map[string]any{
			{
				"id":          301,
				"setName":     "set_2024_04_05",
				"requestor":   map[string]any{"fullName": "Ops Admin"},
				"servicePack": 36,
				"createdTime": 1712311000,
				"status":      5,
				"vmInfo": map[string]any{
					"ipAddress":        "203.0.113.7",
					"vmExpirationTime": 1712570200,
					"credentials":      map[string]any{"sUsername": "admin", "sPassword": "s3cret"},
				},
			},
			{
				"id":          "302",
				"setName":     "set_2024_03_01",
				"requestor":   map[string]any{"fullName": "Ops Admin"},
				"servicePack": "11.36",
				"createdTime": 1712312000,
				"status":      2,
				"vmInfo":      map[string]any{"vmExpirationTime": 0},
			},
		},
	}
}

func TestActiveRequests(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	r := newTestRecovery(t, fake)
	fake.JSON(http.MethodGet, requestPath, activeRequests())

	requests, err := r.ActiveRequests(context.Background())
	require.NoError(t, err)
	require.Len(t, requests, 2)

	staged := requests[301]
	assert.Equal(t, "set_2024_04_05", staged.Backupset)
	assert.Equal(t, "Ops Admin", staged.Requestor)
	assert.Equal(t, "36", staged.Version)
	assert.Equal(t, int64(1712311000), staged.StartTime)
	assert.Equal(t, int64(1712570200), staged.EndTime)
	assert.Equal(t, StateCSStaged, staged.Status)
	assert.Equal(t, "CS_STAGED", staged.Status.String())
	require.NotNil(t, staged.VM)
	assert.Equal(t, VMInfo{
		CommandCenterURL: "https://203.0.113.7/commandcenter",
		ExpirationTime:   1712570200,
		Username:         "admin",
		Password:         "s3cret",
	}, *staged.VM)

	creating := requests[302]
	assert.Equal(t, "11.36", creating.Version)
	assert.Equal(t, StateCreatingVM, creating.Status)
	assert.Nil(t, creating.VM)
}

func TestActiveRequestsNone(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	r := newTestRecovery(t, fake)
	var query url.Values
	fake.HandleFunc(http.MethodGet, requestPath, func(w http.ResponseWriter, req *http.Request) {
		query = req.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errorCode": 6, "errorMessage": "no requests"}`))
	})

	_, err := r.ActiveRequests(context.Background())
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Equal(t, guid, query.Get("csGuid"))
	assert.Equal(t, "true", query.Get("showOnlyActiveRequests"))
}

func TestVMDetails(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	r := newTestRecovery(t, fake)
	fake.JSON(http.MethodGet, requestPath, activeRequests())

	vm, err := r.VMDetails(context.Background(), 301)
	require.NoError(t, err)
	require.NotNil(t, vm)
	assert.Equal(t, "admin", vm.Username)

	vm, err = r.VMDetails(context.Background(), 302)
	require.NoError(t, err)
	assert.Nil(t, vm)

	_, err = r.VMDetails(context.Background(), 999)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRequestStateString(t *testing.T) {
	assert.Equal(t, "KILLED", StateKilled.String())
	assert.Equal(t, "UNKNOWN(42)", RequestState(42).String())
}
