package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDo(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/V4/recoverygroup/7/recover", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("Authtoken"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))

		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		w.Write([]byte(`{"jobId": "99"}`))
	}))
	defer server.Close()

	client, err := NewClient(Options{BaseURL: server.URL + "/api/", Token: "secret"})
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), http.MethodPost, "V4/recoverygroup/7/recover", map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, float64(1), gotBody["a"])

	var out struct {
		JobID FlexInt `json:"jobId"`
	}
	require.NoError(t, resp.Decode("recover", &out))
	assert.Equal(t, int64(99), out.JobID.Int64())
}

func TestClientDoFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{name: "html error page", status: http.StatusInternalServerError, body: "<html><head><title>Internal Error</title></head></html>", wantDetail: "Internal Error"},
		{name: "json error message", status: http.StatusBadRequest, body: `{"errorMessage":"group is busy","errorCode":5}`, wantDetail: "group is busy"},
		{name: "plain text", status: http.StatusForbidden, body: "  denied \n", wantDetail: "denied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewClient(Options{BaseURL: server.URL})
			require.NoError(t, err)

			_, err = client.Do(context.Background(), http.MethodGet, "x", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTransport)

			var sessionErr *Error
			require.True(t, errors.As(err, &sessionErr))
			assert.Equal(t, tt.status, sessionErr.StatusCode)
			assert.Equal(t, tt.wantDetail, sessionErr.Detail)
			assert.Equal(t, "TransportError", sessionErr.Code())
		})
	}
}

func TestClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Options{})
	assert.Error(t, err)
}

func TestResponseDecode(t *testing.T) {
	var v map[string]any

	err := (&Response{Body: []byte("  ")}).Decode("op", &v)
	assert.ErrorIs(t, err, ErrResponse)
	assert.Contains(t, err.Error(), "empty body")

	err = (&Response{Body: []byte("{not json")}).Decode("op", &v)
	assert.ErrorIs(t, err, ErrResponse)
	assert.Contains(t, err.Error(), "malformed body")
}

func TestDeleteResult(t *testing.T) {
	ok, err := DeleteResult("delete", &Response{Body: []byte(`{"errorCode":0}`)})
	require.NoError(t, err)
	assert.True(t, ok)

	for _, body := range []string{"", "  \n", "{oops", "<html>gateway</html>"} {
		ok, err = DeleteResult("delete", &Response{Body: []byte(body)})
		assert.False(t, ok, body)
		assert.ErrorIs(t, err, ErrResponse, body)
	}
	_, err = DeleteResult("delete", &Response{Body: []byte("{oops")})
	assert.Contains(t, err.Error(), "malformed body")
	_, err = DeleteResult("delete", nil)
	assert.Contains(t, err.Error(), "empty body")

	ok, err = DeleteResult("delete", &Response{Body: []byte(`{"errorCode":"2","errorMessage":"in use"}`)})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrResponse)
	assert.Contains(t, err.Error(), "in use")
}

func TestErrorCodes(t *testing.T) {
	assert.Equal(t, "NotFound", Code(NotFound("get", "no group named %q", "x")))
	assert.Equal(t, "InvalidArgument", Code(InvalidArgument("get", "empty name")))
	assert.Equal(t, "ResponseError", Code(MissingKey("get", "jobId")))
	assert.Equal(t, "", Code(errors.New("other")))

	err := MissingKey("threats", "KPI")
	assert.Equal(t, "threats: response error: missing key: KPI", err.Error())
}
