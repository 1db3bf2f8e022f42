// Package testutil provides a fake backup server for package tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"github.com/vexxhost/migratekit-cleanroom/internal/session"
)

// FakeBackend routes requests to canned JSON responses and counts every call.
type FakeBackend struct {
	t      *testing.T
	router *mux.Router
	server *httptest.Server

	mu     sync.Mutex
	calls  map[string]int
	bodies map[string][]map[string]any
	total  int
}

func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	f := &FakeBackend{
		t:      t,
		router: mux.NewRouter(),
		calls:  make(map[string]int),
		bodies: make(map[string][]map[string]any),
	}
	f.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})
	f.server = httptest.NewServer(f.router)
	t.Cleanup(f.server.Close)
	return f
}

func key(method, path string) string {
	return method + " /" + trimSlash(path)
}

func trimSlash(path string) string {
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	return path
}

func (f *FakeBackend) record(r *http.Request) {
	var body map[string]any
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			_ = json.Unmarshal(data, &body)
		}
	}
	k := key(r.Method, r.URL.Path)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.total++
	f.calls[k]++
	f.bodies[k] = append(f.bodies[k], body)
}

// HandleFunc registers a handler for method and path (without query string).
func (f *FakeBackend) HandleFunc(method, path string, fn http.HandlerFunc) {
	f.router.HandleFunc("/"+trimSlash(path), func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		fn(w, r)
	}).Methods(method)
}

// Handle answers method and path with status and body. Strings and byte
// slices are written as is, anything else is JSON encoded.
func (f *FakeBackend) Handle(method, path string, status int, body any) {
	f.HandleFunc(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		switch b := body.(type) {
		case nil:
		case string:
			_, _ = w.Write([]byte(b))
		case []byte:
			_, _ = w.Write(b)
		default:
			if err := json.NewEncoder(w).Encode(b); err != nil {
				f.t.Errorf("encode fake response: %v", err)
			}
		}
	})
}

// JSON answers method and path with 200 and the encoded body.
func (f *FakeBackend) JSON(method, path string, body any) {
	f.Handle(method, path, http.StatusOK, body)
}

func (f *FakeBackend) URL() string {
	return f.server.URL
}

// Backend returns a real session client pointed at the fake server.
func (f *FakeBackend) Backend() session.Backend {
	client, err := session.NewClient(session.Options{BaseURL: f.server.URL, Token: "test-token"})
	if err != nil {
		f.t.Fatalf("create session client: %v", err)
	}
	return session.NewBackend(client, session.DefaultEndpoints())
}

// Calls counts requests received for method and path.
func (f *FakeBackend) Calls(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key(method, path)]
}

// Total counts every request received.
func (f *FakeBackend) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// LastBody is the decoded JSON body of the latest request to method and path.
func (f *FakeBackend) LastBody(method, path string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	bodies := f.bodies[key(method, path)]
	if len(bodies) == 0 {
		return nil
	}
	return bodies[len(bodies)-1]
}
