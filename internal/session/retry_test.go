package session

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRequester struct {
	errs  []error
	calls int
}

func (s *scriptedRequester) Do(ctx context.Context, method, path string, payload any) (*Response, error) {
	s.calls++
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return nil, s.errs[s.calls-1]
	}
	return &Response{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil
}

func newTestRetrying(next Requester, policy RetryPolicy) (*Retrying, *[]time.Duration) {
	r := NewRetrying(next, policy)
	var waits []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return r, &waits
}

func TestRetryingRetriesTransportErrors(t *testing.T) {
	next := &scriptedRequester{errs: []error{
		TransportError("GET x", 0, "request failed", errors.New("connection reset")),
		TransportError("GET x", http.StatusBadGateway, "Bad Gateway", nil),
	}}
	r, waits := newTestRetrying(next, RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second})

	_, err := r.Do(context.Background(), http.MethodGet, "x", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, next.calls)
	require.Len(t, *waits, 2)
	assert.GreaterOrEqual(t, (*waits)[1], 20*time.Millisecond)
}

func TestRetryingStopsOnNonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "client error", err: TransportError("GET x", http.StatusNotFound, "gone", nil)},
		{name: "response error", err: MissingKey("GET x", "jobId")},
		{name: "invalid argument", err: InvalidArgument("GET x", "bad")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &scriptedRequester{errs: []error{tt.err, nil}}
			r, waits := newTestRetrying(next, RetryPolicy{MaxAttempts: 5})

			_, err := r.Do(context.Background(), http.MethodGet, "x", nil)
			assert.Equal(t, tt.err, err)
			assert.Equal(t, 1, next.calls)
			assert.Empty(t, *waits)
		})
	}
}

func TestRetryingLeavesMutationsAlone(t *testing.T) {
	transient := TransportError("POST x", http.StatusServiceUnavailable, "busy", nil)

	next := &scriptedRequester{errs: []error{transient, nil}}
	r, _ := newTestRetrying(next, RetryPolicy{MaxAttempts: 4})
	_, err := r.Do(context.Background(), http.MethodPost, "x", map[string]any{})
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 1, next.calls)

	next = &scriptedRequester{errs: []error{transient, nil}}
	r, _ = newTestRetrying(next, RetryPolicy{MaxAttempts: 4, RetryMutations: true})
	_, err = r.Do(context.Background(), http.MethodPost, "x", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestRetryingGivesUp(t *testing.T) {
	transient := TransportError("GET x", 0, "request failed", errors.New("timeout"))
	next := &scriptedRequester{errs: []error{transient, transient, transient, transient}}
	r, waits := newTestRetrying(next, RetryPolicy{MaxAttempts: 3})

	_, err := r.Do(context.Background(), http.MethodGet, "x", nil)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 3, next.calls)
	assert.Len(t, *waits, 2)
}

func TestBackoffIsBounded(t *testing.T) {
	r := NewRetrying(&scriptedRequester{}, RetryPolicy{BaseDelay: time.Second, MaxDelay: 2 * time.Second})
	for attempt := 0; attempt < 10; attempt++ {
		wait := r.backoffFor(attempt)
		assert.LessOrEqual(t, wait, 2*time.Second+2*time.Second/5)
		assert.GreaterOrEqual(t, wait, time.Second)
	}
}
