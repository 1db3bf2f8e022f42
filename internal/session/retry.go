package session

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RetryPolicy bounds the retries of a Retrying requester.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RetryMutations bool
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
}

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 250 * time.Millisecond
	defaultMaxDelay    = 4 * time.Second
)

// Retrying wraps a Requester with bounded exponential backoff and jitter.
// Only retryable transport errors are retried, and mutating methods only when
// the policy allows it.
type Retrying struct {
	next    Requester
	policy  RetryPolicy
	limiter *rate.Limiter
	sleep   func(context.Context, time.Duration) error

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRetrying(next Requester, policy RetryPolicy) *Retrying {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaultMaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = defaultBaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = defaultMaxDelay
	}

	r := &Retrying{
		next:   next,
		policy: policy,
		sleep:  sleepWithContext,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}
	if policy.RateLimit > 0 {
		burst := policy.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(policy.RateLimit), burst)
	}
	return r
}

func (r *Retrying) Do(ctx context.Context, method, path string, payload any) (*Response, error) {
	attempts := r.policy.MaxAttempts
	if isMutation(method) && !r.policy.RetryMutations {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := r.next.Do(ctx, method, path, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == attempts {
			break
		}

		wait := r.backoffFor(attempt - 1)
		log.WithFields(log.Fields{
			"method":  method,
			"path":    path,
			"attempt": attempt,
			"wait":    wait.String(),
		}).WithError(err).Warn("Retrying backend request")

		if err := r.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (r *Retrying) backoffFor(attempt int) time.Duration {
	wait := r.policy.BaseDelay * time.Duration(1<<attempt)
	if wait > r.policy.MaxDelay || wait <= 0 {
		wait = r.policy.MaxDelay
	}
	r.mu.Lock()
	jitter := time.Duration(r.rnd.Int63n(int64(wait/5 + 1)))
	r.mu.Unlock()
	return wait + jitter
}

func isMutation(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
