// Package ratelimit implements the per-tenant/per-endpoint-class token
// bucket described in spec §4.3, keyed and memoized so concurrent jobs for
// the same tenant share a limiter.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/brightlane/ingestflow/internal/domain"
)

// Limiter wraps golang.org/x/time/rate.Limiter with the acquire()/release()
// shape described in §4.3: a gate a connector client enters before
// dispatching a request.
type Limiter struct {
	limiter *rate.Limiter
}

func newLimiter(requestsPer int, window time.Duration, burst int) *Limiter {
	if requestsPer <= 0 {
		requestsPer = 1
	}
	if window <= 0 {
		window = time.Second
	}
	r := rate.Limit(float64(requestsPer) / window.Seconds())
	return &Limiter{limiter: rate.NewLimiter(r, burst)}
}

// Acquire blocks until a token is available or ctx is cancelled. This is
// the suspension point spec §5 requires every rate-limited dispatch to go
// through.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed immediately, consuming a
// token if so, without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Registry memoizes limiters keyed by (tenant, source, endpoint class) so
// that concurrent jobs for the same tenant share the same bucket (§5
// "shared resources"). It is process-global state, encapsulated per §9's
// Registry design note — tests construct a fresh Registry instead of
// relying on a package-level singleton.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewRegistry constructs an empty limiter registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*Limiter)}
}

// Get returns the limiter for the given policy, creating and memoizing one
// on first use.
func (r *Registry) Get(policy domain.RateLimitPolicy) *Limiter {
	key := policy.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[key]; ok {
		return l
	}
	l := newLimiter(policy.RequestsPer, policy.Window, policy.Burst)
	r.limiters[key] = l
	return l
}

// Reset drops a limiter so the next Get rebuilds it from scratch. Used by
// tests and by tenant-removal cleanup.
func (r *Registry) Reset(policy domain.RateLimitPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, policy.Key())
}

// Size reports how many distinct limiters are currently memoized.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}
