package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/brightlane/ingestflow/internal/domain"
)

func policy(tenant string) domain.RateLimitPolicy {
	return domain.RateLimitPolicy{TenantID: tenant, Source: domain.SourceGitLabMR, RequestsPer: 5, Window: time.Second, Burst: 2}
}

func TestRegistry_MemoizesPerKey(t *testing.T) {
	r := NewRegistry()

	a := r.Get(policy("t1"))
	b := r.Get(policy("t1"))
	assert.Same(t, a, b, "same policy key must share one bucket")

	c := r.Get(policy("t2"))
	assert.NotSame(t, a, c, "distinct tenants must not share a bucket")
	assert.Equal(t, 2, r.Size())
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry()
	p := policy("t1")
	r.Get(p)
	assert.Equal(t, 1, r.Size())

	r.Reset(p)
	assert.Equal(t, 0, r.Size())
}

func TestLimiter_AllowRespectsBurst(t *testing.T) {
	r := NewRegistry()
	l := r.Get(domain.RateLimitPolicy{TenantID: "t1", Source: domain.SourceGitLabMR, RequestsPer: 1, Window: time.Hour, Burst: 1})

	assert.True(t, l.Allow(), "first token should be available immediately")
	assert.False(t, l.Allow(), "burst of 1 should be exhausted after one Allow")
}

func TestLimiter_AcquireBlocksUntilCtxCancelled(t *testing.T) {
	r := NewRegistry()
	l := r.Get(domain.RateLimitPolicy{TenantID: "t1", Source: domain.SourceGitLabMR, RequestsPer: 1, Window: time.Hour, Burst: 1})
	l.Allow() // drain the single token

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	assert.Error(t, err, "acquiring past the burst should block until context deadline")
}
