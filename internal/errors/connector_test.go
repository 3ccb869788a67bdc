package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAsHelpers(t *testing.T) {
	t.Run("rate limited", func(t *testing.T) {
		wrapped := fmt.Errorf("fetch failed: %w", &RateLimitedError{RetryAfter: 5 * time.Second, Endpoint: "/issues"})
		rl, ok := AsRateLimited(wrapped)
		assert.True(t, ok)
		assert.Equal(t, 5*time.Second, rl.RetryAfter)
	})

	t.Run("not found", func(t *testing.T) {
		_, ok := AsNotFound(fmt.Errorf("boom"))
		assert.False(t, ok)

		wrapped := fmt.Errorf("fetch: %w", &NotFoundError{Resource: "gitlab_mr", ID: "99"})
		nf, ok := AsNotFound(wrapped)
		assert.True(t, ok)
		assert.Equal(t, "99", nf.ID)
	})

	t.Run("extend visibility", func(t *testing.T) {
		ev, ok := AsExtendVisibility(&ExtendVisibilityError{Seconds: 45})
		assert.True(t, ok)
		assert.Equal(t, 45, ev.Seconds)
		assert.Contains(t, ev.Error(), "45")
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&RateLimitedError{Endpoint: "/x"}))
	assert.False(t, IsRetryable(&AuthFailedError{StatusCode: 401}))
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
}
