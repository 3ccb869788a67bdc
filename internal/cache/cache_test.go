package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetGetExpiry(t *testing.T) {
	c := NewCache(CacheConfig{DefaultTTL: time.Hour})

	c.Set("k", "v", 10*time.Millisecond)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry should have expired")
}

func TestCache_InvalidatePattern(t *testing.T) {
	c := NewCache(DefaultConfig())
	c.Set("token:a", 1, 0)
	c.Set("token:b", 2, 0)
	c.Set("other:c", 3, 0)

	c.InvalidatePattern("token:")

	_, ok := c.Get("token:a")
	assert.False(t, ok)
	_, ok = c.Get("other:c")
	assert.True(t, ok)
}

func TestCache_InvalidateVersionClearsAll(t *testing.T) {
	c := NewCache(DefaultConfig())
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	assert.Equal(t, 2, c.Size())

	c.InvalidateVersion()
	assert.Equal(t, 0, c.Size())
}

func TestTokenCache_RoundTrip(t *testing.T) {
	tc := NewTokenCache(DefaultConfig())
	tc.SetToken("tenant1:gitlab_mr", "tok-123", time.Minute)

	tok, ok := tc.GetToken("tenant1:gitlab_mr")
	assert.True(t, ok)
	assert.Equal(t, "tok-123", tok)

	tc.InvalidateToken("tenant1:gitlab_mr")
	_, ok = tc.GetToken("tenant1:gitlab_mr")
	assert.False(t, ok)
}

func TestSchemaCache_RoundTrip(t *testing.T) {
	sc := NewSchemaCache()
	sc.Set("schema-1", "raw-avro-schema")

	v, ok := sc.Get("schema-1")
	assert.True(t, ok)
	assert.Equal(t, "raw-avro-schema", v)

	_, ok = sc.Get("missing")
	assert.False(t, ok)
}
