// Package cache implements process-local TTL caches for object metadata
// (CDC schemas): safe for concurrent read once an entry is immutable
// after first write. Entries leave only by expiry or explicit removal;
// there is no LRU eviction and CacheConfig.MaxSize is not enforced.
package cache

import (
	"context"
	"sync"
	"time"
)

type CacheEntry struct {
	Value      interface{}
	Expiration time.Time
	Version    int64
}

type CacheConfig struct {
	DefaultTTL      time.Duration
	MaxSize         int
	CleanupInterval time.Duration
}

func DefaultConfig() CacheConfig {
	return CacheConfig{DefaultTTL: 5 * time.Minute, MaxSize: 1000, CleanupInterval: 10 * time.Minute}
}

// Cache is a generic, versioned, TTL-expiring in-memory map.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry
	config  CacheConfig
	version int64
}

func NewCache(cfg CacheConfig) *Cache {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 1000
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	c := &Cache{entries: make(map[string]*CacheEntry), config: cfg}
	go c.startCleanup()
	return c
}

func (c *Cache) startCleanup() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		c.cleanup()
	}
}

func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.Expiration) {
			delete(c.entries, key)
		}
	}
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.Expiration) {
		return nil, false
	}
	return entry.Value, true
}

func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &CacheEntry{Value: value, Expiration: time.Now().Add(ttl), Version: c.version}
}

func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) InvalidatePattern(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
}

func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*CacheEntry)
}

// InvalidateVersion bumps the cache generation, implicitly invalidating
// every entry — used on OAuth key rotation.
func (c *Cache) InvalidateVersion() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
	c.entries = make(map[string]*CacheEntry)
}

func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TokenCache caches OAuth access tokens with the vault's default 1h TTL
// (spec §6) and immediate invalidation on write.
type TokenCache struct {
	cache     *Cache
	keyPrefix string
}

func NewTokenCache(cfg CacheConfig) *TokenCache {
	return &TokenCache{cache: NewCache(cfg), keyPrefix: "token:"}
}

func (c *TokenCache) GetToken(tenantSourceKey string) (string, bool) {
	v, ok := c.cache.Get(c.keyPrefix + tenantSourceKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, ok
}

func (c *TokenCache) SetToken(tenantSourceKey, token string, ttl time.Duration) {
	c.cache.Set(c.keyPrefix+tenantSourceKey, token, ttl)
}

// InvalidateToken implements "immediate invalidation on write" (spec §6):
// called the moment the factory persists a rotated token, so a cached
// stale token is never served across the rotation boundary.
func (c *TokenCache) InvalidateToken(tenantSourceKey string) {
	c.cache.Invalidate(c.keyPrefix + tenantSourceKey)
}

func (c *TokenCache) OnKeyRotation() {
	c.cache.InvalidateVersion()
}

// SchemaCache caches CDC payload schemas by schema_id with a 24h TTL (spec §9 "Salesforce CDC schema cache").
type SchemaCache struct {
	cache *Cache
}

func NewSchemaCache() *SchemaCache {
	return &SchemaCache{cache: NewCache(CacheConfig{DefaultTTL: 24 * time.Hour, MaxSize: 10000})}
}

func (c *SchemaCache) Get(schemaID string) (interface{}, bool) {
	return c.cache.Get(schemaID)
}

// Set stores a decoded schema. Schemas are immutable once published by the
// vendor, so no TTL eviction pressure is expected in practice; the long
// TTL above is a safety net against unbounded growth across process
// lifetime, not a correctness requirement.
func (c *SchemaCache) Set(schemaID string, schema interface{}) {
	c.cache.Set(schemaID, schema, 24*time.Hour)
}

// TTLCache is a context-aware convenience wrapper, used for short-lived
// lookups like Attio object descriptors.
type TTLCache struct {
	cache     *Cache
	keyPrefix string
}

func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{cache: NewCache(CacheConfig{DefaultTTL: ttl}), keyPrefix: "ttl:"}
}

func (c *TTLCache) Get(_ context.Context, key string) (interface{}, bool) {
	return c.cache.Get(c.keyPrefix + key)
}

func (c *TTLCache) Set(_ context.Context, key string, value interface{}) {
	c.cache.Set(c.keyPrefix+key, value, 0)
}

func (c *TTLCache) Delete(_ context.Context, key string) {
	c.cache.Invalidate(c.keyPrefix + key)
}
