package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zatekoja/eventscan/internal/domain/entities"
	"github.com/zatekoja/eventscan/internal/domain/providers"
	"github.com/zatekoja/eventscan/internal/infrastructure/observability"
)

const (
	resultCacheName      = "search_results"
	resultCacheKeyPrefix = "search:results:"
)

// ResultCache stores ranked pages keyed by query, page size and cursor
type ResultCache struct {
	cache   providers.CacheProvider
	ttl     time.Duration
	metrics *observability.SearchMetrics
}

// NewResultCache creates a ResultCache
func NewResultCache(cache providers.CacheProvider, ttl time.Duration, metrics *observability.SearchMetrics) *ResultCache {
	return &ResultCache{
		cache:   cache,
		ttl:     ttl,
		metrics: metrics,
	}
}

// ResultCacheKey hashes the page signature into a cache key
func ResultCacheKey(normalizedQuery string, pageSize int, cursor string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", normalizedQuery, pageSize, cursor)))
	return resultCacheKeyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached page for key. Any cache or decode failure is a miss.
func (c *ResultCache) Get(ctx context.Context, key string) (*entities.SearchPage, bool) {
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		c.metrics.RecordCacheMiss(ctx, resultCacheName)
		return nil, false
	}

	var page entities.SearchPage
	if err := json.Unmarshal(data, &page); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached search page")
		c.metrics.RecordCacheMiss(ctx, resultCacheName)
		return nil, false
	}

	c.metrics.RecordCacheHit(ctx, resultCacheName)
	page.FromCache = true
	return &page, true
}

// Set stores a page. Overwriting an existing entry is always safe.
func (c *ResultCache) Set(ctx context.Context, key string, page *entities.SearchPage) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to marshal search page: %w", err)
	}

	return c.cache.Set(ctx, key, data, int(c.ttl.Seconds()))
}

// InvalidateAll drops every cached page
func (c *ResultCache) InvalidateAll(ctx context.Context) error {
	return c.cache.DeletePattern(ctx, resultCacheKeyPrefix+"*")
}
