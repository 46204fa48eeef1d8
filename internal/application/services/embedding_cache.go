package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/zatekoja/eventscan/internal/domain/providers"
	"github.com/zatekoja/eventscan/internal/infrastructure/observability"
	"github.com/zatekoja/eventscan/pkg/embeddings"
	apperrors "github.com/zatekoja/eventscan/pkg/errors"
)

const (
	embeddingCacheName      = "search_query_embedding"
	embeddingCacheKeyPrefix = "search:embedding:"
)

// EmbeddingCacheConfig configures EmbeddingCache. Shared may be nil for an in-process cache only.
type EmbeddingCacheConfig struct {
	Size      int
	TTL       time.Duration
	Shared    providers.CacheProvider
	SharedTTL time.Duration
	Metrics   *observability.SearchMetrics
}

// EmbeddingCache memoizes text to vector lookups in front of an EmbeddingProvider.
// Concurrent misses for the same text share one provider call.
type EmbeddingCache struct {
	provider  providers.EmbeddingProvider
	local     *expirable.LRU[string, []float32]
	group     singleflight.Group
	shared    providers.CacheProvider
	sharedTTL time.Duration
	metrics   *observability.SearchMetrics
}

// NewEmbeddingCache creates an EmbeddingCache
func NewEmbeddingCache(provider providers.EmbeddingProvider, cfg EmbeddingCacheConfig) *EmbeddingCache {
	size := cfg.Size
	if size <= 0 {
		size = 10000
	}

	return &EmbeddingCache{
		provider:  provider,
		local:     expirable.NewLRU[string, []float32](size, nil, cfg.TTL),
		shared:    cfg.Shared,
		sharedTTL: cfg.SharedTTL,
		metrics:   cfg.Metrics,
	}
}

// EmbeddingCacheKey returns the cache key for a text
func EmbeddingCacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return embeddingCacheKeyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the embedding for text, calling the provider at most once per key on a miss.
// Provider failures are returned as PROVIDER AppErrors.
func (c *EmbeddingCache) Get(ctx context.Context, text string) ([]float32, error) {
	key := EmbeddingCacheKey(text)
	if vec, ok := c.local.Get(key); ok {
		c.metrics.RecordCacheHit(ctx, embeddingCacheName)
		return vec, nil
	}

	val, err, _ := c.group.Do(key, func() (any, error) {
		if vec, ok := c.getShared(ctx, key); ok {
			c.metrics.RecordCacheHit(ctx, embeddingCacheName)
			c.local.Add(key, vec)
			return vec, nil
		}

		c.metrics.RecordCacheMiss(ctx, embeddingCacheName)
		vec, err := c.provider.Embed(ctx, text)
		if err != nil {
			return nil, apperrors.NewProviderError("failed to embed text", err)
		}

		c.local.Add(key, vec)
		c.setShared(ctx, key, vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}

	return val.([]float32), nil
}

// Similarity delegates to the underlying provider
func (c *EmbeddingCache) Similarity(a, b []float32) float64 {
	return c.provider.Similarity(a, b)
}

// Len returns the number of in-process entries
func (c *EmbeddingCache) Len() int {
	return c.local.Len()
}

// Purge drops every in-process entry
func (c *EmbeddingCache) Purge() {
	c.local.Purge()
}

func (c *EmbeddingCache) getShared(ctx context.Context, key string) ([]float32, bool) {
	if c.shared == nil {
		return nil, false
	}

	data, err := c.shared.Get(ctx, key)
	if err != nil {
		return nil, false
	}

	vec, err := embeddings.DecodeVector(data)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("key", key).Msg("Discarding corrupt shared embedding")
		return nil, false
	}
	return vec, true
}

func (c *EmbeddingCache) setShared(ctx context.Context, key string, vec []float32) {
	if c.shared == nil {
		return
	}

	if err := c.shared.Set(ctx, key, embeddings.EncodeVector(vec), int(c.sharedTTL.Seconds())); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("key", key).Msg("Failed to store shared embedding")
	}
}
