package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/eventscan/internal/adapters/memory"
	"github.com/zatekoja/eventscan/internal/application/services"
	"github.com/zatekoja/eventscan/internal/domain/entities"
	"github.com/zatekoja/eventscan/pkg/config"
	"github.com/zatekoja/eventscan/pkg/utils"
)

func TestCacheWarmingService_WarmsTopQueries(t *testing.T) {
	ctx := context.Background()
	store := memory.NewQueryAnalyticsStore()
	analytics := services.NewSearchAnalyticsService(store, testAnalyticsConfig, 50, nil)
	for _, q := range []string{"jazz", "jazz", "jazz", "taco truck", "taco truck", "pottery"} {
		require.NoError(t, analytics.RecordSearch(ctx, &entities.SearchEvent{Query: q, ResultCount: 1}))
	}

	provider := newFakeEmbeddingProvider()
	cache := services.NewEmbeddingCache(provider, services.EmbeddingCacheConfig{Size: 10, TTL: time.Minute})
	cfg := config.AnalyticsConfig{WindowDays: 7, WarmQueryLimit: 2}

	warmed, err := services.NewCacheWarmingService(store, cache, cfg).WarmCache(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, warmed)
	assert.Equal(t, 2, provider.Calls())

	_, err = cache.Get(ctx, utils.MultiSlotText("jazz"))
	require.NoError(t, err)
	assert.Equal(t, 2, provider.Calls(), "warmed query is served from cache")
}

func TestCacheWarmingService_ProviderFailuresAreSkipped(t *testing.T) {
	ctx := context.Background()
	store := memory.NewQueryAnalyticsStore()
	analytics := services.NewSearchAnalyticsService(store, testAnalyticsConfig, 50, nil)
	require.NoError(t, analytics.RecordSearch(ctx, &entities.SearchEvent{Query: "jazz", ResultCount: 1}))

	provider := newFakeEmbeddingProvider()
	provider.SetErr(errProviderDown)
	cache := services.NewEmbeddingCache(provider, services.EmbeddingCacheConfig{Size: 10, TTL: time.Minute})

	warmed, err := services.NewCacheWarmingService(store, cache, config.AnalyticsConfig{WindowDays: 7}).WarmCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, warmed)
}
