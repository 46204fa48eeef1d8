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
	apperrors "github.com/zatekoja/eventscan/pkg/errors"
	"github.com/zatekoja/eventscan/pkg/utils"
)

var testClusterConfig = config.AnalyticsConfig{
	ClusterThreshold:    0.85,
	ClusterMinSearches:  3,
	AttentionMaxHitRate: 30,
}

func newClusteringFixture(t *testing.T, searches map[string]int) (*services.QueryClusteringService, *fakeEmbeddingProvider) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewQueryAnalyticsStore()
	analytics := services.NewSearchAnalyticsService(store, testAnalyticsConfig, 50, nil)
	for q, n := range searches {
		for i := 0; i < n; i++ {
			require.NoError(t, analytics.RecordSearch(ctx, &entities.SearchEvent{Query: q, ResultCount: 1}))
		}
	}

	provider := newFakeEmbeddingProvider()
	provider.vectors[utils.MultiSlotText("jazz night")] = []float32{1, 0, 0}
	provider.vectors[utils.MultiSlotText("jazz nights")] = []float32{0.98, 0.2, 0}
	provider.vectors[utils.MultiSlotText("taco truck")] = []float32{0, 1, 0}
	provider.vectors[utils.MultiSlotText("jazz")] = []float32{0.99, 0.1, 0}

	cache := services.NewEmbeddingCache(provider, services.EmbeddingCacheConfig{Size: 100, TTL: time.Minute})
	return services.NewQueryClusteringService(store, cache, testClusterConfig, nil), provider
}

func TestGetQueryClusters_GroupsNearDuplicates(t *testing.T) {
	svc, _ := newClusteringFixture(t, map[string]int{
		"jazz night":  8,
		"jazz nights": 4,
		"taco truck":  6,
		"jazz":        2,
	})

	clusters, err := svc.GetQueryClusters(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, clusters, 1)
	assert.Equal(t, "jazz night", clusters[0].RepresentativeQuery)
	assert.Len(t, clusters[0].Members, 2, "queries under the volume floor are ignored")
	assert.Equal(t, 12, clusters[0].TotalSearches)
}

func TestGetQueryClusters_ProviderFailureReturnsEmpty(t *testing.T) {
	svc, provider := newClusteringFixture(t, map[string]int{"jazz night": 5, "jazz nights": 5})
	provider.SetErr(errProviderDown)

	clusters, err := svc.GetQueryClusters(context.Background(), 0.85)

	require.NoError(t, err)
	assert.NotNil(t, clusters)
	assert.Empty(t, clusters)
}

func TestGetQueryClusters_RejectsThresholdAboveOne(t *testing.T) {
	svc, _ := newClusteringFixture(t, nil)

	_, err := svc.GetQueryClusters(context.Background(), 1.5)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInput))
}
