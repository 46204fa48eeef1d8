package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/eventscan/internal/adapters/memory"
	"github.com/zatekoja/eventscan/internal/domain/entities"
	"github.com/zatekoja/eventscan/internal/domain/repositories"
)

type MockEventListingRepository struct {
	mock.Mock
}

func (m *MockEventListingRepository) FindByFilter(ctx context.Context, criteria repositories.FilterCriteria) ([]*entities.SearchCandidate, error) {
	args := m.Called(ctx, criteria)
	return args.Get(0).([]*entities.SearchCandidate), args.Error(1)
}

func (m *MockEventListingRepository) ListByDate(ctx context.Context, params repositories.DateListParams) ([]*entities.SearchCandidate, error) {
	args := m.Called(ctx, params)
	return args.Get(0).([]*entities.SearchCandidate), args.Error(1)
}

func (m *MockEventListingRepository) CountByFilter(ctx context.Context, criteria repositories.FilterCriteria) (int, error) {
	args := m.Called(ctx, criteria)
	return args.Int(0), args.Error(1)
}

func TestCachedEventListingAdapter_CountByFilterIsCached(t *testing.T) {
	cache, err := memory.NewCacheAdapter(16)
	require.NoError(t, err)

	filter := repositories.FilterCriteria{
		Structured: entities.StructuredFilter{Statuses: []entities.EventStatus{entities.EventStatusPublished}},
	}
	inner := new(MockEventListingRepository)
	inner.On("CountByFilter", mock.Anything, filter).Return(42, nil).Once()

	adapter := NewCachedEventListingAdapter(inner, cache, time.Minute)

	count, err := adapter.CountByFilter(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 42, count)

	key, err := filterCountCacheKey(filter)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		ok, _ := cache.Exists(context.Background(), key)
		return ok
	}, time.Second, 10*time.Millisecond)

	count, err = adapter.CountByFilter(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 42, count)
	inner.AssertExpectations(t)
}

func TestCachedEventListingAdapter_ResultInvalidationDropsCounts(t *testing.T) {
	cache, err := memory.NewCacheAdapter(16)
	require.NoError(t, err)

	key, err := filterCountCacheKey(repositories.FilterCriteria{})
	require.NoError(t, err)
	require.NoError(t, cache.Set(context.Background(), key, []byte("7"), 60))

	require.NoError(t, cache.DeletePattern(context.Background(), "search:results:*"))

	ok, err := cache.Exists(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCachedEventListingAdapter_CorruptEntryFallsThrough(t *testing.T) {
	cache, err := memory.NewCacheAdapter(16)
	require.NoError(t, err)

	filter := repositories.FilterCriteria{}
	key, err := filterCountCacheKey(filter)
	require.NoError(t, err)
	require.NoError(t, cache.Set(context.Background(), key, []byte("not-a-number"), 60))

	inner := new(MockEventListingRepository)
	inner.On("CountByFilter", mock.Anything, filter).Return(3, nil)

	count, err := NewCachedEventListingAdapter(inner, cache, time.Minute).CountByFilter(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestFilterCountCacheKey_SeparatesEmbeddingOnlyCounts(t *testing.T) {
	structured := entities.StructuredFilter{Statuses: []entities.EventStatus{entities.EventStatusPublished}}

	all, err := filterCountCacheKey(repositories.FilterCriteria{Structured: structured})
	require.NoError(t, err)
	embedded, err := filterCountCacheKey(repositories.FilterCriteria{Structured: structured, RequireEmbedding: true})
	require.NoError(t, err)
	ranked, err := filterCountCacheKey(repositories.FilterCriteria{
		Structured:       structured,
		RequireEmbedding: true,
		Embedding:        []float32{1, 0, 0},
		Limit:            500,
	})
	require.NoError(t, err)

	assert.NotEqual(t, all, embedded)
	assert.Equal(t, embedded, ranked)
}

func TestCachedEventListingAdapter_PassesThroughListing(t *testing.T) {
	cache, err := memory.NewCacheAdapter(16)
	require.NoError(t, err)

	params := repositories.DateListParams{Limit: 5}
	inner := new(MockEventListingRepository)
	inner.On("ListByDate", mock.Anything, params).Return([]*entities.SearchCandidate{{ID: "evt-1"}}, nil)

	items, err := NewCachedEventListingAdapter(inner, cache, time.Minute).ListByDate(context.Background(), params)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
