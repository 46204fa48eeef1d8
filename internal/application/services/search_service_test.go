package services_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/eventscan/internal/adapters/memory"
	"github.com/zatekoja/eventscan/internal/application/services"
	"github.com/zatekoja/eventscan/internal/domain/entities"
	"github.com/zatekoja/eventscan/internal/domain/repositories"
	"github.com/zatekoja/eventscan/pkg/config"
	apperrors "github.com/zatekoja/eventscan/pkg/errors"
)

type searchFixture struct {
	svc      *services.SearchService
	store    *memory.EventStore
	provider *fakeEmbeddingProvider
	tracker  *MockSearchTracker
}

func newSearchFixture(t *testing.T, candidates ...*entities.SearchCandidate) *searchFixture {
	t.Helper()
	return newSearchFixtureWithConfig(t, testSearchConfig, candidates...)
}

func newSearchFixtureWithConfig(t *testing.T, cfg config.SearchConfig, candidates ...*entities.SearchCandidate) *searchFixture {
	t.Helper()

	cache, err := memory.NewCacheAdapter(1000)
	require.NoError(t, err)

	store := memory.NewEventStore(candidates...)
	provider := newFakeEmbeddingProvider()
	tracker := new(MockSearchTracker)

	svc := services.NewSearchService(services.SearchServiceParams{
		Corpus:      store,
		Listing:     store,
		Ranking:     services.NewSearchRankingService(cfg.Weights, provider),
		Embedder:    services.NewEmbeddingCache(provider, services.EmbeddingCacheConfig{Size: 100, TTL: time.Hour}),
		ResultCache: services.NewResultCache(cache, time.Minute, nil),
		Tracker:     tracker,
		Flags:       services.NewFeatureFlags(cfg),
		Config:      cfg,
	})

	return &searchFixture{svc: svc, store: store, provider: provider, tracker: tracker}
}

func jazzCorpus(n int) []*entities.SearchCandidate {
	upcoming := time.Now().Add(48 * time.Hour)
	out := make([]*entities.SearchCandidate, 0, n)
	for i := 0; i < n; i++ {
		title := "Jazz Night"
		if i%3 == 0 {
			title = "Late Jazz Session"
		}
		out = append(out, &entities.SearchCandidate{
			ID:          fmt.Sprintf("evt-%02d", i),
			Title:       title,
			CategoryIDs: []string{"cat-music"},
			Embedding:   []float32{1, float32(i%4) * 0.3, 0},
			EventDate:   upcoming,
			Status:      entities.EventStatusPublished,
		})
	}
	return out
}

func ids(results []entities.RankedResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Candidate.ID
	}
	return out
}

func TestSearch_ShortQuerySkipsProviderAndTracking(t *testing.T) {
	f := newSearchFixture(t, jazzCorpus(3)...)

	for _, q := range []string{"", " ", " j ", "é"} {
		page, err := f.svc.Search(context.Background(), q, 10, "")
		require.NoError(t, err)
		assert.Empty(t, page.Results)
		assert.Empty(t, page.NextCursor)
	}

	assert.Equal(t, 0, f.provider.Calls())
	f.tracker.AssertNotCalled(t, "TrackSearch", mock.Anything, mock.Anything)
}

func TestSearch_PaginationMatchesSinglePass(t *testing.T) {
	f := newSearchFixture(t, jazzCorpus(23)...)
	f.tracker.On("TrackSearch", mock.Anything, mock.Anything).Return()
	ctx := context.Background()

	full, err := f.svc.Search(ctx, "jazz night", 50, "")
	require.NoError(t, err)
	require.Len(t, full.Results, 23)
	assert.Empty(t, full.NextCursor)

	var paged []string
	seen := make(map[string]bool)
	cursor := ""
	pages := 0
	for {
		page, err := f.svc.Search(ctx, "jazz night", 5, cursor)
		require.NoError(t, err)
		for _, id := range ids(page.Results) {
			assert.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
		paged = append(paged, ids(page.Results)...)
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
		require.Less(t, pages, 10)
	}

	assert.Equal(t, 5, pages)
	assert.Equal(t, ids(full.Results), paged)
}

func TestSearch_CacheHitStillTracked(t *testing.T) {
	f := newSearchFixture(t, jazzCorpus(4)...)
	f.tracker.On("TrackSearch", mock.Anything, mock.MatchedBy(func(e *entities.SearchEvent) bool { return !e.FromCache })).Return().Once()
	f.tracker.On("TrackSearch", mock.Anything, mock.MatchedBy(func(e *entities.SearchEvent) bool { return e.FromCache })).Return().Once()
	ctx := context.Background()

	first, err := f.svc.Search(ctx, "Jazz Night", 10, "")
	require.NoError(t, err)
	second, err := f.svc.Search(ctx, "  jazz   NIGHT!", 10, "")
	require.NoError(t, err)

	assert.False(t, first.FromCache)
	assert.True(t, second.FromCache)
	assert.Equal(t, ids(first.Results), ids(second.Results))
	assert.Equal(t, 1, f.provider.Calls())
	f.tracker.AssertExpectations(t)
}

func TestSearch_ProviderFailureDegradesAndSkipsCache(t *testing.T) {
	f := newSearchFixture(t, jazzCorpus(4)...)
	f.tracker.On("TrackSearch", mock.Anything, mock.Anything).Return()
	f.provider.SetErr(errProviderDown)
	ctx := context.Background()

	page, err := f.svc.Search(ctx, "jazz night", 10, "")
	require.NoError(t, err)
	assert.True(t, page.Degraded)
	require.Len(t, page.Results, 4)
	for _, r := range page.Results {
		assert.Equal(t, 0.0, r.ScoreBreakdown[entities.ScoreSemantic])
		assert.LessOrEqual(t, r.Score, 1.0)
	}

	_, err = f.svc.Search(ctx, "jazz night", 10, "")
	require.NoError(t, err)
	assert.Equal(t, 2, f.provider.Calls())

	f.provider.SetErr(nil)
	healthy, err := f.svc.Search(ctx, "jazz night", 10, "")
	require.NoError(t, err)
	assert.False(t, healthy.Degraded)
	assert.False(t, healthy.FromCache)
}

func collectPages(t *testing.T, f *searchFixture, query string, pageSize int, beforeNext func()) ([]string, []*entities.SearchPage) {
	t.Helper()

	var (
		got    []string
		pages  []*entities.SearchPage
		cursor string
	)
	for i := 0; i < 20; i++ {
		page, err := f.svc.Search(context.Background(), query, pageSize, cursor)
		require.NoError(t, err)
		got = append(got, ids(page.Results)...)
		pages = append(pages, page)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
		if beforeNext != nil {
			beforeNext()
		}
	}
	return got, pages
}

func TestSearch_DegradedCursorKeepsDegradedRanking(t *testing.T) {
	expected := newSearchFixture(t, jazzCorpus(12)...)
	expected.tracker.On("TrackSearch", mock.Anything, mock.Anything).Return()
	expected.provider.SetErr(errProviderDown)
	full, err := expected.svc.Search(context.Background(), "jazz night", 50, "")
	require.NoError(t, err)
	require.True(t, full.Degraded)

	f := newSearchFixture(t, jazzCorpus(12)...)
	f.tracker.On("TrackSearch", mock.Anything, mock.Anything).Return()
	f.provider.SetErr(errProviderDown)

	// The provider recovers after the first page.
	paged, pages := collectPages(t, f, "jazz night", 5, func() { f.provider.SetErr(nil) })

	assert.Equal(t, ids(full.Results), paged)
	for _, page := range pages {
		assert.True(t, page.Degraded)
	}
}

// switchableEmbedder embeds every query to the same vector until err is set
type switchableEmbedder struct {
	err error
}

func (e *switchableEmbedder) Get(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0, 0}, nil
}

func TestSearch_SemanticCursorRestartsWhenProviderFails(t *testing.T) {
	tracker := new(MockSearchTracker)
	tracker.On("TrackSearch", mock.Anything, mock.Anything).Return()
	store := memory.NewEventStore(jazzCorpus(12)...)
	embedder := &switchableEmbedder{}
	svc := services.NewSearchService(services.SearchServiceParams{
		Corpus:   store,
		Listing:  store,
		Ranking:  services.NewSearchRankingService(testSearchConfig.Weights, nil),
		Embedder: embedder,
		Tracker:  tracker,
		Flags:    services.NewFeatureFlags(testSearchConfig),
		Config:   testSearchConfig,
	})
	ctx := context.Background()

	first, err := svc.Search(ctx, "jazz night", 5, "")
	require.NoError(t, err)
	require.False(t, first.Degraded)
	require.NotEmpty(t, first.NextCursor)

	embedder.err = errProviderDown
	degradedFirst, err := svc.Search(ctx, "jazz night", 5, "")
	require.NoError(t, err)
	second, err := svc.Search(ctx, "jazz night", 5, first.NextCursor)
	require.NoError(t, err)

	assert.True(t, second.Degraded)
	assert.Equal(t, ids(degradedFirst.Results), ids(second.Results))
}

func TestSearch_CandidateLimitKeepsStrongestLexicalMatches(t *testing.T) {
	cfg := testSearchConfig
	cfg.CandidateLimit = 5
	upcoming := time.Now().Add(48 * time.Hour)

	var corpus []*entities.SearchCandidate
	for i := 0; i < 10; i++ {
		corpus = append(corpus, &entities.SearchCandidate{
			ID:          fmt.Sprintf("evt-%02d", i),
			Title:       "Open Mic",
			Description: "live jazz all evening",
			Embedding:   []float32{1, 0, 0},
			EventDate:   upcoming,
			Status:      entities.EventStatusPublished,
		})
	}
	corpus = append(corpus, &entities.SearchCandidate{
		ID:        "evt-99",
		Title:     "Jazz",
		Embedding: []float32{1, 0, 0},
		EventDate: upcoming,
		Status:    entities.EventStatusPublished,
	})

	f := newSearchFixtureWithConfig(t, cfg, corpus...)
	f.tracker.On("TrackSearch", mock.Anything, mock.Anything).Return()

	page, err := f.svc.Search(context.Background(), "jazz", 10, "")

	require.NoError(t, err)
	require.Len(t, page.Results, 5)
	assert.Equal(t, "evt-99", page.Results[0].Candidate.ID)
}

func TestSearch_SemanticDisabledRanksWithoutProvider(t *testing.T) {
	f := newSearchFixture(t, jazzCorpus(4)...)
	f.tracker.On("TrackSearch", mock.Anything, mock.Anything).Return()

	cfg := testSearchConfig
	cfg.SemanticSearchEnabled = false
	svc := services.NewSearchService(services.SearchServiceParams{
		Corpus:  f.store,
		Listing: f.store,
		Ranking: services.NewSearchRankingService(cfg.Weights, nil),
		Tracker: f.tracker,
		Flags:   services.NewFeatureFlags(cfg),
		Config:  cfg,
	})

	page, err := svc.Search(context.Background(), "jazz night", 10, "")
	require.NoError(t, err)
	assert.True(t, page.Degraded)
	assert.Len(t, page.Results, 4)
	assert.Equal(t, 0, f.provider.Calls())
}

func TestSearch_MalformedCursorServesFirstPage(t *testing.T) {
	f := newSearchFixture(t, jazzCorpus(8)...)
	f.tracker.On("TrackSearch", mock.Anything, mock.Anything).Return()
	ctx := context.Background()

	first, err := f.svc.Search(ctx, "jazz", 3, "")
	require.NoError(t, err)
	fallback, err := f.svc.Search(ctx, "jazz", 3, "%%%garbage")
	require.NoError(t, err)

	assert.Equal(t, ids(first.Results), ids(fallback.Results))
	assert.NotEmpty(t, fallback.NextCursor)
}

func TestSearch_UnsupportedCursorIsInputError(t *testing.T) {
	f := newSearchFixture(t, jazzCorpus(3)...)
	ctx := context.Background()

	futureScheme := base64.URLEncoding.EncodeToString([]byte(`{"v":9,"k":"score","s":0.5,"i":"evt-01"}`))
	_, err := f.svc.Search(ctx, "jazz", 3, futureScheme)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInput))
	assert.ErrorIs(t, err, services.ErrUnsupportedCursor)

	dateCursor := services.EncodeDateCursor(&entities.SearchCandidate{ID: "evt-01", EventDate: time.Now()})
	_, err = f.svc.Search(ctx, "jazz", 3, dateCursor)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInput))

	f.tracker.AssertNotCalled(t, "TrackSearch", mock.Anything, mock.Anything)
}

type failingCorpus struct{}

func (failingCorpus) FindCandidates(ctx context.Context, p repositories.CandidatePrefilter) ([]*entities.SearchCandidate, error) {
	return nil, errors.New("connection refused")
}

func TestSearch_CorpusFailureReturnsEmptyDegradedPage(t *testing.T) {
	tracker := new(MockSearchTracker)
	svc := services.NewSearchService(services.SearchServiceParams{
		Corpus:  failingCorpus{},
		Ranking: services.NewSearchRankingService(testSearchConfig.Weights, nil),
		Tracker: tracker,
		Config:  testSearchConfig,
	})

	page, err := svc.Search(context.Background(), "jazz", 10, "")

	require.NoError(t, err)
	assert.Empty(t, page.Results)
	assert.True(t, page.Degraded)
	tracker.AssertNotCalled(t, "TrackSearch", mock.Anything, mock.Anything)
}

func TestSearch_PageSizeClampedToMaximum(t *testing.T) {
	f := newSearchFixture(t, jazzCorpus(60)...)
	f.tracker.On("TrackSearch", mock.Anything, mock.Anything).Return()

	page, err := f.svc.Search(context.Background(), "jazz", 500, "")

	require.NoError(t, err)
	assert.Len(t, page.Results, testSearchConfig.MaxPageSize)
	assert.NotEmpty(t, page.NextCursor)
}

func TestSearch_TacoTruckZeroResults(t *testing.T) {
	cache, err := memory.NewCacheAdapter(100)
	require.NoError(t, err)
	store := memory.NewEventStore(jazzCorpus(5)...)
	analyticsStore := memory.NewQueryAnalyticsStore()
	analytics := services.NewSearchAnalyticsService(analyticsStore, config.AnalyticsConfig{WindowDays: 7}, testSearchConfig.MaxPageSize, nil)
	provider := newFakeEmbeddingProvider()

	svc := services.NewSearchService(services.SearchServiceParams{
		Corpus:      store,
		Listing:     store,
		Ranking:     services.NewSearchRankingService(testSearchConfig.Weights, provider),
		Embedder:    services.NewEmbeddingCache(provider, services.EmbeddingCacheConfig{Size: 10, TTL: time.Hour}),
		ResultCache: services.NewResultCache(cache, time.Minute, nil),
		Tracker:     analytics,
		Config:      testSearchConfig,
	})

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		page, err := svc.Search(ctx, "Taco Truck", 10, "")
		require.NoError(t, err)
		assert.Empty(t, page.Results)
		analytics.Wait()
	}

	zero, err := analytics.GetZeroResultQueries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, zero, 1)
	assert.Equal(t, "taco truck", zero[0].NormalizedQuery)
	assert.Equal(t, 10, zero[0].TotalSearches)
	assert.Equal(t, 10, zero[0].ZeroResultSearches)
	assert.Equal(t, 0.0, zero[0].HitRate)
}

func TestSearchByFilter_SemanticRanksBySimilarity(t *testing.T) {
	f := newSearchFixture(t,
		&entities.SearchCandidate{ID: "near", Embedding: []float32{1, 0.1, 0}, Status: entities.EventStatusPublished},
		&entities.SearchCandidate{ID: "mid", Embedding: []float32{1, 1, 0}, Status: entities.EventStatusPublished},
		&entities.SearchCandidate{ID: "far", Embedding: []float32{0, 0, 1}, Status: entities.EventStatusPublished},
		&entities.SearchCandidate{ID: "no-embedding", Status: entities.EventStatusPublished},
	)

	page, err := f.svc.SearchByFilter(context.Background(), entities.SemanticFilter{Embedding: []float32{1, 0, 0}}, 2, 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"near", "mid"}, ids(page.Results))
	assert.Equal(t, 3, page.Total)
	assert.True(t, page.HasMore)

	next, err := f.svc.SearchByFilter(context.Background(), entities.SemanticFilter{Embedding: []float32{1, 0, 0}}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"far"}, ids(next.Results))
	assert.False(t, next.HasMore)
}

func TestSearchByFilter_RanksWholeCorpusBeyondCandidateLimit(t *testing.T) {
	cfg := testSearchConfig
	cfg.CandidateLimit = 5

	var corpus []*entities.SearchCandidate
	for i := 0; i < 10; i++ {
		corpus = append(corpus, &entities.SearchCandidate{
			ID:        fmt.Sprintf("evt-%02d", i),
			Embedding: []float32{0, 1, 0},
			Status:    entities.EventStatusPublished,
		})
	}
	corpus = append(corpus,
		&entities.SearchCandidate{ID: "evt-99", Embedding: []float32{1, 0, 0}, Status: entities.EventStatusPublished},
		&entities.SearchCandidate{ID: "no-embedding", Status: entities.EventStatusPublished},
	)
	f := newSearchFixtureWithConfig(t, cfg, corpus...)
	filter := entities.SemanticFilter{Embedding: []float32{1, 0, 0}}

	page, err := f.svc.SearchByFilter(context.Background(), filter, 3, 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"evt-99", "evt-00", "evt-01"}, ids(page.Results))
	assert.InDelta(t, 1.0, page.Results[0].Score, 1e-9)
	assert.Equal(t, 11, page.Total)
	assert.True(t, page.HasMore)

	last, err := f.svc.SearchByFilter(context.Background(), filter, 3, 9)
	require.NoError(t, err)
	assert.Equal(t, []string{"evt-08", "evt-09"}, ids(last.Results))
	assert.Equal(t, 11, last.Total)
	assert.False(t, last.HasMore)
}

func TestSearchByFilter_StructuredListsByDate(t *testing.T) {
	base := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	f := newSearchFixture(t,
		&entities.SearchCandidate{ID: "e1", EventDate: base, Status: entities.EventStatusPublished},
		&entities.SearchCandidate{ID: "e2", EventDate: base.Add(24 * time.Hour), Status: entities.EventStatusPublished},
		&entities.SearchCandidate{ID: "e3", EventDate: base.Add(48 * time.Hour), Status: entities.EventStatusCancelled},
		&entities.SearchCandidate{ID: "e4", EventDate: base.Add(72 * time.Hour), Status: entities.EventStatusPublished},
	)
	filter := entities.StructuredFilter{Statuses: []entities.EventStatus{entities.EventStatusPublished}}

	page, err := f.svc.SearchByFilter(context.Background(), filter, 2, 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"e4", "e2"}, ids(page.Results))
	assert.Equal(t, 3, page.Total)
	assert.True(t, page.HasMore)
}

func TestSearchByFilter_HybridAppliesHardPredicates(t *testing.T) {
	lagos := entities.GeoPoint{Latitude: 6.5244, Longitude: 3.3792}
	abuja := entities.GeoPoint{Latitude: 9.0765, Longitude: 7.3986}
	f := newSearchFixture(t,
		&entities.SearchCandidate{ID: "lagos-close", Embedding: []float32{1, 0, 0}, Location: &lagos},
		&entities.SearchCandidate{ID: "abuja-closer", Embedding: []float32{1, 0, 0}, Location: &abuja},
		&entities.SearchCandidate{ID: "lagos-far", Embedding: []float32{0, 1, 0}, Location: &lagos},
	)

	page, err := f.svc.SearchByFilter(context.Background(), entities.HybridFilter{
		Embedding:  []float32{1, 0, 0},
		Structured: entities.StructuredFilter{Geo: &entities.GeoRadius{Center: lagos, RadiusKm: 25}},
	}, 10, 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"lagos-close", "lagos-far"}, ids(page.Results))
	assert.Equal(t, 2, page.Total)
}

func TestSearchByFilter_WithoutEmbeddingFallsBackToDateOrder(t *testing.T) {
	base := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	f := newSearchFixture(t,
		&entities.SearchCandidate{ID: "old", EventDate: base},
		&entities.SearchCandidate{ID: "new", EventDate: base.Add(time.Hour)},
	)

	page, err := f.svc.SearchByFilter(context.Background(), entities.SemanticFilter{}, 10, 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids(page.Results))
}

func TestSearchByFilter_NilFilterIsInputError(t *testing.T) {
	f := newSearchFixture(t)

	_, err := f.svc.SearchByFilter(context.Background(), nil, 10, 0)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInput))
}

func TestBrowseByDate_CursorPagination(t *testing.T) {
	base := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	var candidates []*entities.SearchCandidate
	for i := 0; i < 5; i++ {
		candidates = append(candidates, &entities.SearchCandidate{
			ID:        fmt.Sprintf("e%d", i),
			EventDate: base.Add(time.Duration(i/2) * time.Hour),
		})
	}
	f := newSearchFixture(t, candidates...)
	ctx := context.Background()

	var got []string
	cursor := ""
	for i := 0; i < 5; i++ {
		page, err := f.svc.BrowseByDate(ctx, entities.StructuredFilter{}, 2, cursor)
		require.NoError(t, err)
		got = append(got, ids(page.Results)...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, []string{"e4", "e3", "e2", "e1", "e0"}, got)

	scoreCursor := services.EncodeSearchCursor(entities.RankedResult{Candidate: &entities.SearchCandidate{ID: "e1"}, Score: 0.5})
	_, err := f.svc.BrowseByDate(ctx, entities.StructuredFilter{}, 2, scoreCursor)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInput))
}
