package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/zatekoja/eventscan/internal/domain/entities"
	"github.com/zatekoja/eventscan/internal/domain/providers"
	"github.com/zatekoja/eventscan/internal/domain/repositories"
	"github.com/zatekoja/eventscan/internal/infrastructure/observability"
)

// filterCountKeyPrefix sits under the result cache prefix so dropping all result pages
// also drops cached totals
const filterCountKeyPrefix = "search:results:count:"

// CachedEventListingAdapter wraps an EventListingRepository and caches filter totals.
// COUNT(*) over a date range or radius is the slowest part of an offset filter page and
// is repeated for every page of the same filter.
type CachedEventListingAdapter struct {
	adapter repositories.EventListingRepository
	cache   providers.CacheProvider
	ttl     time.Duration
}

var _ repositories.EventListingRepository = (*CachedEventListingAdapter)(nil)

// NewCachedEventListingAdapter creates a new cached listing adapter
func NewCachedEventListingAdapter(adapter repositories.EventListingRepository, cache providers.CacheProvider, ttl time.Duration) *CachedEventListingAdapter {
	if ttl < time.Second {
		ttl = time.Minute
	}
	return &CachedEventListingAdapter{adapter: adapter, cache: cache, ttl: ttl}
}

// filterCountCacheKey hashes only the fields that change a count
func filterCountCacheKey(criteria repositories.FilterCriteria) (string, error) {
	payload, err := json.Marshal(struct {
		Structured       entities.StructuredFilter `json:"structured"`
		RequireEmbedding bool                      `json:"require_embedding,omitempty"`
	}{criteria.Structured, criteria.RequireEmbedding})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return filterCountKeyPrefix + hex.EncodeToString(sum[:]), nil
}

// FindByFilter is not cached; candidates carry embeddings and are too large to store per filter
func (a *CachedEventListingAdapter) FindByFilter(ctx context.Context, criteria repositories.FilterCriteria) ([]*entities.SearchCandidate, error) {
	return a.adapter.FindByFilter(ctx, criteria)
}

// ListByDate is not cached; keyset pages are cheap
func (a *CachedEventListingAdapter) ListByDate(ctx context.Context, params repositories.DateListParams) ([]*entities.SearchCandidate, error) {
	return a.adapter.ListByDate(ctx, params)
}

// CountByFilter returns the number of events matching criteria, with caching
func (a *CachedEventListingAdapter) CountByFilter(ctx context.Context, criteria repositories.FilterCriteria) (int, error) {
	logger := observability.ComponentLogger(ctx, "listing_cache")

	cacheKey, err := filterCountCacheKey(criteria)
	if err != nil {
		return a.adapter.CountByFilter(ctx, criteria)
	}

	if cached, err := a.cache.Get(ctx, cacheKey); err == nil {
		if count, err := strconv.Atoi(string(cached)); err == nil {
			return count, nil
		}
		logger.Warn().Str("key", cacheKey).Msg("Discarding corrupt cached filter count")
	}

	count, err := a.adapter.CountByFilter(ctx, criteria)
	if err != nil {
		return 0, err
	}

	// Update cache asynchronously to avoid blocking the response
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.cache.Set(bgCtx, cacheKey, []byte(strconv.Itoa(count)), int(a.ttl.Seconds())); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache filter count")
		}
	}()

	return count, nil
}
