package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/eventscan/internal/domain/entities"
	"github.com/zatekoja/eventscan/internal/domain/repositories"
	"github.com/zatekoja/eventscan/internal/infrastructure/observability"
	"github.com/zatekoja/eventscan/pkg/config"
	apperrors "github.com/zatekoja/eventscan/pkg/errors"
	"github.com/zatekoja/eventscan/pkg/utils"
)

// QueryEmbedder resolves text to an embedding, usually through an EmbeddingCache
type QueryEmbedder interface {
	Get(ctx context.Context, text string) ([]float32, error)
}

// SearchTracker receives the outcome of every served search
type SearchTracker interface {
	TrackSearch(ctx context.Context, event *entities.SearchEvent)
}

// SearchServiceParams configures SearchService. Embedder, ResultCache, Tracker, Flags and
// Metrics may be nil.
type SearchServiceParams struct {
	Corpus      repositories.EventCorpusRepository
	Listing     repositories.EventListingRepository
	Ranking     *SearchRankingService
	Embedder    QueryEmbedder
	ResultCache *ResultCache
	Tracker     SearchTracker
	Flags       *FeatureFlags
	Config      config.SearchConfig
	Metrics     *observability.SearchMetrics
}

// SearchService orchestrates free-text, filter and date-ordered searches
type SearchService struct {
	corpus      repositories.EventCorpusRepository
	listing     repositories.EventListingRepository
	ranking     *SearchRankingService
	embedder    QueryEmbedder
	resultCache *ResultCache
	tracker     SearchTracker
	flags       *FeatureFlags
	cfg         config.SearchConfig
	metrics     *observability.SearchMetrics
	now         func() time.Time
}

// NewSearchService creates a SearchService
func NewSearchService(p SearchServiceParams) *SearchService {
	return &SearchService{
		corpus:      p.Corpus,
		listing:     p.Listing,
		ranking:     p.Ranking,
		embedder:    p.Embedder,
		resultCache: p.ResultCache,
		tracker:     p.Tracker,
		flags:       p.Flags,
		cfg:         p.Config,
		metrics:     p.Metrics,
		now:         time.Now,
	}
}

func emptyPage() *entities.SearchPage {
	return &entities.SearchPage{Results: []entities.RankedResult{}}
}

// Search ranks events for a free-text query and returns one page ordered by score desc, id asc.
//
// Only a cursor from an unknown ordering scheme is returned as an error. A malformed cursor
// restarts at the first page, and provider or storage failures degrade the page.
func (s *SearchService) Search(ctx context.Context, query string, pageSize int, cursor string) (*entities.SearchPage, error) {
	start := s.now()
	ctx, span := observability.StartSpan(ctx, "SearchService.Search")
	defer span.End()

	logger := observability.ComponentLogger(ctx, "search")

	if !utils.IsSearchable(query) {
		return emptyPage(), nil
	}
	normalized := utils.NormalizeQuery(query)
	if normalized == "" {
		return emptyPage(), nil
	}
	pageSize = s.clampPageSize(pageSize)

	var position *Cursor
	if cursor != "" {
		c, err := DecodeSearchCursor(cursor)
		switch {
		case errors.Is(err, ErrUnsupportedCursor):
			return nil, apperrors.NewInputError("cursor uses an unsupported ordering", err)
		case err != nil:
			logger.Warn().Err(err).Msg("Ignoring malformed cursor, serving first page")
			cursor = ""
		case c.Kind != CursorKindScore:
			return nil, apperrors.NewInputError("cursor does not belong to a relevance-ordered search", ErrUnsupportedCursor)
		default:
			position = &c
		}
	}

	observability.SetSpanAttributes(span,
		attribute.String("search.query", normalized),
		attribute.Int("search.page_size", pageSize),
		attribute.Bool("search.cursor", position != nil),
	)

	cacheKey := ResultCacheKey(normalized, pageSize, cursor)
	if s.cachingEnabled() {
		if page, ok := s.resultCache.Get(ctx, cacheKey); ok {
			s.track(ctx, query, page)
			s.metrics.RecordSearch(ctx, "search", false, s.now().Sub(start))
			return page, nil
		}
	}

	var (
		queryEmbedding []float32
		degraded       = true
	)
	if position == nil || !position.Degraded {
		queryEmbedding, degraded = s.embedQuery(ctx, normalized)
	}
	if position != nil && !position.Degraded && degraded {
		// Scores on either side of the cursor would come from different weightings.
		logger.Warn().Str("query", normalized).Msg("Semantic ranking unavailable for cursor, serving first degraded page")
		position = nil
	}

	candidates, err := s.corpus.FindCandidates(ctx, repositories.CandidatePrefilter{
		Phrase:           normalized,
		Terms:            prefilterTerms(normalized),
		Statuses:         entities.SearchableStatuses,
		RequireEmbedding: true,
		Limit:            s.cfg.CandidateLimit,
	})
	if err != nil {
		observability.RecordError(span, err)
		logger.Error().Err(err).Str("query", normalized).Msg("Failed to load search candidates")
		page := emptyPage()
		page.Degraded = true
		return page, nil
	}

	ranked := s.ranking.Rank(query, queryEmbedding, candidates)

	from := 0
	if position != nil {
		from = sort.Search(len(ranked), func(i int) bool {
			return position.FollowsScore(ranked[i].Score, ranked[i].Candidate.ID)
		})
	}
	to := min(from+pageSize, len(ranked))

	page := &entities.SearchPage{
		Results:  append([]entities.RankedResult{}, ranked[from:to]...),
		Degraded: degraded,
	}
	if to < len(ranked) && to > from {
		last := page.Results[len(page.Results)-1]
		if degraded {
			page.NextCursor = EncodeDegradedSearchCursor(last)
		} else {
			page.NextCursor = EncodeSearchCursor(last)
		}
	}

	if s.cachingEnabled() && !degraded {
		if err := s.resultCache.Set(ctx, cacheKey, page); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache search page")
		}
	}

	s.track(ctx, query, page)
	s.metrics.RecordSearch(ctx, "search", degraded, s.now().Sub(start))
	return page, nil
}

// SearchByFilter ranks events against a saved filter and returns an offset page.
// Embeddings are scored by similarity alone; structured predicates are hard filters; a
// filter without an embedding is listed by date.
func (s *SearchService) SearchByFilter(ctx context.Context, filter entities.Filter, pageSize, offset int) (*entities.FilterPage, error) {
	start := s.now()
	ctx, span := observability.StartSpan(ctx, "SearchService.SearchByFilter")
	defer span.End()

	pageSize = s.clampPageSize(pageSize)
	if offset < 0 {
		offset = 0
	}

	var (
		page *entities.FilterPage
		err  error
	)
	switch f := filter.(type) {
	case entities.SemanticFilter:
		page, err = s.rankByEmbedding(ctx, f.Embedding, entities.StructuredFilter{}, pageSize, offset)
	case *entities.SemanticFilter:
		page, err = s.rankByEmbedding(ctx, f.Embedding, entities.StructuredFilter{}, pageSize, offset)
	case entities.StructuredFilter:
		page, err = s.listByDate(ctx, f, pageSize, offset)
	case *entities.StructuredFilter:
		page, err = s.listByDate(ctx, *f, pageSize, offset)
	case entities.HybridFilter:
		page, err = s.rankByEmbedding(ctx, f.Embedding, f.Structured, pageSize, offset)
	case *entities.HybridFilter:
		page, err = s.rankByEmbedding(ctx, f.Embedding, f.Structured, pageSize, offset)
	default:
		return nil, apperrors.NewInputError("unsupported filter", nil)
	}

	if err != nil {
		observability.RecordError(span, err)
		observability.ComponentLogger(ctx, "search").Error().Err(err).Msg("Filter search failed")
		return &entities.FilterPage{Results: []entities.RankedResult{}}, nil
	}

	s.metrics.RecordSearch(ctx, "filter", false, s.now().Sub(start))
	return page, nil
}

// BrowseByDate lists events matching filter by event date desc, id desc, one cursor page at a time
func (s *SearchService) BrowseByDate(ctx context.Context, filter entities.StructuredFilter, pageSize int, cursor string) (*entities.SearchPage, error) {
	start := s.now()
	ctx, span := observability.StartSpan(ctx, "SearchService.BrowseByDate")
	defer span.End()

	logger := observability.ComponentLogger(ctx, "search")
	pageSize = s.clampPageSize(pageSize)

	params := repositories.DateListParams{Structured: filter, Limit: pageSize + 1}
	if cursor != "" {
		c, err := DecodeSearchCursor(cursor)
		switch {
		case errors.Is(err, ErrUnsupportedCursor):
			return nil, apperrors.NewInputError("cursor uses an unsupported ordering", err)
		case err != nil:
			logger.Warn().Err(err).Msg("Ignoring malformed cursor, serving first page")
		case c.Kind != CursorKindDate:
			return nil, apperrors.NewInputError("cursor does not belong to a date-ordered listing", ErrUnsupportedCursor)
		default:
			params.AfterDate = c.Timestamp
			params.AfterID = c.TieBreakID
		}
	}

	items, err := s.listing.ListByDate(ctx, params)
	if err != nil {
		observability.RecordError(span, err)
		logger.Error().Err(err).Msg("Failed to list events by date")
		page := emptyPage()
		page.Degraded = true
		return page, nil
	}

	page := emptyPage()
	if len(items) > pageSize {
		items = items[:pageSize]
		page.NextCursor = EncodeDateCursor(items[len(items)-1])
	}
	page.Results = unscored(items)

	s.metrics.RecordSearch(ctx, "browse", false, s.now().Sub(start))
	return page, nil
}

func (s *SearchService) rankByEmbedding(ctx context.Context, embedding []float32, structured entities.StructuredFilter, pageSize, offset int) (*entities.FilterPage, error) {
	if len(embedding) == 0 {
		return s.listByDate(ctx, structured, pageSize, offset)
	}

	criteria := repositories.FilterCriteria{Structured: structured, RequireEmbedding: true}
	total, err := s.listing.CountByFilter(ctx, criteria)
	if err != nil {
		return nil, err
	}

	// Storage orders by distance, so the first offset+pageSize rows hold this page.
	criteria.Embedding = embedding
	criteria.Limit = offset + pageSize
	candidates, err := s.listing.FindByFilter(ctx, criteria)
	if err != nil {
		return nil, err
	}

	// Predicates are re-applied here; not every backend enforces all of them.
	kept := make([]*entities.SearchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if structured.Matches(c) {
			kept = append(kept, c)
		}
	}

	ranked := s.ranking.RankBySimilarity(embedding, kept)
	from := min(offset, len(ranked))
	to := min(from+pageSize, len(ranked))

	return &entities.FilterPage{
		Results: append([]entities.RankedResult{}, ranked[from:to]...),
		Total:   total,
		HasMore: offset+pageSize < total,
	}, nil
}

func (s *SearchService) listByDate(ctx context.Context, structured entities.StructuredFilter, pageSize, offset int) (*entities.FilterPage, error) {
	total, err := s.listing.CountByFilter(ctx, repositories.FilterCriteria{Structured: structured})
	if err != nil {
		return nil, err
	}

	items, err := s.listing.ListByDate(ctx, repositories.DateListParams{
		Structured: structured,
		Offset:     offset,
		Limit:      pageSize,
	})
	if err != nil {
		return nil, err
	}

	return &entities.FilterPage{
		Results: unscored(items),
		Total:   total,
		HasMore: offset+len(items) < total,
	}, nil
}

// embedQuery returns the query embedding, or nil and true when ranking must degrade
func (s *SearchService) embedQuery(ctx context.Context, normalized string) ([]float32, bool) {
	if s.embedder == nil || !s.flags.SemanticSearchEnabled() {
		return nil, true
	}

	vec, err := s.embedder.Get(ctx, utils.MultiSlotText(normalized))
	if err != nil {
		observability.ComponentLogger(ctx, "search").Warn().Err(err).
			Str("query", normalized).
			Msg("Embedding provider unavailable, ranking without semantic similarity")
		return nil, true
	}
	return vec, false
}

func (s *SearchService) track(ctx context.Context, query string, page *entities.SearchPage) {
	if s.tracker == nil {
		return
	}

	s.tracker.TrackSearch(ctx, &entities.SearchEvent{
		Query:       query,
		ResultCount: len(page.Results),
		EventIDs:    page.EventIDs(),
		CategoryIDs: page.CategoryIDs(),
		Timestamp:   s.now(),
		FromCache:   page.FromCache,
		Degraded:    page.Degraded,
	})
}

func (s *SearchService) cachingEnabled() bool {
	return s.resultCache != nil && s.flags.ResultCacheEnabled()
}

func (s *SearchService) clampPageSize(pageSize int) int {
	maxSize := s.cfg.MaxPageSize
	if maxSize <= 0 {
		maxSize = 50
	}
	if pageSize <= 0 {
		pageSize = s.cfg.DefaultPageSize
	}
	if pageSize <= 0 {
		pageSize = min(20, maxSize)
	}
	return min(pageSize, maxSize)
}

// prefilterTerms are the OR-patterns handed to the corpus. A query made only of
// one-rune words falls back to the whole phrase.
func prefilterTerms(normalized string) []string {
	terms := utils.QueryTerms(normalized)
	if len(terms) == 0 {
		return []string{normalized}
	}
	return terms
}

func unscored(items []*entities.SearchCandidate) []entities.RankedResult {
	out := make([]entities.RankedResult, len(items))
	for i, c := range items {
		out[i] = entities.RankedResult{Candidate: c}
	}
	return out
}
