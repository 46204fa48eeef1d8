package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zatekoja/eventscan/internal/domain/entities"
	"github.com/zatekoja/eventscan/internal/domain/repositories"
	"github.com/zatekoja/eventscan/internal/infrastructure/observability"
	"github.com/zatekoja/eventscan/pkg/config"
	apperrors "github.com/zatekoja/eventscan/pkg/errors"
	"github.com/zatekoja/eventscan/pkg/utils"
)

// SearchAnalyticsService aggregates search outcomes per normalized query.
//
// Tracking is best effort: two concurrent searches for the same query may both load the
// same record and the later write wins, losing one increment. Counters are advisory.
type SearchAnalyticsService struct {
	repo        repositories.QueryAnalyticsRepository
	cfg         config.AnalyticsConfig
	maxPageSize int
	metrics     *observability.SearchMetrics
	now         func() time.Time
	wg          sync.WaitGroup
}

func NewSearchAnalyticsService(
	repo repositories.QueryAnalyticsRepository,
	cfg config.AnalyticsConfig,
	maxPageSize int,
	metrics *observability.SearchMetrics,
) *SearchAnalyticsService {
	return &SearchAnalyticsService{
		repo:        repo,
		cfg:         cfg,
		maxPageSize: maxPageSize,
		metrics:     metrics,
		now:         time.Now,
	}
}

// TrackSearch records a search in the background. It never blocks on storage and never
// fails the caller; a search whose request context is already done is not tracked.
func (s *SearchAnalyticsService) TrackSearch(ctx context.Context, event *entities.SearchEvent) {
	if ctx.Err() != nil {
		return
	}

	s.wg.Add(1)
	// Execute in background to not block the user request
	go func() {
		defer s.wg.Done()

		// Use a fresh context since the request context might be cancelled
		bgCtx, cancel := context.WithTimeout(context.Background(), s.trackTimeout())
		defer cancel()

		if err := s.RecordSearch(bgCtx, event); err != nil {
			s.metrics.RecordAnalyticsFailure(bgCtx)
			observability.GetLogger().Warn().Err(err).Str("query", event.Query).Msg("Failed to track search")
		}
	}()
}

// Wait blocks until every in-flight TrackSearch has finished
func (s *SearchAnalyticsService) Wait() {
	s.wg.Wait()
}

// RecordSearch is the synchronous body of TrackSearch
func (s *SearchAnalyticsService) RecordSearch(ctx context.Context, event *entities.SearchEvent) error {
	normalized := utils.NormalizeQuery(event.Query)
	if normalized == "" {
		return apperrors.NewValidationError("query is empty after normalization")
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	record, err := s.repo.GetByNormalizedQuery(ctx, normalized)
	switch {
	case apperrors.IsType(err, apperrors.ErrorTypeNotFound):
		record = entities.NewQueryAnalyticsRecord(uuid.NewString(), normalized, event.Query, ts)
	case err != nil:
		return apperrors.NewAnalyticsError("failed to load query analytics", err)
	}

	count := event.ResultCount
	if count < 0 {
		count = 0
	}
	if s.maxPageSize > 0 && count > s.maxPageSize {
		count = s.maxPageSize
	}

	record.TotalSearches++
	record.TotalHits += count
	if count == 0 {
		record.ZeroResultSearches++
	}
	record.Recompute()

	if ts.After(record.LastSearchedAt) {
		record.LastSearchedAt = ts
	}
	if record.FirstSearchedAt.IsZero() || ts.Before(record.FirstSearchedAt) {
		record.FirstSearchedAt = ts
	}
	if record.RawQuery == "" {
		record.RawQuery = event.Query
	}

	eventIDs := event.EventIDs
	if s.maxPageSize > 0 && len(eventIDs) > s.maxPageSize {
		eventIDs = eventIDs[:s.maxPageSize]
	}
	record.TopResults = entities.MergeRankedCounts(record.TopResults, eventIDs, entities.MaxTopResults)
	record.TopCategories = entities.MergeRankedCounts(record.TopCategories, event.CategoryIDs, entities.MaxTopCategories)

	if err := s.repo.Upsert(ctx, record); err != nil {
		return apperrors.NewAnalyticsError("failed to upsert query analytics", err)
	}
	return nil
}

// UpdateQueryFlags recomputes isPopular and needsAttention for every record. Safe to re-run.
func (s *SearchAnalyticsService) UpdateQueryFlags(ctx context.Context) (*entities.FlagUpdateResult, error) {
	result, err := s.repo.UpdateFlags(ctx, repositories.FlagThresholds{
		Since:                s.windowStart(s.cfg.WindowDays),
		PopularMinSearches:   s.cfg.PopularMinSearches,
		AttentionMaxHitRate:  s.cfg.AttentionMaxHitRate,
		AttentionMinSearches: s.cfg.AttentionMinSearches,
	})
	if err != nil {
		return nil, apperrors.NewAnalyticsError("failed to update query flags", err)
	}

	observability.LoggerFromContext(ctx).Info().
		Int64("popular", result.Popular).
		Int64("needs_attention", result.NeedsAttention).
		Msg("Updated query flags")
	return result, nil
}

// StartPeriodicFlagUpdates runs UpdateQueryFlags on the configured interval until ctx is done
func (s *SearchAnalyticsService) StartPeriodicFlagUpdates(ctx context.Context) {
	interval := s.cfg.FlagUpdateInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.UpdateQueryFlags(ctx); err != nil {
			observability.LoggerFromContext(ctx).Error().Err(err).Msg("Periodic flag update failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// GetZeroResultQueries returns queries that produced zero results at least once, worst first
func (s *SearchAnalyticsService) GetZeroResultQueries(ctx context.Context, limit int) ([]*entities.QueryAnalyticsRecord, error) {
	records, err := s.repo.ListZeroResultQueries(ctx, repositories.AnalyticsWindow{Limit: limit})
	if err != nil {
		return nil, apperrors.NewAnalyticsError("failed to list zero-result queries", err)
	}
	return records, nil
}

// GetPopularQueries returns queries currently flagged popular
func (s *SearchAnalyticsService) GetPopularQueries(ctx context.Context, limit int) ([]*entities.QueryAnalyticsRecord, error) {
	records, err := s.repo.ListPopular(ctx, limit)
	if err != nil {
		return nil, apperrors.NewAnalyticsError("failed to list popular queries", err)
	}
	return records, nil
}

// GetQueryInsights builds the curator report over the last windowDays days
func (s *SearchAnalyticsService) GetQueryInsights(ctx context.Context, windowDays int, limits entities.InsightLimits) (*entities.QueryInsights, error) {
	if windowDays <= 0 {
		windowDays = s.cfg.WindowDays
	}
	since := s.windowStart(windowDays)

	summary, err := s.repo.Summarize(ctx, since)
	if err != nil {
		return nil, apperrors.NewAnalyticsError("failed to summarize query analytics", err)
	}

	top, err := s.repo.ListTopQueries(ctx, repositories.AnalyticsWindow{Since: since, Limit: limits.TopQueries})
	if err != nil {
		return nil, apperrors.NewAnalyticsError("failed to list top queries", err)
	}

	zero, err := s.repo.ListZeroResultQueries(ctx, repositories.AnalyticsWindow{Since: since, Limit: limits.ZeroResult})
	if err != nil {
		return nil, apperrors.NewAnalyticsError("failed to list zero-result queries", err)
	}

	attention, err := s.repo.ListNeedingAttention(ctx, repositories.AnalyticsWindow{Since: since, Limit: limits.NeedsAttention})
	if err != nil {
		return nil, apperrors.NewAnalyticsError("failed to list queries needing attention", err)
	}

	return &entities.QueryInsights{
		WindowDays:        windowDays,
		GeneratedAt:       s.now(),
		Summary:           *summary,
		TopQueries:        top,
		ZeroResultQueries: zero,
		NeedsAttention:    attention,
	}, nil
}

func (s *SearchAnalyticsService) windowStart(days int) time.Time {
	return s.now().AddDate(0, 0, -days)
}

func (s *SearchAnalyticsService) trackTimeout() time.Duration {
	if s.cfg.TrackTimeout > 0 {
		return s.cfg.TrackTimeout
	}
	return 5 * time.Second
}
