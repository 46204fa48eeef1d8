package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/eventscan/internal/domain/entities"
)

// AnalyticsWindow bounds a read to records last searched at or after Since
type AnalyticsWindow struct {
	Since time.Time
	Limit int
}

// FlagThresholds drive the isPopular and needsAttention maintenance pass
type FlagThresholds struct {
	Since                time.Time
	PopularMinSearches   int
	AttentionMaxHitRate  float64
	AttentionMinSearches int
}

// QueryAnalyticsRepository stores one QueryAnalyticsRecord per normalized query
type QueryAnalyticsRepository interface {
	// GetByNormalizedQuery returns a NOT_FOUND AppError when no record exists
	GetByNormalizedQuery(ctx context.Context, normalizedQuery string) (*entities.QueryAnalyticsRecord, error)
	// Upsert inserts or overwrites the record keyed by its normalized query
	Upsert(ctx context.Context, record *entities.QueryAnalyticsRecord) error
	// ListByMinSearches returns records with at least minSearches searches, by volume desc
	ListByMinSearches(ctx context.Context, minSearches int) ([]*entities.QueryAnalyticsRecord, error)
	ListTopQueries(ctx context.Context, window AnalyticsWindow) ([]*entities.QueryAnalyticsRecord, error)
	ListZeroResultQueries(ctx context.Context, window AnalyticsWindow) ([]*entities.QueryAnalyticsRecord, error)
	ListNeedingAttention(ctx context.Context, window AnalyticsWindow) ([]*entities.QueryAnalyticsRecord, error)
	ListPopular(ctx context.Context, limit int) ([]*entities.QueryAnalyticsRecord, error)
	Summarize(ctx context.Context, since time.Time) (*entities.QueryAnalyticsSummary, error)
	UpdateFlags(ctx context.Context, thresholds FlagThresholds) (*entities.FlagUpdateResult, error)
}
