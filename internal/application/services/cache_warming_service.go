package services

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zatekoja/eventscan/internal/domain/repositories"
	"github.com/zatekoja/eventscan/internal/infrastructure/observability"
	"github.com/zatekoja/eventscan/pkg/config"
	"github.com/zatekoja/eventscan/pkg/utils"
)

const warmConcurrency = 4

// CacheWarmingService pre-computes query embeddings for the most searched queries
// so their next search skips the provider round trip.
type CacheWarmingService struct {
	analytics repositories.QueryAnalyticsRepository
	embedder  QueryEmbedder
	cfg       config.AnalyticsConfig
	now       func() time.Time
}

// NewCacheWarmingService creates a new cache warming service
func NewCacheWarmingService(
	analytics repositories.QueryAnalyticsRepository,
	embedder QueryEmbedder,
	cfg config.AnalyticsConfig,
) *CacheWarmingService {
	return &CacheWarmingService{
		analytics: analytics,
		embedder:  embedder,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WarmCache embeds the top queries of the analytics window and returns how many were warmed.
// Individual provider failures are logged and skipped.
func (s *CacheWarmingService) WarmCache(ctx context.Context) (int, error) {
	logger := observability.ComponentLogger(ctx, "cache_warming")

	limit := s.cfg.WarmQueryLimit
	if limit <= 0 {
		limit = 100
	}

	top, err := s.analytics.ListTopQueries(ctx, repositories.AnalyticsWindow{
		Since: s.now().AddDate(0, 0, -s.cfg.WindowDays),
		Limit: limit,
	})
	if err != nil {
		return 0, err
	}

	var warmed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)

	for _, record := range top {
		query := record.NormalizedQuery
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if _, err := s.embedder.Get(gctx, utils.MultiSlotText(query)); err != nil {
				logger.Warn().Err(err).Str("query", query).Msg("Failed to warm query embedding")
				return nil
			}
			warmed.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(warmed.Load()), err
	}

	logger.Info().Int64("warmed", warmed.Load()).Int("candidates", len(top)).Msg("Cache warming completed")
	return int(warmed.Load()), nil
}

// StartPeriodicWarming warms once, then again on every interval until ctx is done
func (s *CacheWarmingService) StartPeriodicWarming(ctx context.Context, interval time.Duration) {
	logger := observability.GetLogger()

	if _, err := s.WarmCache(ctx); err != nil {
		logger.Error().Err(err).Msg("Initial cache warming failed")
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info().Msg("Stopping cache warming service")
				return
			case <-ticker.C:
				if _, err := s.WarmCache(ctx); err != nil {
					logger.Error().Err(err).Msg("Periodic cache warming failed")
				}
			}
		}
	}()
	logger.Info().Dur("interval", interval).Msg("Started periodic cache warming")
}
