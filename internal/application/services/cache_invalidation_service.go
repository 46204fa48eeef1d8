package services

import (
	"context"
	"fmt"
	"time"

	"github.com/zatekoja/eventscan/internal/domain/entities"
	"github.com/zatekoja/eventscan/internal/domain/providers"
	"github.com/zatekoja/eventscan/internal/domain/repositories"
	"github.com/zatekoja/eventscan/internal/infrastructure/observability"
)

// CacheInvalidationService drops cached result pages when events change
type CacheInvalidationService struct {
	results  *ResultCache
	index    repositories.EventIndexRepository
	eventBus providers.EventBus
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewCacheInvalidationService creates a new cache invalidation service.
// index may be nil when the corpus is read straight from the primary store.
func NewCacheInvalidationService(results *ResultCache, index repositories.EventIndexRepository, eventBus providers.EventBus) *CacheInvalidationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CacheInvalidationService{
		results:  results,
		index:    index,
		eventBus: eventBus,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins listening for event updates
func (s *CacheInvalidationService) Start() error {
	updates, err := s.eventBus.Subscribe(s.ctx, providers.EventChannelEventUpdates)
	if err != nil {
		return fmt.Errorf("failed to subscribe to event updates: %w", err)
	}

	go s.processUpdates(updates)
	observability.GetLogger().Info().Msg("Cache invalidation service started")
	return nil
}

// Stop stops the cache invalidation service
func (s *CacheInvalidationService) Stop() {
	s.cancel()
	observability.GetLogger().Info().Msg("Cache invalidation service stopped")
}

func (s *CacheInvalidationService) processUpdates(updates <-chan *entities.EventUpdate) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update == nil {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.HandleUpdate(ctx, update); err != nil {
				observability.GetLogger().Warn().Err(err).
					Str("event_id", update.EventID).
					Str("type", string(update.Type)).
					Msg("Cache invalidation failed")
			}
			cancel()
		}
	}
}

// HandleUpdate applies one event update. Engagement-only updates leave caches alone;
// anything that can change membership or text of a result page drops every cached page.
func (s *CacheInvalidationService) HandleUpdate(ctx context.Context, update *entities.EventUpdate) error {
	removes := update.RemovesFromResults()
	if !removes && !update.ChangesSearchableText() {
		return nil
	}

	logger := observability.ComponentLogger(ctx, "cache_invalidation")

	if removes && s.index != nil {
		if err := s.index.Delete(ctx, update.EventID); err != nil {
			logger.Warn().Err(err).Str("event_id", update.EventID).Msg("Failed to remove event from search index")
		}
	}

	if err := s.InvalidateSearchCaches(ctx); err != nil {
		return err
	}

	logger.Debug().
		Str("event_id", update.EventID).
		Str("type", string(update.Type)).
		Msg("Invalidated cached search pages")
	return nil
}

// InvalidateSearchCaches drops every cached result page
func (s *CacheInvalidationService) InvalidateSearchCaches(ctx context.Context) error {
	if s.results == nil {
		return nil
	}
	if err := s.results.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("failed to invalidate search results: %w", err)
	}
	return nil
}
