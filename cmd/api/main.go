package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zatekoja/eventscan/internal/adapters/cache"
	"github.com/zatekoja/eventscan/internal/adapters/database"
	"github.com/zatekoja/eventscan/internal/adapters/events"
	"github.com/zatekoja/eventscan/internal/adapters/memory"
	"github.com/zatekoja/eventscan/internal/adapters/providers/embedding"
	"github.com/zatekoja/eventscan/internal/adapters/search"
	"github.com/zatekoja/eventscan/internal/api/handlers"
	"github.com/zatekoja/eventscan/internal/api/routes"
	"github.com/zatekoja/eventscan/internal/application/services"
	"github.com/zatekoja/eventscan/internal/domain/providers"
	"github.com/zatekoja/eventscan/internal/domain/repositories"
	"github.com/zatekoja/eventscan/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/eventscan/internal/infrastructure/clients/redis"
	"github.com/zatekoja/eventscan/internal/infrastructure/clients/typesense"
	"github.com/zatekoja/eventscan/internal/infrastructure/observability"
	"github.com/zatekoja/eventscan/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Environment)
	logger := observability.GetLogger()

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			logger.Info().Msg("OpenTelemetry initialized successfully")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	// Storage backends
	var (
		corpus        repositories.EventCorpusRepository
		listing       repositories.EventListingRepository
		index         repositories.EventIndexRepository
		analyticsRepo repositories.QueryAnalyticsRepository
	)

	if cfg.Search.CorpusBackend == "memory" {
		store := memory.NewEventStore()
		corpus, listing, index = store, store, store
		analyticsRepo = memory.NewQueryAnalyticsStore()
		logger.Warn().Msg("Using in-memory event corpus and analytics store")
	} else {
		pgClient, err := postgres.NewClient(&cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
		}
		defer pgClient.Close()
		logger.Info().Msg("PostgreSQL client initialized successfully")

		corpusAdapter := database.NewEventCorpusAdapter(pgClient)
		corpus, listing = corpusAdapter, corpusAdapter
		analyticsRepo = database.NewQueryAnalyticsAdapter(pgClient)

		if cfg.Search.CorpusBackend == "typesense" {
			tsClient, err := typesense.NewClient(&cfg.Typesense)
			if err != nil {
				logger.Fatal().Err(err).Msg("Failed to initialize Typesense client")
			}
			if err := tsClient.InitSchema(ctx, cfg.OpenAI.Dimensions); err != nil {
				logger.Warn().Err(err).Msg("Failed to init Typesense schema")
			}
			tsAdapter := search.NewTypesenseAdapter(tsClient)
			corpus, index = tsAdapter, tsAdapter
			logger.Info().Msg("Typesense candidate retrieval enabled")
		}
	}

	// Redis is optional: without it caches are per-process and invalidation is local only
	var (
		cacheProvider providers.CacheProvider
		sharedCache   providers.CacheProvider
		eventBus      providers.EventBus
	)
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize Redis client, continuing with in-process caches")
		memCache, err := memory.NewCacheAdapter(cfg.Search.EmbeddingCacheSize)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize in-memory cache")
		}
		cacheProvider = memCache
	} else {
		defer redisClient.Close()
		cacheProvider = cache.NewRedisAdapter(redisClient)
		sharedCache = cacheProvider
		eventBus = events.NewRedisEventBus(redisClient)
		logger.Info().Msg("Redis cache and event bus initialized successfully")
	}

	if cfg.Search.CorpusBackend != "memory" && cfg.Search.ResultCacheEnabled {
		listing = database.NewCachedEventListingAdapter(listing, cacheProvider, cfg.Search.ResultCacheTTL)
	}

	provider := embedding.NewEmbeddingProvider(&cfg.OpenAI, embedding.DefaultBreakerConfig())
	embedder := services.NewEmbeddingCache(provider, services.EmbeddingCacheConfig{
		Size:      cfg.Search.EmbeddingCacheSize,
		TTL:       cfg.Search.EmbeddingCacheTTL,
		Shared:    sharedCache,
		SharedTTL: cfg.Search.SharedEmbeddingTTL,
		Metrics:   metrics,
	})
	resultCache := services.NewResultCache(cacheProvider, cfg.Search.ResultCacheTTL, metrics)

	analyticsService := services.NewSearchAnalyticsService(analyticsRepo, cfg.Analytics, cfg.Search.MaxPageSize, metrics)
	clusteringService := services.NewQueryClusteringService(analyticsRepo, embedder, cfg.Analytics, metrics)

	searchService := services.NewSearchService(services.SearchServiceParams{
		Corpus:      corpus,
		Listing:     listing,
		Ranking:     services.NewSearchRankingService(cfg.Search.Weights, provider),
		Embedder:    embedder,
		ResultCache: resultCache,
		Tracker:     analyticsService,
		Flags:       services.NewFeatureFlags(cfg.Search),
		Config:      cfg.Search,
		Metrics:     metrics,
	})

	var invalidationService *services.CacheInvalidationService
	if eventBus != nil {
		invalidationService = services.NewCacheInvalidationService(resultCache, index, eventBus)
		if err := invalidationService.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start cache invalidation service")
		} else {
			logger.Info().Msg("Cache invalidation service started successfully")
		}
	}

	warmingService := services.NewCacheWarmingService(analyticsRepo, embedder, cfg.Analytics)
	if cfg.Analytics.WarmInterval > 0 {
		go warmingService.StartPeriodicWarming(ctx, cfg.Analytics.WarmInterval)
	}

	router := routes.NewRouter(
		handlers.NewSearchHandler(searchService),
		handlers.NewAnalyticsHandler(analyticsService, clusteringService),
		metrics,
	)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", serverAddr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Server shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during server shutdown")
	}

	if invalidationService != nil {
		invalidationService.Stop()
	}
	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing event bus")
		}
	}

	// let in-flight analytics writes finish
	analyticsService.Wait()

	logger.Info().Msg("Server stopped")
}
