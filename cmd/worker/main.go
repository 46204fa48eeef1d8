package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zatekoja/eventscan/internal/adapters/cache"
	"github.com/zatekoja/eventscan/internal/adapters/database"
	"github.com/zatekoja/eventscan/internal/adapters/providers/embedding"
	"github.com/zatekoja/eventscan/internal/application/services"
	"github.com/zatekoja/eventscan/internal/domain/providers"
	"github.com/zatekoja/eventscan/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/eventscan/internal/infrastructure/clients/redis"
	"github.com/zatekoja/eventscan/internal/infrastructure/observability"
	"github.com/zatekoja/eventscan/pkg/config"
)

func main() {
	var once, clusters bool
	var threshold float64
	flag.BoolVar(&once, "once", false, "refresh query flags and warm the embedding cache once, then exit")
	flag.BoolVar(&clusters, "clusters", false, "print the query cluster report as JSON and exit")
	flag.Float64Var(&threshold, "threshold", 0, "similarity threshold for -clusters (default from config)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName+"-worker", cfg.Environment)
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, err := observability.InitMetrics()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()
	analyticsRepo := database.NewQueryAnalyticsAdapter(pgClient)

	// warming is only useful when the API processes share the Redis tier
	var shared providers.CacheProvider
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable; embeddings will not be shared with API processes")
	} else {
		defer redisClient.Close()
		shared = cache.NewRedisAdapter(redisClient)
	}

	embedder := services.NewEmbeddingCache(
		embedding.NewEmbeddingProvider(&cfg.OpenAI, embedding.DefaultBreakerConfig()),
		services.EmbeddingCacheConfig{
			Size:      cfg.Search.EmbeddingCacheSize,
			TTL:       cfg.Search.EmbeddingCacheTTL,
			Shared:    shared,
			SharedTTL: cfg.Search.SharedEmbeddingTTL,
			Metrics:   metrics,
		},
	)

	analyticsService := services.NewSearchAnalyticsService(analyticsRepo, cfg.Analytics, cfg.Search.MaxPageSize, metrics)
	warmingService := services.NewCacheWarmingService(analyticsRepo, embedder, cfg.Analytics)

	if clusters {
		clusteringService := services.NewQueryClusteringService(analyticsRepo, embedder, cfg.Analytics, metrics)
		report, err := clusteringService.GetQueryClusters(ctx, threshold)
		if err != nil {
			logger.Fatal().Err(err).Msg("Query clustering failed")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logger.Fatal().Err(err).Msg("Failed to write cluster report")
		}
		return
	}

	if once {
		if _, err := analyticsService.UpdateQueryFlags(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Flag update failed")
		}
		warmed, err := warmingService.WarmCache(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("Cache warming failed")
		}
		logger.Info().Int("warmed", warmed).Msg("Worker run complete")
		return
	}

	if cfg.Analytics.WarmInterval > 0 {
		go warmingService.StartPeriodicWarming(ctx, cfg.Analytics.WarmInterval)
	}

	logger.Info().Dur("flag_interval", cfg.Analytics.FlagUpdateInterval).Msg("Worker started")
	analyticsService.StartPeriodicFlagUpdates(ctx)
	logger.Info().Msg("Worker stopped")
}
