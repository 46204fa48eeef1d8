package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/zatekoja/eventscan/internal/adapters/database"
	"github.com/zatekoja/eventscan/internal/adapters/search"
	"github.com/zatekoja/eventscan/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/eventscan/internal/infrastructure/clients/typesense"
	"github.com/zatekoja/eventscan/internal/infrastructure/observability"
	"github.com/zatekoja/eventscan/pkg/config"
)

const batchSize = 500

func main() {
	var reset bool
	var intervalFlag string
	flag.BoolVar(&reset, "reset", false, "delete existing Typesense collection before reindexing")
	flag.StringVar(&intervalFlag, "interval", "", "repeat interval for reindexing (e.g. 6h, 30m)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-indexer", cfg.Environment)
	logger := observability.GetLogger()

	intervalValue := strings.TrimSpace(intervalFlag)
	if intervalValue == "" {
		intervalValue = strings.TrimSpace(os.Getenv("REINDEX_INTERVAL"))
	}

	var interval time.Duration
	if intervalValue != "" {
		interval, err = time.ParseDuration(intervalValue)
		if err != nil {
			logger.Fatal().Err(err).Str("interval", intervalValue).Msg("Invalid interval")
		}
		if interval <= 0 {
			logger.Fatal().Msg("Interval must be greater than zero")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		if err := indexOnce(ctx, cfg, reset); err != nil {
			logger.Error().Err(err).Msg("Reindex failed")
		}

		if interval <= 0 {
			break
		}

		reset = false
		logger.Info().Dur("next_run_in", interval).Msg("Reindex complete")

		select {
		case <-ctx.Done():
			logger.Info().Msg("Reindexer shutting down")
			return
		case <-time.After(interval):
		}
	}
}

func indexOnce(ctx context.Context, cfg *config.Config, reset bool) error {
	logger := observability.GetLogger()

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		return err
	}
	defer pgClient.Close()

	tsClient, err := typesense.NewClient(&cfg.Typesense)
	if err != nil {
		return err
	}

	if reset || os.Getenv("RESET_TYPESENSE") == "true" {
		logger.Warn().Msg("Reset requested, deleting events collection")
		if _, err := tsClient.Client().Collection(typesense.EventsCollection).Delete(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to delete collection")
		}
	}

	if err := tsClient.InitSchema(ctx, cfg.OpenAI.Dimensions); err != nil {
		return err
	}

	events := database.NewEventCorpusAdapter(pgClient)
	index := search.NewTypesenseAdapter(tsClient)

	var indexed, failed int
	afterID := ""
	for {
		batch, err := events.ListAfterID(ctx, afterID, batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		for _, event := range batch {
			if err := index.Index(ctx, event); err != nil {
				failed++
				logger.Warn().Err(err).Str("event_id", event.ID).Msg("Failed to index event")
				continue
			}
			indexed++
		}

		afterID = batch[len(batch)-1].ID
		logger.Info().Int("indexed", indexed).Str("after_id", afterID).Msg("Indexed batch")
	}

	logger.Info().Int("indexed", indexed).Int("failed", failed).Msg("Indexing complete")
	return nil
}
