package typesense

import (
	"context"
	"fmt"
	"time"

	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"

	"github.com/zatekoja/eventscan/internal/infrastructure/observability"
	"github.com/zatekoja/eventscan/pkg/config"
	"github.com/zatekoja/eventscan/pkg/retry"
)

const (
	EventsCollection = "events"
)

// Client represents a Typesense client
type Client struct {
	client *typesense.Client
}

// NewClient creates a new Typesense client with exponential backoff retry
func NewClient(cfg *config.TypesenseConfig) (*Client, error) {
	client := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(5*time.Second),
	)

	logger := observability.GetLogger()
	err := retry.DoWithLog(
		context.Background(),
		retry.DefaultConfig(),
		"Typesense",
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := client.Health(ctx, 2*time.Second)
			return err
		},
		func(attempt int, err error, nextDelay time.Duration) {
			logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", nextDelay).Msg("Typesense connection attempt failed")
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Typesense after retries: %w", err)
	}

	logger.Info().Str("url", cfg.URL).Msg("Connected to Typesense")
	return &Client{client: client}, nil
}

// Client returns the underlying Typesense client
func (c *Client) Client() *typesense.Client {
	return c.client
}

// InitSchema ensures the events collection exists. dimensions sizes the embedding field.
func (c *Client) InitSchema(ctx context.Context, dimensions int) error {
	if _, err := c.client.Collection(EventsCollection).Retrieve(ctx); err == nil {
		observability.GetLogger().Debug().Str("collection", EventsCollection).Msg("Typesense collection already exists")
		return nil
	}

	if _, err := c.client.Collections().Create(ctx, EventsSchema(dimensions)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	observability.GetLogger().Info().Str("collection", EventsCollection).Msg("Created Typesense collection")
	return nil
}

// EventsSchema describes the events collection
func EventsSchema(dimensions int) *api.CollectionSchema {
	return &api.CollectionSchema{
		Name: EventsCollection,
		Fields: []api.Field{
			{Name: "id", Type: "string"},
			{Name: "title", Type: "string"},
			{Name: "description", Type: "string", Optional: pointer.True()},
			{Name: "address", Type: "string", Optional: pointer.True()},
			{Name: "location_notes", Type: "string", Optional: pointer.True()},
			{Name: "emoji_description", Type: "string", Optional: pointer.True()},
			{Name: "category_ids", Type: "string[]", Facet: pointer.True(), Optional: pointer.True()},
			{Name: "category_names", Type: "string[]", Optional: pointer.True()},
			{Name: "status", Type: "string", Facet: pointer.True()},
			{Name: "event_date", Type: "int64"},
			{Name: "location", Type: "geopoint", Optional: pointer.True()},
			{Name: "embedding", Type: "float[]", NumDim: pointer.Int(dimensions), Optional: pointer.True()},
		},
		DefaultSortingField: pointer.String("event_date"),
	}
}
