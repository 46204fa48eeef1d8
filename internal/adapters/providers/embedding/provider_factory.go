package embedding

import (
	"github.com/zatekoja/eventscan/internal/domain/providers"
	"github.com/zatekoja/eventscan/internal/infrastructure/clients/openai"
	"github.com/zatekoja/eventscan/internal/infrastructure/observability"
	"github.com/zatekoja/eventscan/pkg/config"
)

// NewEmbeddingProvider returns the OpenAI provider behind a circuit breaker. Without an
// API key it falls back to the mock provider for local development.
func NewEmbeddingProvider(cfg *config.OpenAIConfig, breaker BreakerConfig) providers.EmbeddingProvider {
	logger := observability.GetLogger()

	if cfg.APIKey == "" {
		logger.Warn().Msg("OPENAI_API_KEY is not set; using mock embedding provider")
		return NewMockEmbeddingProvider(cfg.Dimensions)
	}

	client, err := openai.NewClient(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize OpenAI client; using mock embedding provider")
		return NewMockEmbeddingProvider(cfg.Dimensions)
	}
	return NewBreakerProvider(client, breaker)
}
