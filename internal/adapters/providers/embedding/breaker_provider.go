package embedding

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/zatekoja/eventscan/internal/domain/providers"
	"github.com/zatekoja/eventscan/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/eventscan/pkg/errors"
)

// BreakerConfig configures the circuit breaker in front of an embedding provider
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

// DefaultBreakerConfig trips after 5 consecutive failures and probes again after 30 seconds
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "embedding-provider",
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// BreakerProvider fails fast while the wrapped provider is unhealthy, so searches degrade
// to lexical ranking without paying the provider timeout on every request.
type BreakerProvider struct {
	next    providers.EmbeddingProvider
	breaker *gobreaker.CircuitBreaker[[]float32]
}

var _ providers.EmbeddingProvider = (*BreakerProvider)(nil)

// NewBreakerProvider wraps next with a circuit breaker
func NewBreakerProvider(next providers.EmbeddingProvider, cfg BreakerConfig) *BreakerProvider {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// caller cancellation says nothing about provider health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.GetLogger().Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Embedding provider circuit breaker changed state")
		},
	}

	return &BreakerProvider{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[[]float32](settings),
	}
}

// Embed calls the wrapped provider unless the breaker is open
func (p *BreakerProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.breaker.Execute(func() ([]float32, error) {
		return p.next.Embed(ctx, text)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperrors.NewProviderError("embedding provider unavailable", err)
	}
	return vec, err
}

// Similarity delegates to the wrapped provider
func (p *BreakerProvider) Similarity(a, b []float32) float64 {
	return p.next.Similarity(a, b)
}

// State returns the breaker state name
func (p *BreakerProvider) State() string {
	return p.breaker.State().String()
}
