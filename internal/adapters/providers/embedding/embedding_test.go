package embedding

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/eventscan/pkg/config"
	apperrors "github.com/zatekoja/eventscan/pkg/errors"
)

type flakyProvider struct {
	calls int
	err   error
}

func (f *flakyProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

func (f *flakyProvider) Similarity(a, b []float32) float64 { return 0.5 }

func TestBreakerProvider_OpensAfterConsecutiveFailures(t *testing.T) {
	next := &flakyProvider{err: errors.New("timeout")}
	provider := NewBreakerProvider(next, BreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		OpenTimeout:      time.Minute,
	})

	for i := 0; i < 3; i++ {
		_, err := provider.Embed(context.Background(), "jazz")
		require.Error(t, err)
	}
	assert.Equal(t, "open", provider.State())

	_, err := provider.Embed(context.Background(), "jazz")
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeProvider))
	assert.Equal(t, 3, next.calls, "open breaker must not reach the provider")
}

func TestBreakerProvider_CancellationDoesNotTrip(t *testing.T) {
	next := &flakyProvider{err: context.Canceled}
	provider := NewBreakerProvider(next, BreakerConfig{Name: "test", FailureThreshold: 1, OpenTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := provider.Embed(context.Background(), "jazz")
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, "closed", provider.State())
	assert.Equal(t, 3, next.calls)
}

func TestBreakerProvider_PassesThrough(t *testing.T) {
	next := &flakyProvider{}
	provider := NewBreakerProvider(next, DefaultBreakerConfig())

	vec, err := provider.Embed(context.Background(), "jazz")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
	assert.Equal(t, 0.5, provider.Similarity(nil, nil))
}

func TestMockEmbeddingProvider_Deterministic(t *testing.T) {
	provider := NewMockEmbeddingProvider(64)

	a, err := provider.Embed(context.Background(), "Jazz Night")
	require.NoError(t, err)
	b, err := provider.Embed(context.Background(), "jazz night")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestMockEmbeddingProvider_SharedWordsAreCloser(t *testing.T) {
	provider := NewMockEmbeddingProvider(256)
	ctx := context.Background()

	jazzNight, _ := provider.Embed(ctx, "jazz night")
	jazzClub, _ := provider.Embed(ctx, "jazz club")
	tacoTruck, _ := provider.Embed(ctx, "taco truck")

	assert.Greater(t, provider.Similarity(jazzNight, jazzClub), provider.Similarity(jazzNight, tacoTruck))
}

func TestMockEmbeddingProvider_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockEmbeddingProvider(8).Embed(ctx, "jazz")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewEmbeddingProvider(t *testing.T) {
	provider := NewEmbeddingProvider(&config.OpenAIConfig{Dimensions: 16}, DefaultBreakerConfig())
	_, isMock := provider.(*MockEmbeddingProvider)
	assert.True(t, isMock)

	provider = NewEmbeddingProvider(&config.OpenAIConfig{APIKey: "sk-test", Dimensions: 16}, DefaultBreakerConfig())
	_, isBreaker := provider.(*BreakerProvider)
	assert.True(t, isBreaker)
}
