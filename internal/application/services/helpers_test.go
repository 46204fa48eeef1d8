package services_test

import (
	"context"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/zatekoja/eventscan/internal/domain/entities"
	"github.com/zatekoja/eventscan/pkg/config"
	"github.com/zatekoja/eventscan/pkg/embeddings"
)

var errProviderDown = errors.New("provider unavailable")

var testSearchConfig = config.SearchConfig{
	Weights:               config.ScoringWeights{Semantic: 0.40, Lexical: 0.35, Category: 0.15, Recency: 0.10},
	DefaultPageSize:       20,
	MaxPageSize:           50,
	CandidateLimit:        500,
	SemanticSearchEnabled: true,
	ResultCacheEnabled:    true,
}

// fakeEmbeddingProvider returns fixed vectors per text and counts calls
type fakeEmbeddingProvider struct {
	mu       sync.Mutex
	calls    int
	err      error
	vectors  map[string][]float32
	fallback []float32
}

func newFakeEmbeddingProvider() *fakeEmbeddingProvider {
	return &fakeEmbeddingProvider{
		vectors:  make(map[string][]float32),
		fallback: []float32{1, 0, 0},
	}
}

func (p *fakeEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if v, ok := p.vectors[text]; ok {
		return v, nil
	}
	return p.fallback, nil
}

func (p *fakeEmbeddingProvider) Similarity(a, b []float32) float64 {
	return embeddings.Similarity(a, b)
}

func (p *fakeEmbeddingProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeEmbeddingProvider) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// MockSearchTracker records TrackSearch calls
type MockSearchTracker struct {
	mock.Mock
}

func (m *MockSearchTracker) TrackSearch(ctx context.Context, event *entities.SearchEvent) {
	m.Called(ctx, event)
}
