package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/zatekoja/eventscan/internal/domain/providers"
	"github.com/zatekoja/eventscan/pkg/embeddings"
)

// MockEmbeddingProvider derives stable vectors from a hash of each word, so texts that
// share words are similar. Used for local development and tests without an API key.
type MockEmbeddingProvider struct {
	dimensions int
}

var _ providers.EmbeddingProvider = (*MockEmbeddingProvider)(nil)

// NewMockEmbeddingProvider creates a new mock embedding provider
func NewMockEmbeddingProvider(dimensions int) *MockEmbeddingProvider {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &MockEmbeddingProvider{dimensions: dimensions}
}

// Embed returns a unit vector that is a sum of per-word hash vectors
func (m *MockEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, m.dimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.TrimSuffix(word, ":")
		addWordVector(vec, word)
	}

	embeddings.NormalizeL2(vec)
	return vec, nil
}

// addWordVector adds a pseudo-random vector in [-1, 1] per component, expanded from
// sha256(word#block) eight components at a time
func addWordVector(vec []float32, word string) {
	for block := 0; block*8 < len(vec); block++ {
		sum := sha256.Sum256([]byte(word + "#" + strconv.Itoa(block)))
		for j := 0; j < 8 && block*8+j < len(vec); j++ {
			v := binary.BigEndian.Uint32(sum[j*4 : j*4+4])
			vec[block*8+j] += float32(v%2001)/1000.0 - 1.0
		}
	}
}

// Similarity returns the clamped cosine similarity
func (m *MockEmbeddingProvider) Similarity(a, b []float32) float64 {
	return embeddings.Similarity(a, b)
}
