package providers

import (
	"context"
)

// EmbeddingProvider turns text into vectors and compares them
type EmbeddingProvider interface {
	// Embed returns the embedding vector for text
	Embed(ctx context.Context, text string) ([]float32, error)

	// Similarity returns a score in [0, 1] for two vectors
	Similarity(a, b []float32) float64
}
