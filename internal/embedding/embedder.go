package embedding

import (
	"context"
)

// Embedder turns text into fixed-dimension vectors.
type Embedder interface {
	// Embed generates a vector for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// BatchEmbed generates vectors for many texts, order preserved.
	// Implementations batch internally to respect provider payload limits.
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimensionality
	Dimension() int

	// Model returns the embedding model name
	Model() string
}
