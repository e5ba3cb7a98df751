package vectorstore

import (
	"context"

	"github.com/lk2023060901/member-qa-backend/internal/qa/types"
)

// SearchResult is one scored message from the index
type SearchResult struct {
	Message types.Message
	Score   float64
}

// IndexStats reports corpus size
type IndexStats struct {
	TotalVectorCount int64
}

// MessageIndex is the vector index over member messages.
type MessageIndex interface {
	// Search returns up to topK messages ordered by descending similarity.
	// A non-empty userName restricts results to that author.
	Search(ctx context.Context, vector []float32, topK int, userName string) ([]SearchResult, error)

	// Upsert writes messages with their embeddings and returns the count written.
	Upsert(ctx context.Context, messages []types.Message, vectors [][]float32) (int, error)

	// Stats returns the current corpus statistics.
	Stats(ctx context.Context) (*IndexStats, error)
}
