package reranker

import (
	"context"
)

// Reranker scores query/document pairs with a cross-encoder model.
type Reranker interface {
	// Score returns one raw relevance score per document, in document order.
	// Raw scores are model logits and may be negative; callers normalize.
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
}
