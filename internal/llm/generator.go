package llm

import (
	"context"

	"github.com/lk2023060901/member-qa-backend/internal/pkg/tokens"
)

// Generator produces a chat completion for a system/user prompt pair.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, *tokens.Usage, error)

	// Model returns the underlying model identifier.
	Model() string
}
