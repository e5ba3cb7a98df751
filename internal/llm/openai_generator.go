package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/lk2023060901/member-qa-backend/internal/pkg/logger"
	"github.com/lk2023060901/member-qa-backend/internal/pkg/tokens"
)

// OpenAIGenerator generates completions via an OpenAI-compatible chat API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	logger *logger.Logger
}

// OpenAIGeneratorConfig configures the generator
type OpenAIGeneratorConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewOpenAIGenerator creates a chat completion client.
func NewOpenAIGenerator(cfg *OpenAIGeneratorConfig, lgr *logger.Logger) (*OpenAIGenerator, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}

	if lgr == nil {
		lgr = logger.L()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: lgr,
	}, nil
}

// Generate runs a single-turn chat completion and reports token usage.
func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, *tokens.Usage, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("chat completion returned no choices")
	}

	answer := resp.Choices[0].Message.Content

	promptTokens := resp.Usage.PromptTokens
	completionTokens := resp.Usage.CompletionTokens
	if resp.Usage.TotalTokens == 0 {
		// Some compatible backends omit usage; estimate locally.
		promptTokens = tokens.CountTokens(systemPrompt + userPrompt)
		completionTokens = tokens.CountTokens(answer)
	}

	usage := tokens.NewUsage(promptTokens, completionTokens, g.model)

	g.logger.Debug("chat completion finished",
		zap.String("model", g.model),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens))

	return answer, usage, nil
}

// Model returns the model identifier.
func (g *OpenAIGenerator) Model() string {
	return g.model
}
