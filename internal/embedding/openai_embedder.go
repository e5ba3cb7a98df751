package embedding

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/lk2023060901/member-qa-backend/internal/pkg/logger"
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	batchSize int
	logger    *logger.Logger
}

// OpenAIEmbedderConfig configures the embedder
type OpenAIEmbedderConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	BatchSize int
}

// NewOpenAIEmbedder creates an embedder against an OpenAI-compatible API.
func NewOpenAIEmbedder(cfg *OpenAIEmbedderConfig, lgr *logger.Logger) (*OpenAIEmbedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}

	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	if lgr == nil {
		lgr = logger.L()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	lgr.Info("openai embedder created",
		zap.String("model", cfg.Model),
		zap.Int("dimension", cfg.Dimension),
		zap.Int("batch_size", cfg.BatchSize))

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		logger:    lgr,
	}, nil
}

// Embed generates a vector for a single text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding generated")
	}

	return embeddings[0], nil
}

// BatchEmbed generates vectors for many texts, chunking requests so one call
// never exceeds the provider batch limit. Output order matches input order.
func (e *OpenAIEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	all := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		req := openai.EmbeddingRequestStrings{
			Input:      batch,
			Model:      openai.EmbeddingModel(e.model),
			Dimensions: e.dimension,
		}

		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			e.logger.Error("failed to create embeddings",
				zap.Error(err),
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)))
			return nil, fmt.Errorf("failed to create embeddings: %w", err)
		}

		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(batch), len(resp.Data))
		}

		for _, data := range resp.Data {
			all = append(all, data.Embedding)
		}
	}

	e.logger.Debug("embeddings created",
		zap.Int("count", len(all)))

	return all, nil
}

// Dimension returns the vector dimensionality
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Model returns the embedding model name
func (e *OpenAIEmbedder) Model() string {
	return e.model
}
