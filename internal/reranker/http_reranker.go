package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/member-qa-backend/internal/pkg/logger"
)

// HTTPReranker calls a hosted cross-encoder rerank endpoint
// (SiliconFlow/Jina style API shape).
type HTTPReranker struct {
	apiKey  string
	baseURL string
	model   string
	logger  *logger.Logger
	client  *http.Client
}

// HTTPRerankerConfig configures the reranker client
type HTTPRerankerConfig struct {
	APIKey  string
	BaseURL string // e.g. https://api.siliconflow.cn/v1
	Model   string // e.g. BAAI/bge-reranker-v2-m3
	Timeout time.Duration
}

// NewHTTPReranker creates a rerank client.
func NewHTTPReranker(cfg *HTTPRerankerConfig, lgr *logger.Logger) (*HTTPReranker, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.siliconflow.cn/v1"
	}

	if cfg.Model == "" {
		cfg.Model = "BAAI/bge-reranker-v2-m3"
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	if lgr == nil {
		lgr = logger.L()
	}

	return &HTTPReranker{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		logger:  lgr,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Model   string         `json:"model"`
	Results []rerankResult `json:"results"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Score returns one raw relevance score per document, in document order.
func (r *HTTPReranker) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return []float64{}, nil
	}

	reqBody := rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: documents,
		TopN:      len(documents),
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/rerank", r.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank API returned status %d: %s", resp.StatusCode, string(body))
	}

	var respBody rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// The API returns results sorted by relevance; restore document order.
	scores := make([]float64, len(documents))
	seen := make([]bool, len(documents))
	for _, result := range respBody.Results {
		if result.Index < 0 || result.Index >= len(documents) {
			return nil, fmt.Errorf("rerank result index %d out of range", result.Index)
		}
		scores[result.Index] = result.RelevanceScore
		seen[result.Index] = true
	}

	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank response missing score for document %d", i)
		}
	}

	r.logger.Debug("documents reranked",
		zap.String("model", r.model),
		zap.Int("count", len(documents)))

	return scores, nil
}
