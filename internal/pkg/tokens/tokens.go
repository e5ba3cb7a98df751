package tokens

import (
	"fmt"
	"math"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Usage holds token counts and the derived USD cost for one generation call.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// Pricing is USD per single token
type Pricing struct {
	Input  float64
	Output float64
}

// modelPricing is per-1M-token list prices keyed by model name
var modelPricing = map[string]Pricing{
	"gpt-4o-mini":        {Input: 0.15 / 1_000_000, Output: 0.60 / 1_000_000},
	"openai/gpt-4o-mini": {Input: 0.15 / 1_000_000, Output: 0.60 / 1_000_000},
	"gpt-4o":             {Input: 2.50 / 1_000_000, Output: 10.00 / 1_000_000},
}

// defaultPricing is the fallback for unknown models
var defaultPricing = Pricing{Input: 0.15 / 1_000_000, Output: 0.60 / 1_000_000}

// CalculateCost computes the USD cost of a call, rounded to 6 decimals.
func CalculateCost(promptTokens, completionTokens int, model string) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		pricing = defaultPricing
	}

	cost := float64(promptTokens)*pricing.Input + float64(completionTokens)*pricing.Output
	return math.Round(cost*1e6) / 1e6
}

// NewUsage builds a Usage with the cost filled in.
func NewUsage(promptTokens, completionTokens int, model string) *Usage {
	return &Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		CostUSD:          CalculateCost(promptTokens, completionTokens, model),
	}
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens counts tokens with the cl100k_base encoding. Falls back to a
// chars/4 estimate when the encoding cannot be loaded (offline environments).
func CountTokens(text string) int {
	if text == "" {
		return 0
	}

	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})

	if encoding == nil {
		return len(text) / 4
	}

	return len(encoding.Encode(text, nil, nil))
}

// FormatCost renders a cost for log lines
func FormatCost(costUSD float64) string {
	if costUSD < 0.01 {
		return fmt.Sprintf("$%.6f", costUSD)
	}
	return fmt.Sprintf("$%.4f", costUSD)
}
