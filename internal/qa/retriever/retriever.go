package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/member-qa-backend/internal/conf"
	"github.com/lk2023060901/member-qa-backend/internal/embedding"
	"github.com/lk2023060901/member-qa-backend/internal/llm"
	apperrors "github.com/lk2023060901/member-qa-backend/internal/pkg/errors"
	"github.com/lk2023060901/member-qa-backend/internal/pkg/logger"
	"github.com/lk2023060901/member-qa-backend/internal/pkg/tokens"
	"github.com/lk2023060901/member-qa-backend/internal/qa/analyzer"
	"github.com/lk2023060901/member-qa-backend/internal/qa/eval"
	"github.com/lk2023060901/member-qa-backend/internal/qa/mentions"
	"github.com/lk2023060901/member-qa-backend/internal/qa/types"
	"github.com/lk2023060901/member-qa-backend/internal/reranker"
	"github.com/lk2023060901/member-qa-backend/internal/vectorstore"
)

const answerSystemPrompt = `You are a helpful assistant that answers questions about member data
from message conversations. Use ONLY the provided context to answer questions accurately and concisely.
If the answer cannot be found in the context, clearly state that you don't have that information.
Do not make assumptions or provide information not in the context.`

// Orchestrator runs the full question-answering pipeline. The only state
// shared across requests is the user mention cache.
type Orchestrator struct {
	embedder     embedding.Embedder
	index        vectorstore.MessageIndex
	reranker     reranker.Reranker
	generator    llm.Generator
	mentionCache *mentions.UserMentionCache
	analyzer     *analyzer.Analyzer
	evalEngine   *eval.Engine
	cfg          conf.RetrievalConfig
	llmCfg       conf.LLMConfig
	logger       *logger.Logger
}

// OrchestratorOptions carries the orchestrator's collaborators
type OrchestratorOptions struct {
	Embedder     embedding.Embedder
	Index        vectorstore.MessageIndex
	Reranker     reranker.Reranker
	Generator    llm.Generator
	MentionCache *mentions.UserMentionCache
	Analyzer     *analyzer.Analyzer
	EvalEngine   *eval.Engine
	Retrieval    conf.RetrievalConfig
	LLM          conf.LLMConfig
	Logger       *logger.Logger
}

// NewOrchestrator wires up the pipeline.
func NewOrchestrator(opts *OrchestratorOptions) *Orchestrator {
	lgr := opts.Logger
	if lgr == nil {
		lgr = logger.L()
	}

	cfg := opts.Retrieval
	if cfg.TopKInitial == 0 {
		cfg.TopKInitial = 100
	}
	if cfg.UserTopK == 0 {
		cfg.UserTopK = 500
	}
	if cfg.DefaultMaxSources == 0 {
		cfg.DefaultMaxSources = 30
	}
	if cfg.DominantRatio == 0 {
		cfg.DominantRatio = 0.5
	}

	return &Orchestrator{
		embedder:     opts.Embedder,
		index:        opts.Index,
		reranker:     opts.Reranker,
		generator:    opts.Generator,
		mentionCache: opts.MentionCache,
		analyzer:     opts.Analyzer,
		evalEngine:   opts.EvalEngine,
		cfg:          cfg,
		llmCfg:       opts.LLM,
		logger:       lgr,
	}
}

// Answer runs the pipeline for one question. Embedding, retrieval, reranking
// and generation failures abort the request; evaluation failures only drop
// the evaluations section.
func (o *Orchestrator) Answer(ctx context.Context, req *types.QuestionRequest) (*types.AnswerResponse, error) {
	start := time.Now()

	o.logger.Info("answering question", zap.String("question", req.Question))

	questionVec, err := o.embedder.Embed(ctx, req.Question)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrQAEmbeddingFailed, "failed to embed question")
	}

	candidates, err := o.searchCandidates(ctx, questionVec, o.cfg.TopKInitial, "")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrQASearchFailed, "initial retrieval failed")
	}
	o.logger.Info("initial retrieval complete", zap.Int("candidates", len(candidates)))

	userCounts := make(map[string]int)
	for _, c := range candidates {
		userCounts[c.Message.UserName]++
	}

	mentioned, err := o.mentionCache.Detect(ctx, questionVec)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrQASearchFailed, "mention detection failed")
	}
	if len(mentioned) > 0 {
		o.logger.Info("users mentioned in question", zap.Strings("users", mentioned))
	}

	intentPresent := analyzer.HasUserIntent(req.Question)
	dominantUser, dominantRatio := dominantFrom(userCounts, len(candidates))

	branch := DecideBranch(len(mentioned), intentPresent, dominantRatio, o.cfg.DominantRatio)
	o.logger.Info("retrieval branch selected", zap.String("branch", string(branch)))

	filteredToSingleUser := false
	switch branch {
	case BranchSingleUser:
		candidates, err = o.searchCandidates(ctx, questionVec, o.cfg.UserTopK, mentioned[0])
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrQASearchFailed, "per-user retrieval failed")
		}
		filteredToSingleUser = true
	case BranchMultiUser:
		merged := make([]types.Candidate, 0, o.cfg.UserTopK)
		for _, name := range mentioned {
			userCandidates, err := o.searchCandidates(ctx, questionVec, o.cfg.UserTopK, name)
			if err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrQASearchFailed, "per-user retrieval failed")
			}
			merged = append(merged, userCandidates...)
		}
		candidates = merged
	case BranchDominantUser:
		candidates, err = o.searchCandidates(ctx, questionVec, o.cfg.UserTopK, dominantUser)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrQASearchFailed, "dominant-user retrieval failed")
		}
		filteredToSingleUser = true
	}

	if err := o.rerankAll(ctx, req.Question, candidates); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrQARerankFailed, "reranking failed")
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].RerankerScore > candidates[j].RerankerScore
	})
	for i := range candidates {
		candidates[i].Rank = i + 1
	}

	limit := o.cfg.DefaultMaxSources
	if req.MaxSources != nil {
		limit = *req.MaxSources
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	o.logger.Info("candidates retained after reranking", zap.Int("count", len(candidates)))

	answer, usage, err := o.generateAnswer(ctx, req.Question, candidates)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrQAGenerationFailed, "answer generation failed")
	}

	sources := make([]types.MessageSource, 0, len(candidates))
	for i := range candidates {
		sources = append(sources, candidates[i].ToSource())
	}

	var evaluations *types.EvaluationResults
	if req.IncludeEvaluations && o.evalEngine != nil {
		evaluations = o.evalEngine.Evaluate(ctx, req.Question, answer, sources)
	}

	queryType := o.analyzer.Classify(req.Question, mentioned, filteredToSingleUser)

	confidence, factors := analyzer.ConfidenceScore(
		len(candidates), meanRerankerScore(candidates), queryType, filteredToSingleUser)

	resp := &types.AnswerResponse{
		Answer:     answer,
		Confidence: confidence,
		LatencyMS:  float64(time.Since(start).Microseconds()) / 1000.0,
		ModelUsed:  o.generator.Model(),
		TokenUsage: usage,
		QueryMetadata: &types.QueryMetadata{
			QueryType:         queryType,
			MentionedUsers:    mentioned,
			ConfidenceFactors: factors,
		},
		Evaluations: evaluations,
		Tips:        o.analyzer.Tips(queryType, mentioned, len(candidates)),
	}
	if req.IncludeSources {
		resp.Sources = sources
	}

	o.logger.Info("question answered",
		zap.Float64("latency_ms", resp.LatencyMS),
		zap.Float64("confidence", confidence),
		zap.String("query_type", string(queryType)))

	return resp, nil
}

func (o *Orchestrator) searchCandidates(ctx context.Context, vec []float32, topK int, userName string) ([]types.Candidate, error) {
	results, err := o.index.Search(ctx, vec, topK, userName)
	if err != nil {
		return nil, err
	}

	candidates := make([]types.Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, types.Candidate{
			Message:         r.Message,
			SimilarityScore: r.Score,
		})
	}
	return candidates, nil
}

// rerankAll scores every candidate against the question and stores the
// logistic-normalized score in place.
func (o *Orchestrator) rerankAll(ctx context.Context, question string, candidates []types.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	documents := make([]string, len(candidates))
	for i := range candidates {
		documents[i] = fmt.Sprintf("[%s] %s", candidates[i].Message.UserName, candidates[i].Message.Text)
	}

	raw, err := o.reranker.Score(ctx, question, documents)
	if err != nil {
		return err
	}
	if len(raw) != len(candidates) {
		return fmt.Errorf("reranker returned %d scores for %d documents", len(raw), len(candidates))
	}

	for i := range candidates {
		candidates[i].RerankerScore = NormalizeScore(raw[i])
		candidates[i].Reranked = true
	}
	return nil
}

// NormalizeScore maps a raw cross-encoder logit to (0,1).
func NormalizeScore(raw float64) float64 {
	return 1.0 / (1.0 + math.Exp(-raw))
}

func (o *Orchestrator) generateAnswer(ctx context.Context, question string, candidates []types.Candidate) (string, *tokens.Usage, error) {
	lines := make([]string, 0, len(candidates))
	for i := range candidates {
		lines = append(lines, fmt.Sprintf("- [%s] %s (relevance: %.2f)",
			candidates[i].Message.UserName, candidates[i].Message.Text, candidates[i].RerankerScore))
	}

	userPrompt := fmt.Sprintf(`Context from member messages:
%s

Question: %s

Answer: Based on the context above, provide a clear and concise answer. If information is not available, say so.`,
		strings.Join(lines, "\n"), question)

	return o.generator.Generate(ctx, answerSystemPrompt, userPrompt, o.llmCfg.Temperature, o.llmCfg.MaxTokens)
}

// dominantFrom returns the most frequent author and their share of the pool.
func dominantFrom(userCounts map[string]int, total int) (string, float64) {
	if total == 0 {
		return "", 0
	}

	var topUser string
	topCount := 0
	for name, count := range userCounts {
		if count > topCount {
			topUser = name
			topCount = count
		}
	}
	return topUser, float64(topCount) / float64(total)
}

func meanRerankerScore(candidates []types.Candidate) float64 {
	if len(candidates) == 0 {
		return 0
	}

	var sum float64
	for i := range candidates {
		sum += candidates[i].RerankerScore
	}
	return sum / float64(len(candidates))
}
