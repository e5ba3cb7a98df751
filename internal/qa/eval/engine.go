package eval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lk2023060901/member-qa-backend/internal/llm"
	"github.com/lk2023060901/member-qa-backend/internal/pkg/logger"
	"github.com/lk2023060901/member-qa-backend/internal/qa/types"
)

const (
	judgeSystemPrompt = "You are an evaluation assistant. Provide scores and reasoning based on the given criteria."
	judgeTemperature  = 0.1
	judgeMaxTokens    = 200
)

// Pass thresholds per metric
const (
	thresholdAnswerRelevance    = 0.7
	thresholdGroundedness       = 0.8
	thresholdContextRelevance   = 0.7
	thresholdEntityAccuracy     = 0.9
	thresholdAnswerCompleteness = 0.7
)

// Engine scores generated answers with LLM judges plus one heuristic check.
type Engine struct {
	generator llm.Generator
	logger    *logger.Logger
}

// NewEngine creates an evaluation engine.
func NewEngine(generator llm.Generator, lgr *logger.Logger) *Engine {
	if lgr == nil {
		lgr = logger.L()
	}
	return &Engine{generator: generator, logger: lgr}
}

// Evaluate runs all five metrics and aggregates the results. A judge call
// that fails scores 0 for its metric; Evaluate itself never returns an error
// from judge failures.
func (e *Engine) Evaluate(ctx context.Context, question, answer string, sources []types.MessageSource) *types.EvaluationResults {
	contextText := buildContextText(sources)

	evaluations := []types.EvaluationScore{
		e.judgeAnswerRelevance(ctx, question, answer),
		e.judgeGroundedness(ctx, question, answer, contextText),
		e.judgeContextRelevance(ctx, question, contextText),
		e.judgeEntityAccuracy(ctx, answer, contextText),
		scoreAnswerCompleteness(answer),
	}

	var sum float64
	allPassed := true
	for _, ev := range evaluations {
		sum += ev.Score
		allPassed = allPassed && ev.Passed
	}

	results := &types.EvaluationResults{
		Evaluations:  evaluations,
		AverageScore: sum / float64(len(evaluations)),
		AllPassed:    allPassed,
	}

	e.logger.Info("evaluation complete",
		zap.Float64("average_score", results.AverageScore),
		zap.Bool("all_passed", results.AllPassed))

	return results
}

func buildContextText(sources []types.MessageSource) string {
	lines := make([]string, 0, len(sources))
	for _, s := range sources {
		lines = append(lines, "- "+s.Text)
	}
	return strings.Join(lines, "\n")
}

func (e *Engine) judgeAnswerRelevance(ctx context.Context, question, answer string) types.EvaluationScore {
	prompt := fmt.Sprintf(`Question: %s
Answer: %s

Does the answer directly address the question? Score 0-1 where:
0 = Completely irrelevant or doesn't address question
1 = Directly and completely answers the question

Respond with only: SCORE: <number>, REASONING: <brief reason>`, question, answer)

	return e.runJudge(ctx, "answer_relevance", prompt, thresholdAnswerRelevance)
}

func (e *Engine) judgeGroundedness(ctx context.Context, question, answer, contextText string) types.EvaluationScore {
	prompt := fmt.Sprintf(`Question: %s
Answer: %s
Retrieved Context:
%s

Is the answer supported by the context? Score 0-1 where:
0 = Answer contradicts context or is not mentioned (hallucination)
1 = Answer is fully supported by context

Respond with only: SCORE: <number>, REASONING: <brief reason>`, question, answer, contextText)

	return e.runJudge(ctx, "groundedness", prompt, thresholdGroundedness)
}

func (e *Engine) judgeContextRelevance(ctx context.Context, question, contextText string) types.EvaluationScore {
	prompt := fmt.Sprintf(`Question: %s
Retrieved Messages:
%s

Are the retrieved messages relevant to answering the question? Score 0-1 where:
0 = Messages are irrelevant
1 = Messages are highly relevant and helpful

Respond with only: SCORE: <number>, REASONING: <brief reason>`, question, contextText)

	return e.runJudge(ctx, "context_relevance", prompt, thresholdContextRelevance)
}

func (e *Engine) judgeEntityAccuracy(ctx context.Context, answer, contextText string) types.EvaluationScore {
	prompt := fmt.Sprintf(`Answer: %s
Context:
%s

Check if named entities (people, numbers, dates, places) in the answer are accurate based on context.
Score 0-1 where:
0 = Contains factually incorrect entities
1 = All entities are accurate

Respond with only: SCORE: <number>, REASONING: <brief reason>`, answer, contextText)

	return e.runJudge(ctx, "entity_accuracy", prompt, thresholdEntityAccuracy)
}

func (e *Engine) runJudge(ctx context.Context, name, prompt string, threshold float64) types.EvaluationScore {
	raw, _, err := e.generator.Generate(ctx, judgeSystemPrompt, prompt, judgeTemperature, judgeMaxTokens)
	if err != nil {
		e.logger.Error("judge call failed", zap.String("metric", name), zap.Error(err))
		return types.EvaluationScore{
			Name:      name,
			Score:     0.0,
			Reasoning: fmt.Sprintf("Evaluation failed: %v", err),
			Passed:    false,
		}
	}

	score, reasoning := ParseJudgeResponse(raw)
	return types.EvaluationScore{
		Name:      name,
		Score:     score,
		Reasoning: reasoning,
		Passed:    score >= threshold,
	}
}

// scoreAnswerCompleteness is a pure heuristic; no LLM call involved.
func scoreAnswerCompleteness(answer string) types.EvaluationScore {
	trimmed := strings.TrimSpace(answer)
	lower := strings.ToLower(answer)

	var score float64
	var reasoning string
	switch {
	case trimmed == "":
		score = 0.0
		reasoning = "Answer is empty"
	case strings.Contains(lower, "don't know") || strings.Contains(lower, "don't have"):
		score = 0.3
		reasoning = "Answer indicates information not available"
	case len(strings.Fields(answer)) < 5:
		score = 0.6
		reasoning = "Answer is quite short"
	default:
		score = 0.9
		reasoning = "Answer appears complete"
	}

	return types.EvaluationScore{
		Name:      "answer_completeness",
		Score:     score,
		Reasoning: reasoning,
		Passed:    score >= thresholdAnswerCompleteness,
	}
}
