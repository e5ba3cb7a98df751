package analyzer

import (
	"fmt"
	"strings"

	"github.com/lk2023060901/member-qa-backend/internal/qa/types"
)

// Analyzer classifies questions and produces guidance text for callers.
type Analyzer struct {
	rules []classificationRule
}

// classificationRule pairs a predicate with the query type it yields.
// Rules are evaluated top to bottom; the first match wins.
type classificationRule struct {
	name      string
	queryType types.QueryType
	matches   func(questionLower string, mentionedUsers []string, sourcesFromSpecificUser bool) bool
}

// New creates a query analyzer with the rule table in priority order.
func New() *Analyzer {
	return &Analyzer{
		rules: []classificationRule{
			{
				name:      "multi_user_mentions",
				queryType: types.QueryTypeMultiUser,
				matches: func(_ string, mentioned []string, _ bool) bool {
					return len(mentioned) > 1
				},
			},
			{
				name:      "single_user_filtered",
				queryType: types.QueryTypeUserSpecific,
				matches: func(_ string, mentioned []string, fromUser bool) bool {
					return len(mentioned) == 1 && fromUser
				},
			},
			{
				name:      "comparison_keyword",
				queryType: types.QueryTypeComparison,
				matches: func(q string, _ []string, _ bool) bool {
					return ContainsAny(q, ComparisonKeywords)
				},
			},
			{
				name:      "factual_keyword",
				queryType: types.QueryTypeFactual,
				matches: func(q string, _ []string, _ bool) bool {
					return ContainsAny(q, FactualKeywords)
				},
			},
			{
				name:      "user_intent_keyword",
				queryType: types.QueryTypeUserSpecific,
				matches: func(q string, _ []string, _ bool) bool {
					return ContainsAny(q, UserIntentKeywords)
				},
			},
		},
	}
}

// Classify determines the query type for a question.
func (a *Analyzer) Classify(question string, mentionedUsers []string, sourcesFromSpecificUser bool) types.QueryType {
	questionLower := strings.ToLower(question)

	for _, rule := range a.rules {
		if rule.matches(questionLower, mentionedUsers, sourcesFromSpecificUser) {
			return rule.queryType
		}
	}

	return types.QueryTypeGeneral
}

// Tips generates guidance text: a confidence band on the source count,
// followed by a type-specific suggestion.
func (a *Analyzer) Tips(queryType types.QueryType, mentionedUsers []string, numSources int) string {
	var tips []string

	switch {
	case numSources < 2:
		tips = append(tips, "Low confidence: Only 1 source found. Try a broader question or check if data exists.")
	case numSources < 5:
		tips = append(tips, "Moderate confidence: Limited sources. Consider asking about different aspects.")
	default:
		tips = append(tips, fmt.Sprintf("Good confidence: %d relevant sources found.", numSources))
	}

	switch {
	case queryType == types.QueryTypeUserSpecific && len(mentionedUsers) == 0:
		tips = append(tips, "Tip: Mention a specific user name for more accurate results.")
	case queryType == types.QueryTypeFactual && numSources < 3:
		tips = append(tips, "Tip: Try rephrasing as 'What did [user] say about...' for better results.")
	case queryType == types.QueryTypeComparison && len(mentionedUsers) < 2:
		tips = append(tips, "Tip: Mention specific users to compare their information.")
	case queryType == types.QueryTypeGeneral && numSources < 3:
		tips = append(tips, "Tip: Be more specific about what information you're looking for.")
	}

	return strings.Join(tips, " ")
}

// ErrorKind selects a message from the fixed error catalog
type ErrorKind string

const (
	ErrorNoUserFound       ErrorKind = "no_user_found"
	ErrorNoRelevantSources ErrorKind = "no_relevant_sources"
	ErrorSparseSources     ErrorKind = "sparse_sources"
	ErrorAPIError          ErrorKind = "api_error"
	ErrorInvalidQuestion   ErrorKind = "invalid_question"
)

// ErrorMessage returns a user-facing message for an error kind. Unknown kinds
// map to a generic fallback.
func (a *Analyzer) ErrorMessage(kind ErrorKind, context map[string]string) string {
	get := func(key, fallback string) string {
		if context != nil {
			if v, ok := context[key]; ok && v != "" {
				return v
			}
		}
		return fallback
	}

	switch kind {
	case ErrorNoUserFound:
		return fmt.Sprintf("Could not find information about '%s'.\nTry:\n"+
			"  * Spelling the name differently\n"+
			"  * Asking about a different person\n"+
			"  * Using a more general question", get("query", "that user"))
	case ErrorNoRelevantSources:
		return fmt.Sprintf("No relevant information found for '%s'.\nTry:\n"+
			"  * Being more specific\n"+
			"  * Mentioning a user name\n"+
			"  * Rephrasing your question", get("query", "your query"))
	case ErrorSparseSources:
		return fmt.Sprintf("Limited information found (only %s source).\n"+
			"This answer has low confidence. Try:\n"+
			"  * Asking about a different aspect\n"+
			"  * Mentioning specific users\n"+
			"  * Using different keywords", get("num_sources", "1"))
	case ErrorAPIError:
		return "System error while processing your question.\n" +
			"Our system is experiencing issues. Please try again in a moment."
	case ErrorInvalidQuestion:
		return "Your question is too vague or too long.\nTry:\n" +
			"  * Shortening your question\n" +
			"  * Being more specific\n" +
			"  * Example: 'What did Sophia say about travel?'"
	default:
		return "Unable to answer your question. Please try rephrasing."
	}
}
