package analyzer

import "strings"

// Keyword sets used for query classification. Matching is case-insensitive
// substring search, so multi-word entries like "talked about" work too.

// UserIntentKeywords signal that the question is about what a user wrote.
// The retrieval branch selector shares this set.
var UserIntentKeywords = []string{
	"summarize", "summarise", "messages", "said", "say", "request", "requests",
	"asked", "ask", "visited", "visit", "places", "travel", "mentioned", "mention",
	"talked about", "discussed", "spoke", "shared", "commented",
}

// FactualKeywords signal counting/listing/when-where questions.
var FactualKeywords = []string{
	"how many", "how much", "count", "number", "total", "when", "where",
	"what time", "which", "list", "name",
}

// ComparisonKeywords signal questions that contrast two or more subjects.
var ComparisonKeywords = []string{
	"compare", "contrast", "difference", "similar", "unlike", "versus", "vs",
	"between", "both", "either", "rather than", "instead of",
}

// ContainsAny reports whether any keyword occurs in the lowercased question.
func ContainsAny(questionLower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(questionLower, kw) {
			return true
		}
	}
	return false
}

// HasUserIntent reports whether the question carries a user-intent keyword.
func HasUserIntent(question string) bool {
	return ContainsAny(strings.ToLower(question), UserIntentKeywords)
}
