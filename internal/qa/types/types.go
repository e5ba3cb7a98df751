package types

import (
	"github.com/lk2023060901/member-qa-backend/internal/pkg/tokens"
)

// QueryType classifies a question
type QueryType string

const (
	QueryTypeUserSpecific QueryType = "user_specific"
	QueryTypeMultiUser    QueryType = "multi_user"
	QueryTypeFactual      QueryType = "factual"
	QueryTypeComparison   QueryType = "comparison"
	QueryTypeGeneral      QueryType = "general"
)

// Message is a single user-authored message. Immutable once retrieved.
type Message struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"message"`
}

// Candidate is a retrieved message with its scores. Created per request,
// never persisted. Rank is assigned densely from 1 after sorting.
type Candidate struct {
	Message         Message
	SimilarityScore float64
	RerankerScore   float64
	Reranked        bool
	Rank            int
}

// QueryMetadata describes the analysis of one question
type QueryMetadata struct {
	QueryType         QueryType          `json:"query_type"`
	MentionedUsers    []string           `json:"mentioned_users"`
	ConfidenceFactors map[string]float64 `json:"confidence_factors"`
}

// EvaluationScore is one judge metric result
type EvaluationScore struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
	Passed    bool    `json:"passed"`
}

// EvaluationResults aggregates the five metric scores
type EvaluationResults struct {
	Evaluations  []EvaluationScore `json:"evaluations"`
	AverageScore float64           `json:"average_score"`
	AllPassed    bool              `json:"all_passed"`
}

// QuestionRequest is the POST /ask body
type QuestionRequest struct {
	Question           string `json:"question" binding:"required,min=5,max=500"`
	IncludeSources     bool   `json:"include_sources"`
	IncludeEvaluations bool   `json:"include_evaluations"`
	MaxSources         *int   `json:"max_sources" binding:"omitnil,min=1,max=500"`
}

// MessageSource is a retained candidate as exposed to the caller
type MessageSource struct {
	ID              string   `json:"id"`
	UserID          string   `json:"user_id"`
	UserName        string   `json:"user_name"`
	Timestamp       string   `json:"timestamp"`
	Text            string   `json:"message"`
	SimilarityScore float64  `json:"similarity_score"`
	RerankerScore   *float64 `json:"reranker_score,omitempty"`
	Rank            int      `json:"rank"`
}

// AnswerResponse is the POST /ask reply
type AnswerResponse struct {
	Answer        string             `json:"answer"`
	Confidence    float64            `json:"confidence"`
	Sources       []MessageSource    `json:"sources,omitempty"`
	Evaluations   *EvaluationResults `json:"evaluations,omitempty"`
	LatencyMS     float64            `json:"latency_ms"`
	ModelUsed     string             `json:"model_used"`
	TokenUsage    *tokens.Usage      `json:"token_usage,omitempty"`
	QueryMetadata *QueryMetadata     `json:"query_metadata,omitempty"`
	Tips          string             `json:"tips,omitempty"`
}

// ToSource converts a candidate to its response shape
func (c *Candidate) ToSource() MessageSource {
	src := MessageSource{
		ID:              c.Message.ID,
		UserID:          c.Message.UserID,
		UserName:        c.Message.UserName,
		Timestamp:       c.Message.Timestamp,
		Text:            c.Message.Text,
		SimilarityScore: c.SimilarityScore,
		Rank:            c.Rank,
	}
	if c.Reranked {
		score := c.RerankerScore
		src.RerankerScore = &score
	}
	return src
}
