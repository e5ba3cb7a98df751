package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrConflict        = 1003
	ErrBadRequest      = 1004
	ErrServiceUnavail  = 1005

	// QA errors (4000-4999)
	ErrQAInvalidQuestion  = 4000
	ErrQACorpusNotReady   = 4001
	ErrQAEmbeddingFailed  = 4002
	ErrQASearchFailed     = 4003
	ErrQARerankFailed     = 4004
	ErrQAGenerationFailed = 4005
	ErrQAEvaluationFailed = 4006

	// Ingestion errors (6000-6999)
	ErrIngestFetchFailed  = 6000
	ErrIngestInProgress   = 6001
	ErrIngestUpsertFailed = 6002
)

// codeMap maps error codes to their details
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	// Common errors
	ErrInternalServer: {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:  {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:       {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrConflict:       {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrBadRequest:     {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail: {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	// QA errors
	ErrQAInvalidQuestion:  {ErrQAInvalidQuestion, http.StatusBadRequest, "Invalid question"},
	ErrQACorpusNotReady:   {ErrQACorpusNotReady, http.StatusServiceUnavailable, "Message corpus not indexed yet"},
	ErrQAEmbeddingFailed:  {ErrQAEmbeddingFailed, http.StatusInternalServerError, "Embedding generation failed"},
	ErrQASearchFailed:     {ErrQASearchFailed, http.StatusInternalServerError, "Vector search failed"},
	ErrQARerankFailed:     {ErrQARerankFailed, http.StatusInternalServerError, "Reranking failed"},
	ErrQAGenerationFailed: {ErrQAGenerationFailed, http.StatusInternalServerError, "Answer generation failed"},
	ErrQAEvaluationFailed: {ErrQAEvaluationFailed, http.StatusInternalServerError, "Answer evaluation failed"},

	// Ingestion errors
	ErrIngestFetchFailed:  {ErrIngestFetchFailed, http.StatusInternalServerError, "Message fetch failed"},
	ErrIngestInProgress:   {ErrIngestInProgress, http.StatusConflict, "Indexing already in progress"},
	ErrIngestUpsertFailed: {ErrIngestUpsertFailed, http.StatusInternalServerError, "Vector upsert failed"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsSuccess checks if the code represents success
func IsSuccess(code int) bool {
	return code == Success
}

// IsClientError checks if the code represents a client error (4xx)
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// IsServerError checks if the code represents a server error (5xx)
func IsServerError(code int) bool {
	return GetHTTPStatus(code) >= 500
}

// IsRetryable reports whether the caller may retry the request later.
// Only NotReady-style conditions qualify.
func IsRetryable(code int) bool {
	return code == ErrQACorpusNotReady || code == ErrServiceUnavail
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
