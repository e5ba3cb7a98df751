package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/member-qa-backend/internal/conf"
	"github.com/lk2023060901/member-qa-backend/internal/ingest"
	"github.com/lk2023060901/member-qa-backend/internal/pkg/tokens"
	"github.com/lk2023060901/member-qa-backend/internal/qa/analyzer"
	"github.com/lk2023060901/member-qa-backend/internal/qa/mentions"
	"github.com/lk2023060901/member-qa-backend/internal/qa/retriever"
	"github.com/lk2023060901/member-qa-backend/internal/qa/types"
	"github.com/lk2023060901/member-qa-backend/internal/vectorstore"
)

type fakeIndex struct {
	vectors int64
	results []vectorstore.SearchResult
}

func (f *fakeIndex) Search(context.Context, []float32, int, string) ([]vectorstore.SearchResult, error) {
	return f.results, nil
}

func (f *fakeIndex) Upsert(_ context.Context, messages []types.Message, _ [][]float32) (int, error) {
	return len(messages), nil
}

func (f *fakeIndex) Stats(context.Context) (*vectorstore.IndexStats, error) {
	return &vectorstore.IndexStats{TotalVectorCount: f.vectors}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (fakeEmbedder) BatchEmbed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0, 1}
	}
	return out, nil
}

func (fakeEmbedder) Dimension() int { return 2 }

func (fakeEmbedder) Model() string { return "fake" }

type fakeReranker struct{}

func (fakeReranker) Score(_ context.Context, _ string, documents []string) ([]float64, error) {
	scores := make([]float64, len(documents))
	for i := range documents {
		scores[i] = float64(len(documents) - i)
	}
	return scores, nil
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(context.Context, string, string, float32, int) (string, *tokens.Usage, error) {
	return "The members discussed travel plans.", tokens.NewUsage(80, 30, "fake-llm"), nil
}

func (fakeGenerator) Model() string { return "fake-llm" }

func corpus(n int) []vectorstore.SearchResult {
	results := make([]vectorstore.SearchResult, n)
	for i := range results {
		results[i] = vectorstore.SearchResult{
			Message: types.Message{
				ID:       fmt.Sprintf("m%d", i),
				UserName: fmt.Sprintf("User %d", i%4),
				Text:     fmt.Sprintf("message %d", i),
			},
			Score: 0.8,
		}
	}
	return results
}

func newTestRouter(t *testing.T, index *fakeIndex, pipeline *ingest.Pipeline) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orchestrator := retriever.NewOrchestrator(&retriever.OrchestratorOptions{
		Embedder:     fakeEmbedder{},
		Index:        index,
		Reranker:     fakeReranker{},
		Generator:    fakeGenerator{},
		MentionCache: mentions.NewUserMentionCache(index, fakeEmbedder{}, nil, nil),
		Analyzer:     analyzer.New(),
		Retrieval: conf.RetrievalConfig{
			TopKInitial:       100,
			UserTopK:          500,
			DefaultMaxSources: 30,
			MentionFloor:      0.5,
			MentionBand:       0.2,
			DominantRatio:     0.5,
			NameSampleTopK:    1000,
		},
		LLM: conf.LLMConfig{Temperature: 0.1, MaxTokens: 500},
	})

	if pipeline == nil {
		pipeline = ingest.NewPipeline(nil, fakeEmbedder{}, index, conf.IngestionConfig{}, nil)
	}

	router := gin.New()
	NewQAService(orchestrator, pipeline, index, nil).RegisterRoutes(router)
	return router
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAsk_Success(t *testing.T) {
	index := &fakeIndex{vectors: 40, results: corpus(40)}
	router := newTestRouter(t, index, nil)

	w := doJSON(router, http.MethodPost, "/ask", `{"question":"What travel plans did members discuss?","include_sources":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Code int                 `json:"code"`
		Data types.AnswerResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))

	assert.Equal(t, 0, envelope.Code)
	assert.Equal(t, "The members discussed travel plans.", envelope.Data.Answer)
	assert.Equal(t, "fake-llm", envelope.Data.ModelUsed)
	assert.Len(t, envelope.Data.Sources, 30)
	assert.Greater(t, envelope.Data.Confidence, 0.0)
	require.NotNil(t, envelope.Data.TokenUsage)
	assert.Equal(t, 110, envelope.Data.TokenUsage.TotalTokens)
}

func TestAsk_ValidationFailures(t *testing.T) {
	index := &fakeIndex{vectors: 10, results: corpus(10)}
	router := newTestRouter(t, index, nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing question", `{}`},
		{"question too short", `{"question":"hey"}`},
		{"question too long", fmt.Sprintf(`{"question":"%s"}`, strings.Repeat("a", 501))},
		{"max_sources out of range", `{"question":"a valid question here","max_sources":0}`},
		{"malformed json", `{"question":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodPost, "/ask", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAsk_EmptyCorpus(t *testing.T) {
	index := &fakeIndex{vectors: 0}
	router := newTestRouter(t, index, nil)

	w := doJSON(router, http.MethodPost, "/ask", `{"question":"Is anyone out there talking?"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealth(t *testing.T) {
	index := &fakeIndex{vectors: 10, results: corpus(10)}

	t.Run("healthy", func(t *testing.T) {
		router := newTestRouter(t, index, nil)
		w := doJSON(router, http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	})

	t.Run("degraded after failed ingestion", func(t *testing.T) {
		// An upstream that reports zero messages makes the run fail fast.
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"total":0,"items":[]}`)
		}))
		defer upstream.Close()

		pipeline := ingest.NewPipeline(ingest.NewMessageClient(upstream.URL, 0), fakeEmbedder{}, index, conf.IngestionConfig{}, nil)
		require.Error(t, pipeline.Run(context.Background()))

		router := newTestRouter(t, index, pipeline)
		w := doJSON(router, http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"degraded"`)
	})
}

func TestStatus(t *testing.T) {
	index := &fakeIndex{vectors: 10, results: corpus(10)}
	router := newTestRouter(t, index, nil)

	w := doJSON(router, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data ingest.StateSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.False(t, envelope.Data.InProgress)
}

func TestReindex_AlreadyPopulated(t *testing.T) {
	index := &fakeIndex{vectors: 10, results: corpus(10)}
	router := newTestRouter(t, index, nil)

	w := doJSON(router, http.MethodPost, "/reindex", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"started":false`)
}

func TestReindex_Conflict(t *testing.T) {
	index := &fakeIndex{vectors: 0, results: nil}

	// Block the first run so the second request finds it in progress.
	release := make(chan struct{})
	entered := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-release
		fmt.Fprint(w, `{"total":0,"items":[]}`)
	}))
	defer upstream.Close()
	defer close(release)

	pipeline := ingest.NewPipeline(ingest.NewMessageClient(upstream.URL, 0), fakeEmbedder{}, index, conf.IngestionConfig{}, nil)
	router := newTestRouter(t, index, pipeline)

	w := doJSON(router, http.MethodPost, "/reindex", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"started":true`)

	<-entered
	w = doJSON(router, http.MethodPost, "/reindex?force=true", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRoot(t *testing.T) {
	index := &fakeIndex{vectors: 10, results: corpus(10)}
	router := newTestRouter(t, index, nil)

	w := doJSON(router, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "member-qa-backend")
}
