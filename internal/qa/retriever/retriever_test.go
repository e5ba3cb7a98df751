package retriever

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/member-qa-backend/internal/conf"
	"github.com/lk2023060901/member-qa-backend/internal/pkg/tokens"
	"github.com/lk2023060901/member-qa-backend/internal/qa/analyzer"
	"github.com/lk2023060901/member-qa-backend/internal/qa/mentions"
	"github.com/lk2023060901/member-qa-backend/internal/qa/types"
	"github.com/lk2023060901/member-qa-backend/internal/vectorstore"
)

// searchCall records one index lookup
type searchCall struct {
	topK     int
	userName string
}

// fakeIndex serves canned results, split by user filter.
type fakeIndex struct {
	general []vectorstore.SearchResult
	byUser  map[string][]vectorstore.SearchResult
	calls   []searchCall
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, topK int, userName string) ([]vectorstore.SearchResult, error) {
	f.calls = append(f.calls, searchCall{topK: topK, userName: userName})
	if userName != "" {
		return f.byUser[userName], nil
	}
	if topK < len(f.general) {
		return f.general[:topK], nil
	}
	return f.general, nil
}

func (f *fakeIndex) Upsert(context.Context, []types.Message, [][]float32) (int, error) {
	return 0, nil
}

func (f *fakeIndex) Stats(context.Context) (*vectorstore.IndexStats, error) {
	return &vectorstore.IndexStats{TotalVectorCount: int64(len(f.general))}, nil
}

// fakeEmbedder returns fixed vectors; unknown texts get an orthogonal vector.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 1}, nil
}

func (f *fakeEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 2 }

func (f *fakeEmbedder) Model() string { return "fake-embedder" }

// descendingReranker scores earlier documents higher, raw score by position.
type descendingReranker struct{}

func (descendingReranker) Score(_ context.Context, _ string, documents []string) ([]float64, error) {
	scores := make([]float64, len(documents))
	for i := range documents {
		scores[i] = float64(len(documents) - i)
	}
	return scores, nil
}

type fixedGenerator struct {
	answer string
}

func (g *fixedGenerator) Generate(context.Context, string, string, float32, int) (string, *tokens.Usage, error) {
	return g.answer, tokens.NewUsage(100, 40, "fake-llm"), nil
}

func (g *fixedGenerator) Model() string { return "fake-llm" }

func messagesFor(userName string, count int) []vectorstore.SearchResult {
	results := make([]vectorstore.SearchResult, count)
	for i := range results {
		results[i] = vectorstore.SearchResult{
			Message: types.Message{
				ID:       fmt.Sprintf("%s-%d", userName, i),
				UserName: userName,
				Text:     fmt.Sprintf("message %d from %s", i, userName),
			},
			Score: 0.9 - float64(i)*0.01,
		}
	}
	return results
}

func sim2d(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func newTestOrchestrator(index *fakeIndex, embedder *fakeEmbedder) *Orchestrator {
	cfg := conf.RetrievalConfig{
		TopKInitial:       100,
		UserTopK:          500,
		DefaultMaxSources: 30,
		MentionFloor:      0.5,
		MentionBand:       0.2,
		DominantRatio:     0.5,
		NameSampleTopK:    1000,
	}

	return NewOrchestrator(&OrchestratorOptions{
		Embedder:     embedder,
		Index:        index,
		Reranker:     descendingReranker{},
		Generator:    &fixedGenerator{answer: "Based on the messages, Fatima talked about travel."},
		MentionCache: mentions.NewUserMentionCache(index, embedder, nil, nil),
		Analyzer:     analyzer.New(),
		Retrieval:    cfg,
		LLM:          conf.LLMConfig{Temperature: 0.1, MaxTokens: 500},
	})
}

func TestOrchestrator_DefaultTruncation(t *testing.T) {
	// 50 general candidates, no mentions, no intent keyword: the general
	// branch keeps the pool and truncation retains exactly 30.
	index := &fakeIndex{general: messagesFor("Alice Chen", 50)}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Is the new office big enough for everyone?": {1, 0},
		"Alice Chen": sim2d(0.3),
	}}

	o := newTestOrchestrator(index, embedder)

	resp, err := o.Answer(context.Background(), &types.QuestionRequest{
		Question:       "Is the new office big enough for everyone?",
		IncludeSources: true,
	})
	require.NoError(t, err)
	require.Len(t, resp.Sources, 30)

	// Ranks are dense from 1 and scores are sorted descending.
	for i, src := range resp.Sources {
		assert.Equal(t, i+1, src.Rank)
		require.NotNil(t, src.RerankerScore)
		if i > 0 {
			assert.LessOrEqual(t, *src.RerankerScore, *resp.Sources[i-1].RerankerScore)
		}
	}
}

func TestOrchestrator_ZeroConfigUsesDefaults(t *testing.T) {
	// An orchestrator built without a retrieval config must not truncate
	// every answer to zero sources.
	index := &fakeIndex{general: messagesFor("Alice Chen", 50)}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Is the new office big enough for everyone?": {1, 0},
		"Alice Chen": sim2d(0.3),
	}}

	o := NewOrchestrator(&OrchestratorOptions{
		Embedder:     embedder,
		Index:        index,
		Reranker:     descendingReranker{},
		Generator:    &fixedGenerator{answer: "The office fits everyone."},
		MentionCache: mentions.NewUserMentionCache(index, embedder, nil, nil),
		Analyzer:     analyzer.New(),
	})

	assert.Equal(t, 100, o.cfg.TopKInitial)
	assert.Equal(t, 500, o.cfg.UserTopK)
	assert.Equal(t, 30, o.cfg.DefaultMaxSources)
	assert.Equal(t, 0.5, o.cfg.DominantRatio)

	resp, err := o.Answer(context.Background(), &types.QuestionRequest{
		Question:       "Is the new office big enough for everyone?",
		IncludeSources: true,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Sources, 30)
}

func TestOrchestrator_MaxSourcesOverride(t *testing.T) {
	index := &fakeIndex{general: messagesFor("Alice Chen", 50)}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Alice Chen": sim2d(0.3),
	}}

	o := newTestOrchestrator(index, embedder)

	maxSources := 5
	resp, err := o.Answer(context.Background(), &types.QuestionRequest{
		Question:       "Is the new office big enough for everyone?",
		IncludeSources: true,
		MaxSources:     &maxSources,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Sources, 5)
}

func TestOrchestrator_SingleUserBranch(t *testing.T) {
	question := "Summarise Fatima's messages"

	index := &fakeIndex{
		general: append(messagesFor("Fatima Al-Sayed", 5), messagesFor("Bob Miller", 5)...),
		byUser: map[string][]vectorstore.SearchResult{
			"Fatima Al-Sayed": messagesFor("Fatima Al-Sayed", 40),
		},
	}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		question:          {1, 0},
		"Fatima Al-Sayed": sim2d(0.9),
		"Bob Miller":      sim2d(0.3),
	}}

	o := newTestOrchestrator(index, embedder)

	resp, err := o.Answer(context.Background(), &types.QuestionRequest{
		Question:       question,
		IncludeSources: true,
	})
	require.NoError(t, err)

	require.NotNil(t, resp.QueryMetadata)
	assert.Equal(t, types.QueryTypeUserSpecific, resp.QueryMetadata.QueryType)
	assert.Equal(t, []string{"Fatima Al-Sayed"}, resp.QueryMetadata.MentionedUsers)
	assert.LessOrEqual(t, len(resp.Sources), 30)

	// The candidate pool was replaced by an exhaustive per-user search.
	var filtered *searchCall
	for i := range index.calls {
		if index.calls[i].userName == "Fatima Al-Sayed" {
			filtered = &index.calls[i]
		}
	}
	require.NotNil(t, filtered)
	assert.Equal(t, 500, filtered.topK)

	for _, src := range resp.Sources {
		assert.Equal(t, "Fatima Al-Sayed", src.UserName)
	}
}

func TestOrchestrator_MultiUserBranch(t *testing.T) {
	question := "What did Alice and Bob say about the offsite?"

	index := &fakeIndex{
		general: append(messagesFor("Alice Chen", 5), messagesFor("Bob Miller", 5)...),
		byUser: map[string][]vectorstore.SearchResult{
			"Alice Chen": messagesFor("Alice Chen", 8),
			"Bob Miller": messagesFor("Bob Miller", 6),
		},
	}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		question:     {1, 0},
		"Alice Chen": sim2d(0.9),
		"Bob Miller": sim2d(0.85),
	}}

	o := newTestOrchestrator(index, embedder)

	resp, err := o.Answer(context.Background(), &types.QuestionRequest{
		Question:       question,
		IncludeSources: true,
	})
	require.NoError(t, err)

	assert.Equal(t, types.QueryTypeMultiUser, resp.QueryMetadata.QueryType)
	assert.Len(t, resp.Sources, 14)

	users := map[string]bool{}
	for _, src := range resp.Sources {
		users[src.UserName] = true
	}
	assert.True(t, users["Alice Chen"])
	assert.True(t, users["Bob Miller"])
}

func TestOrchestrator_DominantUserFallback(t *testing.T) {
	question := "Summarize the travel messages"

	// 10 initial candidates, 6 from one author (ratio 0.6 > 0.5), intent
	// keyword present, no name mentions.
	index := &fakeIndex{
		general: append(messagesFor("Alice Chen", 6), messagesFor("Bob Miller", 4)...),
		byUser: map[string][]vectorstore.SearchResult{
			"Alice Chen": messagesFor("Alice Chen", 25),
		},
	}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		question:     {1, 0},
		"Alice Chen": sim2d(0.3),
		"Bob Miller": sim2d(0.2),
	}}

	o := newTestOrchestrator(index, embedder)

	resp, err := o.Answer(context.Background(), &types.QuestionRequest{
		Question:       question,
		IncludeSources: true,
	})
	require.NoError(t, err)

	var filtered bool
	for _, call := range index.calls {
		if call.userName == "Alice Chen" {
			filtered = true
		}
	}
	assert.True(t, filtered, "expected an exhaustive retrieval for the dominant author")
	assert.Len(t, resp.Sources, 25)
	assert.Empty(t, resp.QueryMetadata.MentionedUsers)
}

func TestOrchestrator_ResponseEnvelope(t *testing.T) {
	index := &fakeIndex{general: messagesFor("Alice Chen", 10)}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Alice Chen": sim2d(0.3),
	}}

	o := newTestOrchestrator(index, embedder)

	resp, err := o.Answer(context.Background(), &types.QuestionRequest{
		Question: "Is the new office big enough for everyone?",
	})
	require.NoError(t, err)

	assert.Equal(t, "Based on the messages, Fatima talked about travel.", resp.Answer)
	assert.Equal(t, "fake-llm", resp.ModelUsed)
	assert.Nil(t, resp.Sources, "sources withheld unless requested")
	assert.Nil(t, resp.Evaluations)
	require.NotNil(t, resp.TokenUsage)
	assert.Equal(t, 140, resp.TokenUsage.TotalTokens)
	assert.Greater(t, resp.Confidence, 0.0)
	assert.LessOrEqual(t, resp.Confidence, 1.0)
	assert.NotEmpty(t, resp.Tips)
}
