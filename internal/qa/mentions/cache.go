package mentions

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/lk2023060901/member-qa-backend/internal/embedding"
	"github.com/lk2023060901/member-qa-backend/internal/pkg/logger"
	"github.com/lk2023060901/member-qa-backend/internal/vectorstore"
)

// UserMentionCache detects member names mentioned in a question by
// comparing the question embedding against cached name embeddings.
type UserMentionCache struct {
	index    vectorstore.MessageIndex
	embedder embedding.Embedder
	logger   *logger.Logger

	floor       float64 // absolute minimum similarity to accept
	band        float64 // accept within this distance of the top similarity
	sampleTopK  int     // messages sampled to discover user names
	mu          sync.Mutex
	initialized bool
	names       []string
	vectors     [][]float32
}

// CacheConfig configures mention detection
type CacheConfig struct {
	MentionFloor   float64
	MentionBand    float64
	NameSampleTopK int
}

// NewUserMentionCache creates an uninitialized cache. Name embeddings are
// built lazily on the first Detect call.
func NewUserMentionCache(index vectorstore.MessageIndex, embedder embedding.Embedder, cfg *CacheConfig, lgr *logger.Logger) *UserMentionCache {
	if cfg == nil {
		cfg = &CacheConfig{}
	}
	if cfg.MentionFloor == 0 {
		cfg.MentionFloor = 0.5
	}
	if cfg.MentionBand == 0 {
		cfg.MentionBand = 0.2
	}
	if cfg.NameSampleTopK == 0 {
		cfg.NameSampleTopK = 1000
	}
	if lgr == nil {
		lgr = logger.L()
	}

	return &UserMentionCache{
		index:      index,
		embedder:   embedder,
		logger:     lgr,
		floor:      cfg.MentionFloor,
		band:       cfg.MentionBand,
		sampleTopK: cfg.NameSampleTopK,
	}
}

// ensureInitialized builds the name embedding cache exactly once.
// Concurrent callers block until the first build completes.
func (c *UserMentionCache) ensureInitialized(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	probe := make([]float32, c.embedder.Dimension())
	results, err := c.index.Search(ctx, probe, c.sampleTopK, "")
	if err != nil {
		return fmt.Errorf("failed to sample user names: %w", err)
	}

	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, r := range results {
		name := r.Message.UserName
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	if len(names) == 0 {
		// Empty corpus; cache the empty set so Detect is a no-op.
		c.initialized = true
		c.logger.Warn("no user names found while building mention cache")
		return nil
	}

	vectors, err := c.embedder.BatchEmbed(ctx, names)
	if err != nil {
		return fmt.Errorf("failed to embed user names: %w", err)
	}

	c.names = names
	c.vectors = vectors
	c.initialized = true

	c.logger.Info("user mention cache initialized", zap.Int("names", len(names)))
	return nil
}

// Detect returns the user names the question most likely refers to.
// A name is accepted when its cosine similarity to the question is at least
// max(floor, top-band). Results are ordered by similarity, best first.
func (c *UserMentionCache) Detect(ctx context.Context, questionEmbedding []float32) ([]string, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	names := c.names
	vectors := c.vectors
	c.mu.Unlock()

	if len(names) == 0 {
		return nil, nil
	}

	type scored struct {
		name string
		sim  float64
	}

	ranked := make([]scored, 0, len(names))
	for i, name := range names {
		ranked = append(ranked, scored{name: name, sim: cosineSimilarity(questionEmbedding, vectors[i])})
	}

	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].sim > ranked[j].sim
	})

	threshold := math.Max(c.floor, ranked[0].sim-c.band)

	mentioned := make([]string, 0, 2)
	for _, s := range ranked {
		// List is sorted, so everything after the first miss is below threshold.
		if s.sim < threshold {
			break
		}
		mentioned = append(mentioned, s.name)
	}

	return mentioned, nil
}

// Invalidate drops the cached name embeddings so they rebuild on next use.
func (c *UserMentionCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = false
	c.names = nil
	c.vectors = nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
