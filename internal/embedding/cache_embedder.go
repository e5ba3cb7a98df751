package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lk2023060901/member-qa-backend/internal/pkg/logger"
)

// CacheEmbedder decorates an Embedder with a redis cache. User names get
// embedded repeatedly across requests, so cache hits save real API calls.
type CacheEmbedder struct {
	embedder Embedder
	cache    *redis.Client
	ttl      time.Duration
	prefix   string
	logger   *logger.Logger
}

// CacheEmbedderConfig configures cache behavior
type CacheEmbedderConfig struct {
	TTL    time.Duration
	Prefix string
}

// NewCacheEmbedder wraps an embedder with a redis-backed cache.
func NewCacheEmbedder(embedder Embedder, cache *redis.Client, cfg *CacheEmbedderConfig, lgr *logger.Logger) *CacheEmbedder {
	if cfg == nil {
		cfg = &CacheEmbedderConfig{}
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "qa:embedding:"
	}
	if lgr == nil {
		lgr = logger.L()
	}

	return &CacheEmbedder{
		embedder: embedder,
		cache:    cache,
		ttl:      cfg.TTL,
		prefix:   cfg.Prefix,
		logger:   lgr,
	}
}

// Embed returns a cached vector when available, delegating on miss.
func (e *CacheEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.cacheKey(text)

	if e.cache != nil {
		if cached, err := e.getFromCache(ctx, key); err == nil {
			e.logger.Debug("embedding cache hit", zap.String("cache_key", key))
			return cached, nil
		}
	}

	embedding, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.setToCache(ctx, key, embedding); err != nil {
			e.logger.Warn("failed to cache embedding",
				zap.String("cache_key", key),
				zap.Error(err))
		}
	}

	return embedding, nil
}

// BatchEmbed delegates directly; bulk ingestion texts rarely repeat, so the
// cache only fronts single-text lookups.
func (e *CacheEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embedder.BatchEmbed(ctx, texts)
}

// Dimension returns the underlying dimensionality
func (e *CacheEmbedder) Dimension() int {
	return e.embedder.Dimension()
}

// Model returns the underlying model name
func (e *CacheEmbedder) Model() string {
	return e.embedder.Model()
}

func (e *CacheEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(e.embedder.Model() + ":" + text))
	return e.prefix + hex.EncodeToString(sum[:])
}

func (e *CacheEmbedder) getFromCache(ctx context.Context, key string) ([]float32, error) {
	raw, err := e.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var embedding []float32
	if err := json.Unmarshal(raw, &embedding); err != nil {
		return nil, err
	}

	return embedding, nil
}

func (e *CacheEmbedder) setToCache(ctx context.Context, key string, embedding []float32) error {
	raw, err := json.Marshal(embedding)
	if err != nil {
		return err
	}

	return e.cache.Set(ctx, key, raw, e.ttl).Err()
}
