package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/member-qa-backend/internal/conf"
	"github.com/lk2023060901/member-qa-backend/internal/embedding"
	apperrors "github.com/lk2023060901/member-qa-backend/internal/pkg/errors"
	"github.com/lk2023060901/member-qa-backend/internal/pkg/logger"
	"github.com/lk2023060901/member-qa-backend/internal/qa/types"
	"github.com/lk2023060901/member-qa-backend/internal/vectorstore"
)

const (
	maxConsecutiveSkips  = 10
	maxConsecutiveErrors = 3
	pageRetryAttempts    = 2
	pageBaseDelay        = 2500 * time.Millisecond
)

// ErrAlreadyRunning is returned when a run is requested while one is active.
var ErrAlreadyRunning = apperrors.New(apperrors.ErrIngestInProgress)

// Pipeline fetches the message corpus and indexes it into the vector store.
type Pipeline struct {
	client   *MessageClient
	embedder embedding.Embedder
	index    vectorstore.MessageIndex
	cfg      conf.IngestionConfig
	logger   *logger.Logger
	state    *state

	retryBaseDelay time.Duration
}

// NewPipeline creates the ingestion pipeline.
func NewPipeline(client *MessageClient, embedder embedding.Embedder, index vectorstore.MessageIndex, cfg conf.IngestionConfig, lgr *logger.Logger) *Pipeline {
	if lgr == nil {
		lgr = logger.L()
	}

	if cfg.PageSize == 0 {
		cfg.PageSize = 100
	}
	if cfg.EmbeddingBatch == 0 {
		cfg.EmbeddingBatch = 100
	}

	return &Pipeline{
		client:         client,
		embedder:       embedder,
		index:          index,
		cfg:            cfg,
		logger:         lgr,
		state:          &state{},
		retryBaseDelay: pageBaseDelay,
	}
}

// State returns a copy of the current indexing progress.
func (p *Pipeline) State() StateSnapshot {
	return p.state.Snapshot()
}

// LastError reports the most recent ingestion failure, empty when healthy.
func (p *Pipeline) LastError() string {
	return p.state.LastError()
}

// ShouldIndex reports whether the vector store is empty. Stat failures lean
// toward indexing rather than serving an empty corpus.
func (p *Pipeline) ShouldIndex(ctx context.Context) bool {
	stats, err := p.index.Stats(ctx)
	if err != nil {
		p.logger.Warn("could not check index stats, proceeding with indexing", zap.Error(err))
		return true
	}

	if stats.TotalVectorCount == 0 {
		return true
	}

	p.logger.Info("index already populated, skipping ingestion",
		zap.Int64("vectors", stats.TotalVectorCount))
	p.state.setIndexed(int(stats.TotalVectorCount))
	return false
}

// Run executes one full fetch-embed-index cycle. Returns ErrAlreadyRunning
// if a cycle is active. Partial fetches are still indexed.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.state.tryBegin() {
		return ErrAlreadyRunning
	}
	return p.run(ctx)
}

// StartAsync begins a run in a new goroutine. The in-progress check happens
// before returning, so a 409-style rejection is synchronous.
func (p *Pipeline) StartAsync(ctx context.Context) error {
	if !p.state.tryBegin() {
		return ErrAlreadyRunning
	}

	go func() {
		if err := p.run(ctx); err != nil {
			p.logger.Error("async indexing run failed", zap.Error(err))
		}
	}()
	return nil
}

// run assumes tryBegin already succeeded.
func (p *Pipeline) run(ctx context.Context) error {
	p.logger.Info("starting full indexing run")
	start := time.Now()

	messages, fetchErr := p.fetchAll(ctx)
	if len(messages) == 0 {
		err := fetchErr
		if err == nil {
			err = fmt.Errorf("no messages fetched from upstream")
		}
		wrapped := apperrors.Wrap(err, apperrors.ErrIngestFetchFailed)
		p.state.finish(0, wrapped)
		return wrapped
	}
	if fetchErr != nil {
		// Index what we have; the error stays visible in the state.
		p.logger.Warn("fetch ended with errors, indexing partial corpus",
			zap.Int("fetched", len(messages)), zap.Error(fetchErr))
		p.state.setError(fetchErr)
	}

	indexed, err := p.indexMessages(ctx, messages)
	if err != nil {
		wrapped := apperrors.Wrap(err, apperrors.ErrIngestUpsertFailed)
		p.state.finish(indexed, wrapped)
		return wrapped
	}

	p.state.finish(indexed, nil)
	p.logger.Info("indexing run complete",
		zap.Int("indexed", indexed),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// RunBackground launches periodic reindexing until ctx is cancelled.
func (p *Pipeline) RunBackground(ctx context.Context) {
	interval := time.Duration(p.cfg.DeltaRefreshHours) * time.Hour
	if interval <= 0 {
		interval = 12 * time.Hour
	}

	if p.ShouldIndex(ctx) {
		if err := p.Run(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			p.logger.Error("background indexing failed", zap.Error(err))
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.state.setNextRefresh(time.Now().Add(interval))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Run(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				p.logger.Error("background reindexing failed", zap.Error(err))
			}
		}
	}
}

// fetchAll pages through the upstream feed. Pages that persistently fail are
// skipped and recorded as missed ranges; a long run of skips is treated as
// the end of the feed.
func (p *Pipeline) fetchAll(ctx context.Context) ([]types.Message, error) {
	var all []types.Message
	skip := 0
	expectedTotal := -1
	consecutiveSkips := 0
	consecutiveErrors := 0

	for {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		page, err := p.fetchPageWithRetry(ctx, skip)
		if err != nil {
			missedRange := fmt.Sprintf("%d-%d", skip, skip+p.cfg.PageSize-1)
			p.state.addMissedRange(missedRange, p.cfg.PageSize)

			var se *statusError
			if errors.As(err, &se) && se.StatusCode == http.StatusPaymentRequired {
				p.logger.Warn("upstream requires payment, stopping fetch",
					zap.Int("fetched", len(all)))
				return all, err
			}

			// 404 is a gap in the feed, not a failure: skip the range and
			// keep going. A long run of gaps means the feed is exhausted.
			if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
				consecutiveSkips++
				consecutiveErrors = 0
				if consecutiveSkips >= maxConsecutiveSkips {
					p.logger.Warn("too many consecutive skipped ranges, assuming end of feed",
						zap.Int("fetched", len(all)))
					return all, nil
				}

				p.logger.Warn("skipping missing page range",
					zap.String("range", missedRange),
					zap.Int("consecutive_skips", consecutiveSkips))
				skip += p.cfg.PageSize
				continue
			}

			consecutiveErrors++
			consecutiveSkips = 0
			if consecutiveErrors >= maxConsecutiveErrors {
				p.logger.Warn("too many consecutive errors, stopping fetch",
					zap.Int("fetched", len(all)))
				return all, err
			}

			p.logger.Warn("skipping failed page range", zap.String("range", missedRange), zap.Error(err))
			skip += p.cfg.PageSize
			continue
		}

		consecutiveSkips = 0
		consecutiveErrors = 0

		if expectedTotal < 0 {
			expectedTotal = page.Total
			p.state.setExpectedTotal(expectedTotal)
			p.logger.Info("upstream reports total messages", zap.Int("total", expectedTotal))
		}

		if len(page.Items) == 0 {
			return all, nil
		}

		all = append(all, page.Items...)
		p.state.addFetched(len(page.Items))

		if len(all) >= expectedTotal {
			return all, nil
		}

		skip += p.cfg.PageSize
		if skip >= expectedTotal {
			return all, nil
		}
	}
}

func (p *Pipeline) fetchPageWithRetry(ctx context.Context, skip int) (*Page, error) {
	var lastErr error
	for attempt := 0; attempt <= pageRetryAttempts; attempt++ {
		if attempt > 0 && p.retryBaseDelay > 0 {
			delay := p.retryBaseDelay * time.Duration(1<<attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		page, err := p.client.FetchPage(ctx, skip, p.cfg.PageSize)
		if err == nil {
			return page, nil
		}
		lastErr = err

		// 404 and 402 do not recover on retry.
		var se *statusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusNotFound || se.StatusCode == http.StatusPaymentRequired) {
			return nil, err
		}
	}
	return nil, lastErr
}

// indexMessages embeds and upserts messages in batches. The embedded text
// carries the author name so user-directed questions land on their messages.
func (p *Pipeline) indexMessages(ctx context.Context, messages []types.Message) (int, error) {
	totalIndexed := 0

	for start := 0; start < len(messages); start += p.cfg.EmbeddingBatch {
		end := start + p.cfg.EmbeddingBatch
		if end > len(messages) {
			end = len(messages)
		}
		batch := messages[start:end]

		texts := make([]string, len(batch))
		for i, msg := range batch {
			texts[i] = fmt.Sprintf("[%s] %s", msg.UserName, msg.Text)
		}

		vectors, err := p.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return totalIndexed, fmt.Errorf("embedding batch failed at offset %d: %w", start, err)
		}

		upserted, err := p.index.Upsert(ctx, batch, vectors)
		if err != nil {
			return totalIndexed, fmt.Errorf("upsert failed at offset %d: %w", start, err)
		}

		totalIndexed += upserted
		p.state.setIndexed(totalIndexed)
		p.logger.Info("indexing progress",
			zap.Int("indexed", totalIndexed),
			zap.Int("total", len(messages)))
	}

	return totalIndexed, nil
}
