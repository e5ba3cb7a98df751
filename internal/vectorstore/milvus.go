package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"go.uber.org/zap"

	"github.com/lk2023060901/member-qa-backend/internal/pkg/logger"
	"github.com/lk2023060901/member-qa-backend/internal/qa/types"
)

const (
	fieldID        = "id"
	fieldUserID    = "user_id"
	fieldUserName  = "user_name"
	fieldTimestamp = "timestamp"
	fieldMessage   = "message"
	fieldEmbedding = "embedding"
)

// MilvusIndex is the Milvus-backed message index.
type MilvusIndex struct {
	client     *milvusclient.Client
	collection string
	dimension  int
	logger     *logger.Logger
}

// MilvusIndexConfig configures the Milvus message index
type MilvusIndexConfig struct {
	Address    string
	Username   string
	Password   string
	Collection string
	Dimension  int
}

// NewMilvusIndex connects to Milvus and ensures the message collection exists.
func NewMilvusIndex(ctx context.Context, cfg *MilvusIndexConfig, lgr *logger.Logger) (*MilvusIndex, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("milvus address is required")
	}

	if cfg.Collection == "" {
		cfg.Collection = "member_messages"
	}

	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	if lgr == nil {
		lgr = logger.L()
	}

	clientCfg := &milvusclient.ClientConfig{
		Address: cfg.Address,
	}
	if cfg.Username != "" && cfg.Password != "" {
		clientCfg.Username = cfg.Username
		clientCfg.Password = cfg.Password
	}

	client, err := milvusclient.New(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	m := &MilvusIndex{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		logger:     lgr,
	}

	if err := m.ensureCollection(ctx); err != nil {
		return nil, err
	}

	lgr.Info("milvus message index ready",
		zap.String("address", cfg.Address),
		zap.String("collection", cfg.Collection),
		zap.Int("dimension", cfg.Dimension))

	return m, nil
}

// ensureCollection creates, indexes and loads the collection when missing.
func (m *MilvusIndex) ensureCollection(ctx context.Context) error {
	exists, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(m.collection))
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !exists {
		schema := entity.NewSchema().
			WithName(m.collection).
			WithDescription("Member message embeddings").
			WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).WithIsPrimaryKey(true).WithMaxLength(128)).
			WithField(entity.NewField().WithName(fieldUserID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(128)).
			WithField(entity.NewField().WithName(fieldUserName).WithDataType(entity.FieldTypeVarChar).WithMaxLength(256)).
			WithField(entity.NewField().WithName(fieldTimestamp).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName(fieldMessage).WithDataType(entity.FieldTypeVarChar).WithMaxLength(8192)).
			WithField(entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(m.dimension)))

		if err := m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(m.collection, schema)); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		idx := index.NewHNSWIndex(entity.COSINE, 16, 200)
		task, err := m.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(m.collection, fieldEmbedding, idx))
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		if err := task.Await(ctx); err != nil {
			return fmt.Errorf("failed to build index: %w", err)
		}

		m.logger.Info("milvus collection created",
			zap.String("collection", m.collection))
	}

	loadTask, err := m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(m.collection))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to await collection load: %w", err)
	}

	return nil
}

// Search returns the topK most similar messages, optionally filtered to one user.
func (m *MilvusIndex) Search(ctx context.Context, vector []float32, topK int, userName string) ([]SearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("search vector is empty")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}

	searchOpt := milvusclient.NewSearchOption(m.collection, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(fieldEmbedding).
		WithOutputFields(fieldUserID, fieldUserName, fieldTimestamp, fieldMessage)

	if userName != "" {
		searchOpt = searchOpt.WithFilter(fmt.Sprintf(`%s == "%s"`, fieldUserName, escapeFilterValue(userName)))
	}

	resultSets, err := m.client.Search(ctx, searchOpt)
	if err != nil {
		m.logger.Error("milvus search failed",
			zap.String("collection", m.collection),
			zap.Int("top_k", topK),
			zap.String("user_filter", userName),
			zap.Error(err))
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}

	if len(resultSets) == 0 {
		return []SearchResult{}, nil
	}

	rs := resultSets[0]
	results := make([]SearchResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		id, err := rs.IDs.Get(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read result id: %w", err)
		}

		msg := types.Message{
			ID:        fmt.Sprintf("%v", id),
			UserID:    columnString(rs.GetColumn(fieldUserID), i),
			UserName:  columnString(rs.GetColumn(fieldUserName), i),
			Timestamp: columnString(rs.GetColumn(fieldTimestamp), i),
			Text:      columnString(rs.GetColumn(fieldMessage), i),
		}

		results = append(results, SearchResult{
			Message: msg,
			Score:   float64(rs.Scores[i]),
		})
	}

	m.logger.Debug("milvus search completed",
		zap.Int("requested", topK),
		zap.Int("returned", len(results)),
		zap.String("user_filter", userName))

	return results, nil
}

// Upsert writes messages with their embeddings.
func (m *MilvusIndex) Upsert(ctx context.Context, messages []types.Message, vectors [][]float32) (int, error) {
	if len(messages) != len(vectors) {
		return 0, fmt.Errorf("messages and vectors count mismatch: %d != %d", len(messages), len(vectors))
	}
	if len(messages) == 0 {
		return 0, nil
	}

	ids := make([]string, len(messages))
	userIDs := make([]string, len(messages))
	userNames := make([]string, len(messages))
	timestamps := make([]string, len(messages))
	texts := make([]string, len(messages))

	for i, msg := range messages {
		ids[i] = msg.ID
		userIDs[i] = msg.UserID
		userNames[i] = msg.UserName
		timestamps[i] = msg.Timestamp
		texts[i] = msg.Text
	}

	columns := []column.Column{
		column.NewColumnVarChar(fieldID, ids),
		column.NewColumnVarChar(fieldUserID, userIDs),
		column.NewColumnVarChar(fieldUserName, userNames),
		column.NewColumnVarChar(fieldTimestamp, timestamps),
		column.NewColumnVarChar(fieldMessage, texts),
		column.NewColumnFloatVector(fieldEmbedding, m.dimension, vectors),
	}

	result, err := m.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(m.collection, columns...))
	if err != nil {
		m.logger.Error("milvus upsert failed",
			zap.String("collection", m.collection),
			zap.Int("count", len(messages)),
			zap.Error(err))
		return 0, fmt.Errorf("milvus upsert failed: %w", err)
	}

	m.logger.Info("messages upserted",
		zap.String("collection", m.collection),
		zap.Int64("count", result.UpsertCount))

	return int(result.UpsertCount), nil
}

// Stats returns the row count of the message collection.
func (m *MilvusIndex) Stats(ctx context.Context) (*IndexStats, error) {
	stats, err := m.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(m.collection))
	if err != nil {
		return nil, fmt.Errorf("failed to get collection stats: %w", err)
	}

	var total int64
	if raw, ok := stats["row_count"]; ok {
		total, _ = strconv.ParseInt(raw, 10, 64)
	}

	return &IndexStats{TotalVectorCount: total}, nil
}

// Close releases the Milvus connection.
func (m *MilvusIndex) Close(ctx context.Context) error {
	return m.client.Close(ctx)
}

// columnString reads one string cell from an output column.
func columnString(col column.Column, idx int) string {
	if col == nil {
		return ""
	}
	val, err := col.Get(idx)
	if err != nil {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", val)
}

// escapeFilterValue keeps user-supplied names from breaking the filter
// expression. Backslashes go first so escaped quotes stay escaped.
func escapeFilterValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `"`, `\"`)
}
