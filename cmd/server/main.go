package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lk2023060901/member-qa-backend/internal/conf"
	"github.com/lk2023060901/member-qa-backend/internal/embedding"
	"github.com/lk2023060901/member-qa-backend/internal/ingest"
	"github.com/lk2023060901/member-qa-backend/internal/llm"
	"github.com/lk2023060901/member-qa-backend/internal/pkg/logger"
	"github.com/lk2023060901/member-qa-backend/internal/qa/analyzer"
	"github.com/lk2023060901/member-qa-backend/internal/qa/eval"
	"github.com/lk2023060901/member-qa-backend/internal/qa/mentions"
	"github.com/lk2023060901/member-qa-backend/internal/qa/retriever"
	"github.com/lk2023060901/member-qa-backend/internal/qa/service"
	"github.com/lk2023060901/member-qa-backend/internal/reranker"
	"github.com/lk2023060901/member-qa-backend/internal/server"
	"github.com/lk2023060901/member-qa-backend/internal/vectorstore"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger with config
	logConfig := &logger.Config{
		Level:            config.Log.Level,
		Format:           config.Log.Format,
		Output:           config.Log.Output,
		EnableCaller:     config.Log.EnableCaller,
		EnableStacktrace: config.Log.EnableStacktrace,
		File: logger.FileConfig{
			Filename:   config.Log.File.Filename,
			MaxSize:    config.Log.File.MaxSize,
			MaxAge:     config.Log.File.MaxAge,
			MaxBackups: config.Log.File.MaxBackups,
			Compress:   config.Log.File.Compress,
		},
	}

	log, err := logger.New(logConfig)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	// Initialize global logger
	if err := logger.InitGlobal(logConfig); err != nil {
		log.Fatal("failed to initialize global logger", zap.Error(err))
	}

	log.Info("config loaded successfully")

	ctx := context.Background()

	// Embedder, optionally wrapped with a redis cache
	var embedder embedding.Embedder
	openaiEmbedder, err := embedding.NewOpenAIEmbedder(&embedding.OpenAIEmbedderConfig{
		APIKey:    config.Embedding.APIKey,
		BaseURL:   config.Embedding.BaseURL,
		Model:     config.Embedding.Model,
		Dimension: config.Embedding.Dimension,
		BatchSize: config.Embedding.BatchSize,
	}, log)
	if err != nil {
		log.Fatal("failed to initialize embedder", zap.Error(err))
	}
	embedder = openaiEmbedder

	if config.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, embedding cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			embedder = embedding.NewCacheEmbedder(openaiEmbedder, redisClient, &embedding.CacheEmbedderConfig{
				TTL: config.Embedding.CacheTTL,
			}, log)
			log.Info("embedding cache enabled", zap.String("addr", config.Redis.Addr))
		}
	}

	// Vector index
	index, err := vectorstore.NewMilvusIndex(ctx, &vectorstore.MilvusIndexConfig{
		Address:    config.Milvus.Address,
		Username:   config.Milvus.Username,
		Password:   config.Milvus.Password,
		Collection: config.Milvus.Collection,
		Dimension:  config.Embedding.Dimension,
	}, log)
	if err != nil {
		log.Fatal("failed to initialize vector index", zap.Error(err))
	}
	defer index.Close(context.Background())

	// Reranker and generator
	rerank, err := reranker.NewHTTPReranker(&reranker.HTTPRerankerConfig{
		APIKey:  config.Reranker.APIKey,
		BaseURL: config.Reranker.BaseURL,
		Model:   config.Reranker.Model,
		Timeout: config.Reranker.Timeout,
	}, log)
	if err != nil {
		log.Fatal("failed to initialize reranker", zap.Error(err))
	}

	generator, err := llm.NewOpenAIGenerator(&llm.OpenAIGeneratorConfig{
		APIKey:  config.LLM.APIKey,
		BaseURL: config.LLM.BaseURL,
		Model:   config.LLM.Model,
	}, log)
	if err != nil {
		log.Fatal("failed to initialize generator", zap.Error(err))
	}

	// Pipeline collaborators
	mentionCache := mentions.NewUserMentionCache(index, embedder, &mentions.CacheConfig{
		MentionFloor:   config.Retrieval.MentionFloor,
		MentionBand:    config.Retrieval.MentionBand,
		NameSampleTopK: config.Retrieval.NameSampleTopK,
	}, log)

	orchestrator := retriever.NewOrchestrator(&retriever.OrchestratorOptions{
		Embedder:     embedder,
		Index:        index,
		Reranker:     rerank,
		Generator:    generator,
		MentionCache: mentionCache,
		Analyzer:     analyzer.New(),
		EvalEngine:   eval.NewEngine(generator, log),
		Retrieval:    config.Retrieval,
		LLM:          config.LLM,
		Logger:       log,
	})

	// Ingestion
	messageClient := ingest.NewMessageClient(config.Ingestion.APIURL, config.Ingestion.RequestTimeout)
	pipeline := ingest.NewPipeline(messageClient, embedder, index, config.Ingestion, log)

	ingestCtx, cancelIngest := context.WithCancel(context.Background())
	defer cancelIngest()
	if config.Ingestion.Enabled {
		go pipeline.RunBackground(ingestCtx)
	}

	// HTTP server
	qaService := service.NewQAService(orchestrator, pipeline, index, log)
	httpServer := server.NewHTTPServer(config, log, qaService)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	cancelIngest()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
