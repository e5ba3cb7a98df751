package conf

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Embedding EmbeddingConfig
	Milvus    MilvusConfig
	Redis     RedisConfig
	Reranker  RerankerConfig
	LLM       LLMConfig
	Ingestion IngestionConfig
	Retrieval RetrievalConfig
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type LogConfig struct {
	Level            string        `mapstructure:"level"`
	Format           string        `mapstructure:"format"`
	Output           string        `mapstructure:"output"`
	File             FileLogConfig `mapstructure:"file"`
	EnableCaller     bool          `mapstructure:"enablecaller"`
	EnableStacktrace bool          `mapstructure:"enablestacktrace"`
}

type FileLogConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxsize"`
	MaxAge     int    `mapstructure:"maxage"`
	MaxBackups int    `mapstructure:"maxbackups"`
	Compress   bool   `mapstructure:"compress"`
}

type EmbeddingConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	Dimension int           `mapstructure:"dimension"`
	BatchSize int           `mapstructure:"batch_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

type MilvusConfig struct {
	Address    string `mapstructure:"address"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Collection string `mapstructure:"collection"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RerankerConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LLMConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

type IngestionConfig struct {
	APIURL            string        `mapstructure:"api_url"`
	PageSize          int           `mapstructure:"page_size"`
	EmbeddingBatch    int           `mapstructure:"embedding_batch"`
	Enabled           bool          `mapstructure:"enabled"`
	DeltaRefreshHours int           `mapstructure:"delta_refresh_hours"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

type RetrievalConfig struct {
	TopKInitial       int     `mapstructure:"top_k_initial"`
	UserTopK          int     `mapstructure:"user_top_k"`
	DefaultMaxSources int     `mapstructure:"default_max_sources"`
	MentionFloor      float64 `mapstructure:"mention_floor"`
	MentionBand       float64 `mapstructure:"mention_band"`
	DominantRatio     float64 `mapstructure:"dominant_ratio"`
	NameSampleTopK    int     `mapstructure:"name_sample_top_k"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "console")
	viper.SetDefault("log.enablecaller", true)
	viper.SetDefault("log.file.filename", "logs/server.log")
	viper.SetDefault("log.file.maxsize", 100)
	viper.SetDefault("log.file.maxage", 30)
	viper.SetDefault("log.file.maxbackups", 10)

	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimension", 1536)
	viper.SetDefault("embedding.batch_size", 100)
	viper.SetDefault("embedding.cache_ttl", "24h")

	viper.SetDefault("milvus.collection", "member_messages")

	viper.SetDefault("reranker.model", "BAAI/bge-reranker-v2-m3")
	viper.SetDefault("reranker.timeout", "30s")

	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.1)
	viper.SetDefault("llm.max_tokens", 500)

	viper.SetDefault("ingestion.page_size", 100)
	viper.SetDefault("ingestion.embedding_batch", 100)
	viper.SetDefault("ingestion.delta_refresh_hours", 12)
	viper.SetDefault("ingestion.request_timeout", "30s")

	viper.SetDefault("retrieval.top_k_initial", 100)
	viper.SetDefault("retrieval.user_top_k", 500)
	viper.SetDefault("retrieval.default_max_sources", 30)
	viper.SetDefault("retrieval.mention_floor", 0.5)
	viper.SetDefault("retrieval.mention_band", 0.2)
	viper.SetDefault("retrieval.dominant_ratio", 0.5)
	viper.SetDefault("retrieval.name_sample_top_k", 1000)
}
