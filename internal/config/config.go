// Package config loads layered configuration for the indexing and search
// data plane: in-code defaults, an optional YAML file, then environment
// overrides.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// BreakerConfig is the per-dependency circuit breaker configuration
// surfaced as environment variables per spec §6.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
	HalfOpenMaxCalls int           `mapstructure:"half_open_max_calls"`
}

// CacheConfig configures the multi-layer cache.
type CacheConfig struct {
	L1Capacity  int           `mapstructure:"l1_capacity"`
	L1TTL       time.Duration `mapstructure:"l1_ttl"`
	L2TTL       time.Duration `mapstructure:"l2_ttl"`
	NegativeTTL time.Duration `mapstructure:"negative_ttl"`
	RedisAddr   string        `mapstructure:"redis_addr"`
}

// Config aggregates every externally-tunable knob named in spec §6.
type Config struct {
	DatabaseURL   string        `mapstructure:"database_url"`
	StreamURL     string        `mapstructure:"stream_url"`
	BatchSize     int           `mapstructure:"batch_size"`
	WorkerTimeout time.Duration `mapstructure:"worker_timeout_s"`
	SearchTimeout time.Duration `mapstructure:"search_timeout_s"`

	StreamName        string `mapstructure:"stream_name"`
	DeadLetterStream  string `mapstructure:"dead_letter_stream"`
	ConsumerGroup     string `mapstructure:"consumer_group"`
	MaxFileSize       int    `mapstructure:"max_file_size"`

	AWSRegion           string `mapstructure:"aws_region"`
	EmbeddingMaxBatch   int    `mapstructure:"embedding_max_batch"`
	RerankBatchSize     int    `mapstructure:"rerank_batch_size"`
	RerankMaxConcurrency int   `mapstructure:"rerank_max_concurrency"`

	Cache CacheConfig `mapstructure:"cache"`

	VectorCacheBreaker    BreakerConfig `mapstructure:"vector_cache_breaker"`
	EmbeddingBreaker      BreakerConfig `mapstructure:"embedding_breaker"`
	DatabaseHealthBreaker BreakerConfig `mapstructure:"database_health_breaker"`
	RerankBreaker         BreakerConfig `mapstructure:"rerank_breaker"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "postgres://localhost:5432/mnemolite?sslmode=disable")
	v.SetDefault("stream_url", "redis://localhost:6379/0")
	v.SetDefault("batch_size", 40)
	v.SetDefault("worker_timeout_s", 300*time.Second)
	v.SetDefault("search_timeout_s", 5*time.Second)

	v.SetDefault("cache.l1_capacity", 10000)
	v.SetDefault("cache.l1_ttl", 5*time.Minute)
	v.SetDefault("cache.l2_ttl", 30*time.Minute)
	v.SetDefault("cache.negative_ttl", 30*time.Second)
	v.SetDefault("cache.redis_addr", "localhost:6379")

	v.SetDefault("stream_name", "mnemolite:batches")
	v.SetDefault("dead_letter_stream", "mnemolite:batches:dlq")
	v.SetDefault("consumer_group", "mnemolite-workers")
	v.SetDefault("max_file_size", 2*1024*1024)

	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("embedding_max_batch", 16)
	v.SetDefault("rerank_batch_size", 10)
	v.SetDefault("rerank_max_concurrency", 3)

	// Defaults from original_source/api/config/circuit_breakers.py.
	v.SetDefault("vector_cache_breaker.failure_threshold", 5)
	v.SetDefault("vector_cache_breaker.recovery_timeout", 30*time.Second)
	v.SetDefault("vector_cache_breaker.half_open_max_calls", 1)

	v.SetDefault("embedding_breaker.failure_threshold", 3)
	v.SetDefault("embedding_breaker.recovery_timeout", 60*time.Second)
	v.SetDefault("embedding_breaker.half_open_max_calls", 1)

	v.SetDefault("database_health_breaker.failure_threshold", 3)
	v.SetDefault("database_health_breaker.recovery_timeout", 10*time.Second)
	v.SetDefault("database_health_breaker.half_open_max_calls", 1)

	v.SetDefault("rerank_breaker.failure_threshold", 5)
	v.SetDefault("rerank_breaker.recovery_timeout", 30*time.Second)
	v.SetDefault("rerank_breaker.half_open_max_calls", 1)
}

// Load builds a Config from defaults, an optional config file, and
// MNEMOLITE_-prefixed environment variables.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	configFile := os.Getenv("MNEMOLITE_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("MNEMOLITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if _, statErr := os.Stat(configFile); statErr != nil {
				// Config file simply doesn't exist; defaults + env suffice.
			} else {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
