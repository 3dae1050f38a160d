// Package config loads twin service configuration from twin.yaml with
// environment overrides, plus the hot-reloadable routing table.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`

	HTTP struct {
		Port            int `mapstructure:"port"`
		ShutdownSeconds int `mapstructure:"shutdown_seconds"`
	} `mapstructure:"http"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`

	Tracing struct {
		Enabled  bool   `mapstructure:"enabled"`
		Endpoint string `mapstructure:"endpoint"`
	} `mapstructure:"tracing"`

	LLM struct {
		BaseURL        string  `mapstructure:"base_url"`
		Provider       string  `mapstructure:"provider"`
		ModelTier      string  `mapstructure:"model_tier"`
		TimeoutSeconds int     `mapstructure:"timeout_seconds"`
		MaxTokens      int     `mapstructure:"max_tokens"`
		Temperature    float64 `mapstructure:"temperature"`
	} `mapstructure:"llm"`

	Embeddings struct {
		BaseURL         string `mapstructure:"base_url"`
		Model           string `mapstructure:"model"`
		RedisEnabled    bool   `mapstructure:"redis_enabled"`
		RedisAddr       string `mapstructure:"redis_addr"`
		CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
	} `mapstructure:"embeddings"`

	VectorStore struct {
		Enabled    bool    `mapstructure:"enabled"`
		Host       string  `mapstructure:"host"`
		Port       int     `mapstructure:"port"`
		Collection string  `mapstructure:"collection"`
		TopK       int     `mapstructure:"top_k"`
		Threshold  float64 `mapstructure:"threshold"`
	} `mapstructure:"vector_store"`

	AnswerCache struct {
		Enabled    bool   `mapstructure:"enabled"`
		RedisAddr  string `mapstructure:"redis_addr"`
		TTLSeconds int    `mapstructure:"ttl_seconds"`
	} `mapstructure:"answer_cache"`

	Audit struct {
		Enabled bool   `mapstructure:"enabled"`
		Driver  string `mapstructure:"driver"`
		DSN     string `mapstructure:"dsn"`
		Workers int    `mapstructure:"workers"`
	} `mapstructure:"audit"`

	Twin struct {
		ContextTopK    int  `mapstructure:"context_top_k"`
		AgentTopK      int  `mapstructure:"agent_top_k"`
		ArchiveOutputs bool `mapstructure:"archive_outputs"`
	} `mapstructure:"twin"`
}

// Load reads twin.yaml from CONFIG_PATH (default /app/config/twin.yaml) when
// present, applies TWIN_-prefixed environment overrides, and fills defaults.
// A missing config file is not an error; a malformed one is.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TWIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "/app/config/twin.yaml"
	}
	if _, err := os.Stat(cfgPath); err == nil {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("http.port", 8090)
	v.SetDefault("http.shutdown_seconds", 10)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")

	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model_tier", "small")
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.temperature", 0.2)

	v.SetDefault("embeddings.base_url", "")
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.redis_enabled", false)
	v.SetDefault("embeddings.redis_addr", "localhost:6379")
	v.SetDefault("embeddings.cache_ttl_seconds", 3600)

	v.SetDefault("vector_store.enabled", false)
	v.SetDefault("vector_store.host", "localhost")
	v.SetDefault("vector_store.port", 6333)
	v.SetDefault("vector_store.collection", "ghc_documents")
	v.SetDefault("vector_store.top_k", 5)
	v.SetDefault("vector_store.threshold", 0.0)

	v.SetDefault("answer_cache.enabled", false)
	v.SetDefault("answer_cache.redis_addr", "localhost:6379")
	v.SetDefault("answer_cache.ttl_seconds", 900)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.driver", "postgres")
	v.SetDefault("audit.dsn", "")
	v.SetDefault("audit.workers", 2)

	v.SetDefault("twin.context_top_k", 5)
	v.SetDefault("twin.agent_top_k", 3)
	v.SetDefault("twin.archive_outputs", false)
}

// LLMTimeout returns the configured LLM timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// EmbeddingsCacheTTL returns the embedding cache TTL as a duration.
func (c *Config) EmbeddingsCacheTTL() time.Duration {
	return time.Duration(c.Embeddings.CacheTTLSeconds) * time.Second
}

// AnswerCacheTTL returns the answer cache TTL as a duration.
func (c *Config) AnswerCacheTTL() time.Duration {
	return time.Duration(c.AnswerCache.TTLSeconds) * time.Second
}
