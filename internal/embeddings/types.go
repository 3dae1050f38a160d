package embeddings

import "time"

// Config controls the embedding client behavior.
type Config struct {
	// BaseURL points to the embedding service providing POST /embeddings/
	BaseURL string
	// DefaultModel is used when a caller does not name one
	DefaultModel string
	// Timeout for outbound HTTP calls
	Timeout time.Duration
	// EnableRedis turns on the shared Redis-backed cache
	EnableRedis bool
	// RedisAddr in host:port form when EnableRedis is true
	RedisAddr string
	// CacheTTL sets TTL for Redis cache entries
	CacheTTL time.Duration
	// MaxLRU controls in-process LRU size
	MaxLRU int
	// Chunking configuration for archived agent analyses
	Chunking ChunkingConfig
}
