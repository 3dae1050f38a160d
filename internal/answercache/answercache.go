// Package answercache stores final composite answers in Redis keyed by
// source type and question, letting repeated questions skip the agent chain.
package answercache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config controls the Redis-backed answer cache.
type Config struct {
	Addr string
	TTL  time.Duration
	// KeyPrefix namespaces cache entries, "twin:answer:" by default
	KeyPrefix string
}

// Cache implements the engine's answer cache contract. All failures are
// treated as misses; a down Redis never breaks a request.
type Cache struct {
	cli    *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Cache, error) {
	if cfg.TTL == 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "twin:answer:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cli := redis.NewClient(&redis.Options{Addr: cfg.Addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Cache{cli: cli, ttl: cfg.TTL, prefix: cfg.KeyPrefix, logger: logger}, nil
}

func (c *Cache) key(sourceType, question string) string {
	h := sha256.Sum256([]byte(strings.ToLower(sourceType) + "|" + strings.TrimSpace(question)))
	return c.prefix + hex.EncodeToString(h[:16])
}

// Get returns a cached answer, or ok=false on miss or Redis failure.
func (c *Cache) Get(ctx context.Context, sourceType, question string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, err := c.cli.Get(ctx, c.key(sourceType, question)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.Warn("Answer cache read failed", zap.Error(err))
		return "", false
	}
	return v, true
}

// Set stores an answer best-effort.
func (c *Cache) Set(ctx context.Context, sourceType, question, answer string) {
	if c == nil || answer == "" {
		return
	}
	if err := c.cli.Set(ctx, c.key(sourceType, question), answer, c.ttl).Err(); err != nil {
		c.logger.Warn("Answer cache write failed", zap.Error(err))
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.cli.Close()
}
