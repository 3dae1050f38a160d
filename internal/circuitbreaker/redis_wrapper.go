package circuitbreaker

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const redisService = "embedding-cache"

// RedisWrapper wraps a Redis client with a circuit breaker. Used by the
// embedding cache, which treats Redis strictly as best-effort.
type RedisWrapper struct {
	client *redis.Client
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewRedisWrapper builds the wrapper and registers its breaker for metrics.
func NewRedisWrapper(client *redis.Client, logger *zap.Logger) *RedisWrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := NewCircuitBreaker("redis", RedisConfig(), logger)
	GlobalMetricsCollector.RegisterCircuitBreaker("redis", redisService, cb)
	return &RedisWrapper{client: client, cb: cb, logger: logger}
}

// run executes op under the breaker and records the attempt. The op decides
// which command errors count as failures (a cache miss does not).
func (rw *RedisWrapper) run(ctx context.Context, op func() error) error {
	err := rw.cb.Execute(ctx, op)
	GlobalMetricsCollector.RecordRequest("redis", redisService, rw.cb.State(), err == nil)
	return err
}

// Ping checks connectivity through the breaker.
func (rw *RedisWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	var cmd *redis.StatusCmd
	err := rw.run(ctx, func() error {
		cmd = rw.client.Ping(ctx)
		return cmd.Err()
	})
	if err != nil && cmd == nil {
		cmd = redis.NewStatusCmd(ctx)
		cmd.SetErr(err)
	}
	return cmd
}

// Get reads a key through the breaker. A miss (redis.Nil) is a successful
// round trip, not a breaker failure.
func (rw *RedisWrapper) Get(ctx context.Context, key string) *redis.StringCmd {
	var cmd *redis.StringCmd
	err := rw.run(ctx, func() error {
		cmd = rw.client.Get(ctx, key)
		if cmd.Err() == redis.Nil {
			return nil
		}
		return cmd.Err()
	})
	if err != nil && cmd == nil {
		cmd = redis.NewStringCmd(ctx)
		cmd.SetErr(err)
	}
	return cmd
}

// Set writes a key with a TTL through the breaker.
func (rw *RedisWrapper) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	var cmd *redis.StatusCmd
	err := rw.run(ctx, func() error {
		cmd = rw.client.Set(ctx, key, value, ttl)
		return cmd.Err()
	})
	if err != nil && cmd == nil {
		cmd = redis.NewStatusCmd(ctx)
		cmd.SetErr(err)
	}
	return cmd
}
