package circuitbreaker

import (
	"os"
	"strconv"
	"time"
)

// envConfig layers CB_<PREFIX>_* environment overrides over base.
func envConfig(prefix string, base Config) Config {
	base.MaxRequests = envUint32("CB_"+prefix+"_MAX_REQUESTS", base.MaxRequests)
	base.Interval = envDuration("CB_"+prefix+"_INTERVAL", base.Interval)
	base.Timeout = envDuration("CB_"+prefix+"_TIMEOUT", base.Timeout)
	base.FailureThreshold = envUint32("CB_"+prefix+"_FAILURE_THRESHOLD", base.FailureThreshold)
	base.SuccessThreshold = envUint32("CB_"+prefix+"_SUCCESS_THRESHOLD", base.SuccessThreshold)
	return base
}

// HTTPConfig tunes the breakers guarding the LLM and vector store HTTP
// clients.
func HTTPConfig() Config {
	return envConfig("HTTP", Config{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	})
}

// RedisConfig tunes the embedding-cache breaker.
func RedisConfig() Config {
	return envConfig("REDIS", Config{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	})
}

// DatabaseConfig tunes the audit register breaker.
func DatabaseConfig() Config {
	return envConfig("DB", Config{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	})
}

func envUint32(key string, fallback uint32) uint32 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}
