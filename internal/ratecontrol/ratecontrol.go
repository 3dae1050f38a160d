// Package ratecontrol resolves request pacing for the LLM service from
// models.yaml. Limits combine a tier limit with a provider limit, taking the
// stricter of the two.
package ratecontrol

import (
	"log"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type limitEntry struct {
	RPM int `yaml:"rpm"`
	TPM int `yaml:"tpm"`
}

type config struct {
	RateLimits struct {
		DefaultRPM        int                   `yaml:"default_rpm"`
		DefaultTPM        int                   `yaml:"default_tpm"`
		TierOverrides     map[string]limitEntry `yaml:"tier_overrides"`
		ProviderOverrides map[string]limitEntry `yaml:"provider_overrides"`
	} `yaml:"rate_limits"`
}

// RateLimit caps requests and tokens per minute. Zero means unlimited.
type RateLimit struct {
	RPM int
	TPM int
}

var (
	mu     sync.RWMutex
	loaded *config
	once   bool
)

func configPaths() []string {
	return []string{
		os.Getenv("MODELS_CONFIG_PATH"),
		"/app/config/models.yaml",
		"./config/models.yaml",
	}
}

func loadLocked() {
	var cfg config
	for _, p := range configPaths() {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var tmp config
		if err := yaml.Unmarshal(data, &tmp); err != nil {
			log.Printf("WARNING: bad rate limit config at %s: %v", p, err)
			continue
		}
		cfg = tmp
		log.Printf("Loaded rate limit configuration from %s", p)
		break
	}
	loaded = &cfg
	once = true
}

func get() *config {
	mu.RLock()
	if once {
		defer mu.RUnlock()
		return loaded
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if !once {
		loadLocked()
	}
	return loaded
}

// LimitForTier returns the limit for a model tier, falling back to the
// configured defaults.
func LimitForTier(tier string) RateLimit {
	cfg := get()
	if cfg == nil {
		return RateLimit{}
	}
	if e, ok := cfg.RateLimits.TierOverrides[normalize(tier)]; ok {
		return RateLimit{RPM: e.RPM, TPM: e.TPM}
	}
	return RateLimit{RPM: cfg.RateLimits.DefaultRPM, TPM: cfg.RateLimits.DefaultTPM}
}

// LimitForProvider returns the limit for a provider, preferring config
// overrides over the built-in table.
func LimitForProvider(provider string) RateLimit {
	cfg := get()
	if cfg != nil {
		if e, ok := cfg.RateLimits.ProviderOverrides[normalize(provider)]; ok {
			return RateLimit{RPM: e.RPM, TPM: e.TPM}
		}
	}
	if limit, ok := builtInProviderLimits[normalize(provider)]; ok {
		return limit
	}
	return RateLimit{}
}

var builtInProviderLimits = map[string]RateLimit{
	"openai":    {RPM: 30, TPM: 60000},
	"anthropic": {RPM: 20, TPM: 40000},
	"google":    {RPM: 40, TPM: 80000},
	"mistral":   {RPM: 50, TPM: 100000},
	"unknown":   {RPM: 45, TPM: 90000},
}

// CombineLimits takes the stricter positive cap from each pair.
func CombineLimits(a, b RateLimit) RateLimit {
	return RateLimit{
		RPM: stricter(a.RPM, b.RPM),
		TPM: stricter(a.TPM, b.TPM),
	}
}

// DelayForRequest estimates a pre-request pause respecting both limits.
func DelayForRequest(provider, tier string, estimatedTokens int) time.Duration {
	combined := CombineLimits(LimitForTier(tier), LimitForProvider(provider))
	return delayForLimit(combined, estimatedTokens)
}

func delayForLimit(limit RateLimit, estimatedTokens int) time.Duration {
	if (limit.RPM <= 0 && limit.TPM <= 0) || estimatedTokens < 0 {
		return 0
	}
	var delayMs float64
	if limit.RPM > 0 {
		delayMs = math.Max(delayMs, 60000.0/float64(limit.RPM))
	}
	if limit.TPM > 0 && estimatedTokens > 0 {
		perToken := 60000.0 / float64(limit.TPM)
		delayMs = math.Max(delayMs, perToken*float64(estimatedTokens))
	}
	if delayMs <= 0 {
		return 0
	}
	if delayMs > 60000 {
		delayMs = 60000
	}
	return time.Duration(math.Ceil(delayMs)) * time.Millisecond
}

func stricter(a, b int) int {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
