// Package llm calls the LLM sidecar to enhance agent drafts. Every failure
// degrades to a deterministic baseline so the agent chain never stalls on a
// model outage.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/greenhillcanarias/digital-twin/internal/circuitbreaker"
	"github.com/greenhillcanarias/digital-twin/internal/interceptors"
	ometrics "github.com/greenhillcanarias/digital-twin/internal/metrics"
	"github.com/greenhillcanarias/digital-twin/internal/ratecontrol"
	"github.com/greenhillcanarias/digital-twin/internal/tracing"
)

// Config controls the LLM client.
type Config struct {
	// BaseURL points to the LLM service providing POST /agent/query
	BaseURL string
	// Provider and ModelTier select rate limits from models.yaml
	Provider  string
	ModelTier string
	// Timeout for outbound HTTP calls
	Timeout time.Duration
	// MaxTokens per completion
	MaxTokens int
	// Temperature for generation
	Temperature float64
}

// Client implements the twin's Generator contract over HTTP.
type Client struct {
	cfg     Config
	http    *http.Client
	httpw   *circuitbreaker.HTTPWrapper
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.ModelTier == "" {
		cfg.ModelTier = "small"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: interceptors.NewRequestIDRoundTripper(nil),
	}

	limit := ratecontrol.CombineLimits(
		ratecontrol.LimitForTier(cfg.ModelTier),
		ratecontrol.LimitForProvider(cfg.Provider),
	)
	limiter := rate.NewLimiter(rate.Inf, 1)
	if limit.RPM > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(limit.RPM)/60.0), 1)
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		httpw:   circuitbreaker.NewHTTPWrapper(httpClient, "llm-service", "llm", logger),
		limiter: limiter,
		logger:  logger,
	}
}

type agentQueryRequest struct {
	Query       string                 `json:"query"`
	MaxTokens   int                    `json:"max_tokens"`
	Temperature float64                `json:"temperature"`
	AgentID     string                 `json:"agent_id"`
	ModelTier   string                 `json:"model_tier"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

type agentQueryResponse struct {
	Success    bool   `json:"success"`
	Response   string `json:"response"`
	TokensUsed int    `json:"tokens_used"`
	ModelUsed  string `json:"model_used"`
	Provider   string `json:"provider"`
}

// Enhance sends the draft content with the agent instruction as system
// prompt and returns the model's analysis. On any failure it returns the
// deterministic baseline instead.
func (c *Client) Enhance(ctx context.Context, instruction, content string) string {
	if c == nil || c.cfg.BaseURL == "" {
		return baseline(instruction, content, fmt.Errorf("llm service not configured"))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return baseline(instruction, content, err)
	}

	start := time.Now()
	url := fmt.Sprintf("%s/agent/query", c.cfg.BaseURL)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	reqBody := agentQueryRequest{
		Query:       content,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		AgentID:     "twin",
		ModelTier:   c.cfg.ModelTier,
		Context:     map[string]interface{}{"system_prompt": instruction},
	}
	buf, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return baseline(instruction, content, err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		c.logger.Warn("LLM call failed, using baseline", zap.Error(err))
		ometrics.RecordLLMMetrics("error", time.Since(start).Seconds())
		ometrics.LLMFallbacks.Inc()
		return baseline(instruction, content, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("LLM returned non-2xx, using baseline", zap.Int("status", resp.StatusCode))
		ometrics.RecordLLMMetrics("error", time.Since(start).Seconds())
		ometrics.LLMFallbacks.Inc()
		return baseline(instruction, content, fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	var qr agentQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		c.logger.Warn("LLM response decode failed, using baseline", zap.Error(err))
		ometrics.RecordLLMMetrics("error", time.Since(start).Seconds())
		ometrics.LLMFallbacks.Inc()
		return baseline(instruction, content, err)
	}

	text := strings.TrimSpace(qr.Response)
	if text == "" {
		ometrics.RecordLLMMetrics("empty", time.Since(start).Seconds())
		ometrics.LLMFallbacks.Inc()
		return baseline(instruction, content, fmt.Errorf("empty completion"))
	}

	ometrics.RecordLLMMetrics("ok", time.Since(start).Seconds())
	return text
}

// baseline is the degraded analysis used whenever the model is unreachable.
// It keeps the instruction and retrieved content visible so downstream
// consumers still get a well-formed, attributable answer.
func baseline(instruction, content string, err error) string {
	return fmt.Sprintf("Analysis: %s\n\nContext: %s\n\n[LLM enhancement unavailable: %v]", instruction, content, err)
}
