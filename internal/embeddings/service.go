package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/greenhillcanarias/digital-twin/internal/interceptors"
	ometrics "github.com/greenhillcanarias/digital-twin/internal/metrics"
	"github.com/greenhillcanarias/digital-twin/internal/tracing"
)

// Service turns text into vectors via the embedding sidecar, with a local LRU
// in front of an optional shared Redis cache.
type Service struct {
	cfg   Config
	http  *http.Client
	cache Cache
	lru   *LocalLRU
}

var globalSvc *Service

func Initialize(cfg Config, cache Cache) {
	c := cfg
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "text-embedding-3-small"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.MaxLRU == 0 {
		c.MaxLRU = 2048
	}
	if c.Chunking.Enabled && c.Chunking.MaxWords == 0 {
		c.Chunking = DefaultChunkingConfig()
	}

	httpClient := &http.Client{
		Timeout:   c.Timeout,
		Transport: interceptors.NewRequestIDRoundTripper(nil),
	}
	globalSvc = &Service{cfg: c, http: httpClient, cache: cache, lru: NewLocalLRU(c.MaxLRU)}
}

func Get() *Service { return globalSvc }

// GetConfig returns the current configuration.
func (s *Service) GetConfig() Config {
	if s == nil {
		return Config{
			DefaultModel: "text-embedding-3-small",
			Chunking:     DefaultChunkingConfig(),
		}
	}
	return s.cfg
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
	ModelUsed  string      `json:"model_used"`
}

// Embed returns the vector for a single text.
func (s *Service) Embed(ctx context.Context, text string, model string) ([]float32, error) {
	if s == nil {
		return nil, fmt.Errorf("embedding service not initialized")
	}
	m := model
	if m == "" {
		m = s.cfg.DefaultModel
	}
	key := MakeKey(m, text)

	if v, ok := s.lru.Get(ctx, key); ok {
		ometrics.RecordEmbeddingMetrics(m, "lru_hit", 0)
		return v, nil
	}
	if s.cache != nil {
		if v, ok := s.cache.Get(ctx, key); ok {
			s.lru.Set(ctx, key, v, 30*time.Minute)
			ometrics.RecordEmbeddingMetrics(m, "cache_hit", 0)
			return v, nil
		}
	}

	vecs, err := s.callService(ctx, []string{text}, m)
	if err != nil {
		return nil, err
	}
	out := vecs[0]
	s.lru.Set(ctx, key, out, 30*time.Minute)
	if s.cache != nil {
		s.cache.Set(ctx, key, out, s.cfg.CacheTTL)
	}
	return out, nil
}

// EmbedBatch generates vectors for multiple texts in one request, filling in
// cached entries without re-requesting them. Used when archiving chunked
// agent outputs.
func (s *Service) EmbedBatch(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if s == nil {
		return nil, fmt.Errorf("embedding service not initialized")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	m := model
	if m == "" {
		m = s.cfg.DefaultModel
	}

	results := make([][]float32, len(texts))
	var pendingTexts []string
	var pendingIdx []int

	for i, text := range texts {
		key := MakeKey(m, text)
		if v, ok := s.lru.Get(ctx, key); ok {
			results[i] = v
			ometrics.RecordEmbeddingMetrics(m, "lru_hit", 0)
			continue
		}
		if s.cache != nil {
			if v, ok := s.cache.Get(ctx, key); ok {
				results[i] = v
				s.lru.Set(ctx, key, v, 30*time.Minute)
				ometrics.RecordEmbeddingMetrics(m, "cache_hit", 0)
				continue
			}
		}
		pendingTexts = append(pendingTexts, text)
		pendingIdx = append(pendingIdx, i)
	}

	if len(pendingTexts) == 0 {
		return results, nil
	}

	vecs, err := s.callService(ctx, pendingTexts, m)
	if err != nil {
		return nil, err
	}
	for i, out := range vecs {
		idx := pendingIdx[i]
		results[idx] = out
		key := MakeKey(m, pendingTexts[i])
		s.lru.Set(ctx, key, out, 30*time.Minute)
		if s.cache != nil {
			s.cache.Set(ctx, key, out, s.cfg.CacheTTL)
		}
	}
	return results, nil
}

func (s *Service) callService(ctx context.Context, texts []string, model string) ([][]float32, error) {
	start := time.Now()

	url := fmt.Sprintf("%s/embeddings/", s.cfg.BaseURL)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	buf, _ := json.Marshal(embedRequest{Texts: texts, Model: model})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := s.http.Do(req)
	if err != nil {
		ometrics.RecordEmbeddingMetrics(model, "error", time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		ometrics.RecordEmbeddingMetrics(model, "error", time.Since(start).Seconds())
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(body))
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		ometrics.RecordEmbeddingMetrics(model, "error", time.Since(start).Seconds())
		return nil, err
	}
	if len(er.Embeddings) != len(texts) {
		ometrics.RecordEmbeddingMetrics(model, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("embedding service returned %d embeddings for %d texts", len(er.Embeddings), len(texts))
	}

	out := make([][]float32, len(er.Embeddings))
	for i, embedding := range er.Embeddings {
		v := make([]float32, len(embedding))
		for j, f := range embedding {
			v[j] = float32(f)
		}
		out[i] = v
	}
	ometrics.RecordEmbeddingMetrics(model, "ok", time.Since(start).Seconds())
	return out, nil
}
