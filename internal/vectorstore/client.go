package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/greenhillcanarias/digital-twin/internal/circuitbreaker"
	"github.com/greenhillcanarias/digital-twin/internal/interceptors"
	ometrics "github.com/greenhillcanarias/digital-twin/internal/metrics"
	"github.com/greenhillcanarias/digital-twin/internal/tracing"
)

// Client is a minimal Qdrant HTTP client for the twin's document store.
type Client struct {
	cfg   Config
	http  *http.Client
	base  string
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

var global *Client

func Initialize(cfg Config, logger *zap.Logger) {
	c := cfg
	if c.Port == 0 {
		c.Port = 6333
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Documents == "" {
		c.Documents = "ghc_documents"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{
		Timeout:   c.Timeout,
		Transport: interceptors.NewRequestIDRoundTripper(nil),
	}
	httpw := circuitbreaker.NewHTTPWrapper(httpClient, "qdrant", "vectorstore", logger)
	global = &Client{
		cfg:   c,
		http:  httpClient,
		base:  fmt.Sprintf("http://%s:%d", c.Host, c.Port),
		httpw: httpw,
		log:   logger,
	}
}

func Get() *Client { return global }

// NewClient builds a client without touching the global. Tests use it to
// point at an httptest server.
func NewClient(cfg Config, baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if cfg.Documents == "" {
		cfg.Documents = "ghc_documents"
	}
	httpClient := &http.Client{Timeout: 5 * time.Second}
	return &Client{
		cfg:   cfg,
		http:  httpClient,
		base:  baseURL,
		httpw: circuitbreaker.NewHTTPWrapper(httpClient, "qdrant", "vectorstore", logger),
		log:   logger,
	}
}

// GetConfig returns the current configuration.
func (c *Client) GetConfig() Config {
	if c == nil {
		return Config{Documents: "ghc_documents"}
	}
	return c.cfg
}

type qdrantQueryRequest struct {
	Query          []float32              `json:"query"`
	Limit          int                    `json:"limit"`
	ScoreThreshold *float64               `json:"score_threshold,omitempty"`
	WithPayload    bool                   `json:"with_payload"`
	Filter         map[string]interface{} `json:"filter,omitempty"`
}

type qdrantPoint struct {
	ID      interface{}            `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type qdrantSearchResponse struct {
	Result []qdrantPoint `json:"result"`
	Status string        `json:"status"`
}

// qdrantQueryResponse for the /points/query endpoint which nests the points.
type qdrantQueryResponse struct {
	Result struct {
		Points []qdrantPoint `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

// search prefers the modern /points/query endpoint and falls back to
// /points/search for older Qdrant deployments.
func (c *Client) search(ctx context.Context, collection string, vec []float32, limit int, threshold float64, filter map[string]interface{}) ([]qdrantPoint, error) {
	if c == nil || !c.cfg.Enabled {
		return nil, fmt.Errorf("vectorstore: search called while disabled")
	}
	start := time.Now()

	ctx, span := tracing.StartHTTPSpan(ctx, "POST", fmt.Sprintf("%s/collections/%s/points/query", c.base, collection))
	defer span.End()

	var thr *float64
	if threshold > 0 {
		thr = &threshold
	}
	reqBody := qdrantQueryRequest{Query: vec, Limit: limit, ScoreThreshold: thr, WithPayload: true, Filter: filter}
	buf, _ := json.Marshal(reqBody)

	call := func(url string, body []byte) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		tracing.InjectTraceparent(ctx, req)
		return c.httpw.Do(req)
	}

	urlQuery := fmt.Sprintf("%s/collections/%s/points/query", c.base, collection)
	resp, err := call(urlQuery, buf)
	if err != nil {
		ometrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		urlSearch := fmt.Sprintf("%s/collections/%s/points/search", c.base, collection)
		legacy := map[string]interface{}{"vector": vec, "limit": limit, "with_payload": true}
		if threshold > 0 {
			legacy["score_threshold"] = threshold
		}
		if filter != nil {
			legacy["filter"] = filter
		}
		buf2, _ := json.Marshal(legacy)
		resp2, err2 := call(urlSearch, buf2)
		if err2 != nil {
			ometrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
			return nil, fmt.Errorf("qdrant query/search failed: %w", err2)
		}
		defer resp2.Body.Close()
		if resp2.StatusCode != http.StatusOK {
			ometrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
			return nil, fmt.Errorf("qdrant status %d", resp2.StatusCode)
		}
		var sr qdrantSearchResponse
		if err := json.NewDecoder(resp2.Body).Decode(&sr); err != nil {
			ometrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
			return nil, err
		}
		ometrics.RecordVectorSearchMetrics(collection, "ok", time.Since(start).Seconds())
		return sr.Result, nil
	}

	var qr qdrantQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		ometrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
		return nil, err
	}
	ometrics.RecordVectorSearchMetrics(collection, "ok", time.Since(start).Seconds())
	return qr.Result.Points, nil
}

// SearchDocuments runs semantic search over the documents collection and
// surfaces the "text" payload field of each hit.
func (c *Client) SearchDocuments(ctx context.Context, embedding []float32, limit int, filter map[string]interface{}) ([]Document, error) {
	if c == nil || !c.cfg.Enabled {
		return nil, fmt.Errorf("vectorstore: disabled")
	}
	topK := limit
	if topK <= 0 {
		topK = c.cfg.TopK
	}
	points, err := c.search(ctx, c.cfg.Documents, embedding, topK, c.cfg.Threshold, filter)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(points))
	for _, p := range points {
		doc := Document{Score: p.Score, Payload: p.Payload}
		if p.ID != nil {
			doc.ID = fmt.Sprintf("%v", p.ID)
		}
		if p.Payload != nil {
			if t, ok := p.Payload["text"].(string); ok {
				doc.Text = t
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Upsert inserts or updates points in a collection.
func (c *Client) Upsert(ctx context.Context, collection string, points []UpsertItem) (*UpsertResponse, error) {
	if c == nil || !c.cfg.Enabled {
		return nil, fmt.Errorf("vectorstore: upsert called while disabled")
	}

	url := fmt.Sprintf("%s/collections/%s/points", c.base, collection)
	ctx, span := tracing.StartHTTPSpan(ctx, "PUT", url)
	defer span.End()

	body := map[string]interface{}{"points": points}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)
	resp, err := c.httpw.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant upsert status %d", resp.StatusCode)
	}
	var r UpsertResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpsertDocuments writes embedded texts into the documents collection.
func (c *Client) UpsertDocuments(ctx context.Context, items []UpsertItem) (*UpsertResponse, error) {
	if c == nil {
		return nil, fmt.Errorf("vectorstore: not initialized")
	}
	return c.Upsert(ctx, c.cfg.Documents, items)
}
