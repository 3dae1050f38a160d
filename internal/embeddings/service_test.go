package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUninitializedService(t *testing.T) {
	var s *Service
	_, err := s.Embed(context.Background(), "hello", "")
	require.Error(t, err)
	_, err = s.EmbedBatch(context.Background(), []string{"a"}, "")
	require.Error(t, err)
}

func newEmbedServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embedResponse{Dimensions: 3, ModelUsed: req.Model}
		for range req.Texts {
			resp.Embeddings = append(resp.Embeddings, []float64{0.1, 0.2, 0.3})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbed_UsesLRUOnRepeat(t *testing.T) {
	calls := 0
	srv := newEmbedServer(t, &calls)
	defer srv.Close()

	svc := &Service{
		cfg:  Config{BaseURL: srv.URL, DefaultModel: "test-model", CacheTTL: time.Hour},
		http: srv.Client(),
		lru:  NewLocalLRU(16),
	}

	v1, err := svc.Embed(context.Background(), "the same text", "")
	require.NoError(t, err)
	require.Len(t, v1, 3)

	v2, err := svc.Embed(context.Background(), "the same text", "")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, calls)
}

func TestEmbedBatch_OnlyRequestsUncached(t *testing.T) {
	calls := 0
	srv := newEmbedServer(t, &calls)
	defer srv.Close()

	svc := &Service{
		cfg:  Config{BaseURL: srv.URL, DefaultModel: "test-model", CacheTTL: time.Hour},
		http: srv.Client(),
		lru:  NewLocalLRU(16),
	}

	_, err := svc.Embed(context.Background(), "cached", "")
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	out, err := svc.EmbedBatch(context.Background(), []string{"cached", "fresh"}, "")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Len(t, out[0], 3)
	assert.Len(t, out[1], 3)
	assert.Equal(t, 2, calls)
}

func TestEmbed_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := &Service{
		cfg:  Config{BaseURL: srv.URL, DefaultModel: "test-model"},
		http: srv.Client(),
		lru:  NewLocalLRU(16),
	}
	_, err := svc.Embed(context.Background(), "text", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestChunker(t *testing.T) {
	c := NewChunker(ChunkingConfig{Enabled: true, MaxWords: 10, OverlapWords: 2})

	assert.Nil(t, c.ChunkText("short text fits in one chunk"))

	long := ""
	for i := 0; i < 25; i++ {
		long += "word "
	}
	chunks := c.ChunkText(long)
	require.NotEmpty(t, chunks)
	assert.Greater(t, len(chunks), 1)
	for i, ch := range chunks {
		assert.Equal(t, chunks[0].DocID, ch.DocID)
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, len(chunks), ch.TotalCount)
		assert.LessOrEqual(t, c.CountWords(ch.Text), 10)
	}
}

func TestChunker_TinyWindowTerminates(t *testing.T) {
	// Overlap >= max words leaves no forward step; the window must still
	// advance at least one word per chunk.
	c := NewChunker(ChunkingConfig{Enabled: true, MaxWords: 1, OverlapWords: 1})

	chunks := c.ChunkText("alpha beta gamma")
	require.Len(t, chunks, 3)
	assert.Equal(t, "alpha", chunks[0].Text)
	assert.Equal(t, "gamma", chunks[2].Text)
}

func TestLocalLRU_EvictsAndExpires(t *testing.T) {
	lru := NewLocalLRU(2)
	ctx := context.Background()

	lru.Set(ctx, "a", []float32{1}, time.Hour)
	lru.Set(ctx, "b", []float32{2}, time.Hour)
	lru.Set(ctx, "c", []float32{3}, time.Hour)

	_, ok := lru.Get(ctx, "a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = lru.Get(ctx, "c")
	assert.True(t, ok)

	lru.Set(ctx, "d", []float32{4}, -time.Second)
	_, ok = lru.Get(ctx, "d")
	assert.False(t, ok, "expired entry should miss")
}
