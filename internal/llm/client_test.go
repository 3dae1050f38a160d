package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestEnhance_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/agent/query", r.URL.Path)
		var req agentQueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "draft content", req.Query)
		assert.Equal(t, "act as strategist", req.Context["system_prompt"])
		assert.Equal(t, "small", req.ModelTier)

		_ = json.NewEncoder(w).Encode(agentQueryResponse{
			Success:  true,
			Response: "  Refined strategic view.  ",
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	got := c.Enhance(context.Background(), "act as strategist", "draft content")
	assert.Equal(t, "Refined strategic view.", got)
}

func TestEnhance_HTTPErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	got := c.Enhance(context.Background(), "instruction", "content")
	assert.True(t, strings.HasPrefix(got, "Analysis: instruction"), got)
	assert.Contains(t, got, "Context: content")
	assert.Contains(t, got, "[LLM enhancement unavailable:")
	assert.Contains(t, got, "502")
}

func TestEnhance_EmptyCompletionFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(agentQueryResponse{Success: true, Response: "   "})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	got := c.Enhance(context.Background(), "i", "c")
	assert.Contains(t, got, "empty completion")
}

func TestEnhance_UnconfiguredFallsBack(t *testing.T) {
	c := NewClient(Config{}, zaptest.NewLogger(t))
	got := c.Enhance(context.Background(), "i", "c")
	assert.Contains(t, got, "llm service not configured")
}

func TestBaselineShape(t *testing.T) {
	got := baseline("focus on risk", "snippet one", context.DeadlineExceeded)
	assert.Equal(t,
		"Analysis: focus on risk\n\nContext: snippet one\n\n[LLM enhancement unavailable: context deadline exceeded]",
		got)
}
