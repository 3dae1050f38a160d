package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenhillcanarias/digital-twin/internal/twin"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8090, cfg.HTTP.Port)
	assert.Equal(t, 2112, cfg.Metrics.Port)
	assert.Equal(t, "small", cfg.LLM.ModelTier)
	assert.Equal(t, "ghc_documents", cfg.VectorStore.Collection)
	assert.Equal(t, 5, cfg.Twin.ContextTopK)
	assert.Equal(t, 3, cfg.Twin.AgentTopK)
	assert.False(t, cfg.Twin.ArchiveOutputs)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "twin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: production
log_level: warn
llm:
  base_url: http://llm:8000
  provider: anthropic
vector_store:
  enabled: true
  host: qdrant
twin:
  archive_outputs: true
`), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "http://llm:8000", cfg.LLM.BaseURL)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.True(t, cfg.VectorStore.Enabled)
	assert.Equal(t, "qdrant", cfg.VectorStore.Host)
	assert.True(t, cfg.Twin.ArchiveOutputs)
	// Untouched values keep their defaults.
	assert.Equal(t, 6333, cfg.VectorStore.Port)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("TWIN_LOG_LEVEL", "debug")
	t.Setenv("TWIN_HTTP_PORT", "9999")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9999, cfg.HTTP.Port)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "twin.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{: not yaml"), 0o644))
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	require.Error(t, err)
}

func TestParseRoutingTable(t *testing.T) {
	table, err := parseRoutingTable([]byte(`
source_types:
  public:
    - market
    - strategy
  auditor:
    - compliance
    - risk
`))
	require.NoError(t, err)
	assert.Equal(t, []twin.AgentName{twin.AgentCompliance, twin.AgentRisk}, table.SourceTypes["auditor"])
	// Missing sections come from the canonical table.
	assert.NotEmpty(t, table.DomainHints)
	assert.NotEmpty(t, table.ComplianceSubdomains)
}

func TestParseRoutingTable_UnknownAgent(t *testing.T) {
	_, err := parseRoutingTable([]byte(`
source_types:
  public:
    - astrology
`))
	require.Error(t, err)
}

func TestParseRoutingTable_AliasAccepted(t *testing.T) {
	table, err := parseRoutingTable([]byte(`
source_types:
  legacy_feed:
    - market_intel
`))
	require.NoError(t, err)
	assert.Equal(t, []twin.AgentName{twin.AgentMarketIntel}, table.SourceTypes["legacy_feed"])
}
