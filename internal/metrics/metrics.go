package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	RequestsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twin_requests_started_total",
			Help: "Total number of twin requests started",
		},
		[]string{"source_type"},
	)

	RequestsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twin_requests_completed_total",
			Help: "Total number of twin requests completed",
		},
		[]string{"source_type", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twin_request_duration_seconds",
			Help:    "Full routing traversal duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source_type"},
	)

	// Agent metrics
	AgentExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twin_agent_executions_total",
			Help: "Total number of agent executions",
		},
		[]string{"agent"},
	)

	AgentExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twin_agent_execution_duration_ms",
			Help:    "Agent execution duration in milliseconds",
			Buckets: []float64{100, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"agent"},
	)

	// LLM metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twin_llm_requests_total",
			Help: "Total number of LLM enhance calls",
		},
		[]string{"status"},
	)

	LLMFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "twin_llm_fallbacks_total",
			Help: "Total number of enhance calls that degraded to the baseline",
		},
	)

	LLMLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "twin_llm_latency_seconds",
			Help:    "LLM enhance call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Vector search metrics
	VectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twin_vector_searches_total",
			Help: "Total number of vector searches",
		},
		[]string{"collection", "status"},
	)

	VectorSearchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twin_vector_search_latency_seconds",
			Help:    "Vector search latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twin_embedding_requests_total",
			Help: "Total number of embedding requests by status",
		},
		[]string{"model", "status"},
	)

	EmbeddingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twin_embedding_latency_seconds",
			Help:    "Embedding generation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	// Audit metrics
	AuditWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twin_audit_writes_total",
			Help: "Total number of audit register writes",
		},
		[]string{"register", "status"},
	)

	// Archive metrics
	ArchiveChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twin_archive_chunks_total",
			Help: "Total number of agent-output chunks archived to the vector store",
		},
		[]string{"agent", "status"},
	)
)

// RecordRequestMetrics records metrics for a completed routing traversal.
func RecordRequestMetrics(sourceType, status string, durationSeconds float64) {
	RequestsCompleted.WithLabelValues(sourceType, status).Inc()
	RequestDuration.WithLabelValues(sourceType).Observe(durationSeconds)
}

// RecordAgentMetrics records metrics for an agent execution.
func RecordAgentMetrics(agent string, durationMs float64) {
	AgentExecutions.WithLabelValues(agent).Inc()
	AgentExecutionDuration.WithLabelValues(agent).Observe(durationMs)
}

// RecordLLMMetrics records metrics for an enhance call.
func RecordLLMMetrics(status string, durationSeconds float64) {
	LLMRequests.WithLabelValues(status).Inc()
	if durationSeconds > 0 {
		LLMLatency.Observe(durationSeconds)
	}
}

// RecordVectorSearchMetrics records vector search metrics.
func RecordVectorSearchMetrics(collection, status string, durationSeconds float64) {
	VectorSearches.WithLabelValues(collection, status).Inc()
	if durationSeconds > 0 {
		VectorSearchLatency.WithLabelValues(collection).Observe(durationSeconds)
	}
}

// RecordEmbeddingMetrics records embedding metrics.
func RecordEmbeddingMetrics(model, status string, durationSeconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	if durationSeconds > 0 {
		EmbeddingLatency.WithLabelValues(model).Observe(durationSeconds)
	}
}

// RecordAuditWrite records an audit register write outcome.
func RecordAuditWrite(register, status string) {
	AuditWrites.WithLabelValues(register, status).Inc()
}

// RecordArchiveChunk records an archived agent-output chunk outcome.
func RecordArchiveChunk(agent, status string) {
	ArchiveChunks.WithLabelValues(agent, status).Inc()
}
