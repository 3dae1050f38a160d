// Package httpapi exposes the twin over HTTP: health, query, ingestion, and
// the audit registers.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/greenhillcanarias/digital-twin/internal/audit"
	"github.com/greenhillcanarias/digital-twin/internal/interceptors"
	"github.com/greenhillcanarias/digital-twin/internal/twin"
)

// Ingestor is the slice of the retrieval store the API writes through.
type Ingestor interface {
	AddTexts(ctx context.Context, texts []string, metadatas []map[string]interface{}) error
}

// Registers is the read side of the audit store, optional.
type Registers interface {
	RecentDecisions(ctx context.Context, limit int) ([]audit.Entry, error)
	RecentIssues(ctx context.Context, limit int) ([]audit.Entry, error)
}

// Handler serves the twin API on a plain ServeMux.
type Handler struct {
	engine    *twin.Engine
	ingestor  Ingestor
	registers Registers
	logger    *zap.Logger
	timeout   time.Duration
}

func NewHandler(engine *twin.Engine, ingestor Ingestor, registers Registers, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:    engine,
		ingestor:  ingestor,
		registers: registers,
		logger:    logger,
		timeout:   5 * time.Minute,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/api/twin/query", h.handleQuery)
	mux.HandleFunc("/api/twin/ingest_texts", h.handleIngestTexts)
	mux.HandleFunc("/api/twin/registers/decisions", h.handleDecisions)
	mux.HandleFunc("/api/twin/registers/issues", h.handleIssues)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req twin.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	ctx = interceptors.WithRequestID(ctx, r.Header.Get("X-Request-ID"))

	st := h.engine.Run(ctx, req)

	h.logger.Info("Query handled",
		zap.String("source_type", st.SourceType),
		zap.Int("agents", len(st.TargetAgents)),
		zap.Int("context_docs", len(st.RetrievedDocs())),
		zap.Int("errors", len(st.Errors)),
	)
	writeJSON(w, http.StatusOK, st)
}

type ingestTextsRequest struct {
	Texts     []string                 `json:"texts"`
	Metadatas []map[string]interface{} `json:"metadatas,omitempty"`
}

func (h *Handler) handleIngestTexts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.ingestor == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion not configured")
		return
	}
	// Ingestion payloads can be large but still need a ceiling.
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)

	var req ingestTextsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Texts) == 0 {
		writeError(w, http.StatusBadRequest, "texts is required")
		return
	}

	if err := h.ingestor.AddTexts(r.Context(), req.Texts, req.Metadatas); err != nil {
		h.logger.Error("Ingest failed", zap.Error(err), zap.Int("texts", len(req.Texts)))
		writeError(w, http.StatusInternalServerError, "failed to add texts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "count": len(req.Texts)})
}

func (h *Handler) handleDecisions(w http.ResponseWriter, r *http.Request) {
	h.handleRegister(w, r, func(ctx context.Context, limit int) ([]audit.Entry, error) {
		return h.registers.RecentDecisions(ctx, limit)
	})
}

func (h *Handler) handleIssues(w http.ResponseWriter, r *http.Request) {
	h.handleRegister(w, r, func(ctx context.Context, limit int) ([]audit.Entry, error) {
		return h.registers.RecentIssues(ctx, limit)
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request, fetch func(context.Context, int) ([]audit.Entry, error)) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.registers == nil {
		writeError(w, http.StatusServiceUnavailable, "audit registers not configured")
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	entries, err := fetch(r.Context(), limit)
	if err != nil {
		h.logger.Error("Register read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "register read failed")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
