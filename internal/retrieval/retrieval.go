// Package retrieval connects the twin's agents to the document store. It
// embeds queries, searches Qdrant, and archives agent analyses back into the
// same collection so future runs can retrieve them.
package retrieval

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/greenhillcanarias/digital-twin/internal/embeddings"
	ometrics "github.com/greenhillcanarias/digital-twin/internal/metrics"
	"github.com/greenhillcanarias/digital-twin/internal/twin"
	"github.com/greenhillcanarias/digital-twin/internal/vectorstore"
)

// Placeholder snippets keep retrieval non-fatal: agents receive these instead
// of an error when the store is missing or unreachable.
const (
	MsgStoreUnavailable = "No vector store available"
)

// Embedder is the slice of the embedding service the store needs.
type Embedder interface {
	Embed(ctx context.Context, text string, model string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// VectorIndex is the slice of the Qdrant client the store needs.
type VectorIndex interface {
	SearchDocuments(ctx context.Context, embedding []float32, limit int, filter map[string]interface{}) ([]vectorstore.Document, error)
	UpsertDocuments(ctx context.Context, items []vectorstore.UpsertItem) (*vectorstore.UpsertResponse, error)
}

// Store implements twin.Retriever and twin.Archiver over the embedding
// service and vector store.
type Store struct {
	embedder Embedder
	index    VectorIndex
	chunker  *embeddings.Chunker
	logger   *zap.Logger
}

// NewStore wires a retrieval store. Either collaborator may be nil; retrieval
// then degrades to placeholder snippets and archiving becomes a no-op error.
func NewStore(embedder Embedder, index VectorIndex, chunking embeddings.ChunkingConfig, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		embedder: embedder,
		index:    index,
		chunker:  embeddings.NewChunker(chunking),
		logger:   logger,
	}
}

// Retrieve returns up to k snippets relevant to query. It never returns an
// error: unavailability and failures surface as placeholder snippets so the
// agent chain keeps moving.
func (s *Store) Retrieve(ctx context.Context, query string, k int) []string {
	if s == nil || s.embedder == nil || s.index == nil {
		return []string{MsgStoreUnavailable}
	}

	vec, err := s.embedder.Embed(ctx, query, "")
	if err != nil {
		s.logger.Warn("Query embedding failed", zap.Error(err))
		return []string{fmt.Sprintf("Vector store query failed: %v", err)}
	}

	docs, err := s.index.SearchDocuments(ctx, vec, k, nil)
	if err != nil {
		s.logger.Warn("Vector search failed", zap.Error(err))
		return []string{fmt.Sprintf("Vector store query failed: %v", err)}
	}

	snippets := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Text != "" {
			snippets = append(snippets, d.Text)
		}
	}
	return snippets
}

// AddTexts embeds and upserts raw texts with their metadata. Used by the
// ingestion surfaces.
func (s *Store) AddTexts(ctx context.Context, texts []string, metadatas []map[string]interface{}) error {
	if s == nil || s.embedder == nil || s.index == nil {
		return fmt.Errorf("retrieval: store not available")
	}
	if len(texts) == 0 {
		return nil
	}
	if metadatas != nil && len(metadatas) != len(texts) {
		return fmt.Errorf("retrieval: %d metadatas for %d texts", len(metadatas), len(texts))
	}

	vecs, err := s.embedder.EmbedBatch(ctx, texts, "")
	if err != nil {
		return fmt.Errorf("embed texts: %w", err)
	}

	items := make([]vectorstore.UpsertItem, 0, len(texts))
	for i, text := range texts {
		payload := map[string]interface{}{"text": text}
		if metadatas != nil {
			for k, v := range metadatas[i] {
				payload[k] = v
			}
		}
		items = append(items, vectorstore.UpsertItem{
			ID:      uuid.New().String(),
			Vector:  vecs[i],
			Payload: payload,
		})
	}
	if _, err := s.index.UpsertDocuments(ctx, items); err != nil {
		return fmt.Errorf("upsert texts: %w", err)
	}
	return nil
}

// Archive chunks each agent analysis and writes the chunks back into the
// documents collection, tagged so retrieval hits can be traced to the agent
// and question that produced them.
func (s *Store) Archive(ctx context.Context, items []twin.ArchiveItem) error {
	if s == nil || s.embedder == nil || s.index == nil {
		return fmt.Errorf("retrieval: store not available")
	}
	if len(items) == 0 {
		return nil
	}

	var texts []string
	var metas []map[string]interface{}
	var agents []string

	for _, item := range items {
		chunks := s.chunker.ChunkText(item.Text)
		if chunks == nil {
			texts = append(texts, item.Text)
			metas = append(metas, map[string]interface{}{
				"source":   "agent_output",
				"agent":    item.Agent,
				"question": item.Question,
			})
			agents = append(agents, item.Agent)
			continue
		}
		for _, ch := range chunks {
			texts = append(texts, ch.Text)
			metas = append(metas, map[string]interface{}{
				"source":       "agent_output",
				"agent":        item.Agent,
				"question":     item.Question,
				"doc_id":       ch.DocID,
				"chunk":        ch.Index,
				"total_chunks": ch.TotalCount,
			})
			agents = append(agents, item.Agent)
		}
	}

	if err := s.AddTexts(ctx, texts, metas); err != nil {
		for _, a := range agents {
			ometrics.RecordArchiveChunk(a, "error")
		}
		return err
	}
	for _, a := range agents {
		ometrics.RecordArchiveChunk(a, "ok")
	}
	s.logger.Debug("Archived agent outputs", zap.Int("chunks", len(texts)))
	return nil
}
