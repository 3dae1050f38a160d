// Command ingest loads knowledge-base documents from a directory into the
// vector store. Markdown and plain-text files are split into one document per
// non-empty line; JSONL files carry their own text and metadata per line.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/greenhillcanarias/digital-twin/internal/config"
	"github.com/greenhillcanarias/digital-twin/internal/embeddings"
	"github.com/greenhillcanarias/digital-twin/internal/retrieval"
	"github.com/greenhillcanarias/digital-twin/internal/vectorstore"
)

type document struct {
	text string
	meta map[string]interface{}
}

func main() {
	sourceDir := flag.String("source", "./knowledge_base", "Directory with .md, .txt and .jsonl documents")
	batchSize := flag.Int("batch", 64, "Documents per upsert batch")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall ingestion deadline")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := cfgpkg.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if !cfg.VectorStore.Enabled || cfg.Embeddings.BaseURL == "" {
		logger.Fatal("Ingestion requires both the vector store and the embedding service to be configured")
	}

	embeddings.Initialize(embeddings.Config{
		BaseURL:      cfg.Embeddings.BaseURL,
		DefaultModel: cfg.Embeddings.Model,
		EnableRedis:  cfg.Embeddings.RedisEnabled,
		RedisAddr:    cfg.Embeddings.RedisAddr,
		CacheTTL:     cfg.EmbeddingsCacheTTL(),
		Chunking:     embeddings.DefaultChunkingConfig(),
	}, nil)
	vectorstore.Initialize(vectorstore.Config{
		Enabled:   cfg.VectorStore.Enabled,
		Host:      cfg.VectorStore.Host,
		Port:      cfg.VectorStore.Port,
		Documents: cfg.VectorStore.Collection,
		TopK:      cfg.VectorStore.TopK,
		Threshold: cfg.VectorStore.Threshold,
	}, logger)
	store := retrieval.NewStore(embeddings.Get(), vectorstore.Get(), embeddings.DefaultChunkingConfig(), logger)

	docs, err := loadDirectory(*sourceDir, logger)
	if err != nil {
		logger.Fatal("Failed to read source directory", zap.Error(err))
	}
	if len(docs) == 0 {
		logger.Fatal("No supported documents found", zap.String("source", *sourceDir))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	ingested := 0
	for start := 0; start < len(docs); start += *batchSize {
		end := start + *batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]
		texts := make([]string, len(batch))
		metas := make([]map[string]interface{}, len(batch))
		for i, d := range batch {
			texts[i] = d.text
			metas[i] = d.meta
		}
		if err := store.AddTexts(ctx, texts, metas); err != nil {
			logger.Fatal("Ingestion batch failed",
				zap.Int("ingested_so_far", ingested),
				zap.Error(err))
		}
		ingested += len(batch)
		logger.Info("Batch ingested", zap.Int("count", len(batch)), zap.Int("total", ingested))
	}

	logger.Info("Ingestion complete",
		zap.Int("documents", ingested),
		zap.String("collection", cfg.VectorStore.Collection))
}

// loadDirectory gathers documents from every supported file directly under dir.
func loadDirectory(dir string, logger *zap.Logger) ([]document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var docs []document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".md", ".txt":
			loaded, err := loadLines(path)
			if err != nil {
				logger.Warn("Skipping unreadable file", zap.String("path", path), zap.Error(err))
				continue
			}
			docs = append(docs, loaded...)
		case ".jsonl":
			loaded, err := loadJSONL(path, logger)
			if err != nil {
				logger.Warn("Skipping unreadable file", zap.String("path", path), zap.Error(err))
				continue
			}
			docs = append(docs, loaded...)
		}
	}
	return docs, nil
}

// loadLines treats each non-empty line as its own document, keeping the file
// and line number as metadata.
func loadLines(path string) ([]document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		docs = append(docs, document{
			text: text,
			meta: map[string]interface{}{"source": path, "line": line},
		})
	}
	return docs, scanner.Err()
}

// loadJSONL reads one JSON object per line with a "text" field and optional
// "metadata" object. Malformed lines are reported and skipped.
func loadJSONL(path string, logger *zap.Logger) ([]document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var obj struct {
			Text     string                 `json:"text"`
			Metadata map[string]interface{} `json:"metadata"`
		}
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			logger.Warn("Malformed JSONL line",
				zap.String("path", path),
				zap.Int("line", line),
				zap.Error(err))
			continue
		}
		if strings.TrimSpace(obj.Text) == "" {
			continue
		}
		meta := map[string]interface{}{"source": path, "line": line}
		for k, v := range obj.Metadata {
			meta[k] = v
		}
		docs = append(docs, document{text: obj.Text, meta: meta})
	}
	return docs, scanner.Err()
}
