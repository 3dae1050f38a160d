package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/greenhillcanarias/digital-twin/internal/answercache"
	"github.com/greenhillcanarias/digital-twin/internal/audit"
	"github.com/greenhillcanarias/digital-twin/internal/circuitbreaker"
	cfgpkg "github.com/greenhillcanarias/digital-twin/internal/config"
	"github.com/greenhillcanarias/digital-twin/internal/embeddings"
	"github.com/greenhillcanarias/digital-twin/internal/httpapi"
	"github.com/greenhillcanarias/digital-twin/internal/llm"
	"github.com/greenhillcanarias/digital-twin/internal/retrieval"
	"github.com/greenhillcanarias/digital-twin/internal/tracing"
	"github.com/greenhillcanarias/digital-twin/internal/twin"
	"github.com/greenhillcanarias/digital-twin/internal/vectorstore"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := cfgpkg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting digital twin orchestrator",
		zap.String("environment", cfg.Environment),
		zap.Int("http_port", cfg.HTTP.Port),
	)

	circuitbreaker.StartMetricsCollection()

	if err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.Endpoint,
	}, logger); err != nil {
		logger.Warn("Tracing initialization failed, continuing without", zap.Error(err))
	}

	// Embeddings with optional shared Redis cache.
	var embCache embeddings.Cache
	if cfg.Embeddings.RedisEnabled {
		rc, err := embeddings.NewRedisCache(cfg.Embeddings.RedisAddr)
		if err != nil {
			logger.Warn("Embedding Redis cache unavailable, using local LRU only", zap.Error(err))
		} else {
			embCache = rc
		}
	}
	embeddings.Initialize(embeddings.Config{
		BaseURL:      cfg.Embeddings.BaseURL,
		DefaultModel: cfg.Embeddings.Model,
		EnableRedis:  cfg.Embeddings.RedisEnabled,
		RedisAddr:    cfg.Embeddings.RedisAddr,
		CacheTTL:     cfg.EmbeddingsCacheTTL(),
		Chunking:     embeddings.DefaultChunkingConfig(),
	}, embCache)

	vectorstore.Initialize(vectorstore.Config{
		Enabled:   cfg.VectorStore.Enabled,
		Host:      cfg.VectorStore.Host,
		Port:      cfg.VectorStore.Port,
		Documents: cfg.VectorStore.Collection,
		TopK:      cfg.VectorStore.TopK,
		Threshold: cfg.VectorStore.Threshold,
	}, logger)

	// Retrieval ties embeddings and the vector store into one document store.
	var store *retrieval.Store
	if cfg.VectorStore.Enabled && cfg.Embeddings.BaseURL != "" {
		store = retrieval.NewStore(embeddings.Get(), vectorstore.Get(), embeddings.DefaultChunkingConfig(), logger)
	} else {
		store = retrieval.NewStore(nil, nil, embeddings.DefaultChunkingConfig(), logger)
		logger.Warn("Vector store or embeddings not configured, retrieval degraded to placeholders")
	}

	generator := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		Provider:    cfg.LLM.Provider,
		ModelTier:   cfg.LLM.ModelTier,
		Timeout:     cfg.LLMTimeout(),
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, logger)

	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		auditStore, err = audit.NewStore(audit.Config{
			Driver:  cfg.Audit.Driver,
			DSN:     cfg.Audit.DSN,
			Workers: cfg.Audit.Workers,
		}, logger)
		if err != nil {
			logger.Warn("Audit store unavailable, register writes disabled", zap.Error(err))
			auditStore = nil
		} else {
			defer auditStore.Close()
		}
	}

	var answerCache *answercache.Cache
	if cfg.AnswerCache.Enabled {
		answerCache, err = answercache.New(answercache.Config{
			Addr: cfg.AnswerCache.RedisAddr,
			TTL:  cfg.AnswerCacheTTL(),
		}, logger)
		if err != nil {
			logger.Warn("Answer cache unavailable, continuing without", zap.Error(err))
			answerCache = nil
		} else {
			defer answerCache.Close()
		}
	}

	opts := twin.Options{
		Routing:        cfgpkg.LoadRoutingTable(),
		ContextTopK:    cfg.Twin.ContextTopK,
		AgentTopK:      cfg.Twin.AgentTopK,
		ArchiveOutputs: cfg.Twin.ArchiveOutputs,
	}
	if auditStore != nil {
		opts.Audit = auditStore
	}
	if answerCache != nil {
		opts.Cache = answerCache
	}
	if cfg.Twin.ArchiveOutputs {
		opts.Archiver = store
	}
	engine := twin.NewEngine(store, generator, opts, logger)

	// Routing table hot reload when a config dir is provided.
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		mgr, err := cfgpkg.NewManager(dir, logger)
		if err != nil {
			logger.Warn("Config hot-reload unavailable", zap.Error(err))
		} else {
			mgr.RegisterHandler("routing.yaml", func() error {
				engine.SetRouting(cfgpkg.ReloadRoutingTable())
				return nil
			})
			if err := mgr.Start(ctx); err != nil {
				logger.Warn("Config watch failed to start", zap.Error(err))
			} else {
				defer func() { _ = mgr.Stop() }()
			}
		}
	}

	if cfg.Metrics.Enabled {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Metrics server listening", zap.String("addr", addr))
			if err := http.ListenAndServe(addr, metricsMux); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	mux := http.NewServeMux()
	handler := httpapi.NewHandler(engine, store, registersOrNil(auditStore), logger)
	handler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSeconds)*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

func buildLogger(cfg *cfgpkg.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Environment == "development" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zcfg.Level = level
	}
	return zcfg.Build()
}

// registersOrNil avoids handing a typed nil *audit.Store to the handler's
// interface field.
func registersOrNil(s *audit.Store) httpapi.Registers {
	if s == nil {
		return nil
	}
	return s
}
