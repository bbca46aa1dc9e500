package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"reportrag/internal/app"
	"reportrag/internal/config"
	"reportrag/internal/contextutil"
	"reportrag/internal/http"
)

// General API information
//
// This API ingests annual report documents into a vector index and answers
// questions using the retrieved chunks as context.
//
// Endpoints:
//   POST /api/ingest       ingest one document {document_id, text}
//   POST /api/ingest/dir   ingest RAW_DATA_DIR in the background
//   POST /api/retrieve     top-k chunks for {query, k}
//   POST /api/ask          answer {question, k}; ?stream=true for SSE, ?debug=true for prompt details
//   GET  /api/health       index and model status

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel, "format", cfg.LogFormat)

	ctx := contextutil.WithLogger(context.Background(), logger)

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("Failed to close resources", "error", err)
		}
	}()

	// Validate the embedder against the collection (fail-fast)
	if err := a.CheckEmbedder(ctx); err != nil {
		log.Fatalf("Embedder check failed: %v", err)
	}
	slog.Info("Embedder validated", "model", a.Embedder.ModelName(), "dimension", a.Index.Dimension())

	deps := &http.Deps{
		Ingester:   a.Pipeline,
		Searcher:   a.Pipeline,
		RAGEngine:  a.Engine,
		Index:      a.Index,
		LLM:        a.LLM,
		RawDataDir: cfg.RawDataDir,
	}
	router := http.NewRouter(deps)

	// Ingest the raw data directory in background after router is ready
	go func() {
		slog.Info("Starting background ingestion", "dir", cfg.RawDataDir)
		stats, err := a.Pipeline.IngestDir(ctx, cfg.RawDataDir)
		if err != nil {
			slog.Error("Ingestion completed with errors", "error", err)
			return
		}
		slog.Info("Ingestion completed successfully", "processed", stats.DocsProcessed, "chunks", stats.ChunksStored)
	}()

	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
